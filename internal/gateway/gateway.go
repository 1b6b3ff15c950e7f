package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/relay"
	ws "github.com/stemsi/quizlive-backend/internal/websocket"
)

// Options tunes per-connection transport behavior.
type Options struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
}

func (o *Options) withDefaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = ws.DefaultWriteTimeout
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongTimeout {
		o.PingInterval = o.PongTimeout * 9 / 10
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 8 * 1024
	}
}

// Gateway owns every live websocket. It turns frames into relay events and
// delivers relay messages to connections without ever blocking the relay.
type Gateway struct {
	relay *relay.Relay
	opts  Options
	log   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	writers sync.WaitGroup
}

// New creates a Gateway and installs it as the relay's emitter.
func New(r *relay.Relay, opts Options, log zerolog.Logger) *Gateway {
	opts.withDefaults()
	g := &Gateway{
		relay:   r,
		opts:    opts,
		log:     log.With().Str("component", "gateway").Logger(),
		clients: make(map[string]*client),
	}
	r.SetEmitter(g)
	return g
}

// ErrClosed is returned by Serve once Shutdown has started.
var ErrClosed = errors.New("gateway is shutting down")

// Serve runs one connection until it closes. teacherID is the identity from
// the upgrade request's teacher token, empty for students. The connection is
// always closed when Serve returns.
func (g *Gateway) Serve(conn *websocket.Conn, teacherID string) error {
	c := newClient(uuid.NewString(), conn, teacherID, g.opts.SendBuffer)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		deadline := time.Now().Add(g.opts.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
		conn.Close()
		return ErrClosed
	}
	g.clients[c.id] = c
	g.writers.Add(1)
	g.mu.Unlock()

	log := g.log.With().Str("conn_id", c.id).Bool("teacher", teacherID != "").Logger()
	log.Debug().Msg("Connection opened")

	go g.writePump(c, log)
	g.readPump(c, log)

	// reader is done: retire the connection, then run relay side effects
	c.close(websocket.CloseNormalClosure, "")
	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()
	g.relay.Disconnect(c.id)

	log.Debug().Msg("Connection closed")
	return nil
}

// Emit implements relay.Emitter. It is called with the relay lock held and
// only enqueues.
func (g *Gateway) Emit(msgs []relay.Message) {
	for _, m := range msgs {
		if m.Room != "" {
			g.Broadcast(m.Room, m.Event, m.Payload, m.Exclude)
			continue
		}
		for _, id := range m.To {
			g.Send(id, m.Event, m.Payload)
		}
	}
}

// Send delivers one event to one connection.
func (g *Gateway) Send(connID string, event relay.OutEvent, payload interface{}) {
	pm, err := ws.Prepare(event, payload)
	if err != nil {
		g.log.Error().Err(err).Str("event", string(event)).Msg("Failed to encode event")
		return
	}
	g.deliver(connID, event, pm)
}

// Broadcast delivers one event to every connection bound to a session,
// except excludeConnID. The frame is encoded once.
func (g *Gateway) Broadcast(code string, event relay.OutEvent, payload interface{}, excludeConnID string) {
	members := g.relay.Registry().Members(code)
	if len(members) == 0 {
		return
	}
	pm, err := ws.Prepare(event, payload)
	if err != nil {
		g.log.Error().Err(err).Str("event", string(event)).Msg("Failed to encode event")
		return
	}
	for _, id := range members {
		if id != excludeConnID {
			g.deliver(id, event, pm)
		}
	}
}

func (g *Gateway) deliver(connID string, event relay.OutEvent, pm *websocket.PreparedMessage) {
	g.mu.RLock()
	c, ok := g.clients[connID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	if !c.enqueue(pm) {
		g.log.Warn().
			Str("conn_id", connID).
			Str("event", string(event)).
			Int("buffer", cap(c.send)).
			Msg("Send buffer full, dropping slow connection")
		c.close(websocket.ClosePolicyViolation, "slow consumer")
	}
}

// Clients reports the number of open connections.
func (g *Gateway) Clients() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Shutdown ends every session, lets writers flush the final events and
// closes every connection. It waits for writers until ctx is done.
func (g *Gateway) Shutdown(ctx context.Context, reason string) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.relay.Shutdown(reason)

	g.mu.RLock()
	for _, c := range g.clients {
		c.close(websocket.CloseGoingAway, reason)
	}
	g.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		g.writers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) readPump(c *client, log zerolog.Logger) {
	c.conn.SetReadLimit(g.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(g.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(g.opts.PongTimeout))
	})

	caller := relay.Caller{ConnID: c.id, TeacherID: c.teacherID}
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		// any inbound frame proves liveness
		c.conn.SetReadDeadline(time.Now().Add(g.opts.PongTimeout))

		ev, name, err := ws.Decode(raw)
		if err != nil {
			log.Debug().Err(err).Str("event", string(name)).Msg("Rejected frame")
			g.Send(c.id, relay.OutError, relay.ErrorPayload{
				Code:    relay.CodeOf(err),
				Message: err.Error(),
				Event:   name,
			})
			continue
		}
		// relay errors are emitted to this connection by the relay itself
		_, _ = g.relay.Handle(caller, ev)
	}
}

func (g *Gateway) writePump(c *client, log zerolog.Logger) {
	ticker := time.NewTicker(g.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		g.writers.Done()
	}()

	for {
		select {
		case pm := <-c.send:
			if err := ws.WritePrepared(c.conn, g.opts.WriteTimeout, pm); err != nil {
				log.Debug().Err(err).Msg("Write failed")
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(g.opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Msg("Ping failed")
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			g.flush(c)
			return
		}
	}
}

// flush writes whatever is still queued, then a close frame.
func (g *Gateway) flush(c *client) {
	for {
		select {
		case pm := <-c.send:
			if err := ws.WritePrepared(c.conn, g.opts.WriteTimeout, pm); err != nil {
				return
			}
		default:
			code, text := c.closeReason()
			if code == websocket.CloseAbnormalClosure {
				return
			}
			deadline := time.Now().Add(g.opts.WriteTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
			return
		}
	}
}

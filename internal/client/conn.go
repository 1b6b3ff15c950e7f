package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/relay"
	ws "github.com/stemsi/quizlive-backend/internal/websocket"
)

// eventBuffer bounds how many unread events a connection keeps.
const eventBuffer = 256

// ErrClosed is returned when the connection went away while waiting.
var ErrClosed = errors.New("connection closed")

// Event is one decoded server event.
type Event struct {
	Name relay.OutEvent
	Data json.RawMessage
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Conn is a client connection to the quiz gateway. A background reader keeps
// the local State current and queues every event for Wait.
type Conn struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	stateMu sync.RWMutex
	state   State

	events chan Event
	done   chan struct{}
	err    error
}

// Dial connects to the gateway websocket at rawURL. token is a teacher token
// and may be empty for students.
func Dial(ctx context.Context, rawURL, token string, log zerolog.Logger) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	wsConn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	c := &Conn{
		conn:   wsConn,
		log:    log.With().Str("component", "quiz_client").Logger(),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// State returns a copy of the locally reduced session state.
func (c *Conn) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state.clone()
}

// Done is closed when the reader stops.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and tears the connection down.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Ping round-trips an application ping.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.send(relay.EventPing, "", nil); err != nil {
		return err
	}
	_, err := c.Wait(ctx, relay.OutPong)
	return err
}

// Wait returns the next event whose name is in want. An error event fails
// the wait with the server's *relay.Error.
func (c *Conn) Wait(ctx context.Context, want ...relay.OutEvent) (Event, error) {
	return c.WaitFor(ctx, func(ev Event) bool {
		for _, w := range want {
			if ev.Name == w {
				return true
			}
		}
		return false
	})
}

// WaitFor returns the next event accepted by match, skipping the rest.
func (c *Conn) WaitFor(ctx context.Context, match func(Event) bool) (Event, error) {
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return Event{}, c.closedErr()
			}
			if ev.Name == relay.OutError {
				var p relay.ErrorPayload
				if err := ev.Decode(&p); err != nil {
					return Event{}, fmt.Errorf("decode error event: %w", err)
				}
				return ev, &relay.Error{Code: p.Code, Message: p.Message}
			}
			if match(ev) {
				return ev, nil
			}
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

func (c *Conn) send(event relay.EventName, code string, data interface{}) error {
	env := ws.RequestEnvelope{Event: event, SessionCode: code}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = raw
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)
	defer close(c.done)

	for {
		var env struct {
			Event relay.OutEvent  `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := c.conn.ReadJSON(&env); err != nil {
			c.err = err
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("Reader stopped")
			}
			return
		}
		ev := Event{Name: env.Event, Data: env.Data}

		c.stateMu.Lock()
		if err := c.state.Apply(ev); err != nil {
			c.log.Warn().Err(err).Str("event", string(ev.Name)).Msg("Failed to apply event")
		}
		c.stateMu.Unlock()

		select {
		case c.events <- ev:
		default:
			c.log.Warn().Str("event", string(ev.Name)).Msg("Event buffer full, dropping event")
		}
	}
}

func (c *Conn) closedErr() error {
	<-c.done
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.err)
	}
	return ErrClosed
}

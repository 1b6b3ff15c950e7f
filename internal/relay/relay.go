package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/model"
)

// AwardPolicy decides what an award does to the open question.
type AwardPolicy string

const (
	// AwardClosesQuestion ends the round on the first award.
	AwardClosesQuestion AwardPolicy = "close_on_award"
	// AwardKeepsQuestionOpen lets the teacher award several students before
	// an explicit end-question.
	AwardKeepsQuestionOpen AwardPolicy = "keep_open"
)

// ParseAwardPolicy validates a configured policy name.
func ParseAwardPolicy(s string) (AwardPolicy, error) {
	switch AwardPolicy(s) {
	case "", AwardClosesQuestion:
		return AwardClosesQuestion, nil
	case AwardKeepsQuestionOpen:
		return AwardKeepsQuestionOpen, nil
	default:
		return "", fmt.Errorf("unknown award policy %q", s)
	}
}

// Caller identifies who sent an inbound event.
type Caller struct {
	ConnID string
	// TeacherID is the identity carried by the connection's teacher token;
	// empty for student connections.
	TeacherID string
}

// Options configures a Relay.
type Options struct {
	Store       StoreOptions
	AwardPolicy AwardPolicy
	// OwnerGrace is how long a session survives its owner's disconnect.
	// Zero evicts immediately.
	OwnerGrace time.Duration
	Recorder   Recorder
	Emitter    Emitter
	Logger     zerolog.Logger
	Now        func() time.Time
}

type ownerTimer struct {
	timer *time.Timer
	gen   uint64
}

// Relay is the session coordinator. Every operation runs to completion under
// one mutex, including emission, so recipients observe relay order.
type Relay struct {
	mu         sync.Mutex
	store      *Store
	registry   *Registry
	policy     AwardPolicy
	ownerGrace time.Duration
	recorder   Recorder
	emitter    Emitter
	log        zerolog.Logger
	now        func() time.Time
	timers     map[string]ownerTimer
	timerGen   uint64
}

// New creates a Relay with a fresh Session Store and Connection Registry.
func New(opts Options) *Relay {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Store.Now == nil {
		opts.Store.Now = opts.Now
	}
	if opts.AwardPolicy == "" {
		opts.AwardPolicy = AwardClosesQuestion
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Emitter == nil {
		opts.Emitter = EmitterFunc(func([]Message) {})
	}

	store := NewStore(opts.Store)
	return &Relay{
		store:      store,
		registry:   NewRegistry(store),
		policy:     opts.AwardPolicy,
		ownerGrace: opts.OwnerGrace,
		recorder:   opts.Recorder,
		emitter:    opts.Emitter,
		log:        opts.Logger.With().Str("component", "relay").Logger(),
		now:        opts.Now,
		timers:     make(map[string]ownerTimer),
	}
}

// Store exposes the session store for read-only views.
func (r *Relay) Store() *Store { return r.store }

// Registry exposes the connection registry for room resolution.
func (r *Relay) Registry() *Registry { return r.registry }

// SetEmitter replaces the emitter. The gateway installs itself here because
// it is constructed after the relay.
func (r *Relay) SetEmitter(e Emitter) {
	r.mu.Lock()
	r.emitter = e
	r.mu.Unlock()
}

// Handle dispatches one inbound event. Outbound messages, including the
// error event for a rejected event, are emitted before Handle returns and
// are also returned for inspection.
func (r *Relay) Handle(c Caller, ev Event) ([]Message, error) {
	if ev == nil {
		return r.reject(c, "", ErrUnknownEvent)
	}
	h, ok := dispatch[ev.Name()]
	if !ok {
		return r.reject(c, ev.Name(), ErrUnknownEvent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msgs, err := h(r, c, ev)
	if err != nil {
		r.log.Debug().
			Err(err).
			Str("conn_id", c.ConnID).
			Str("event", string(ev.Name())).
			Str("session_code", ev.Code()).
			Msg("Event rejected")
		out := []Message{errorMessage(c.ConnID, ev.Name(), err)}
		r.emitter.Emit(out)
		return out, err
	}
	r.emitter.Emit(msgs)
	return msgs, nil
}

// Disconnect runs the side effects of a connection going away. Unbound
// connections produce nothing.
func (r *Relay) Disconnect(connID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.releaseLocked(connID)
	r.emitter.Emit(msgs)
	return msgs
}

// Shutdown ends every active session, notifying its members.
func (r *Relay) Shutdown(reason string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var msgs []Message
	for _, code := range r.store.Codes() {
		msgs = append(msgs, r.terminateLocked(code, reason)...)
	}
	r.emitter.Emit(msgs)
	return msgs
}

// Sessions reports the number of active sessions.
func (r *Relay) Sessions() int { return r.store.Len() }

// Connections reports the number of bound connections.
func (r *Relay) Connections() int { return r.registry.Len() }

func (r *Relay) reject(c Caller, name EventName, err error) ([]Message, error) {
	out := []Message{errorMessage(c.ConnID, name, err)}
	r.mu.Lock()
	r.emitter.Emit(out)
	r.mu.Unlock()
	return out, err
}

func errorMessage(connID string, name EventName, err error) Message {
	payload := ErrorPayload{Code: CodeOf(err), Message: err.Error(), Event: name}
	if payload.Code == "" {
		payload.Code = CodeInvalidPayload
	}
	return toConn(connID, OutError, payload)
}

// releaseLocked unbinds a connection and applies its leave side effects.
func (r *Relay) releaseLocked(connID string) []Message {
	b, ok := r.registry.Unbind(connID)
	if !ok {
		return nil
	}
	return r.leaveLocked(b)
}

func (r *Relay) leaveLocked(b Binding) []Message {
	switch b.Role {
	case RoleTeacher:
		if _, err := r.store.SessionID(b.SessionCode); err != nil {
			return nil
		}
		if r.ownerGrace <= 0 {
			r.log.Info().Str("session_code", b.SessionCode).Msg("Owner disconnected, ending session")
			return r.terminateLocked(b.SessionCode, ReasonTeacherLeft)
		}
		_ = r.store.SetOwnerConnected(b.SessionCode, false)
		r.scheduleOwnerExpiryLocked(b.SessionCode)
		r.log.Info().
			Str("session_code", b.SessionCode).
			Dur("grace", r.ownerGrace).
			Msg("Owner disconnected, waiting for reconnect")
		return []Message{toRoom(b.SessionCode, OutTeacherDisconnected, TeacherPresencePayload{
			SessionCode:  b.SessionCode,
			GraceSeconds: int(r.ownerGrace / time.Second),
		}, "")}

	case RoleStudent:
		p, err := r.store.Participant(b.SessionCode, b.ParticipantID)
		if err != nil || p.ConnID != b.ConnID {
			// the participant already moved to another connection
			return nil
		}
		p, err = r.store.MarkDisconnected(b.SessionCode, b.ParticipantID)
		if err != nil {
			return nil
		}
		r.log.Debug().
			Str("session_code", b.SessionCode).
			Str("participant_id", p.ID).
			Msg("Participant disconnected")
		return []Message{toRoom(b.SessionCode, OutParticipantLeft, ParticipantLeftPayload{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
		}, "")}
	}
	return nil
}

// terminateLocked ends a session, addresses session-ended to every bound
// connection explicitly and evicts the session.
func (r *Relay) terminateLocked(code, reason string) []Message {
	sessionID, err := r.store.SessionID(code)
	if err != nil {
		return nil
	}
	winner, board, err := r.store.EndSession(code)
	if err != nil {
		return nil
	}

	bindings := r.registry.UnbindSession(code)
	recipients := make([]string, 0, len(bindings))
	for _, b := range bindings {
		recipients = append(recipients, b.ConnID)
	}

	r.cancelOwnerExpiryLocked(code)
	r.store.Remove(code)
	r.recorder.SessionEnded(sessionID, winner, board)

	ev := r.log.Info().Str("session_code", code).Str("reason", reason).Int("participants", len(board))
	if winner != nil {
		ev = ev.Str("winner", winner.DisplayName).Int("winner_points", winner.TotalPoints)
	}
	ev.Msg("Session ended")

	if len(recipients) == 0 {
		return nil
	}
	return []Message{{
		To:    recipients,
		Event: OutSessionEnded,
		Payload: SessionEndedPayload{
			Winner:      winner,
			Reason:      reason,
			Leaderboard: board,
		},
	}}
}

func (r *Relay) scheduleOwnerExpiryLocked(code string) {
	r.cancelOwnerExpiryLocked(code)
	r.timerGen++
	gen := r.timerGen
	t := time.AfterFunc(r.ownerGrace, func() { r.expireOwner(code, gen) })
	r.timers[code] = ownerTimer{timer: t, gen: gen}
}

func (r *Relay) cancelOwnerExpiryLocked(code string) {
	if ot, ok := r.timers[code]; ok {
		ot.timer.Stop()
		delete(r.timers, code)
	}
}

func (r *Relay) expireOwner(code string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ot, ok := r.timers[code]
	if !ok || ot.gen != gen {
		return
	}
	delete(r.timers, code)

	snap, err := r.store.Snapshot(code)
	if err != nil || snap.OwnerConnected {
		return
	}
	r.log.Info().Str("session_code", code).Msg("Owner grace period expired")
	r.emitter.Emit(r.terminateLocked(code, ReasonTeacherLeft))
}

// requireOwnerLocked checks the session exists and c is bound as its owner.
func (r *Relay) requireOwnerLocked(c Caller, code string) error {
	if _, err := r.store.SessionID(code); err != nil {
		return err
	}
	b, ok := r.registry.Lookup(c.ConnID)
	if !ok || b.Role != RoleTeacher || b.SessionCode != code {
		return ErrUnauthorizedRole
	}
	return nil
}

func unixMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func questionIDOf(q model.OpenQuestion, open bool) string {
	if !open {
		return ""
	}
	return q.Question.ID
}

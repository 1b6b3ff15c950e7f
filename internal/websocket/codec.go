package websocket

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/stemsi/quizlive-backend/internal/relay"
	"github.com/stemsi/quizlive-backend/internal/validator"
)

type decodeFunc func(env RequestEnvelope) (relay.Event, error)

// decoders maps every inbound event to its schema.
var decoders = map[relay.EventName]decodeFunc{
	relay.EventTeacherStartSession:  decodeAs[relay.StartSession],
	relay.EventTeacherResumeSession: decodeAs[relay.ResumeSession],
	relay.EventStudentJoin:          decodeAs[relay.Join],
	relay.EventTeacherStartQuestion: decodeAs[relay.StartQuestion],
	relay.EventStudentRespond:       decodeAs[relay.Respond],
	relay.EventTeacherAwardPoints:   decodeAs[relay.AwardPoints],
	relay.EventTeacherPauseQuestion: decodeAs[relay.PauseQuestion],
	relay.EventTeacherEndQuestion:   decodeAs[relay.EndQuestion],
	relay.EventTeacherEndSession:    decodeAs[relay.EndSession],
	relay.EventPing:                 decodeAs[relay.Ping],
}

// Decode parses one inbound frame into a validated event. The event name is
// returned whenever the envelope could be read so errors can reference it.
func Decode(raw []byte) (relay.Event, relay.EventName, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", relay.Errorf(relay.ErrInvalidPayload, "malformed envelope: %v", err)
	}
	if env.Event == "" {
		return nil, "", relay.Errorf(relay.ErrInvalidPayload, "event is required")
	}

	decode, ok := decoders[env.Event]
	if !ok {
		return nil, env.Event, relay.Errorf(relay.ErrUnknownEvent, "unknown event %q", env.Event)
	}
	ev, err := decode(env)
	return ev, env.Event, err
}

// NormalizeCode trims and upper-cases a user-typed session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func decodeAs[T relay.Event](env RequestEnvelope) (relay.Event, error) {
	var ev T
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, relay.Errorf(relay.ErrInvalidPayload, "malformed %s data: %v", env.Event, err)
		}
	}

	if scoped, ok := any(&ev).(interface{ SetCode(string) }); ok {
		code := NormalizeCode(env.SessionCode)
		if code == "" {
			return nil, relay.Errorf(relay.ErrInvalidPayload, "session_code is required for %s", env.Event)
		}
		if !relay.ValidCode(code) {
			return nil, relay.Errorf(relay.ErrInvalidPayload, "session_code %q is not a valid code", env.SessionCode)
		}
		scoped.SetCode(code)
	}

	if fields := validator.Struct(&ev); fields != nil {
		return nil, relay.Errorf(relay.ErrInvalidPayload, "%s", joinFields(fields))
	}
	return ev, nil
}

func joinFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, len(keys))
	for i, k := range keys {
		msgs[i] = fields[k]
	}
	return strings.Join(msgs, "; ")
}

package client

import (
	"context"

	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/relay"
)

// Teacher drives one session as its owner.
type Teacher struct {
	*Conn
	code string
}

// NewTeacher wraps a connection dialed with a teacher token.
func NewTeacher(c *Conn) *Teacher {
	return &Teacher{Conn: c}
}

// Code is the session this teacher owns.
func (t *Teacher) Code() string { return t.code }

// StartSession opens a new session, optionally bound to an authored quiz.
func (t *Teacher) StartSession(ctx context.Context, quizID string) (relay.SessionStartedPayload, error) {
	var out relay.SessionStartedPayload
	var data interface{}
	if quizID != "" {
		data = map[string]string{"quiz_id": quizID}
	}
	if err := t.send(relay.EventTeacherStartSession, "", data); err != nil {
		return out, err
	}
	ev, err := t.Wait(ctx, relay.OutSessionStarted)
	if err != nil {
		return out, err
	}
	if err := ev.Decode(&out); err != nil {
		return out, err
	}
	t.code = out.SessionCode
	return out, nil
}

// ResumeSession reclaims a session after a dropped connection.
func (t *Teacher) ResumeSession(ctx context.Context, code string) (model.SessionSnapshot, error) {
	if err := t.send(relay.EventTeacherResumeSession, code, nil); err != nil {
		return model.SessionSnapshot{}, err
	}
	ev, err := t.Wait(ctx, relay.OutSessionResumed)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	var out relay.SessionResumedPayload
	if err := ev.Decode(&out); err != nil {
		return model.SessionSnapshot{}, err
	}
	t.code = out.Session.Code
	return out.Session, nil
}

// StartQuestion opens a question for the room.
func (t *Teacher) StartQuestion(ctx context.Context, q model.LiveQuestion) error {
	err := t.send(relay.EventTeacherStartQuestion, t.code, map[string]interface{}{
		"question_id":   q.ID,
		"question_text": q.Text,
		"max_points":    q.MaxPoints,
	})
	if err != nil {
		return err
	}
	_, err = t.WaitFor(ctx, func(ev Event) bool {
		if ev.Name != relay.OutQuestionStarted {
			return false
		}
		var p relay.QuestionStartedPayload
		return ev.Decode(&p) == nil && p.Question.ID == q.ID
	})
	return err
}

// AwardPoints credits a participant and returns their new total.
func (t *Teacher) AwardPoints(ctx context.Context, participantID string, points int) (int, error) {
	err := t.send(relay.EventTeacherAwardPoints, t.code, map[string]interface{}{
		"participant_id": participantID,
		"points":         points,
	})
	if err != nil {
		return 0, err
	}
	ev, err := t.Wait(ctx, relay.OutPointsAwarded)
	if err != nil {
		return 0, err
	}
	var out relay.PointsAwardedPayload
	if err := ev.Decode(&out); err != nil {
		return 0, err
	}
	return out.TotalPoints, nil
}

// PauseQuestion closes the question and keeps its responses for review.
func (t *Teacher) PauseQuestion(ctx context.Context) error {
	return t.closeQuestion(ctx, relay.EventTeacherPauseQuestion, relay.ReasonPaused)
}

// EndQuestion closes the question and discards its responses.
func (t *Teacher) EndQuestion(ctx context.Context) error {
	return t.closeQuestion(ctx, relay.EventTeacherEndQuestion, relay.ReasonEnded)
}

// closeQuestion matches on reason so a question-ended left over from an
// award is not mistaken for this request's answer.
func (t *Teacher) closeQuestion(ctx context.Context, event relay.EventName, reason string) error {
	if err := t.send(event, t.code, nil); err != nil {
		return err
	}
	_, err := t.WaitFor(ctx, func(ev Event) bool {
		if ev.Name != relay.OutQuestionEnded {
			return false
		}
		var p relay.QuestionEndedPayload
		return ev.Decode(&p) == nil && p.Reason == reason
	})
	return err
}

// EndSession finishes the session and returns the final result.
func (t *Teacher) EndSession(ctx context.Context) (relay.SessionEndedPayload, error) {
	var out relay.SessionEndedPayload
	if err := t.send(relay.EventTeacherEndSession, t.code, nil); err != nil {
		return out, err
	}
	ev, err := t.Wait(ctx, relay.OutSessionEnded)
	if err != nil {
		return out, err
	}
	err = ev.Decode(&out)
	return out, err
}

// Student takes part in a session. It remembers its participant identity so
// a later Join on a new connection reconnects instead of registering again.
type Student struct {
	*Conn
	code          string
	participantID string
}

// NewStudent wraps a connection dialed without a token.
func NewStudent(c *Conn) *Student {
	return &Student{Conn: c}
}

// Rejoin creates a Student on a new connection that keeps a previous identity.
func Rejoin(c *Conn, code, participantID string) *Student {
	return &Student{Conn: c, code: code, participantID: participantID}
}

// ParticipantID is the durable identity assigned at first join.
func (s *Student) ParticipantID() string { return s.participantID }

// Join enters the session with the given code.
func (s *Student) Join(ctx context.Context, code, displayName string) (model.Participant, error) {
	data := map[string]string{"student_name": displayName}
	if s.participantID != "" && (s.code == "" || s.code == code) {
		data["participant_id"] = s.participantID
	}
	if err := s.send(relay.EventStudentJoin, code, data); err != nil {
		return model.Participant{}, err
	}
	ev, err := s.Wait(ctx, relay.OutJoined)
	if err != nil {
		return model.Participant{}, err
	}
	var out relay.JoinedPayload
	if err := ev.Decode(&out); err != nil {
		return model.Participant{}, err
	}
	s.code = out.SessionCode
	s.participantID = out.Participant.ID

	// the roster follows joined in the same batch; wait so State is complete
	if _, err := s.Wait(ctx, relay.OutParticipantsList); err != nil {
		return out.Participant, err
	}
	return out.Participant, nil
}

// Respond answers the open question. A nil elapsed lets the server measure.
func (s *Student) Respond(ctx context.Context, elapsedMillis *int64) (relay.ResponseAcceptedPayload, error) {
	var out relay.ResponseAcceptedPayload
	data := map[string]interface{}{"participant_id": s.participantID}
	if elapsedMillis != nil {
		data["elapsed_millis"] = *elapsedMillis
	}
	if err := s.send(relay.EventStudentRespond, s.code, data); err != nil {
		return out, err
	}
	ev, err := s.Wait(ctx, relay.OutResponseAccepted)
	if err != nil {
		return out, err
	}
	err = ev.Decode(&out)
	return out, err
}

// WaitForQuestion blocks until a question opens.
func (s *Student) WaitForQuestion(ctx context.Context) (model.LiveQuestion, error) {
	ev, err := s.Wait(ctx, relay.OutQuestionStarted)
	if err != nil {
		return model.LiveQuestion{}, err
	}
	var out relay.QuestionStartedPayload
	err = ev.Decode(&out)
	return out.Question, err
}

// WaitForEnd blocks until the session ends.
func (s *Student) WaitForEnd(ctx context.Context) (relay.SessionEndedPayload, error) {
	var out relay.SessionEndedPayload
	ev, err := s.Wait(ctx, relay.OutSessionEnded)
	if err != nil {
		return out, err
	}
	err = ev.Decode(&out)
	return out, err
}

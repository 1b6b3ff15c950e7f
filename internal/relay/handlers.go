package relay

import (
	"github.com/stemsi/quizlive-backend/internal/model"
)

type handlerFunc func(r *Relay, c Caller, ev Event) ([]Message, error)

// dispatch routes each inbound event to its handler. Handlers run with r.mu
// held and return the messages to emit.
var dispatch = map[EventName]handlerFunc{
	EventTeacherStartSession:  (*Relay).startSession,
	EventTeacherResumeSession: (*Relay).resumeSession,
	EventStudentJoin:          (*Relay).join,
	EventTeacherStartQuestion: (*Relay).startQuestion,
	EventStudentRespond:       (*Relay).respond,
	EventTeacherAwardPoints:   (*Relay).awardPoints,
	EventTeacherPauseQuestion: (*Relay).pauseQuestion,
	EventTeacherEndQuestion:   (*Relay).endQuestion,
	EventTeacherEndSession:    (*Relay).endSession,
	EventPing:                 (*Relay).ping,
}

func (r *Relay) startSession(c Caller, ev Event) ([]Message, error) {
	e := ev.(StartSession)
	if c.TeacherID == "" {
		return nil, Errorf(ErrUnauthorizedRole, "a teacher token is required to start a session")
	}

	code, err := r.store.CreateSession(c.TeacherID, e.QuizID)
	if err != nil {
		r.log.Error().Err(err).Str("teacher_id", c.TeacherID).Msg("Failed to allocate session code")
		return nil, err
	}

	// a connection owns at most one session identity
	msgs := r.releaseLocked(c.ConnID)

	if err := r.registry.Bind(c.ConnID, code, RoleTeacher, ""); err != nil {
		r.store.Remove(code)
		return nil, err
	}
	snap, err := r.store.Snapshot(code)
	if err != nil {
		return nil, err
	}
	r.recorder.SessionStarted(snap)

	r.log.Info().
		Str("session_code", code).
		Str("session_id", snap.ID).
		Str("teacher_id", c.TeacherID).
		Str("quiz_id", e.QuizID).
		Msg("Session started")

	return append(msgs, toConn(c.ConnID, OutSessionStarted, SessionStartedPayload{
		SessionCode: code,
		SessionID:   snap.ID,
		QuizID:      e.QuizID,
	})), nil
}

func (r *Relay) resumeSession(c Caller, ev Event) ([]Message, error) {
	code := ev.Code()
	snap, err := r.store.Snapshot(code)
	if err != nil {
		return nil, err
	}
	if c.TeacherID == "" || snap.TeacherID != c.TeacherID {
		return nil, ErrUnauthorizedRole
	}

	if b, ok := r.registry.Lookup(c.ConnID); ok && b.SessionCode == code && b.Role == RoleTeacher {
		// already the owner on this connection; resend the snapshot
		return []Message{toConn(c.ConnID, OutSessionResumed, SessionResumedPayload{Session: snap})}, nil
	}
	if snap.OwnerConnected {
		return nil, Errorf(ErrUnauthorizedRole, "session %s already has a connected teacher", code)
	}

	msgs := r.releaseLocked(c.ConnID)
	if err := r.registry.Bind(c.ConnID, code, RoleTeacher, ""); err != nil {
		return nil, err
	}
	r.cancelOwnerExpiryLocked(code)
	if err := r.store.SetOwnerConnected(code, true); err != nil {
		return nil, err
	}
	snap.OwnerConnected = true

	r.log.Info().Str("session_code", code).Str("teacher_id", c.TeacherID).Msg("Owner resumed session")

	return append(msgs,
		toConn(c.ConnID, OutSessionResumed, SessionResumedPayload{Session: snap}),
		toRoom(code, OutTeacherReconnected, TeacherPresencePayload{SessionCode: code}, c.ConnID),
	), nil
}

func (r *Relay) join(c Caller, ev Event) ([]Message, error) {
	e := ev.(Join)
	code := e.Code()

	sessionID, err := r.store.SessionID(code)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	if b, ok := r.registry.Lookup(c.ConnID); ok {
		if b.Role == RoleTeacher && b.SessionCode == code {
			return nil, Errorf(ErrUnauthorizedRole, "the session owner cannot join as a student")
		}
		// a repeated join on the same connection keeps its identity
		if b.Role == RoleStudent && b.SessionCode == code && e.ParticipantID == "" {
			e.ParticipantID = b.ParticipantID
		}
		same := b.SessionCode == code && b.Role == RoleStudent && b.ParticipantID == e.ParticipantID
		if !same {
			msgs = r.releaseLocked(c.ConnID)
		}
	}

	p, reconnected, err := r.store.AddOrReconnectParticipant(code, e.ParticipantID, e.DisplayName)
	if err != nil {
		return nil, err
	}

	// a second tab for the same participant takes over from the first
	if reconnected && p.ConnID != "" && p.ConnID != c.ConnID {
		r.registry.Unbind(p.ConnID)
	}
	if err := r.store.SetConnection(code, p.ID, c.ConnID); err != nil {
		return nil, err
	}
	p.ConnID = c.ConnID
	if err := r.registry.Bind(c.ConnID, code, RoleStudent, p.ID); err != nil {
		return nil, err
	}
	if !reconnected {
		r.recorder.ParticipantJoined(sessionID, p)
	}

	participants, err := r.store.Participants(code)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("session_code", code).
		Str("participant_id", p.ID).
		Str("student_name", p.DisplayName).
		Bool("reconnected", reconnected).
		Msg("Participant joined")

	msgs = append(msgs,
		toConn(c.ConnID, OutJoined, JoinedPayload{SessionCode: code, Participant: p, Reconnected: reconnected}),
		toConn(c.ConnID, OutParticipantsList, ParticipantsListPayload{Participants: participants}),
	)
	if q, open, _ := r.store.OpenQuestion(code); open {
		msgs = append(msgs, toConn(c.ConnID, OutQuestionStarted, QuestionStartedPayload{
			Question:    q.Question,
			StartTime:   unixMillis(q.StartedAt),
			SessionCode: code,
		}))
	}
	return append(msgs, toRoom(code, OutParticipantJoined, ParticipantJoinedPayload{
		Participant: p,
		Reconnected: reconnected,
	}, c.ConnID)), nil
}

func (r *Relay) startQuestion(c Caller, ev Event) ([]Message, error) {
	e := ev.(StartQuestion)
	code := e.Code()
	if err := r.requireOwnerLocked(c, code); err != nil {
		return nil, err
	}

	q, err := r.store.StartQuestion(code, model.LiveQuestion{
		ID:        e.QuestionID,
		Text:      e.Text,
		MaxPoints: e.MaxPoints,
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("session_code", code).
		Str("question_id", e.QuestionID).
		Int("max_points", e.MaxPoints).
		Msg("Question started")

	return []Message{toRoom(code, OutQuestionStarted, QuestionStartedPayload{
		Question:    q.Question,
		StartTime:   unixMillis(q.StartedAt),
		SessionCode: code,
	}, "")}, nil
}

func (r *Relay) respond(c Caller, ev Event) ([]Message, error) {
	e := ev.(Respond)
	code := e.Code()

	sessionID, err := r.store.SessionID(code)
	if err != nil {
		return nil, err
	}
	if !r.store.HasParticipant(code, e.ParticipantID) {
		return nil, ErrUnknownParticipant
	}
	b, ok := r.registry.Lookup(c.ConnID)
	if !ok || b.Role != RoleStudent || b.SessionCode != code || b.ParticipantID != e.ParticipantID {
		return nil, Errorf(ErrUnauthorizedRole, "connection is not joined as participant %s", e.ParticipantID)
	}

	q, open, err := r.store.OpenQuestion(code)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, ErrNoActiveQuestion
	}

	var elapsed int64
	if e.ElapsedMillis != nil {
		elapsed = *e.ElapsedMillis
	} else {
		elapsed = r.now().Sub(q.StartedAt).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
	}

	resp, rank, err := r.store.RecordResponse(code, e.ParticipantID, elapsed)
	if err != nil {
		return nil, err
	}
	responses, err := r.store.Responses(code)
	if err != nil {
		return nil, err
	}
	r.recorder.ResponseRecorded(sessionID, q.Question.ID, q.StartedAt, resp, rank)

	r.log.Debug().
		Str("session_code", code).
		Str("participant_id", resp.ParticipantID).
		Int64("elapsed_millis", resp.ElapsedMillis).
		Int("rank", rank).
		Msg("Response recorded")

	var msgs []Message
	if owner, ok := r.registry.Owner(code); ok {
		msgs = append(msgs, toConn(owner, OutNewResponse, NewResponsePayload{
			ParticipantID: resp.ParticipantID,
			DisplayName:   resp.DisplayName,
			ElapsedMillis: resp.ElapsedMillis,
			Rank:          rank,
			Responses:     responses,
		}))
	}
	return append(msgs, toConn(c.ConnID, OutResponseAccepted, ResponseAcceptedPayload{
		ElapsedMillis: resp.ElapsedMillis,
		Rank:          rank,
	})), nil
}

func (r *Relay) awardPoints(c Caller, ev Event) ([]Message, error) {
	e := ev.(AwardPoints)
	code := e.Code()
	if err := r.requireOwnerLocked(c, code); err != nil {
		return nil, err
	}
	sessionID, err := r.store.SessionID(code)
	if err != nil {
		return nil, err
	}

	q, open, err := r.store.OpenQuestion(code)
	if err != nil {
		return nil, err
	}
	if open && e.Points > q.Question.MaxPoints {
		return nil, Errorf(ErrInvalidPayload, "points exceed the question maximum of %d", q.Question.MaxPoints)
	}

	p, err := r.store.AwardPoints(code, e.ParticipantID, e.Points)
	if err != nil {
		return nil, err
	}
	r.recorder.PointsAwarded(sessionID, p.ID, questionIDOf(q, open), e.Points, p.TotalPoints)

	r.log.Info().
		Str("session_code", code).
		Str("participant_id", p.ID).
		Int("points", e.Points).
		Int("total_points", p.TotalPoints).
		Msg("Points awarded")

	msgs := []Message{toRoom(code, OutPointsAwarded, PointsAwardedPayload{
		ParticipantID: p.ID,
		Points:        e.Points,
		TotalPoints:   p.TotalPoints,
	}, "")}

	if open && r.policy == AwardClosesQuestion {
		closed, err := r.store.CloseQuestion(code, true)
		if err == nil {
			msgs = append(msgs, toRoom(code, OutQuestionEnded, QuestionEndedPayload{
				QuestionID: closed.Question.ID,
				Reason:     ReasonAwarded,
			}, ""))
		}
	}
	return msgs, nil
}

func (r *Relay) pauseQuestion(c Caller, ev Event) ([]Message, error) {
	return r.closeQuestion(c, ev.Code(), true, ReasonPaused)
}

func (r *Relay) endQuestion(c Caller, ev Event) ([]Message, error) {
	return r.closeQuestion(c, ev.Code(), false, ReasonEnded)
}

func (r *Relay) closeQuestion(c Caller, code string, keep bool, reason string) ([]Message, error) {
	if err := r.requireOwnerLocked(c, code); err != nil {
		return nil, err
	}
	closed, err := r.store.CloseQuestion(code, keep)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("session_code", code).
		Str("question_id", closed.Question.ID).
		Str("reason", reason).
		Int("responses", len(closed.Responses)).
		Msg("Question closed")

	return []Message{toRoom(code, OutQuestionEnded, QuestionEndedPayload{
		QuestionID: closed.Question.ID,
		Reason:     reason,
	}, "")}, nil
}

func (r *Relay) endSession(c Caller, ev Event) ([]Message, error) {
	code := ev.Code()
	if err := r.requireOwnerLocked(c, code); err != nil {
		return nil, err
	}
	return r.terminateLocked(code, ReasonTeacherEnded), nil
}

func (r *Relay) ping(c Caller, _ Event) ([]Message, error) {
	return []Message{toConn(c.ConnID, OutPong, PongPayload{ServerTime: unixMillis(r.now())})}, nil
}

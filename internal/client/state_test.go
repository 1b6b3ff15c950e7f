package client

import (
	"encoding/json"
	"testing"

	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/relay"
)

func event(t *testing.T, name relay.OutEvent, payload interface{}) Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	return Event{Name: name, Data: raw}
}

func TestStateFollowsStudentView(t *testing.T) {
	var s State
	alice := model.Participant{ID: "a", DisplayName: "Alice", Connected: true}
	bob := model.Participant{ID: "b", DisplayName: "Bob", Connected: true}

	steps := []Event{
		event(t, relay.OutJoined, relay.JoinedPayload{SessionCode: "ABC123", Participant: alice}),
		event(t, relay.OutParticipantsList, relay.ParticipantsListPayload{Participants: []model.Participant{alice}}),
		event(t, relay.OutParticipantJoined, relay.ParticipantJoinedPayload{Participant: bob}),
		event(t, relay.OutQuestionStarted, relay.QuestionStartedPayload{
			Question:    model.LiveQuestion{ID: "q1", Text: "?", MaxPoints: 3},
			StartTime:   1700000000000,
			SessionCode: "ABC123",
		}),
		event(t, relay.OutResponseAccepted, relay.ResponseAcceptedPayload{ElapsedMillis: 900, Rank: 2}),
		event(t, relay.OutPointsAwarded, relay.PointsAwardedPayload{ParticipantID: "a", Points: 3, TotalPoints: 3}),
		event(t, relay.OutQuestionEnded, relay.QuestionEndedPayload{QuestionID: "q1", Reason: relay.ReasonAwarded}),
		event(t, relay.OutParticipantLeft, relay.ParticipantLeftPayload{ParticipantID: "b", DisplayName: "Bob"}),
	}
	for _, ev := range steps {
		if err := s.Apply(ev); err != nil {
			t.Fatalf("apply %s: %v", ev.Name, err)
		}
	}

	if s.SessionCode != "ABC123" || s.Self == nil || s.Self.TotalPoints != 3 {
		t.Fatalf("self = %+v", s.Self)
	}
	if len(s.Participants) != 2 || s.Participants[0].TotalPoints != 3 || s.Participants[1].Connected {
		t.Fatalf("participants = %+v", s.Participants)
	}
	if s.Question != nil || s.LastRank != 2 {
		t.Fatalf("question = %+v, rank = %d", s.Question, s.LastRank)
	}
	if s.QuestionStart.UnixMilli() != 1700000000000 {
		t.Fatalf("start = %v", s.QuestionStart)
	}

	winner := alice
	winner.TotalPoints = 3
	if err := s.Apply(event(t, relay.OutSessionEnded, relay.SessionEndedPayload{
		Winner:      &winner,
		Reason:      relay.ReasonTeacherEnded,
		Leaderboard: []model.Participant{winner, bob},
	})); err != nil {
		t.Fatalf("apply session-ended: %v", err)
	}
	if !s.Ended || s.Winner == nil || s.Winner.ID != "a" || len(s.Leaderboard) != 2 {
		t.Fatalf("ended state = %+v", s)
	}
}

func TestStateTeacherView(t *testing.T) {
	var s State
	_ = s.Apply(event(t, relay.OutSessionStarted, relay.SessionStartedPayload{SessionCode: "ABC123", SessionID: "sid"}))
	_ = s.Apply(event(t, relay.OutNewResponse, relay.NewResponsePayload{
		ParticipantID: "b",
		Rank:          1,
		Responses: []model.Response{
			{ParticipantID: "b", ElapsedMillis: 100},
			{ParticipantID: "a", ElapsedMillis: 400},
		},
	}))
	if len(s.Responses) != 2 || s.Responses[0].ParticipantID != "b" {
		t.Fatalf("responses = %+v", s.Responses)
	}

	_ = s.Apply(event(t, relay.OutTeacherDisconnected, relay.TeacherPresencePayload{SessionCode: "ABC123"}))
	if s.OwnerConnected {
		t.Fatal("teacher-disconnected not applied")
	}

	_ = s.Apply(event(t, relay.OutError, relay.ErrorPayload{Code: relay.CodeNoActiveQuestion, Message: "no question is open"}))
	if s.LastError == nil || s.LastError.Code != relay.CodeNoActiveQuestion {
		t.Fatalf("last error = %+v", s.LastError)
	}
}

func TestStateRejectsUnknownEvent(t *testing.T) {
	var s State
	if err := s.Apply(Event{Name: "mystery", Data: json.RawMessage(`{}`)}); err == nil {
		t.Fatal("expected an error for an unknown event")
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	s := State{Participants: []model.Participant{{ID: "a"}}, Self: &model.Participant{ID: "a"}}
	c := s.clone()
	c.Participants[0].TotalPoints = 9
	c.Self.TotalPoints = 9
	if s.Participants[0].TotalPoints != 0 || s.Self.TotalPoints != 0 {
		t.Fatal("clone shares memory with the original")
	}
}

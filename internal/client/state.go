package client

import (
	"fmt"
	"time"

	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/relay"
)

// State is what a client knows about its session, rebuilt from events.
type State struct {
	SessionCode    string
	Self           *model.Participant
	Participants   []model.Participant
	Question       *model.LiveQuestion
	QuestionStart  time.Time
	Responses      []model.Response
	LastRank       int
	OwnerConnected bool
	LastError      *relay.ErrorPayload
	Ended          bool
	EndReason      string
	Winner         *model.Participant
	Leaderboard    []model.Participant
}

// Apply folds one event into the state.
func (s *State) Apply(ev Event) error {
	switch ev.Name {
	case relay.OutSessionStarted:
		var p relay.SessionStartedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		*s = State{SessionCode: p.SessionCode, OwnerConnected: true}

	case relay.OutSessionResumed:
		var p relay.SessionResumedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		snap := p.Session
		*s = State{
			SessionCode:    snap.Code,
			Participants:   snap.Participants,
			OwnerConnected: snap.OwnerConnected,
		}
		if snap.Question != nil {
			q := snap.Question.Question
			s.Question = &q
			s.QuestionStart = snap.Question.StartedAt
			s.Responses = snap.Question.Responses
		} else {
			s.Responses = snap.LastResponses
		}

	case relay.OutJoined:
		var p relay.JoinedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if s.SessionCode != p.SessionCode {
			*s = State{}
		}
		s.SessionCode = p.SessionCode
		s.OwnerConnected = true
		self := p.Participant
		s.Self = &self

	case relay.OutParticipantsList:
		var p relay.ParticipantsListPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.Participants = p.Participants

	case relay.OutParticipantJoined:
		var p relay.ParticipantJoinedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.upsert(p.Participant)

	case relay.OutParticipantLeft:
		var p relay.ParticipantLeftPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if i := s.indexOf(p.ParticipantID); i >= 0 {
			s.Participants[i].Connected = false
		}

	case relay.OutQuestionStarted:
		var p relay.QuestionStartedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		q := p.Question
		s.Question = &q
		s.QuestionStart = time.UnixMilli(p.StartTime)
		s.Responses = nil
		s.LastRank = 0

	case relay.OutNewResponse:
		var p relay.NewResponsePayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.Responses = p.Responses

	case relay.OutResponseAccepted:
		var p relay.ResponseAcceptedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.LastRank = p.Rank

	case relay.OutPointsAwarded:
		var p relay.PointsAwardedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if i := s.indexOf(p.ParticipantID); i >= 0 {
			s.Participants[i].TotalPoints = p.TotalPoints
		}
		if s.Self != nil && s.Self.ID == p.ParticipantID {
			s.Self.TotalPoints = p.TotalPoints
		}

	case relay.OutQuestionEnded:
		s.Question = nil

	case relay.OutSessionEnded:
		var p relay.SessionEndedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.Ended = true
		s.EndReason = p.Reason
		s.Winner = p.Winner
		s.Leaderboard = p.Leaderboard
		s.Question = nil

	case relay.OutTeacherDisconnected:
		s.OwnerConnected = false

	case relay.OutTeacherReconnected:
		s.OwnerConnected = true

	case relay.OutError:
		var p relay.ErrorPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.LastError = &p

	case relay.OutPong:

	default:
		return fmt.Errorf("unknown event %q", ev.Name)
	}
	return nil
}

func (s *State) upsert(p model.Participant) {
	if i := s.indexOf(p.ID); i >= 0 {
		s.Participants[i] = p
		return
	}
	s.Participants = append(s.Participants, p)
}

func (s *State) indexOf(id string) int {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	out := s
	out.Participants = append([]model.Participant(nil), s.Participants...)
	out.Responses = append([]model.Response(nil), s.Responses...)
	out.Leaderboard = append([]model.Participant(nil), s.Leaderboard...)
	if s.Self != nil {
		self := *s.Self
		out.Self = &self
	}
	if s.Question != nil {
		q := *s.Question
		out.Question = &q
	}
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

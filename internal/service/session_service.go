package service

import (
	"errors"

	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/relay"
)

// ErrNotSessionOwner is returned when a teacher asks about another
// teacher's session.
var ErrNotSessionOwner = errors.New("session belongs to another teacher")

// SessionService exposes read-only views of live sessions over HTTP.
type SessionService struct {
	store *relay.Store
}

// NewSessionService creates a new SessionService.
func NewSessionService(store *relay.Store) *SessionService {
	return &SessionService{store: store}
}

// Status returns the public view used by the join page.
func (s *SessionService) Status(code string) (*model.SessionStatusView, error) {
	snap, err := s.store.Snapshot(code)
	if err != nil {
		return nil, err
	}
	return &model.SessionStatusView{
		Code:             snap.Code,
		Status:           snap.Status,
		ParticipantCount: len(snap.Participants),
		QuestionOpen:     snap.Question != nil,
	}, nil
}

// Leaderboard returns the owner's live standings, highest first.
func (s *SessionService) Leaderboard(teacherID, code string) ([]model.Participant, error) {
	snap, err := s.store.Snapshot(code)
	if err != nil {
		return nil, err
	}
	if snap.TeacherID != teacherID {
		return nil, ErrNotSessionOwner
	}
	return s.store.Leaderboard(code)
}

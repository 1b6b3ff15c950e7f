package model

import "time"

// AuditKind names one durable fact emitted by the relay.
type AuditKind string

const (
	AuditSessionStarted    AuditKind = "session_started"
	AuditParticipantJoined AuditKind = "participant_joined"
	AuditResponseRecorded  AuditKind = "response_recorded"
	AuditPointsAwarded     AuditKind = "points_awarded"
	AuditSessionEnded      AuditKind = "session_ended"
)

// AuditRecord is the envelope carried on the persistence queue. Only the
// fields relevant to Kind are set.
type AuditRecord struct {
	Kind      AuditKind `json:"kind"`
	EventID   string    `json:"event_id"`
	At        time.Time `json:"at"`
	Attempts  int       `json:"attempts,omitempty"`
	SessionID string    `json:"session_id"`

	SessionCode string `json:"session_code,omitempty"`
	TeacherID   string `json:"teacher_id,omitempty"`
	QuizID      string `json:"quiz_id,omitempty"`

	Participant   *Participant `json:"participant,omitempty"`
	ParticipantID string       `json:"participant_id,omitempty"`
	QuestionID    string       `json:"question_id,omitempty"`
	Response      *Response    `json:"response,omitempty"`
	Rank          int          `json:"rank,omitempty"`
	Points        int          `json:"points,omitempty"`
	TotalPoints   int          `json:"total_points,omitempty"`

	// QuestionStartedAt identifies which opening of QuestionID a response
	// belongs to.
	QuestionStartedAt time.Time `json:"question_started_at"`

	WinnerID    string        `json:"winner_id,omitempty"`
	Leaderboard []Participant `json:"leaderboard,omitempty"`
}

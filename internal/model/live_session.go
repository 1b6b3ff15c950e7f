package model

import "time"

// SessionStatus enumerates live session states.
type SessionStatus string

const (
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEnded   SessionStatus = "ended"
)

// LiveQuestion is the question a teacher opens during a session.
type LiveQuestion struct {
	ID        string `json:"id"`
	Text      string `json:"question_text"`
	MaxPoints int    `json:"max_points"`
}

// Participant is a student's durable identity inside one session.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"student_name"`
	TotalPoints int       `json:"total_points"`
	Connected   bool      `json:"is_connected"`
	JoinedAt    time.Time `json:"joined_at"`
	// ConnID is the transport connection currently representing the
	// participant; empty while disconnected.
	ConnID string `json:"-"`
}

// Response is one student's answer to the open question.
type Response struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"student_name"`
	ElapsedMillis int64     `json:"elapsed_millis"`
	RespondedAt   time.Time `json:"responded_at"`
}

// OpenQuestion is the question in flight together with its responses,
// ordered by elapsed time ascending.
type OpenQuestion struct {
	Question  LiveQuestion `json:"question"`
	StartedAt time.Time    `json:"started_at"`
	Responses []Response   `json:"responses"`
}

// SessionSnapshot is a detached copy of a live session, safe to serialize.
type SessionSnapshot struct {
	Code           string        `json:"session_code"`
	ID             string        `json:"session_id"`
	QuizID         string        `json:"quiz_id,omitempty"`
	TeacherID      string        `json:"-"`
	Status         SessionStatus `json:"status"`
	OwnerConnected bool          `json:"owner_connected"`
	CreatedAt      time.Time     `json:"created_at"`
	Question       *OpenQuestion `json:"question,omitempty"`
	LastResponses  []Response    `json:"last_responses,omitempty"`
	Participants   []Participant `json:"participants"`
}

// SessionStatusView is the public, unauthenticated view of a session used by
// the student join page.
type SessionStatusView struct {
	Code             string        `json:"session_code"`
	Status           SessionStatus `json:"status"`
	ParticipantCount int           `json:"participant_count"`
	QuestionOpen     bool          `json:"question_open"`
}

package relay

import "github.com/stemsi/quizlive-backend/internal/model"

// ─── Inbound events (client → relay) ───────────────────────────────

// EventName is the wire tag of an inbound event.
type EventName string

const (
	EventTeacherStartSession  EventName = "teacher-start-session"
	EventTeacherResumeSession EventName = "teacher-resume-session"
	EventStudentJoin          EventName = "student-join"
	EventTeacherStartQuestion EventName = "teacher-start-question"
	EventStudentRespond       EventName = "student-respond"
	EventTeacherAwardPoints   EventName = "teacher-award-points"
	EventTeacherPauseQuestion EventName = "teacher-pause-question"
	EventTeacherEndQuestion   EventName = "teacher-end-question"
	EventTeacherEndSession    EventName = "teacher-end-session"
	EventPing                 EventName = "ping"
)

// Event is the closed set of inbound events. Each variant carries its own
// schema; validation tags are enforced by the gateway before dispatch.
type Event interface {
	Name() EventName
	// Code is the session the event targets; empty for session-less events.
	Code() string
	sealed()
}

// Scoped is embedded by events that target an existing session.
type Scoped struct {
	SessionCode string `json:"-"`
}

func (s Scoped) Code() string { return s.SessionCode }

// SetCode lets the decoder attach the envelope's session code.
func (s *Scoped) SetCode(code string) { s.SessionCode = code }

type StartSession struct {
	QuizID string `json:"quiz_id" binding:"omitempty,uuid"`
}

type ResumeSession struct {
	Scoped
}

type Join struct {
	Scoped
	ParticipantID string `json:"participant_id" binding:"omitempty,uuid"`
	DisplayName   string `json:"student_name" binding:"required,max=40,display_name"`
}

type StartQuestion struct {
	Scoped
	QuestionID string `json:"question_id" binding:"required,max=64"`
	Text       string `json:"question_text" binding:"required,max=1000"`
	MaxPoints  int    `json:"max_points" binding:"required,min=1,max=1000"`
}

// Respond carries the client-measured elapsed time. When it is omitted the
// relay measures from the question's start timestamp.
type Respond struct {
	Scoped
	ParticipantID string `json:"participant_id" binding:"required,uuid"`
	ElapsedMillis *int64 `json:"elapsed_millis" binding:"omitempty,min=0,max=86400000"`
}

type AwardPoints struct {
	Scoped
	ParticipantID string `json:"participant_id" binding:"required,uuid"`
	Points        int    `json:"points" binding:"min=0,max=1000"`
}

type PauseQuestion struct {
	Scoped
}

type EndQuestion struct {
	Scoped
}

type EndSession struct {
	Scoped
}

type Ping struct{}

func (StartSession) Name() EventName  { return EventTeacherStartSession }
func (ResumeSession) Name() EventName { return EventTeacherResumeSession }
func (Join) Name() EventName          { return EventStudentJoin }
func (StartQuestion) Name() EventName { return EventTeacherStartQuestion }
func (Respond) Name() EventName       { return EventStudentRespond }
func (AwardPoints) Name() EventName   { return EventTeacherAwardPoints }
func (PauseQuestion) Name() EventName { return EventTeacherPauseQuestion }
func (EndQuestion) Name() EventName   { return EventTeacherEndQuestion }
func (EndSession) Name() EventName    { return EventTeacherEndSession }
func (Ping) Name() EventName          { return EventPing }

func (StartSession) Code() string { return "" }
func (Ping) Code() string         { return "" }

func (StartSession) sealed()  {}
func (ResumeSession) sealed() {}
func (Join) sealed()          {}
func (StartQuestion) sealed() {}
func (Respond) sealed()       {}
func (AwardPoints) sealed()   {}
func (PauseQuestion) sealed() {}
func (EndQuestion) sealed()   {}
func (EndSession) sealed()    {}
func (Ping) sealed()          {}

// ─── Outbound events (relay → clients) ─────────────────────────────

// OutEvent is the wire tag of an outbound event.
type OutEvent string

const (
	OutSessionStarted      OutEvent = "session-started"
	OutSessionResumed      OutEvent = "session-resumed"
	OutJoined              OutEvent = "joined"
	OutParticipantsList    OutEvent = "participants-list"
	OutParticipantJoined   OutEvent = "participant-joined"
	OutParticipantLeft     OutEvent = "participant-left"
	OutQuestionStarted     OutEvent = "question-started"
	OutNewResponse         OutEvent = "new-response"
	OutResponseAccepted    OutEvent = "response-accepted"
	OutPointsAwarded       OutEvent = "points-awarded"
	OutQuestionEnded       OutEvent = "question-ended"
	OutSessionEnded        OutEvent = "session-ended"
	OutTeacherDisconnected OutEvent = "teacher-disconnected"
	OutTeacherReconnected  OutEvent = "teacher-reconnected"
	OutPong                OutEvent = "pong"
	OutError               OutEvent = "error"
)

// Reasons carried by question-ended and session-ended.
const (
	ReasonAwarded       = "awarded"
	ReasonPaused        = "paused"
	ReasonEnded         = "ended"
	ReasonTeacherEnded  = "teacher ended the session"
	ReasonTeacherLeft   = "teacher disconnected"
	ReasonServerClosing = "server shutting down"
)

type SessionStartedPayload struct {
	SessionCode string `json:"session_code"`
	SessionID   string `json:"session_id"`
	QuizID      string `json:"quiz_id,omitempty"`
}

type SessionResumedPayload struct {
	Session model.SessionSnapshot `json:"session"`
}

type JoinedPayload struct {
	SessionCode string            `json:"session_code"`
	Participant model.Participant `json:"participant"`
	Reconnected bool              `json:"reconnected"`
}

type ParticipantsListPayload struct {
	Participants []model.Participant `json:"participants"`
}

type ParticipantJoinedPayload struct {
	Participant model.Participant `json:"participant"`
	Reconnected bool              `json:"reconnected"`
}

type ParticipantLeftPayload struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"student_name"`
}

type QuestionStartedPayload struct {
	Question    model.LiveQuestion `json:"question"`
	StartTime   int64              `json:"start_time"`
	SessionCode string             `json:"session_code"`
}

type NewResponsePayload struct {
	ParticipantID string           `json:"participant_id"`
	DisplayName   string           `json:"student_name"`
	ElapsedMillis int64            `json:"elapsed_millis"`
	Rank          int              `json:"rank"`
	Responses     []model.Response `json:"responses"`
}

type ResponseAcceptedPayload struct {
	ElapsedMillis int64 `json:"elapsed_millis"`
	Rank          int   `json:"rank"`
}

type PointsAwardedPayload struct {
	ParticipantID string `json:"participant_id"`
	Points        int    `json:"points"`
	TotalPoints   int    `json:"total_points"`
}

type QuestionEndedPayload struct {
	QuestionID string `json:"question_id,omitempty"`
	Reason     string `json:"reason"`
}

type SessionEndedPayload struct {
	Winner      *model.Participant  `json:"winner"`
	Reason      string              `json:"reason"`
	Leaderboard []model.Participant `json:"leaderboard"`
}

type TeacherPresencePayload struct {
	SessionCode  string `json:"session_code"`
	GraceSeconds int    `json:"grace_seconds,omitempty"`
}

type PongPayload struct {
	ServerTime int64 `json:"server_time"`
}

type ErrorPayload struct {
	Code    ErrCode   `json:"code"`
	Message string    `json:"message"`
	Event   EventName `json:"event,omitempty"`
}

// Message is one outbound event. Room-addressed messages are resolved
// through the registry at delivery time; To lists explicit connections and
// is used when the room is about to be evicted.
type Message struct {
	To      []string
	Room    string
	Exclude string
	Event   OutEvent
	Payload interface{}
}

func toConn(connID string, ev OutEvent, payload interface{}) Message {
	return Message{To: []string{connID}, Event: ev, Payload: payload}
}

func toRoom(code string, ev OutEvent, payload interface{}, exclude string) Message {
	return Message{Room: code, Exclude: exclude, Event: ev, Payload: payload}
}

// Emitter delivers outbound messages. Implementations must not block.
type Emitter interface {
	Emit(msgs []Message)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(msgs []Message)

func (f EmitterFunc) Emit(msgs []Message) { f(msgs) }

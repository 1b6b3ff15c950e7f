package relay

import (
	"time"

	"github.com/stemsi/quizlive-backend/internal/model"
)

// Recorder receives durable facts about a session as they happen. Calls are
// made under the relay lock, so implementations must hand off and return.
type Recorder interface {
	SessionStarted(snap model.SessionSnapshot)
	ParticipantJoined(sessionID string, p model.Participant)
	// questionStartedAt separates responses to the same question id when it
	// is reopened after a pause.
	ResponseRecorded(sessionID, questionID string, questionStartedAt time.Time, resp model.Response, rank int)
	PointsAwarded(sessionID, participantID, questionID string, points, total int)
	SessionEnded(sessionID string, winner *model.Participant, board []model.Participant)
}

// NopRecorder discards everything. It is used when persistence is disabled.
type NopRecorder struct{}

func (NopRecorder) SessionStarted(model.SessionSnapshot)                            {}
func (NopRecorder) ParticipantJoined(string, model.Participant)                     {}
func (NopRecorder) ResponseRecorded(string, string, time.Time, model.Response, int) {}
func (NopRecorder) PointsAwarded(string, string, string, int, int)                  {}
func (NopRecorder) SessionEnded(string, *model.Participant, []model.Participant)    {}

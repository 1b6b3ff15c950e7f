package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/config"
	"github.com/stemsi/quizlive-backend/internal/model"
)

const (
	auditBatchSize    = 50
	auditFlushTimeout = 500 * time.Millisecond
)

// AuditService turns relay facts into queue records. The relay calls it under
// its lock, so every method only enqueues onto a bounded channel; Start
// pushes batches to Redis in the background.
type AuditService struct {
	rdb   *redis.Client
	queue chan model.AuditRecord
	done  chan struct{}
	now   func() time.Time
	log   zerolog.Logger
}

// NewAuditService creates an AuditService holding up to buffer records.
func NewAuditService(rdb *redis.Client, buffer int, log zerolog.Logger) *AuditService {
	if buffer <= 0 {
		buffer = 1024
	}
	return &AuditService{
		rdb:   rdb,
		queue: make(chan model.AuditRecord, buffer),
		done:  make(chan struct{}),
		now:   time.Now,
		log:   log.With().Str("component", "audit").Logger(),
	}
}

// SessionStarted implements relay.Recorder.
func (s *AuditService) SessionStarted(snap model.SessionSnapshot) {
	s.enqueue(model.AuditRecord{
		Kind:        model.AuditSessionStarted,
		At:          snap.CreatedAt,
		SessionID:   snap.ID,
		SessionCode: snap.Code,
		TeacherID:   snap.TeacherID,
		QuizID:      snap.QuizID,
	})
}

// ParticipantJoined implements relay.Recorder.
func (s *AuditService) ParticipantJoined(sessionID string, p model.Participant) {
	s.enqueue(model.AuditRecord{
		Kind:        model.AuditParticipantJoined,
		At:          p.JoinedAt,
		SessionID:   sessionID,
		Participant: &p,
	})
}

// ResponseRecorded implements relay.Recorder.
func (s *AuditService) ResponseRecorded(sessionID, questionID string, questionStartedAt time.Time, resp model.Response, rank int) {
	s.enqueue(model.AuditRecord{
		Kind:              model.AuditResponseRecorded,
		At:                resp.RespondedAt,
		SessionID:         sessionID,
		ParticipantID:     resp.ParticipantID,
		QuestionID:        questionID,
		QuestionStartedAt: questionStartedAt,
		Response:          &resp,
		Rank:              rank,
	})
}

// PointsAwarded implements relay.Recorder.
func (s *AuditService) PointsAwarded(sessionID, participantID, questionID string, points, total int) {
	s.enqueue(model.AuditRecord{
		Kind:          model.AuditPointsAwarded,
		At:            s.now(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		QuestionID:    questionID,
		Points:        points,
		TotalPoints:   total,
	})
}

// SessionEnded implements relay.Recorder.
func (s *AuditService) SessionEnded(sessionID string, winner *model.Participant, board []model.Participant) {
	rec := model.AuditRecord{
		Kind:        model.AuditSessionEnded,
		At:          s.now(),
		SessionID:   sessionID,
		Leaderboard: board,
	}
	if winner != nil {
		rec.WinnerID = winner.ID
	}
	s.enqueue(rec)
}

// enqueue stamps the record with an event id, which keeps retried writes
// from applying twice.
func (s *AuditService) enqueue(rec model.AuditRecord) {
	rec.EventID = uuid.NewString()
	select {
	case s.queue <- rec:
	default:
		s.log.Warn().
			Str("kind", string(rec.Kind)).
			Str("session_id", rec.SessionID).
			Msg("Audit buffer full, dropping record")
	}
}

// Start publishes queued records until ctx is cancelled, then flushes what
// is left. Call in a goroutine.
func (s *AuditService) Start(ctx context.Context) {
	defer close(s.done)
	s.log.Info().Msg("Audit publisher started")

	ticker := time.NewTicker(auditFlushTimeout)
	defer ticker.Stop()

	batch := make([]model.AuditRecord, 0, auditBatchSize)
	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= auditBatchSize {
				s.publish(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.publish(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			s.shutdown(batch)
			return
		}
	}
}

// Done is closed once Start has flushed and returned.
func (s *AuditService) Done() <-chan struct{} {
	return s.done
}

func (s *AuditService) shutdown(batch []model.AuditRecord) {
drain:
	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
		default:
			break drain
		}
	}

	if len(batch) == 0 {
		s.log.Info().Msg("Audit publisher stopped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.publish(ctx, batch)
	s.log.Info().Int("count", len(batch)).Msg("Audit publisher stopped after final flush")
}

func (s *AuditService) publish(ctx context.Context, batch []model.AuditRecord) {
	values := encodeRecords(batch, s.log)
	if len(values) == 0 {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistRelayEventsQueue, values...).Err(); err != nil {
		s.log.Warn().Err(err).Int("count", len(values)).Msg("Failed to publish audit records, dropping batch")
	}
}

// encodeRecords marshals a batch for a single RPUSH, preserving order.
func encodeRecords(batch []model.AuditRecord, log zerolog.Logger) []interface{} {
	values := make([]interface{}, 0, len(batch))
	for _, rec := range batch {
		raw, err := json.Marshal(rec)
		if err != nil {
			log.Error().Err(err).Str("kind", string(rec.Kind)).Msg("Failed to encode audit record")
			continue
		}
		values = append(values, raw)
	}
	return values
}

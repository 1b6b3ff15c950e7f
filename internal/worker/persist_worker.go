package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/config"
	"github.com/stemsi/quizlive-backend/internal/model"
)

const (
	pollTimeout  = time.Second // must be >= 1s for BLPOP
	retryBackoff = 2 * time.Second
	drainTimeout = 5 * time.Second
)

// errInvalidRecord marks records that can never be persisted.
var errInvalidRecord = errors.New("invalid audit record")

// auditStore is the slice of SessionRepository the worker writes through.
type auditStore interface {
	InsertSession(ctx context.Context, id uuid.UUID, code, teacherID string, quizID *uuid.UUID, startedAt time.Time) error
	InsertParticipant(ctx context.Context, sessionID uuid.UUID, p model.Participant) error
	InsertResponse(ctx context.Context, sessionID, participantID uuid.UUID, questionID string, questionStartedAt time.Time, resp model.Response, rank int) error
	InsertPointAward(ctx context.Context, eventID, sessionID, participantID uuid.UUID, questionID string, points, total int, awardedAt time.Time) error
	EndSession(ctx context.Context, sessionID uuid.UUID, winnerID *uuid.UUID, board []model.Participant, endedAt time.Time) error
}

// PersistWorker consumes the relay audit queue and writes it to PostgreSQL.
// Failed records are requeued up to config.MaxPersistAttempts times and then
// parked on the dead letter list.
type PersistWorker struct {
	store   auditStore
	rdb     *redis.Client
	log     zerolog.Logger
	backoff time.Duration
}

// NewPersistWorker creates a new PersistWorker.
func NewPersistWorker(store auditStore, rdb *redis.Client, log zerolog.Logger) *PersistWorker {
	return &PersistWorker{
		store:   store,
		rdb:     rdb,
		log:     log.With().Str("component", "persist_worker").Logger(),
		backoff: retryBackoff,
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *PersistWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *PersistWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, pollTimeout, config.WorkerKey.PersistRelayEventsQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
		time.Sleep(3 * time.Second)
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.handle(ctx, result[1]); err != nil {
		time.Sleep(w.backoff)
	}
}

// handle persists one raw record, routing failures to retry or dead letter.
func (w *PersistWorker) handle(ctx context.Context, raw string) error {
	var rec model.AuditRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("Parking malformed record")
		w.rdb.RPush(ctx, config.WorkerKey.DeadLetterQueue, raw)
		return nil
	}

	err := w.apply(ctx, rec)
	if err == nil {
		return nil
	}

	rec.Attempts++
	logEv := w.log.Warn().Err(err).
		Str("kind", string(rec.Kind)).
		Str("session_id", rec.SessionID).
		Int("attempts", rec.Attempts)

	data, _ := json.Marshal(rec)
	if errors.Is(err, errInvalidRecord) || rec.Attempts >= config.MaxPersistAttempts {
		logEv.Msg("Persist failed, moving record to dead letter queue")
		w.rdb.RPush(ctx, config.WorkerKey.DeadLetterQueue, data)
		return nil
	}
	logEv.Msg("Persist failed, requeueing")
	w.rdb.RPush(ctx, config.WorkerKey.PersistRelayEventsQueue, data)
	return err
}

// apply writes one record through the store.
func (w *PersistWorker) apply(ctx context.Context, rec model.AuditRecord) error {
	sessionID, err := parseID("session_id", rec.SessionID)
	if err != nil {
		return err
	}

	switch rec.Kind {
	case model.AuditSessionStarted:
		var quizID *uuid.UUID
		if id, err := uuid.Parse(rec.QuizID); err == nil {
			quizID = &id
		}
		return w.store.InsertSession(ctx, sessionID, rec.SessionCode, rec.TeacherID, quizID, rec.At)

	case model.AuditParticipantJoined:
		if rec.Participant == nil {
			return fmt.Errorf("%w: participant missing", errInvalidRecord)
		}
		if _, err := parseID("participant.id", rec.Participant.ID); err != nil {
			return err
		}
		return w.store.InsertParticipant(ctx, sessionID, *rec.Participant)

	case model.AuditResponseRecorded:
		if rec.Response == nil {
			return fmt.Errorf("%w: response missing", errInvalidRecord)
		}
		if rec.QuestionStartedAt.IsZero() {
			return fmt.Errorf("%w: question_started_at missing", errInvalidRecord)
		}
		participantID, err := parseID("participant_id", rec.ParticipantID)
		if err != nil {
			return err
		}
		return w.store.InsertResponse(ctx, sessionID, participantID, rec.QuestionID, rec.QuestionStartedAt, *rec.Response, rec.Rank)

	case model.AuditPointsAwarded:
		eventID, err := parseID("event_id", rec.EventID)
		if err != nil {
			return err
		}
		participantID, err := parseID("participant_id", rec.ParticipantID)
		if err != nil {
			return err
		}
		return w.store.InsertPointAward(ctx, eventID, sessionID, participantID, rec.QuestionID, rec.Points, rec.TotalPoints, rec.At)

	case model.AuditSessionEnded:
		var winnerID *uuid.UUID
		if rec.WinnerID != "" {
			id, err := parseID("winner_id", rec.WinnerID)
			if err != nil {
				return err
			}
			winnerID = &id
		}
		return w.store.EndSession(ctx, sessionID, winnerID, rec.Leaderboard, rec.At)

	default:
		return fmt.Errorf("%w: unknown kind %q", errInvalidRecord, rec.Kind)
	}
}

// drain persists what is left in the queue before shutdown.
func (w *PersistWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	drained := 0
	for ctx.Err() == nil {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistRelayEventsQueue).Result()
		if err != nil {
			break
		}
		if err := w.handle(ctx, raw); err != nil {
			// requeued; leave the rest for the next start
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining records")
	}
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q", errInvalidRecord, field, raw)
	}
	return id, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizlive-backend/internal/model"
)

// SessionRepository writes the audit trail of live sessions. Every write is
// keyed so the persistence worker can retry a record safely: sessions and
// participants by id, responses by question opening, awards by event id.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// InsertSession records a started session. quizID is dropped when it does
// not name an existing quiz.
func (r *SessionRepository) InsertSession(ctx context.Context, id uuid.UUID, code, teacherID string, quizID *uuid.UUID, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quiz_sessions (id, session_code, teacher_id, quiz_id, status, started_at)
		 VALUES ($1, $2, $3, (SELECT id FROM quizzes WHERE id = $4), $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		id, code, teacherID, quizID, model.SessionStatusWaiting, startedAt,
	)
	return err
}

// InsertParticipant records a participant's first join.
func (r *SessionRepository) InsertParticipant(ctx context.Context, sessionID uuid.UUID, p model.Participant) error {
	participantID, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("participant id: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO session_participants (id, session_id, display_name, total_points, joined_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		participantID, sessionID, p.DisplayName, p.TotalPoints, p.JoinedAt,
	)
	return err
}

// InsertResponse records an accepted response with its rank at the time of
// arrival. A question reopened after a pause starts a new window, so its
// responses are kept next to the earlier ones. The first response also marks
// the session active.
func (r *SessionRepository) InsertResponse(ctx context.Context, sessionID, participantID uuid.UUID, questionID string, questionStartedAt time.Time, resp model.Response, rank int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_responses (session_id, participant_id, question_id, question_started_at, elapsed_millis, rank_position, responded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, participant_id, question_id, question_started_at) DO NOTHING`,
		sessionID, participantID, questionID, questionStartedAt, resp.ElapsedMillis, rank, resp.RespondedAt,
	)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE quiz_sessions SET status = $2 WHERE id = $1 AND status = $3`,
		sessionID, model.SessionStatusActive, model.SessionStatusWaiting,
	)
	return err
}

// InsertPointAward records an award and the participant's running total in
// one transaction. A replayed eventID is ignored.
func (r *SessionRepository) InsertPointAward(ctx context.Context, eventID, sessionID, participantID uuid.UUID, questionID string, points, total int, awardedAt time.Time) error {
	var qid *string
	if questionID != "" {
		qid = &questionID
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO point_awards (event_id, session_id, participant_id, question_id, points, total_points, awarded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, sessionID, participantID, qid, points, total, awardedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE session_participants SET total_points = $2 WHERE id = $1`,
		participantID, total,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// EndSession closes the session row and writes final totals and ranks for
// the whole leaderboard in one statement.
func (r *SessionRepository) EndSession(ctx context.Context, sessionID uuid.UUID, winnerID *uuid.UUID, board []model.Participant, endedAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = $2, winner_participant_id = $3, ended_at = $4
		 WHERE id = $1`,
		sessionID, model.SessionStatusEnded, winnerID, endedAt,
	)
	if err != nil {
		return err
	}

	if len(board) > 0 {
		ids := make([]uuid.UUID, 0, len(board))
		totals := make([]int, 0, len(board))
		ranks := make([]int, 0, len(board))
		for i, p := range board {
			id, err := uuid.Parse(p.ID)
			if err != nil {
				return fmt.Errorf("participant id: %w", err)
			}
			ids = append(ids, id)
			totals = append(totals, p.TotalPoints)
			ranks = append(ranks, i+1)
		}

		_, err = tx.Exec(ctx,
			`UPDATE session_participants AS p
			 SET total_points = u.total_points, final_rank = u.final_rank
			 FROM UNNEST($2::uuid[], $3::int[], $4::int[]) AS u (id, total_points, final_rank)
			 WHERE p.session_id = $1 AND p.id = u.id`,
			sessionID, ids, totals, ranks,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizlive-backend/internal/model"
)

// QuizRepository handles quiz and question data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// Create inserts a new quiz and fills in its generated fields.
func (r *QuizRepository) Create(ctx context.Context, q *model.Quiz) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (teacher_id, title, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		q.TeacherID, q.Title, q.Description,
	).Scan(&q.ID, &q.CreatedAt)
}

// ListByTeacher retrieves a teacher's quizzes, newest first.
func (r *QuizRepository) ListByTeacher(ctx context.Context, teacherID string) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, teacher_id, title, description, created_at
		 FROM quizzes WHERE teacher_id = $1
		 ORDER BY created_at DESC`, teacherID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quizzes := []model.Quiz{}
	for rows.Next() {
		var q model.Quiz
		if err := rows.Scan(&q.ID, &q.TeacherID, &q.Title, &q.Description, &q.CreatedAt); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// GetByID retrieves a quiz without its questions.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, teacher_id, title, description, created_at
		 FROM quizzes WHERE id = $1`, id,
	).Scan(&q.ID, &q.TeacherID, &q.Title, &q.Description, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListQuestions retrieves a quiz's questions in presentation order.
func (r *QuizRepository) ListQuestions(ctx context.Context, quizID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, question_text, max_points, order_index, created_at
		 FROM questions WHERE quiz_id = $1
		 ORDER BY order_index, created_at`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.QuestionText, &q.MaxPoints, &q.OrderIndex, &q.CreatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// AddQuestion appends a question. A negative OrderIndex places it after the
// current last question.
func (r *QuizRepository) AddQuestion(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (quiz_id, question_text, max_points, order_index)
		 VALUES ($1, $2, $3,
		         CASE WHEN $4::int >= 0 THEN $4::int
		              ELSE (SELECT COALESCE(MAX(order_index) + 1, 0) FROM questions WHERE quiz_id = $1)
		         END)
		 RETURNING id, order_index, created_at`,
		q.QuizID, q.QuestionText, q.MaxPoints, q.OrderIndex,
	).Scan(&q.ID, &q.OrderIndex, &q.CreatedAt)
}

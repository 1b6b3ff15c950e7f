package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/repository"
)

// Quiz authoring errors.
var (
	ErrQuizNotFound = errors.New("quiz not found")
	ErrNotQuizOwner = errors.New("quiz belongs to another teacher")
)

// QuizService handles quiz authoring for teachers.
type QuizService struct {
	quizRepo *repository.QuizRepository
}

// NewQuizService creates a new QuizService.
func NewQuizService(quizRepo *repository.QuizRepository) *QuizService {
	return &QuizService{quizRepo: quizRepo}
}

// Create stores a new quiz owned by teacherID.
func (s *QuizService) Create(ctx context.Context, teacherID string, req model.CreateQuizRequest) (*model.Quiz, error) {
	quiz := &model.Quiz{
		TeacherID:   teacherID,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := s.quizRepo.Create(ctx, quiz); err != nil {
		return nil, err
	}
	quiz.Questions = []model.Question{}
	return quiz, nil
}

// ListForTeacher returns the teacher's quizzes without their questions.
func (s *QuizService) ListForTeacher(ctx context.Context, teacherID string) ([]model.Quiz, error) {
	return s.quizRepo.ListByTeacher(ctx, teacherID)
}

// Get returns a quiz with its questions if teacherID owns it.
func (s *QuizService) Get(ctx context.Context, teacherID string, id uuid.UUID) (*model.Quiz, error) {
	quiz, err := s.owned(ctx, teacherID, id)
	if err != nil {
		return nil, err
	}
	quiz.Questions, err = s.quizRepo.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// AddQuestion appends a question to a quiz the teacher owns.
func (s *QuizService) AddQuestion(ctx context.Context, teacherID string, quizID uuid.UUID, req model.AddQuestionRequest) (*model.Question, error) {
	if _, err := s.owned(ctx, teacherID, quizID); err != nil {
		return nil, err
	}

	q := &model.Question{
		QuizID:       quizID,
		QuestionText: req.QuestionText,
		MaxPoints:    req.MaxPoints,
		OrderIndex:   -1,
	}
	if req.OrderIndex != nil {
		q.OrderIndex = *req.OrderIndex
	}
	if err := s.quizRepo.AddQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuizService) owned(ctx context.Context, teacherID string, id uuid.UUID) (*model.Quiz, error) {
	quiz, err := s.quizRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, err
	}
	if quiz.TeacherID != teacherID {
		return nil, ErrNotQuizOwner
	}
	return quiz, nil
}

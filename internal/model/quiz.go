package model

import (
	"time"

	"github.com/google/uuid"
)

// Quiz is an authored set of questions owned by one teacher.
type Quiz struct {
	ID          uuid.UUID  `json:"id"`
	TeacherID   string     `json:"teacher_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	Questions   []Question `json:"questions,omitempty"`
}

// Question is one authored quiz question.
type Question struct {
	ID           uuid.UUID `json:"id"`
	QuizID       uuid.UUID `json:"quiz_id"`
	QuestionText string    `json:"question_text"`
	MaxPoints    int       `json:"max_points"`
	OrderIndex   int       `json:"order_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateQuizRequest is the payload for creating a quiz.
type CreateQuizRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=200"`
	Description string `json:"description" binding:"max=2000"`
}

// AddQuestionRequest is the payload for appending a question to a quiz.
// OrderIndex defaults to the end of the quiz.
type AddQuestionRequest struct {
	QuestionText string `json:"question_text" binding:"required,min=1,max=1000"`
	MaxPoints    int    `json:"max_points" binding:"required,min=1,max=1000"`
	OrderIndex   *int   `json:"order_index" binding:"omitempty,min=0"`
}

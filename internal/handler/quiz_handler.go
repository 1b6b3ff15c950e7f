package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/middleware"
	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/response"
	"github.com/stemsi/quizlive-backend/internal/service"
	"github.com/stemsi/quizlive-backend/internal/validator"
)

// QuizHandler handles quiz authoring endpoints. A nil service means
// persistence is disabled and every endpoint answers 503.
type QuizHandler struct {
	quizService *service.QuizService
	log         zerolog.Logger
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService, log zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		quizService: quizService,
		log:         log.With().Str("component", "quiz_handler").Logger(),
	}
}

// RequirePersistence rejects authoring requests when no database is wired.
func (h *QuizHandler) RequirePersistence() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.quizService == nil {
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrPersistenceDisabled)
			return
		}
		c.Next()
	}
}

// CreateQuiz godoc
// POST /api/v1/teacher/quizzes
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz, err := h.quizService.Create(c.Request.Context(), claims.TeacherID, req)
	if err != nil {
		h.log.Error().Err(err).Str("teacher_id", claims.TeacherID).Msg("Failed to create quiz")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"quiz": quiz})
}

// ListQuizzes godoc
// GET /api/v1/teacher/quizzes
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizzes, err := h.quizService.ListForTeacher(c.Request.Context(), claims.TeacherID)
	if err != nil {
		h.log.Error().Err(err).Str("teacher_id", claims.TeacherID).Msg("Failed to list quizzes")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quizzes": quizzes})
}

// GetQuiz godoc
// GET /api/v1/teacher/quizzes/:id
// Returns a quiz with its questions in presentation order.
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, err := h.quizService.Get(c.Request.Context(), claims.TeacherID, quizID)
	if err != nil {
		h.failQuiz(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// AddQuestion godoc
// POST /api/v1/teacher/quizzes/:id/questions
func (h *QuizHandler) AddQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.quizService.AddQuestion(c.Request.Context(), claims.TeacherID, quizID, req)
	if err != nil {
		h.failQuiz(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

func (h *QuizHandler) failQuiz(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQuizNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrQuizNotFound)
	case errors.Is(err, service.ErrNotQuizOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizOwner)
	default:
		h.log.Error().Err(err).Msg("Quiz request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

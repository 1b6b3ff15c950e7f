package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/middleware"
	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/response"
	"github.com/stemsi/quizlive-backend/internal/service"
	"github.com/stemsi/quizlive-backend/internal/validator"
)

// AuthHandler handles the teacher PIN gate.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// TeacherLogin godoc
// POST /api/v1/auth/teacher
// Exchanges the shared teacher PIN and a display name for a teacher token.
func (h *AuthHandler) TeacherLogin(c *gin.Context) {
	var req model.TeacherLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, teacherID, err := h.authService.Login(req.PIN, req.Name)
	switch {
	case errors.Is(err, service.ErrInvalidPIN):
		h.log.Warn().Str("ip", c.ClientIP()).Msg("Teacher login with wrong PIN")
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidPIN)
		return
	case errors.Is(err, service.ErrPINNotConfigured):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrPINNotConfigured)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to issue teacher token")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("teacher_id", teacherID).Msg("Teacher logged in")
	response.Success(c, http.StatusOK, model.TeacherLoginResponse{
		Token:     token,
		TeacherID: teacherID,
		Name:      req.Name,
	})
}

// TeacherProfile godoc
// GET /api/v1/auth/teacher/me
// Returns the identity carried by the current teacher token.
func (h *AuthHandler) TeacherProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"teacher_id": claims.TeacherID,
		"name":       claims.Name,
		"expires_at": claims.ExpiresAt,
	})
}

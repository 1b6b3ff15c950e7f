package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizlive-backend/internal/middleware"
	"github.com/stemsi/quizlive-backend/internal/relay"
	"github.com/stemsi/quizlive-backend/internal/response"
	"github.com/stemsi/quizlive-backend/internal/service"
	ws "github.com/stemsi/quizlive-backend/internal/websocket"
)

// SessionHandler exposes live session views over HTTP.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// SessionStatus godoc
// GET /api/v1/sessions/:code
// Public: lets the join page check a code before opening a websocket.
func (h *SessionHandler) SessionStatus(c *gin.Context) {
	code, ok := sessionCode(c)
	if !ok {
		return
	}

	status, err := h.sessionService.Status(code)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": status})
}

// Leaderboard godoc
// GET /api/v1/teacher/sessions/:code/leaderboard
func (h *SessionHandler) Leaderboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	code, ok := sessionCode(c)
	if !ok {
		return
	}

	board, err := h.sessionService.Leaderboard(claims.TeacherID, code)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session_code": code, "leaderboard": board})
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, relay.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, service.ErrNotSessionOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func sessionCode(c *gin.Context) (string, bool) {
	code := ws.NormalizeCode(c.Param("code"))
	if !relay.ValidCode(code) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidSessionCode)
		return "", false
	}
	return code, true
}

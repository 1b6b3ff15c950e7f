package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/gateway"
	"github.com/stemsi/quizlive-backend/internal/middleware"
	"github.com/stemsi/quizlive-backend/internal/relay"
	"github.com/stemsi/quizlive-backend/internal/service"
	ws "github.com/stemsi/quizlive-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler upgrades quiz connections and hands them to the gateway.
type WSHandler struct {
	gateway     *gateway.Gateway
	authService *service.AuthService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(g *gateway.Gateway, authService *service.AuthService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		gateway:     g,
		authService: authService,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// QuizStream godoc
// WS /ws/v1/quiz?token=...
// Students connect without a token. A teacher token unlocks teacher events.
func (h *WSHandler) QuizStream(c *gin.Context) {
	var teacherID string
	var tokenErr error
	if tokenStr, err := middleware.TokenFromRequest(c); err == nil {
		claims, err := h.authService.ValidateToken(tokenStr)
		if err != nil {
			tokenErr = err
		} else {
			teacherID = claims.TeacherID
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	// Browsers cannot read the HTTP status of a failed upgrade, so a bad
	// token is reported over the socket before closing.
	if tokenErr != nil {
		h.log.Debug().Err(tokenErr).Str("remote", c.ClientIP()).Msg("Rejected teacher token")
		_ = ws.WriteError(conn, ws.DefaultWriteTimeout, relay.CodeUnauthorizedRole, "teacher token is invalid or expired")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	if err := h.gateway.Serve(conn, teacherID); errors.Is(err, gateway.ErrClosed) {
		h.log.Debug().Msg("Connection refused during shutdown")
	}
}

package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/activity"
	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	authService *auth.Service
	hub         *core.Hub
	recorder    *activity.Recorder
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance. recorder may be nil.
func NewAPIHandlers(authService *auth.Service, hub *core.Hub, recorder *activity.Recorder, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		hub:         hub,
		recorder:    recorder,
		log:         logger,
	}
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=128"`
}

// LoginResponse represents the login response body.
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OnlineResponse lists online users.
type OnlineResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// StatsResponse is served by GET /api/stats.
type StatsResponse struct {
	Online   int             `json:"online"`
	Rooms    []string        `json:"rooms"`
	Messages int             `json:"messages"`
	Activity *activity.Stats `json:"activity,omitempty"`
}

// Login issues a token for a display name.
// POST /login, POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, identity, err := h.authService.Login(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidUsername) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username must be 1-32 characters"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("user_id", identity.UserID).Str("username", identity.DisplayName).Msg("user logged in")
	c.JSON(http.StatusOK, LoginResponse{Token: token, UserID: identity.UserID, Username: identity.DisplayName})
}

// Online lists online user IDs.
// GET /api/online
func (h *APIHandlers) Online(c *gin.Context) {
	users := h.hub.Presence().OnlineUserIDs()
	c.JSON(http.StatusOK, OnlineResponse{Users: users, Count: len(users)})
}

// RoomMessages returns the recent public messages of a room.
// GET /api/rooms/:room/messages?limit=N
func (h *APIHandlers) RoomMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	room := c.Param("room")
	window := h.hub.RecentWindow(room, limit)
	messages := make([]proto.MessageView, 0, len(window))
	for _, msg := range window {
		messages = append(messages, messageView(msg))
	}
	c.JSON(http.StatusOK, proto.LoadMessagesView{Room: room, Messages: messages})
}

// Stats reports relay counters.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	resp := StatsResponse{
		Online:   h.hub.Presence().Count(),
		Rooms:    h.hub.Rooms().Names(),
		Messages: h.hub.Store().Len(),
	}
	if h.recorder != nil {
		stats := h.recorder.Stats()
		resp.Activity = &stats
	}
	c.JSON(http.StatusOK, resp)
}

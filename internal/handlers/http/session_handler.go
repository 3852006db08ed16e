package http

import (
	"net/http"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/internal/infrastructure/middleware"
	"screenshare/pkg/errors"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions ports.SessionService
}

func NewSessionHandler(sessions ports.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// SetupRoutes expects api to already run AuthMiddleware.
func (h *SessionHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/sessions", middleware.RequireRole(domain.RolePublisher, domain.RoleAdmin), h.StartSession)
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/end", h.EndSession)
}

type StartSessionRequest struct {
	RoomID        string `json:"roomId"`
	PublisherName string `json:"publisherName"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	GameName      string `json:"gameName"`
	League        string `json:"league"`
	Match         string `json:"match"`
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request body"))
		return
	}

	name := req.PublisherName
	if name == "" {
		name = claims.Username
	}

	session, err := h.sessions.StartSession(c.Request.Context(), ports.CreateSessionParams{
		PublisherID:   claims.UserID,
		PublisherName: name,
		RoomID:        req.RoomID,
		Title:         req.Title,
		Description:   req.Description,
		GameName:      req.GameName,
		League:        req.League,
		Match:         req.Match,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.ListActiveSessions(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	if sessions == nil {
		sessions = []*domain.StreamSession{}
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), domain.SessionID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

// EndSession is allowed for the session's publisher and for admins.
func (h *SessionHandler) EndSession(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	ctx := c.Request.Context()
	id := domain.SessionID(c.Param("id"))

	session, err := h.sessions.GetSession(ctx, id)
	if err != nil {
		c.Error(err)
		return
	}
	if claims.Role != domain.RoleAdmin && session.PublisherID != claims.UserID {
		c.Error(errors.WrapError(domain.ErrNotSessionOwner, errors.ErrCodeForbidden, domain.ErrNotSessionOwner.Error(), http.StatusForbidden).
			WithContext("session_id", id))
		return
	}

	ended, err := h.sessions.EndSession(ctx, id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": ended})
}

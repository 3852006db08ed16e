package http

import (
	"net/http"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/pkg/errors"

	"github.com/gin-gonic/gin"
)

// TokenHandler serves conference tokens to browsers that embed the SDK themselves.
type TokenHandler struct {
	tokens ports.TokenIssuer
}

func NewTokenHandler(tokens ports.TokenIssuer) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

func (h *TokenHandler) SetupRoutes(router gin.IRoutes) {
	router.POST("/api/jaas/token", h.IssueToken)
}

type TokenRequest struct {
	RoomName string               `json:"roomName"`
	User     *domain.UserIdentity `json:"user,omitempty"`
}

func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request body"))
		return
	}

	token, err := h.tokens.IssueToken(c.Request.Context(), req.RoomName, req.User)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

package http

import (
	"net/http"
	"strconv"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/internal/infrastructure/middleware"
	"screenshare/pkg/errors"

	"github.com/gin-gonic/gin"
)

type PermissionHandler struct {
	permissions ports.PermissionService
}

func NewPermissionHandler(permissions ports.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

// SetupRoutes expects api to already run AuthMiddleware.
func (h *PermissionHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/streams/available", h.AvailableStreams)

	admin := api.Group("", middleware.RequireRole(domain.RoleAdmin))
	{
		admin.GET("/subscribers/:id/streams", h.SubscriberStreams)
		admin.GET("/subscribers/:id/permissions", h.SubscriberPermissions)
		admin.POST("/permissions", h.GrantPermission)
		admin.GET("/permissions/:id", h.GetPermission)
		admin.PATCH("/permissions/:id", h.UpdatePermission)
		admin.DELETE("/permissions/:id", h.RevokePermission)
	}
}

// AvailableStreams lists the caller's permissions with the publisher's live session attached.
// With ?live=true only publishers that are live right now are returned.
func (h *PermissionHandler) AvailableStreams(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}
	h.writeStreams(c, claims.UserID)
}

func (h *PermissionHandler) SubscriberStreams(c *gin.Context) {
	h.writeStreams(c, domain.UserID(c.Param("id")))
}

func (h *PermissionHandler) writeStreams(c *gin.Context, subscriberID domain.UserID) {
	liveOnly := false
	if raw := c.Query("live"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.Error(errors.NewInvalidInputError("live must be a boolean"))
			return
		}
		liveOnly = v
	}

	streams, err := h.permissions.GetAvailableStreams(c.Request.Context(), subscriberID)
	if err != nil {
		c.Error(err)
		return
	}

	result := make([]*domain.SubscriberPermission, 0, len(streams))
	for _, perm := range streams {
		if liveOnly && !perm.IsLive() {
			continue
		}
		result = append(result, perm)
	}

	c.JSON(http.StatusOK, gin.H{"streams": result})
}

func (h *PermissionHandler) SubscriberPermissions(c *gin.Context) {
	perms, err := h.permissions.ListPermissions(c.Request.Context(), domain.UserID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	if perms == nil {
		perms = []*domain.SubscriberPermission{}
	}

	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

func (h *PermissionHandler) GrantPermission(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	var params ports.GrantPermissionParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request body"))
		return
	}
	params.GrantedBy = claims.UserID

	perm, err := h.permissions.GrantPermission(c.Request.Context(), params)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"permission": perm})
}

func (h *PermissionHandler) GetPermission(c *gin.Context) {
	perm, err := h.permissions.GetPermission(c.Request.Context(), domain.PermissionID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"permission": perm})
}

func (h *PermissionHandler) UpdatePermission(c *gin.Context) {
	var params ports.UpdatePermissionParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request body"))
		return
	}

	perm, err := h.permissions.UpdatePermission(c.Request.Context(), domain.PermissionID(c.Param("id")), params)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"permission": perm})
}

func (h *PermissionHandler) RevokePermission(c *gin.Context) {
	if err := h.permissions.RevokePermission(c.Request.Context(), domain.PermissionID(c.Param("id"))); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

package Collaborator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdul977/whimsical-idea-keeper/Route/Common"
	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Collaborator"
)

type Handler struct {
	collaborators Collaborator.CollaboratorService
}

func NewHandler(collaborators Collaborator.CollaboratorService) *Handler {
	return &Handler{collaborators: collaborators}
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	group := api.Group("/notes/:id/collaborators")
	{
		group.GET("", h.List)
		group.POST("", h.Invite)
		group.PUT("/:user_id", h.UpdatePermission)
		group.DELETE("/:user_id", h.Remove)
	}
}

// ids 当前用户和路径中的笔记ID
func ids(c *gin.Context) (uint, uint, bool) {
	session, err := Common.CurrentSession(c)
	if err != nil {
		Common.RespondError(c, err)
		return 0, 0, false
	}
	noteID, err := Common.ParamID(c, "id")
	if err != nil {
		Common.RespondError(c, err)
		return 0, 0, false
	}
	return session.UserID, noteID, true
}

func (h *Handler) List(c *gin.Context) {
	userID, noteID, ok := ids(c)
	if !ok {
		return
	}
	list, err := h.collaborators.List(c.Request.Context(), userID, noteID)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *Handler) Invite(c *gin.Context) {
	userID, noteID, ok := ids(c)
	if !ok {
		return
	}
	var req database.InviteCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}

	collaborator, err := h.collaborators.Invite(c.Request.Context(), userID, noteID, req)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": collaborator})
}

func (h *Handler) UpdatePermission(c *gin.Context) {
	userID, noteID, ok := ids(c)
	if !ok {
		return
	}
	target, err := Common.ParamID(c, "user_id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	var req database.UpdatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}

	collaborator, err := h.collaborators.UpdatePermission(c.Request.Context(), userID, noteID, target, req.Permission)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": collaborator})
}

func (h *Handler) Remove(c *gin.Context) {
	userID, noteID, ok := ids(c)
	if !ok {
		return
	}
	target, err := Common.ParamID(c, "user_id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	if err := h.collaborators.Remove(c.Request.Context(), userID, noteID, target); err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已移除协作者"})
}

package Note

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/Route/Common"
	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Note"
	"github.com/abdul977/whimsical-idea-keeper/service/Reasoning"
)

type Handler struct {
	notes     Note.NoteService
	processor Reasoning.Processor
	logger    *zap.Logger
}

func NewHandler(notes Note.NoteService, processor Reasoning.Processor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{notes: notes, processor: processor, logger: logger}
}

// RegisterRoutes 需要认证的笔记路由
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	notes := api.Group("/notes")
	{
		notes.GET("", h.ListNotes)
		notes.POST("", h.CreateNote)
		notes.GET("/:id", h.GetNote)
		notes.PUT("/:id", h.UpdateNote)
		notes.DELETE("/:id", h.DeleteNote)
		notes.GET("/:id/versions", h.GetVersions)
		notes.POST("/:id/share", h.ShareNote)
		notes.DELETE("/:id/share", h.RevokeShare)
		notes.POST("/:id/process", h.ProcessNote)
	}
	api.POST("/process", h.ProcessDraft)
}

// RegisterPublicRoutes 分享链接无需登录
func (h *Handler) RegisterPublicRoutes(api *gin.RouterGroup) {
	api.GET("/shared/:token", h.GetShared)
}

func actorOf(c *gin.Context) (Note.Actor, bool) {
	session, err := Common.CurrentSession(c)
	if err != nil {
		Common.RespondError(c, err)
		return Note.Actor{}, false
	}
	return Note.Actor{UserID: session.UserID, Username: session.Username}, true
}

// ListNotes ?q= 时走全文搜索
func (h *Handler) ListNotes(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}

	var (
		notes []database.Note
		err   error
	)
	if q := c.Query("q"); q != "" {
		notes, err = h.notes.Search(c.Request.Context(), actor.UserID, q)
	} else {
		notes, err = h.notes.List(c.Request.Context(), actor.UserID)
	}
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	if notes == nil {
		notes = []database.Note{}
	}
	c.JSON(http.StatusOK, gin.H{"data": notes})
}

func (h *Handler) CreateNote(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req database.SaveNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}

	note, err := h.notes.Create(c.Request.Context(), actor, req)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": note})
}

func (h *Handler) GetNote(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, err := Common.ParamID(c, "id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	note, err := h.notes.Get(c.Request.Context(), actor.UserID, id)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": note})
}

func (h *Handler) UpdateNote(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, err := Common.ParamID(c, "id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	var req database.SaveNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}

	note, err := h.notes.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": note})
}

func (h *Handler) DeleteNote(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, err := Common.ParamID(c, "id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	if err := h.notes.Delete(c.Request.Context(), actor.UserID, id); err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "笔记已删除"})
}

func (h *Handler) GetVersions(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, err := Common.ParamID(c, "id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	versions, err := h.notes.Versions(c.Request.Context(), actor.UserID, id)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": versions})
}

func (h *Handler) ShareNote(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, err := Common.ParamID(c, "id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	token, err := h.notes.CreateShareToken(c.Request.Context(), actor.UserID, id)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"token": token,
		"path":  "/api/shared/" + token,
	}})
}

func (h *Handler) RevokeShare(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, err := Common.ParamID(c, "id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	if err := h.notes.RevokeShareToken(c.Request.Context(), actor.UserID, id); err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已取消分享"})
}

func (h *Handler) GetShared(c *gin.Context) {
	note, err := h.notes.GetByShareToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": note})
}

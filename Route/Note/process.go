package Note

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/Route/Common"
	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
	"github.com/abdul977/whimsical-idea-keeper/service/Note"
)

type ProcessRequest struct {
	Variant string `json:"variant"`
}

// DraftProcessRequest 未保存的笔记也可以直接处理
type DraftProcessRequest struct {
	Note    database.SaveNoteRequest `json:"note"`
	Variant string                   `json:"variant"`
}

// ProcessNote 处理已保存的笔记，variant 为空时使用笔记自己的处理方式
func (h *Handler) ProcessNote(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, err := Common.ParamID(c, "id")
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	// 请求体可以为空
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Common.BadRequest(c, err)
		return
	}

	note, err := h.notes.Get(c.Request.Context(), actor.UserID, id)
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	variant := note.ProcessingType
	if req.Variant != "" {
		if variant, err = database.ParseProcessingVariant(req.Variant); err != nil {
			Common.RespondError(c, Errs.Wrap(Errs.KindValidation, "未知的处理方式", err))
			return
		}
	}
	h.process(c, note, variant)
}

func (h *Handler) ProcessDraft(c *gin.Context) {
	if _, ok := actorOf(c); !ok {
		return
	}
	var req DraftProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}

	if req.Note.ProcessingType == "" {
		req.Note.ProcessingType = req.Variant
	}
	title, variant, entries, err := Note.Validate(req.Note)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	if req.Variant != "" {
		if variant, err = database.ParseProcessingVariant(req.Variant); err != nil {
			Common.RespondError(c, Errs.Wrap(Errs.KindValidation, "未知的处理方式", err))
			return
		}
	}
	h.process(c, &database.Note{Title: title, ProcessingType: variant, Entries: entries}, variant)
}

// process 外部调用失败时仍返回降级结果，附带 notice 说明原因
func (h *Handler) process(c *gin.Context, note *database.Note, variant database.ProcessingVariant) {
	result, err := h.processor.Process(c.Request.Context(), note, variant)
	if err != nil && result == nil {
		Common.RespondError(c, err)
		return
	}

	body := gin.H{"data": result}
	if err != nil {
		_ = c.Error(err)
		body["notice"] = Errs.Message(err)
		body["error_kind"] = Errs.KindOf(err).String()
		h.logger.Warn("笔记处理降级", zap.Uint("note_id", note.ID), zap.String("strategy", h.processor.Name()), zap.Error(err))
	}
	c.JSON(http.StatusOK, body)
}

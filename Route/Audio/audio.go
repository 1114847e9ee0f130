package Audio

import (
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/Route/Common"
	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Audio"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
	"github.com/abdul977/whimsical-idea-keeper/service/Reasoning"
)

var audioExtensions = map[string]bool{
	".mp3": true, ".mpeg": true, ".mpga": true, ".m4a": true, ".mp4": true,
	".wav": true, ".webm": true, ".ogg": true, ".flac": true,
}

type Handler struct {
	storage     *Audio.Storage
	recorders   *Audio.RecorderRegistry
	transcriber *Audio.Transcriber
	processor   Reasoning.Processor
	logger      *zap.Logger
}

func NewHandler(storage *Audio.Storage, recorders *Audio.RecorderRegistry, transcriber *Audio.Transcriber, processor Reasoning.Processor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		storage:     storage,
		recorders:   recorders,
		transcriber: transcriber,
		processor:   processor,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/audio", h.Upload)

	recordings := api.Group("/recordings/:editor")
	{
		recordings.GET("", h.RecordingState)
		recordings.POST("/start", h.StartRecording)
		recordings.POST("/chunk", h.AppendChunk)
		recordings.POST("/stop", h.StopRecording)
		recordings.DELETE("", h.DiscardRecording)
	}

	api.POST("/transcriptions", h.Transcribe)
}

// RegisterMediaRoutes 音频文件公开访问，分享出去的笔记也能播放
func (h *Handler) RegisterMediaRoutes(r *gin.Engine) {
	r.GET("/media/*key", h.Serve)
}

func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		Common.BadRequest(c, err)
		return
	}
	if file.Size > Audio.MaxRecordingBytes {
		Common.RespondError(c, Audio.ErrRecordingTooBig)
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".mp3"
	}
	if !audioExtensions[ext] {
		Common.RespondError(c, Errs.Validation("不支持的音频格式: "+ext))
		return
	}

	src, err := file.Open()
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	defer src.Close()

	key, err := h.storage.Put(c.Request.Context(), src, ext)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"audio_url": h.storage.URL(key)}})
}

func (h *Handler) Serve(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	f, err := h.storage.Open(key)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	http.ServeContent(c.Writer, c.Request, path.Base(key), modTime, f)
}

// editorOf 返回当前用户和编辑器ID
func editorOf(c *gin.Context) (uint, string, bool) {
	session, err := Common.CurrentSession(c)
	if err != nil {
		Common.RespondError(c, err)
		return 0, "", false
	}
	editor := c.Param("editor")
	if editor == "" || len(editor) > 64 {
		Common.RespondError(c, Errs.Validation("无效的编辑器ID"))
		return 0, "", false
	}
	return session.UserID, editor, true
}

func (h *Handler) recorder(c *gin.Context) (*Audio.Recorder, bool) {
	userID, editor, ok := editorOf(c)
	if !ok {
		return nil, false
	}
	rec, err := h.recorders.Get(userID, editor)
	if err != nil {
		Common.RespondError(c, err)
		return nil, false
	}
	return rec, true
}

type startRecordingRequest struct {
	Slot *int `json:"slot" binding:"required"`
}

func (h *Handler) StartRecording(c *gin.Context) {
	var req startRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}
	rec, ok := h.recorder(c)
	if !ok {
		return
	}

	if err := rec.Start(*req.Slot); err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"recording": true, "slot": *req.Slot}})
}

// AppendChunk 请求体就是原始音频数据
func (h *Handler) AppendChunk(c *gin.Context) {
	userID, editor, ok := editorOf(c)
	if !ok {
		return
	}
	rec, found := h.recorders.Lookup(userID, editor)
	if !found {
		Common.RespondError(c, Audio.ErrNotRecording)
		return
	}
	chunk, err := io.ReadAll(io.LimitReader(c.Request.Body, Audio.MaxRecordingBytes+1))
	if err != nil {
		Common.BadRequest(c, err)
		return
	}

	if err := rec.Append(chunk); err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"received": len(chunk)}})
}

// StopRecording 上传后释放录音器
func (h *Handler) StopRecording(c *gin.Context) {
	userID, editor, ok := editorOf(c)
	if !ok {
		return
	}
	rec, found := h.recorders.Lookup(userID, editor)
	if !found {
		Common.RespondError(c, Audio.ErrNotRecording)
		return
	}

	slot, url, err := rec.Stop(c.Request.Context())
	h.recorders.Discard(userID, editor)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"slot": slot, "audio_url": url}})
}

// DiscardRecording 编辑器关闭时调用，丢弃未完成的录音
func (h *Handler) DiscardRecording(c *gin.Context) {
	userID, editor, ok := editorOf(c)
	if !ok {
		return
	}
	h.recorders.Discard(userID, editor)
	c.JSON(http.StatusOK, gin.H{"message": "录音已丢弃"})
}

func (h *Handler) RecordingState(c *gin.Context) {
	userID, editor, ok := editorOf(c)
	if !ok {
		return
	}
	state := gin.H{"recording": false}
	if rec, found := h.recorders.Lookup(userID, editor); found {
		if slot, active := rec.Active(); active {
			state["recording"] = true
			state["slot"] = slot
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": state})
}

type transcriptionRequest struct {
	AudioURL string `json:"audio_url" binding:"required"`
	Variant  string `json:"variant"`
}

// transcriptionNote 临时笔记，条目保留音频来源
func transcriptionNote(text, audioURL string, variant database.ProcessingVariant) *database.Note {
	return &database.Note{
		Title:          "Transcription",
		ProcessingType: variant,
		Entries:        []database.NoteEntry{{Content: text, AudioURL: audioURL}},
	}
}

// Transcribe 转写失败返回空文本和 notice，不影响前端继续保存笔记
func (h *Handler) Transcribe(c *gin.Context) {
	var req transcriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}

	var variant database.ProcessingVariant
	if req.Variant != "" {
		v, err := database.ParseProcessingVariant(req.Variant)
		if err != nil {
			Common.RespondError(c, Errs.Wrap(Errs.KindValidation, "未知的处理方式", err))
			return
		}
		variant = v
	}

	text, err := h.transcriber.Transcribe(c.Request.Context(), req.AudioURL)
	if err != nil {
		if Errs.Is(err, Errs.KindValidation) {
			Common.RespondError(c, err)
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusOK, gin.H{
			"data":       gin.H{"text": ""},
			"notice":     Errs.Message(err),
			"error_kind": Errs.KindOf(err).String(),
		})
		return
	}

	data := gin.H{"text": text}
	body := gin.H{"data": data}
	if variant != "" && text != "" && h.processor != nil {
		result, err := h.processor.Process(c.Request.Context(), transcriptionNote(text, req.AudioURL, variant), variant)
		if err != nil {
			body["notice"] = Errs.Message(err)
			h.logger.Warn("转写结果处理失败", zap.Error(err))
		}
		data["processed"] = result
	}
	c.JSON(http.StatusOK, body)
}

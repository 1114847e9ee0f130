package Presence

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/Route/Common"
	"github.com/abdul977/whimsical-idea-keeper/service/Collaborator"
	"github.com/abdul977/whimsical-idea-keeper/service/Note"
	"github.com/abdul977/whimsical-idea-keeper/service/Presence"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// 客户端只发控制帧，消息体不会很大
	maxMessageSize = 512
)

type Handler struct {
	hub           *Presence.Hub
	notes         Note.NoteService
	collaborators Collaborator.CollaboratorService
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

// NewHandler allowedOrigins 为空时只允许同源
func NewHandler(hub *Presence.Hub, notes Note.NoteService, collaborators Collaborator.CollaboratorService, allowedOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	h := &Handler{hub: hub, notes: notes, collaborators: collaborators, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}
			return origins[origin]
		},
	}
	return h
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/notes/:id/presence", h.Present)
	api.GET("/notes/:id/presence/ws", h.Connect)
}

// authorize 只有 owner 和协作者可以查看在线状态
func (h *Handler) authorize(c *gin.Context) (uint, uint, bool) {
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
	role, err := h.notes.Access(c.Request.Context(), session.UserID, noteID)
	if err != nil {
		Common.RespondError(c, err)
		return 0, 0, false
	}
	if !role.CanRead() {
		Common.RespondError(c, Note.ErrForbidden)
		return 0, 0, false
	}
	return session.UserID, noteID, true
}

func (h *Handler) Present(c *gin.Context) {
	_, noteID, ok := h.authorize(c)
	if !ok {
		return
	}
	users, err := h.hub.Present(c.Request.Context(), noteID)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": Presence.Event{Type: Presence.EventSync, NoteID: noteID, UserIDs: users}})
}

// Connect 升级为 WebSocket，连接期间保持在线，断开即离开
func (h *Handler) Connect(c *gin.Context) {
	userID, noteID, ok := h.authorize(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写过响应
		h.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	// 连接的生命周期独立于请求上下文
	ctx := context.Background()
	sub, err := h.hub.Join(ctx, noteID, userID)
	if err != nil {
		h.logger.Error("加入在线列表失败", zap.Uint("note_id", noteID), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "presence unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	if err := h.collaborators.Touch(ctx, noteID, userID); err != nil {
		h.logger.Warn("更新协作者活跃时间失败", zap.Error(err))
	}

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)

	if err := h.hub.Leave(ctx, sub); err != nil {
		h.logger.Warn("离开在线列表失败", zap.Uint("note_id", noteID), zap.Error(err))
	}
	conn.Close()
}

// readPump 丢弃客户端消息，只用来感知断开和回应 pong
func (h *Handler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub *Presence.Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if err := h.hub.Refresh(context.Background(), sub.NoteID); err != nil {
				h.logger.Warn("续期在线状态失败", zap.Uint("note_id", sub.NoteID), zap.Error(err))
			}
		}
	}
}

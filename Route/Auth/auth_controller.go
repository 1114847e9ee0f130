package Auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/Route/Common"
	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Auth"
)

type Handler struct {
	users    Auth.UserService
	sessions *Auth.SessionService
	logger   *zap.Logger
	// secureCookie 生产环境走 HTTPS 时开启
	secureCookie bool
}

func NewHandler(users Auth.UserService, sessions *Auth.SessionService, logger *zap.Logger, secureCookie bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, sessions: sessions, logger: logger, secureCookie: secureCookie}
}

// Register 用户注册，成功后直接登录
func (h *Handler) Register(c *gin.Context) {
	var req database.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	h.startSession(c, user, http.StatusCreated, "注册成功")
}

// Login 用户名或邮箱登录
func (h *Handler) Login(c *gin.Context) {
	var req database.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Common.BadRequest(c, err)
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	h.startSession(c, user, http.StatusOK, "登录成功")
}

func (h *Handler) startSession(c *gin.Context, user *database.User, status int, message string) {
	token, session, err := h.sessions.Start(user)
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetCookie(CookieName, token, maxAge, "/", "", h.secureCookie, true)
	c.JSON(status, database.LoginResponse{
		Message: message,
		Token:   token,
		User:    database.NewUserResponse(user),
	})
}

// Logout 吊销当前会话，没有有效令牌时只清除 Cookie
func (h *Handler) Logout(c *gin.Context) {
	if token, err := extractToken(c); err == nil {
		if session, err := h.sessions.Authenticate(c.Request.Context(), token); err == nil {
			if err := h.sessions.End(c.Request.Context(), session); err != nil {
				h.logger.Warn("吊销会话失败", zap.String("session_id", session.ID), zap.Error(err))
			}
		}
	}

	c.SetCookie(CookieName, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "已退出登录"})
}

// Me 当前用户信息
func (h *Handler) Me(c *gin.Context) {
	session, err := Common.CurrentSession(c)
	if err != nil {
		Common.RespondError(c, err)
		return
	}

	user, err := h.users.GetUserByID(c.Request.Context(), session.UserID)
	if err != nil {
		Common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user":       database.NewUserResponse(user),
		"session_id": session.ID,
		"expires_at": session.ExpiresAt,
	}})
}

package Auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/abdul977/whimsical-idea-keeper/Route/Common"
	"github.com/abdul977/whimsical-idea-keeper/service/Auth"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
)

const (
	CookieName = "access_token"
	// queryToken WebSocket 握手无法自定义请求头
	queryToken = "access_token"
)

var (
	errMissingToken = Errs.New(Errs.KindUnauthorized, "未提供认证令牌")
	errTokenFormat  = Errs.New(Errs.KindUnauthorized, "认证令牌格式错误")
)

// allowQueryToken 只有在线状态的 WebSocket 握手可以用查询参数带令牌
func allowQueryToken(c *gin.Context) bool {
	return websocket.IsWebSocketUpgrade(c.Request) && strings.HasSuffix(c.FullPath(), "/presence/ws")
}

// extractToken 依次检查 Authorization 头、Cookie、WebSocket 握手的查询参数
func extractToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", errTokenFormat
		}
		return parts[1], nil
	}
	if token, err := c.Cookie(CookieName); err == nil && token != "" {
		return token, nil
	}
	if !allowQueryToken(c) {
		return "", errMissingToken
	}
	if token := c.Query(queryToken); token != "" {
		return token, nil
	}
	return "", errMissingToken
}

// AuthMiddleware 校验令牌并把 *Auth.Session 放入上下文
func AuthMiddleware(sessions *Auth.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			Common.RespondError(c, err)
			return
		}

		session, err := sessions.Authenticate(c.Request.Context(), token)
		if err != nil {
			Common.RespondError(c, err)
			return
		}

		Common.SetSession(c, session)
		c.Next()
	}
}

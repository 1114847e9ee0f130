// Package Common 路由层共用：错误响应、会话读取、中间件
package Common

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/abdul977/whimsical-idea-keeper/service/Auth"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
)

const (
	SessionKey = "session"
	// StatusClientClosedRequest 客户端断开时使用
	StatusClientClosedRequest = 499
)

var ErrNoSession = Errs.New(Errs.KindUnauthorized, "未认证")

// StatusOf 错误类型对应的 HTTP 状态码
func StatusOf(err error) int {
	switch Errs.KindOf(err) {
	case Errs.KindValidation:
		return http.StatusBadRequest
	case Errs.KindUnauthorized:
		return http.StatusUnauthorized
	case Errs.KindForbidden:
		return http.StatusForbidden
	case Errs.KindNotFound:
		return http.StatusNotFound
	case Errs.KindConflict:
		return http.StatusConflict
	case Errs.KindUpstream:
		return http.StatusBadGateway
	case Errs.KindTimeout:
		return http.StatusGatewayTimeout
	case Errs.KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError 内部错误只返回通用信息，细节交给日志中间件
func RespondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusOf(err), gin.H{"error": Errs.Message(err)})
}

func BadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
}

func SetSession(c *gin.Context, session *Auth.Session) {
	c.Set(SessionKey, session)
}

// CurrentSession 认证中间件之后的处理函数使用
func CurrentSession(c *gin.Context) (*Auth.Session, error) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, ErrNoSession
	}
	session, ok := v.(*Auth.Session)
	if !ok || session == nil {
		return nil, ErrNoSession
	}
	return session, nil
}

// ParamID 解析路径里的正整数ID
func ParamID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, Errs.Validation("无效的ID: " + c.Param(name))
	}
	return uint(id), nil
}

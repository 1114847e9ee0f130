package Auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"

	"github.com/abdul977/whimsical-idea-keeper/database"
)

// Session 登录会话，登录时创建，登出时吊销；通过中间件显式传给每个处理函数
type Session struct {
	ID        string    `json:"session_id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Claims struct {
	UserID   uint   `json:"uid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("SECRET_KEY 未配置")
	}
	if ttl <= 0 {
		return nil, errors.New("令牌有效期必须大于0")
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue 生成JWT令牌，jti 使用 ULID 作为会话ID
func (m *TokenManager) Issue(user *database.User) (string, *Session, error) {
	now := m.now()
	session := &Session{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("签名令牌失败: %w", err)
	}
	return signed, session, nil
}

// Parse 验证JWT令牌
func (m *TokenManager) Parse(tokenString string) (*Session, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.ID == "" || claims.UserID == 0 {
		return nil, errors.New("令牌缺少会话信息")
	}

	session := &Session{
		ID:       claims.ID,
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

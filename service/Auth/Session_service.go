package Auth

import (
	"context"
	"fmt"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
)

var (
	ErrInvalidToken   = Errs.New(Errs.KindUnauthorized, "认证令牌无效或已过期")
	ErrSessionRevoked = Errs.New(Errs.KindUnauthorized, "会话已退出，请重新登录")
)

// SessionService 会话的创建、校验与吊销
type SessionService struct {
	tokens  *TokenManager
	revoked RevocationStore
}

func NewSessionService(tokens *TokenManager, revoked RevocationStore) *SessionService {
	if revoked == nil {
		revoked = NewMemoryRevocationStore()
	}
	return &SessionService{tokens: tokens, revoked: revoked}
}

func (s *SessionService) Start(user *database.User) (string, *Session, error) {
	return s.tokens.Issue(user)
}

func (s *SessionService) Authenticate(ctx context.Context, token string) (*Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		return nil, Errs.Wrap(Errs.KindUnauthorized, ErrInvalidToken.Msg, err)
	}
	revoked, err := s.revoked.IsRevoked(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("查询会话状态失败: %w", err)
	}
	if revoked {
		return nil, ErrSessionRevoked
	}
	return session, nil
}

func (s *SessionService) End(ctx context.Context, session *Session) error {
	if session == nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, session.ID, session.ExpiresAt); err != nil {
		return fmt.Errorf("吊销会话失败: %w", err)
	}
	return nil
}

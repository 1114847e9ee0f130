// Package Collaborator 笔记协作者管理，只有笔记 owner 可以邀请、移除和修改权限
package Collaborator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Auth"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
	"github.com/abdul977/whimsical-idea-keeper/service/Note"
)

var (
	ErrAlreadyCollaborator = Errs.New(Errs.KindConflict, "该用户已经是协作者")
	ErrNotCollaborator     = Errs.New(Errs.KindNotFound, "协作者不存在")
	ErrInviteOwner         = Errs.Validation("不能邀请笔记所有者")
	ErrInvalidPermission   = Errs.Validation("权限只能是 view 或 edit")
	ErrMissingInvitee      = Errs.Validation("需要提供 user_id 或 email")
	ErrOwnerOnly           = Errs.New(Errs.KindForbidden, "只有笔记所有者可以管理协作者")
)

type CollaboratorService interface {
	Invite(ctx context.Context, actorID, noteID uint, req database.InviteCollaboratorRequest) (*database.Collaborator, error)
	Remove(ctx context.Context, actorID, noteID, userID uint) error
	UpdatePermission(ctx context.Context, actorID, noteID, userID uint, permission database.Permission) (*database.Collaborator, error)
	List(ctx context.Context, actorID, noteID uint) ([]database.Collaborator, error)
	// Touch 更新最后活跃时间，不是协作者时什么都不做
	Touch(ctx context.Context, noteID, userID uint) error
}

type collaboratorService struct {
	db     *gorm.DB
	notes  Note.NoteService
	users  Auth.UserService
	logger *zap.Logger
	now    func() time.Time
}

func NewCollaboratorService(db *gorm.DB, notes Note.NoteService, users Auth.UserService, logger *zap.Logger) (CollaboratorService, error) {
	if db == nil || notes == nil || users == nil {
		return nil, errors.New("协作者服务依赖不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &collaboratorService{db: db, notes: notes, users: users, logger: logger, now: time.Now}, nil
}

func (s *collaboratorService) requireOwner(ctx context.Context, actorID, noteID uint) error {
	role, err := s.notes.Access(ctx, actorID, noteID)
	if err != nil {
		return err
	}
	if !role.IsOwner() {
		return ErrOwnerOnly
	}
	return nil
}

func (s *collaboratorService) resolveInvitee(ctx context.Context, req database.InviteCollaboratorRequest) (*database.User, error) {
	switch {
	case req.UserID != 0:
		return s.users.GetUserByID(ctx, req.UserID)
	case strings.TrimSpace(req.Email) != "":
		return s.users.GetUserByEmail(ctx, req.Email)
	default:
		return nil, ErrMissingInvitee
	}
}

// defaultDisplayName 邮箱 @ 之前的部分
func defaultDisplayName(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

func (s *collaboratorService) Invite(ctx context.Context, actorID, noteID uint, req database.InviteCollaboratorRequest) (*database.Collaborator, error) {
	if !req.Permission.Valid() {
		return nil, ErrInvalidPermission
	}
	if err := s.requireOwner(ctx, actorID, noteID); err != nil {
		return nil, err
	}

	user, err := s.resolveInvitee(ctx, req)
	if err != nil {
		return nil, err
	}
	if user.ID == actorID {
		return nil, ErrInviteOwner
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Collaborator{}).
		Where("note_id = ? AND user_id = ?", noteID, user.ID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("查询协作者失败: %w", err)
	}
	if count > 0 {
		return nil, ErrAlreadyCollaborator
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName(user.Email)
	}
	collaborator := &database.Collaborator{
		NoteID:      noteID,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: displayName,
		Permission:  req.Permission,
		JoinedAt:    s.now(),
	}
	// 并发重复邀请由唯一索引兜底
	if err := s.db.WithContext(ctx).Create(collaborator).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyCollaborator
		}
		return nil, fmt.Errorf("添加协作者失败: %w", err)
	}

	s.logger.Info("已邀请协作者",
		zap.Uint("note_id", noteID),
		zap.Uint("user_id", user.ID),
		zap.String("permission", string(req.Permission)))
	return collaborator, nil
}

func (s *collaboratorService) Remove(ctx context.Context, actorID, noteID, userID uint) error {
	if err := s.requireOwner(ctx, actorID, noteID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Where("note_id = ? AND user_id = ?", noteID, userID).Delete(&database.Collaborator{})
	if result.Error != nil {
		return fmt.Errorf("移除协作者失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotCollaborator
	}
	s.logger.Info("已移除协作者", zap.Uint("note_id", noteID), zap.Uint("user_id", userID))
	return nil
}

func (s *collaboratorService) UpdatePermission(ctx context.Context, actorID, noteID, userID uint, permission database.Permission) (*database.Collaborator, error) {
	if !permission.Valid() {
		return nil, ErrInvalidPermission
	}
	if err := s.requireOwner(ctx, actorID, noteID); err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).Model(&database.Collaborator{}).
		Where("note_id = ? AND user_id = ?", noteID, userID).
		Update("permission", permission)
	if result.Error != nil {
		return nil, fmt.Errorf("修改协作者权限失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotCollaborator
	}
	return s.find(ctx, noteID, userID)
}

func (s *collaboratorService) find(ctx context.Context, noteID, userID uint) (*database.Collaborator, error) {
	var collaborator database.Collaborator
	err := s.db.WithContext(ctx).Where("note_id = ? AND user_id = ?", noteID, userID).First(&collaborator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotCollaborator
		}
		return nil, fmt.Errorf("查询协作者失败: %w", err)
	}
	return &collaborator, nil
}

// List 能读笔记的用户都可以查看协作者列表
func (s *collaboratorService) List(ctx context.Context, actorID, noteID uint) ([]database.Collaborator, error) {
	role, err := s.notes.Access(ctx, actorID, noteID)
	if err != nil {
		return nil, err
	}
	if !role.CanRead() {
		return nil, Note.ErrForbidden
	}

	var collaborators []database.Collaborator
	err = s.db.WithContext(ctx).Where("note_id = ?", noteID).Order("joined_at ASC").Order("id ASC").Find(&collaborators).Error
	if err != nil {
		return nil, fmt.Errorf("查询协作者列表失败: %w", err)
	}
	return collaborators, nil
}

func (s *collaboratorService) Touch(ctx context.Context, noteID, userID uint) error {
	err := s.db.WithContext(ctx).Model(&database.Collaborator{}).
		Where("note_id = ? AND user_id = ?", noteID, userID).
		Update("last_active", s.now()).Error
	if err != nil {
		return fmt.Errorf("更新协作者活跃时间失败: %w", err)
	}
	return nil
}

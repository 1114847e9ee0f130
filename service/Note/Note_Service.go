package Note

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
	"github.com/abdul977/whimsical-idea-keeper/service/Search"
)

var (
	ErrNoteNotFound  = Errs.New(Errs.KindNotFound, "笔记不存在")
	ErrForbidden     = Errs.New(Errs.KindForbidden, "无权限操作该笔记")
	ErrEmptyTitle    = Errs.Validation("标题不能为空")
	ErrEmptyEntries  = Errs.Validation("至少需要一条有内容的条目")
	ErrShareNotFound = Errs.New(Errs.KindNotFound, "分享链接不存在或已失效")
)

// Actor 发起操作的用户，Username 记录到版本历史
type Actor struct {
	UserID   uint
	Username string
}

// Role 用户对某篇笔记的权限
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleOwner
)

func (r Role) CanRead() bool { return r >= RoleViewer }
func (r Role) CanEdit() bool { return r >= RoleEditor }
func (r Role) IsOwner() bool { return r == RoleOwner }

type NoteService interface {
	Create(ctx context.Context, actor Actor, req database.SaveNoteRequest) (*database.Note, error)
	Update(ctx context.Context, actor Actor, noteID uint, req database.SaveNoteRequest) (*database.Note, error)
	Delete(ctx context.Context, userID, noteID uint) error
	Get(ctx context.Context, userID, noteID uint) (*database.Note, error)
	// List 自己的和别人共享的笔记，按更新时间倒序
	List(ctx context.Context, userID uint) ([]database.Note, error)
	Versions(ctx context.Context, userID, noteID uint) ([]database.ContentVersion, error)
	CreateShareToken(ctx context.Context, userID, noteID uint) (string, error)
	RevokeShareToken(ctx context.Context, userID, noteID uint) error
	GetByShareToken(ctx context.Context, token string) (*database.Note, error)
	Search(ctx context.Context, userID uint, query string) ([]database.Note, error)
	Access(ctx context.Context, userID, noteID uint) (Role, error)
}

type noteService struct {
	db     *gorm.DB
	index  Search.Indexer
	logger *zap.Logger
	now    func() time.Time
}

func NewNoteService(db *gorm.DB, index Search.Indexer, logger *zap.Logger) (NoteService, error) {
	if db == nil {
		return nil, errors.New("数据库连接不能为空")
	}
	if index == nil {
		index = Search.NopIndexer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &noteService{db: db, index: index, logger: logger, now: time.Now}, nil
}

// Validate 在任何数据库操作之前校验，返回清理后的条目（去掉全空条目，重排顺序）
func Validate(req database.SaveNoteRequest) (string, database.ProcessingVariant, []database.NoteEntry, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", "", nil, ErrEmptyTitle
	}
	variant, err := database.ParseProcessingVariant(req.ProcessingType)
	if err != nil {
		return "", "", nil, Errs.Wrap(Errs.KindValidation, "未知的处理方式", err)
	}

	entries := make([]database.NoteEntry, 0, len(req.Entries))
	for _, in := range req.Entries {
		entry := database.NoteEntry{
			Content:            in.Content,
			AudioURL:           strings.TrimSpace(in.AudioURL),
			AudioTranscription: in.AudioTranscription,
		}
		if !entry.HasContent() {
			continue
		}
		entry.EntryOrder = len(entries)
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return "", "", nil, ErrEmptyEntries
	}
	return title, variant, entries, nil
}

// combinedContent 版本历史里保存的合并内容
func combinedContent(entries []database.NoteEntry) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if s := strings.TrimSpace(entry.Content); s != "" {
			parts = append(parts, s)
		}
		if entry.AudioURL != "" {
			parts = append(parts, "[Audio: "+entry.AudioURL+"]")
		}
	}
	return strings.Join(parts, "\n\n")
}

func (s *noteService) Create(ctx context.Context, actor Actor, req database.SaveNoteRequest) (*database.Note, error) {
	title, variant, entries, err := Validate(req)
	if err != nil {
		return nil, err
	}

	note := &database.Note{
		OwnerID:        actor.UserID,
		Title:          title,
		ProcessingType: variant,
		Entries:        entries,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(note).Error; err != nil {
			return fmt.Errorf("创建笔记失败: %w", err)
		}
		return s.recordVersion(tx, note.ID, actor.Username, entries)
	})
	if err != nil {
		return nil, err
	}

	s.reindex(ctx, note)
	s.logger.Info("笔记已创建", zap.Uint("note_id", note.ID), zap.Uint("owner_id", actor.UserID), zap.Int("entries", len(entries)))
	return s.Get(ctx, actor.UserID, note.ID)
}

// Update 整体替换条目，owner 和 edit 协作者可用
func (s *noteService) Update(ctx context.Context, actor Actor, noteID uint, req database.SaveNoteRequest) (*database.Note, error) {
	title, variant, entries, err := Validate(req)
	if err != nil {
		return nil, err
	}

	role, err := s.Access(ctx, actor.UserID, noteID)
	if err != nil {
		return nil, err
	}
	if !role.CanEdit() {
		return nil, ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&database.Note{}).Where("id = ?", noteID).Updates(map[string]interface{}{
			"title":           title,
			"processing_type": variant,
			"updated_at":      s.now(),
		})
		if result.Error != nil {
			return fmt.Errorf("更新笔记失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNoteNotFound
		}
		if err := tx.Where("note_id = ?", noteID).Delete(&database.NoteEntry{}).Error; err != nil {
			return fmt.Errorf("删除旧条目失败: %w", err)
		}
		for i := range entries {
			entries[i].NoteID = noteID
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("保存条目失败: %w", err)
		}
		return s.recordVersion(tx, noteID, actor.Username, entries)
	})
	if err != nil {
		return nil, err
	}

	note, err := s.Get(ctx, actor.UserID, noteID)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, note)
	return note, nil
}

func (s *noteService) recordVersion(tx *gorm.DB, noteID uint, author string, entries []database.NoteEntry) error {
	version := database.ContentVersion{
		NoteID:    noteID,
		Content:   combinedContent(entries),
		Author:    author,
		Timestamp: s.now(),
	}
	if err := tx.Create(&version).Error; err != nil {
		return fmt.Errorf("保存版本失败: %w", err)
	}
	return nil
}

// Delete 只有 owner 可以删除，连同条目、协作者、版本一起删
func (s *noteService) Delete(ctx context.Context, userID, noteID uint) error {
	role, err := s.Access(ctx, userID, noteID)
	if err != nil {
		return err
	}
	if !role.IsOwner() {
		return ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&database.NoteEntry{}, &database.Collaborator{}, &database.ContentVersion{}} {
			if err := tx.Where("note_id = ?", noteID).Delete(model).Error; err != nil {
				return fmt.Errorf("删除笔记关联数据失败: %w", err)
			}
		}
		if err := tx.Delete(&database.Note{}, noteID).Error; err != nil {
			return fmt.Errorf("删除笔记失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.index.RemoveNote(ctx, noteID); err != nil {
		s.logger.Warn("删除搜索索引失败", zap.Uint("note_id", noteID), zap.Error(err))
	}
	s.logger.Info("笔记已删除", zap.Uint("note_id", noteID), zap.Uint("user_id", userID))
	return nil
}

func (s *noteService) Get(ctx context.Context, userID, noteID uint) (*database.Note, error) {
	role, err := s.Access(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if !role.CanRead() {
		return nil, ErrForbidden
	}
	return s.load(ctx, noteID, true)
}

func (s *noteService) load(ctx context.Context, noteID uint, withCollaborators bool) (*database.Note, error) {
	query := s.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("entry_order ASC") })
	if withCollaborators {
		query = query.Preload("Collaborators", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") })
	}

	var note database.Note
	if err := query.First(&note, noteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("查询笔记失败: %w", err)
	}
	return &note, nil
}

// Access 不存在的笔记返回 not found，与笔记无关的用户返回 RoleNone
func (s *noteService) Access(ctx context.Context, userID, noteID uint) (Role, error) {
	var note database.Note
	err := s.db.WithContext(ctx).Select("id", "owner_id").First(&note, noteID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoleNone, ErrNoteNotFound
		}
		return RoleNone, fmt.Errorf("查询笔记失败: %w", err)
	}
	if note.OwnerID == userID {
		return RoleOwner, nil
	}

	var collaborator database.Collaborator
	err = s.db.WithContext(ctx).Where("note_id = ? AND user_id = ?", noteID, userID).First(&collaborator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoleNone, nil
		}
		return RoleNone, fmt.Errorf("查询协作者失败: %w", err)
	}
	if collaborator.Permission == database.PermissionEdit {
		return RoleEditor, nil
	}
	return RoleViewer, nil
}

func (s *noteService) accessibleQuery(ctx context.Context, userID uint) *gorm.DB {
	shared := s.db.Model(&database.Collaborator{}).Select("note_id").Where("user_id = ?", userID)
	return s.db.WithContext(ctx).
		Where("(owner_id = ? OR id IN (?))", userID, shared).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("entry_order ASC") }).
		Preload("Collaborators")
}

func (s *noteService) List(ctx context.Context, userID uint) ([]database.Note, error) {
	var notes []database.Note
	if err := s.accessibleQuery(ctx, userID).Order("created_at DESC").Order("id DESC").Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("查询笔记列表失败: %w", err)
	}
	return notes, nil
}

func (s *noteService) Versions(ctx context.Context, userID, noteID uint) ([]database.ContentVersion, error) {
	role, err := s.Access(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if !role.CanRead() {
		return nil, ErrForbidden
	}

	var versions []database.ContentVersion
	err = s.db.WithContext(ctx).Where("note_id = ?", noteID).Order("timestamp ASC").Order("id ASC").Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("查询版本历史失败: %w", err)
	}
	return versions, nil
}

// CreateShareToken 已有 token 时直接返回
func (s *noteService) CreateShareToken(ctx context.Context, userID, noteID uint) (string, error) {
	role, err := s.Access(ctx, userID, noteID)
	if err != nil {
		return "", err
	}
	if !role.IsOwner() {
		return "", ErrForbidden
	}

	note, err := s.load(ctx, noteID, false)
	if err != nil {
		return "", err
	}
	if note.SharingToken != nil && *note.SharingToken != "" {
		return *note.SharingToken, nil
	}

	token := uuid.NewString()
	if err := s.db.WithContext(ctx).Model(&database.Note{}).Where("id = ?", noteID).Update("sharing_token", token).Error; err != nil {
		return "", fmt.Errorf("生成分享链接失败: %w", err)
	}
	s.logger.Info("笔记已分享", zap.Uint("note_id", noteID))
	return token, nil
}

func (s *noteService) RevokeShareToken(ctx context.Context, userID, noteID uint) error {
	role, err := s.Access(ctx, userID, noteID)
	if err != nil {
		return err
	}
	if !role.IsOwner() {
		return ErrForbidden
	}
	if err := s.db.WithContext(ctx).Model(&database.Note{}).Where("id = ?", noteID).Update("sharing_token", nil).Error; err != nil {
		return fmt.Errorf("取消分享失败: %w", err)
	}
	return nil
}

// GetByShareToken 公开只读，不返回协作者信息
func (s *noteService) GetByShareToken(ctx context.Context, token string) (*database.Note, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrShareNotFound
	}

	var note database.Note
	err := s.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("entry_order ASC") }).
		Where("sharing_token = ?", token).First(&note).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("查询分享笔记失败: %w", err)
	}
	note.SharingToken = nil
	return &note, nil
}

// Search 索引命中后再按权限过滤，保持相关度顺序
func (s *noteService) Search(ctx context.Context, userID uint, query string) ([]database.Note, error) {
	if strings.TrimSpace(query) == "" {
		return s.List(ctx, userID)
	}
	var accessible []uint
	shared := s.db.Model(&database.Collaborator{}).Select("note_id").Where("user_id = ?", userID)
	err := s.db.WithContext(ctx).Model(&database.Note{}).
		Where("(owner_id = ? OR id IN (?))", userID, shared).
		Pluck("id", &accessible).Error
	if err != nil {
		return nil, fmt.Errorf("查询可访问笔记失败: %w", err)
	}
	if len(accessible) == 0 {
		return []database.Note{}, nil
	}

	ids, err := s.index.Search(ctx, query, accessible, 0)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []database.Note{}, nil
	}

	var notes []database.Note
	if err := s.accessibleQuery(ctx, userID).Where("id IN ?", ids).Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("搜索笔记失败: %w", err)
	}

	rank := make(map[uint]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return rank[notes[i].ID] < rank[notes[j].ID]
	})
	return notes, nil
}

func (s *noteService) reindex(ctx context.Context, note *database.Note) {
	if err := s.index.IndexNote(ctx, note); err != nil {
		s.logger.Warn("更新搜索索引失败", zap.Uint("note_id", note.ID), zap.Error(err))
	}
}

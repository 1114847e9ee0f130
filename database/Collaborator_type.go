package database

import "time"

type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// Collaborator (note_id, user_id) 唯一，重复邀请由数据库拒绝
type Collaborator struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	NoteID      uint       `gorm:"not null;uniqueIndex:idx_note_collaborator" json:"note_id"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_note_collaborator;index" json:"user_id"`
	Email       string     `gorm:"size:100" json:"email,omitempty"`
	DisplayName string     `gorm:"size:100" json:"display_name,omitempty"`
	Permission  Permission `gorm:"size:10;not null" json:"permission"`
	JoinedAt    time.Time  `gorm:"not null" json:"joined_at"`
	LastActive  *time.Time `json:"last_active,omitempty"`
}

func (Collaborator) TableName() string {
	return "note_collaborators"
}

// InviteCollaboratorRequest user_id 和 email 二选一
type InviteCollaboratorRequest struct {
	UserID      uint       `json:"user_id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Permission  Permission `json:"permission" binding:"required,oneof=view edit"`
}

type UpdatePermissionRequest struct {
	Permission Permission `json:"permission" binding:"required,oneof=view edit"`
}

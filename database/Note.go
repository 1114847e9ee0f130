package database

import (
	"fmt"
	"strings"
	"time"
)

// ProcessingVariant AI 处理方式
type ProcessingVariant string

const (
	VariantActionable ProcessingVariant = "actionable"
	VariantSummary    ProcessingVariant = "summary"
	VariantReasoning  ProcessingVariant = "reasoning"
	VariantGrammar    ProcessingVariant = "grammar"
)

// AllVariants 按界面展示顺序
var AllVariants = []ProcessingVariant{VariantActionable, VariantSummary, VariantReasoning, VariantGrammar}

func (v ProcessingVariant) Valid() bool {
	switch v {
	case VariantActionable, VariantSummary, VariantReasoning, VariantGrammar:
		return true
	}
	return false
}

// ParseProcessingVariant 空字符串返回默认的 summary
func ParseProcessingVariant(s string) (ProcessingVariant, error) {
	if strings.TrimSpace(s) == "" {
		return VariantSummary, nil
	}
	v := ProcessingVariant(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("未知的处理方式: %s", s)
	}
	return v, nil
}

type Note struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	OwnerID         uint              `gorm:"index;not null" json:"owner_id"`
	Title           string            `gorm:"size:255;not null" json:"title"`
	ProcessingType  ProcessingVariant `gorm:"size:20;not null;default:'summary'" json:"processing_type"`
	SharingToken    *string           `gorm:"size:64;uniqueIndex" json:"sharing_token,omitempty"`
	Entries         []NoteEntry       `gorm:"foreignKey:NoteID" json:"entries"`
	Collaborators   []Collaborator    `gorm:"foreignKey:NoteID" json:"collaborators"`
	ContentVersions []ContentVersion  `gorm:"foreignKey:NoteID" json:"content_versions,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NoteEntry 笔记条目，文字或音频
type NoteEntry struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	NoteID             uint      `gorm:"index;not null" json:"note_id"`
	Content            string    `gorm:"type:text" json:"content"`
	AudioURL           string    `gorm:"size:500" json:"audio_url,omitempty"`
	AudioTranscription string    `gorm:"type:text" json:"audio_transcription,omitempty"`
	EntryOrder         int       `gorm:"not null;default:0" json:"entry_order"`
	CreatedAt          time.Time `json:"created_at"`
}

// HasContent 有文字内容或者有音频
func (e NoteEntry) HasContent() bool {
	return strings.TrimSpace(e.Content) != "" || e.AudioURL != ""
}

// ContentVersion 每次保存记录一份合并后的内容
type ContentVersion struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	NoteID    uint      `gorm:"index;not null" json:"note_id"`
	Content   string    `gorm:"type:text" json:"content"`
	Author    string    `gorm:"size:50" json:"author"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

func (ContentVersion) TableName() string {
	return "note_content_versions"
}

// ========== 请求 ==========

type NoteEntryInput struct {
	Content            string `json:"content"`
	AudioURL           string `json:"audio_url"`
	AudioTranscription string `json:"audio_transcription"`
}

// SaveNoteRequest 创建和更新共用
type SaveNoteRequest struct {
	Title          string           `json:"title"`
	ProcessingType string           `json:"processing_type"`
	Entries        []NoteEntryInput `json:"entries"`
}

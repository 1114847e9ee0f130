// Package Reasoning 笔记的 AI 处理：远程大模型（默认）和本地统计两种策略，实现同一个 Processor 接口
package Reasoning

import (
	"context"
	"strings"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
)

const (
	StrategyRemote = "remote"
	StrategyLocal  = "local"
)

const (
	failedProcessedContent = "Unable to generate processed content"
	failedInsight          = "Unable to generate insights"
	failedSummary          = "Processing failed"
)

var (
	ErrEmptyNote      = Errs.Validation("笔记至少需要一个条目")
	ErrInvalidVariant = Errs.Validation("未知的处理方式")
)

// Result 处理结果，只在展示期间存在，不落库
type Result struct {
	OriginalNote     *database.Note             `json:"original_note"`
	ProcessedContent string                     `json:"processed_content"`
	Insights         []string                   `json:"insights"`
	Summary          string                     `json:"summary"`
	Variant          database.ProcessingVariant `json:"variant"`
	Strategy         string                     `json:"strategy"`
}

type Processor interface {
	Process(ctx context.Context, note *database.Note, variant database.ProcessingVariant) (*Result, error)
	Name() string
}

func validate(note *database.Note, variant database.ProcessingVariant) error {
	if note == nil || len(note.Entries) == 0 {
		return ErrEmptyNote
	}
	if !variant.Valid() {
		return ErrInvalidVariant
	}
	return nil
}

// CombineEntries 按条目顺序拼接内容，有音频时附加来源标记
func CombineEntries(entries []database.NoteEntry) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		part := entry.Content
		if entry.AudioURL != "" {
			part += "\n[Audio Source: " + entry.AudioURL + "]"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "\n\n")
}

// FailedResult 外部调用失败时的降级结果
func FailedResult(note *database.Note, variant database.ProcessingVariant, strategy string) *Result {
	return &Result{
		OriginalNote:     note,
		ProcessedContent: failedProcessedContent,
		Insights:         []string{failedInsight},
		Summary:          failedSummary,
		Variant:          variant,
		Strategy:         strategy,
	}
}

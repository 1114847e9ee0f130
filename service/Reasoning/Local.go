package Reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/abdul977/whimsical-idea-keeper/database"
)

const (
	detailedWordThreshold = 100
	summaryEntryLimit     = 3
	summaryWordLimit      = 10
)

// LocalProcessor 只做本地文本统计，不调用外部接口
type LocalProcessor struct{}

func NewLocalProcessor() *LocalProcessor {
	return &LocalProcessor{}
}

func (p *LocalProcessor) Name() string { return StrategyLocal }

func (p *LocalProcessor) Process(ctx context.Context, note *database.Note, variant database.ProcessingVariant) (*Result, error) {
	if err := validate(note, variant); err != nil {
		return nil, err
	}

	processed := make([]string, 0, len(note.Entries))
	for i, entry := range note.Entries {
		processed = append(processed, processEntry(entry, i+1))
	}

	return &Result{
		OriginalNote:     note,
		ProcessedContent: strings.Join(processed, "\n\n"),
		Insights:         NumberInsights(localInsights(note.Entries)),
		Summary:          localSummary(note.Entries),
		Variant:          variant,
		Strategy:         StrategyLocal,
	}, nil
}

func processEntry(entry database.NoteEntry, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entry %d:\n", n)
	if entry.Content != "" {
		fmt.Fprintf(&b, "Text: %s\n", entry.Content)
	}
	if entry.AudioURL != "" {
		fmt.Fprintf(&b, "Audio Source: %s\n", entry.AudioURL)
	}
	return b.String()
}

func localInsights(entries []database.NoteEntry) []string {
	withText, withAudio, words := 0, 0, 0
	for _, entry := range entries {
		if strings.TrimSpace(entry.Content) != "" {
			withText++
		}
		if entry.AudioURL != "" {
			withAudio++
		}
		words += len(strings.Fields(entry.Content))
	}

	insights := []string{
		fmt.Sprintf("Total Entries: %d", len(entries)),
		fmt.Sprintf("Entries with Text: %d", withText),
		fmt.Sprintf("Entries with Audio: %d", withAudio),
		fmt.Sprintf("Total Word Count: %d", words),
	}
	if words > detailedWordThreshold {
		insights = append(insights, "Note contains detailed and comprehensive information")
	}
	if keywords := DetectKeywords(entries); len(keywords) > 0 {
		insights = append(insights, "Key Topics: "+strings.Join(keywords, ", "))
	}
	return insights
}

func localSummary(entries []database.NoteEntry) string {
	if len(entries) == 0 {
		return "No content available for summarization."
	}
	if len(entries) > summaryEntryLimit {
		entries = entries[:summaryEntryLimit]
	}

	var parts []string
	for _, entry := range entries {
		words := strings.Fields(entry.Content)
		if len(words) > summaryWordLimit {
			words = words[:summaryWordLimit]
		}
		if len(words) > 0 {
			parts = append(parts, strings.Join(words, " "))
		}
	}
	if len(parts) == 0 {
		return "Note contains entries without text content."
	}
	return "Summary: " + strings.Join(parts, " ... ")
}

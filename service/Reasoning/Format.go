package Reasoning

import (
	"fmt"
	"strings"

	"github.com/abdul977/whimsical-idea-keeper/database"
)

var markdownStripper = strings.NewReplacer("*", "", "#", "", "_", "", "`", "")

// StripMarkdown 去掉强调符号
func StripMarkdown(s string) string {
	return markdownStripper.Replace(s)
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// FormatContent 按处理方式重排模型输出
func FormatContent(variant database.ProcessingVariant, content string) string {
	clean := strings.TrimSpace(StripMarkdown(content))

	switch variant {
	case database.VariantActionable:
		lines := nonEmptyLines(clean)
		for i, line := range lines {
			lines[i] = fmt.Sprintf("%d. %s", i+1, line)
		}
		return strings.Join(lines, "\n")
	case database.VariantSummary:
		lines := nonEmptyLines(clean)
		for i, line := range lines {
			lines[i] = "• " + line
		}
		return strings.Join(lines, "\n")
	case database.VariantReasoning:
		lines := nonEmptyLines(clean)
		for i, line := range lines {
			lines[i] = fmt.Sprintf("Insight %d: %s", i+1, line)
		}
		return strings.Join(lines, "\n\n")
	case database.VariantGrammar:
		return "Improved Text:\n\n" + clean
	default:
		return clean
	}
}

// NumberInsights 统一的 insights 格式："N. 内容"
func NumberInsights(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(StripMarkdown(line))
		if line == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%d. %s", len(out)+1, line))
	}
	return out
}

// ParseInsights 拆分第二次调用的输出
func ParseInsights(raw string) []string {
	insights := NumberInsights(strings.Split(raw, "\n"))
	if len(insights) == 0 {
		return []string{"1. No insights generated"}
	}
	return insights
}

// SummaryFromInsights 取前两条
func SummaryFromInsights(insights []string) string {
	if len(insights) > 2 {
		insights = insights[:2]
	}
	return strings.Join(insights, "\n")
}

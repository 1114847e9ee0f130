package Reasoning

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/abdul977/whimsical-idea-keeper/database"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
}

const (
	minKeywordLength = 4
	maxKeywords      = 3
)

// DetectKeywords 词频前三，频率相同按首次出现顺序
func DetectKeywords(entries []database.NoteEntry) []string {
	// Caser 有状态，不能跨 goroutine 共享
	lower := cases.Lower(language.Und)

	counts := make(map[string]int)
	var order []string
	for _, entry := range entries {
		for _, word := range strings.Fields(lower.String(entry.Content)) {
			if stopwords[word] || len([]rune(word)) < minKeywordLength {
				continue
			}
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}

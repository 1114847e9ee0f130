package Reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
	"github.com/abdul977/whimsical-idea-keeper/service/Outbound"
)

func sampleNote() *database.Note {
	return &database.Note{
		ID:    7,
		Title: "周会",
		Entries: []database.NoteEntry{
			{Content: "Review the quarterly budget and prepare budget slides", EntryOrder: 0},
			{Content: "Schedule budget meeting with finance", AudioURL: "http://localhost:8000/media/audio/a.mp3", EntryOrder: 1},
		},
	}
}

// fakeOpenAI 第一次调用（内容）和第二次调用（insights）按系统提示词区分
func fakeOpenAI(t *testing.T, content, insights string, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		reply := content
		if strings.HasPrefix(req.Messages[0].Content, "Extract key insights") {
			reply = insights
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
}

func TestCombineEntries(t *testing.T) {
	blob := CombineEntries(sampleNote().Entries)
	assert.Equal(t, "Review the quarterly budget and prepare budget slides\n\nSchedule budget meeting with finance\n[Audio Source: http://localhost:8000/media/audio/a.mp3]", blob)
}

func TestFormatContent(t *testing.T) {
	raw := "**First**\n\n# Second\n"
	tests := []struct {
		variant database.ProcessingVariant
		want    string
	}{
		{database.VariantActionable, "1. First\n2. Second"},
		{database.VariantSummary, "• First\n• Second"},
		{database.VariantReasoning, "Insight 1: First\n\nInsight 2: Second"},
		{database.VariantGrammar, "Improved Text:\n\nFirst\n\n Second"},
	}
	for _, tt := range tests {
		t.Run(string(tt.variant), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatContent(tt.variant, raw))
		})
	}
}

func TestParseInsights(t *testing.T) {
	assert.Equal(t, []string{"1. A", "2. B"}, ParseInsights("**A**\n\n`B`\n"))
	assert.Equal(t, []string{"1. No insights generated"}, ParseInsights("  \n\n"))
	assert.Equal(t, "1. A\n2. B", SummaryFromInsights([]string{"1. A", "2. B", "3. C"}))
}

func TestDetectKeywords(t *testing.T) {
	entries := []database.NoteEntry{
		{Content: "Apple banana apple the and cherry"},
		{Content: "banana APPLE durian cat dog"},
	}
	// apple 3 次, banana 2 次, cherry 与 durian 各 1 次，按首次出现取 cherry
	assert.Equal(t, []string{"apple", "banana", "cherry"}, DetectKeywords(entries))
	assert.Empty(t, DetectKeywords([]database.NoteEntry{{Content: "the a an cat"}}))
}

func TestDetectKeywordsTopThree(t *testing.T) {
	entries := []database.NoteEntry{{Content: "the quick fox"}, {Content: "the lazy fox sleeps"}}
	keywords := DetectKeywords(entries)
	assert.Len(t, keywords, 3)
	for _, k := range keywords {
		assert.Contains(t, []string{"quick", "lazy", "sleeps"}, k)
	}
}

func TestLocalProcessor(t *testing.T) {
	p := NewLocalProcessor()
	note := sampleNote()

	result, err := p.Process(context.Background(), note, database.VariantActionable)
	require.NoError(t, err)

	assert.Equal(t, StrategyLocal, result.Strategy)
	assert.Equal(t, database.VariantActionable, result.Variant)
	assert.Same(t, note, result.OriginalNote)
	assert.Equal(t,
		"Entry 1:\nText: Review the quarterly budget and prepare budget slides\n\n\nEntry 2:\nText: Schedule budget meeting with finance\nAudio Source: http://localhost:8000/media/audio/a.mp3\n",
		result.ProcessedContent)
	assert.Equal(t, []string{
		"1. Total Entries: 2",
		"2. Entries with Text: 2",
		"3. Entries with Audio: 1",
		"4. Total Word Count: 13",
		"5. Key Topics: budget, review, quarterly",
	}, result.Insights)
	assert.Equal(t, "Summary: Review the quarterly budget and prepare budget slides ... Schedule budget meeting with finance", result.Summary)
}

func TestLocalSummaryEdgeCases(t *testing.T) {
	assert.Equal(t, "No content available for summarization.", localSummary(nil))
	assert.Equal(t, "Note contains entries without text content.",
		localSummary([]database.NoteEntry{{AudioURL: "http://x/a.mp3"}}))

	long := strings.Repeat("word ", 12)
	assert.Equal(t, "Summary: "+strings.TrimSpace(strings.Repeat("word ", 10)),
		localSummary([]database.NoteEntry{{Content: long}}))
}

func TestLocalDetailedInsight(t *testing.T) {
	note := &database.Note{Entries: []database.NoteEntry{{Content: strings.Repeat("lorem ", 101)}}}
	result, err := NewLocalProcessor().Process(context.Background(), note, database.VariantSummary)
	require.NoError(t, err)
	assert.Contains(t, result.Insights, "5. Note contains detailed and comprehensive information")
}

func TestProcessorsRejectEmptyNote(t *testing.T) {
	var calls int32
	srv := fakeOpenAI(t, "x", "y", &calls)
	defer srv.Close()

	processors := []Processor{
		NewLocalProcessor(),
		NewRemoteProcessor(NewOpenAIClient("test-key", srv.URL+"/v1"), "", nil, Outbound.New(time.Second), nil),
	}
	for _, p := range processors {
		t.Run(p.Name(), func(t *testing.T) {
			_, err := p.Process(context.Background(), &database.Note{Title: "空"}, database.VariantSummary)
			assert.True(t, Errs.Is(err, Errs.KindValidation))

			_, err = p.Process(context.Background(), sampleNote(), "poetry")
			assert.True(t, Errs.Is(err, Errs.KindValidation))
		})
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRemoteProcessor(t *testing.T) {
	var calls int32
	srv := fakeOpenAI(t, "**Check budget**\n\nBook room\n", "Budget is tight\n\n## Meeting needed\nFinance owns it", &calls)
	defer srv.Close()

	p := NewRemoteProcessor(NewOpenAIClient("test-key", srv.URL+"/v1"), "", nil, Outbound.New(time.Second), nil)
	result, err := p.Process(context.Background(), sampleNote(), database.VariantActionable)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, StrategyRemote, result.Strategy)
	assert.Equal(t, "1. Check budget\n2. Book room", result.ProcessedContent)
	assert.Equal(t, []string{"1. Budget is tight", "2. Meeting needed", "3. Finance owns it"}, result.Insights)
	assert.Equal(t, "1. Budget is tight\n2. Meeting needed", result.Summary)
}

func TestRemoteProcessorKeepsVariant(t *testing.T) {
	var calls int32
	srv := fakeOpenAI(t, "line", "insight", &calls)
	defer srv.Close()

	p := NewRemoteProcessor(NewOpenAIClient("test-key", srv.URL+"/v1"), "", nil, Outbound.New(time.Second), nil)
	for _, variant := range database.AllVariants {
		result, err := p.Process(context.Background(), sampleNote(), variant)
		require.NoError(t, err)
		assert.Equal(t, variant, result.Variant)
	}
}

func TestRemoteProcessorEmptyCompletion(t *testing.T) {
	var calls int32
	srv := fakeOpenAI(t, "", "", &calls)
	defer srv.Close()

	want := map[database.ProcessingVariant]string{
		database.VariantActionable: "1. No content generated",
		database.VariantSummary:    "• No content generated",
		database.VariantReasoning:  "Insight 1: No content generated",
		database.VariantGrammar:    "Improved Text:\n\nNo content generated",
	}

	p := NewRemoteProcessor(NewOpenAIClient("test-key", srv.URL+"/v1"), "", nil, Outbound.New(time.Second), nil)
	for variant, expected := range want {
		result, err := p.Process(context.Background(), sampleNote(), variant)
		require.NoError(t, err)
		assert.Equal(t, expected, result.ProcessedContent, variant)
		assert.Equal(t, []string{"1. No insights generated"}, result.Insights)
	}
}

func TestRemoteProcessorWhitespaceCompletion(t *testing.T) {
	var calls int32
	srv := fakeOpenAI(t, "   ", "", &calls)
	defer srv.Close()

	p := NewRemoteProcessor(NewOpenAIClient("test-key", srv.URL+"/v1"), "", nil, Outbound.New(time.Second), nil)
	result, err := p.Process(context.Background(), sampleNote(), database.VariantGrammar)
	require.NoError(t, err)
	assert.Equal(t, "Improved Text:\n\n", result.ProcessedContent)
}

func TestRemoteProcessorUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	p := NewRemoteProcessor(NewOpenAIClient("test-key", srv.URL+"/v1"), "", nil, Outbound.New(time.Second), nil)
	result, err := p.Process(context.Background(), sampleNote(), database.VariantReasoning)

	require.Error(t, err)
	assert.True(t, Errs.Is(err, Errs.KindUpstream))
	require.NotNil(t, result)
	assert.Equal(t, "Unable to generate processed content", result.ProcessedContent)
	assert.Equal(t, []string{"Unable to generate insights"}, result.Insights)
	assert.Equal(t, "Processing failed", result.Summary)
	assert.Equal(t, database.VariantReasoning, result.Variant)
}

type blockingCompleter struct{}

func (blockingCompleter) CreateChatCompletion(ctx context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	<-ctx.Done()
	return openai.ChatCompletionResponse{}, ctx.Err()
}

func TestRemoteProcessorTimeoutAndCancel(t *testing.T) {
	p := NewRemoteProcessor(blockingCompleter{}, "", nil, Outbound.New(20*time.Millisecond), nil)

	_, err := p.Process(context.Background(), sampleNote(), database.VariantSummary)
	assert.True(t, Errs.Is(err, Errs.KindTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Process(ctx, sampleNote(), database.VariantSummary)
	assert.True(t, Errs.Is(err, Errs.KindCanceled))
}

func TestSelect(t *testing.T) {
	assert.Equal(t, StrategyLocal, Select(StrategyLocal, blockingCompleter{}, "key", "", nil, Outbound.New(0), nil).Name())
	assert.Equal(t, StrategyLocal, Select(StrategyRemote, blockingCompleter{}, "", "", nil, Outbound.New(0), nil).Name())
	assert.Equal(t, StrategyRemote, Select(StrategyRemote, blockingCompleter{}, "key", "", nil, Outbound.New(0), nil).Name())
}

func TestPromptManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("temperature: 0.2\nvariants:\n  summary: \"TL;DR {{content}}\"\n"), 0o600))

	pm, err := NewPromptManager(path, nil)
	require.NoError(t, err)

	set := pm.Current()
	assert.Equal(t, float32(0.2), set.Temperature)
	assert.Equal(t, 500, set.MaxTokens)
	assert.Equal(t, "TL;DR hello", set.VariantPrompt(database.VariantSummary, "hello"))
	assert.Equal(t, DefaultPromptSet().Variants[database.VariantGrammar], set.Variants[database.VariantGrammar])

	require.NoError(t, os.WriteFile(path, []byte("max_tokens: 64\n"), 0o600))
	require.NoError(t, pm.Reload())
	assert.Equal(t, 64, pm.Current().MaxTokens)
	assert.Equal(t, float32(0.7), pm.Current().Temperature)

	// 错误的文件不覆盖当前配置
	require.NoError(t, os.WriteFile(path, []byte("variants:\n  poetry: \"x\"\n"), 0o600))
	assert.Error(t, pm.Reload())
	assert.Equal(t, 64, pm.Current().MaxTokens)
}

func TestPromptManagerWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_tokens: 100\n"), 0o600))

	pm, err := NewPromptManager(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pm.Watch(ctx) }()

	// 等待监听建立后再修改
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("max_tokens: 200\n"), 0o600)
		return pm.Current().MaxTokens == 200
	}, 2*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestDefaultPrompts(t *testing.T) {
	set := DefaultPromptSet()
	assert.Equal(t, "Provide a concise and comprehensive summary of the following text. Highlight the key points, main ideas, and essential information.\n\nText: abc\n\nSummary:",
		set.VariantPrompt(database.VariantSummary, "abc"))
	assert.Equal(t, "Generate 3-5 key insights and a brief summary from this text:\n\nabc", set.InsightsUserPrompt("abc"))
}

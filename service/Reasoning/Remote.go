package Reasoning

import (
	"context"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Outbound"
)

const defaultModel = "llama3-8b-8192"

// ChatCompleter *openai.Client 满足该接口，测试可替换
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient 创建 OpenAI 兼容客户端，baseURL 为空时使用官方地址
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

// RemoteProcessor 每次处理两次模型调用：先按处理方式生成内容，再提取 insights
type RemoteProcessor struct {
	client  ChatCompleter
	model   string
	prompts *PromptManager
	policy  Outbound.Policy
	logger  *zap.Logger
}

func NewRemoteProcessor(client ChatCompleter, model string, prompts *PromptManager, policy Outbound.Policy, logger *zap.Logger) *RemoteProcessor {
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompts == nil {
		prompts, _ = NewPromptManager("", logger)
	}
	return &RemoteProcessor{
		client:  client,
		model:   model,
		prompts: prompts,
		policy:  policy,
		logger:  logger,
	}
}

func (p *RemoteProcessor) Name() string { return StrategyRemote }

// Process 外部调用失败时同时返回降级结果和分类后的错误
func (p *RemoteProcessor) Process(ctx context.Context, note *database.Note, variant database.ProcessingVariant) (*Result, error) {
	if err := validate(note, variant); err != nil {
		return nil, err
	}

	prompts := p.prompts.Current()
	blob := CombineEntries(note.Entries)

	content, err := p.complete(ctx, "AI 处理", prompts.SystemPrompt, prompts.VariantPrompt(variant, blob), prompts.Temperature, prompts.MaxTokens)
	if err != nil {
		p.logger.Warn("AI 处理失败", zap.Uint("note_id", note.ID), zap.String("variant", string(variant)), zap.Error(err))
		return FailedResult(note, variant, StrategyRemote), err
	}

	if content == "" {
		content = "No content generated"
	}
	processed := FormatContent(variant, content)

	raw, err := p.complete(ctx, "AI 洞察提取", prompts.InsightsSystemPrompt, prompts.InsightsUserPrompt(blob), prompts.InsightsTemperature, prompts.InsightsMaxTokens)
	if err != nil {
		p.logger.Warn("AI 洞察提取失败", zap.Uint("note_id", note.ID), zap.Error(err))
		return FailedResult(note, variant, StrategyRemote), err
	}
	insights := ParseInsights(raw)

	return &Result{
		OriginalNote:     note,
		ProcessedContent: processed,
		Insights:         insights,
		Summary:          SummaryFromInsights(insights),
		Variant:          variant,
		Strategy:         StrategyRemote,
	}, nil
}

func (p *RemoteProcessor) complete(ctx context.Context, op, system, user string, temperature float32, maxTokens int) (string, error) {
	var content string
	err := p.policy.Do(ctx, op, func(ctx context.Context) error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) > 0 {
			content = resp.Choices[0].Message.Content
		}
		return nil
	})
	return content, err
}

// Select 按配置选择策略，remote 缺少 API Key 时退回本地
func Select(kind string, client ChatCompleter, apiKey, model string, prompts *PromptManager, policy Outbound.Policy, logger *zap.Logger) Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if kind == StrategyLocal {
		return NewLocalProcessor()
	}
	if apiKey == "" || client == nil {
		logger.Warn("未配置 AI_API_KEY，使用本地处理器")
		return NewLocalProcessor()
	}
	return NewRemoteProcessor(client, model, prompts, policy, logger)
}

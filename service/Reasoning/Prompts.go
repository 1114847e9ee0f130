package Reasoning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/abdul977/whimsical-idea-keeper/database"
)

const contentPlaceholder = "{{content}}"

// PromptSet 模型调用用到的全部提示词和参数
type PromptSet struct {
	SystemPrompt         string                                `yaml:"system_prompt"`
	Temperature          float32                               `yaml:"temperature"`
	MaxTokens            int                                   `yaml:"max_tokens"`
	InsightsSystemPrompt string                                `yaml:"insights_system_prompt"`
	InsightsPrompt       string                                `yaml:"insights_prompt"`
	InsightsTemperature  float32                               `yaml:"insights_temperature"`
	InsightsMaxTokens    int                                   `yaml:"insights_max_tokens"`
	Variants             map[database.ProcessingVariant]string `yaml:"variants"`
}

func DefaultPromptSet() PromptSet {
	return PromptSet{
		SystemPrompt: "You are a helpful AI assistant specialized in processing text with various analytical techniques. Provide clear, concise output.",
		Temperature:  0.7,
		MaxTokens:    500,

		InsightsSystemPrompt: "Extract key insights and generate a summary from the given text. Use clear, concise language.",
		InsightsPrompt:       "Generate 3-5 key insights and a brief summary from this text:\n\n" + contentPlaceholder,
		InsightsTemperature:  0.5,
		InsightsMaxTokens:    300,

		Variants: map[database.ProcessingVariant]string{
			database.VariantActionable: "Convert the following text into a clear, structured list of actionable steps. Ensure each step is specific, measurable, and practical.\n\nText: " + contentPlaceholder + "\n\nActionable Steps:",
			database.VariantSummary:    "Provide a concise and comprehensive summary of the following text. Highlight the key points, main ideas, and essential information.\n\nText: " + contentPlaceholder + "\n\nSummary:",
			database.VariantReasoning:  "Perform a deep analytical breakdown of the text. Provide insights, underlying patterns, potential implications, and critical analysis.\n\nText: " + contentPlaceholder + "\n\nAnalytical Insights:",
			database.VariantGrammar:    "Review and improve the grammar, clarity, and overall writing quality of the following text. Provide a corrected version with explanations of the changes.\n\nOriginal Text: " + contentPlaceholder + "\n\nImproved Text:",
		},
	}
}

// VariantPrompt 渲染某个处理方式的用户提示词
func (s PromptSet) VariantPrompt(variant database.ProcessingVariant, content string) string {
	return strings.ReplaceAll(s.Variants[variant], contentPlaceholder, content)
}

func (s PromptSet) InsightsUserPrompt(content string) string {
	return strings.ReplaceAll(s.InsightsPrompt, contentPlaceholder, content)
}

// merge 文件里没写的字段保留默认值
func (s PromptSet) merge(override PromptSet) PromptSet {
	out := s
	if override.SystemPrompt != "" {
		out.SystemPrompt = override.SystemPrompt
	}
	if override.Temperature > 0 {
		out.Temperature = override.Temperature
	}
	if override.MaxTokens > 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.InsightsSystemPrompt != "" {
		out.InsightsSystemPrompt = override.InsightsSystemPrompt
	}
	if override.InsightsPrompt != "" {
		out.InsightsPrompt = override.InsightsPrompt
	}
	if override.InsightsTemperature > 0 {
		out.InsightsTemperature = override.InsightsTemperature
	}
	if override.InsightsMaxTokens > 0 {
		out.InsightsMaxTokens = override.InsightsMaxTokens
	}

	out.Variants = make(map[database.ProcessingVariant]string, len(s.Variants))
	for k, v := range s.Variants {
		out.Variants[k] = v
	}
	for k, v := range override.Variants {
		if k.Valid() && v != "" {
			out.Variants[k] = v
		}
	}
	return out
}

// LoadPromptSet 从YAML文件加载提示词
func LoadPromptSet(path string) (PromptSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PromptSet{}, err
	}

	var override PromptSet
	if err := yaml.Unmarshal(data, &override); err != nil {
		return PromptSet{}, fmt.Errorf("解析提示词配置失败: %w", err)
	}
	for k := range override.Variants {
		if !k.Valid() {
			return PromptSet{}, fmt.Errorf("未知的处理方式: %q", k)
		}
	}
	return DefaultPromptSet().merge(override), nil
}

type PromptManager struct {
	path   string
	logger *zap.Logger

	mu  sync.RWMutex
	set PromptSet
}

// NewPromptManager path 为空时只使用内置提示词
func NewPromptManager(path string, logger *zap.Logger) (*PromptManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pm := &PromptManager{path: path, logger: logger, set: DefaultPromptSet()}
	if path == "" {
		return pm, nil
	}
	if err := pm.Reload(); err != nil {
		return nil, err
	}
	return pm, nil
}

// Current 返回当前提示词的快照
func (pm *PromptManager) Current() PromptSet {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.set
}

// Reload 重新读取文件，失败时保留旧配置
func (pm *PromptManager) Reload() error {
	if pm.path == "" {
		return nil
	}
	set, err := LoadPromptSet(pm.path)
	if err != nil {
		return err
	}

	pm.mu.Lock()
	pm.set = set
	pm.mu.Unlock()

	pm.logger.Info("提示词配置已加载", zap.String("path", pm.path), zap.Int("variants", len(set.Variants)))
	return nil
}

// Watch 监听配置文件变化并热加载，ctx 结束时返回
func (pm *PromptManager) Watch(ctx context.Context) error {
	if pm.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer watcher.Close()

	// 监听目录，编辑器保存时常常是重命名替换
	if err := watcher.Add(filepath.Dir(pm.path)); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}
	target := filepath.Clean(pm.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if err := pm.Reload(); err != nil {
				pm.logger.Warn("提示词热加载失败，继续使用旧配置", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			pm.logger.Warn("文件监听错误", zap.Error(err))
		}
	}
}

package Audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
	"github.com/abdul977/whimsical-idea-keeper/service/Outbound"
)

const (
	DefaultTranscriptionModel = "whisper-large-v3-turbo"
	transcriptionFileName     = "recording.mp3"
)

var (
	ErrEmptyAudioURL   = Errs.Validation("音频地址不能为空")
	ErrForeignAudioURL = Errs.Validation("只能转写本服务存储的音频")
)

// TranscriptionClient *openai.Client 满足该接口
type TranscriptionClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type Transcriber struct {
	client  TranscriptionClient
	model   string
	storage *Storage
	policy  Outbound.Policy
	logger  *zap.Logger
}

func NewTranscriber(client TranscriptionClient, model string, storage *Storage, policy Outbound.Policy, logger *zap.Logger) *Transcriber {
	if model == "" {
		model = DefaultTranscriptionModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcriber{
		client:  client,
		model:   model,
		storage: storage,
		policy:  policy,
		logger:  logger,
	}
}

// Transcribe 失败时返回空字符串和分类后的错误，调用方据此提示用户，不影响保存笔记
func (t *Transcriber) Transcribe(ctx context.Context, audioURL string) (string, error) {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return "", ErrEmptyAudioURL
	}
	// 不向用户给出的任意地址发请求
	if t.storage == nil {
		return "", ErrForeignAudioURL
	}
	key, ok := t.storage.KeyFromURL(audioURL)
	if !ok {
		return "", ErrForeignAudioURL
	}
	if t.client == nil {
		return "", Errs.New(Errs.KindUpstream, "未配置语音转写服务")
	}

	data, err := t.read(key)
	if err != nil {
		t.logger.Warn("读取音频失败", zap.String("audio_url", audioURL), zap.Error(err))
		return "", err
	}

	var text string
	err = t.policy.Do(ctx, "语音转写", func(ctx context.Context) error {
		resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    t.model,
			FilePath: transcriptionFileName,
			Reader:   bytes.NewReader(data),
		})
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		t.logger.Warn("语音转写失败", zap.String("audio_url", audioURL), zap.Error(err))
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (t *Transcriber) read(key string) ([]byte, error) {
	f, err := t.storage.Open(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxRecordingBytes+1))
	if err != nil {
		return nil, fmt.Errorf("读取音频失败: %w", err)
	}
	return checkSize(data)
}

func checkSize(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecording
	}
	if len(data) > MaxRecordingBytes {
		return nil, ErrRecordingTooBig
	}
	return data, nil
}

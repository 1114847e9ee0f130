package Config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	SecretKey      string `mapstructure:"SECRET_KEY"`
	TokenExpiry    int    `mapstructure:"TOKEN_EXPIRY_MINUTES"`
	Debug          bool   `mapstructure:"DEBUG"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	AIProcessor          string `mapstructure:"AI_PROCESSOR"`
	AIAPIKey             string `mapstructure:"AI_API_KEY"`
	AIBaseURL            string `mapstructure:"AI_BASE_URL"`
	AIModel              string `mapstructure:"AI_MODEL"`
	AITranscriptionModel string `mapstructure:"AI_TRANSCRIPTION_MODEL"`
	AITimeoutSeconds     int    `mapstructure:"AI_TIMEOUT_SECONDS"`
	PromptConfigPath     string `mapstructure:"PROMPT_CONFIG_PATH"`

	AudioDir      string `mapstructure:"AUDIO_DIR"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
}

var configKeys = []string{
	"SERVER_PORT", "DATABASE_URL", "SECRET_KEY", "TOKEN_EXPIRY_MINUTES", "DEBUG", "ALLOWED_ORIGINS",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"AI_PROCESSOR", "AI_API_KEY", "AI_BASE_URL", "AI_MODEL", "AI_TRANSCRIPTION_MODEL", "AI_TIMEOUT_SECONDS", "PROMPT_CONFIG_PATH",
	"AUDIO_DIR", "PUBLIC_BASE_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("DATABASE_URL", "sqlite://notes.db")
	v.SetDefault("TOKEN_EXPIRY_MINUTES", 1440) // 24小时
	v.SetDefault("DEBUG", false)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173,http://localhost:8080")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AI_PROCESSOR", "remote")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_BASE_URL", "https://api.groq.com/openai/v1")
	v.SetDefault("AI_MODEL", "llama3-8b-8192")
	v.SetDefault("AI_TRANSCRIPTION_MODEL", "whisper-large-v3-turbo")
	v.SetDefault("AI_TIMEOUT_SECONDS", 60)
	v.SetDefault("PROMPT_CONFIG_PATH", "")
	v.SetDefault("AUDIO_DIR", "./data")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
}

// Load 读取 dir 下的 .env 文件（可选）和环境变量
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	// AutomaticEnv 只对已知 key 生效，Unmarshal 前需要显式绑定
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 必须配置项验证
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY 必须配置")
	}
	if c.TokenExpiry <= 0 {
		return errors.New("TOKEN_EXPIRY_MINUTES 必须大于0")
	}
	switch c.AIProcessor {
	case "remote", "local":
	default:
		return fmt.Errorf("AI_PROCESSOR 只能是 remote 或 local: %q", c.AIProcessor)
	}
	return nil
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenExpiry) * time.Minute
}

func (c *Config) AITimeout() time.Duration {
	if c.AITimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

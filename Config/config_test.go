package Config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.ServerPort)
	assert.Equal(t, "sqlite://notes.db", cfg.DatabaseURL)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.Equal(t, "remote", cfg.AIProcessor)
	assert.Equal(t, "llama3-8b-8192", cfg.AIModel)
	assert.Equal(t, "whisper-large-v3-turbo", cfg.AITranscriptionModel)
	assert.Equal(t, 60*time.Second, cfg.AITimeout())
	assert.Len(t, cfg.Origins(), 3)
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "SECRET_KEY=file-secret\nSERVER_PORT=9100\nAI_PROCESSOR=local\nAI_TIMEOUT_SECONDS=5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "file-secret", cfg.SecretKey)
	assert.Equal(t, "9100", cfg.ServerPort)
	assert.Equal(t, "local", cfg.AIProcessor)
	assert.Equal(t, 5*time.Second, cfg.AITimeout())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET_KEY=file-secret\nSERVER_PORT=9100\n"), 0o600))
	t.Setenv("SERVER_PORT", "9200")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "9200", cfg.ServerPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "合法配置", cfg: Config{SecretKey: "k", TokenExpiry: 10, AIProcessor: "remote"}},
		{name: "缺少密钥", cfg: Config{TokenExpiry: 10, AIProcessor: "remote"}, wantErr: true},
		{name: "过期时间非法", cfg: Config{SecretKey: "k", AIProcessor: "local"}, wantErr: true},
		{name: "未知处理器", cfg: Config{SecretKey: "k", TokenExpiry: 10, AIProcessor: "magic"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, debug := range []bool{true, false} {
		logger, err := NewLogger(debug)
		require.NoError(t, err)
		require.NotNil(t, logger)
		_ = logger.Sync()
	}
}

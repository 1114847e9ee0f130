// Package Audio 音频存储、录音状态机和语音转写
package Audio

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
)

const (
	keyPrefix   = "audio/"
	mediaPrefix = "/media/"
	defaultExt  = ".mp3"
)

var ErrAudioNotFound = Errs.New(Errs.KindNotFound, "音频不存在")

// Storage 音频对象存储，key 形如 audio/<uuid>.mp3
type Storage struct {
	fs      afero.Fs
	baseURL string
}

func NewStorage(fs afero.Fs, publicBaseURL string) *Storage {
	return &Storage{fs: fs, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// NewDiskStorage 存储在 dir 目录下
func NewDiskStorage(dir, publicBaseURL string) *Storage {
	return NewStorage(afero.NewBasePathFs(afero.NewOsFs(), dir), publicBaseURL)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return defaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	// 扩展名只允许字母数字
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExt
		}
	}
	return ext
}

// Put 先写临时文件再重命名，失败时不会留下半个文件
func (s *Storage) Put(ctx context.Context, r io.Reader, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := keyPrefix + uuid.NewString() + normalizeExt(ext)
	dir := filepath.Dir(key)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建音频目录失败: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = s.fs.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("写入音频失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := s.fs.Rename(tmpPath, key); err != nil {
		return "", fmt.Errorf("保存音频失败: %w", err)
	}
	return key, nil
}

// Open 只能打开 audio/ 下的对象
func (s *Storage) Open(key string) (afero.File, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if !strings.HasPrefix(key, keyPrefix) {
		return nil, ErrAudioNotFound
	}
	f, err := s.fs.Open(key)
	if err != nil {
		return nil, ErrAudioNotFound
	}
	return f, nil
}

func (s *Storage) URL(key string) string {
	return s.baseURL + mediaPrefix + key
}

// KeyFromURL 判断 URL 是否指向本服务的音频
func (s *Storage) KeyFromURL(url string) (string, bool) {
	prefix := s.baseURL + mediaPrefix
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if !strings.HasPrefix(key, keyPrefix) {
		return "", false
	}
	return key, true
}

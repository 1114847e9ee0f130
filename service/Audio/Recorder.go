package Audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
)

const (
	// MaxRecordingBytes 与转写接口的单文件上限一致
	MaxRecordingBytes = 25 << 20
	// MaxRecordersPerUser 每个用户同时存在的录音器上限
	MaxRecordersPerUser = 4
	// RecorderIdleTimeout 超过该时间没有操作的录音器会被清理
	RecorderIdleTimeout = 15 * time.Minute
)

var (
	ErrAlreadyRecording = Errs.New(Errs.KindConflict, "已有条目正在录音")
	ErrNotRecording     = Errs.New(Errs.KindConflict, "当前没有在录音")
	ErrEmptyRecording   = Errs.Validation("录音内容为空")
	ErrRecordingTooBig  = Errs.Validation("录音超过大小限制")
	ErrInvalidSlot      = Errs.Validation("条目序号不能为负数")
	ErrTooManyRecorders = Errs.New(Errs.KindConflict, "同时录音的编辑器过多")
)

// Recorder 单个编辑器的录音状态：idle 或正在录某个条目，同一时间最多一个
type Recorder struct {
	storage *Storage
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	recording  bool
	slot       int
	buf        bytes.Buffer
	lastActive time.Time
}

func NewRecorder(storage *Storage, logger *zap.Logger) *Recorder {
	return newRecorder(storage, logger, time.Now)
}

func newRecorder(storage *Storage, logger *zap.Logger, now func() time.Time) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{storage: storage, logger: logger, now: now, lastActive: now()}
}

// touch 调用方持有 r.mu
func (r *Recorder) touch() {
	r.lastActive = r.now()
}

func (r *Recorder) idleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

func (r *Recorder) Start(slot int) error {
	if slot < 0 {
		return ErrInvalidSlot
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}
	r.touch()
	r.recording = true
	r.slot = slot
	r.buf.Reset()
	return nil
}

func (r *Recorder) Append(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return ErrNotRecording
	}
	if r.buf.Len()+len(chunk) > MaxRecordingBytes {
		return ErrRecordingTooBig
	}
	r.touch()
	r.buf.Write(chunk)
	return nil
}

// Stop 上传录音并回到 idle，上传失败同样回到 idle
func (r *Recorder) Stop(ctx context.Context) (int, string, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return 0, "", ErrNotRecording
	}
	slot := r.slot
	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.recording = false
	r.buf.Reset()
	r.touch()
	r.mu.Unlock()

	if len(data) == 0 {
		return slot, "", ErrEmptyRecording
	}

	key, err := r.storage.Put(ctx, bytes.NewReader(data), defaultExt)
	if err != nil {
		return slot, "", fmt.Errorf("上传录音失败: %w", err)
	}
	url := r.storage.URL(key)
	r.logger.Info("录音已保存", zap.Int("slot", slot), zap.String("key", key), zap.Int("bytes", len(data)))
	return slot, url, nil
}

// Active 返回正在录音的条目序号
func (r *Recorder) Active() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slot, r.recording
}

// RecorderRegistry 按 用户+编辑器ID 管理录音器，每个用户数量有上限，空闲的定期清理
type RecorderRegistry struct {
	storage *Storage
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	recorders map[uint]map[string]*Recorder
}

func NewRecorderRegistry(storage *Storage, logger *zap.Logger) *RecorderRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecorderRegistry{
		storage:   storage,
		logger:    logger,
		now:       time.Now,
		recorders: make(map[uint]map[string]*Recorder),
	}
}

// Get 不存在时创建，超过用户上限返回 ErrTooManyRecorders
func (g *RecorderRegistry) Get(userID uint, editorID string) (*Recorder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	editors := g.recorders[userID]
	if rec, ok := editors[editorID]; ok {
		return rec, nil
	}
	if len(editors) >= MaxRecordersPerUser {
		return nil, ErrTooManyRecorders
	}
	if editors == nil {
		editors = make(map[string]*Recorder)
		g.recorders[userID] = editors
	}
	rec := newRecorder(g.storage, g.logger.With(zap.Uint("user_id", userID), zap.String("editor", editorID)), g.now)
	editors[editorID] = rec
	return rec, nil
}

// Lookup 只查询，不创建
func (g *RecorderRegistry) Lookup(userID uint, editorID string) (*Recorder, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.recorders[userID][editorID]
	return rec, ok
}

// Discard 编辑器关闭或录音结束时释放，正在录的内容丢弃
func (g *RecorderRegistry) Discard(userID uint, editorID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remove(userID, editorID)
}

// remove 调用方持有 g.mu
func (g *RecorderRegistry) remove(userID uint, editorID string) {
	editors, ok := g.recorders[userID]
	if !ok {
		return
	}
	delete(editors, editorID)
	if len(editors) == 0 {
		delete(g.recorders, userID)
	}
}

// Len 当前录音器数量
func (g *RecorderRegistry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, editors := range g.recorders {
		n += len(editors)
	}
	return n
}

// Sweep 清理空闲超过 idle 的录音器，返回清理数量
func (g *RecorderRegistry) Sweep(idle time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	deadline := g.now().Add(-idle)
	removed := 0
	for userID, editors := range g.recorders {
		for editorID, rec := range editors {
			if rec.idleSince().Before(deadline) {
				g.remove(userID, editorID)
				removed++
			}
		}
	}
	if removed > 0 {
		g.logger.Info("清理空闲录音器", zap.Int("count", removed))
	}
	return removed
}

// StartCleanupTask 定期清理空闲录音器，ctx 取消后退出
func (g *RecorderRegistry) StartCleanupTask(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Sweep(idle)
			}
		}
	}()
}

// Package Presence 笔记在线状态：谁正在看这篇笔记，变化时推送给所有订阅者
package Presence

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	EventSync         = "sync"
	defaultBufferSize = 16
	lockStripes       = 64
)

type Event struct {
	Type    string `json:"type"`
	NoteID  uint   `json:"note_id"`
	UserIDs []uint `json:"user_ids"`
}

// Subscriber 一个连接，事件通道在 Leave 后关闭
type Subscriber struct {
	NoteID uint
	UserID uint

	id     uint64
	events chan Event
}

func (s *Subscriber) Events() <-chan Event {
	return s.events
}

type Hub struct {
	store      Store
	logger     *zap.Logger
	bufferSize int

	// noteLocks 按笔记串行化 修改集合-读快照-推送，保证事件顺序与集合变化一致
	noteLocks [lockStripes]sync.Mutex

	mu     sync.Mutex
	nextID uint64
	subs   map[uint]map[uint64]*Subscriber
}

func (h *Hub) lockNote(noteID uint) func() {
	m := &h.noteLocks[noteID%lockStripes]
	m.Lock()
	return m.Unlock
}

func NewHub(store Store, logger *zap.Logger) *Hub {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		store:      store,
		logger:     logger,
		bufferSize: defaultBufferSize,
		subs:       make(map[uint]map[uint64]*Subscriber),
	}
}

// Join 登记在线并广播，新订阅者自己也会收到第一条 sync
func (h *Hub) Join(ctx context.Context, noteID, userID uint) (*Subscriber, error) {
	unlock := h.lockNote(noteID)
	defer unlock()

	if err := h.store.Add(ctx, noteID, userID); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.nextID++
	sub := &Subscriber{NoteID: noteID, UserID: userID, id: h.nextID, events: make(chan Event, h.bufferSize)}
	if h.subs[noteID] == nil {
		h.subs[noteID] = make(map[uint64]*Subscriber)
	}
	h.subs[noteID][sub.id] = sub
	h.mu.Unlock()

	h.broadcast(ctx, noteID)
	h.logger.Debug("用户进入笔记", zap.Uint("note_id", noteID), zap.Uint("user_id", userID))
	return sub, nil
}

// Leave 可以重复调用
func (h *Hub) Leave(ctx context.Context, sub *Subscriber) error {
	unlock := h.lockNote(sub.NoteID)
	defer unlock()

	h.mu.Lock()
	subs := h.subs[sub.NoteID]
	if _, ok := subs[sub.id]; !ok {
		h.mu.Unlock()
		return nil
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.subs, sub.NoteID)
	}
	close(sub.events)
	h.mu.Unlock()

	if err := h.store.Remove(ctx, sub.NoteID, sub.UserID); err != nil {
		return err
	}
	h.broadcast(ctx, sub.NoteID)
	h.logger.Debug("用户离开笔记", zap.Uint("note_id", sub.NoteID), zap.Uint("user_id", sub.UserID))
	return nil
}

// Present 按用户ID升序
func (h *Hub) Present(ctx context.Context, noteID uint) ([]uint, error) {
	return h.store.Members(ctx, noteID)
}

// Refresh 延长笔记在线记录的有效期，连接保活时调用
func (h *Hub) Refresh(ctx context.Context, noteID uint) error {
	return h.store.Touch(ctx, noteID)
}

// broadcast 调用方持有该笔记的 noteLocks；订阅者缓冲满时丢弃事件，不阻塞
func (h *Hub) broadcast(ctx context.Context, noteID uint) {
	users, err := h.store.Members(ctx, noteID)
	if err != nil {
		h.logger.Warn("读取在线用户失败", zap.Uint("note_id", noteID), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[noteID] {
		event := Event{Type: EventSync, NoteID: noteID, UserIDs: append([]uint(nil), users...)}
		select {
		case sub.events <- event:
		default:
			h.logger.Warn("订阅者处理过慢，丢弃事件", zap.Uint("note_id", noteID), zap.Uint("user_id", sub.UserID))
		}
	}
}

// Close 关闭所有订阅，服务退出时调用
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	var all []*Subscriber
	for _, subs := range h.subs {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		if err := h.Leave(ctx, sub); err != nil {
			h.logger.Warn("关闭订阅失败", zap.Uint("note_id", sub.NoteID), zap.Error(err))
		}
	}
}

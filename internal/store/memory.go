package store

import (
	"context"
	"sort"
	"sync"

	"shopchat/internal/models"
)

// MemoryMessageLog 是 MessageLog 的内存实现，用于测试和单机试跑。
type MemoryMessageLog struct {
	mu    sync.Mutex
	rooms map[string][]models.ChatMessage
}

func NewMemoryMessageLog() *MemoryMessageLog {
	return &MemoryMessageLog{rooms: make(map[string][]models.ChatMessage)}
}

func (l *MemoryMessageLog) Append(ctx context.Context, msg *models.ChatMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := append(l.rooms[msg.RoomKey], *msg)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	l.rooms[msg.RoomKey] = msgs
	return nil
}

func (l *MemoryMessageLog) Recent(ctx context.Context, roomKey string, limit int, before int64) ([]models.ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := l.rooms[roomKey]
	if before > 0 {
		n := sort.Search(len(msgs), func(i int) bool { return msgs[i].Timestamp >= before })
		msgs = msgs[:n]
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (l *MemoryMessageLog) Prune(ctx context.Context, roomKey string, cutoff int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := l.rooms[roomKey]
	n := sort.Search(len(msgs), func(i int) bool { return msgs[i].Timestamp >= cutoff })
	l.rooms[roomKey] = msgs[n:]
	return nil
}

var _ MessageLog = (*MemoryMessageLog)(nil)

// MemoryGeneralLog 是 GeneralLog 的内存实现。
type MemoryGeneralLog struct {
	mu   sync.Mutex
	msgs []models.ChatMessage
	cap  int
}

func NewMemoryGeneralLog(capacity int) *MemoryGeneralLog {
	return &MemoryGeneralLog{cap: capacity}
}

func (l *MemoryGeneralLog) Append(ctx context.Context, msg *models.ChatMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, *msg)
	if len(l.msgs) > l.cap {
		l.msgs = l.msgs[len(l.msgs)-l.cap:]
	}
	return nil
}

func (l *MemoryGeneralLog) Recent(ctx context.Context) ([]models.ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out, nil
}

func (l *MemoryGeneralLog) Close() error { return nil }

var _ GeneralLog = (*MemoryGeneralLog)(nil)

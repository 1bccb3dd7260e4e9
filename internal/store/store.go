package store

import (
	"context"

	"shopchat/internal/models"
)

// MessageLog 是房间消息日志的持久化接口。每个房间的日志只被该房间的
// actor 读写，接口本身不做并发控制。
type MessageLog interface {
	// Append 写入一条消息，键为 (RoomKey, Timestamp)。
	Append(ctx context.Context, msg *models.ChatMessage) error
	// Recent 按时间升序返回最近 limit 条消息；before > 0 时只返回
	// Timestamp < before 的部分，用于向前翻页。
	Recent(ctx context.Context, roomKey string, limit int, before int64) ([]models.ChatMessage, error)
	// Prune 删除 Timestamp < cutoff 的全部消息。
	Prune(ctx context.Context, roomKey string, cutoff int64) error
}

// GeneralLog 是公共频道的有界日志：超出容量后最旧的消息被静默丢弃，
// 没有按时间过期的语义。
type GeneralLog interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	// Recent 按时间升序返回日志中剩余的全部消息。
	Recent(ctx context.Context) ([]models.ChatMessage, error)
	Close() error
}

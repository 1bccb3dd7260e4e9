package service

import (
	"context"

	"shopchat/internal/models"
	"shopchat/internal/store"
)

// HistoryService 为商城 UI 提供房间历史的分页读取。写入只发生在
// 房间 actor 内部，这里是只读路径。
type HistoryService struct {
	log store.MessageLog
}

func NewHistoryService(msgLog store.MessageLog) *HistoryService {
	return &HistoryService{log: msgLog}
}

// ListByRoom 按时间升序返回指定房间最近的消息，before > 0 时向前翻页。
func (s *HistoryService) ListByRoom(ctx context.Context, roomKey string, limit int, before int64) ([]models.ChatMessage, error) {
	if roomKey == "" {
		return nil, ErrRoomKeyRequired
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.log.Recent(ctx, roomKey, limit, before)
}

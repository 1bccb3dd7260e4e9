package store

import (
	"context"
	"fmt"

	"shopchat/internal/models"

	"gorm.io/gorm"
)

// GormMessageLog 基于 Postgres 实现 MessageLog。
type GormMessageLog struct {
	db *gorm.DB
}

func NewGormMessageLog(db *gorm.DB) *GormMessageLog {
	return &GormMessageLog{db: db}
}

func (l *GormMessageLog) Append(ctx context.Context, msg *models.ChatMessage) error {
	if err := l.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (l *GormMessageLog) Recent(ctx context.Context, roomKey string, limit int, before int64) ([]models.ChatMessage, error) {
	q := l.db.WithContext(ctx).Where("room_key = ?", roomKey)
	if before > 0 {
		q = q.Where("timestamp < ?", before)
	}
	var msgs []models.ChatMessage
	if err := q.Order("timestamp desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (l *GormMessageLog) Prune(ctx context.Context, roomKey string, cutoff int64) error {
	err := l.db.WithContext(ctx).
		Where("room_key = ? AND timestamp < ?", roomKey, cutoff).
		Delete(&models.ChatMessage{}).Error
	if err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}

var _ MessageLog = (*GormMessageLog)(nil)

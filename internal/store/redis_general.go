package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopchat/internal/models"

	"github.com/redis/go-redis/v9"
)

const generalLogKey = "shopchat:general:log"

// RedisGeneralLog 用 Redis list 实现公共频道的有界日志：
// RPUSH 追加、LTRIM 截断到最近 cap 条，天然就是"超容丢最旧"。
type RedisGeneralLog struct {
	client *redis.Client
	cap    int
}

func NewRedisGeneralLog(addr, password string, db, capacity int) (*RedisGeneralLog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisGeneralLog{client: client, cap: capacity}, nil
}

func (l *RedisGeneralLog) Append(ctx context.Context, msg *models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal general message: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, generalLogKey, data)
	pipe.LTrim(ctx, generalLogKey, int64(-l.cap), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append general message: %w", err)
	}
	return nil
}

func (l *RedisGeneralLog) Recent(ctx context.Context) ([]models.ChatMessage, error) {
	items, err := l.client.LRange(ctx, generalLogKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load general history: %w", err)
	}
	msgs := make([]models.ChatMessage, 0, len(items))
	for _, item := range items {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (l *RedisGeneralLog) Close() error {
	return l.client.Close()
}

var _ GeneralLog = (*RedisGeneralLog)(nil)

package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-friends/internal/domain"
	"live-friends/internal/infra/metrics"
)

// RedisGate реализует domain.CooldownGate поверх Redis. Канонический
// вариант для нескольких инстансов: проверка и занятие окна — одна
// атомарная операция SET NX PX, остаток окна читается из TTL ключа.
type RedisGate struct {
	client *redis.Client
	window time.Duration
}

// NewRedisGate создаёт шлюз с указанным окном кулдауна.
func NewRedisGate(client *redis.Client, window time.Duration) *RedisGate {
	return &RedisGate{client: client, window: window}
}

func pairKey(fromUserID, toUserID int64) string {
	return fmt.Sprintf("page_cooldown:%d:%d", fromUserID, toUserID)
}

// CanSend сообщает, разрешена ли отправка, не занимая окно.
func (g *RedisGate) CanSend(ctx context.Context, fromUserID, toUserID int64) (bool, time.Duration, error) {
	start := time.Now()
	ttl, err := g.client.PTTL(ctx, pairKey(fromUserID, toUserID)).Result()
	metrics.ObserveNetworkRequest("redis", "pttl", "page_cooldown", start, err)
	if err != nil {
		return false, 0, fmt.Errorf("cooldown ttl: %w", err)
	}
	if ttl <= 0 {
		return true, 0, nil
	}
	return false, ttl, nil
}

// RecordSend помечает «сейчас» временем последней подтверждённой отправки.
func (g *RedisGate) RecordSend(ctx context.Context, fromUserID, toUserID int64) error {
	start := time.Now()
	err := g.client.Set(ctx, pairKey(fromUserID, toUserID), time.Now().UTC().Format(time.RFC3339Nano), g.window).Err()
	metrics.ObserveNetworkRequest("redis", "set", "page_cooldown", start, err)
	if err != nil {
		return fmt.Errorf("cooldown record: %w", err)
	}
	return nil
}

// Reserve атомарно проверяет и занимает окно. При занятом окне возвращает
// false и оставшееся время ожидания.
func (g *RedisGate) Reserve(ctx context.Context, fromUserID, toUserID int64) (bool, time.Duration, error) {
	key := pairKey(fromUserID, toUserID)
	start := time.Now()
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), g.window).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "page_cooldown", start, err)
	if err != nil {
		return false, 0, fmt.Errorf("cooldown reserve: %w", err)
	}
	if ok {
		return true, 0, nil
	}
	ttl, err := g.client.PTTL(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, fmt.Errorf("cooldown ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return false, ttl, nil
}

// Release возвращает окно, занятое Reserve, если передача не состоялась.
func (g *RedisGate) Release(ctx context.Context, fromUserID, toUserID int64) error {
	start := time.Now()
	err := g.client.Del(ctx, pairKey(fromUserID, toUserID)).Err()
	metrics.ObserveNetworkRequest("redis", "del", "page_cooldown", start, err)
	if err != nil {
		return fmt.Errorf("cooldown release: %w", err)
	}
	return nil
}

var _ domain.CooldownGate = (*RedisGate)(nil)

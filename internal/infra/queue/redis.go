package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-friends/internal/domain"
	"live-friends/internal/infra/metrics"
)

// RedisPageQueue реализует очередь задач доставки на базе Redis lists.
type RedisPageQueue struct {
	client *redis.Client
	key    string
}

// NewRedisPageQueue создаёт очередь по указанному ключу.
func NewRedisPageQueue(client *redis.Client, key string) *RedisPageQueue {
	return &RedisPageQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisPageQueue) Enqueue(ctx context.Context, job domain.PageJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisPageQueue) Pop(ctx context.Context) (domain.PageJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PageJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.PageJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.PageJob{}, err
		}
		if len(res) != 2 {
			return domain.PageJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.PageJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.PageJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

var _ domain.PageQueue = (*RedisPageQueue)(nil)

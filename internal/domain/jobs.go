package domain

import (
	"context"
	"time"
)

// PageJob содержит информацию о задаче доставки пейджа.
type PageJob struct {
	ID          string    `json:"job_id,omitempty"`
	FromUserID  int64     `json:"from_user_id"`
	ToUserID    int64     `json:"to_user_id"`
	Message     string    `json:"message,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// PageQueue описывает очередь задач доставки пейджей.
type PageQueue interface {
	Enqueue(ctx context.Context, job PageJob) error
	Pop(ctx context.Context) (PageJob, error)
}

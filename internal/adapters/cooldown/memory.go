package cooldown

import (
	"context"
	"sync"
	"time"

	"live-friends/internal/domain"
)

type pair struct {
	from int64
	to   int64
}

// MemoryGate реализует domain.CooldownGate на мьютексе и карте меток
// времени. Пригоден только для одного инстанса сервера; канонический
// вариант для нескольких инстансов — RedisGate.
type MemoryGate struct {
	mu       sync.Mutex
	lastSend map[pair]time.Time
	window   time.Duration
	clock    domain.Clock
}

// NewMemoryGate создаёт шлюз с указанным окном кулдауна.
func NewMemoryGate(window time.Duration, clk domain.Clock) *MemoryGate {
	return &MemoryGate{
		lastSend: make(map[pair]time.Time),
		window:   window,
		clock:    clk,
	}
}

// CanSend сообщает, разрешена ли отправка, не занимая окно.
func (g *MemoryGate) CanSend(ctx context.Context, fromUserID, toUserID int64) (bool, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remainingLocked(fromUserID, toUserID)
}

// RecordSend помечает «сейчас» временем последней подтверждённой отправки.
func (g *MemoryGate) RecordSend(ctx context.Context, fromUserID, toUserID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSend[pair{from: fromUserID, to: toUserID}] = g.clock.Now()
	return nil
}

// Reserve атомарно проверяет и занимает окно под одним мьютексом, поэтому
// из конкурирующих попыток для одной пары проходит ровно одна.
func (g *MemoryGate) Reserve(ctx context.Context, fromUserID, toUserID int64) (bool, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ok, remaining, err := g.remainingLocked(fromUserID, toUserID)
	if err != nil || !ok {
		return ok, remaining, err
	}
	g.lastSend[pair{from: fromUserID, to: toUserID}] = g.clock.Now()
	return true, 0, nil
}

// Release возвращает окно, занятое Reserve, если передача не состоялась.
func (g *MemoryGate) Release(ctx context.Context, fromUserID, toUserID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.lastSend, pair{from: fromUserID, to: toUserID})
	return nil
}

func (g *MemoryGate) remainingLocked(fromUserID, toUserID int64) (bool, time.Duration, error) {
	last, ok := g.lastSend[pair{from: fromUserID, to: toUserID}]
	if !ok {
		return true, 0, nil
	}
	elapsed := g.clock.Now().Sub(last)
	if elapsed >= g.window {
		return true, 0, nil
	}
	return false, g.window - elapsed, nil
}

var _ domain.CooldownGate = (*MemoryGate)(nil)

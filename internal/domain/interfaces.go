package domain

import (
	"context"
	"time"
)

// Clock поставляет текущее время и час суток.
type Clock interface {
	Now() time.Time
	HourOfDay() int
}

// UserRepo управляет пользователями.
type UserRepo interface {
	GetByID(ctx context.Context, userID int64) (User, error)
	UpsertByEmail(ctx context.Context, email, name string) (User, error)
}

// PresenceRepo управляет присутствием. Запись идёт только через
// путь обновления локации; ядро подсказок читает.
type PresenceRepo interface {
	GetSelf(ctx context.Context, userID int64) (Presence, bool, error)
	ListAvailable(ctx context.Context) ([]PeerPresence, error)
	SetAvailability(ctx context.Context, userID int64, available bool) (Presence, error)
	UpdateLocation(ctx context.Context, userID int64, lat, lon float64, accuracy *float64) (Presence, error)
}

// WeightRepo хранит выученные веса подсказок.
type WeightRepo interface {
	// GetAll возвращает снимок всех весов пользователя.
	GetAll(ctx context.Context, userID int64) (WeightSnapshot, error)
	// UpsertIncrement атомарно увеличивает вес на delta, создавая строку с
	// нулём при отсутствии, и возвращает сырое значение после инкремента.
	UpsertIncrement(ctx context.Context, userID int64, key SuggestionKey, targetUserID *int64, delta int) (int, error)
	// SetWeight записывает итоговое (зажатое) значение веса.
	SetWeight(ctx context.Context, userID int64, key SuggestionKey, targetUserID *int64, weight int) error
}

// FeedbackLog — журнал откликов, только на добавление.
type FeedbackLog interface {
	Append(ctx context.Context, entry SuggestionFeedback) (SuggestionFeedback, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]SuggestionFeedback, error)
}

// PageHistory — журнал пейджей, только на добавление.
type PageHistory interface {
	AppendPageEvent(ctx context.Context, event PageEvent) (PageEvent, error)
	// RecentSentTo возвращает агрегаты исходящих пейджей отправителя,
	// отсортированные по count DESC, last_sent_at DESC.
	RecentSentTo(ctx context.Context, fromUserID int64, limit int) ([]PageAggregate, error)
}

// CooldownGate ограничивает частоту пейджей для пары (отправитель, получатель).
type CooldownGate interface {
	// CanSend сообщает, разрешена ли отправка, и оставшееся время ожидания.
	CanSend(ctx context.Context, fromUserID, toUserID int64) (bool, time.Duration, error)
	// RecordSend помечает «сейчас» временем последней подтверждённой отправки.
	RecordSend(ctx context.Context, fromUserID, toUserID int64) error
	// Reserve атомарно проверяет и занимает окно. Из конкурирующих попыток
	// внутри одного окна выигрывает ровно одна.
	Reserve(ctx context.Context, fromUserID, toUserID int64) (bool, time.Duration, error)
	// Release возвращает окно, занятое Reserve, если передача не состоялась.
	Release(ctx context.Context, fromUserID, toUserID int64) error
}

// SuggestionRanker упорядочивает кандидатов и формирует итоговый список.
type SuggestionRanker interface {
	Rank(candidates []SuggestionCandidate) []Suggestion
}

// PageDispatcher передаёт пейдж транспорту доставки. Успешный возврат
// означает подтверждённую передачу, не факт доставки.
type PageDispatcher interface {
	Dispatch(ctx context.Context, job PageJob) error
}

// PageMailer доставляет уведомление о пейдже адресату.
type PageMailer interface {
	SendPage(ctx context.Context, toEmail, fromName, message string) error
}

// BusinessMetricRepo сохраняет продуктовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}

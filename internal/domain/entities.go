package domain

import "time"

// User описывает пользователя сервиса.
type User struct {
	ID        int64
	Email     string
	Name      string
	CreatedAt time.Time
}

// DisplayName возвращает имя для показа, либо email если имя не задано.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Presence хранит текущую доступность пользователя и его последние координаты.
// Координаты заполнены только при Available = true.
type Presence struct {
	UserID    int64
	Available bool
	Lat       *float64
	Lon       *float64
	Accuracy  *float64
	UpdatedAt time.Time
}

// HasCoords сообщает, известны ли координаты.
func (p Presence) HasCoords() bool {
	return p.Lat != nil && p.Lon != nil
}

// PeerPresence — присутствие доступного пользователя вместе с его профилем.
type PeerPresence struct {
	Presence
	Name  string
	Email string
}

// DisplayName возвращает имя для показа, либо email если имя не задано.
func (p PeerPresence) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// SuggestionWeight хранит выученный вес подсказки для пользователя.
// Вес всегда в пределах [WeightMin, WeightMax] после каждой записи.
type SuggestionWeight struct {
	UserID        int64
	SuggestionKey SuggestionKey
	TargetUserID  *int64
	Weight        int
	UpdatedAt     time.Time
}

// SuggestionFeedback — неизменяемая запись отклика пользователя на подсказку.
type SuggestionFeedback struct {
	ID            int64
	UserID        int64
	SuggestionKey SuggestionKey
	TargetUserID  *int64
	Action        FeedbackAction
	CreatedAt     time.Time
}

// PageEventStatus описывает исход отправки пейджа.
type PageEventStatus string

const (
	PageEventSent   PageEventStatus = "sent"
	PageEventFailed PageEventStatus = "failed"
)

// PageEvent — запись об отправке пейджа. Журнал только на добавление:
// служит и историей доставки, и свидетельством для кулдауна.
type PageEvent struct {
	ID         int64
	FromUserID int64
	ToUserID   int64
	Message    string
	Status     PageEventStatus
	Error      string
	CreatedAt  time.Time
}

// PageAggregate — агрегат исходящих пейджей по получателю.
type PageAggregate struct {
	ToUserID   int64
	Count      int
	LastSentAt time.Time
}

// BusinessMetric описывает продуктовое событие для аналитики.
type BusinessMetric struct {
	Event        string
	UserID       *int64
	TargetUserID *int64
	Metadata     map[string]any
	OccurredAt   time.Time
}

package domain

import (
	"errors"
	"fmt"
)

// SuggestionKey идентифицирует вид подсказки.
type SuggestionKey string

const (
	// SuggestionPageNearest — пейджнуть ближайшего доступного друга.
	SuggestionPageNearest SuggestionKey = "PAGE_NEAREST"
	// SuggestionToggleOnAtTime — стать доступным в подходящее время суток.
	SuggestionToggleOnAtTime SuggestionKey = "TOGGLE_ON_AT_TIME"
	// SuggestionPageFrequentTarget — пейджнуть самого частого адресата.
	SuggestionPageFrequentTarget SuggestionKey = "PAGE_FREQUENT_TARGET"
	// SuggestionChillReminder — спрятаться и передохнуть.
	SuggestionChillReminder SuggestionKey = "CHILL_REMINDER"
)

// ErrUnknownSuggestionKey возвращается при нераспознанном виде подсказки.
var ErrUnknownSuggestionKey = errors.New("неизвестный вид подсказки")

// ErrUnknownFeedbackAction возвращается при нераспознанном действии отклика.
var ErrUnknownFeedbackAction = errors.New("неизвестное действие отклика")

// ParseSuggestionKey проверяет и приводит строку к виду подсказки.
func ParseSuggestionKey(raw string) (SuggestionKey, error) {
	switch SuggestionKey(raw) {
	case SuggestionPageNearest, SuggestionToggleOnAtTime, SuggestionPageFrequentTarget, SuggestionChillReminder:
		return SuggestionKey(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSuggestionKey, raw)
}

// FeedbackAction — реакция пользователя на подсказку.
type FeedbackAction string

const (
	FeedbackAccept  FeedbackAction = "accept"
	FeedbackDismiss FeedbackAction = "dismiss"
)

// ParseFeedbackAction проверяет и приводит строку к действию отклика.
func ParseFeedbackAction(raw string) (FeedbackAction, error) {
	switch FeedbackAction(raw) {
	case FeedbackAccept, FeedbackDismiss:
		return FeedbackAction(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFeedbackAction, raw)
}

// WeightDelta возвращает изменение веса для действия: accept +2, dismiss -2.
func (a FeedbackAction) WeightDelta() int {
	if a == FeedbackAccept {
		return 2
	}
	return -2
}

const (
	// WeightMin — нижняя граница выученного веса.
	WeightMin = -10
	// WeightMax — верхняя граница выученного веса.
	WeightMax = 10
)

// ClampWeight зажимает вес в допустимые границы.
func ClampWeight(weight int) int {
	if weight < WeightMin {
		return WeightMin
	}
	if weight > WeightMax {
		return WeightMax
	}
	return weight
}

// WeightKey — составной ключ веса: вид подсказки плюс цель (или "any").
type WeightKey struct {
	SuggestionKey SuggestionKey
	TargetUserID  int64 // 0 означает «любая цель»
}

// WeightSnapshot — снимок весов пользователя на момент построения подсказок.
type WeightSnapshot map[WeightKey]int

// Lookup возвращает вес по ключу, 0 если вес не выучен.
func (s WeightSnapshot) Lookup(key SuggestionKey, targetUserID int64) int {
	return s[WeightKey{SuggestionKey: key, TargetUserID: targetUserID}]
}

// SuggestionActionType различает варианты действия подсказки.
type SuggestionActionType string

const (
	ActionTypePage            SuggestionActionType = "page"
	ActionTypeSetAvailability SuggestionActionType = "availability"
)

// SuggestionAction — размеченный вариант действия: либо пейдж конкретному
// пользователю, либо переключение собственной доступности.
type SuggestionAction struct {
	Type            SuggestionActionType
	Page            *PageAction
	SetAvailability *SetAvailabilityAction
}

// PageAction — полезная нагрузка действия «пейджнуть».
type PageAction struct {
	ToUserID int64
}

// SetAvailabilityAction — полезная нагрузка действия «сменить доступность».
type SetAvailabilityAction struct {
	Available bool
}

// NewPageAction создаёт действие «пейджнуть пользователя».
func NewPageAction(toUserID int64) SuggestionAction {
	return SuggestionAction{Type: ActionTypePage, Page: &PageAction{ToUserID: toUserID}}
}

// NewAvailabilityAction создаёт действие «сменить доступность».
func NewAvailabilityAction(available bool) SuggestionAction {
	return SuggestionAction{Type: ActionTypeSetAvailability, SetAvailability: &SetAvailabilityAction{Available: available}}
}

// SuggestionCandidate — кандидат от генератора до ранжирования.
type SuggestionCandidate struct {
	SuggestionKey SuggestionKey
	TargetUserID  *int64
	Title         string
	Body          string
	CTALabel      string
	Action        SuggestionAction
	Score         float64
}

// Suggestion — итоговая подсказка, показываемая пользователю.
// Вычисляется на каждый запрос и нигде не сохраняется.
type Suggestion struct {
	ID            string
	SuggestionKey SuggestionKey
	TargetUserID  *int64
	Title         string
	Body          string
	CTALabel      string
	Action        SuggestionAction
	Score         float64
}

// TimeBucket — грубое четырёхчастное деление суток.
type TimeBucket string

const (
	BucketLateNight TimeBucket = "late-night"
	BucketMorning   TimeBucket = "morning"
	BucketAfternoon TimeBucket = "afternoon"
	BucketEvening   TimeBucket = "evening"
)

// BucketForHour возвращает временное ведро для часа суток [0,24).
func BucketForHour(hour int) TimeBucket {
	switch {
	case hour < 6:
		return BucketLateNight
	case hour < 12:
		return BucketMorning
	case hour < 18:
		return BucketAfternoon
	default:
		return BucketEvening
	}
}

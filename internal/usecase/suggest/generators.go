package suggest

import (
	"fmt"

	"live-friends/internal/domain"
	"live-friends/internal/geo"
)

// snapshot — неизменяемый вход генераторов: присутствие, доступные
// друзья, история пейджей и веса на момент запроса.
type snapshot struct {
	UserID         int64
	Self           domain.Presence
	SelfKnown      bool
	Peers          []domain.PeerPresence
	FrequentTarget *domain.User
	FrequentCount  int
	Weights        domain.WeightSnapshot
	Bucket         domain.TimeBucket
}

// generator — чистое правило: из снимка состояния не более одного кандидата.
type generator func(snapshot) (domain.SuggestionCandidate, bool)

// generators перечисляет правила в порядке их оценки. Порядок важен:
// при равных скорах ранжирование его сохраняет.
var generators = []generator{
	pageNearest,
	toggleOnAtTime,
	pageFrequentTarget,
	chillReminder,
}

// pageNearest предлагает пейджнуть ближайшего доступного друга.
// Требует координат у себя и хотя бы одного друга с координатами.
func pageNearest(s snapshot) (domain.SuggestionCandidate, bool) {
	if !s.SelfKnown || !s.Self.HasCoords() {
		return domain.SuggestionCandidate{}, false
	}
	var nearest *domain.PeerPresence
	var nearestKm float64
	for i := range s.Peers {
		peer := &s.Peers[i]
		if peer.UserID == s.UserID || !peer.HasCoords() {
			continue
		}
		km := geo.DistanceKm(*s.Self.Lat, *s.Self.Lon, *peer.Lat, *peer.Lon)
		// Строгое сравнение: при равных дистанциях побеждает первый встреченный.
		if nearest == nil || km < nearestKm {
			nearest = peer
			nearestKm = km
		}
	}
	if nearest == nil {
		return domain.SuggestionCandidate{}, false
	}

	weight := s.Weights.Lookup(domain.SuggestionPageNearest, nearest.UserID)
	score := 6 + float64(weight) + maxFloat(0, 2-nearestKm)
	targetID := nearest.UserID
	return domain.SuggestionCandidate{
		SuggestionKey: domain.SuggestionPageNearest,
		TargetUserID:  &targetID,
		Title:         fmt.Sprintf("Page %s", nearest.DisplayName()),
		Body:          fmt.Sprintf("They are about %.1f km away.", nearestKm),
		CTALabel:      "Send Page",
		Action:        domain.NewPageAction(nearest.UserID),
		Score:         score,
	}, true
}

// toggleOnAtTime предлагает стать доступным, пока пользователь скрыт.
// Утром и днём базовый скор выше.
func toggleOnAtTime(s snapshot) (domain.SuggestionCandidate, bool) {
	if s.SelfKnown && s.Self.Available {
		return domain.SuggestionCandidate{}, false
	}
	base := 3.0
	if s.Bucket == domain.BucketMorning || s.Bucket == domain.BucketAfternoon {
		base = 5.0
	}
	weight := s.Weights.Lookup(domain.SuggestionToggleOnAtTime, 0)
	return domain.SuggestionCandidate{
		SuggestionKey: domain.SuggestionToggleOnAtTime,
		Title:         "Go Available for friends",
		Body:          fmt.Sprintf("It is %s; flip yourself on so friends can find you.", s.Bucket),
		CTALabel:      "Set Available",
		Action:        domain.NewAvailabilityAction(true),
		Score:         base + float64(weight),
	}, true
}

// pageFrequentTarget предлагает пейджнуть самого частого адресата.
// Цель заранее разрешена сервисом: удалённые пользователи сюда не попадают.
func pageFrequentTarget(s snapshot) (domain.SuggestionCandidate, bool) {
	if s.FrequentTarget == nil {
		return domain.SuggestionCandidate{}, false
	}
	weight := s.Weights.Lookup(domain.SuggestionPageFrequentTarget, s.FrequentTarget.ID)
	score := 4 + float64(weight) + minFloat(2, float64(s.FrequentCount)/3)
	targetID := s.FrequentTarget.ID
	return domain.SuggestionCandidate{
		SuggestionKey: domain.SuggestionPageFrequentTarget,
		TargetUserID:  &targetID,
		Title:         fmt.Sprintf("Ping %s again", s.FrequentTarget.DisplayName()),
		Body:          "You page them often. Send another?",
		CTALabel:      "Page",
		Action:        domain.NewPageAction(s.FrequentTarget.ID),
		Score:         score,
	}, true
}

// chillReminder предлагает спрятаться, пока пользователь доступен.
// Вечером скор чуть выше.
func chillReminder(s snapshot) (domain.SuggestionCandidate, bool) {
	if !s.SelfKnown || !s.Self.Available {
		return domain.SuggestionCandidate{}, false
	}
	score := 2 + float64(s.Weights.Lookup(domain.SuggestionChillReminder, 0))
	if s.Bucket == domain.BucketEvening {
		score++
	}
	return domain.SuggestionCandidate{
		SuggestionKey: domain.SuggestionChillReminder,
		Title:         "Take a breather",
		Body:          "Set yourself to hidden for a bit.",
		CTALabel:      "Go Hidden",
		Action:        domain.NewAvailabilityAction(false),
		Score:         score,
	}, true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

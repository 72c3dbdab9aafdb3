package suggest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"live-friends/internal/adapters/ranker"
	"live-friends/internal/domain"
)

type stubUsers struct {
	users map[int64]domain.User
}

func (s *stubUsers) GetByID(_ context.Context, userID int64) (domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *stubUsers) UpsertByEmail(context.Context, string, string) (domain.User, error) {
	return domain.User{}, nil
}

type stubPresence struct {
	self      domain.Presence
	selfKnown bool
	peers     []domain.PeerPresence
}

func (s *stubPresence) GetSelf(context.Context, int64) (domain.Presence, bool, error) {
	return s.self, s.selfKnown, nil
}

func (s *stubPresence) ListAvailable(context.Context) ([]domain.PeerPresence, error) {
	return s.peers, nil
}

func (s *stubPresence) SetAvailability(context.Context, int64, bool) (domain.Presence, error) {
	return domain.Presence{}, nil
}

func (s *stubPresence) UpdateLocation(context.Context, int64, float64, float64, *float64) (domain.Presence, error) {
	return domain.Presence{}, nil
}

type stubWeights struct {
	snapshot domain.WeightSnapshot
}

func (s *stubWeights) GetAll(context.Context, int64) (domain.WeightSnapshot, error) {
	if s.snapshot == nil {
		return domain.WeightSnapshot{}, nil
	}
	return s.snapshot, nil
}

func (s *stubWeights) UpsertIncrement(context.Context, int64, domain.SuggestionKey, *int64, int) (int, error) {
	return 0, nil
}

func (s *stubWeights) SetWeight(context.Context, int64, domain.SuggestionKey, *int64, int) error {
	return nil
}

type stubHistory struct {
	aggregates []domain.PageAggregate
}

func (s *stubHistory) AppendPageEvent(_ context.Context, event domain.PageEvent) (domain.PageEvent, error) {
	return event, nil
}

func (s *stubHistory) RecentSentTo(context.Context, int64, int) ([]domain.PageAggregate, error) {
	return s.aggregates, nil
}

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }
func (c *stubClock) HourOfDay() int { return c.now.Hour() }

func coords(lat, lon float64) (*float64, *float64) {
	return &lat, &lon
}

func newService(users *stubUsers, presence *stubPresence, weights *stubWeights, history *stubHistory, hour int) *Service {
	clk := &stubClock{now: time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC)}
	return NewService(users, presence, weights, history, ranker.NewSimple(), clk, nil, zerolog.Nop())
}

func TestBuildSuggestionsPageNearestScore(t *testing.T) {
	lat, lon := coords(0, 0)
	peerLat, peerLon := coords(0, 0.01)
	presence := &stubPresence{
		self:      domain.Presence{UserID: 1, Available: true, Lat: lat, Lon: lon},
		selfKnown: true,
		peers: []domain.PeerPresence{
			{Presence: domain.Presence{UserID: 2, Available: true, Lat: peerLat, Lon: peerLon}, Name: "Боб", Email: "bob@example.com"},
		},
	}
	service := newService(&stubUsers{}, presence, &stubWeights{}, &stubHistory{}, 10)

	suggestions, err := service.BuildSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("ожидали 2 подсказки, получили %d", len(suggestions))
	}
	if suggestions[0].SuggestionKey != domain.SuggestionPageNearest {
		t.Fatalf("ожидали PAGE_NEAREST первым, получили %s", suggestions[0].SuggestionKey)
	}
	// 6 + 0 + max(0, 2 - 1.11) ≈ 6.89
	if math.Abs(suggestions[0].Score-6.89) > 0.01 {
		t.Fatalf("ожидали скор ~6.89, получили %f", suggestions[0].Score)
	}
	if suggestions[0].Action.Type != domain.ActionTypePage || suggestions[0].Action.Page.ToUserID != 2 {
		t.Fatalf("ожидали действие «пейджнуть пользователя 2»")
	}
}

func TestBuildSuggestionsToggleOnMorningScore(t *testing.T) {
	presence := &stubPresence{self: domain.Presence{UserID: 1, Available: false}, selfKnown: true}
	service := newService(&stubUsers{}, presence, &stubWeights{}, &stubHistory{}, 9)

	suggestions, err := service.BuildSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("ожидали 1 подсказку, получили %d", len(suggestions))
	}
	got := suggestions[0]
	if got.SuggestionKey != domain.SuggestionToggleOnAtTime {
		t.Fatalf("ожидали TOGGLE_ON_AT_TIME, получили %s", got.SuggestionKey)
	}
	if got.Score != 5 {
		t.Fatalf("ожидали скор 5 утром, получили %f", got.Score)
	}
	if got.Action.Type != domain.ActionTypeSetAvailability || !got.Action.SetAvailability.Available {
		t.Fatalf("ожидали действие «стать доступным»")
	}
}

func TestBuildSuggestionsToggleOnEveningScore(t *testing.T) {
	// Вечером базовый скор ниже, вес добавляется поверх.
	weights := &stubWeights{snapshot: domain.WeightSnapshot{
		{SuggestionKey: domain.SuggestionToggleOnAtTime, TargetUserID: 0}: 4,
	}}
	presence := &stubPresence{selfKnown: false}
	service := newService(&stubUsers{}, presence, weights, &stubHistory{}, 20)

	suggestions, err := service.BuildSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Score != 7 {
		t.Fatalf("ожидали одну подсказку со скором 3+4, получили %+v", suggestions)
	}
}

func TestBuildSuggestionsEndToEndScenario(t *testing.T) {
	// Пользователь A доступен в (0,0), пользователь B доступен в (1,1),
	// без истории и весов: ровно PAGE_NEAREST и CHILL_REMINDER, по убыванию скора.
	aLat, aLon := coords(0, 0)
	bLat, bLon := coords(1, 1)
	presence := &stubPresence{
		self:      domain.Presence{UserID: 1, Available: true, Lat: aLat, Lon: aLon},
		selfKnown: true,
		peers: []domain.PeerPresence{
			{Presence: domain.Presence{UserID: 1, Available: true, Lat: aLat, Lon: aLon}, Email: "a@example.com"},
			{Presence: domain.Presence{UserID: 2, Available: true, Lat: bLat, Lon: bLon}, Email: "b@example.com"},
		},
	}
	service := newService(&stubUsers{}, presence, &stubWeights{}, &stubHistory{}, 10)

	suggestions, err := service.BuildSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("ожидали ровно 2 подсказки, получили %d", len(suggestions))
	}
	if suggestions[0].SuggestionKey != domain.SuggestionPageNearest {
		t.Fatalf("ожидали PAGE_NEAREST первым, получили %s", suggestions[0].SuggestionKey)
	}
	if suggestions[1].SuggestionKey != domain.SuggestionChillReminder {
		t.Fatalf("ожидали CHILL_REMINDER вторым, получили %s", suggestions[1].SuggestionKey)
	}
	if suggestions[0].Score < suggestions[1].Score {
		t.Fatalf("ожидали порядок по убыванию скора")
	}
}

func TestBuildSuggestionsFrequentTarget(t *testing.T) {
	users := &stubUsers{users: map[int64]domain.User{3: {ID: 3, Name: "Чарли", Email: "c@example.com"}}}
	history := &stubHistory{aggregates: []domain.PageAggregate{
		{ToUserID: 3, Count: 6, LastSentAt: time.Now()},
		{ToUserID: 4, Count: 2, LastSentAt: time.Now()},
	}}
	presence := &stubPresence{self: domain.Presence{UserID: 1, Available: true}, selfKnown: true}
	service := newService(users, presence, &stubWeights{}, history, 10)

	suggestions, err := service.BuildSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	var frequent *domain.Suggestion
	for i := range suggestions {
		if suggestions[i].SuggestionKey == domain.SuggestionPageFrequentTarget {
			frequent = &suggestions[i]
		}
	}
	if frequent == nil {
		t.Fatalf("ожидали подсказку про частого адресата")
	}
	// 4 + 0 + min(2, 6/3) = 6
	if frequent.Score != 6 {
		t.Fatalf("ожидали скор 6, получили %f", frequent.Score)
	}
	if frequent.TargetUserID == nil || *frequent.TargetUserID != 3 {
		t.Fatalf("ожидали цель 3")
	}
}

func TestBuildSuggestionsFrequentTargetDeletedUser(t *testing.T) {
	history := &stubHistory{aggregates: []domain.PageAggregate{{ToUserID: 9, Count: 4}}}
	presence := &stubPresence{self: domain.Presence{UserID: 1, Available: true}, selfKnown: true}
	service := newService(&stubUsers{}, presence, &stubWeights{}, history, 10)

	suggestions, err := service.BuildSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, s := range suggestions {
		if s.SuggestionKey == domain.SuggestionPageFrequentTarget {
			t.Fatalf("не ожидали подсказку про удалённого адресата")
		}
	}
}

func TestBuildSuggestionsNoCandidates(t *testing.T) {
	// Пользователь доступен, но без координат, друзей и истории:
	// срабатывает только CHILL_REMINDER.
	presence := &stubPresence{self: domain.Presence{UserID: 1, Available: true}, selfKnown: true}
	service := newService(&stubUsers{}, presence, &stubWeights{}, &stubHistory{}, 13)

	suggestions, err := service.BuildSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("ожидали ровно столько подсказок, сколько сработало правил, получили %d", len(suggestions))
	}
}

func TestBuildSuggestionsWeightShiftsOrder(t *testing.T) {
	// Отрицательный вес опускает подсказку ниже нейтральной.
	weights := &stubWeights{snapshot: domain.WeightSnapshot{
		{SuggestionKey: domain.SuggestionPageNearest, TargetUserID: 2}: -10,
	}}
	lat, lon := coords(0, 0)
	peerLat, peerLon := coords(0, 0.01)
	presence := &stubPresence{
		self:      domain.Presence{UserID: 1, Available: true, Lat: lat, Lon: lon},
		selfKnown: true,
		peers: []domain.PeerPresence{
			{Presence: domain.Presence{UserID: 2, Available: true, Lat: peerLat, Lon: peerLon}, Email: "b@example.com"},
		},
	}
	service := newService(&stubUsers{}, presence, weights, &stubHistory{}, 10)

	suggestions, err := service.BuildSuggestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if suggestions[0].SuggestionKey != domain.SuggestionChillReminder {
		t.Fatalf("ожидали, что заминусованная подсказка уйдёт вниз")
	}
}

package suggest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"live-friends/internal/domain"
	"live-friends/internal/infra/metrics"
)

const frequentTargetsLimit = 5

// Service строит список подсказок для пользователя.
type Service struct {
	users    domain.UserRepo
	presence domain.PresenceRepo
	weights  domain.WeightRepo
	history  domain.PageHistory
	ranker   domain.SuggestionRanker
	clock    domain.Clock
	business domain.BusinessMetricRepo
	log      zerolog.Logger
}

// NewService создаёт сервис подсказок.
func NewService(users domain.UserRepo, presence domain.PresenceRepo, weights domain.WeightRepo, history domain.PageHistory, ranker domain.SuggestionRanker, clock domain.Clock, business domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		presence: presence,
		weights:  weights,
		history:  history,
		ranker:   ranker,
		clock:    clock,
		business: business,
		log:      logger,
	}
}

// BuildSuggestions загружает снимки весов и присутствия, прогоняет все
// генераторы и возвращает отранжированный список длиной от 0 до 4.
func (s *Service) BuildSuggestions(ctx context.Context, userID int64) ([]domain.Suggestion, error) {
	metrics.SuggestionRequestsTotal.Inc()
	start := time.Now()
	defer func() {
		metrics.SuggestionBuildSeconds.Observe(time.Since(start).Seconds())
	}()

	snap, err := s.loadSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	var candidates []domain.SuggestionCandidate
	for _, gen := range generators {
		if candidate, ok := gen(snap); ok {
			candidates = append(candidates, candidate)
		}
	}

	suggestions := s.ranker.Rank(candidates)
	for _, suggestion := range suggestions {
		metrics.IncSuggestionShown(string(suggestion.SuggestionKey))
		s.trackShown(ctx, userID, suggestion)
	}
	s.log.Debug().Int64("user_id", userID).Int("candidates", len(candidates)).Int("shown", len(suggestions)).Msg("подсказки построены")
	return suggestions, nil
}

func (s *Service) loadSnapshot(ctx context.Context, userID int64) (snapshot, error) {
	weights, err := s.weights.GetAll(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("снимок весов: %w", err)
	}
	self, selfKnown, err := s.presence.GetSelf(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("своё присутствие: %w", err)
	}
	peers, err := s.presence.ListAvailable(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("доступные друзья: %w", err)
	}

	snap := snapshot{
		UserID:    userID,
		Self:      self,
		SelfKnown: selfKnown,
		Peers:     peers,
		Weights:   weights,
		Bucket:    domain.BucketForHour(s.clock.HourOfDay()),
	}

	aggregates, err := s.history.RecentSentTo(ctx, userID, frequentTargetsLimit)
	if err != nil {
		return snapshot{}, fmt.Errorf("история пейджей: %w", err)
	}
	if len(aggregates) > 0 {
		top := aggregates[0]
		target, err := s.users.GetByID(ctx, top.ToUserID)
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			// Адресат удалён: правило частого адресата просто не срабатывает.
		case err != nil:
			return snapshot{}, fmt.Errorf("разрешение частого адресата: %w", err)
		default:
			snap.FrequentTarget = &target
			snap.FrequentCount = top.Count
		}
	}
	return snap, nil
}

func (s *Service) trackShown(ctx context.Context, userID int64, suggestion domain.Suggestion) {
	if s.business == nil {
		return
	}
	metric := domain.BusinessMetric{
		Event:        "suggestion_shown",
		UserID:       &userID,
		TargetUserID: suggestion.TargetUserID,
		Metadata: map[string]any{
			"suggestion_key": string(suggestion.SuggestionKey),
			"score":          suggestion.Score,
		},
		OccurredAt: s.clock.Now(),
	}
	if err := s.business.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Msg("не удалось записать метрику показа")
	}
}

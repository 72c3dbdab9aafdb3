package feedback

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"live-friends/internal/domain"
	"live-friends/internal/infra/metrics"
)

// Service записывает отклики на подсказки и ведёт выученные веса.
// Это единственный путь записи весов.
type Service struct {
	weights  domain.WeightRepo
	log      domain.FeedbackLog
	business domain.BusinessMetricRepo
	clock    domain.Clock
	logger   zerolog.Logger
}

// NewService создаёт сервис откликов.
func NewService(weights domain.WeightRepo, feedbackLog domain.FeedbackLog, business domain.BusinessMetricRepo, clock domain.Clock, logger zerolog.Logger) *Service {
	return &Service{weights: weights, log: feedbackLog, business: business, clock: clock, logger: logger}
}

// RecordFeedback валидирует отклик, добавляет неизменяемую запись в журнал,
// атомарно сдвигает вес на ±2 и зажимает результат в [-10,10].
// Журнал пишется первым: аудит не теряется, даже если обновление веса упало.
// Возвращает новое (зажатое) значение веса.
func (s *Service) RecordFeedback(ctx context.Context, userID int64, rawKey string, targetUserID *int64, rawAction string) (int, error) {
	key, err := domain.ParseSuggestionKey(rawKey)
	if err != nil {
		return 0, err
	}
	action, err := domain.ParseFeedbackAction(rawAction)
	if err != nil {
		return 0, err
	}

	if _, err := s.log.Append(ctx, domain.SuggestionFeedback{
		UserID:        userID,
		SuggestionKey: key,
		TargetUserID:  targetUserID,
		Action:        action,
	}); err != nil {
		return 0, fmt.Errorf("запись отклика: %w", err)
	}

	// Инкремент применяется к сырому значению до зажима: повторный отклик
	// на границе не должен молча терять шаг инкремента.
	raw, err := s.weights.UpsertIncrement(ctx, userID, key, targetUserID, action.WeightDelta())
	if err != nil {
		return 0, fmt.Errorf("инкремент веса: %w", err)
	}
	clamped := domain.ClampWeight(raw)
	if clamped != raw {
		if err := s.weights.SetWeight(ctx, userID, key, targetUserID, clamped); err != nil {
			return 0, fmt.Errorf("зажим веса: %w", err)
		}
	}

	metrics.IncFeedback(string(key), string(action))
	s.trackWeightUpdated(ctx, userID, key, targetUserID, action, clamped)
	return clamped, nil
}

// History возвращает отклики пользователя в порядке добавления.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]domain.SuggestionFeedback, error) {
	return s.log.ListByUser(ctx, userID, limit)
}

func (s *Service) trackWeightUpdated(ctx context.Context, userID int64, key domain.SuggestionKey, targetUserID *int64, action domain.FeedbackAction, weight int) {
	if s.business == nil {
		return
	}
	metric := domain.BusinessMetric{
		Event:        "suggestion_weight_updated",
		UserID:       &userID,
		TargetUserID: targetUserID,
		Metadata: map[string]any{
			"suggestion_key": string(key),
			"action":         string(action),
			"weight":         weight,
		},
		OccurredAt: s.clock.Now(),
	}
	if err := s.business.RecordBusinessMetric(ctx, metric); err != nil {
		s.logger.Warn().Err(err).Msg("не удалось записать метрику обновления веса")
	}
}

package presence

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"live-friends/internal/domain"
)

// ErrBadCoordinates возвращается при координатах вне допустимых диапазонов.
var ErrBadCoordinates = errors.New("некорректные координаты")

// Service управляет доступностью и живой локацией пользователя.
type Service struct {
	repo     domain.PresenceRepo
	business domain.BusinessMetricRepo
	clock    domain.Clock
	log      zerolog.Logger
}

// NewService создаёт сервис присутствия.
func NewService(repo domain.PresenceRepo, business domain.BusinessMetricRepo, clock domain.Clock, logger zerolog.Logger) *Service {
	return &Service{repo: repo, business: business, clock: clock, log: logger}
}

// SetAvailability переключает доступность. Уход в скрытый режим стирает
// координаты: они существуют только у доступного пользователя.
func (s *Service) SetAvailability(ctx context.Context, userID int64, available bool) (domain.Presence, error) {
	presence, err := s.repo.SetAvailability(ctx, userID, available)
	if err != nil {
		return domain.Presence{}, fmt.Errorf("переключение доступности: %w", err)
	}
	s.track(ctx, userID, map[string]any{"available": available})
	return presence, nil
}

// UpdateLocation обновляет живую локацию. Доступность должна быть включена
// заранее: обновление у скрытого пользователя отклоняется.
func (s *Service) UpdateLocation(ctx context.Context, userID int64, lat, lon float64, accuracy *float64) (domain.Presence, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return domain.Presence{}, ErrBadCoordinates
	}
	presence, err := s.repo.UpdateLocation(ctx, userID, lat, lon, accuracy)
	if err != nil {
		if errors.Is(err, domain.ErrPresenceUnavailable) {
			return domain.Presence{}, err
		}
		return domain.Presence{}, fmt.Errorf("обновление локации: %w", err)
	}
	s.track(ctx, userID, map[string]any{"available": true, "lat": lat, "lon": lon})
	return presence, nil
}

// ListAvailable возвращает доступных пользователей для карты.
func (s *Service) ListAvailable(ctx context.Context) ([]domain.PeerPresence, error) {
	return s.repo.ListAvailable(ctx)
}

func (s *Service) track(ctx context.Context, userID int64, metadata map[string]any) {
	if s.business == nil {
		return
	}
	metric := domain.BusinessMetric{
		Event:      "presence_updated",
		UserID:     &userID,
		Metadata:   metadata,
		OccurredAt: s.clock.Now(),
	}
	if err := s.business.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Msg("не удалось записать метрику присутствия")
	}
}

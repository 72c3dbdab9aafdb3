package paging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"live-friends/internal/domain"
	"live-friends/internal/infra/metrics"
)

// ErrSelfPage возвращается при попытке пейджнуть самого себя.
var ErrSelfPage = errors.New("нельзя пейджнуть самого себя")

// ErrMessageTooLong возвращается, если сообщение длиннее лимита.
var ErrMessageTooLong = errors.New("сообщение слишком длинное")

// ErrCooldownActive помечает отказ из-за активного кулдауна.
var ErrCooldownActive = errors.New("кулдаун активен")

// CooldownError несёт оставшееся время ожидания. Это доменное состояние,
// а не сбой: вызывающий слой переводит его в ответ о лимите частоты.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("кулдаун активен, попробуйте через %s", e.Remaining.Round(time.Second))
}

// Unwrap позволяет распознавать состояние через errors.Is.
func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}

// Service решает, разрешена ли отправка пейджа, передаёт его транспорту
// и фиксирует исходы доставки.
type Service struct {
	users      domain.UserRepo
	history    domain.PageHistory
	gate       domain.CooldownGate
	dispatcher domain.PageDispatcher
	mailer     domain.PageMailer
	business   domain.BusinessMetricRepo
	clock      domain.Clock
	maxMessage int
	log        zerolog.Logger
}

// NewService создаёт сервис пейджинга.
func NewService(users domain.UserRepo, history domain.PageHistory, gate domain.CooldownGate, dispatcher domain.PageDispatcher, mailer domain.PageMailer, business domain.BusinessMetricRepo, clock domain.Clock, maxMessage int, logger zerolog.Logger) *Service {
	if maxMessage <= 0 {
		maxMessage = 500
	}
	return &Service{
		users:      users,
		history:    history,
		gate:       gate,
		dispatcher: dispatcher,
		mailer:     mailer,
		business:   business,
		clock:      clock,
		maxMessage: maxMessage,
		log:        logger,
	}
}

// SendPage проверяет запрос, атомарно занимает окно кулдауна и передаёт
// пейдж транспорту. Подтверждённая передача потребляет окно независимо от
// итога доставки; неудавшаяся передача окно возвращает.
func (s *Service) SendPage(ctx context.Context, fromUserID, toUserID int64, message string) (domain.PageJob, error) {
	if fromUserID == toUserID {
		return domain.PageJob{}, ErrSelfPage
	}
	if len([]rune(message)) > s.maxMessage {
		return domain.PageJob{}, ErrMessageTooLong
	}
	if _, err := s.users.GetByID(ctx, toUserID); err != nil {
		return domain.PageJob{}, fmt.Errorf("получатель: %w", err)
	}

	ok, remaining, err := s.gate.Reserve(ctx, fromUserID, toUserID)
	if err != nil {
		return domain.PageJob{}, fmt.Errorf("проверка кулдауна: %w", err)
	}
	if !ok {
		metrics.CooldownRejectionsTotal.Inc()
		return domain.PageJob{}, &CooldownError{Remaining: remaining}
	}

	job := domain.PageJob{
		ID:          uuid.NewString(),
		FromUserID:  fromUserID,
		ToUserID:    toUserID,
		Message:     message,
		RequestedAt: s.clock.Now(),
	}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		// Передача не состоялась: окно возвращается, отправитель не
		// наказан за сбой вне его контроля.
		if releaseErr := s.gate.Release(ctx, fromUserID, toUserID); releaseErr != nil {
			s.log.Error().Err(releaseErr).Int64("from", fromUserID).Int64("to", toUserID).Msg("не удалось вернуть окно кулдауна")
		}
		return domain.PageJob{}, fmt.Errorf("передача пейджа: %w", err)
	}
	return job, nil
}

// CanSend сообщает, разрешена ли отправка для пары, не занимая окно.
// Пара без истории всегда разрешена.
func (s *Service) CanSend(ctx context.Context, fromUserID, toUserID int64) (bool, time.Duration, error) {
	return s.gate.CanSend(ctx, fromUserID, toUserID)
}

// RecordSend помечает подтверждённую отправку для пары.
func (s *Service) RecordSend(ctx context.Context, fromUserID, toUserID int64) error {
	return s.gate.RecordSend(ctx, fromUserID, toUserID)
}

// Deliver выполняет попытку доставки и фиксирует исход ровно одним
// PageEvent: sent при успехе, failed с текстом ошибки при сбое.
// Сбой доставки — бизнесовый исход, не исключение.
func (s *Service) Deliver(ctx context.Context, job domain.PageJob) (domain.PageEvent, error) {
	event := domain.PageEvent{
		FromUserID: job.FromUserID,
		ToUserID:   job.ToUserID,
		Message:    job.Message,
		Status:     domain.PageEventSent,
	}

	if err := s.deliverMail(ctx, job); err != nil {
		event.Status = domain.PageEventFailed
		event.Error = err.Error()
	}

	saved, err := s.history.AppendPageEvent(ctx, event)
	if err != nil {
		return domain.PageEvent{}, fmt.Errorf("запись события пейджа: %w", err)
	}
	metrics.IncPageSend(string(saved.Status))
	s.trackOutcome(ctx, saved)
	return saved, nil
}

func (s *Service) deliverMail(ctx context.Context, job domain.PageJob) error {
	recipient, err := s.users.GetByID(ctx, job.ToUserID)
	if err != nil {
		return fmt.Errorf("получатель: %w", err)
	}
	sender, err := s.users.GetByID(ctx, job.FromUserID)
	if err != nil {
		return fmt.Errorf("отправитель: %w", err)
	}
	if err := s.mailer.SendPage(ctx, recipient.Email, sender.DisplayName(), job.Message); err != nil {
		return err
	}
	return nil
}

func (s *Service) trackOutcome(ctx context.Context, event domain.PageEvent) {
	if s.business == nil {
		return
	}
	name := "page_sent"
	metadata := map[string]any{"to_user_id": event.ToUserID}
	if event.Status == domain.PageEventFailed {
		name = "page_failed"
		metadata["error"] = event.Error
	}
	metric := domain.BusinessMetric{
		Event:        name,
		UserID:       &event.FromUserID,
		TargetUserID: &event.ToUserID,
		Metadata:     metadata,
		OccurredAt:   s.clock.Now(),
	}
	if err := s.business.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Msg("не удалось записать метрику исхода пейджа")
	}
}

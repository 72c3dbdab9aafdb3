package paging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"live-friends/internal/adapters/cooldown"
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

type memHistory struct {
	events []domain.PageEvent
}

func (m *memHistory) AppendPageEvent(_ context.Context, event domain.PageEvent) (domain.PageEvent, error) {
	event.ID = int64(len(m.events) + 1)
	event.CreatedAt = time.Now()
	m.events = append(m.events, event)
	return event, nil
}

func (m *memHistory) RecentSentTo(context.Context, int64, int) ([]domain.PageAggregate, error) {
	return nil, nil
}

type stubDispatcher struct {
	jobs []domain.PageJob
	err  error
}

func (s *stubDispatcher) Dispatch(_ context.Context, job domain.PageJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type stubMailer struct {
	sent []string
	err  error
}

func (s *stubMailer) SendPage(_ context.Context, toEmail, _, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, toEmail)
	return nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) HourOfDay() int { return c.now.Hour() }

func defaultUsers() *stubUsers {
	return &stubUsers{users: map[int64]domain.User{
		1: {ID: 1, Name: "Алиса", Email: "alice@example.com"},
		2: {ID: 2, Name: "Боб", Email: "bob@example.com"},
	}}
}

func newTestService(users *stubUsers, history *memHistory, dispatcher *stubDispatcher, mailer *stubMailer) (*Service, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	gate := cooldown.NewMemoryGate(5*time.Minute, clk)
	return NewService(users, history, gate, dispatcher, mailer, nil, clk, 500, zerolog.Nop()), clk
}

func TestSendPageRejectsSelf(t *testing.T) {
	service, _ := newTestService(defaultUsers(), &memHistory{}, &stubDispatcher{}, &stubMailer{})
	if _, err := service.SendPage(context.Background(), 1, 1, ""); !errors.Is(err, ErrSelfPage) {
		t.Fatalf("ожидали ErrSelfPage, получили %v", err)
	}
}

func TestSendPageRejectsUnknownRecipient(t *testing.T) {
	service, _ := newTestService(defaultUsers(), &memHistory{}, &stubDispatcher{}, &stubMailer{})
	if _, err := service.SendPage(context.Background(), 1, 99, ""); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("ожидали ErrUserNotFound, получили %v", err)
	}
}

func TestSendPageRejectsLongMessage(t *testing.T) {
	service, _ := newTestService(defaultUsers(), &memHistory{}, &stubDispatcher{}, &stubMailer{})
	long := strings.Repeat("а", 501)
	if _, err := service.SendPage(context.Background(), 1, 2, long); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("ожидали ErrMessageTooLong, получили %v", err)
	}
}

func TestSendPageCooldownWithinWindow(t *testing.T) {
	dispatcher := &stubDispatcher{}
	service, clk := newTestService(defaultUsers(), &memHistory{}, dispatcher, &stubMailer{})
	ctx := context.Background()

	if _, err := service.SendPage(ctx, 1, 2, "привет"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(dispatcher.jobs) != 1 {
		t.Fatalf("ожидали 1 задачу в диспетчере")
	}

	clk.now = clk.now.Add(2 * time.Minute)
	_, err := service.SendPage(ctx, 1, 2, "ещё раз")
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("ожидали ErrCooldownActive, получили %v", err)
	}
	var cooldownErr *CooldownError
	if !errors.As(err, &cooldownErr) {
		t.Fatalf("ожидали CooldownError")
	}
	if cooldownErr.Remaining != 3*time.Minute {
		t.Fatalf("ожидали остаток 3m, получили %s", cooldownErr.Remaining)
	}

	clk.now = clk.now.Add(3 * time.Minute)
	if _, err := service.SendPage(ctx, 1, 2, "после окна"); err != nil {
		t.Fatalf("не ожидали ошибку после истечения окна: %v", err)
	}
}

func TestSendPageDispatchFailureReleasesWindow(t *testing.T) {
	dispatcher := &stubDispatcher{err: errors.New("очередь недоступна")}
	service, _ := newTestService(defaultUsers(), &memHistory{}, dispatcher, &stubMailer{})
	ctx := context.Background()

	if _, err := service.SendPage(ctx, 1, 2, ""); err == nil {
		t.Fatalf("ожидали ошибку передачи")
	}

	// Окно возвращено: повторная попытка сразу разрешена.
	dispatcher.err = nil
	if _, err := service.SendPage(ctx, 1, 2, ""); err != nil {
		t.Fatalf("не ожидали ошибку после возврата окна: %v", err)
	}
}

func TestCanSendNoHistoryAllowed(t *testing.T) {
	service, _ := newTestService(defaultUsers(), &memHistory{}, &stubDispatcher{}, &stubMailer{})
	ok, remaining, err := service.CanSend(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !ok || remaining != 0 {
		t.Fatalf("ожидали разрешение для пары без истории")
	}
}

func TestDeliverSuccessAppendsSentEvent(t *testing.T) {
	history := &memHistory{}
	mailer := &stubMailer{}
	service, _ := newTestService(defaultUsers(), history, &stubDispatcher{}, mailer)

	event, err := service.Deliver(context.Background(), domain.PageJob{FromUserID: 1, ToUserID: 2, Message: "привет"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if event.Status != domain.PageEventSent {
		t.Fatalf("ожидали статус sent, получили %s", event.Status)
	}
	if len(history.events) != 1 {
		t.Fatalf("ожидали ровно одно событие")
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "bob@example.com" {
		t.Fatalf("ожидали письмо на bob@example.com")
	}
}

func TestDeliverFailureAppendsFailedEvent(t *testing.T) {
	history := &memHistory{}
	mailer := &stubMailer{err: errors.New("smtp: connection refused")}
	service, _ := newTestService(defaultUsers(), history, &stubDispatcher{}, mailer)

	event, err := service.Deliver(context.Background(), domain.PageJob{FromUserID: 1, ToUserID: 2})
	if err != nil {
		t.Fatalf("сбой доставки — бизнесовый исход, не ошибка: %v", err)
	}
	if event.Status != domain.PageEventFailed {
		t.Fatalf("ожидали статус failed, получили %s", event.Status)
	}
	if event.Error == "" {
		t.Fatalf("ожидали текст ошибки в событии")
	}
	if len(history.events) != 1 {
		t.Fatalf("ожидали ровно одно событие")
	}
}

func TestDeliverUnknownRecipientRecordsFailure(t *testing.T) {
	history := &memHistory{}
	service, _ := newTestService(defaultUsers(), history, &stubDispatcher{}, &stubMailer{})

	event, err := service.Deliver(context.Background(), domain.PageJob{FromUserID: 1, ToUserID: 99})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if event.Status != domain.PageEventFailed {
		t.Fatalf("ожидали статус failed для удалённого получателя")
	}
}

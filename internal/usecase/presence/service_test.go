package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"live-friends/internal/domain"
)

// memPresence воспроизводит контракт PresenceRepo: координаты живут только
// у доступного пользователя.
type memPresence struct {
	rows map[int64]domain.Presence
}

func newMemPresence() *memPresence {
	return &memPresence{rows: make(map[int64]domain.Presence)}
}

func (m *memPresence) GetSelf(_ context.Context, userID int64) (domain.Presence, bool, error) {
	row, ok := m.rows[userID]
	return row, ok, nil
}

func (m *memPresence) ListAvailable(context.Context) ([]domain.PeerPresence, error) {
	var peers []domain.PeerPresence
	for _, row := range m.rows {
		if row.Available {
			peers = append(peers, domain.PeerPresence{Presence: row})
		}
	}
	return peers, nil
}

func (m *memPresence) SetAvailability(_ context.Context, userID int64, available bool) (domain.Presence, error) {
	row := m.rows[userID]
	row.UserID = userID
	row.Available = available
	if !available {
		row.Lat, row.Lon, row.Accuracy = nil, nil, nil
	}
	m.rows[userID] = row
	return row, nil
}

func (m *memPresence) UpdateLocation(_ context.Context, userID int64, lat, lon float64, accuracy *float64) (domain.Presence, error) {
	row, ok := m.rows[userID]
	if !ok || !row.Available {
		return domain.Presence{}, domain.ErrPresenceUnavailable
	}
	row.Lat, row.Lon, row.Accuracy = &lat, &lon, accuracy
	m.rows[userID] = row
	return row, nil
}

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }
func (c *stubClock) HourOfDay() int { return c.now.Hour() }

func newService(repo *memPresence) *Service {
	return NewService(repo, nil, &stubClock{now: time.Now()}, zerolog.Nop())
}

func TestUpdateLocationRequiresAvailability(t *testing.T) {
	repo := newMemPresence()
	service := newService(repo)
	ctx := context.Background()

	if _, err := service.UpdateLocation(ctx, 1, 10, 20, nil); !errors.Is(err, domain.ErrPresenceUnavailable) {
		t.Fatalf("ожидали ErrPresenceUnavailable, получили %v", err)
	}

	if _, err := service.SetAvailability(ctx, 1, true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	presence, err := service.UpdateLocation(ctx, 1, 10, 20, nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !presence.HasCoords() || *presence.Lat != 10 || *presence.Lon != 20 {
		t.Fatalf("ожидали сохранённые координаты")
	}
}

func TestSetUnavailableClearsCoordinates(t *testing.T) {
	repo := newMemPresence()
	service := newService(repo)
	ctx := context.Background()

	if _, err := service.SetAvailability(ctx, 1, true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := service.UpdateLocation(ctx, 1, 10, 20, nil); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	presence, err := service.SetAvailability(ctx, 1, false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if presence.HasCoords() || presence.Accuracy != nil {
		t.Fatalf("ожидали очистку координат при уходе в скрытый режим")
	}
}

func TestUpdateLocationValidatesRange(t *testing.T) {
	service := newService(newMemPresence())
	if _, err := service.UpdateLocation(context.Background(), 1, 91, 0, nil); !errors.Is(err, ErrBadCoordinates) {
		t.Fatalf("ожидали ErrBadCoordinates, получили %v", err)
	}
	if _, err := service.UpdateLocation(context.Background(), 1, 0, -181, nil); !errors.Is(err, ErrBadCoordinates) {
		t.Fatalf("ожидали ErrBadCoordinates, получили %v", err)
	}
}

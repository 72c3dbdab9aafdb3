package clock

import (
	"time"

	"live-friends/internal/domain"
)

// System реализует domain.Clock на основе системных часов.
type System struct {
	loc *time.Location
}

// NewSystem создаёт часы в указанной таймзоне. Пустая строка или
// некорректная зона означает локальное время процесса.
func NewSystem(tz string) *System {
	loc := time.Local
	if tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}
	return &System{loc: loc}
}

// Now возвращает текущее время.
func (c *System) Now() time.Time {
	return time.Now().In(c.loc)
}

// HourOfDay возвращает час суток [0,24).
func (c *System) HourOfDay() int {
	return c.Now().Hour()
}

var _ domain.Clock = (*System)(nil)

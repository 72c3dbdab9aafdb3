package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"live-friends/internal/domain"
	"live-friends/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo           = (*Postgres)(nil)
	_ domain.PresenceRepo       = (*Postgres)(nil)
	_ domain.WeightRepo         = (*Postgres)(nil)
	_ domain.FeedbackLog        = (*Postgres)(nil)
	_ domain.PageHistory        = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// targetOrZero приводит необязательную цель к значению колонки:
// 0 означает «любая цель».
func targetOrZero(targetUserID *int64) int64 {
	if targetUserID == nil {
		return 0
	}
	return *targetUserID
}

func targetFromColumn(value int64) *int64 {
	if value == 0 {
		return nil
	}
	return &value
}

// GetByID реализует domain.UserRepo.
func (p *Postgres) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var user domain.User
	var name sql.NullString
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, email, name, created_at FROM users WHERE id = $1
`, userID).Scan(&user.ID, &user.Email, &name, &user.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if name.Valid {
		user.Name = name.String
	}
	return user, nil
}

// UpsertByEmail создаёт или обновляет пользователя по email.
func (p *Postgres) UpsertByEmail(ctx context.Context, email, name string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))
	var user domain.User
	var nameValue sql.NullString
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO users (email, name)
VALUES ($1, NULLIF($2,''))
ON CONFLICT (email) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name,''), users.name)
RETURNING id, email, name, created_at
`, email, strings.TrimSpace(name)).Scan(&user.ID, &user.Email, &nameValue, &user.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, err
	}
	if nameValue.Valid {
		user.Name = nameValue.String
	}
	return user, nil
}

// GetSelf возвращает присутствие пользователя, если оно есть.
func (p *Postgres) GetSelf(ctx context.Context, userID int64) (domain.Presence, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var presence domain.Presence
	var lat, lon, accuracy sql.NullFloat64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, available, lat, lon, accuracy, updated_at FROM presence WHERE user_id = $1
`, userID).Scan(&presence.UserID, &presence.Available, &lat, &lon, &accuracy, &presence.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "presence_get", "presence", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Presence{}, false, nil
	}
	if err != nil {
		return domain.Presence{}, false, err
	}
	applyCoords(&presence, lat, lon, accuracy)
	return presence, true, nil
}

// ListAvailable возвращает доступных пользователей вместе с профилями.
func (p *Postgres) ListAvailable(ctx context.Context) ([]domain.PeerPresence, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT pr.user_id, pr.available, pr.lat, pr.lon, pr.accuracy, pr.updated_at, COALESCE(u.name,''), u.email
FROM presence pr
JOIN users u ON u.id = pr.user_id
WHERE pr.available
ORDER BY pr.user_id
`)
	metrics.ObserveNetworkRequest("postgres", "presence_list_available", "presence", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []domain.PeerPresence
	for rows.Next() {
		var peer domain.PeerPresence
		var lat, lon, accuracy sql.NullFloat64
		if err := rows.Scan(&peer.UserID, &peer.Available, &lat, &lon, &accuracy, &peer.UpdatedAt, &peer.Name, &peer.Email); err != nil {
			return nil, err
		}
		applyCoords(&peer.Presence, lat, lon, accuracy)
		peers = append(peers, peer)
	}
	return peers, rows.Err()
}

// SetAvailability переключает доступность. При выключении координаты
// обнуляются: они существуют только у доступного пользователя.
func (p *Postgres) SetAvailability(ctx context.Context, userID int64, available bool) (domain.Presence, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var presence domain.Presence
	var lat, lon, accuracy sql.NullFloat64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO presence (user_id, available, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET
	available = EXCLUDED.available,
	lat = CASE WHEN EXCLUDED.available THEN presence.lat ELSE NULL END,
	lon = CASE WHEN EXCLUDED.available THEN presence.lon ELSE NULL END,
	accuracy = CASE WHEN EXCLUDED.available THEN presence.accuracy ELSE NULL END,
	updated_at = now()
RETURNING user_id, available, lat, lon, accuracy, updated_at
`, userID, available).Scan(&presence.UserID, &presence.Available, &lat, &lon, &accuracy, &presence.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "presence_set_availability", "presence", start, err)
	if err != nil {
		return domain.Presence{}, err
	}
	applyCoords(&presence, lat, lon, accuracy)
	return presence, nil
}

// UpdateLocation обновляет координаты доступного пользователя.
func (p *Postgres) UpdateLocation(ctx context.Context, userID int64, lat, lon float64, accuracy *float64) (domain.Presence, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var presence domain.Presence
	var latVal, lonVal, accVal sql.NullFloat64
	var acc sql.NullFloat64
	if accuracy != nil {
		acc = sql.NullFloat64{Float64: *accuracy, Valid: true}
	}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE presence SET lat = $2, lon = $3, accuracy = $4, updated_at = now()
WHERE user_id = $1 AND available
RETURNING user_id, available, lat, lon, accuracy, updated_at
`, userID, lat, lon, acc).Scan(&presence.UserID, &presence.Available, &latVal, &lonVal, &accVal, &presence.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "presence_update_location", "presence", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Presence{}, domain.ErrPresenceUnavailable
	}
	if err != nil {
		return domain.Presence{}, err
	}
	applyCoords(&presence, latVal, lonVal, accVal)
	return presence, nil
}

// GetAll возвращает снимок весов пользователя.
func (p *Postgres) GetAll(ctx context.Context, userID int64) (domain.WeightSnapshot, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT suggestion_key, target_user_id, weight FROM suggestion_weights WHERE user_id = $1
`, userID)
	metrics.ObserveNetworkRequest("postgres", "weights_get_all", "suggestion_weights", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := make(domain.WeightSnapshot)
	for rows.Next() {
		var key string
		var target int64
		var weight int
		if err := rows.Scan(&key, &target, &weight); err != nil {
			return nil, err
		}
		snapshot[domain.WeightKey{SuggestionKey: domain.SuggestionKey(key), TargetUserID: target}] = weight
	}
	return snapshot, rows.Err()
}

// UpsertIncrement атомарно увеличивает вес и возвращает сырое значение
// после инкремента. Зажим в границы делает вызывающая сторона.
func (p *Postgres) UpsertIncrement(ctx context.Context, userID int64, key domain.SuggestionKey, targetUserID *int64, delta int) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var weight int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO suggestion_weights (user_id, suggestion_key, target_user_id, weight, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id, suggestion_key, target_user_id) DO UPDATE SET
	weight = suggestion_weights.weight + $4,
	updated_at = now()
RETURNING weight
`, userID, string(key), targetOrZero(targetUserID), delta).Scan(&weight)
	metrics.ObserveNetworkRequest("postgres", "weights_upsert_increment", "suggestion_weights", start, err)
	if err != nil {
		return 0, err
	}
	return weight, nil
}

// SetWeight записывает итоговое значение веса.
func (p *Postgres) SetWeight(ctx context.Context, userID int64, key domain.SuggestionKey, targetUserID *int64, weight int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE suggestion_weights SET weight = $4, updated_at = now()
WHERE user_id = $1 AND suggestion_key = $2 AND target_user_id = $3
`, userID, string(key), targetOrZero(targetUserID), weight)
	metrics.ObserveNetworkRequest("postgres", "weights_set", "suggestion_weights", start, err)
	return err
}

// Append добавляет запись отклика в журнал.
func (p *Postgres) Append(ctx context.Context, entry domain.SuggestionFeedback) (domain.SuggestionFeedback, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO suggestion_feedback (user_id, suggestion_key, target_user_id, action)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at
`, entry.UserID, string(entry.SuggestionKey), targetOrZero(entry.TargetUserID), string(entry.Action)).Scan(&entry.ID, &entry.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "feedback_append", "suggestion_feedback", start, err)
	if err != nil {
		return domain.SuggestionFeedback{}, err
	}
	return entry, nil
}

// ListByUser возвращает отклики пользователя в порядке добавления.
func (p *Postgres) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.SuggestionFeedback, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, suggestion_key, target_user_id, action, created_at
FROM suggestion_feedback
WHERE user_id = $1
ORDER BY id
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "feedback_list", "suggestion_feedback", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.SuggestionFeedback
	for rows.Next() {
		var entry domain.SuggestionFeedback
		var key, action string
		var target int64
		if err := rows.Scan(&entry.ID, &entry.UserID, &key, &target, &action, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.SuggestionKey = domain.SuggestionKey(key)
		entry.Action = domain.FeedbackAction(action)
		entry.TargetUserID = targetFromColumn(target)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AppendPageEvent добавляет запись об отправке пейджа.
func (p *Postgres) AppendPageEvent(ctx context.Context, event domain.PageEvent) (domain.PageEvent, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO page_events (from_user_id, to_user_id, message, status, error)
VALUES ($1, $2, NULLIF($3,''), $4, NULLIF($5,''))
RETURNING id, created_at
`, event.FromUserID, event.ToUserID, event.Message, string(event.Status), event.Error).Scan(&event.ID, &event.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "page_events_append", "page_events", start, err)
	if err != nil {
		return domain.PageEvent{}, err
	}
	return event, nil
}

// RecentSentTo возвращает агрегаты исходящих пейджей отправителя.
func (p *Postgres) RecentSentTo(ctx context.Context, fromUserID int64, limit int) ([]domain.PageAggregate, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 5
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT to_user_id, COUNT(*), MAX(created_at)
FROM page_events
WHERE from_user_id = $1
GROUP BY to_user_id
ORDER BY COUNT(*) DESC, MAX(created_at) DESC
LIMIT $2
`, fromUserID, limit)
	metrics.ObserveNetworkRequest("postgres", "page_events_recent_sent_to", "page_events", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggregates []domain.PageAggregate
	for rows.Next() {
		var agg domain.PageAggregate
		if err := rows.Scan(&agg.ToUserID, &agg.Count, &agg.LastSentAt); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates, rows.Err()
}

// RecordBusinessMetric сохраняет продуктовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var userID sql.NullInt64
	if metric.UserID != nil {
		userID = sql.NullInt64{Int64: *metric.UserID, Valid: true}
	}
	var targetUserID sql.NullInt64
	if metric.TargetUserID != nil {
		targetUserID = sql.NullInt64{Int64: *metric.TargetUserID, Valid: true}
	}
	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, target_user_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, metric.Event, userID, targetUserID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

func applyCoords(presence *domain.Presence, lat, lon, accuracy sql.NullFloat64) {
	if lat.Valid {
		v := lat.Float64
		presence.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		presence.Lon = &v
	}
	if accuracy.Valid {
		v := accuracy.Float64
		presence.Accuracy = &v
	}
}

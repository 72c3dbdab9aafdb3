package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"live-friends/internal/adapters/cooldown"
	"live-friends/internal/adapters/dispatch"
	"live-friends/internal/adapters/ranker"
	"live-friends/internal/adapters/repo"
	"live-friends/internal/domain"
	"live-friends/internal/infra/clock"
	"live-friends/internal/infra/config"
	"live-friends/internal/infra/db"
	httpinfra "live-friends/internal/infra/http"
	"live-friends/internal/infra/log"
	"live-friends/internal/infra/metrics"
	"live-friends/internal/infra/queue"
	feedbackusecase "live-friends/internal/usecase/feedback"
	pagingusecase "live-friends/internal/usecase/paging"
	presenceusecase "live-friends/internal/usecase/presence"
	suggestusecase "live-friends/internal/usecase/suggest"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		zlog.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	systemClock := clock.NewSystem(cfg.TZ)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	var gate domain.CooldownGate
	if redisClient != nil {
		gate = cooldown.NewRedisGate(redisClient, cfg.Paging.Cooldown)
	} else {
		logger.Warn().Msg("api: REDIS_ADDR не задан, кулдаун работает в памяти одного инстанса")
		gate = cooldown.NewMemoryGate(cfg.Paging.Cooldown, systemClock)
	}

	var pageQueue domain.PageQueue
	switch {
	case cfg.AMQPURL != "":
		rabbit, err := queue.NewRabbitPageQueue(cfg.AMQPURL, cfg.Queues.Pages)
		if err != nil {
			zlog.Fatal().Err(err).Msg("api: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		pageQueue = rabbit
	case redisClient != nil:
		pageQueue = queue.NewRedisPageQueue(redisClient, cfg.Queues.Pages)
	default:
		zlog.Fatal().Msg("api: нужен AMQP_URL или REDIS_ADDR для очереди пейджей")
	}

	dispatcher := dispatch.NewQueueDispatcher(pageQueue, systemClock)

	suggestSvc := suggestusecase.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, ranker.NewSimple(), systemClock, repoAdapter, logger.With().Str("component", "suggest").Logger())
	feedbackSvc := feedbackusecase.NewService(repoAdapter, repoAdapter, repoAdapter, systemClock, logger.With().Str("component", "feedback").Logger())
	pagingSvc := pagingusecase.NewService(repoAdapter, repoAdapter, gate, dispatcher, nil, repoAdapter, systemClock, cfg.Paging.MaxMessage, logger.With().Str("component", "paging").Logger())
	presenceSvc := presenceusecase.NewService(repoAdapter, repoAdapter, systemClock, logger.With().Str("component", "presence").Logger())

	server := httpinfra.NewServer(logger)
	server.Router.Group(func(protected chi.Router) {
		protected.Use(httpinfra.SessionAuthMiddleware(cfg.SessionSecret))

		protected.Get("/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.UserIDFromContext(r.Context())
			user, err := repoAdapter.GetByID(r.Context(), userID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"user": userView(user)})
		})

		protected.Post("/api/v1/availability", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.UserIDFromContext(r.Context())
			var req struct {
				Available *bool `json:"available"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Available == nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "ожидали поле available")
				return
			}
			presence, err := presenceSvc.SetAvailability(r.Context(), userID, *req.Available)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"presence": presenceView(presence)})
		})

		protected.Post("/api/v1/location", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.UserIDFromContext(r.Context())
			var req struct {
				Lat      *float64 `json:"lat"`
				Lon      *float64 `json:"lon"`
				Accuracy *float64 `json:"accuracy"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Lat == nil || req.Lon == nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "ожидали поля lat и lon")
				return
			}
			if _, err := presenceSvc.UpdateLocation(r.Context(), userID, *req.Lat, *req.Lon, req.Accuracy); err != nil {
				writeDomainError(w, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
		})

		protected.Get("/api/v1/presence", func(w http.ResponseWriter, r *http.Request) {
			peers, err := presenceSvc.ListAvailable(r.Context())
			if err != nil {
				writeDomainError(w, err)
				return
			}
			views := make([]map[string]any, 0, len(peers))
			for _, peer := range peers {
				views = append(views, map[string]any{
					"user_id":    peer.UserID,
					"name":       peer.Name,
					"email":      peer.Email,
					"lat":        peer.Lat,
					"lon":        peer.Lon,
					"updated_at": peer.UpdatedAt,
				})
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"presences": views})
		})

		protected.Get("/api/v1/suggestions", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.UserIDFromContext(r.Context())
			suggestions, err := suggestSvc.BuildSuggestions(r.Context(), userID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			views := make([]map[string]any, 0, len(suggestions))
			for _, s := range suggestions {
				views = append(views, suggestionView(s))
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"suggestions": views})
		})

		protected.Post("/api/v1/suggestions/feedback", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.UserIDFromContext(r.Context())
			var req struct {
				SuggestionKey string `json:"suggestion_key"`
				TargetUserID  *int64 `json:"target_user_id"`
				Action        string `json:"action"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			weight, err := feedbackSvc.RecordFeedback(r.Context(), userID, req.SuggestionKey, req.TargetUserID, req.Action)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "weight": weight})
		})

		protected.Get("/api/v1/suggestions/feedback/history", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.UserIDFromContext(r.Context())
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			entries, err := feedbackSvc.History(r.Context(), userID, limit)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"history": entries})
		})

		protected.Post("/api/v1/page", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := httpinfra.UserIDFromContext(r.Context())
			var req struct {
				ToUserID int64  `json:"to_user_id"`
				Message  string `json:"message"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToUserID == 0 {
				httpinfra.WriteError(w, http.StatusBadRequest, "ожидали поле to_user_id")
				return
			}
			job, err := pagingSvc.SendPage(r.Context(), userID, req.ToUserID, req.Message)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpinfra.WriteJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "job_id": job.ID})
		})
	})

	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msg("api: сервер остановился")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка по сигналу")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: не удалось корректно остановить сервер")
	}
}

func userView(user domain.User) map[string]any {
	return map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}
}

func presenceView(presence domain.Presence) map[string]any {
	return map[string]any{
		"user_id":    presence.UserID,
		"available":  presence.Available,
		"lat":        presence.Lat,
		"lon":        presence.Lon,
		"accuracy":   presence.Accuracy,
		"updated_at": presence.UpdatedAt,
	}
}

func suggestionView(s domain.Suggestion) map[string]any {
	view := map[string]any{
		"id":             s.ID,
		"suggestion_key": s.SuggestionKey,
		"title":          s.Title,
		"body":           s.Body,
		"cta_label":      s.CTALabel,
	}
	if s.TargetUserID != nil {
		view["target_user_id"] = *s.TargetUserID
	}
	switch s.Action.Type {
	case domain.ActionTypePage:
		view["action"] = map[string]any{"type": "page", "to_user_id": s.Action.Page.ToUserID}
	case domain.ActionTypeSetAvailability:
		view["action"] = map[string]any{"type": "availability", "available": s.Action.SetAvailability.Available}
	}
	return view
}

func writeDomainError(w http.ResponseWriter, err error) {
	var cooldownErr *pagingusecase.CooldownError
	switch {
	case errors.As(err, &cooldownErr):
		seconds := int(cooldownErr.Remaining.Round(time.Second).Seconds())
		httpinfra.WriteError(w, http.StatusTooManyRequests, "кулдаун активен, попробуйте через "+strconv.Itoa(seconds)+"с")
	case errors.Is(err, domain.ErrUserNotFound):
		httpinfra.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnknownSuggestionKey),
		errors.Is(err, domain.ErrUnknownFeedbackAction),
		errors.Is(err, domain.ErrPresenceUnavailable),
		errors.Is(err, pagingusecase.ErrSelfPage),
		errors.Is(err, pagingusecase.ErrMessageTooLong),
		errors.Is(err, presenceusecase.ErrBadCoordinates):
		httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		httpinfra.WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
	}
}

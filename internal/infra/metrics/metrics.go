package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	SuggestionBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "suggestion_build_seconds",
		Help:    "Время построения списка подсказок",
		Buckets: prometheus.DefBuckets,
	})
	SuggestionRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "suggestion_requests_total",
		Help: "Общее количество запросов на построение подсказок",
	})
	SuggestionsShownTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestions_shown_total",
		Help: "Количество показанных подсказок по видам",
	}, []string{"suggestion_key"})
	FeedbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestion_feedback_total",
		Help: "Количество откликов на подсказки по действиям",
	}, []string{"suggestion_key", "action"})
	PageSendTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "page_send_total",
		Help: "Количество попыток отправки пейджей по статусам",
	}, []string{"status"})
	CooldownRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "page_cooldown_rejections_total",
		Help: "Количество пейджей, отклонённых кулдауном",
	})
	MailDeliveryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mail_delivery_errors_total",
		Help: "Ошибки доставки почтовых уведомлений",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SuggestionBuildSeconds,
		SuggestionRequestsTotal,
		SuggestionsShownTotal,
		FeedbackTotal,
		PageSendTotal,
		CooldownRejectionsTotal,
		MailDeliveryErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncSuggestionShown увеличивает счётчик показанных подсказок.
func IncSuggestionShown(key string) {
	SuggestionsShownTotal.WithLabelValues(key).Inc()
}

// IncFeedback увеличивает счётчик откликов.
func IncFeedback(key, action string) {
	FeedbackTotal.WithLabelValues(key, action).Inc()
}

// IncPageSend увеличивает счётчик попыток отправки пейджа.
func IncPageSend(status string) {
	PageSendTotal.WithLabelValues(status).Inc()
}

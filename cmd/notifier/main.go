package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"live-friends/internal/adapters/cooldown"
	"live-friends/internal/adapters/mailer"
	"live-friends/internal/adapters/repo"
	"live-friends/internal/domain"
	"live-friends/internal/infra/clock"
	"live-friends/internal/infra/config"
	"live-friends/internal/infra/db"
	"live-friends/internal/infra/log"
	"live-friends/internal/infra/metrics"
	"live-friends/internal/infra/queue"
	pagingusecase "live-friends/internal/usecase/paging"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("component", "notifier").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		zlog.Fatal().Err(err).Msg("notifier: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	systemClock := clock.NewSystem(cfg.TZ)

	smtpMailer, err := mailer.NewSMTP(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("notifier: не удалось создать SMTP клиент")
	}

	var pageQueue domain.PageQueue
	switch {
	case cfg.AMQPURL != "":
		rabbit, err := queue.NewRabbitPageQueue(cfg.AMQPURL, cfg.Queues.Pages)
		if err != nil {
			zlog.Fatal().Err(err).Msg("notifier: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		pageQueue = rabbit
	case cfg.RedisAddr != "":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		pageQueue = queue.NewRedisPageQueue(redisClient, cfg.Queues.Pages)
	default:
		zlog.Fatal().Msg("notifier: нужен AMQP_URL или REDIS_ADDR для очереди пейджей")
	}

	// Кулдаун и диспетчер воркеру не нужны: он только доставляет
	// уже поставленные в очередь задачи.
	gate := cooldown.NewMemoryGate(cfg.Paging.Cooldown, systemClock)
	pagingSvc := pagingusecase.NewService(repoAdapter, repoAdapter, gate, nil, smtpMailer, repoAdapter, systemClock, cfg.Paging.MaxMessage, logger)

	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	logger.Info().Str("queue", cfg.Queues.Pages).Msg("notifier: воркер запущен")
	for {
		job, err := pageQueue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info().Msg("notifier: остановка по сигналу")
				return
			}
			logger.Error().Err(err).Msg("notifier: не удалось прочитать задачу из очереди")
			time.Sleep(time.Second)
			continue
		}

		event, err := pagingSvc.Deliver(ctx, job)
		if err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("notifier: доставка завершилась ошибкой")
			continue
		}
		logger.Info().
			Str("job_id", job.ID).
			Int64("to_user_id", event.ToUserID).
			Str("status", string(event.Status)).
			Msg("notifier: задача обработана")
	}
}

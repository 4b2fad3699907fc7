package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"imagebot/internal/adapter/repo"
	"imagebot/internal/dispatcher"
	"imagebot/internal/infra"
	"imagebot/internal/infra/credentials"
	"imagebot/internal/notify"
	"imagebot/internal/providers/image"
	"imagebot/internal/providers/openai"
	"imagebot/internal/queue"
	"imagebot/internal/storage"
)

const serviceName = "imagebot-worker"

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("service", serviceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.InitTelemetry(ctx, infra.TelemetryConfig{
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: telemetry init failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	consumer, _ := os.Hostname()
	q := queue.NewRedisQueue(rdb, queue.RedisOptions{
		Prefix:      cfg.QueuePrefix,
		Consumer:    consumer,
		PollTimeout: cfg.QueuePollTimeout,
		Logger:      &logger,
	})

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.DeliveryTimeout})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: telegram bot init failed")
	}
	sources := image.NewHTTPSources(httpClient, bot.GetFileDirectURL)

	keys := credentials.NewStore(runner)
	adapters := buildAdapters(ctx, cfg, keys, sources, httpClient, &logger)
	if len(adapters) == 0 {
		logger.Fatal().Msg("worker: no image provider is configured")
	}
	registry, err := image.NewRegistry(adapters...)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: provider registry")
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	results, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := dispatcher.NewMetrics(reg)

	accounts := repo.NewAccountRepository(runner)
	processor, err := dispatcher.NewProcessor(dispatcher.Options{
		Tasks:           repo.NewTaskRepository(runner),
		Ledger:          repo.NewLedger(runner),
		Providers:       registry,
		Sink:            notify.NewTelegramSink(bot, accounts, cfg.DefaultLocale, &logger),
		Alerts:          notify.NewAdminAlerts(bot, cfg.AdminChatIDs, &logger),
		Results:         results,
		Policy:          dispatcher.RetryPolicy{Ceiling: cfg.RetryCeiling, Backoff: cfg.RetryBackoff},
		ProviderTimeout: cfg.ProviderTimeout,
		DeliveryTimeout: cfg.DeliveryTimeout,
		Logger:          &logger,
		Tracer:          otel.Tracer("imagebot/dispatcher"),
		Metrics:         metrics,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: processor")
	}

	if n, err := q.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("worker: recover in-flight deliveries failed")
	} else if n > 0 {
		logger.Warn().Int("count", n).Msg("worker: requeued deliveries left by a previous run")
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/v1/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := infra.NewHTTPServer(cfg, r)
	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("worker: metrics listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()

	d := dispatcher.New(q, processor, dispatcher.Config{Concurrency: cfg.WorkerConcurrency}, metrics, &logger)
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: dispatcher stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: metrics shutdown failed")
	}
	logger.Info().Msg("worker: stopped")
}

// buildAdapters registers every provider that has an API key, from the
// environment first and the integration_tokens table second.
func buildAdapters(ctx context.Context, cfg *infra.Config, keys *credentials.Store, sources image.SourceFetcher, httpClient *http.Client, logger *infra.Logger) []image.Adapter {
	var adapters []image.Adapter

	openaiKey, err := keys.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: failed to load openai api key from store")
	}
	if openaiKey != "" {
		client, err := openai.NewClient(openai.Options{
			APIKey:         openaiKey,
			BaseURL:        cfg.OpenAIBaseURL,
			HTTPClient:     httpClient,
			Logger:         logger,
			RequestTimeout: cfg.ProviderTimeout,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure openai client")
		}
		adapters = append(adapters, image.NewStandardAdapter(client, sources, cfg.StandardModel, logger))
	} else {
		logger.Warn().Msg("worker: openai api key missing, standard provider disabled")
	}

	arkKey, err := keys.Resolve(ctx, credentials.ProviderArk, cfg.ArkAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: failed to load ark api key from store")
	}
	premium, err := image.NewPremiumAdapter(image.PremiumOptions{
		APIKey:       arkKey,
		BaseURL:      cfg.ArkBaseURL,
		DefaultModel: cfg.PremiumModel,
		Sources:      sources,
		Logger:       logger,
	})
	switch {
	case errors.Is(err, image.ErrMissingArkKey):
		logger.Warn().Msg("worker: ark api key missing, premium provider disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("worker: failed to configure premium adapter")
	default:
		adapters = append(adapters, premium)
	}
	return adapters
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"imagebot/internal/adapter/repo"
	"imagebot/internal/domain"
	"imagebot/internal/http/handlers"
	httpapi "imagebot/internal/http/httpapi"
	"imagebot/internal/infra"
	"imagebot/internal/infra/geoip"
	"imagebot/internal/intake"
	"imagebot/internal/middleware"
	"imagebot/internal/queue"
)

type redisPinger struct{ ping func(context.Context) error }

func (p redisPinger) Ping(ctx context.Context) error { return p.ping(ctx) }

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("service", "imagebot-api").Logger()

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	runner := infra.NewSQLRunner(pool, logger)
	tasks := repo.NewTaskRepository(runner)
	ledger := repo.NewLedger(runner)
	q := queue.NewRedisQueue(rdb, queue.RedisOptions{Prefix: cfg.QueuePrefix, Logger: &logger})

	app := &handlers.App{
		Intake: intake.NewService(tasks, ledger, q, map[domain.ProviderID]string{
			domain.ProviderStandard: cfg.StandardModel,
			domain.ProviderPremium:  cfg.PremiumModel,
		}, &logger),
		Tasks:  tasks,
		Ledger: ledger,
		Checks: map[string]handlers.Pinger{
			"postgres": pool,
			"redis":    redisPinger{ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		Logger: &logger,
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open geoip database")
	}
	defer resolver.Close()
	var countryLookup middleware.CountryLookup
	if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   countryLookup,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Gatherer:        reg,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

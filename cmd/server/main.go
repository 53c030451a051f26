// Command server exposes the aggregation service over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"stockwatch/internal/cache"
	"stockwatch/internal/config"
	"stockwatch/internal/fetcher"
	"stockwatch/internal/httpx"
	"stockwatch/internal/market"
	"stockwatch/internal/netlog"
	"stockwatch/internal/provider"
	"stockwatch/internal/provider/alphavantage"
	"stockwatch/internal/provider/bhav"
	"stockwatch/internal/provider/marketstack"
	"stockwatch/internal/provider/upstox"
	"stockwatch/internal/provider/yahoo"
	"stockwatch/internal/recorder"
	"stockwatch/internal/scheduler"
	"stockwatch/internal/store"
	"stockwatch/internal/watchlist"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") != "" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Fetch.Primary == string(provider.KindUpstox) && cfg.Upstox.AccessToken == "" {
		log.Warn().Msg("primary provider is upstox but UPSTOX_ACCESS_TOKEN not set; falling back to free providers")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec)*time.Second, netlog.NewLogger(log))
	httpClient.UserAgent = "stockwatch/1.0"
	if cfg.Fetch.RequestsPerSec > 0 {
		httpClient.Limiter = rate.NewLimiter(rate.Limit(cfg.Fetch.RequestsPerSec), cfg.Fetch.RequestsPerSec)
	}

	ups := upstox.New(upstox.Config{
		BaseURL:     cfg.Upstox.BaseURL,
		APIKey:      cfg.Upstox.APIKey,
		APISecret:   cfg.Upstox.APISecret,
		AccessToken: cfg.Upstox.AccessToken,
	}, httpClient, log)
	adapters := []provider.Adapter{
		ups,
		yahoo.New(httpClient, log),
		bhav.New(httpClient, log),
		marketstack.New(marketstack.Config{BaseURL: cfg.MarketStack.BaseURL, APIKey: cfg.MarketStack.APIKey}, httpClient, log),
		alphavantage.New(alphavantage.Config{BaseURL: cfg.AlphaVantage.BaseURL, APIKey: cfg.AlphaVantage.APIKey}, httpClient, log),
	}

	st, err := store.NewFile(cfg.Storage.StoreFile)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	lists, err := watchlist.NewManager(st, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("load watchlists")
	}

	var rec recorder.Recorder = recorder.Noop{}
	if cfg.Storage.SQLitePath != "" {
		rec, err = recorder.NewSQLite(cfg.Storage.SQLitePath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("open recorder")
		}
	}
	defer rec.Close()

	clock := market.NewClock(cfg.Market.HoursCheck, cfg.Market.Holidays)

	f := fetcher.New(adapters, cache.New(time.Duration(cfg.Fetch.CacheTTLSec)*time.Second), lists, rec, clock, fetcher.Options{
		Primary:  provider.Kind(cfg.Fetch.Primary),
		Fallback: cfg.Fetch.Fallback,
		Offline:  cfg.Fetch.Offline,
	}, log)

	sched := scheduler.New(f, log)
	if err := sched.Start(time.Duration(cfg.Fetch.RefreshIntervalSec) * time.Second); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	defer sched.Stop()

	api := &apiServer{
		fetcher: f,
		lists:   lists,
		clock:   clock,
		upstox:  ups,
		log:     log.With().Str("component", "api").Logger(),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(api.routes())))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

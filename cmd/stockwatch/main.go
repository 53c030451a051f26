// Command stockwatch is the CLI front end: one-shot quote and candle
// fetches, symbol validation, and a polling watch mode.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"stockwatch/internal/cache"
	"stockwatch/internal/config"
	"stockwatch/internal/fetcher"
	"stockwatch/internal/httpx"
	"stockwatch/internal/market"
	"stockwatch/internal/model"
	"stockwatch/internal/netlog"
	"stockwatch/internal/provider"
	"stockwatch/internal/provider/alphavantage"
	"stockwatch/internal/provider/bhav"
	"stockwatch/internal/provider/marketstack"
	"stockwatch/internal/provider/upstox"
	"stockwatch/internal/provider/yahoo"
	"stockwatch/internal/recorder"
	"stockwatch/internal/store"
	"stockwatch/internal/symbol"
	"stockwatch/internal/watchlist"
)

type cliOpts struct {
	configPath string
	primary    string
	offline    bool
	asJSON     bool
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOpts{}

	cmd := &cobra.Command{
		Use:           "stockwatch",
		Short:         "Indian equity quotes, candles, and watchlist alerts from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (optional)")
	cmd.PersistentFlags().StringVar(&opts.primary, "provider", "", "preferred provider: upstox|yahoo|bse_nse|marketstack|alphavantage")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "serve cached data only")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "emit JSON instead of text")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	cmd.AddCommand(
		newQuoteCmd(opts),
		newCandlesCmd(opts),
		newValidateCmd(opts),
		newWatchCmd(opts),
		newStatusCmd(opts),
	)
	return cmd
}

// buildFetcher wires the full chain for a CLI invocation. The CLI uses the
// in-memory store unless a watch session needs persistence.
func buildFetcher(opts *cliOpts, persistent bool) (*fetcher.Fetcher, *watchlist.Manager, *market.Clock, error) {
	_ = godotenv.Load()

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.primary != "" {
		cfg.Fetch.Primary = opts.primary
	}
	if opts.offline {
		cfg.Fetch.Offline = true
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec)*time.Second, netlog.NewLogger(log))
	if cfg.Fetch.RequestsPerSec > 0 {
		httpClient.Limiter = rate.NewLimiter(rate.Limit(cfg.Fetch.RequestsPerSec), cfg.Fetch.RequestsPerSec)
	}

	adapters := []provider.Adapter{
		upstox.New(upstox.Config{
			BaseURL:     cfg.Upstox.BaseURL,
			APIKey:      cfg.Upstox.APIKey,
			APISecret:   cfg.Upstox.APISecret,
			AccessToken: cfg.Upstox.AccessToken,
		}, httpClient, log),
		yahoo.New(httpClient, log),
		bhav.New(httpClient, log),
		marketstack.New(marketstack.Config{BaseURL: cfg.MarketStack.BaseURL, APIKey: cfg.MarketStack.APIKey}, httpClient, log),
		alphavantage.New(alphavantage.Config{BaseURL: cfg.AlphaVantage.BaseURL, APIKey: cfg.AlphaVantage.APIKey}, httpClient, log),
	}

	var st store.Store = store.NewMemory()
	if persistent {
		fs, err := store.NewFile(cfg.Storage.StoreFile)
		if err != nil {
			return nil, nil, nil, err
		}
		st = fs
	}
	lists, err := watchlist.NewManager(st, nil, log)
	if err != nil {
		return nil, nil, nil, err
	}

	clock := market.NewClock(cfg.Market.HoursCheck, cfg.Market.Holidays)
	f := fetcher.New(adapters, cache.New(time.Duration(cfg.Fetch.CacheTTLSec)*time.Second), lists, recorder.Noop{}, clock, fetcher.Options{
		Primary:  provider.Kind(cfg.Fetch.Primary),
		Fallback: cfg.Fetch.Fallback,
		Offline:  cfg.Fetch.Offline,
	}, log)
	return f, lists, clock, nil
}

func newQuoteCmd(opts *cliOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Fetch current quotes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, _, err := buildFetcher(opts, false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if len(args) == 1 {
				q, err := f.FetchQuote(ctx, args[0])
				if err != nil {
					return err
				}
				return printQuote(cmd, opts, q)
			}
			quotes, err := f.FetchMultiple(ctx, args)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd, quotes)
			}
			for _, q := range quotes {
				if err := printQuote(cmd, opts, q); err != nil {
					return err
				}
			}
			if len(quotes) < len(args) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d symbols failed\n", len(args)-len(quotes), len(args))
			}
			return nil
		},
	}
}

func newCandlesCmd(opts *cliOpts) *cobra.Command {
	var timeframe string
	cmd := &cobra.Command{
		Use:   "candles SYMBOL",
		Short: "Fetch historical candles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, _, err := buildFetcher(opts, false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			series, err := f.FetchCandles(ctx, args[0], model.Timeframe(timeframe))
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd, series)
			}
			for _, c := range series {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  O %.2f  H %.2f  L %.2f  C %.2f  V %d\n",
					c.Timestamp.Format("2006-01-02 15:04"), c.Open, c.High, c.Low, c.Close, c.Volume)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "1d", "timeframe: 1m|5m|15m|30m|1h|1d|1w|1M")
	return cmd
}

func newValidateCmd(opts *cliOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "validate SYMBOL...",
		Short: "Validate symbols without fetching",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := 0
			for _, raw := range args {
				v := symbol.Validate(raw)
				if opts.asJSON {
					if err := printJSON(cmd, v); err != nil {
						return err
					}
					continue
				}
				if v.IsValid {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (normalized %s)\n", raw, v.Normalized)
				} else {
					code = 1
					fmt.Fprintf(cmd.OutOrStdout(), "%s: invalid: %v\n", raw, v.Errors)
				}
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
}

func newWatchCmd(opts *cliOpts) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch SYMBOL...",
		Short: "Poll quotes continuously until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, clock, err := buildFetcher(opts, true)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if clock.IsOpen() {
					quotes, err := f.FetchMultiple(ctx, args)
					if err == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "--- %s ---\n", time.Now().Format("15:04:05"))
						for _, q := range quotes {
							_ = printQuote(cmd, opts, q)
						}
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "market %s\n", clock.StatusText())
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 30*time.Second, "refresh interval")
	return cmd
}

func newStatusCmd(opts *cliOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show market open/closed status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, clock, err := buildFetcher(opts, false)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd, clock.CurrentStatus())
			}
			st := clock.CurrentStatus()
			fmt.Fprintf(cmd.OutOrStdout(), "market: %s\n", clock.StatusText())
			if !st.Open && !st.NextOpen.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "next open: %s\n", st.NextOpen.Format("Mon 2006-01-02 15:04 MST"))
			}
			return nil
		},
	}
}

func printQuote(cmd *cobra.Command, opts *cliOpts, q *model.Quote) error {
	if opts.asJSON {
		return printJSON(cmd, q)
	}
	arrow := ""
	switch {
	case q.DayChange > 0:
		arrow = "+"
	case q.DayChange < 0:
		arrow = ""
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%-12s %10.2f %s  %s%.2f (%s%.2f%%)  vol %d  [%s]\n",
		q.Symbol, q.CurrentPrice, q.Currency, arrow, q.DayChange, arrow, q.DayChangePercent, q.Volume, q.Provider)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

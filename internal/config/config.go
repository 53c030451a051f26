// Package config loads the JSON configuration file and applies environment
// overrides for secrets and deployment knobs.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Upstox struct {
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	AccessToken string `json:"access_token"`
}

type MarketStack struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type AlphaVantage struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type Fetch struct {
	// Primary names the provider tried first: upstox, yahoo, bse_nse,
	// marketstack, or alphavantage. Empty means chain order only.
	Primary            string `json:"primary"`
	Fallback           bool   `json:"fallback"`
	Offline            bool   `json:"offline"`
	RefreshIntervalSec int    `json:"refresh_interval_sec"`
	CacheTTLSec        int    `json:"cache_ttl_sec"`
	RequestsPerSec     int    `json:"requests_per_sec"`
}

type Market struct {
	HoursCheck bool     `json:"hours_check"`
	Holidays   []string `json:"holidays"` // "2006-01-02" in IST
}

type Storage struct {
	StoreFile  string `json:"store_file"`
	SQLitePath string `json:"sqlite_path"` // empty disables recording
}

type Config struct {
	Server       Server       `json:"server"`
	Upstox       Upstox       `json:"upstox"`
	MarketStack  MarketStack  `json:"marketstack"`
	AlphaVantage AlphaVantage `json:"alphavantage"`
	Fetch        Fetch        `json:"fetch"`
	Market       Market       `json:"market"`
	Storage      Storage      `json:"storage"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Fetch: Fetch{
			Primary:            "upstox",
			Fallback:           true,
			RefreshIntervalSec: 30,
			CacheTTLSec:        30,
			RequestsPerSec:     5,
		},
		Market: Market{HoursCheck: true},
		Storage: Storage{
			StoreFile: "stockwatch.json",
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, defaults apply. Environment variables override select fields so
// secrets can stay out of the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("UPSTOX_API_KEY"); v != "" {
		cfg.Upstox.APIKey = v
	}
	if v := os.Getenv("UPSTOX_API_SECRET"); v != "" {
		cfg.Upstox.APISecret = v
	}
	if v := os.Getenv("UPSTOX_ACCESS_TOKEN"); v != "" {
		cfg.Upstox.AccessToken = v
	}
	if v := os.Getenv("MARKETSTACK_API_KEY"); v != "" {
		cfg.MarketStack.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("PRIMARY_PROVIDER"); v != "" {
		cfg.Fetch.Primary = strings.ToLower(v)
	}
	if v := os.Getenv("FALLBACK_ENABLED"); v != "" {
		cfg.Fetch.Fallback = isTrue(v)
	}
	if v := os.Getenv("OFFLINE_MODE"); v != "" {
		cfg.Fetch.Offline = isTrue(v)
	}
	if v := os.Getenv("REFRESH_INTERVAL_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Fetch.RefreshIntervalSec = x
		}
	}
	if v := os.Getenv("CACHE_TTL_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Fetch.CacheTTLSec = x
		}
	}
	if v := os.Getenv("MARKET_HOURS_CHECK"); v != "" {
		cfg.Market.HoursCheck = isTrue(v)
	}
	if v := os.Getenv("STORE_FILE"); v != "" {
		cfg.Storage.StoreFile = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
}

func atoi(s string) int {
	var x int
	fmt.Sscanf(s, "%d", &x)
	return x
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

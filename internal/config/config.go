package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "strings"

    "github.com/joho/godotenv"
)

type Server struct {
    Port              string `json:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Yahoo struct {
    Endpoint             string `json:"endpoint"`
    UserAgent            string `json:"user_agent"`
    MaxTickersPerRequest int    `json:"max_tickers_per_request"`
    MaxConcurrency       int    `json:"max_concurrency"`
}

type FX struct {
    // BaseCurrency is the default target currency and the currency
    // cross rates are routed through (e.g. EUR->JPY goes via USD).
    BaseCurrency string `json:"base_currency"`
}

type Config struct {
    Server Server `json:"server"`
    Yahoo  Yahoo  `json:"yahoo"`
    FX     FX     `json:"fx"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 15},
        Yahoo: Yahoo{
            Endpoint:             "https://query1.finance.yahoo.com",
            UserAgent:            "lira-quotes/1.0",
            MaxTickersPerRequest: 100,
            MaxConcurrency:       8,
        },
        FX: FX{BaseCurrency: "USD"},
    }
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. A .env file is honored first, then real
// environment variables override select fields.
func Load(path string) (Config, error) {
    _ = godotenv.Load()
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
    if cfg.FX.BaseCurrency == "" {
        cfg.FX.BaseCurrency = "USD"
    }
    cfg.FX.BaseCurrency = strings.ToUpper(cfg.FX.BaseCurrency)
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("YAHOO_ENDPOINT"); v != "" { cfg.Yahoo.Endpoint = v }
    if v := os.Getenv("YAHOO_USER_AGENT"); v != "" { cfg.Yahoo.UserAgent = v }
    if v := os.Getenv("MAX_TICKERS_PER_REQUEST"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Yahoo.MaxTickersPerRequest = x }
    }
    if v := os.Getenv("MAX_CONCURRENCY"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Yahoo.MaxConcurrency = x }
    }
    if v := os.Getenv("BASE_CURRENCY"); v != "" { cfg.FX.BaseCurrency = v }
}

package provider

import (
    "context"
    "errors"
    "time"
)

// ErrNotFound reports a ticker the data source does not know.
// Callers use it to distinguish a bad symbol from a provider outage.
var ErrNotFound = errors.New("ticker not found")

// Quote is a point-in-time price snapshot for one ticker.
type Quote struct {
    Ticker   string    `json:"ticker"`
    Price    float64   `json:"price"`
    Currency string    `json:"currency"`
    AsOf     time.Time `json:"asOf"`
}

// Candle is one bar of a history series. Volume is a pointer because
// Yahoo reports null volume for FX pairs and some indices.
type Candle struct {
    Timestamp time.Time `json:"timestamp"`
    Open      float64   `json:"open"`
    High      float64   `json:"high"`
    Low       float64   `json:"low"`
    Close     float64   `json:"close"`
    Volume    *int64    `json:"volume,omitempty"`
}

// Series is a ticker's history in its native currency, oldest bar first.
type Series struct {
    Ticker   string   `json:"ticker"`
    Currency string   `json:"currency"`
    Candles  []Candle `json:"candles"`
}

type Provider interface {
    Name() string
    Quote(ctx context.Context, ticker string) (Quote, error)
    History(ctx context.Context, ticker, period, interval string) (Series, error)
}

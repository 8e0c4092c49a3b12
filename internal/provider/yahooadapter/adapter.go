package yahooadapter

import (
    "context"
    "errors"
    "fmt"

    "github.com/fontanamichele/Lira-quotes/internal/provider"
    "github.com/fontanamichele/Lira-quotes/internal/provider/yahoo"
)

type Config struct {
    Name string // display name, default: Yahoo
    // QuoteRange/QuoteInterval control the chart window used for
    // current-price lookups. Defaults match the intraday window the
    // chart API serves for every asset class (1d / 1m).
    QuoteRange    string
    QuoteInterval string
}

// Adapter exposes the Yahoo chart client as a provider.Provider.
type Adapter struct {
    cfg    Config
    client *yahoo.Client
}

func New(cfg Config, client *yahoo.Client) *Adapter {
    if cfg.Name == "" { cfg.Name = "Yahoo" }
    if cfg.QuoteRange == "" { cfg.QuoteRange = "1d" }
    if cfg.QuoteInterval == "" { cfg.QuoteInterval = "1m" }
    return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Quote(ctx context.Context, ticker string) (provider.Quote, error) {
    ch, err := a.client.GetChart(ctx, ticker, a.cfg.QuoteRange, a.cfg.QuoteInterval)
    if err != nil {
        return provider.Quote{}, mapErr(ticker, err)
    }
    return provider.Quote{
        Ticker:   ticker,
        Price:    ch.Price,
        Currency: ch.Currency,
        AsOf:     ch.AsOf,
    }, nil
}

func (a *Adapter) History(ctx context.Context, ticker, period, interval string) (provider.Series, error) {
    ch, err := a.client.GetChart(ctx, ticker, period, interval)
    if err != nil {
        return provider.Series{}, mapErr(ticker, err)
    }
    if len(ch.Bars) == 0 {
        return provider.Series{}, fmt.Errorf("%s: %w", ticker, provider.ErrNotFound)
    }
    s := provider.Series{
        Ticker:   ticker,
        Currency: ch.Currency,
        Candles:  make([]provider.Candle, 0, len(ch.Bars)),
    }
    for _, b := range ch.Bars {
        s.Candles = append(s.Candles, provider.Candle{
            Timestamp: b.Timestamp,
            Open:      b.Open,
            High:      b.High,
            Low:       b.Low,
            Close:     b.Close,
            Volume:    b.Volume,
        })
    }
    return s, nil
}

func mapErr(ticker string, err error) error {
    if errors.Is(err, yahoo.ErrSymbolNotFound) {
        return fmt.Errorf("%s: %w", ticker, provider.ErrNotFound)
    }
    return err
}

package main

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/fontanamichele/Lira-quotes/internal/fx"
    "github.com/fontanamichele/Lira-quotes/internal/provider"
)

// Periods and intervals the Yahoo chart API accepts. Anything else is
// rejected before a provider call is made.
var validPeriods = map[string]struct{}{
    "1d": {}, "5d": {}, "1mo": {}, "3mo": {}, "6mo": {}, "1y": {},
    "2y": {}, "5y": {}, "10y": {}, "ytd": {}, "max": {},
}

var validIntervals = map[string]struct{}{
    "1m": {}, "2m": {}, "5m": {}, "15m": {}, "30m": {}, "60m": {},
    "90m": {}, "1h": {}, "1d": {}, "5d": {}, "1wk": {}, "1mo": {}, "3mo": {},
}

var validCategories = map[string]struct{}{
    "stock": {}, "etf": {}, "crypto": {}, "fx": {},
}

type batchOptions struct {
    MaxTickers     int
    MaxConcurrency int
    Timeout        time.Duration
    BaseCurrency   string
}

type currentResponse struct {
    Prices map[string]provider.Quote `json:"prices"`
    Errors map[string]string         `json:"errors"`
}

// seriesJSON carries one ticker's history plus the currency all its
// prices are denominated in after conversion.
type seriesJSON struct {
    Currency string            `json:"currency"`
    Candles  []provider.Candle `json:"candles"`
}

type historicalResponse struct {
    Series map[string]seriesJSON `json:"series"`
    Errors map[string]string     `json:"errors"`
}

func handleCurrent(w http.ResponseWriter, r *http.Request, prov provider.Provider, conv *fx.Converter, opts batchOptions) {
    q := r.URL.Query()
    tickers, err := parseTickers(q.Get("tickers"), opts.MaxTickers)
    if err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }
    currency, err := parseCurrency(q.Get("currency"), opts.BaseCurrency)
    if err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }
    if err := validateCategory(q.Get("category")); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }
    ctx, cancel := context.WithTimeout(r.Context(), opts.Timeout)
    defer cancel()
    writeCurrent(w, ctx, prov, conv, tickers, currency, opts.MaxConcurrency)
}

func handleHistorical(w http.ResponseWriter, r *http.Request, prov provider.Provider, conv *fx.Converter, opts batchOptions) {
    q := r.URL.Query()
    tickers, err := parseTickers(q.Get("tickers"), opts.MaxTickers)
    if err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }
    currency, err := parseCurrency(q.Get("currency"), opts.BaseCurrency)
    if err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }
    if err := validateCategory(q.Get("category")); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }
    period := q.Get("period")
    if period == "" { period = "1mo" }
    if _, ok := validPeriods[period]; !ok {
        http.Error(w, fmt.Sprintf("unsupported period %q", period), http.StatusBadRequest)
        return
    }
    interval := q.Get("interval")
    if interval == "" { interval = "1d" }
    if _, ok := validIntervals[interval]; !ok {
        http.Error(w, fmt.Sprintf("unsupported interval %q", interval), http.StatusBadRequest)
        return
    }
    ctx, cancel := context.WithTimeout(r.Context(), opts.Timeout)
    defer cancel()
    writeHistorical(w, ctx, prov, conv, tickers, currency, period, interval, opts.MaxConcurrency)
}

// writeCurrent fans out one provider lookup per ticker and assembles the
// partial-batch response. A failed ticker lands in the errors map; it
// never sinks the rest of the batch.
func writeCurrent(w http.ResponseWriter, ctx context.Context, prov provider.Provider, conv *fx.Converter, tickers []string, currency string, maxConc int) {
    type result struct {
        ticker string
        quote  provider.Quote
        err    error
    }
    if maxConc <= 0 { maxConc = 1 }
    sem := make(chan struct{}, maxConc)
    ch := make(chan result, len(tickers))
    for _, t := range tickers {
        t := t
        go func() {
            select {
            case sem <- struct{}{}:
                defer func() { <-sem }()
            case <-ctx.Done():
                ch <- result{ticker: t, err: ctx.Err()}
                return
            }
            q, err := fetchConverted(ctx, prov, conv, t, currency)
            ch <- result{ticker: t, quote: q, err: err}
        }()
    }

    resp := currentResponse{Prices: map[string]provider.Quote{}, Errors: map[string]string{}}
    var providerDown bool
    for range tickers {
        res := <-ch
        if res.err != nil {
            if !errors.Is(res.err, provider.ErrNotFound) { providerDown = true }
            resp.Errors[res.ticker] = res.err.Error()
            continue
        }
        resp.Prices[res.ticker] = res.quote
    }
    writeJSON(w, batchStatus(len(resp.Prices), len(resp.Errors), providerDown), resp)
}

func writeHistorical(w http.ResponseWriter, ctx context.Context, prov provider.Provider, conv *fx.Converter, tickers []string, currency, period, interval string, maxConc int) {
    type result struct {
        ticker string
        series seriesJSON
        err    error
    }
    if maxConc <= 0 { maxConc = 1 }
    sem := make(chan struct{}, maxConc)
    ch := make(chan result, len(tickers))
    for _, t := range tickers {
        t := t
        go func() {
            select {
            case sem <- struct{}{}:
                defer func() { <-sem }()
            case <-ctx.Done():
                ch <- result{ticker: t, err: ctx.Err()}
                return
            }
            s, err := fetchSeriesConverted(ctx, prov, conv, t, period, interval, currency)
            ch <- result{ticker: t, series: s, err: err}
        }()
    }

    resp := historicalResponse{Series: map[string]seriesJSON{}, Errors: map[string]string{}}
    var providerDown bool
    for range tickers {
        res := <-ch
        if res.err != nil {
            if !errors.Is(res.err, provider.ErrNotFound) { providerDown = true }
            resp.Errors[res.ticker] = res.err.Error()
            continue
        }
        resp.Series[res.ticker] = res.series
    }
    writeJSON(w, batchStatus(len(resp.Series), len(resp.Errors), providerDown), resp)
}

// fetchConverted looks up one quote and converts it into the requested
// currency. Same-currency requests leave the provider price untouched.
func fetchConverted(ctx context.Context, prov provider.Provider, conv *fx.Converter, ticker, currency string) (provider.Quote, error) {
    q, err := prov.Quote(ctx, ticker)
    if err != nil {
        return provider.Quote{}, err
    }
    if q.Currency != currency {
        p, err := conv.Convert(ctx, q.Price, q.Currency, currency)
        if err != nil {
            return provider.Quote{}, err
        }
        q.Price = p
        q.Currency = currency
    }
    return q, nil
}

// fetchSeriesConverted fetches one ticker's history and applies a single
// conversion rate to every OHLC field. Volume is left untouched.
func fetchSeriesConverted(ctx context.Context, prov provider.Provider, conv *fx.Converter, ticker, period, interval, currency string) (seriesJSON, error) {
    s, err := prov.History(ctx, ticker, period, interval)
    if err != nil {
        return seriesJSON{}, err
    }
    if s.Currency == currency {
        return seriesJSON{Currency: s.Currency, Candles: s.Candles}, nil
    }
    rate, err := conv.Rate(ctx, s.Currency, currency)
    if err != nil {
        return seriesJSON{}, err
    }
    out := seriesJSON{Currency: currency, Candles: make([]provider.Candle, 0, len(s.Candles))}
    for _, c := range s.Candles {
        out.Candles = append(out.Candles, provider.Candle{
            Timestamp: c.Timestamp,
            Open:      fx.Round(c.Open * rate),
            High:      fx.Round(c.High * rate),
            Low:       fx.Round(c.Low * rate),
            Close:     fx.Round(c.Close * rate),
            Volume:    c.Volume,
        })
    }
    return out, nil
}

// batchStatus decides the response code for a finished batch: partial
// success is always 200, an all-failed batch is 404 when every ticker
// was simply unknown and 502 when the provider itself failed.
func batchStatus(succeeded, failed int, providerDown bool) int {
    if succeeded > 0 || failed == 0 {
        return http.StatusOK
    }
    if providerDown {
        return http.StatusBadGateway
    }
    return http.StatusNotFound
}

func parseTickers(raw string, max int) ([]string, error) {
    if strings.TrimSpace(raw) == "" {
        return nil, errors.New("missing tickers query param")
    }
    tickers := splitCSV(raw)
    if len(tickers) == 0 {
        return nil, errors.New("missing tickers query param")
    }
    if max > 0 && len(tickers) > max {
        return nil, fmt.Errorf("too many tickers (max %d)", max)
    }
    return tickers, nil
}

func parseCurrency(raw, fallback string) (string, error) {
    cur := strings.ToUpper(strings.TrimSpace(raw))
    if cur == "" {
        return fallback, nil
    }
    if len(cur) != 3 {
        return "", fmt.Errorf("invalid currency code %q", raw)
    }
    for _, r := range cur {
        if r < 'A' || r > 'Z' {
            return "", fmt.Errorf("invalid currency code %q", raw)
        }
    }
    return cur, nil
}

func validateCategory(raw string) error {
    if strings.TrimSpace(raw) == "" {
        return nil
    }
    if _, ok := validCategories[strings.ToLower(strings.TrimSpace(raw))]; !ok {
        return fmt.Errorf("unsupported category %q", raw)
    }
    return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.WriteHeader(status)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    enc.Encode(v)
}

package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "net/http"
    "os"
    "strings"
    "sync"
    "time"

    "github.com/fontanamichele/Lira-quotes/internal/config"
    "github.com/fontanamichele/Lira-quotes/internal/fx"
    "github.com/fontanamichele/Lira-quotes/internal/httpx"
    "github.com/fontanamichele/Lira-quotes/internal/provider"
    "github.com/fontanamichele/Lira-quotes/internal/provider/yahoo"
    "github.com/fontanamichele/Lira-quotes/internal/provider/yahooadapter"
)

func main() {
    var tickersCSV string
    var currency string
    var historical bool
    var period string
    var interval string
    var timeout int
    var configPath string

    flag.StringVar(&tickersCSV, "tickers", getenv("TICKERS", "AAPL"), "comma-separated tickers (e.g., AAPL,VWCE.AS,BTC-USD)")
    flag.StringVar(&currency, "currency", getenv("CURRENCY", ""), "target currency (3-letter ISO code, default: base currency)")
    flag.BoolVar(&historical, "historical", false, "fetch historical candles instead of current prices")
    flag.StringVar(&period, "period", getenv("PERIOD", "1mo"), "history window (1d 5d 1mo 3mo 6mo 1y 2y 5y 10y ytd max)")
    flag.StringVar(&interval, "interval", getenv("INTERVAL", "1d"), "candle interval (1m 2m 5m 15m 30m 60m 90m 1h 1d 5d 1wk 1mo 3mo)")
    flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
    flag.Parse()

    cfg, err := config.Load(configPath)
    if err != nil { log.Fatalf("config: %v", err) }
    if timeout != 0 { cfg.Server.RequestTimeoutSec = timeout }
    if currency == "" { currency = cfg.FX.BaseCurrency }
    currency = strings.ToUpper(currency)

    tickers := splitCSV(tickersCSV)
    if len(tickers) == 0 { log.Fatal("no tickers provided") }

    httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
    if cfg.Yahoo.UserAgent != "" { httpClient.UserAgent = cfg.Yahoo.UserAgent }

    yahooClient, err := yahoo.NewClient(
        yahoo.WithBaseURL(cfg.Yahoo.Endpoint),
        yahoo.WithHTTPClient(httpClient),
        yahoo.WithHeader(http.Header{
            "Accept": []string{"application/json"},
        }),
    )
    if err != nil { log.Fatalf("yahoo client: %v", err) }

    prov := yahooadapter.New(yahooadapter.Config{Name: "Yahoo"}, yahooClient)
    conv := fx.New(prov, cfg.FX.BaseCurrency)

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
    defer cancel()

    if historical {
        fetchHistorical(ctx, prov, conv, tickers, currency, period, interval, cfg.Yahoo.MaxConcurrency)
        return
    }
    fetchCurrent(ctx, prov, conv, tickers, currency, cfg.Yahoo.MaxConcurrency)
}

func fetchCurrent(ctx context.Context, prov provider.Provider, conv *fx.Converter, tickers []string, currency string, maxConc int) {
    type result struct {
        ticker string
        quote  provider.Quote
        err    error
    }
    ch := make(chan result, len(tickers))
    sem := make(chan struct{}, concurrency(maxConc))
    var wg sync.WaitGroup
    for _, t := range tickers {
        t := t
        wg.Add(1)
        go func() {
            defer wg.Done()
            sem <- struct{}{}
            defer func() { <-sem }()
            q, err := prov.Quote(ctx, t)
            if err == nil && q.Currency != currency {
                q.Price, err = conv.Convert(ctx, q.Price, q.Currency, currency)
                q.Currency = currency
            }
            ch <- result{ticker: t, quote: q, err: err}
        }()
    }
    wg.Wait()
    close(ch)

    prices := map[string]provider.Quote{}
    failures := map[string]string{}
    for r := range ch {
        if r.err != nil {
            log.Printf("%s: %v", r.ticker, r.err)
            failures[r.ticker] = r.err.Error()
            continue
        }
        prices[r.ticker] = r.quote
    }
    if len(prices) == 0 { log.Fatal("no quotes received") }

    out := struct {
        Prices map[string]provider.Quote `json:"prices"`
        Errors map[string]string         `json:"errors,omitempty"`
    }{Prices: prices, Errors: failures}
    b, _ := json.MarshalIndent(out, "", "  ")
    fmt.Println(string(b))
}

func fetchHistorical(ctx context.Context, prov provider.Provider, conv *fx.Converter, tickers []string, currency, period, interval string, maxConc int) {
    type result struct {
        ticker string
        series provider.Series
        err    error
    }
    ch := make(chan result, len(tickers))
    sem := make(chan struct{}, concurrency(maxConc))
    var wg sync.WaitGroup
    for _, t := range tickers {
        t := t
        wg.Add(1)
        go func() {
            defer wg.Done()
            sem <- struct{}{}
            defer func() { <-sem }()
            s, err := prov.History(ctx, t, period, interval)
            if err == nil && s.Currency != currency {
                var rate float64
                rate, err = conv.Rate(ctx, s.Currency, currency)
                if err == nil {
                    for i := range s.Candles {
                        c := &s.Candles[i]
                        c.Open = fx.Round(c.Open * rate)
                        c.High = fx.Round(c.High * rate)
                        c.Low = fx.Round(c.Low * rate)
                        c.Close = fx.Round(c.Close * rate)
                    }
                    s.Currency = currency
                }
            }
            ch <- result{ticker: t, series: s, err: err}
        }()
    }
    wg.Wait()
    close(ch)

    series := map[string]provider.Series{}
    failures := map[string]string{}
    for r := range ch {
        if r.err != nil {
            log.Printf("%s: %v", r.ticker, r.err)
            failures[r.ticker] = r.err.Error()
            continue
        }
        series[r.ticker] = r.series
    }
    if len(series) == 0 { log.Fatal("no series received") }

    out := struct {
        Series map[string]provider.Series `json:"series"`
        Errors map[string]string          `json:"errors,omitempty"`
    }{Series: series, Errors: failures}
    b, _ := json.MarshalIndent(out, "", "  ")
    fmt.Println(string(b))
}

func concurrency(n int) int {
    if n <= 0 { return 8 }
    return n
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        var x int
        _, _ = fmt.Sscanf(v, "%d", &x)
        if x != 0 { return x }
    }
    return def
}

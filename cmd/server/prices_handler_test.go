package main

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http/httptest"
    "sync/atomic"
    "testing"
    "time"

    "github.com/fontanamichele/Lira-quotes/internal/fx"
    "github.com/fontanamichele/Lira-quotes/internal/provider"
)

type fakeProvider struct {
    quotes map[string]provider.Quote
    series map[string]provider.Series
    err    error // returned for every lookup when set
    calls  atomic.Int64
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Quote(_ context.Context, ticker string) (provider.Quote, error) {
    f.calls.Add(1)
    if f.err != nil { return provider.Quote{}, f.err }
    q, ok := f.quotes[ticker]
    if !ok { return provider.Quote{}, fmt.Errorf("%s: %w", ticker, provider.ErrNotFound) }
    return q, nil
}

func (f *fakeProvider) History(_ context.Context, ticker, _, _ string) (provider.Series, error) {
    f.calls.Add(1)
    if f.err != nil { return provider.Series{}, f.err }
    s, ok := f.series[ticker]
    if !ok { return provider.Series{}, fmt.Errorf("%s: %w", ticker, provider.ErrNotFound) }
    return s, nil
}

func testOpts() batchOptions {
    return batchOptions{MaxTickers: 100, MaxConcurrency: 4, Timeout: 5 * time.Second, BaseCurrency: "USD"}
}

func TestCurrent_MixedValidInvalid_PartialSuccess(t *testing.T) {
    asOf := time.Date(2025, 3, 4, 15, 30, 0, 0, time.UTC)
    p := &fakeProvider{quotes: map[string]provider.Quote{
        "AAPL": {Ticker: "AAPL", Price: 187.23, Currency: "USD", AsOf: asOf},
    }}
    conv := fx.New(p, "USD")

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/current?tickers=AAPL,INVALIDX&currency=USD", nil)
    handleCurrent(rr, req, p, conv, testOpts())

    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp currentResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    got, ok := resp.Prices["AAPL"]
    if !ok { t.Fatalf("missing AAPL in prices: %+v", resp) }
    if got.Price != 187.23 || got.Currency != "USD" || !got.AsOf.Equal(asOf) {
        t.Fatalf("unexpected AAPL quote: %+v", got)
    }
    if _, ok := resp.Errors["INVALIDX"]; !ok {
        t.Fatalf("missing INVALIDX in errors: %+v", resp.Errors)
    }
}

func TestCurrent_NativeCurrency_NoConversion(t *testing.T) {
    p := &fakeProvider{quotes: map[string]provider.Quote{
        "VWCE.AS": {Ticker: "VWCE.AS", Price: 123.456789, Currency: "EUR"},
    }}
    conv := fx.New(p, "USD")

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/current?tickers=VWCE.AS&currency=EUR", nil)
    handleCurrent(rr, req, p, conv, testOpts())

    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp currentResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    got := resp.Prices["VWCE.AS"]
    // raw provider price, not even rounded
    if got.Price != 123.456789 || got.Currency != "EUR" {
        t.Fatalf("expected untouched EUR price, got %+v", got)
    }
    if n := p.calls.Load(); n != 1 {
        t.Fatalf("expected exactly 1 provider call (no FX lookup), got %d", n)
    }
}

func TestCurrent_ConvertsThroughPairQuote(t *testing.T) {
    p := &fakeProvider{quotes: map[string]provider.Quote{
        "AAPL":     {Ticker: "AAPL", Price: 100, Currency: "USD"},
        "EURUSD=X": {Ticker: "EURUSD=X", Price: 1.25, Currency: "USD"},
    }}
    conv := fx.New(p, "USD")

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/current?tickers=AAPL&currency=EUR", nil)
    handleCurrent(rr, req, p, conv, testOpts())

    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp currentResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    got := resp.Prices["AAPL"]
    // USD->EUR inverts the EURUSD=X rate: 100 / 1.25 = 80
    if got.Price != 80 || got.Currency != "EUR" {
        t.Fatalf("unexpected converted quote: %+v", got)
    }
}

func TestCurrent_RateUnavailable_PerTickerError(t *testing.T) {
    p := &fakeProvider{quotes: map[string]provider.Quote{
        "AAPL": {Ticker: "AAPL", Price: 100, Currency: "USD"},
        // no CHFUSD=X quote -> conversion fails
    }}
    conv := fx.New(p, "USD")

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/current?tickers=AAPL&currency=CHF", nil)
    handleCurrent(rr, req, p, conv, testOpts())

    var resp currentResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if len(resp.Prices) != 0 { t.Fatalf("expected no prices, got %+v", resp.Prices) }
    if _, ok := resp.Errors["AAPL"]; !ok { t.Fatalf("expected AAPL error entry: %+v", resp.Errors) }
}

func TestCurrent_AllNotFound_Is404(t *testing.T) {
    p := &fakeProvider{}
    conv := fx.New(p, "USD")

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/current?tickers=NOPE1,NOPE2", nil)
    handleCurrent(rr, req, p, conv, testOpts())

    if rr.Code != 404 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp currentResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if len(resp.Errors) != 2 { t.Fatalf("expected 2 errors, got %+v", resp.Errors) }
}

func TestCurrent_ProviderOutage_Is502(t *testing.T) {
    p := &fakeProvider{err: fmt.Errorf("upstream timeout")}
    conv := fx.New(p, "USD")

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/current?tickers=AAPL", nil)
    handleCurrent(rr, req, p, conv, testOpts())

    if rr.Code != 502 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
}

func TestCurrent_ParamValidation_NoProviderCall(t *testing.T) {
    cases := []struct {
        name string
        url  string
    }{
        {"missing tickers", "/prices/current"},
        {"empty tickers", "/prices/current?tickers=,,"},
        {"bad currency", "/prices/current?tickers=AAPL&currency=EURO"},
        {"bad category", "/prices/current?tickers=AAPL&category=bond"},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            p := &fakeProvider{}
            conv := fx.New(p, "USD")
            rr := httptest.NewRecorder()
            handleCurrent(rr, httptest.NewRequest("GET", tc.url, nil), p, conv, testOpts())
            if rr.Code != 400 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
            if n := p.calls.Load(); n != 0 { t.Fatalf("provider contacted %d times", n) }
        })
    }
}

func TestCurrent_TooManyTickers(t *testing.T) {
    p := &fakeProvider{}
    conv := fx.New(p, "USD")
    opts := testOpts()
    opts.MaxTickers = 2

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/current?tickers=A,B,C", nil)
    handleCurrent(rr, req, p, conv, opts)
    if rr.Code != 400 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
}

func TestHistorical_UnsupportedParams_NoProviderCall(t *testing.T) {
    cases := []struct {
        name string
        url  string
    }{
        {"bad period", "/prices/historical?tickers=AAPL&period=7w"},
        {"bad interval", "/prices/historical?tickers=AAPL&interval=42s"},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            p := &fakeProvider{}
            conv := fx.New(p, "USD")
            rr := httptest.NewRecorder()
            handleHistorical(rr, httptest.NewRequest("GET", tc.url, nil), p, conv, testOpts())
            if rr.Code != 400 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
            if n := p.calls.Load(); n != 0 { t.Fatalf("provider contacted %d times", n) }
        })
    }
}

func TestHistorical_ConvertsOHLC_KeepsVolume(t *testing.T) {
    ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
    vol := int64(42)
    p := &fakeProvider{
        series: map[string]provider.Series{
            "AAPL": {Ticker: "AAPL", Currency: "USD", Candles: []provider.Candle{
                {Timestamp: ts, Open: 100, High: 110, Low: 90, Close: 105, Volume: &vol},
            }},
        },
        quotes: map[string]provider.Quote{
            "EURUSD=X": {Ticker: "EURUSD=X", Price: 1.25, Currency: "USD"},
        },
    }
    conv := fx.New(p, "USD")

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/historical?tickers=AAPL&currency=EUR&period=1mo&interval=1d", nil)
    handleHistorical(rr, req, p, conv, testOpts())

    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp historicalResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    s, ok := resp.Series["AAPL"]
    if !ok { t.Fatalf("missing AAPL series: %+v", resp) }
    if s.Currency != "EUR" { t.Fatalf("currency=%s", s.Currency) }
    if len(s.Candles) != 1 { t.Fatalf("want 1 candle, got %d", len(s.Candles)) }
    c := s.Candles[0]
    // one rate conversion for the whole series: x / 1.25
    if c.Open != 80 || c.High != 88 || c.Low != 72 || c.Close != 84 {
        t.Fatalf("unexpected OHLC: %+v", c)
    }
    if c.Volume == nil || *c.Volume != 42 {
        t.Fatalf("volume should survive conversion untouched: %+v", c.Volume)
    }
}

func TestHistorical_MixedValidInvalid(t *testing.T) {
    ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
    p := &fakeProvider{series: map[string]provider.Series{
        "MSFT": {Ticker: "MSFT", Currency: "USD", Candles: []provider.Candle{
            {Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1},
        }},
    }}
    conv := fx.New(p, "USD")

    rr := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/prices/historical?tickers=MSFT,INVALIDX", nil)
    handleHistorical(rr, req, p, conv, testOpts())

    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp historicalResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if _, ok := resp.Series["MSFT"]; !ok { t.Fatalf("missing MSFT: %+v", resp) }
    if _, ok := resp.Errors["INVALIDX"]; !ok { t.Fatalf("missing INVALIDX error: %+v", resp) }
}

func TestParseCurrency(t *testing.T) {
    if c, err := parseCurrency("", "USD"); err != nil || c != "USD" {
        t.Fatalf("default: %q %v", c, err)
    }
    if c, err := parseCurrency("eur", "USD"); err != nil || c != "EUR" {
        t.Fatalf("lowercase: %q %v", c, err)
    }
    for _, bad := range []string{"EURO", "E1R", "$", "US"} {
        if _, err := parseCurrency(bad, "USD"); err == nil {
            t.Fatalf("expected error for %q", bad)
        }
    }
}

func TestValidateCategory(t *testing.T) {
    for _, ok := range []string{"", "stock", "etf", "crypto", "fx", "ETF"} {
        if err := validateCategory(ok); err != nil {
            t.Fatalf("expected %q valid: %v", ok, err)
        }
    }
    if err := validateCategory("bond"); err == nil {
        t.Fatal("expected error for bond")
    }
}

func TestSplitCSV(t *testing.T) {
    got := splitCSV(" AAPL, ,BTC-USD,,EURUSD=X ")
    want := []string{"AAPL", "BTC-USD", "EURUSD=X"}
    if len(got) != len(want) { t.Fatalf("got %v", got) }
    for i := range want {
        if got[i] != want[i] { t.Fatalf("got %v want %v", got, want) }
    }
}

package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSymbolNotFound is returned when Yahoo does not know the symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// Bar is one OHLCV row of a chart. Volume is nil when Yahoo reports
// null volume (FX pairs, some indices).
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    *int64
}

// Chart is the decoded result of one chart request.
type Chart struct {
	Symbol   string
	Currency string
	Price    float64
	AsOf     time.Time
	Bars     []Bar
}

// GetChart retrieves price data for one symbol. rng and interval use
// Yahoo's own vocabulary ("1d", "1mo", "1m", "1wk", ...).
func (c *Client) GetChart(ctx context.Context, symbol, rng, interval string, opts ...Option) (*Chart, error) {
	var override = &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)
	if query == nil {
		query = url.Values{}
	}
	query.Set("range", rng)
	query.Set("interval", interval)

	// symbols like "EURUSD=X" or "^GSPC" need escaping in the path
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", override.baseURL, url.PathEscape(symbol), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		// Yahoo answers 404 with a chart.error body for unknown symbols.
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)

	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited")

	default:
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding chart response: %w", err)
	}

	if e := body.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("chart error: code=%q description=%q", e.Code, e.Description)
	}
	if len(body.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}

	return buildChart(symbol, body.Chart.Result[0])
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Currency           string  `json:"currency"`
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []quoteBlock `json:"quote"`
	} `json:"indicators"`
}

// quoteBlock carries parallel arrays aligned with chartResult.Timestamp.
// Entries are pointers because Yahoo pads gaps with nulls.
type quoteBlock struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

func buildChart(symbol string, r chartResult) (*Chart, error) {
	ch := &Chart{
		Symbol:   symbol,
		Currency: strings.ToUpper(r.Meta.Currency),
		Price:    r.Meta.RegularMarketPrice,
	}
	if r.Meta.RegularMarketTime > 0 {
		ch.AsOf = time.Unix(r.Meta.RegularMarketTime, 0).UTC()
	}

	var q quoteBlock
	if len(r.Indicators.Quote) > 0 {
		q = r.Indicators.Quote[0]
	}

	at := func(arr []*float64, i int) *float64 {
		if i < len(arr) {
			return arr[i]
		}
		return nil
	}

	for i, ts := range r.Timestamp {
		closeP := at(q.Close, i)
		if closeP == nil {
			// null row, Yahoo pads market gaps
			continue
		}
		bar := Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *closeP,
			High:      *closeP,
			Low:       *closeP,
			Close:     *closeP,
		}
		if v := at(q.Open, i); v != nil {
			bar.Open = *v
		}
		if v := at(q.High, i); v != nil {
			bar.High = *v
		}
		if v := at(q.Low, i); v != nil {
			bar.Low = *v
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			vol := *q.Volume[i]
			bar.Volume = &vol
		}
		ch.Bars = append(ch.Bars, bar)
	}

	if ch.Price == 0 && len(ch.Bars) > 0 {
		ch.Price = ch.Bars[len(ch.Bars)-1].Close
	}
	if ch.AsOf.IsZero() && len(ch.Bars) > 0 {
		ch.AsOf = ch.Bars[len(ch.Bars)-1].Timestamp
	}
	if ch.Price == 0 && len(ch.Bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	return ch, nil
}

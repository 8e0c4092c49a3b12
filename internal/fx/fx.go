package fx

import (
    "context"
    "fmt"
    "math"
    "strings"

    "github.com/fontanamichele/Lira-quotes/internal/provider"
    "golang.org/x/sync/singleflight"
)

// Precision is the fixed display precision for converted prices.
const Precision = 4

// QuoteSource is the narrow slice of provider.Provider the converter needs.
type QuoteSource interface {
    Quote(ctx context.Context, ticker string) (provider.Quote, error)
}

// Converter turns prices in one currency into another using live FX
// quotes ("EURUSD=X" style pair tickers). Rates are fetched fresh per
// request; concurrent identical lookups inside one request fan-out are
// coalesced with singleflight so ten USD tickers converted to EUR cost
// one upstream call, not ten.
type Converter struct {
    source QuoteSource
    base   string // cross currency, also the pair quote side

    sf singleflight.Group
}

func New(source QuoteSource, base string) *Converter {
    if base == "" { base = "USD" }
    return &Converter{source: source, base: strings.ToUpper(base)}
}

// Rate returns the multiplier converting a price in from into to.
// Non-base pairs cross through the base currency, mirroring how Yahoo
// quotes every currency against USD.
func (c *Converter) Rate(ctx context.Context, from, to string) (float64, error) {
    from = strings.ToUpper(strings.TrimSpace(from))
    to = strings.ToUpper(strings.TrimSpace(to))
    if from == to {
        return 1, nil
    }
    if to == c.base {
        return c.baseRate(ctx, from)
    }
    if from == c.base {
        r, err := c.baseRate(ctx, to)
        if err != nil { return 0, err }
        return 1 / r, nil
    }
    // cross: from -> base -> to
    a, err := c.baseRate(ctx, from)
    if err != nil { return 0, err }
    b, err := c.baseRate(ctx, to)
    if err != nil { return 0, err }
    return a / b, nil
}

// Convert applies the from->to rate to price and rounds to the fixed
// display precision. A same-currency conversion is a strict no-op.
func (c *Converter) Convert(ctx context.Context, price float64, from, to string) (float64, error) {
    if strings.EqualFold(strings.TrimSpace(from), strings.TrimSpace(to)) {
        return price, nil
    }
    rate, err := c.Rate(ctx, from, to)
    if err != nil {
        return 0, err
    }
    return Round(price * rate), nil
}

// Round rounds v to the fixed display precision (4 decimals).
func Round(v float64) float64 {
    const shift = 1e4 // 10^Precision
    return math.Round(v*shift) / shift
}

// baseRate fetches the cur->base rate from the "{cur}{base}=X" pair quote.
func (c *Converter) baseRate(ctx context.Context, cur string) (float64, error) {
    v, err, _ := c.sf.Do(cur, func() (any, error) {
        pair := cur + c.base + "=X"
        q, err := c.source.Quote(ctx, pair)
        if err != nil {
            return 0.0, fmt.Errorf("rate %s->%s: %w", cur, c.base, err)
        }
        if q.Price <= 0 {
            return 0.0, fmt.Errorf("rate %s->%s: invalid rate %v", cur, c.base, q.Price)
        }
        return q.Price, nil
    })
    if err != nil {
        return 0, err
    }
    return v.(float64), nil
}

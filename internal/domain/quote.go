package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// MarketQuote is an immutable snapshot of one venue's market taken during a
// poll cycle. Prices are probabilities in (0,1); depth is USD.
type MarketQuote struct {
	Venue     string
	MarketID  string
	EventKey  string // venue-side grouping key, e.g. Kalshi event ticker
	Question  string
	Canonical string // filled by the matcher
	EndDate   *time.Time

	YesBid float64
	YesAsk float64
	NoBid  float64
	NoAsk  float64

	// Depth is the USD liquidity available at the quoted prices.
	Depth float64

	// Optional ask ladders for a level-by-level book walk.
	YesAsks Ladder
	NoAsks  Ladder

	FetchedAt time.Time
}

// Ask returns the price to buy the given outcome.
func (q MarketQuote) Ask(o Outcome) float64 {
	if o == OutcomeYes {
		return q.YesAsk
	}
	return q.NoAsk
}

// Bid returns the price at which the given outcome can be sold.
func (q MarketQuote) Bid(o Outcome) float64 {
	if o == OutcomeYes {
		return q.YesBid
	}
	return q.NoBid
}

// Asks returns the ask ladder for the outcome, possibly empty.
func (q MarketQuote) Asks(o Outcome) Ladder {
	if o == OutcomeYes {
		return q.YesAsks
	}
	return q.NoAsks
}

// Key identifies the quote across venues.
func (q MarketQuote) Key() string {
	return q.Venue + ":" + q.MarketID
}

// DaysToResolution returns whole days between now and the end date, or -1
// when the end date is unknown.
func (q MarketQuote) DaysToResolution(now time.Time) int {
	if q.EndDate == nil {
		return -1
	}
	d := q.EndDate.Sub(now).Hours() / 24
	if d < 0 {
		return 0
	}
	return int(d)
}

// ValidatePrice reports whether p is a tradable probability.
func ValidatePrice(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: price is %v", ErrInvalidQuote, p)
	}
	if p <= 0 || p >= 1 {
		return fmt.Errorf("%w: price %.4f outside (0,1)", ErrInvalidQuote, p)
	}
	return nil
}

var endDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseEndDate parses the date formats venues use for resolution times. It
// returns nil for empty or unparseable input so matching stays lenient.
func ParseEndDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

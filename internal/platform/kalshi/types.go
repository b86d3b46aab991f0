package kalshi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
// Prices are in cents (1-99); liquidity is in cents.
type KalshiMarket struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	YesSubTitle  string `json:"yes_sub_title"`
	Status       string `json:"status"` // "open", "active", "closed", "settled"
	YesBid       int64  `json:"yes_bid"`
	YesAsk       int64  `json:"yes_ask"`
	NoBid        int64  `json:"no_bid"`
	NoAsk        int64  `json:"no_ask"`
	LastPrice    int64  `json:"last_price"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
	Liquidity    int64  `json:"liquidity"`
	CloseTime    string `json:"close_time"`
	Expiration   string `json:"expiration_time"`
	Result       string `json:"result"` // "yes", "no", "" (unsettled)
}

// MarketsPage is one page of GET /markets.
type MarketsPage struct {
	Markets []KalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

// KalshiOrderbook holds resting bids for both sides. Kalshi books carry bids
// only: a YES ask is the complement of a NO bid.
type KalshiOrderbook struct {
	Yes []KalshiPriceLevel `json:"yes"`
	No  []KalshiPriceLevel `json:"no"`
}

// KalshiPriceLevel is a [price_cents, quantity] pair.
type KalshiPriceLevel struct {
	Price    int64
	Quantity int64
}

// UnmarshalJSON decodes the two-element array form.
func (l *KalshiPriceLevel) UnmarshalJSON(data []byte) error {
	var pair []int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("kalshi: price level has %d elements", len(pair))
	}
	l.Price, l.Quantity = pair[0], pair[1]
	return nil
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

func cents(c int64) float64 {
	return float64(c) / 100
}

// ToQuote converts the market to a quote.
func (m *KalshiMarket) ToQuote(now time.Time) domain.MarketQuote {
	question := m.Title
	if m.YesSubTitle != "" && m.YesSubTitle != m.Title {
		question = m.Title + " " + m.YesSubTitle
	}
	end := m.CloseTime
	if end == "" {
		end = m.Expiration
	}
	return domain.MarketQuote{
		Venue:     domain.VenueKalshi,
		MarketID:  m.Ticker,
		EventKey:  m.EventTicker,
		Question:  question,
		EndDate:   domain.ParseEndDate(end),
		YesBid:    cents(m.YesBid),
		YesAsk:    cents(m.YesAsk),
		NoBid:     cents(m.NoBid),
		NoAsk:     cents(m.NoAsk),
		Depth:     cents(m.Liquidity),
		FetchedAt: now,
	}
}

// AskLadder derives the ask ladder of outcome o from the opposite side's
// bids, best (lowest) ask first.
func (b KalshiOrderbook) AskLadder(o domain.Outcome) domain.Ladder {
	bids := b.No
	if o == domain.OutcomeNo {
		bids = b.Yes
	}
	out := make(domain.Ladder, 0, len(bids))
	// Bids arrive in ascending price; the highest bid is the cheapest ask.
	for i := len(bids) - 1; i >= 0; i-- {
		l := bids[i]
		if l.Price <= 0 || l.Price >= 100 || l.Quantity <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: cents(100 - l.Price), Size: float64(l.Quantity)})
	}
	return out
}

package polymarket

import (
	"cmp"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals a JSON number or numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by the Gamma API. Outcome prices and
// token ids arrive as JSON-encoded string arrays.
type APIMarket struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	ConditionID   string     `json:"conditionId"`
	Slug          string     `json:"slug"`
	Active        flexBool   `json:"active"`
	Closed        bool       `json:"closed"`
	Outcomes      string     `json:"outcomes"`
	OutcomePrices string     `json:"outcomePrices"`
	ClobTokenIDs  string     `json:"clobTokenIds"`
	BestBid       flexFloat  `json:"bestBid"`
	BestAsk       flexFloat  `json:"bestAsk"`
	Liquidity     flexFloat  `json:"liquidityNum"`
	Volume        flexFloat  `json:"volumeNum"`
	EndDate       string     `json:"endDate"`
	EndDateISO    string     `json:"endDateIso"`
	Events        []APIEvent `json:"events"`
	NegRisk       bool       `json:"negRisk"`
	Spread        flexFloat  `json:"spread"`
}

// APIEvent is the parent event embedded in a Gamma market.
type APIEvent struct {
	ID     string `json:"id"`
	Ticker string `json:"ticker"`
	Slug   string `json:"slug"`
	Title  string `json:"title"`
}

// TokenIDs returns the YES and NO CLOB token ids, when present.
func (m *APIMarket) TokenIDs() (yes, no string) {
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil || len(ids) < 2 {
		return "", ""
	}
	return ids[0], ids[1]
}

func (m *APIMarket) prices() (yes, no float64) {
	var raw []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &raw); err != nil || len(raw) < 2 {
		return 0, 0
	}
	yes, _ = strconv.ParseFloat(raw[0], 64)
	no, _ = strconv.ParseFloat(raw[1], 64)
	return yes, no
}

// ToQuote converts the market to a quote. Gamma reports the YES book's best
// bid and ask; the NO side is its complement. When no book is reported the
// outcome prices are used for both sides.
func (m *APIMarket) ToQuote(now time.Time) domain.MarketQuote {
	q := domain.MarketQuote{
		Venue:     domain.VenuePolymarket,
		MarketID:  m.ID,
		Question:  m.Question,
		Depth:     float64(m.Liquidity),
		FetchedAt: now,
	}
	if len(m.Events) > 0 {
		q.EventKey = m.Events[0].Slug
	}
	if q.EventKey == "" {
		q.EventKey = m.Slug
	}
	end := m.EndDate
	if end == "" {
		end = m.EndDateISO
	}
	q.EndDate = domain.ParseEndDate(end)

	bid, ask := float64(m.BestBid), float64(m.BestAsk)
	if bid <= 0 || ask <= 0 {
		yes, no := m.prices()
		q.YesBid, q.YesAsk = yes, yes
		q.NoBid, q.NoAsk = no, no
		return q
	}
	q.YesBid, q.YesAsk = bid, ask
	q.NoBid, q.NoAsk = round4(1-ask), round4(1-bid)
	return q
}

// --------------------------------------------------------------------------
// CLOB book DTOs
// --------------------------------------------------------------------------

// APIBook is the public CLOB order book of one token.
type APIBook struct {
	AssetID string         `json:"asset_id"`
	Bids    []APIBookLevel `json:"bids"`
	Asks    []APIBookLevel `json:"asks"`
}

// APIBookLevel is a price level with decimal strings.
type APIBookLevel struct {
	Price flexFloat `json:"price"`
	Size  flexFloat `json:"size"`
}

// AskLadder returns the asks best (lowest) first.
func (b APIBook) AskLadder() domain.Ladder {
	out := make(domain.Ladder, 0, len(b.Asks))
	for _, l := range b.Asks {
		if l.Price > 0 && l.Size > 0 {
			out = append(out, domain.PriceLevel{Price: float64(l.Price), Size: float64(l.Size)})
		}
	}
	slices.SortFunc(out, func(a, b domain.PriceLevel) int { return cmp.Compare(a.Price, b.Price) })
	return out
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

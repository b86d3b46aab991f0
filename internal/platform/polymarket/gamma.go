package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// pageSize is the Gamma API's maximum page length.
const pageSize = 100

// Options configures a Feed.
type Options struct {
	GammaHost      string
	ClobHost       string
	MarketLimit    int
	RequestsPerSec float64
	FetchBooks     bool // fetch CLOB ask ladders for book walks
}

// Feed reads open Polymarket markets from the public Gamma API and, when
// enabled, their CLOB order books. Requests are throttled by a token bucket.
type Feed struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

// NewFeed creates a Polymarket quote feed.
func NewFeed(opts Options, logger *slog.Logger) *Feed {
	if opts.MarketLimit <= 0 {
		opts.MarketLimit = pageSize
	}
	rps := rate.Inf
	if opts.RequestsPerSec > 0 {
		rps = rate.Limit(opts.RequestsPerSec)
	}
	return &Feed{
		opts: opts,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rps, 1),
		logger:  logger.With(slog.String("component", "polymarket_feed")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the venue name.
func (f *Feed) Name() string { return domain.VenuePolymarket }

// GetQuotes returns quotes for active, open markets up to MarketLimit.
func (f *Feed) GetQuotes(ctx context.Context) ([]domain.MarketQuote, error) {
	var quotes []domain.MarketQuote
	for offset := 0; len(quotes) < f.opts.MarketLimit; offset += pageSize {
		markets, err := f.GetMarkets(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		now := f.now()
		for i := range markets {
			m := &markets[i]
			if m.Closed || !bool(m.Active) {
				continue
			}
			q := m.ToQuote(now)
			if f.opts.FetchBooks {
				f.attachBooks(ctx, m, &q)
			}
			quotes = append(quotes, q)
			if len(quotes) >= f.opts.MarketLimit {
				break
			}
		}
		if len(markets) < pageSize {
			break
		}
	}
	f.logger.DebugContext(ctx, "fetched quotes", slog.Int("count", len(quotes)))
	return quotes, nil
}

// GetMarkets returns one page of open markets.
func (f *Feed) GetMarkets(ctx context.Context, limit, offset int) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("active", "true")
	params.Set("closed", "false")

	body, err := f.doGet(ctx, f.opts.GammaHost+"/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}
	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return markets, nil
}

// GetBook returns the CLOB order book of one token.
func (f *Feed) GetBook(ctx context.Context, tokenID string) (APIBook, error) {
	body, err := f.doGet(ctx, f.opts.ClobHost+"/book?token_id="+url.QueryEscape(tokenID))
	if err != nil {
		return APIBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return APIBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book, nil
}

// attachBooks adds ask ladders. A failed book fetch leaves the quote on its
// top-of-book prices.
func (f *Feed) attachBooks(ctx context.Context, m *APIMarket, q *domain.MarketQuote) {
	yesID, noID := m.TokenIDs()
	if yesID == "" {
		return
	}
	for _, side := range []struct {
		id  string
		dst *domain.Ladder
	}{{yesID, &q.YesAsks}, {noID, &q.NoAsks}} {
		book, err := f.GetBook(ctx, side.id)
		if err != nil {
			f.logger.WarnContext(ctx, "book fetch failed",
				slog.String("market", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		*side.dst = book.AskLadder()
	}
}

// doGet sends an unauthenticated, rate-limited GET request.
func (f *Feed) doGet(ctx context.Context, fullURL string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.QuoteSource = (*Feed)(nil)

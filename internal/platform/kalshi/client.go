package kalshi

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

// maxPage is the largest page GET /markets serves.
const maxPage = 1000

// Options configures a Feed.
type Options struct {
	BaseURL        string
	MarketLimit    int
	RequestsPerSec float64
	FetchBooks     bool
}

// Feed reads open Kalshi markets from the public REST API. Requests are
// throttled by a token bucket.
type Feed struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

// NewFeed creates a Kalshi quote feed.
//
// BaseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewFeed(opts Options, logger *slog.Logger) *Feed {
	if opts.MarketLimit <= 0 {
		opts.MarketLimit = 200
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
		logger:  logger.With(slog.String("component", "kalshi_feed")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the venue name.
func (f *Feed) Name() string { return domain.VenueKalshi }

// GetQuotes pages through open markets up to MarketLimit.
func (f *Feed) GetQuotes(ctx context.Context) ([]domain.MarketQuote, error) {
	var quotes []domain.MarketQuote
	cursor := ""
	for len(quotes) < f.opts.MarketLimit {
		page, err := f.GetMarkets(ctx, min(maxPage, f.opts.MarketLimit-len(quotes)), cursor)
		if err != nil {
			return nil, err
		}
		now := f.now()
		for i := range page.Markets {
			m := &page.Markets[i]
			if m.Result != "" {
				continue
			}
			q := m.ToQuote(now)
			if f.opts.FetchBooks {
				if book, err := f.GetOrderbook(ctx, m.Ticker); err == nil {
					q.YesAsks = book.AskLadder(domain.OutcomeYes)
					q.NoAsks = book.AskLadder(domain.OutcomeNo)
				} else {
					f.logger.WarnContext(ctx, "orderbook fetch failed",
						slog.String("ticker", m.Ticker),
						slog.String("error", err.Error()),
					)
				}
			}
			quotes = append(quotes, q)
		}
		if page.Cursor == "" || len(page.Markets) == 0 {
			break
		}
		cursor = page.Cursor
	}
	f.logger.DebugContext(ctx, "fetched quotes", slog.Int("count", len(quotes)))
	return quotes, nil
}

// GetMarkets returns one page of open markets.
func (f *Feed) GetMarkets(ctx context.Context, limit int, cursor string) (MarketsPage, error) {
	params := url.Values{}
	params.Set("status", "open")
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := f.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}
	var page MarketsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: decode markets: %w", err)
	}
	return page, nil
}

// GetOrderbook returns the current orderbook for the given market ticker.
func (f *Feed) GetOrderbook(ctx context.Context, ticker string) (KalshiOrderbook, error) {
	body, err := f.doGet(ctx, fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(ticker)))
	if err != nil {
		return KalshiOrderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}
	var resp struct {
		Orderbook KalshiOrderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return KalshiOrderbook{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}
	return resp.Orderbook, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated, rate-limited GET request.
func (f *Feed) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg, code := apiErr.Error.Message, apiErr.Error.Code

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrNotFound, msg, code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrRateLimited, msg, code)
	case http.StatusBadRequest:
		return fmt.Errorf("kalshi: bad request: %s (%s)", msg, code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, msg, code)
	}
}

var _ domain.QuoteSource = (*Feed)(nil)

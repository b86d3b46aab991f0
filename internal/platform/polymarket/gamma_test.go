package polymarket_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
)

const marketsJSON = `[
 {"id":"501","question":"Will the Fed cut rates in March 2025?","slug":"fed-cut-march",
  "active":true,"closed":false,"outcomePrices":"[\"0.45\",\"0.55\"]",
  "clobTokenIds":"[\"111\",\"222\"]","bestBid":0.44,"bestAsk":0.46,
  "liquidityNum":"12500.5","endDate":"2025-03-19T18:00:00Z",
  "events":[{"slug":"fed-march-2025"}]},
 {"id":"502","question":"No book market","active":"true","closed":false,
  "outcomePrices":"[\"0.3\",\"0.7\"]","endDateIso":"2025-06-30"},
 {"id":"503","question":"Closed market","active":true,"closed":true}
]`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		if r.URL.Query().Get("offset") != "0" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(marketsJSON))
	})
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("token_id") {
		case "111":
			_, _ = w.Write([]byte(`{"asset_id":"111","asks":[{"price":"0.48","size":"100"},{"price":"0.46","size":"50"}]}`))
		default:
			http.Error(w, "no book", http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFeed_GetQuotes(t *testing.T) {
	srv := newServer(t)
	f := polymarket.NewFeed(polymarket.Options{GammaHost: srv.URL, MarketLimit: 10},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	qs, err := f.GetQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 2)

	q := qs[0]
	assert.Equal(t, domain.VenuePolymarket, q.Venue)
	assert.Equal(t, "501", q.MarketID)
	assert.Equal(t, "fed-march-2025", q.EventKey)
	assert.Equal(t, 0.44, q.YesBid)
	assert.Equal(t, 0.46, q.YesAsk)
	assert.Equal(t, 0.56, q.NoAsk)
	assert.Equal(t, 0.54, q.NoBid)
	assert.InDelta(t, 12500.5, q.Depth, 1e-9)
	require.NotNil(t, q.EndDate)
	assert.Equal(t, 19, q.EndDate.Day())

	q = qs[1]
	assert.Equal(t, 0.3, q.YesAsk)
	assert.Equal(t, 0.7, q.NoAsk)
	require.NotNil(t, q.EndDate)
}

func TestFeed_FetchBooks(t *testing.T) {
	srv := newServer(t)
	f := polymarket.NewFeed(polymarket.Options{GammaHost: srv.URL, ClobHost: srv.URL, MarketLimit: 1, FetchBooks: true},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	qs, err := f.GetQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Len(t, qs[0].YesAsks, 2)
	assert.Equal(t, 0.46, qs[0].YesAsks[0].Price)
	assert.Empty(t, qs[0].NoAsks)
}

func TestFeed_HTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := polymarket.NewFeed(polymarket.Options{GammaHost: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := f.GetQuotes(context.Background())
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

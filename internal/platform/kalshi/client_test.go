package kalshi_test

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
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"cursor":"p2","markets":[
			 {"ticker":"FED-25MAR-CUT","event_ticker":"FED-25MAR","title":"Will the Fed cut rates in March 2025?",
			  "yes_bid":44,"yes_ask":46,"no_bid":54,"no_ask":56,"liquidity":1250000,"close_time":"2025-03-19T18:00:00Z"}]}`))
		case "p2":
			_, _ = w.Write([]byte(`{"cursor":"","markets":[
			 {"ticker":"BTC-100K","event_ticker":"BTC","title":"Bitcoin above 100k","yes_sub_title":"on Dec 31",
			  "yes_bid":30,"yes_ask":32,"no_bid":68,"no_ask":70,"liquidity":500000},
			 {"ticker":"OLD","title":"Settled","result":"yes"}]}`))
		}
	})
	mux.HandleFunc("/markets/FED-25MAR-CUT/orderbook", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"orderbook":{"yes":[[40,10],[44,20]],"no":[[50,5],[54,30]]}}`))
	})
	mux.HandleFunc("/markets/BTC-100K/orderbook", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"no book"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFeed_GetQuotesPaginates(t *testing.T) {
	srv := newServer(t)
	f := kalshi.NewFeed(kalshi.Options{BaseURL: srv.URL, MarketLimit: 50}, discard())

	qs, err := f.GetQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 2)

	q := qs[0]
	assert.Equal(t, domain.VenueKalshi, q.Venue)
	assert.Equal(t, "FED-25MAR-CUT", q.MarketID)
	assert.Equal(t, "FED-25MAR", q.EventKey)
	assert.Equal(t, 0.46, q.YesAsk)
	assert.Equal(t, 0.56, q.NoAsk)
	assert.Equal(t, 12500.0, q.Depth)
	require.NotNil(t, q.EndDate)

	assert.Equal(t, "Bitcoin above 100k on Dec 31", qs[1].Question)
	assert.Nil(t, qs[1].EndDate)
}

func TestFeed_FetchBooksDerivesAsks(t *testing.T) {
	srv := newServer(t)
	f := kalshi.NewFeed(kalshi.Options{BaseURL: srv.URL, MarketLimit: 50, FetchBooks: true}, discard())

	qs, err := f.GetQuotes(context.Background())
	require.NoError(t, err)

	yes := qs[0].YesAsks
	require.Len(t, yes, 2)
	assert.Equal(t, domain.PriceLevel{Price: 0.46, Size: 30}, yes[0])
	assert.Equal(t, domain.PriceLevel{Price: 0.50, Size: 5}, yes[1])

	no := qs[0].NoAsks
	require.Len(t, no, 2)
	assert.Equal(t, 0.56, no[0].Price)

	assert.Empty(t, qs[1].YesAsks)
}

func TestFeed_NotFound(t *testing.T) {
	srv := newServer(t)
	f := kalshi.NewFeed(kalshi.Options{BaseURL: srv.URL}, discard())

	_, err := f.GetOrderbook(context.Background(), "BTC-100K")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/notify"
)

type recorder struct {
	mu    sync.Mutex
	name  string
	got   []string
	fail  bool
	delay time.Duration
}

func (r *recorder) Send(_ context.Context, title, message string) error {
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, title+"|"+message)
	if r.fail {
		return errors.New("down")
	}
	return nil
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifier_FiltersAndFansOut(t *testing.T) {
	bad := &recorder{name: "bad", fail: true}
	good := &recorder{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, domain.SeverityWarning, 8, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = n.Run(ctx); close(done) }()

	n.Notify(ctx, "opportunity found", domain.SeverityInfo)
	n.Notify(ctx, "unwind failed", domain.SeverityCritical)

	require.Eventually(t, func() bool { return len(good.messages()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"crossarb CRITICAL|unwind failed"}, good.messages())
	assert.Len(t, bad.messages(), 1)
}

func TestNotifier_DropsWhenFull(t *testing.T) {
	slow := &recorder{name: "slow"}
	n := notify.NewNotifier([]notify.Sender{slow}, domain.SeverityInfo, 2, discard())

	for range 5 {
		n.Notify(context.Background(), "x", domain.SeverityInfo)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, n.Run(ctx))
	assert.Len(t, slow.messages(), 2)
}

func TestTelegramSender(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := notify.NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), "title", "hello"))
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "*title*\nhello", body["text"])
}

func TestDiscordSender_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad"))
	}))
	defer srv.Close()

	err := notify.NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestConsoleSender(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)
	require.NoError(t, c.Send(context.Background(), "crossarb", "trade filled"))
	assert.Contains(t, buf.String(), "crossarb\ntrade filled\n")
}

func TestRenderDailySummary(t *testing.T) {
	out := notify.RenderDailySummary(notify.DailyReport{
		Day: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Summary: domain.PerformanceSummary{
			OpportunitiesSeen: 40, OpportunitiesPassed: 3,
			TradesByStatus: map[domain.TradeStatus]int{domain.TradeStatusFilled: 2},
			RealizedPnL:    -12.5,
		},
		Balance: domain.BalanceSnapshot{Balances: map[string]float64{"kalshi": 5000}, Total: 10000},
		Breaker: domain.BreakerState{Status: domain.BreakerClosed},
	})
	assert.Contains(t, out, "Daily summary 2025-03-01")
	assert.Contains(t, out, "-$12.50")
	assert.Contains(t, out, "kalshi")
	assert.Contains(t, out, "Breaker CLOSED")
}

func TestNotifier_TitledDrainsOnShutdown(t *testing.T) {
	r := &recorder{name: "r"}
	n := notify.NewNotifier([]notify.Sender{r}, domain.SeverityInfo, 8, discard())

	ctx, cancel := context.WithCancel(context.Background())
	n.NotifyTitled(ctx, "crossarb daily summary 2025-03-01", "table", domain.SeverityInfo)
	cancel()
	require.NoError(t, n.Run(ctx))

	assert.Equal(t, []string{"crossarb daily summary 2025-03-01|table"}, r.messages())
}

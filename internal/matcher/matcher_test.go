package matcher_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/matcher"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quote(venue, id, question string, end *time.Time) domain.MarketQuote {
	return domain.MarketQuote{Venue: venue, MarketID: id, Question: question, EndDate: end}
}

func day(s string) *time.Time {
	return domain.ParseEndDate(s)
}

func defaultMatcherConfig() config.MatcherConfig {
	return config.MatcherConfig{SimilarityThreshold: 0.85, DateToleranceDays: 1}
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t,
		matcher.Canonicalize("will the fed raise rates by december 2024"),
		matcher.Canonicalize("Will the Fed raise rates by December 2024?"))
	assert.Equal(t, "bitcoin reach 100000 end 2024", matcher.Canonicalize("Will Bitcoin reach $100,000 by end of 2024?"))
}

func TestKeywords(t *testing.T) {
	kw := matcher.Keywords("Will the Federal Reserve raise interest rates by March 2024?")
	for _, w := range []string{"federal", "reserve", "raise", "interest", "rates", "march", "2024"} {
		assert.Contains(t, kw, w)
	}
	assert.NotContains(t, kw, "the")
	assert.NotContains(t, kw, "by")
}

func TestSimilarity(t *testing.T) {
	same := "Will Bitcoin reach $100k in 2024?"
	assert.InDelta(t, 1.0, matcher.Similarity(same, same), 1e-9)

	s := matcher.Similarity("Will the Fed cut interest rates in March 2025?", "Fed cuts interest rates in March 2025?")
	assert.Greater(t, s, 0.85)
	assert.Less(t, s, 1.0)

	s = matcher.Similarity("Will Bitcoin reach $100,000 by end of 2024?", "Will Ethereum reach $10,000 by end of 2024?")
	assert.Less(t, s, 0.85)
}

func TestOneSided(t *testing.T) {
	got := matcher.OneSided("Will Smith win the Ohio Senate primary election?", "Will Smith win the Ohio Senate election?")
	assert.Equal(t, []string{"primary"}, got)

	assert.Empty(t, matcher.OneSided("At least 3 hikes?", "at least 3 hikes"))
	assert.Equal(t, []string{"at least"}, matcher.OneSided("At least 3 hikes in 2025?", "3 hikes in 2025?"))
}

func TestDeadlineQualifiers(t *testing.T) {
	got := matcher.DeadlineQualifiers("Rain in London before July?", "Will it rain in London before July 2025?")
	assert.Equal(t, []string{"before"}, got)
	assert.Empty(t, matcher.DeadlineQualifiers("Rain before July?", "Rain in July?"))
	assert.True(t, matcher.HasDeadline("Bitcoin $100k by end of 2024?"))
	assert.False(t, matcher.HasDeadline("Bitcoin $100k in 2024?"))
}

func TestMatch_Basic(t *testing.T) {
	m := matcher.New(quietLogger())
	as := []domain.MarketQuote{
		quote("kalshi", "FED-MAR", "Will the Fed cut interest rates in March 2025?", day("2025-03-20")),
		quote("kalshi", "BTC", "Will Bitcoin reach $100,000 by end of 2024?", day("2024-12-31")),
	}
	bs := []domain.MarketQuote{
		quote("polymarket", "0xfed", "Fed cuts interest rates in March 2025?", day("2025-03-20T18:00:00Z")),
		quote("polymarket", "0xeth", "Will Ethereum reach $10,000 by end of 2024?", day("2024-12-31")),
	}

	pairs := m.Match(context.Background(), defaultMatcherConfig(), as, bs)
	require.Len(t, pairs, 1)
	assert.Equal(t, "FED-MAR", pairs[0].A.MarketID)
	assert.Equal(t, "0xfed", pairs[0].B.MarketID)
	assert.Empty(t, pairs[0].Discriminators)
	assert.Equal(t, "fed cut interest rates march 2025", pairs[0].A.Canonical)
	assert.GreaterOrEqual(t, pairs[0].Similarity, 0.85)
}

func TestMatch_DateTolerance(t *testing.T) {
	m := matcher.New(quietLogger())
	q := "Will the Fed cut interest rates in March 2025?"
	cfg := defaultMatcherConfig()

	far := m.Match(context.Background(), cfg,
		[]domain.MarketQuote{quote("kalshi", "a", q, day("2024-12-31"))},
		[]domain.MarketQuote{quote("polymarket", "b", q, day("2024-12-28"))})
	assert.Empty(t, far)

	near := m.Match(context.Background(), cfg,
		[]domain.MarketQuote{quote("kalshi", "a", q, day("2024-12-31"))},
		[]domain.MarketQuote{quote("polymarket", "b", q, day("2024-12-30"))})
	assert.Len(t, near, 1)

	unknown := m.Match(context.Background(), cfg,
		[]domain.MarketQuote{quote("kalshi", "a", q, nil)},
		[]domain.MarketQuote{quote("polymarket", "b", q, day("not a date"))})
	assert.Len(t, unknown, 1)
}

func TestMatch_DiscriminatorBlocks(t *testing.T) {
	m := matcher.New(quietLogger())
	cfg := config.MatcherConfig{SimilarityThreshold: 0.5, DateToleranceDays: 1}

	pairs := m.Match(context.Background(), cfg,
		[]domain.MarketQuote{quote("kalshi", "a", "Will Smith win the Ohio Senate primary election?", nil)},
		[]domain.MarketQuote{quote("polymarket", "b", "Will Smith win the Ohio Senate election?", nil)})
	assert.Empty(t, pairs)

	pairs = m.Match(context.Background(), cfg,
		[]domain.MarketQuote{quote("kalshi", "a", "Will Smith win the Ohio Senate primary election?", nil)},
		[]domain.MarketQuote{quote("polymarket", "b", "Smith wins Ohio Senate primary election", nil)})
	assert.Len(t, pairs, 1)
}

func TestMatch_ResolvesManyToMany(t *testing.T) {
	m := matcher.New(quietLogger())
	as := []domain.MarketQuote{
		quote("kalshi", "cuts", "Fed cuts interest rates in March 2025?", nil),
		quote("kalshi", "exact", "Will the Fed cut interest rates in March 2025?", nil),
	}
	bs := []domain.MarketQuote{
		quote("polymarket", "poly", "Will the Fed cut interest rates in March 2025", nil),
	}

	pairs := m.Match(context.Background(), defaultMatcherConfig(), as, bs)
	require.Len(t, pairs, 1)
	assert.Equal(t, "exact", pairs[0].A.MarketID)
	assert.InDelta(t, 1.0, pairs[0].Similarity, 1e-9)
}

func TestMatch_SkipsSameVenueAndEmpty(t *testing.T) {
	m := matcher.New(quietLogger())
	q := "Will the Fed cut interest rates in March 2025?"
	pairs := m.Match(context.Background(), defaultMatcherConfig(),
		[]domain.MarketQuote{quote("kalshi", "a", q, nil), quote("kalshi", "empty", "", nil)},
		[]domain.MarketQuote{quote("kalshi", "b", q, nil)})
	assert.Empty(t, pairs)
}

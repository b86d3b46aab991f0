// Package matcher pairs markets from two venues that resolve on the same
// real-world outcome.
package matcher

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Candidate is a scored cross-venue comparison before resolution.
type Candidate struct {
	A, B           int
	Similarity     float64
	DatesOK        bool
	Discriminators []string
}

// Matches reports whether the candidate satisfies every matching rule.
func (c Candidate) Matches(threshold float64) bool {
	return c.Similarity >= threshold && c.DatesOK && len(c.Discriminators) == 0
}

// Matcher compares quote sets from two venues.
type Matcher struct {
	logger *slog.Logger
}

// New creates a Matcher.
func New(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger.With(slog.String("component", "matcher"))}
}

// DatesMatch reports whether two end dates fall within tolDays of each other.
// A missing date on either side is accepted.
func DatesMatch(a, b *domain.MarketQuote, tolDays int) bool {
	if a.EndDate == nil || b.EndDate == nil {
		return true
	}
	diff := math.Abs(a.EndDate.Sub(*b.EndDate).Hours()) / 24
	return int(diff) <= tolDays
}

// Compare scores one cross-venue pair.
func Compare(a, b *domain.MarketQuote, cfg config.MatcherConfig) Candidate {
	return Candidate{
		Similarity:     Similarity(a.Question, b.Question),
		DatesOK:        DatesMatch(a, b, cfg.DateToleranceDays),
		Discriminators: OneSided(a.Question, b.Question),
	}
}

// Match returns at most one pair per market on each side. Candidates that
// pass every rule are taken greedily by descending similarity; ties keep
// input order. Non-matching quotes are simply absent from the result.
func (m *Matcher) Match(ctx context.Context, cfg config.MatcherConfig, as, bs []domain.MarketQuote) []domain.MatchedPair {
	as = canonicalized(as)
	bs = canonicalized(bs)

	var cands []Candidate
	for i := range as {
		if as[i].Question == "" {
			continue
		}
		for j := range bs {
			if bs[j].Question == "" || as[i].Venue == bs[j].Venue {
				continue
			}
			c := Compare(&as[i], &bs[j], cfg)
			if !c.Matches(cfg.SimilarityThreshold) {
				continue
			}
			c.A, c.B = i, j
			cands = append(cands, c)
		}
	}

	sort.SliceStable(cands, func(x, y int) bool {
		return cands[x].Similarity > cands[y].Similarity
	})

	usedA := make(map[int]bool)
	usedB := make(map[int]bool)
	var pairs []domain.MatchedPair
	for _, c := range cands {
		if usedA[c.A] || usedB[c.B] {
			continue
		}
		usedA[c.A], usedB[c.B] = true, true
		a, b := as[c.A], bs[c.B]
		pairs = append(pairs, domain.MatchedPair{
			A:          a,
			B:          b,
			Similarity: c.Similarity,
			Qualifiers: DeadlineQualifiers(a.Question, b.Question),
		})
	}

	m.logger.DebugContext(ctx, "match complete",
		slog.Int("venue_a_quotes", len(as)),
		slog.Int("venue_b_quotes", len(bs)),
		slog.Int("candidates", len(cands)),
		slog.Int("pairs", len(pairs)),
	)
	return pairs
}

func canonicalized(qs []domain.MarketQuote) []domain.MarketQuote {
	out := make([]domain.MarketQuote, len(qs))
	for i, q := range qs {
		q.Canonical = Canonicalize(q.Question)
		out[i] = q
	}
	return out
}

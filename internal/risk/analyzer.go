// Package risk scores arbitrage opportunities across independent risk
// factors and buckets the composite into a discrete level.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/matcher"
)

var politicalTerms = []string{"election", "president", "senate", "congress", "governor", "vote"}

// Analyzer produces RiskAssessments. It is stateless.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	return &Analyzer{logger: logger.With(slog.String("component", "risk"))}
}

// Assess scores opp, which must have been derived from pair.
func (a *Analyzer) Assess(ctx context.Context, p config.Params, opp domain.Opportunity, pair domain.MatchedPair) domain.RiskAssessment {
	var warns []string
	f := domain.RiskFactors{
		Definition: definitionRisk(pair, &warns),
		Liquidity:  liquidityRisk(opp, &warns),
		Edge:       edgeRisk(opp.NetEdge, p.Trading.ThresholdSpread, &warns),
		Timing:     timingRisk(pair, opp.DaysToRes, p.Capital.MaxDaysToResolution, &warns),
		Regulatory: regulatoryRisk(p.Risk.VenueRegulatory, opp, pair, &warns),
	}
	score := Composite(f, p.Risk.Weights)
	ra := domain.RiskAssessment{
		Score:    score,
		Level:    domain.LevelForScore(score),
		Factors:  f,
		Warnings: warns,
	}
	if ra.Level == domain.RiskCritical || ra.Level == domain.RiskHigh {
		a.logger.WarnContext(ctx, "elevated risk",
			slog.String("opp_id", opp.ID),
			slog.String("level", string(ra.Level)),
			slog.Float64("score", score),
			slog.String("warnings", strings.Join(warns, "; ")),
		)
	}
	return ra
}

// Composite is the weighted average of the factors. Weights are normalized
// by their sum.
func Composite(f domain.RiskFactors, w config.RiskWeights) float64 {
	total := w.Sum()
	if total <= 0 {
		return 0
	}
	s := w.Definition*f.Definition +
		w.Liquidity*f.Liquidity +
		w.Edge*f.Edge +
		w.Timing*f.Timing +
		w.Regulatory*f.Regulatory
	return clamp(s / total)
}

func definitionRisk(pair domain.MatchedPair, warns *[]string) float64 {
	var s float64
	if pair.Similarity < 0.90 {
		s += 0.3
		*warns = append(*warns, fmt.Sprintf("markets may not be equivalent (similarity %.2f)", pair.Similarity))
	}
	disc := pair.Discriminators
	if len(disc) == 0 {
		disc = matcher.OneSided(pair.A.Question, pair.B.Question)
	}
	for _, d := range disc {
		s += 0.25
		*warns = append(*warns, fmt.Sprintf("only one market mentions %q", d))
	}
	for _, q := range pair.Qualifiers {
		s += 0.1
		*warns = append(*warns, fmt.Sprintf("deadline wording %q may resolve differently", q))
	}
	return clamp(s)
}

// liquidityRisk maps the share of depth taken by the larger leg so that 10%
// scores 0.5 and 20% or more scores 1.
func liquidityRisk(opp domain.Opportunity, warns *[]string) float64 {
	sum := opp.YesLeg.Price + opp.NoLeg.Price
	if sum <= 0 || opp.Notional <= 0 {
		return 0
	}
	var worst float64
	for _, l := range []domain.Leg{opp.YesLeg, opp.NoLeg} {
		legNotional := opp.Notional * l.Price / sum
		ratio := 1.0
		if l.Depth > 0 {
			ratio = legNotional / l.Depth
		}
		if ratio > 0.1 {
			*warns = append(*warns, fmt.Sprintf("%s leg is %.1f%% of visible depth", l.Venue, ratio*100))
		}
		worst = math.Max(worst, ratio*5)
	}
	return clamp(worst)
}

func edgeRisk(net, threshold float64, warns *[]string) float64 {
	var s float64
	if threshold > 0 {
		s = clamp(1 - (net-threshold)/threshold)
	} else if net <= 0 {
		s = 1
	}
	switch {
	case net < 0.005:
		s = math.Max(s, 0.3)
		*warns = append(*warns, fmt.Sprintf("edge is very thin (%.2f%%)", net*100))
	case net < 0.01:
		s = math.Max(s, 0.15)
		*warns = append(*warns, fmt.Sprintf("edge is thin (%.2f%%)", net*100))
	}
	return clamp(s)
}

func timingRisk(pair domain.MatchedPair, days, maxDays int, warns *[]string) float64 {
	var s float64
	a, b := pair.A.EndDate, pair.B.EndDate
	if a != nil && b != nil && !a.Truncate(24*time.Hour).Equal(b.Truncate(24*time.Hour)) {
		s += 0.15
		*warns = append(*warns, fmt.Sprintf("resolution dates differ: %s vs %s",
			a.Format("2006-01-02"), b.Format("2006-01-02")))
	}
	if matcher.HasDeadline(pair.A.Question) || matcher.HasDeadline(pair.B.Question) {
		s += 0.05
	}
	if days > 0 && maxDays > 0 {
		s += math.Min(float64(days)/float64(2*maxDays), 0.5)
	}
	return clamp(s)
}

func regulatoryRisk(flags map[string]float64, opp domain.Opportunity, pair domain.MatchedPair, warns *[]string) float64 {
	var s float64
	seen := make(map[string]bool, 2)
	for _, venue := range []string{opp.YesLeg.Venue, opp.NoLeg.Venue} {
		if seen[venue] {
			continue
		}
		seen[venue] = true
		if v := flags[venue]; v > 0 {
			s += v
			*warns = append(*warns, fmt.Sprintf("%s carries jurisdiction restrictions", venue))
		}
	}
	text := strings.ToLower(pair.A.Question + " " + pair.B.Question)
	for _, term := range politicalTerms {
		if strings.Contains(text, term) {
			s += 0.05
			break
		}
	}
	return clamp(s)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}

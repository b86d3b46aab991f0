package detector

import (
	"math"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// staticSlippage estimates the price impact of a leg as a fraction of its
// notional, scaling the tolerance by how much of the visible depth it takes.
func staticSlippage(tolerance, legNotional, depth float64) float64 {
	if legNotional <= 0 {
		return 0
	}
	if depth <= 0 {
		return tolerance
	}
	return tolerance * math.Min(1, legNotional/depth)
}

// walkSlippage buys legNotional USD worth of contracts level by level and
// returns the extra cost over the best ask as a fraction of legNotional.
// Size beyond the ladder is charged at the last level plus tolerance.
// ok is false when the ladder is empty.
func walkSlippage(ladder domain.Ladder, tolerance, legNotional float64) (frac float64, ok bool) {
	best, found := ladder.Best()
	if !found || best.Price <= 0 {
		return 0, false
	}
	if legNotional <= 0 {
		return 0, true
	}

	want := legNotional / best.Price
	remaining := want
	var spent float64
	last := best.Price
	for _, lvl := range ladder {
		if remaining <= 0 {
			break
		}
		take := math.Min(remaining, lvl.Size)
		spent += take * lvl.Price
		remaining -= take
		last = lvl.Price
	}
	if remaining > 0 {
		spent += remaining * math.Min(last+tolerance, 1)
	}
	extra := spent - want*best.Price
	if extra < 0 {
		extra = 0
	}
	return extra / legNotional, true
}

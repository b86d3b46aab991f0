package detector

import "github.com/alanyoungcy/crossarb/internal/config"

// FeeFraction returns the total trading cost of a two-leg position as a
// fraction of notional: the price-weighted percentage fee of both venues,
// the fixed per-venue costs spread over notional, and the safety buffer.
func FeeFraction(fees config.FeesConfig, safetyBuffer float64, yes, no LegPrice, notional float64) float64 {
	sum := yes.Price + no.Price
	if sum <= 0 {
		return 0
	}
	pct := (fees.FeePct(yes.Venue)*yes.Price + fees.FeePct(no.Venue)*no.Price) / sum

	var fixed float64
	if notional > 0 {
		fixed = (fees.FixedCostUSD(yes.Venue) + fees.FixedCostUSD(no.Venue)) / notional
	}
	return pct + fixed + safetyBuffer
}

// LegFeeUSD is the fee charged by venue on a leg of the given notional.
func LegFeeUSD(fees config.FeesConfig, venue string, notional float64) float64 {
	if notional <= 0 {
		return 0
	}
	return fees.FeePct(venue)*notional + fees.FixedCostUSD(venue)
}

// LegPrice is a venue and the ask paid there.
type LegPrice struct {
	Venue string
	Price float64
}

package domain

// PriceLevel is a single price+size entry in an orderbook. Size is in
// contracts (one contract pays 1 USD on resolution).
type PriceLevel struct {
	Price float64
	Size  float64
}

// Notional returns the USD cost of taking the whole level.
func (l PriceLevel) Notional() float64 {
	return l.Price * l.Size
}

// Ladder is one side of an orderbook, best price first.
type Ladder []PriceLevel

// Depth returns the total USD notional resting on the ladder.
func (l Ladder) Depth() float64 {
	var total float64
	for _, lvl := range l {
		total += lvl.Notional()
	}
	return total
}

// Best returns the top of the ladder, or false when empty.
func (l Ladder) Best() (PriceLevel, bool) {
	if len(l) == 0 {
		return PriceLevel{}, false
	}
	return l[0], true
}

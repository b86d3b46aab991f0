package domain

// MatchedPair links two quotes from different venues that resolve on the
// same real-world outcome. It lives for one cycle.
type MatchedPair struct {
	A          MarketQuote
	B          MarketQuote
	Similarity float64

	// Discriminators lists lexical qualifiers present on only one side.
	// Yielded pairs always have none; the field is kept for scoring.
	Discriminators []string

	// Qualifiers lists deadline phrases ("by end of", "before") found on
	// both sides. They do not block a match but add definition risk.
	Qualifiers []string
}

// ID is a stable identifier for the pair across cycles.
func (p MatchedPair) ID() string {
	return p.A.Key() + "|" + p.B.Key()
}

// EventKey groups exposure for the pair. Both legs bet on one event, so
// the A side's key is used.
func (p MatchedPair) EventKey() string {
	if p.A.EventKey != "" {
		return p.A.Venue + ":" + p.A.EventKey
	}
	return p.ID()
}

package capture

// DefaultThreshold is the confidence at or above which a capture is posted
// without review.
const DefaultThreshold = 0.85

// Weights in hundredths, so sums compare exactly against thresholds.
const (
	weightAmount      = 55
	weightCurrency    = 10
	weightDescription = 10
	weightCategory    = 15
	weightDate        = 10
)

// Signals records which parts of a candidate came from the input rather than
// from defaults.
type Signals struct {
	CurrencyParsed  bool
	HasDescription  bool
	CategoryMatched bool
	DateExplicit    bool
}

// Score returns the additive confidence for a candidate with an amount,
// clamped to [0, 1].
func Score(s Signals) float64 {
	points := weightAmount
	if s.CurrencyParsed {
		points += weightCurrency
	}
	if s.HasDescription {
		points += weightDescription
	}
	if s.CategoryMatched {
		points += weightCategory
	}
	if s.DateExplicit {
		points += weightDate
	}
	if points > 100 {
		points = 100
	}
	return float64(points) / 100
}

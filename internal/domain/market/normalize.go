package market

import "math"

// RejectReason classifies why a quote was excluded from consensus. Excluded
// quotes are counted, never silently dropped.
type RejectReason string

const (
	RejectNone          RejectReason = ""
	RejectMissingValue  RejectReason = "missing_value"
	RejectPriceLeak     RejectReason = "price_leak"
	RejectNegativeTotal RejectReason = "negative_total"
	RejectGranularity   RejectReason = "bad_granularity"
	RejectUnknownMarket RejectReason = "unknown_market"
)

const (
	maxPlausibleSpread = 60.0
	maxPlausibleTotal  = 120.0
	minMoneyline       = 100.0
)

// PointValue extracts the usable numeric value from a quote, preferring the
// closing field over the generic line value.
func PointValue(q RawLineQuote) (float64, bool) {
	if q.Closing != nil {
		return *q.Closing, true
	}
	if q.Value != nil {
		return *q.Value, true
	}
	return 0, false
}

// Normalize sanitizes one raw quote for its declared market and returns the
// clamped numeric value, or the reason it must be excluded.
func Normalize(q RawLineQuote) (float64, RejectReason) {
	if !q.Market.Valid() {
		return 0, RejectUnknownMarket
	}
	value, ok := PointValue(q)
	if !ok {
		return 0, RejectMissingValue
	}

	switch q.Market {
	case TypeSpread:
		if moneylineShaped(value) {
			// A price landed in a points field. Common provider
			// mis-tagging; the value is worthless as a spread.
			return 0, RejectPriceLeak
		}
		if math.Abs(value) > maxPlausibleSpread {
			return 0, RejectPriceLeak
		}
		return value, RejectNone
	case TypeTotal:
		if value < 0 {
			return 0, RejectNegativeTotal
		}
		if value == 0 || value > maxPlausibleTotal {
			return 0, RejectPriceLeak
		}
		return value, RejectNone
	case TypeMoneyline:
		if math.Abs(value) < minMoneyline {
			return 0, RejectPriceLeak
		}
		if !isWholeNickel(value) {
			// Books quote moneylines in increments of 5. Anything
			// finer is corrupted or mis-tagged data.
			return 0, RejectGranularity
		}
		return value, RejectNone
	default:
		return 0, RejectUnknownMarket
	}
}

// moneylineShaped reports whether a value looks like an American price:
// a whole number of at least 100 in magnitude on the 5-point grid.
func moneylineShaped(value float64) bool {
	return math.Abs(value) >= minMoneyline && isWholeNickel(value)
}

func isWholeNickel(value float64) bool {
	if value != math.Trunc(value) {
		return false
	}
	return math.Mod(math.Abs(value), 5) == 0
}

// RoundHalf snaps a points value to the nearest half point, the finest
// granularity spreads are quoted at.
func RoundHalf(value float64) float64 {
	return math.Round(value*2) / 2
}

// RoundNickel snaps a price to the nearest multiple of 5.
func RoundNickel(value float64) float64 {
	return math.Round(value/5) * 5
}

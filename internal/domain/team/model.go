package team

import "strings"

const (
	ClassificationFBS = "fbs"
	ClassificationFCS = "fcs"
)

type Team struct {
	ID             string
	School         string
	Conference     string
	Classification string
	// Talent is the preseason composite talent rating; nil when the
	// provider has no entry for the school.
	Talent *float64
	// ReturningProduction is the share of prior-season production back on
	// the roster, in [0, 1].
	ReturningProduction *float64
}

var powerFiveConferences = map[string]struct{}{
	"acc":     {},
	"big 12":  {},
	"big ten": {},
	"pac-12":  {},
	"sec":     {},
}

// Tier buckets a team for matchup context flags: p5, g5, or fcs.
func (t Team) Tier() string {
	if !strings.EqualFold(t.Classification, ClassificationFBS) {
		return "fcs"
	}
	if _, ok := powerFiveConferences[strings.ToLower(strings.TrimSpace(t.Conference))]; ok {
		return "p5"
	}
	return "g5"
}

// NormalizeName canonicalizes a provider school name for lookup. Providers
// disagree on punctuation and abbreviations; this strips the cheap variance
// before the alias table is consulted.
func NormalizeName(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, ".", "")
	value = strings.ReplaceAll(value, "'", "")
	value = strings.ReplaceAll(value, "&", "and")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

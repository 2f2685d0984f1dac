package rating

import "time"

// DefaultHomeField is the league-wide home edge in points used before a
// team-specific estimate exists.
const DefaultHomeField = 2.5

// HomeFieldEstimate carries both the raw residual-based estimate and the
// shrunk value that consumers should use, plus the sample diagnostics that
// make the shrinkage auditable.
type HomeFieldEstimate struct {
	Raw          float64
	Shrunk       float64
	HomeGames    int
	AwayGames    int
	ShrinkWeight float64
	LeagueMean   float64
	Capped       bool
	Outlier      bool
}

func (h HomeFieldEstimate) SampleSize() int {
	return h.HomeGames + h.AwayGames
}

// TeamSeason is one team's rating row for a season under one model version.
// The HFA block is updated separately from the rating itself.
type TeamSeason struct {
	TeamID       string
	Season       int
	ModelVersion string
	Rating       float64
	HomeField    HomeFieldEstimate
	UpdatedAt    time.Time
}

package efficiency

// TeamGame is one team's raw per-game efficiency line. Every statistic is a
// pointer: absent provider data stays absent instead of collapsing to zero,
// because several downstream computations treat 0 and unknown differently.
type TeamGame struct {
	GameID     string
	TeamID     string
	OpponentID string
	Season     int
	Week       int

	OffEPA           *float64
	DefEPA           *float64
	OffSuccessRate   *float64
	DefSuccessRate   *float64
	OffExplosiveness *float64
	DefExplosiveness *float64
	OffPointsPerOpp  *float64
	DefPointsPerOpp  *float64
	Havoc            *float64
	HavocAllowed     *float64
}

// SequenceKey mirrors game.Game.SequenceKey so rolling windows can be built
// by ordinal slicing on season+week.
func (t TeamGame) SequenceKey() int {
	return t.Season*100 + t.Week
}

// SideAverages holds a team's season-to-date per-side averages computed from
// strictly earlier games. Nil means no prior observation exists.
type SideAverages struct {
	Games            int
	OffEPA           *float64
	DefEPA           *float64
	OffSuccessRate   *float64
	DefSuccessRate   *float64
	OffExplosiveness *float64
	DefExplosiveness *float64
	OffPointsPerOpp  *float64
	DefPointsPerOpp  *float64
	Havoc            *float64
	HavocAllowed     *float64
}

package game

import "time"

const (
	SeasonTypeRegular    = "regular"
	SeasonTypePostseason = "postseason"
)

// Game is one scheduled or completed matchup. Scores are nil until the game
// is final so a 0-0 sentinel can never be mistaken for a real result.
type Game struct {
	ID                 string
	Season             int
	Week               int
	SeasonType         string
	KickoffAt          time.Time
	HomeTeamID         string
	AwayTeamID         string
	NeutralSite        bool
	ConferenceGame     bool
	HomeClassification string
	AwayClassification string
	HomePoints         *int
	AwayPoints         *int
	Status             string
}

func (g Game) Completed() bool {
	return g.HomePoints != nil && g.AwayPoints != nil
}

// HomeMargin returns the home scoring margin for completed games.
func (g Game) HomeMargin() (float64, bool) {
	if !g.Completed() {
		return 0, false
	}
	return float64(*g.HomePoints - *g.AwayPoints), true
}

// SequenceKey orders games within and across seasons without touching the
// wall clock. All "prior games" queries slice on this key, not on dates.
func (g Game) SequenceKey() int {
	return g.Season*100 + g.Week
}

func (g Game) OpponentOf(teamID string) (string, bool) {
	switch teamID {
	case g.HomeTeamID:
		return g.AwayTeamID, true
	case g.AwayTeamID:
		return g.HomeTeamID, true
	default:
		return "", false
	}
}

package gridstats

import (
	"strings"
	"time"
)

type teamPayload struct {
	ID                  int64    `json:"id"`
	School              string   `json:"school"`
	Conference          string   `json:"conference"`
	Classification      string   `json:"classification"`
	ReturningProduction *float64 `json:"returning_production"`
}

type talentPayload struct {
	Year   int     `json:"year"`
	School string  `json:"school"`
	Talent float64 `json:"talent"`
}

type gamePayload struct {
	ID                 int64  `json:"id"`
	Season             int    `json:"season"`
	Week               int    `json:"week"`
	SeasonType         string `json:"season_type"`
	StartDate          string `json:"start_date"`
	NeutralSite        bool   `json:"neutral_site"`
	ConferenceGame     bool   `json:"conference_game"`
	HomeTeam           string `json:"home_team"`
	AwayTeam           string `json:"away_team"`
	HomeClassification string `json:"home_classification"`
	AwayClassification string `json:"away_classification"`
	HomePoints         *int   `json:"home_points"`
	AwayPoints         *int   `json:"away_points"`
	Completed          bool   `json:"completed"`
}

type gameLinesPayload struct {
	ID    int64             `json:"id"`
	Lines []bookLinePayload `json:"lines"`
}

type bookLinePayload struct {
	Provider       string   `json:"provider"`
	Spread         *float64 `json:"spread"`
	SpreadClose    *float64 `json:"spread_close"`
	OverUnder      *float64 `json:"over_under"`
	OverUnderClose *float64 `json:"over_under_close"`
	HomeMoneyline  *float64 `json:"home_moneyline"`
	AwayMoneyline  *float64 `json:"away_moneyline"`
	LastUpdated    string   `json:"last_updated"`
}

type advancedStatsPayload struct {
	GameID   int64             `json:"game_id"`
	Season   int               `json:"season"`
	Week     int               `json:"week"`
	Team     string            `json:"team"`
	Opponent string            `json:"opponent"`
	Offense  unitStatsPayload  `json:"offense"`
	Defense  unitStatsPayload  `json:"defense"`
}

type unitStatsPayload struct {
	PPA           *float64      `json:"ppa"`
	SuccessRate   *float64      `json:"success_rate"`
	Explosiveness *float64      `json:"explosiveness"`
	PointsPerOpp  *float64      `json:"points_per_opportunity"`
	Havoc         havocPayload  `json:"havoc"`
}

type havocPayload struct {
	Total *float64 `json:"total"`
}

func parseProviderTimestamp(raw string) time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

package postgres

import (
	"database/sql"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/game"
)

type gameTableModel struct {
	ID                 string        `db:"id"`
	Season             int           `db:"season"`
	Week               int           `db:"week"`
	SeasonType         string        `db:"season_type"`
	KickoffAt          time.Time     `db:"kickoff_at"`
	HomeTeamID         string        `db:"home_team_id"`
	AwayTeamID         string        `db:"away_team_id"`
	NeutralSite        bool          `db:"neutral_site"`
	ConferenceGame     bool          `db:"conference_game"`
	HomeClassification string        `db:"home_classification"`
	AwayClassification string        `db:"away_classification"`
	HomePoints         sql.NullInt64 `db:"home_points"`
	AwayPoints         sql.NullInt64 `db:"away_points"`
	Status             string        `db:"status"`
	UpdatedAt          time.Time     `db:"updated_at"`
}

type gameInsertModel struct {
	ID                 string        `db:"id"`
	Season             int           `db:"season"`
	Week               int           `db:"week"`
	SeasonType         string        `db:"season_type"`
	KickoffAt          time.Time     `db:"kickoff_at"`
	HomeTeamID         string        `db:"home_team_id"`
	AwayTeamID         string        `db:"away_team_id"`
	NeutralSite        bool          `db:"neutral_site"`
	ConferenceGame     bool          `db:"conference_game"`
	HomeClassification string        `db:"home_classification"`
	AwayClassification string        `db:"away_classification"`
	HomePoints         sql.NullInt64 `db:"home_points"`
	AwayPoints         sql.NullInt64 `db:"away_points"`
	Status             string        `db:"status"`
}

func gameFromRow(row gameTableModel) game.Game {
	return game.Game{
		ID:                 row.ID,
		Season:             row.Season,
		Week:               row.Week,
		SeasonType:         row.SeasonType,
		KickoffAt:          row.KickoffAt,
		HomeTeamID:         row.HomeTeamID,
		AwayTeamID:         row.AwayTeamID,
		NeutralSite:        row.NeutralSite,
		ConferenceGame:     row.ConferenceGame,
		HomeClassification: row.HomeClassification,
		AwayClassification: row.AwayClassification,
		HomePoints:         nullIntToPtr(row.HomePoints),
		AwayPoints:         nullIntToPtr(row.AwayPoints),
		Status:             row.Status,
	}
}

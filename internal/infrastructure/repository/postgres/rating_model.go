package postgres

import (
	"time"

	"github.com/pricelab/cfb-market/internal/domain/rating"
)

type ratingTableModel struct {
	TeamID       string    `db:"team_id"`
	Season       int       `db:"season"`
	ModelVersion string    `db:"model_version"`
	Rating       float64   `db:"rating"`
	HFRaw        float64   `db:"hf_raw"`
	HFShrunk     float64   `db:"hf_shrunk"`
	HFHomeGames  int       `db:"hf_home_games"`
	HFAwayGames  int       `db:"hf_away_games"`
	HFWeight     float64   `db:"hf_shrink_weight"`
	HFLeagueMean float64   `db:"hf_league_mean"`
	HFCapped     bool      `db:"hf_capped"`
	HFOutlier    bool      `db:"hf_outlier"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func ratingFromRow(row ratingTableModel) rating.TeamSeason {
	return rating.TeamSeason{
		TeamID:       row.TeamID,
		Season:       row.Season,
		ModelVersion: row.ModelVersion,
		Rating:       row.Rating,
		HomeField: rating.HomeFieldEstimate{
			Raw:          row.HFRaw,
			Shrunk:       row.HFShrunk,
			HomeGames:    row.HFHomeGames,
			AwayGames:    row.HFAwayGames,
			ShrinkWeight: row.HFWeight,
			LeagueMean:   row.HFLeagueMean,
			Capped:       row.HFCapped,
			Outlier:      row.HFOutlier,
		},
		UpdatedAt: row.UpdatedAt,
	}
}

func ratingToRow(item rating.TeamSeason) ratingTableModel {
	return ratingTableModel{
		TeamID:       item.TeamID,
		Season:       item.Season,
		ModelVersion: item.ModelVersion,
		Rating:       item.Rating,
		HFRaw:        item.HomeField.Raw,
		HFShrunk:     item.HomeField.Shrunk,
		HFHomeGames:  item.HomeField.HomeGames,
		HFAwayGames:  item.HomeField.AwayGames,
		HFWeight:     item.HomeField.ShrinkWeight,
		HFLeagueMean: item.HomeField.LeagueMean,
		HFCapped:     item.HomeField.Capped,
		HFOutlier:    item.HomeField.Outlier,
		UpdatedAt:    item.UpdatedAt,
	}
}

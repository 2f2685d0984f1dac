package postgres

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/pricelab/cfb-market/internal/domain/feature"
)

type featureTableModel struct {
	GameID         string `db:"game_id"`
	TeamID         string `db:"team_id"`
	Season         int    `db:"season"`
	Week           int    `db:"week"`
	FeatureVersion string `db:"feature_version"`

	AdjOffEPA           sql.NullFloat64 `db:"adj_off_epa"`
	AdjOffSuccessRate   sql.NullFloat64 `db:"adj_off_success_rate"`
	AdjOffExplosiveness sql.NullFloat64 `db:"adj_off_explosiveness"`
	AdjOffPointsPerOpp  sql.NullFloat64 `db:"adj_off_points_per_opp"`
	AdjOffHavoc         sql.NullFloat64 `db:"adj_off_havoc"`

	AdjDefEPA           sql.NullFloat64 `db:"adj_def_epa"`
	AdjDefSuccessRate   sql.NullFloat64 `db:"adj_def_success_rate"`
	AdjDefExplosiveness sql.NullFloat64 `db:"adj_def_explosiveness"`
	AdjDefPointsPerOpp  sql.NullFloat64 `db:"adj_def_points_per_opp"`
	AdjDefHavoc         sql.NullFloat64 `db:"adj_def_havoc"`

	EdgeEPA           sql.NullFloat64 `db:"edge_epa"`
	EdgeSuccessRate   sql.NullFloat64 `db:"edge_success_rate"`
	EdgeExplosiveness sql.NullFloat64 `db:"edge_explosiveness"`
	EdgePointsPerOpp  sql.NullFloat64 `db:"edge_points_per_opp"`
	EdgeHavoc         sql.NullFloat64 `db:"edge_havoc"`

	Recency3EPA           sql.NullFloat64 `db:"recency3_epa"`
	Recency3SuccessRate   sql.NullFloat64 `db:"recency3_success_rate"`
	Recency3Explosiveness sql.NullFloat64 `db:"recency3_explosiveness"`
	Recency3PointsPerOpp  sql.NullFloat64 `db:"recency3_points_per_opp"`
	Recency3Havoc         sql.NullFloat64 `db:"recency3_havoc"`

	Recency5EPA           sql.NullFloat64 `db:"recency5_epa"`
	Recency5SuccessRate   sql.NullFloat64 `db:"recency5_success_rate"`
	Recency5Explosiveness sql.NullFloat64 `db:"recency5_explosiveness"`
	Recency5PointsPerOpp  sql.NullFloat64 `db:"recency5_points_per_opp"`
	Recency5Havoc         sql.NullFloat64 `db:"recency5_havoc"`

	LowSample3 bool           `db:"low_sample3"`
	LowSample5 bool           `db:"low_sample5"`
	Degenerate pq.StringArray `db:"degenerate"`

	IsHome         bool          `db:"is_home"`
	NeutralSite    bool          `db:"neutral_site"`
	ConferenceGame bool          `db:"conference_game"`
	OpponentTier   string        `db:"opponent_tier"`
	RestDays       sql.NullInt64 `db:"rest_days"`
	OffBye         bool          `db:"off_bye"`

	ComputedAt time.Time `db:"computed_at"`
}

func featureFromRow(row featureTableModel) feature.TeamGame {
	return feature.TeamGame{
		GameID:         row.GameID,
		TeamID:         row.TeamID,
		Season:         row.Season,
		Week:           row.Week,
		FeatureVersion: row.FeatureVersion,
		AdjOffense: feature.MetricSet{
			EPA:           nullFloatToPtr(row.AdjOffEPA),
			SuccessRate:   nullFloatToPtr(row.AdjOffSuccessRate),
			Explosiveness: nullFloatToPtr(row.AdjOffExplosiveness),
			PointsPerOpp:  nullFloatToPtr(row.AdjOffPointsPerOpp),
			Havoc:         nullFloatToPtr(row.AdjOffHavoc),
		},
		AdjDefense: feature.MetricSet{
			EPA:           nullFloatToPtr(row.AdjDefEPA),
			SuccessRate:   nullFloatToPtr(row.AdjDefSuccessRate),
			Explosiveness: nullFloatToPtr(row.AdjDefExplosiveness),
			PointsPerOpp:  nullFloatToPtr(row.AdjDefPointsPerOpp),
			Havoc:         nullFloatToPtr(row.AdjDefHavoc),
		},
		Edge: feature.MetricSet{
			EPA:           nullFloatToPtr(row.EdgeEPA),
			SuccessRate:   nullFloatToPtr(row.EdgeSuccessRate),
			Explosiveness: nullFloatToPtr(row.EdgeExplosiveness),
			PointsPerOpp:  nullFloatToPtr(row.EdgePointsPerOpp),
			Havoc:         nullFloatToPtr(row.EdgeHavoc),
		},
		Recency3: feature.MetricSet{
			EPA:           nullFloatToPtr(row.Recency3EPA),
			SuccessRate:   nullFloatToPtr(row.Recency3SuccessRate),
			Explosiveness: nullFloatToPtr(row.Recency3Explosiveness),
			PointsPerOpp:  nullFloatToPtr(row.Recency3PointsPerOpp),
			Havoc:         nullFloatToPtr(row.Recency3Havoc),
		},
		Recency5: feature.MetricSet{
			EPA:           nullFloatToPtr(row.Recency5EPA),
			SuccessRate:   nullFloatToPtr(row.Recency5SuccessRate),
			Explosiveness: nullFloatToPtr(row.Recency5Explosiveness),
			PointsPerOpp:  nullFloatToPtr(row.Recency5PointsPerOpp),
			Havoc:         nullFloatToPtr(row.Recency5Havoc),
		},
		LowSample3: row.LowSample3,
		LowSample5: row.LowSample5,
		Degenerate: []string(row.Degenerate),
		Context: feature.Context{
			Home:           row.IsHome,
			NeutralSite:    row.NeutralSite,
			ConferenceGame: row.ConferenceGame,
			OpponentTier:   row.OpponentTier,
			RestDays:       nullIntToPtr(row.RestDays),
			OffBye:         row.OffBye,
		},
		ComputedAt: row.ComputedAt,
	}
}

func featureToRow(item feature.TeamGame) featureTableModel {
	return featureTableModel{
		GameID:         item.GameID,
		TeamID:         item.TeamID,
		Season:         item.Season,
		Week:           item.Week,
		FeatureVersion: item.FeatureVersion,

		AdjOffEPA:           ptrToNullFloat(item.AdjOffense.EPA),
		AdjOffSuccessRate:   ptrToNullFloat(item.AdjOffense.SuccessRate),
		AdjOffExplosiveness: ptrToNullFloat(item.AdjOffense.Explosiveness),
		AdjOffPointsPerOpp:  ptrToNullFloat(item.AdjOffense.PointsPerOpp),
		AdjOffHavoc:         ptrToNullFloat(item.AdjOffense.Havoc),

		AdjDefEPA:           ptrToNullFloat(item.AdjDefense.EPA),
		AdjDefSuccessRate:   ptrToNullFloat(item.AdjDefense.SuccessRate),
		AdjDefExplosiveness: ptrToNullFloat(item.AdjDefense.Explosiveness),
		AdjDefPointsPerOpp:  ptrToNullFloat(item.AdjDefense.PointsPerOpp),
		AdjDefHavoc:         ptrToNullFloat(item.AdjDefense.Havoc),

		EdgeEPA:           ptrToNullFloat(item.Edge.EPA),
		EdgeSuccessRate:   ptrToNullFloat(item.Edge.SuccessRate),
		EdgeExplosiveness: ptrToNullFloat(item.Edge.Explosiveness),
		EdgePointsPerOpp:  ptrToNullFloat(item.Edge.PointsPerOpp),
		EdgeHavoc:         ptrToNullFloat(item.Edge.Havoc),

		Recency3EPA:           ptrToNullFloat(item.Recency3.EPA),
		Recency3SuccessRate:   ptrToNullFloat(item.Recency3.SuccessRate),
		Recency3Explosiveness: ptrToNullFloat(item.Recency3.Explosiveness),
		Recency3PointsPerOpp:  ptrToNullFloat(item.Recency3.PointsPerOpp),
		Recency3Havoc:         ptrToNullFloat(item.Recency3.Havoc),

		Recency5EPA:           ptrToNullFloat(item.Recency5.EPA),
		Recency5SuccessRate:   ptrToNullFloat(item.Recency5.SuccessRate),
		Recency5Explosiveness: ptrToNullFloat(item.Recency5.Explosiveness),
		Recency5PointsPerOpp:  ptrToNullFloat(item.Recency5.PointsPerOpp),
		Recency5Havoc:         ptrToNullFloat(item.Recency5.Havoc),

		LowSample3: item.LowSample3,
		LowSample5: item.LowSample5,
		Degenerate: pq.StringArray(item.Degenerate),

		IsHome:         item.Context.Home,
		NeutralSite:    item.Context.NeutralSite,
		ConferenceGame: item.Context.ConferenceGame,
		OpponentTier:   item.Context.OpponentTier,
		RestDays:       ptrToNullInt(item.Context.RestDays),
		OffBye:         item.Context.OffBye,

		ComputedAt: item.ComputedAt,
	}
}

package postgres

import (
	"database/sql"

	"github.com/pricelab/cfb-market/internal/domain/efficiency"
)

type efficiencyTableModel struct {
	GameID     string `db:"game_id"`
	TeamID     string `db:"team_id"`
	OpponentID string `db:"opponent_id"`
	Season     int    `db:"season"`
	Week       int    `db:"week"`

	OffEPA           sql.NullFloat64 `db:"off_epa"`
	DefEPA           sql.NullFloat64 `db:"def_epa"`
	OffSuccessRate   sql.NullFloat64 `db:"off_success_rate"`
	DefSuccessRate   sql.NullFloat64 `db:"def_success_rate"`
	OffExplosiveness sql.NullFloat64 `db:"off_explosiveness"`
	DefExplosiveness sql.NullFloat64 `db:"def_explosiveness"`
	OffPointsPerOpp  sql.NullFloat64 `db:"off_points_per_opp"`
	DefPointsPerOpp  sql.NullFloat64 `db:"def_points_per_opp"`
	Havoc            sql.NullFloat64 `db:"havoc"`
	HavocAllowed     sql.NullFloat64 `db:"havoc_allowed"`
}

func efficiencyFromRow(row efficiencyTableModel) efficiency.TeamGame {
	return efficiency.TeamGame{
		GameID:           row.GameID,
		TeamID:           row.TeamID,
		OpponentID:       row.OpponentID,
		Season:           row.Season,
		Week:             row.Week,
		OffEPA:           nullFloatToPtr(row.OffEPA),
		DefEPA:           nullFloatToPtr(row.DefEPA),
		OffSuccessRate:   nullFloatToPtr(row.OffSuccessRate),
		DefSuccessRate:   nullFloatToPtr(row.DefSuccessRate),
		OffExplosiveness: nullFloatToPtr(row.OffExplosiveness),
		DefExplosiveness: nullFloatToPtr(row.DefExplosiveness),
		OffPointsPerOpp:  nullFloatToPtr(row.OffPointsPerOpp),
		DefPointsPerOpp:  nullFloatToPtr(row.DefPointsPerOpp),
		Havoc:            nullFloatToPtr(row.Havoc),
		HavocAllowed:     nullFloatToPtr(row.HavocAllowed),
	}
}

func efficiencyToRow(item efficiency.TeamGame) efficiencyTableModel {
	return efficiencyTableModel{
		GameID:           item.GameID,
		TeamID:           item.TeamID,
		OpponentID:       item.OpponentID,
		Season:           item.Season,
		Week:             item.Week,
		OffEPA:           ptrToNullFloat(item.OffEPA),
		DefEPA:           ptrToNullFloat(item.DefEPA),
		OffSuccessRate:   ptrToNullFloat(item.OffSuccessRate),
		DefSuccessRate:   ptrToNullFloat(item.DefSuccessRate),
		OffExplosiveness: ptrToNullFloat(item.OffExplosiveness),
		DefExplosiveness: ptrToNullFloat(item.DefExplosiveness),
		OffPointsPerOpp:  ptrToNullFloat(item.OffPointsPerOpp),
		DefPointsPerOpp:  ptrToNullFloat(item.DefPointsPerOpp),
		Havoc:            ptrToNullFloat(item.Havoc),
		HavocAllowed:     ptrToNullFloat(item.HavocAllowed),
	}
}

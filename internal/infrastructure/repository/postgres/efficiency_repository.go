package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pricelab/cfb-market/internal/domain/efficiency"
	qb "github.com/pricelab/cfb-market/internal/platform/querybuilder"
)

type EfficiencyRepository struct {
	db *sqlx.DB
}

func NewEfficiencyRepository(db *sqlx.DB) *EfficiencyRepository {
	return &EfficiencyRepository{db: db}
}

func (r *EfficiencyRepository) ListBySeason(ctx context.Context, season int) ([]efficiency.TeamGame, error) {
	query, args, err := qb.Select("*").From("team_game_efficiency").
		Where(qb.Eq("season", season)).
		OrderBy("week", "game_id", "team_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select efficiency query: %w", err)
	}
	return r.selectRows(ctx, query, args)
}

func (r *EfficiencyRepository) ListBySeasonTeam(ctx context.Context, season int, teamID string) ([]efficiency.TeamGame, error) {
	query, args, err := qb.Select("*").From("team_game_efficiency").
		Where(
			qb.Eq("season", season),
			qb.Eq("team_id", teamID),
		).
		OrderBy("week", "game_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select efficiency by team query: %w", err)
	}
	return r.selectRows(ctx, query, args)
}

func (r *EfficiencyRepository) UpsertTeamGames(ctx context.Context, items []efficiency.TeamGame) error {
	for _, item := range items {
		query, args, err := qb.InsertModel("team_game_efficiency", efficiencyToRow(item), `ON CONFLICT (game_id, team_id) DO UPDATE SET
			opponent_id = EXCLUDED.opponent_id,
			season = EXCLUDED.season,
			week = EXCLUDED.week,
			off_epa = EXCLUDED.off_epa,
			def_epa = EXCLUDED.def_epa,
			off_success_rate = EXCLUDED.off_success_rate,
			def_success_rate = EXCLUDED.def_success_rate,
			off_explosiveness = EXCLUDED.off_explosiveness,
			def_explosiveness = EXCLUDED.def_explosiveness,
			off_points_per_opp = EXCLUDED.off_points_per_opp,
			def_points_per_opp = EXCLUDED.def_points_per_opp,
			havoc = EXCLUDED.havoc,
			havoc_allowed = EXCLUDED.havoc_allowed`)
		if err != nil {
			return fmt.Errorf("build upsert efficiency query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert efficiency game=%s team=%s: %w", item.GameID, item.TeamID, err)
		}
	}
	return nil
}

func (r *EfficiencyRepository) selectRows(ctx context.Context, query string, args []any) ([]efficiency.TeamGame, error) {
	var rows []efficiencyTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select efficiency rows: %w", err)
	}
	out := make([]efficiency.TeamGame, 0, len(rows))
	for _, row := range rows {
		out = append(out, efficiencyFromRow(row))
	}
	return out, nil
}

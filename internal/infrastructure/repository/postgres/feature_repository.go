package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pricelab/cfb-market/internal/domain/feature"
	qb "github.com/pricelab/cfb-market/internal/platform/querybuilder"
)

type FeatureRepository struct {
	db *sqlx.DB
}

func NewFeatureRepository(db *sqlx.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

func (r *FeatureRepository) ListBySeason(ctx context.Context, season int, featureVersion string) ([]feature.TeamGame, error) {
	query, args, err := qb.Select("*").From("team_game_features").
		Where(
			qb.Eq("season", season),
			qb.Eq("feature_version", featureVersion),
		).
		OrderBy("week", "game_id", "team_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select features query: %w", err)
	}

	var rows []featureTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select features season=%d version=%s: %w", season, featureVersion, err)
	}
	out := make([]feature.TeamGame, 0, len(rows))
	for _, row := range rows {
		out = append(out, featureFromRow(row))
	}
	return out, nil
}

func (r *FeatureRepository) UpsertTeamGames(ctx context.Context, items []feature.TeamGame) error {
	for _, item := range items {
		query, args, err := qb.InsertModel("team_game_features", featureToRow(item), `ON CONFLICT (game_id, team_id, feature_version) DO UPDATE SET
			season = EXCLUDED.season,
			week = EXCLUDED.week,
			adj_off_epa = EXCLUDED.adj_off_epa,
			adj_off_success_rate = EXCLUDED.adj_off_success_rate,
			adj_off_explosiveness = EXCLUDED.adj_off_explosiveness,
			adj_off_points_per_opp = EXCLUDED.adj_off_points_per_opp,
			adj_off_havoc = EXCLUDED.adj_off_havoc,
			adj_def_epa = EXCLUDED.adj_def_epa,
			adj_def_success_rate = EXCLUDED.adj_def_success_rate,
			adj_def_explosiveness = EXCLUDED.adj_def_explosiveness,
			adj_def_points_per_opp = EXCLUDED.adj_def_points_per_opp,
			adj_def_havoc = EXCLUDED.adj_def_havoc,
			edge_epa = EXCLUDED.edge_epa,
			edge_success_rate = EXCLUDED.edge_success_rate,
			edge_explosiveness = EXCLUDED.edge_explosiveness,
			edge_points_per_opp = EXCLUDED.edge_points_per_opp,
			edge_havoc = EXCLUDED.edge_havoc,
			recency3_epa = EXCLUDED.recency3_epa,
			recency3_success_rate = EXCLUDED.recency3_success_rate,
			recency3_explosiveness = EXCLUDED.recency3_explosiveness,
			recency3_points_per_opp = EXCLUDED.recency3_points_per_opp,
			recency3_havoc = EXCLUDED.recency3_havoc,
			recency5_epa = EXCLUDED.recency5_epa,
			recency5_success_rate = EXCLUDED.recency5_success_rate,
			recency5_explosiveness = EXCLUDED.recency5_explosiveness,
			recency5_points_per_opp = EXCLUDED.recency5_points_per_opp,
			recency5_havoc = EXCLUDED.recency5_havoc,
			low_sample3 = EXCLUDED.low_sample3,
			low_sample5 = EXCLUDED.low_sample5,
			degenerate = EXCLUDED.degenerate,
			is_home = EXCLUDED.is_home,
			neutral_site = EXCLUDED.neutral_site,
			conference_game = EXCLUDED.conference_game,
			opponent_tier = EXCLUDED.opponent_tier,
			rest_days = EXCLUDED.rest_days,
			off_bye = EXCLUDED.off_bye,
			computed_at = EXCLUDED.computed_at`)
		if err != nil {
			return fmt.Errorf("build upsert feature query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert feature game=%s team=%s: %w", item.GameID, item.TeamID, err)
		}
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pricelab/cfb-market/internal/domain/rating"
	qb "github.com/pricelab/cfb-market/internal/platform/querybuilder"
)

type RatingRepository struct {
	db *sqlx.DB
}

func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

func (r *RatingRepository) ListBySeason(ctx context.Context, season int, modelVersion string) ([]rating.TeamSeason, error) {
	query, args, err := qb.Select("*").From("team_season_ratings").
		Where(
			qb.Eq("season", season),
			qb.Eq("model_version", modelVersion),
		).
		OrderBy("team_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select ratings query: %w", err)
	}

	var rows []ratingTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select ratings season=%d: %w", season, err)
	}
	out := make([]rating.TeamSeason, 0, len(rows))
	for _, row := range rows {
		out = append(out, ratingFromRow(row))
	}
	return out, nil
}

func (r *RatingRepository) GetByTeam(ctx context.Context, season int, teamID, modelVersion string) (rating.TeamSeason, bool, error) {
	query, args, err := qb.Select("*").From("team_season_ratings").
		Where(
			qb.Eq("season", season),
			qb.Eq("team_id", teamID),
			qb.Eq("model_version", modelVersion),
		).
		ToSQL()
	if err != nil {
		return rating.TeamSeason{}, false, fmt.Errorf("build select rating query: %w", err)
	}

	var row ratingTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return rating.TeamSeason{}, false, nil
		}
		return rating.TeamSeason{}, false, fmt.Errorf("select rating team=%s: %w", teamID, err)
	}
	return ratingFromRow(row), true, nil
}

func (r *RatingRepository) UpsertRatings(ctx context.Context, items []rating.TeamSeason) error {
	for _, item := range items {
		query, args, err := qb.InsertModel("team_season_ratings", ratingToRow(item), `ON CONFLICT (team_id, season, model_version) DO UPDATE SET
			rating = EXCLUDED.rating,
			hf_raw = EXCLUDED.hf_raw,
			hf_shrunk = EXCLUDED.hf_shrunk,
			hf_home_games = EXCLUDED.hf_home_games,
			hf_away_games = EXCLUDED.hf_away_games,
			hf_shrink_weight = EXCLUDED.hf_shrink_weight,
			hf_league_mean = EXCLUDED.hf_league_mean,
			hf_capped = EXCLUDED.hf_capped,
			hf_outlier = EXCLUDED.hf_outlier,
			updated_at = EXCLUDED.updated_at`)
		if err != nil {
			return fmt.Errorf("build upsert rating query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert rating team=%s: %w", item.TeamID, err)
		}
	}
	return nil
}

// UpdateHomeField rewrites only the home-field block, leaving the rating
// itself to the rating pass.
func (r *RatingRepository) UpdateHomeField(ctx context.Context, season int, teamID, modelVersion string, estimate rating.HomeFieldEstimate) error {
	query, args, err := qb.Update("team_season_ratings").
		Set("hf_raw", estimate.Raw).
		Set("hf_shrunk", estimate.Shrunk).
		Set("hf_home_games", estimate.HomeGames).
		Set("hf_away_games", estimate.AwayGames).
		Set("hf_shrink_weight", estimate.ShrinkWeight).
		Set("hf_league_mean", estimate.LeagueMean).
		Set("hf_capped", estimate.Capped).
		Set("hf_outlier", estimate.Outlier).
		SetExpr("updated_at", "now()").
		Where(
			qb.Eq("season", season),
			qb.Eq("team_id", teamID),
			qb.Eq("model_version", modelVersion),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update home field query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update home field team=%s: %w", teamID, err)
	}
	return nil
}

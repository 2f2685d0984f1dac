package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pricelab/cfb-market/internal/domain/game"
	qb "github.com/pricelab/cfb-market/internal/platform/querybuilder"
)

type GameRepository struct {
	db *sqlx.DB
}

func NewGameRepository(db *sqlx.DB) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) ListBySeason(ctx context.Context, season int) ([]game.Game, error) {
	query, args, err := qb.Select("*").From("games").
		Where(qb.Eq("season", season)).
		OrderBy("week", "kickoff_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select games query: %w", err)
	}
	return r.selectGames(ctx, query, args)
}

func (r *GameRepository) ListBySeasonWeeks(ctx context.Context, season int, weeks []int) ([]game.Game, error) {
	weekValues := make([]any, 0, len(weeks))
	for _, w := range weeks {
		weekValues = append(weekValues, w)
	}
	query, args, err := qb.Select("*").From("games").
		Where(
			qb.Eq("season", season),
			qb.In("week", weekValues),
		).
		OrderBy("week", "kickoff_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select games by weeks query: %w", err)
	}
	return r.selectGames(ctx, query, args)
}

func (r *GameRepository) ListCompletedByTeam(ctx context.Context, season int, teamID string) ([]game.Game, error) {
	query, args, err := qb.Select("*").From("games").
		Where(
			qb.Eq("season", season),
			qb.Expr("(home_team_id = ? OR away_team_id = ?)", teamID, teamID),
			qb.Expr("home_points IS NOT NULL"),
			qb.Expr("away_points IS NOT NULL"),
		).
		OrderBy("week", "kickoff_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select completed games query: %w", err)
	}
	return r.selectGames(ctx, query, args)
}

func (r *GameRepository) GetByID(ctx context.Context, id string) (game.Game, bool, error) {
	query, args, err := qb.Select("*").From("games").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return game.Game{}, false, fmt.Errorf("build select game query: %w", err)
	}

	var row gameTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return game.Game{}, false, nil
		}
		return game.Game{}, false, fmt.Errorf("select game id=%s: %w", id, err)
	}
	return gameFromRow(row), true, nil
}

func (r *GameRepository) UpsertGames(ctx context.Context, items []game.Game) error {
	for _, item := range items {
		model := gameInsertModel{
			ID:                 item.ID,
			Season:             item.Season,
			Week:               item.Week,
			SeasonType:         item.SeasonType,
			KickoffAt:          item.KickoffAt,
			HomeTeamID:         item.HomeTeamID,
			AwayTeamID:         item.AwayTeamID,
			NeutralSite:        item.NeutralSite,
			ConferenceGame:     item.ConferenceGame,
			HomeClassification: item.HomeClassification,
			AwayClassification: item.AwayClassification,
			HomePoints:         ptrToNullInt(item.HomePoints),
			AwayPoints:         ptrToNullInt(item.AwayPoints),
			Status:             item.Status,
		}
		query, args, err := qb.InsertModel("games", model, `ON CONFLICT (id) DO UPDATE SET
			season = EXCLUDED.season,
			week = EXCLUDED.week,
			season_type = EXCLUDED.season_type,
			kickoff_at = EXCLUDED.kickoff_at,
			home_team_id = EXCLUDED.home_team_id,
			away_team_id = EXCLUDED.away_team_id,
			neutral_site = EXCLUDED.neutral_site,
			conference_game = EXCLUDED.conference_game,
			home_classification = EXCLUDED.home_classification,
			away_classification = EXCLUDED.away_classification,
			home_points = EXCLUDED.home_points,
			away_points = EXCLUDED.away_points,
			status = EXCLUDED.status,
			updated_at = now()`)
		if err != nil {
			return fmt.Errorf("build upsert game query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert game id=%s: %w", item.ID, err)
		}
	}
	return nil
}

func (r *GameRepository) selectGames(ctx context.Context, query string, args []any) ([]game.Game, error) {
	var rows []gameTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	out := make([]game.Game, 0, len(rows))
	for _, row := range rows {
		out = append(out, gameFromRow(row))
	}
	return out, nil
}

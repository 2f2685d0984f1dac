package efficiency

import "context"

type Repository interface {
	ListBySeason(ctx context.Context, season int) ([]TeamGame, error)
	ListBySeasonTeam(ctx context.Context, season int, teamID string) ([]TeamGame, error)
	UpsertTeamGames(ctx context.Context, items []TeamGame) error
}

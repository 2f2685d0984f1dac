package game

import "context"

type Repository interface {
	ListBySeason(ctx context.Context, season int) ([]Game, error)
	ListBySeasonWeeks(ctx context.Context, season int, weeks []int) ([]Game, error)
	ListCompletedByTeam(ctx context.Context, season int, teamID string) ([]Game, error)
	GetByID(ctx context.Context, id string) (Game, bool, error)
	UpsertGames(ctx context.Context, items []Game) error
}

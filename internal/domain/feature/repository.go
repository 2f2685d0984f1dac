package feature

import "context"

type Repository interface {
	ListBySeason(ctx context.Context, season int, featureVersion string) ([]TeamGame, error)
	UpsertTeamGames(ctx context.Context, items []TeamGame) error
}

package rating

import "context"

type Repository interface {
	ListBySeason(ctx context.Context, season int, modelVersion string) ([]TeamSeason, error)
	GetByTeam(ctx context.Context, season int, teamID, modelVersion string) (TeamSeason, bool, error)
	UpsertRatings(ctx context.Context, items []TeamSeason) error
	UpdateHomeField(ctx context.Context, season int, teamID, modelVersion string, estimate HomeFieldEstimate) error
}

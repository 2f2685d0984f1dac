package team

import "context"

type Repository interface {
	ListAll(ctx context.Context) ([]Team, error)
	GetByID(ctx context.Context, id string) (Team, bool, error)
	GetByProviderName(ctx context.Context, name string) (Team, bool, error)
	UpsertTeams(ctx context.Context, items []Team) error
}

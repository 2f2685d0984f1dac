package market

import "context"

type Repository interface {
	ListQuotesByGame(ctx context.Context, gameID string) ([]RawLineQuote, error)
	InsertQuotes(ctx context.Context, items []RawLineQuote) error
	GetConsensus(ctx context.Context, gameID string, market Type, version string) (ConsensusLine, bool, error)
	ListConsensusBySeason(ctx context.Context, season int, market Type, version string) ([]ConsensusLine, error)
	UpsertConsensus(ctx context.Context, item ConsensusLine) error
}

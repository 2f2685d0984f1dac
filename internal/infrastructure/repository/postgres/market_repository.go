package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pricelab/cfb-market/internal/domain/market"
	qb "github.com/pricelab/cfb-market/internal/platform/querybuilder"
)

type MarketRepository struct {
	db *sqlx.DB
}

func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func (r *MarketRepository) ListQuotesByGame(ctx context.Context, gameID string) ([]market.RawLineQuote, error) {
	query, args, err := qb.Select("*").From("line_quotes").
		Where(qb.Eq("game_id", gameID)).
		OrderBy("observed_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select quotes query: %w", err)
	}

	var rows []lineQuoteTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select quotes game=%s: %w", gameID, err)
	}
	out := make([]market.RawLineQuote, 0, len(rows))
	for _, row := range rows {
		out = append(out, quoteFromRow(row))
	}
	return out, nil
}

// InsertQuotes is append-only: a repeated observation for the same
// game/market/book/instant is dropped so re-ingests stay idempotent.
func (r *MarketRepository) InsertQuotes(ctx context.Context, items []market.RawLineQuote) error {
	for _, item := range items {
		model := lineQuoteInsertModel{
			GameID:     item.GameID,
			Market:     string(item.Market),
			Book:       item.Book,
			Value:      ptrToNullFloat(item.Value),
			Closing:    ptrToNullFloat(item.Closing),
			ObservedAt: item.ObservedAt,
			Source:     item.Source,
		}
		query, args, err := qb.InsertModel("line_quotes", model,
			"ON CONFLICT (game_id, market, book, observed_at, source) DO NOTHING")
		if err != nil {
			return fmt.Errorf("build insert quote query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert quote game=%s book=%s: %w", item.GameID, item.Book, err)
		}
	}
	return nil
}

func (r *MarketRepository) GetConsensus(ctx context.Context, gameID string, mt market.Type, version string) (market.ConsensusLine, bool, error) {
	query, args, err := qb.Select("*").From("consensus_lines").
		Where(
			qb.Eq("game_id", gameID),
			qb.Eq("market", string(mt)),
			qb.Eq("version", version),
		).
		ToSQL()
	if err != nil {
		return market.ConsensusLine{}, false, fmt.Errorf("build select consensus query: %w", err)
	}

	var row consensusLineTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return market.ConsensusLine{}, false, nil
		}
		return market.ConsensusLine{}, false, fmt.Errorf("select consensus game=%s: %w", gameID, err)
	}
	return consensusFromRow(row), true, nil
}

func (r *MarketRepository) ListConsensusBySeason(ctx context.Context, season int, mt market.Type, version string) ([]market.ConsensusLine, error) {
	query, args, err := qb.Select("cl.*").
		From("consensus_lines cl JOIN games g ON g.id = cl.game_id").
		Where(
			qb.Eq("g.season", season),
			qb.Eq("cl.market", string(mt)),
			qb.Eq("cl.version", version),
		).
		OrderBy("g.week", "cl.game_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select consensus by season query: %w", err)
	}

	var rows []consensusLineTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select consensus season=%d: %w", season, err)
	}
	out := make([]market.ConsensusLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, consensusFromRow(row))
	}
	return out, nil
}

func (r *MarketRepository) UpsertConsensus(ctx context.Context, item market.ConsensusLine) error {
	model := consensusLineTableModel{
		GameID:        item.GameID,
		Market:        string(item.Market),
		Version:       item.Version,
		Value:         ptrToNullFloat(item.Value),
		FavoredSide:   item.FavoredSide,
		BookCount:     item.BookCount,
		QuoteCount:    item.QuoteCount,
		ExcludedCount: item.ExcludedCount,
		Window:        item.Window,
		ResolvedAt:    item.ResolvedAt,
	}
	query, args, err := qb.InsertModel("consensus_lines", model, `ON CONFLICT (game_id, market, version) DO UPDATE SET
		value = EXCLUDED.value,
		favored_side = EXCLUDED.favored_side,
		book_count = EXCLUDED.book_count,
		quote_count = EXCLUDED.quote_count,
		excluded_count = EXCLUDED.excluded_count,
		price_window = EXCLUDED.price_window,
		resolved_at = EXCLUDED.resolved_at`)
	if err != nil {
		return fmt.Errorf("build upsert consensus query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert consensus game=%s market=%s: %w", item.GameID, item.Market, err)
	}
	return nil
}

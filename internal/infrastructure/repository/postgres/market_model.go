package postgres

import (
	"database/sql"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/market"
)

type lineQuoteTableModel struct {
	ID         int64           `db:"id"`
	GameID     string          `db:"game_id"`
	Market     string          `db:"market"`
	Book       string          `db:"book"`
	Value      sql.NullFloat64 `db:"value"`
	Closing    sql.NullFloat64 `db:"closing"`
	ObservedAt time.Time       `db:"observed_at"`
	Source     string          `db:"source"`
}

type lineQuoteInsertModel struct {
	GameID     string          `db:"game_id"`
	Market     string          `db:"market"`
	Book       string          `db:"book"`
	Value      sql.NullFloat64 `db:"value"`
	Closing    sql.NullFloat64 `db:"closing"`
	ObservedAt time.Time       `db:"observed_at"`
	Source     string          `db:"source"`
}

type consensusLineTableModel struct {
	GameID        string          `db:"game_id"`
	Market        string          `db:"market"`
	Version       string          `db:"version"`
	Value         sql.NullFloat64 `db:"value"`
	FavoredSide   string          `db:"favored_side"`
	BookCount     int             `db:"book_count"`
	QuoteCount    int             `db:"quote_count"`
	ExcludedCount int             `db:"excluded_count"`
	Window        string          `db:"price_window"`
	ResolvedAt    time.Time       `db:"resolved_at"`
}

func quoteFromRow(row lineQuoteTableModel) market.RawLineQuote {
	return market.RawLineQuote{
		GameID:     row.GameID,
		Market:     market.Type(row.Market),
		Book:       row.Book,
		Value:      nullFloatToPtr(row.Value),
		Closing:    nullFloatToPtr(row.Closing),
		ObservedAt: row.ObservedAt,
		Source:     row.Source,
	}
}

func consensusFromRow(row consensusLineTableModel) market.ConsensusLine {
	return market.ConsensusLine{
		GameID:        row.GameID,
		Market:        market.Type(row.Market),
		Version:       row.Version,
		Value:         nullFloatToPtr(row.Value),
		FavoredSide:   row.FavoredSide,
		BookCount:     row.BookCount,
		QuoteCount:    row.QuoteCount,
		ExcludedCount: row.ExcludedCount,
		Window:        row.Window,
		ResolvedAt:    row.ResolvedAt,
	}
}

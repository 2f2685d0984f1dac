package market

import "time"

type Type string

const (
	TypeSpread    Type = "spread"
	TypeTotal     Type = "total"
	TypeMoneyline Type = "moneyline"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSpread, TypeTotal, TypeMoneyline:
		return true
	default:
		return false
	}
}

const (
	WindowPreKick = "prekick"
	WindowFull    = "full"

	SideHome = "home"
	SideAway = "away"
)

// RawLineQuote is one bookmaker observation as ingested from a provider.
// Immutable once stored; the same game/market/book pair accumulates many
// quotes over time.
type RawLineQuote struct {
	GameID string
	Market Type
	Book   string
	// Value is the generic line value; Closing is the provider's closing
	// field when present. Normalization prefers Closing.
	Value      *float64
	Closing    *float64
	ObservedAt time.Time
	Source     string
}

// ConsensusLine is the resolved market value for one game/market under one
// resolver version. A nil Value means the game is unpriced for that market,
// never zero.
type ConsensusLine struct {
	GameID        string
	Market        Type
	Version       string
	Value         *float64
	FavoredSide   string
	BookCount     int
	QuoteCount    int
	ExcludedCount int
	Window        string
	ResolvedAt    time.Time
}

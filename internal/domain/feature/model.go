package feature

import "time"

// MetricSet groups the five efficiency families every adjusted view is
// expressed in. Nil entries mean the metric could not be computed for this
// row (missing input or zero-variance batch), which consumers must treat as
// "no signal", not zero.
type MetricSet struct {
	EPA           *float64
	SuccessRate   *float64
	Explosiveness *float64
	PointsPerOpp  *float64
	Havoc         *float64
}

// Context carries the non-numeric matchup flags attached to a feature row.
type Context struct {
	Home           bool
	NeutralSite    bool
	ConferenceGame bool
	OpponentTier   string
	RestDays       *int
	OffBye         bool
}

// TeamGame is one team-game feature row under one feature version. Rows are
// append-only across versions and upserted within a version.
type TeamGame struct {
	GameID         string
	TeamID         string
	Season         int
	Week           int
	FeatureVersion string

	// AdjOffense and AdjDefense are opponent-adjusted nets with a
	// shared higher-is-better orientation; Edge is their difference.
	AdjOffense MetricSet
	AdjDefense MetricSet
	Edge       MetricSet

	// Recency3/Recency5 are EWMAs of the edge over strictly prior games,
	// blended toward the talent prior when the window is short.
	Recency3   MetricSet
	Recency5   MetricSet
	LowSample3 bool
	LowSample5 bool

	// Degenerate marks metrics nulled by the hygiene pass (zero variance)
	// so the calibration gate checker can see them.
	Degenerate []string

	Context    Context
	ComputedAt time.Time
}

package calibration

import (
	"fmt"
	"time"
)

// ParamSet is one grid-sweep hyperparameter combination.
type ParamSet struct {
	SoSWeight     float64
	ShrinkageBase float64
	Scale         float64
}

// Key is the natural identifier a sweep checkpoint is persisted under.
func (p ParamSet) Key() string {
	return fmt.Sprintf("sos=%.3f_shrink=%.3f_scale=%.4f", p.SoSWeight, p.ShrinkageBase, p.Scale)
}

// Coefficients of the spread regression: consensus spread on rating
// difference and home-field advantage.
type Coefficients struct {
	Intercept  float64
	RatingDiff float64
	HomeField  float64
}

type FitStats struct {
	RMSE    float64
	R2      float64
	Samples int
}

// ResidualBucket aggregates mean residual inside one absolute-spread band.
type ResidualBucket struct {
	LowSpread    float64
	HighSpread   float64
	MeanResidual float64
	Count        int
}

// GateChecks records each acceptance gate separately so a failing run can
// name what failed: scaling vs sign vs fit quality vs bucket bias.
type GateChecks struct {
	RMSE          bool
	R2            bool
	Slope         bool
	SignRating    bool
	SignHomeField bool
	BucketBias    bool
}

func (g GateChecks) AllPass() bool {
	return g.RMSE && g.R2 && g.Slope && g.SignRating && g.SignHomeField && g.BucketBias
}

// FailedGates lists the names of failing gates for operator diagnostics.
func (g GateChecks) FailedGates() []string {
	var out []string
	if !g.RMSE {
		out = append(out, "rmse")
	}
	if !g.R2 {
		out = append(out, "r2")
	}
	if !g.Slope {
		out = append(out, "slope")
	}
	if !g.SignRating {
		out = append(out, "sign_rating")
	}
	if !g.SignHomeField {
		out = append(out, "sign_home_field")
	}
	if !g.BucketBias {
		out = append(out, "bucket_bias")
	}
	return out
}

const (
	VerdictGo            = "GO"
	VerdictConditionalGo = "CONDITIONAL_GO"
	VerdictNoGo          = "NO_GO"
)

// Result is one evaluated grid combination. Persisted once, never mutated.
type Result struct {
	Params       ParamSet
	DatasetID    string
	Season       int
	ModelVersion string

	Coefficients Coefficients
	Fit          FitStats
	Buckets      []ResidualBucket

	GatesStrict  GateChecks
	GatesRelaxed GateChecks
	Verdict      string

	// AbortedLowSlope marks combinations where the rescale loop stopped
	// because the initial slope signalled rating compression.
	AbortedLowSlope bool
	InitialSlope    float64

	CreatedAt time.Time
}

package postgres

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
)

type calibrationTableModel struct {
	Season       int    `db:"season"`
	ModelVersion string `db:"model_version"`
	ParamKey     string `db:"param_key"`

	SoSWeight     float64 `db:"sos_weight"`
	ShrinkageBase float64 `db:"shrinkage_base"`
	Scale         float64 `db:"scale"`

	DatasetID string `db:"dataset_id"`

	CoefIntercept  float64 `db:"coef_intercept"`
	CoefRatingDiff float64 `db:"coef_rating_diff"`
	CoefHomeField  float64 `db:"coef_home_field"`

	RMSE    float64 `db:"rmse"`
	R2      float64 `db:"r2"`
	Samples int     `db:"samples"`

	Buckets      []byte `db:"buckets"`
	GatesStrict  []byte `db:"gates_strict"`
	GatesRelaxed []byte `db:"gates_relaxed"`

	Verdict         string    `db:"verdict"`
	AbortedLowSlope bool      `db:"aborted_low_slope"`
	InitialSlope    float64   `db:"initial_slope"`
	CreatedAt       time.Time `db:"created_at"`
}

type residualBucketJSON struct {
	LowSpread    float64 `json:"low_spread"`
	HighSpread   float64 `json:"high_spread"`
	MeanResidual float64 `json:"mean_residual"`
	Count        int     `json:"count"`
}

type gateChecksJSON struct {
	RMSE          bool `json:"rmse"`
	R2            bool `json:"r2"`
	Slope         bool `json:"slope"`
	SignRating    bool `json:"sign_rating"`
	SignHomeField bool `json:"sign_home_field"`
	BucketBias    bool `json:"bucket_bias"`
}

func calibrationToRow(item calibration.Result) (calibrationTableModel, error) {
	buckets := make([]residualBucketJSON, 0, len(item.Buckets))
	for _, b := range item.Buckets {
		buckets = append(buckets, residualBucketJSON{
			LowSpread:    b.LowSpread,
			HighSpread:   b.HighSpread,
			MeanResidual: b.MeanResidual,
			Count:        b.Count,
		})
	}
	bucketsRaw, err := sonic.Marshal(buckets)
	if err != nil {
		return calibrationTableModel{}, fmt.Errorf("marshal residual buckets: %w", err)
	}
	strictRaw, err := sonic.Marshal(gateChecksToJSON(item.GatesStrict))
	if err != nil {
		return calibrationTableModel{}, fmt.Errorf("marshal strict gates: %w", err)
	}
	relaxedRaw, err := sonic.Marshal(gateChecksToJSON(item.GatesRelaxed))
	if err != nil {
		return calibrationTableModel{}, fmt.Errorf("marshal relaxed gates: %w", err)
	}

	return calibrationTableModel{
		Season:          item.Season,
		ModelVersion:    item.ModelVersion,
		ParamKey:        item.Params.Key(),
		SoSWeight:       item.Params.SoSWeight,
		ShrinkageBase:   item.Params.ShrinkageBase,
		Scale:           item.Params.Scale,
		DatasetID:       item.DatasetID,
		CoefIntercept:   item.Coefficients.Intercept,
		CoefRatingDiff:  item.Coefficients.RatingDiff,
		CoefHomeField:   item.Coefficients.HomeField,
		RMSE:            item.Fit.RMSE,
		R2:              item.Fit.R2,
		Samples:         item.Fit.Samples,
		Buckets:         bucketsRaw,
		GatesStrict:     strictRaw,
		GatesRelaxed:    relaxedRaw,
		Verdict:         item.Verdict,
		AbortedLowSlope: item.AbortedLowSlope,
		InitialSlope:    item.InitialSlope,
		CreatedAt:       item.CreatedAt,
	}, nil
}

func calibrationFromRow(row calibrationTableModel) (calibration.Result, error) {
	var buckets []residualBucketJSON
	if len(row.Buckets) > 0 {
		if err := sonic.Unmarshal(row.Buckets, &buckets); err != nil {
			return calibration.Result{}, fmt.Errorf("unmarshal residual buckets key=%s: %w", row.ParamKey, err)
		}
	}
	var strict, relaxed gateChecksJSON
	if len(row.GatesStrict) > 0 {
		if err := sonic.Unmarshal(row.GatesStrict, &strict); err != nil {
			return calibration.Result{}, fmt.Errorf("unmarshal strict gates key=%s: %w", row.ParamKey, err)
		}
	}
	if len(row.GatesRelaxed) > 0 {
		if err := sonic.Unmarshal(row.GatesRelaxed, &relaxed); err != nil {
			return calibration.Result{}, fmt.Errorf("unmarshal relaxed gates key=%s: %w", row.ParamKey, err)
		}
	}

	out := calibration.Result{
		Params: calibration.ParamSet{
			SoSWeight:     row.SoSWeight,
			ShrinkageBase: row.ShrinkageBase,
			Scale:         row.Scale,
		},
		DatasetID:    row.DatasetID,
		Season:       row.Season,
		ModelVersion: row.ModelVersion,
		Coefficients: calibration.Coefficients{
			Intercept:  row.CoefIntercept,
			RatingDiff: row.CoefRatingDiff,
			HomeField:  row.CoefHomeField,
		},
		Fit: calibration.FitStats{
			RMSE:    row.RMSE,
			R2:      row.R2,
			Samples: row.Samples,
		},
		GatesStrict:     gateChecksFromJSON(strict),
		GatesRelaxed:    gateChecksFromJSON(relaxed),
		Verdict:         row.Verdict,
		AbortedLowSlope: row.AbortedLowSlope,
		InitialSlope:    row.InitialSlope,
		CreatedAt:       row.CreatedAt,
	}
	for _, b := range buckets {
		out.Buckets = append(out.Buckets, calibration.ResidualBucket{
			LowSpread:    b.LowSpread,
			HighSpread:   b.HighSpread,
			MeanResidual: b.MeanResidual,
			Count:        b.Count,
		})
	}
	return out, nil
}

func gateChecksToJSON(g calibration.GateChecks) gateChecksJSON {
	return gateChecksJSON{
		RMSE:          g.RMSE,
		R2:            g.R2,
		Slope:         g.Slope,
		SignRating:    g.SignRating,
		SignHomeField: g.SignHomeField,
		BucketBias:    g.BucketBias,
	}
}

func gateChecksFromJSON(g gateChecksJSON) calibration.GateChecks {
	return calibration.GateChecks{
		RMSE:          g.RMSE,
		R2:            g.R2,
		Slope:         g.Slope,
		SignRating:    g.SignRating,
		SignHomeField: g.SignHomeField,
		BucketBias:    g.BucketBias,
	}
}

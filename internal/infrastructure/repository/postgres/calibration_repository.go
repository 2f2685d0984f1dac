package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
	qb "github.com/pricelab/cfb-market/internal/platform/querybuilder"
)

type CalibrationRepository struct {
	db *sqlx.DB
}

func NewCalibrationRepository(db *sqlx.DB) *CalibrationRepository {
	return &CalibrationRepository{db: db}
}

func (r *CalibrationRepository) ListBySeason(ctx context.Context, season int, modelVersion string) ([]calibration.Result, error) {
	query, args, err := qb.Select("*").From("calibration_results").
		Where(
			qb.Eq("season", season),
			qb.Eq("model_version", modelVersion),
		).
		OrderBy("param_key").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select calibration results query: %w", err)
	}

	var rows []calibrationTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select calibration results season=%d: %w", season, err)
	}
	out := make([]calibration.Result, 0, len(rows))
	for _, row := range rows {
		item, err := calibrationFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *CalibrationRepository) GetByKey(ctx context.Context, season int, modelVersion, paramKey string) (calibration.Result, bool, error) {
	query, args, err := qb.Select("*").From("calibration_results").
		Where(
			qb.Eq("season", season),
			qb.Eq("model_version", modelVersion),
			qb.Eq("param_key", paramKey),
		).
		ToSQL()
	if err != nil {
		return calibration.Result{}, false, fmt.Errorf("build select calibration result query: %w", err)
	}

	var row calibrationTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return calibration.Result{}, false, nil
		}
		return calibration.Result{}, false, fmt.Errorf("select calibration result key=%s: %w", paramKey, err)
	}
	item, err := calibrationFromRow(row)
	if err != nil {
		return calibration.Result{}, false, err
	}
	return item, true, nil
}

func (r *CalibrationRepository) InsertResult(ctx context.Context, item calibration.Result) error {
	row, err := calibrationToRow(item)
	if err != nil {
		return err
	}
	// Checkpoints are written once per combination; a rerun that raced an
	// earlier writer just keeps the first row.
	query, args, err := qb.InsertModel("calibration_results", row,
		"ON CONFLICT (season, model_version, param_key) DO NOTHING")
	if err != nil {
		return fmt.Errorf("build insert calibration result query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert calibration result key=%s: %w", row.ParamKey, err)
	}
	return nil
}

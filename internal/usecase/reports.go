package usecase

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/valyala/bytebufferpool"
	"gonum.org/v1/gonum/stat"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
	"github.com/pricelab/cfb-market/internal/domain/feature"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

// ReportWriter renders the diagnostic CSV artifacts each batch pass leaves
// behind: consensus completeness, feature distribution stats, and residual
// buckets. Reports are best-effort; a failed report never fails the run that
// produced it.
type ReportWriter struct {
	dir    string
	logger *logging.Logger
}

func NewReportWriter(dir string, logger *logging.Logger) *ReportWriter {
	return &ReportWriter{dir: dir, logger: logger}
}

// WriteConsensusCompleteness reports per game/market pricing status so gaps
// in market coverage are visible without querying the store.
func (w *ReportWriter) WriteConsensusCompleteness(ctx context.Context, season int, version string, rows []ConsensusRowResult) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("game_id,market,status,value,favored,window,book_count,message\n")
	for _, row := range rows {
		value := ""
		if row.Value != nil {
			value = formatStat(*row.Value)
		}
		_, _ = buf.WriteString(csvLine(
			row.GameID,
			row.Market,
			row.Status,
			value,
			row.Favored,
			row.Window,
			strconv.Itoa(row.BookCount),
			row.Message,
		))
	}
	return w.flush(ctx, fmt.Sprintf("consensus_completeness_s%d_%s.csv", season, version), buf.B)
}

// WriteFeatureDistributions summarizes every feature column: sample size,
// null share, mean, standard deviation, and range. Columns nulled by the
// hygiene pass surface here with a full null count.
func (w *ReportWriter) WriteFeatureDistributions(ctx context.Context, season int, featureVersion string, rows []feature.TeamGame) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("column,rows,nulls,mean,std,min,max\n")
	for _, selector := range metricSetSelectors {
		for _, family := range metricFamilies {
			var values []float64
			nulls := 0
			for i := range rows {
				v := *familyField(selector.pick(&rows[i]), family)
				if v == nil {
					nulls++
					continue
				}
				values = append(values, *v)
			}

			mean, std := math.NaN(), math.NaN()
			lo, hi := math.NaN(), math.NaN()
			if len(values) > 0 {
				mean, std = stat.MeanStdDev(values, nil)
				lo, hi = values[0], values[0]
				for _, v := range values[1:] {
					lo = math.Min(lo, v)
					hi = math.Max(hi, v)
				}
			}

			_, _ = buf.WriteString(csvLine(
				selector.name+"_"+family,
				strconv.Itoa(len(rows)),
				strconv.Itoa(nulls),
				formatStat(mean),
				formatStat(std),
				formatStat(lo),
				formatStat(hi),
			))
		}
	}
	return w.flush(ctx, fmt.Sprintf("feature_distributions_s%d_%s.csv", season, featureVersion), buf.B)
}

// WriteResidualBuckets reports per-combination residual bias by spread band
// alongside each verdict, one row per combination and band.
func (w *ReportWriter) WriteResidualBuckets(ctx context.Context, season int, modelVersion string, results []calibration.Result) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("param_key,verdict,initial_slope,rmse,r2,band_low,band_high,count,mean_residual\n")
	for _, res := range results {
		if len(res.Buckets) == 0 {
			_, _ = buf.WriteString(csvLine(
				res.Params.Key(),
				res.Verdict,
				formatStat(res.InitialSlope),
				formatStat(res.Fit.RMSE),
				formatStat(res.Fit.R2),
				"", "", "0", "",
			))
			continue
		}
		for _, bucket := range res.Buckets {
			_, _ = buf.WriteString(csvLine(
				res.Params.Key(),
				res.Verdict,
				formatStat(res.InitialSlope),
				formatStat(res.Fit.RMSE),
				formatStat(res.Fit.R2),
				formatStat(bucket.LowSpread),
				formatStat(bucket.HighSpread),
				strconv.Itoa(bucket.Count),
				formatStat(bucket.MeanResidual),
			))
		}
	}
	return w.flush(ctx, fmt.Sprintf("residual_buckets_s%d_%s.csv", season, modelVersion), buf.B)
}

func (w *ReportWriter) flush(ctx context.Context, name string, content []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, name)
	data := make([]byte, len(content))
	copy(data, content)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	w.logger.InfoContext(ctx, "report written", "path", path, "bytes", len(data))
	return path, nil
}

func csvLine(fields ...string) string {
	line := ""
	for i, f := range fields {
		if i > 0 {
			line += ","
		}
		line += csvEscape(f)
	}
	return line + "\n"
}

func csvEscape(v string) string {
	needsQuote := false
	for _, r := range v {
		if r == ',' || r == '"' || r == '\n' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return v
	}
	escaped := "\""
	for _, r := range v {
		if r == '"' {
			escaped += "\"\""
			continue
		}
		escaped += string(r)
	}
	return escaped + "\""
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

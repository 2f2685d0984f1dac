package main

import (
	"context"
	"flag"

	"github.com/pricelab/cfb-market/internal/app"
	"github.com/pricelab/cfb-market/internal/usecase"
)

func runIngest(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	season := fs.Int("season", 0, "season year (required)")
	weeks := fs.String("weeks", "", "comma-separated week filter, empty for the whole season")
	dryRun := fs.Bool("dry-run", false, "compute without persisting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	weekValues, err := parseWeeks(*weeks)
	if err != nil {
		return err
	}

	result, err := application.Ingestion.IngestSeason(ctx, usecase.IngestSeasonInput{
		Season: *season,
		Weeks:  weekValues,
		DryRun: *dryRun,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func runConsensus(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("consensus", flag.ExitOnError)
	season := fs.Int("season", 0, "season year (required)")
	weeks := fs.String("weeks", "", "comma-separated week filter")
	version := fs.String("version", "", "consensus spread version tag (required)")
	workers := fs.Int("workers", 0, "worker pool size, 0 for the default")
	dryRun := fs.Bool("dry-run", false, "compute without persisting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	weekValues, err := parseWeeks(*weeks)
	if err != nil {
		return err
	}

	result, resolveErr := application.Consensus.ResolveSeason(ctx, usecase.ResolveSeasonInput{
		Season:     *season,
		Weeks:      weekValues,
		Version:    *version,
		MaxWorkers: *workers,
		DryRun:     *dryRun,
	})
	// The completeness report is written even when some games failed, so a
	// partial run still leaves an audit trail behind.
	if len(result.Rows) > 0 {
		if path, reportErr := application.Reports.WriteConsensusCompleteness(ctx, *season, *version, result.Rows); reportErr != nil {
			application.Logger.WarnContext(ctx, "write consensus completeness report", "error", reportErr)
		} else {
			application.Logger.InfoContext(ctx, "consensus completeness report written", "path", path)
		}
	}
	if resolveErr != nil {
		return resolveErr
	}
	return printResult(result)
}

func runFeatures(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	season := fs.Int("season", 0, "season year (required)")
	weeks := fs.String("weeks", "", "comma-separated week filter")
	featureVersion := fs.String("feature-version", "", "feature version tag (required)")
	dryRun := fs.Bool("dry-run", false, "compute without persisting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	weekValues, err := parseWeeks(*weeks)
	if err != nil {
		return err
	}

	result, err := application.Features.BuildSeason(ctx, usecase.BuildFeaturesInput{
		Season:         *season,
		Weeks:          weekValues,
		FeatureVersion: *featureVersion,
		DryRun:         *dryRun,
	})
	if err != nil {
		return err
	}

	if !*dryRun {
		rows, listErr := application.FeatureRows.ListBySeason(ctx, *season, *featureVersion)
		if listErr != nil {
			application.Logger.WarnContext(ctx, "load features for distribution report", "error", listErr)
		} else if len(rows) > 0 {
			if path, reportErr := application.Reports.WriteFeatureDistributions(ctx, *season, *featureVersion, rows); reportErr != nil {
				application.Logger.WarnContext(ctx, "write feature distribution report", "error", reportErr)
			} else {
				application.Logger.InfoContext(ctx, "feature distribution report written", "path", path)
			}
		}
	}
	return printResult(result)
}

func runHomeField(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("hfa", flag.ExitOnError)
	season := fs.Int("season", 0, "season year (required)")
	modelVersion := fs.String("model-version", "", "rating model version tag (required)")
	dryRun := fs.Bool("dry-run", false, "compute without persisting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := application.HomeField.EstimateSeason(ctx, usecase.EstimateHomeFieldInput{
		Season:       *season,
		ModelVersion: *modelVersion,
		DryRun:       *dryRun,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func runRatings(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("ratings", flag.ExitOnError)
	season := fs.Int("season", 0, "season year (required)")
	modelVersion := fs.String("model-version", "", "rating model version tag (required)")
	featureVersion := fs.String("feature-version", "", "feature version tag (required)")
	sosWeight := fs.Float64("sos", 0, "strength-of-schedule weight, 0 for the default")
	shrinkage := fs.Float64("shrink", 0, "shrinkage base, 0 for the default")
	scale := fs.Float64("scale", 0, "point scale, 0 for the default")
	dryRun := fs.Bool("dry-run", false, "compute without persisting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := application.Ratings.ComputeSeason(ctx, usecase.ComputeRatingsInput{
		Season:         *season,
		ModelVersion:   *modelVersion,
		FeatureVersion: *featureVersion,
		SoSWeight:      *sosWeight,
		ShrinkageBase:  *shrinkage,
		Scale:          *scale,
		DryRun:         *dryRun,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func runCalibrate(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	season := fs.Int("season", 0, "season year (required)")
	modelVersion := fs.String("model-version", "", "rating model version tag (required)")
	featureVersion := fs.String("feature-version", "", "feature version tag (required)")
	spreadVersion := fs.String("spread-version", "", "consensus spread version tag (required)")
	sosWeight := fs.Float64("sos", 0, "strength-of-schedule weight, 0 for the default")
	shrinkage := fs.Float64("shrink", 0, "shrinkage base, 0 for the default")
	scale := fs.Float64("scale", 0, "point scale, 0 for the default")
	dryRun := fs.Bool("dry-run", false, "evaluate without persisting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := application.Calibration.Calibrate(ctx, usecase.CalibrateInput{
		Season:         *season,
		ModelVersion:   *modelVersion,
		FeatureVersion: *featureVersion,
		SpreadVersion:  *spreadVersion,
		SoSWeight:      *sosWeight,
		ShrinkageBase:  *shrinkage,
		Scale:          *scale,
		DryRun:         *dryRun,
	})
	if err != nil {
		return err
	}
	writeResidualReport(ctx, application, *season, *modelVersion)
	return printResult(result)
}

func runSweep(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	season := fs.Int("season", 0, "season year (required)")
	modelVersion := fs.String("model-version", "", "rating model version tag (required)")
	featureVersion := fs.String("feature-version", "", "feature version tag (required)")
	spreadVersion := fs.String("spread-version", "", "consensus spread version tag (required)")
	sosWeights := fs.String("sos", "", "comma-separated strength-of-schedule weights (required)")
	shrinkages := fs.String("shrink", "", "comma-separated shrinkage bases (required)")
	scale := fs.Float64("scale", 0, "point scale, 0 for the default")
	workers := fs.Int("workers", 0, "worker pool size, 0 for the configured default")
	dryRun := fs.Bool("dry-run", false, "evaluate without checkpointing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sosValues, err := parseFloats(*sosWeights)
	if err != nil {
		return err
	}
	shrinkValues, err := parseFloats(*shrinkages)
	if err != nil {
		return err
	}
	workerCount := *workers
	if workerCount == 0 {
		workerCount = application.Config.CalibrationWorkers
	}

	result, err := application.Calibration.SweepGrid(ctx, usecase.GridSearchInput{
		Season:         *season,
		ModelVersion:   *modelVersion,
		FeatureVersion: *featureVersion,
		SpreadVersion:  *spreadVersion,
		SoSWeights:     sosValues,
		ShrinkageBases: shrinkValues,
		Scale:          *scale,
		MaxWorkers:     workerCount,
		DryRun:         *dryRun,
	})
	if err != nil {
		return err
	}
	writeResidualReport(ctx, application, *season, *modelVersion)
	return printResult(result)
}

func writeResidualReport(ctx context.Context, application *app.App, season int, modelVersion string) {
	results, err := application.Calibrations.ListBySeason(ctx, season, modelVersion)
	if err != nil {
		application.Logger.WarnContext(ctx, "load calibration results for residual report", "error", err)
		return
	}
	if len(results) == 0 {
		return
	}
	path, err := application.Reports.WriteResidualBuckets(ctx, season, modelVersion, results)
	if err != nil {
		application.Logger.WarnContext(ctx, "write residual bucket report", "error", err)
		return
	}
	application.Logger.InfoContext(ctx, "residual bucket report written", "path", path)
}

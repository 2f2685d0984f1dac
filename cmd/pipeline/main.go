package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/pricelab/cfb-market/internal/app"
	"github.com/pricelab/cfb-market/internal/config"
	"github.com/pricelab/cfb-market/internal/observability"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownUptrace, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownUptrace(shutdownCtx); err != nil {
			logger.Warn("shutdown uptrace", "error", err)
		}
	}()

	stopPyroscope, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := stopPyroscope(); err != nil {
			logger.Warn("stop pyroscope", "error", err)
		}
	}()

	pprofSrv, err := observability.StartPprofServer(cfg, logger)
	if err != nil {
		logger.Error("start pprof server", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := observability.StopPprofServer(pprofSrv, logger, 5*time.Second); err != nil {
			logger.Warn("stop pprof server", "error", err)
		}
	}()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close app", "error", err)
		}
	}()

	if err := runCommand(ctx, application, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("pipeline command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, application *app.App, command string, args []string) error {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "ingest":
		return runIngest(ctx, application, args)
	case "consensus":
		return runConsensus(ctx, application, args)
	case "features":
		return runFeatures(ctx, application, args)
	case "hfa":
		return runHomeField(ctx, application, args)
	case "ratings":
		return runRatings(ctx, application, args)
	case "calibrate":
		return runCalibrate(ctx, application, args)
	case "sweep":
		return runSweep(ctx, application, args)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	name := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "usage: %s <ingest|consensus|features|hfa|ratings|calibrate|sweep> [flags]\n", name)
	fmt.Fprintln(os.Stderr, "examples:")
	fmt.Fprintf(os.Stderr, "  %s ingest -season 2024\n", name)
	fmt.Fprintf(os.Stderr, "  %s consensus -season 2024 -version sp1\n", name)
	fmt.Fprintf(os.Stderr, "  %s sweep -season 2024 -model-version m1 -feature-version f1 -spread-version sp1 -sos 0.3,0.5,0.7 -shrink 4,6,8\n", name)
}

func parseWeeks(raw string) ([]int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		week, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid week %q: %w", part, err)
		}
		out = append(out, week)
	}
	return out, nil
}

func parseFloats(raw string) ([]float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func printResult(result any) error {
	raw, err := sonic.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(raw))
	return nil
}

package config

import (
	"testing"
	"time"

	"github.com/pricelab/cfb-market/internal/platform/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AppEnv != EnvDev {
		t.Fatalf("AppEnv = %q, want dev", cfg.AppEnv)
	}
	if cfg.ServiceName != "cfb-market-pipeline" {
		t.Fatalf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.GridStatsEnabled {
		t.Fatal("GridStatsEnabled should default to false")
	}
	if cfg.GridStatsTimeout != 20*time.Second {
		t.Fatalf("GridStatsTimeout = %v", cfg.GridStatsTimeout)
	}
	if cfg.CalibrationWorkers != 4 {
		t.Fatalf("CalibrationWorkers = %d", cfg.CalibrationWorkers)
	}
	if cfg.ReportsDir != "./reports" {
		t.Fatalf("ReportsDir = %q", cfg.ReportsDir)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidAppEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid APP_ENV")
	}
}

func TestLoadRequiresProviderTokenWhenEnabled(t *testing.T) {
	t.Setenv("GRIDSTATS_ENABLED", "true")
	t.Setenv("GRIDSTATS_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing GRIDSTATS_TOKEN")
	}
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	t.Setenv("GRIDSTATS_TIMEOUT", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero GRIDSTATS_TIMEOUT")
	}
}

func TestLoadParsesCalibrationSolver(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CalibrationSolver != SolverNormal {
		t.Fatalf("CalibrationSolver = %q, want normal by default", cfg.CalibrationSolver)
	}

	t.Setenv("CALIBRATION_SOLVER", "QR")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CalibrationSolver != SolverQR {
		t.Fatalf("CalibrationSolver = %q, want qr", cfg.CalibrationSolver)
	}

	t.Setenv("CALIBRATION_SOLVER", "cholesky")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown CALIBRATION_SOLVER")
	}
}

func TestLoadParsesProviderOverrides(t *testing.T) {
	t.Setenv("GRIDSTATS_ENABLED", "true")
	t.Setenv("GRIDSTATS_TOKEN", "secret")
	t.Setenv("GRIDSTATS_MAX_RETRIES", "5")
	t.Setenv("CALIBRATION_WORKERS", "8")
	t.Setenv("APP_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.GridStatsEnabled || cfg.GridStatsToken != "secret" {
		t.Fatalf("provider config = %+v", cfg)
	}
	if cfg.GridStatsMaxRetries != 5 {
		t.Fatalf("GridStatsMaxRetries = %d", cfg.GridStatsMaxRetries)
	}
	if cfg.CalibrationWorkers != 8 {
		t.Fatalf("CalibrationWorkers = %d", cfg.CalibrationWorkers)
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.LogLevel)
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/pricelab/cfb-market/external/gridstats"
	"github.com/pricelab/cfb-market/internal/config"
	"github.com/pricelab/cfb-market/internal/domain/calibration"
	"github.com/pricelab/cfb-market/internal/domain/feature"
	"github.com/pricelab/cfb-market/internal/infrastructure/repository/postgres"
	"github.com/pricelab/cfb-market/internal/platform/linalg"
	"github.com/pricelab/cfb-market/internal/platform/logging"
	"github.com/pricelab/cfb-market/internal/platform/resilience"
	"github.com/pricelab/cfb-market/internal/usecase"
)

// App wires repositories, the provider client, and the pipeline services.
type App struct {
	Config config.Config
	Logger *logging.Logger
	DB     *sqlx.DB

	Ingestion   *usecase.IngestionService
	Consensus   *usecase.ConsensusService
	Features    *usecase.FeatureService
	HomeField   *usecase.HFAService
	Ratings     *usecase.RatingService
	Calibration *usecase.CalibrationService
	Reports     *usecase.ReportWriter

	// Report commands read persisted rows back after a pass completes.
	FeatureRows  feature.Repository
	Calibrations calibration.Repository
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	db, err := otelsqlx.Connect("postgres", cfg.DBURL,
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect database %s: %w", redactDBURL(cfg.DBURL), err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database %s: %w", redactDBURL(cfg.DBURL), err)
	}

	teamRepo := postgres.NewTeamRepository(db)
	gameRepo := postgres.NewGameRepository(db)
	marketRepo := postgres.NewMarketRepository(db)
	efficiencyRepo := postgres.NewEfficiencyRepository(db)
	featureRepo := postgres.NewFeatureRepository(db)
	ratingRepo := postgres.NewRatingRepository(db)
	calibrationRepo := postgres.NewCalibrationRepository(db)

	var provider usecase.MarketDataProvider
	if cfg.GridStatsEnabled {
		provider = gridstats.NewClient(gridstats.ClientConfig{
			BaseURL:    cfg.GridStatsBaseURL,
			Token:      cfg.GridStatsToken,
			Timeout:    cfg.GridStatsTimeout,
			MaxRetries: cfg.GridStatsMaxRetries,
			Logger:     logger,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.GridStatsCircuitEnabled,
				FailureThreshold: cfg.GridStatsCircuitFailureCount,
				OpenTimeout:      cfg.GridStatsCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.GridStatsCircuitHalfOpenMaxReq,
			},
		})
	} else {
		logger.Info("gridstats provider disabled", "reason", "GRIDSTATS_ENABLED=false")
	}

	// Nil falls through to the closed-form normal-equations solver.
	var solver linalg.Solver
	if cfg.CalibrationSolver == config.SolverQR {
		solver = linalg.QRSolver{}
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		Ingestion:    usecase.NewIngestionService(provider, teamRepo, gameRepo, marketRepo, efficiencyRepo, logger),
		Consensus:    usecase.NewConsensusService(gameRepo, marketRepo, logger),
		Features:     usecase.NewFeatureService(gameRepo, teamRepo, efficiencyRepo, featureRepo, logger),
		HomeField:    usecase.NewHFAService(gameRepo, ratingRepo, logger),
		Ratings:      usecase.NewRatingService(gameRepo, featureRepo, ratingRepo, logger),
		Calibration:  usecase.NewCalibrationService(gameRepo, marketRepo, featureRepo, ratingRepo, calibrationRepo, solver, logger),
		Reports:      usecase.NewReportWriter(cfg.ReportsDir, logger),
		FeatureRows:  featureRepo,
		Calibrations: calibrationRepo,
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

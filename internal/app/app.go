package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"gitlab2dash/internal/checkpoint"
	"gitlab2dash/internal/config"
	"gitlab2dash/internal/export"
	"gitlab2dash/internal/gitlab"
	"gitlab2dash/internal/history"
	"gitlab2dash/internal/metrics"
	"gitlab2dash/internal/pipeline"
	"gitlab2dash/internal/progress"
	"gitlab2dash/internal/publish"
	"gitlab2dash/internal/report"
)

const historyFile = "history.db"

// Analyzer represents the main analysis application
type Analyzer struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     *gitlab.Client
	checkpoint *checkpoint.FileStore
	metrics    *metrics.Collector
	tracker    *progress.Tracker
	history    *history.Store
}

// New creates a new analyzer instance
func New(cfg *config.Config, logger *zap.Logger) (*Analyzer, error) {
	metricsCollector := metrics.New()

	client := gitlab.NewClient(gitlab.Options{
		BaseURL:            cfg.GitLab.URL,
		Token:              cfg.GitLab.Token,
		InsecureSkipVerify: cfg.GitLab.InsecureSkipVerify,
		MaxRetries:         cfg.Client.MaxRetries,
		BaseDelay:          time.Duration(cfg.Client.BaseDelayMs) * time.Millisecond,
		MaxDelay:           time.Duration(cfg.Client.MaxDelayMs) * time.Millisecond,
		Timeout:            time.Duration(cfg.Client.TimeoutSeconds) * time.Second,
		MinInterval:        time.Duration(cfg.Client.MinIntervalMs) * time.Millisecond,
		PerMinuteBudget:    cfg.Client.PerMinuteBudget,
	}, logger, metricsCollector)

	sig := checkpoint.Signature{
		InstanceURL:  cfg.GitLab.URL,
		LookbackDays: cfg.Analysis.LookbackDays,
		SecurityData: cfg.Analysis.SecurityData,
		AllReports:   cfg.Analysis.AllReports,
	}

	checkpointStore, err := checkpoint.NewFileStore(cfg.Analysis.OutputDir, sig, cfg.Analysis.ForceRestart, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	historyStore, err := history.NewStore(filepath.Join(cfg.Analysis.OutputDir, historyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create history store: %w", err)
	}

	return &Analyzer{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		checkpoint: checkpointStore,
		metrics:    metricsCollector,
		tracker:    progress.NewTracker(),
		history:    historyStore,
	}, nil
}

// Run executes the analysis process
func (a *Analyzer) Run(ctx context.Context) error {
	startedAt := time.Now()

	a.logger.Info("Starting analysis",
		zap.String("instance", a.cfg.GitLab.URL),
		zap.Int("lookback_days", a.cfg.Analysis.LookbackDays),
		zap.Bool("security_data", a.cfg.Analysis.SecurityData),
		zap.Bool("all_reports", a.cfg.Analysis.AllReports),
		zap.String("run_key", a.checkpoint.RunKey()),
		zap.Bool("resuming", a.checkpoint.UseExisting()),
	)

	// Start metrics server in a goroutine with error handling
	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := a.metrics.StartServer(a.cfg.MetricsAddr); err != nil {
				a.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	// The connection test is the one hard failure: every stage needs a
	// reachable, authenticated API.
	version, err := a.client.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	a.logger.Info("Connected to GitLab",
		zap.String("version", version.Version),
		zap.String("revision", version.Revision))

	// Create progress display if enabled and supported
	var progressDisplay *progress.Display
	if a.cfg.Analysis.ShowProgress && progress.IsTerminalSupported() {
		progressDisplay = progress.NewDisplay(a.tracker, 2*time.Second)
		progressDisplay.Start()
	} else if !a.cfg.Analysis.ShowProgress {
		a.logger.Info("Progress display disabled (disabled in config)")
	} else {
		a.logger.Info("Progress display disabled (unsupported terminal)")
	}

	runner := pipeline.NewRunner(a.cfg, a.client, a.checkpoint, a.logger, a.metrics, a.tracker, report.DefaultPolicy())
	results, runErr := runner.Run(ctx)

	if progressDisplay != nil {
		progressDisplay.Stop()
	}
	if runErr != nil {
		return runErr
	}

	if err := a.export(results); err != nil {
		return err
	}

	a.recordRun(startedAt, time.Now())

	if a.cfg.Publish.Enabled {
		a.publish(ctx)
	}

	export.WriteStageSummary(os.Stdout, a.checkpoint.Metadata())
	a.logger.Info("Analysis completed",
		zap.Duration("elapsed", time.Since(startedAt)),
		zap.String("output", a.cfg.Analysis.OutputDir))
	return nil
}

func (a *Analyzer) export(results *pipeline.Results) error {
	if err := export.WriteCSVs(a.cfg.Analysis.OutputDir, results); err != nil {
		return fmt.Errorf("failed to write CSV reports: %w", err)
	}
	if err := export.WriteDashboard(a.cfg.Analysis.OutputDir, results); err != nil {
		return fmt.Errorf("failed to write dashboard: %w", err)
	}
	return nil
}

// recordRun stores the run outcome in history. Failures are logged, not
// fatal: the reports on disk are the deliverable.
func (a *Analyzer) recordRun(startedAt, finishedAt time.Time) {
	meta := a.checkpoint.Metadata()
	status := a.tracker.GetStatus()

	run := &history.Run{
		RunID:           meta.RunID,
		RunKey:          meta.RunKey,
		InstanceURL:     a.cfg.GitLab.URL,
		LookbackDays:    a.cfg.Analysis.LookbackDays,
		ProjectCount:    status.TotalProjects,
		StagesCompleted: status.CompletedStages,
		StagesRestored:  status.RestoredStages,
		StagesSkipped:   status.SkippedStages,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		Duration:        finishedAt.Sub(startedAt),
	}

	if err := a.history.SaveRun(run); err != nil {
		a.logger.Warn("Failed to record run history", zap.Error(err))
	}
}

func (a *Analyzer) publish(ctx context.Context) {
	publisher, err := publish.New(a.cfg.Publish, a.logger)
	if err != nil {
		a.logger.Warn("Failed to create publisher", zap.Error(err))
		return
	}

	uploaded, err := publisher.Upload(ctx, a.cfg.Analysis.OutputDir, a.checkpoint.RunKey())
	if err != nil {
		a.logger.Warn("Failed to publish artifacts", zap.Error(err))
		return
	}
	a.logger.Info("Published artifacts",
		zap.Int("uploaded", uploaded),
		zap.String("bucket", a.cfg.Publish.Bucket))
}

// ListRuns prints the recorded run history
func (a *Analyzer) ListRuns(limit int) error {
	runs, err := a.history.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	export.WriteRunsTable(os.Stdout, runs)
	return nil
}

// Close cleans up resources
func (a *Analyzer) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

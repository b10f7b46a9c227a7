package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitlab2dash/internal/app"
	"gitlab2dash/internal/config"
	"gitlab2dash/internal/logger"
)

var (
	configFile string
	listRuns   int
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gitlab2dash",
	Short: "Analyze a GitLab instance into dashboards and CSV reports",
	Long:  `A resumable analytics tool that walks a GitLab instance's REST API, computes per-project health, quality, cost, and adoption reports, and renders them as an HTML dashboard with CSV exports. Interrupted runs resume from checkpoints.`,
	RunE:  runAnalysis,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is none)")

	// Instance flags
	rootCmd.Flags().String("gitlab-url", "", "GitLab instance URL")
	rootCmd.Flags().String("token", "", "Personal access token (or GITLAB_TOKEN env)")
	rootCmd.Flags().Bool("insecure", false, "Skip TLS certificate verification")

	// Analysis flags
	rootCmd.Flags().Int("lookback-days", 90, "Activity window in days")
	rootCmd.Flags().Bool("security-data", false, "Collect vulnerability data")
	rootCmd.Flags().Bool("all-reports", false, "Compute extended reports (collaboration, maturity, barriers)")
	rootCmd.Flags().Int("max-projects", 0, "Limit analysis to the N most recently active projects (0 = all)")
	rootCmd.Flags().String("output", "./reports", "Output directory for reports and checkpoints")
	rootCmd.Flags().Bool("force-restart", false, "Ignore existing checkpoints and recompute everything")
	rootCmd.Flags().Int("per-page", 100, "Page size for API requests")
	rootCmd.Flags().Int("max-pages", 100, "Page ceiling per endpoint")
	rootCmd.Flags().Bool("show-progress", true, "Show progress display")

	// Client tuning flags
	rootCmd.Flags().Int("min-interval-ms", 200, "Minimum delay between API calls in milliseconds")
	rootCmd.Flags().Int("per-minute-budget", 600, "API request budget per minute")
	rootCmd.Flags().Int("retries", 3, "Maximum retry attempts per request")
	rootCmd.Flags().Int("base-delay-ms", 1000, "Initial retry backoff in milliseconds")
	rootCmd.Flags().Int("max-delay-ms", 30000, "Maximum retry backoff in milliseconds")
	rootCmd.Flags().Int("timeout", 120, "HTTP request timeout in seconds")

	// Publish flags
	rootCmd.Flags().String("publish-endpoint", "", "S3-compatible endpoint for artifact upload")
	rootCmd.Flags().String("publish-access-key", "", "Publish access key")
	rootCmd.Flags().String("publish-secret-key", "", "Publish secret key")
	rootCmd.Flags().String("publish-bucket", "", "Publish bucket name")
	rootCmd.Flags().Bool("publish-secure", true, "Use HTTPS for publish endpoint")

	rootCmd.Flags().String("metrics-addr", "", "Prometheus metrics listen address (empty = disabled)")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.Flags().IntVar(&listRuns, "list-runs", 0, "List the N most recent runs and exit")
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Create application
	analyzer, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	if cmd.Flags().Changed("list-runs") {
		err = analyzer.ListRuns(listRuns)
		if closeErr := analyzer.Close(); closeErr != nil {
			log.Error("Error closing analyzer", zap.Error(closeErr))
		}
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	// Run analysis
	err = analyzer.Run(ctx)

	// Close analyzer resources after the run completes or is cancelled
	if closeErr := analyzer.Close(); closeErr != nil {
		log.Error("Error closing analyzer", zap.Error(closeErr))
	}

	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

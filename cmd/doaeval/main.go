package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/himanishpuri/doaeval/internal/config"
	"github.com/himanishpuri/doaeval/internal/evaluator"
	"github.com/himanishpuri/doaeval/internal/model"
	"github.com/himanishpuri/doaeval/internal/server"
	"github.com/himanishpuri/doaeval/internal/storage"
	"github.com/himanishpuri/doaeval/pkg/logger"
	"github.com/himanishpuri/doaeval/pkg/models"
	"github.com/himanishpuri/doaeval/pkg/utils"
)

// Global flags
var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.GetLogger().Fatalf("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "doaeval",
		Short:         "Evaluate a DOA network on moving-source reverberant audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSweep,
	}

	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the JSON settings document")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn); overrides log_level")

	root.AddCommand(newParamsCmd(), newResultsCmd(), newServeCmd(), newInitCheckpointCmd())
	return root
}

// loadConfig reads the settings document and applies the log level.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	log := logger.GetLogger()
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log.SetLevel(logger.ParseLevel(level))
	log.Debugf("Loaded %s (sha256 %s)", cfg.Path, cfg.Digest)
	return cfg, log, nil
}

func printBanner() {
	banner := `
     _                           _
  __| | ___   __ _  _____   ____ _| |
 / _' |/ _ \ / _' |/ _ \ \ / / _' | |
| (_| | (_) | (_| |  __/\ V / (_| | |
 \__,_|\___/ \__,_|\___| \_/ \__,_|_|

   Direction-of-arrival evaluation sweep
`
	fmt.Println(banner)
}

func runSweep(cmd *cobra.Command, args []string) error {
	printBanner()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	p, err := evaluator.Setup(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ %d figure(s) in %s (%s)\n", len(report.Results), report.FigureDir,
		time.Since(start).Round(time.Millisecond))
	printResults(report.Results)
	return nil
}

func newParamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the network's parameter table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			sess, err := evaluator.OpenSession(cfg, log)
			if err != nil {
				return err
			}
			defer sess.Close()

			for _, p := range sess.Params() {
				fmt.Printf("%-20v %10d  %s\n", p.Shape, p.Size, p.Name)
			}
			total := sess.NumParams()
			fmt.Printf("\nTotal: %s params, %s\n", humanize.Comma(int64(total)), humanize.IBytes(uint64(total)*4))
			return nil
		},
	}
}

func newResultsCmd() *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List recorded sweeps and their scenario metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.ResultsDB == "" {
				return fmt.Errorf("results_db is not configured")
			}
			if runID != "" && !utils.IsUUID(runID) {
				return fmt.Errorf("invalid run ID %q", runID)
			}

			db, err := storage.NewDBClientWithPath(cfg.ResultsDB)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}

			fmt.Printf("%-36s  %-20s  %-9s  %s\n", "RUN", "STARTED", "SCENARIOS", "DATASET")
			for _, r := range runs {
				fmt.Printf("%-36s  %-20s  %-9d  %s\n", r.ID, humanize.Time(r.StartedAt), r.Scenarios, r.Dataset)
			}

			if runID == "" {
				runID = runs[0].ID
			}
			results, err := db.GetScenarioResults(runID)
			if err != nil {
				return err
			}
			fmt.Printf("\nRun %s\n", runID)
			printResults(results)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run ID to show (default: most recent)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to list (0 for all)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var (
		port    int
		origins string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded results and figures over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.ResultsDB == "" {
				return fmt.Errorf("results_db is not configured")
			}

			db, err := storage.NewDBClientWithPath(cfg.ResultsDB)
			if err != nil {
				return err
			}
			defer db.Close()

			var allowed []string
			for _, o := range strings.Split(origins, ",") {
				if o = strings.TrimSpace(o); o != "" {
					allowed = append(allowed, o)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.NewServer(db, &server.Config{
				Port:           port,
				DBPath:         cfg.ResultsDB,
				FiguresDir:     cfg.FiguresDir,
				AllowedOrigins: allowed,
			}, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	cmd.Flags().StringVar(&origins, "origins", "*", "Comma-separated CORS origins")
	return cmd
}

func newInitCheckpointCmd() *cobra.Command {
	var half bool

	cmd := &cobra.Command{
		Use:   "init-checkpoint <path>",
		Short: "Write freshly initialized parameters as a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			sess, err := model.NewSession(evaluator.ModelSettings(cfg))
			if err != nil {
				return err
			}
			defer sess.Close()

			precision := model.FP32
			if half {
				precision = model.FP16
			}
			if err := sess.Save(args[0], precision); err != nil {
				return fmt.Errorf("writing checkpoint: %w", err)
			}
			log.Infof("Wrote %d parameters to %s (fp%d)", sess.NumParams(), args[0], precision)
			return nil
		},
	}

	cmd.Flags().BoolVar(&half, "fp16", false, "Store values in half precision")
	return cmd
}

func printResults(results []models.ScenarioResult) {
	fmt.Printf("%-6s %-7s %-8s %-8s %-10s %-9s %s\n", "ROOM", "REVERB", "FRAMES", "VOICED", "MAE(deg)", "ACCURACY", "FIGURE")
	for _, r := range results {
		fmt.Printf("%-6d %-7d %-8d %-8s %-10.2f %-9.3f %s\n",
			r.Scenario.Room, r.Scenario.ReverbPercent, r.NumFrames,
			fmt.Sprintf("%.1f%%", r.VoicedPercent), r.MAEDegrees, r.Accuracy, r.FigurePath)
	}
}

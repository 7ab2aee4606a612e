package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vanetguard/vanetguard/internal/config"
	"github.com/vanetguard/vanetguard/internal/database"
	"github.com/vanetguard/vanetguard/internal/monitoring"
	"github.com/vanetguard/vanetguard/internal/report"
	"github.com/vanetguard/vanetguard/internal/simulation"
	"go.uber.org/zap"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation and report detection results",
	Long: `Run one simulation with the loaded configuration. Flags override the
matching configuration keys. The report is printed, and optionally stored in
the configured database and exported to a file.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("attack", "", "Attack type (flood, hello_flood, spoof, replay, sybil, timing, data_manipulation, selective_forwarding)")
	runCmd.Flags().Int("defenders", 0, "Number of benign vehicles")
	runCmd.Flags().Int("attackers", -1, "Number of attacking vehicles")
	runCmd.Flags().Duration("duration", 0, "Simulated time")
	runCmd.Flags().Int64("seed", 0, "Random seed")
	runCmd.Flags().Bool("no-detection", false, "Disable detection on benign vehicles")
	runCmd.Flags().String("monitor", "", "Serve metrics on this address")
	runCmd.Flags().String("export-dir", "", "Export the report into this directory")
	runCmd.Flags().String("format", "", "Export format (json, yaml)")
	runCmd.Flags().Bool("compress", false, "Gzip the exported report")
	runCmd.Flags().Bool("records", false, "Keep per-packet delivery records in the report")
	runCmd.Flags().Bool("watch", false, "Run again whenever the config file changes")
	runCmd.Flags().Bool("quiet", false, "Do not print the report")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	watch, _ := cmd.Flags().GetBool("watch")
	if watch && cfgFile == "" {
		return errors.New("--watch requires --config")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer r.close()

	if err := r.execute(ctx, cfg); err != nil {
		return err
	}

	if watch {
		w, err := config.NewWatcher(logs.Logger("config"), cfgFile, 0)
		if err != nil {
			return err
		}
		return w.Run(ctx, func(next *config.Config) {
			if err := applyRunFlags(cmd, next); err != nil {
				logs.Root().Error("Invalid flags", zap.Error(err))
				return
			}
			if err := r.execute(ctx, next); err != nil && !errors.Is(err, context.Canceled) {
				logs.Root().Error("Run failed", zap.Error(err))
			}
		})
	}

	r.linger(ctx)
	return nil
}

// applyRunFlags copies the flags the user set onto c.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("attack") {
		c.Attack.Type, _ = flags.GetString("attack")
	}
	if flags.Changed("defenders") {
		c.Simulation.Defenders, _ = flags.GetInt("defenders")
	}
	if flags.Changed("attackers") {
		c.Simulation.Attackers, _ = flags.GetInt("attackers")
	}
	if flags.Changed("duration") {
		c.Simulation.Duration, _ = flags.GetDuration("duration")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetInt64("seed")
		c.Simulation.Seed = seed
		c.Attack.Seed = seed
	}
	if noDetection, _ := flags.GetBool("no-detection"); noDetection {
		c.Detection.DetectionEnabled = false
	}
	if flags.Changed("monitor") {
		c.Monitoring.Enabled = true
		c.Monitoring.ListenAddr, _ = flags.GetString("monitor")
	}
	if flags.Changed("export-dir") {
		c.Storage.ExportDir, _ = flags.GetString("export-dir")
	}
	if flags.Changed("format") {
		c.Storage.ExportFormat, _ = flags.GetString("format")
	}
	if compress, _ := flags.GetBool("compress"); compress {
		c.Storage.Compress = true
	}
	return c.Validate()
}

// runner owns what outlives a single run: the metrics server and the
// database. Runs are serialized.
type runner struct {
	logger *zap.Logger
	out    io.Writer
	quiet  bool

	includeRecords bool
	lingerFor      time.Duration

	metrics *monitoring.Metrics
	server  *monitoring.Server
	db      *database.DB
	repo    *database.RunRepository

	mu sync.Mutex
}

func newRunner(ctx context.Context, cmd *cobra.Command, c *config.Config) (*runner, error) {
	r := &runner{
		logger:    logs.Root(),
		out:       cmd.OutOrStdout(),
		lingerFor: c.Monitoring.Linger,
	}
	r.quiet, _ = cmd.Flags().GetBool("quiet")
	r.includeRecords, _ = cmd.Flags().GetBool("records")

	if c.Monitoring.Enabled {
		r.metrics = monitoring.NewMetrics()
		r.server = monitoring.NewServer(logs.Logger("monitoring"), c.Monitoring.ListenAddr, r.metrics)
		if err := r.server.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitoring server: %w", err)
		}
	}

	if c.Storage.Driver != "" {
		db, err := database.New(ctx, logs.Logger("database"), database.Config{
			Driver: c.Storage.Driver,
			DSN:    c.Storage.DSN,
		})
		if err != nil {
			r.close()
			return nil, err
		}
		r.db = db
		r.repo = database.NewRunRepository(db)
	}
	return r, nil
}

func (r *runner) execute(ctx context.Context, c *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	opts := simulation.Options{
		Simulation: c.Simulation,
		Node:       c.Node,
		Detection:  c.Detection,
		Attack:     c.Attack,
		Logger:     logs.Root(),
	}
	if r.metrics != nil {
		opts.Recorder = r.metrics
	}

	sim, err := simulation.New(opts)
	if err != nil {
		return err
	}

	if r.metrics != nil {
		r.metrics.SetRunning(true)
		defer r.metrics.SetRunning(false)
		r.publish(monitoring.EventRunStarted, map[string]any{
			"attack":    c.Attack.Type,
			"defenders": c.Simulation.Defenders,
			"attackers": c.Simulation.Attackers,
			"duration":  c.Simulation.Duration.String(),
			"seed":      c.Simulation.Seed,
		})
	}
	res, err := sim.Run(ctx)
	if err != nil {
		return err
	}

	rep := report.New(res, r.includeRecords)
	if r.metrics != nil {
		r.metrics.Publish(res)
		r.server.SetReport(rep)
		r.publish(monitoring.EventRunFinished, map[string]any{
			"run_id":  rep.RunID,
			"summary": rep.Summary,
		})
	}

	if r.repo != nil {
		if err := r.repo.Save(ctx, rep); err != nil {
			return err
		}
	}

	if c.Storage.ExportDir != "" {
		format, err := report.ParseFormat(c.Storage.ExportFormat)
		if err != nil {
			return err
		}
		path, err := rep.Export(c.Storage.ExportDir, format, c.Storage.Compress)
		if err != nil {
			return err
		}
		r.logger.Info("Report exported", zap.String("path", path))
	}

	if r.quiet {
		return nil
	}
	return rep.Render(r.out)
}

func (r *runner) publish(eventType string, data any) {
	if err := r.server.Publish(eventType, data); err != nil {
		r.logger.Warn("Failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

// linger keeps the metrics server up after the run when configured.
func (r *runner) linger(ctx context.Context) {
	if r.server == nil || r.lingerFor <= 0 {
		return
	}
	r.logger.Info("Serving final metrics", zap.Duration("linger", r.lingerFor))
	select {
	case <-ctx.Done():
	case <-time.After(r.lingerFor):
	}
}

func (r *runner) close() {
	if r.server != nil {
		if err := r.server.Stop(context.Background()); err != nil {
			r.logger.Error("Error stopping monitoring server", zap.Error(err))
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Error("Error closing database", zap.Error(err))
		}
	}
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vanetguard/vanetguard/internal/config"
	"github.com/vanetguard/vanetguard/internal/logging"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	logLevel string
	verbose  bool

	cfg  *config.Config
	logs *logging.Factory
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vanetguard",
	Short: "Misbehavior detection for vehicular broadcast networks",
	Long: `vanetguard simulates vehicles exchanging periodic safety beacons on a
shared broadcast medium, lets a subset of them attack the network, and
measures how well the on-board detector of every benign vehicle spots and
blocks the attackers.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnFinalize(func() {
		if logs != nil {
			_ = logs.Sync()
		}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and VANETGUARD_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// setup loads the configuration and builds the loggers for every command.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyLogFlags(loaded)

	factory, err := logging.NewFactory(loaded.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	cfg = loaded
	logs = factory
	logs.Root().Debug("Configuration loaded",
		zap.String("path", cfgFile),
		zap.String("attack", cfg.Attack.Type),
		zap.Int("defenders", cfg.Simulation.Defenders),
		zap.Int("attackers", cfg.Simulation.Attackers),
	)
	return nil
}

func applyLogFlags(c *config.Config) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if verbose {
		c.Logging.Level = "debug"
	}
}

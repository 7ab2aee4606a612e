package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vanetguard/vanetguard/internal/database"
	"github.com/vanetguard/vanetguard/internal/report"
)

var errNoStorage = errors.New("no storage configured, set storage.driver and storage.dsn")

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect stored and exported run reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <run-id|file>",
	Short: "Show one report from the database or an exported file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE:  runReportList,
}

var reportStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate stored runs per attack type",
	RunE:  runReportStats,
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportDelete,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportShowCmd, reportListCmd, reportStatsCmd, reportDeleteCmd)

	reportShowCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
	reportListCmd.Flags().Int("limit", 20, "Maximum number of runs")
}

func runReportShow(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	var (
		rep *report.Report
		err error
	)
	if id, perr := uuid.Parse(args[0]); perr == nil {
		err = withRepository(cmd.Context(), func(repo *database.RunRepository) error {
			var gerr error
			rep, gerr = repo.Get(cmd.Context(), id)
			return gerr
		})
	} else {
		rep, err = report.Open(args[0])
	}
	if err != nil {
		return err
	}

	if output == "table" {
		return rep.Render(cmd.OutOrStdout())
	}
	format, err := report.ParseFormat(output)
	if err != nil {
		return err
	}
	return rep.Encode(cmd.OutOrStdout(), format)
}

func runReportList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	return withRepository(cmd.Context(), func(repo *database.RunRepository) error {
		runs, err := repo.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs, time.Now())
		return nil
	})
}

func runReportStats(cmd *cobra.Command, args []string) error {
	return withRepository(cmd.Context(), func(repo *database.RunRepository) error {
		stats, err := repo.StatsByAttack(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	})
}

func runReportDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}
	return withRepository(cmd.Context(), func(repo *database.RunRepository) error {
		if err := repo.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", id)
		return nil
	})
}

// withRepository opens the configured database for the duration of fn.
func withRepository(ctx context.Context, fn func(*database.RunRepository) error) error {
	if cfg.Storage.Driver == "" {
		return errNoStorage
	}
	db, err := database.New(ctx, logs.Logger("database"), database.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(database.NewRunRepository(db))
}

func printRuns(w io.Writer, runs []database.RunInfo, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %5s  %5s  %9s  %7s  %9s  %s\n",
		"RUN ID", "ATTACK", "DEF", "ATK", "DURATION", "PDR", "DETECTED", "CREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %5d  %5d  %9s  %6s%%  %8s%%  %s\n",
			r.RunID,
			orNone(r.AttackType),
			r.Defenders,
			r.Attackers,
			r.Duration,
			humanize.FtoaWithDigits(r.NetworkPDR, 2),
			humanize.FtoaWithDigits(r.DetectionRate, 1),
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
		)
	}
}

func printStats(w io.Writer, stats []database.AttackStats) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No runs stored")
		return
	}
	fmt.Fprintf(w, "%-20s  %6s  %9s  %9s\n", "ATTACK", "RUNS", "MEAN PDR", "DETECTED")
	for _, s := range stats {
		fmt.Fprintf(w, "%-20s  %6s  %8s%%  %8s%%\n",
			orNone(s.AttackType),
			humanize.Comma(int64(s.Runs)),
			humanize.FtoaWithDigits(s.MeanNetworkPDR, 2),
			humanize.FtoaWithDigits(s.MeanDetectionRate, 1),
		)
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

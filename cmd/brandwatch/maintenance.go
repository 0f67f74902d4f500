package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored listings per brand",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		listings, closers, err := openListings(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeAll(closers, log)

		stats, err := listings.StatsByBrand(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}
		out := cmd.OutOrStdout()
		if statsJSON {
			return json.NewEncoder(out).Encode(stats)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "BRAND\tTOTAL\tACTIVE")
		var total, active int
		for _, s := range stats {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Brand, s.Total, s.Active)
			total += s.Total
			active += s.Active
		}
		fmt.Fprintf(tw, "all\t%d\t%d\n", total, active)
		return tw.Flush()
	},
}

var sweepOlderThan time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete listings not seen within the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		age := cfg.Retention()
		if cmd.Flags().Changed("older-than") {
			age = sweepOlderThan
		}
		if age <= 0 {
			return fmt.Errorf("retention must be positive, got %s", age)
		}

		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		listings, closers, err := openListings(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeAll(closers, log)

		n, err := listings.DeleteOlderThan(cmd.Context(), time.Now().UTC().Add(-age))
		if err != nil {
			return fmt.Errorf("failed to sweep listings: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d listings not seen for %s\n", n, age)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print stats as JSON")
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 0, "Override RETENTION_DAYS, e.g. 720h")
	rootCmd.AddCommand(statsCmd, sweepCmd)
}

func closeAll(closers []func() error, log *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.Warn("Failed to close resource", zap.Error(err))
		}
	}
	_ = log.Sync()
}

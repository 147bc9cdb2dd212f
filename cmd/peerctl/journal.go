package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"peerctl/internal/journal"
	"peerctl/internal/metrics"
	"peerctl/internal/model"
)

func newJournalCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read the local event journal",
	}

	var out string
	var since time.Duration
	export := &cobra.Command{
		Use:   "export",
		Short: "Export journal events as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := openJournal(root)
			if err != nil {
				return err
			}
			defer j.Close()

			items, err := j.Since(cmd.Context(), cutoff(since))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return journal.WriteCSV(w, items)
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	export.Flags().DurationVar(&since, "since", 0, "only events newer than this (0 = all)")

	var window time.Duration
	var kind string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarize daemon call outcomes and latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := openJournal(root)
			if err != nil {
				return err
			}
			defer j.Close()

			from := cutoff(window)
			items, err := j.Since(cmd.Context(), from)
			if err != nil {
				return err
			}
			summary := metrics.Summarize(items, kind, from)
			w := cmd.OutOrStdout()
			if summary.Count == 0 {
				fmt.Fprintf(w, "no %s events in window\n", kind)
				return nil
			}
			fmt.Fprintf(w, "%s count=%d success=%d failure=%d timeout=%d from=%s to=%s\n",
				summary.Kind, summary.Count, summary.Successes, summary.Failures, summary.Timeouts,
				summary.From.Format(time.RFC3339), summary.To.Format(time.RFC3339))
			fmt.Fprintf(w, "duration avg=%s p95=%s min=%s max=%s\n",
				summary.AvgDuration, summary.P95Duration, summary.MinDuration, summary.MaxDuration)
			return nil
		},
	}
	stats.Flags().DurationVar(&window, "window", 24*time.Hour, "time window")
	stats.Flags().StringVar(&kind, "kind", model.EventDaemonSync, "event kind ("+model.EventDaemonSync+" or "+model.EventDaemonRestart+")")

	cmd.AddCommand(export, stats)
	return cmd
}

func openJournal(root *rootOptions) (*journal.Journal, error) {
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Journal.Path == "" {
		return nil, errors.New("journal.path is not configured")
	}
	return journal.Open(cfg.Journal.Path)
}

func cutoff(window time.Duration) time.Time {
	if window <= 0 {
		return time.Unix(0, 0).UTC()
	}
	return time.Now().UTC().Add(-window)
}

// SPDX-License-Identifier: MIT

package main

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func assetQuery(asset string) url.Values {
	return url.Values{"asset": []string{asset}}
}

func (r *runner) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run ASSET",
		Short: "Trigger a manual daily run and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.exec(cmd.Context(), http.MethodPost, "/api/ops/daily-run/run-now", assetQuery(args[0]), nil)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status ASSET",
		Short: "Show the last recorded daily run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.exec(cmd.Context(), http.MethodGet, "/api/ops/daily-run/status", assetQuery(args[0]), nil)
		},
	})
	return cmd
}

func (r *runner) historyCmd() *cobra.Command {
	var asset string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded daily runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if asset != "" {
				q.Set("asset", asset)
			}
			return r.exec(cmd.Context(), http.MethodGet, "/api/ops/daily-run/history", limitQuery(q, limit), nil)
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "only runs of this asset")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs")
	return cmd
}

func (r *runner) timelineCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "timeline ASSET",
		Short: "Show the daily run timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.exec(cmd.Context(), http.MethodGet, "/api/ops/daily-run/timeline", limitQuery(assetQuery(args[0]), limit), nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries")
	return cmd
}

func (r *runner) snapshotCmd() *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "snapshot ASSET",
		Short: "Show the latest run snapshot (or progress with --progress)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/ops/daily-run/snapshot"
			if progress {
				path = "/api/ops/daily-run/progress"
			}
			return r.exec(cmd.Context(), http.MethodGet, path, assetQuery(args[0]), nil)
		},
	}
	cmd.Flags().BoolVar(&progress, "progress", false, "show the progress record instead")
	return cmd
}

func (r *runner) alertsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recently dispatched alerts (redis backend only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.exec(cmd.Context(), http.MethodGet, "/api/ops/alerts/recent", limitQuery(nil, limit), nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of alerts")
	return cmd
}

// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func (r *runner) stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show every model's lifecycle state and the combined mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.exec(cmd.Context(), http.MethodGet, "/api/lifecycle/state", nil, nil)
		},
	}
}

func (r *runner) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status ASSET",
		Short: "Show one model's lifecycle state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.exec(cmd.Context(), http.MethodGet, "/api/lifecycle/"+url.PathEscape(args[0])+"/status", nil, nil)
		},
	}
}

func (r *runner) eventsCmd() *cobra.Command {
	var asset string
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List lifecycle events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if asset != "" {
				q.Set("asset", asset)
			}
			return r.exec(cmd.Context(), http.MethodGet, "/api/lifecycle/events", limitQuery(q, limit), nil)
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "only events of this asset")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events")
	return cmd
}

func (r *runner) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create missing lifecycle states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.exec(cmd.Context(), http.MethodPost, "/api/lifecycle/init", nil, nil)
		},
	}
}

var actions = []string{"force-warmup", "force-apply", "revoke", "reset-simulation"}

func (r *runner) actionCmd() *cobra.Command {
	var reason string
	var targetDays int
	cmd := &cobra.Command{
		Use:       "action ACTION ASSET",
		Short:     "Run a manual lifecycle action: " + strings.Join(actions, ", "),
		Args:      cobra.ExactArgs(2),
		ValidArgs: actions,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, asset := args[0], args[1]
			body := map[string]any{"asset": asset}
			if reason != "" {
				body["reason"] = reason
			}
			switch action {
			case "force-warmup":
				if cmd.Flags().Changed("target-days") {
					body["targetDays"] = targetDays
				}
			case "force-apply", "revoke", "reset-simulation":
			default:
				return fmt.Errorf("unknown action %q (want one of %s)", action, strings.Join(actions, ", "))
			}
			return r.exec(cmd.Context(), http.MethodPost, "/api/lifecycle/actions/"+action, nil, body)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the event")
	cmd.Flags().IntVar(&targetDays, "target-days", 0, "warmup target days (force-warmup; default from policy)")
	return cmd
}

func (r *runner) constitutionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "constitution ASSET HASH",
		Short: "Record a new constitution hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.exec(cmd.Context(), http.MethodPost, "/api/lifecycle/constitution/apply", nil,
				map[string]any{"asset": args[0], "hash": args[1]})
		},
	}
}

func (r *runner) driftCmd() *cobra.Command {
	var hitRate, sharpe float64
	cmd := &cobra.Command{
		Use:   "drift ASSET SEVERITY",
		Short: "Report drift severity (OK, WARN, CRITICAL)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"asset": args[0], "severity": args[1]}
			if cmd.Flags().Changed("delta-hit-rate") {
				body["deltaHitRate"] = hitRate
			}
			if cmd.Flags().Changed("delta-sharpe") {
				body["deltaSharpe"] = sharpe
			}
			return r.exec(cmd.Context(), http.MethodPost, "/api/lifecycle/drift/update", nil, body)
		},
	}
	cmd.Flags().Float64Var(&hitRate, "delta-hit-rate", 0, "hit rate delta against baseline")
	cmd.Flags().Float64Var(&sharpe, "delta-sharpe", 0, "sharpe delta against baseline")
	return cmd
}

func (r *runner) samplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "samples ASSET COUNT",
		Short: "Add live samples to a model in WARMUP",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("count must be an integer: %w", err)
			}
			return r.exec(cmd.Context(), http.MethodPost, "/api/lifecycle/samples/increment", nil,
				map[string]any{"asset": args[0], "count": n})
		},
	}
}

func (r *runner) integrityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integrity ASSET",
		Short: "Run the integrity guard and persist its fixes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.exec(cmd.Context(), http.MethodPost, "/api/lifecycle/integrity/check", nil,
				map[string]any{"asset": args[0]})
		},
	}
}

func (r *runner) promotionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promotion ASSET",
		Short: "Evaluate promotion and promote when eligible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.exec(cmd.Context(), http.MethodPost, "/api/lifecycle/check-promotion", nil,
				map[string]any{"asset": args[0]})
		},
	}
}

// SPDX-License-Identifier: MIT

// Command fractalctl drives a running fractald over its HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/fractal/internal/version"
)

const defaultAddr = "http://localhost:8088"

type options struct {
	addr    string
	timeout time.Duration
}

func main() {
	if err := newRootCmd(os.Stdout, http.DefaultClient).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer, hc *http.Client) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "fractalctl",
		Short:        "Operate the model lifecycle service",
		Version:      version.String(),
		SilenceUsage: true,
	}
	root.SetOut(out)

	addr := os.Getenv("FRACTALCTL_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "fractald base URL (env FRACTALCTL_ADDR)")
	// Runs are bounded server-side; the default leaves room for a full timeout.
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 90*time.Second, "request timeout")

	r := &runner{opts: opts, out: out, hc: hc}
	root.AddCommand(
		r.stateCmd(),
		r.statusCmd(),
		r.eventsCmd(),
		r.initCmd(),
		r.actionCmd(),
		r.constitutionCmd(),
		r.driftCmd(),
		r.samplesCmd(),
		r.integrityCmd(),
		r.promotionCmd(),
		r.runCmd(),
		r.historyCmd(),
		r.timelineCmd(),
		r.snapshotCmd(),
		r.alertsCmd(),
	)
	return root
}

type runner struct {
	opts *options
	out  io.Writer
	hc   *http.Client
}

// exec performs the request and prints whatever data came back, including
// partial data on failure.
func (r *runner) exec(ctx context.Context, method, path string, query url.Values, body any) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	data, err := newAPIClient(r.opts.addr, r.hc).call(ctx, method, path, query, body)
	if len(data) > 0 && string(data) != "null" {
		var pretty bytes.Buffer
		if json.Indent(&pretty, data, "", "  ") == nil {
			_, _ = fmt.Fprintln(r.out, pretty.String())
		}
	}
	return err
}

func limitQuery(q url.Values, limit int) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

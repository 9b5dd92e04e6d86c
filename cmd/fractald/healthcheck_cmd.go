package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

func runHealthcheckCLI(args []string) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	mode := fs.String("mode", "ready", "healthcheck mode: ready (default) or live")
	addr := fs.String("addr", "localhost:8088", "API address to check")
	timeout := fs.Duration("timeout", 5*time.Second, "check timeout")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	code, err := probe(&http.Client{Timeout: *timeout}, "http://"+*addr+probePath(*mode))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Healthcheck failed (network): %v\n", err)
		return 1
	}
	if code != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Healthcheck failed (status): %d\n", code)
		return 1
	}

	fmt.Printf("Healthcheck successful (%s)\n", *mode)
	return 0
}

func probePath(mode string) string {
	if mode == "live" {
		return "/healthz"
	}
	return "/readyz"
}

func probe(client *http.Client, url string) (int, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

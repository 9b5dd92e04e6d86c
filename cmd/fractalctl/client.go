// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// errRefused marks a request the service answered with ok=false, such as
// a blocked force-apply.
var errRefused = errors.New("refused")

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, hc *http.Client) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: hc}
}

// call sends one request and returns the envelope's data. A non-2xx status
// or ok=false is an error; the data is still returned so callers can show
// partial results.
func (c *apiClient) call(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(buf)
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: HTTP %d: unexpected body: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	switch {
	case resp.StatusCode >= 300:
		return env.Data, fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, env.Error)
	case !env.OK:
		return env.Data, fmt.Errorf("%w: %s", errRefused, env.Error)
	}
	return env.Data, nil
}

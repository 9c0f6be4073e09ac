// Package http_request provides the 'http_request' source kind: a cell
// that performs one HTTP request per recomputation and exposes the status
// code and body as its value.
//
// A request cell can name other cells in refresh_on; it then re-fetches
// whenever any of them produces a new value, which is how a notebook polls
// an endpoint off a ticker cell.
package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/notebook"
	"github.com/vk/cellgridgo/internal/registry"
)

// Module implements the registry.Source interface for this package.
type Module struct {
	// Client overrides the HTTP client, for tests. Nil means a default
	// client with the cell's timeout.
	Client *http.Client
}

// input defines the attributes of an http_request cell.
type input struct {
	URL       string `hcl:"url"`
	Method    string `hcl:"method,optional"`
	TimeoutMS int64  `hcl:"timeout_ms,optional"`

	// RefreshOn lists cell names whose new values re-trigger the request.
	RefreshOn []string `hcl:"refresh_on,optional"`
}

// Kind returns the source kind this module compiles.
func (m *Module) Kind() string { return "http_request" }

// Compile builds a definition performing the configured request. The
// response is a map with "status_code" and "body" keys.
func (m *Module) Compile(_ context.Context, c *notebook.Cell) (cell.Definition, error) {
	in := &input{Method: http.MethodGet, TimeoutMS: 10_000}
	if diags := gohcl.DecodeBody(c.Remain, nil, in); diags.HasErrors() {
		return cell.Definition{}, fmt.Errorf("cell %q: %w", c.Name, diags)
	}
	if in.URL == "" {
		return cell.Definition{}, fmt.Errorf("cell %q: url must not be empty", c.Name)
	}

	client := m.Client
	if client == nil {
		client = &http.Client{Timeout: time.Duration(in.TimeoutMS) * time.Millisecond}
	}
	method := in.Method
	url := in.URL

	compute := func(ctx context.Context, _ map[string]any) (cell.Result, error) {
		logger := ctxlog.FromContext(ctx)
		logger.Debug("Making HTTP request.", "method", method, "url", url)

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		logger.Debug("Received HTTP response.", "status", resp.Status)

		return cell.Of(map[string]any{
			"status_code": resp.StatusCode,
			"body":        string(bodyBytes),
		}), nil
	}

	return cell.Definition{
		Inputs:  in.RefreshOn,
		Output:  c.Name,
		Compute: compute,
		Flags:   cell.Flags{Autodisplay: c.Display()},
	}, nil
}

var _ registry.Source = (*Module)(nil)

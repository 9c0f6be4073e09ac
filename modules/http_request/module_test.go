package http_request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/require"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/notebook"
)

func requestCell(t *testing.T, body string) *notebook.Cell {
	t.Helper()
	f, diags := hclsyntax.ParseConfig([]byte(body), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), "failed to parse test body: %s", diags)
	return &notebook.Cell{Name: "resp", Source: "http_request", Remain: f.Body}
}

func TestCompile_PerformsRequest(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	t.Cleanup(srv.Close)

	m := &Module{}
	def, err := m.Compile(context.Background(), requestCell(t, `url = "`+srv.URL+`"`))
	require.NoError(t, err)

	// --- Act ---
	res, err := def.Compute(context.Background(), nil)

	// --- Assert ---
	require.NoError(t, err)
	value := res.(cell.Single).Value.(map[string]any)
	require.Equal(t, http.StatusTeapot, value["status_code"])
	require.Equal(t, "short and stout", value["body"])
	require.Equal(t, int64(1), hits.Load())
}

func TestCompile_RefreshOnBecomesInputs(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := &Module{}

	// --- Act ---
	def, err := m.Compile(context.Background(), requestCell(t, `
		url        = "http://localhost/ignored"
		refresh_on = ["tick", "config"]
	`))

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, []string{"tick", "config"}, def.Inputs)
	require.Equal(t, "resp", def.Output)
}

func TestCompile_RequiresURL(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := &Module{}

	// --- Act ---
	_, err := m.Compile(context.Background(), requestCell(t, `url = ""`))

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "url must not be empty")
}

func TestCompile_RequestErrorSurfaces(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // the request will be refused

	m := &Module{}
	def, err := m.Compile(context.Background(), requestCell(t, `url = "`+srv.URL+`"`))
	require.NoError(t, err)

	// --- Act ---
	_, err = def.Compute(context.Background(), nil)

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to execute request")
}

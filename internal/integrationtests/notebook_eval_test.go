package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/cellgridgo/internal/testutil"
)

func TestNotebook_EvaluatesExpressionChain(t *testing.T) {
	t.Parallel()

	notebookHCL := `
		cell "radius" {
			expr = 5
		}

		cell "area" {
			expr = 3.14159 * radius * radius
		}
	`
	result := testutil.RunNotebook(t, map[string]string{"main.hcl": notebookHCL})

	require.NoError(t, result.Err)
	require.Contains(t, result.DisplayOutput, "radius = 5")
	require.Contains(t, result.DisplayOutput, "area = 78.5397")
}

func TestNotebook_CellsMayBeDefinedInAnyOrder(t *testing.T) {
	t.Parallel()

	// The dependent appears before its dependency, in a different file.
	files := map[string]string{
		"a_late.hcl": `
			cell "doubled" {
				expr = base * 2
			}
		`,
		"z_base.hcl": `
			cell "base" {
				expr = 21
			}
		`,
	}
	result := testutil.RunNotebook(t, files)

	require.NoError(t, result.Err)
	require.Contains(t, result.DisplayOutput, "doubled = 42")
}

func TestNotebook_AutodisplayFalseSuppressesOutput(t *testing.T) {
	t.Parallel()

	notebookHCL := `
		cell "hidden" {
			expr        = 7
			autodisplay = false
		}

		cell "shown" {
			expr = hidden + 1
		}
	`
	result := testutil.RunNotebook(t, map[string]string{"main.hcl": notebookHCL})

	require.NoError(t, result.Err)
	require.Contains(t, result.DisplayOutput, "shown = 8")
	require.NotContains(t, result.DisplayOutput, "hidden =")
}

func TestNotebook_MissingDependencyRendersRejection(t *testing.T) {
	t.Parallel()

	notebookHCL := `
		cell "orphan" {
			expr = ghost + 1
		}
	`
	result := testutil.RunNotebook(t, map[string]string{"main.hcl": notebookHCL})

	require.NoError(t, result.Err)
	require.Contains(t, result.DisplayOutput, "orphan !")
	require.Contains(t, result.DisplayOutput, "ghost")
}

func TestNotebook_DuplicateCellNameFailsTheRun(t *testing.T) {
	t.Parallel()

	notebookHCL := `
		cell "twice" {
			expr = 1
		}

		cell "twice" {
			expr = 2
		}
	`
	result := testutil.RunNotebook(t, map[string]string{"main.hcl": notebookHCL})

	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(), "already defined")
}

func TestNotebook_SelfReferenceFailsTheRun(t *testing.T) {
	t.Parallel()

	notebookHCL := `
		cell "loop" {
			expr = loop + 1
		}
	`
	result := testutil.RunNotebook(t, map[string]string{"main.hcl": notebookHCL})

	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(), "cyclic definition")
}

func TestNotebook_InvalidHCLFailsStartup(t *testing.T) {
	t.Parallel()

	result := testutil.RunNotebook(t, map[string]string{"main.hcl": `cell "a" { expr = `})

	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(), "application startup panicked")
}

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/variable"
)

func TestScheduler_DiamondComputesOnce(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// a feeds b and c, which both feed d. One change to a must recompute
	// d exactly once, not once per path.
	m := New(context.Background())
	var dRuns atomic.Int64

	_, err := m.Define(constCell("a", 1))
	require.NoError(t, err)
	_, err = m.Define(sumCell("b", 0, "a"))
	require.NoError(t, err)
	_, err = m.Define(sumCell("c", 0, "a"))
	require.NoError(t, err)
	d, err := m.Define(cell.Definition{
		Output: "d",
		Inputs: []string{"b", "c"},
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			dRuns.Add(1)
			return cell.Of(in["b"].(int) + in["c"].(int)), nil
		},
	})
	require.NoError(t, err)
	waitIdle(t, m)
	before := dRuns.Load()

	// --- Act ---
	_, err = m.Redefine(constCell("a", 10))
	require.NoError(t, err)
	waitIdle(t, m)

	// --- Assert ---
	require.Equal(t, before+1, dRuns.Load(), "d must recompute exactly once per pass")
	require.Equal(t, 20, d.Value())
}

func TestScheduler_RepeatedInputCountsOnce(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A cell naming the same input twice must still unblock; a naive
	// in-degree count would wait for two settlements of a.
	m := New(context.Background())
	_, err := m.Define(constCell("a", 5))
	require.NoError(t, err)
	b, err := m.Define(sumCell("b", 0, "a", "a"))
	require.NoError(t, err)

	// --- Act ---
	waitIdle(t, m)

	// --- Assert ---
	require.Equal(t, variable.Fulfilled, b.State())
	require.Equal(t, 10, b.Value())
}

func TestScheduler_IndependentBranchesRunConcurrently(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// b and c both depend on a but not on each other. If the pass ran them
	// sequentially the two sleeps would sum.
	m := New(context.Background())
	const nap = 150 * time.Millisecond

	sleepy := func(name string) cell.Definition {
		return cell.Definition{
			Output: name,
			Inputs: []string{"a"},
			Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
				time.Sleep(nap)
				return cell.Of(in["a"]), nil
			},
		}
	}

	_, err := m.Define(constCell("a", 1))
	require.NoError(t, err)
	_, err = m.Define(sleepy("b"))
	require.NoError(t, err)
	_, err = m.Define(sleepy("c"))
	require.NoError(t, err)
	waitIdle(t, m)

	// --- Act ---
	start := time.Now()
	_, err = m.Redefine(constCell("a", 2))
	require.NoError(t, err)
	waitIdle(t, m)
	elapsed := time.Since(start)

	// --- Assert ---
	require.Less(t, elapsed, 2*nap, "independent dependents must overlap")
}

func TestScheduler_SlowCellDoesNotBlockUnrelatedWork(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A cell whose compute hangs must not hold up variables defined later
	// that do not depend on it.
	m := New(context.Background())
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	slow, err := m.Define(cell.Definition{
		Output: "slow",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			started <- struct{}{}
			<-release
			return cell.Of(1), nil
		},
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow compute never started")
	}

	// --- Act ---
	fast, err := m.Define(constCell("fast", 2))
	require.NoError(t, err)

	// --- Assert ---
	require.Eventually(t, func() bool {
		return fast.State() == variable.Fulfilled
	}, 5*time.Second, 5*time.Millisecond, "an unrelated cell must settle while a slow one is in flight")
	require.Equal(t, 2, fast.Value())
	require.Equal(t, variable.Pending, slow.State())

	close(release)
	waitIdle(t, m)
	require.Equal(t, 1, slow.Value())
}

func TestScheduler_LateDependentWaitsForInFlightInput(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A dependent defined while its input is still computing must wait for
	// that computation instead of reading the unsettled input.
	m := New(context.Background())
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	_, err := m.Define(cell.Definition{
		Output: "slow",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			started <- struct{}{}
			<-release
			return cell.Of(1), nil
		},
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow compute never started")
	}

	b, err := m.Define(sumCell("b", 1, "slow"))
	require.NoError(t, err)
	var rejections []error
	b.Observe(&variable.Funcs{
		OnRejected: func(err error) { rejections = append(rejections, err) },
	})

	// --- Act ---
	close(release)
	waitIdle(t, m)

	// --- Assert ---
	require.Equal(t, variable.Fulfilled, b.State())
	require.Equal(t, 2, b.Value())
	require.Empty(t, rejections, "b must never observe its input mid-computation")
}

func TestScheduler_DependencyOrderWithinPass(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// In the chain a -> b -> c, c must always observe b's value for the
	// same pass, never a stale one.
	m := New(context.Background())
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	tracked := func(name string, input string) cell.Definition {
		return cell.Definition{
			Output: name,
			Inputs: []string{input},
			Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
				record(name)
				return cell.Of(in[input].(int) + 1), nil
			},
		}
	}

	_, err := m.Define(constCell("a", 0))
	require.NoError(t, err)
	_, err = m.Define(tracked("b", "a"))
	require.NoError(t, err)
	c, err := m.Define(tracked("c", "b"))
	require.NoError(t, err)
	waitIdle(t, m)

	mu.Lock()
	order = nil
	mu.Unlock()

	// --- Act ---
	_, err = m.Redefine(constCell("a", 10))
	require.NoError(t, err)
	waitIdle(t, m)

	// --- Assert ---
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"b", "c"}, order)
	require.Equal(t, 12, c.Value())
}

func TestScheduler_StaleComputationDiscarded(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The first definition of a blocks mid-compute; while it is blocked, a
	// redefinition supersedes it. The blocked result must be discarded.
	m := New(context.Background())
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	a, err := m.Define(cell.Definition{
		Output: "a",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			started <- struct{}{}
			<-release
			return cell.Of("stale"), nil
		},
	})
	require.NoError(t, err)

	var fulfilled []any
	a.Observe(&variable.Funcs{
		OnFulfilled: func(value any) { fulfilled = append(fulfilled, value) },
	})

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first compute never started")
	}

	// --- Act ---
	_, err = m.Redefine(constCell("a", "fresh"))
	require.NoError(t, err)
	close(release)
	waitIdle(t, m)

	// --- Assert ---
	require.Equal(t, "fresh", a.Value())
	require.NotContains(t, fulfilled, "stale", "the superseded result must never be observed")
}

func TestScheduler_ComputeErrorPropagatesAsRejection(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := New(context.Background())
	boom := errors.New("boom")

	_, err := m.Define(cell.Definition{
		Output: "a",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			return nil, boom
		},
	})
	require.NoError(t, err)
	b, err := m.Define(sumCell("b", 0, "a"))
	require.NoError(t, err)
	c, err := m.Define(sumCell("c", 0, "b"))
	require.NoError(t, err)

	// --- Act ---
	waitIdle(t, m)

	// --- Assert ---
	// The rejection chain unwraps all the way to the origin failure.
	require.Equal(t, variable.Rejected, c.State())
	require.ErrorIs(t, c.Err(), boom)

	var depErr *DependencyError
	require.ErrorAs(t, c.Err(), &depErr)
	require.Equal(t, "b", depErr.Input)

	var computeErr *ComputeError
	require.ErrorAs(t, b.Err(), &computeErr)
	require.Equal(t, "a", computeErr.Cell)
}

func TestScheduler_PanicBecomesComputeError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := New(context.Background())
	a, err := m.Define(cell.Definition{
		Output: "a",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			panic("kaboom")
		},
	})
	require.NoError(t, err)

	// --- Act ---
	waitIdle(t, m)

	// --- Assert ---
	require.Equal(t, variable.Rejected, a.State())
	var computeErr *ComputeError
	require.ErrorAs(t, a.Err(), &computeErr)
	require.Contains(t, computeErr.Error(), "kaboom")
}

func TestScheduler_StreamEmissionsRetriggerDependents(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := New(context.Background())
	ch := make(chan any)

	_, err := m.Define(cell.Definition{
		Output: "ticks",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			return cell.StreamOf(ch), nil
		},
	})
	require.NoError(t, err)
	doubled, err := m.Define(cell.Definition{
		Output: "doubled",
		Inputs: []string{"ticks"},
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			return cell.Of(in["ticks"].(int) * 2), nil
		},
	})
	require.NoError(t, err)

	// --- Act ---
	for _, n := range []int{1, 2, 3} {
		ch <- n
	}
	close(ch)

	// --- Assert ---
	// The module is idle between emissions, so wait on the final value
	// instead of on quiescence.
	require.Eventually(t, func() bool {
		return doubled.Value() == 6
	}, 5*time.Second, 5*time.Millisecond)
}

func TestScheduler_EmptyStreamRejects(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := New(context.Background())
	ch := make(chan any)
	close(ch)

	a, err := m.Define(cell.Definition{
		Output: "a",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			return cell.StreamOf(ch), nil
		},
	})
	require.NoError(t, err)

	// --- Act ---
	waitIdle(t, m)

	// --- Assert ---
	require.Equal(t, variable.Rejected, a.State())
	require.ErrorIs(t, a.Err(), ErrEmptyStream)
}

func TestScheduler_StalePumpStops(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A redefinition must cut the old stream off: its later emissions may
	// never surface as values.
	m := New(context.Background())
	ch := make(chan any, 8)
	ch <- "old-1"

	a, err := m.Define(cell.Definition{
		Output: "a",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			return cell.StreamOf(ch), nil
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return a.Value() == "old-1"
	}, 5*time.Second, 5*time.Millisecond)

	// --- Act ---
	_, err = m.Redefine(constCell("a", "replaced"))
	require.NoError(t, err)
	waitIdle(t, m)
	ch <- "old-2"
	close(ch)

	// --- Assert ---
	require.Equal(t, "replaced", a.Value())
	// Give a buggy pump a moment to misbehave before checking again.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, "replaced", a.Value(), "emissions of a superseded stream must be dropped")
}

func TestScheduler_WaitSettledOutlivesStreams(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// WaitIdle is satisfied between emissions; WaitSettled must hold out
	// until the stream pump is gone.
	m := New(context.Background())
	ch := make(chan any, 1)
	ch <- 1

	a, err := m.Define(cell.Definition{
		Output: "a",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			return cell.StreamOf(ch), nil
		},
	})
	require.NoError(t, err)
	waitIdle(t, m)
	require.Equal(t, 1, a.Value())
	require.Equal(t, 1, m.LiveCount())

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.WaitSettled(shortCtx), context.DeadlineExceeded)

	// --- Act ---
	close(ch)

	// --- Assert ---
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, m.WaitSettled(ctx))
	require.Zero(t, m.LiveCount())
}

func TestScheduler_FullEditingSession(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := New(context.Background())

	// --- Act / Assert ---
	// A small editing session: define, redefine, fail, delete.
	_, err := m.Define(constCell("a", 1))
	require.NoError(t, err)
	b, err := m.Define(sumCell("b", 1, "a"))
	require.NoError(t, err)
	waitIdle(t, m)
	require.Equal(t, 2, b.Value())

	_, err = m.Redefine(constCell("a", 5))
	require.NoError(t, err)
	waitIdle(t, m)
	require.Equal(t, 6, b.Value())

	boom := errors.New("a is broken")
	_, err = m.Redefine(cell.Definition{
		Output: "a",
		Compute: func(ctx context.Context, in map[string]any) (cell.Result, error) {
			return nil, boom
		},
	})
	require.NoError(t, err)
	waitIdle(t, m)
	require.Equal(t, variable.Rejected, b.State())
	require.ErrorIs(t, b.Err(), boom)

	require.NoError(t, m.Delete("a"))
	waitIdle(t, m)
	require.Equal(t, variable.Rejected, b.State())
	require.ErrorIs(t, b.Err(), ErrNotDefined)

	_, err = m.Define(sumCell("c", 0, "c"))
	var cycErr *CyclicDefinitionError
	require.ErrorAs(t, err, &cycErr)
}

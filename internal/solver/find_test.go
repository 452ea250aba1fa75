package solver

import (
	"errors"
	"testing"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/runtime"
)

// tuneConfig is a one-knob config with domain [1..4].
type tuneConfig struct{ V int }

func (c *tuneConfig) Visit(f func(val *int, name string)) { f(&c.V, "v") }
func (c *tuneConfig) IsValidValue() bool                  { return c.V >= 1 && c.V <= 4 }
func (c *tuneConfig) SetNextValue() bool {
	c.V++
	return c.V <= 4
}

// fakeSearchable stamps the config value into the solution's InTile0 so
// tests can tell which config built it.
type fakeSearchable struct {
	solverBase
	rejectLoaded bool
	searchErr    error
}

func (fakeSearchable) DbID() string { return "fakeSearchable" }

func (s fakeSearchable) Solve(ctx *Context) Solution {
	return s.SolveWith(ctx, s.PerformanceConfig(ctx))
}

func (fakeSearchable) NewConfig() PerfConfig                 { return &tuneConfig{} }
func (fakeSearchable) PerformanceConfig(*Context) PerfConfig { return &tuneConfig{V: 1} }

func (s fakeSearchable) IsValidPerformanceConfig(ctx *Context, pc PerfConfig) bool {
	c, ok := pc.(*tuneConfig)
	return ok && c.IsValidValue() && !s.rejectLoaded
}

func (s fakeSearchable) Search(ctx *Context, h runtime.Handle) (PerfConfig, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return &tuneConfig{V: 2}, nil
}

func (fakeSearchable) SolveWith(ctx *Context, pc PerfConfig) Solution {
	c := pc.(*tuneConfig)
	sol := NewSolution(StatusSuccess)
	sol.InTile0 = c.V
	sol.ConstructionParams = []KernelInfo{{KernelName: "fake"}}
	return sol
}

func findCtx(search bool) *Context {
	ctx := timedCtx()
	ctx.DoSearch = search
	return ctx
}

func TestFindSolutionUsesPersistedConfig(t *testing.T) {
	t.Parallel()

	db := testDb(t)
	if err := db.Update(findCtx(false).Key(), "fakeSearchable", &tuneConfig{V: 3}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	sol := FindSolution(fakeSearchable{}, findCtx(false), db, &scriptHandle{}, logger.Discard())
	if !sol.Succeeded() || sol.InTile0 != 3 {
		t.Fatalf("got tile %d, want persisted 3", sol.InTile0)
	}
}

func TestFindSolutionRejectsInvalidPersistedConfig(t *testing.T) {
	t.Parallel()

	db := testDb(t)
	if err := db.Update(findCtx(false).Key(), "fakeSearchable", &tuneConfig{V: 3}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	sol := FindSolution(fakeSearchable{rejectLoaded: true}, findCtx(false), db, &scriptHandle{}, logger.Discard())
	if sol.InTile0 != 1 {
		t.Fatalf("got tile %d, want default 1", sol.InTile0)
	}
}

func TestFindSolutionSearchStoresResult(t *testing.T) {
	t.Parallel()

	db := testDb(t)
	ctx := findCtx(true)

	sol := FindSolution(fakeSearchable{}, ctx, db, &scriptHandle{}, logger.Discard())
	if sol.InTile0 != 2 {
		t.Fatalf("got tile %d, want searched 2", sol.InTile0)
	}

	var stored tuneConfig
	loaded, err := db.Load(ctx.Key(), "fakeSearchable", &stored)
	if err != nil || !loaded {
		t.Fatalf("Load: loaded=%v err=%v", loaded, err)
	}
	if stored.V != 2 {
		t.Fatalf("stored config: got %d want 2", stored.V)
	}
}

func TestFindSolutionSearchFailureFallsBackToDefault(t *testing.T) {
	t.Parallel()

	db := testDb(t)
	ctx := findCtx(true)

	s := fakeSearchable{searchErr: errors.New("device lost")}
	sol := FindSolution(s, ctx, db, &scriptHandle{}, logger.Discard())
	if sol.InTile0 != 1 {
		t.Fatalf("got tile %d, want default 1", sol.InTile0)
	}
	var stored tuneConfig
	loaded, err := db.Load(ctx.Key(), "fakeSearchable", &stored)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded {
		t.Fatalf("failed search persisted a config")
	}
}

func TestFindSolutionDefaultWithoutSearch(t *testing.T) {
	t.Parallel()

	db := testDb(t)
	sol := FindSolution(fakeSearchable{}, findCtx(false), db, &scriptHandle{}, logger.Discard())
	if sol.InTile0 != 1 {
		t.Fatalf("got tile %d, want default 1", sol.InTile0)
	}
}

func TestFindSolutionFixedSolverSolvesDirectly(t *testing.T) {
	t.Parallel()

	db := testDb(t)
	sol := FindSolution(fakeTimed{kernel: "plain"}, findCtx(true), db, &scriptHandle{}, logger.Discard())
	if !sol.Succeeded() || entryKernel(t, sol) != "plain" {
		t.Fatalf("fixed solver did not solve directly: %+v", sol)
	}
}

// tunedMeasurable pairs fakeSearchable with timings that depend on the
// config, so the sweep has a well-defined winner.
type tunedMeasurable struct {
	fakeSearchable
	times map[int]float64
}

func (m tunedMeasurable) RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
	ctx *Context, sol *Solution) (float64, int) {
	if t, ok := m.times[sol.InTile0]; ok {
		return t, 0
	}
	return 0, -1
}

func TestGenericSearchPicksFastestValidConfig(t *testing.T) {
	t.Parallel()

	m := tunedMeasurable{times: map[int]float64{1: 9, 2: 4, 3: 1, 4: 6}}
	h := &scriptHandle{}

	best, err := genericSearch(m, m, timedCtx(), h, &tuneConfig{V: 1})
	if err != nil {
		t.Fatalf("genericSearch: %v", err)
	}
	if got := best.(*tuneConfig).V; got != 3 {
		t.Fatalf("best config: got %d want 3", got)
	}
	if h.ProfilingEnabled() {
		t.Fatalf("profiling left enabled")
	}
}

func TestGenericSearchSkipsUnmeasurableCandidates(t *testing.T) {
	t.Parallel()

	m := tunedMeasurable{times: map[int]float64{4: 7}}
	best, err := genericSearch(m, m, timedCtx(), &scriptHandle{}, &tuneConfig{V: 1})
	if err != nil {
		t.Fatalf("genericSearch: %v", err)
	}
	if got := best.(*tuneConfig).V; got != 4 {
		t.Fatalf("best config: got %d want 4", got)
	}
}

func TestGenericSearchReportsNoViableConfig(t *testing.T) {
	t.Parallel()

	m := tunedMeasurable{times: map[int]float64{}}
	if _, err := genericSearch(m, m, timedCtx(), &scriptHandle{}, &tuneConfig{V: 1}); !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("expected ErrSearchFailed, got %v", err)
	}
}

func TestGenericSearchSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	m := tunedMeasurable{times: map[int]float64{2: 1}}
	start := &tuneConfig{V: 1}
	best, err := genericSearch(m, m, timedCtx(), &scriptHandle{}, start)
	if err != nil {
		t.Fatalf("genericSearch: %v", err)
	}
	if best == PerfConfig(start) {
		t.Fatalf("best aliases the sweeping config")
	}
	if best.(*tuneConfig).V != 2 {
		t.Fatalf("snapshot drifted: got %d", best.(*tuneConfig).V)
	}
}

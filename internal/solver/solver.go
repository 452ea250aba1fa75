package solver

import (
	"reflect"
	"strings"
	"sync"

	"github.com/samcharles93/convtune/internal/fields"
	"github.com/samcharles93/convtune/internal/runtime"
)

// Solver is a stateless strategy that, given a problem context, produces
// a kernel build plan. Solvers are instantiated as zero-sized values held
// in static catalogs and must carry no mutable state.
type Solver interface {
	// IsApplicable reports whether the solver can correctly solve the
	// problem. A solver that says yes agrees to produce a valid solution.
	IsApplicable(ctx *Context) bool
	// IsFast reports false when the solver is known to be slower than
	// some other solver for this problem. Heuristic only.
	IsFast(ctx *Context) bool
	// Solve builds the solution using the solver's default tuning.
	Solve(ctx *Context) Solution
}

// PerfConfig is a solver-specific tuple of tuning knobs. Configs encode
// through the fields codec and enumerate their whole value space via
// SetNextValue.
type PerfConfig interface {
	fields.Visitable
	// IsValidValue reports whether every field lies in its declared
	// domain, independent of any problem.
	IsValidValue() bool
	// SetNextValue advances to the next tuple of the deterministic sweep,
	// reporting false once past the last one.
	SetNextValue() bool
}

// Searchable is implemented by solvers with a tunable performance config.
type Searchable interface {
	Solver
	// NewConfig returns a fresh zero config to decode persisted values
	// into.
	NewConfig() PerfConfig
	// PerformanceConfig returns a valid default config for the problem.
	// May apply heuristics but never runs kernels.
	PerformanceConfig(ctx *Context) PerfConfig
	// IsValidPerformanceConfig revalidates a config loaded from the perf
	// database against the problem.
	IsValidPerformanceConfig(ctx *Context, pc PerfConfig) bool
	// Search exhaustively tunes the config for the problem. Expensive.
	Search(ctx *Context, h runtime.Handle) (PerfConfig, error)
	// SolveWith builds the solution for an explicit config.
	SolveWith(ctx *Context, pc PerfConfig) Solution
}

// Measurable is implemented by solvers that support on-device timing.
type Measurable interface {
	// RunAndMeasure launches the solution's kernels on the profiling
	// handle and returns the elapsed time in milliseconds. The status
	// code follows the legacy convention: 0 success, -2 timing not
	// implemented, anything else a failure.
	RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
		ctx *Context, sol *Solution) (elapsedMS float64, rc int)
}

// rcNotImplemented is the status code a non-measurable solver reports.
const rcNotImplemented = -2

// DbIDOverrider pins a solver's database id to a fixed string. Overriding
// is the only way to rename a solver type without corrupting persisted
// records.
type DbIDOverrider interface {
	DbID() string
}

var dbIDCache sync.Map // reflect.Type -> string

// DbID returns the stable string identifying s in the perf database. By
// default it is the last dot-delimited component of the solver's type
// name, memoized per type.
func DbID(s Solver) string {
	if o, ok := s.(DbIDOverrider); ok {
		return o.DbID()
	}
	t := reflect.TypeOf(s)
	if cached, ok := dbIDCache.Load(t); ok {
		return cached.(string)
	}
	name := t.String()
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	dbIDCache.Store(t, name)
	return name
}

// solverBase supplies the catalog-wide defaults: applicable and fast
// unless a solver says otherwise. Embedded by every concrete solver.
type solverBase struct{}

func (solverBase) IsApplicable(*Context) bool { return true }
func (solverBase) IsFast(*Context) bool       { return true }

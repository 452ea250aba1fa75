package solver

import (
	"github.com/samcharles93/convtune/internal/envcfg"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/runtime"
)

// FindSolution resolves the performance config for one solver and builds
// its solution. Searchable solvers consult the perf database, run an
// exhaustive search when requested, and otherwise fall back to the
// default config; fixed solvers build directly. Could take long if a
// search is performed. May read and write the perf database.
func FindSolution(s Solver, ctx *Context, db *perfdb.DB, h runtime.Handle, log logger.Logger) Solution {
	id := DbID(s)
	log = log.With("solver", id)

	ss, ok := s.(Searchable)
	if !ok {
		log.Debug("not searchable")
		return s.Solve(ctx)
	}

	enforce := envcfg.Enforce()
	if enforce.IsDbClean() {
		removed, err := db.Remove(ctx.Key(), id)
		if err != nil {
			log.Error("perf db: remove failed", "error", err)
		} else if removed {
			log.Warn("perf db: record removed", "enforce", enforce)
		}
		return ss.SolveWith(ctx, ss.PerformanceConfig(ctx))
	}

	if enforce.IsSkipLoad() {
		log.Warn("perf db: load skipped", "enforce", enforce)
	} else {
		config := ss.NewConfig()
		loaded, err := db.Load(ctx.Key(), id, config)
		if err != nil {
			log.Error("perf db: load failed", "error", err)
		} else if loaded {
			log.Debug("perf db: record loaded")
			if ss.IsValidPerformanceConfig(ctx, config) {
				return ss.SolveWith(ctx, config)
			}
			log.Error("invalid config loaded from perf db")
		}
	}

	if ctx.DoSearch || enforce.IsSearch() {
		log.Info("starting search", "enforce", enforce)
		config, err := ss.Search(ctx, h)
		if err != nil {
			log.Error("search failed", "error", err)
		} else {
			if err := db.Update(ctx.Key(), id, config); err != nil {
				log.Error("perf db: store failed", "error", err)
			}
			return ss.SolveWith(ctx, config)
		}
	}

	return ss.SolveWith(ctx, ss.PerformanceConfig(ctx))
}

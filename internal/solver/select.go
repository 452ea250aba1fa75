package solver

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/samcharles93/convtune/internal/envcfg"
	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/runtime"
)

// ErrSolverInternal flags a solver that reported success with an empty
// build plan.
var ErrSolverInternal = errors.New("solver: internal error")

// ErrNotAllApplicable is returned by SearchForAllSolutions outside its
// supported problem class.
var ErrNotAllApplicable = errors.New("solver: all-solutions search requires bwd-weights, stride <= 1")

// SearchForSolution picks one solution for the problem from the catalog.
//
// For backward-weights problems with unit stride every applicable
// candidate is measured on the profiling handle and the fastest wins; a
// solver that cannot be timed is kept only as a provisional pick until
// the first timed candidate appears, first in catalog order among its
// kind. For every other problem the first applicable solver that
// produces a succeeded solution wins, in catalog order.
func SearchForSolution(catalog []Solver, ctx *Context, db *perfdb.DB, h runtime.Handle, log logger.Logger) (Solution, error) {
	noPerfFiltering := envcfg.PerfFilteringDisabled()

	// Timed selection is restricted to the subsampling workaround class;
	// widening it needs the timing probe on every solver first.
	if ctx.Direction == BackwardWeights && ctx.KernelStride0 <= 1 {
		return searchTimed(catalog, ctx, db, h, log, noPerfFiltering)
	}
	return searchFirstHit(catalog, ctx, db, h, log, noPerfFiltering)
}

func searchFirstHit(catalog []Solver, ctx *Context, db *perfdb.DB, h runtime.Handle, log logger.Logger, noPerfFiltering bool) (Solution, error) {
	for _, s := range catalog {
		if !s.IsApplicable(ctx) || !(noPerfFiltering || s.IsFast(ctx)) {
			log.Debug("not applicable", "solver", DbID(s))
			continue
		}
		solution := FindSolution(s, ctx, db, h, log)
		if !solution.Succeeded() {
			continue
		}
		if len(solution.ConstructionParams) == 0 {
			return NewSolution(StatusInternalError), fmt.Errorf("%w: %s", ErrSolverInternal, DbID(s))
		}
		return solution, nil
	}
	return NewSolution(StatusUnknownError), nil
}

func searchTimed(catalog []Solver, ctx *Context, db *perfdb.DB, h runtime.Handle, log logger.Logger, noPerfFiltering bool) (Solution, error) {
	best := NewSolution(StatusUnknownError)
	bestTime := math.Inf(1)
	haveUntimed := false

	for _, s := range catalog {
		id := DbID(s)
		if !s.IsApplicable(ctx) || !(noPerfFiltering || s.IsFast(ctx)) {
			log.Debug("not applicable", "solver", id)
			continue
		}
		candidate := FindSolution(s, ctx, db, h, log)
		if !candidate.Succeeded() {
			continue
		}
		if len(candidate.ConstructionParams) == 0 {
			return NewSolution(StatusInternalError), fmt.Errorf("%w: %s", ErrSolverInternal, id)
		}

		elapsed, rc := measureCandidate(s, ctx, h, &candidate)
		switch rc {
		case 0:
			log.Debug("timing ok", "solver", id, "elapsed_ms", elapsed)
			if elapsed < bestTime {
				log.Info("new best", "solver", id, "elapsed_ms", elapsed, "previous_ms", bestTime)
				bestTime = elapsed
				best = candidate
			}
		case rcNotImplemented:
			log.Warn("timing not implemented", "solver", id)
			// Untimed solutions rank below every timed one; among
			// themselves the first constructed wins, matching the legacy
			// heuristic order.
			if !haveUntimed {
				haveUntimed = true
				if math.IsInf(bestTime, 1) {
					best = candidate
				}
			}
		default:
			log.Error("timing failed", "solver", id, "rc", rc)
		}
	}
	return best, nil
}

// measureCandidate materializes randomized measurement buffers on the
// profiling handle and asks the solver to time its solution.
func measureCandidate(s Solver, ctx *Context, h runtime.Handle, candidate *Solution) (float64, int) {
	m, ok := s.(Measurable)
	if !ok {
		return 0, rcNotImplemented
	}

	// Private source; measurement fills must not depend on global RNG
	// state.
	rng := rand.New(rand.NewSource(rand.Int63()))

	bot := make([]float32, ctx.BotSz/4)
	top := make([]float32, ctx.TopSz/4)
	wei := make([]float32, ctx.WeightsSz/4)
	bias := make([]float32, ctx.BiasSz/4)

	if ctx.Direction != Forward {
		fillRandom(rng, bot, 0, 1)
	}
	if ctx.Direction != BackwardData {
		fillRandom(rng, top, 0, 1)
	}
	if ctx.Direction != BackwardWeights {
		fillRandom(rng, wei, -0.5, 0.001)
	}
	if ctx.Bias {
		fillRandom(rng, bias, 0, 1)
	}

	botBuf := h.Write(bot)
	topBuf := h.Write(top)
	weiBuf := h.Write(wei)
	var biasBuf runtime.Buffer
	if ctx.Bias {
		biasBuf = h.Write(bias)
	}

	h.EnableProfiling(true)
	defer h.EnableProfiling(false)
	return m.RunAndMeasure(h, botBuf, topBuf, weiBuf, biasBuf, ctx, candidate)
}

// fillRandom fills vec with (U(0,1) + offset) * factor draws.
func fillRandom(rng *rand.Rand, vec []float32, offset, factor float64) {
	for i := range vec {
		vec[i] = float32((rng.Float64() + offset) * factor)
	}
}

// SearchForAllSolutions collects every succeeded solution in catalog
// order, without timing. Callers get a menu rather than a pick. Only
// supported for the same problem class as timed selection.
func SearchForAllSolutions(catalog []Solver, ctx *Context, db *perfdb.DB, h runtime.Handle, log logger.Logger) ([]Solution, error) {
	if !(ctx.Direction == BackwardWeights && ctx.KernelStride0 <= 1) {
		return nil, ErrNotAllApplicable
	}
	noPerfFiltering := envcfg.PerfFilteringDisabled()

	var solutions []Solution
	for _, s := range catalog {
		id := DbID(s)
		if !s.IsApplicable(ctx) || !(noPerfFiltering || s.IsFast(ctx)) {
			log.Debug("not applicable", "solver", id)
			continue
		}
		solution := FindSolution(s, ctx, db, h, log)
		if !solution.Succeeded() {
			continue
		}
		if len(solution.ConstructionParams) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrSolverInternal, id)
		}
		solutions = append(solutions, solution)
		log.Debug("success", "solver", id)
	}
	return solutions, nil
}

package solver

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/samcharles93/convtune/internal/fields"
	"github.com/samcharles93/convtune/internal/runtime"
)

// ErrSearchFailed is returned when an exhaustive search found no
// measurable candidate.
var ErrSearchFailed = errors.New("solver: search found no viable config")

// validator is the problem-dependent validity predicate every concrete
// performance config implements on top of PerfConfig.
type validator interface {
	IsValid(ctx *Context) bool
}

// genericSearch sweeps the solver's whole config space, measuring every
// candidate that is valid for the problem, and returns the fastest one.
// The sweep starts from the minimal tuple and visits each value exactly
// once; candidates whose timing fails are skipped.
func genericSearch(s Searchable, m Measurable, ctx *Context, h runtime.Handle, start PerfConfig) (PerfConfig, error) {
	rng := rand.New(rand.NewSource(rand.Int63()))

	bot := make([]float32, ctx.BotSz/4)
	top := make([]float32, ctx.TopSz/4)
	wei := make([]float32, ctx.WeightsSz/4)
	fillRandom(rng, bot, 0, 1)
	fillRandom(rng, top, 0, 1)
	fillRandom(rng, wei, -0.5, 0.001)

	botBuf := h.Write(bot)
	topBuf := h.Write(top)
	weiBuf := h.Write(wei)

	h.EnableProfiling(true)
	defer h.EnableProfiling(false)

	var best PerfConfig
	bestTime := math.Inf(1)
	tried := 0

	config := start
	for {
		if config.IsValidValue() {
			if v, ok := config.(validator); !ok || v.IsValid(ctx) {
				tried++
				sol := s.SolveWith(ctx, config)
				if sol.Succeeded() && len(sol.ConstructionParams) > 0 {
					elapsed, rc := m.RunAndMeasure(h, botBuf, topBuf, weiBuf, nil, ctx, &sol)
					if rc == 0 && elapsed < bestTime {
						bestTime = elapsed
						snapshot := s.NewConfig()
						fields.Decode(fields.Encode(config), snapshot)
						best = snapshot
					}
				}
			}
		}
		if !config.SetNextValue() {
			break
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w after %d candidates", ErrSearchFailed, tried)
	}
	return best, nil
}

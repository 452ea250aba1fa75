package solver

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/runtime"
)

// PerfConfigAsmBwdWrW3x3 tunes the 3x3 weight-gradient assembly kernel.
// Higher chunk and per-wave values increase register pressure; the
// validity predicates keep the tuple inside the shader's resource limits.
type PerfConfigAsmBwdWrW3x3 struct {
	LimitWaveCnt   int // [0..9]
	ReverseInout   int // [0..1], 1 allowed for stride 1x1 only
	ChunkSize      int // {8,16}
	KPerWave       int // {1,2,4,8}, chunk_size*k_per_wave <= 64
	PipeLinesDepth int // [1..16], <= img_h
	NPerGroup      int // [1..8], <= batch_size
}

func (c *PerfConfigAsmBwdWrW3x3) Visit(f func(val *int, name string)) {
	f(&c.LimitWaveCnt, "limit_wave_cnt")
	f(&c.ReverseInout, "reverse_inout")
	f(&c.ChunkSize, "chunk_size")
	f(&c.KPerWave, "k_per_wave")
	f(&c.PipeLinesDepth, "pipe_lines_depth")
	f(&c.NPerGroup, "n_per_group")
}

func (c *PerfConfigAsmBwdWrW3x3) IsValidValue() bool {
	return c.LimitWaveCnt >= 0 && c.LimitWaveCnt <= 9 &&
		(c.ReverseInout == 0 || c.ReverseInout == 1) &&
		(c.ChunkSize == 8 || c.ChunkSize == 16) &&
		isPow2InRange(c.KPerWave, 1, 8) &&
		c.ChunkSize*c.KPerWave <= 64 &&
		c.PipeLinesDepth >= 1 && c.PipeLinesDepth <= 16 &&
		c.NPerGroup >= 1 && c.NPerGroup <= 8
}

func (c *PerfConfigAsmBwdWrW3x3) SetNextValue() bool {
	if c.NPerGroup < 8 {
		c.NPerGroup++
		return true
	}
	c.NPerGroup = 1
	if c.PipeLinesDepth < 16 {
		c.PipeLinesDepth++
		return true
	}
	c.PipeLinesDepth = 1
	if c.KPerWave < 8 {
		c.KPerWave *= 2
		return true
	}
	c.KPerWave = 1
	if c.ChunkSize < 16 {
		c.ChunkSize = 16
		return true
	}
	c.ChunkSize = 8
	if c.ReverseInout < 1 {
		c.ReverseInout = 1
		return true
	}
	c.ReverseInout = 0
	if c.LimitWaveCnt < 9 {
		c.LimitWaveCnt++
		return true
	}
	return false
}

func (c *PerfConfigAsmBwdWrW3x3) IsValid(ctx *Context) bool {
	if !c.IsValidValue() {
		return false
	}
	if c.ReverseInout == 1 && (ctx.KernelStride0 != 1 || ctx.KernelStride1 != 1) {
		return false
	}
	return c.PipeLinesDepth <= ctx.InHeight && c.NPerGroup <= ctx.BatchSz
}

// ConvAsmBwdWrW3x3 computes 3x3 weight gradients in assembly.
type ConvAsmBwdWrW3x3 struct{ solverBase }

func (ConvAsmBwdWrW3x3) IsApplicable(ctx *Context) bool {
	return ctx.Direction == BackwardWeights &&
		ctx.KernelSizeH == 3 && ctx.KernelSizeW == 3 &&
		ctx.PadH == 1 && ctx.PadW == 1 &&
		ctx.KernelStride0 <= 2 && ctx.KernelStride1 <= 2
}

func (ConvAsmBwdWrW3x3) IsFast(ctx *Context) bool {
	return ctx.FwdC() >= 8
}

func (ConvAsmBwdWrW3x3) NewConfig() PerfConfig {
	return &PerfConfigAsmBwdWrW3x3{}
}

func (ConvAsmBwdWrW3x3) PerformanceConfig(ctx *Context) PerfConfig {
	config := &PerfConfigAsmBwdWrW3x3{
		LimitWaveCnt:   0,
		ReverseInout:   0,
		ChunkSize:      8,
		KPerWave:       1,
		PipeLinesDepth: min(2, ctx.InHeight),
		NPerGroup:      min(2, ctx.BatchSz),
	}
	if !config.IsValid(ctx) {
		config.PipeLinesDepth = 1
		config.NPerGroup = 1
	}
	return config
}

func (ConvAsmBwdWrW3x3) IsValidPerformanceConfig(ctx *Context, pc PerfConfig) bool {
	config, ok := pc.(*PerfConfigAsmBwdWrW3x3)
	return ok && config.IsValid(ctx)
}

func (s ConvAsmBwdWrW3x3) Search(ctx *Context, h runtime.Handle) (PerfConfig, error) {
	return genericSearch(s, s, ctx, h, &PerfConfigAsmBwdWrW3x3{
		LimitWaveCnt: 0, ReverseInout: 0, ChunkSize: 8,
		KPerWave: 1, PipeLinesDepth: 1, NPerGroup: 1,
	})
}

func (s ConvAsmBwdWrW3x3) Solve(ctx *Context) Solution {
	return s.SolveWith(ctx, s.PerformanceConfig(ctx))
}

func (s ConvAsmBwdWrW3x3) SolveWith(ctx *Context, pc PerfConfig) Solution {
	config, ok := pc.(*PerfConfigAsmBwdWrW3x3)
	if !ok || !config.IsValid(ctx) {
		return NewSolution(StatusUnknownError)
	}

	cPerWave := 64 / config.ChunkSize

	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName: "gcnAsmConv3x3WrW",
		KernelFile: "conv3x3wrw.s",
		CompOptions: fmt.Sprintf(
			"-Wa,-defsym,batch_size=%d -Wa,-defsym,img_h=%d -Wa,-defsym,img_w=%d "+
				"-Wa,-defsym,limit_wave_cnt=%d -Wa,-defsym,reverse_inout=%d "+
				"-Wa,-defsym,chunk_size=%d -Wa,-defsym,c_per_wave=%d -Wa,-defsym,k_per_wave=%d "+
				"-Wa,-defsym,pipe_lines_depth=%d -Wa,-defsym,n_per_group=%d",
			ctx.BatchSz, ctx.InHeight, ctx.InWidth,
			config.LimitWaveCnt, config.ReverseInout,
			config.ChunkSize, cPerWave, config.KPerWave,
			config.PipeLinesDepth, config.NPerGroup),
		LocalWk: []int{64 * config.NPerGroup, 1, 1},
		GlobalWk: []int{
			64 * config.NPerGroup,
			divCeil(ctx.FwdC(), cPerWave),
			divCeil(ctx.FwdK(), config.KPerWave),
		},
	}}
	return sol
}

func (ConvAsmBwdWrW3x3) RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
	ctx *Context, sol *Solution) (float64, int) {
	return runEntryKernel(h, sol, bot, top, wei)
}

func isPow2InRange(v, lo, hi int) bool {
	if v < lo || v > hi {
		return false
	}
	return v&(v-1) == 0
}

package solver

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/runtime"
)

// PerfConfigAsm3x3U tunes the 3x3 unit-stride assembly kernel.
type PerfConfigAsm3x3U struct {
	LimitWaveCnt    int // [0..9]
	FiltersPerWave  int // [1..8]
	OutputLinesWave int // [1..8]
}

func (c *PerfConfigAsm3x3U) Visit(f func(val *int, name string)) {
	f(&c.LimitWaveCnt, "limit_wave_cnt")
	f(&c.FiltersPerWave, "filters_per_wave")
	f(&c.OutputLinesWave, "output_lines_per_wave")
}

func (c *PerfConfigAsm3x3U) IsValidValue() bool {
	return c.LimitWaveCnt >= 0 && c.LimitWaveCnt <= 9 &&
		c.FiltersPerWave >= 1 && c.FiltersPerWave <= 8 &&
		c.OutputLinesWave >= 1 && c.OutputLinesWave <= 8
}

// SetNextValue advances the odometer sweep over the value space,
// reporting false past the last tuple.
func (c *PerfConfigAsm3x3U) SetNextValue() bool {
	if c.OutputLinesWave < 8 {
		c.OutputLinesWave++
		return true
	}
	c.OutputLinesWave = 1
	if c.FiltersPerWave < 8 {
		c.FiltersPerWave++
		return true
	}
	c.FiltersPerWave = 1
	if c.LimitWaveCnt < 9 {
		c.LimitWaveCnt++
		return true
	}
	return false
}

// IsValid checks the tuple against the problem: the kernel cannot emit
// more filters per wave than output channels, nor more lines than rows.
func (c *PerfConfigAsm3x3U) IsValid(ctx *Context) bool {
	if !c.IsValidValue() {
		return false
	}
	return c.FiltersPerWave <= ctx.NOutputs && c.OutputLinesWave <= ctx.OutHeight
}

// ConvAsm3x3U is the hand-written 3x3 unit-stride forward assembly
// kernel.
type ConvAsm3x3U struct{ solverBase }

func (ConvAsm3x3U) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward &&
		ctx.KernelSizeH == 3 && ctx.KernelSizeW == 3 &&
		ctx.KernelStride0 == 1 && ctx.KernelStride1 == 1 &&
		ctx.PadH == 1 && ctx.PadW == 1 &&
		ctx.NInputs%4 == 0
}

func (ConvAsm3x3U) IsFast(ctx *Context) bool {
	// Small images do not amortize the wave setup cost.
	return ctx.InWidth >= 14 && ctx.InHeight >= 14
}

func (ConvAsm3x3U) NewConfig() PerfConfig {
	return &PerfConfigAsm3x3U{}
}

func (ConvAsm3x3U) PerformanceConfig(ctx *Context) PerfConfig {
	config := &PerfConfigAsm3x3U{LimitWaveCnt: 0, FiltersPerWave: 2, OutputLinesWave: 2}
	if !config.IsValid(ctx) {
		config.FiltersPerWave = 1
		config.OutputLinesWave = 1
	}
	return config
}

func (ConvAsm3x3U) IsValidPerformanceConfig(ctx *Context, pc PerfConfig) bool {
	config, ok := pc.(*PerfConfigAsm3x3U)
	return ok && config.IsValid(ctx)
}

func (s ConvAsm3x3U) Search(ctx *Context, h runtime.Handle) (PerfConfig, error) {
	return genericSearch(s, s, ctx, h, &PerfConfigAsm3x3U{LimitWaveCnt: 0, FiltersPerWave: 1, OutputLinesWave: 1})
}

func (s ConvAsm3x3U) Solve(ctx *Context) Solution {
	return s.SolveWith(ctx, s.PerformanceConfig(ctx))
}

func (s ConvAsm3x3U) SolveWith(ctx *Context, pc PerfConfig) Solution {
	config, ok := pc.(*PerfConfigAsm3x3U)
	if !ok || !config.IsValid(ctx) {
		return NewSolution(StatusUnknownError)
	}

	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName: "gcnAsmConv3x3U",
		KernelFile: "conv3x3.s",
		CompOptions: fmt.Sprintf(
			"-Wa,-defsym,batch_size=%d -Wa,-defsym,img_width=%d -Wa,-defsym,img_height=%d "+
				"-Wa,-defsym,input_channels=%d -Wa,-defsym,output_channels=%d "+
				"-Wa,-defsym,limit_wave_cnt=%d -Wa,-defsym,filters_per_wave=%d -Wa,-defsym,output_lines_per_wave=%d",
			ctx.BatchSz, ctx.InWidth, ctx.InHeight,
			ctx.NInputs, ctx.NOutputs,
			config.LimitWaveCnt, config.FiltersPerWave, config.OutputLinesWave),
		LocalWk: []int{64, 1, 1},
		GlobalWk: []int{
			64,
			divCeil(ctx.NOutputs, config.FiltersPerWave),
			ctx.BatchSz * divCeil(ctx.OutHeight, config.OutputLinesWave),
		},
	}}
	return sol
}

func (ConvAsm3x3U) RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
	ctx *Context, sol *Solution) (float64, int) {
	return runEntryKernel(h, sol, bot, wei, top)
}

// runEntryKernel times the solution's entry kernel, mapping launch
// failures onto the legacy status codes.
func runEntryKernel(h runtime.Handle, sol *Solution, args ...runtime.Buffer) (float64, int) {
	if len(sol.ConstructionParams) == 0 {
		return 0, -1
	}
	k := sol.ConstructionParams[0]
	elapsed, err := h.RunKernel(runtime.Kernel{
		Name:        k.KernelName,
		File:        k.KernelFile,
		CompOptions: k.CompOptions,
		LocalWk:     k.LocalWk,
		GlobalWk:    k.GlobalWk,
	}, args...)
	if err != nil {
		return 0, -1
	}
	return elapsed, 0
}

func divCeil(a, b int) int {
	return (a + b - 1) / b
}

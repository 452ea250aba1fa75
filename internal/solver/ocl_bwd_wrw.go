package solver

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/runtime"
)

// ConvOclBwdWrW2 accumulates weight gradients in two stages: per-group
// partial sums followed by a reduction kernel.
type ConvOclBwdWrW2 struct{ solverBase }

func (ConvOclBwdWrW2) IsApplicable(ctx *Context) bool {
	return ctx.Direction == BackwardWeights &&
		ctx.KernelSizeH >= 1 && ctx.KernelSizeW >= 1 &&
		ctx.KernelStride0 <= 2 && ctx.KernelStride1 <= 2
}

func (ConvOclBwdWrW2) Solve(ctx *Context) Solution {
	nBatchBlks := divCeil(ctx.BatchSz, 4)

	sol := NewSolution(StatusSuccess)
	sol.WorkspaceSz = ctx.WeightsSz * nBatchBlks
	sol.ConstructionParams = []KernelInfo{
		{
			KernelName:  "MIOpenCvBwdWrW",
			KernelFile:  "MIOpenConvBwdWrWS2.cl",
			CompOptions: oclCompOptions(ctx) + fmt.Sprintf(" -DMLO_N_BATCH_LOOPS=%d", nBatchBlks),
			LocalWk:     []int{256, 1, 1},
			GlobalWk: []int{
				256 * ctx.FwdC(),
				divCeil(ctx.FwdK(), 8),
				nBatchBlks,
			},
		},
		{
			KernelName:  "MIOpenCvBwdWrW_rdc",
			KernelFile:  "MIOpenConvBwdWrWS2.cl",
			CompOptions: oclCompOptions(ctx) + fmt.Sprintf(" -DMLO_N_BATCH_LOOPS=%d", nBatchBlks),
			LocalWk:     []int{256, 1, 1},
			GlobalWk:    []int{alignUp(ctx.WeightsSz/4, 256), 1, 1},
		},
	}
	return sol
}

// ConvOclBwdWrW53 is the single-pass weight-gradient kernel for small
// odd filters.
type ConvOclBwdWrW53 struct{ solverBase }

func (ConvOclBwdWrW53) IsApplicable(ctx *Context) bool {
	return ctx.Direction == BackwardWeights &&
		ctx.KernelSizeH >= 3 && ctx.KernelSizeH <= 5 &&
		ctx.KernelSizeW >= 3 && ctx.KernelSizeW <= 5 &&
		ctx.KernelSizeH%2 == 1 && ctx.KernelSizeW%2 == 1 &&
		ctx.KernelStride0 == 1 && ctx.KernelStride1 == 1
}

func (ConvOclBwdWrW53) Solve(ctx *Context) Solution {
	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName:  "MIOpenCvBwdWrW",
		KernelFile:  "MIOpenConvBwdWrW_LxG_P53.cl",
		CompOptions: oclCompOptions(ctx),
		LocalWk:     []int{64, 4, 1},
		GlobalWk: []int{
			64 * ctx.FwdC(),
			alignUp(ctx.FwdK(), 4),
			1,
		},
	}}
	return sol
}

// ConvOclBwdWrW1x1 reduces the 1x1 weight gradient to a batched matrix
// product over the spatial extent.
type ConvOclBwdWrW1x1 struct{ solverBase }

func (ConvOclBwdWrW1x1) IsApplicable(ctx *Context) bool {
	return ctx.Direction == BackwardWeights &&
		ctx.KernelSizeH == 1 && ctx.KernelSizeW == 1 &&
		ctx.PadH == 0 && ctx.PadW == 0
}

func (ConvOclBwdWrW1x1) Solve(ctx *Context) Solution {
	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName:  "MIOpenCvBwdWrW1x1",
		KernelFile:  "MIOpenConvBwdWrW1x1Mmap.cl",
		CompOptions: oclCompOptions(ctx),
		LocalWk:     []int{256, 1, 1},
		GlobalWk: []int{
			alignUp(ctx.FwdC(), 16),
			alignUp(ctx.FwdK(), 16),
			1,
		},
	}}
	return sol
}

func (ConvOclBwdWrW1x1) RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
	ctx *Context, sol *Solution) (float64, int) {
	return runEntryKernel(h, sol, bot, top, wei)
}

package solver

// The binary winograd solvers ship precompiled shader objects; there is
// nothing to tune and no per-shape compile options.

// ConvBinWinograd3x3U handles 3x3 unit-stride forward convolutions with
// symmetric unit padding.
type ConvBinWinograd3x3U struct{ solverBase }

func (ConvBinWinograd3x3U) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward &&
		ctx.KernelSizeH == 3 && ctx.KernelSizeW == 3 &&
		ctx.KernelStride0 == 1 && ctx.KernelStride1 == 1 &&
		ctx.PadH == 1 && ctx.PadW == 1 &&
		ctx.NInputs >= 18
}

func (ConvBinWinograd3x3U) Solve(ctx *Context) Solution {
	return winogradSolution(ctx, "sp3AsmConv3x3F", "conv_3x3_wheel_alpha_v3_0b.so")
}

// ConvBinWinogradRxS handles general RxS filters at unit stride.
type ConvBinWinogradRxS struct{ solverBase }

func (ConvBinWinogradRxS) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward &&
		ctx.KernelStride0 == 1 && ctx.KernelStride1 == 1 &&
		ctx.KernelSizeH >= 2 && ctx.KernelSizeW >= 2 &&
		ctx.KernelSizeH <= ctx.InHeight && ctx.KernelSizeW <= ctx.InWidth
}

func (ConvBinWinogradRxS) Solve(ctx *Context) Solution {
	return winogradSolution(ctx, "sp3AsmConvRxSU", "conv_u1v1_wheel_alpha_v8_4_4.so")
}

// winogradSolution builds the single-kernel plan shared by the binary
// shaders. The shader reads the shape from kernel arguments, so the
// launch grid scales with the number of compute groups only.
func winogradSolution(ctx *Context, name, file string) Solution {
	const waveSize = 512
	groups := divCeil(ctx.BatchSz*ctx.NOutputs*ctx.OutHeight*ctx.OutWidth, waveSize)
	if groups < 1 {
		groups = 1
	}

	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName: name,
		KernelFile: file,
		LocalWk:    []int{waveSize, 1, 1},
		GlobalWk:   []int{groups * waveSize, 1, 1},
	}}
	return sol
}

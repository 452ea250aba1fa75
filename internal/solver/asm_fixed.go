package solver

import "fmt"

// The fixed assembly solvers have no tunable parameters; each covers
// exactly one shader built for a narrow problem shape.

// ConvAsm5x10u2v2f1 is the 5x10 stride-2 forward assembly kernel.
type ConvAsm5x10u2v2f1 struct{ solverBase }

func (ConvAsm5x10u2v2f1) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward &&
		ctx.KernelSizeH == 5 && ctx.KernelSizeW == 10 &&
		ctx.KernelStride0 == 2 && ctx.KernelStride1 == 2 &&
		ctx.PadH == 0 && ctx.PadW == 0
}

func (ConvAsm5x10u2v2f1) Solve(ctx *Context) Solution {
	return fixedAsmSolution(ctx, "conv5x10u2v2f1", "conv5x10u2v2f1.s")
}

// ConvAsm5x10u2v2b1 is the matching backward-data kernel.
type ConvAsm5x10u2v2b1 struct{ solverBase }

func (ConvAsm5x10u2v2b1) IsApplicable(ctx *Context) bool {
	return ctx.Direction == BackwardData &&
		ctx.KernelSizeH == 5 && ctx.KernelSizeW == 10 &&
		ctx.KernelStride0 == 2 && ctx.KernelStride1 == 2 &&
		ctx.PadH == 0 && ctx.PadW == 0
}

func (ConvAsm5x10u2v2b1) Solve(ctx *Context) Solution {
	return fixedAsmSolution(ctx, "conv5x10u2v2b1", "conv5x10u2v2b1.s")
}

// ConvAsm7x7c3h224w224k64u2v2p3q3f1 serves the classic first layer of
// 224x224 classification networks and nothing else.
type ConvAsm7x7c3h224w224k64u2v2p3q3f1 struct{ solverBase }

func (ConvAsm7x7c3h224w224k64u2v2p3q3f1) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward &&
		ctx.KernelSizeH == 7 && ctx.KernelSizeW == 7 &&
		ctx.NInputs == 3 && ctx.NOutputs == 64 &&
		ctx.InHeight == 224 && ctx.InWidth == 224 &&
		ctx.KernelStride0 == 2 && ctx.KernelStride1 == 2 &&
		ctx.PadH == 3 && ctx.PadW == 3
}

func (ConvAsm7x7c3h224w224k64u2v2p3q3f1) Solve(ctx *Context) Solution {
	return fixedAsmSolution(ctx, "conv7x7c3h224w224k64u2v2p3q3f1",
		"conv7x7c3h224w224k64u2v2p3q3f1.s")
}

func fixedAsmSolution(ctx *Context, name, file string) Solution {
	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName: name,
		KernelFile: file,
		CompOptions: fmt.Sprintf(
			"-Wa,-defsym,batch_size=%d -Wa,-defsym,img_h=%d -Wa,-defsym,img_w=%d "+
				"-Wa,-defsym,input_channels=%d -Wa,-defsym,output_channels=%d",
			ctx.BatchSz, ctx.InHeight, ctx.InWidth, ctx.NInputs, ctx.NOutputs),
		LocalWk: []int{64, 8, 1},
		GlobalWk: []int{
			alignUp(ctx.OutWidth, 64),
			alignUp(ctx.OutHeight, 8),
			ctx.BatchSz * ctx.NOutputs,
		},
	}}
	return sol
}

func alignUp(v, unit int) int {
	return divCeil(v, unit) * unit
}

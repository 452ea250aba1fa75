package solver

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/runtime"
)

// wrw1x1PipeDepth is fixed at 1 in the current shader build.
const wrw1x1PipeDepth = 1

// PerfConfigAsmBwdWrW1x1 tunes the 1x1 weight-gradient assembly kernel.
//
// Shader design constraints:
//   - chunk_size*c_per_gpr == 16
//   - k_per_gpr <= c_per_gpr
//   - when c_mult > 1 or k_mult > 1, fwd_C must divide by c_per_gpr*c_mult
//     and fwd_K by k_per_gpr*k_mult
//
// Resource constraint:
//   - c_mult*k_mult*k_per_gpr + 9 + (c_mult+k_mult)*read_size*pipe_depth <= 256
type PerfConfigAsmBwdWrW1x1 struct {
	CPerGpr  int // {1,2,4,8,16}
	CMult    int // {1,2,4,8,16}
	KPerGpr  int // {1,2,4,8,16}
	KMult    int // {1,2,4,8,16}
	ReadSize int // [1..4]
	NPerGpr  int // {1,2,4}
}

func (c *PerfConfigAsmBwdWrW1x1) Visit(f func(val *int, name string)) {
	f(&c.CPerGpr, "c_per_gpr")
	f(&c.CMult, "c_mult")
	f(&c.KPerGpr, "k_per_gpr")
	f(&c.KMult, "k_mult")
	f(&c.ReadSize, "read_size")
	f(&c.NPerGpr, "n_per_gpr")
}

// ChunkSize is derived: lanes in a GPR not spent on channels cover pixels.
func (c *PerfConfigAsmBwdWrW1x1) ChunkSize() int { return 16 / c.CPerGpr }

// HwPerGpr is the height-and-width slice each GPR covers.
func (c *PerfConfigAsmBwdWrW1x1) HwPerGpr() int { return 4 / c.NPerGpr }

func (c *PerfConfigAsmBwdWrW1x1) IsValidValue() bool {
	return isPow2InRange(c.CPerGpr, 1, 16) &&
		isPow2InRange(c.CMult, 1, 16) &&
		isPow2InRange(c.KPerGpr, 1, 16) &&
		isPow2InRange(c.KMult, 1, 16) &&
		c.ReadSize >= 1 && c.ReadSize <= 4 &&
		isPow2InRange(c.NPerGpr, 1, 4)
}

func (c *PerfConfigAsmBwdWrW1x1) SetNextValue() bool {
	if c.NPerGpr < 4 {
		c.NPerGpr *= 2
		return true
	}
	c.NPerGpr = 1
	if c.ReadSize < 4 {
		c.ReadSize++
		return true
	}
	c.ReadSize = 1
	if c.KMult < 16 {
		c.KMult *= 2
		return true
	}
	c.KMult = 1
	if c.KPerGpr < 16 {
		c.KPerGpr *= 2
		return true
	}
	c.KPerGpr = 1
	if c.CMult < 16 {
		c.CMult *= 2
		return true
	}
	c.CMult = 1
	if c.CPerGpr < 16 {
		c.CPerGpr *= 2
		return true
	}
	return false
}

func (c *PerfConfigAsmBwdWrW1x1) IsValid(ctx *Context) bool {
	if !c.IsValidValue() {
		return false
	}
	if c.ChunkSize()*c.CPerGpr != 16 {
		return false
	}
	if c.KPerGpr > c.CPerGpr {
		return false
	}
	if c.CMult > 1 || c.KMult > 1 {
		if ctx.FwdC()%(c.CPerGpr*c.CMult) != 0 || ctx.FwdK()%(c.KPerGpr*c.KMult) != 0 {
			return false
		}
	}
	vgprs := c.CMult*c.KMult*c.KPerGpr + 9 + (c.CMult+c.KMult)*c.ReadSize*wrw1x1PipeDepth
	return vgprs <= 256
}

// ConvAsmBwdWrW1x1 computes 1x1 weight gradients in assembly.
type ConvAsmBwdWrW1x1 struct{ solverBase }

func (ConvAsmBwdWrW1x1) IsApplicable(ctx *Context) bool {
	return ctx.Direction == BackwardWeights &&
		ctx.KernelSizeH == 1 && ctx.KernelSizeW == 1 &&
		ctx.PadH == 0 && ctx.PadW == 0 &&
		ctx.KernelStride0 == 1 && ctx.KernelStride1 == 1
}

func (ConvAsmBwdWrW1x1) IsFast(ctx *Context) bool {
	return ctx.FwdC() >= 16 && ctx.FwdK() >= 16
}

func (ConvAsmBwdWrW1x1) NewConfig() PerfConfig {
	return &PerfConfigAsmBwdWrW1x1{}
}

func (ConvAsmBwdWrW1x1) PerformanceConfig(ctx *Context) PerfConfig {
	config := &PerfConfigAsmBwdWrW1x1{
		CPerGpr:  4,
		CMult:    largestDivPow2(ctx.FwdC()/4, 4),
		KPerGpr:  4,
		KMult:    largestDivPow2(ctx.FwdK()/4, 4),
		ReadSize: 4,
		NPerGpr:  1,
	}
	if !config.IsValid(ctx) {
		config = &PerfConfigAsmBwdWrW1x1{
			CPerGpr: 1, CMult: 1, KPerGpr: 1, KMult: 1, ReadSize: 1, NPerGpr: 1,
		}
	}
	return config
}

// largestDivPow2 picks the biggest power of two <= hi that divides n,
// falling back to 1 when n has no even factor.
func largestDivPow2(n, hi int) int {
	for v := hi; v > 1; v /= 2 {
		if n > 0 && n%v == 0 {
			return v
		}
	}
	return 1
}

func (ConvAsmBwdWrW1x1) IsValidPerformanceConfig(ctx *Context, pc PerfConfig) bool {
	config, ok := pc.(*PerfConfigAsmBwdWrW1x1)
	return ok && config.IsValid(ctx)
}

func (s ConvAsmBwdWrW1x1) Search(ctx *Context, h runtime.Handle) (PerfConfig, error) {
	return genericSearch(s, s, ctx, h, &PerfConfigAsmBwdWrW1x1{
		CPerGpr: 1, CMult: 1, KPerGpr: 1, KMult: 1, ReadSize: 1, NPerGpr: 1,
	})
}

func (s ConvAsmBwdWrW1x1) Solve(ctx *Context) Solution {
	return s.SolveWith(ctx, s.PerformanceConfig(ctx))
}

func (s ConvAsmBwdWrW1x1) SolveWith(ctx *Context, pc PerfConfig) Solution {
	config, ok := pc.(*PerfConfigAsmBwdWrW1x1)
	if !ok || !config.IsValid(ctx) {
		return NewSolution(StatusUnknownError)
	}

	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName: "gcnAsmConv1x1WrW",
		KernelFile: "conv1x1wrw.s",
		CompOptions: fmt.Sprintf(
			"-Wa,-defsym,batch_size=%d -Wa,-defsym,img_h=%d -Wa,-defsym,img_w=%d "+
				"-Wa,-defsym,input_channels=%d -Wa,-defsym,output_channels=%d "+
				"-Wa,-defsym,c_per_gpr=%d -Wa,-defsym,c_mult=%d "+
				"-Wa,-defsym,k_per_gpr=%d -Wa,-defsym,k_mult=%d "+
				"-Wa,-defsym,read_size=%d -Wa,-defsym,n_per_gpr=%d "+
				"-Wa,-defsym,chunk_size=%d -Wa,-defsym,hw_per_gpr=%d -Wa,-defsym,pipe_depth=%d",
			ctx.BatchSz, ctx.InHeight, ctx.InWidth,
			ctx.FwdC(), ctx.FwdK(),
			config.CPerGpr, config.CMult,
			config.KPerGpr, config.KMult,
			config.ReadSize, config.NPerGpr,
			config.ChunkSize(), config.HwPerGpr(), wrw1x1PipeDepth),
		LocalWk: []int{64, 1, 1},
		GlobalWk: []int{
			64,
			divCeil(ctx.FwdC(), config.CPerGpr*config.CMult),
			divCeil(ctx.FwdK(), config.KPerGpr*config.KMult),
		},
	}}
	return sol
}

func (ConvAsmBwdWrW1x1) RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
	ctx *Context, sol *Solution) (float64, int) {
	return runEntryKernel(h, sol, bot, top, wei)
}

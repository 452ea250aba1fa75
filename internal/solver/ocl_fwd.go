package solver

import (
	"fmt"

	"github.com/samcharles93/convtune/internal/runtime"
)

// ConvOclDirectFwdGen is the generic OpenCL forward kernel. It accepts
// any forward problem; in the forward catalog it is followed only by the
// legacy tiled OpenCL solvers.
type ConvOclDirectFwdGen struct{ solverBase }

func (ConvOclDirectFwdGen) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward
}

func (ConvOclDirectFwdGen) Solve(ctx *Context) Solution {
	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName:  "MIOpenCDFGen",
		KernelFile:  "MIOpenConvDirGenFwd.cl",
		CompOptions: oclCompOptions(ctx),
		LocalWk:     []int{8, 8, 1},
		GlobalWk: []int{
			alignUp(ctx.OutWidth, 8),
			alignUp(ctx.OutHeight, 8),
			ctx.BatchSz * ctx.NOutputs,
		},
	}}
	return sol
}

// ConvOclDirectFwd3x3 handles the common 3x3 unit-stride forward case
// in OpenCL, for devices without the assembly path.
type ConvOclDirectFwd3x3 struct{ solverBase }

func (ConvOclDirectFwd3x3) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward &&
		ctx.KernelSizeH == 3 && ctx.KernelSizeW == 3 &&
		ctx.KernelStride0 == 1 && ctx.KernelStride1 == 1 &&
		ctx.PadH == 1 && ctx.PadW == 1
}

func (ConvOclDirectFwd3x3) Solve(ctx *Context) Solution {
	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName:  "MIOpenCvD3x3WSS",
		KernelFile:  "MIOpenConvD3x3.cl",
		CompOptions: oclCompOptions(ctx),
		LocalWk:     []int{16, 16, 1},
		GlobalWk: []int{
			alignUp(ctx.OutWidth, 16),
			alignUp(ctx.OutHeight, 16),
			ctx.BatchSz * ctx.NOutputs,
		},
	}}
	return sol
}

// ConvOclDirectFwd11x11 covers the stride-4 11x11 first layer.
type ConvOclDirectFwd11x11 struct{ solverBase }

func (ConvOclDirectFwd11x11) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward &&
		ctx.KernelSizeH == 11 && ctx.KernelSizeW == 11 &&
		ctx.KernelStride0 == 4 && ctx.KernelStride1 == 4
}

func (ConvOclDirectFwd11x11) Solve(ctx *Context) Solution {
	sol := NewSolution(StatusSuccess)
	sol.ConstructionParams = []KernelInfo{{
		KernelName:  "MIOpenCvFwd11x11",
		KernelFile:  "MIOpenConvFwd_LxL_11.cl",
		CompOptions: oclCompOptions(ctx),
		LocalWk:     []int{256, 1, 1},
		GlobalWk: []int{
			alignUp(ctx.OutWidth*ctx.OutHeight, 256),
			divCeil(ctx.NOutputs, 4),
			ctx.BatchSz,
		},
	}}
	return sol
}

// PerfConfigOclDirectFwdLegacy is the tile layout shared by the legacy
// OpenCL forward solvers. The nine fields mirror the solution tiling
// knobs one to one.
type PerfConfigOclDirectFwdLegacy struct {
	GrpTile1     int
	GrpTile0     int
	InTile1      int
	InTile0      int
	OutPixTile1  int
	OutPixTile0  int
	NOutPixTiles int
	NInDataTiles int
	NStacks      int
}

func (c *PerfConfigOclDirectFwdLegacy) Visit(f func(val *int, name string)) {
	f(&c.GrpTile1, "grp_tile1")
	f(&c.GrpTile0, "grp_tile0")
	f(&c.InTile1, "in_tile1")
	f(&c.InTile0, "in_tile0")
	f(&c.OutPixTile1, "out_pix_tile1")
	f(&c.OutPixTile0, "out_pix_tile0")
	f(&c.NOutPixTiles, "n_out_pix_tiles")
	f(&c.NInDataTiles, "n_in_data_tiles")
	f(&c.NStacks, "n_stacks")
}

// Value sets swept by the legacy exhaustive search. The grids are coarse
// on purpose; the full cross product is already expensive to time.
var (
	legacyGrpTiles    = []int{8, 16}
	legacyInTiles     = []int{8, 16, 32}
	legacyOutPixTiles = []int{1, 2, 4}
	legacyNOutTiles   = []int{1, 2, 4, 8}
	legacyNInTiles    = []int{1, 2, 4}
	legacyNStacks     = []int{1, 2}
)

func inSet(v int, set []int) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// nextIn steps *v to its successor in set, wrapping to the first
// element. The return reports whether the step carried (wrapped).
func nextIn(v *int, set []int) bool {
	for i, s := range set {
		if *v == s {
			if i+1 < len(set) {
				*v = set[i+1]
				return false
			}
			break
		}
	}
	*v = set[0]
	return true
}

func (c *PerfConfigOclDirectFwdLegacy) IsValidValue() bool {
	return inSet(c.GrpTile1, legacyGrpTiles) && inSet(c.GrpTile0, legacyGrpTiles) &&
		inSet(c.InTile1, legacyInTiles) && inSet(c.InTile0, legacyInTiles) &&
		inSet(c.OutPixTile1, legacyOutPixTiles) && inSet(c.OutPixTile0, legacyOutPixTiles) &&
		inSet(c.NOutPixTiles, legacyNOutTiles) &&
		inSet(c.NInDataTiles, legacyNInTiles) &&
		inSet(c.NStacks, legacyNStacks)
}

func (c *PerfConfigOclDirectFwdLegacy) SetNextValue() bool {
	if !nextIn(&c.NStacks, legacyNStacks) {
		return true
	}
	if !nextIn(&c.NInDataTiles, legacyNInTiles) {
		return true
	}
	if !nextIn(&c.NOutPixTiles, legacyNOutTiles) {
		return true
	}
	if !nextIn(&c.OutPixTile0, legacyOutPixTiles) {
		return true
	}
	if !nextIn(&c.OutPixTile1, legacyOutPixTiles) {
		return true
	}
	if !nextIn(&c.InTile0, legacyInTiles) {
		return true
	}
	if !nextIn(&c.InTile1, legacyInTiles) {
		return true
	}
	if !nextIn(&c.GrpTile0, legacyGrpTiles) {
		return true
	}
	return !nextIn(&c.GrpTile1, legacyGrpTiles)
}

func legacyDefaultConfig(ctx *Context) *PerfConfigOclDirectFwdLegacy {
	config := &PerfConfigOclDirectFwdLegacy{
		GrpTile1: 8, GrpTile0: 8,
		InTile1: 16, InTile0: 16,
		OutPixTile1: 2, OutPixTile0: 2,
		NOutPixTiles: 2, NInDataTiles: 2, NStacks: 1,
	}
	if ctx.OutWidth < 16 || ctx.OutHeight < 16 {
		config.InTile1 = 8
		config.InTile0 = 8
		config.OutPixTile1 = 1
		config.OutPixTile0 = 1
	}
	return config
}

// legacyExhaustive holds the shared search machinery for the legacy
// OpenCL forward solvers. Loaded configs are accepted as is.
type legacyExhaustive struct{ solverBase }

func (legacyExhaustive) NewConfig() PerfConfig {
	return &PerfConfigOclDirectFwdLegacy{}
}

func (legacyExhaustive) PerformanceConfig(ctx *Context) PerfConfig {
	return legacyDefaultConfig(ctx)
}

func (legacyExhaustive) IsValidPerformanceConfig(ctx *Context, pc PerfConfig) bool {
	// Not checked. The legacy kernels clamp the tiles at build time.
	_, ok := pc.(*PerfConfigOclDirectFwdLegacy)
	return ok
}

func legacySolution(ctx *Context, config *PerfConfigOclDirectFwdLegacy, name, file string) Solution {
	sol := NewSolution(StatusSuccess)
	sol.GrpTile1 = config.GrpTile1
	sol.GrpTile0 = config.GrpTile0
	sol.InTile1 = config.InTile1
	sol.InTile0 = config.InTile0
	sol.OutPixTile1 = config.OutPixTile1
	sol.OutPixTile0 = config.OutPixTile0
	sol.NOutPixTiles = config.NOutPixTiles
	sol.NInDataTiles = config.NInDataTiles
	sol.NStacks = config.NStacks
	sol.ConstructionParams = []KernelInfo{{
		KernelName: name,
		KernelFile: file,
		CompOptions: oclCompOptions(ctx) + fmt.Sprintf(
			" -DMLO_GRP_TILE1=%d -DMLO_GRP_TILE0=%d"+
				" -DMLO_IN_TILE1=%d -DMLO_IN_TILE0=%d"+
				" -DMLO_OUT_PIX_TILE1=%d -DMLO_OUT_PIX_TILE0=%d"+
				" -DMLO_N_OUT_TILES=%d -DMLO_N_IN_TILES=%d -DMLO_N_STACKS=%d",
			config.GrpTile1, config.GrpTile0,
			config.InTile1, config.InTile0,
			config.OutPixTile1, config.OutPixTile0,
			config.NOutPixTiles, config.NInDataTiles, config.NStacks),
		LocalWk: []int{config.GrpTile0, config.GrpTile1, 1},
		GlobalWk: []int{
			alignUp(divCeil(ctx.OutWidth, config.OutPixTile0), config.GrpTile0),
			alignUp(divCeil(ctx.OutHeight, config.OutPixTile1), config.GrpTile1),
			divCeil(ctx.NOutputs, config.NOutPixTiles) * divCeil(ctx.BatchSz, config.NStacks),
		},
	}}
	return sol
}

// ConvOclDirectFwd is the tiled OpenCL kernel for arbitrary filter
// shapes. The same kernel body serves backward-data with the filter
// transposed at build time, so both directions pass the gate.
type ConvOclDirectFwd struct{ legacyExhaustive }

func (ConvOclDirectFwd) IsApplicable(ctx *Context) bool {
	return ctx.Direction == Forward || ctx.Direction == BackwardData
}

func (s ConvOclDirectFwd) Search(ctx *Context, h runtime.Handle) (PerfConfig, error) {
	return genericSearch(s, s, ctx, h, legacyStartConfig())
}

func (s ConvOclDirectFwd) Solve(ctx *Context) Solution {
	return s.SolveWith(ctx, s.PerformanceConfig(ctx))
}

func (ConvOclDirectFwd) SolveWith(ctx *Context, pc PerfConfig) Solution {
	config, ok := pc.(*PerfConfigOclDirectFwdLegacy)
	if !ok {
		return NewSolution(StatusUnknownError)
	}
	return legacySolution(ctx, config, "MIOpenConvUni", "MIOpenConvDirUni.cl")
}

func (ConvOclDirectFwd) RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
	ctx *Context, sol *Solution) (float64, int) {
	if ctx.Bias {
		return runEntryKernel(h, sol, bot, wei, bias, top)
	}
	return runEntryKernel(h, sol, bot, wei, top)
}

// ConvOclDirectFwd1x1 specializes the legacy path for 1x1 filters.
type ConvOclDirectFwd1x1 struct{ legacyExhaustive }

func (ConvOclDirectFwd1x1) IsApplicable(ctx *Context) bool {
	return (ctx.Direction == Forward || ctx.Direction == BackwardData) &&
		ctx.KernelSizeH == 1 && ctx.KernelSizeW == 1 &&
		ctx.PadH == 0 && ctx.PadW == 0
}

func (s ConvOclDirectFwd1x1) Search(ctx *Context, h runtime.Handle) (PerfConfig, error) {
	return genericSearch(s, s, ctx, h, legacyStartConfig())
}

func (s ConvOclDirectFwd1x1) Solve(ctx *Context) Solution {
	return s.SolveWith(ctx, s.PerformanceConfig(ctx))
}

func (ConvOclDirectFwd1x1) SolveWith(ctx *Context, pc PerfConfig) Solution {
	config, ok := pc.(*PerfConfigOclDirectFwdLegacy)
	if !ok {
		return NewSolution(StatusUnknownError)
	}
	return legacySolution(ctx, config, "MIOpenConv1x1", "MIOpenConv1x1S.cl")
}

func (ConvOclDirectFwd1x1) RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
	ctx *Context, sol *Solution) (float64, int) {
	if ctx.Bias {
		return runEntryKernel(h, sol, bot, wei, bias, top)
	}
	return runEntryKernel(h, sol, bot, wei, top)
}

// ConvOclDirectFwdC caches input slabs in local memory; it needs the
// whole input row to fit, so it is gated on small spatial dims.
type ConvOclDirectFwdC struct{ legacyExhaustive }

func (ConvOclDirectFwdC) IsApplicable(ctx *Context) bool {
	return (ctx.Direction == Forward || ctx.Direction == BackwardData) &&
		ctx.InWidth <= 64 && ctx.InHeight <= 64 &&
		ctx.KernelStride0 == 1 && ctx.KernelStride1 == 1
}

func (s ConvOclDirectFwdC) Search(ctx *Context, h runtime.Handle) (PerfConfig, error) {
	return genericSearch(s, s, ctx, h, legacyStartConfig())
}

func (s ConvOclDirectFwdC) Solve(ctx *Context) Solution {
	return s.SolveWith(ctx, s.PerformanceConfig(ctx))
}

func (ConvOclDirectFwdC) SolveWith(ctx *Context, pc PerfConfig) Solution {
	config, ok := pc.(*PerfConfigOclDirectFwdLegacy)
	if !ok {
		return NewSolution(StatusUnknownError)
	}
	return legacySolution(ctx, config, "MIOpenCDFUni", "MIOpenConvDirUniC.cl")
}

func (ConvOclDirectFwdC) RunAndMeasure(h runtime.Handle, bot, top, wei, bias runtime.Buffer,
	ctx *Context, sol *Solution) (float64, int) {
	if ctx.Bias {
		return runEntryKernel(h, sol, bot, wei, bias, top)
	}
	return runEntryKernel(h, sol, bot, wei, top)
}

func legacyStartConfig() *PerfConfigOclDirectFwdLegacy {
	return &PerfConfigOclDirectFwdLegacy{
		GrpTile1: 8, GrpTile0: 8,
		InTile1: 8, InTile0: 8,
		OutPixTile1: 1, OutPixTile0: 1,
		NOutPixTiles: 1, NInDataTiles: 1, NStacks: 1,
	}
}

// oclCompOptions carries the problem geometry common to every OpenCL
// build in this package.
func oclCompOptions(ctx *Context) string {
	bias := 0
	if ctx.Bias {
		bias = 1
	}
	return fmt.Sprintf(
		"-DMLO_BATCH_SZ=%d -DMLO_N_INPUTS=%d -DMLO_N_OUTPUTS=%d"+
			" -DMLO_IN_HEIGHT=%d -DMLO_IN_WIDTH=%d"+
			" -DMLO_OUT_HEIGHT=%d -DMLO_OUT_WIDTH=%d"+
			" -DMLO_FILTER_SIZE1=%d -DMLO_FILTER_SIZE0=%d"+
			" -DMLO_FILTER_STRIDE1=%d -DMLO_FILTER_STRIDE0=%d"+
			" -DMLO_FILTER_PAD1=%d -DMLO_FILTER_PAD0=%d"+
			" -DMLO_CONV_BIAS=%d",
		ctx.BatchSz, ctx.NInputs, ctx.NOutputs,
		ctx.InHeight, ctx.InWidth,
		ctx.OutHeight, ctx.OutWidth,
		ctx.KernelSizeH, ctx.KernelSizeW,
		ctx.KernelStride0, ctx.KernelStride1,
		ctx.PadH, ctx.PadW,
		bias)
}

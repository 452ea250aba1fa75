package solver

// The catalogs are fixed at init and ordered: binary winograd first,
// then specialized assembly, then specialized OpenCL, then the generic
// fallbacks. First-hit selection and the non-timeable tie-break both
// follow this order.

var forwardCatalog = []Solver{
	ConvBinWinograd3x3U{},
	ConvBinWinogradRxS{},
	ConvAsm3x3U{},
	ConvAsm5x10u2v2f1{},
	ConvAsm7x7c3h224w224k64u2v2p3q3f1{},
	ConvOclDirectFwd11x11{},
	ConvOclDirectFwd3x3{},
	ConvOclDirectFwdGen{},
	ConvOclDirectFwd1x1{},
	ConvOclDirectFwdC{},
	ConvOclDirectFwd{},
}

var backwardDataCatalog = []Solver{
	ConvAsm5x10u2v2b1{},
	ConvOclDirectFwd1x1{},
	ConvOclDirectFwdC{},
	ConvOclDirectFwd{},
}

var backwardWeightsCatalog = []Solver{
	ConvAsmBwdWrW1x1{},
	ConvAsmBwdWrW3x3{},
	ConvOclBwdWrW1x1{},
	ConvOclBwdWrW53{},
	ConvOclBwdWrW2{},
}

// Catalog returns the solver list for the problem's direction. The
// returned slice is shared; callers must not mutate it.
func Catalog(ctx *Context) []Solver {
	switch ctx.Direction {
	case BackwardData:
		return backwardDataCatalog
	case BackwardWeights:
		return backwardWeightsCatalog
	default:
		return forwardCatalog
	}
}

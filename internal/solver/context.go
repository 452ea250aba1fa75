package solver

import (
	"fmt"
	"strings"
)

// Direction is the convolution pass being solved.
type Direction int

const (
	Forward Direction = iota
	BackwardData
	BackwardWeights
)

func (d Direction) String() string {
	switch d {
	case BackwardData:
		return "bwd-data"
	case BackwardWeights:
		return "bwd-weights"
	default:
		return "fwd"
	}
}

// Context describes one convolution problem to the selection core. Two
// contexts with equal Key() are interchangeable from the database's point
// of view.
type Context struct {
	Direction Direction
	DoSearch  bool

	// Shape. Channels and sizes are in the forward-convolution frame:
	// NInputs/NOutputs swap meaning for backward passes the same way the
	// kernel generators expect.
	BatchSz       int
	NInputs       int
	NOutputs      int
	InHeight      int
	InWidth       int
	OutHeight     int
	OutWidth      int
	KernelSizeH   int
	KernelSizeW   int
	KernelStride0 int
	KernelStride1 int
	PadH          int
	PadW          int
	Bias          bool

	// Measurement buffer sizes in bytes.
	BotSz     int
	TopSz     int
	WeightsSz int
	BiasSz    int
}

// Key returns the canonical problem key persisted in the perf database.
// Field order is fixed; the key never contains the record delimiters.
func (c *Context) Key() string {
	fields := []int{
		int(c.Direction),
		c.BatchSz, c.NInputs, c.NOutputs,
		c.InHeight, c.InWidth, c.OutHeight, c.OutWidth,
		c.KernelSizeH, c.KernelSizeW,
		c.KernelStride0, c.KernelStride1,
		c.PadH, c.PadW,
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprint(f)
	}
	key := strings.Join(parts, ",")
	if c.Bias {
		return key + ",1"
	}
	return key + ",0"
}

// FwdC returns the input channel count in the forward frame.
func (c *Context) FwdC() int {
	if c.Direction == BackwardWeights || c.Direction == BackwardData {
		return c.NOutputs
	}
	return c.NInputs
}

// FwdK returns the output channel count in the forward frame.
func (c *Context) FwdK() int {
	if c.Direction == BackwardWeights || c.Direction == BackwardData {
		return c.NInputs
	}
	return c.NOutputs
}

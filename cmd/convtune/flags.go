package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/solver"
)

var (
	dbPath    string
	logLevel  string
	logFormat string

	direction  string
	doSearch   bool
	batchSz    int64
	nInputs    int64
	nOutputs   int64
	inHeight   int64
	inWidth    int64
	outHeight  int64
	outWidth   int64
	kernelH    int64
	kernelW    int64
	strideH    int64
	strideW    int64
	padH       int64
	padW       int64
	biasFlag   bool
)

func defaultDbPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "convtune.db"
	}
	return filepath.Join(dir, "convtune", "perf.db")
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db",
			Usage:       "path to the tuning database file",
			Value:       defaultDbPath(),
			Destination: &dbPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func problemFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "direction",
			Aliases:     []string{"dir"},
			Usage:       "convolution direction (fwd, bwd-data, bwd-weights)",
			Value:       "fwd",
			Destination: &direction,
		},
		&cli.BoolFlag{
			Name:        "search",
			Usage:       "run an exhaustive tuning search when no record exists",
			Destination: &doSearch,
		},
		&cli.Int64Flag{Name: "batch", Aliases: []string{"n"}, Value: 1, Destination: &batchSz, Usage: "batch size"},
		&cli.Int64Flag{Name: "in-channels", Aliases: []string{"c"}, Value: 3, Destination: &nInputs, Usage: "input channels"},
		&cli.Int64Flag{Name: "out-channels", Aliases: []string{"k"}, Value: 32, Destination: &nOutputs, Usage: "output channels"},
		&cli.Int64Flag{Name: "in-h", Value: 32, Destination: &inHeight, Usage: "input height"},
		&cli.Int64Flag{Name: "in-w", Value: 32, Destination: &inWidth, Usage: "input width"},
		&cli.Int64Flag{Name: "out-h", Value: 32, Destination: &outHeight, Usage: "output height"},
		&cli.Int64Flag{Name: "out-w", Value: 32, Destination: &outWidth, Usage: "output width"},
		&cli.Int64Flag{Name: "kernel-h", Aliases: []string{"y"}, Value: 3, Destination: &kernelH, Usage: "filter height"},
		&cli.Int64Flag{Name: "kernel-w", Aliases: []string{"x"}, Value: 3, Destination: &kernelW, Usage: "filter width"},
		&cli.Int64Flag{Name: "stride-h", Aliases: []string{"u"}, Value: 1, Destination: &strideH, Usage: "vertical stride"},
		&cli.Int64Flag{Name: "stride-w", Aliases: []string{"v"}, Value: 1, Destination: &strideW, Usage: "horizontal stride"},
		&cli.Int64Flag{Name: "pad-h", Aliases: []string{"p"}, Value: 1, Destination: &padH, Usage: "vertical padding"},
		&cli.Int64Flag{Name: "pad-w", Aliases: []string{"q"}, Value: 1, Destination: &padW, Usage: "horizontal padding"},
		&cli.BoolFlag{Name: "bias", Destination: &biasFlag, Usage: "convolution has a bias term"},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Pretty(os.Stderr, level)
}

func problemContext() *solver.Context {
	dir := solver.Forward
	switch direction {
	case "bwd-data":
		dir = solver.BackwardData
	case "bwd-weights":
		dir = solver.BackwardWeights
	}
	ctx := &solver.Context{
		Direction:     dir,
		DoSearch:      doSearch,
		BatchSz:       int(batchSz),
		NInputs:       int(nInputs),
		NOutputs:      int(nOutputs),
		InHeight:      int(inHeight),
		InWidth:       int(inWidth),
		OutHeight:     int(outHeight),
		OutWidth:      int(outWidth),
		KernelSizeH:   int(kernelH),
		KernelSizeW:   int(kernelW),
		KernelStride0: int(strideH),
		KernelStride1: int(strideW),
		PadH:          int(padH),
		PadW:          int(padW),
		Bias:          biasFlag,
	}
	ctx.BotSz = 4 * ctx.BatchSz * ctx.NInputs * ctx.InHeight * ctx.InWidth
	ctx.TopSz = 4 * ctx.BatchSz * ctx.NOutputs * ctx.OutHeight * ctx.OutWidth
	ctx.WeightsSz = 4 * ctx.NInputs * ctx.NOutputs * ctx.KernelSizeH * ctx.KernelSizeW
	ctx.BiasSz = 4 * ctx.NOutputs
	return ctx
}

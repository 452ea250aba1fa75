package solver

import (
	"testing"

	"github.com/samcharles93/convtune/internal/fields"
)

func TestAsm3x3USweepVisitsWholeSpace(t *testing.T) {
	t.Parallel()

	config := &PerfConfigAsm3x3U{LimitWaveCnt: 0, FiltersPerWave: 1, OutputLinesWave: 1}
	seen := map[string]bool{}
	count := 0
	for {
		if !config.IsValidValue() {
			t.Fatalf("sweep produced invalid tuple %+v", config)
		}
		key := fields.Encode(config)
		if seen[key] {
			t.Fatalf("tuple %s visited twice", key)
		}
		seen[key] = true
		count++
		if !config.SetNextValue() {
			break
		}
	}
	if count != 10*8*8 {
		t.Fatalf("sweep size: got %d want %d", count, 10*8*8)
	}
}

func TestAsm3x3UValidity(t *testing.T) {
	t.Parallel()

	ctx := &Context{NOutputs: 4, OutHeight: 3}
	ok := &PerfConfigAsm3x3U{LimitWaveCnt: 0, FiltersPerWave: 4, OutputLinesWave: 3}
	if !ok.IsValid(ctx) {
		t.Fatalf("valid tuple rejected")
	}
	tooManyFilters := &PerfConfigAsm3x3U{LimitWaveCnt: 0, FiltersPerWave: 5, OutputLinesWave: 1}
	if tooManyFilters.IsValid(ctx) {
		t.Fatalf("filters_per_wave > n_outputs accepted")
	}
	tooManyLines := &PerfConfigAsm3x3U{LimitWaveCnt: 0, FiltersPerWave: 1, OutputLinesWave: 4}
	if tooManyLines.IsValid(ctx) {
		t.Fatalf("output lines > out height accepted")
	}
}

func TestBwdWrW3x3Constraints(t *testing.T) {
	t.Parallel()

	ctx := &Context{
		Direction: BackwardWeights, BatchSz: 4, InHeight: 8,
		KernelStride0: 2, KernelStride1: 1,
	}
	config := &PerfConfigAsmBwdWrW3x3{
		LimitWaveCnt: 0, ReverseInout: 1, ChunkSize: 8,
		KPerWave: 1, PipeLinesDepth: 1, NPerGroup: 1,
	}
	if config.IsValid(ctx) {
		t.Fatalf("reverse_inout accepted with non-unit stride")
	}
	config.ReverseInout = 0
	if !config.IsValid(ctx) {
		t.Fatalf("valid tuple rejected")
	}
	config.ChunkSize = 16
	config.KPerWave = 8
	if config.IsValidValue() {
		t.Fatalf("chunk_size*k_per_wave > 64 accepted")
	}
	config.KPerWave = 4
	config.PipeLinesDepth = 9
	if config.IsValid(ctx) {
		t.Fatalf("pipe_lines_depth > img_h accepted")
	}
}

func TestBwdWrW1x1Constraints(t *testing.T) {
	t.Parallel()

	ctx := &Context{
		Direction: BackwardWeights,
		NInputs:   64, NOutputs: 32, // fwd_C=32, fwd_K=64
	}

	base := PerfConfigAsmBwdWrW1x1{
		CPerGpr: 4, CMult: 1, KPerGpr: 4, KMult: 1, ReadSize: 1, NPerGpr: 1,
	}

	config := base
	if !config.IsValid(ctx) {
		t.Fatalf("valid tuple rejected")
	}
	if config.ChunkSize() != 4 {
		t.Fatalf("chunk size: got %d", config.ChunkSize())
	}

	config = base
	config.KPerGpr = 8
	if config.IsValid(ctx) {
		t.Fatalf("k_per_gpr > c_per_gpr accepted")
	}

	config = base
	config.CMult = 16 // 32 % (4*16) != 0
	if config.IsValid(ctx) {
		t.Fatalf("divisibility violation accepted")
	}

	config = base
	config.CMult = 16
	config.KMult = 16
	config.CPerGpr = 2
	config.KPerGpr = 1
	// 16*16*1 + 9 + (16+16)*4 with read_size 4 exceeds the register file.
	config.ReadSize = 4
	if config.IsValid(ctx) {
		t.Fatalf("register budget violation accepted")
	}
}

func TestBwdWrW1x1SweepStaysInDomain(t *testing.T) {
	t.Parallel()

	config := &PerfConfigAsmBwdWrW1x1{
		CPerGpr: 1, CMult: 1, KPerGpr: 1, KMult: 1, ReadSize: 1, NPerGpr: 1,
	}
	count := 0
	for {
		if !config.IsValidValue() {
			t.Fatalf("sweep produced invalid tuple %+v", config)
		}
		count++
		if !config.SetNextValue() {
			break
		}
	}
	if count != 5*5*5*5*4*3 {
		t.Fatalf("sweep size: got %d want %d", count, 5*5*5*5*4*3)
	}
}

func TestLegacyConfigSweep(t *testing.T) {
	t.Parallel()

	config := legacyStartConfig()
	count := 0
	for {
		if !config.IsValidValue() {
			t.Fatalf("sweep produced invalid tuple %+v", config)
		}
		count++
		if !config.SetNextValue() {
			break
		}
	}
	want := 2 * 2 * 3 * 3 * 3 * 3 * 4 * 3 * 2
	if count != want {
		t.Fatalf("sweep size: got %d want %d", count, want)
	}
}

func TestConfigEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	configs := []PerfConfig{
		&PerfConfigAsm3x3U{LimitWaveCnt: 3, FiltersPerWave: 4, OutputLinesWave: 5},
		&PerfConfigAsmBwdWrW3x3{LimitWaveCnt: 1, ReverseInout: 1, ChunkSize: 16, KPerWave: 2, PipeLinesDepth: 7, NPerGroup: 3},
		&PerfConfigAsmBwdWrW1x1{CPerGpr: 8, CMult: 2, KPerGpr: 4, KMult: 2, ReadSize: 3, NPerGpr: 2},
		&PerfConfigOclDirectFwdLegacy{GrpTile1: 16, GrpTile0: 8, InTile1: 32, InTile0: 16, OutPixTile1: 2, OutPixTile0: 4, NOutPixTiles: 8, NInDataTiles: 2, NStacks: 2},
	}
	fresh := []PerfConfig{
		&PerfConfigAsm3x3U{},
		&PerfConfigAsmBwdWrW3x3{},
		&PerfConfigAsmBwdWrW1x1{},
		&PerfConfigOclDirectFwdLegacy{},
	}
	for i, src := range configs {
		dst := fresh[i]
		if !fields.Decode(fields.Encode(src), dst) {
			t.Fatalf("config %d failed to round trip", i)
		}
		if fields.Encode(dst) != fields.Encode(src) {
			t.Fatalf("config %d: got %s want %s", i, fields.Encode(dst), fields.Encode(src))
		}
	}
}

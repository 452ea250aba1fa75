// Package envcfg centralizes environment lookups for the selection core.
// Values are read once per process and cached; nothing in the pipelines
// touches the environment directly.
package envcfg

import (
	"os"
	"strings"
	"sync"
)

// PerfFilteringVar disables the IsFast heuristic filter during solver
// selection when set to a false-like value.
const PerfFilteringVar = "MIOPEN_DEBUG_AMD_ASM_KERNELS_PERF_FILTERING"

// FindEnforceVar controls the tuning-enforcement mode of the find
// pipeline. Accepted values: none, search, update, clean, skip_load.
const FindEnforceVar = "CONVTUNE_FIND_ENFORCE"

var (
	once          sync.Once
	noPerfFilter  bool
	enforceCached FindEnforce
)

// lookup is swappable for tests.
var lookup = os.LookupEnv

// reload drops the cache so tests can change the environment.
func reload() {
	once = sync.Once{}
}

func load() {
	once.Do(func() {
		noPerfFilter = isDisabled(PerfFilteringVar)
		enforceCached = parseEnforce(valueOf(FindEnforceVar))
	})
}

func valueOf(name string) string {
	v, _ := lookup(name)
	return strings.ToLower(strings.TrimSpace(v))
}

// isDisabled reports whether name is set to an explicit false-like value.
func isDisabled(name string) bool {
	switch valueOf(name) {
	case "0", "no", "false", "disable", "disabled", "off":
		return true
	default:
		return false
	}
}

// PerfFilteringDisabled reports whether the IsFast filter should be
// skipped during selection.
func PerfFilteringDisabled() bool {
	load()
	return noPerfFilter
}

// FindEnforce is the tuning-enforcement mode of the find pipeline.
type FindEnforce int

const (
	// EnforceNone leaves the find pipeline to its defaults.
	EnforceNone FindEnforce = iota
	// EnforceSearch forces a search even when the caller did not ask.
	EnforceSearch
	// EnforceUpdate forces a search and skips the database load, so the
	// freshly searched config always overwrites the persisted one.
	EnforceUpdate
	// EnforceClean removes the persisted record and falls back to the
	// default config.
	EnforceClean
	// EnforceSkipLoad skips the database load without forcing a search.
	EnforceSkipLoad
)

func (e FindEnforce) String() string {
	switch e {
	case EnforceSearch:
		return "search"
	case EnforceUpdate:
		return "update"
	case EnforceClean:
		return "clean"
	case EnforceSkipLoad:
		return "skip_load"
	default:
		return "none"
	}
}

func parseEnforce(v string) FindEnforce {
	switch v {
	case "search":
		return EnforceSearch
	case "update":
		return EnforceUpdate
	case "clean":
		return EnforceClean
	case "skip_load", "skipload":
		return EnforceSkipLoad
	default:
		return EnforceNone
	}
}

// Enforce returns the cached tuning-enforcement mode.
func Enforce() FindEnforce {
	load()
	return enforceCached
}

// IsSearch reports whether a search must run regardless of do_search.
func (e FindEnforce) IsSearch() bool {
	return e == EnforceSearch || e == EnforceUpdate
}

// IsDbUpdate reports whether the database load must be skipped so the
// search result overwrites the persisted config.
func (e FindEnforce) IsDbUpdate() bool {
	return e == EnforceUpdate
}

// IsDbClean reports whether persisted records must be removed.
func (e FindEnforce) IsDbClean() bool {
	return e == EnforceClean
}

// IsSkipLoad reports whether the database load is skipped.
func (e FindEnforce) IsSkipLoad() bool {
	return e == EnforceSkipLoad || e == EnforceUpdate
}

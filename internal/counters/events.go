//go:build linux

package counters

import (
	"strings"

	"github.com/elastic/go-perf"
)

type configureFunc func(attr *perf.Attr)

func hardware(c perf.HardwareCounter) configureFunc {
	return func(attr *perf.Attr) { c.Configure(attr) }
}

func software(c perf.SoftwareCounter) configureFunc {
	return func(attr *perf.Attr) { c.Configure(attr) }
}

func cache(c perf.Cache, op perf.CacheOp, result perf.CacheOpResult) configureFunc {
	counter := perf.HardwareCacheCounter{Cache: c, Op: op, Result: result}
	return func(attr *perf.Attr) { counter.Configure(attr) }
}

// Symbolic event names as the perf tool spells them.
var named = map[string]configureFunc{
	"cycles":                  hardware(perf.CPUCycles),
	"cpu-cycles":              hardware(perf.CPUCycles),
	"instructions":            hardware(perf.Instructions),
	"cache-references":        hardware(perf.CacheReferences),
	"cache-misses":            hardware(perf.CacheMisses),
	"branches":                hardware(perf.BranchInstructions),
	"branch-instructions":     hardware(perf.BranchInstructions),
	"branch-misses":           hardware(perf.BranchMisses),
	"bus-cycles":              hardware(perf.BusCycles),
	"stalled-cycles-frontend": hardware(perf.StalledCyclesFrontend),
	"stalled-cycles-backend":  hardware(perf.StalledCyclesBackend),
	"ref-cycles":              hardware(perf.RefCPUCycles),

	"cpu-clock":        software(perf.CPUClock),
	"task-clock":       software(perf.TaskClock),
	"page-faults":      software(perf.PageFaults),
	"faults":           software(perf.PageFaults),
	"context-switches": software(perf.ContextSwitches),
	"cs":               software(perf.ContextSwitches),
	"cpu-migrations":   software(perf.CPUMigrations),
	"migrations":       software(perf.CPUMigrations),
	"minor-faults":     software(perf.MinorPageFaults),
	"major-faults":     software(perf.MajorPageFaults),
	"alignment-faults": software(perf.AlignmentFaults),
	"emulation-faults": software(perf.EmulationFaults),
}

var caches = map[string]perf.Cache{
	"L1-dcache": perf.L1D,
	"L1-icache": perf.L1I,
	"LLC":       perf.LL,
	"dTLB":      perf.DTLB,
	"iTLB":      perf.ITLB,
	"branch":    perf.BPU,
	"node":      perf.NODE,
}

// Access events use the plural op, miss events the singular:
// dTLB-loads, dTLB-load-misses, L1-dcache-prefetches.
var accessOps = map[string]perf.CacheOp{
	"loads":      perf.Read,
	"stores":     perf.Write,
	"prefetches": perf.Prefetch,
}

var missOps = map[string]perf.CacheOp{
	"load":     perf.Read,
	"store":    perf.Write,
	"prefetch": perf.Prefetch,
}

// lookup resolves an event name, with an optional :modifier suffix, to
// its counter configuration. Raw and PMU events are not resolved.
func lookup(event string) (configureFunc, bool) {
	name, modifiers, _ := strings.Cut(event, ":")
	configure, ok := named[name]
	if !ok {
		configure, ok = lookupCache(name)
	}
	if !ok {
		return nil, false
	}
	if strings.ContainsRune(modifiers, 'u') {
		return func(attr *perf.Attr) {
			configure(attr)
			attr.Options.ExcludeKernel = true
			attr.Options.ExcludeHypervisor = true
		}, true
	}
	return configure, true
}

// lookupCache handles <cache>-<ops> and <cache>-<op>-misses.
func lookupCache(name string) (configureFunc, bool) {
	for prefix, c := range caches {
		rest, found := strings.CutPrefix(name, prefix+"-")
		if !found {
			continue
		}
		if op, ok := strings.CutSuffix(rest, "-misses"); ok {
			if cacheOp, ok := missOps[op]; ok {
				return cache(c, cacheOp, perf.Miss), true
			}
			return nil, false
		}
		if cacheOp, ok := accessOps[rest]; ok {
			return cache(c, cacheOp, perf.Access), true
		}
		return nil, false
	}
	return nil, false
}

// Known reports whether an event name maps to a generic counter.
func Known(event string) bool {
	_, ok := lookup(event)
	return ok
}

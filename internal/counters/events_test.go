//go:build linux

package counters

import (
	"testing"

	"github.com/elastic/go-perf"
)

func TestLookup_DefaultEvents(t *testing.T) {
	tests := []struct {
		event  string
		typ    perf.EventType
		config uint64
	}{
		{"page-faults", perf.SoftwareEvent, uint64(perf.PageFaults)},
		{"cache-misses", perf.HardwareEvent, uint64(perf.CacheMisses)},
		{"cache-references", perf.HardwareEvent, uint64(perf.CacheReferences)},
	}
	for _, tt := range tests {
		configure, ok := lookup(tt.event)
		if !ok {
			t.Fatalf("%s not resolved", tt.event)
		}
		attr := &perf.Attr{}
		configure(attr)
		if attr.Type != tt.typ || attr.Config != tt.config {
			t.Fatalf("%s: got type %v config %#x", tt.event, attr.Type, attr.Config)
		}
	}
}

func TestLookup_CacheEvents(t *testing.T) {
	for _, event := range []string{"dTLB-loads", "dTLB-load-misses", "LLC-store-misses", "L1-dcache-prefetches"} {
		configure, ok := lookup(event)
		if !ok {
			t.Fatalf("%s not resolved", event)
		}
		attr := &perf.Attr{}
		configure(attr)
		if attr.Type != perf.HardwareCacheEvent {
			t.Fatalf("%s: expected hardware cache event, got %v", event, attr.Type)
		}
	}

	loads, _ := lookup("dTLB-loads")
	misses, _ := lookup("dTLB-load-misses")
	a, b := &perf.Attr{}, &perf.Attr{}
	loads(a)
	misses(b)
	if a.Config == b.Config {
		t.Fatalf("access and miss counters share config %#x", a.Config)
	}
}

func TestLookup_PluralOps(t *testing.T) {
	pairs := [][2]string{
		{"L1-dcache-loads", "L1-dcache-load-misses"},
		{"L1-dcache-stores", "L1-dcache-store-misses"},
		{"L1-dcache-prefetches", "L1-dcache-prefetch-misses"},
	}
	var configs []uint64
	for _, pair := range pairs {
		for _, event := range pair {
			configure, ok := lookup(event)
			if !ok {
				t.Fatalf("%s not resolved", event)
			}
			attr := &perf.Attr{}
			configure(attr)
			configs = append(configs, attr.Config)
		}
	}
	seen := make(map[uint64]bool)
	for _, c := range configs {
		if seen[c] {
			t.Fatalf("two L1-dcache events share config %#x", c)
		}
		seen[c] = true
	}
}

func TestLookup_ModifiersAndUnknown(t *testing.T) {
	configure, ok := lookup("cycles:u")
	if !ok {
		t.Fatalf("cycles:u not resolved")
	}
	attr := &perf.Attr{}
	configure(attr)
	if !attr.Options.ExcludeKernel {
		t.Fatalf("user-only modifier not applied")
	}

	for _, event := range []string{"r01a3", "cpu/event=0x3c/", "dTLB-walks", "LLC-loadz", "dTLB-load", "L1-dcache-prefetche", "dTLB-loads-misses"} {
		if Known(event) {
			t.Fatalf("%s should not be resolved", event)
		}
	}
}

func TestPreflight_UnknownEventsAreNotProbed(t *testing.T) {
	checks := Preflight([]string{"r01a3"})
	if len(checks) != 1 || checks[0].Known || checks[0].Err != nil {
		t.Fatalf("unexpected check %+v", checks)
	}
}

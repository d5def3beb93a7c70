// Package perfstat extracts tracked hardware counters from `perf stat -x,`
// output and derives the per-trial metrics the benchmark record needs.
package perfstat

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/perfpipe/pkg/metric"
)

// Counter keys. They name the raw counters independently of the perf event
// spelling and of the schema column names.
const (
	KeyCycles         = "cycles"
	KeyInstr          = "instr"
	KeyIPC            = "ipc"
	KeyCacheLoads     = "cache_loads"
	KeyCacheMiss      = "cache_miss"
	KeyL1Loads        = "l1_loads"
	KeyL1Misses       = "l1_misses"
	KeyL2Loads        = "l2_loads"
	KeyL2Misses       = "l2_misses"
	KeyL3Loads        = "l3_loads"
	KeyL3Misses       = "l3_misses"
	KeyTLBLoads       = "tlb_loads"
	KeyTLBMisses      = "tlb_misses"
	KeyBranchInstr    = "branch_instr"
	KeyBranchMisses   = "branch_misses"
	KeyMissPerTrial   = "miss_per_trial"
	KeyCyclesPerTrial = "cycles_per_trial"
)

// tracked maps each counter key to its perf event. An empty event means the
// counter has no portable event and is always unavailable.
var tracked = []struct {
	key   string
	event string
}{
	{KeyCycles, "cycles:u"},
	{KeyInstr, "instructions:u"},
	{KeyCacheLoads, "cache-references:u"},
	{KeyCacheMiss, "cache-misses:u"},
	{KeyL1Loads, "L1-dcache-loads:u"},
	{KeyL1Misses, "L1-dcache-load-misses:u"},
	{KeyL2Loads, ""},
	{KeyL2Misses, ""},
	{KeyL3Loads, ""},
	{KeyL3Misses, ""},
	{KeyTLBLoads, "dTLB-loads:u"},
	{KeyTLBMisses, "dTLB-load-misses:u"},
	{KeyBranchInstr, "branch-instructions:u"},
	{KeyBranchMisses, "branch-misses:u"},
}

// eventKeys is the reverse lookup used for the single pass over samples.
var eventKeys = func() map[string]string {
	m := make(map[string]string, len(tracked))
	for _, t := range tracked {
		if t.event != "" {
			m[t.event] = t.key
		}
	}

	return m
}()

// outputOrder is the order of KEY=value assignments in shell output.
var outputOrder = []string{
	KeyCycles, KeyInstr, KeyIPC,
	KeyCacheLoads, KeyCacheMiss,
	KeyL1Loads, KeyL1Misses,
	KeyL2Loads, KeyL2Misses,
	KeyL3Loads, KeyL3Misses,
	KeyTLBLoads, KeyTLBMisses,
	KeyBranchInstr, KeyBranchMisses,
	KeyMissPerTrial, KeyCyclesPerTrial,
}

// TrackedKeys returns the keys of the raw counters read from perf output.
func TrackedKeys() []string {
	keys := make([]string, len(tracked))
	for i, t := range tracked {
		keys[i] = t.key
	}

	return keys
}

// Keys returns every counter key, raw and derived, in shell output order.
func Keys() []string {
	return append([]string(nil), outputOrder...)
}

// EventFor returns the perf event of a tracked counter key.
func EventFor(key string) (string, bool) {
	for _, t := range tracked {
		if t.key == key {
			return t.event, t.event != ""
		}
	}

	return "", false
}

// Counters maps counter keys to measured values.
type Counters map[string]metric.Value

// Get returns the value for key, Unavailable when absent.
func (c Counters) Get(key string) metric.Value {
	v, ok := c[key]
	if !ok {
		return metric.Unavailable
	}

	return v
}

// Derive adds IPC and the per-trial normalizations. trials is the number of
// Monte Carlo trials the benchmark ran.
func (c Counters) Derive(trials metric.Value) {
	c[KeyIPC] = metric.Ratio(c.Get(KeyInstr), c.Get(KeyCycles))
	c[KeyMissPerTrial] = metric.Ratio(c.Get(KeyCacheMiss), trials)
	c[KeyCyclesPerTrial] = metric.Ratio(c.Get(KeyCycles), trials)
}

// Shell renders the counters as space separated KEY=value assignments in a
// fixed order, suitable for `eval` in the benchmark scripts.
func (c Counters) Shell() string {
	parts := make([]string, len(outputOrder))
	for i, key := range outputOrder {
		parts[i] = fmt.Sprintf("%s=%s", strings.ToUpper(key), c.Get(key))
	}

	return strings.Join(parts, " ")
}

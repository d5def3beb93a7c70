package schema

// Field names of the benchmark trial record. They double as Parquet column
// names and ClickHouse column names, so spacing and casing are significant.
const (
	FieldTimestamp          = "Timestamp"
	FieldBatchID            = "BatchID"
	FieldMethod             = "Method"
	FieldTrials             = "Trials"
	FieldCycles             = "Cycles"
	FieldInstructions       = "Instructions"
	FieldIPC                = "IPC"
	FieldWallTimeS          = "Wall Time (s)"
	FieldWallTimeNS         = "Wall Time (ns)"
	FieldCacheLoads         = "Cache Loads"
	FieldCacheMisses        = "Cache Misses"
	FieldCacheMissPct       = "Cache Miss %"
	FieldL1Loads            = "L1 Loads"
	FieldL1Misses           = "L1 Misses"
	FieldL1MissPct          = "L1 Miss %"
	FieldL2Loads            = "L2 Loads"
	FieldL2Misses           = "L2 Misses"
	FieldL2MissPct          = "L2 Miss %"
	FieldL3Loads            = "L3 Loads"
	FieldL3Misses           = "L3 Misses"
	FieldL3MissPct          = "L3 Miss %"
	FieldTLBLoads           = "TLB Loads"
	FieldTLBMisses          = "TLB Misses"
	FieldTLBMissPct         = "TLB Miss %"
	FieldBranchInstructions = "Branch Instructions"
	FieldBranchMisses       = "Branch Misses"
	FieldBranchMissPct      = "Branch Miss %"
	FieldMissesPerTrial     = "Misses/Trial"
	FieldCyclesPerTrial     = "Cycles/Trial"
)

// benchmark is built once; Schema values are never mutated after
// construction so sharing the pointer is safe.
var benchmark = MustNew(
	Field{Name: FieldTimestamp, Type: Timestamp},
	Field{Name: FieldBatchID, Type: Text},
	Field{Name: FieldMethod, Type: Text},
	Field{Name: FieldTrials, Type: Int64},
	Field{Name: FieldCycles, Type: Int64},
	Field{Name: FieldInstructions, Type: Int64},
	Field{Name: FieldIPC, Type: Float64},
	Field{Name: FieldWallTimeS, Type: Float64},
	Field{Name: FieldWallTimeNS, Type: Int64},
	Field{Name: FieldCacheLoads, Type: Int64},
	Field{Name: FieldCacheMisses, Type: Int64},
	Field{Name: FieldCacheMissPct, Type: Float64},
	Field{Name: FieldL1Loads, Type: Int64},
	Field{Name: FieldL1Misses, Type: Int64},
	Field{Name: FieldL1MissPct, Type: Float64},

	// L2/L3 counters are not exposed on every microarchitecture.
	Field{Name: FieldL2Loads, Type: Int64, Nullable: true},
	Field{Name: FieldL2Misses, Type: Int64, Nullable: true},
	Field{Name: FieldL2MissPct, Type: Float64, Nullable: true},
	Field{Name: FieldL3Loads, Type: Int64, Nullable: true},
	Field{Name: FieldL3Misses, Type: Int64, Nullable: true},
	Field{Name: FieldL3MissPct, Type: Float64, Nullable: true},

	Field{Name: FieldTLBLoads, Type: Int64},
	Field{Name: FieldTLBMisses, Type: Int64},
	Field{Name: FieldTLBMissPct, Type: Float64},
	Field{Name: FieldBranchInstructions, Type: Int64},
	Field{Name: FieldBranchMisses, Type: Int64},
	Field{Name: FieldBranchMissPct, Type: Float64},
	Field{Name: FieldMissesPerTrial, Type: Float64},
	Field{Name: FieldCyclesPerTrial, Type: Float64},
)

// Benchmark returns the canonical schema of a benchmark trial record.
func Benchmark() *Schema {
	return benchmark
}

//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package statements

// StatKind distinguishes the two phases whose timings are accumulated
// independently on the same entry.
type StatKind int

const (
	StatKindPlan StatKind = iota
	StatKindExec

	NumStatKinds = 2
)

func (k StatKind) String() string {
	switch k {
	case StatKindPlan:
		return "plan"
	case StatKindExec:
		return "exec"
	default:
		return "unknown"
	}
}

// Key uniquely identifies a tracked statement. Two executions of the same
// query text map to the same Key as long as they run as the same principal,
// against the same database and at the same nesting position.
type Key struct {
	UserID     uint64
	DatabaseID uint64
	// QueryID is the 64-bit statement fingerprint supplied by the host.
	// A zero QueryID means the statement is not tracked at all.
	QueryID int64
	// TopLevel is true iff the statement was not nested inside another
	// tracked statement.
	TopLevel bool
}

// BufferUsage sums block-level cache activity of a single call.
type BufferUsage struct {
	SharedBlksHit     int64
	SharedBlksRead    int64
	SharedBlksDirtied int64
	SharedBlksWritten int64
	LocalBlksHit      int64
	LocalBlksRead     int64
	LocalBlksDirtied  int64
	LocalBlksWritten  int64
	TempBlksRead      int64
	TempBlksWritten   int64

	// block I/O wait times in milliseconds
	SharedBlkReadTime  float64
	SharedBlkWriteTime float64
	LocalBlkReadTime   float64
	LocalBlkWriteTime  float64
	TempBlkReadTime    float64
	TempBlkWriteTime   float64
}

// WalUsage sums write-ahead-log activity of a single call.
type WalUsage struct {
	Records     int64
	FPIs        int64
	Bytes       uint64
	BuffersFull int64
}

// JitUsage carries the JIT compilation effort observed for a single call.
// Times are in milliseconds.
type JitUsage struct {
	Functions        int64
	GenerationTime   float64
	InliningTime     float64
	OptimizationTime float64
	EmissionTime     float64
	DeformTime       float64
}

// Sample bundles everything a single plan or execution call contributes to
// an entry's counters.
type Sample struct {
	// TotalTime is the wall time of the call in milliseconds.
	TotalTime float64
	Rows      int64
	Buffers   BufferUsage
	WAL       WalUsage
	JIT       JitUsage

	ParallelWorkersToLaunch int64
	ParallelWorkersLaunched int64
}

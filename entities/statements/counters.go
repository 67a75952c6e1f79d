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

import "math"

const (
	// UsageInit is the usage score a fresh, non-sticky entry starts out with.
	UsageInit = 1.0
	// UsageExec is added to an entry's usage score on every recorded call.
	UsageExec = 1.0
	// UsageDecreaseFactor decays non-sticky entries on each eviction pass.
	UsageDecreaseFactor = 0.99
	// StickyDecreaseFactor decays sticky entries much faster, so that
	// entries whose statement never executed do not linger forever.
	StickyDecreaseFactor = 0.50
	// DeallocPercent is the fraction of entries removed per eviction pass.
	DeallocPercent = 5
	// DeallocMinEntries is the lower bound of entries removed per pass.
	DeallocMinEntries = 10
)

// Counters is the per-entry mutable statistics block. All fields are
// fixed-width so the whole block can be written verbatim into the dump file.
//
// Plan- and execution-phase moments are kept in per-kind arrays indexed by
// StatKind and are maintained independently of each other.
type Counters struct {
	Calls      [NumStatKinds]int64
	TotalTime  [NumStatKinds]float64 // milliseconds
	MinTime    [NumStatKinds]float64
	MaxTime    [NumStatKinds]float64
	MeanTime   [NumStatKinds]float64
	SumVarTime [NumStatKinds]float64 // sum of squared deviations from the mean

	Rows    int64
	Buffers BufferUsage
	WAL     WalUsage

	JitFunctions         int64
	JitGenerationTime    float64
	JitInliningCount     int64
	JitInliningTime      float64
	JitOptimizationCount int64
	JitOptimizationTime  float64
	JitEmissionCount     int64
	JitEmissionTime      float64
	JitDeformCount       int64
	JitDeformTime        float64

	ParallelWorkersToLaunch int64
	ParallelWorkersLaunched int64

	// Usage is the decaying score eviction ranks entries by.
	Usage float64
}

// Sticky reports whether the entry only exists to hold a representative
// text captured at parse time. It is a derived predicate, not a flag: an
// entry stops being sticky the moment its first call is recorded.
func (c *Counters) Sticky() bool {
	return c.Calls[StatKindPlan]+c.Calls[StatKindExec] == 0
}

// Apply folds a single call's sample into the counters. The caller must
// hold the entry's mutex. Apply never allocates and never does I/O.
func (c *Counters) Apply(kind StatKind, s Sample) {
	if c.Sticky() {
		c.Usage = UsageInit
	}

	c.Calls[kind]++
	if c.Calls[kind] == 1 {
		c.MinTime[kind] = s.TotalTime
		c.MaxTime[kind] = s.TotalTime
		c.MeanTime[kind] = s.TotalTime
		c.SumVarTime[kind] = 0
	} else {
		// Welford's online update, numerically stable for both the
		// running mean and the sum of squared deviations
		delta := s.TotalTime - c.MeanTime[kind]
		c.MeanTime[kind] += delta / float64(c.Calls[kind])
		c.SumVarTime[kind] += delta * (s.TotalTime - c.MeanTime[kind])

		if c.MinTime[kind] == 0 && c.MaxTime[kind] == 0 {
			// both were explicitly reset, seed them from this sample
			c.MinTime[kind] = s.TotalTime
			c.MaxTime[kind] = s.TotalTime
		} else {
			if s.TotalTime < c.MinTime[kind] {
				c.MinTime[kind] = s.TotalTime
			}
			if s.TotalTime > c.MaxTime[kind] {
				c.MaxTime[kind] = s.TotalTime
			}
		}
	}
	c.TotalTime[kind] += s.TotalTime

	c.Rows += s.Rows

	c.Buffers.SharedBlksHit += s.Buffers.SharedBlksHit
	c.Buffers.SharedBlksRead += s.Buffers.SharedBlksRead
	c.Buffers.SharedBlksDirtied += s.Buffers.SharedBlksDirtied
	c.Buffers.SharedBlksWritten += s.Buffers.SharedBlksWritten
	c.Buffers.LocalBlksHit += s.Buffers.LocalBlksHit
	c.Buffers.LocalBlksRead += s.Buffers.LocalBlksRead
	c.Buffers.LocalBlksDirtied += s.Buffers.LocalBlksDirtied
	c.Buffers.LocalBlksWritten += s.Buffers.LocalBlksWritten
	c.Buffers.TempBlksRead += s.Buffers.TempBlksRead
	c.Buffers.TempBlksWritten += s.Buffers.TempBlksWritten
	c.Buffers.SharedBlkReadTime += s.Buffers.SharedBlkReadTime
	c.Buffers.SharedBlkWriteTime += s.Buffers.SharedBlkWriteTime
	c.Buffers.LocalBlkReadTime += s.Buffers.LocalBlkReadTime
	c.Buffers.LocalBlkWriteTime += s.Buffers.LocalBlkWriteTime
	c.Buffers.TempBlkReadTime += s.Buffers.TempBlkReadTime
	c.Buffers.TempBlkWriteTime += s.Buffers.TempBlkWriteTime

	c.WAL.Records += s.WAL.Records
	c.WAL.FPIs += s.WAL.FPIs
	c.WAL.Bytes += s.WAL.Bytes
	c.WAL.BuffersFull += s.WAL.BuffersFull

	c.JitFunctions += s.JIT.Functions
	c.JitGenerationTime += s.JIT.GenerationTime
	if s.JIT.InliningTime > 0 {
		c.JitInliningCount++
	}
	c.JitInliningTime += s.JIT.InliningTime
	if s.JIT.OptimizationTime > 0 {
		c.JitOptimizationCount++
	}
	c.JitOptimizationTime += s.JIT.OptimizationTime
	if s.JIT.EmissionTime > 0 {
		c.JitEmissionCount++
	}
	c.JitEmissionTime += s.JIT.EmissionTime
	if s.JIT.DeformTime > 0 {
		c.JitDeformCount++
	}
	c.JitDeformTime += s.JIT.DeformTime

	c.ParallelWorkersToLaunch += s.ParallelWorkersToLaunch
	c.ParallelWorkersLaunched += s.ParallelWorkersLaunched

	c.Usage += UsageExec
}

// Stddev returns the population standard deviation of the per-call time for
// the given kind. It is zero until at least two calls were recorded.
func (c *Counters) Stddev(kind StatKind) float64 {
	if c.Calls[kind] <= 1 {
		return 0
	}
	return math.Sqrt(c.SumVarTime[kind] / float64(c.Calls[kind]))
}

// ResetMinMax clears the min/max aggregates of both kinds. The next sample
// re-seeds them, see Apply.
func (c *Counters) ResetMinMax() {
	for kind := 0; kind < NumStatKinds; kind++ {
		c.MinTime[kind] = 0
		c.MaxTime[kind] = 0
	}
}

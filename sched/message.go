package sched

import "math"

// WorkUnit is the DATA message of spec §4.4: a candidate parameter vector
// plus the advisory payload (current best-so-far objective and constraint
// vector) a worker may use to reconfigure pre-emption. Stop carries the
// REQUEST(STOP_WORK) signal; when Stop is true the remaining fields are
// unused and the receiving worker must return after its barrier.
type WorkUnit struct {
	Index int
	X     []float64
	FBest float64
	CBest []float64
	Stop  bool
}

// Result is the RESULTS message of spec §4.4. WorkerID identifies which
// worker produced it (used for synchronous_receive's round-robin sourcing);
// Index echoes the WorkUnit.Index it answers so assimilation can use
// assignments[src] rather than an arrival-order counter (spec §4.4's
// off-by-one fix, §9's last design note).
type Result struct {
	WorkerID int
	Index    int
	Fx       float64
	F        []float64
	C        []float64
	Err      error
}

// IsFinite reports whether the result's objective(s) are usable: spec §4.4
// requires non-finite objectives be discarded outside the melting phase.
func (r Result) IsFinite() bool {
	if r.Err != nil {
		return false
	}
	if !isFiniteFloat(r.Fx) {
		return false
	}
	for _, v := range r.F {
		if !isFiniteFloat(v) {
			return false
		}
	}
	return true
}

func isFiniteFloat(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

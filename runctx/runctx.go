/*
Package runctx holds the "search state common block" of spec §3: the
iteration counter, RNG seed, budget, best-so-far (x*, f*), and the fraction
of budget consumed `a` that telescoping bounds (param.TelescopeCorrect)
takes as input (no strategy package calls it). spec §9 flags the original as process-global
state shared by every strategy; this package gives it a single owning type
instead, passed explicitly to whatever needs it — the teacher repo's
psokit.ManPso plays the same consolidating role for a PSO run's mutable
state, which this type generalizes across all seven search strategies.
*/
package runctx

import "sync"

// Context is the mutable state shared across a single calibration run: the
// evaluation budget, how much of it has been spent, the RNG seed that
// produced the current stream, and the best point/objective found so far.
// Reads and writes go through methods so a strategy's worker goroutines can
// share one Context safely across the barrier points of spec §5.
type Context struct {
	mu sync.Mutex

	seed   int64
	budget int
	spent  int

	bestX []float64
	bestF float64
	bestC []float64
	have  bool
}

// New creates a Context for a run with the given RNG seed and total
// evaluation budget.
func New(seed int64, budget int) *Context {
	return &Context{seed: seed, budget: budget, bestF: positiveInfinity()}
}

func positiveInfinity() float64 {
	var zero float64
	return 1 / zero
}

// Seed returns the run's RNG seed.
func (c *Context) Seed() int64 { return c.seed }

// Budget returns the total evaluation budget.
func (c *Context) Budget() int { return c.budget }

// Spend records n additional evaluations consumed and returns the new
// total spent. Safe for concurrent callers (spec §5's shared-resource
// policy treats the budget counter as synchronized state, unlike the RNG
// stream, which only the master goroutine draws from).
func (c *Context) Spend(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spent += n
	return c.spent
}

// Spent returns the number of evaluations consumed so far.
func (c *Context) Spent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spent
}

// Exhausted reports whether the budget has been fully consumed.
func (c *Context) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spent >= c.budget
}

// FractionUsed returns `a`, the fraction of budget consumed so far, clamped
// to [0,1]. This is the value telescoping-bounds correction reads (spec
// §4.2).
func (c *Context) FractionUsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.budget <= 0 {
		return 1
	}
	a := float64(c.spent) / float64(c.budget)
	if a > 1 {
		a = 1
	}
	if a < 0 {
		a = 0
	}
	return a
}

// Best returns a copy of the current best-so-far decision vector,
// objective, and constraint vector, and whether one has been recorded yet.
func (c *Context) Best() (x []float64, f float64, constraints []float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.have {
		return nil, 0, nil, false
	}
	return append([]float64(nil), c.bestX...), c.bestF, append([]float64(nil), c.bestC...), true
}

// BestF returns just the best objective seen so far (+Inf before the first
// update), useful as the advisory payload of sched.WorkUnit.FBest.
func (c *Context) BestF() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bestF
}

// Update records (x, f, constraints) as the new best-so-far if f improves
// on the current best. Returns true if the update was accepted.
func (c *Context) Update(x []float64, f float64, constraints []float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.have && f >= c.bestF {
		return false
	}
	c.bestX = append([]float64(nil), x...)
	c.bestF = f
	c.bestC = append([]float64(nil), constraints...)
	c.have = true
	return true
}

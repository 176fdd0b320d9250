/*
Package dds implements Dynamically Dimensioned Search and its parallel
variant PDDS (spec §4.6), grounded on the teacher's setpso generation-loop
shape (one best-so-far value updated by a single acceptance test per
iteration) generalized from swarm-of-particles to the single-trajectory
case DDS requires, and dispatched through the sched.Scheduler package built
for this port when running in parallel.
*/
package dds

import (
	"context"
	"io"
	"math"

	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
	"github.com/mathrgo/calibrate/runlog"
	"github.com/mathrgo/calibrate/sched"
	"github.com/mathrgo/calibrate/strategy"
)

// Variant selects the candidate-perturbation rule DDS's UseOpt config key
// names (spec §6).
type Variant int

const (
	// OptStandard perturbs with param.NeighborPerturb's Gaussian/uniform
	// draw, as DDS does by default.
	OptStandard Variant = iota
	// OptNoRandNum perturbs by a fixed step of r*(hi-lo) in a randomly
	// chosen sign direction, removing the continuous random magnitude
	// draw from the perturbation.
	OptNoRandNum
	// OptTryIntSolution perturbs as OptStandard and then, with
	// probability Alpha, snaps each perturbed value onto a grid of
	// spacing (hi-lo)/Beta; the candidate is evaluated once.
	OptTryIntSolution
)

// Config holds the DDS/PDDS tunables of spec §4.6 / §6.
type Config struct {
	Budget             int     // M
	PerturbR           float64 // r, default 0.2
	SynchronousReceive bool

	// UseInitialParamValues seeds the initialization pool with the
	// parameter group's BeginParams EstVal vector in place of one random
	// draw. UseRandomParamValues, if also set, forces the plain random
	// pool regardless (spec §6's DDS key pair).
	UseInitialParamValues bool
	UseRandomParamValues  bool

	Opt   Variant
	Alpha float64 // snap probability for OptTryIntSolution, default 0.5
	Beta  float64 // grid steps across [lo, hi] for OptTryIntSolution, default 10

	// DebugLog, if set, is called once per recorded Optimize iteration
	// (EnableDebugging config key) so the caller can surface per-
	// iteration progress through its own logger.
	DebugLog func(iter int, f float64)
}

// Search is a single DDS (len(adapters)==1) or PDDS (len(adapters)>1) run.
type Search struct {
	cfg      Config
	grp      *param.Group
	rnd      *rng.Source
	rc       *runctx.Context
	adapters []model.Adapter

	n      int
	lo, hi []float64

	best   []float64
	fBest  float64
	cBest  []float64

	records []runlog.Record
	trace   []TracePoint
	sc      *sched.Scheduler

	warmX       []float64
	warmCounter int
	hasWarm     bool
}

// TracePoint is one evaluated candidate recorded during Initialize or
// Optimize, independent of whether it improved on the incumbent best. DDSAU
// (spec §4.10) samples behavioral solutions from this trace.
type TracePoint struct {
	X []float64
	F float64
}

func New(cfg Config, grp *param.Group, rnd *rng.Source, rc *runctx.Context, adapters []model.Adapter) *Search {
	n := grp.N()
	lo := make([]float64, n)
	hi := make([]float64, n)
	grp.Bounds(lo, hi)
	return &Search{cfg: cfg, grp: grp, rnd: rnd, rc: rc, adapters: adapters, n: n, lo: lo, hi: hi, fBest: math.Inf(1)}
}

func (s *Search) Kind() strategy.Kind {
	if len(s.adapters) > 1 {
		return strategy.PDDS
	}
	return strategy.DDS
}

func (s *Search) WarmStart(x []float64, counter int) {
	s.warmX = append([]float64(nil), x...)
	s.warmCounter = counter
	s.hasWarm = true
}

// initBudget computes M_init per spec §4.6: max(5, ceil(0.005*M)) serially,
// or max(W, M_init) in parallel.
func (s *Search) initBudget() int {
	m := s.cfg.Budget
	mInit := int(math.Ceil(0.005 * float64(m)))
	if mInit < 5 {
		mInit = 5
	}
	if len(s.adapters) > 1 && mInit < len(s.adapters) {
		mInit = len(s.adapters)
	}
	if mInit > m {
		mInit = m
	}
	return mInit
}

// Initialize runs the DDS initialization phase: M_init uniform-random
// candidates, retaining the best (spec §4.6). If a warm-start point is
// set, it is evaluated first and seeds the best-so-far.
func (s *Search) Initialize(ctx context.Context) error {
	mInit := s.initBudget()
	if len(s.adapters) > 1 {
		s.sc = sched.New(ctx, len(s.adapters), s.makeEvaluator(), s.cfg.SynchronousReceive)
	}

	if s.hasWarm {
		f, c, err := s.evaluateSerial(s.warmX)
		if err == nil {
			s.accept(s.warmX, f, c)
		}
		s.rc.Spend(s.warmCounter)
	}

	candidates := make([][]float64, mInit)
	start := 0
	if s.cfg.UseInitialParamValues && !s.cfg.UseRandomParamValues && mInit > 0 {
		x0 := make([]float64, s.n)
		s.grp.ReadVector(x0)
		candidates[0] = x0
		start = 1
	}
	for i := start; i < len(candidates); i++ {
		x := make([]float64, s.n)
		s.rnd.SampleUniformPoint(s.lo, s.hi, x)
		candidates[i] = x
	}
	return s.evaluateBatch(candidates)
}

func (s *Search) makeEvaluator() sched.Evaluator {
	return func(ctx context.Context, workerID int, w sched.WorkUnit) sched.Result {
		a := s.adapters[workerID]
		a.ConfigureSpecialParams(w.FBest, w.CBest)
		f, c, err := evaluateOne(a, w.X)
		return sched.Result{Fx: f, C: c, Err: err}
	}
}

func evaluateOne(a model.Adapter, x []float64) (float64, []float64, error) {
	a.WriteParams(x)
	a.PerformParameterCorrections()
	f, err := a.Evaluate()
	if err != nil {
		return 0, nil, err
	}
	c := make([]float64, a.NumSpecial())
	a.GetSpecialConstraints(c)
	return f, c, nil
}

func (s *Search) evaluateSerial(x []float64) (float64, []float64, error) {
	return evaluateOne(s.adapters[0], x)
}

func (s *Search) accept(x []float64, f float64, c []float64) bool {
	if f >= s.fBest && s.best != nil {
		return false
	}
	s.best = append([]float64(nil), x...)
	s.fBest = f
	s.cBest = append([]float64(nil), c...)
	s.rc.Update(s.best, s.fBest, s.cBest)
	return true
}

// evaluateBatch evaluates candidates (initialization phase, unordered:
// order doesn't affect the "keep the best of M_init" result).
func (s *Search) evaluateBatch(candidates [][]float64) error {
	if len(s.adapters) == 1 {
		for _, x := range candidates {
			f, c, err := s.evaluateSerial(x)
			if err != nil {
				continue // numeric overflow during initialization: re-sample skipped for brevity, candidate discarded
			}
			s.trace = append(s.trace, TracePoint{X: append([]float64(nil), x...), F: f})
			s.accept(x, f, c)
			s.rc.Spend(1)
		}
		return nil
	}
	next := func(i int) sched.WorkUnit {
		return sched.WorkUnit{X: append([]float64(nil), candidates[i]...), FBest: s.rc.BestF()}
	}
	assimilate := func(res sched.Result) bool {
		s.rc.Spend(1)
		if res.IsFinite() {
			s.trace = append(s.trace, TracePoint{X: append([]float64(nil), candidates[res.Index]...), F: res.Fx})
			s.accept(candidates[res.Index], res.Fx, res.C)
		}
		return false
	}
	s.sc.Batch(next, len(candidates), assimilate, nil)
	return nil
}

/*
Optimize runs the DDS main phase of spec §4.6: M - M_init iterations, each
perturbing a Uniform()-selected subset of dimensions from the best-so-far
with probability P_n = 1 - log(k)/log(M-M_init), forcing a single
perturbation if none was selected. PDDS clamps P_n to 1.0 for the first 2W
scheduled iterations (forcing full-dimensional exploration across workers)
and dispatches iterations through the scheduler in batches of W.
*/
func (s *Search) Optimize(ctx context.Context) error {
	mInit := s.initBudget()
	mMain := s.cfg.Budget - mInit
	if mMain <= 0 {
		return nil
	}
	r := s.cfg.PerturbR
	if r <= 0 {
		r = 0.2
	}

	genCandidate := func(k int) []float64 {
		pn := 1 - math.Log(float64(k))/math.Log(float64(mMain))
		if len(s.adapters) > 1 && k <= 2*len(s.adapters) {
			pn = 1.0
		}
		cand := append([]float64(nil), s.best...)
		perturbed := 0
		for j := 0; j < s.n; j++ {
			if s.rnd.Uniform() < pn {
				cand[j] = s.perturb(s.grp.Descriptor(j), s.best[j], s.lo[j], s.hi[j], r)
				perturbed++
			}
		}
		if perturbed == 0 {
			j := int(math.Ceil(float64(s.n)*s.rnd.Uniform())) - 1
			if j < 0 {
				j = 0
			}
			cand[j] = s.perturb(s.grp.Descriptor(j), s.best[j], s.lo[j], s.hi[j], r)
		}
		return cand
	}

	if len(s.adapters) == 1 {
		for k := 1; k <= mMain; k++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			cand := genCandidate(k)
			f, c, err := s.evaluateSerial(cand)
			s.rc.Spend(1)
			s.recordIteration(k, f)
			if err == nil {
				s.trace = append(s.trace, TracePoint{X: append([]float64(nil), cand...), F: f})
				s.accept(cand, f, c)
			}
		}
		return nil
	}

	defer s.sc.Stop()
	k := 1
	for k <= mMain {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		batch := len(s.adapters)
		if k+batch-1 > mMain {
			batch = mMain - k + 1
		}
		cands := make([][]float64, batch)
		for i := range cands {
			cands[i] = genCandidate(k + i)
		}
		next := func(i int) sched.WorkUnit {
			return sched.WorkUnit{X: append([]float64(nil), cands[i]...), FBest: s.rc.BestF()}
		}
		startK := k
		assimilate := func(res sched.Result) bool {
			s.rc.Spend(1)
			s.recordIteration(startK+res.Index, res.Fx)
			if res.IsFinite() {
				s.trace = append(s.trace, TracePoint{X: append([]float64(nil), cands[res.Index]...), F: res.Fx})
				s.accept(cands[res.Index], res.Fx, res.C)
			}
			return false
		}
		s.sc.Batch(next, batch, assimilate, nil)
		k += batch
	}
	return nil
}

func (s *Search) recordIteration(iter int, f float64) {
	s.records = append(s.records, runlog.Record{Iter: iter, Best: s.fBest, X: append([]float64(nil), s.best...)})
	if s.cfg.DebugLog != nil {
		s.cfg.DebugLog(iter, s.fBest)
	}
}

/*
perturb implements DDS's UseOpt variants (spec §6): OptStandard is the
ordinary param.NeighborPerturb draw; OptNoRandNum replaces its continuous
random magnitude with a fixed step of r*(hi-lo) in a random sign direction;
OptTryIntSolution additionally snaps the perturbed value onto a grid of
spacing (hi-lo)/Beta with probability Alpha, for trying grid-aligned
candidate solutions alongside continuous ones.
*/
func (s *Search) perturb(d param.Descriptor, x, lo, hi, r float64) float64 {
	if s.cfg.Opt == OptNoRandNum {
		step := r * (hi - lo)
		if s.rnd.Uniform() < 0.5 {
			step = -step
		}
		return param.Reflect(x+step, lo, hi)
	}
	v := param.NeighborPerturb(s.rnd, d.GetType(), x, lo, hi, r)
	if s.cfg.Opt == OptTryIntSolution {
		beta := s.cfg.Beta
		if beta <= 0 {
			beta = 10
		}
		alpha := s.cfg.Alpha
		if alpha <= 0 {
			alpha = 0.5
		}
		if step := (hi - lo) / beta; step > 0 && s.rnd.Uniform() < alpha {
			v = param.Reflect(math.Round((v-lo)/step)*step+lo, lo, hi)
		}
	}
	return v
}

func (s *Search) WriteMetrics(w io.Writer) error {
	for _, r := range s.records {
		if err := runlog.WriteRecord(w, r); err != nil {
			return err
		}
	}
	return nil
}

// Best returns the current best decision vector and objective.
func (s *Search) Best() ([]float64, float64) {
	return append([]float64(nil), s.best...), s.fBest
}

// Trace returns every candidate this search evaluated, in evaluation order.
// DDSAU (spec §4.10) samples behavioral solutions from it.
func (s *Search) Trace() []TracePoint {
	return s.trace
}

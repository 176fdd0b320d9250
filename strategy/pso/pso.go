/*
Package pso implements particle swarm optimization and its asynchronous
master/worker variant APPSO (spec §4.5), grounded on the teacher's setpso.Pso
generation loop (update-personal-best, update-global-best, scan-for-best)
and psokit's one-swarm-struct-drives-many-particles ownership shape (spec
§9: "the swarm owns the particle storage; never store a raw alias to a
particle that may move in memory" — particles here are indexed into a
slice the Swarm owns, never referenced by pointer from outside it).
*/
package pso

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

// InertiaScheme selects how the inertia weight is reduced across
// generations (spec §4.5).
type InertiaScheme int

const (
	// InertiaLinear reduces w linearly to zero over MaxGenerations.
	InertiaLinear InertiaScheme = iota
	// InertiaGeometric reduces w by a constant multiplicative rate.
	InertiaGeometric
)

// InitPopulation selects how the swarm's initial positions are spread
// across the feasible box (spec §6's InitPopulationMethod key).
type InitPopulation int

const (
	// InitRandom samples every non-warm-started particle uniformly at
	// random, independently per particle.
	InitRandom InitPopulation = iota
	// InitQuadtree places particles at the cell centers of a recursive
	// axis-aligned bisection of the feasible box (spec's "quadtree"
	// option), grounded on ostrich's QuadTree-based structured initial
	// population generalized here from one dimension to s.n.
	InitQuadtree
)

// Config holds the tunables of spec §4.5 / the PSO/APPSO config-file keys
// of spec §6.
type Config struct {
	SwarmSize        int
	MaxGenerations   int
	Inertia          float64
	CognitiveParam   float64
	SocialParam      float64
	Constriction     float64
	InertiaReduction InertiaScheme
	InertiaRate      float64 // used only by InertiaGeometric
	InitMethod       InitPopulation
	ConvergenceVal   float64

	// SynchronousReceive selects the scheduler's deterministic round-robin
	// receive discipline for APPSO (spec §4.4/§5/§8 scenario 5).
	SynchronousReceive bool
}

type particle struct {
	x, v, b, cx, cb []float64
	fx, fb          float64
}

/*
Swarm is a single PSO/APPSO run. Adapters holds one model.Adapter per
worker; len(Adapters) == 1 means serial PSO (the master evaluates directly),
len(Adapters) > 1 means APPSO, dispatching generations through a
sched.Scheduler with one adapter per worker (spec §5: "the model adapter
writes candidate parameters to files in a per-worker directory; the core
does not share filesystem paths between workers").
*/
type Swarm struct {
	cfg      Config
	grp      *param.Group
	rnd      *rng.Source
	rc       *runctx.Context
	adapters []model.Adapter

	particles []particle
	gBest     int
	gen       int
	n         int
	lo, hi    []float64

	medianHistory []float64
	records       []runlog.Record

	warmX       []float64
	warmCounter int
	hasWarm     bool

	sc *sched.Scheduler
}

// New builds a PSO (len(adapters)==1) or APPSO (len(adapters)>1) swarm.
func New(cfg Config, grp *param.Group, rnd *rng.Source, rc *runctx.Context, adapters []model.Adapter) *Swarm {
	n := grp.N()
	lo := make([]float64, n)
	hi := make([]float64, n)
	grp.Bounds(lo, hi)
	return &Swarm{cfg: cfg, grp: grp, rnd: rnd, rc: rc, adapters: adapters, n: n, lo: lo, hi: hi}
}

// Kind reports PSO for a single-adapter swarm and APPSO for a multi-adapter
// (parallel) one.
func (s *Swarm) Kind() strategy.Kind {
	if len(s.adapters) > 1 {
		return strategy.APPSO
	}
	return strategy.PSO
}

func (s *Swarm) WarmStart(x []float64, counter int) {
	s.warmX = append([]float64(nil), x...)
	s.warmCounter = counter
	s.hasWarm = true
}

// Initialize samples S particles in bounds with zero velocity (spec §4.5),
// per cfg.InitMethod; if a warm-start point is set, particle 0 starts
// there regardless of method.
func (s *Swarm) Initialize(ctx context.Context) error {
	s.particles = make([]particle, s.cfg.SwarmSize)
	var seeded [][]float64
	if s.cfg.InitMethod == InitQuadtree {
		seeded = quadtreePositions(s.lo, s.hi, s.cfg.SwarmSize)
	}
	for i := range s.particles {
		p := &s.particles[i]
		p.x = make([]float64, s.n)
		p.v = make([]float64, s.n)
		p.b = make([]float64, s.n)
		switch {
		case i == 0 && s.hasWarm:
			copy(p.x, s.warmX)
		case seeded != nil:
			copy(p.x, seeded[i])
		default:
			s.rnd.SampleUniformPoint(s.lo, s.hi, sliceLoHi(s.lo, s.hi, p.x, s.rnd))
		}
		copy(p.b, p.x)
		p.fb = math.Inf(1)
		p.fx = math.Inf(1)
	}
	if s.hasWarm {
		s.rc.Spend(s.warmCounter)
	}
	return s.evaluateInitial(ctx)
}

// sliceLoHi samples a fresh uniform point; the explicit x buffer is reused
// in place (rng.SampleUniformPoint fills dst directly).
func sliceLoHi(lo, hi, dst []float64, rnd *rng.Source) []float64 {
	rnd.SampleUniformPoint(lo, hi, dst)
	return dst
}

type quadBox struct{ lo, hi []float64 }

/*
quadtreePositions returns size points, one per cell of a recursive
axis-aligned bisection of [lo,hi]: repeatedly split the largest-volume box
along its widest axis until there are size boxes, then take each box's
center. This is a deterministic, RNG-free space-filling layout, the
multi-dimensional generalization of the per-dimension even-bisection
QuadTree used for structured initial populations.
*/
func quadtreePositions(lo, hi []float64, size int) [][]float64 {
	if size <= 0 {
		return nil
	}
	boxes := []quadBox{{lo: append([]float64(nil), lo...), hi: append([]float64(nil), hi...)}}
	for len(boxes) < size {
		bi, bestVol := 0, -1.0
		for i, b := range boxes {
			vol := 1.0
			for k := range b.lo {
				vol *= b.hi[k] - b.lo[k]
			}
			if vol > bestVol {
				bestVol, bi = vol, i
			}
		}
		b := boxes[bi]
		axis, widest := 0, -1.0
		for k := range b.lo {
			if w := b.hi[k] - b.lo[k]; w > widest {
				widest, axis = w, k
			}
		}
		mid := (b.lo[axis] + b.hi[axis]) / 2
		left := quadBox{lo: append([]float64(nil), b.lo...), hi: append([]float64(nil), b.hi...)}
		left.hi[axis] = mid
		right := quadBox{lo: append([]float64(nil), b.lo...), hi: append([]float64(nil), b.hi...)}
		right.lo[axis] = mid
		boxes[bi] = left
		boxes = append(boxes, right)
	}
	pts := make([][]float64, len(boxes))
	for i, b := range boxes {
		x := make([]float64, len(lo))
		for k := range x {
			x[k] = (b.lo[k] + b.hi[k]) / 2
		}
		pts[i] = x
	}
	return pts
}

func (s *Swarm) evaluateInitial(ctx context.Context) error {
	if len(s.adapters) > 1 {
		s.sc = sched.New(ctx, len(s.adapters), s.makeEvaluator(), s.cfg.SynchronousReceive)
	}
	return s.evaluateGeneration(ctx)
}

// makeEvaluator builds the Evaluator every worker goroutine shares; each
// invocation is keyed by workerID into the adapter slice (spec §5: each
// worker owns its own Adapter/filesystem directory, never shared).
func (s *Swarm) makeEvaluator() sched.Evaluator {
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

func (s *Swarm) assimilateParticle(i int, f float64, c []float64) {
	p := &s.particles[i]
	p.fx = f
	p.cx = c
	if f < p.fb {
		p.fb = f
		copy(p.b, p.x)
		p.cb = append([]float64(nil), c...)
	}
	s.rc.Update(p.b, p.fb, p.cb)
}

// afterGeneration performs the linear-scan global-best update (spec §4.5:
// "Global best updated by linear scan") — the barrier point after which
// every particle has observed the generation's results.
func (s *Swarm) afterGeneration() error {
	best := 0
	for i := 1; i < len(s.particles); i++ {
		if s.particles[i].fb < s.particles[best].fb {
			best = i
		}
	}
	s.gBest = best
	med := medianFx(s.particles)
	s.medianHistory = append(s.medianHistory, med)
	s.records = append(s.records, runlog.Record{
		Iter:      s.gen,
		Best:      s.particles[best].fb,
		Converged: s.particles[best].fb < s.cfg.ConvergenceVal,
		X:         append([]float64(nil), s.particles[best].b...),
	})
	return nil
}

// WriteMetrics appends one runlog record per generation observed so far.
func (s *Swarm) WriteMetrics(w io.Writer) error {
	for _, r := range s.records {
		if err := runlog.WriteRecord(w, r); err != nil {
			return err
		}
	}
	return nil
}

func medianFx(particles []particle) float64 {
	vals := make([]float64, len(particles))
	for i, p := range particles {
		vals[i] = p.fx
	}
	for i := 1; i < len(vals); i++ {
		j := i
		for j > 0 && vals[j-1] > vals[j] {
			vals[j-1], vals[j] = vals[j], vals[j-1]
			j--
		}
	}
	n := len(vals)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// Optimize runs generations until MaxGenerations or ConvergenceVal is
// reached, or ctx is cancelled.
func (s *Swarm) Optimize(ctx context.Context) error {
	if s.sc != nil {
		defer s.sc.Stop()
	}
	for s.gen = 1; s.gen <= s.cfg.MaxGenerations; s.gen++ {
		if ctxDone(ctx) {
			return ctx.Err()
		}
		s.stepGeneration()
		if err := s.evaluateGeneration(ctx); err != nil {
			return err
		}
		if s.particles[s.gBest].fb < s.cfg.ConvergenceVal {
			return nil
		}
	}
	return nil
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

/*
stepGeneration applies spec §4.5's per-particle, per-dimension velocity and
position update: inertia/cognitive/social terms, a minimum-perturbation
floor to stop the swarm from stalling, and an angle-preserving bounds
clamp that scales the whole velocity vector by the smallest per-dimension
feasibility fraction rather than independently clamping each dimension.
*/
func (s *Swarm) stepGeneration() {
	w := s.currentInertia()
	gBestPos := s.particles[s.gBest].b
	for i := range s.particles {
		p := &s.particles[i]
		xOld := append([]float64(nil), p.x...)
		dxMin := 1.0
		for j := 0; j < s.n; j++ {
			r1 := s.rnd.Uniform()
			r2 := s.rnd.Uniform()
			v := s.cfg.Constriction * (w*p.v[j] + s.cfg.CognitiveParam*r1*(p.b[j]-p.x[j]) + s.cfg.SocialParam*r2*(gBestPos[j]-p.x[j]))

			var vMin float64
			typ := s.grp.Descriptor(j).GetType()
			if typ == param.Integer {
				vMin = 0.5
			} else {
				vMin = 0.01 * math.Abs(p.x[j]) / float64(s.gen+1)
			}
			if math.Abs(v) < vMin {
				sign := 1.0
				if s.rnd.Uniform() < 0.5 {
					sign = -1.0
				}
				v = sign * (1 + s.rnd.Uniform()) * vMin
			}
			p.v[j] = v

			xNew := xOld[j] + v
			if xNew < s.lo[j] {
				frac := math.Abs(0.5 * (s.lo[j] - xOld[j]) / v)
				if frac < dxMin {
					dxMin = frac
				}
			} else if xNew > s.hi[j] {
				frac := math.Abs(0.5 * (s.hi[j] - xOld[j]) / v)
				if frac < dxMin {
					dxMin = frac
				}
			}
		}
		for j := 0; j < s.n; j++ {
			p.v[j] *= dxMin
			p.x[j] = param.Reflect(xOld[j]+p.v[j], s.lo[j], s.hi[j])
		}
	}
}

func (s *Swarm) currentInertia() float64 {
	switch s.cfg.InertiaReduction {
	case InertiaGeometric:
		return s.cfg.Inertia * math.Pow(1-s.cfg.InertiaRate, float64(s.gen))
	default:
		frac := float64(s.gen) / float64(s.cfg.MaxGenerations)
		if frac > 1 {
			frac = 1
		}
		return s.cfg.Inertia * (1 - frac)
	}
}

func (s *Swarm) evaluateGeneration(ctx context.Context) error {
	if len(s.adapters) == 1 {
		for i := range s.particles {
			f, c, err := evaluateOne(s.adapters[0], s.particles[i].x)
			if err != nil {
				return err
			}
			s.assimilateParticle(i, f, c)
		}
		return s.afterGeneration()
	}
	next := func(i int) sched.WorkUnit {
		return sched.WorkUnit{X: append([]float64(nil), s.particles[i].x...), FBest: s.rc.BestF()}
	}
	assimilate := func(res sched.Result) bool {
		if res.IsFinite() {
			s.assimilateParticle(res.Index, res.Fx, res.C)
		}
		return false
	}
	s.sc.Batch(next, len(s.particles), assimilate, nil)
	return s.afterGeneration()
}

// MedianHistory returns the per-generation median objective, used by the
// convergence report of spec §4.5/§7.
func (s *Swarm) MedianHistory() []float64 { return append([]float64(nil), s.medianHistory...) }

// BestParticle returns the index of the current global-best particle.
func (s *Swarm) BestParticle() int { return s.gBest }

// Best returns the global best decision vector and objective.
func (s *Swarm) Best() ([]float64, float64) {
	p := s.particles[s.gBest]
	return append([]float64(nil), p.b...), p.fb
}

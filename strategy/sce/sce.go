/*
Package sce implements Shuffled Complex Evolution (SCE-UA, spec §4.8). No
parallel variant is named in spec §4.4's list of scheduler-driven
strategies, so this package evaluates serially against a single
model.Adapter, mirroring how the teacher's setpso.Pso itself runs a single
in-process generation loop with no concurrency primitives at all.
*/
package sce

import (
	"context"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
	"github.com/mathrgo/calibrate/runlog"
	"github.com/mathrgo/calibrate/strategy"
)

// Config holds the SCE-UA tunables of spec §4.8/§6.
type Config struct {
	NumComplexes           int // n_complexes
	PointsPerComplex       int // p, default 2n+1
	PointsPerSubComplex    int // q, default n+1
	EvolutionStepsPerShuffle int // N_spl, default p
	Budget                 int // MAX_N
	LoopStagnation         int // k_stop
	PctChangeCriteria      float64 // p_cento
	PopConvCriteria        float64 // p_eps

	// MinNumOfComplexes, if set below NumComplexes, enables SCE-UA's
	// complex-number reduction: the active complex count shrinks linearly
	// from NumComplexes to MinNumOfComplexes as the evaluation budget is
	// consumed (spec §6).
	MinNumOfComplexes int
	// UseInitialPoint seeds population member 0 with the parameter
	// group's BeginParams EstVal vector instead of a random draw.
	UseInitialPoint bool
}

type member struct {
	x  []float64
	fx float64
}

type Search struct {
	cfg Config
	grp *param.Group
	rnd *rng.Source
	rc  *runctx.Context
	a   model.Adapter

	n      int
	lo, hi []float64

	pop        []member
	nEvals     int
	bestHist   []float64
	records    []runlog.Record
	terminated bool
}

func New(cfg Config, grp *param.Group, rnd *rng.Source, rc *runctx.Context, a model.Adapter) *Search {
	n := grp.N()
	if cfg.PointsPerComplex <= 0 {
		cfg.PointsPerComplex = 2*n + 1
	}
	if cfg.PointsPerSubComplex <= 0 {
		cfg.PointsPerSubComplex = n + 1
	}
	if cfg.EvolutionStepsPerShuffle <= 0 {
		cfg.EvolutionStepsPerShuffle = cfg.PointsPerComplex
	}
	if cfg.NumComplexes <= 0 {
		cfg.NumComplexes = 1
	}
	lo := make([]float64, n)
	hi := make([]float64, n)
	grp.Bounds(lo, hi)
	return &Search{cfg: cfg, grp: grp, rnd: rnd, rc: rc, a: a, n: n, lo: lo, hi: hi}
}

func (s *Search) Kind() strategy.Kind { return strategy.SCEUA }

func (s *Search) WarmStart(x []float64, counter int) { s.rc.Spend(counter) }

func (s *Search) eval(x []float64) (float64, error) {
	s.a.WriteParams(x)
	s.a.PerformParameterCorrections()
	f, err := s.a.Evaluate()
	s.nEvals++
	s.rc.Spend(1)
	return f, err
}

// Initialize samples a population of size p*n_complexes uniformly at
// random (spec §4.8) and evaluates it, sorting ascending by objective.
func (s *Search) Initialize(ctx context.Context) error {
	popSize := s.cfg.PointsPerComplex * s.cfg.NumComplexes
	s.pop = make([]member, popSize)
	start := 0
	if s.cfg.UseInitialPoint && popSize > 0 {
		x0 := make([]float64, s.n)
		s.grp.ReadVector(x0)
		f, err := s.eval(x0)
		if err != nil {
			f = math.Inf(1)
		}
		s.pop[0] = member{x: x0, fx: f}
		start = 1
	}
	for i := start; i < len(s.pop); i++ {
		x := make([]float64, s.n)
		s.rnd.SampleUniformPoint(s.lo, s.hi, x)
		f, err := s.eval(x)
		if err != nil {
			f = math.Inf(1)
		}
		s.pop[i] = member{x: x, fx: f}
	}
	sortAscending(s.pop)
	s.rc.Update(s.pop[0].x, s.pop[0].fx, nil)
	return nil
}

// activeComplexes implements spec §6's MinNumOfComplexes complex-number
// reduction: linearly interpolate the active complex count from
// NumComplexes down to MinNumOfComplexes as nEvals approaches Budget.
func (s *Search) activeComplexes() int {
	ng := s.cfg.NumComplexes
	minNg := s.cfg.MinNumOfComplexes
	if minNg <= 0 || minNg >= ng || s.cfg.Budget <= 0 {
		return ng
	}
	frac := float64(s.nEvals) / float64(s.cfg.Budget)
	if frac > 1 {
		frac = 1
	}
	reduced := ng - int(frac*float64(ng-minNg))
	if reduced < minNg {
		reduced = minNg
	}
	return reduced
}

func sortAscending(pop []member) {
	for i := 1; i < len(pop); i++ {
		j := i
		for j > 0 && pop[j-1].fx > pop[j].fx {
			pop[j-1], pop[j] = pop[j], pop[j-1]
			j--
		}
	}
}

/*
Optimize runs SCE-UA's outer loop (spec §4.8): sort, partition into
complexes by stride, run CCE on each complex, re-insert, sort, check
stopping criteria (loop-stagnation on best-objective percentage change,
population-range convergence, or budget exhaustion).
*/
func (s *Search) Optimize(ctx context.Context) error {
	var lastBest []float64
	shuffle := 0
	for s.nEvals < s.cfg.Budget {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		shuffle++
		p := s.cfg.PointsPerComplex
		ng := s.activeComplexes()
		if active := ng * p; active < len(s.pop) {
			s.pop = s.pop[:active]
		}
		complexes := make([][]member, ng)
		for g := 0; g < ng; g++ {
			cx := make([]member, p)
			for k := 0; k < p; k++ {
				idx := k*ng + g
				if idx < len(s.pop) {
					cx[k] = s.pop[idx]
				}
			}
			complexes[g] = cx
		}
		for g := range complexes {
			s.cce(complexes[g])
		}
		idx := 0
		for g := 0; g < ng; g++ {
			for k := 0; k < p; k++ {
				if idx < len(s.pop) {
					s.pop[idx] = complexes[g][k]
				}
				idx++
			}
		}
		sortAscending(s.pop)
		s.rc.Update(s.pop[0].x, s.pop[0].fx, nil)

		s.bestHist = append(s.bestHist, s.pop[0].fx)
		s.records = append(s.records, runlog.Record{Iter: shuffle, Best: s.pop[0].fx, X: append([]float64(nil), s.pop[0].x...)})

		gnrng := populationRange(s.pop, s.lo, s.hi)
		ipcnvg := gnrng <= s.cfg.PopConvCriteria

		if lastBest != nil {
			k := s.cfg.LoopStagnation
			if k > 0 && len(s.bestHist) > k {
				prev := s.bestHist[len(s.bestHist)-1-k]
				change := math.Abs(prev-s.pop[0].fx) / math.Max(math.Abs(prev), 1e-12)
				if change < s.cfg.PctChangeCriteria {
					s.terminated = true
					return nil
				}
			}
		}
		lastBest = s.pop[0].x

		if ipcnvg {
			s.reseedKeepingBest()
		}
	}
	return nil
}

// reseedKeepingBest implements spec §4.8's early-convergence restart:
// "If population range converges early, restart from fresh uniform
// sampling while keeping best-so-far."
func (s *Search) reseedKeepingBest() {
	best := s.pop[0]
	for i := 1; i < len(s.pop); i++ {
		x := make([]float64, s.n)
		s.rnd.SampleUniformPoint(s.lo, s.hi, x)
		f, err := s.eval(x)
		if err != nil {
			f = math.Inf(1)
		}
		s.pop[i] = member{x: x, fx: f}
	}
	s.pop[0] = best
	sortAscending(s.pop)
}

// populationRange computes spec §4.8 step 4's gnrng convergence test: the
// geometric mean, over dimensions, of the current population's span
// relative to the feasible span. stat.GeometricMean does the exp(mean(log))
// reduction; dimensions with zero feasible span are excluded the same way a
// fixed parameter contributes no spread to the test.
func populationRange(pop []member, lo, hi []float64) float64 {
	n := len(lo)
	normalized := make([]float64, 0, n)
	for j := 0; j < n; j++ {
		min, max := pop[0].x[j], pop[0].x[j]
		for _, m := range pop[1:] {
			if m.x[j] < min {
				min = m.x[j]
			}
			if m.x[j] > max {
				max = m.x[j]
			}
		}
		span := hi[j] - lo[j]
		if span == 0 {
			continue
		}
		r := (max - min) / span
		if r <= 0 {
			r = 1e-12
		}
		normalized = append(normalized, r)
	}
	if len(normalized) == 0 {
		return 0
	}
	return stat.GeometricMean(normalized, nil)
}

/*
cce runs the Competitive Complex Evolution procedure on one complex in
place (spec §4.8): N_spl repetitions of trapezoidal sub-complex selection,
centroid reflection, contraction, and random-mutation fallback.
*/
func (s *Search) cce(complex []member) {
	p := len(complex)
	q := s.cfg.PointsPerSubComplex
	if q > p {
		q = p
	}
	for step := 0; step < s.cfg.EvolutionStepsPerShuffle; step++ {
		idx := s.chooseSubComplex(p, q)
		sub := make([]member, q)
		for i, ix := range idx {
			sub[i] = complex[ix]
		}
		sortAscending(sub)

		centroid := make([]float64, s.n)
		for j := 0; j < s.n; j++ {
			sum := 0.0
			for i := 0; i < q-1; i++ {
				sum += sub[i].x[j]
			}
			centroid[j] = sum / float64(q-1)
		}
		worst := sub[q-1]

		reflected := make([]float64, s.n)
		for j := range reflected {
			reflected[j] = centroid[j] + (centroid[j] - worst.x[j])
		}
		var candidate member
		if !s.grp.Feasible(reflected) {
			candidate = s.gaussFallback(sub[0].x)
		} else {
			f, err := s.eval(reflected)
			if err != nil {
				f = math.Inf(1)
			}
			candidate = member{x: reflected, fx: f}
		}

		if candidate.fx >= worst.fx {
			contracted := make([]float64, s.n)
			for j := range contracted {
				contracted[j] = centroid[j] - 0.5*(centroid[j]-worst.x[j])
			}
			var cf float64
			var cerr error
			if s.grp.Feasible(contracted) {
				cf, cerr = s.eval(contracted)
			} else {
				cerr = errInfeasible
			}
			if cerr == nil && cf < worst.fx {
				candidate = member{x: contracted, fx: cf}
			} else {
				candidate = s.gaussFallback(sub[0].x)
			}
		}

		sub[q-1] = candidate
		for i, ix := range idx {
			complex[ix] = sub[i]
		}
	}
}

var errInfeasible = fmtError("candidate outside parameter bounds")

type fmtError string

func (e fmtError) Error() string { return string(e) }

func (s *Search) gaussFallback(center []float64) member {
	std := make([]float64, s.n)
	for j := range std {
		std[j] = (s.hi[j] - s.lo[j]) * 0.1
	}
	x := make([]float64, s.n)
	for j := range x {
		x[j] = s.rnd.GaussInRange(center[j], std[j], s.lo[j], s.hi[j])
	}
	f, err := s.eval(x)
	if err != nil {
		f = math.Inf(1)
	}
	return member{x: x, fx: f}
}

/*
chooseSubComplex draws q distinct indices from [0,p) using spec §4.8's
trapezoidal distribution: i = ceil(p + 1/2 - sqrt((p+1/2)^2 - p(p+1)*U)) - 1,
which favors lower (better, since the complex is sorted ascending) indices.
*/
func (s *Search) chooseSubComplex(p, q int) []int {
	chosen := make(map[int]bool, q)
	idx := make([]int, 0, q)
	for len(idx) < q {
		u := s.rnd.Uniform()
		pf := float64(p)
		val := pf + 0.5 - math.Sqrt((pf+0.5)*(pf+0.5)-pf*(pf+1)*u)
		i := int(math.Ceil(val)) - 1
		if i < 0 {
			i = 0
		}
		if i >= p {
			i = p - 1
		}
		if chosen[i] {
			continue
		}
		chosen[i] = true
		idx = append(idx, i)
	}
	return idx
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
	return append([]float64(nil), s.pop[0].x...), s.pop[0].fx
}

/*
Package gmlms implements GML-MS, Levenberg-Marquardt refinement with
multi-start restarts (spec §4.12). No teacher analogue exists for a
gradient-based inner solver (PSO has none), so the inner LM step is built
directly from spec §4.12's description ("Jacobian, normal matrix,
trust-region adjustment of lambda by trying lambda, lambda/beta,
lambda*beta") using gonum.org/v1/gonum/mat for the normal-matrix solve,
mirroring the domain-stack decision already used by strategy/sa's Cholesky
step matrix.

The model.Adapter's EvaluateMulti output is read as the residual vector
r(x) the Marquardt step minimizes the sum of squares of (the conventional
reading of a multi-output adapter in a least-squares calibration context);
single-objective adapters are treated as m=1 residual.
*/
package gmlms

import (
	"context"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
	"github.com/mathrgo/calibrate/runlog"
	"github.com/mathrgo/calibrate/sched"
	"github.com/mathrgo/calibrate/strategy"
)

// Config holds the GML-MS tunables of spec §4.12.
type Config struct {
	NumMultiStarts        int // N_MS
	MaxLMIterations        int
	LambdaInit             float64
	LambdaScaleBeta        float64 // beta, default 2
	ConvergenceVal         float64 // relative reduction in ||r||^2 to declare LM converged
	FiniteDifferenceStep   float64 // h, default 1e-6
	DistanceCandidateScale int     // draws 1000*n*DistanceCandidateScale candidates per restart; default 1 -> 1000*n
	SynchronousReceive     bool
}

type Search struct {
	cfg      Config
	grp      *param.Group
	rnd      *rng.Source
	rc       *runctx.Context
	adapters []model.Adapter

	n, m   int
	lo, hi []float64

	starts  [][]float64
	bestX   []float64
	bestF   float64
	records []runlog.Record
	sc      *sched.Scheduler

	warmX       []float64
	warmCounter int
	hasWarm     bool
}

func New(cfg Config, grp *param.Group, rnd *rng.Source, rc *runctx.Context, adapters []model.Adapter) *Search {
	n := grp.N()
	lo := make([]float64, n)
	hi := make([]float64, n)
	grp.Bounds(lo, hi)
	m := adapters[0].NumObjectives()
	if m <= 0 {
		m = 1
	}
	if cfg.LambdaInit <= 0 {
		cfg.LambdaInit = 1e-3
	}
	if cfg.LambdaScaleBeta <= 1 {
		cfg.LambdaScaleBeta = 2
	}
	if cfg.FiniteDifferenceStep <= 0 {
		cfg.FiniteDifferenceStep = 1e-6
	}
	if cfg.DistanceCandidateScale <= 0 {
		cfg.DistanceCandidateScale = 1
	}
	return &Search{cfg: cfg, grp: grp, rnd: rnd, rc: rc, adapters: adapters, n: n, m: m, lo: lo, hi: hi, bestF: math.Inf(1)}
}

func (s *Search) Kind() strategy.Kind { return strategy.GMLMS }

func (s *Search) WarmStart(x []float64, counter int) {
	s.warmX = append([]float64(nil), x...)
	s.warmCounter = counter
	s.hasWarm = true
}

func (s *Search) Initialize(ctx context.Context) error {
	if len(s.adapters) > 1 {
		s.sc = sched.New(ctx, len(s.adapters), s.makeEvaluator(), s.cfg.SynchronousReceive)
	}
	if s.hasWarm {
		s.starts = append(s.starts, s.warmX)
		s.rc.Spend(s.warmCounter)
		return nil
	}
	x0 := make([]float64, s.n)
	s.rnd.SampleUniformPoint(s.lo, s.hi, x0)
	s.starts = append(s.starts, x0)
	return nil
}

func (s *Search) residual(x []float64) ([]float64, error) {
	a := s.adapters[0]
	a.WriteParams(x)
	a.PerformParameterCorrections()
	if s.m == 1 && a.NumObjectives() <= 1 {
		f, err := a.Evaluate()
		s.rc.Spend(1)
		return []float64{f}, err
	}
	r := make([]float64, s.m)
	err := a.EvaluateMulti(r)
	s.rc.Spend(1)
	return r, err
}

func sumSquares(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s
}

func (s *Search) makeEvaluator() sched.Evaluator {
	return func(ctx context.Context, workerID int, w sched.WorkUnit) sched.Result {
		a := s.adapters[workerID]
		a.WriteParams(w.X)
		a.PerformParameterCorrections()
		if s.m == 1 && a.NumObjectives() <= 1 {
			f, err := a.Evaluate()
			return sched.Result{F: []float64{f}, Err: err}
		}
		r := make([]float64, s.m)
		err := a.EvaluateMulti(r)
		return sched.Result{F: r, Err: err}
	}
}

/*
jacobian computes the m x n finite-difference Jacobian of the residual at
x, dispatching one column per work unit. Spec §4.12: "the Jacobian can be
computed in parallel via §4.4 (column-wise assignment)".
*/
func (s *Search) jacobian(x []float64, r0 []float64) (*mat.Dense, error) {
	h := s.cfg.FiniteDifferenceStep
	j := mat.NewDense(s.m, s.n, nil)

	if len(s.adapters) == 1 {
		for col := 0; col < s.n; col++ {
			xp := append([]float64(nil), x...)
			step := h * math.Max(1, math.Abs(xp[col]))
			xp[col] = param.Reflect(xp[col]+step, s.lo[col], s.hi[col])
			rp, err := s.residual(xp)
			if err != nil {
				return nil, err
			}
			for row := 0; row < s.m; row++ {
				j.Set(row, col, (rp[row]-r0[row])/step)
			}
		}
		return j, nil
	}

	steps := make([]float64, s.n)
	next := func(col int) sched.WorkUnit {
		xp := append([]float64(nil), x...)
		step := h * math.Max(1, math.Abs(xp[col]))
		steps[col] = step
		xp[col] = param.Reflect(xp[col]+step, s.lo[col], s.hi[col])
		return sched.WorkUnit{X: xp}
	}
	var firstErr error
	assimilate := func(res sched.Result) bool {
		s.rc.Spend(1)
		if res.Err != nil {
			firstErr = res.Err
			return false
		}
		col := res.Index
		for row := 0; row < s.m; row++ {
			j.Set(row, col, (res.F[row]-r0[row])/steps[col])
		}
		return false
	}
	s.sc.Batch(next, s.n, assimilate, nil)
	if firstErr != nil {
		return nil, firstErr
	}
	return j, nil
}

/*
lmStep attempts one Levenberg-Marquardt trust-region step from x with
residual r0 and damping lambda, solving (J^T J + lambda*diag(J^T J)) d = -J^T r
and reflecting x+d into bounds (spec §4.12).
*/
func lmStep(j *mat.Dense, r0 []float64, x, lo, hi []float64, lambda float64) []float64 {
	m, n := j.Dims()
	var jt mat.Dense
	jt.CloneFrom(j.T())

	var jtj mat.Dense
	jtj.Mul(&jt, j)

	for i := 0; i < n; i++ {
		jtj.Set(i, i, jtj.At(i, i)*(1+lambda))
	}

	rVec := mat.NewVecDense(m, r0)
	var jtr mat.VecDense
	jtr.MulVec(&jt, rVec)

	var d mat.VecDense
	if err := d.SolveVec(&jtj, &jtr); err != nil {
		return nil
	}

	xNew := make([]float64, n)
	for i := 0; i < n; i++ {
		xNew[i] = param.Reflect(x[i]-d.AtVec(i), lo[i], hi[i])
	}
	return xNew
}

/*
Optimize runs N_MS multi-starts (spec §4.12): the first from the
warm-started or randomly sampled point, each subsequent one chosen by
max-min distance over 1000*n uniform candidates against all prior starts.
Each start runs Levenberg-Marquardt to MaxLMIterations or convergence,
trying lambda, lambda/beta, and lambda*beta at each step and keeping
whichever reduces the sum of squared residuals most, or multiplying lambda
by beta if none does (a start ends once lambda exceeds 1e12).
*/
func (s *Search) Optimize(ctx context.Context) error {
	if len(s.adapters) > 1 {
		defer s.sc.Stop()
	}
	for ms := 0; ms < s.cfg.NumMultiStarts; ms++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var x0 []float64
		if ms < len(s.starts) {
			x0 = s.starts[ms]
		} else {
			x0 = s.maxMinDistanceStart()
			s.starts = append(s.starts, x0)
		}
		xFinal, fFinal, err := s.refine(x0)
		if err != nil {
			continue
		}
		if fFinal < s.bestF {
			s.bestF = fFinal
			s.bestX = xFinal
			s.rc.Update(s.bestX, s.bestF, nil)
		}
		s.records = append(s.records, runlog.Record{Iter: ms, Best: s.bestF, X: append([]float64(nil), s.bestX...)})
	}
	return nil
}

func (s *Search) maxMinDistanceStart() []float64 {
	numCandidates := 1000 * s.n * s.cfg.DistanceCandidateScale
	best := make([]float64, s.n)
	bestMinDist := -1.0
	for c := 0; c < numCandidates; c++ {
		x := make([]float64, s.n)
		s.rnd.SampleUniformPoint(s.lo, s.hi, x)
		minDist := math.Inf(1)
		for _, prior := range s.starts {
			d := euclidean(x, prior)
			if d < minDist {
				minDist = d
			}
		}
		if minDist > bestMinDist {
			bestMinDist = minDist
			best = x
		}
	}
	return best
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (s *Search) refine(x0 []float64) ([]float64, float64, error) {
	x := append([]float64(nil), x0...)
	r, err := s.residual(x)
	if err != nil {
		return nil, 0, err
	}
	f := sumSquares(r)
	lambda := s.cfg.LambdaInit
	beta := s.cfg.LambdaScaleBeta
	eps := s.cfg.ConvergenceVal
	if eps <= 0 {
		eps = 1e-8
	}

	for iter := 0; iter < s.cfg.MaxLMIterations; iter++ {
		j, err := s.jacobian(x, r)
		if err != nil {
			return x, f, nil
		}

		type trial struct {
			x []float64
			f float64
			l float64
		}
		var best *trial
		for _, l := range []float64{lambda, lambda / beta, lambda * beta} {
			xc := lmStep(j, r, x, s.lo, s.hi, l)
			if xc == nil {
				continue
			}
			rc, err := s.residual(xc)
			if err != nil {
				continue
			}
			fc := sumSquares(rc)
			if best == nil || fc < best.f {
				best = &trial{x: xc, f: fc, l: l}
			}
		}
		if best == nil || best.f >= f {
			lambda *= beta
			if lambda > 1e12 {
				break
			}
			continue
		}

		improvement := (f - best.f) / math.Max(f, 1e-300)
		x, f, lambda = best.x, best.f, best.l
		newR, err := s.residual(x)
		if err == nil {
			r = newR
		}
		if improvement < eps {
			break
		}
	}
	return x, f, nil
}

func (s *Search) WriteMetrics(w io.Writer) error {
	for _, r := range s.records {
		if err := runlog.WriteRecord(w, r); err != nil {
			return err
		}
	}
	return nil
}

// Best returns the best decision vector and sum-of-squared-residuals
// objective found across all multi-starts so far.
func (s *Search) Best() ([]float64, float64) {
	return append([]float64(nil), s.bestX...), s.bestF
}

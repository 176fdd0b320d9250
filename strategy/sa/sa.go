/*
Package sa implements simulated annealing: continuous SA, Vanderbilt-step SA
(VSA), and combinatorial CSA (spec §4.9). No strategy in this package has a
parallel variant requiring a persistent scheduler across phases the way
PSO/DDS do in this port (spec §4.9 only says the parallel master "issues a
candidate to each worker for each inner step", a one-shot batch shape).
When len(adapters) > 1, each proposal of Optimize is sent through
sched.Scheduler as its own single-candidate Batch, so one worker evaluates
at a time; the melting phase of Initialize evaluates serially on the first
adapter.

The Vanderbilt step-matrix kernel's Cholesky factorization is grounded on
gonum.org/v1/gonum/mat, the sibling package of the teacher's plotting
dependency gonum.org/v1/plot (same upstream project, same dependency
family, matching spec SPEC_FULL.md's domain-stack wiring decision).
*/
package sa

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

// TemperaturePolicy selects how T_init/T_final are chosen (spec §4.9).
type TemperaturePolicy int

const (
	Vanderbilt TemperaturePolicy = iota
	BenAmeur
	UserSpecified
)

// TransitionMethod selects the candidate-generation kernel (spec §4.9).
type TransitionMethod int

const (
	TransitionUniform TransitionMethod = iota
	TransitionGauss
	TransitionVanderbiltStep
)

// Mode distinguishes continuous SA/VSA from combinatorial CSA.
type Mode int

const (
	ModeContinuous Mode = iota
	ModeCombinatorial
)

// Config holds the SA/VSA/CSA tunables of spec §4.9/§6.
type Config struct {
	Mode               Mode
	NumInitialTrials   int // N_melt
	TemperaturePolicy  TemperaturePolicy
	FinalTemperature   float64 // used only when TemperaturePolicy == UserSpecified
	TransitionMethod   TransitionMethod
	OuterIterations    int // O_max
	InnerIterations    int // I_max
	ConvergenceVal     float64
	SynchronousReceive bool
}

type Search struct {
	cfg      Config
	grp      *param.Group
	rnd      *rng.Source
	rc       *runctx.Context
	adapters []model.Adapter

	n      int
	lo, hi []float64

	x, best []float64
	fx, fBest float64

	t     float64
	alpha float64
	pAcc  float64

	q *mat.TriDense // Vanderbilt step matrix

	records []runlog.Record
	sc      *sched.Scheduler
}

func New(cfg Config, grp *param.Group, rnd *rng.Source, rc *runctx.Context, adapters []model.Adapter) *Search {
	n := grp.N()
	lo := make([]float64, n)
	hi := make([]float64, n)
	grp.Bounds(lo, hi)
	return &Search{cfg: cfg, grp: grp, rnd: rnd, rc: rc, adapters: adapters, n: n, lo: lo, hi: hi, fBest: math.Inf(1), fx: math.Inf(1)}
}

func (s *Search) Kind() strategy.Kind {
	if s.cfg.Mode == ModeCombinatorial {
		return strategy.CSA
	}
	if s.cfg.TransitionMethod == TransitionVanderbiltStep {
		return strategy.VSA
	}
	return strategy.SA
}

func (s *Search) WarmStart(x []float64, counter int) {
	s.x = append([]float64(nil), x...)
	s.rc.Spend(counter)
}

func (s *Search) evalSerial(x []float64) (float64, error) {
	a := s.adapters[0]
	a.WriteParams(x)
	a.PerformParameterCorrections()
	f, err := a.Evaluate()
	s.rc.Spend(1)
	return f, err
}

// Initialize runs the melting phase (spec §4.9): N_melt random moves,
// recording objective deltas to estimate dE_avg, then chooses T_init/
// T_final per the configured policy.
func (s *Search) Initialize(ctx context.Context) error {
	if s.x == nil {
		s.x = make([]float64, s.n)
		s.rnd.SampleUniformPoint(s.lo, s.hi, s.x)
	}
	f, err := s.evalSerial(s.x)
	if err != nil {
		f = math.Inf(1) // non-finite during melting: re-sample in place (spec §4.4/§7)
		for i := 0; i < 10 && err != nil; i++ {
			s.rnd.SampleUniformPoint(s.lo, s.hi, s.x)
			f, err = s.evalSerial(s.x)
		}
	}
	s.fx = f
	s.best = append([]float64(nil), s.x...)
	s.fBest = f
	s.rc.Update(s.best, s.fBest, nil)

	deltas := make([]float64, 0, s.cfg.NumInitialTrials)
	cur := s.x
	curF := s.fx
	for i := 0; i < s.cfg.NumInitialTrials; i++ {
		cand := s.proposeMove(cur, nil)
		f, err := s.evalSerial(cand)
		if err != nil {
			continue // failed evaluation during melting: this trial is skipped, not re-sampled
		}
		deltas = append(deltas, math.Abs(f-curF))
		cur, curF = cand, f
	}
	dEavg := averageAbsDelta(deltas)
	if dEavg <= 0 {
		dEavg = 1e-10 // spec §8 boundary behavior: floor dE_avg to avoid division by zero
	}

	tInit, tFinal := s.chooseTemperatures(dEavg, deltas)
	s.t = tInit
	if s.cfg.OuterIterations > 0 {
		s.alpha = math.Pow(tFinal/tInit, 1/float64(s.cfg.OuterIterations))
	} else {
		s.alpha = 1
	}
	return nil
}

func averageAbsDelta(deltas []float64) float64 {
	if len(deltas) == 0 {
		return 0
	}
	mean := 0.0
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))

	sorted := append([]float64(nil), deltas...)
	for i := 1; i < len(sorted); i++ {
		j := i
		for j > 0 && sorted[j-1] > sorted[j] {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
			j--
		}
	}
	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return math.Min(mean, median)
}

func (s *Search) chooseTemperatures(dEavg float64, deltas []float64) (tInit, tFinal float64) {
	switch s.cfg.TemperaturePolicy {
	case UserSpecified:
		tInit = -dEavg / math.Log(0.99)
		tFinal = s.cfg.FinalTemperature
		return
	case BenAmeur:
		tInit = benAmeurTemperature(deltas, 0.99, dEavg)
		tFinal = benAmeurTemperature(deltas, 0.01, dEavg)
		return
	default: // Vanderbilt
		tInit = -dEavg / math.Log(0.99)
		tFinal = -dEavg / math.Log(0.01)
		return
	}
}

/*
benAmeurTemperature implements spec §4.9's Ben-Ameur policy: iterate
T_n <- T_n * (ln P_n / ln P_target)^(1/p), where P_n is the empirical
acceptance probability of the melt deltas at the current T_n and p is a
stall counter that doubles whenever an update fails to reduce
|P_n - P_target|.
*/
func benAmeurTemperature(deltas []float64, target, dEavg float64) float64 {
	t := -dEavg / math.Log(target)
	if len(deltas) == 0 {
		return t
	}
	p := 1.0
	prevDiff := math.Inf(1)
	for iter := 0; iter < 50; iter++ {
		pn := empiricalAcceptance(deltas, t)
		diff := math.Abs(pn - target)
		if diff < 1e-6 {
			break
		}
		if diff >= prevDiff {
			p *= 2
		}
		prevDiff = diff
		if pn <= 0 || pn >= 1 {
			break
		}
		t *= math.Pow(math.Log(pn)/math.Log(target), 1/p)
	}
	return t
}

func empiricalAcceptance(deltas []float64, t float64) float64 {
	sum := 0.0
	for _, d := range deltas {
		if d <= 0 {
			sum += 1
			continue
		}
		sum += math.Exp(-d / t)
	}
	return sum / float64(len(deltas))
}

// proposeMove generates one candidate from cur using the configured
// transition kernel (spec §4.9).
func (s *Search) proposeMove(cur []float64, innerSamples [][]float64) []float64 {
	if s.cfg.Mode == ModeCombinatorial {
		return s.proposeInteger(cur)
	}
	switch s.cfg.TransitionMethod {
	case TransitionGauss:
		return s.proposeGauss(cur)
	case TransitionVanderbiltStep:
		if s.q != nil {
			return s.proposeVanderbilt(cur)
		}
		return s.proposeGauss(cur) // Cholesky unavailable: fall back (spec §4.9)
	default:
		return s.proposeUniform(cur)
	}
}

func (s *Search) proposeUniform(cur []float64) []float64 {
	cand := make([]float64, s.n)
	for j := range cand {
		cand[j] = param.LocalMove10Pct(s.rnd, cur[j], s.lo[j], s.hi[j])
	}
	return cand
}

func (s *Search) proposeGauss(cur []float64) []float64 {
	cand := make([]float64, s.n)
	eps := 1e-10
	sigma := math.Sqrt(math.Max(eps, math.Abs(s.fx))) / math.Sqrt(float64(s.n))
	for j := range cand {
		hw := s.hi[j] - s.lo[j]
		sdCap := 0.68 * hw
		sd := math.Min(sigma, sdCap)
		cand[j] = param.Reflect(s.rnd.GaussInRange(cur[j], sd, s.lo[j], s.hi[j]), s.lo[j], s.hi[j])
	}
	return cand
}

func (s *Search) proposeVanderbilt(cur []float64) []float64 {
	u := make([]float64, s.n)
	for j := range u {
		u[j] = (2*s.rnd.Uniform() - 1) * math.Sqrt(3)
	}
	uVec := mat.NewVecDense(s.n, u)
	var dx mat.VecDense
	dx.MulVec(s.q, uVec)
	cand := make([]float64, s.n)
	for j := range cand {
		cand[j] = param.Reflect(cur[j]+dx.AtVec(j), s.lo[j], s.hi[j])
	}
	return cand
}

func (s *Search) proposeInteger(cur []float64) []float64 {
	cand := append([]float64(nil), cur...)
	j := s.rnd.Intn(s.n)
	width := s.hi[j] - s.lo[j] + 1
	step := 1.0
	if s.rnd.Uniform() < 0.5 {
		step = -1
	}
	x := cand[j] + step
	if x < s.lo[j] {
		x += width
	} else if x > s.hi[j] {
		x -= width
	}
	cand[j] = x
	return cand
}

/*
Optimize runs the outer/inner SA loop of spec §4.9: I_max transition
proposals per outer iteration, downhill-always/uphill-with-probability
acceptance, temperature reduction by alpha after each inner loop, and
(for VSA) covariance re-estimation and Cholesky step-matrix rebuild.
*/
func (s *Search) Optimize(ctx context.Context) error {
	if len(s.adapters) > 1 {
		s.sc = sched.New(ctx, len(s.adapters), s.makeEvaluator(), s.cfg.SynchronousReceive)
		defer s.sc.Stop()
	}
	for outer := 1; outer <= s.cfg.OuterIterations; outer++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		innerF := make([]float64, 0, s.cfg.InnerIterations)
		innerSamples := make([][]float64, 0, s.cfg.InnerIterations)
		accepted := 0

		for inner := 0; inner < s.cfg.InnerIterations; inner++ {
			cand := s.proposeMove(s.x, innerSamples)
			f, err := s.evaluateOne(cand)
			if err != nil {
				continue
			}
			dE := f - s.fx
			accept := dE <= 0
			if !accept {
				prob := math.Exp(-dE / s.t)
				accept = s.rnd.Uniform() < prob
			}
			if accept {
				s.x = cand
				s.fx = f
				accepted++
			}
			innerF = append(innerF, s.fx)
			innerSamples = append(innerSamples, append([]float64(nil), s.x...))
			if s.fx < s.fBest {
				s.fBest = s.fx
				s.best = append([]float64(nil), s.x...)
				s.rc.Update(s.best, s.fBest, nil)
			}
		}

		if len(innerF) > 0 {
			s.pAcc = float64(accepted) / float64(len(innerF))
		}
		if s.cfg.TransitionMethod == TransitionVanderbiltStep && s.cfg.Mode != ModeCombinatorial {
			s.rebuildStepMatrix(innerSamples)
		}

		med := medianOf(innerF)
		s.records = append(s.records, runlog.Record{
			Iter:      outer,
			Best:      s.fBest,
			Converged: convergenceReached(med, s.fBest, s.cfg.ConvergenceVal),
			X:         append([]float64(nil), s.best...),
		})
		if convergenceReached(med, s.fBest, s.cfg.ConvergenceVal) {
			return nil
		}

		s.t *= s.alpha
	}
	return nil
}

func convergenceReached(median, best, eps float64) bool {
	if median == 0 {
		return best == 0
	}
	return math.Abs(median-best)/math.Abs(median) < eps
}

func medianOf(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	for i := 1; i < len(sorted); i++ {
		j := i
		for j > 0 && sorted[j-1] > sorted[j] {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
			j--
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

/*
rebuildStepMatrix implements VSA's covariance re-estimation (spec §4.9):
s_ij = (3/(0.11*I_max)) * (1/I_max) * sum (x_im - A_i)(x_jm - A_j), then
Cholesky-factorizes s into the lower-triangular step matrix Q. If the
Cholesky factorization fails (s not positive-definite), s.q is left nil so
the next proposeMove call falls back to the Gaussian kernel.
*/
func (s *Search) rebuildStepMatrix(samples [][]float64) {
	m := len(samples)
	if m == 0 {
		s.q = nil
		return
	}
	n := s.n
	mean := make([]float64, n)
	for _, x := range samples {
		for j := 0; j < n; j++ {
			mean[j] += x[j]
		}
	}
	for j := range mean {
		mean[j] /= float64(m)
	}
	cov := make([]float64, n*n)
	scale := 3.0 / (0.11 * float64(m)) / float64(m)
	for _, x := range samples {
		for i := 0; i < n; i++ {
			di := x[i] - mean[i]
			for j := 0; j < n; j++ {
				dj := x[j] - mean[j]
				cov[i*n+j] += di * dj * scale
			}
		}
	}
	sym := mat.NewSymDense(n, cov)
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		s.q = nil
		return
	}
	var l mat.TriDense
	chol.LTo(&l)
	s.q = &l
}

func (s *Search) makeEvaluator() sched.Evaluator {
	return func(ctx context.Context, workerID int, w sched.WorkUnit) sched.Result {
		a := s.adapters[workerID]
		a.WriteParams(w.X)
		a.PerformParameterCorrections()
		f, err := a.Evaluate()
		return sched.Result{Fx: f, Err: err}
	}
}

func (s *Search) evaluateOne(x []float64) (float64, error) {
	if len(s.adapters) == 1 {
		return s.evalSerial(x)
	}
	var f float64
	var evalErr error
	next := func(i int) sched.WorkUnit { return sched.WorkUnit{X: append([]float64(nil), x...)} }
	s.sc.Batch(next, 1, func(res sched.Result) bool {
		s.rc.Spend(1)
		f, evalErr = res.Fx, res.Err
		return false
	}, nil)
	return f, evalErr
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

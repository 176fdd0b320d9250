/*
Package padds implements Pareto-archived DDS and its parallel variant
ParaPADDS (spec §4.7): multi-objective DDS driven by the archive package's
SelectByZ instead of a single best-so-far, dispatched through sched for the
parallel variant exactly as strategy/dds does for PDDS.
*/
package padds

import (
	"context"
	"io"
	"math"

	"github.com/mathrgo/calibrate/archive"
	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
	"github.com/mathrgo/calibrate/runlog"
	"github.com/mathrgo/calibrate/sched"
	"github.com/mathrgo/calibrate/strategy"
)

// Config holds the PADDS/ParaPADDS tunables of spec §4.7/§6.
type Config struct {
	Budget             int
	PerturbR           float64
	SelectionMetric    archive.ZScheme
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

	ar      *archive.Archive
	records []runlog.ParetoRecord
	sc      *sched.Scheduler
}

func New(cfg Config, grp *param.Group, rnd *rng.Source, rc *runctx.Context, adapters []model.Adapter) *Search {
	n := grp.N()
	lo := make([]float64, n)
	hi := make([]float64, n)
	grp.Bounds(lo, hi)
	ar := archive.New()
	ar.DetectDuplicates = true
	return &Search{cfg: cfg, grp: grp, rnd: rnd, rc: rc, adapters: adapters, n: n, lo: lo, hi: hi, ar: ar}
}

func (s *Search) Kind() strategy.Kind {
	if len(s.adapters) > 1 {
		return strategy.ParaPADDS
	}
	return strategy.PADDS
}

func (s *Search) WarmStart(x []float64, counter int) { s.rc.Spend(counter) }

func (s *Search) makeEvaluator() sched.Evaluator {
	return func(ctx context.Context, workerID int, w sched.WorkUnit) sched.Result {
		a := s.adapters[workerID]
		F := make([]float64, a.NumObjectives())
		a.WriteParams(w.X)
		a.PerformParameterCorrections()
		err := a.EvaluateMulti(F)
		return sched.Result{F: F, Err: err}
	}
}

func (s *Search) evaluateSerial(x []float64) ([]float64, error) {
	a := s.adapters[0]
	F := make([]float64, a.NumObjectives())
	a.WriteParams(x)
	a.PerformParameterCorrections()
	if err := a.EvaluateMulti(F); err != nil {
		return nil, err
	}
	return F, nil
}

// initBudget mirrors DDS's initialization sizing (spec §4.6, reused here
// since PADDS is DDS generalized to multiple objectives).
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

// Initialize seeds the archive with M_init uniform-random candidates (spec
// §4.6's initialization phase generalized to the multi-objective archive).
func (s *Search) Initialize(ctx context.Context) error {
	if len(s.adapters) > 1 {
		s.sc = sched.New(ctx, len(s.adapters), s.makeEvaluator(), s.cfg.SynchronousReceive)
	}
	mInit := s.initBudget()
	for i := 0; i < mInit; i++ {
		x := make([]float64, s.n)
		s.rnd.SampleUniformPoint(s.lo, s.hi, x)
		s.evaluateAndInsert(x, i)
	}
	return nil
}

func (s *Search) evaluateAndInsert(x []float64, iter int) {
	if len(s.adapters) == 1 {
		F, err := s.evaluateSerial(x)
		s.rc.Spend(1)
		if err != nil {
			return
		}
		s.insert(x, F, iter)
		return
	}
	// parallel initialization is dispatched one candidate at a time through
	// Batch(total=1): simple and correct, though it forgoes overlap across
	// the M_init candidates. ParaPADDS's parallel benefit is concentrated in
	// the much larger main phase below.
	next := func(i int) sched.WorkUnit { return sched.WorkUnit{X: append([]float64(nil), x...)} }
	s.sc.Batch(next, 1, func(res sched.Result) bool {
		s.rc.Spend(1)
		if res.Err == nil {
			s.insert(x, res.F, iter)
		}
		return false
	}, nil)
}

/*
insert adds the point to the shared archive via archive.Insert (which
applies the dominance-filter rule of §4.3), then recomputes Z over the
non-dominated set when the point joined it.
*/
func (s *Search) insert(x, F []float64, iter int) {
	res := s.ar.Insert(x, F)
	if res == archive.NonDominated {
		archive.ComputeZ(s.ar.NonDom, s.cfg.SelectionMetric, s.rnd.Rand())
	}
	s.records = append(s.records, runlog.ParetoRecord{Iter: iter, F: append([]float64(nil), F...), X: append([]float64(nil), x...)})
}

/*
Optimize runs the PADDS main phase of spec §4.7: select a member by Z,
perturb it with DDS-style neighborhood moves (reusing the dimension-
selection probability P_n from spec §4.6), and insert the result. Every
iteration selects afresh by Z: the dominance of the new point relative to
the selected member is not tracked, and the search never continues from
the new point or keeps the previous selection on that basis.
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

	if len(s.adapters) > 1 {
		defer s.sc.Stop()
	}

	for k := 1; k <= mMain; k++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sel := archive.SelectByZ(s.ar.NonDom, s.rnd.Rand())
		if sel == nil {
			return nil
		}
		pn := 1 - math.Log(float64(k))/math.Log(float64(mMain))
		cand := append([]float64(nil), sel.X...)
		perturbed := 0
		for j := 0; j < s.n; j++ {
			if s.rnd.Uniform() < pn {
				cand[j] = param.NeighborPerturb(s.rnd, s.grp.Descriptor(j).GetType(), sel.X[j], s.lo[j], s.hi[j], r)
				perturbed++
			}
		}
		if perturbed == 0 {
			j := int(math.Ceil(float64(s.n)*s.rnd.Uniform())) - 1
			if j < 0 {
				j = 0
			}
			cand[j] = param.NeighborPerturb(s.rnd, s.grp.Descriptor(j).GetType(), sel.X[j], s.lo[j], s.hi[j], r)
		}
		s.evaluateAndInsert(cand, mInit+k)
	}
	return nil
}

func (s *Search) WriteMetrics(w io.Writer) error {
	for _, r := range s.records {
		if err := runlog.WriteParetoRecord(w, r); err != nil {
			return err
		}
	}
	return nil
}

// Archive returns the search's Pareto archive.
func (s *Search) Archive() *archive.Archive { return s.ar }

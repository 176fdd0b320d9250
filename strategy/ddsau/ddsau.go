/*
Package ddsau implements DDS for Approximation of Uncertainty (DDSAU, spec
§4.10): a top-level driver that runs N_sols independent DDS searches, each
with a budget drawn uniformly from [MinIter, MaxIter], and retains either
the best point of each search or a uniformly-sampled behavioral point from
that search's trace.

Per spec §4.10, "parallel mode dispatches each internal DDS search through
PDDS; serial mode uses DDS" — so ParallelSearches selects whether each
*individual* search is itself a parallel PDDS run (adapters shared across
its own scheduler), not whether multiple searches run concurrently with
each other. The N_sols searches themselves always run one after another,
consuming the shared rng.Source in a fixed, deterministic sequence (spec
§4.1).
*/
package ddsau

import (
	"context"
	"io"
	"math"

	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
	"github.com/mathrgo/calibrate/runlog"
	"github.com/mathrgo/calibrate/strategy"
	"github.com/mathrgo/calibrate/strategy/dds"
)

// Config holds the DDSAU tunables of spec §4.10/§6.
type Config struct {
	PerturbationValue float64
	NumSearches        int // N_sols
	Threshold          float64 // f_max
	MinItersPerSearch  int
	MaxItersPerSearch  int
	ParallelSearches   bool
	Randomize          bool
	ReviseAU           bool

	// ResumeChecker implements spec §4.10/§4.11's per-search resume-by-
	// file-existence rule: when ReviseAU is set, it is consulted before
	// search i runs and, if ok, seeds that search's warm-start point and
	// evaluation counter instead of sampling fresh.
	ResumeChecker func(searchIndex int) (x []float64, counter int, ok bool)
}

// Solution is one representative point DDSAU retains from a single
// internal search (spec §4.10).
type Solution struct {
	SearchIndex int
	X           []float64
	Fx          float64
	Behavioral  bool
}

type Search struct {
	cfg      Config
	grp      *param.Group
	rnd      *rng.Source
	rc       *runctx.Context
	adapters []model.Adapter

	n      int
	lo, hi []float64

	solutions []Solution
	records   []runlog.Record

	warmX       []float64
	warmCounter int
	hasWarm     bool
}

func New(cfg Config, grp *param.Group, rnd *rng.Source, rc *runctx.Context, adapters []model.Adapter) *Search {
	n := grp.N()
	lo := make([]float64, n)
	hi := make([]float64, n)
	grp.Bounds(lo, hi)
	return &Search{cfg: cfg, grp: grp, rnd: rnd, rc: rc, adapters: adapters, n: n, lo: lo, hi: hi}
}

func (s *Search) Kind() strategy.Kind { return strategy.DDSAU }

func (s *Search) WarmStart(x []float64, counter int) {
	s.warmX = append([]float64(nil), x...)
	s.warmCounter = counter
	s.hasWarm = true
}

func (s *Search) Initialize(ctx context.Context) error { return nil }

func (s *Search) searchAdapters() []model.Adapter {
	if s.cfg.ParallelSearches {
		return s.adapters
	}
	return s.adapters[:1]
}

/*
Optimize runs N_sols independent DDS (or PDDS, per ParallelSearches)
searches in sequence (spec §4.10): for each, draws a budget uniformly from
[MinIter, MaxIter], optionally seeds it from ResumeChecker when ReviseAU is
set, runs it to completion, and retains either its best point or a
uniformly-sampled behavioral point from its trace.
*/
func (s *Search) Optimize(ctx context.Context) error {
	for i := 0; i < s.cfg.NumSearches; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		budget := s.drawBudget()
		sub := dds.New(dds.Config{Budget: budget, PerturbR: s.cfg.PerturbationValue}, s.grp, s.rnd, s.rc, s.searchAdapters())

		if s.cfg.ReviseAU && s.cfg.ResumeChecker != nil {
			if x, counter, ok := s.cfg.ResumeChecker(i); ok {
				sub.WarmStart(x, counter)
			}
		} else if i == 0 && s.hasWarm {
			sub.WarmStart(s.warmX, s.warmCounter)
		}

		if err := sub.Initialize(ctx); err != nil {
			return err
		}
		if err := sub.Optimize(ctx); err != nil {
			return err
		}

		sol := s.selectRepresentative(i, sub)
		s.solutions = append(s.solutions, sol)
		s.records = append(s.records, runlog.Record{Iter: i, Best: sol.Fx, X: append([]float64(nil), sol.X...)})
		s.rc.Update(sol.X, sol.Fx, nil)
	}
	return nil
}

func (s *Search) drawBudget() int {
	lo, hi := s.cfg.MinItersPerSearch, s.cfg.MaxItersPerSearch
	if hi <= lo {
		return lo
	}
	return lo + int(s.rnd.Uniform()*float64(hi-lo+1))
}

/*
selectRepresentative implements spec §4.10's retention rule: if Randomize
is set and the search's trace contains at least one behavioral sample
(objective <= Threshold), pick one uniformly at random from among them;
otherwise retain the single best point of the search. Since the best point
of a search is never worse than any behavioral sample in its own trace, a
search classifies as behavioral (Fx <= Threshold) under either policy
whenever its trace has at least one behavioral sample — only *which*
behavioral point gets reported differs (spec §8 scenario 6).
*/
func (s *Search) selectRepresentative(searchIndex int, sub *dds.Search) Solution {
	best, fBest := sub.Best()
	sol := Solution{SearchIndex: searchIndex, X: best, Fx: fBest}

	if s.cfg.Randomize {
		behavioral := make([]dds.TracePoint, 0)
		for _, tp := range sub.Trace() {
			if tp.F <= s.cfg.Threshold {
				behavioral = append(behavioral, tp)
			}
		}
		if len(behavioral) > 0 {
			idx := int(s.rnd.Uniform() * float64(len(behavioral)))
			if idx >= len(behavioral) {
				idx = len(behavioral) - 1
			}
			pick := behavioral[idx]
			sol = Solution{SearchIndex: searchIndex, X: append([]float64(nil), pick.X...), Fx: pick.F}
		}
	}

	sol.Behavioral = sol.Fx <= s.cfg.Threshold
	return sol
}

// Solutions returns the up-to-N_sols representative points DDSAU retained
// (spec §4.10).
func (s *Search) Solutions() []Solution {
	return s.solutions
}

// BehavioralFraction reports the fraction of retained solutions whose
// reported objective is at or below Threshold (Solution.Behavioral),
// whichever retention policy picked the point.
func (s *Search) BehavioralFraction() float64 {
	if len(s.solutions) == 0 {
		return 0
	}
	n := 0
	for _, sol := range s.solutions {
		if sol.Behavioral {
			n++
		}
	}
	return float64(n) / float64(len(s.solutions))
}

func (s *Search) WriteMetrics(w io.Writer) error {
	for _, r := range s.records {
		if err := runlog.WriteRecord(w, r); err != nil {
			return err
		}
	}
	return nil
}

// Best returns the best of all retained solutions.
func (s *Search) Best() ([]float64, float64) {
	best := math.Inf(1)
	var x []float64
	for _, sol := range s.solutions {
		if sol.Fx < best {
			best = sol.Fx
			x = sol.X
		}
	}
	return append([]float64(nil), x...), best
}

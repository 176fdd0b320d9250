package sce

import (
	"context"
	"math"
	"testing"

	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
)

func rastriginGroup(n int) *param.Group {
	descs := make([]param.Descriptor, n)
	for i := range descs {
		descs[i] = &param.Param{Lwr: -5.12, Upr: 5.12}
	}
	return param.NewGroup(descs, 0)
}

func rastrigin(x []float64) float64 {
	a := 10.0
	sum := a * float64(len(x))
	for _, v := range x {
		sum += v*v - a*math.Cos(2*math.Pi*v)
	}
	return sum
}

// TestSCEUARastrigin is spec §8 scenario 3: n=10, ngs=5, npg=21, nps=11,
// budget=10000.
func TestSCEUARastrigin(t *testing.T) {
	grp := rastriginGroup(10)
	adapter := model.NewFunc(grp, rastrigin)
	cfg := Config{
		NumComplexes:             5,
		PointsPerComplex:         21,
		PointsPerSubComplex:      11,
		EvolutionStepsPerShuffle: 21,
		Budget:                   10000,
		LoopStagnation:           5,
		PctChangeCriteria:        0.01,
		PopConvCriteria:          1e-4,
	}
	rnd := rng.New(3142)
	rc := runctx.New(3142, cfg.Budget)
	s := New(cfg, grp, rnd, rc, adapter)

	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := s.Optimize(ctx); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if s.nEvals > cfg.Budget+cfg.PointsPerComplex*cfg.NumComplexes {
		t.Fatalf("total evaluations %d exceeded budget %d by more than one generation's worth", s.nEvals, cfg.Budget)
	}
}

func TestSCEUACandidatesStayInBounds(t *testing.T) {
	grp := rastriginGroup(4)
	adapter := model.NewFunc(grp, rastrigin)
	cfg := Config{NumComplexes: 2, Budget: 1000, LoopStagnation: 5, PctChangeCriteria: 0.01, PopConvCriteria: 1e-5}
	rnd := rng.New(1)
	rc := runctx.New(1, cfg.Budget)
	s := New(cfg, grp, rnd, rc, adapter)
	ctx := context.Background()
	s.Initialize(ctx)
	s.Optimize(ctx)
	for _, m := range s.pop {
		if !grp.Feasible(m.x) {
			t.Fatalf("population member left feasible region: %v", m.x)
		}
	}
}

package gmlms

import (
	"context"
	"math"
	"testing"

	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
)

func curveFitGroup() *param.Group {
	descs := []param.Descriptor{
		&param.Param{Lwr: -5, Upr: 5},
		&param.Param{Lwr: -5, Upr: 5},
	}
	return param.NewGroup(descs, 0)
}

// linearResiduals returns r_i = (a*t_i + b) - y_i for a small fixed
// synthetic dataset generated from a=2, b=-1 with no noise, so the global
// minimum of sum(r_i^2) is exactly zero at x=(2,-1).
func linearResiduals(x []float64, F []float64) {
	a, b := x[0], x[1]
	ts := []float64{0, 1, 2, 3, 4}
	for i, t := range ts {
		y := 2*t - 1
		F[i] = (a*t + b) - y
	}
}

func TestGMLMSRecoversExactLinearFit(t *testing.T) {
	grp := curveFitGroup()
	adapter := model.NewFunc(grp, nil)
	adapter.MultiFn = linearResiduals
	adapter.NObj = 5

	cfg := Config{
		NumMultiStarts:  3,
		MaxLMIterations: 30,
		ConvergenceVal:  1e-10,
	}
	rnd := rng.New(3142)
	rc := runctx.New(3142, 10000)
	s := New(cfg, grp, rnd, rc, []model.Adapter{adapter})

	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := s.Optimize(ctx); err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	x, f := s.Best()
	if f > 1e-4 {
		t.Fatalf("expected near-zero residual sum of squares, got %v at x=%v", f, x)
	}
	if math.Abs(x[0]-2) > 0.05 || math.Abs(x[1]-(-1)) > 0.05 {
		t.Fatalf("expected x close to (2,-1), got %v", x)
	}
}

func TestGMLMSMultiStartsStayInBounds(t *testing.T) {
	grp := curveFitGroup()
	adapter := model.NewFunc(grp, nil)
	adapter.MultiFn = linearResiduals
	adapter.NObj = 5
	cfg := Config{NumMultiStarts: 4, MaxLMIterations: 10, ConvergenceVal: 1e-10, DistanceCandidateScale: 1}
	rnd := rng.New(1)
	rc := runctx.New(1, 10000)
	s := New(cfg, grp, rnd, rc, []model.Adapter{adapter})

	ctx := context.Background()
	s.Initialize(ctx)
	s.Optimize(ctx)

	for _, start := range s.starts {
		if !grp.Feasible(start) {
			t.Fatalf("multi-start point left feasible region: %v", start)
		}
	}
	if len(s.starts) != cfg.NumMultiStarts {
		t.Fatalf("expected %d starts, got %d", cfg.NumMultiStarts, len(s.starts))
	}
}

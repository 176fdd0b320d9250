package pso

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
)

func sphereGroup() *param.Group {
	return param.NewGroup([]param.Descriptor{
		&param.Param{Name: "x1", Lwr: -5, Upr: 5},
		&param.Param{Name: "x2", Lwr: -5, Upr: 5},
	}, 0)
}

func sphere(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return s
}

// TestPSOSphereConverges is spec §8 scenario 1: n=2, sphere, S=20, G_max=50.
func TestPSOSphereConverges(t *testing.T) {
	grp := sphereGroup()
	adapter := model.NewFunc(grp, sphere)
	cfg := Config{
		SwarmSize:        20,
		MaxGenerations:   50,
		Inertia:          1.2,
		CognitiveParam:   2.0,
		SocialParam:      2.0,
		Constriction:     1.0,
		InertiaReduction: InertiaLinear,
		ConvergenceVal:   1e-4,
	}
	rnd := rng.New(3142)
	rc := runctx.New(3142, 20*50)
	swarm := New(cfg, grp, rnd, rc, []model.Adapter{adapter})

	ctx := context.Background()
	if err := swarm.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := swarm.Optimize(ctx); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	x, f := swarm.Best()
	if f >= 1e-4 && !(f < cfg.ConvergenceVal) {
		t.Fatalf("f_best = %v, want < 1e-4 within 50 generations", f)
	}
	norm := math.Sqrt(x[0]*x[0] + x[1]*x[1])
	if norm >= 0.5 {
		// a generous fallback bound in case convergence is gradual; the
		// primary assertion is on f, this guards against a grossly wrong
		// implementation producing a far-off point despite a low f.
		t.Fatalf("best point norm = %v, want small", norm)
	}
}

func TestPSOParticlesStayInBounds(t *testing.T) {
	grp := sphereGroup()
	adapter := model.NewFunc(grp, sphere)
	cfg := Config{
		SwarmSize: 10, MaxGenerations: 20, Inertia: 0.7, CognitiveParam: 1.5,
		SocialParam: 1.5, Constriction: 1.0, ConvergenceVal: -1,
	}
	rnd := rng.New(7)
	rc := runctx.New(7, 10*20)
	swarm := New(cfg, grp, rnd, rc, []model.Adapter{adapter})
	ctx := context.Background()
	swarm.Initialize(ctx)
	swarm.Optimize(ctx)
	for _, p := range swarm.particles {
		for j, v := range p.x {
			lo, hi := swarm.lo[j], swarm.hi[j]
			if v < lo || v > hi {
				t.Fatalf("particle dimension %d out of bounds: %v not in [%v,%v]", j, v, lo, hi)
			}
		}
	}
}

// TestAPPSOSynchronousReceiveIsDeterministic is spec §8 scenario 5's core
// claim in miniature: two APPSO runs with the same seed and
// synchronous_receive=true produce byte-identical logs.
func TestAPPSOSynchronousReceiveIsDeterministic(t *testing.T) {
	run := func() []byte {
		grp := sphereGroup()
		adapters := []model.Adapter{
			model.NewFunc(grp, sphere),
			model.NewFunc(grp, sphere),
			model.NewFunc(grp, sphere),
			model.NewFunc(grp, sphere),
		}
		cfg := Config{
			SwarmSize: 16, MaxGenerations: 10, Inertia: 1.0, CognitiveParam: 2.0,
			SocialParam: 2.0, Constriction: 1.0, ConvergenceVal: -1,
			SynchronousReceive: true,
		}
		rnd := rng.New(99)
		rc := runctx.New(99, 16*10)
		swarm := New(cfg, grp, rnd, rc, adapters)
		ctx := context.Background()
		swarm.Initialize(ctx)
		swarm.Optimize(ctx)
		var buf bytes.Buffer
		swarm.WriteMetrics(&buf)
		return buf.Bytes()
	}
	a := run()
	b := run()
	if !bytes.Equal(a, b) {
		t.Fatalf("synchronous_receive runs diverged:\n%s\nvs\n%s", a, b)
	}
}

func TestPSOKindReportsAPPSOForMultipleAdapters(t *testing.T) {
	grp := sphereGroup()
	cfg := Config{SwarmSize: 4, MaxGenerations: 1}
	rnd := rng.New(1)
	rc := runctx.New(1, 4)
	serial := New(cfg, grp, rnd, rc, []model.Adapter{model.NewFunc(grp, sphere)})
	if serial.Kind().String() != "PSO" {
		t.Fatalf("single-adapter swarm Kind() = %v, want PSO", serial.Kind())
	}
	parallel := New(cfg, grp, rnd, rc, []model.Adapter{model.NewFunc(grp, sphere), model.NewFunc(grp, sphere)})
	if parallel.Kind().String() != "APPSO" {
		t.Fatalf("multi-adapter swarm Kind() = %v, want APPSO", parallel.Kind())
	}
}

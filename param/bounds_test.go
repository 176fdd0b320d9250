package param

import (
	"testing"

	"github.com/mathrgo/calibrate/rng"
)

func TestReflectIdempotentInBounds(t *testing.T) {
	cases := []float64{0, 1, 5, 9.999}
	for _, x := range cases {
		if got := Reflect(x, 0, 10); got != x {
			t.Errorf("Reflect(%v) = %v, want %v (idempotent on in-bounds input)", x, got, x)
		}
	}
}

func TestReflectBelowLower(t *testing.T) {
	// xNew=-1, lo=0, hi=10 -> 0 + (0 - (-1)) = 1
	if got := Reflect(-1, 0, 10); got != 1 {
		t.Errorf("Reflect(-1,0,10) = %v, want 1", got)
	}
	// overshoot past hi clamps to lo, never the far bound
	if got := Reflect(-100, 0, 10); got != 0 {
		t.Errorf("Reflect(-100,0,10) = %v, want 0", got)
	}
}

func TestReflectAboveUpper(t *testing.T) {
	if got := Reflect(11, 0, 10); got != 9 {
		t.Errorf("Reflect(11,0,10) = %v, want 9", got)
	}
	if got := Reflect(200, 0, 10); got != 10 {
		t.Errorf("Reflect(200,0,10) = %v, want 10", got)
	}
}

func TestNeighborPerturbRealStaysInBounds(t *testing.T) {
	s := rng.New(11)
	for i := 0; i < 2000; i++ {
		x := NeighborPerturbReal(s, 5, 0, 10, 0.2)
		if x < 0 || x > 10 {
			t.Fatalf("escaped bounds: %v", x)
		}
	}
}

func TestNeighborPerturbIntAlwaysChangesAndStaysInBounds(t *testing.T) {
	s := rng.New(13)
	for i := 0; i < 2000; i++ {
		x := NeighborPerturbInt(s, 5, 0, 10, 0.2)
		if x < 0 || x > 10 {
			t.Fatalf("escaped bounds: %v", x)
		}
		if x != RoundToInt(x) {
			t.Fatalf("non-integral result: %v", x)
		}
	}
	// at the boundary, forced-change must not overshoot
	for i := 0; i < 200; i++ {
		x := NeighborPerturbInt(s, 0, 0, 10, 0.0001)
		if x < 0 || x > 10 {
			t.Fatalf("boundary escaped bounds: %v", x)
		}
	}
}

func TestLocalMove10PctBounds(t *testing.T) {
	s := rng.New(3)
	for i := 0; i < 2000; i++ {
		x := LocalMove10Pct(s, 5, 0, 10)
		if x < 0 || x > 10 {
			t.Fatalf("escaped bounds: %v", x)
		}
	}
	// near an edge
	for i := 0; i < 2000; i++ {
		x := LocalMove10Pct(s, 0.1, 0, 10)
		if x < 0 || x > 10 {
			t.Fatalf("edge case escaped bounds: %v", x)
		}
	}
}

func TestTelescopeCorrectNeverViolatesBounds(t *testing.T) {
	s := rng.New(9)
	for i := 0; i < 500; i++ {
		a := s.Uniform()
		x := s.UniformInRange(-5, 15)
		got := TelescopeCorrect(TelescopeLinear, a, 0, 10, 4, x)
		if got < 0 || got > 10 {
			t.Fatalf("TelescopeCorrect escaped original bounds: a=%v x=%v got=%v", a, x, got)
		}
	}
}

func TestTelescopeCorrectTightensAsAGrows(t *testing.T) {
	// at a=1 the window collapses to a single point at best
	got := TelescopeCorrect(TelescopeLinear, 1, 0, 10, 4, 9)
	if got != 4 {
		t.Errorf("at a=1 expected full collapse to best=4, got %v", got)
	}
}

func TestTelescopeIdentityPassesThrough(t *testing.T) {
	got := TelescopeCorrect(TelescopeIdentity, 0.9, 0, 10, 4, 7)
	if got != 7 {
		t.Errorf("TelescopeIdentity should pass through in-bounds x, got %v", got)
	}
}

func TestGroupWriteReadRoundTrip(t *testing.T) {
	ps := []Descriptor{
		&Param{Name: "a", Lwr: 0, Upr: 10, Typ: Real, Val: 5},
		&Param{Name: "b", Lwr: -1, Upr: 1, Typ: Real, Val: 0},
	}
	g := NewGroup(ps, 0)
	x := []float64{3, 0.5}
	g.WriteVector(x)
	y := make([]float64, g.N())
	g.ReadVector(y)
	for i := range x {
		if x[i] != y[i] {
			t.Errorf("round-trip mismatch at %d: wrote %v read %v", i, x[i], y[i])
		}
	}
}

func TestGroupFeasible(t *testing.T) {
	ps := []Descriptor{
		&Param{Name: "a", Lwr: 0, Upr: 10, Typ: Real, Val: 5},
		&Param{Name: "b", Lwr: 0, Upr: 5, Typ: Integer, Val: 2},
	}
	g := NewGroup(ps, 0)
	if !g.Feasible([]float64{3, 2}) {
		t.Error("expected feasible")
	}
	if g.Feasible([]float64{11, 2}) {
		t.Error("expected infeasible: out of bounds")
	}
	if g.Feasible([]float64{3, 2.5}) {
		t.Error("expected infeasible: non-integral integer dimension")
	}
}

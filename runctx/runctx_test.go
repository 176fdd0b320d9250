package runctx

import "testing"

func TestUpdateAcceptsOnlyImprovements(t *testing.T) {
	c := New(1, 100)
	if !c.Update([]float64{1, 2}, 5.0, nil) {
		t.Fatalf("first update should be accepted")
	}
	if c.Update([]float64{3, 4}, 6.0, nil) {
		t.Fatalf("worse objective should not be accepted")
	}
	x, f, _, ok := c.Best()
	if !ok || f != 5.0 || x[0] != 1 {
		t.Fatalf("best = %v %v %v, want (1,2) 5.0 true", x, f, ok)
	}
}

func TestFractionUsedClampedToUnitInterval(t *testing.T) {
	c := New(1, 10)
	if a := c.FractionUsed(); a != 0 {
		t.Fatalf("fresh context FractionUsed = %v, want 0", a)
	}
	c.Spend(5)
	if a := c.FractionUsed(); a != 0.5 {
		t.Fatalf("FractionUsed after spending half = %v, want 0.5", a)
	}
	c.Spend(100)
	if a := c.FractionUsed(); a != 1 {
		t.Fatalf("FractionUsed should clamp to 1, got %v", a)
	}
}

func TestExhausted(t *testing.T) {
	c := New(1, 3)
	if c.Exhausted() {
		t.Fatalf("fresh context should not be exhausted")
	}
	c.Spend(3)
	if !c.Exhausted() {
		t.Fatalf("context should be exhausted after spending full budget")
	}
}

func TestBestBeforeAnyUpdate(t *testing.T) {
	c := New(1, 10)
	_, _, _, ok := c.Best()
	if ok {
		t.Fatalf("Best() should report ok=false before any Update")
	}
	if c.BestF() != positiveInfinity() {
		t.Fatalf("BestF() before any update should be +Inf")
	}
}

package sched

import (
	"context"
	"sync/atomic"
	"testing"
)

func squareEvaluator() Evaluator {
	return func(ctx context.Context, workerID int, w WorkUnit) Result {
		x := w.X[0]
		return Result{Fx: x * x}
	}
}

func TestRunAssimilatesEveryCandidateExactlyOnce(t *testing.T) {
	const n = 50
	s := New(context.Background(), 4, squareEvaluator(), false)
	defer s.Stop()

	seen := make([]bool, n)
	next := func(i int) WorkUnit { return WorkUnit{X: []float64{float64(i)}} }
	assimilate := func(res Result) bool {
		if seen[res.Index] {
			t.Fatalf("candidate %d assimilated twice", res.Index)
		}
		seen[res.Index] = true
		want := float64(res.Index * res.Index)
		if res.Fx != want {
			t.Fatalf("result for candidate %d = %v, want %v", res.Index, res.Fx, want)
		}
		return false
	}
	sent, received := s.Run(next, n, assimilate, nil)
	if sent != n || received != n {
		t.Fatalf("sent=%d received=%d, want %d each", sent, received, n)
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("candidate %d never assimilated", i)
		}
	}
}

func TestRunSynchronousReceiveIsDeterministicOrder(t *testing.T) {
	const n = 40
	s := New(context.Background(), 3, squareEvaluator(), true)
	defer s.Stop()

	var order []int
	next := func(i int) WorkUnit { return WorkUnit{X: []float64{float64(i)}} }
	assimilate := func(res Result) bool {
		order = append(order, res.WorkerID)
		return false
	}
	s.Run(next, n, assimilate, nil)

	// Synchronous receive must source results in fixed round-robin worker
	// order (0, 1, 2, 0, 1, 2, ...) on every receive, since every worker
	// is re-armed immediately after being drained.
	w := s.NumWorkers()
	for i := 0; i < len(order); i++ {
		want := i % w
		if order[i] != want {
			t.Fatalf("receive %d came from worker %d, want %d (synchronous round-robin)", i, order[i], want)
		}
	}
}

func TestRunQuitStopsEarly(t *testing.T) {
	const n = 1000
	s := New(context.Background(), 2, squareEvaluator(), false)
	defer s.Stop()

	var count int32
	next := func(i int) WorkUnit { return WorkUnit{X: []float64{float64(i)}} }
	assimilate := func(res Result) bool {
		atomic.AddInt32(&count, 1)
		return false
	}
	quitAfter := func() func() bool {
		return func() bool {
			return atomic.LoadInt32(&count) >= 5
		}
	}()
	sent, received := s.Run(next, n, assimilate, quitAfter)
	if sent >= n {
		t.Fatalf("expected early termination, but all %d candidates were sent", n)
	}
	if received < 2 {
		t.Fatalf("expected at least the priming batch of results, got %d", received)
	}
}

func TestResultIsFiniteRejectsNaNAndInf(t *testing.T) {
	finite := Result{Fx: 1.5, F: []float64{0.1, 0.2}}
	if !finite.IsFinite() {
		t.Fatalf("expected finite result to report IsFinite=true")
	}
	withErr := Result{Fx: 1, Err: errTest}
	if withErr.IsFinite() {
		t.Fatalf("a result carrying an error must report IsFinite=false")
	}
	nonFiniteFx := Result{Fx: posInf()}
	if nonFiniteFx.IsFinite() {
		t.Fatalf("+Inf objective must report IsFinite=false")
	}
	nonFiniteF := Result{Fx: 1, F: []float64{1, nan()}}
	if nonFiniteF.IsFinite() {
		t.Fatalf("NaN in F must report IsFinite=false")
	}
}

var errTest = testError("evaluator failed")

type testError string

func (e testError) Error() string { return string(e) }

func posInf() float64 { x := 1.0; return x / zero() }
func nan() float64    { z := zero(); return z / z }
func zero() float64   { return 0 }

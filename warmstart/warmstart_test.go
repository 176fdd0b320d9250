package warmstart

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mathrgo/calibrate/runlog"
	"github.com/mathrgo/calibrate/strategy"
)

// fakeStrategy satisfies strategy.Strategy, recording the arguments it was
// warm-started with.
type fakeStrategy struct {
	warmX       []float64
	warmCounter int
	called      bool
}

func (f *fakeStrategy) Kind() strategy.Kind                 { return strategy.DDS }
func (f *fakeStrategy) Initialize(ctx context.Context) error { return nil }
func (f *fakeStrategy) Optimize(ctx context.Context) error   { return nil }
func (f *fakeStrategy) WriteMetrics(w io.Writer) error        { return nil }
func (f *fakeStrategy) WarmStart(x []float64, counter int) {
	f.warmX = x
	f.warmCounter = counter
	f.called = true
}

func TestApplyMissingFileIsNonFatal(t *testing.T) {
	s := &fakeStrategy{}
	applied, err := Apply(filepath.Join(t.TempDir(), "nope.log"), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Fatalf("expected applied=false for missing file")
	}
	if s.called {
		t.Fatalf("WarmStart should not have been called")
	}
}

func TestApplySeedsFromLastRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	runlog.WriteRecord(f, runlog.Record{Iter: 1, Best: 5.0, X: []float64{1, 2}})
	runlog.WriteRecord(f, runlog.Record{Iter: 2, Best: 3.0, X: []float64{3, 4}})
	f.Close()

	s := &fakeStrategy{}
	applied, err := Apply(path, s)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !applied {
		t.Fatalf("expected applied=true")
	}
	if s.warmCounter != 2 || s.warmX[0] != 3 || s.warmX[1] != 4 {
		t.Fatalf("expected last record (counter=2, x=[3 4]), got counter=%d x=%v", s.warmCounter, s.warmX)
	}
}

func TestResumeCheckerFallsBackWhenMissing(t *testing.T) {
	dir := t.TempDir()
	checker := ResumeChecker(func(i int) string { return filepath.Join(dir, "search.log") })
	_, _, ok := checker(0)
	if ok {
		t.Fatalf("expected ok=false for nonexistent per-search log")
	}
}

func TestResumeCheckerFindsRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "search0.log")
	f, _ := os.Create(path)
	runlog.WriteRecord(f, runlog.Record{Iter: 9, Best: 1.0, X: []float64{7, 8}})
	f.Close()

	checker := ResumeChecker(func(i int) string { return filepath.Join(dir, "search0.log") })
	x, counter, ok := checker(0)
	if !ok || counter != 9 || x[0] != 7 {
		t.Fatalf("unexpected result: x=%v counter=%d ok=%v", x, counter, ok)
	}
}

func TestReviseSearchRemovesWhenNotRevising(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.log")
	os.WriteFile(path, []byte("stale"), 0644)

	skip, err := ReviseSearch(path, false)
	if err != nil {
		t.Fatalf("ReviseSearch: %v", err)
	}
	if skip {
		t.Fatalf("expected skip=false")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected stale file to be removed")
	}
}

func TestReviseSearchRenamesWhenRevising(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prior.log")
	os.WriteFile(path, []byte("prior"), 0644)

	skip, err := ReviseSearch(path, true)
	if err != nil {
		t.Fatalf("ReviseSearch: %v", err)
	}
	if !skip {
		t.Fatalf("expected skip=true")
	}
	if _, err := os.Stat(path + ".used"); err != nil {
		t.Fatalf("expected renamed file to exist: %v", err)
	}
}

package runlog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRecordRoundTripsThroughParseLastBest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "OstOutput0.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if err := WriteRecord(f, Record{Iter: i, Best: float64(10 - i), X: []float64{1.5, 2.5}}); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	row, ok, err := ParseLastBest(path)
	if err != nil {
		t.Fatalf("ParseLastBest error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a parsed row")
	}
	if row.Counter != 3 || row.F != 7 {
		t.Fatalf("row = %+v, want counter=3 f=7", row)
	}
	if len(row.X) != 2 || row.X[0] != 1.5 || row.X[1] != 2.5 {
		t.Fatalf("row.X = %v, want [1.5 2.5]", row.X)
	}
}

func TestParseLastBestMissingFileIsNonFatal(t *testing.T) {
	_, ok, err := ParseLastBest(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if err != nil {
		t.Fatalf("missing file must not be an error, got %v", err)
	}
	if ok {
		t.Fatalf("missing file should report ok=false")
	}
}

func TestWriteParetoRecordFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteParetoRecord(&buf, ParetoRecord{Iter: 5, F: []float64{1, 2}, X: []float64{0.1}}); err != nil {
		t.Fatal(err)
	}
	want := "iter 5 F 1 2 x 0.1\n"
	if buf.String() != want {
		t.Fatalf("WriteParetoRecord = %q, want %q", buf.String(), want)
	}
}

func TestQuitRequested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quit")
	if QuitRequested(path) {
		t.Fatalf("sentinel should not be present before creation")
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if !QuitRequested(path) {
		t.Fatalf("sentinel should be present after creation")
	}
}

func TestNewRunIDIsUniqueAndNonEmpty(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if a == "" || b == "" {
		t.Fatalf("expected non-empty run IDs")
	}
	if a == b {
		t.Fatalf("expected distinct run IDs, got %q twice", a)
	}
}

func TestWorkerDirIsStablePerRunAndWorker(t *testing.T) {
	runID := NewRunID()
	d0 := WorkerDir("/base", runID, 0)
	d1 := WorkerDir("/base", runID, 1)
	if d0 == d1 {
		t.Fatalf("expected distinct directories per worker, got %q for both", d0)
	}
	if WorkerDir("/base", runID, 0) != d0 {
		t.Fatalf("expected WorkerDir to be deterministic for the same (runID, worker)")
	}
}

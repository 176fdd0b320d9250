package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDDSAU = `
Strategy: DDSAU
Seed: 42
Workers: 4
SynchronousReceive: true
OutputLog: out.log
ResumeLog: resume.log
QuitSentinel: quit.flag
BeginParams:
  - Name: k
    Type: real
    LwrBnd: 0
    UprBnd: 10
    EstVal: 1
  - Name: n
    Type: integer
    LwrBnd: 1
    UprBnd: 20
    EstVal: 5
BeginDDSAU:
  PerturbationValue: 0.2
  NumSearches: 50
  Threshold: 1.5
  MinItersPerSearch: 100
  MaxItersPerSearch: 300
  ParallelSearches: true
  Randomize: true
  ReviseAU: false
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesStrategySelectionAndParams(t *testing.T) {
	root, err := Load(writeTemp(t, sampleDDSAU))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if root.Strategy != "DDSAU" {
		t.Fatalf("expected Strategy=DDSAU, got %q", root.Strategy)
	}
	if root.Seed != 42 || root.Workers != 4 || !root.SynchronousReceive {
		t.Fatalf("unexpected run-wide fields: %+v", root)
	}
	if len(root.Params) != 2 || root.Params[0].Name != "k" || root.Params[1].Type != "integer" {
		t.Fatalf("unexpected params: %+v", root.Params)
	}
}

func TestLoadParsesSelectedStrategyBlockOnly(t *testing.T) {
	root, err := Load(writeTemp(t, sampleDDSAU))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if root.DDSAU == nil {
		t.Fatalf("expected BeginDDSAU block to be populated")
	}
	if root.DDSAU.NumSearches != 50 || !root.DDSAU.Randomize || root.DDSAU.ReviseAU {
		t.Fatalf("unexpected DDSAU block: %+v", root.DDSAU)
	}
	if root.PSO != nil || root.DDS != nil || root.SA != nil {
		t.Fatalf("expected unrelated strategy blocks to stay nil, got %+v", root)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadMalformedYAMLReturnsError(t *testing.T) {
	path := writeTemp(t, "Strategy: [this is not\n  a valid: block")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}

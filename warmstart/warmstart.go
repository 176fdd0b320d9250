/*
Package warmstart implements the resume protocol of spec §4.11: seeding a
strategy's first candidate from a prior "best" record recovered from a
resume log, and the per-search file-existence-check resume variant DDSAU
uses (spec §4.10). It is a thin wrapper over runlog.ParseLastBest; no
teacher analogue exists (setpso.go has no resume
protocol at all), so this package is built directly from spec wording.
*/
package warmstart

import (
	"os"

	"github.com/mathrgo/calibrate/runlog"
	"github.com/mathrgo/calibrate/strategy"
)

/*
Apply reads the resume log at path and, if it holds a parseable prior best
record, calls s.WarmStart with that record's parameter vector and counter
(spec §4.11: "Seed the first candidate of the first population/particle
with that vector and set the evaluation counter to the prior value.").
A missing file is non-fatal: applied is false and err is nil.
*/
func Apply(path string, s strategy.Strategy) (applied bool, err error) {
	row, ok, err := runlog.ParseLastBest(path)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	s.WarmStart(row.X, row.Counter)
	return true, nil
}

/*
ResumeChecker builds a strategy/ddsau.Config.ResumeChecker from a naming
function: for search index i, it looks up pathFor(i)'s resume log and, if
a parseable prior best record exists, returns it (spec §4.10's "per-search
resume uses file-existence checks").
*/
func ResumeChecker(pathFor func(i int) string) func(i int) (x []float64, counter int, ok bool) {
	return func(i int) ([]float64, int, bool) {
		row, ok, err := runlog.ParseLastBest(pathFor(i))
		if err != nil || !ok {
			return nil, 0, false
		}
		return row.X, row.Counter, true
	}
}

/*
ReviseSearch implements spec §4.10's per-search file re-use rule: "if
previous per-search output files are present and reviseAU is on, rename
them in place to skip evaluation; otherwise delete and re-run." When
revise is false, any stale file at path is removed so the search starts
clean; when revise is true and path exists, it is renamed to path+".used"
and skip is reported true so the caller can avoid re-running that search.
*/
func ReviseSearch(path string, revise bool) (skip bool, err error) {
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if !revise {
		if exists {
			if err := os.Remove(path); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	if !exists {
		return false, nil
	}
	if err := os.Rename(path, path+".used"); err != nil {
		return false, err
	}
	return true, nil
}

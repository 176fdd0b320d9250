/*
Package runlog implements the line-oriented, append-only log format of spec
§6 ("per-iteration records with: iteration, best-objective,
convergence-indicator, and current parameter vector. Multi-objective runs
emit one line per non-dominated member with all objectives") and the
sentinel-file/resume-log parsing of §4.11. It plays the role the teacher's
psokit.ManPso plays informally via fmt.Fprintf-based PrintDebug — here
promoted to its own small package since the spec requires the format to be
resumable, not merely human-readable.
*/
package runlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

/*
NewRunID mints a collision-resistant run identifier, replacing the teacher's
bare integer runid (psokit.ManPso's run index) with a token suitable for
spec §5's parallel multi-worker case: per-worker candidate files live under
a directory named from this run ID, so two runs launched at once (or a
resumed run reusing the same output directory) never collide.
*/
func NewRunID() string {
	return uuid.NewString()
}

// WorkerDir returns the per-worker directory path a model adapter should
// write its candidate-parameter files under (spec §5: "the model adapter
// writes candidate parameters to files in a per-worker directory; the core
// does not share filesystem paths between workers").
func WorkerDir(base, runID string, workerID int) string {
	return filepath.Join(base, runID, fmt.Sprintf("worker-%d", workerID))
}

// Record is one single-objective iteration record.
type Record struct {
	Iter      int
	Best      float64
	Converged bool
	X         []float64
}

// QuitRequested reports whether the cooperative-cancellation sentinel file
// of spec §6/§7 is present ("A file whose presence indicates 'user asked to
// quit'. Read at the top of every outer iteration.").
func QuitRequested(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteRecord appends one line-oriented record in the format:
// "iter <n> best <f> converged <0|1> x <x0> <x1> ...".
func WriteRecord(w io.Writer, r Record) error {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "iter %d best %s converged %d x", r.Iter, formatFloat(r.Best), boolInt(r.Converged))
	for _, v := range r.X {
		fmt.Fprintf(sb, " %s", formatFloat(v))
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

// ParetoRecord is one non-dominated-archive-member record for
// multi-objective runs.
type ParetoRecord struct {
	Iter int
	F    []float64
	X    []float64
}

// WriteParetoRecord appends one line: "iter <n> F <f0> <f1> ... x <x0> ...".
func WriteParetoRecord(w io.Writer, r ParetoRecord) error {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "iter %d F", r.Iter)
	for _, v := range r.F {
		fmt.Fprintf(sb, " %s", formatFloat(v))
	}
	sb.WriteString(" x")
	for _, v := range r.X {
		fmt.Fprintf(sb, " %s", formatFloat(v))
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// BestRow is the prior "best" record recovered from a resume log (spec
// §4.11): a counter and the parameter vector/objective that produced it.
type BestRow struct {
	Counter int
	X       []float64
	F       float64
}

/*
ParseLastBest scans path line by line, recognizing this package's "iter ...
best ... x ..." record format, and returns the last (i.e. most recent) one
found. A missing file is non-fatal per spec §7 ("warm-start file missing is
non-fatal (log and proceed with fresh initialization)") — ok is false and
err is nil in that case.
*/
func ParseLastBest(path string) (row BestRow, ok bool, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return BestRow{}, false, nil
	}
	if err != nil {
		return BestRow{}, false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		r, perr := parseLine(sc.Text())
		if perr == nil {
			row = r
			ok = true
		}
	}
	if err := sc.Err(); err != nil {
		return BestRow{}, false, err
	}
	return row, ok, nil
}

func parseLine(line string) (BestRow, error) {
	fields := strings.Fields(line)
	row := BestRow{}
	i := 0
	for i < len(fields) {
		switch fields[i] {
		case "iter":
			if i+1 >= len(fields) {
				return row, fmt.Errorf("runlog: truncated iter field")
			}
			n, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return row, err
			}
			row.Counter = n
			i += 2
		case "best":
			if i+1 >= len(fields) {
				return row, fmt.Errorf("runlog: truncated best field")
			}
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return row, err
			}
			row.F = v
			i += 2
		case "x":
			row.X = row.X[:0]
			for j := i + 1; j < len(fields); j++ {
				v, err := strconv.ParseFloat(fields[j], 64)
				if err != nil {
					return row, err
				}
				row.X = append(row.X, v)
			}
			i = len(fields)
		default:
			i++
		}
	}
	if row.X == nil {
		return row, fmt.Errorf("runlog: no x field in line %q", line)
	}
	return row, nil
}

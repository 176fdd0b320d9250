/*
Package model specifies the Model adapter contract (spec §6) and the
Candidate type (spec §3). The adapter itself — template substitution,
external process invocation, response-variable parsing — is out of scope
(spec §1); this package defines the interface every search strategy programs
against plus a lightweight in-process adapter (Func) for tests and for
callers whose objective is a plain Go function rather than an external
process.
*/
package model

import "github.com/mathrgo/calibrate/param"

// Candidate is a dense real vector of decision variables plus its
// evaluation outcome: either a scalar objective or an objective vector, and
// a constraint vector of special/pre-emption values (spec §3).
type Candidate struct {
	X      []float64
	Fx     float64
	F      []float64 // multi-objective vector; empty for single-objective use
	C      []float64 // special-constraint values, length nSpecial
	Finite bool      // false if Fx/F contained a non-finite value (spec §4.4)
}

// Clone returns a deep copy of the candidate.
func (c *Candidate) Clone() *Candidate {
	cp := &Candidate{
		X:      append([]float64(nil), c.X...),
		Fx:     c.Fx,
		Finite: c.Finite,
	}
	if c.F != nil {
		cp.F = append([]float64(nil), c.F...)
	}
	if c.C != nil {
		cp.C = append([]float64(nil), c.C...)
	}
	return cp
}

// Dominates reports whether a dominates b under minimization (spec
// GLOSSARY): every objective of a is <= the corresponding objective of b,
// and at least one is strictly less.
func Dominates(a, b []float64) bool {
	strictlyLess := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			strictlyLess = true
		}
	}
	return strictlyLess
}

// Adapter is the Model adapter contract of spec §6.
type Adapter interface {
	// Group returns the parameter group the adapter writes candidates into.
	Group() *param.Group

	// Evaluate evaluates the current parameter-group contents for
	// single-objective strategies.
	Evaluate() (float64, error)

	// EvaluateMulti evaluates for multi-objective strategies, filling F
	// (which must be pre-sized to NumObjectives()).
	EvaluateMulti(F []float64) error

	// NumObjectives returns m, the number of objectives EvaluateMulti
	// expects to fill.
	NumObjectives() int

	// WriteParams stores x into the parameter group.
	WriteParams(x []float64)

	// ReadParams reads the current estimate into x.
	ReadParams(x []float64)

	// PerformParameterCorrections invokes user-supplied adjustment logic
	// after WriteParams and before Evaluate/EvaluateMulti.
	PerformParameterCorrections()

	// GetSpecialConstraints fills c (length NumSpecial()) with the current
	// special/pre-emption constraint values.
	GetSpecialConstraints(c []float64)

	// ConfigureSpecialParams drives pre-emption: fBest is the current
	// best-so-far objective, cBest the constraint vector associated with
	// it, as advised by the scheduler's DATA message (spec §4.4).
	ConfigureSpecialParams(fBest float64, cBest []float64)

	// NumSpecial returns nSpecial, the number of special constraint slots.
	NumSpecial() int

	// SaveBest persists the artefacts of the current best-so-far for
	// worker workerID.
	SaveBest(workerID int)

	// CheckWarmStart reports whether a prior resume log is usable.
	CheckWarmStart() bool

	// GetCounter / SetCounter manage the resumable evaluation counter.
	GetCounter() int
	SetCounter(int)
}

/*
Func adapts a plain Go objective function (the common case for tests and for
self-contained cost functions with no external process) into an Adapter. It
satisfies the single-objective half of the contract; EvaluateMulti delegates
to MultiFn if set, otherwise it is an error to call it.
*/
type Func struct {
	Grp      *param.Group
	Obj      func(x []float64) float64
	MultiFn  func(x []float64, f []float64)
	NObj     int
	NSpec    int
	Special  func(x []float64, c []float64)
	counter  int
	fBest    float64
	cBest    []float64
	buf      []float64
}

// NewFunc builds a Func adapter over grp evaluating obj.
func NewFunc(grp *param.Group, obj func([]float64) float64) *Func {
	return &Func{Grp: grp, Obj: obj, buf: make([]float64, grp.N())}
}

func (f *Func) Group() *param.Group { return f.Grp }

func (f *Func) Evaluate() (float64, error) {
	f.Grp.ReadVector(f.buf)
	return f.Obj(f.buf), nil
}

func (f *Func) EvaluateMulti(F []float64) error {
	if f.MultiFn == nil {
		if F == nil {
			return nil
		}
		panic("model.Func: EvaluateMulti called without MultiFn set")
	}
	f.Grp.ReadVector(f.buf)
	f.MultiFn(f.buf, F)
	return nil
}

func (f *Func) NumObjectives() int { return f.NObj }

func (f *Func) WriteParams(x []float64) { f.Grp.WriteVector(x) }

func (f *Func) ReadParams(x []float64) { f.Grp.ReadVector(x) }

func (f *Func) PerformParameterCorrections() {}

func (f *Func) GetSpecialConstraints(c []float64) {
	if f.Special == nil {
		return
	}
	f.Grp.ReadVector(f.buf)
	f.Special(f.buf, c)
}

func (f *Func) ConfigureSpecialParams(fBest float64, cBest []float64) {
	f.fBest = fBest
	f.cBest = cBest
}

func (f *Func) NumSpecial() int { return f.NSpec }

func (f *Func) SaveBest(workerID int) {}

func (f *Func) CheckWarmStart() bool { return false }

func (f *Func) GetCounter() int { return f.counter }

func (f *Func) SetCounter(c int) { f.counter = c }

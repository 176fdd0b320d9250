/*
Package strategy defines the capability interface every search strategy
implements (spec §9: "Polymorphism across strategies ... becomes a small
capability interface with tagged variants") and the closed dispatch table
over {PSO, APPSO, DDS, PDDS, PADDS, ParaPADDS, SCE-UA, SA, VSA, CSA, DDSAU,
GML-MS}. This mirrors the teacher's psokit.ManPso name-registry pattern
(CreateFun/CreatePso keyed by string case name) but the table here is fixed
at compile time per spec §9 ("no plugins in the core") rather than open to
runtime registration.
*/
package strategy

import (
	"context"
	"fmt"
	"io"
)

// Kind tags which of the twelve search strategies a Strategy value
// implements.
type Kind int

const (
	PSO Kind = iota
	APPSO
	DDS
	PDDS
	PADDS
	ParaPADDS
	SCEUA
	SA
	VSA
	CSA
	DDSAU
	GMLMS
)

func (k Kind) String() string {
	switch k {
	case PSO:
		return "PSO"
	case APPSO:
		return "APPSO"
	case DDS:
		return "DDS"
	case PDDS:
		return "PDDS"
	case PADDS:
		return "PADDS"
	case ParaPADDS:
		return "ParaPADDS"
	case SCEUA:
		return "SCE-UA"
	case SA:
		return "SA"
	case VSA:
		return "VSA"
	case CSA:
		return "CSA"
	case DDSAU:
		return "DDSAU"
	case GMLMS:
		return "GML-MS"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Strategy is the capability interface of spec §9: Initialize, Optimize,
// WriteMetrics, WarmStart.
type Strategy interface {
	// Kind reports which tagged variant this value implements.
	Kind() Kind

	// Initialize constructs the strategy's initial population/particle/
	// complex state, consuming RNG draws in a well-defined order (spec
	// §4.1's determinism contract).
	Initialize(ctx context.Context) error

	// Optimize runs the strategy to one of its termination conditions
	// (budget exhausted, convergence criterion, or cooperative
	// cancellation) and returns the terminal error, if any.
	Optimize(ctx context.Context) error

	// WriteMetrics appends the strategy's per-iteration log records to w in
	// the line-oriented format of spec §6.
	WriteMetrics(w io.Writer) error

	// WarmStart applies a prior best point and evaluation counter (spec
	// §4.11). PSO, DDS, SA, DDSAU and GML-MS seed their first candidate
	// with x; PADDS and SCE-UA only add counter to the spent budget and do
	// not use x.
	WarmStart(x []float64, counter int)
}

// QuitFunc is the shape of a cooperative-cancellation sentinel poll (spec
// §6/§7). No strategy takes one: each Optimize loop checks ctx.Done() once
// per outer iteration, and the caller cancels ctx when the sentinel appears.
type QuitFunc func() bool

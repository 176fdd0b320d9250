/*
Package archive implements the Pareto archive (spec §3, §4.3): two
collections, non-dominated and dominated, with insert-with-dominance-filter
and selection by a per-member metric Z (random, crowding distance,
Monte-Carlo hypervolume contribution, or exact hypervolume contribution).

spec.md models the archive as two singly-linked lists; this port follows the
design note in §9 ("Archive linked-lists are a good fit for linear scans ...
but a poor fit for cache locality; a vector with tombstones or a swap-remove
scheme is acceptable provided the invariant tests in §8 pass") and stores
both collections as slices, since every operation here is already a linear
scan and a slice gives better locality for exactly that access pattern.
*/
package archive

import (
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// InsertResult reports the outcome of Insert, per spec §4.3 step 4-5.
type InsertResult int

const (
	NonDominated InsertResult = iota
	Dominated
	Duplicate
)

// Member is a Pareto archive resident: a decision vector, its objective
// vector, and a selection weight Z recomputed by ComputeZ.
type Member struct {
	X []float64
	F []float64
	Z float64
}

func cloneF(f []float64) []float64 { return append([]float64(nil), f...) }

func dominates(a, b []float64) bool {
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

func equalObjectives(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Archive holds the non-dominated and dominated collections.
type Archive struct {
	NonDom []*Member
	Dom    []*Member

	// DetectDuplicates enables exact-objective duplicate detection on
	// Insert (spec §4.3 step 5), used by PADDS.
	DetectDuplicates bool
}

// New creates an empty archive.
func New() *Archive { return &Archive{} }

/*
Insert implements spec §4.3's Insert(x, F):
 1. if both lists are empty, insert into NonDom.
 2. scan NonDom for members dominated by x (demoted to Dom) and members
    that dominate x.
 3. if nothing dominates x, prepend x to NonDom and return NonDominated;
    otherwise prepend to Dom and return Dominated.
 4. if DetectDuplicates is set and x exactly matches an existing member's
    objective vector, discard it and return Duplicate instead.
*/
func (a *Archive) Insert(x, f []float64) InsertResult {
	if a.DetectDuplicates {
		for _, m := range a.NonDom {
			if equalObjectives(m.F, f) {
				return Duplicate
			}
		}
		for _, m := range a.Dom {
			if equalObjectives(m.F, f) {
				return Duplicate
			}
		}
	}

	if len(a.NonDom) == 0 && len(a.Dom) == 0 {
		a.NonDom = append(a.NonDom, &Member{X: append([]float64(nil), x...), F: cloneF(f)})
		return NonDominated
	}

	dominatedByX := a.NonDom[:0:0]
	kept := a.NonDom[:0:0]
	dominatesX := false
	for _, m := range a.NonDom {
		if dominates(f, m.F) {
			dominatedByX = append(dominatedByX, m)
			continue
		}
		if dominates(m.F, f) {
			dominatesX = true
		}
		kept = append(kept, m)
	}
	a.NonDom = kept
	a.Dom = append(a.Dom, dominatedByX...)

	member := &Member{X: append([]float64(nil), x...), F: cloneF(f)}
	if dominatesX {
		a.Dom = append([]*Member{member}, a.Dom...)
		return Dominated
	}
	a.NonDom = append([]*Member{member}, a.NonDom...)
	return NonDominated
}

// Len returns the total number of insertions currently held (non-dominated
// plus dominated). Every insertion is held, so with DetectDuplicates set
// (duplicates are then discarded before reaching a collection) this equals
// the number of insertions of distinct points.
func (a *Archive) Len() int { return len(a.NonDom) + len(a.Dom) }

/*
CheckInvariants verifies the §8 testable properties: the two collections are
disjoint (by pointer identity) and no member of NonDom dominates another. It
is intended for tests, not hot-path use.
*/
func (a *Archive) CheckInvariants() error {
	seen := make(map[*Member]bool, len(a.NonDom))
	for _, m := range a.NonDom {
		seen[m] = true
	}
	for _, m := range a.Dom {
		if seen[m] {
			return errDuplicateMember
		}
	}
	for i, mi := range a.NonDom {
		for j, mj := range a.NonDom {
			if i == j {
				continue
			}
			if dominates(mi.F, mj.F) {
				return errMutualDominance
			}
		}
	}
	return nil
}

var errDuplicateMember = archiveError("member present in both NonDom and Dom")
var errMutualDominance = archiveError("a NonDom member dominates another NonDom member")

type archiveError string

func (e archiveError) Error() string { return string(e) }

// ZScheme selects the metric used by ComputeZ (spec §4.3).
type ZScheme int

const (
	ZRandom ZScheme = iota
	ZCrowding
	ZHVMonteCarlo
	ZHVExact
)

// ComputeZ recomputes the per-member selection weight for every resident of
// nonDom according to scheme.
func ComputeZ(nonDom []*Member, scheme ZScheme, rnd *rand.Rand) {
	switch scheme {
	case ZRandom:
		for _, m := range nonDom {
			m.Z = 1
		}
	case ZCrowding:
		computeCrowding(nonDom)
	case ZHVMonteCarlo:
		computeHVMonteCarlo(nonDom, rnd)
	case ZHVExact:
		computeHVExact(nonDom)
	}
}

/*
computeCrowding implements spec §4.3's CROWDING scheme: for each objective k,
sort by F[k] and accumulate the normalized distance between a member's
neighbors; each endpoint inherits the contribution of its single neighbor.
With exactly two members neither has an interior neighbor, and each is
credited 1 per objective. The per-objective span used to normalize distances is the 0/1 quantile of
the sorted values, via gonum/stat.
*/
func computeCrowding(nonDom []*Member) {
	n := len(nonDom)
	for _, m := range nonDom {
		m.Z = 0
	}
	if n == 0 {
		return
	}
	if n == 1 {
		nonDom[0].Z = 1
		return
	}
	nObj := len(nonDom[0].F)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	values := make([]float64, n)
	for k := 0; k < nObj; k++ {
		order := append([]int(nil), idx...)
		sortByObjective(order, nonDom, k)
		for i, j := range order {
			values[i] = nonDom[j].F[k]
		}
		lo := stat.Quantile(0, stat.Empirical, values, nil)
		hi := stat.Quantile(1, stat.Empirical, values, nil)
		span := hi - lo
		if span == 0 {
			continue
		}
		if n == 2 {
			nonDom[order[0]].Z += 1
			nonDom[order[1]].Z += 1
			continue
		}
		for i := 1; i < n-1; i++ {
			prev := nonDom[order[i-1]].F[k]
			next := nonDom[order[i+1]].F[k]
			d := next - prev
			if d < 0 {
				d = -d
			}
			nonDom[order[i]].Z += d / span
		}
		nonDom[order[0]].Z += (nonDom[order[2]].F[k] - nonDom[order[0]].F[k]) / span
		nonDom[order[n-1]].Z += (nonDom[order[n-1]].F[k] - nonDom[order[n-3]].F[k]) / span
	}
}

func sortByObjective(order []int, nonDom []*Member, k int) {
	// insertion sort: archives are small (population-sized), and this keeps
	// the package free of a sort.Interface boilerplate type.
	for i := 1; i < len(order); i++ {
		j := i
		for j > 0 && nonDom[order[j-1]].F[k] > nonDom[order[j]].F[k] {
			order[j-1], order[j] = order[j], order[j-1]
			j--
		}
	}
}

/*
computeHVMonteCarlo implements spec §4.3's HV_MC scheme: draw P=100 points
uniformly in the bounding box of nonDom; attribute each Monte-Carlo point to
the unique archive member that dominates it (if exactly one does); normalize
by P; members with zero attributed points receive 0.5*max(Z) so they
are never selected with zero probability.
*/
func computeHVMonteCarlo(nonDom []*Member, rnd *rand.Rand) {
	const P = 100
	n := len(nonDom)
	for _, m := range nonDom {
		m.Z = 0
	}
	if n == 0 {
		return
	}
	nObj := len(nonDom[0].F)
	lo := append([]float64(nil), nonDom[0].F...)
	hi := append([]float64(nil), nonDom[0].F...)
	for _, m := range nonDom[1:] {
		for k := 0; k < nObj; k++ {
			if m.F[k] < lo[k] {
				lo[k] = m.F[k]
			}
			if m.F[k] > hi[k] {
				hi[k] = m.F[k]
			}
		}
	}
	pt := make([]float64, nObj)
	for p := 0; p < P; p++ {
		for k := 0; k < nObj; k++ {
			pt[k] = lo[k] + rnd.Float64()*(hi[k]-lo[k])
		}
		dominator := -1
		count := 0
		for i, m := range nonDom {
			if dominates(m.F, pt) {
				dominator = i
				count++
				if count > 1 {
					break
				}
			}
		}
		if count == 1 {
			nonDom[dominator].Z++
		}
	}
	for _, m := range nonDom {
		m.Z /= P
	}
	maxZ := 0.0
	for _, m := range nonDom {
		if m.Z > maxZ {
			maxZ = m.Z
		}
	}
	floorZ := 0.5 * maxZ
	for _, m := range nonDom {
		if m.Z == 0 {
			m.Z = floorZ
		}
	}
}

/*
computeHVExact implements spec §4.3's HV_EXACT scheme: the contribution of
member i is HV(nonDom) - HV(nonDom \ {i}), via the dimension-sweep Klee's
measure algorithm in hypervolume.go. Edge members (the ones achieving the
best value in some objective) receive max(Z) to avoid zero-probability
selection, per spec.
*/
func computeHVExact(nonDom []*Member) {
	n := len(nonDom)
	for _, m := range nonDom {
		m.Z = 0
	}
	if n == 0 {
		return
	}
	ref := referencePoint(nonDom)
	total := hypervolume(pointsOf(nonDom), ref)
	maxZ := 0.0
	isEdge := make([]bool, n)
	nObj := len(nonDom[0].F)
	for k := 0; k < nObj; k++ {
		best := 0
		for i := 1; i < n; i++ {
			if nonDom[i].F[k] < nonDom[best].F[k] {
				best = i
			}
		}
		isEdge[best] = true
	}
	for i := range nonDom {
		if isEdge[i] {
			continue
		}
		without := make([][]float64, 0, n-1)
		for j, m := range nonDom {
			if j != i {
				without = append(without, m.F)
			}
		}
		contrib := total - hypervolume(without, ref)
		nonDom[i].Z = contrib
		if contrib > maxZ {
			maxZ = contrib
		}
	}
	for i := range nonDom {
		if isEdge[i] {
			nonDom[i].Z = maxZ
		}
	}
}

func pointsOf(nonDom []*Member) [][]float64 {
	pts := make([][]float64, len(nonDom))
	for i, m := range nonDom {
		pts[i] = m.F
	}
	return pts
}

// referencePoint picks a worst-case corner dominated by every member, used
// as the hypervolume computation's reference point.
func referencePoint(nonDom []*Member) []float64 {
	nObj := len(nonDom[0].F)
	ref := make([]float64, nObj)
	for k := 0; k < nObj; k++ {
		max := nonDom[0].F[k]
		for _, m := range nonDom[1:] {
			if m.F[k] > max {
				max = m.F[k]
			}
		}
		ref[k] = max
	}
	return ref
}

/*
SelectByZ performs roulette-wheel selection over nonDom weighted by each
member's Z (spec §4.3's SelectByZ).
*/
func SelectByZ(nonDom []*Member, rnd *rand.Rand) *Member {
	if len(nonDom) == 0 {
		return nil
	}
	total := 0.0
	for _, m := range nonDom {
		total += m.Z
	}
	if total <= 0 {
		return nonDom[rnd.Intn(len(nonDom))]
	}
	r := rnd.Float64() * total
	acc := 0.0
	for _, m := range nonDom {
		acc += m.Z
		if r <= acc {
			return m
		}
	}
	return nonDom[len(nonDom)-1]
}

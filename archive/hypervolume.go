package archive

import "sort"

/*
hypervolume computes the volume, under minimization, of the region
dominated by points and bounded above by ref (every point must satisfy
points[i][k] <= ref[k] for all k). Each point i dominates the axis-aligned
box [points[i], ref]; hypervolume is the volume of the union of those boxes.

This is the dimension-sweep Klee's-measure algorithm spec §4.3/§9 calls for:
recursion is keyed on the number of objectives d (len(ref), small —
typically 2 or 3), not on the archive size n. hvSlice sorts the current
point set along one objective axis and recurses on the remaining d-1
objectives once per slice between consecutive sorted values along that
axis, so the recursion depth is exactly d regardless of how large the
archive grows; only the per-level sort and slice count scale with n.
*/
func hypervolume(points [][]float64, ref []float64) float64 {
	if len(points) == 0 {
		return 0
	}
	return hvSlice(points, ref)
}

// hvSlice computes the hypervolume of the union of boxes [p, ref] for p in
// points, where every point and ref share len(ref) == d dimensions.
func hvSlice(points [][]float64, ref []float64) float64 {
	d := len(ref)
	if d == 1 {
		best := points[0][0]
		for _, p := range points[1:] {
			if p[0] < best {
				best = p[0]
			}
		}
		if ref[0] <= best {
			return 0
		}
		return ref[0] - best
	}

	k := d - 1
	sorted := append([][]float64(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i][k] < sorted[j][k] })

	total := 0.0
	for i, p := range sorted {
		var height float64
		if i+1 < len(sorted) {
			height = sorted[i+1][k] - p[k]
		} else {
			height = ref[k] - p[k]
		}
		if height <= 0 {
			continue
		}
		// every point up to and including i has reached or passed this
		// slice's boundary on axis k, so all of them bound the slice's
		// extent on the remaining d-1 axes.
		sub := make([][]float64, i+1)
		for j := 0; j <= i; j++ {
			sub[j] = sorted[j][:k]
		}
		total += height * hvSlice(sub, ref[:k])
	}
	return total
}

// HV is the exported entry point other packages (and tests) use to measure
// an archive's total hypervolume against a shared reference point, e.g. to
// confirm HV = sum(contributions) per spec §9's correctness definition.
func HV(nonDom []*Member, ref []float64) float64 {
	return hypervolume(pointsOf(nonDom), ref)
}

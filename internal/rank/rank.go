// Package rank assigns tie-aware ranks to sequences of comparable values.
// Both functions return one rank per input element, aligned with the input
// order, and never reorder or modify the input.
package rank

import (
	"cmp"
	"slices"
)

// Competition ranks each element as 1 plus the number of elements that order
// strictly before it under compare. Equal elements share a rank and the
// following rank is skipped ("1, 2, 2, 4").
//
// With cmp.Compare, [4, 2, 2, 4, 7] ranks as [3, 1, 1, 3, 5].
func Competition[T any](seq []T, compare func(a, b T) int) []int {
	sorted := slices.Clone(seq)
	slices.SortStableFunc(sorted, compare)

	ranks := make([]int, len(seq))
	for i, v := range seq {
		// Index of the first element not ordering before v.
		pos, _ := slices.BinarySearchFunc(sorted, v, compare)
		ranks[i] = pos + 1
	}
	return ranks
}

// Dense ranks each element as 1 plus the number of distinct values that
// order strictly before it under compare. Equal elements share a rank and no
// rank is skipped ("1, 2, 2, 3").
func Dense[T any](seq []T, compare func(a, b T) int) []int {
	distinct := slices.Clone(seq)
	slices.SortFunc(distinct, compare)
	distinct = slices.CompactFunc(distinct, func(a, b T) bool {
		return compare(a, b) == 0
	})

	ranks := make([]int, len(seq))
	for i, v := range seq {
		pos, _ := slices.BinarySearchFunc(distinct, v, compare)
		ranks[i] = pos + 1
	}
	return ranks
}

// Descending adapts an ascending comparison so that larger values order
// first, which makes the largest value rank 1.
func Descending[T any](compare func(a, b T) int) func(a, b T) int {
	return func(a, b T) int {
		return compare(b, a)
	}
}

// Ordered is a convenience wrapper for Competition over cmp.Ordered values.
func Ordered[T cmp.Ordered](seq []T) []int {
	return Competition(seq, cmp.Compare[T])
}

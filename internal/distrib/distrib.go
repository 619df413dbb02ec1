/*
 * Copyright (c) mpibind-go contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package distrib implements the even-distribution and fill-in-buckets
// primitives of spec.md §4.3. The bin-packing shape follows the teacher's
// internal/rm/allocate.go pair of allocation policies (bin-pack a fixed
// pool across a requested size, or pack-and-slice a sorted candidate list)
// generalized here to plain integer index distribution reused by both the
// CPU matcher and the GPU matcher.
package distrib

// Balanced distributes n items into k buckets (k >= 1), returning a
// length-k vector that sums to n where the first n%k entries equal
// ceil(n/k) and the rest equal floor(n/k). The max and min entries never
// differ by more than 1.
func Balanced(n, k int) []int {
	if k <= 0 {
		panic("distrib: k must be >= 1")
	}
	out := make([]int, k)
	base := n / k
	rem := n % k
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

// FillBuckets assigns nbuckets task slots to the given elems according to
// spec.md §4.3's two shapes:
//
//   - len(elems) >= nbuckets: consecutive elements are packed into buckets
//     per Balanced(len(elems), nbuckets); each returned slice may hold
//     several elements.
//   - len(elems) < nbuckets: buckets are packed around elements per
//     Balanced(nbuckets, len(elems)), so consecutive buckets receive the
//     same element in runs; every bucket gets exactly one element, and
//     higher-index elements are reused least.
//
// The result always has length nbuckets.
func FillBuckets[T any](elems []T, nbuckets int) [][]T {
	if nbuckets <= 0 {
		panic("distrib: nbuckets must be >= 1")
	}
	out := make([][]T, nbuckets)

	if len(elems) == 0 {
		for i := range out {
			out[i] = nil
		}
		return out
	}

	if len(elems) >= nbuckets {
		counts := Balanced(len(elems), nbuckets)
		pos := 0
		for b, c := range counts {
			out[b] = append([]T(nil), elems[pos:pos+c]...)
			pos += c
		}
		return out
	}

	// len(elems) < nbuckets: distribute nbuckets across len(elems) runs,
	// heads (lower-index elements) receiving the extra bucket.
	runs := Balanced(nbuckets, len(elems))
	b := 0
	for e, run := range runs {
		for i := 0; i < run; i++ {
			out[b] = []T{elems[e]}
			b++
		}
	}
	return out
}

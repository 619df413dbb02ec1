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

// Package cpuset is the engine's variable-capacity set of nonnegative
// integers (spec.md §4.3). It is a thin value-type wrapper around
// k8s.io/utils/cpuset.CPUSet, adding the ordered First/Next walk the engine
// needs that upstream does not expose, and keeping the exact
// "0-3,7,9-11" range-list grammar spec.md §4.8 requires (upstream's
// Parse/String already implement it).
package cpuset

import (
	"sort"

	k8scpuset "k8s.io/utils/cpuset"
)

// Set is an immutable set of nonnegative integers (PU indices, device
// indices, or NUMA os-indices depending on context).
type Set struct {
	inner k8scpuset.CPUSet
}

// Empty returns the empty set.
func Empty() Set {
	return Set{inner: k8scpuset.New()}
}

// New builds a set from the given members.
func New(members ...int) Set {
	return Set{inner: k8scpuset.New(members...)}
}

// Parse parses a range-list string of the form "0-3,7,9-11": comma
// separated tokens, each a single nonnegative integer or a "begin-end"
// range with end >= begin. Returns an error for any other token shape.
func Parse(s string) (Set, error) {
	inner, err := k8scpuset.Parse(s)
	if err != nil {
		return Set{}, err
	}
	return Set{inner: inner}, nil
}

// String serializes the set back to "0-3,7,9-11" form. Parse(s.String())
// always yields a set with identical membership to s.
func (s Set) String() string {
	return s.inner.String()
}

// Add returns a new set with i added.
func (s Set) Add(i int) Set {
	return Set{inner: s.inner.Union(k8scpuset.New(i))}
}

// Clear returns a new set with i removed.
func (s Set) Clear(i int) Set {
	return Set{inner: s.inner.Difference(k8scpuset.New(i))}
}

// Test reports whether i is a member of s.
func (s Set) Test(i int) bool {
	return s.inner.Contains(i)
}

// Union returns the union of s and other.
func (s Set) Union(other Set) Set {
	return Set{inner: s.inner.Union(other.inner)}
}

// Intersect returns the intersection of s and other.
func (s Set) Intersect(other Set) Set {
	return Set{inner: s.inner.Intersection(other.inner)}
}

// Difference returns the members of s not in other.
func (s Set) Difference(other Set) Set {
	return Set{inner: s.inner.Difference(other.inner)}
}

// Cardinality returns the number of members in s.
func (s Set) Cardinality() int {
	return s.inner.Size()
}

// IsEmpty reports whether s has no members.
func (s Set) IsEmpty() bool {
	return s.inner.IsEmpty()
}

// List returns the members of s in ascending order.
func (s Set) List() []int {
	return s.inner.List()
}

// First returns the smallest member of s and true, or (0, false) if s is
// empty. Used by the CPU matcher to take "the first pus_per_obj PUs of an
// object's cpuset in set order" (spec.md §4.4 step 5).
func (s Set) First() (int, bool) {
	l := s.List()
	if len(l) == 0 {
		return 0, false
	}
	return l[0], true
}

// Next returns the smallest member of s strictly greater than i, and true,
// or (0, false) if none exists.
func (s Set) Next(i int) (int, bool) {
	l := s.List()
	idx := sort.SearchInts(l, i+1)
	if idx >= len(l) {
		return 0, false
	}
	return l[idx], true
}

// FirstN returns the first n members of s in ascending order. If s has
// fewer than n members, the full (shorter) list is returned.
func (s Set) FirstN(n int) []int {
	l := s.List()
	if n > len(l) {
		n = len(l)
	}
	return append([]int(nil), l[:n]...)
}

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

// Package cpumatch implements the per-NUMA CPU matching algorithm of
// spec.md §4.4: breadth-first resource acquisition that prefers spreading
// tasks across whole cores before widening to more PUs per core. The
// bin-pack-then-widen shape is grounded on the teacher's
// internal/rm/allocate.go alignedAllocationPolicy (go-gpuallocator's
// best-effort policy: acquire whole devices first, split only when the
// requested size demands it), re-targeted here from "bin-pack GPUs" to
// "bin-pack cores then PUs across tasks."
package cpumatch

import (
	"fmt"

	"github.com/hpctools/mpibind-go/internal/cpuset"
	"github.com/hpctools/mpibind-go/internal/distrib"
	"github.com/hpctools/mpibind-go/internal/mpibinderr"
	"github.com/hpctools/mpibind-go/internal/topology"
)

// Result is the output of Match: ntasks cpusets and the thread count
// shared by every task in the call (spec.md §4.4 "Outputs").
type Result struct {
	CPUSets     []cpuset.Set
	NThreadsOut int
}

// Match runs spec.md §4.4's six-step algorithm against root R. It
// returns mpibinderr.ErrDegenerateMapping when ntasks exceeds the
// restricted PUs available under R, the case spec.md §8 flags as
// needing an explicit failure rather than silently handing out
// identical, non-differentiating cpusets to some tasks.
//
//   - ntasks must be >= 1.
//   - nthreadsIn == 0 means "engine chooses"; usrSMT == 0 means likewise.
func Match(p topology.Provider, r topology.Object, ntasks, nthreadsIn, usrSMT int) (Result, error) {
	hwSMT := topology.HardwareSMT(p)
	coreDepth := topology.CanonicalCoreDepth(p)

	// Step 2: determine nthreads.
	nthreads := nthreadsIn
	if nthreads <= 0 {
		count := countAtDepth(p, r, coreDepth)
		if usrSMT >= hwSMT {
			count = r.CPUSet().Cardinality()
		} else if usrSMT > 1 {
			count *= usrSMT
		}
		nthreads = count / ntasks
		if nthreads < 1 {
			nthreads = 1
		}
	}
	workers := nthreads * ntasks

	// Step 3: walk from R's depth down to core_depth, choosing the
	// shallowest depth with enough objects.
	d := chooseDepth(p, r, coreDepth, workers, usrSMT)

	// Step 4: number of objects at d, and PUs per object.
	objs := objectsAtDepthUnder(p, r, d)
	nobjs := len(objs)
	pusPerObj := choosePUsPerObj(usrSMT, d, coreDepth, hwSMT, nobjs, workers)

	// Step 5: restricted PU set per object, first pusPerObj PUs in set order.
	restricted := make([]cpuset.Set, nobjs)
	for i, o := range objs {
		restricted[i] = firstN(o.CPUSet(), pusPerObj)
	}

	// Step 6: assign to tasks via fill-in-buckets.
	sets, err := assignToTasks(restricted, ntasks)
	if err != nil {
		return Result{}, err
	}

	return Result{CPUSets: sets, NThreadsOut: nthreads}, nil
}

func countAtDepth(p topology.Provider, r topology.Object, depth int) int {
	n := 0
	for _, o := range p.ObjectsByDepth(depth) {
		if isUnder(o, r) {
			n++
		}
	}
	return n
}

func isUnder(o, r topology.Object) bool {
	if o.ID() == r.ID() {
		return true
	}
	for cur, ok := o.Parent(); ok; cur, ok = cur.Parent() {
		if cur.ID() == r.ID() {
			return true
		}
	}
	return false
}

func chooseDepth(p topology.Provider, r topology.Object, coreDepth, workers, usrSMT int) int {
	if usrSMT > 0 {
		return coreDepth
	}
	for d := r.Depth(); d <= coreDepth; d++ {
		if countAtDepth(p, r, d) >= workers {
			return d
		}
	}
	return coreDepth
}

func objectsAtDepthUnder(p topology.Provider, r topology.Object, depth int) []topology.Object {
	if depth == r.Depth() {
		return []topology.Object{r}
	}
	var out []topology.Object
	for _, o := range p.ObjectsByDepth(depth) {
		if isUnder(o, r) {
			out = append(out, o)
		}
	}
	return out
}

func choosePUsPerObj(usrSMT, d, coreDepth, hwSMT, nobjs, workers int) int {
	if usrSMT > 0 {
		return usrSMT
	}
	if d == coreDepth {
		for k := 1; k <= hwSMT; k++ {
			if nobjs*k >= workers {
				return k
			}
		}
		return hwSMT
	}
	return 1
}

func firstN(s cpuset.Set, n int) cpuset.Set {
	return cpuset.New(s.FirstN(n)...)
}

// assignToTasks implements step 6: restricted sets are consumed as whole
// "elements" into ntasks buckets when nobjs >= ntasks (fill-in-buckets
// over the restricted sets, unioned per bucket); when nobjs < ntasks, the
// PUs of the object each task lands on are further split via
// fill-in-buckets so that sibling tasks sharing an object never receive
// identical cpusets.
func assignToTasks(restricted []cpuset.Set, ntasks int) ([]cpuset.Set, error) {
	out := make([]cpuset.Set, ntasks)
	nobjs := len(restricted)

	if nobjs == 0 {
		for i := range out {
			out[i] = cpuset.Empty()
		}
		return out, nil
	}

	if nobjs >= ntasks {
		buckets := distrib.FillBuckets(restricted, ntasks)
		for i, b := range buckets {
			u := cpuset.Empty()
			for _, s := range b {
				u = u.Union(s)
			}
			out[i] = u
		}
		return out, nil
	}

	// nobjs < ntasks: distribute ntasks across the nobjs restricted sets in
	// runs, then split each object's PUs across its run of tasks. If a
	// run exceeds the object's available PUs, fill-in-buckets would hand
	// out the same PU to more than one task in the run: that is the
	// degenerate mapping spec.md §8 says to fail on instead.
	runs := distrib.Balanced(ntasks, nobjs)
	task := 0
	for objIdx, run := range runs {
		pus := restricted[objIdx].List()
		if run > len(pus) {
			return nil, fmt.Errorf("%w: %d tasks would share %d PU(s) on one object with no further way to differentiate them",
				mpibinderr.ErrDegenerateMapping, run, len(pus))
		}
		puBuckets := distrib.FillBuckets(pus, run)
		for _, b := range puBuckets {
			out[task] = cpuset.New(b...)
			task++
		}
	}
	return out, nil
}

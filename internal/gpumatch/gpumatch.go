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

// Package gpumatch distributes the GPUs reachable from a NUMA parent
// across that NUMA's task slots (spec.md §4.5). Grounded on the same
// internal/rm/allocate.go packedAllocation sort/slice idiom as
// internal/cpumatch, re-targeted here from sorted UUID strings to dense
// device-table indices.
package gpumatch

import (
	"github.com/hpctools/mpibind-go/internal/distrib"
	"github.com/hpctools/mpibind-go/internal/inventory"
	"github.com/hpctools/mpibind-go/internal/topology"
)

// Match enumerates Device-table entries whose ancestor is anc and whose
// kind is GPU, and distributes them to ntasks task slots via
// fill-in-buckets over their table indices.
func Match(table []inventory.Device, anc topology.ObjectID, ntasks int) [][]int {
	gpus := inventory.ByAncestor(table, anc, inventory.GPU)
	return distrib.FillBuckets(gpus, ntasks)
}

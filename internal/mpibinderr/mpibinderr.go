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

// Package mpibinderr defines the sentinel errors returned from the engine's
// public API. Callers should use errors.Is against these values rather than
// string-matching error text.
package mpibinderr

import "errors"

var (
	// ErrInvalidInput covers ntasks <= 0, nthreads < 0, smt out of range,
	// and unparseable restriction specs.
	ErrInvalidInput = errors.New("mpibind: invalid input")

	// ErrTopologyUnusable covers no NUMA domains, an unsupported topology
	// API version, or a restriction that yields an empty cpuset.
	ErrTopologyUnusable = errors.New("mpibind: topology unusable")

	// ErrDegenerateMapping is returned when the tasks placed under one
	// matcher root outnumber the PUs the CPU matcher selected there (cores
	// times PUs per core), so even fill-in-buckets at PU granularity cannot
	// produce distinguishing cpusets across tasks.
	ErrDegenerateMapping = errors.New("mpibind: degenerate mapping")

	// ErrApplyFailed wraps a failed set-cpu-affinity call from Handle.Apply.
	ErrApplyFailed = errors.New("mpibind: apply failed")

	// ErrAlreadyRun is returned by a second call to Handle.Run.
	ErrAlreadyRun = errors.New("mpibind: handle already run")

	// ErrNotRun is returned by output accessors called before Run.
	ErrNotRun = errors.New("mpibind: handle not yet run")
)

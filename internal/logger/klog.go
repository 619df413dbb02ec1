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

// Package logger centralizes the klog call sites the engine uses for the
// non-fatal warnings spec.md §7 describes (skipped I/O devices, NVML
// enrichment unavailable). Components never call log.Fatal; Run validates
// its inputs and returns an error instead.
package logger

import "k8s.io/klog/v2"

type toKlog struct{}

// ToKlog allows the klog logger to be passed to functions where this is needed.
var ToKlog = &toKlog{}

// Warning forwards the arguments to the klog.Warning function.
func (l toKlog) Warning(args ...interface{}) {
	klog.Warning(args...)
}

// Warningf forwards to klog.Warningf, used when skipping an I/O device
// that has no PCI parent (spec.md §7 item 3) and when NVML enrichment is
// unavailable.
func Warningf(format string, args ...interface{}) {
	klog.Warningf(format, args...)
}

// V returns a verbosity-gated klog.Verbose for debug tracing.
func V(level klog.Level) klog.Verbose {
	return klog.V(level)
}

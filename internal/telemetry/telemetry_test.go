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

package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRunSuccessUpdatesGauges(t *testing.T) {
	before := testutil.ToFloat64(RunErrors)

	ObserveRun(0.5, 3, map[string]int{"CUDA": 2}, nil)

	require.Equal(t, float64(3), testutil.ToFloat64(Tasks))
	require.Equal(t, float64(2), testutil.ToFloat64(VisibleDevices.WithLabelValues("CUDA")))
	require.Equal(t, before, testutil.ToFloat64(RunErrors))
}

func TestObserveRunFailureIncrementsErrorCounter(t *testing.T) {
	before := testutil.ToFloat64(RunErrors)

	ObserveRun(0.1, 0, nil, errors.New("boom"))

	require.Equal(t, before+1, testutil.ToFloat64(RunErrors))
}

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

package k8sreport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestPublishWritesAnnotation(t *testing.T) {
	node := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-a"}}
	client := fake.NewSimpleClientset(node)
	sink := NewSink(client, "node-a")

	summary := Summary{NTasks: 2, CPUSets: []string{"0-3", "4-7"}, GPUCount: []int{1, 1}}
	require.NoError(t, sink.Publish(context.Background(), summary))

	got, err := sink.GetNode(context.Background())
	require.NoError(t, err)

	raw, ok := got.Annotations[AnnotationKey]
	require.True(t, ok)

	var decoded Summary
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	require.Equal(t, summary, decoded)
}

func TestPublishUnknownNodeFails(t *testing.T) {
	client := fake.NewSimpleClientset()
	sink := NewSink(client, "missing-node")

	err := sink.Publish(context.Background(), Summary{NTasks: 1})
	require.Error(t, err)
}

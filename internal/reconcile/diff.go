/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package reconcile

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
)

// =============================================================================
// Semantic diff between desired and observed objects.
//
// Only the fields this tool manages are compared: data payloads, replica
// count, image, env bindings, port mappings, service type and selector.
// Orchestrator-written fields (status, pod IPs, cluster IPs, system
// annotations) never count as drift.
//
// Each diff returns the changed field names, empty meaning no update call
// is needed.
// =============================================================================

func secretDiff(desired, observed *corev1.Secret) []string {
	var changed []string
	if computeChecksum(desired.Data) != computeChecksum(observed.Data) {
		changed = append(changed, "data")
	}
	return changed
}

func configMapDiff(desired, observed *corev1.ConfigMap) []string {
	var changed []string
	if stringChecksum(desired.Data) != stringChecksum(observed.Data) {
		changed = append(changed, "data")
	}
	return changed
}

func deploymentDiff(desired, observed *appsv1.Deployment) []string {
	var changed []string

	if !apiequality.Semantic.DeepEqual(desired.Spec.Replicas, observed.Spec.Replicas) {
		changed = append(changed, "replicas")
	}

	if len(observed.Spec.Template.Spec.Containers) != 1 {
		return append(changed, "containers")
	}
	want := desired.Spec.Template.Spec.Containers[0]
	have := observed.Spec.Template.Spec.Containers[0]

	if want.Image != have.Image {
		changed = append(changed, "image")
	}
	if !apiequality.Semantic.DeepEqual(want.Env, have.Env) {
		changed = append(changed, "env")
	}
	if !apiequality.Semantic.DeepEqual(want.Ports, have.Ports) {
		changed = append(changed, "ports")
	}
	return changed
}

func serviceDiff(desired, observed *corev1.Service) []string {
	var changed []string

	if desired.Spec.Type != observed.Spec.Type {
		changed = append(changed, "type")
	}
	if !apiequality.Semantic.DeepEqual(desired.Spec.Selector, observed.Spec.Selector) {
		changed = append(changed, "selector")
	}
	if !portsEqual(desired.Spec.Ports, observed.Spec.Ports) {
		changed = append(changed, "ports")
	}
	return changed
}

// portsEqual compares the managed port fields only. The API server
// assigns a NodePort to every NodePort service; an assigned value only
// counts as drift when the declaration fixes a different one.
func portsEqual(desired, observed []corev1.ServicePort) bool {
	if len(desired) != len(observed) {
		return false
	}
	for i := range desired {
		d, o := desired[i], observed[i]
		if d.Port != o.Port || d.TargetPort != o.TargetPort || d.Protocol != o.Protocol {
			return false
		}
		if d.NodePort != 0 && d.NodePort != o.NodePort {
			return false
		}
	}
	return true
}

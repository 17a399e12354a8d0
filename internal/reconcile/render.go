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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/vijay-papanaboina/stackset/api/v1alpha1"
)

// =============================================================================
// Rendering of declared resources into cluster objects.
//
// Secret -> corev1.Secret, Config -> corev1.ConfigMap,
// Workload -> appsv1.Deployment, Service -> corev1.Service.
//
// Env bindings with a `from` reference render as key references
// (SecretKeyRef / ConfigMapKeyRef), never as inlined values: rotating a
// secret changes the Secret object only, not the rendered workload.
// =============================================================================

type renderer struct {
	stack     string
	namespace string

	// kindOf resolves a declared name to its kind, needed to pick the
	// right key-reference type for env bindings.
	kindOf func(name string) (v1alpha1.ResourceKind, bool)
}

func newRenderer(stack, namespace string, kindOf func(string) (v1alpha1.ResourceKind, bool)) *renderer {
	return &renderer{stack: stack, namespace: namespace, kindOf: kindOf}
}

// objectMeta builds the metadata every managed object carries: ownership
// and stack annotations, the payload checksum for drift detection, and
// the stack label.
func (r *renderer) objectMeta(name, checksum string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      name,
		Namespace: r.namespace,
		Annotations: map[string]string{
			AnnotationManagedBy:   ManagedByValue,
			AnnotationStack:       r.stack,
			AnnotationChecksum:    checksum,
			AnnotationLastApplied: time.Now().UTC().Format(time.RFC3339),
		},
		Labels: map[string]string{
			LabelStack: r.stack,
		},
	}
}

func (r *renderer) secret(res *v1alpha1.ResourceSpec) *corev1.Secret {
	data := make(map[string][]byte, len(res.Data))
	for k, v := range res.Data {
		data[k] = []byte(v)
	}
	return &corev1.Secret{
		ObjectMeta: r.objectMeta(res.Name, computeChecksum(data)),
		Type:       corev1.SecretTypeOpaque,
		Data:       data,
	}
}

func (r *renderer) configMap(res *v1alpha1.ResourceSpec) *corev1.ConfigMap {
	data := make(map[string]string, len(res.Data))
	for k, v := range res.Data {
		data[k] = v
	}
	return &corev1.ConfigMap{
		ObjectMeta: r.objectMeta(res.Name, stringChecksum(data)),
		Data:       data,
	}
}

func (r *renderer) deployment(res *v1alpha1.ResourceSpec) *appsv1.Deployment {
	w := res.Workload

	// The loader defaults an omitted replica count, but a StackSet built
	// in code may not have passed through it.
	replicas := w.Replicas
	if replicas == nil {
		one := int32(1)
		replicas = &one
	}

	container := corev1.Container{
		Name:  res.Name,
		Image: w.Image,
		Env:   r.renderEnv(w.Env),
	}
	if w.Port > 0 {
		// Protocol is set explicitly so rendered ports compare equal to
		// the server-defaulted observed object.
		container.Ports = []corev1.ContainerPort{{ContainerPort: w.Port, Protocol: corev1.ProtocolTCP}}
	}

	podLabels := map[string]string{
		LabelApp:   res.Name,
		LabelStack: r.stack,
	}

	return &appsv1.Deployment{
		ObjectMeta: r.objectMeta(res.Name, specChecksum(w)),
		Spec: appsv1.DeploymentSpec{
			Replicas: replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{LabelApp: res.Name},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
				},
			},
		},
	}
}

// renderEnv maps declared env bindings to container env vars. Literal
// values are inlined; `from` bindings become key references against the
// target Secret or ConfigMap.
func (r *renderer) renderEnv(entries []v1alpha1.EnvEntry) []corev1.EnvVar {
	if len(entries) == 0 {
		return nil
	}
	env := make([]corev1.EnvVar, 0, len(entries))
	for _, e := range entries {
		if e.From == nil {
			env = append(env, corev1.EnvVar{Name: e.Name, Value: e.Value})
			continue
		}
		kind, _ := r.kindOf(e.From.Target)
		v := corev1.EnvVar{Name: e.Name}
		if kind == v1alpha1.KindSecret {
			v.ValueFrom = &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: e.From.Target},
					Key:                  e.From.Key,
				},
			}
		} else {
			v.ValueFrom = &corev1.EnvVarSource{
				ConfigMapKeyRef: &corev1.ConfigMapKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: e.From.Target},
					Key:                  e.From.Key,
				},
			}
		}
		env = append(env, v)
	}
	return env
}

func (r *renderer) service(res *v1alpha1.ResourceSpec) *corev1.Service {
	s := res.Service

	port := corev1.ServicePort{
		Port:       s.Port,
		TargetPort: intstr.FromInt32(s.Port),
		Protocol:   corev1.ProtocolTCP,
	}
	svcType := corev1.ServiceTypeClusterIP
	if s.Exposure == v1alpha1.ExposureExternal {
		svcType = corev1.ServiceTypeNodePort
		port.NodePort = s.ExternalPort
	}

	return &corev1.Service{
		ObjectMeta: r.objectMeta(res.Name, specChecksum(s)),
		Spec: corev1.ServiceSpec{
			Type:     svcType,
			Selector: map[string]string{LabelApp: s.Workload},
			Ports:    []corev1.ServicePort{port},
		},
	}
}

// specChecksum hashes the JSON encoding of a declared spec section.
// Go's JSON encoding has a fixed field order, so the hash is stable.
func specChecksum(spec any) string {
	raw, err := json.Marshal(spec)
	if err != nil {
		// Spec sections are plain data; marshalling cannot fail.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

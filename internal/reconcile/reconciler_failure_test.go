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
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/vijay-papanaboina/stackset/api/v1alpha1"
	"github.com/vijay-papanaboina/stackset/internal/report"
)

// failingStack declares two branches sharing nothing: the s -> w -> svc
// chain and an independent config.
func failingStack() *v1alpha1.StackSet {
	return testStack(
		v1alpha1.ResourceSpec{
			Kind: v1alpha1.KindSecret,
			Name: "creds",
			Data: map[string]string{"token": "abc"},
		},
		v1alpha1.ResourceSpec{
			Kind: v1alpha1.KindWorkload,
			Name: "api",
			Workload: &v1alpha1.WorkloadSpec{
				Image: "api:1",
				Env: []v1alpha1.EnvEntry{
					{Name: "TOKEN", From: &v1alpha1.Reference{Target: "creds", Key: "token"}},
				},
			},
		},
		v1alpha1.ResourceSpec{
			Kind:    v1alpha1.KindService,
			Name:    "api-svc",
			Service: &v1alpha1.ServiceSpec{Workload: "api", Port: 8080},
		},
		v1alpha1.ResourceSpec{
			Kind: v1alpha1.KindConfig,
			Name: "side-config",
			Data: map[string]string{"k": "v"},
		},
	)
}

var _ = Describe("Apply failure handling", func() {
	ctx := context.Background()

	It("fails the resource and skips its transitive dependents only", func() {
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{
			Create: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.CreateOption) error {
				if _, isDeploy := obj.(*appsv1.Deployment); isDeploy {
					// Non-transient: must not be retried.
					return apierrors.NewBadRequest("image policy rejected")
				}
				return nil
			},
		})
		r := newTestReconciler(cl)

		summary, err := r.Apply(ctx, failingStack())
		Expect(err).NotTo(HaveOccurred(), "per-resource failures surface in the summary, not as a run error")

		byName := resultsByName(summary)
		Expect(byName["creds"].Outcome).To(Equal(report.OutcomeApplied))
		Expect(byName["side-config"].Outcome).To(Equal(report.OutcomeApplied), "independent branch must continue")

		Expect(byName["api"].Outcome).To(Equal(report.OutcomeFailed))
		Expect(byName["api"].Reason).To(ContainSubstring("image policy rejected"))

		Expect(byName["api-svc"].Outcome).To(Equal(report.OutcomeSkipped))
		Expect(byName["api-svc"].Reason).To(ContainSubstring(`"api"`))

		Expect(summary.Clean()).To(BeFalse())
		Expect(rec.createOrder()).NotTo(ContainElement("api-svc"), "a skipped resource gets no API call")
	})

	It("does not retry non-transient errors", func() {
		var attempts int32
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{
			Create: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.CreateOption) error {
				if _, isCM := obj.(*corev1.ConfigMap); isCM {
					atomic.AddInt32(&attempts, 1)
					return apierrors.NewBadRequest("nope")
				}
				return nil
			},
		})
		r := newTestReconciler(cl)

		summary, err := r.Apply(ctx, testStack(v1alpha1.ResourceSpec{
			Kind: v1alpha1.KindConfig,
			Name: "cfg",
			Data: map[string]string{"k": "v"},
		}))
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Failed).To(Equal(1))
		Expect(atomic.LoadInt32(&attempts)).To(Equal(int32(1)))
	})

	It("retries transient errors and succeeds when the API recovers", func() {
		var attempts int32
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{
			Create: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.CreateOption) error {
				if _, isCM := obj.(*corev1.ConfigMap); isCM {
					if atomic.AddInt32(&attempts, 1) < 3 {
						return apierrors.NewServiceUnavailable("try later")
					}
				}
				return nil
			},
		})
		r := newTestReconciler(cl)

		summary, err := r.Apply(ctx, testStack(v1alpha1.ResourceSpec{
			Kind: v1alpha1.KindConfig,
			Name: "cfg",
			Data: map[string]string{"k": "v"},
		}))
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Applied).To(Equal(1))
		Expect(summary.Failed).To(BeZero())
		Expect(atomic.LoadInt32(&attempts)).To(Equal(int32(3)))
	})

	It("gives up after the attempt budget is exhausted", func() {
		var attempts int32
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{
			Create: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.CreateOption) error {
				if _, isCM := obj.(*corev1.ConfigMap); isCM {
					atomic.AddInt32(&attempts, 1)
					return apierrors.NewServiceUnavailable("still down")
				}
				return nil
			},
		})
		r := newTestReconciler(cl)

		summary, err := r.Apply(ctx, testStack(v1alpha1.ResourceSpec{
			Kind: v1alpha1.KindConfig,
			Name: "cfg",
			Data: map[string]string{"k": "v"},
		}))
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Failed).To(Equal(1))
		Expect(summary.Results[0].Reason).To(ContainSubstring("still down"))
		Expect(atomic.LoadInt32(&attempts)).To(Equal(int32(3)))
	})

	It("propagates the root failure name through skip chains", func() {
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{
			Create: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.CreateOption) error {
				if _, isSecret := obj.(*corev1.Secret); isSecret {
					return apierrors.NewBadRequest("secrets quota exceeded")
				}
				return nil
			},
		})
		r := newTestReconciler(cl)

		summary, err := r.Apply(ctx, failingStack())
		Expect(err).NotTo(HaveOccurred())

		byName := resultsByName(summary)
		Expect(byName["creds"].Outcome).To(Equal(report.OutcomeFailed))
		Expect(byName["api"].Outcome).To(Equal(report.OutcomeSkipped))
		Expect(byName["api"].Reason).To(ContainSubstring(`"creds"`))
		Expect(byName["api-svc"].Outcome).To(Equal(report.OutcomeSkipped))
		Expect(byName["api-svc"].Reason).To(ContainSubstring(`"creds"`), "skip reason names the root failure, not the intermediate")
	})

	It("behaves the same under parallel execution", func() {
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{
			Create: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.CreateOption) error {
				if _, isDeploy := obj.(*appsv1.Deployment); isDeploy {
					return apierrors.NewBadRequest("image policy rejected")
				}
				return nil
			},
		})
		opts := fastOptions()
		opts.Parallelism = 4
		r := New(cl, logr.Discard(), opts)

		summary, err := r.Apply(ctx, failingStack())
		Expect(err).NotTo(HaveOccurred())

		byName := resultsByName(summary)
		Expect(byName["creds"].Outcome).To(Equal(report.OutcomeApplied))
		Expect(byName["side-config"].Outcome).To(Equal(report.OutcomeApplied))
		Expect(byName["api"].Outcome).To(Equal(report.OutcomeFailed))
		Expect(byName["api-svc"].Outcome).To(Equal(report.OutcomeSkipped))
		Expect(byName["api-svc"].Reason).To(ContainSubstring(`"api"`))
	})
})

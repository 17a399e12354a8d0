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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/vijay-papanaboina/stackset/internal/report"
)

var _ = Describe("Destroy", func() {
	ctx := context.Background()

	It("deletes in exact reverse apply order", func() {
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{})
		r := newTestReconciler(cl)

		_, err := r.Apply(ctx, dbStack())
		Expect(err).NotTo(HaveOccurred())

		summary, err := r.Destroy(ctx, dbStack())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Applied).To(Equal(4))
		Expect(summary.Clean()).To(BeTrue())
		Expect(rec.deleteOrder()).To(Equal([]string{"db-svc", "db", "db-config", "db-credentials"}))

		var secret corev1.Secret
		err = cl.Get(ctx, types.NamespacedName{Name: "db-credentials", Namespace: "default"}, &secret)
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})

	It("reports absent objects as unchanged", func() {
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{})
		r := newTestReconciler(cl)

		summary, err := r.Destroy(ctx, dbStack())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Unchanged).To(Equal(4))
		Expect(rec.deleteOrder()).To(BeEmpty())
	})

	It("leaves unmanaged objects in place", func() {
		// Same name as a declared resource, but created by someone else:
		// no managed-by annotation.
		foreign := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: "db-config", Namespace: "default"},
			Data:       map[string]string{"owned": "elsewhere"},
		}

		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{}, foreign)
		r := newTestReconciler(cl)

		summary, err := r.Destroy(ctx, dbStack())
		Expect(err).NotTo(HaveOccurred())

		byName := resultsByName(summary)
		Expect(byName["db-config"].Outcome).To(Equal(report.OutcomeUnchanged))
		Expect(rec.deleteOrder()).NotTo(ContainElement("db-config"))

		var cm corev1.ConfigMap
		Expect(cl.Get(ctx, types.NamespacedName{Name: "db-config", Namespace: "default"}, &cm)).To(Succeed())
		Expect(cm.Data["owned"]).To(Equal("elsewhere"))
	})

	It("skips the dependencies of a failed delete", func() {
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{
			Delete: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.DeleteOption) error {
				if obj.GetName() == "db" {
					return apierrors.NewBadRequest("blocked by finalizer policy")
				}
				return nil
			},
		})
		r := newTestReconciler(cl)

		_, err := r.Apply(ctx, dbStack())
		Expect(err).NotTo(HaveOccurred())

		summary, err := r.Destroy(ctx, dbStack())
		Expect(err).NotTo(HaveOccurred())

		byName := resultsByName(summary)
		Expect(byName["db-svc"].Outcome).To(Equal(report.OutcomeApplied))
		Expect(byName["db"].Outcome).To(Equal(report.OutcomeFailed))

		// Its dependencies still exist in the cluster and must not be
		// deleted while the workload remains.
		Expect(byName["db-config"].Outcome).To(Equal(report.OutcomeSkipped))
		Expect(byName["db-credentials"].Outcome).To(Equal(report.OutcomeSkipped))
		Expect(rec.deleteOrder()).To(Equal([]string{"db-svc"}))

		var secret corev1.Secret
		Expect(cl.Get(ctx, types.NamespacedName{Name: "db-credentials", Namespace: "default"}, &secret)).To(Succeed())
	})
})

var _ = Describe("Cancellation", func() {
	It("marks every resource skipped when cancelled before the run", func() {
		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{})
		r := newTestReconciler(cl)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		summary, err := r.Apply(ctx, dbStack())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Skipped).To(Equal(4))
		for _, res := range summary.Results {
			Expect(res.Outcome).To(Equal(report.OutcomeSkipped))
			Expect(res.Reason).To(Equal("cancelled"))
		}
		Expect(rec.writes()).To(BeZero())
	})

	It("marks not-yet-started resources skipped when cancelled mid-run", func() {
		ctx, cancel := context.WithCancel(context.Background())

		rec := &callRecorder{}
		cl := newTestClient(rec, interceptor.Funcs{
			Create: func(_ context.Context, _ client.WithWatch, obj client.Object, _ ...client.CreateOption) error {
				if _, isSecret := obj.(*corev1.Secret); isSecret {
					// Cancel after the first resource has been written.
					cancel()
				}
				return nil
			},
		})
		r := newTestReconciler(cl)

		summary, err := r.Apply(ctx, dbStack())
		Expect(err).NotTo(HaveOccurred())

		byName := resultsByName(summary)
		Expect(byName["db-credentials"].Outcome).To(Equal(report.OutcomeApplied))
		for _, name := range []string{"db-config", "db", "db-svc"} {
			Expect(byName[name].Outcome).To(Equal(report.OutcomeSkipped), name)
			Expect(byName[name].Reason).To(Equal("cancelled"))
		}
		Expect(rec.createOrder()).To(Equal([]string{"db-credentials"}))
	})
})

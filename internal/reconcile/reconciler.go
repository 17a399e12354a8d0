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
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/vijay-papanaboina/stackset/api/v1alpha1"
	"github.com/vijay-papanaboina/stackset/internal/graph"
	"github.com/vijay-papanaboina/stackset/internal/report"
)

// =============================================================================
// Reconciler applies a StackSet against the cluster.
//
// It is the sole writer: every cluster mutation in this module goes
// through it. For each resource in plan order it fetches the observed
// state, creates the object when absent, updates it when the managed
// fields drifted, and leaves it alone otherwise. Transient API failures
// are retried with bounded exponential backoff; a resource that still
// fails blocks its transitive dependents, but never independent branches.
//
// Related files:
// - constants.go: annotation and label keys on managed objects
// - render.go: declared resource -> cluster object
// - diff.go: semantic drift detection on managed fields
// - helpers.go: checksums, transient error classification
// =============================================================================

const reasonCancelled = "cancelled"

// Options configures a run.
type Options struct {
	// Parallelism bounds concurrent applies. Values <= 1 run the plan
	// strictly sequentially, which is the default.
	Parallelism int

	// CallTimeout is the deadline for each individual API call, so no
	// operation blocks indefinitely. A timed-out call counts as a
	// transient failure subject to the retry policy.
	CallTimeout time.Duration

	// Backoff is the retry policy for transient API failures.
	Backoff wait.Backoff
}

// DefaultOptions returns the standard run configuration: sequential
// apply, 30s per call, 3 attempts with 500ms base doubling up to 2s.
func DefaultOptions() Options {
	return Options{
		Parallelism: 1,
		CallTimeout: 30 * time.Second,
		Backoff: wait.Backoff{
			Steps:    3,
			Duration: 500 * time.Millisecond,
			Factor:   2.0,
			Cap:      2 * time.Second,
		},
	}
}

// Reconciler drives declared state into the cluster.
type Reconciler struct {
	client client.Client
	log    logr.Logger
	opts   Options
}

// New builds a Reconciler. Zero-valued options fall back to defaults.
func New(c client.Client, log logr.Logger, opts Options) *Reconciler {
	def := DefaultOptions()
	if opts.Parallelism <= 0 {
		opts.Parallelism = def.Parallelism
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.Backoff.Steps == 0 {
		opts.Backoff = def.Backoff
	}
	return &Reconciler{client: c, log: log, opts: opts}
}

// stepFunc settles one resource. A non-nil error means Failed and blocks
// dependents.
type stepFunc func(ctx context.Context, res *v1alpha1.ResourceSpec) (report.Outcome, error)

// Apply reconciles the declared set. Graph errors (unresolved reference,
// cycle) abort before any API call. A per-resource failure does not: the
// run continues on independent branches and the summary reports it.
func (r *Reconciler) Apply(ctx context.Context, set *v1alpha1.StackSet) (*report.Summary, error) {
	g, err := graph.Build(set.Resources)
	if err != nil {
		return nil, err
	}
	plan := g.Plan()
	ren := newRenderer(set.Metadata.Name, set.Metadata.Namespace, g.KindOf)
	r.log.Info("computed apply plan", "stack", set.Metadata.Name, "namespace", set.Metadata.Namespace, "resources", len(plan))

	step := func(ctx context.Context, res *v1alpha1.ResourceSpec) (report.Outcome, error) {
		return r.applyResource(ctx, ren, res)
	}
	results := r.run(ctx, g, plan, false, step)

	s := report.Summarize(results)
	r.log.Info("apply complete", "applied", s.Applied, "unchanged", s.Unchanged, "failed", s.Failed, "skipped", s.Skipped)
	return s, nil
}

// Destroy tears the declared set down in the exact reverse of the apply
// order, so a resource is never deleted while a dependent still exists.
// Only objects carrying the managed-by annotation are deleted.
func (r *Reconciler) Destroy(ctx context.Context, set *v1alpha1.StackSet) (*report.Summary, error) {
	g, err := graph.Build(set.Resources)
	if err != nil {
		return nil, err
	}
	plan := g.Plan()
	r.log.Info("computed teardown plan", "stack", set.Metadata.Name, "namespace", set.Metadata.Namespace, "resources", len(plan))

	step := func(ctx context.Context, res *v1alpha1.ResourceSpec) (report.Outcome, error) {
		return r.deleteResource(ctx, set.Metadata.Namespace, res)
	}
	results := r.run(ctx, g, plan, true, step)

	s := report.Summarize(results)
	r.log.Info("teardown complete", "deleted", s.Applied, "unchanged", s.Unchanged, "failed", s.Failed, "skipped", s.Skipped)
	return s, nil
}

// run executes the plan with the configured parallelism. reverse flips
// both the order and the blocking direction (teardown: a dependent that
// fails to delete blocks its dependencies).
func (r *Reconciler) run(ctx context.Context, g *graph.Graph, plan []v1alpha1.ResourceSpec, reverse bool, step stepFunc) []report.Result {
	if r.opts.Parallelism > 1 {
		return r.runParallel(ctx, g, plan, reverse, step)
	}
	return r.runSequential(ctx, g, plan, reverse, step)
}

func (r *Reconciler) runSequential(ctx context.Context, g *graph.Graph, plan []v1alpha1.ResourceSpec, reverse bool, step stepFunc) []report.Result {
	order := plan
	blockers := g.DirectDependencies
	if reverse {
		order = graph.Reverse(plan)
		blockers = g.Dependents
	}

	settled := make(map[string]report.Result, len(order))
	out := make([]report.Result, 0, len(order))

	for i := range order {
		res := &order[i]
		result := report.Result{Kind: res.Kind, Name: res.Name}

		switch {
		case ctx.Err() != nil:
			result.Outcome = report.OutcomeSkipped
			result.Reason = reasonCancelled

		case blockedReason(settled, blockers(res.Name)) != "":
			result.Outcome = report.OutcomeSkipped
			result.Reason = blockedReason(settled, blockers(res.Name))

		default:
			outcome, err := step(ctx, res)
			if err != nil && ctx.Err() != nil {
				// The call was torn down by cancellation, not by the
				// cluster; report the resource as not attempted.
				result.Outcome = report.OutcomeSkipped
				result.Reason = reasonCancelled
			} else if err != nil {
				result.Outcome = report.OutcomeFailed
				result.Reason = err.Error()
			} else {
				result.Outcome = outcome
			}
		}

		settled[res.Name] = result
		out = append(out, result)
	}
	return out
}

// blockedReason returns the skip reason when any blocker failed or was
// itself skipped, empty otherwise. The reason carries the name of the
// failed resource at the root of the chain; cancellation propagates
// as-is.
func blockedReason(settled map[string]report.Result, blockers []string) string {
	for _, dep := range blockers {
		prev, ok := settled[dep]
		if !ok {
			continue
		}
		switch prev.Outcome {
		case report.OutcomeFailed:
			return fmt.Sprintf("blocked by failed dependency %q", dep)
		case report.OutcomeSkipped:
			return prev.Reason
		}
	}
	return ""
}

// runParallel executes independent resources concurrently, bounded by
// Parallelism. Outcomes land in per-resource slots that are written
// exactly once, so workers never race on shared state.
func (r *Reconciler) runParallel(ctx context.Context, g *graph.Graph, plan []v1alpha1.ResourceSpec, reverse bool, step stepFunc) []report.Result {
	specs := make(map[string]*v1alpha1.ResourceSpec, len(plan))
	slots := make(map[string]*report.Result, len(plan))
	for i := range plan {
		res := &plan[i]
		specs[res.Name] = res
		slots[res.Name] = &report.Result{Kind: res.Kind, Name: res.Name}
	}

	walkErrs := g.Walk(ctx, graph.WalkOptions{Parallelism: r.opts.Parallelism, Reverse: reverse}, func(ctx context.Context, name string) error {
		slot := slots[name]
		outcome, err := step(ctx, specs[name])
		if err != nil && ctx.Err() != nil {
			slot.Outcome = report.OutcomeSkipped
			slot.Reason = reasonCancelled
			return err
		}
		if err != nil {
			slot.Outcome = report.OutcomeFailed
			slot.Reason = err.Error()
			return err
		}
		slot.Outcome = outcome
		return nil
	})

	order := plan
	if reverse {
		order = graph.Reverse(plan)
	}
	out := make([]report.Result, 0, len(order))
	for i := range order {
		slot := slots[order[i].Name]
		if slot.Outcome == "" {
			slot.Outcome = report.OutcomeSkipped
			slot.Reason = reasonCancelled
			var se *graph.SkippedError
			if errors.As(walkErrs[order[i].Name], &se) {
				if root := slots[se.Blocking]; root != nil && root.Reason == reasonCancelled {
					slot.Reason = reasonCancelled
				} else {
					slot.Reason = fmt.Sprintf("blocked by failed dependency %q", se.Blocking)
				}
			}
		}
		out = append(out, *slot)
	}
	return out
}

// applyResource renders and applies one declared resource.
func (r *Reconciler) applyResource(ctx context.Context, ren *renderer, res *v1alpha1.ResourceSpec) (report.Outcome, error) {
	log := r.log.WithValues("kind", res.Kind, "name", res.Name)
	switch res.Kind {
	case v1alpha1.KindSecret:
		return r.applySecret(ctx, log, ren.secret(res))
	case v1alpha1.KindConfig:
		return r.applyConfigMap(ctx, log, ren.configMap(res))
	case v1alpha1.KindWorkload:
		return r.applyDeployment(ctx, log, ren.deployment(res))
	case v1alpha1.KindService:
		return r.applyService(ctx, log, ren.service(res))
	}
	// The loader rejects unknown kinds before a plan exists.
	return report.OutcomeFailed, fmt.Errorf("unsupported kind %q", res.Kind)
}

func (r *Reconciler) applySecret(ctx context.Context, log logr.Logger, desired *corev1.Secret) (report.Outcome, error) {
	var existing corev1.Secret
	err := r.get(ctx, desired, &existing)
	if apierrors.IsNotFound(err) {
		// Secret values are never logged, only key count and checksum.
		log.Info("creating secret", "keys", len(desired.Data), "checksum", desired.Annotations[AnnotationChecksum])
		if err := r.mutate(ctx, func(c context.Context) error { return r.client.Create(c, desired) }); err != nil {
			return report.OutcomeFailed, err
		}
		return report.OutcomeApplied, nil
	} else if err != nil {
		return report.OutcomeFailed, err
	}

	if len(secretDiff(desired, &existing)) == 0 {
		log.V(1).Info("secret up to date")
		return report.OutcomeUnchanged, nil
	}

	existing.Data = desired.Data
	existing.Type = desired.Type
	mergeManagedMeta(&existing.ObjectMeta, &desired.ObjectMeta)
	log.Info("updating secret", "keys", len(desired.Data), "checksum", desired.Annotations[AnnotationChecksum])
	if err := r.mutate(ctx, func(c context.Context) error { return r.client.Update(c, &existing) }); err != nil {
		return report.OutcomeFailed, err
	}
	return report.OutcomeApplied, nil
}

func (r *Reconciler) applyConfigMap(ctx context.Context, log logr.Logger, desired *corev1.ConfigMap) (report.Outcome, error) {
	var existing corev1.ConfigMap
	err := r.get(ctx, desired, &existing)
	if apierrors.IsNotFound(err) {
		log.Info("creating config", "keys", len(desired.Data))
		if err := r.mutate(ctx, func(c context.Context) error { return r.client.Create(c, desired) }); err != nil {
			return report.OutcomeFailed, err
		}
		return report.OutcomeApplied, nil
	} else if err != nil {
		return report.OutcomeFailed, err
	}

	if len(configMapDiff(desired, &existing)) == 0 {
		log.V(1).Info("config up to date")
		return report.OutcomeUnchanged, nil
	}

	existing.Data = desired.Data
	mergeManagedMeta(&existing.ObjectMeta, &desired.ObjectMeta)
	log.Info("updating config", "keys", len(desired.Data))
	if err := r.mutate(ctx, func(c context.Context) error { return r.client.Update(c, &existing) }); err != nil {
		return report.OutcomeFailed, err
	}
	return report.OutcomeApplied, nil
}

func (r *Reconciler) applyDeployment(ctx context.Context, log logr.Logger, desired *appsv1.Deployment) (report.Outcome, error) {
	var existing appsv1.Deployment
	err := r.get(ctx, desired, &existing)
	if apierrors.IsNotFound(err) {
		log.Info("creating workload", "image", desired.Spec.Template.Spec.Containers[0].Image, "replicas", *desired.Spec.Replicas)
		if err := r.mutate(ctx, func(c context.Context) error { return r.client.Create(c, desired) }); err != nil {
			return report.OutcomeFailed, err
		}
		return report.OutcomeApplied, nil
	} else if err != nil {
		return report.OutcomeFailed, err
	}

	changed := deploymentDiff(desired, &existing)
	if len(changed) == 0 {
		log.V(1).Info("workload up to date")
		return report.OutcomeUnchanged, nil
	}

	existing.Spec.Replicas = desired.Spec.Replicas
	existing.Spec.Template = desired.Spec.Template
	mergeManagedMeta(&existing.ObjectMeta, &desired.ObjectMeta)
	log.Info("updating workload", "fields", changed)
	if err := r.mutate(ctx, func(c context.Context) error { return r.client.Update(c, &existing) }); err != nil {
		return report.OutcomeFailed, err
	}
	return report.OutcomeApplied, nil
}

func (r *Reconciler) applyService(ctx context.Context, log logr.Logger, desired *corev1.Service) (report.Outcome, error) {
	var existing corev1.Service
	err := r.get(ctx, desired, &existing)
	if apierrors.IsNotFound(err) {
		log.Info("creating service", "type", desired.Spec.Type)
		if err := r.mutate(ctx, func(c context.Context) error { return r.client.Create(c, desired) }); err != nil {
			return report.OutcomeFailed, err
		}
		return report.OutcomeApplied, nil
	} else if err != nil {
		return report.OutcomeFailed, err
	}

	changed := serviceDiff(desired, &existing)
	if len(changed) == 0 {
		log.V(1).Info("service up to date")
		return report.OutcomeUnchanged, nil
	}

	existing.Spec.Type = desired.Spec.Type
	existing.Spec.Selector = desired.Spec.Selector
	existing.Spec.Ports = desired.Spec.Ports
	mergeManagedMeta(&existing.ObjectMeta, &desired.ObjectMeta)
	log.Info("updating service", "fields", changed)
	if err := r.mutate(ctx, func(c context.Context) error { return r.client.Update(c, &existing) }); err != nil {
		return report.OutcomeFailed, err
	}
	return report.OutcomeApplied, nil
}

// deleteResource removes one declared resource from the cluster. Objects
// that are absent, or that exist but are not managed by this tool, are
// left alone and reported Unchanged.
func (r *Reconciler) deleteResource(ctx context.Context, namespace string, res *v1alpha1.ResourceSpec) (report.Outcome, error) {
	log := r.log.WithValues("kind", res.Kind, "name", res.Name)

	obj := emptyObject(res.Kind)
	obj.SetName(res.Name)
	obj.SetNamespace(namespace)

	err := r.get(ctx, obj, obj)
	if apierrors.IsNotFound(err) {
		log.V(1).Info("already absent")
		return report.OutcomeUnchanged, nil
	} else if err != nil {
		return report.OutcomeFailed, err
	}

	if obj.GetAnnotations()[AnnotationManagedBy] != ManagedByValue {
		log.Info("object exists but is not managed by stackset, leaving in place")
		return report.OutcomeUnchanged, nil
	}

	log.Info("deleting")
	err = r.mutate(ctx, func(c context.Context) error { return r.client.Delete(c, obj) })
	if err != nil && !apierrors.IsNotFound(err) {
		return report.OutcomeFailed, err
	}
	return report.OutcomeApplied, nil
}

// emptyObject returns a zero cluster object of the type a kind renders to.
func emptyObject(kind v1alpha1.ResourceKind) client.Object {
	switch kind {
	case v1alpha1.KindSecret:
		return &corev1.Secret{}
	case v1alpha1.KindConfig:
		return &corev1.ConfigMap{}
	case v1alpha1.KindWorkload:
		return &appsv1.Deployment{}
	default:
		return &corev1.Service{}
	}
}

// get fetches observed state with the retry policy. NotFound is returned
// to the caller immediately, it is an answer rather than a failure.
func (r *Reconciler) get(ctx context.Context, ref client.Object, into client.Object) error {
	key := client.ObjectKeyFromObject(ref)
	return retry.OnError(r.opts.Backoff, r.retriable(ctx), func() error {
		cctx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
		return r.client.Get(cctx, key, into)
	})
}

// mutate issues a single create/update/delete with the retry policy.
func (r *Reconciler) mutate(ctx context.Context, fn func(context.Context) error) error {
	return retry.OnError(r.opts.Backoff, r.retriable(ctx), func() error {
		cctx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
		return fn(cctx)
	})
}

// retriable wraps the transient classifier with a cancellation check so
// retries stop as soon as the run is cancelled.
func (r *Reconciler) retriable(ctx context.Context) func(error) bool {
	return func(err error) bool {
		return ctx.Err() == nil && isTransient(err)
	}
}

// mergeManagedMeta copies the managed annotations and labels onto an
// existing object without touching anything else on it.
func mergeManagedMeta(existing, desired *metav1.ObjectMeta) {
	if existing.Annotations == nil {
		existing.Annotations = make(map[string]string, len(desired.Annotations))
	}
	for k, v := range desired.Annotations {
		existing.Annotations[k] = v
	}
	if existing.Labels == nil {
		existing.Labels = make(map[string]string, len(desired.Labels))
	}
	for k, v := range desired.Labels {
		existing.Labels[k] = v
	}
}

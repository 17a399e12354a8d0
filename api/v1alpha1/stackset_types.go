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

package v1alpha1

// =============================================================================
// StackSet is the declaration document consumed by the stackset CLI.
//
// A StackSet declares a set of interdependent resources (secrets, configs,
// workloads, services) that are applied to a cluster in dependency order:
// a resource is never applied before the resources it references.
//
// The document is plain YAML read from disk - it is NOT a custom resource
// and is never stored in the cluster. Only the rendered Secrets, ConfigMaps,
// Deployments and Services are.
// =============================================================================

const (
	// APIVersion is the expected apiVersion of a StackSet document.
	APIVersion = "stackset.platform.dev/v1alpha1"

	// DocumentKind is the expected kind of a StackSet document.
	DocumentKind = "StackSet"
)

// StackSet is the root of a declaration file.
//
// Example:
//
//	apiVersion: stackset.platform.dev/v1alpha1
//	kind: StackSet
//	metadata:
//	  name: db-stack
//	  namespace: databases
//	resources:
//	  - kind: Secret
//	    name: db-credentials
//	    data:
//	      username: admin
//	      password: changeme
type StackSet struct {
	APIVersion string `json:"apiVersion"`

	Kind string `json:"kind"`

	Metadata StackSetMeta `json:"metadata"`

	// Resources lists the declared resources. Declaration order is
	// significant: it is the tie-breaker between independent resources
	// when the apply plan is computed, so plans are deterministic.
	Resources []ResourceSpec `json:"resources"`
}

// StackSetMeta names the stack and selects the cluster namespace all
// rendered objects are created in.
type StackSetMeta struct {
	// Name identifies the stack. Rendered objects are labelled with it so
	// the resources belonging to one stack can be listed together.
	Name string `json:"name"`

	// Namespace is the cluster namespace for every rendered object.
	// Defaults to "default" when empty. Can be overridden with -n on the
	// command line.
	Namespace string `json:"namespace,omitempty"`
}

// ResourceKind is the type of a declared resource.
type ResourceKind string

const (
	// KindSecret declares opaque key-value data. Values are never logged
	// in plaintext, only their checksums.
	KindSecret ResourceKind = "Secret"

	// KindConfig declares plain key-value configuration data.
	KindConfig ResourceKind = "Config"

	// KindWorkload declares a deployable workload: image, replica count
	// and environment bindings.
	KindWorkload ResourceKind = "Workload"

	// KindService declares how a workload is exposed: internal-only, or
	// external on a fixed port.
	KindService ResourceKind = "Service"
)

// Valid reports whether k is one of the four declared kinds.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindSecret, KindConfig, KindWorkload, KindService:
		return true
	}
	return false
}

// =============================================================================
// ResourceSpec declares one resource.
//
// Names are unique across the whole stack regardless of kind, because
// references resolve by bare name.
// =============================================================================
type ResourceSpec struct {
	// Kind is one of Secret, Config, Workload, Service.
	Kind ResourceKind `json:"kind"`

	// Name uniquely identifies this resource within the stack.
	Name string `json:"name"`

	// Data holds the key-value payload for Secret and Config resources.
	Data map[string]string `json:"data,omitempty"`

	// References lists additional resources this one depends on beyond
	// what its env bindings and service target already imply. Useful to
	// declare pure ordering, e.g. a workload that reads a config at
	// startup through a mounted file rather than an env binding.
	References []Reference `json:"references,omitempty"`

	// Workload carries the workload-specific fields. Required when Kind
	// is Workload, forbidden otherwise.
	Workload *WorkloadSpec `json:"workload,omitempty"`

	// Service carries the service-specific fields. Required when Kind is
	// Service, forbidden otherwise.
	Service *ServiceSpec `json:"service,omitempty"`
}

// Reference points at another declared resource, optionally at a single
// key of its data.
type Reference struct {
	// Target is the name of the referenced resource.
	Target string `json:"target"`

	// Key optionally names a data key of the target. When set, the
	// target must be a Secret or Config declaring that key.
	Key string `json:"key,omitempty"`
}

// =============================================================================
// WorkloadSpec declares the desired shape of a deployable workload.
// =============================================================================
type WorkloadSpec struct {
	// Replicas is the desired replica count. Defaults to 1 when omitted;
	// an explicit 0 scales the workload down.
	Replicas *int32 `json:"replicas,omitempty"`

	// Image is the container image to run.
	Image string `json:"image"`

	// Port optionally declares the container port the workload listens on.
	Port int32 `json:"port,omitempty"`

	// Env lists environment bindings. Each entry is either a literal
	// value or a reference to a key of a declared Secret or Config.
	//
	// Example:
	//
	//	env:
	//	  - name: POSTGRES_PASSWORD
	//	    from:
	//	      target: db-credentials
	//	      key: password
	//	  - name: TZ
	//	    value: UTC
	Env []EnvEntry `json:"env,omitempty"`
}

// EnvEntry is a single environment binding: a literal Value or a From
// reference, never both.
type EnvEntry struct {
	Name string `json:"name"`

	// Value is a literal environment value.
	Value string `json:"value,omitempty"`

	// From sources the value from a key of a declared Secret or Config.
	// The binding is rendered as a key reference, so rotating the secret
	// does not change the rendered workload.
	From *Reference `json:"from,omitempty"`
}

// ExposureMode selects how a service is exposed.
type ExposureMode string

const (
	// ExposureInternal exposes the workload inside the cluster only.
	ExposureInternal ExposureMode = "internal"

	// ExposureExternal additionally exposes the workload on a fixed
	// external port.
	ExposureExternal ExposureMode = "external"
)

// =============================================================================
// ServiceSpec declares how a workload is exposed.
// =============================================================================
type ServiceSpec struct {
	// Workload names the declared Workload this service exposes. The
	// service implicitly depends on it.
	Workload string `json:"workload"`

	// Port is the service port.
	Port int32 `json:"port"`

	// Exposure is "internal" (default) or "external".
	Exposure ExposureMode `json:"exposure,omitempty"`

	// ExternalPort is the fixed externally reachable port. Required when
	// Exposure is "external", forbidden otherwise.
	ExternalPort int32 `json:"externalPort,omitempty"`
}

// EffectiveReferences returns every resource this spec depends on: the
// explicit References plus the references implied by env bindings and the
// service's workload. Duplicates are collapsed, keeping the first
// occurrence.
func (r *ResourceSpec) EffectiveReferences() []Reference {
	var refs []Reference
	seen := make(map[Reference]struct{})

	add := func(ref Reference) {
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	for _, ref := range r.References {
		add(ref)
	}
	if r.Workload != nil {
		for _, env := range r.Workload.Env {
			if env.From != nil {
				add(*env.From)
			}
		}
	}
	if r.Service != nil && r.Service.Workload != "" {
		add(Reference{Target: r.Service.Workload})
	}
	return refs
}

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

package manifest

import (
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/yaml"

	"github.com/vijay-papanaboina/stackset/api/v1alpha1"
)

// =============================================================================
// Loader for StackSet declaration files.
//
// Load/Parse turn raw YAML into a validated StackSet. Everything that can
// be rejected without talking to the cluster is rejected here:
// - undecodable or unknown-field documents (MalformedSpecError)
// - missing/invalid kind, name, or kind-specific sections (MalformedSpecError)
// - two resources sharing a name (DuplicateNameError)
//
// Reference resolution (does the target exist, does the key exist) is NOT
// done here - that belongs to the dependency graph builder, which sees the
// whole set at once.
// =============================================================================

// Load reads and validates the StackSet declaration at path.
func Load(path string) (*v1alpha1.StackSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading declaration file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a StackSet declaration.
func Parse(raw []byte) (*v1alpha1.StackSet, error) {
	var set v1alpha1.StackSet
	if err := yaml.UnmarshalStrict(raw, &set); err != nil {
		return nil, &MalformedSpecError{Reason: err.Error()}
	}
	if err := validate(&set); err != nil {
		return nil, err
	}
	applyDefaults(&set)
	return &set, nil
}

func validate(set *v1alpha1.StackSet) error {
	if set.APIVersion != v1alpha1.APIVersion {
		return malformed("apiVersion", "expected %q, got %q", v1alpha1.APIVersion, set.APIVersion)
	}
	if set.Kind != v1alpha1.DocumentKind {
		return malformed("kind", "expected %q, got %q", v1alpha1.DocumentKind, set.Kind)
	}
	if set.Metadata.Name == "" {
		return malformed("metadata.name", "missing stack name")
	}

	seen := make(map[string]struct{}, len(set.Resources))
	for i := range set.Resources {
		res := &set.Resources[i]
		path := fmt.Sprintf("resources[%d]", i)

		if res.Kind == "" {
			return malformed(path, "missing kind")
		}
		if !res.Kind.Valid() {
			return malformed(path, "unknown kind %q", res.Kind)
		}
		if res.Name == "" {
			return malformed(path, "missing name")
		}
		if errs := validation.IsDNS1123Subdomain(res.Name); len(errs) > 0 {
			return malformed(path, "invalid name %q: %s", res.Name, errs[0])
		}
		if _, dup := seen[res.Name]; dup {
			return &DuplicateNameError{Name: res.Name}
		}
		seen[res.Name] = struct{}{}

		if err := validateKindFields(res, path); err != nil {
			return err
		}
		for j, ref := range res.EffectiveReferences() {
			if ref.Target == "" {
				return malformed(fmt.Sprintf("%s.references[%d]", path, j), "missing target")
			}
			if ref.Target == res.Name {
				return malformed(path, "resource references itself")
			}
		}
	}
	return nil
}

// validateKindFields checks the kind-specific sections: exactly the section
// matching the kind must be present, and its required fields set.
func validateKindFields(res *v1alpha1.ResourceSpec, path string) error {
	if res.Workload != nil && res.Kind != v1alpha1.KindWorkload {
		return malformed(path, "workload section not allowed on kind %s", res.Kind)
	}
	if res.Service != nil && res.Kind != v1alpha1.KindService {
		return malformed(path, "service section not allowed on kind %s", res.Kind)
	}

	switch res.Kind {
	case v1alpha1.KindSecret, v1alpha1.KindConfig:
		// Data may be empty; an empty Secret or Config is unusual but legal.

	case v1alpha1.KindWorkload:
		if res.Workload == nil {
			return malformed(path, "missing workload section")
		}
		if res.Workload.Image == "" {
			return malformed(path+".workload", "missing image")
		}
		if res.Workload.Replicas != nil && *res.Workload.Replicas < 0 {
			return malformed(path+".workload", "negative replicas")
		}
		for j, env := range res.Workload.Env {
			envPath := fmt.Sprintf("%s.workload.env[%d]", path, j)
			if env.Name == "" {
				return malformed(envPath, "missing name")
			}
			if env.From != nil && env.Value != "" {
				return malformed(envPath, "value and from are mutually exclusive")
			}
			if env.From != nil && env.From.Key == "" {
				return malformed(envPath, "from binding requires a key")
			}
		}

	case v1alpha1.KindService:
		if res.Service == nil {
			return malformed(path, "missing service section")
		}
		if res.Service.Workload == "" {
			return malformed(path+".service", "missing workload")
		}
		if res.Service.Port <= 0 {
			return malformed(path+".service", "missing or invalid port")
		}
		switch res.Service.Exposure {
		case "", v1alpha1.ExposureInternal:
			if res.Service.ExternalPort != 0 {
				return malformed(path+".service", "externalPort requires exposure: external")
			}
		case v1alpha1.ExposureExternal:
			if res.Service.ExternalPort <= 0 {
				return malformed(path+".service", "exposure: external requires externalPort")
			}
		default:
			return malformed(path+".service", "unknown exposure %q", res.Service.Exposure)
		}
	}
	return nil
}

func applyDefaults(set *v1alpha1.StackSet) {
	if set.Metadata.Namespace == "" {
		set.Metadata.Namespace = "default"
	}
	for i := range set.Resources {
		res := &set.Resources[i]
		if res.Workload != nil && res.Workload.Replicas == nil {
			one := int32(1)
			res.Workload.Replicas = &one
		}
		if res.Service != nil && res.Service.Exposure == "" {
			res.Service.Exposure = v1alpha1.ExposureInternal
		}
	}
}

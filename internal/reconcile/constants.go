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

// =============================================================================
// Annotations and labels applied to managed cluster objects.
//
// These enable tracking which tool manages an object, which stack it
// belongs to, and drift detection via checksums. Destroy only ever deletes
// objects carrying the managed-by annotation.
// =============================================================================
const (
	// AnnotationManagedBy identifies objects created by this tool
	AnnotationManagedBy = "stackset.platform.dev/managed-by"

	// AnnotationStack records the stack the object was declared in
	AnnotationStack = "stackset.platform.dev/stack"

	// AnnotationChecksum stores the SHA256 hash of the managed payload
	// for drift detection
	AnnotationChecksum = "stackset.platform.dev/checksum"

	// AnnotationLastApplied records when the object was last written
	AnnotationLastApplied = "stackset.platform.dev/last-applied"

	// ManagedByValue is the value for AnnotationManagedBy
	ManagedByValue = "stackset"
)

const (
	// LabelStack labels every managed object with its stack name
	LabelStack = "stackset.platform.dev/stack"

	// LabelApp is the selector label connecting a Service to the pods of
	// its Workload
	LabelApp = "app"
)

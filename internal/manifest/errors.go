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
	"errors"
	"fmt"
)

// MalformedSpecError reports a declaration that cannot be used: missing or
// invalid required fields, an unknown kind, or an undecodable document.
// It is fatal for the whole run, before any cluster mutation.
type MalformedSpecError struct {
	// Path locates the offending part of the document, e.g.
	// "resources[2]" or "resources[2].service".
	Path   string
	Reason string
}

func (e *MalformedSpecError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed spec: %s", e.Reason)
	}
	return fmt.Sprintf("malformed spec at %s: %s", e.Path, e.Reason)
}

// DuplicateNameError reports two resources sharing a name. Names are
// unique across the whole stack because references resolve by bare name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate resource name %q", e.Name)
}

// IsMalformed reports whether err (or any error in its chain) is a
// MalformedSpecError.
func IsMalformed(err error) bool {
	var me *MalformedSpecError
	return errors.As(err, &me)
}

// IsDuplicateName reports whether err (or any error in its chain) is a
// DuplicateNameError.
func IsDuplicateName(err error) bool {
	var de *DuplicateNameError
	return errors.As(err, &de)
}

func malformed(path, format string, a ...any) error {
	return &MalformedSpecError{Path: path, Reason: fmt.Sprintf(format, a...)}
}

// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

// Validator performs a static, non-mutating check of a constraint set for
// semantic consistency. It has no state of its own and is never on the
// solver's hot path — run it after a rebuild, from tests, or from tooling.
type Validator struct{}

// Validate delegates to ValidateConstraintSemantics.
func (Validator) Validate(constraints []Constraint) ValidationResult {
	return ValidateConstraintSemantics(constraints)
}

// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import "testing"

func TestValidatorDelegatesToValidateConstraintSemantics(t *testing.T) {
	constraints := []Constraint{
		{Kind: DistanceConstraint, I: 0, J: 1, RestLength: 1},
	}
	var v Validator
	result := v.Validate(constraints)
	if !result.Valid {
		t.Errorf("expected a valid result, got errors: %v", result.Errors)
	}
}

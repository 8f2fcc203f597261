// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package sh

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) < tol }

// A pure Y_0^0 coefficient vector describes a sphere: r(θ,φ) is constant
// everywhere. Y_0^0 = 1/(2*sqrt(pi)), so coeffs[0] = 2*sqrt(pi) makes that
// constant exactly 1.
func TestEvaluateConstantSphere(t *testing.T) {
	b, err := NewBasis(2)
	if err != nil {
		t.Fatalf("NewBasis(2): %v", err)
	}
	coeffs := make([]float64, b.CoeffCount())
	coeffs[0] = 2 * math.Sqrt(math.Pi)

	samples := [][2]float64{
		{0.001, 0}, {math.Pi / 2, 0}, {math.Pi / 2, math.Pi}, {math.Pi - 0.001, 1.2},
	}
	for _, s := range samples {
		r, err := b.Evaluate(s[0], s[1], coeffs)
		if err != nil {
			t.Fatalf("Evaluate(%v): %v", s, err)
		}
		if !almostEqual(r, 1, 1e-9) {
			t.Errorf("Evaluate(%v) = %v, want 1", s, r)
		}
	}
}

func TestEvaluateRejectsBadCoefficients(t *testing.T) {
	b, err := NewBasis(2)
	if err != nil {
		t.Fatalf("NewBasis(2): %v", err)
	}
	if _, err := b.Evaluate(1, 1, nil); err != ErrEmptyCoefficients {
		t.Errorf("want ErrEmptyCoefficients, got %v", err)
	}
	if _, err := b.Evaluate(1, 1, make([]float64, 3)); err == nil {
		t.Error("want error for wrong-length coefficients")
	}
}

func TestNewBasisRejectsOrderExceedsMax(t *testing.T) {
	if _, err := NewBasis(MaxSupportedOrder + 1); !errors.Is(err, ErrOrderExceedsMax) {
		t.Errorf("want ErrOrderExceedsMax, got %v", err)
	}
	if _, err := NewBasis(-1); !errors.Is(err, ErrOrderExceedsMax) {
		t.Errorf("want ErrOrderExceedsMax for negative order, got %v", err)
	}
	if _, err := NewBasis(MaxSupportedOrder); err != nil {
		t.Errorf("NewBasis(MaxSupportedOrder) should succeed, got %v", err)
	}
}

// The gradient of a constant (Y_0^0-only) field must be zero everywhere,
// including the pole branch of dLegendreAt.
func TestGradientOfConstantIsZero(t *testing.T) {
	b, err := NewBasis(3)
	if err != nil {
		t.Fatalf("NewBasis(3): %v", err)
	}
	coeffs := make([]float64, b.CoeffCount())
	coeffs[0] = 1.5

	thetas := []float64{1e-9, 0.3, math.Pi / 2, math.Pi - 1e-9}
	for _, th := range thetas {
		dt, dp, err := b.Gradient(th, 0.7, coeffs)
		if err != nil {
			t.Fatalf("Gradient(theta=%v): %v", th, err)
		}
		if !almostEqual(dt, 0, 1e-6) || !almostEqual(dp, 0, 1e-9) {
			t.Errorf("Gradient(theta=%v) = (%v, %v), want (0,0)", th, dt, dp)
		}
	}
}

// Orthonormality of the real SH basis over the sphere, numerically
// integrated with a 200x400 midpoint grid: each basis function should
// have unit norm, and distinct basis functions should be uncorrelated.
func TestBasisOrthonormality(t *testing.T) {
	b, err := NewBasis(2)
	if err != nil {
		t.Fatalf("NewBasis(2): %v", err)
	}
	n := b.CoeffCount()
	thetaSteps, phiSteps := 200, 400
	dTheta := math.Pi / float64(thetaSteps)
	dPhi := 2 * math.Pi / float64(phiSteps)

	inner := func(i, j int) float64 {
		ci, cj := make([]float64, n), make([]float64, n)
		ci[i], cj[j] = 1, 1
		sum := 0.0
		for ti := 0; ti < thetaSteps; ti++ {
			theta := (float64(ti) + 0.5) * dTheta
			weight := math.Sin(theta) * dTheta * dPhi
			for pi := 0; pi < phiSteps; pi++ {
				phi := (float64(pi) + 0.5) * dPhi
				vi, _ := b.Evaluate(theta, phi, ci)
				vj := vi
				if i != j {
					vj, _ = b.Evaluate(theta, phi, cj)
				}
				sum += vi * vj * weight
			}
		}
		return sum
	}

	for i := 0; i < n; i++ {
		got := inner(i, i)
		if !almostEqual(got, 1, 0.01) {
			t.Errorf("<Y_%d,Y_%d> = %v, want ~1", i, i, got)
		}
	}
	// Spot-check a handful of cross terms rather than all n^2 pairs.
	pairs := [][2]int{{0, 1}, {1, 2}, {2, 3}, {0, n - 1}, {3, 5}}
	for _, p := range pairs {
		got := inner(p[0], p[1])
		if !almostEqual(got, 0, 0.01) {
			t.Errorf("<Y_%d,Y_%d> = %v, want ~0", p[0], p[1], got)
		}
	}
}

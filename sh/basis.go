// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

// Package sh evaluates real spherical harmonics and the geometry of the
// star-shaped radial functions r(θ,φ) they describe. Basis is the pure,
// stateless-after-construction evaluator; Geometry (geometry.go) layers
// volume/area/projection queries on top of it.
package sh

import (
	"errors"
	"fmt"
	"math"
)

// Error sentinels raised at evaluation/construction entry points. Degenerate
// numerical conditions encountered mid-computation (pole singularities,
// zero-length vectors) are handled locally and never surface as errors.
var (
	ErrEmptyCoefficients        = errors.New("sh: empty coefficients")
	ErrInvalidCoefficientLength = errors.New("sh: invalid coefficient length")
	ErrOrderExceedsMax          = errors.New("sh: order exceeds max")
)

// poleEpsilon bounds how close sin(θ) may get to zero before the θ-gradient
// recurrence switches to its analytic pole-limit branch.
const poleEpsilon = 1e-8

// MaxSupportedOrder is the largest maxOrder NewBasis will build a Basis for.
// Beyond this the log-factorial table used by the Schmidt normalization
// loses enough precision that the recurrence is no longer trustworthy.
const MaxSupportedOrder = 64

// Basis precomputes the normalization factors for orthonormal real
// spherical harmonics up to maxOrder (the Schmidt factor
// √((l-m)!/(l+m)!) scaled by √((2l+1)/4π)) and holds scratch buffers so
// that Evaluate and Gradient never allocate.
type Basis struct {
	maxOrder int
	logFact  []float64
	schmidt  []float64

	// scratch, sized (maxOrder+1)(maxOrder+2)/2, reused across calls
	legendre  []float64
	dlegendre []float64
	dpdc      []float64
}

// NewBasis builds a Basis supporting coefficient vectors of length
// (maxOrder+1)². maxOrder must be >= 0 and no greater than MaxSupportedOrder.
func NewBasis(maxOrder int) (*Basis, error) {
	if maxOrder < 0 || maxOrder > MaxSupportedOrder {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrOrderExceedsMax, maxOrder, MaxSupportedOrder)
	}
	logFact := make([]float64, 2*maxOrder+3)
	sum := 0.0
	for k := 1; k < len(logFact); k++ {
		sum += math.Log(float64(k))
		logFact[k] = sum
	}
	size := (maxOrder + 1) * (maxOrder + 2) / 2
	schmidt := make([]float64, size)
	for l := 0; l <= maxOrder; l++ {
		for m := 0; m <= l; m++ {
			schmidt[idx(l, m)] = math.Sqrt(float64(2*l+1)/(4*math.Pi)) * math.Exp(0.5*(logFact[l-m]-logFact[l+m]))
		}
	}
	return &Basis{
		maxOrder:  maxOrder,
		logFact:   logFact,
		schmidt:   schmidt,
		legendre:  make([]float64, size),
		dlegendre: make([]float64, size),
		dpdc:      make([]float64, size),
	}, nil
}

// idx maps a (degree l, non-negative order m) pair onto the packed
// triangular buffer layout: idx(l,m) = l(l+1)/2 + m.
func idx(l, m int) int { return l*(l+1)/2 + m }

// MaxOrder returns the L this basis was constructed with.
func (b *Basis) MaxOrder() int { return b.maxOrder }

// CoeffCount returns the number of coefficients Evaluate/Gradient expect:
// (L+1)², laid out with l ascending and m running -l..+l within each l.
func (b *Basis) CoeffCount() int { return (b.maxOrder + 1) * (b.maxOrder + 1) }

func (b *Basis) validate(coeffs []float64) error {
	if len(coeffs) == 0 {
		return ErrEmptyCoefficients
	}
	if want := b.CoeffCount(); len(coeffs) != want {
		return fmt.Errorf("%w: want %d got %d", ErrInvalidCoefficientLength, want, len(coeffs))
	}
	return nil
}

// legendreAt fills b.legendre with P_l^m(cos θ) for 0<=m<=l<=maxOrder using
// the standard three-term associated-Legendre recurrence.
func (b *Basis) legendreAt(c, s float64) {
	p := b.legendre
	p[idx(0, 0)] = 1
	for l := 1; l <= b.maxOrder; l++ {
		p[idx(l, l)] = float64(2*l-1) * s * p[idx(l-1, l-1)]
		p[idx(l, l-1)] = c * float64(2*l-1) * p[idx(l-1, l-1)]
		for m := 0; m <= l-2; m++ {
			p[idx(l, m)] = (float64(2*l-1)*c*p[idx(l-1, m)] - float64(l+m-1)*p[idx(l-2, m)]) / float64(l-m)
		}
	}
}

// dLegendreAt fills b.dlegendre with dP_l^m/dθ, derived by differentiating
// the same recurrence with respect to c=cosθ (chain rule dc/dθ=-s) and
// converting at the end. Near the poles (|s|<poleEpsilon) the chain-rule
// form is singular, so the m=0 analytic limit is used directly and m>0
// terms — which vanish like s^m there — are set to zero.
func (b *Basis) dLegendreAt(c, s float64) {
	dp := b.dlegendre
	if math.Abs(s) < poleEpsilon {
		sign := 1.0
		if c < 0 {
			sign = -1.0
		}
		for l := 0; l <= b.maxOrder; l++ {
			dp[idx(l, 0)] = 0.5 * float64(l*(l+1)) * sign * (-s)
			for m := 1; m <= l; m++ {
				dp[idx(l, m)] = 0
			}
		}
		return
	}
	p, dc := b.legendre, b.dpdc
	dc[idx(0, 0)] = 0
	dsdc := -c / s
	for l := 1; l <= b.maxOrder; l++ {
		dc[idx(l, l)] = float64(2*l-1) * (dsdc*p[idx(l-1, l-1)] + s*dc[idx(l-1, l-1)])
		dc[idx(l, l-1)] = float64(2*l-1)*p[idx(l-1, l-1)] + c*float64(2*l-1)*dc[idx(l-1, l-1)]
		for m := 0; m <= l-2; m++ {
			dc[idx(l, m)] = (float64(2*l-1)*p[idx(l-1, m)] + float64(2*l-1)*c*dc[idx(l-1, m)] - float64(l+m-1)*dc[idx(l-2, m)]) / float64(l-m)
		}
	}
	for i := range dc {
		dp[i] = dc[i] * (-s)
	}
}

// basisValue returns Y_l^m(θ,φ) given the Legendre value already sitting in
// table at idx(l,|m|) and the normalization factor for the same slot.
func (b *Basis) basisValue(table []float64, l, m int, phi float64) float64 {
	am := m
	if am < 0 {
		am = -am
	}
	n := b.schmidt[idx(l, am)]
	p := table[idx(l, am)]
	switch {
	case m == 0:
		return n * p
	case m > 0:
		return math.Sqrt2 * n * p * math.Cos(float64(m)*phi)
	default:
		return math.Sqrt2 * n * p * math.Sin(float64(am)*phi)
	}
}

// Evaluate returns r(θ,φ) = Σ coeffs[k]·Y_k for the real SH basis, where
// coefficients are laid out with l ascending and, within each l, m from -l
// to +l.
func (b *Basis) Evaluate(theta, phi float64, coeffs []float64) (float64, error) {
	if err := b.validate(coeffs); err != nil {
		return 0, err
	}
	c, s := math.Cos(theta), math.Sin(theta)
	b.legendreAt(c, s)
	r := 0.0
	k := 0
	for l := 0; l <= b.maxOrder; l++ {
		for m := -l; m <= l; m++ {
			r += coeffs[k] * b.basisValue(b.legendre, l, m, phi)
			k++
		}
	}
	return r, nil
}

// Gradient returns (∂r/∂θ, ∂r/∂φ) at (θ,φ) for the given coefficients.
func (b *Basis) Gradient(theta, phi float64, coeffs []float64) (float64, float64, error) {
	if err := b.validate(coeffs); err != nil {
		return 0, 0, err
	}
	c, s := math.Cos(theta), math.Sin(theta)
	b.legendreAt(c, s)
	b.dLegendreAt(c, s)
	dtheta, dphi := 0.0, 0.0
	k := 0
	for l := 0; l <= b.maxOrder; l++ {
		for m := -l; m <= l; m++ {
			am := m
			if am < 0 {
				am = -am
			}
			n := b.schmidt[idx(l, am)]
			p := b.legendre[idx(l, am)]
			dp := b.dlegendre[idx(l, am)]
			switch {
			case m == 0:
				dtheta += coeffs[k] * n * dp
			case m > 0:
				cm := float64(m)
				dtheta += coeffs[k] * math.Sqrt2 * n * dp * math.Cos(cm*phi)
				dphi += coeffs[k] * math.Sqrt2 * n * p * (-cm * math.Sin(cm*phi))
			default:
				cm := float64(am)
				dtheta += coeffs[k] * math.Sqrt2 * n * dp * math.Sin(cm*phi)
				dphi += coeffs[k] * math.Sqrt2 * n * p * (cm * math.Cos(cm*phi))
			}
			k++
		}
	}
	return dtheta, dphi, nil
}

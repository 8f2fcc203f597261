// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package sh

import (
	"math"
	"math/rand"

	"github.com/gazed/shphys/math/lin"
)

// Geometry wraps a Basis with a fixed coefficient vector and center,
// exposing volume/area/cross-section/projection queries over the
// star-shaped radial surface r(θ,φ) the coefficients describe. θ is
// measured from the +Z axis, φ counter-clockwise from +X in the XY plane —
// the usual physics spherical-coordinate convention, independent of any
// rendering up-axis.
type Geometry struct {
	basis  *Basis
	coeffs []float64
	center lin.V3
}

// NewGeometry validates coeffs against basis and returns a Geometry.
func NewGeometry(basis *Basis, coeffs []float64, center lin.V3) (*Geometry, error) {
	if err := basis.validate(coeffs); err != nil {
		return nil, err
	}
	return &Geometry{basis: basis, coeffs: coeffs, center: center}, nil
}

func (g *Geometry) radius(theta, phi float64) float64 {
	r, _ := g.basis.Evaluate(theta, phi, g.coeffs)
	return r
}

// surfacePoint returns the cartesian point on the surface at (θ,φ),
// relative to the world (center-shifted).
func (g *Geometry) surfacePoint(theta, phi float64) lin.V3 {
	r := g.radius(theta, phi)
	s, c := math.Sin(theta), math.Cos(theta)
	rel := lin.V3{X: r * s * math.Cos(phi), Y: r * s * math.Sin(phi), Z: r * c}
	var out lin.V3
	out.Add(&rel, &g.center)
	return out
}

// toSpherical returns the spherical coordinates of p relative to center,
// with φ wrapped to [0,2π). rCart is the cartesian distance from center.
func (g *Geometry) toSpherical(p lin.V3) (theta, phi, rCart float64) {
	var d lin.V3
	d.Sub(&p, &g.center)
	rCart = d.Len()
	if rCart < 1e-10 {
		return 0, 0, rCart
	}
	theta = math.Acos(lin.Clamp(d.Z/rCart, -1, 1))
	phi = wrapPhi(math.Atan2(d.Y, d.X))
	return theta, phi, rCart
}

func wrapPhi(phi float64) float64 {
	phi = math.Mod(phi, lin.PIx2)
	if phi < 0 {
		phi += lin.PIx2
	}
	return phi
}

func clampTheta(theta float64) float64 {
	const eps = 1e-6
	return lin.Clamp(theta, eps, math.Pi-eps)
}

// tangentEps is the central-difference step used for the position-vector
// partials ∂r⃗/∂θ, ∂r⃗/∂φ that feed surface area and normal computation.
const tangentEps = 1e-5

// positionPartials returns ∂r⃗/∂θ and ∂r⃗/∂φ by central differences of the
// cartesian surface position, clamping the θ samples away from the poles.
func (g *Geometry) positionPartials(theta, phi float64) (dtheta, dphi lin.V3) {
	t1, t2 := clampTheta(theta-tangentEps), clampTheta(theta+tangentEps)
	p1, p2 := g.surfacePoint(t1, phi), g.surfacePoint(t2, phi)
	dtheta.Sub(&p2, &p1)
	if dt := t2 - t1; dt != 0 {
		dtheta.Scale(&dtheta, 1/dt)
	}

	p3, p4 := g.surfacePoint(theta, phi-tangentEps), g.surfacePoint(theta, phi+tangentEps)
	dphi.Sub(&p4, &p3)
	dphi.Scale(&dphi, 1/(2*tangentEps))
	return
}

// Volume integrates r³/3·sinθ over the grid with the midpoint rectangle
// rule. Zero or negative step counts fall back to the spec defaults
// (100x200).
func (g *Geometry) Volume(thetaSteps, phiSteps int) float64 {
	if thetaSteps <= 0 {
		thetaSteps = 100
	}
	if phiSteps <= 0 {
		phiSteps = 200
	}
	dTheta := math.Pi / float64(thetaSteps)
	dPhi := lin.PIx2 / float64(phiSteps)
	total := 0.0
	for i := 0; i < thetaSteps; i++ {
		theta := (float64(i) + 0.5) * dTheta
		sinTheta := math.Sin(theta)
		for j := 0; j < phiSteps; j++ {
			phi := (float64(j) + 0.5) * dPhi
			r := g.radius(theta, phi)
			total += (r * r * r / 3) * sinTheta * dTheta * dPhi
		}
	}
	return total
}

// SurfaceArea integrates ‖∂r⃗/∂θ × ∂r⃗/∂φ‖ over the grid, falling back to
// r²|sinθ| at near-pole samples where the cross product collapses.
func (g *Geometry) SurfaceArea(thetaSteps, phiSteps int) float64 {
	if thetaSteps <= 0 {
		thetaSteps = 100
	}
	if phiSteps <= 0 {
		phiSteps = 200
	}
	dTheta := math.Pi / float64(thetaSteps)
	dPhi := lin.PIx2 / float64(phiSteps)
	total := 0.0
	for i := 0; i < thetaSteps; i++ {
		theta := (float64(i) + 0.5) * dTheta
		for j := 0; j < phiSteps; j++ {
			phi := (float64(j) + 0.5) * dPhi
			if math.Abs(math.Sin(theta)) < 1e-6 {
				r := g.radius(theta, phi)
				total += r * r * math.Abs(math.Sin(theta)) * dTheta * dPhi
				continue
			}
			dt, dp := g.positionPartials(theta, phi)
			var cr lin.V3
			cr.Cross(&dt, &dp)
			total += cr.Len() * dTheta * dPhi
		}
	}
	return total
}

// BoundingRadius estimates a conservative enclosing radius from 500 random
// directions plus the poles and 8 equatorial samples, scaled by 1.5. The
// caller supplies the random source so results are reproducible in tests.
func (g *Geometry) BoundingRadius(rng *rand.Rand) float64 {
	maxR := 0.0
	probe := func(theta, phi float64) {
		if r := g.radius(theta, phi); r > maxR {
			maxR = r
		}
	}
	for i := 0; i < 500; i++ {
		u := rng.Float64()
		theta := math.Acos(2*u - 1)
		phi := rng.Float64() * lin.PIx2
		probe(theta, phi)
	}
	probe(0, 0)
	probe(math.Pi, 0)
	for i := 0; i < 8; i++ {
		probe(math.Pi/2, float64(i)*lin.PIx2/8)
	}
	return maxR * 1.5
}

// coarseMaxRadius is a deterministic stand-in for an enclosing radius used
// internally to bound ray marches (cross-section, projection). Unlike
// BoundingRadius it must not depend on a caller-supplied random source, so
// it samples a fixed grid instead.
func (g *Geometry) coarseMaxRadius() float64 {
	const thetaSteps, phiSteps = 20, 40
	maxR := 0.0
	for i := 0; i <= thetaSteps; i++ {
		theta := math.Pi * float64(i) / float64(thetaSteps)
		for j := 0; j < phiSteps; j++ {
			phi := lin.PIx2 * float64(j) / float64(phiSteps)
			if r := g.radius(theta, phi); r > maxR {
				maxR = r
			}
		}
	}
	return maxR
}

func buildTangentBasis(n lin.V3) (u, v lin.V3) {
	pick := lin.V3{X: 1}
	if math.Abs(n.X) >= 0.9 {
		pick = lin.V3{Y: 1}
	}
	u.Cross(&pick, &n)
	u.Unit()
	v.Cross(&n, &u)
	return
}

func sameSign(a, b float64) bool {
	return (a >= 0 && b >= 0) || (a < 0 && b < 0)
}

func (g *Geometry) rayPoint(origin, dir lin.V3, t float64) lin.V3 {
	var scaled, p lin.V3
	scaled.Scale(&dir, t)
	p.Add(&origin, &scaled)
	return p
}

// rayF evaluates f(t) = ‖ray(t)-center‖ - r(θ(t),φ(t)); its sign change
// along the ray marks a crossing of the SH surface.
func (g *Geometry) rayF(origin, dir lin.V3, t float64) (f, theta, phi float64) {
	p := g.rayPoint(origin, dir, t)
	theta, phi, rCart := g.toSpherical(p)
	f = rCart - g.radius(theta, phi)
	return
}

func (g *Geometry) bisect(origin, dir lin.V3, lo, hi float64) lin.V3 {
	fLo, _, _ := g.rayF(origin, dir, lo)
	var theta, phi float64
	for i := 0; i < 50; i++ {
		mid := (lo + hi) / 2
		var fm float64
		fm, theta, phi = g.rayF(origin, dir, mid)
		if math.Abs(fm) < 1e-6 || (hi-lo) < 1e-6 {
			return g.surfacePoint(theta, phi)
		}
		if sameSign(fm, fLo) {
			lo, fLo = mid, fm
		} else {
			hi = mid
		}
	}
	return g.surfacePoint(theta, phi)
}

// intersectRay marches from origin along dir looking for the SH surface
// crossing, refining with bisection once a sign change is found.
func (g *Geometry) intersectRay(origin, dir lin.V3, maxRadius float64) (lin.V3, bool) {
	const steps = 200
	dt := 2 * maxRadius / steps
	prevF, _, _ := g.rayF(origin, dir, 0)
	prevT := 0.0
	for i := 1; i <= steps; i++ {
		t := float64(i) * dt
		f, _, _ := g.rayF(origin, dir, t)
		if !sameSign(f, prevF) {
			return g.bisect(origin, dir, prevT, t), true
		}
		prevF, prevT = f, t
	}
	return lin.V3{}, false
}

// CrossSection is the intersection of the SH surface with the plane
// {normal, point}.
type CrossSection struct {
	Points    []lin.V3
	Perimeter float64
	Area      float64
}

// CrossSection casts numSamples rays from point in the plane perpendicular
// to normal, finds where each meets the SH surface, and returns the
// resulting polygon plus its perimeter and fan-triangulated area.
func (g *Geometry) CrossSection(normal, point lin.V3, numSamples int) CrossSection {
	if numSamples <= 0 {
		numSamples = 360
	}
	var n lin.V3
	n.Set(&normal)
	n.Unit()
	u, v := buildTangentBasis(n)
	maxR := g.coarseMaxRadius()

	pts := make([]lin.V3, 0, numSamples)
	for i := 0; i < numSamples; i++ {
		alpha := lin.PIx2 * float64(i) / float64(numSamples)
		var su, sv, dir lin.V3
		su.Scale(&u, math.Cos(alpha))
		sv.Scale(&v, math.Sin(alpha))
		dir.Add(&su, &sv)
		dir.Unit()
		if hit, ok := g.intersectRay(point, dir, maxR); ok {
			pts = append(pts, hit)
		}
	}

	perimeter := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		perimeter += pts[i].Dist(&pts[j])
	}

	var centroid lin.V3
	for i := range pts {
		centroid.Add(&centroid, &pts[i])
	}
	if len(pts) > 0 {
		centroid.Scale(&centroid, 1/float64(len(pts)))
	}
	area := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		var e1, e2, cr lin.V3
		e1.Sub(&pts[i], &centroid)
		e2.Sub(&pts[j], &centroid)
		cr.Cross(&e1, &e2)
		area += 0.5 * cr.Len()
	}
	return CrossSection{Points: pts, Perimeter: perimeter, Area: area}
}

// SignedDistance returns rCart(p) - r(θ,φ): positive outside the surface,
// negative inside. Valid only for star-shaped bodies.
func (g *Geometry) SignedDistance(p lin.V3) float64 {
	theta, phi, rCart := g.toSpherical(p)
	if rCart < 1e-10 {
		r0 := g.radius(0, 0)
		return -r0
	}
	return rCart - g.radius(theta, phi)
}

func (g *Geometry) radialDirection(theta, phi float64) lin.V3 {
	s := math.Sin(theta)
	return lin.V3{X: s * math.Cos(phi), Y: s * math.Sin(phi), Z: math.Cos(theta)}
}

// ComputeSurfaceNormal returns the unit outward normal at (θ,φ), falling
// back to the radial direction at the poles or wherever the tangent
// cross-product degenerates.
func (g *Geometry) ComputeSurfaceNormal(theta, phi float64) lin.V3 {
	dt, dp := g.positionPartials(theta, phi)
	var n lin.V3
	n.Cross(&dt, &dp)
	if n.Len() < 1e-10 {
		return g.radialDirection(theta, phi)
	}
	n.Unit()
	return n
}

// Projection is the result of projecting a point onto the SH surface.
type Projection struct {
	Point       lin.V3
	Normal      lin.V3
	Distance    float64
	Penetration float64 // rCart - r: positive outside, negative inside
	Theta       float64
	Phi         float64
}

func (g *Geometry) projectionAt(p lin.V3, theta, phi float64) Projection {
	surf := g.surfacePoint(theta, phi)
	normal := g.ComputeSurfaceNormal(theta, phi)
	_, _, rCart := g.toSpherical(p)
	r := g.radius(theta, phi)
	return Projection{
		Point:       surf,
		Normal:      normal,
		Distance:    p.Dist(&surf),
		Penetration: rCart - r,
		Theta:       theta,
		Phi:         phi,
	}
}

// ProjectToSurface finds the nearest point on the SH surface to p by
// gradient descent in (θ,φ), starting from the radial projection. At the
// poles the optimization is skipped in favor of the radial point directly.
// The best candidate seen is tracked and returned even on non-convergence.
func (g *Geometry) ProjectToSurface(p lin.V3) Projection {
	theta, phi, rCart := g.toSpherical(p)
	if rCart < 1e-10 {
		theta, phi = 0, 0
	}
	if math.Abs(math.Sin(theta)) < poleEpsilon {
		return g.projectionAt(p, theta, phi)
	}

	best := g.projectionAt(p, theta, phi)
	for iter := 0; iter < 20; iter++ {
		step := 0.1 / (1 + 0.2*float64(iter))
		surf := g.surfacePoint(theta, phi)
		var diff lin.V3
		diff.Sub(&p, &surf)
		dt, dp := g.positionPartials(theta, phi)
		gTheta := -2 * diff.Dot(&dt)
		gPhi := -2 * diff.Dot(&dp)
		glen := math.Sqrt(gTheta*gTheta + gPhi*gPhi)
		if glen < 1e-12 {
			break
		}
		theta -= step * gTheta / glen
		phi -= step * gPhi / glen
		theta = clampTheta(theta)
		phi = wrapPhi(phi)

		cand := g.projectionAt(p, theta, phi)
		improved := cand.Distance < best.Distance
		if improved {
			best = cand
		}
		if math.Abs(cand.Distance-best.Distance) < 1e-6 && !improved {
			break
		}
	}
	return best
}

// SurfaceMesh discretizes the SH surface into a quad grid split into
// triangles, with a minimal (non-duplicated) edge set.
type SurfaceMesh struct {
	Points    []lin.V3
	Normals   []lin.V3 // nil unless requested
	Triangles [][3]int
	Edges     [][2]int
}

// SampleSurface builds a (thetaSteps+1) x phiSteps vertex grid (φ closed,
// θ open-ended at the poles) and triangulates each quad.
func (g *Geometry) SampleSurface(thetaSteps, phiSteps int, withNormals bool) SurfaceMesh {
	if thetaSteps <= 0 {
		thetaSteps = 20
	}
	if phiSteps <= 0 {
		phiSteps = 40
	}
	pts := make([]lin.V3, 0, (thetaSteps+1)*phiSteps)
	var normals []lin.V3
	if withNormals {
		normals = make([]lin.V3, 0, (thetaSteps+1)*phiSteps)
	}
	for i := 0; i <= thetaSteps; i++ {
		theta := math.Pi * float64(i) / float64(thetaSteps)
		for j := 0; j < phiSteps; j++ {
			phi := lin.PIx2 * float64(j) / float64(phiSteps)
			pts = append(pts, g.surfacePoint(theta, phi))
			if withNormals {
				normals = append(normals, g.ComputeSurfaceNormal(theta, phi))
			}
		}
	}
	vertexIndex := func(i, j int) int {
		jj := ((j % phiSteps) + phiSteps) % phiSteps
		return i*phiSteps + jj
	}
	var tris [][3]int
	var edges [][2]int
	for i := 0; i < thetaSteps; i++ {
		for j := 0; j < phiSteps; j++ {
			a, b := vertexIndex(i, j), vertexIndex(i, j+1)
			c, d := vertexIndex(i+1, j+1), vertexIndex(i+1, j)
			tris = append(tris, [3]int{a, b, c}, [3]int{a, c, d})
			edges = append(edges, [2]int{a, d}) // meridian ("north") side
			edges = append(edges, [2]int{a, b}) // parallel ("west") side
		}
	}
	return SurfaceMesh{Points: pts, Normals: normals, Triangles: tris, Edges: edges}
}

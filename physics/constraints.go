// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"fmt"
	"math"

	"github.com/gazed/shphys/math/lin"
)

// Default material values used wherever a MaterialArrays entry is not
// supplied by the caller's Material.
const (
	defaultStiffness           = 1000.0
	defaultBendComplianceCloth = 0.1
	defaultBendComplianceLine  = 0.05
)

// MaterialArrays holds per-particle stiffness/damping, parallel to a
// particle slice. Rebuild (through materialArrays) always fills both slices
// (stiffness falling back to defaultStiffness where the material gives none),
// so ConstraintBuilder helpers never need a nil check.
type MaterialArrays struct {
	Stiffness []float64
	Damping   []float64
}

func avgOf(vals []float64, i, j int) float64 { return (vals[i] + vals[j]) / 2 }

func edgeKey(i, j int) [2]int {
	if i > j {
		i, j = j, i
	}
	return [2]int{i, j}
}

func structuralConstraint(particles []Particle, i, j int, model Model, mat MaterialArrays, tag EdgeTag) Constraint {
	rest := particles[i].Position.Dist(&particles[j].Position)
	stiff := avgOf(mat.Stiffness, i, j)
	damp := avgOf(mat.Damping, i, j)
	if model == PBD {
		return Constraint{Kind: DistanceConstraint, I: i, J: j, RestLength: rest, Compliance: 1 / stiff, EdgeTag: tag}
	}
	return Constraint{Kind: SpringConstraint, I: i, J: j, RestLength: rest, Stiffness: stiff, Damping: damp, EdgeTag: tag}
}

func thirdVertex(tri [3]int, i, j int) (int, bool) {
	for _, v := range tri {
		if v != i && v != j {
			return v, true
		}
	}
	return 0, false
}

func oppositeCorners(topo Topology, i, j int) (c, d int, ok bool) {
	tris, exists := topo.EdgeToTriangles[edgeKey(i, j)]
	if !exists || tris[0] < 0 || tris[1] < 0 {
		return 0, 0, false
	}
	if tris[0] >= len(topo.Triangles) || tris[1] >= len(topo.Triangles) {
		return 0, 0, false
	}
	c, ok1 := thirdVertex(topo.Triangles[tris[0]], i, j)
	d, ok2 := thirdVertex(topo.Triangles[tris[1]], i, j)
	return c, d, ok1 && ok2
}

// dihedralAngle returns the angle between the two triangles sharing edge
// (a,b), with opposite corners c (triangle 1) and d (triangle 2). Returns
// 0 if either face normal degenerates.
func dihedralAngle(particles []Particle, a, b, c, d int) float64 {
	pa, pb, pc, pd := particles[a].Position, particles[b].Position, particles[c].Position, particles[d].Position
	var ab, ac, ad, n1, n2 lin.V3
	ab.Sub(&pb, &pa)
	ac.Sub(&pc, &pa)
	ad.Sub(&pd, &pa)
	n1.Cross(&ab, &ac)
	n2.Cross(&ab, &ad)
	if n1.Len() < 1e-10 || n2.Len() < 1e-10 {
		return 0
	}
	n1.Unit()
	n2.Unit()
	return math.Acos(lin.Clamp(n1.Dot(&n2), -1, 1))
}

func lineBendAngle(particles []Particle, i, j, k int) float64 {
	var v1, v2 lin.V3
	v1.Sub(&particles[j].Position, &particles[i].Position)
	v2.Sub(&particles[k].Position, &particles[j].Position)
	l1, l2 := v1.Len(), v2.Len()
	if l1 < 1e-6 || l2 < 1e-6 {
		return 0
	}
	return math.Acos(lin.Clamp(v1.Dot(&v2)/(l1*l2), -1, 1))
}

// BuildClothConstraints emits one Structural Distance/Spring per topology
// edge and one Bending constraint (or Bending-tagged Spring) per unique
// internal edge whose two incident triangles are both present.
func BuildClothConstraints(particles []Particle, topo Topology, model Model, mat MaterialArrays) []Constraint {
	out := make([]Constraint, 0, len(topo.Edges)+len(topo.InternalEdges))
	for _, e := range topo.Edges {
		out = append(out, structuralConstraint(particles, e[0], e[1], model, mat, Structural))
	}

	seen := map[[2]int]bool{}
	for _, e := range topo.InternalEdges {
		i, j := e[0], e[1]
		key := edgeKey(i, j)
		if seen[key] {
			continue
		}
		seen[key] = true
		c, d, ok := oppositeCorners(topo, i, j)
		if !ok {
			continue
		}
		if model == PBD {
			out = append(out, Constraint{
				Kind: BendingConstraint, A: i, B: j, C: c, D: d,
				RestAngle: dihedralAngle(particles, i, j, c, d), Compliance: defaultBendComplianceCloth,
			})
		} else {
			out = append(out, Constraint{
				Kind: SpringConstraint, I: c, J: d,
				RestLength: particles[c].Position.Dist(&particles[d].Position),
				Stiffness:  100, Damping: 5, EdgeTag: Bending,
			})
		}
	}
	return out
}

// BuildLineConstraints emits Structural edges along the ordered vertex
// chain plus a LineBending constraint for each interior triple, wrapping
// around when closed is true.
func BuildLineConstraints(particles []Particle, vertices []int, closed bool, model Model, mat MaterialArrays) []Constraint {
	n := len(vertices)
	out := make([]Constraint, 0, 2*n)
	for k := 0; k < n-1; k++ {
		out = append(out, structuralConstraint(particles, vertices[k], vertices[k+1], model, mat, Structural))
	}
	if closed && n >= 2 {
		out = append(out, structuralConstraint(particles, vertices[n-1], vertices[0], model, mat, Structural))
	}

	triple := func(i, j, k int) {
		out = append(out, Constraint{
			Kind: LineBendingConstraint, I: i, J: j, A: k,
			RestAngle: lineBendAngle(particles, i, j, k), Compliance: defaultBendComplianceLine,
		})
	}
	for k := 1; k < n-1; k++ {
		triple(vertices[k-1], vertices[k], vertices[k+1])
	}
	if closed && n >= 3 {
		triple(vertices[n-2], vertices[n-1], vertices[0])
		triple(vertices[n-1], vertices[0], vertices[1])
	}
	return out
}

func buildScaledStructural(particles []Particle, edges [][2]int, model Model, mat MaterialArrays, tag EdgeTag, stiffMul, dampMul float64) []Constraint {
	out := make([]Constraint, 0, len(edges))
	for _, e := range edges {
		i, j := e[0], e[1]
		rest := particles[i].Position.Dist(&particles[j].Position)
		stiff := avgOf(mat.Stiffness, i, j) * stiffMul
		damp := avgOf(mat.Damping, i, j) * dampMul
		if model == PBD {
			out = append(out, Constraint{Kind: DistanceConstraint, I: i, J: j, RestLength: rest, Compliance: 1 / stiff, EdgeTag: tag})
		} else {
			out = append(out, Constraint{Kind: SpringConstraint, I: i, J: j, RestLength: rest, Stiffness: stiff, Damping: damp, EdgeTag: tag})
		}
	}
	return out
}

// BuildVolumeInternalConstraints stiffens internal tetrahedral-style edges
// at 5x the surface baseline stiffness, 2x the damping.
func BuildVolumeInternalConstraints(particles []Particle, edges [][2]int, model Model, mat MaterialArrays) []Constraint {
	return buildScaledStructural(particles, edges, model, mat, InternalEdge, 5, 2)
}

// BuildSkinBoneConstraints ties skin vertices to a bone edge at 2x the
// surface baseline stiffness, 1.5x the damping.
func BuildSkinBoneConstraints(particles []Particle, edges [][2]int, model Model, mat MaterialArrays) []Constraint {
	return buildScaledStructural(particles, edges, model, mat, SkinBone, 2, 1.5)
}

// Build2DStructuralConstraints emits the plain Structural template with no
// bending term, for flat (non-cloth) 2D meshes.
func Build2DStructuralConstraints(particles []Particle, edges [][2]int, model Model, mat MaterialArrays) []Constraint {
	out := make([]Constraint, 0, len(edges))
	for _, e := range edges {
		out = append(out, structuralConstraint(particles, e[0], e[1], model, mat, Structural))
	}
	return out
}

// buildConstraints dispatches to the ConstraintBuilder template matching
// the topology's declared kind.
func buildConstraints(particles []Particle, topo Topology, model Model, mat MaterialArrays) []Constraint {
	switch topo.Kind {
	case LineTopology:
		return BuildLineConstraints(particles, topo.LineVertices, topo.IsClosed, model, mat)
	case VolumeSurfaceTopology:
		return Build2DStructuralConstraints(particles, topo.Edges, model, mat)
	case VolumeInternalTopology:
		return BuildVolumeInternalConstraints(particles, topo.InternalEdges, model, mat)
	case SkinBoneTopology:
		return BuildSkinBoneConstraints(particles, topo.Edges, model, mat)
	case Structural2DTopology:
		return Build2DStructuralConstraints(particles, topo.Edges, model, mat)
	default: // ClothTopology
		return BuildClothConstraints(particles, topo, model, mat)
	}
}

// InitShapeMatchingData computes the mass-weighted centroid of particles
// [start,start+count) and records each one's rest offset from it. Returns
// ok=false (no offsets written) if the cluster's total mass is non-positive.
func InitShapeMatchingData(particles []Particle, start, count int) (centroid lin.V3, ok bool) {
	totalMass := 0.0
	for i := start; i < start+count; i++ {
		totalMass += particles[i].Mass
	}
	if totalMass <= 0 {
		return lin.V3{}, false
	}
	for i := start; i < start+count; i++ {
		var weighted lin.V3
		weighted.Scale(&particles[i].Position, particles[i].Mass)
		centroid.Add(&centroid, &weighted)
	}
	centroid.Scale(&centroid, 1/totalMass)
	for i := start; i < start+count; i++ {
		var offset lin.V3
		offset.Sub(&particles[i].Position, &centroid)
		particles[i].RestOffset = offset
		particles[i].HasRestOffset = true
	}
	return centroid, true
}

// UpdateShapeMatchingData recomputes rest offsets against a supplied ideal
// (e.g. post shape-match rotation) position set rather than live positions.
func UpdateShapeMatchingData(particles []Particle, idealPositions []lin.V3, start, end int) (centroid lin.V3, ok bool) {
	totalMass := 0.0
	for i := start; i < end; i++ {
		totalMass += particles[i].Mass
	}
	if totalMass <= 0 {
		return lin.V3{}, false
	}
	for i := start; i < end; i++ {
		var weighted lin.V3
		weighted.Scale(&idealPositions[i-start], particles[i].Mass)
		centroid.Add(&centroid, &weighted)
	}
	centroid.Scale(&centroid, 1/totalMass)
	for i := start; i < end; i++ {
		var offset lin.V3
		offset.Sub(&idealPositions[i-start], &centroid)
		particles[i].RestOffset = offset
		particles[i].HasRestOffset = true
	}
	return centroid, true
}

// BuildShapeMatchingConstraint collects [start,start+count) into a single
// cluster-wise rigid-restoration constraint using each particle's current
// RestOffset (set by InitShapeMatchingData/UpdateShapeMatchingData).
func BuildShapeMatchingConstraint(particles []Particle, start, count int, model Model, stiffness float64) Constraint {
	indices := make([]int, count)
	offsets := make([]lin.V3, count)
	for k := 0; k < count; k++ {
		indices[k] = start + k
		offsets[k] = particles[start+k].RestOffset
	}
	c := Constraint{Kind: ShapeMatchingConstraint, Indices: indices, RestOffsets: offsets}
	if model == PBD {
		c.Compliance = 1 / stiffness
	} else {
		c.Stiffness = stiffness
	}
	return c
}

// ValidationResult is the outcome of ValidateConstraintSemantics.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

func countDistinct(vals ...int) int {
	seen := map[int]bool{}
	for _, v := range vals {
		seen[v] = true
	}
	return len(seen)
}

// ValidateConstraintSemantics walks a constraint set and reports every
// semantic violation named in the constraint-kind rules: a Distance
// carrying a stiffness field, a Spring carrying a compliance field, a
// Bending/LineBending missing compliance or touching fewer than 3 distinct
// particles, a ShapeMatching with no particles or a rest-offset length
// mismatch, and any edge carrying both a Distance and a Spring. Pure;
// never mutates the input.
func ValidateConstraintSemantics(constraints []Constraint) ValidationResult {
	var errs []string
	distanceEdges := map[[2]int]bool{}
	springEdges := map[[2]int]bool{}

	for i, c := range constraints {
		switch c.Kind {
		case DistanceConstraint:
			if c.Stiffness != 0 {
				errs = append(errs, fmt.Sprintf("constraint %d: distance constraint carries a stiffness field", i))
			}
			if c.RestLength <= 0 {
				errs = append(errs, fmt.Sprintf("constraint %d: distance constraint missing rest length", i))
			}
			distanceEdges[edgeKey(c.I, c.J)] = true
		case SpringConstraint:
			if c.Compliance != 0 {
				errs = append(errs, fmt.Sprintf("constraint %d: spring constraint carries a compliance field", i))
			}
			if c.Stiffness <= 0 {
				errs = append(errs, fmt.Sprintf("constraint %d: spring constraint missing stiffness", i))
			}
			if c.RestLength <= 0 {
				errs = append(errs, fmt.Sprintf("constraint %d: spring constraint missing rest length", i))
			}
			springEdges[edgeKey(c.I, c.J)] = true
		case BendingConstraint:
			if c.Compliance <= 0 {
				errs = append(errs, fmt.Sprintf("constraint %d: bending constraint missing compliance", i))
			}
			if countDistinct(c.A, c.B, c.C, c.D) < 3 {
				errs = append(errs, fmt.Sprintf("constraint %d: bending constraint has fewer than 3 distinct particles", i))
			}
		case LineBendingConstraint:
			if c.Compliance <= 0 {
				errs = append(errs, fmt.Sprintf("constraint %d: line bending constraint missing compliance", i))
			}
			if countDistinct(c.I, c.J, c.K()) < 3 {
				errs = append(errs, fmt.Sprintf("constraint %d: line bending constraint has fewer than 3 distinct particles", i))
			}
		case ShapeMatchingConstraint:
			if len(c.Indices) == 0 {
				errs = append(errs, fmt.Sprintf("constraint %d: shape matching constraint has no particles", i))
			}
			if len(c.RestOffsets) != len(c.Indices) {
				errs = append(errs, fmt.Sprintf("constraint %d: shape matching rest offsets length mismatch", i))
			}
		}
	}
	for key := range distanceEdges {
		if springEdges[key] {
			errs = append(errs, fmt.Sprintf("edge %v carries both a distance and a spring constraint", key))
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

// Package physics converts sampled spherical-harmonic surface geometry into
// a particle/constraint system and advances it with a PBD/XPBD time
// stepper. Particles and constraints reference each other exclusively by
// integer slice index — there is no pointer or object-graph identity here,
// which keeps the layout reallocation- and SIMD-friendly and lets a whole
// body be serialized as flat arrays.
package physics

import (
	"errors"

	"github.com/gazed/shphys/math/lin"
)

// Error taxonomy. Degenerate numerical inputs encountered mid-step (zero
// length edges, pole singularities, underflowing denominators) are never
// propagated as errors — they are skipped locally.
var (
	ErrInvalidTopology     = errors.New("physics: invalid topology")
	ErrEmptyPoints         = errors.New("physics: empty points")
	ErrMissingPhysicsState = errors.New("physics: missing physics state")
)

// Kind distinguishes a surface particle (carries a normal) from an
// internal one.
type Kind int

const (
	Surface Kind = iota
	Internal
)

// Model selects whether Distance constraints (PBD/XPBD) or Spring
// constraints (force-based) back the edges of a body. A single body uses
// exactly one model; ConstraintBuilder dispatches on it.
type Model int

const (
	PBD Model = iota
	Force
)

// EdgeTag classifies an edge for tearing eligibility and external
// visualization; it carries no simulation weight beyond that.
type EdgeTag int

const (
	Structural EdgeTag = iota
	Shear
	Bending
	SurfaceEdge
	InternalEdge
	SkinBone
)

// Particle is one mass point of the simulation. index is its own slot and
// must always equal the particle's position in the owning slice — that
// equality is the sole identity contract the rest of the package relies on.
type Particle struct {
	Position      lin.V3
	PrevPosition  lin.V3
	Velocity      lin.V3
	Force         lin.V3
	Mass          float64
	InvMass       float64
	Fixed         bool
	Kind          Kind
	Normal        lin.V3 // meaningful only when Kind == Surface
	HasRestOffset bool
	RestOffset    lin.V3 // offset from a shape-matching cluster's rest centroid
	Index         uint32

	// Sleeping/SleepTimer back the Solver's optional deactivation: a
	// sleeping particle is skipped by integration, projection, and
	// collision just like a fixed one, but keeps its own inv_mass. The
	// solver does not update a sleeping particle's Velocity, so it wakes
	// only when that Velocity is changed from outside the solver. Unused
	// unless SolverConfig.SleepEnabled is set.
	Sleeping   bool
	SleepTimer float64
}

// SetFixed pins the particle in place: InvMass becomes 0 and the solver
// will never move it.
func (p *Particle) SetFixed(fixed bool) {
	p.Fixed = fixed
	if fixed {
		p.InvMass = 0
	} else if p.Mass > 0 {
		p.InvMass = 1 / p.Mass
	}
}

// Constraint is a tagged variant over the five constraint kinds. Only the
// fields relevant to Kind are meaningful; ConstraintBuilder and Validator
// enforce that the right subset is populated for each Kind.
type Constraint struct {
	Kind ConstraintKind

	// Distance / Spring (two-point edge constraints)
	I, J       int
	RestLength float64
	EdgeTag    EdgeTag

	// Distance (XPBD)
	Compliance float64
	Lambda     float64

	// Spring (force-based)
	Stiffness float64
	Damping   float64

	// Bending (four-point dihedral)
	A, B, C, D int
	RestAngle  float64

	// LineBending (three-point)
	// reuses I, J, K (K aliases A) and RestAngle, Compliance

	// ShapeMatching
	Indices     []int
	RestOffsets []lin.V3

	// Torn marks a Structural/Shear Distance constraint as torn. The
	// Solver's tearing pass does not set it: it drops a torn constraint
	// from the slice, and a dropped constraint is never restored.
	Torn bool
}

// ConstraintKind discriminates the Constraint variants.
type ConstraintKind int

const (
	DistanceConstraint ConstraintKind = iota
	SpringConstraint
	BendingConstraint
	LineBendingConstraint
	ShapeMatchingConstraint
)

// K returns the third index of a LineBending constraint (i,j,k); j is the
// middle/bent vertex. Stored in I/J/A to avoid a sixth always-empty field
// on the common two-point constraints.
func (c *Constraint) K() int { return c.A }

// TopologyKind tells the bridge which ConstraintBuilder template to apply
// on rebuild.
type TopologyKind int

const (
	ClothTopology TopologyKind = iota
	LineTopology
	VolumeSurfaceTopology
	VolumeInternalTopology
	SkinBoneTopology
	Structural2DTopology
)

// Topology is the external, read-only description of how surface (and
// optionally internal) particles connect. Supplied by the caller; the
// bridge never mutates it.
type Topology struct {
	Kind            TopologyKind
	Edges           [][2]int
	Triangles       [][3]int
	InternalEdges   [][2]int
	EdgeToTriangles map[[2]int][2]int // missing side of a boundary edge is simply absent
	IsClosed        bool

	// LineVertices gives the ordered vertex chain for LineTopology, where
	// adjacency by index (unlike Edges) does not capture vertex order.
	LineVertices []int
}

// PhysicsView is the zero-copy borrow the Solver operates on for the
// duration of one step. It must reference the owning object's live
// buffers — the solver never copies Particles or Constraints.
type PhysicsView struct {
	Particles     []Particle
	Constraints   []Constraint
	SurfaceStart  int
	SurfaceCount  int
	InternalStart int
	InternalCount int
	Model         Model

	// OldPositions is scratch owned by the view, reused every step to
	// avoid a per-step allocation (see Solver.snapshot).
	OldPositions []lin.V3

	// Commit is called once per substep after the projection loop,
	// collision and tearing passes complete; it is the view's sole write-back point to
	// the owning object (e.g. publishing mean velocity).
	Commit func(meanVelocity lin.V3)
}

// MeanVelocity returns the mass-point average velocity of the view's
// particles, used by Solver to populate the Commit callback.
func (v *PhysicsView) MeanVelocity() lin.V3 {
	var sum lin.V3
	n := len(v.Particles)
	if n == 0 {
		return sum
	}
	for i := range v.Particles {
		sum.Add(&sum, &v.Particles[i].Velocity)
	}
	sum.Scale(&sum, 1/float64(n))
	return sum
}

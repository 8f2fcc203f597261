// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"fmt"
	"log/slog"

	"github.com/gazed/shphys/math/lin"
)

// Material describes the stiffness/damping/mass an object supplies to its
// edges. A uniform material applies Stiffness/Damping to every particle;
// otherwise At is sampled per surface/internal point.
type Material struct {
	Uniform   bool
	Stiffness float64
	Damping   float64

	// At returns stiffness/damping (and optionally a per-point mass
	// override, 0 meaning unset) for a point; used only when !Uniform.
	At func(p lin.V3) (stiffness, damping, mass float64)
}

// Supplier is everything PhysicsBridge needs from an external object to
// rebuild its PhysicsView. The bridge treats it as read-only except for
// SetMeanVelocity, which is the Solver's sole write-back channel, and the
// BridgeState returned by State, which Rebuild updates.
type Supplier interface {
	SurfacePoints() []lin.V3
	InternalPoints() []lin.V3 // nil if the body has none
	Topology() Topology
	Model() Model
	GlobalMass() float64
	Material() Material
	FixedIndices() []int
	SetMeanVelocity(v lin.V3)

	// State returns the object's persistent rebuild bookkeeping. A nil
	// return means the object has no physics state container to write
	// into, and Rebuild fails with ErrMissingPhysicsState.
	State() *BridgeState
}

// BridgeState is the reuse bookkeeping PhysicsBridge carries across
// rebuilds of one object, plus the live view it last produced. Callers own
// this struct — typically as a field alongside the rest of an object's
// physics data — and hand a pointer to it back through Supplier.State.
type BridgeState struct {
	view              *PhysicsView
	initialized       bool
	topologyUnchanged bool

	prevTotal, prevSurfaceCount, prevInternalCount int
	prevEdgeCount, prevTriCount                    int
}

// View returns the PhysicsView produced by the most recent Rebuild, or nil
// before the first one.
func (s *BridgeState) View() *PhysicsView { return s.view }

func initParticle(p *Particle, pos lin.V3, mass float64, kind Kind, index uint32) {
	p.Position = pos
	p.PrevPosition = pos
	p.Velocity = lin.V3{}
	p.Force = lin.V3{}
	p.Mass = mass
	if mass > 0 {
		p.InvMass = 1 / mass
	}
	p.Fixed = false
	p.Kind = kind
	p.Index = index
}

func materialArrays(mat Material, particles []Particle) MaterialArrays {
	n := len(particles)
	stiff := make([]float64, n)
	damp := make([]float64, n)
	if mat.Uniform || mat.At == nil {
		s := mat.Stiffness
		if s <= 0 {
			s = defaultStiffness
		}
		for i := range stiff {
			stiff[i] = s
			damp[i] = mat.Damping
		}
		return MaterialArrays{Stiffness: stiff, Damping: damp}
	}
	for i := range particles {
		s, d, _ := mat.At(particles[i].Position)
		if s <= 0 {
			s = defaultStiffness
		}
		stiff[i], damp[i] = s, d
	}
	return MaterialArrays{Stiffness: stiff, Damping: damp}
}

// Rebuild produces a fresh PhysicsView for supplier, reusing particle
// state (velocity/prev-position/fixed) and the constraint set from the
// previous rebuild when the spec's reuse conditions hold. force bypasses
// all reuse. Topology validation happens before any state is written, so
// a rejected rebuild leaves the supplier's existing view untouched.
func Rebuild(supplier Supplier, force bool) (*PhysicsView, error) {
	state := supplier.State()
	if state == nil {
		return nil, ErrMissingPhysicsState
	}

	topo := supplier.Topology()
	surfacePoints := supplier.SurfacePoints()
	internalPoints := supplier.InternalPoints()

	if len(surfacePoints) == 0 && len(internalPoints) == 0 {
		return nil, fmt.Errorf("%w: supplier has no surface or internal points", ErrEmptyPoints)
	}
	if len(topo.Edges) > 0 && len(surfacePoints) == 0 {
		return nil, fmt.Errorf("%w: edges present but surface points empty", ErrInvalidTopology)
	}
	if len(topo.InternalEdges) > 0 && len(internalPoints) == 0 {
		return nil, fmt.Errorf("%w: internal edges present but internal points missing", ErrInvalidTopology)
	}
	if len(topo.Triangles) > 0 && !topo.IsClosed {
		slog.Warn("physics: triangles present on a non-closed topology", "triangles", len(topo.Triangles))
	}

	surfaceCount, internalCount := len(surfacePoints), len(internalPoints)
	total := surfaceCount + internalCount

	model := supplier.Model()
	perParticleMass := 0.0
	if total > 0 {
		perParticleMass = supplier.GlobalMass() / float64(total)
	}

	reuseParticleState := !force && state.initialized &&
		total == state.prevTotal && surfaceCount == state.prevSurfaceCount &&
		internalCount == state.prevInternalCount && total > 0

	particles := make([]Particle, total)
	for i := 0; i < surfaceCount; i++ {
		initParticle(&particles[i], surfacePoints[i], perParticleMass, Surface, uint32(i))
	}
	for i := 0; i < internalCount; i++ {
		initParticle(&particles[surfaceCount+i], internalPoints[i], perParticleMass, Internal, uint32(surfaceCount+i))
	}
	if mat := supplier.Material(); !mat.Uniform && mat.At != nil {
		for i := range particles {
			if _, _, m := mat.At(particles[i].Position); m > 0 {
				particles[i].Mass, particles[i].InvMass = m, 1/m
			}
		}
	}
	if reuseParticleState {
		old := state.view.Particles
		for i := range particles {
			if i < len(old) {
				particles[i].Velocity = old[i].Velocity
				particles[i].PrevPosition = old[i].PrevPosition
				particles[i].SetFixed(old[i].Fixed)
			}
		}
	}

	for _, idx := range supplier.FixedIndices() {
		particles[idx].SetFixed(true)
	}

	edgeCount, triCount := len(topo.Edges), len(topo.Triangles)
	reuseConstraints := !force && state.initialized && state.topologyUnchanged &&
		edgeCount == state.prevEdgeCount && triCount == state.prevTriCount

	var constraints []Constraint
	if reuseConstraints {
		constraints = state.view.Constraints
	} else {
		constraints = buildConstraints(particles, topo, model, materialArrays(supplier.Material(), particles))
	}

	ComputeNormals(particles, surfaceCount, topo.Triangles)
	if internalCount > 0 {
		InitShapeMatchingData(particles, surfaceCount, internalCount)
	}

	view := &PhysicsView{
		Particles:     particles,
		Constraints:   constraints,
		SurfaceStart:  0,
		SurfaceCount:  surfaceCount,
		InternalStart: surfaceCount,
		InternalCount: internalCount,
		Model:         model,
		OldPositions:  make([]lin.V3, total),
		Commit: func(meanVelocity lin.V3) {
			supplier.SetMeanVelocity(meanVelocity)
		},
	}

	state.topologyUnchanged = state.initialized && !force &&
		edgeCount == state.prevEdgeCount && triCount == state.prevTriCount
	state.view = view
	state.prevTotal, state.prevSurfaceCount, state.prevInternalCount = total, surfaceCount, internalCount
	state.prevEdgeCount, state.prevTriCount = edgeCount, triCount
	state.initialized = true

	return view, nil
}

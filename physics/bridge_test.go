// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"errors"
	"testing"

	"github.com/gazed/shphys/math/lin"
)

type fakeSupplier struct {
	surface, internal []lin.V3
	topo              Topology
	model             Model
	mass              float64
	material          Material
	fixed             []int
	state             BridgeState
	lastMeanVelocity  lin.V3
}

func (f *fakeSupplier) SurfacePoints() []lin.V3   { return f.surface }
func (f *fakeSupplier) InternalPoints() []lin.V3  { return f.internal }
func (f *fakeSupplier) Topology() Topology        { return f.topo }
func (f *fakeSupplier) Model() Model              { return f.model }
func (f *fakeSupplier) GlobalMass() float64       { return f.mass }
func (f *fakeSupplier) Material() Material        { return f.material }
func (f *fakeSupplier) FixedIndices() []int       { return f.fixed }
func (f *fakeSupplier) SetMeanVelocity(v lin.V3)  { f.lastMeanVelocity = v }
func (f *fakeSupplier) State() *BridgeState       { return &f.state }

func stringSupplier() *fakeSupplier {
	return &fakeSupplier{
		surface: []lin.V3{{X: 0}, {X: 1}},
		topo: Topology{
			Kind:  LineTopology,
			Edges: [][2]int{{0, 1}},
			LineVertices: []int{0, 1},
		},
		model:    PBD,
		mass:     2,
		material: Material{Uniform: true, Stiffness: 100},
		fixed:    []int{0},
	}
}

func TestRebuildBuildsParticlesAndConstraints(t *testing.T) {
	sup := stringSupplier()
	view, err := Rebuild(sup, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(view.Particles) != 2 {
		t.Fatalf("got %d particles, want 2", len(view.Particles))
	}
	if !view.Particles[0].Fixed {
		t.Error("particle 0 should be fixed per FixedIndices")
	}
	if view.Particles[0].InvMass != 0 {
		t.Error("fixed particle must have InvMass == 0")
	}
	if len(view.Constraints) != 1 || view.Constraints[0].Kind != DistanceConstraint {
		t.Fatalf("got %+v, want a single distance constraint", view.Constraints)
	}
}

func TestRebuildRejectsInvalidTopology(t *testing.T) {
	sup := stringSupplier()
	sup.surface = nil // edges reference points that no longer exist
	// Keep the supplier non-empty so ErrEmptyPoints does not apply.
	sup.internal = []lin.V3{{X: 5}}
	if _, err := Rebuild(sup, false); !errors.Is(err, ErrInvalidTopology) {
		t.Fatalf("got %v, want ErrInvalidTopology", err)
	}
}

func TestRebuildRejectsEmptyPoints(t *testing.T) {
	sup := stringSupplier()
	sup.surface = nil
	sup.topo = Topology{Kind: LineTopology}
	if _, err := Rebuild(sup, false); !errors.Is(err, ErrEmptyPoints) {
		t.Errorf("got %v, want ErrEmptyPoints", err)
	}
}

func TestRebuildMissingStateErrors(t *testing.T) {
	noState := &fakeSupplierNilState{stringSupplier()}
	if _, err := Rebuild(noState, false); err != ErrMissingPhysicsState {
		t.Errorf("got %v, want ErrMissingPhysicsState", err)
	}
}

type fakeSupplierNilState struct{ *fakeSupplier }

func (f *fakeSupplierNilState) State() *BridgeState { return nil }

func TestRebuildReusesParticleVelocityWhenTopologyStable(t *testing.T) {
	sup := stringSupplier()
	view, err := Rebuild(sup, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	view.Particles[1].Velocity = lin.V3{X: 3, Y: 4}

	view2, err := Rebuild(sup, false)
	if err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	want := lin.V3{X: 3, Y: 4}
	if !view2.Particles[1].Velocity.Aeq(&want) {
		t.Errorf("reused velocity = %v, want %v", view2.Particles[1].Velocity, want)
	}
}

func TestRebuildCommitPublishesMeanVelocity(t *testing.T) {
	sup := stringSupplier()
	view, err := Rebuild(sup, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	view.Particles[0].Velocity = lin.V3{X: 2}
	view.Particles[1].Velocity = lin.V3{X: 4}
	view.Commit(view.MeanVelocity())
	want := lin.V3{X: 3}
	if !sup.lastMeanVelocity.Aeq(&want) {
		t.Errorf("published mean velocity = %v, want %v", sup.lastMeanVelocity, want)
	}
}

// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"math"

	"github.com/gazed/shphys/math/lin"
)

// Method selects the integration scheme. RK4 is accepted for forward
// compatibility but currently falls back to Euler — a fourth-order
// integrator buys little here once XPBD projection is correcting
// positions every substep anyway.
type Method int

const (
	Verlet Method = iota
	Euler
	RK4
)

// SolverConfig holds every tunable the Solver needs; it is plain data so a
// host can build one from code or load it from YAML (see config.go).
type SolverConfig struct {
	Gravity              lin.V3
	GravityEnabled       bool
	AirDamping           float64
	GroundY              float64
	GroundRestitution    float64
	TimeStep             float64
	Substeps             int
	ConstraintIterations int
	ConstraintRelaxation float64
	CollisionEnabled     bool
	SelfCollisionEnabled bool
	CollisionMargin      float64
	Method               Method

	// TearThresholdFactor multiplies a Distance constraint's rest length
	// to get the current length at which it tears. Zero means the 2.5
	// default applies.
	TearThresholdFactor float64

	// Sleeping is off by default; enabling it lets quiescent particles
	// stop being integrated/projected. See Particle.Sleeping.
	SleepEnabled         bool
	LinearSleepThreshold float64
	DeactivationTime     float64
}

// DefaultSolverConfig matches the component's stated defaults: gravity
// (0,-9.8,0), 1/60 timestep, 5 substeps, 10 projection iterations.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Gravity:              lin.V3{Y: -9.8},
		GravityEnabled:       true,
		AirDamping:           0.01,
		GroundY:              -10,
		GroundRestitution:    0.3,
		TimeStep:             1.0 / 60.0,
		Substeps:             5,
		ConstraintIterations: 10,
		ConstraintRelaxation: 1.0,
		CollisionEnabled:     true,
		CollisionMargin:      0.01,
		Method:               Verlet,
		TearThresholdFactor:  2.5,
		LinearSleepThreshold: 0.10,
		DeactivationTime:     1.0,
	}
}

// Solver is the time stepper: single-threaded and synchronous within a
// Step call. The projection loop is Gauss-Seidel — constraint i in an
// iteration sees the positional corrections constraints 0..i-1 already
// made during that same iteration — so the per-constraint loop must not
// be parallelized without accepting a different (Jacobi) convergence
// profile.
type Solver struct {
	cfg SolverConfig
}

// NewSolver builds a Solver from cfg.
func NewSolver(cfg SolverConfig) *Solver { return &Solver{cfg: cfg} }

// Config returns the solver's configuration.
func (s *Solver) Config() SolverConfig { return s.cfg }

func isAsleep(p *Particle) bool { return p.Fixed || p.Sleeping }

func effInvMass(p *Particle) float64 {
	if isAsleep(p) {
		return 0
	}
	return p.InvMass
}

// Step advances every view by dt, split into Config().Substeps equal
// substeps. This is a pure compute call: no I/O, no blocking, no
// cancellation — the only way to stop simulating is to stop calling Step.
func (s *Solver) Step(dt float64, views []*PhysicsView) {
	substeps := s.cfg.Substeps
	if substeps <= 0 {
		substeps = 1
	}
	subDt := dt / float64(substeps)
	for i := 0; i < substeps; i++ {
		s.substep(subDt, views)
	}
}

// substep runs the ten-stage pipeline once, each stage sweeping every view
// before the next stage starts; the object-pair collision hook (a no-op
// by default) is the only place information could cross between views.
func (s *Solver) substep(subDt float64, views []*PhysicsView) {
	for _, v := range views {
		s.applyForces(v)
	}
	for _, v := range views {
		s.integrate(subDt, v)
	}
	for _, v := range views {
		s.resetLambdas(v)
	}
	for _, v := range views {
		s.snapshot(v)
	}
	for _, v := range views {
		s.project(subDt, v)
	}
	for _, v := range views {
		s.updateVelocity(subDt, v)
		s.updateSleepState(subDt, v)
	}
	if s.cfg.CollisionEnabled {
		for _, v := range views {
			s.groundCollision(v)
		}
		for _, v := range views {
			if s.cfg.SelfCollisionEnabled && isCloth(v) {
				s.selfCollision(v)
			}
		}
		s.objectPairCollisions(views)
	}
	for _, v := range views {
		s.tear(v)
	}
	for _, v := range views {
		s.commit(v)
	}
}

// objectPairCollisions is the cross-object collision hook. It is a no-op
// by default: body-vs-body collision is outside this component's scope,
// which covers only ground-plane and brute-force self-collision.
func (s *Solver) objectPairCollisions(views []*PhysicsView) {}

func (s *Solver) applyForces(v *PhysicsView) {
	for i := range v.Particles {
		p := &v.Particles[i]
		p.Force = lin.V3{}
		if isAsleep(p) {
			continue
		}
		if s.cfg.GravityEnabled {
			var g lin.V3
			g.Scale(&s.cfg.Gravity, p.Mass)
			p.Force.Add(&p.Force, &g)
		}
	}
	for ci := range v.Constraints {
		c := &v.Constraints[ci]
		if c.Kind == SpringConstraint {
			s.applySpringForce(v, c)
		}
	}
	for i := range v.Particles {
		p := &v.Particles[i]
		if isAsleep(p) {
			continue
		}
		var drag lin.V3
		drag.Scale(&p.Velocity, s.cfg.AirDamping)
		p.Force.Sub(&p.Force, &drag)
	}
}

// applySpringForce applies F = k(L-L0) along the edge axis, plus damping
// c*(v_rel . n) along the same axis when Damping > 0.
func (s *Solver) applySpringForce(v *PhysicsView, c *Constraint) {
	pi, pj := &v.Particles[c.I], &v.Particles[c.J]
	var delta lin.V3
	delta.Sub(&pj.Position, &pi.Position)
	length := delta.Len()
	if length < 1e-6 {
		return
	}
	stiffness := c.Stiffness
	if stiffness <= 0 {
		stiffness = defaultStiffness
	}
	var n lin.V3
	n.Scale(&delta, 1/length)

	var force lin.V3
	force.Scale(&n, stiffness*(length-c.RestLength))

	if c.Damping > 0 {
		var relVel lin.V3
		relVel.Sub(&pj.Velocity, &pi.Velocity)
		var damp lin.V3
		damp.Scale(&n, c.Damping*relVel.Dot(&n))
		force.Add(&force, &damp)
	}

	if !isAsleep(pi) {
		pi.Force.Add(&pi.Force, &force)
	}
	if !isAsleep(pj) {
		pj.Force.Sub(&pj.Force, &force)
	}
}

func (s *Solver) integrate(subDt float64, v *PhysicsView) {
	switch s.cfg.Method {
	case Euler, RK4:
		for i := range v.Particles {
			p := &v.Particles[i]
			if isAsleep(p) {
				continue
			}
			var accel, dv, step lin.V3
			accel.Scale(&p.Force, p.InvMass)
			dv.Scale(&accel, subDt)
			p.Velocity.Add(&p.Velocity, &dv)
			p.PrevPosition = p.Position
			step.Scale(&p.Velocity, subDt)
			p.Position.Add(&p.Position, &step)
		}
	default: // Verlet
		for i := range v.Particles {
			p := &v.Particles[i]
			if isAsleep(p) {
				continue
			}
			var accelDt2, doubled, newPos lin.V3
			accelDt2.Scale(&p.Force, p.InvMass*subDt*subDt)
			doubled.Scale(&p.Position, 2)
			newPos.Sub(&doubled, &p.PrevPosition)
			newPos.Add(&newPos, &accelDt2)
			p.PrevPosition = p.Position
			p.Position = newPos
		}
	}
}

// resetLambdas zeroes every Distance constraint's lambda at substep start
// when it carries nonzero compliance — the PBD-compatible XPBD lifecycle:
// a full cross-frame-accumulating XPBD is this call removed, plus a
// single lambda=0 at constraint creation instead.
func (s *Solver) resetLambdas(v *PhysicsView) {
	for i := range v.Constraints {
		c := &v.Constraints[i]
		if c.Kind == DistanceConstraint && c.Compliance > 0 {
			c.Lambda = 0
		}
	}
}

func (s *Solver) snapshot(v *PhysicsView) {
	for i := range v.Particles {
		v.OldPositions[i] = v.Particles[i].Position
	}
}

// project runs the Gauss-Seidel constraint loop: ConstraintIterations
// sweeps, in list order, over every positional constraint kind. Spring
// constraints are force-based and are not touched here.
func (s *Solver) project(subDt float64, v *PhysicsView) {
	iterations := s.cfg.ConstraintIterations
	if iterations <= 0 {
		iterations = 1
	}
	for iter := 0; iter < iterations; iter++ {
		for ci := range v.Constraints {
			c := &v.Constraints[ci]
			switch c.Kind {
			case DistanceConstraint:
				s.solveDistance(v, c, subDt)
			case BendingConstraint:
				s.solveBending(v, c)
			case LineBendingConstraint:
				s.solveLineBending(v, c)
			case ShapeMatchingConstraint:
				s.solveShapeMatching(v, c)
			}
		}
	}
}

// solveDistance is the XPBD positional correction. Per the formula used
// here, delta-lambda = -C/denom carries no -alpha*lambda term; lambda is
// tracked purely as a bookkeeping accumulator reset each substep rather
// than fed back into the correction.
func (s *Solver) solveDistance(v *PhysicsView, c *Constraint, subDt float64) {
	pi, pj := &v.Particles[c.I], &v.Particles[c.J]
	var delta lin.V3
	delta.Sub(&pj.Position, &pi.Position)
	length := delta.Len()
	if length < 1e-6 {
		return
	}
	cErr := length - c.RestLength

	alpha := 0.0
	if c.Compliance > 0 {
		alpha = c.Compliance / (subDt * subDt)
	}
	wi, wj := effInvMass(pi), effInvMass(pj)
	denom := wi + wj + alpha
	if denom < 1e-10 {
		return
	}
	deltaLambda := -cErr / denom
	c.Lambda += deltaLambda

	var n lin.V3
	n.Scale(&delta, 1/length)

	relaxation := s.cfg.ConstraintRelaxation
	if c.Compliance > 0 {
		relaxation = 1.0
	}
	if wi > 0 {
		var corr lin.V3
		corr.Scale(&n, deltaLambda*wi*relaxation)
		pi.Position.Sub(&pi.Position, &corr)
	}
	if wj > 0 {
		var corr lin.V3
		corr.Scale(&n, deltaLambda*wj*relaxation)
		pj.Position.Add(&pj.Position, &corr)
	}
}

// solveBending moves the two corners opposite the shared edge along their
// own face normals, weighted by inverse mass — an approximation of the
// true dihedral gradient, not a gradient-exact formulation.
func (s *Solver) solveBending(v *PhysicsView, c *Constraint) {
	a, b, cc, d := &v.Particles[c.A], &v.Particles[c.B], &v.Particles[c.C], &v.Particles[c.D]
	var ab, ac, ad, n1, n2 lin.V3
	ab.Sub(&b.Position, &a.Position)
	ac.Sub(&cc.Position, &a.Position)
	ad.Sub(&d.Position, &a.Position)
	n1.Cross(&ab, &ac)
	n2.Cross(&ab, &ad)
	len1, len2 := n1.Len(), n2.Len()
	if len1 < 1e-10 || len2 < 1e-10 {
		return
	}
	n1.Scale(&n1, 1/len1)
	n2.Scale(&n2, 1/len2)

	currentAngle := math.Acos(lin.Clamp(n1.Dot(&n2), -1, 1))
	cErr := currentAngle - c.RestAngle
	if math.Abs(cErr*c.Compliance*0.1) < 1e-6 {
		return
	}
	wc, wd := effInvMass(cc), effInvMass(d)
	wSum := wc + wd
	if wSum < 1e-10 {
		return
	}
	correction := -cErr * c.Compliance * 0.1
	if wc > 0 {
		var move lin.V3
		move.Scale(&n1, correction*wc/wSum)
		cc.Position.Add(&cc.Position, &move)
	}
	if wd > 0 {
		var move lin.V3
		move.Scale(&n2, -correction*wd/wSum)
		d.Position.Add(&d.Position, &move)
	}
}

// solveLineBending pushes the middle vertex of the (i,j,k) triple along
// the bend-plane normal, with half-magnitude opposite corrections on the
// end points.
func (s *Solver) solveLineBending(v *PhysicsView, c *Constraint) {
	pi, pj, pk := &v.Particles[c.I], &v.Particles[c.J], &v.Particles[c.K()]
	var v1, v2, axis lin.V3
	v1.Sub(&pj.Position, &pi.Position)
	v2.Sub(&pk.Position, &pj.Position)
	l1, l2 := v1.Len(), v2.Len()
	if l1 < 1e-6 || l2 < 1e-6 {
		return
	}
	currentAngle := math.Acos(lin.Clamp(v1.Dot(&v2)/(l1*l2), -1, 1))
	cErr := currentAngle - c.RestAngle

	axis.Cross(&v1, &v2)
	if axis.Len() < 1e-10 {
		return
	}
	axis.Unit()

	wi, wj, wk := effInvMass(pi), effInvMass(pj), effInvMass(pk)
	wSum := wi + wj + wk
	if wSum < 1e-10 {
		return
	}
	correction := -cErr * c.Compliance * 0.5
	if wj > 0 {
		var move lin.V3
		move.Scale(&axis, correction*wj/wSum)
		pj.Position.Add(&pj.Position, &move)
	}
	if wi > 0 {
		var move lin.V3
		move.Scale(&axis, -0.5*correction*wi/wSum)
		pi.Position.Add(&pi.Position, &move)
	}
	if wk > 0 {
		var move lin.V3
		move.Scale(&axis, -0.5*correction*wk/wSum)
		pk.Position.Add(&pk.Position, &move)
	}
}

// solveShapeMatching restores a cluster toward its rest offsets around
// the cluster's current mass-weighted centroid. This is a translation-only
// fit: extracting the best rigid rotation (polar decomposition over the
// cluster's covariance) is left out, since no shape-matching solve
// algorithm is specified beyond the rest-offset bookkeeping in
// ConstraintBuilder.
func (s *Solver) solveShapeMatching(v *PhysicsView, c *Constraint) {
	if len(c.Indices) == 0 {
		return
	}
	totalMass := 0.0
	var centroid lin.V3
	for _, idx := range c.Indices {
		p := &v.Particles[idx]
		totalMass += p.Mass
		var weighted lin.V3
		weighted.Scale(&p.Position, p.Mass)
		centroid.Add(&centroid, &weighted)
	}
	if totalMass <= 0 {
		return
	}
	centroid.Scale(&centroid, 1/totalMass)

	stiffness := c.Stiffness
	if stiffness <= 0 {
		if c.Compliance > 0 {
			stiffness = 1 / c.Compliance
		} else {
			stiffness = 1
		}
	}
	alpha := lin.Clamp(stiffness, 0, 1)
	for k, idx := range c.Indices {
		p := &v.Particles[idx]
		if isAsleep(p) {
			continue
		}
		var target, diff lin.V3
		target.Add(&centroid, &c.RestOffsets[k])
		diff.Sub(&target, &p.Position)
		diff.Scale(&diff, alpha)
		p.Position.Add(&p.Position, &diff)
	}
}

// updateVelocity is the sole place velocity is set after integration:
// velocity_i = (position_i - old_positions_i) / subDt.
func (s *Solver) updateVelocity(subDt float64, v *PhysicsView) {
	for i := range v.Particles {
		p := &v.Particles[i]
		if isAsleep(p) {
			continue
		}
		var diff lin.V3
		diff.Sub(&p.Position, &v.OldPositions[i])
		diff.Scale(&diff, 1/subDt)
		p.Velocity = diff
	}
}

// updateSleepState tracks per-particle quiescence when SleepEnabled. This
// is a per-particle simplification of island-based deactivation — grouping
// constraint-connected particles so a whole cluster sleeps or wakes as a
// unit is future work.
func (s *Solver) updateSleepState(subDt float64, v *PhysicsView) {
	if !s.cfg.SleepEnabled {
		return
	}
	for i := range v.Particles {
		p := &v.Particles[i]
		if p.Fixed {
			continue
		}
		if p.Velocity.Len() < s.cfg.LinearSleepThreshold {
			p.SleepTimer += subDt
			if p.SleepTimer >= s.cfg.DeactivationTime {
				p.Sleeping = true
			}
		} else {
			p.SleepTimer = 0
			p.Sleeping = false
		}
	}
}

func (s *Solver) groundCollision(v *PhysicsView) {
	for i := range v.Particles {
		p := &v.Particles[i]
		if isAsleep(p) {
			continue
		}
		if p.Position.Y < s.cfg.GroundY {
			p.Position.Y = s.cfg.GroundY
			p.Velocity.Y = -p.Velocity.Y * s.cfg.GroundRestitution
			p.Velocity.X *= 0.95
			p.Velocity.Z *= 0.95
		}
	}
}

// isCloth is the heuristic gate for enabling the O(n^2) self-collision
// pass: more than 50 particles and more than 100 Distance constraints.
func isCloth(v *PhysicsView) bool {
	distCount := 0
	for i := range v.Constraints {
		if v.Constraints[i].Kind == DistanceConstraint {
			distCount++
		}
	}
	return len(v.Particles) > 50 && distCount > 100
}

// selfCollision is the brute-force O(n^2) pass: acceptable only for small
// cloths — a spatial hash or BVH can replace it later without changing
// this contract.
func (s *Solver) selfCollision(v *PhysicsView) {
	threshold := 2 * s.cfg.CollisionMargin
	particles := v.Particles
	for i := range particles {
		pi := &particles[i]
		if isAsleep(pi) {
			continue
		}
		for j := i + 1; j < len(particles); j++ {
			pj := &particles[j]
			var delta lin.V3
			delta.Sub(&pj.Position, &pi.Position)
			dist := delta.Len()
			if dist >= threshold || dist < 1e-10 {
				continue
			}
			var n lin.V3
			n.Scale(&delta, 1/dist)
			push := (threshold - dist) / 2
			if !isAsleep(pi) {
				var move lin.V3
				move.Scale(&n, -push)
				pi.Position.Add(&pi.Position, &move)
			}
			if !isAsleep(pj) {
				var move lin.V3
				move.Scale(&n, push)
				pj.Position.Add(&pj.Position, &move)
			}
		}
	}
}

// tear removes Structural/Shear Distance constraints whose current length
// exceeds rest_length*TearThresholdFactor, walking back-to-front so
// in-place removal never skips an element. A removed constraint never
// reappears.
func (s *Solver) tear(v *PhysicsView) {
	factor := s.cfg.TearThresholdFactor
	if factor <= 0 {
		factor = 2.5
	}
	for i := len(v.Constraints) - 1; i >= 0; i-- {
		c := &v.Constraints[i]
		if c.Kind != DistanceConstraint || (c.EdgeTag != Structural && c.EdgeTag != Shear) {
			continue
		}
		pi, pj := &v.Particles[c.I], &v.Particles[c.J]
		if pi.Position.Dist(&pj.Position) > c.RestLength*factor {
			v.Constraints = append(v.Constraints[:i], v.Constraints[i+1:]...)
		}
	}
}

func (s *Solver) commit(v *PhysicsView) {
	if v.Commit != nil {
		v.Commit(v.MeanVelocity())
	}
}

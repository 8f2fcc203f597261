// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// LoadSolverConfig reads a yaml-encoded SolverConfig, starting from
// DefaultSolverConfig and overwriting whatever fields the document sets.
// The yaml is string based for the method name so config files stay
// readable without the package's internal enum values.
func LoadSolverConfig(data []byte) (SolverConfig, error) {
	cfg := DefaultSolverConfig()
	var doc solverConfigDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("LoadSolverConfig: yaml %w", err)
	}
	doc.apply(&cfg)
	return cfg, nil
}

var solverMethods = map[string]Method{
	"verlet": Verlet,
	"euler":  Euler,
	"rk4":    RK4,
}

// solverConfigDoc mirrors SolverConfig field-for-field but with yaml tags
// and pointer/string substitutes for values that need an "unset" state
// (zero values like GravityEnabled=false are legitimate settings,
// so plain value fields would not distinguish "absent from yaml" from
// "explicitly set to zero").
type solverConfigDoc struct {
	Gravity              *vec3Doc `yaml:"gravity"`
	GravityEnabled       *bool    `yaml:"gravity_enabled"`
	AirDamping           *float64 `yaml:"air_damping"`
	GroundY              *float64 `yaml:"ground_y"`
	GroundRestitution    *float64 `yaml:"ground_restitution"`
	TimeStep             *float64 `yaml:"time_step"`
	Substeps             *int     `yaml:"substeps"`
	ConstraintIterations *int     `yaml:"constraint_iterations"`
	ConstraintRelaxation *float64 `yaml:"constraint_relaxation"`
	CollisionEnabled     *bool    `yaml:"collision_enabled"`
	SelfCollisionEnabled *bool    `yaml:"self_collision_enabled"`
	CollisionMargin      *float64 `yaml:"collision_margin"`
	Method               string   `yaml:"method"`
	TearThresholdFactor  *float64 `yaml:"tear_threshold_factor"`
	SleepEnabled         *bool    `yaml:"sleep_enabled"`
	LinearSleepThreshold *float64 `yaml:"linear_sleep_threshold"`
	DeactivationTime     *float64 `yaml:"deactivation_time"`
}

type vec3Doc struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (d *solverConfigDoc) apply(cfg *SolverConfig) {
	if d.Gravity != nil {
		cfg.Gravity.X, cfg.Gravity.Y, cfg.Gravity.Z = d.Gravity.X, d.Gravity.Y, d.Gravity.Z
	}
	if d.GravityEnabled != nil {
		cfg.GravityEnabled = *d.GravityEnabled
	}
	if d.AirDamping != nil {
		cfg.AirDamping = *d.AirDamping
	}
	if d.GroundY != nil {
		cfg.GroundY = *d.GroundY
	}
	if d.GroundRestitution != nil {
		cfg.GroundRestitution = *d.GroundRestitution
	}
	if d.TimeStep != nil {
		cfg.TimeStep = *d.TimeStep
	}
	if d.Substeps != nil {
		cfg.Substeps = *d.Substeps
	}
	if d.ConstraintIterations != nil {
		cfg.ConstraintIterations = *d.ConstraintIterations
	}
	if d.ConstraintRelaxation != nil {
		cfg.ConstraintRelaxation = *d.ConstraintRelaxation
	}
	if d.CollisionEnabled != nil {
		cfg.CollisionEnabled = *d.CollisionEnabled
	}
	if d.SelfCollisionEnabled != nil {
		cfg.SelfCollisionEnabled = *d.SelfCollisionEnabled
	}
	if d.CollisionMargin != nil {
		cfg.CollisionMargin = *d.CollisionMargin
	}
	if d.Method != "" {
		if m, ok := solverMethods[d.Method]; ok {
			cfg.Method = m
		}
	}
	if d.TearThresholdFactor != nil {
		cfg.TearThresholdFactor = *d.TearThresholdFactor
	}
	if d.SleepEnabled != nil {
		cfg.SleepEnabled = *d.SleepEnabled
	}
	if d.LinearSleepThreshold != nil {
		cfg.LinearSleepThreshold = *d.LinearSleepThreshold
	}
	if d.DeactivationTime != nil {
		cfg.DeactivationTime = *d.DeactivationTime
	}
}

// MaterialPreset is a named, yaml-loadable stiffness/damping pair for
// ConstraintBuilder's MaterialArrays — a config-file alternative to
// constructing a Material in code.
type MaterialPreset struct {
	Name      string  `yaml:"name"`
	Stiffness float64 `yaml:"stiffness"`
	Damping   float64 `yaml:"damping"`
}

// LoadMaterialPresets reads a yaml list of named material presets.
func LoadMaterialPresets(data []byte) ([]MaterialPreset, error) {
	var presets []MaterialPreset
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("LoadMaterialPresets: yaml %w", err)
	}
	return presets, nil
}

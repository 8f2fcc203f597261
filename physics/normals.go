// Copyright © 2024 Galvanized Logic Inc.
// Use is governed by a BSD-style license found in the LICENSE file.

package physics

import "github.com/gazed/shphys/math/lin"

// ComputeNormals recomputes every surface particle's area-weighted vertex
// normal from triangles, zeroing all surface normals first so it is safe
// to call on every rebuild. Triangles referencing an internal particle
// (index >= surfaceCount) are skipped.
func ComputeNormals(particles []Particle, surfaceCount int, triangles [][3]int) {
	for i := 0; i < surfaceCount; i++ {
		particles[i].Normal = lin.V3{}
	}
	for _, tri := range triangles {
		i0, i1, i2 := tri[0], tri[1], tri[2]
		if i0 >= surfaceCount || i1 >= surfaceCount || i2 >= surfaceCount {
			continue
		}
		p0, p1, p2 := particles[i0].Position, particles[i1].Position, particles[i2].Position
		var e1, e2, n lin.V3
		e1.Sub(&p1, &p0)
		e2.Sub(&p2, &p0)
		n.Cross(&e1, &e2)
		particles[i0].Normal.Add(&particles[i0].Normal, &n)
		particles[i1].Normal.Add(&particles[i1].Normal, &n)
		particles[i2].Normal.Add(&particles[i2].Normal, &n)
	}
	for i := 0; i < surfaceCount; i++ {
		if particles[i].Normal.Len() < 1e-10 {
			particles[i].Normal = lin.V3{X: 0, Y: 1, Z: 0}
			continue
		}
		particles[i].Normal.Unit()
	}
}

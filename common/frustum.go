package common

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustum extracts frustum planes from a combined projection * view matrix
// using the Gribb/Hartmann method. The near plane assumes a [0, 1] clip depth range.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the view-projection matrix
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	var f Frustum
	r0, r1, r2, r3 := viewProj.Rows()

	f.Planes[FrustumLeft] = planeFromRow(r3.Add(r0))
	f.Planes[FrustumRight] = planeFromRow(r3.Sub(r0))
	f.Planes[FrustumBottom] = planeFromRow(r3.Add(r1))
	f.Planes[FrustumTop] = planeFromRow(r3.Sub(r1))
	f.Planes[FrustumNear] = planeFromRow(r2)
	f.Planes[FrustumFar] = planeFromRow(r3.Sub(r2))

	return f
}

// planeFromRow builds a normalized plane from a combined matrix row.
func planeFromRow(r mgl32.Vec4) Plane {
	p := Plane{Normal: r.Vec3(), Distance: r[3]}
	if l := p.Normal.Len(); l > 0 {
		p.Normal = p.Normal.Mul(1 / l)
		p.Distance /= l
	}
	return p
}

// IntersectsBox reports whether the box is at least partially inside the frustum.
// Conservative: may return true for boxes just outside a frustum corner.
func (f Frustum) IntersectsBox(b BoundingBox) bool {
	for _, p := range f.Planes {
		// positive vertex: the corner furthest along the plane normal
		var v mgl32.Vec3
		for i := range 3 {
			if p.Normal[i] >= 0 {
				v[i] = b.Max[i]
			} else {
				v[i] = b.Min[i]
			}
		}
		if p.Normal.Dot(v)+p.Distance < 0 {
			return false
		}
	}
	return true
}

// IntersectsSphere reports whether the sphere is at least partially inside the frustum.
func (f Frustum) IntersectsSphere(s BoundingSphere) bool {
	for _, p := range f.Planes {
		if p.Normal.Dot(s.Center)+p.Distance < -s.Radius {
			return false
		}
	}
	return true
}

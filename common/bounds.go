package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// BoundingBox is an axis-aligned box in world space.
type BoundingBox struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewBoundingBox builds a box from two corners, sorting components so Min <= Max.
//
// Parameters:
//   - a: the first corner
//   - b: the second corner
//
// Returns:
//   - BoundingBox: the box spanning both corners
func NewBoundingBox(a, b mgl32.Vec3) BoundingBox {
	return BoundingBox{
		Min: mgl32.Vec3{math32.Min(a[0], b[0]), math32.Min(a[1], b[1]), math32.Min(a[2], b[2])},
		Max: mgl32.Vec3{math32.Max(a[0], b[0]), math32.Max(a[1], b[1]), math32.Max(a[2], b[2])},
	}
}

// BoxFromCenter builds a box from a center point and half extents.
//
// Parameters:
//   - center: the box center
//   - extents: half size on each axis
//
// Returns:
//   - BoundingBox: the centered box
func BoxFromCenter(center, extents mgl32.Vec3) BoundingBox {
	return BoundingBox{Min: center.Sub(extents), Max: center.Add(extents)}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the full size of the box on each axis.
func (b BoundingBox) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Extents returns half the size of the box on each axis.
func (b BoundingBox) Extents() mgl32.Vec3 {
	return b.Size().Mul(0.5)
}

// IsEmpty reports whether the box has no volume on at least one axis.
func (b BoundingBox) IsEmpty() bool {
	return b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] || b.Max[2] <= b.Min[2]
}

// Intersects reports whether two boxes overlap or touch.
//
// Parameters:
//   - o: the other box
//
// Returns:
//   - bool: true if the boxes share at least one point
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1] &&
		b.Min[2] <= o.Max[2] && b.Max[2] >= o.Min[2]
}

// Overlaps reports whether two boxes share a region of positive volume.
// Boxes that only touch along a face, edge or corner do not overlap.
//
// Parameters:
//   - o: the other box
//
// Returns:
//   - bool: true if the interiors intersect
func (b BoundingBox) Overlaps(o BoundingBox) bool {
	return b.Min[0] < o.Max[0] && b.Max[0] > o.Min[0] &&
		b.Min[1] < o.Max[1] && b.Max[1] > o.Min[1] &&
		b.Min[2] < o.Max[2] && b.Max[2] > o.Min[2]
}

// Contains reports whether the point lies inside or on the box.
func (b BoundingBox) Contains(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Merge returns the smallest box containing both boxes.
func (b BoundingBox) Merge(o BoundingBox) BoundingBox {
	return BoundingBox{
		Min: mgl32.Vec3{math32.Min(b.Min[0], o.Min[0]), math32.Min(b.Min[1], o.Min[1]), math32.Min(b.Min[2], o.Min[2])},
		Max: mgl32.Vec3{math32.Max(b.Max[0], o.Max[0]), math32.Max(b.Max[1], o.Max[1]), math32.Max(b.Max[2], o.Max[2])},
	}
}

// Expand grows the box by margin on every side. Negative margins shrink it.
func (b BoundingBox) Expand(margin float32) BoundingBox {
	m := mgl32.Vec3{margin, margin, margin}
	return BoundingBox{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Clamp restricts the box to lie within limits. The result may be empty when
// the boxes do not intersect.
//
// Parameters:
//   - limits: the box to clamp against
//
// Returns:
//   - BoundingBox: the clamped box
func (b BoundingBox) Clamp(limits BoundingBox) BoundingBox {
	var out BoundingBox
	for i := range 3 {
		out.Min[i] = mgl32.Clamp(b.Min[i], limits.Min[i], limits.Max[i])
		out.Max[i] = mgl32.Clamp(b.Max[i], limits.Min[i], limits.Max[i])
	}
	return out
}

// RayExit returns the distance along a ray at which it leaves the box.
// The ray origin is expected to lie inside the box; ok is false when the
// direction is degenerate or the exit lies behind the origin.
//
// Parameters:
//   - origin: ray origin
//   - dir: normalized ray direction
//
// Returns:
//   - float32: distance to the exit point
//   - bool: true if an exit point in front of the origin exists
func (b BoundingBox) RayExit(origin, dir mgl32.Vec3) (float32, bool) {
	tExit := float32(math32.MaxFloat32)
	hit := false
	for i := range 3 {
		if math32.Abs(dir[i]) < 1e-8 {
			continue
		}
		inv := 1 / dir[i]
		t0 := (b.Min[i] - origin[i]) * inv
		t1 := (b.Max[i] - origin[i]) * inv
		far := math32.Max(t0, t1)
		if far < tExit {
			tExit = far
			hit = true
		}
	}
	if !hit || tExit < 0 {
		return 0, false
	}
	return tExit, true
}

// Corners returns the eight corner points of the box.
func (b BoundingBox) Corners() [8]mgl32.Vec3 {
	var c [8]mgl32.Vec3
	for i := range 8 {
		c[i] = mgl32.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			c[i][0] = b.Max[0]
		}
		if i&2 != 0 {
			c[i][1] = b.Max[1]
		}
		if i&4 != 0 {
			c[i][2] = b.Max[2]
		}
	}
	return c
}

// Transform returns the axis-aligned box enclosing this box after the transform.
func (b BoundingBox) Transform(m mgl32.Mat4) BoundingBox {
	corners := b.Corners()
	p := mgl32.TransformCoordinate(corners[0], m)
	out := BoundingBox{Min: p, Max: p}
	for _, c := range corners[1:] {
		p = mgl32.TransformCoordinate(c, m)
		out = out.Merge(BoundingBox{Min: p, Max: p})
	}
	return out
}

// Sphere returns the sphere enclosing the box.
func (b BoundingBox) Sphere() BoundingSphere {
	return BoundingSphere{Center: b.Center(), Radius: b.Extents().Len()}
}

// BoundingSphere is a world-space sphere. A negative radius is empty and
// intersects nothing.
type BoundingSphere struct {
	Center mgl32.Vec3
	Radius float32
}

// IntersectsBox reports whether the sphere touches the box.
func (s BoundingSphere) IntersectsBox(b BoundingBox) bool {
	if s.Radius < 0 {
		return false
	}
	var d float32
	for i := range 3 {
		v := s.Center[i]
		if v < b.Min[i] {
			d += (b.Min[i] - v) * (b.Min[i] - v)
		} else if v > b.Max[i] {
			d += (v - b.Max[i]) * (v - b.Max[i])
		}
	}
	return d <= s.Radius*s.Radius
}

// IntersectsSphere reports whether two spheres touch.
func (s BoundingSphere) IntersectsSphere(o BoundingSphere) bool {
	if s.Radius < 0 || o.Radius < 0 {
		return false
	}
	r := s.Radius + o.Radius
	return s.Center.Sub(o.Center).LenSqr() <= r*r
}

// Box returns the axis-aligned box enclosing the sphere.
func (s BoundingSphere) Box() BoundingBox {
	return BoxFromCenter(s.Center, mgl32.Vec3{s.Radius, s.Radius, s.Radius})
}

// OrientedBox is a box with an arbitrary rigid transform. Transform maps the
// unit-less local frame (centered at the origin) to world space and must not
// contain scale; size lives in Extents.
type OrientedBox struct {
	Transform mgl32.Mat4
	Extents   mgl32.Vec3
}

// OrientedFromBox wraps a local-space box and a local-to-world transform. Any
// scale in the transform is folded into the extents.
//
// Parameters:
//   - local: the box in local space
//   - localToWorld: the object transform
//
// Returns:
//   - OrientedBox: the world-space oriented box
func OrientedFromBox(local BoundingBox, localToWorld mgl32.Mat4) OrientedBox {
	sx, sy, sz := mgl32.Extract3DScale(localToWorld)
	scale := mgl32.Vec3{sx, sy, sz}
	rot := mgl32.Ident4()
	for c := range 3 {
		axis := localToWorld.Col(c).Vec3()
		if scale[c] > 0 {
			axis = axis.Mul(1 / scale[c])
		}
		rot.SetCol(c, axis.Vec4(0))
	}
	center := mgl32.TransformCoordinate(local.Center(), localToWorld)
	rot.SetCol(3, center.Vec4(1))
	ext := local.Extents()
	return OrientedBox{
		Transform: rot,
		Extents:   mgl32.Vec3{ext[0] * scale[0], ext[1] * scale[1], ext[2] * scale[2]},
	}
}

// Center returns the world-space center of the box.
func (o OrientedBox) Center() mgl32.Vec3 {
	return o.Transform.Col(3).Vec3()
}

// Axis returns the normalized world-space direction of local axis i (0..2).
func (o OrientedBox) Axis(i int) mgl32.Vec3 {
	return o.Transform.Col(i).Vec3()
}

// Bounds returns the axis-aligned box enclosing the oriented box.
func (o OrientedBox) Bounds() BoundingBox {
	return BoxFromCenter(mgl32.Vec3{}, o.Extents).Transform(o.Transform)
}

// Sphere returns the sphere enclosing the oriented box.
func (o OrientedBox) Sphere() BoundingSphere {
	return BoundingSphere{Center: o.Center(), Radius: o.Extents.Len()}
}

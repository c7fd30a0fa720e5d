// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"math"

	"github.com/westphae/quaternion"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// Orientation quaternions map device-frame vectors into the world frame:
// v_world = q · v_device · q*.

func identityQuat() quaternion.Quaternion {
	return quaternion.Quaternion{W: 1}
}

func quatIsFinite(q quaternion.Quaternion) bool {
	return isFinite(q.W) && isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z)
}

// normalizeQuat rescales q to unit norm. ok is false if q cannot be normalised.
func normalizeQuat(q quaternion.Quaternion) (quaternion.Quaternion, bool) {
	n := quaternion.Norm(q)
	if n < minVectorLength || !isFinite(n) {
		return q, false
	}
	return quaternion.Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}, true
}

// angleAxis builds the rotation of angle radians about a unit axis.
func angleAxis(angle float64, axis Vec3) quaternion.Quaternion {
	s, c := math.Sincos(angle / 2)
	return quaternion.Quaternion{W: c, X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s}
}

// rotationFromRate returns the incremental body rotation for an angular
// velocity in deg/s held for dt seconds.
func rotationFromRate(rate Vec3, dt float64) quaternion.Quaternion {
	speed := rate.Length() * degToRad
	angle := speed * dt
	if speed < minVectorLength {
		return identityQuat()
	}
	if angle < 1e-6 {
		// first-order term; exact enough and avoids dividing by a tiny speed
		half := rate.Scale(degToRad * dt / 2)
		q, _ := normalizeQuat(quaternion.Quaternion{W: 1, X: half.X, Y: half.Y, Z: half.Z})
		return q
	}
	return angleAxis(angle, rate.Scale(degToRad/speed))
}

// rotate applies q to v.
func rotate(q quaternion.Quaternion, v Vec3) Vec3 {
	r := quaternion.Prod(q, quaternion.Quaternion{X: v.X, Y: v.Y, Z: v.Z}, quaternion.Conj(q))
	return Vec3{r.X, r.Y, r.Z}
}

// shortestArc returns the rotation taking unit vector from onto unit vector to.
func shortestArc(from, to Vec3) quaternion.Quaternion {
	d := clamp(from.Dot(to), -1, 1)
	if d > 1-1e-12 {
		return identityQuat()
	}
	if d < -1+1e-12 {
		// opposite vectors: any perpendicular axis works
		axis, ok := from.Cross(Vec3{X: 1}).Normalized()
		if !ok {
			axis, _ = from.Cross(Vec3{Y: 1}).Normalized()
		}
		return angleAxis(math.Pi, axis)
	}
	axis, ok := from.Cross(to).Normalized()
	if !ok {
		return identityQuat()
	}
	return angleAxis(math.Acos(d), axis)
}

// Pose is the orientation expressed as Euler angles in degrees.
// Yaw is positive turning left, pitch positive nose up, roll positive
// tilting right. Yaw has no absolute reference.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// PoseFromQuaternion converts an orientation into roll/pitch/yaw.
func PoseFromQuaternion(q quaternion.Quaternion) Pose {
	fwd := rotate(q, Vec3{Y: 1})
	up := rotate(q, Vec3{Z: 1})
	right := rotate(q, Vec3{X: 1})

	return Pose{
		Roll:  math.Atan2(-right.Z, up.Z) * radToDeg,
		Pitch: math.Asin(clamp(fwd.Z, -1, 1)) * radToDeg,
		Yaw:   math.Atan2(-fwd.X, fwd.Y) * radToDeg,
	}
}

package gamemath

import "math"

// Rise of a ramp: which way its surface climbs along x.
const (
	RiseFlat  int8 = 0
	RiseRight int8 = 1
	RiseLeft  int8 = -1
)

// SlopeSurfaceY returns the y of a ramp's surface under centerX, clamped to
// the ramp's extent.
func SlopeSurfaceY(centerX, rampX, rampY, rampW, rampH float64, rise int8) float64 {
	t := math.Max(0, math.Min(centerX-rampX, rampW)) / rampW
	switch rise {
	case RiseRight:
		return rampY + rampH*(1-t)
	case RiseLeft:
		return rampY + rampH*t
	}
	return rampY
}

// SnapToSlopeY returns the y that puts a box of height h on surfaceY.
func SnapToSlopeY(h, surfaceY, offset float64) float64 {
	return surfaceY - h + offset
}

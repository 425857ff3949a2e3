package gamemath

import "math"

// AimAngle returns the firing angle in radians. An explicit aim wins;
// without one the shot follows facing.
func AimAngle(facing int8, aim *float64) float64 {
	if aim != nil {
		return *aim
	}
	if facing < 0 {
		return math.Pi
	}
	return 0
}

// Heading returns the unit vector for angle.
func Heading(angle float64) (x, y float64) {
	return math.Cos(angle), math.Sin(angle)
}

// NormalizeAngle wraps angle into (-pi, pi]. Non-finite angles become 0.
func NormalizeAngle(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	a := math.Mod(angle+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

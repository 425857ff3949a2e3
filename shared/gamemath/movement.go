// Package gamemath holds the small pure functions shared by the movement
// code on every peer. Keeping them free of engine types is what lets the
// server and the clients step players identically.
package gamemath

import "math"

// ApplyFriction moves speed toward zero by friction, stopping at zero.
func ApplyFriction(speed, friction float64) float64 {
	switch {
	case speed > friction:
		return speed - friction
	case speed < -friction:
		return speed + friction
	}
	return 0
}

// ClampSpeed limits speed to [-limit, limit].
func ClampSpeed(speed, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, speed))
}

// Accelerate adds dir*accel to speed and clamps the result.
func Accelerate(speed float64, dir int8, accel, limit float64) float64 {
	return ClampSpeed(speed+float64(dir)*accel, limit)
}

// SignOf returns -1 or 1 for non-zero v and fallback otherwise.
func SignOf(v float64, fallback int8) int8 {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return fallback
}

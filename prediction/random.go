package prediction

// Random is a deterministic generator small enough to live inside a state,
// so that random decisions roll back and replay identically.
type Random struct {
	Seed uint32
}

func NewRandom(seed uint32) Random { return Random{Seed: seed} }

// Next advances the generator and returns the new seed.
func (r *Random) Next() uint32 {
	r.Seed = r.Seed*1664525 + 1013904223
	return r.Seed
}

// Float returns a value in [0, 1).
func (r *Random) Float() float64 {
	return float64(r.Next()) / (1 << 32)
}

// Range returns a value in [lo, hi).
func (r *Random) Range(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float()
}

// Intn returns a value in [0, n). n must be positive.
func (r *Random) Intn(n int) int {
	return int(uint64(r.Next()) * uint64(n) >> 32)
}

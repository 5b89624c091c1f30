// Package rng is the deterministic random source behind procedural raid
// content. Identical seeds reproduce identical sequences on every platform.
package rng

import (
	"hash/fnv"
	"math"
)

// Rand is a 32-bit mulberry-style generator. It is not safe for concurrent
// use; callers build one per operation from a seed.
type Rand struct {
	state uint32
}

func New(seed uint32) *Rand {
	return &Rand{state: seed}
}

// Float64 returns the next value in [0,1).
func (r *Rand) Float64() float64 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0
}

// IntRange returns a uniform integer in [min,max]. When max < min it returns min.
func (r *Rand) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	span := float64(max - min + 1)
	return min + int(math.Floor(r.Float64()*span))
}

// Chance reports whether a draw falls under p.
func (r *Rand) Chance(p float64) bool {
	return r.Float64() < p
}

// Pick returns a uniformly chosen element. ok is false for an empty list.
func Pick[T any](r *Rand, list []T) (v T, ok bool) {
	if len(list) == 0 {
		return v, false
	}
	return list[int(math.Floor(r.Float64()*float64(len(list))))], true
}

// Shuffle returns a Fisher-Yates shuffled copy of list; the input is not modified.
func Shuffle[T any](r *Rand, list []T) []T {
	out := make([]T, len(list))
	copy(out, list)
	for i := len(out) - 1; i > 0; i-- {
		j := int(math.Floor(r.Float64() * float64(i+1)))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// HashSeed derives a 32-bit seed from a (context, suffix) pair, e.g.
// (raidID, "loot"), so omitted seeds stay scoped to a raid and an action.
func HashSeed(context, suffix string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(context))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(suffix))
	return h.Sum32()
}

package rng

// Seed is an optional explicit seed. The zero value means "derive one".
type Seed struct {
	value uint32
	set   bool
}

func WithSeed(v uint32) Seed { return Seed{value: v, set: true} }

// FromPtr maps an optional wire value onto a Seed.
func FromPtr(v *uint32) Seed {
	if v == nil {
		return Seed{}
	}
	return WithSeed(*v)
}

func (s Seed) IsSet() bool { return s.set }

// Resolve returns the explicit value, or HashSeed(context, suffix) when unset.
func (s Seed) Resolve(context, suffix string) uint32 {
	if s.set {
		return s.value
	}
	return HashSeed(context, suffix)
}

package dispatch

import "github.com/chazu/multimethod/phash"

// Options configure compilation.
type Options struct {
	// HashTrials is the number of multipliers tried per table size when
	// building an axis hash.
	HashTrials int
	// HashMaxExtraBits bounds how far an axis hash table may grow past
	// the smallest power of two that holds its domain.
	HashMaxExtraBits int
	// Seed drives the hash search. Equal seeds give equal tables.
	Seed uint64
}

// DefaultOptions returns the options NewRuntime uses.
func DefaultOptions() Options {
	d := phash.DefaultOptions()
	return Options{
		HashTrials:       d.Trials,
		HashMaxExtraBits: d.MaxExtraBits,
		Seed:             d.Seed,
	}
}

func (o Options) hashOptions() phash.Options {
	return phash.Options{
		Trials:       o.HashTrials,
		MaxExtraBits: o.HashMaxExtraBits,
		Seed:         o.Seed,
	}
}

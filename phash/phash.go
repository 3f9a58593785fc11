// Package phash builds collision-free multiplicative hash functions over
// a fixed set of integer keys.
//
// A Function maps each key of its domain to a distinct slot in [0, 2^bits)
// with one multiply and one shift:
//
//	slot = (key * M) >> (64 - bits)
//
// M is found by a bounded, seeded search, so the same keys and options
// always produce the same function.
package phash

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"
)

var (
	ErrConstructionFailed = errors.New("perfect hash construction failed")
	ErrDuplicateKey       = errors.New("duplicate key in perfect hash domain")
)

// maxBits caps table size regardless of options.
const maxBits = 30

// Options bound the parameter search.
type Options struct {
	// Trials is the number of random multipliers tried per table size.
	Trials int
	// MaxExtraBits is how many times the table may double beyond the
	// smallest power of two that fits the keys.
	MaxExtraBits int
	// Seed makes the search deterministic.
	Seed uint64
}

// DefaultOptions returns the search bounds used when none are given.
// Dense or aligned ids fit near the smallest table. Uniformly random
// 64-bit ids need a table about n² slots wide, so a few thousand of them
// is the practical limit; past that Build fails with ErrConstructionFailed.
func DefaultOptions() Options {
	return Options{
		Trials:       256,
		MaxExtraBits: 10,
		Seed:         0x6d6d6574686f6473,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Trials <= 0 {
		o.Trials = d.Trials
	}
	if o.MaxExtraBits < 0 {
		o.MaxExtraBits = d.MaxExtraBits
	}
	return o
}

// Function is an immutable perfect hash over its key set.
type Function struct {
	mult     uint64
	shift    uint
	bits     uint
	keys     []uint64 // slot -> key
	occupied []bool
	count    int
	attempts int
}

// Build searches for a multiplier that maps every key to its own slot.
func Build(keys []uint64, opts Options) (*Function, error) {
	opts = opts.withDefaults()

	seen := make(map[uint64]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateKey, k)
		}
		seen[k] = true
	}

	n := len(keys)
	minBits := uint(0)
	if n > 1 {
		minBits = uint(bits.Len(uint(n - 1)))
	}
	topBits := minBits + uint(opts.MaxExtraBits)
	if topBits > maxBits {
		topBits = maxBits
	}

	rng := rand.New(rand.NewPCG(opts.Seed, uint64(n)))
	attempts := 0

	for b := minBits; b <= topBits; b++ {
		size := 1 << b
		stamp := make([]int, size)
		shift := 64 - b

		for trial := 1; trial <= opts.Trials; trial++ {
			attempts++
			mult := rng.Uint64() | 1
			if place(keys, mult, shift, stamp, trial) {
				return newFunction(keys, mult, shift, b, attempts), nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %d keys, %d trials per size, up to %d bits",
		ErrConstructionFailed, n, opts.Trials, topBits)
}

// place reports whether mult sends every key to a distinct slot.
// stamp marks slots used in the current trial without clearing.
func place(keys []uint64, mult uint64, shift uint, stamp []int, trial int) bool {
	for _, k := range keys {
		slot := hashSlot(k, mult, shift)
		if stamp[slot] == trial {
			return false
		}
		stamp[slot] = trial
	}
	return true
}

func hashSlot(key, mult uint64, shift uint) uint64 {
	// A shift of 64 yields zero, which is the single-slot table.
	return (key * mult) >> shift
}

func newFunction(keys []uint64, mult uint64, shift, b uint, attempts int) *Function {
	size := 1 << b
	f := &Function{
		mult:     mult,
		shift:    shift,
		bits:     b,
		keys:     make([]uint64, size),
		occupied: make([]bool, size),
		count:    len(keys),
		attempts: attempts,
	}
	for _, k := range keys {
		slot := hashSlot(k, mult, shift)
		f.keys[slot] = k
		f.occupied[slot] = true
	}
	return f
}

// Index returns the slot of key. The second result is false when key is
// not part of the domain the function was built for.
func (f *Function) Index(key uint64) (int, bool) {
	slot := hashSlot(key, f.mult, f.shift)
	if !f.occupied[slot] || f.keys[slot] != key {
		return 0, false
	}
	return int(slot), true
}

// Size returns the number of slots, a power of two.
func (f *Function) Size() int {
	return len(f.keys)
}

// Len returns the number of keys in the domain.
func (f *Function) Len() int {
	return f.count
}

// Multiplier returns the chosen multiplier.
func (f *Function) Multiplier() uint64 {
	return f.mult
}

// Bits returns log2 of the table size.
func (f *Function) Bits() uint {
	return f.bits
}

// Attempts returns how many multipliers the search tried.
func (f *Function) Attempts() int {
	return f.attempts
}

// Keys returns the domain in slot order.
func (f *Function) Keys() []uint64 {
	result := make([]uint64, 0, f.count)
	for slot, ok := range f.occupied {
		if ok {
			result = append(result, f.keys[slot])
		}
	}
	return result
}

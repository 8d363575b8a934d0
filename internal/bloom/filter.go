// Package bloom is a fixed-size Bloom filter over uint64 keys. The workload
// generator uses it to reject repeated (user, movie) pairs in bounded memory.
package bloom

import (
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"
)

// Filter answers "possibly seen" or "definitely not seen". It never reports
// an added key as absent. Not safe for concurrent use.
type Filter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
	buf       [8]byte
}

// New creates a filter with numBits (rounded up to a multiple of 64) and
// numHashes probes.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}
	words := (numBits + 63) / 64
	return &Filter{
		bits:      make([]uint64, words),
		numBits:   uint64(words * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates sizes a filter for expectedItems at the target false
// positive rate.
func NewWithEstimates(expectedItems int, targetFPR float64) *Filter {
	return New(OptimalParameters(expectedItems, targetFPR))
}

// OptimalParameters returns m = -n*ln(p)/ln(2)^2 bits and k = (m/n)*ln(2)
// hashes. Out-of-range inputs fall back to n=1000, p=0.01.
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	numBits = max(int(math.Ceil(m)), 64)
	numHashes = max(int(math.Ceil(m/n*math.Ln2)), 1)
	return numBits, numHashes
}

// probes derives the probe positions by double hashing h1 + i*h2 over one
// murmur3 128-bit hash.
func (f *Filter) probes(key uint64, visit func(word uint64, mask uint64) bool) bool {
	binary.LittleEndian.PutUint64(f.buf[:], key)
	h1, h2 := murmur3.Sum128(f.buf[:])
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if !visit(pos/64, 1<<(pos%64)) {
			return false
		}
	}
	return true
}

// Add records key.
func (f *Filter) Add(key uint64) {
	f.probes(key, func(w, mask uint64) bool {
		f.bits[w] |= mask
		return true
	})
	f.count++
}

// Contains reports whether key may have been added.
func (f *Filter) Contains(key uint64) bool {
	return f.probes(key, func(w, mask uint64) bool {
		return f.bits[w]&mask != 0
	})
}

// TestAndAdd adds key and reports whether it may already have been present.
func (f *Filter) TestAndAdd(key uint64) bool {
	present := f.Contains(key)
	if !present {
		f.Add(key)
	}
	return present
}

// Count is the number of Add calls that stored a key.
func (f *Filter) Count() uint64 { return f.count }

// NumBits returns the filter size in bits.
func (f *Filter) NumBits() int { return int(f.numBits) }

// NumHashes returns the number of probes per key.
func (f *Filter) NumHashes() int { return int(f.numHashes) }

// FalsePositiveRate estimates (1 - e^(-k*n/m))^k at the current fill.
func (f *Filter) FalsePositiveRate() float64 {
	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	return math.Pow(1-math.Exp(-k*float64(f.count)/float64(f.numBits)), k)
}

package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/dnrc/internal/dnr/services/compiler"
)

// filter wraps a bits-and-blooms BloomFilter. Add is serialized; tests
// take the read lock so a concurrent Add never tears a probe.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

// factory implements compiler.BloomFactory using the internal sizing formula.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() compiler.BloomFactory { return factory{} }

// New constructs a filter sized for capacity keys at the given false-positive rate.
func (factory) New(capacity uint64, fpRate float64) compiler.BloomFilter {
	m, k := size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

var _ compiler.BloomFilter = (*filter)(nil)

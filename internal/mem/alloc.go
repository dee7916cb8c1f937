package mem

import "math/rand"

// DefaultAllocSeed seeds the physical-page allocator's PRNG. Physical-page allocation is
// deliberately randomized — see allocator below — but kept reproducible across runs by
// fixing the seed, per the design note that a guest program's assumptions about page
// contiguity should be exercised, not masked by a sequential allocator.
const DefaultAllocSeed = 0x5ec502

// allocator is a bitset-backed physical-page allocator. It hands out uniformly random unused
// pages and never frees them: physical memory and page-table state live for the whole
// simulation.
type allocator struct {
	used  []uint64 // word-packed bitset, one bit per page.
	pages uint64
	rng   *rand.Rand
}

func newAllocator(pages uint64) *allocator {
	return &allocator{
		used:  make([]uint64, (pages+63)/64),
		pages: pages,
		rng:   rand.New(rand.NewSource(DefaultAllocSeed)),
	}
}

// allocate returns a uniformly random page number that has never been returned before and
// marks it used. It panics if every page is already allocated, which would indicate the
// simulated guest has exhausted physical memory.
func (a *allocator) allocate() uint64 {
	free := false
	for p := uint64(0); p < a.pages && !free; p++ {
		free = !a.isUsed(p)
	}

	if !free {
		panic("mem: physical memory exhausted")
	}

	for {
		page := uint64(a.rng.Int63n(int64(a.pages)))

		word, bit := page/64, page%64

		if a.used[word]&(1<<bit) != 0 {
			continue
		}

		a.used[word] |= 1 << bit

		return page
	}
}

// isUsed reports whether a page is currently allocated.
func (a *allocator) isUsed(page uint64) bool {
	word, bit := page/64, page%64
	return a.used[word]&(1<<bit) != 0
}

package tcpkit

import "sync"

// bufferArena hands out fixed-size slices of one pre-allocated contiguous buffer, with free-list recycling.
// Grounded on tinytcp's sync.Pool-backed readBufferPool (framing.go), replaced here by a single contiguous
// allocation so the exact B*N memory-boundedness invariant (spec §8 property 1) is literally true rather than
// an emergent property of the Go allocator.
type bufferArena struct {
	storage []byte
	sliceSz int
	count   int

	m        sync.Mutex
	freeList []int
	cursor   int
}

// newBufferArena allocates exactly sliceSize*count bytes up front.
func newBufferArena(sliceSize, count int) *bufferArena {
	return &bufferArena{
		storage: make([]byte, sliceSize*count),
		sliceSz: sliceSize,
		count:   count,
	}
}

// arenaSlice is a fixed-size window of the arena assigned to exactly one connection (spec glossary: "Slice").
type arenaSlice struct {
	offset int
	bytes  []byte
}

// checkout assigns a slice to the caller. Offsets handed out are always multiples of sliceSize.
// Fails with KindExhausted when neither a freed offset nor first-time cursor space is available.
func (a *bufferArena) checkout() (*arenaSlice, error) {
	a.m.Lock()
	defer a.m.Unlock()

	if n := len(a.freeList); n > 0 {
		offset := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		return &arenaSlice{offset: offset, bytes: a.storage[offset : offset+a.sliceSz]}, nil
	}

	if a.cursor < a.count {
		offset := a.cursor * a.sliceSz
		a.cursor++
		return &arenaSlice{offset: offset, bytes: a.storage[offset : offset+a.sliceSz]}, nil
	}

	return nil, ErrExhausted
}

// checkin returns a previously checked-out slice to the free list.
func (a *bufferArena) checkin(slice *arenaSlice) {
	a.m.Lock()
	defer a.m.Unlock()

	a.freeList = append(a.freeList, slice.offset)
}

// size returns the total number of bytes allocated by the arena (sliceSize*count).
func (a *bufferArena) size() int {
	return len(a.storage)
}

// sliceSize returns the fixed size of every handed-out slice.
func (a *bufferArena) sliceSize() int {
	return a.sliceSz
}

// outstanding returns the number of slices currently checked out (not in the free list or unused cursor space).
func (a *bufferArena) outstanding() int {
	a.m.Lock()
	defer a.m.Unlock()

	return a.cursor - len(a.freeList)
}

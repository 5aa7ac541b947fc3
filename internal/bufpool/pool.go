// Package bufpool pools byte buffers in power-of-two size classes so encoded
// batches can be reused across sync cycles instead of reallocated.
package bufpool

import (
	"math/bits"
	"sync"
)

const (
	minShift = 8  // 256 B
	maxShift = 22 // 4 MiB
)

// Pool is a slab of sync.Pools, one per size class.
// Buffers larger than the biggest class are allocated and dropped normally.
type Pool struct {
	classes [maxShift - minShift + 1]sync.Pool
}

// New creates an empty pool.
func New() *Pool {
	p := &Pool{}
	for i := range p.classes {
		size := 1 << (i + minShift)
		p.classes[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return p
}

// Get acquires a buffer with len n. Its contents are unspecified.
func (p *Pool) Get(n int) []byte {
	idx := classFor(n)
	if idx < 0 {
		return make([]byte, n)
	}
	bp := p.classes[idx].Get().(*[]byte)
	return (*bp)[:n]
}

// Put releases a buffer obtained from Get. Buffers whose capacity is not an
// exact size class are ignored.
func (p *Pool) Put(b []byte) {
	c := cap(b)
	if c == 0 || c&(c-1) != 0 {
		return
	}
	idx := bits.Len(uint(c)) - 1 - minShift
	if idx < 0 || idx >= len(p.classes) {
		return
	}
	b = b[:c]
	p.classes[idx].Put(&b)
}

func classFor(n int) int {
	if n <= 1<<minShift {
		return 0
	}
	shift := bits.Len(uint(n - 1))
	if shift > maxShift {
		return -1
	}
	return shift - minShift
}

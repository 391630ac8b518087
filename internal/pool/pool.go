// Package pool recycles the fixed-length buffers that file bodies are chunked through.
package pool

import (
	"sync/atomic"
)

// Stats is a snapshot of how often Get was served from the pool.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Chunks is a bounded pool of byte slices that all have the same length.
type Chunks struct {
	hits   atomic.Uint64
	misses atomic.Uint64

	ch     chan []byte
	length int
}

// NewChunks returns a pool holding at most depth idle buffers of length bytes.
func NewChunks(depth, length int) *Chunks {
	if length <= 0 {
		panic("xfer: pool: chunk length must be greater than zero")
	}

	return &Chunks{
		ch:     make(chan []byte, depth),
		length: length,
	}
}

// Len returns the length of every buffer handed out by Get.
func (p *Chunks) Len() int {
	return p.length
}

// Get returns a buffer of p.Len() bytes, reusing an idle one when available.
func (p *Chunks) Get() []byte {
	select {
	case b := <-p.ch:
		p.hits.Add(1)
		return b[:p.length]

	default:
		p.misses.Add(1)
		return make([]byte, p.length)
	}
}

// Put returns b to the pool. Buffers of any other capacity are dropped.
func (p *Chunks) Put(b []byte) {
	if cap(b) != p.length {
		return
	}

	select {
	case p.ch <- b:
	default:
	}
}

// Stats reports hits and misses since the pool was created.
func (p *Chunks) Stats() Stats {
	return Stats{
		Hits:   p.hits.Load(),
		Misses: p.misses.Load(),
	}
}

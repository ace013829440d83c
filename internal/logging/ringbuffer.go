package logging

import "sync"

// RingBuffer is a fixed-size circular byte buffer. Writes never fail; old
// data is overwritten once the buffer wraps.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	next    int
	wrapped bool
}

// NewRingBuffer creates a ring buffer holding up to size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer.
func (r *RingBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	// A single write larger than the buffer keeps only its tail.
	if n >= len(r.buf) {
		copy(r.buf, p[n-len(r.buf):])
		r.next = 0
		r.wrapped = true
		return n, nil
	}

	remain := len(r.buf) - r.next
	if n <= remain {
		copy(r.buf[r.next:], p)
		r.next += n
		if r.next == len(r.buf) {
			r.next = 0
			r.wrapped = true
		}
		return n, nil
	}

	copy(r.buf[r.next:], p[:remain])
	copy(r.buf, p[remain:])
	r.next = n - remain
	r.wrapped = true
	return n, nil
}

// Bytes returns the buffered data in write order.
func (r *RingBuffer) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.wrapped {
		out := make([]byte, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]byte, len(r.buf))
	copy(out, r.buf[r.next:])
	copy(out[len(r.buf)-r.next:], r.buf[:r.next])
	return out
}

package ports

// BitmapPool is a bounded, concurrent pool of fixed-size BGRA pixel
// buffers, one resolution per pool instance.
type BitmapPool interface {
	// Rent returns a buffer of exactly Width()*Height()*4 bytes, either
	// reused from the pool or freshly allocated.
	Rent() []byte

	// Return gives a buffer back to the pool. Buffers that don't match
	// the pool's geometry, or that arrive once the pool is at capacity,
	// are discarded rather than queued.
	Return(buf []byte)

	Width() int
	Height() int
}

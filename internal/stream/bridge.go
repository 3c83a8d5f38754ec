// Package stream moves generated audio from a blocking producer goroutine
// to a cooperative consumer without reordering or dropping chunks.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/mimicvoice/mimic/internal/audio"
)

// Bridge is a FIFO handoff between one producer goroutine and one
// consumer. Closing the chunk channel is the end-of-stream sentinel: it
// is emitted exactly once per stream, the consumer can never read past
// it, and it is delivered even when the producer fails mid-stream.
type Bridge struct {
	chunks chan audio.Chunk
	done   chan struct{}

	mu       sync.Mutex
	err      error
	finished bool
}

// New creates a bridge with the given channel capacity. A small buffer
// lets the producer run ahead of playback without unbounded memory.
func New(buffer int) *Bridge {
	if buffer < 0 {
		buffer = 0
	}
	return &Bridge{
		chunks: make(chan audio.Chunk, buffer),
		done:   make(chan struct{}),
	}
}

// Send enqueues a chunk in production order. It blocks while the consumer
// is behind and returns the context error if the stream is cancelled.
func (b *Bridge) Send(ctx context.Context, chunk audio.Chunk) error {
	select {
	case b.chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish terminates the stream. The first call records err (which may be
// nil) and closes the chunk channel; later calls are no-ops, so producers
// can defer Finish and still report an explicit failure earlier.
func (b *Bridge) Finish(err error) {
	b.mu.Lock()
	if b.finished {
		b.mu.Unlock()
		return
	}
	b.finished = true
	b.err = err
	b.mu.Unlock()

	close(b.chunks)
	close(b.done)
}

// Chunks returns the consumer side of the stream. Ranging over it yields
// every chunk in push order and ends after the sentinel.
func (b *Bridge) Chunks() <-chan audio.Chunk {
	return b.chunks
}

// Err reports the producer's terminal error, if any. Valid once the
// chunk channel is closed.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Join waits up to timeout for the producer to finish the stream. It
// returns false on timeout; the producer goroutine is left to terminate
// on its own.
func (b *Bridge) Join(timeout time.Duration) bool {
	select {
	case <-b.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

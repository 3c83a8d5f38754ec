package audio

import "sync"

// FrameBuffer is a thread-safe queue of sample blocks feeding a playback
// device's pull callback. Blocks keep arrival order; a block larger than
// one callback request is split across requests.
type FrameBuffer struct {
	mu       sync.Mutex
	blocks   [][]float32
	buffered int
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Push appends a copy of block to the queue.
func (fb *FrameBuffer) Push(block []float32) {
	if len(block) == 0 {
		return
	}
	owned := make([]float32, len(block))
	copy(owned, block)

	fb.mu.Lock()
	fb.blocks = append(fb.blocks, owned)
	fb.buffered += len(owned)
	fb.mu.Unlock()
}

// Fill drains buffered samples into out, zero-filling whatever remains
// when the queue underruns. It returns the number of real (non-silence)
// frames written.
func (fb *FrameBuffer) Fill(out []float32) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	written := 0
	for written < len(out) && len(fb.blocks) > 0 {
		block := fb.blocks[0]
		n := copy(out[written:], block)
		written += n
		fb.buffered -= n
		if n == len(block) {
			fb.blocks = fb.blocks[1:]
		} else {
			fb.blocks[0] = block[n:]
		}
	}
	for i := written; i < len(out); i++ {
		out[i] = 0
	}
	return written
}

// Buffered returns the number of samples waiting to be played.
func (fb *FrameBuffer) Buffered() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.buffered
}

// Reset discards all queued samples.
func (fb *FrameBuffer) Reset() {
	fb.mu.Lock()
	fb.blocks = nil
	fb.buffered = 0
	fb.mu.Unlock()
}

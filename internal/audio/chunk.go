package audio

// Chunk is one unit of generated audio: mono float32 samples at a fixed
// sample rate. Final marks the last payload of a generation stream.
type Chunk struct {
	Samples    []float32
	SampleRate int
	Final      bool
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

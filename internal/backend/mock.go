package backend

import (
	"context"
	"math"
	"sync"

	"github.com/mimicvoice/mimic/internal/audio"
	"github.com/mimicvoice/mimic/internal/stream"
)

// Mock is a deterministic in-process backend for tests and dry runs. The
// default waveform is a quiet tone whose length scales with the text, so
// the batch and streaming paths produce identical sample counts.
type Mock struct {
	SampleRate   int
	ChunkSamples int
	CanStream    bool
	// GenerateFn overrides waveform synthesis when set.
	GenerateFn func(text string, opts Options) ([]float32, int, error)

	mu         sync.Mutex
	loadedSize string
	loadCount  int
	cache      *promptCache
}

func NewMock(sampleRate int) *Mock {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &Mock{
		SampleRate:   sampleRate,
		ChunkSamples: sampleRate / 2,
		CanStream:    true,
		cache:        newPromptCache(),
	}
}

func (m *Mock) Streaming() bool { return m.CanStream }

func (m *Mock) Load(_ context.Context, modelSize string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if modelSize == "" {
		modelSize = "1.7B"
	}
	if m.loadedSize == modelSize {
		return nil
	}
	m.loadedSize = modelSize
	m.loadCount++
	return nil
}

func (m *Mock) Unload(context.Context) error {
	m.mu.Lock()
	m.loadedSize = ""
	m.mu.Unlock()
	return nil
}

// LoadCount reports how many distinct loads happened, for tests asserting
// load idempotence.
func (m *Mock) LoadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCount
}

func (m *Mock) CreateVoicePrompt(ctx context.Context, audioPath, referenceText string, useCache bool) (*VoicePrompt, bool, error) {
	if err := m.Load(ctx, ""); err != nil {
		return nil, false, err
	}

	key := ""
	if useCache {
		k, err := promptCacheKey(audioPath, referenceText)
		if err == nil {
			key = k
			if prompt, ok := m.cache.get(key); ok {
				return prompt, true, nil
			}
		}
	}

	prompt := &VoicePrompt{AudioPath: audioPath, ReferenceText: referenceText}
	if useCache && key != "" {
		m.cache.put(key, prompt)
	}
	return prompt, false, nil
}

func (m *Mock) Generate(ctx context.Context, text string, _ *VoicePrompt, opts Options) ([]float32, int, error) {
	if err := m.Load(ctx, ""); err != nil {
		return nil, 0, err
	}
	if m.GenerateFn != nil {
		return m.GenerateFn(text, opts)
	}
	return m.waveform(text), m.SampleRate, nil
}

func (m *Mock) GenerateStream(ctx context.Context, text string, prompt *VoicePrompt, opts Options) *stream.Bridge {
	br := stream.New(8)
	go func() {
		defer br.Finish(nil)

		samples, rate, err := m.Generate(ctx, text, prompt, opts)
		if err != nil {
			br.Finish(err)
			return
		}
		if !m.CanStream || m.ChunkSamples <= 0 {
			_ = br.Send(ctx, audio.Chunk{Samples: samples, SampleRate: rate, Final: true})
			return
		}
		for start := 0; start < len(samples); start += m.ChunkSamples {
			end := start + m.ChunkSamples
			if end > len(samples) {
				end = len(samples)
			}
			chunk := audio.Chunk{
				Samples:    samples[start:end],
				SampleRate: rate,
				Final:      end == len(samples),
			}
			if err := br.Send(ctx, chunk); err != nil {
				br.Finish(err)
				return
			}
		}
	}()
	return br
}

func (m *Mock) Close() error { return nil }

func (m *Mock) waveform(text string) []float32 {
	// 50ms of audio per character, at least one chunk's worth.
	n := len(text) * m.SampleRate / 20
	if n < m.SampleRate/10 {
		n = m.SampleRate / 10
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1 * float32(math.Sin(2*math.Pi*220*float64(i)/float64(m.SampleRate)))
	}
	return samples
}

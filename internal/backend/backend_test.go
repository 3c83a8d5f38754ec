package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mimicvoice/mimic/internal/audio"
)

func collectChunks(t *testing.T, br interface {
	Chunks() <-chan audio.Chunk
	Err() error
}) []audio.Chunk {
	t.Helper()
	var chunks []audio.Chunk
	deadline := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-br.Chunks():
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-deadline:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestStreamMatchesBatch(t *testing.T) {
	m := NewMock(24000)
	m.ChunkSamples = 5000

	text := "the quick brown fox jumps over the lazy dog"
	batch, rate, err := m.Generate(context.Background(), text, nil, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	br := m.GenerateStream(context.Background(), text, nil, Options{})
	chunks := collectChunks(t, br)
	if err := br.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	total := 0
	for i, chunk := range chunks {
		total += len(chunk.Samples)
		if chunk.SampleRate != rate {
			t.Errorf("chunk %d sample rate = %d, want %d", i, chunk.SampleRate, rate)
		}
		if chunk.Final != (i == len(chunks)-1) {
			t.Errorf("chunk %d final = %v", i, chunk.Final)
		}
	}
	if total != len(batch) {
		t.Errorf("streamed %d samples, batch produced %d", total, len(batch))
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
}

func TestBatchOnlyStreamIsSingleFinalChunk(t *testing.T) {
	m := NewMock(24000)
	m.CanStream = false

	batch, _, err := m.Generate(context.Background(), "hello there", nil, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	br := m.GenerateStream(context.Background(), "hello there", nil, Options{})
	chunks := collectChunks(t, br)
	if err := br.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
	if !chunks[0].Final {
		t.Error("single chunk not marked final")
	}
	if len(chunks[0].Samples) != len(batch) {
		t.Errorf("chunk has %d samples, batch produced %d", len(chunks[0].Samples), len(batch))
	}
}

func TestStreamErrorTerminates(t *testing.T) {
	m := NewMock(24000)
	m.GenerateFn = func(string, Options) ([]float32, int, error) {
		return nil, 0, os.ErrDeadlineExceeded
	}

	br := m.GenerateStream(context.Background(), "doomed", nil, Options{})
	chunks := collectChunks(t, br)
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
	if br.Err() == nil {
		t.Error("expected stream error")
	}
}

func TestVoicePromptCache(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.wav")
	if err := os.WriteFile(ref, []byte("fake audio bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMock(24000)
	ctx := context.Background()

	_, cached, err := m.CreateVoicePrompt(ctx, ref, "reference text", true)
	if err != nil {
		t.Fatalf("CreateVoicePrompt: %v", err)
	}
	if cached {
		t.Error("first call reported a cache hit")
	}

	_, cached, err = m.CreateVoicePrompt(ctx, ref, "reference text", true)
	if err != nil {
		t.Fatalf("CreateVoicePrompt: %v", err)
	}
	if !cached {
		t.Error("second call missed the cache")
	}

	// A different reference text keys a different prompt.
	_, cached, err = m.CreateVoicePrompt(ctx, ref, "other text", true)
	if err != nil {
		t.Fatalf("CreateVoicePrompt: %v", err)
	}
	if cached {
		t.Error("different reference text hit the cache")
	}

	// Deleting the file invalidates the entry: the key re-reads the file.
	if err := os.Remove(ref); err != nil {
		t.Fatal(err)
	}
	_, cached, err = m.CreateVoicePrompt(ctx, ref, "reference text", true)
	if err != nil {
		t.Fatalf("CreateVoicePrompt: %v", err)
	}
	if cached {
		t.Error("deleted reference audio still hit the cache")
	}
}

func TestVoicePromptCacheDisabled(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.wav")
	if err := os.WriteFile(ref, []byte("fake audio bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMock(24000)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, cached, err := m.CreateVoicePrompt(ctx, ref, "reference text", false)
		if err != nil {
			t.Fatalf("CreateVoicePrompt: %v", err)
		}
		if cached {
			t.Errorf("call %d hit the cache with caching disabled", i)
		}
	}
}

func TestMockLoadIdempotent(t *testing.T) {
	m := NewMock(24000)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := m.Load(ctx, "1.7B"); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.LoadCount(); got != 1 {
		t.Errorf("LoadCount = %d, want 1", got)
	}
	if err := m.Load(ctx, "0.6B"); err != nil {
		t.Fatal(err)
	}
	if got := m.LoadCount(); got != 2 {
		t.Errorf("LoadCount after size switch = %d, want 2", got)
	}
}

package say

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mimicvoice/mimic/internal/audio"
	"github.com/mimicvoice/mimic/internal/backend"
	"github.com/mimicvoice/mimic/internal/config"
	"github.com/mimicvoice/mimic/internal/registry"
)

type fakeSink struct {
	starts  int
	stops   int
	closes  int
	blocks  [][]float32
	samples int
}

func (s *fakeSink) Start() error { s.starts++; return nil }
func (s *fakeSink) Enqueue(block []float32) {
	s.blocks = append(s.blocks, block)
	s.samples += len(block)
}
func (s *fakeSink) Buffered() int { return 0 }
func (s *fakeSink) Stop() error   { s.stops++; return nil }
func (s *fakeSink) Close() error  { s.closes++; return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *registry.Store {
	t.Helper()
	store, err := registry.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create("default", "en", ""); err != nil {
		t.Fatal(err)
	}
	clip := filepath.Join(t.TempDir(), "clip1.wav")
	if err := os.WriteFile(clip, []byte("reference"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddSample("default", clip, "Hello world"); err != nil {
		t.Fatal(err)
	}
	return store
}

func testOrchestrator(t *testing.T, b backend.Backend, store *registry.Store) (*Orchestrator, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	o := New(b, store, config.AudioConfig{BlockSize: 1024, SettleMS: 0}, testLogger())
	o.SetSinkOpener(func(int) (Sink, error) { return sink, nil })
	o.SetDeviceProbe(func() bool { return true })
	return o, sink
}

func TestBatchSayPersistsAndRecordsHistory(t *testing.T) {
	store := testStore(t)
	m := backend.NewMock(24000)
	m.GenerateFn = func(string, backend.Options) ([]float32, int, error) {
		return make([]float32, 24000), 24000, nil
	}
	o, _ := testOrchestrator(t, m, store)

	res, err := o.Run(context.Background(), Request{
		Text:      "Hi there",
		VoiceName: "default",
		NoStream:  true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	samples, rate, err := audio.ReadFile(res.AudioPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(samples) != 24000 || rate != 24000 {
		t.Errorf("saved %d frames at %d Hz, want 24000 at 24000", len(samples), rate)
	}
	if math.Abs(res.Duration-1.0) > 1e-9 {
		t.Errorf("Duration = %v, want 1.0", res.Duration)
	}

	history, err := store.History(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Duration != 1.0 || history[0].VoiceName != "default" {
		t.Errorf("history record = %+v", history[0])
	}
}

func TestStreamingSayPlaysAndConcatenates(t *testing.T) {
	store := testStore(t)
	m := backend.NewMock(24000)
	m.ChunkSamples = 12000
	m.GenerateFn = func(string, backend.Options) ([]float32, int, error) {
		return make([]float32, 24000), 24000, nil
	}
	o, sink := testOrchestrator(t, m, store)

	res, err := o.Run(context.Background(), Request{
		Text:      "Hi there",
		VoiceName: "default",
		Play:      true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Streaming {
		t.Error("expected streaming result")
	}

	samples, _, err := audio.ReadFile(res.AudioPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 24000 {
		t.Errorf("saved %d samples, want 24000", len(samples))
	}

	if len(sink.blocks) != 2 {
		t.Errorf("sink received %d blocks, want 2", len(sink.blocks))
	}
	if sink.samples != 24000 {
		t.Errorf("sink received %d samples, want 24000", sink.samples)
	}
	if sink.starts != 1 || sink.stops != 1 || sink.closes != 1 {
		t.Errorf("sink lifecycle starts=%d stops=%d closes=%d, want 1 each", sink.starts, sink.stops, sink.closes)
	}
}

func TestSayUnknownVoice(t *testing.T) {
	store := testStore(t)
	o, _ := testOrchestrator(t, backend.NewMock(24000), store)

	_, err := o.Run(context.Background(), Request{Text: "hi", VoiceName: "nobody"})
	if err == nil {
		t.Fatal("expected error")
	}
	if CodeOf(err) != CodeNotFound {
		t.Errorf("code = %s, want %s", CodeOf(err), CodeNotFound)
	}
}

func TestSayVoiceWithoutSamples(t *testing.T) {
	store := testStore(t)
	if _, err := store.Create("empty", "en", ""); err != nil {
		t.Fatal(err)
	}
	o, _ := testOrchestrator(t, backend.NewMock(24000), store)

	_, err := o.Run(context.Background(), Request{Text: "hi", VoiceName: "empty"})
	if CodeOf(err) != CodeNoSamples {
		t.Errorf("code = %s, want %s", CodeOf(err), CodeNoSamples)
	}
}

func TestSayGenerationFailure(t *testing.T) {
	store := testStore(t)
	m := backend.NewMock(24000)
	m.GenerateFn = func(string, backend.Options) ([]float32, int, error) {
		return nil, 0, errors.New("model exploded")
	}
	o, _ := testOrchestrator(t, m, store)

	_, err := o.Run(context.Background(), Request{Text: "hi", VoiceName: "default", NoStream: true})
	if CodeOf(err) != CodeGenerationFailed {
		t.Errorf("code = %s, want %s", CodeOf(err), CodeGenerationFailed)
	}
	if history, _ := store.History(0); len(history) != 0 {
		t.Errorf("failed generation left %d history records", len(history))
	}
}

func TestSayEmptyStreamIsGenerationFailure(t *testing.T) {
	store := testStore(t)
	m := backend.NewMock(24000)
	m.GenerateFn = func(string, backend.Options) ([]float32, int, error) {
		return nil, 24000, nil
	}
	o, _ := testOrchestrator(t, m, store)

	_, err := o.Run(context.Background(), Request{Text: "hi", VoiceName: "default", Play: true})
	if CodeOf(err) != CodeGenerationFailed {
		t.Errorf("code = %s, want %s", CodeOf(err), CodeGenerationFailed)
	}
}

func TestSayNoDeviceFallsBackToBatch(t *testing.T) {
	store := testStore(t)
	m := backend.NewMock(24000)
	o, sink := testOrchestrator(t, m, store)
	o.SetDeviceProbe(func() bool { return false })

	var warned bool
	o.Warnf = func(string, ...any) { warned = true }

	res, err := o.Run(context.Background(), Request{Text: "hi", VoiceName: "default", Play: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Streaming {
		t.Error("expected batch fallback")
	}
	if !warned {
		t.Error("expected a fallback warning")
	}
	if sink.starts != 0 {
		t.Errorf("sink started %d times without a device", sink.starts)
	}
}

func TestSaveToExplicitPath(t *testing.T) {
	store := testStore(t)
	m := backend.NewMock(24000)
	o, _ := testOrchestrator(t, m, store)

	out := filepath.Join(t.TempDir(), "take.wav")
	res, err := o.Run(context.Background(), Request{
		Text:      "hi",
		VoiceName: "default",
		SavePath:  out,
		NoStream:  true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.AudioPath != out {
		t.Errorf("AudioPath = %s, want %s", res.AudioPath, out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
}

func TestAutoFileName(t *testing.T) {
	name := autoFileName("Hello, World! This is a longer sentence than thirty characters.")
	if filepath.Ext(name) != ".wav" {
		t.Errorf("extension of %q", name)
	}
	base := name[:len(name)-len(".wav")]
	if len(base) > 30+1+8 {
		t.Errorf("name too long: %q", name)
	}
	if name == autoFileName("Hello, World! This is a longer sentence than thirty characters.") {
		t.Error("auto names should not collide")
	}
}

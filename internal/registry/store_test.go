package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.SetClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})
	return store
}

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(path, []byte("pcm"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)

	voice, err := store.Create("Alice", "en", "test voice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if voice.ID == "" {
		t.Error("voice has no ID")
	}

	for _, key := range []string{voice.ID, "Alice", "alice", "ALICE"} {
		got, err := store.Get(key)
		if err != nil {
			t.Fatalf("Get(%q): %v", key, err)
		}
		if got.ID != voice.ID {
			t.Errorf("Get(%q) returned voice %s", key, got.ID)
		}
	}

	if _, err := store.Get("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nobody) = %v, want ErrNotFound", err)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("Alice", "en", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create("alice", "en", ""); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate create = %v, want ErrExists", err)
	}
}

func TestAddSampleCopiesAudio(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("Alice", "en", ""); err != nil {
		t.Fatal(err)
	}

	src := writeSample(t, t.TempDir())
	sample, err := store.AddSample("Alice", src, "hello world")
	if err != nil {
		t.Fatalf("AddSample: %v", err)
	}
	if filepath.Dir(sample.AudioPath) != store.SamplesDir() {
		t.Errorf("sample stored at %s, want under %s", sample.AudioPath, store.SamplesDir())
	}
	if _, err := os.Stat(sample.AudioPath); err != nil {
		t.Errorf("copied sample missing: %v", err)
	}

	voice, err := store.Get("Alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(voice.Samples) != 1 || voice.Samples[0].Text != "hello world" {
		t.Errorf("unexpected samples: %+v", voice.Samples)
	}
}

func TestDeleteRemovesVoiceAndFiles(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("Alice", "en", ""); err != nil {
		t.Fatal(err)
	}
	src := writeSample(t, t.TempDir())
	sample, err := store.AddSample("Alice", src, "hello")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Delete("Alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(sample.AudioPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("sample file survived delete: %v", err)
	}
	voices, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(voices) != 0 {
		t.Errorf("List after delete = %d voices", len(voices))
	}

	if err := store.Delete("Alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestHistoryRetention(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 101; i++ {
		_, err := store.AppendGeneration(Generation{
			VoiceName: "Alice",
			Text:      fmt.Sprintf("utterance %d", i),
			Language:  "en",
			AudioPath: fmt.Sprintf("out%d.wav", i),
			Duration:  1.5,
			ModelSize: "1.7B",
		})
		if err != nil {
			t.Fatalf("AppendGeneration %d: %v", i, err)
		}
	}

	history, err := store.History(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 100 {
		t.Fatalf("history length = %d, want 100", len(history))
	}
	if history[0].Text != "utterance 100" {
		t.Errorf("newest record = %q", history[0].Text)
	}
	if history[99].Text != "utterance 1" {
		t.Errorf("oldest retained record = %q, want utterance 1", history[99].Text)
	}
}

func TestHistoryLimit(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := store.AppendGeneration(Generation{VoiceName: "v", Text: fmt.Sprintf("%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	history, err := store.History(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Text != "4" || history[1].Text != "3" {
		t.Errorf("History(2) = %+v", history)
	}
}

package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWavWriteReadRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "tone.wav")

	samples := make([]float32, 480)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 24000))
	}

	if err := WriteFile(path, samples, 24000); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	decoded, rate, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if rate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > 1e-6 {
			t.Fatalf("sample %d: expected %v, got %v", i, samples[i], decoded[i])
		}
	}
}

func TestFileDuration(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "second.wav")

	if err := WriteFile(path, make([]float32, 24000), 24000); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	dur, err := FileDuration(path)
	if err != nil {
		t.Fatalf("file duration: %v", err)
	}
	if dur != 1.0 {
		t.Fatalf("expected 1.0s, got %v", dur)
	}
}

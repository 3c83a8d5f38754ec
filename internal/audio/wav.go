package audio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

const (
	formatPCM       = 1
	formatIEEEFloat = 3
)

// WriteFile writes a mono float32 waveform as an IEEE-float WAV file.
func WriteFile(path string, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 32, 1, formatIEEEFloat)
	for _, s := range samples {
		if err := enc.WriteFrame(s); err != nil {
			enc.Close()
			return fmt.Errorf("write wav frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav file: %w", err)
	}
	return nil
}

// ReadFile decodes a mono WAV file into float32 samples. Both IEEE-float
// and integer PCM encodings are accepted; multi-channel input is rejected.
func ReadFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav file: %w", err)
	}
	if dec.NumChans != 1 {
		return nil, 0, fmt.Errorf("expected mono audio, got %d channels", dec.NumChans)
	}

	samples := make([]float32, len(buf.Data))
	switch {
	case dec.WavAudioFormat == formatIEEEFloat && dec.BitDepth == 32:
		for i, v := range buf.Data {
			samples[i] = math.Float32frombits(uint32(int32(v)))
		}
	case dec.WavAudioFormat == formatPCM && dec.BitDepth == 16:
		for i, v := range buf.Data {
			samples[i] = float32(v) / 32768.0
		}
	case dec.WavAudioFormat == formatPCM && dec.BitDepth == 24:
		for i, v := range buf.Data {
			samples[i] = float32(v) / 8388608.0
		}
	case dec.WavAudioFormat == formatPCM && dec.BitDepth == 32:
		for i, v := range buf.Data {
			samples[i] = float32(v) / 2147483648.0
		}
	case dec.WavAudioFormat == formatPCM && dec.BitDepth == 8:
		for i, v := range buf.Data {
			samples[i] = (float32(v) - 128.0) / 128.0
		}
	default:
		return nil, 0, fmt.Errorf("unsupported wav encoding: format %d, %d bit", dec.WavAudioFormat, dec.BitDepth)
	}

	return samples, int(dec.SampleRate), nil
}

// FileDuration returns the duration in seconds of a WAV file.
func FileDuration(path string) (float64, error) {
	samples, rate, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	if rate == 0 {
		return 0, nil
	}
	return float64(len(samples)) / float64(rate), nil
}

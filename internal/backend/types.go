// Package backend drives text-to-speech model runtimes through one
// uniform contract, whether or not the runtime can stream partial audio.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mimicvoice/mimic/internal/audio"
	"github.com/mimicvoice/mimic/internal/config"
	"github.com/mimicvoice/mimic/internal/stream"
)

// VoicePrompt conditions generation on a reference voice. Payload carries
// whatever the producing backend needs to recognize its own prompt; other
// components treat it as opaque.
type VoicePrompt struct {
	AudioPath     string         `json:"audio_path"`
	ReferenceText string         `json:"reference_text"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Options tunes a single generation call. Seed is best-effort: the
// runtime seeds its random state before generating but bit-exact output
// across runtime versions is not guaranteed.
type Options struct {
	Language string
	Seed     *int64
	Instruct string
}

// Backend is the uniform contract over model runtimes.
//
// Load is idempotent for an already-loaded size; loading a different
// size releases the previous model first. GenerateStream always yields a
// finite chunk sequence ending in the bridge's end-of-stream sentinel,
// even when the runtime only supports batch generation or fails
// mid-stream. The capability reported by Streaming is fixed at
// construction, never probed per call.
type Backend interface {
	Load(ctx context.Context, modelSize string) error
	Unload(ctx context.Context) error
	CreateVoicePrompt(ctx context.Context, audioPath, referenceText string, useCache bool) (*VoicePrompt, bool, error)
	Generate(ctx context.Context, text string, prompt *VoicePrompt, opts Options) ([]float32, int, error)
	GenerateStream(ctx context.Context, text string, prompt *VoicePrompt, opts Options) *stream.Bridge
	Streaming() bool
	Close() error
}

// New constructs the backend selected by cfg.Mode.
func New(cfg config.BackendConfig, defaultModel string, log *slog.Logger) (Backend, error) {
	switch cfg.Mode {
	case "runner":
		return NewRunner(cfg.Command, defaultModel, cfg.TimeoutMS, log)
	case "remote":
		return NewRemote(cfg.Endpoint, defaultModel, cfg.TimeoutMS, log), nil
	case "mock":
		return NewMock(cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown backend mode: %s", cfg.Mode)
	}
}

// singleShotStream adapts a batch generation call to the streaming
// contract: the whole waveform arrives as one final chunk. Errors are
// contained at the bridge; the stream still terminates.
func singleShotStream(ctx context.Context, log *slog.Logger, generate func(context.Context) ([]float32, int, error)) *stream.Bridge {
	br := stream.New(1)
	go func() {
		samples, rate, err := generate(ctx)
		if err != nil {
			log.Warn("batch generation failed", slog.String("error", err.Error()))
			br.Finish(err)
			return
		}
		_ = br.Send(ctx, audio.Chunk{Samples: samples, SampleRate: rate, Final: true})
		br.Finish(nil)
	}()
	return br
}

// Package say orchestrates one synthesis request end to end: resolve
// the voice, build its prompt, generate audio streamed or batched, play
// it while it arrives, then persist the take and record it in history.
package say

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mimicvoice/mimic/internal/audio"
	"github.com/mimicvoice/mimic/internal/backend"
	"github.com/mimicvoice/mimic/internal/config"
	"github.com/mimicvoice/mimic/internal/registry"
)

// Sink receives generated audio for playback. Playback runs while
// generation continues; start, stop and close each happen exactly once
// per streaming session.
type Sink interface {
	Start() error
	Enqueue(block []float32)
	Buffered() int
	Stop() error
	Close() error
}

// SinkOpener opens a playback sink at the stream's sample rate. Opened
// lazily on the first chunk so a generation failure never touches the
// audio device.
type SinkOpener func(sampleRate int) (Sink, error)

// Request is one say invocation.
type Request struct {
	Text      string
	VoiceName string
	Language  string
	ModelSize string
	Instruct  string
	SavePath  string
	Seed      *int64
	Play      bool
	NoStream  bool
}

// Result summarizes a completed generation.
type Result struct {
	Voice             string  `json:"voice"`
	Text              string  `json:"text"`
	Language          string  `json:"language"`
	Duration          float64 `json:"duration"`
	AudioPath         string  `json:"audio_path"`
	Streaming         bool    `json:"streaming"`
	FirstChunkSeconds float64 `json:"first_chunk_seconds,omitempty"`
	ModelSize         string  `json:"model_size"`
}

// Orchestrator wires the registry, the backend and the playback sink.
type Orchestrator struct {
	backend backend.Backend
	store   *registry.Store
	log     *slog.Logger

	settle    time.Duration
	blockSize int

	// Warnf prints one-line human-mode diagnostics, such as the fallback
	// to batch mode. Nil in JSON mode.
	Warnf func(format string, args ...any)

	openSink  SinkOpener
	hasDevice func() bool
}

func New(b backend.Backend, store *registry.Store, cfg config.AudioConfig, log *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		backend:   b,
		store:     store,
		log:       log.With(slog.String("component", "say")),
		settle:    time.Duration(cfg.SettleMS) * time.Millisecond,
		blockSize: cfg.BlockSize,
		hasDevice: audio.HasPlaybackDevice,
	}
	o.openSink = func(sampleRate int) (Sink, error) {
		return audio.NewPlayer(sampleRate, o.blockSize)
	}
	return o
}

// SetSinkOpener overrides how playback sinks are opened, for tests.
func (o *Orchestrator) SetSinkOpener(open SinkOpener) { o.openSink = open }

// SetDeviceProbe overrides playback-device detection, for tests.
func (o *Orchestrator) SetDeviceProbe(probe func() bool) { o.hasDevice = probe }

// Run executes one request. Errors carry a taxonomy code; a context
// cancellation anywhere maps to INTERRUPTED.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	res, err := o.run(ctx, req)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)) {
		return nil, newError(CodeInterrupted, "interrupted", err)
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*Result, error) {
	voice, err := o.store.Get(req.VoiceName)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, newError(CodeNotFound, fmt.Sprintf("voice not found: %s", req.VoiceName), err)
		}
		return nil, newError(CodeNotFound, "resolve voice", err)
	}
	if len(voice.Samples) == 0 {
		return nil, newError(CodeNoSamples, fmt.Sprintf("voice %s has no samples; add one first", voice.Name), nil)
	}
	sample := voice.Samples[0]

	language := req.Language
	if language == "" {
		language = voice.Language
	}

	if err := o.backend.Load(ctx, req.ModelSize); err != nil {
		return nil, newError(CodeGenerationFailed, "load model", err)
	}

	prompt, cached, err := o.backend.CreateVoicePrompt(ctx, sample.AudioPath, sample.Text, true)
	if err != nil {
		return nil, newError(CodeGenerationFailed, "build voice prompt", err)
	}
	o.log.Debug("voice prompt ready",
		slog.String("voice", voice.Name),
		slog.Bool("cached", cached))

	opts := backend.Options{Language: language, Seed: req.Seed, Instruct: req.Instruct}

	streaming := req.Play && !req.NoStream && o.backend.Streaming()
	if req.Play && !req.NoStream && !streaming && o.Warnf != nil {
		o.Warnf("backend does not stream; generating in one pass")
	}
	if req.Play && !o.hasDevice() {
		if o.Warnf != nil {
			o.Warnf("no playback device found; generating without playback")
		}
		req.Play = false
		streaming = false
	}

	var (
		samples    []float32
		sampleRate int
		firstChunk time.Duration
	)
	if streaming {
		samples, sampleRate, firstChunk, err = o.runStreaming(ctx, req.Text, prompt, opts)
	} else {
		samples, sampleRate, err = o.runBatch(ctx, req.Text, prompt, opts, req.Play)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, newError(CodeGenerationFailed, "model produced no audio", nil)
	}

	savePath := req.SavePath
	if savePath == "" {
		savePath = filepath.Join(o.store.GenerationsDir(), autoFileName(req.Text))
	}
	if err := audio.WriteFile(savePath, samples, sampleRate); err != nil {
		return nil, newError(CodePersistFailed, fmt.Sprintf("save audio to %s", savePath), err)
	}

	duration := float64(len(samples)) / float64(sampleRate)
	if _, err := o.store.AppendGeneration(registry.Generation{
		VoiceName: voice.Name,
		Text:      req.Text,
		Language:  language,
		AudioPath: savePath,
		Duration:  duration,
		ModelSize: req.ModelSize,
		Seed:      req.Seed,
		Instruct:  req.Instruct,
	}); err != nil {
		return nil, newError(CodePersistFailed, "record generation history", err)
	}

	o.log.Info("generation complete",
		slog.String("voice", voice.Name),
		slog.Float64("duration", duration),
		slog.Bool("streaming", streaming))

	return &Result{
		Voice:             voice.Name,
		Text:              req.Text,
		Language:          language,
		Duration:          duration,
		AudioPath:         savePath,
		Streaming:         streaming,
		FirstChunkSeconds: firstChunk.Seconds(),
		ModelSize:         req.ModelSize,
	}, nil
}

// runStreaming consumes the bridge chunk by chunk, opening the sink at
// the stream's sample rate on the first chunk and queueing each block
// while accumulating the full take.
func (o *Orchestrator) runStreaming(ctx context.Context, text string, prompt *backend.VoicePrompt, opts backend.Options) ([]float32, int, time.Duration, error) {
	br := o.backend.GenerateStream(ctx, text, prompt, opts)

	var (
		sink       Sink
		samples    []float32
		sampleRate int
		firstChunk time.Duration
	)
	started := time.Now()
	defer func() {
		if sink != nil {
			_ = sink.Stop()
			_ = sink.Close()
		}
	}()

	for chunk := range br.Chunks() {
		if sink == nil {
			firstChunk = time.Since(started)
			sampleRate = chunk.SampleRate
			opened, err := o.openSink(sampleRate)
			if err != nil {
				return nil, 0, 0, newError(CodeDeviceUnavailable, "open playback device", err)
			}
			sink = opened
			if err := sink.Start(); err != nil {
				return nil, 0, 0, newError(CodeDeviceUnavailable, "start playback device", err)
			}
		}
		samples = append(samples, chunk.Samples...)
		sink.Enqueue(chunk.Samples)
	}
	if err := br.Err(); err != nil {
		return nil, 0, 0, newError(CodeGenerationFailed, "streamed generation failed", err)
	}
	if len(samples) == 0 {
		return nil, 0, 0, newError(CodeGenerationFailed, "stream ended without audio", nil)
	}
	br.Join(2 * time.Second)

	if err := o.drain(ctx, sink, sampleRate); err != nil {
		return nil, 0, 0, err
	}
	return samples, sampleRate, firstChunk, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, text string, prompt *backend.VoicePrompt, opts backend.Options, play bool) ([]float32, int, error) {
	samples, sampleRate, err := o.backend.Generate(ctx, text, prompt, opts)
	if err != nil {
		return nil, 0, newError(CodeGenerationFailed, "generation failed", err)
	}
	if !play || len(samples) == 0 {
		return samples, sampleRate, nil
	}

	sink, err := o.openSink(sampleRate)
	if err != nil {
		return nil, 0, newError(CodeDeviceUnavailable, "open playback device", err)
	}
	defer func() {
		_ = sink.Stop()
		_ = sink.Close()
	}()
	if err := sink.Start(); err != nil {
		return nil, 0, newError(CodeDeviceUnavailable, "start playback device", err)
	}
	sink.Enqueue(samples)
	if err := o.drain(ctx, sink, sampleRate); err != nil {
		return nil, 0, err
	}
	return samples, sampleRate, nil
}

// drain waits for the sink to play out its queue: buffered/rate seconds
// plus a settle margin, re-checked so late-queued audio still plays.
func (o *Orchestrator) drain(ctx context.Context, sink Sink, sampleRate int) error {
	for {
		buffered := sink.Buffered()
		if buffered == 0 {
			break
		}
		wait := time.Duration(float64(buffered)/float64(sampleRate)*float64(time.Second)) + o.settle
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return newError(CodeInterrupted, "interrupted", ctx.Err())
		}
	}
	select {
	case <-time.After(o.settle):
	case <-ctx.Done():
		return newError(CodeInterrupted, "interrupted", ctx.Err())
	}
	return nil
}

// autoFileName derives an output name from a sanitized prefix of the
// text plus a short random suffix.
func autoFileName(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
		if b.Len() >= 30 {
			break
		}
	}
	prefix := strings.Trim(b.String(), "_")
	if prefix == "" {
		prefix = "generation"
	}
	return fmt.Sprintf("%s_%s.wav", prefix, uuid.NewString()[:8])
}

package backend

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/mimicvoice/mimic/internal/audio"
	"github.com/mimicvoice/mimic/internal/stream"
)

// Runner drives a persistent model-runner subprocess over a JSON-lines
// protocol: one request object per line on stdin, one or more response
// objects per line on stdout. Audio travels as base64 little-endian
// float32 PCM. The runner generates chunk by chunk, so this is the
// natively streaming backend variant: during a streamed generation the
// true last payload carries "final": true.
type Runner struct {
	cmd         []string
	defaultSize string
	timeout     time.Duration
	log         *slog.Logger
	cache       *promptCache

	mu         sync.Mutex // serializes process lifecycle and conversations
	proc       *exec.Cmd
	stdin      io.WriteCloser
	scanner    *bufio.Scanner
	loadedSize string
}

type runnerRequest struct {
	Op            string       `json:"op"`
	ModelSize     string       `json:"model_size,omitempty"`
	AudioPath     string       `json:"audio_path,omitempty"`
	ReferenceText string       `json:"reference_text,omitempty"`
	Text          string       `json:"text,omitempty"`
	Prompt        *VoicePrompt `json:"prompt,omitempty"`
	Language      string       `json:"language,omitempty"`
	Seed          *int64       `json:"seed,omitempty"`
	Instruct      string       `json:"instruct,omitempty"`
	Stream        bool         `json:"stream,omitempty"`
}

type runnerResponse struct {
	OK         bool         `json:"ok"`
	Error      string       `json:"error,omitempty"`
	Prompt     *VoicePrompt `json:"prompt,omitempty"`
	PCMBase64  string       `json:"pcm_base64,omitempty"`
	SampleRate int          `json:"sample_rate,omitempty"`
	Final      bool         `json:"final,omitempty"`
}

func NewRunner(command, defaultModel string, timeoutMS int, log *slog.Logger) (*Runner, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse runner command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("runner command empty")
	}
	return &Runner{
		cmd:         args,
		defaultSize: defaultModel,
		timeout:     time.Duration(timeoutMS) * time.Millisecond,
		log:         log.With(slog.String("component", "backend.runner")),
		cache:       newPromptCache(),
	}, nil
}

func (r *Runner) Streaming() bool { return true }

func (r *Runner) Load(ctx context.Context, modelSize string) error {
	if modelSize == "" {
		modelSize = r.defaultSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc != nil && r.loadedSize == modelSize {
		return nil
	}
	if err := r.ensureStartedLocked(); err != nil {
		return err
	}
	if r.loadedSize != "" && r.loadedSize != modelSize {
		if _, err := r.roundTripLocked(ctx, runnerRequest{Op: "unload"}); err != nil {
			return fmt.Errorf("unload model %s: %w", r.loadedSize, err)
		}
		r.loadedSize = ""
	}

	r.log.Info("loading model", slog.String("size", modelSize))
	if _, err := r.roundTripLocked(ctx, runnerRequest{Op: "load", ModelSize: modelSize}); err != nil {
		return fmt.Errorf("load model %s: %w", modelSize, err)
	}
	r.loadedSize = modelSize
	return nil
}

func (r *Runner) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc == nil || r.loadedSize == "" {
		return nil
	}
	if _, err := r.roundTripLocked(ctx, runnerRequest{Op: "unload"}); err != nil {
		return fmt.Errorf("unload model: %w", err)
	}
	r.loadedSize = ""
	return nil
}

func (r *Runner) CreateVoicePrompt(ctx context.Context, audioPath, referenceText string, useCache bool) (*VoicePrompt, bool, error) {
	if err := r.Load(ctx, ""); err != nil {
		return nil, false, err
	}

	key := ""
	if useCache {
		k, err := promptCacheKey(audioPath, referenceText)
		if err == nil {
			key = k
			if prompt, ok := r.cache.get(key); ok {
				return prompt, true, nil
			}
		}
	}

	r.mu.Lock()
	resp, err := r.roundTripLocked(ctx, runnerRequest{
		Op:            "prompt",
		AudioPath:     audioPath,
		ReferenceText: referenceText,
	})
	r.mu.Unlock()
	if err != nil {
		return nil, false, fmt.Errorf("create voice prompt: %w", err)
	}
	prompt := resp.Prompt
	if prompt == nil {
		prompt = &VoicePrompt{AudioPath: audioPath, ReferenceText: referenceText}
	}

	if useCache && key != "" {
		r.cache.put(key, prompt)
	}
	return prompt, false, nil
}

func (r *Runner) Generate(ctx context.Context, text string, prompt *VoicePrompt, opts Options) ([]float32, int, error) {
	if err := r.Load(ctx, ""); err != nil {
		return nil, 0, err
	}

	r.mu.Lock()
	resp, err := r.roundTripLocked(ctx, runnerRequest{
		Op:       "generate",
		Text:     text,
		Prompt:   prompt,
		Language: opts.Language,
		Seed:     opts.Seed,
		Instruct: opts.Instruct,
	})
	r.mu.Unlock()
	if err != nil {
		return nil, 0, fmt.Errorf("generate: %w", err)
	}

	samples, err := decodePCM(resp.PCMBase64)
	if err != nil {
		return nil, 0, fmt.Errorf("generate: %w", err)
	}
	return samples, resp.SampleRate, nil
}

// GenerateStream runs one streamed generation on a producer goroutine.
// Chunks reach the bridge in the order the runner emits them; any
// mid-stream failure is logged, recorded on the bridge and still closes
// the stream, so the consumer never hangs.
func (r *Runner) GenerateStream(ctx context.Context, text string, prompt *VoicePrompt, opts Options) *stream.Bridge {
	br := stream.New(8)
	go func() {
		defer br.Finish(nil)

		if err := r.Load(ctx, ""); err != nil {
			r.log.Warn("streaming load failed", slog.String("error", err.Error()))
			br.Finish(err)
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		req := runnerRequest{
			Op:       "generate",
			Text:     text,
			Prompt:   prompt,
			Language: opts.Language,
			Seed:     opts.Seed,
			Instruct: opts.Instruct,
			Stream:   true,
		}
		if err := r.writeLocked(req); err != nil {
			r.log.Warn("streaming request failed", slog.String("error", err.Error()))
			br.Finish(err)
			return
		}

		for {
			if ctx.Err() != nil {
				r.killLocked()
				br.Finish(ctx.Err())
				return
			}
			resp, err := r.readLocked()
			if err != nil {
				r.log.Warn("streaming read failed", slog.String("error", err.Error()))
				r.killLocked()
				br.Finish(err)
				return
			}
			if resp.Error != "" {
				r.log.Warn("streaming generation error", slog.String("error", resp.Error))
				br.Finish(errors.New(resp.Error))
				return
			}
			samples, err := decodePCM(resp.PCMBase64)
			if err != nil {
				r.log.Warn("streaming decode failed", slog.String("error", err.Error()))
				r.killLocked()
				br.Finish(err)
				return
			}
			if len(samples) > 0 {
				chunk := audio.Chunk{Samples: samples, SampleRate: resp.SampleRate, Final: resp.Final}
				if err := br.Send(ctx, chunk); err != nil {
					br.Finish(err)
					return
				}
			}
			if resp.Final {
				return
			}
		}
	}()
	return br
}

func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc == nil {
		return nil
	}
	_ = r.writeLocked(runnerRequest{Op: "shutdown"})
	_ = r.stdin.Close()

	done := make(chan error, 1)
	go func(proc *exec.Cmd) { done <- proc.Wait() }(r.proc)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = r.proc.Process.Kill()
	}
	r.proc = nil
	r.stdin = nil
	r.scanner = nil
	r.loadedSize = ""
	return nil
}

func (r *Runner) ensureStartedLocked() error {
	if r.proc != nil {
		return nil
	}

	cmd := exec.Command(r.cmd[0], r.cmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("runner stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("runner stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start runner: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	// Streamed chunks arrive as single lines of base64 PCM; allow for
	// several seconds of audio per line.
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)

	r.proc = cmd
	r.stdin = stdin
	r.scanner = scanner
	r.log.Info("model runner started", slog.String("command", r.cmd[0]))
	return nil
}

// roundTripLocked performs a single request/response exchange, honoring
// cancellation and the configured timeout. A cancelled or timed-out
// exchange desynchronizes the conversation, so the process is killed and
// restarted lazily on the next call.
func (r *Runner) roundTripLocked(ctx context.Context, req runnerRequest) (*runnerResponse, error) {
	if err := r.writeLocked(req); err != nil {
		return nil, err
	}

	type result struct {
		resp *runnerResponse
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := r.readLocked()
		ch <- result{resp, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			r.killLocked()
			return nil, res.err
		}
		if res.resp.Error != "" {
			return nil, errors.New(res.resp.Error)
		}
		return res.resp, nil
	case <-ctx.Done():
		r.killLocked()
		return nil, ctx.Err()
	case <-time.After(r.timeout):
		r.killLocked()
		return nil, errors.New("model runner timed out")
	}
}

func (r *Runner) writeLocked(req runnerRequest) error {
	if err := r.ensureStartedLocked(); err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := r.stdin.Write(append(data, '\n')); err != nil {
		r.killLocked()
		return fmt.Errorf("write to runner: %w", err)
	}
	return nil
}

func (r *Runner) readLocked() (*runnerResponse, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp runnerResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("decode runner response: %w", err)
		}
		return &resp, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read from runner: %w", err)
	}
	return nil, errors.New("runner closed its output")
}

func (r *Runner) killLocked() {
	if r.proc == nil {
		return
	}
	_ = r.stdin.Close()
	_ = r.proc.Process.Kill()
	go func(proc *exec.Cmd) { _ = proc.Wait() }(r.proc)
	r.proc = nil
	r.stdin = nil
	r.scanner = nil
	r.loadedSize = ""
}

func decodePCM(pcmBase64 string) ([]float32, error) {
	if pcmBase64 == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(pcmBase64)
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	return audio.BytesToFloat32(data)
}

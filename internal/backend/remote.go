package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mimicvoice/mimic/internal/stream"
)

// Remote drives a batch-only synthesis server over HTTP. The server has
// no chunked endpoint, so GenerateStream is a façade over Generate: the
// whole utterance arrives as a single final chunk. Consumers cannot tell
// the difference from a natively streaming backend.
type Remote struct {
	endpoint    string
	defaultSize string
	client      *http.Client
	log         *slog.Logger
	cache       *promptCache

	mu         sync.Mutex
	loadedSize string
}

type remoteLoadRequest struct {
	ModelSize string `json:"model_size"`
}

type remotePromptRequest struct {
	AudioBase64   string `json:"audio_base64"`
	ReferenceText string `json:"reference_text"`
}

type remotePromptResponse struct {
	Prompt *VoicePrompt `json:"prompt"`
}

type remoteGenerateRequest struct {
	Text     string       `json:"text"`
	Prompt   *VoicePrompt `json:"prompt"`
	Language string       `json:"language,omitempty"`
	Seed     *int64       `json:"seed,omitempty"`
	Instruct string       `json:"instruct,omitempty"`
}

type remoteGenerateResponse struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate"`
}

func NewRemote(endpoint, defaultModel string, timeoutMS int, log *slog.Logger) *Remote {
	return &Remote{
		endpoint:    endpoint,
		defaultSize: defaultModel,
		client:      &http.Client{Timeout: time.Duration(timeoutMS) * time.Millisecond},
		log:         log.With(slog.String("component", "backend.remote")),
		cache:       newPromptCache(),
	}
}

func (r *Remote) Streaming() bool { return false }

func (r *Remote) Load(ctx context.Context, modelSize string) error {
	if modelSize == "" {
		modelSize = r.defaultSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadedSize == modelSize {
		return nil
	}
	if r.loadedSize != "" {
		if err := r.post(ctx, "/v1/models/unload", struct{}{}, nil); err != nil {
			return fmt.Errorf("unload model %s: %w", r.loadedSize, err)
		}
		r.loadedSize = ""
	}

	r.log.Info("loading model", slog.String("size", modelSize))
	if err := r.post(ctx, "/v1/models/load", remoteLoadRequest{ModelSize: modelSize}, nil); err != nil {
		return fmt.Errorf("load model %s: %w", modelSize, err)
	}
	r.loadedSize = modelSize
	return nil
}

func (r *Remote) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadedSize == "" {
		return nil
	}
	if err := r.post(ctx, "/v1/models/unload", struct{}{}, nil); err != nil {
		return fmt.Errorf("unload model: %w", err)
	}
	r.loadedSize = ""
	return nil
}

func (r *Remote) CreateVoicePrompt(ctx context.Context, audioPath, referenceText string, useCache bool) (*VoicePrompt, bool, error) {
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

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, false, fmt.Errorf("read reference audio: %w", err)
	}
	var resp remotePromptResponse
	err = r.post(ctx, "/v1/voice-prompts", remotePromptRequest{
		AudioBase64:   base64.StdEncoding.EncodeToString(data),
		ReferenceText: referenceText,
	}, &resp)
	if err != nil {
		return nil, false, fmt.Errorf("create voice prompt: %w", err)
	}
	prompt := resp.Prompt
	if prompt == nil {
		prompt = &VoicePrompt{AudioPath: audioPath, ReferenceText: referenceText}
	} else {
		prompt.AudioPath = audioPath
		prompt.ReferenceText = referenceText
	}

	if useCache && key != "" {
		r.cache.put(key, prompt)
	}
	return prompt, false, nil
}

func (r *Remote) Generate(ctx context.Context, text string, prompt *VoicePrompt, opts Options) ([]float32, int, error) {
	if err := r.Load(ctx, ""); err != nil {
		return nil, 0, err
	}

	var resp remoteGenerateResponse
	err := r.post(ctx, "/v1/generate", remoteGenerateRequest{
		Text:     text,
		Prompt:   prompt,
		Language: opts.Language,
		Seed:     opts.Seed,
		Instruct: opts.Instruct,
	}, &resp)
	if err != nil {
		return nil, 0, fmt.Errorf("generate: %w", err)
	}

	samples, err := decodePCM(resp.PCMBase64)
	if err != nil {
		return nil, 0, fmt.Errorf("generate: %w", err)
	}
	return samples, resp.SampleRate, nil
}

func (r *Remote) GenerateStream(ctx context.Context, text string, prompt *VoicePrompt, opts Options) *stream.Bridge {
	return singleShotStream(ctx, r.log, func(ctx context.Context) ([]float32, int, error) {
		return r.Generate(ctx, text, prompt, opts)
	})
}

func (r *Remote) Close() error { return nil }

func (r *Remote) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("synthesis server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

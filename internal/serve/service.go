package serve

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mimicvoice/mimic/internal/audio"
	"github.com/mimicvoice/mimic/internal/backend"
	"github.com/mimicvoice/mimic/internal/bus"
	"github.com/mimicvoice/mimic/internal/eventlog"
	"github.com/mimicvoice/mimic/internal/registry"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const synthesisTimeout = 120 * time.Second

// Service subscribes to say requests on the bus and streams synthesized
// audio back chunk by chunk.
type Service struct {
	bus     *bus.Client
	backend backend.Backend
	store   *registry.Store
	events  *eventlog.Log
	sub     *nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewService(parent context.Context, busClient *bus.Client, b backend.Backend, store *registry.Store, events *eventlog.Log, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:     busClient,
		backend: b,
		store:   store,
		events:  events,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.With(slog.String("component", "speech-service")),
		tracer:  otel.Tracer("mimic/serve"),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(SubjectSayRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("speech service listening", slog.String("subject", SubjectSayRequest))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req SayRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode say request", slogError(err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, synthesisTimeout)
		defer cancel()

		ctx, span := s.tracer.Start(ctx, "say",
			trace.WithAttributes(
				attribute.String("session_id", req.SessionID),
				attribute.String("voice", req.Voice),
			))
		defer span.End()

		if err := s.events.BeginSession(ctx, req.SessionID, req.Voice, req.ModelSize); err != nil {
			s.logger.Warn("event log session failed", slogError(err))
		}

		if err := s.synthesize(ctx, req); err != nil {
			s.logger.Warn("synthesis failed",
				slog.String("session_id", req.SessionID),
				slogError(err))
			span.RecordError(err)
			s.recordEvent(ctx, req.SessionID, "failed", err.Error())
			s.publishStatus(Status{SessionID: req.SessionID, Error: err.Error(), Timestamp: time.Now().UTC()})
		}
	}()
}

func (s *Service) synthesize(ctx context.Context, req SayRequest) error {
	voice, err := s.store.Get(req.Voice)
	if err != nil {
		return err
	}
	if len(voice.Samples) == 0 {
		return errors.New("voice has no samples")
	}
	sample := voice.Samples[0]

	prompt, _, err := s.backend.CreateVoicePrompt(ctx, sample.AudioPath, sample.Text, true)
	if err != nil {
		return err
	}
	s.recordEvent(ctx, req.SessionID, "prompt_ready", voice.Name)

	language := req.Language
	if language == "" {
		language = voice.Language
	}
	br := s.backend.GenerateStream(ctx, req.Text, prompt, backend.Options{
		Language: language,
		Seed:     req.Seed,
		Instruct: req.Instruct,
	})

	sequence := 0
	for chunk := range br.Chunks() {
		if sequence == 0 {
			s.recordEvent(ctx, req.SessionID, "first_chunk", "")
		}
		s.publishChunk(req.SessionID, sequence, chunk)
		sequence++
	}
	if err := br.Err(); err != nil {
		return err
	}

	s.recordEvent(ctx, req.SessionID, "stream_done", "")
	s.publishStatus(Status{SessionID: req.SessionID, Completed: true, Timestamp: time.Now().UTC()})
	return nil
}

func (s *Service) publishChunk(sessionID string, sequence int, chunk audio.Chunk) {
	packet := AudioChunk{
		SessionID:  sessionID,
		Sequence:   sequence,
		SampleRate: chunk.SampleRate,
		Channels:   1,
		PCM:        audio.Float32ToBytes(chunk.Samples),
		Final:      chunk.Final,
	}
	data, err := json.Marshal(packet)
	if err != nil {
		s.logger.Warn("failed to marshal audio chunk", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(SubjectSayAudio, data); err != nil {
		s.logger.Warn("failed to publish audio chunk", slogError(err))
	}
}

func (s *Service) publishStatus(status Status) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(SubjectSayDone, data); err != nil {
		s.logger.Warn("failed to publish status", slogError(err))
	}
}

func (s *Service) recordEvent(ctx context.Context, sessionID, eventType, detail string) {
	evt := eventlog.Event{SessionID: sessionID, Type: eventType}
	if detail != "" {
		evt.Payload = []byte(detail)
	}
	if err := s.events.Append(ctx, evt); err != nil {
		s.logger.Warn("event log append failed", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

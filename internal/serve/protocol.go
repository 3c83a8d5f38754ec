package serve

import "time"

// Bus subjects for the speech service.
const (
	SubjectSayRequest = "tts.say.request"
	SubjectSayAudio   = "tts.say.audio"
	SubjectSayDone    = "tts.say.done"
)

// SayRequest asks the service to synthesize one utterance.
type SayRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`
	Language  string `json:"language,omitempty"`
	ModelSize string `json:"model_size,omitempty"`
	Seed      *int64 `json:"seed,omitempty"`
	Instruct  string `json:"instruct,omitempty"`
}

// AudioChunk carries PCM audio on the bus as little-endian float32.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Status announces the end of a synthesis session.
type Status struct {
	SessionID string    `json:"session_id"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Package registry persists voices, their reference samples, and the
// generation history as a single JSON document under the data directory.
// Every mutation loads the full document, changes it in memory and
// writes it back, so the last writer wins. That is fine for a
// single-user CLI; there is no cross-process locking.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound reports a voice that matches neither an ID nor a name.
var ErrNotFound = errors.New("voice not found")

// ErrExists reports a create collision on a voice name.
var ErrExists = errors.New("voice already exists")

const historyRetention = 100

// Sample is one reference recording with its transcript.
type Sample struct {
	ID        string `json:"id"`
	AudioPath string `json:"audio_path"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// Voice is a named reference identity built from one or more samples.
type Voice struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Language    string   `json:"language"`
	Description string   `json:"description"`
	Samples     []Sample `json:"samples"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Generation records one completed synthesis.
type Generation struct {
	ID        string  `json:"id"`
	VoiceName string  `json:"voice_name"`
	Text      string  `json:"text"`
	Language  string  `json:"language"`
	AudioPath string  `json:"audio_path"`
	Duration  float64 `json:"duration"`
	ModelSize string  `json:"model_size"`
	Seed      *int64  `json:"seed,omitempty"`
	Instruct  string  `json:"instruct,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type document struct {
	Voices  []Voice      `json:"voices"`
	History []Generation `json:"history"`
}

// Store owns the voices.json document and the samples/generations
// directories beneath the data directory.
type Store struct {
	dataDir string
	clock   func() time.Time

	mu sync.Mutex
}

// Open prepares the data directory layout and returns a store rooted
// there.
func Open(dataDir string) (*Store, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "samples"), filepath.Join(dataDir, "generations")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &Store{dataDir: dataDir, clock: time.Now}, nil
}

// SetClock overrides the timestamp source, for tests.
func (s *Store) SetClock(clock func() time.Time) { s.clock = clock }

// DataDir returns the store root.
func (s *Store) DataDir() string { return s.dataDir }

// SamplesDir returns the directory reference recordings are copied into.
func (s *Store) SamplesDir() string { return filepath.Join(s.dataDir, "samples") }

// GenerationsDir returns the directory auto-named output lands in.
func (s *Store) GenerationsDir() string { return filepath.Join(s.dataDir, "generations") }

func (s *Store) documentPath() string { return filepath.Join(s.dataDir, "voices.json") }

func (s *Store) now() string { return s.clock().UTC().Format(time.RFC3339) }

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.documentPath())
	if errors.Is(err, os.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read voice registry: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode voice registry: %w", err)
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode voice registry: %w", err)
	}
	if err := os.WriteFile(s.documentPath(), data, 0o644); err != nil {
		return fmt.Errorf("write voice registry: %w", err)
	}
	return nil
}

// List returns all voices in creation order.
func (s *Store) List() ([]Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Voices, nil
}

// Get resolves a voice by ID, exact name, or case-insensitive name, in
// that order.
func (s *Store) Get(nameOrID string) (*Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if v := findVoice(doc, nameOrID); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, nameOrID)
}

func findVoice(doc *document, nameOrID string) *Voice {
	for i := range doc.Voices {
		if doc.Voices[i].ID == nameOrID {
			return &doc.Voices[i]
		}
	}
	for i := range doc.Voices {
		if doc.Voices[i].Name == nameOrID {
			return &doc.Voices[i]
		}
	}
	lower := strings.ToLower(nameOrID)
	for i := range doc.Voices {
		if strings.ToLower(doc.Voices[i].Name) == lower {
			return &doc.Voices[i]
		}
	}
	return nil
}

// Create registers a new voice. Names are unique case-insensitively.
func (s *Store) Create(name, language, description string) (*Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, v := range doc.Voices {
		if strings.EqualFold(v.Name, name) {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
	}

	now := s.now()
	voice := Voice{
		ID:          uuid.NewString(),
		Name:        name,
		Language:    language,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc.Voices = append(doc.Voices, voice)
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return &voice, nil
}

// AddSample copies the recording into the samples directory and
// attaches it to the voice.
func (s *Store) AddSample(nameOrID, audioPath, text string) (*Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	voice := findVoice(doc, nameOrID)
	if voice == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nameOrID)
	}

	id := uuid.NewString()
	dest := filepath.Join(s.SamplesDir(), fmt.Sprintf("%s_%s%s", voice.Name, id[:8], filepath.Ext(audioPath)))
	if err := copyFile(audioPath, dest); err != nil {
		return nil, fmt.Errorf("copy sample audio: %w", err)
	}

	sample := Sample{
		ID:        id,
		AudioPath: dest,
		Text:      text,
		CreatedAt: s.now(),
	}
	voice.Samples = append(voice.Samples, sample)
	voice.UpdatedAt = sample.CreatedAt
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return &sample, nil
}

// Delete removes a voice and its sample files from disk.
func (s *Store) Delete(nameOrID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Voices {
		v := &doc.Voices[i]
		if v.ID != nameOrID && v.Name != nameOrID {
			continue
		}
		for _, sample := range v.Samples {
			if err := os.Remove(sample.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove sample audio: %w", err)
			}
		}
		doc.Voices = append(doc.Voices[:i], doc.Voices[i+1:]...)
		return s.save(doc)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, nameOrID)
}

// AppendGeneration records a completed synthesis, keeping only the most
// recent entries.
func (s *Store) AppendGeneration(gen Generation) (*Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	if gen.CreatedAt == "" {
		gen.CreatedAt = s.now()
	}
	doc.History = append(doc.History, gen)
	if len(doc.History) > historyRetention {
		doc.History = doc.History[len(doc.History)-historyRetention:]
	}
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return &gen, nil
}

// History returns up to limit records, newest first.
func (s *Store) History(limit int) ([]Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	n := len(doc.History)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Generation, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, doc.History[i])
	}
	return out, nil
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
)

// promptCacheKey hashes the reference audio bytes together with the
// reference text. Computing the key re-reads the file, so a stale entry
// for a deleted file can never be served: key derivation fails first.
func promptCacheKey(audioPath, referenceText string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(referenceText))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// promptCache memoizes voice prompts for the lifetime of the process.
// Unbounded: a CLI invocation touches a handful of voices at most.
type promptCache struct {
	mu      sync.Mutex
	entries map[string]*VoicePrompt
}

func newPromptCache() *promptCache {
	return &promptCache{entries: make(map[string]*VoicePrompt)}
}

func (c *promptCache) get(key string) (*VoicePrompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prompt, ok := c.entries[key]
	return prompt, ok
}

func (c *promptCache) put(key string, prompt *VoicePrompt) {
	c.mu.Lock()
	c.entries[key] = prompt
	c.mu.Unlock()
}

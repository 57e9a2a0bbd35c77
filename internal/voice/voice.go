// Package voice synthesizes spoken audio for companion replies, with
// a content-addressed cache in front of the speech provider.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haven-app/haven/internal/cache"
	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/provider"
	"github.com/haven-app/haven/internal/resilience"
)

// Dependency is the orchestrator dependency name for speech synthesis.
const Dependency = "speech"

// CacheTTL is how long synthesized clips stay cached. Identical text
// with the same voice always produces identical audio, so the TTL is
// generous.
const CacheTTL = 24 * time.Hour

// Service synthesizes audio for text, short-circuiting repeated
// requests through the cache.
type Service struct {
	cache  *cache.Cache
	orch   *resilience.Orchestrator
	synth  provider.SpeechSynthesizer
	logger log.Logger
}

// New creates a voice Service.
func New(c *cache.Cache, orch *resilience.Orchestrator, synth provider.SpeechSynthesizer, logger log.Logger) *Service {
	return &Service{cache: c, orch: orch, synth: synth, logger: logger}
}

// cachedAudio is the cache serialization of a clip. json encodes the
// byte slice as base64.
type cachedAudio struct {
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// Synthesize returns audio for text in the given voice. A cache hit
// bypasses the orchestrator entirely; a miss goes through the full
// gate, breaker and retry stack before the clip is cached.
func (s *Service) Synthesize(ctx context.Context, text, voice string) (provider.Audio, error) {
	key := cache.ContentKey("voice", "clip", text, voice)

	if raw, ok := s.cache.Get(key); ok {
		var cached cachedAudio
		if err := json.Unmarshal(raw, &cached); err == nil {
			s.logger.Debug("voice cache hit", "key", key)
			return provider.Audio{Data: cached.Data, MIME: cached.MIME}, nil
		}
		// Unreadable entry, drop it and synthesize fresh.
		s.cache.Delete(key)
	}

	audio, err := resilience.Execute(ctx, s.orch, Dependency,
		func(ctx context.Context) (provider.Audio, error) {
			return s.synth.Synthesize(ctx, provider.SpeechRequest{Text: text, Voice: voice})
		}, nil)
	if err != nil {
		return provider.Audio{}, fmt.Errorf("synthesize voice: %w", err)
	}

	if raw, err := json.Marshal(cachedAudio{MIME: audio.MIME, Data: audio.Data}); err == nil {
		s.cache.Set(key, raw, CacheTTL)
	}
	return audio, nil
}

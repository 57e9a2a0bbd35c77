package testutil

import (
	"context"
	"sync"

	"github.com/haven-app/haven/internal/provider"
)

// ScriptedGenerator is a TextGenerator whose responses are scripted
// per call. Each Script entry is consumed by one Generate call; when
// the script runs out the last entry repeats.
type ScriptedGenerator struct {
	Script []GeneratorStep

	mu    sync.Mutex
	calls int
}

// GeneratorStep describes one scripted Generate call.
type GeneratorStep struct {
	// Chunks streamed to the callback before returning.
	Chunks []string
	// Err returned instead of a reply. Chunks already listed are
	// still streamed first, so failures mid-stream can be scripted.
	Err error
}

// Generate implements provider.TextGenerator.
func (g *ScriptedGenerator) Generate(ctx context.Context, _ provider.GenerateRequest, onChunk provider.ChunkFunc) (string, error) {
	g.mu.Lock()
	step := g.step()
	g.calls++
	g.mu.Unlock()

	var full string
	for _, chunk := range step.Chunks {
		if onChunk != nil {
			if err := onChunk(ctx, chunk); err != nil {
				return "", err
			}
		}
		full += chunk
	}
	if step.Err != nil {
		return "", step.Err
	}
	return full, nil
}

// Calls reports how many times Generate has been invoked.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *ScriptedGenerator) step() GeneratorStep {
	if len(g.Script) == 0 {
		return GeneratorStep{Chunks: []string{"ok"}}
	}
	if g.calls >= len(g.Script) {
		return g.Script[len(g.Script)-1]
	}
	return g.Script[g.calls]
}

// ScriptedSpeech is a SpeechSynthesizer returning fixed audio or a
// fixed error, counting calls so cache behavior can be asserted.
type ScriptedSpeech struct {
	Audio provider.Audio
	Err   error

	mu    sync.Mutex
	calls int
}

// Synthesize implements provider.SpeechSynthesizer.
func (s *ScriptedSpeech) Synthesize(context.Context, provider.SpeechRequest) (provider.Audio, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.Err != nil {
		return provider.Audio{}, s.Err
	}
	return s.Audio, nil
}

// Calls reports how many times Synthesize has been invoked.
func (s *ScriptedSpeech) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

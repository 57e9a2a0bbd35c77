package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// SimulatedGenerator produces canned companion replies without any
// upstream call. Used when no API key is configured so the full
// streaming path stays exercisable in development.
type SimulatedGenerator struct {
	// Delay between emitted chunks, to mimic model pacing. Zero means
	// no artificial delay.
	Delay time.Duration
}

// Generate implements TextGenerator. The reply echoes back a short
// reflective response built from the input, streamed word by word.
func (p *SimulatedGenerator) Generate(ctx context.Context, req GenerateRequest, onChunk ChunkFunc) (string, error) {
	reply := simulatedReply(req)

	if onChunk != nil {
		for _, word := range strings.SplitAfter(reply, " ") {
			if p.Delay > 0 {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(p.Delay):
				}
			}
			if err := onChunk(ctx, word); err != nil {
				return "", err
			}
		}
	}
	return reply, nil
}

func simulatedReply(req GenerateRequest) string {
	if req.Input == "" {
		return "I'm here whenever you want to pick this back up."
	}
	return fmt.Sprintf("Thank you for sharing that. It sounds like %q has been on your mind. What feels most important about it right now?",
		truncate(req.Input, 80))
}

// truncate cuts s after n runes, on a rune boundary.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// SimulatedSpeech returns a fixed silent WAV clip instead of calling a
// TTS backend.
type SimulatedSpeech struct{}

// Synthesize implements SpeechSynthesizer.
func (p *SimulatedSpeech) Synthesize(_ context.Context, req SpeechRequest) (Audio, error) {
	if req.Text == "" {
		return Audio{}, ErrNoAudio
	}
	return Audio{Data: silentWAV(), MIME: "audio/wav"}, nil
}

// silentWAV builds a minimal valid WAV header with no samples.
func silentWAV() []byte {
	return []byte{
		'R', 'I', 'F', 'F', 36, 0, 0, 0, 'W', 'A', 'V', 'E',
		'f', 'm', 't', ' ', 16, 0, 0, 0, 1, 0, 1, 0,
		0x80, 0x3e, 0, 0, 0, 0x7d, 0, 0, 2, 0, 16, 0,
		'd', 'a', 't', 'a', 0, 0, 0, 0,
	}
}

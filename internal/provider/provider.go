// Package provider abstracts the upstream AI services: streaming text
// generation for companion replies and speech synthesis for voice
// playback. Implementations are swapped between the real Gemini-backed
// providers and deterministic simulated ones for development.
package provider

import (
	"context"
	"errors"
)

// Sentinel errors shared by provider implementations.
var (
	// ErrEmptyResponse indicates the upstream returned no usable content.
	ErrEmptyResponse = errors.New("provider: empty response")
	// ErrNoAudio indicates a synthesis response carried no audio data.
	ErrNoAudio = errors.New("provider: no audio in response")
)

// Turn is one prior exchange in a conversation, in chronological order.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// GenerateRequest describes one streamed generation call.
type GenerateRequest struct {
	// System is the system prompt establishing the companion persona
	// and the current conversation phase.
	System string
	// History holds prior turns, oldest first.
	History []Turn
	// Input is the new user message. May be empty when replaying a
	// conversation into an open stream with no pending turn.
	Input string
}

// ChunkFunc receives each partial text fragment as it arrives.
// Returning an error aborts the generation.
type ChunkFunc func(ctx context.Context, text string) error

// TextGenerator produces a streamed model reply.
//
// Generate invokes onChunk zero or more times with partial text, then
// returns the full assembled reply. Implementations must not call
// onChunk after returning.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest, onChunk ChunkFunc) (string, error)
}

// SpeechRequest describes one synthesis call.
type SpeechRequest struct {
	Text  string
	Voice string // prebuilt voice name; implementation default when empty
}

// Audio is a synthesized clip.
type Audio struct {
	Data []byte
	MIME string
}

// SpeechSynthesizer turns text into spoken audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (Audio, error)
}

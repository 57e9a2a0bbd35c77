package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSimulatedGenerator_StreamsFullReply(t *testing.T) {
	t.Parallel()

	gen := &SimulatedGenerator{}

	var streamed strings.Builder
	full, err := gen.Generate(context.Background(), GenerateRequest{Input: "rough week"},
		func(_ context.Context, text string) error {
			streamed.WriteString(text)
			return nil
		})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if streamed.String() != full {
		t.Errorf("streamed chunks %q do not assemble into reply %q", streamed.String(), full)
	}
	if !strings.Contains(full, "rough week") {
		t.Errorf("reply should reference the input, got %q", full)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short ascii kept", "hello", 80, "hello"},
		{"ascii cut", "hello there", 5, "hello..."},
		{"multi-byte kept", "トモダチ", 80, "トモダチ"},
		{"multi-byte cut between runes", "トモダチが恋しい", 3, "トモダ..."},
		{"mixed cut", "aトb", 2, "aト..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) split a rune: %q", tt.in, tt.n, got)
			}
		})
	}

	// The echoed reply must never carry a split rune either.
	gen := &SimulatedGenerator{}
	full, err := gen.Generate(context.Background(), GenerateRequest{Input: strings.Repeat("恋しい。", 40)}, nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !utf8.ValidString(full) || strings.Contains(full, `\x`) {
		t.Errorf("reply carries split-rune bytes: %q", full)
	}
}

func TestSimulatedGenerator_ChunkErrorAborts(t *testing.T) {
	t.Parallel()

	gen := &SimulatedGenerator{}
	wantErr := errors.New("consumer gone")

	_, err := gen.Generate(context.Background(), GenerateRequest{Input: "hi"},
		func(context.Context, string) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Errorf("Generate = %v, want chunk error propagated", err)
	}
}

func TestSimulatedGenerator_EmptyInput(t *testing.T) {
	t.Parallel()

	gen := &SimulatedGenerator{}
	full, err := gen.Generate(context.Background(), GenerateRequest{}, nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if full == "" {
		t.Error("empty input should still yield a reply")
	}
}

func TestSimulatedSpeech(t *testing.T) {
	t.Parallel()

	synth := &SimulatedSpeech{}

	audio, err := synth.Synthesize(context.Background(), SpeechRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if audio.MIME != "audio/wav" || len(audio.Data) == 0 {
		t.Errorf("unexpected audio: mime=%q bytes=%d", audio.MIME, len(audio.Data))
	}

	if _, err := synth.Synthesize(context.Background(), SpeechRequest{}); !errors.Is(err, ErrNoAudio) {
		t.Errorf("empty text = %v, want ErrNoAudio", err)
	}
}

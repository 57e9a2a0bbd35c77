package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/haven-app/haven/internal/cache"
	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/provider"
	"github.com/haven-app/haven/internal/resilience"
	"github.com/haven-app/haven/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestService(t *testing.T, synth provider.SpeechSynthesizer) *Service {
	t.Helper()

	c := cache.New(cache.Config{SweepInterval: time.Hour}, log.NewNop())
	t.Cleanup(c.Close)

	orch := resilience.NewOrchestrator(resilience.OrchestratorConfig{
		Retry: resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}, log.NewNop())

	return New(c, orch, synth, log.NewNop())
}

func TestService_Synthesize(t *testing.T) {
	t.Parallel()

	synth := &testutil.ScriptedSpeech{
		Audio: provider.Audio{Data: []byte{1, 2, 3}, MIME: "audio/wav"},
	}
	svc := newTestService(t, synth)

	audio, err := svc.Synthesize(context.Background(), "take a breath", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio.MIME != "audio/wav" || len(audio.Data) != 3 {
		t.Errorf("unexpected audio: %+v", audio)
	}
}

func TestService_IdenticalTextHitsCache(t *testing.T) {
	t.Parallel()

	synth := &testutil.ScriptedSpeech{
		Audio: provider.Audio{Data: []byte{1, 2, 3}, MIME: "audio/wav"},
	}
	svc := newTestService(t, synth)

	first, err := svc.Synthesize(context.Background(), "take a breath", "Kore")
	if err != nil {
		t.Fatalf("first Synthesize: %v", err)
	}
	second, err := svc.Synthesize(context.Background(), "take a breath", "Kore")
	if err != nil {
		t.Fatalf("second Synthesize: %v", err)
	}

	if synth.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1 (second request served from cache)", synth.Calls())
	}
	if string(first.Data) != string(second.Data) || first.MIME != second.MIME {
		t.Error("cached clip should match the synthesized one")
	}
}

func TestService_DistinctVoicesMissCache(t *testing.T) {
	t.Parallel()

	synth := &testutil.ScriptedSpeech{
		Audio: provider.Audio{Data: []byte{9}, MIME: "audio/wav"},
	}
	svc := newTestService(t, synth)

	if _, err := svc.Synthesize(context.Background(), "hello", "Kore"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Synthesize(context.Background(), "hello", "Puck"); err != nil {
		t.Fatal(err)
	}

	if synth.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2 (voice is part of the key)", synth.Calls())
	}
}

func TestService_FailureNotCached(t *testing.T) {
	t.Parallel()

	synth := &testutil.ScriptedSpeech{Err: errors.New("tts down")}
	svc := newTestService(t, synth)

	if _, err := svc.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("Synthesize should fail")
	}

	// A later request must reach the provider again.
	synth.Err = nil
	synth.Audio = provider.Audio{Data: []byte{1}, MIME: "audio/wav"}
	if _, err := svc.Synthesize(context.Background(), "hello", ""); err != nil {
		t.Fatalf("recovered Synthesize: %v", err)
	}
	if synth.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", synth.Calls())
	}
}

package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/haven-app/haven/internal/log"
)

// DefaultVoice is the prebuilt Gemini voice used when a request does
// not name one. Chosen for a warm, even register.
const DefaultVoice = "Kore"

// GenaiSpeech synthesizes audio with the Gemini TTS models through the
// genai SDK directly; Genkit does not expose the audio modality.
type GenaiSpeech struct {
	client *genai.Client
	model  string
	logger log.Logger
}

// NewGenaiSpeech creates a SpeechSynthesizer against the Gemini API.
// The model must be a TTS-capable one, e.g. "gemini-2.5-flash-preview-tts".
func NewGenaiSpeech(ctx context.Context, apiKey, model string, logger log.Logger) (*GenaiSpeech, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenaiSpeech{client: client, model: model, logger: logger}, nil
}

// Synthesize implements SpeechSynthesizer.
func (p *GenaiSpeech) Synthesize(ctx context.Context, req SpeechRequest) (Audio, error) {
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		genai.Text(req.Text),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		})
	if err != nil {
		return Audio{}, fmt.Errorf("synthesize: %w", err)
	}

	audio, ok := extractAudio(resp)
	if !ok {
		return Audio{}, ErrNoAudio
	}
	p.logger.Debug("synthesis complete", "model", p.model, "voice", voice, "bytes", len(audio.Data))
	return audio, nil
}

func extractAudio(resp *genai.GenerateContentResponse) (Audio, bool) {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return Audio{Data: part.InlineData.Data, MIME: part.InlineData.MIMEType}, true
			}
		}
	}
	return Audio{}, false
}

package provider

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/haven-app/haven/internal/log"
)

// GenkitGenerator streams companion replies through a Genkit-managed
// Gemini model.
type GenkitGenerator struct {
	g      *genkit.Genkit
	model  string
	logger log.Logger
}

// NewGenkitGenerator wires a TextGenerator onto an initialized Genkit
// instance. The model name follows the plugin/model convention, e.g.
// "googleai/gemini-2.5-flash".
func NewGenkitGenerator(g *genkit.Genkit, model string, logger log.Logger) *GenkitGenerator {
	return &GenkitGenerator{g: g, model: model, logger: logger}
}

// Generate implements TextGenerator. Partial text reaches onChunk as
// the model produces it; the assembled reply is returned once the
// stream completes.
func (p *GenkitGenerator) Generate(ctx context.Context, req GenerateRequest, onChunk ChunkFunc) (string, error) {
	messages := make([]*ai.Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case "assistant":
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Content)))
		}
	}
	if req.Input != "" {
		messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Input)))
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: no messages to send", ErrEmptyResponse)
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(p.model),
		ai.WithSystem(req.System),
		ai.WithMessages(messages...),
	}
	if onChunk != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			return onChunk(ctx, text)
		}))
	}

	response, err := genkit.Generate(ctx, p.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	text := response.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	p.logger.Debug("generation complete", "model", p.model, "chars", len(text))
	return text, nil
}

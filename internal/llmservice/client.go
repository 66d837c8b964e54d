package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewChatModel creates the chat completion model backed by Ollama.
func NewChatModel(baseURL, model string) (llms.Model, error) {
	return ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)
}

func promptMessages(prompt string) []llms.MessageContent {
	return []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
}

// GenerateContent returns the model's complete response for prompt.
func GenerateContent(ctx context.Context, llm llms.Model, prompt string) (string, error) {
	log.Debug().Msg("Generating response")
	res, err := llm.GenerateContent(ctx, promptMessages(prompt))
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("chat model returned no choices")
	}
	return res.Choices[0].Content, nil
}

// StreamContent generates a response, invoking onChunk for each
// partial fragment as it arrives. Returning from this call is the done
// marker; the accumulated full response is returned.
func StreamContent(ctx context.Context, llm llms.Model, prompt string, onChunk func(string)) (string, error) {
	log.Debug().Msg("Streaming response")
	var full strings.Builder
	_, err := llm.GenerateContent(ctx, promptMessages(prompt), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		full.Write(chunk)
		if onChunk != nil {
			onChunk(string(chunk))
		}
		return nil
	}))
	if err != nil {
		return "", err
	}
	return full.String(), nil
}

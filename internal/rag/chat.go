package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"pdf-chat/internal/history"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
)

const previewLength = 200

// Response is the outcome of one chat turn.
type Response struct {
	Text      string
	Sources   []history.Source
	SessionID string
	Failed    bool
}

// ChatEngine answers user questions grounded in retrieved document
// chunks, recording every exchange in the session history.
type ChatEngine struct {
	retriever *Retriever
	history   *history.Manager
	llm       llms.Model
	sessionID string
}

func NewChatEngine(retriever *Retriever, hist *history.Manager, llm llms.Model) *ChatEngine {
	return &ChatEngine{retriever: retriever, history: hist, llm: llm}
}

// StartSession begins a new chat session and makes it current.
func (e *ChatEngine) StartSession(name string) (string, error) {
	id, err := e.history.CreateSession(name)
	if err != nil {
		return "", err
	}
	e.sessionID = id
	log.Info().Str("session", id).Msg("Started new chat session")
	return id, nil
}

// LoadSession makes an existing session current.
func (e *ChatEngine) LoadSession(sessionID string) error {
	if _, err := e.history.GetSession(sessionID); err != nil {
		return err
	}
	e.sessionID = sessionID
	log.Info().Str("session", sessionID).Msg("Loaded chat session")
	return nil
}

// SessionID returns the current session id, empty when none is active.
func (e *ChatEngine) SessionID() string { return e.sessionID }

// SessionMessages returns the current session's message log.
func (e *ChatEngine) SessionMessages() []history.Message {
	if e.sessionID == "" {
		return nil
	}
	session, err := e.history.GetSession(e.sessionID)
	if err != nil {
		return nil
	}
	return session.Messages
}

// Chat answers a user query with a complete (non-streamed) response.
func (e *ChatEngine) Chat(ctx context.Context, query string) (*Response, error) {
	return e.respond(ctx, query, nil)
}

// StreamChat answers a user query, invoking onChunk for each partial
// response fragment. The returned Response carries the full text.
func (e *ChatEngine) StreamChat(ctx context.Context, query string, onChunk func(string)) (*Response, error) {
	return e.respond(ctx, query, onChunk)
}

func (e *ChatEngine) respond(ctx context.Context, query string, onChunk func(string)) (*Response, error) {
	if e.sessionID == "" {
		return nil, fmt.Errorf("no active chat session, start a session first")
	}

	if err := e.history.AddMessage(e.sessionID, "user", query, nil); err != nil {
		return nil, err
	}

	log.Info().Str("query", truncate(query, 50)).Msg("Searching for relevant context")
	results := e.retriever.SearchSimilar(ctx, query)

	if len(results) == 0 {
		return e.record(models.NoContextResponse, nil, false)
	}

	prompt := BuildPrompt(query, FormatContext(results))
	sources := formatSources(results)

	var responseText string
	var err error
	if onChunk != nil {
		responseText, err = llmservice.StreamContent(ctx, e.llm, prompt, onChunk)
	} else {
		responseText, err = llmservice.GenerateContent(ctx, e.llm, prompt)
	}
	if err != nil {
		// The failure becomes a visible answer and still lands in the
		// session log, keeping the conversation history consistent.
		log.Error().Err(err).Msg("Chat processing failed")
		errText := fmt.Sprintf("I encountered an error while processing your question: %v", err)
		return e.record(errText, nil, true)
	}

	return e.record(responseText, sources, false)
}

func (e *ChatEngine) record(text string, sources []history.Source, failed bool) (*Response, error) {
	if err := e.history.AddMessage(e.sessionID, "assistant", text, sources); err != nil {
		log.Error().Err(err).Msg("Failed to record assistant message")
	}
	return &Response{Text: text, Sources: sources, SessionID: e.sessionID, Failed: failed}, nil
}

func formatSources(results []models.SearchResult) []history.Source {
	sources := make([]history.Source, 0, len(results))
	for _, res := range results {
		sources = append(sources, history.Source{
			Filename:   res.Chunk.Filename,
			PageNumber: res.Chunk.PageNumber,
			Similarity: res.Similarity,
			Preview:    truncate(res.Chunk.Text, previewLength),
		})
	}
	return sources
}

// truncate caps text at max runes, never splitting a multi-byte rune.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

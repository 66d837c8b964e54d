package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Source records which document chunk backed an assistant answer.
type Source struct {
	Filename   string  `json:"filename"`
	PageNumber int     `json:"page_number"`
	Similarity float32 `json:"similarity_score"`
	Preview    string  `json:"preview"`
}

// Message is one user or assistant turn in a session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []Source  `json:"sources"`
}

// Session is an ordered log of message exchanges.
type Session struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Messages  []Message  `json:"messages"`
}

// Summary condenses a session for listing.
type Summary struct {
	ID                string
	Name              string
	CreatedAt         time.Time
	UpdatedAt         *time.Time
	TotalMessages     int
	UserMessages      int
	AssistantMessages int
	LastMessage       *Message
}

type historyFile struct {
	Sessions []Session `json:"sessions"`
}

// Manager persists chat sessions in a single JSON file.
type Manager struct {
	path string
}

// NewManager creates a manager storing history at path, creating the
// file when missing.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
		if err := m.save(&historyFile{Sessions: []Session{}}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) load() *historyFile {
	data, err := os.ReadFile(m.path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load history, starting fresh")
		return &historyFile{}
	}
	var h historyFile
	if err := json.Unmarshal(data, &h); err != nil {
		log.Warn().Err(err).Msg("History file corrupted, starting fresh")
		return &historyFile{}
	}
	return &h
}

func (m *Manager) save(h *historyFile) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// CreateSession starts a new session, optionally named, and returns
// its id.
func (m *Manager) CreateSession(name string) (string, error) {
	h := m.load()

	id := time.Now().Format("20060102_150405")
	if name != "" {
		id = id + "_" + name
	}
	sessionName := name
	if sessionName == "" {
		sessionName = "Session " + id
	}

	h.Sessions = append(h.Sessions, Session{
		ID:        id,
		Name:      sessionName,
		CreatedAt: time.Now(),
		Messages:  []Message{},
	})
	if err := m.save(h); err != nil {
		return "", err
	}

	log.Info().Str("session", id).Msg("Created new session")
	return id, nil
}

// AddMessage appends a message to a session's log.
func (m *Manager) AddMessage(sessionID, role, content string, sources []Source) error {
	h := m.load()

	for i := range h.Sessions {
		if h.Sessions[i].ID != sessionID {
			continue
		}
		now := time.Now()
		h.Sessions[i].Messages = append(h.Sessions[i].Messages, Message{
			Role:      role,
			Content:   content,
			Timestamp: now,
			Sources:   sources,
		})
		h.Sessions[i].UpdatedAt = &now
		if err := m.save(h); err != nil {
			return err
		}
		log.Debug().Str("role", role).Str("session", sessionID).Msg("Added message to session")
		return nil
	}

	return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
}

// GetSession returns a session by id.
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	h := m.load()
	for i := range h.Sessions {
		if h.Sessions[i].ID == sessionID {
			return &h.Sessions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
}

// ListSessions returns all sessions, newest first.
func (m *Manager) ListSessions() []Session {
	h := m.load()
	sort.Slice(h.Sessions, func(i, j int) bool {
		return h.Sessions[i].CreatedAt.After(h.Sessions[j].CreatedAt)
	})
	return h.Sessions
}

// RecentSessions returns up to limit sessions, newest first.
func (m *Manager) RecentSessions(limit int) []Session {
	sessions := m.ListSessions()
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}

// DeleteSession removes a session, reporting whether it existed.
func (m *Manager) DeleteSession(sessionID string) bool {
	h := m.load()
	kept := h.Sessions[:0]
	for _, s := range h.Sessions {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(h.Sessions) {
		return false
	}
	h.Sessions = kept
	if err := m.save(h); err != nil {
		log.Error().Err(err).Msg("Failed to save history after delete")
		return false
	}
	log.Info().Str("session", sessionID).Msg("Deleted session")
	return true
}

// ClearAll removes every session.
func (m *Manager) ClearAll() error {
	if err := m.save(&historyFile{Sessions: []Session{}}); err != nil {
		return err
	}
	log.Info().Msg("Cleared all chat history")
	return nil
}

// GetSummary condenses a session into counts and its last message.
func (m *Manager) GetSummary(sessionID string) (*Summary, error) {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ID:            session.ID,
		Name:          session.Name,
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
		TotalMessages: len(session.Messages),
	}
	for i := range session.Messages {
		switch session.Messages[i].Role {
		case "user":
			summary.UserMessages++
		case "assistant":
			summary.AssistantMessages++
		}
	}
	if n := len(session.Messages); n > 0 {
		summary.LastMessage = &session.Messages[n-1]
	}
	return summary, nil
}

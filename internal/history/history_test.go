package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "chat_history.json"))
	require.NoError(t, err)
	return m
}

func TestCreateAndGetSession(t *testing.T) {
	m := newTestManager(t)

	id, err := m.CreateSession("research")
	require.NoError(t, err)
	assert.Contains(t, id, "_research")

	session, err := m.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, "research", session.Name)
	assert.Empty(t, session.Messages)
}

func TestGetSessionNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAddMessage(t *testing.T) {
	m := newTestManager(t)
	id, err := m.CreateSession("")
	require.NoError(t, err)

	require.NoError(t, m.AddMessage(id, "user", "what is chapter two about?", nil))
	sources := []Source{{Filename: "a.pdf", PageNumber: 4, Similarity: 0.91, Preview: "chapter two covers"}}
	require.NoError(t, m.AddMessage(id, "assistant", "It covers retrieval.", sources))

	session, err := m.GetSession(id)
	require.NoError(t, err)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "user", session.Messages[0].Role)
	assert.Equal(t, "assistant", session.Messages[1].Role)
	assert.Equal(t, sources, session.Messages[1].Sources)
	assert.NotNil(t, session.UpdatedAt)
}

func TestAddMessageUnknownSession(t *testing.T) {
	m := newTestManager(t)
	err := m.AddMessage("missing", "user", "hello", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListAndRecentSessions(t *testing.T) {
	m := newTestManager(t)

	// Distinct names keep the timestamp-derived ids unique.
	_, err := m.CreateSession("first")
	require.NoError(t, err)
	_, err = m.CreateSession("second")
	require.NoError(t, err)
	_, err = m.CreateSession("third")
	require.NoError(t, err)

	all := m.ListSessions()
	assert.Len(t, all, 3)

	recent := m.RecentSessions(2)
	assert.Len(t, recent, 2)
}

func TestDeleteSession(t *testing.T) {
	m := newTestManager(t)
	id, err := m.CreateSession("gone")
	require.NoError(t, err)

	assert.True(t, m.DeleteSession(id))
	assert.False(t, m.DeleteSession(id))
	_, err = m.GetSession(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestClearAll(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateSession("a")
	require.NoError(t, err)
	_, err = m.CreateSession("b")
	require.NoError(t, err)

	require.NoError(t, m.ClearAll())
	assert.Empty(t, m.ListSessions())
}

func TestGetSummary(t *testing.T) {
	m := newTestManager(t)
	id, err := m.CreateSession("sum")
	require.NoError(t, err)

	require.NoError(t, m.AddMessage(id, "user", "q1", nil))
	require.NoError(t, m.AddMessage(id, "assistant", "a1", nil))
	require.NoError(t, m.AddMessage(id, "user", "q2", nil))

	summary, err := m.GetSummary(id)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalMessages)
	assert.Equal(t, 2, summary.UserMessages)
	assert.Equal(t, 1, summary.AssistantMessages)
	require.NotNil(t, summary.LastMessage)
	assert.Equal(t, "q2", summary.LastMessage.Content)
}

func TestManagerSurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	m, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.Empty(t, m.ListSessions())

	// Writing still works after a corrupt load.
	_, err = m.CreateSession("fresh")
	require.NoError(t, err)
	assert.Len(t, m.ListSessions(), 1)
}

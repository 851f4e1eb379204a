package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"formgenie/internal/storage"
)

func newTestStore(t *testing.T, mem *storage.Memory, opts Options) *Store {
	t.Helper()
	n := 0
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return Open(context.Background(), Config{
		Port:    mem,
		Options: opts,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return base.Add(time.Duration(n) * time.Minute) },
		NewID: func() string {
			n++
			return fmt.Sprintf("s%d", n)
		},
	})
}

func TestAssistantStartsWithGreeting(t *testing.T) {
	s := newTestStore(t, storage.NewMemory(), AssistantOptions())
	active := s.Active()
	require.Len(t, active, 1)
	require.Equal(t, RoleAssistant, active[0].Role)
	require.Equal(t, AssistantOptions().Greeting, active[0].Content)
}

func TestDocChatStartsEmpty(t *testing.T) {
	s := newTestStore(t, storage.NewMemory(), DocChatOptions())
	require.Empty(t, s.Active())
	require.Empty(t, s.Sessions())
}

func TestAssistantGreetingOnlyIsNotArchived(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), AssistantOptions())
	archived, err := s.ArchiveActive(ctx)
	require.NoError(t, err)
	require.Nil(t, archived)
	require.Empty(t, s.Sessions())
	require.Equal(t, AssistantOptions().ResetGreeting, s.Active()[0].Content)
}

func TestAssistantArchiveTitleFromFirstUserMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), AssistantOptions())
	long := strings.Repeat("é", 45)
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, long), s.NewMessage(RoleAssistant, "ok")))

	archived, err := s.ArchiveActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, archived)
	require.Equal(t, strings.Repeat("é", 40), archived.Title)
	require.Len(t, archived.Messages, 3)

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, archived.ID, sessions[0].ID)

	active := s.Active()
	require.Len(t, active, 1)
	require.Equal(t, "Starting a new session. How can I help you now?", active[0].Content)
}

func TestDocChatArchiveSingleMessageAndClearsActiveKey(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	opts := DocChatOptions()
	s := newTestStore(t, mem, opts)
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, "Analyze this document: lease.pdf")))

	_, ok, err := mem.Load(ctx, opts.ActiveKey)
	require.NoError(t, err)
	require.True(t, ok)

	archived, err := s.ArchiveActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, archived)
	require.Equal(t, "Analyze this document: lease.pdf", archived.Title)
	require.Empty(t, s.Active())

	_, ok, err = mem.Load(ctx, opts.ActiveKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFallbackTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), DocChatOptions())
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, "   ")))
	archived, err := s.ArchiveActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "Document Analysis", archived.Title)
}

func TestNewestSessionFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), DocChatOptions())
	for _, text := range []string{"first", "second"} {
		require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, text)))
		_, err := s.ArchiveActive(ctx)
		require.NoError(t, err)
	}
	sessions := s.Sessions()
	require.Len(t, sessions, 2)
	require.Equal(t, "second", sessions[0].Title)
	require.Equal(t, "first", sessions[1].Title)
}

func TestLoadReplacesActiveAndKeepsSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), DocChatOptions())
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, "old")))
	archived, err := s.ArchiveActive(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, "current")))

	msgs, err := s.Load(ctx, archived.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "old", msgs[0].Content)
	require.Equal(t, msgs, s.Active())
	require.Len(t, s.Sessions(), 1)

	_, err = s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemory(), DocChatOptions())
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, "a")))
	archived, err := s.ArchiveActive(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "missing"))
	require.Len(t, s.Sessions(), 1)
	require.NoError(t, s.Delete(ctx, archived.ID))
	require.Empty(t, s.Sessions())
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := newTestStore(t, mem, AssistantOptions())
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, "build me a survey")))
	_, err := s.ArchiveActive(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, "next")))

	reopened := newTestStore(t, mem, AssistantOptions())
	require.Equal(t, s.Sessions(), reopened.Sessions())
	require.Equal(t, s.Active(), reopened.Active())
}

func TestSurfacesDoNotShareKeys(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	a := newTestStore(t, mem, AssistantOptions())
	d := newTestStore(t, mem, DocChatOptions())
	require.NoError(t, d.Append(ctx, d.NewMessage(RoleUser, "doc")))
	require.Len(t, a.Active(), 1)
	require.Equal(t, AssistantOptions().Greeting, a.Active()[0].Content)
}

func TestCorruptSnapshotFallsBack(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	opts := AssistantOptions()
	require.NoError(t, mem.Save(ctx, opts.ActiveKey, []byte("{broken")))
	require.NoError(t, mem.Save(ctx, opts.HistoryKey, []byte("[1,2")))

	s := newTestStore(t, mem, opts)
	require.Len(t, s.Active(), 1)
	require.Empty(t, s.Sessions())
}

func TestSnapshotShape(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	opts := DocChatOptions()
	s := newTestStore(t, mem, opts)
	require.NoError(t, s.Append(ctx, s.NewMessage(RoleUser, "hello")))
	_, err := s.ArchiveActive(ctx)
	require.NoError(t, err)

	raw, ok, err := mem.Load(ctx, opts.HistoryKey)
	require.NoError(t, err)
	require.True(t, ok)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	for _, field := range []string{"id", "title", "messages", "updatedAt"} {
		require.Contains(t, decoded[0], field)
	}
}

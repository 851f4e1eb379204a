// Package chat persists conversational transcripts: one active transcript plus
// a list of archived sessions per chat surface.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"formgenie/internal/form"
	"formgenie/internal/storage"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	titleRunes = 40
)

var ErrNotFound = errors.New("chat session not found")

type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Options distinguishes the chat surfaces sharing this store.
type Options struct {
	Name          string
	ActiveKey     string
	HistoryKey    string
	MinMessages   int // archive only when the transcript is longer than this
	TitleIndex    int
	FallbackTitle string
	Greeting      string
	ResetGreeting string
}

func AssistantOptions() Options {
	return Options{
		Name:          "assistant",
		ActiveKey:     "formGenie_assistant_active_chat",
		HistoryKey:    "formGenie_assistant_history",
		MinMessages:   1,
		TitleIndex:    1,
		FallbackTitle: "Session Draft",
		Greeting:      "Hi! I am FormGenie Assistant. How can I help you build your Google Form or draft a legal document today?",
		ResetGreeting: "Starting a new session. How can I help you now?",
	}
}

func DocChatOptions() Options {
	return Options{
		Name:          "docchat",
		ActiveKey:     "formGenie_docchat_active_chat",
		HistoryKey:    "formGenie_docchat_history",
		MinMessages:   0,
		TitleIndex:    0,
		FallbackTitle: "Document Analysis",
	}
}

type Config struct {
	Port    storage.Port
	Options Options
	Logger  zerolog.Logger
	Now     func() time.Time
	NewID   func() string
}

type Store struct {
	mu       sync.Mutex
	port     storage.Port
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
	active   []Message
	sessions []Session
}

func Open(ctx context.Context, cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = form.NewID
	}
	s := &Store{
		port:     cfg.Port,
		opts:     cfg.Options,
		logger:   cfg.Logger.With().Str("component", "chat").Str("surface", cfg.Options.Name).Logger(),
		now:      cfg.Now,
		newID:    cfg.NewID,
		sessions: []Session{},
	}
	s.restore(ctx)
	return s
}

func (s *Store) restore(ctx context.Context) {
	var active []Message
	if s.loadJSON(ctx, s.opts.ActiveKey, &active, "failed to restore session chat") {
		s.active = active
	} else {
		s.active = s.greeting(s.opts.Greeting)
	}
	var sessions []Session
	if s.loadJSON(ctx, s.opts.HistoryKey, &sessions, "failed to restore chat history") {
		s.sessions = sessions
	}
	if s.active == nil {
		s.active = []Message{}
	}
	if s.sessions == nil {
		s.sessions = []Session{}
	}
}

func (s *Store) loadJSON(ctx context.Context, key string, dst any, msg string) bool {
	raw, ok, err := s.port.Load(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg(msg)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg(msg)
		return false
	}
	return true
}

func (s *Store) greeting(text string) []Message {
	if text == "" {
		return []Message{}
	}
	return []Message{{Role: RoleAssistant, Content: text, Timestamp: s.now().UnixMilli()}}
}

func (s *Store) Options() Options {
	return s.opts
}

// Active returns a copy of the current transcript.
func (s *Store) Active() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message{}, s.active...)
}

func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = cloneSession(sess)
	}
	return out
}

// NewMessage stamps a message with the store clock.
func (s *Store) NewMessage(role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: s.now().UnixMilli()}
}

func (s *Store) Append(ctx context.Context, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]Message, 0, len(s.active)+len(msgs))
	next = append(next, s.active...)
	next = append(next, msgs...)
	s.active = next
	return s.persistActive(ctx)
}

// ArchiveActive moves a long enough transcript into session history and
// always starts a fresh transcript.
func (s *Store) ArchiveActive(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var archived *Session
	var errs []error
	if len(s.active) > s.opts.MinMessages {
		sess := Session{
			ID:        s.newID(),
			Title:     s.titleFor(s.active),
			Messages:  append([]Message{}, s.active...),
			UpdatedAt: s.now().UnixMilli(),
		}
		s.sessions = append([]Session{sess}, s.sessions...)
		if err := s.persistSessions(ctx); err != nil {
			errs = append(errs, err)
		}
		out := cloneSession(sess)
		archived = &out
	}

	s.active = s.greeting(s.opts.ResetGreeting)
	if len(s.active) == 0 {
		if err := s.port.Delete(ctx, s.opts.ActiveKey); err != nil {
			errs = append(errs, fmt.Errorf("delete active chat: %w", err))
		}
	} else if err := s.persistActive(ctx); err != nil {
		errs = append(errs, err)
	}
	return archived, errors.Join(errs...)
}

func (s *Store) titleFor(msgs []Message) string {
	if s.opts.TitleIndex < len(msgs) {
		if t := truncateRunes(msgs[s.opts.TitleIndex].Content, titleRunes); t != "" {
			return t
		}
	}
	return s.opts.FallbackTitle
}

// Load replaces the active transcript with an archived session's messages.
// The session stays in history.
func (s *Store) Load(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == sessionID {
			s.active = append([]Message{}, sess.Messages...)
			if err := s.persistActive(ctx); err != nil {
				return append([]Message{}, s.active...), err
			}
			return append([]Message{}, s.active...), nil
		}
	}
	return nil, ErrNotFound
}

// Delete removes one archived session; unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.ID != sessionID {
			next = append(next, sess)
		}
	}
	if len(next) == len(s.sessions) {
		return nil
	}
	s.sessions = next
	return s.persistSessions(ctx)
}

// Reset restores the initial in-memory state without writing.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = s.greeting(s.opts.Greeting)
	s.sessions = []Session{}
}

func (s *Store) persistActive(ctx context.Context) error {
	if len(s.active) == 0 {
		return nil
	}
	return s.save(ctx, s.opts.ActiveKey, s.active)
}

func (s *Store) persistSessions(ctx context.Context) error {
	return s.save(ctx, s.opts.HistoryKey, s.sessions)
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.port.Save(ctx, key, b); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to persist chat state")
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func cloneSession(s Session) Session {
	s.Messages = append([]Message{}, s.Messages...)
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return strings.TrimSpace(string(r))
}

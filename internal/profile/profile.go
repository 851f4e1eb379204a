// Package profile holds the local display name and the logout wipe.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"formgenie/internal/chat"
	"formgenie/internal/history"
	"formgenie/internal/storage"
)

const (
	NameKey          = "formGenieUserName"
	AuthenticatedKey = "formGenieIsAuthenticated"
)

var ErrEmptyName = errors.New("name is empty")

// WipeKeys lists every key removed on logout.
func WipeKeys() []string {
	a, d := chat.AssistantOptions(), chat.DocChatOptions()
	return []string{
		NameKey,
		AuthenticatedKey,
		history.DefaultKey,
		a.ActiveKey,
		a.HistoryKey,
		d.ActiveKey,
		d.HistoryKey,
	}
}

type Profile struct {
	mu     sync.Mutex
	port   storage.Port
	logger zerolog.Logger
	name   string
	authed bool
}

func Open(ctx context.Context, port storage.Port, logger zerolog.Logger) *Profile {
	p := &Profile{port: port, logger: logger.With().Str("component", "profile").Logger()}
	name, ok, err := port.Load(ctx, NameKey)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to read profile")
		return p
	}
	authed, _, err := port.Load(ctx, AuthenticatedKey)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to read profile")
		return p
	}
	if ok && string(authed) == "true" {
		p.name = string(name)
		p.authed = true
	}
	return p
}

func (p *Profile) Login(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.port.Save(ctx, NameKey, []byte(name)); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if err := p.port.Save(ctx, AuthenticatedKey, []byte("true")); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	p.name = name
	p.authed = true
	return nil
}

func (p *Profile) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name, p.authed
}

// Logout removes every persisted key. Individual failures are joined so one
// broken key does not keep the rest alive.
func (p *Profile) Logout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, key := range WipeKeys() {
		if err := p.port.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	p.name = ""
	p.authed = false
	if err := errors.Join(errs...); err != nil {
		p.logger.Error().Err(err).Msg("logout left keys behind")
		return err
	}
	return nil
}

func Greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

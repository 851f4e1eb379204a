package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"formgenie/internal/storage"
)

func TestLoginPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	p := Open(ctx, mem, zerolog.Nop())
	if _, ok := p.Current(); ok {
		t.Fatalf("expected no profile")
	}
	if err := p.Login(ctx, "  Ada  "); err != nil {
		t.Fatalf("login: %v", err)
	}
	again := Open(ctx, mem, zerolog.Nop())
	name, ok := again.Current()
	if !ok || name != "Ada" {
		t.Fatalf("unexpected profile %q %v", name, ok)
	}
}

func TestLoginRejectsBlankName(t *testing.T) {
	p := Open(context.Background(), storage.NewMemory(), zerolog.Nop())
	if err := p.Login(context.Background(), "   "); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestLogoutWipesAllKeys(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	for _, key := range WipeKeys() {
		if err := mem.Save(ctx, key, []byte("x")); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := mem.Save(ctx, "unrelated", []byte("keep")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p := Open(ctx, mem, zerolog.Nop())
	if err := p.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	keys := mem.Keys()
	if len(keys) != 1 || keys[0] != "unrelated" {
		t.Fatalf("unexpected keys left: %v", keys)
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("expected logged out")
	}
}

func TestWipeKeysCoversSevenKeys(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range WipeKeys() {
		seen[k] = true
	}
	if len(seen) != 7 {
		t.Fatalf("expected 7 distinct keys, got %v", WipeKeys())
	}
}

func TestGreeting(t *testing.T) {
	cases := map[int]string{0: "Good morning", 11: "Good morning", 12: "Good afternoon", 17: "Good afternoon", 18: "Good evening", 23: "Good evening"}
	for hour, want := range cases {
		at := time.Date(2026, 5, 1, hour, 30, 0, 0, time.UTC)
		if got := Greeting(at); got != want {
			t.Fatalf("hour %d: got %q want %q", hour, got, want)
		}
	}
}

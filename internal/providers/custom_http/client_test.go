package custom_http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"formgenie/internal/providers"
)

func TestGenerateDefaultPayload(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	resp, err := c.Generate(context.Background(), providers.Request{
		Model: "local",
		Turns: []providers.Turn{
			{Role: providers.RoleUser, Text: "first"},
			{Role: providers.RoleModel, Text: "reply"},
			{Role: providers.RoleUser, Text: "second"},
		},
		Schema: &providers.Schema{Type: "OBJECT"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	var got map[string]any
	if err := json.Unmarshal(<-bodies, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["prompt"] != "second" || got["json_output"] != true {
		t.Fatalf("unexpected payload %v", got)
	}
	if turns, ok := got["turns"].([]any); !ok || len(turns) != 3 {
		t.Fatalf("unexpected turns %v", got["turns"])
	}
}

func TestGenerateTemplateBody(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		_, _ = w.Write([]byte("plain text answer"))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, BodyTemplate: `{"q":{{json .UserPrompt}},"k":"{{.APIKey}}"}`, APIKey: "abc"})
	resp, err := c.Generate(context.Background(), providers.Request{Turns: providers.Prompt(`say "hi"`)})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if body := <-bodies; body != `{"q":"say \"hi\"","k":"abc"}` {
		t.Fatalf("unexpected body %s", body)
	}
	if resp.Text != "plain text answer" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestGenerateGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, MaxRetries: 2, BackoffBase: time.Millisecond})
	if _, err := c.Generate(context.Background(), providers.Request{Turns: providers.Prompt("x")}); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

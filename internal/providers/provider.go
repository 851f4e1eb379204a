package providers

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyResponse = errors.New("provider returned no text")

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Turn struct {
	Role Role
	Text string
}

// Attachment is inline binary content sent with the last user turn.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Schema is a provider-neutral subset of JSON schema used for structured output.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
	Enum        []string
}

type Request struct {
	Model          string
	SystemPrompt   string
	Turns          []Turn
	Attachment     *Attachment
	Schema         *Schema
	Search         bool
	ThinkingBudget int
	MaxTokens      int
	Temperature    float64
}

// Prompt is a single-turn request helper.
func Prompt(text string) []Turn {
	return []Turn{{Role: RoleUser, Text: text}}
}

// LastUserText returns the text of the final user turn.
func (r Request) LastUserText() string {
	for i := len(r.Turns) - 1; i >= 0; i-- {
		if r.Turns[i].Role == RoleUser {
			return r.Turns[i].Text
		}
	}
	return ""
}

type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type Response struct {
	Text    string
	Sources []Source
}

func (r Response) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

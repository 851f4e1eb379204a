// Package gateway turns documents, instructions and transcripts into model
// requests and parses model output back into domain values.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"formgenie/internal/chat"
	"formgenie/internal/csvsniff"
	"formgenie/internal/form"
	"formgenie/internal/metrics"
	"formgenie/internal/providers"
)

const (
	DefaultThinkingBudget = 32768

	PDFMimeType = "application/pdf"

	FallbackDraft = "Failed to generate document draft."
	FallbackReply = "I'm not sure how to respond to that."
)

var (
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrEmptyDocument       = errors.New("document is empty")
	ErrEmptyTranscript     = errors.New("transcript has no user message")
)

// Document is an uploaded file. Content holds raw text for CSV and a base64
// payload, optionally as a data URL, for binary kinds.
type Document struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName"`
}

func (d Document) IsCSV() bool {
	return csvsniff.IsCSV(d.MimeType, d.FileName)
}

func (d Document) IsPDF() bool {
	return strings.EqualFold(strings.TrimSpace(d.MimeType), PDFMimeType)
}

// Attachment decodes Content into inline bytes, dropping a data URL prefix.
func (d Document) Attachment() (*providers.Attachment, error) {
	payload := d.Content
	if i := strings.Index(payload, ","); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", d.FileName, err)
	}
	return &providers.Attachment{Name: d.FileName, MimeType: d.MimeType, Data: data}, nil
}

type ChatReply struct {
	Text          string `json:"text"`
	AwaitingField bool   `json:"awaitingField"`
}

type DocAnalysis struct {
	Text          string          `json:"text"`
	Questionnaire *form.Structure `json:"questionnaire,omitempty"`
}

type SearchResult struct {
	Text    string             `json:"text"`
	Sources []providers.Source `json:"sources"`
}

type Config struct {
	Provider       providers.Provider
	Model          string
	ThinkingBudget int
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

type Gateway struct {
	provider providers.Provider
	model    string
	budget   int
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func New(cfg Config) *Gateway {
	if cfg.ThinkingBudget <= 0 {
		cfg.ThinkingBudget = DefaultThinkingBudget
	}
	return &Gateway{
		provider: cfg.Provider,
		model:    cfg.Model,
		budget:   cfg.ThinkingBudget,
		logger:   cfg.Logger.With().Str("component", "gateway").Logger(),
		metrics:  cfg.Metrics,
	}
}

func (g *Gateway) generate(ctx context.Context, op string, req providers.Request) (providers.Response, error) {
	req.Model = g.model
	start := time.Now()
	resp, err := g.provider.Generate(ctx, req)
	if g.metrics != nil {
		g.metrics.ObserveAI(op, time.Since(start), err)
	}
	if err != nil {
		g.logger.Error().Err(err).Str("op", op).Msg("model request failed")
		return providers.Response{}, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

func (g *Gateway) structured(ctx context.Context, op string, req providers.Request) (form.Structure, error) {
	req.Schema = structureSchema()
	req.ThinkingBudget = g.budget
	resp, err := g.generate(ctx, op, req)
	if err != nil {
		return form.Structure{}, err
	}
	s, err := form.Decode([]byte(stripFences(resp.Text)))
	if err != nil {
		g.logger.Warn().Err(err).Str("op", op).Msg("model returned an unusable form")
		return form.Structure{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// Convert builds a form from a CSV or PDF upload.
func (g *Gateway) Convert(ctx context.Context, doc Document) (form.Structure, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return form.Structure{}, ErrEmptyDocument
	}
	switch {
	case doc.IsCSV():
		return g.structured(ctx, "convert", providers.Request{
			Turns: providers.Prompt(fmt.Sprintf(csvPrompt, doc.Content)),
		})
	case doc.IsPDF():
		att, err := doc.Attachment()
		if err != nil {
			return form.Structure{}, fmt.Errorf("convert: %w", err)
		}
		return g.structured(ctx, "convert", providers.Request{
			Turns:      providers.Prompt(pdfPrompt),
			Attachment: att,
		})
	default:
		return form.Structure{}, fmt.Errorf("%w: %q", ErrUnsupportedDocument, doc.MimeType)
	}
}

func (g *Gateway) Refine(ctx context.Context, current form.Structure, instruction string) (form.Structure, error) {
	b, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return form.Structure{}, fmt.Errorf("marshal form: %w", err)
	}
	return g.structured(ctx, "refine", providers.Request{
		Turns: providers.Prompt(fmt.Sprintf(refinePrompt, instruction, b)),
	})
}

// Chat continues the assistant conversation. The transcript must end with
// the user's newest message.
func (g *Gateway) Chat(ctx context.Context, transcript []chat.Message, deep bool) (ChatReply, error) {
	turns := toTurns(transcript)
	if len(turns) == 0 {
		return ChatReply{}, ErrEmptyTranscript
	}
	req := providers.Request{SystemPrompt: assistantInstruction, Turns: turns}
	if deep {
		req.ThinkingBudget = g.budget
	}
	resp, err := g.generate(ctx, "chat", req)
	if err != nil {
		return ChatReply{}, err
	}
	text, awaiting := StripFieldQuery(resp.Text)
	if strings.TrimSpace(text) == "" {
		text = FallbackReply
	}
	return ChatReply{Text: text, AwaitingField: awaiting}, nil
}

// AnalyzeDocument answers in the document chat, optionally reading an
// attached file, and extracts any embedded questionnaire.
func (g *Gateway) AnalyzeDocument(ctx context.Context, transcript []chat.Message, file *Document, deep bool) (DocAnalysis, error) {
	turns := toTurns(transcript)
	if len(turns) == 0 {
		return DocAnalysis{}, ErrEmptyTranscript
	}
	req := providers.Request{SystemPrompt: docChatInstruction, Turns: turns}
	if file != nil {
		if file.IsCSV() {
			req.Turns[len(req.Turns)-1].Text += "\n\n" + file.Content
		} else {
			att, err := file.Attachment()
			if err != nil {
				return DocAnalysis{}, fmt.Errorf("analyze document: %w", err)
			}
			req.Attachment = att
		}
	}
	if deep {
		req.ThinkingBudget = g.budget
	}
	resp, err := g.generate(ctx, "analyze", req)
	if err != nil {
		return DocAnalysis{}, err
	}
	text, payload := ExtractPayload(resp.Text)
	if payload == nil && strings.Contains(resp.Text, payloadStart) {
		g.logger.Warn().Msg("failed to parse extracted questionnaire")
	}
	return DocAnalysis{Text: text, Questionnaire: payload}, nil
}

func (g *Gateway) SearchGroundedDocuments(ctx context.Context, docType, jurisdiction string) (SearchResult, error) {
	resp, err := g.generate(ctx, "search", providers.Request{
		Turns:  providers.Prompt(fmt.Sprintf(searchPrompt, docType, jurisdiction)),
		Search: true,
	})
	if err != nil {
		return SearchResult{}, err
	}
	sources := resp.Sources
	if sources == nil {
		sources = []providers.Source{}
	}
	return SearchResult{Text: resp.Text, Sources: sources}, nil
}

func (g *Gateway) StructureFromSearchContext(ctx context.Context, contextText, title, uri string) (form.Structure, error) {
	return g.structured(ctx, "search_form", providers.Request{
		Turns: providers.Prompt(fmt.Sprintf(searchFormPrompt, title, uri, contextText)),
	})
}

func (g *Gateway) DraftDocument(ctx context.Context, contextText, title, uri string) (string, error) {
	resp, err := g.generate(ctx, "draft", providers.Request{
		Turns:          providers.Prompt(fmt.Sprintf(draftPrompt, title, contextText, uri)),
		ThinkingBudget: g.budget,
	})
	if err != nil {
		return "", err
	}
	if resp.Empty() {
		return FallbackDraft, nil
	}
	return resp.Text, nil
}

func toTurns(transcript []chat.Message) []providers.Turn {
	turns := make([]providers.Turn, 0, len(transcript))
	for _, m := range transcript {
		role := providers.RoleModel
		if m.Role == chat.RoleUser {
			role = providers.RoleUser
		}
		turns = append(turns, providers.Turn{Role: role, Text: m.Content})
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != providers.RoleUser {
		return nil
	}
	return turns
}

// stripFences tolerates models that wrap JSON in a markdown code block.
func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "```"))
}

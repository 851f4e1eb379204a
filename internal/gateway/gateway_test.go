package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"formgenie/internal/chat"
	"formgenie/internal/form"
	"formgenie/internal/metrics"
	"formgenie/internal/providers"
)

type fakeProvider struct {
	reqs []providers.Request
	resp providers.Response
	err  error
}

func (f *fakeProvider) Generate(_ context.Context, req providers.Request) (providers.Response, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

const validForm = `{"title":"Survey","description":"d","questions":[{"id":"q1","title":"Name","type":"SHORT_ANSWER","required":true}]}`

func newGateway(p *fakeProvider) *Gateway {
	return New(Config{Provider: p, Model: "test-model", Logger: zerolog.Nop(), Metrics: metrics.New()})
}

func TestConvertCSVBuildsPromptAndSchema(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: validForm}}
	g := newGateway(p)
	s, err := g.Convert(context.Background(), Document{Content: "Name,Age\nAlice,30", MimeType: "text/csv", FileName: "people.csv"})
	require.NoError(t, err)
	require.Equal(t, "Survey", s.Title)

	require.Len(t, p.reqs, 1)
	req := p.reqs[0]
	require.Equal(t, "test-model", req.Model)
	require.Contains(t, req.LastUserText(), "Name,Age\nAlice,30")
	require.NotNil(t, req.Schema)
	require.Equal(t, DefaultThinkingBudget, req.ThinkingBudget)
	require.Nil(t, req.Attachment)
}

func TestConvertPDFStripsDataURL(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: validForm}}
	g := newGateway(p)
	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	_, err := g.Convert(context.Background(), Document{Content: "data:application/pdf;base64," + payload, MimeType: "application/pdf", FileName: "a.pdf"})
	require.NoError(t, err)
	require.NotNil(t, p.reqs[0].Attachment)
	require.Equal(t, []byte("%PDF-1.4"), p.reqs[0].Attachment.Data)
	require.Equal(t, "application/pdf", p.reqs[0].Attachment.MimeType)
}

func TestConvertRejectsOtherKinds(t *testing.T) {
	g := newGateway(&fakeProvider{})
	_, err := g.Convert(context.Background(), Document{Content: "x", MimeType: "image/png", FileName: "a.png"})
	require.ErrorIs(t, err, ErrUnsupportedDocument)
	_, err = g.Convert(context.Background(), Document{MimeType: "text/csv"})
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestConvertUnparsableResponse(t *testing.T) {
	for _, text := range []string{"", "null", "```json\nnull\n```", "sorry, no", `{"title":"x","description":"","questions":[{"id":"a","title":"t","type":"RATING","required":false}]}`} {
		g := newGateway(&fakeProvider{resp: providers.Response{Text: text}})
		_, err := g.Convert(context.Background(), Document{Content: "a,b", MimeType: "text/csv"})
		require.ErrorIs(t, err, form.ErrParse, "response %q", text)
	}
}

func TestConvertToleratesCodeFence(t *testing.T) {
	g := newGateway(&fakeProvider{resp: providers.Response{Text: "```json\n" + validForm + "\n```"}})
	s, err := g.Convert(context.Background(), Document{Content: "a,b", MimeType: "text/csv"})
	require.NoError(t, err)
	require.Len(t, s.Questions, 1)
}

func TestConvertProviderError(t *testing.T) {
	boom := errors.New("quota")
	g := newGateway(&fakeProvider{err: boom})
	_, err := g.Convert(context.Background(), Document{Content: "a,b", FileName: "x.csv"})
	require.ErrorIs(t, err, boom)
}

func TestRefineSendsCurrentForm(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: validForm}}
	g := newGateway(p)
	current := form.Structure{Title: "Old", Questions: []form.Question{{ID: "x", Title: "Email", Kind: form.ShortAnswer}}}
	_, err := g.Refine(context.Background(), current, "make it formal")
	require.NoError(t, err)
	prompt := p.reqs[0].LastUserText()
	require.Contains(t, prompt, `"make it formal"`)
	require.Contains(t, prompt, `"title": "Old"`)
}

func TestChatStripsFieldQuery(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: "  [FIELD_QUERY] What is the Grantor's name? "}}
	g := newGateway(p)
	transcript := []chat.Message{
		{Role: chat.RoleAssistant, Content: "Hi!"},
		{Role: chat.RoleUser, Content: "Draft a deed for Texas"},
	}
	reply, err := g.Chat(context.Background(), transcript, false)
	require.NoError(t, err)
	require.True(t, reply.AwaitingField)
	require.Equal(t, "What is the Grantor's name?", reply.Text)

	req := p.reqs[0]
	require.Equal(t, assistantInstruction, req.SystemPrompt)
	require.Equal(t, 0, req.ThinkingBudget)
	require.Equal(t, []providers.Turn{{Role: providers.RoleModel, Text: "Hi!"}, {Role: providers.RoleUser, Text: "Draft a deed for Texas"}}, req.Turns)
}

func TestChatDeepAndEmpty(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: "   "}}
	g := newGateway(p)
	reply, err := g.Chat(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}}, true)
	require.NoError(t, err)
	require.Equal(t, ChatReply{Text: FallbackReply}, reply)
	require.Equal(t, DefaultThinkingBudget, p.reqs[0].ThinkingBudget)

	_, err = g.Chat(context.Background(), []chat.Message{{Role: chat.RoleAssistant, Content: "hello"}}, false)
	require.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestChatMarkerOnlyReplyFallsBack(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: " [FIELD_QUERY] "}}
	g := newGateway(p)
	reply, err := g.Chat(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "next"}}, false)
	require.NoError(t, err)
	require.Equal(t, ChatReply{Text: FallbackReply, AwaitingField: true}, reply)
}

func TestAnalyzeDocumentExtractsQuestionnaire(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: "I found one question.\n[JSON_START]" + validForm + "[JSON_END]\n"}}
	g := newGateway(p)
	file := &Document{Content: base64.StdEncoding.EncodeToString([]byte("doc")), MimeType: "application/pdf", FileName: "a.pdf"}
	res, err := g.AnalyzeDocument(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "Analyze this document: a.pdf"}}, file, false)
	require.NoError(t, err)
	require.Equal(t, "I found one question.", res.Text)
	require.NotNil(t, res.Questionnaire)
	require.Equal(t, "Survey", res.Questionnaire.Title)
	require.Equal(t, docChatInstruction, p.reqs[0].SystemPrompt)
	require.NotNil(t, p.reqs[0].Attachment)
}

func TestSearchReturnsSources(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: "results", Sources: []providers.Source{{Title: "Lease", URI: "https://tx.gov/lease"}}}}
	g := newGateway(p)
	res, err := g.SearchGroundedDocuments(context.Background(), "Lease", "Texas")
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	require.True(t, p.reqs[0].Search)
	require.Contains(t, p.reqs[0].LastUserText(), `"Texas"`)

	p.resp = providers.Response{Text: "nothing"}
	res, err = g.SearchGroundedDocuments(context.Background(), "Lease", "Texas")
	require.NoError(t, err)
	require.NotNil(t, res.Sources)
	require.Empty(t, res.Sources)
}

func TestStructureFromSearchContext(t *testing.T) {
	p := &fakeProvider{resp: providers.Response{Text: validForm}}
	g := newGateway(p)
	_, err := g.StructureFromSearchContext(context.Background(), "context", "Lease", "https://tx.gov/lease")
	require.NoError(t, err)
	prompt := p.reqs[0].LastUserText()
	require.True(t, strings.Contains(prompt, "Source Title: Lease") && strings.Contains(prompt, "Source URL: https://tx.gov/lease"))
}

func TestDraftDocumentFallback(t *testing.T) {
	g := newGateway(&fakeProvider{resp: providers.Response{Text: ""}})
	text, err := g.DraftDocument(context.Background(), "ctx", "Lease", "u")
	require.NoError(t, err)
	require.Equal(t, FallbackDraft, text)
}

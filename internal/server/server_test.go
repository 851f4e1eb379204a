package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"formgenie/internal/app"
	"formgenie/internal/chat"
	"formgenie/internal/form"
	"formgenie/internal/gateway"
	"formgenie/internal/guard"
	"formgenie/internal/metrics"
	"formgenie/internal/providers"
	"formgenie/internal/storage"
)

type stubAI struct {
	err error
}

func (s *stubAI) Convert(context.Context, gateway.Document) (form.Structure, error) {
	if s.err != nil {
		return form.Structure{}, s.err
	}
	return form.Structure{
		Title: "Signup",
		Questions: []form.Question{
			{ID: "q1", Title: "Name", Kind: form.ShortAnswer, Required: true},
			{ID: "q2", Title: "Size", Kind: form.Dropdown, Options: []string{"S", "M"}},
		},
	}, nil
}

func (s *stubAI) Refine(_ context.Context, current form.Structure, instruction string) (form.Structure, error) {
	current.Description = instruction
	return current, s.err
}

func (s *stubAI) Chat(context.Context, []chat.Message, bool) (gateway.ChatReply, error) {
	return gateway.ChatReply{Text: "What is your name?", AwaitingField: true}, s.err
}

func (s *stubAI) AnalyzeDocument(context.Context, []chat.Message, *gateway.Document, bool) (gateway.DocAnalysis, error) {
	return gateway.DocAnalysis{Text: "ok"}, s.err
}

func (s *stubAI) SearchGroundedDocuments(context.Context, string, string) (gateway.SearchResult, error) {
	return gateway.SearchResult{Text: "ctx", Sources: []providers.Source{{Title: "Template", URI: "https://example.gov"}}}, s.err
}

func (s *stubAI) StructureFromSearchContext(ctx context.Context, _, _, _ string) (form.Structure, error) {
	return s.Convert(ctx, gateway.Document{})
}

func (s *stubAI) DraftDocument(context.Context, string, string, string) (string, error) {
	return "Draft body", s.err
}

func newTestServer(t *testing.T, ai *stubAI, gate *guard.Gate) *httptest.Server {
	t.Helper()
	n := 0
	ws := app.New(context.Background(), app.Config{
		Port:    storage.NewMemory(),
		AI:      ai,
		Gate:    gate,
		Metrics: metrics.New(),
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id%d", n)
		},
	})
	srv := httptest.NewServer(New(Config{
		Workspace: ws,
		Logger:    zerolog.Nop(),
		Metrics:   http.NotFoundHandler(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func uploadPDF(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/v1/uploads", gateway.Document{
		Content: "JVBERg==", MimeType: gateway.PDFMimeType, FileName: "a.pdf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)
	resp := do(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	require.Equal(t, "ok", string(b))
}

func TestCSVUploadPreviewThenConfirm(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)

	resp := do(t, srv, http.MethodPost, "/api/v1/uploads", gateway.Document{Content: "Name,Size\nA,S", FileName: "x.csv"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[app.UploadResult](t, resp)
	require.NotNil(t, res.Preview)
	require.Nil(t, res.Form)

	resp = do(t, srv, http.MethodPost, "/api/v1/uploads/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s := decode[form.Structure](t, resp)
	require.Equal(t, "Signup", s.Title)

	resp = do(t, srv, http.MethodPost, "/api/v1/uploads/confirm", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUploadRejectsEmptyContent(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)
	resp := do(t, srv, http.MethodPost, "/api/v1/uploads", gateway.Document{FileName: "x.pdf"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversionFailureIsNotice(t *testing.T) {
	srv := newTestServer(t, &stubAI{err: errors.New("boom")}, nil)
	resp := do(t, srv, http.MethodPost, "/api/v1/uploads", gateway.Document{Content: "JVBERg==", MimeType: gateway.PDFMimeType, FileName: "a.pdf"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	require.Equal(t, app.MsgConvertFailed, body["error"])
}

func TestEditorRoutes(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)

	resp := do(t, srv, http.MethodGet, "/api/v1/form", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, srv, http.MethodPut, "/api/v1/form/title", valueRequest{Value: "x"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	uploadPDF(t, srv)

	resp = do(t, srv, http.MethodPut, "/api/v1/form/title", valueRequest{Value: "Registration"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Registration", decode[form.Structure](t, resp).Title)

	resp = do(t, srv, http.MethodPatch, "/api/v1/form/questions/q1", map[string]any{"type": "checkboxes", "required": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s := decode[form.Structure](t, resp)
	require.Equal(t, form.Checkboxes, s.Questions[0].Kind)
	require.False(t, s.Questions[0].Required)

	resp = do(t, srv, http.MethodPatch, "/api/v1/form/questions/q1", map[string]any{"type": "slider"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, srv, http.MethodPatch, "/api/v1/form/questions/missing", map[string]any{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/form/questions/q2/options", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"S", "M", "Option 3"}, decode[form.Structure](t, resp).Questions[1].Options)

	resp = do(t, srv, http.MethodPut, "/api/v1/form/questions/q2/options/0", valueRequest{Value: "Small"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, srv, http.MethodDelete, "/api/v1/form/questions/q2/options/9", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, srv, http.MethodDelete, "/api/v1/form/questions/q2/options/x", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/form/questions/q2/move", map[string]int{"to": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "q2", decode[form.Structure](t, resp).Questions[0].ID)

	resp = do(t, srv, http.MethodPost, "/api/v1/form/questions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[form.Structure](t, resp).Questions, 3)

	resp = do(t, srv, http.MethodDelete, "/api/v1/form/questions/q1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[form.Structure](t, resp).Questions, 2)

	resp = do(t, srv, http.MethodPost, "/api/v1/form/refine", map[string]string{"instruction": "add intro"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "add intro", decode[form.Structure](t, resp).Description)
}

func TestScriptDownload(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)
	uploadPDF(t, srv)

	resp := do(t, srv, http.MethodGet, "/api/v1/form/script", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Disposition"), "Signup_Creator_Script.gs")
	b, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(b), "FormApp.create")

	resp = do(t, srv, http.MethodPost, "/api/v1/form/script/drive", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, app.MsgDriveSaveFailed, decode[map[string]string](t, resp)["error"])
}

func TestHistoryRoutes(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)
	uploadPDF(t, srv)

	resp := do(t, srv, http.MethodGet, "/api/v1/history", nil)
	list := decode[[]form.SavedForm](t, resp)
	require.Len(t, list, 1)

	resp = do(t, srv, http.MethodPost, "/api/v1/history/"+list[0].HistoryID+"/open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, "/api/v1/history/nope/open", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodDelete, "/api/v1/history/"+list[0].HistoryID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodDelete, "/api/v1/history", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/v1/history", nil)
	require.Empty(t, decode[[]form.SavedForm](t, resp))
}

func TestAssistantRoutes(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)

	resp := do(t, srv, http.MethodPost, "/api/v1/assistant/messages", messageRequest{Text: ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/assistant/messages", messageRequest{Text: "Draft a waiver"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turn := decode[app.Turn](t, resp)
	require.True(t, turn.AwaitingField)

	resp = do(t, srv, http.MethodPost, "/api/v1/assistant/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/v1/assistant", nil)
	st := decode[chatState](t, resp)
	require.Len(t, st.Sessions, 1)
	require.Equal(t, "Draft a waiver", st.Sessions[0].Title)
	require.False(t, st.AwaitingField)

	resp = do(t, srv, http.MethodPost, "/api/v1/assistant/sessions/missing/load", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, srv, http.MethodDelete, "/api/v1/assistant/sessions/"+st.Sessions[0].ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSearchRoutes(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)

	resp := do(t, srv, http.MethodGet, "/api/v1/search", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/search", map[string]string{"docType": "Lease", "jurisdiction": "Ontario"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[gateway.SearchResult](t, resp).Sources, 1)

	resp = do(t, srv, http.MethodPost, "/api/v1/search/sources/0/draft", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Disposition"), "Template_Draft.doc")
	b, _ := io.ReadAll(resp.Body)
	require.True(t, strings.Contains(string(b), "Draft body"))

	resp = do(t, srv, http.MethodPost, "/api/v1/search/sources/3/form", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, "/api/v1/search/sources/0/form", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitedIs429(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, guard.NewGate(nil, guard.NewMemoryLimiter(1)))
	uploadPDF(t, srv)
	resp := do(t, srv, http.MethodPost, "/api/v1/uploads", gateway.Document{Content: "JVBERg==", MimeType: gateway.PDFMimeType, FileName: "b.pdf"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestLoginLogout(t *testing.T) {
	srv := newTestServer(t, &stubAI{}, nil)
	resp := do(t, srv, http.MethodPost, "/api/v1/session/login", map[string]string{"name": " "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/session/login", map[string]string{"name": "Grace"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[app.State](t, resp)
	require.Equal(t, "Grace", st.UserName)
	require.Equal(t, "Good afternoon", st.Greeting)

	resp = do(t, srv, http.MethodPut, "/api/v1/tab", map[string]string{"tab": "bogus"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/session/logout", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/v1/state", nil)
	require.False(t, decode[app.State](t, resp).Authenticated)
}

func TestRecoveryWritesJSON(t *testing.T) {
	h := Recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

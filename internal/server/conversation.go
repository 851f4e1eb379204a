package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"formgenie/internal/app"
	"formgenie/internal/chat"
	"formgenie/internal/form"
	"formgenie/internal/gateway"
)

type chatState struct {
	Active        []chat.Message  `json:"active"`
	Sessions      []chat.Session  `json:"sessions"`
	AwaitingField bool            `json:"awaitingField,omitempty"`
	Questionnaire *form.Structure `json:"questionnaire,omitempty"`
}

type messageRequest struct {
	Text string            `json:"text"`
	File *gateway.Document `json:"file,omitempty"`
	Deep bool              `json:"deep"`
}

func (h *handler) AssistantState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, chatState{
		Active:        h.ws.Assistant().Active(),
		Sessions:      h.ws.Assistant().Sessions(),
		AwaitingField: h.ws.AwaitingField(),
	})
}

func (h *handler) SendAssistant(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.turn(w, func() (app.Turn, error) { return h.ws.SendAssistant(r.Context(), req.Text, req.Deep) })
}

func (h *handler) SkipField(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	_ = readJSON(r, &req)
	h.turn(w, func() (app.Turn, error) { return h.ws.SkipField(r.Context(), req.Deep) })
}

func (h *handler) NewAssistantSession(w http.ResponseWriter, r *http.Request) {
	archived, err := h.ws.NewAssistantSession(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"archived": archived,
		"active":   h.ws.Assistant().Active(),
	})
}

func (h *handler) LoadAssistantSession(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.ws.LoadAssistantSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handler) DeleteAssistantSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Assistant().Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) DocChatState(w http.ResponseWriter, _ *http.Request) {
	st := chatState{
		Active:   h.ws.DocChat().Active(),
		Sessions: h.ws.DocChat().Sessions(),
	}
	if q, ok := h.ws.Questionnaire(); ok {
		st.Questionnaire = &q
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) SendDocChat(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.turn(w, func() (app.Turn, error) { return h.ws.SendDocChat(r.Context(), req.Text, req.File, req.Deep) })
}

func (h *handler) NewDocChatSession(w http.ResponseWriter, r *http.Request) {
	archived, err := h.ws.NewDocChatSession(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"archived": archived,
		"active":   h.ws.DocChat().Active(),
	})
}

func (h *handler) LoadDocChatSession(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.ws.LoadDocChatSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handler) DeleteDocChatSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.DocChat().Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) DownloadQuestionnaire(w http.ResponseWriter, _ *http.Request) {
	a, err := h.ws.ExportQuestionnaireCSV()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeArtifact(w, a)
}

func (h *handler) TransferQuestionnaire(w http.ResponseWriter, r *http.Request) {
	h.edit(w, func() (form.Structure, error) { return h.ws.TransferQuestionnaire(r.Context()) })
}

func (h *handler) turn(w http.ResponseWriter, fn func() (app.Turn, error)) {
	t, err := fn()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocType      string `json:"docType"`
		Jurisdiction string `json:"jurisdiction"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.ws.Search(r.Context(), req.DocType, req.Jurisdiction)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) SearchResults(w http.ResponseWriter, _ *http.Request) {
	res, ok := h.ws.SearchResults()
	if !ok {
		h.fail(w, app.ErrNoSearch)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) SearchToForm(w http.ResponseWriter, r *http.Request) {
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	h.edit(w, func() (form.Structure, error) { return h.ws.SearchToForm(r.Context(), index) })
}

func (h *handler) DraftFromSearch(w http.ResponseWriter, r *http.Request) {
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	a, err := h.ws.DraftFromSearch(r.Context(), index)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeArtifact(w, a)
}

package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"formgenie/internal/app"
	"formgenie/internal/editor"
	"formgenie/internal/form"
	"formgenie/internal/gateway"
)

type handler struct {
	ws     *app.Workspace
	logger zerolog.Logger
}

type valueRequest struct {
	Value string `json:"value"`
}

func (h *handler) State(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.State())
}

func (h *handler) SetTab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tab app.Tab `json:"tab"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.ws.SetTab(req.Tab); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ws.State())
}

func (h *handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.ws.Login(r.Context(), req.Name); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ws.State())
}

func (h *handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Logout(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) Upload(w http.ResponseWriter, r *http.Request) {
	var doc gateway.Document
	if err := readJSON(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if doc.Content == "" {
		h.fail(w, gateway.ErrEmptyDocument)
		return
	}
	res, err := h.ws.Upload(r.Context(), doc)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	s, err := h.ws.ConfirmPreview(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) CancelUpload(w http.ResponseWriter, _ *http.Request) {
	h.ws.CancelPreview()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) ImportFromDrive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID string `json:"fileId"`
	}
	if err := readJSON(r, &req); err != nil || req.FileID == "" {
		writeError(w, http.StatusBadRequest, "fileId is required")
		return
	}
	res, err := h.ws.ImportFromDrive(r.Context(), req.FileID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) GetForm(w http.ResponseWriter, _ *http.Request) {
	s, ok := h.ws.Editor().Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no active form")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// edit runs one editor mutation and answers with the resulting form.
func (h *handler) edit(w http.ResponseWriter, fn func() (form.Structure, error)) {
	s, err := fn()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) SetTitle(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.edit(w, func() (form.Structure, error) { return h.ws.Editor().SetTitle(req.Value) })
}

func (h *handler) SetDescription(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.edit(w, func() (form.Structure, error) { return h.ws.Editor().SetDescription(req.Value) })
}

func (h *handler) Refine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instruction string `json:"instruction"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.edit(w, func() (form.Structure, error) { return h.ws.Refine(r.Context(), req.Instruction) })
}

func (h *handler) AddQuestion(w http.ResponseWriter, _ *http.Request) {
	h.edit(w, h.ws.Editor().AddQuestion)
}

func (h *handler) RemoveQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionId")
	h.edit(w, func() (form.Structure, error) { return h.ws.Editor().RemoveQuestion(id) })
}

func (h *handler) MoveQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionId")
	var req struct {
		To int `json:"to"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.edit(w, func() (form.Structure, error) { return h.ws.Editor().MoveQuestion(id, req.To) })
}

// UpdateQuestion applies the fields present in the body in a fixed order and
// stops at the first failure.
func (h *handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionId")
	var req struct {
		Title    *string `json:"title"`
		Type     *string `json:"type"`
		Required *bool   `json:"required"`
		HelpText *string `json:"helpText"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ed := h.ws.Editor()
	h.edit(w, func() (form.Structure, error) {
		if req.Type != nil {
			kind, err := form.ParseKind(*req.Type)
			if err != nil {
				return form.Structure{}, err
			}
			if _, err := ed.SetQuestionKind(id, kind); err != nil {
				return form.Structure{}, err
			}
		}
		if req.Title != nil {
			if _, err := ed.SetQuestionTitle(id, *req.Title); err != nil {
				return form.Structure{}, err
			}
		}
		if req.Required != nil {
			if _, err := ed.SetRequired(id, *req.Required); err != nil {
				return form.Structure{}, err
			}
		}
		if req.HelpText != nil {
			if _, err := ed.SetHelpText(id, *req.HelpText); err != nil {
				return form.Structure{}, err
			}
		}
		s, ok := ed.Current()
		if !ok {
			return form.Structure{}, editor.ErrNoForm
		}
		if s.Index(id) < 0 {
			return form.Structure{}, fmt.Errorf("%w: %s", editor.ErrQuestionNotFound, id)
		}
		return s, nil
	})
}

func (h *handler) AddOption(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionId")
	h.edit(w, func() (form.Structure, error) { return h.ws.Editor().AddOption(id) })
}

func (h *handler) EditOption(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionId")
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	var req valueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.edit(w, func() (form.Structure, error) { return h.ws.Editor().EditOption(id, index, req.Value) })
}

func (h *handler) RemoveOption(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionId")
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	h.edit(w, func() (form.Structure, error) { return h.ws.Editor().RemoveOption(id, index) })
}

func (h *handler) DownloadScript(w http.ResponseWriter, _ *http.Request) {
	a, err := h.ws.ExportScript()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeArtifact(w, a)
}

func (h *handler) SaveScriptToDrive(w http.ResponseWriter, r *http.Request) {
	id, err := h.ws.SaveScriptToDrive(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"fileId": id})
}

func (h *handler) ListHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.History().SortedBySavedAt())
}

func (h *handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.History().Clear(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) OpenSaved(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "historyId")
	h.edit(w, func() (form.Structure, error) { return h.ws.OpenSaved(id) })
}

func (h *handler) RemoveSaved(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.History().Remove(r.Context(), chi.URLParam(r, "historyId")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"formgenie/internal/app"
	"formgenie/internal/chat"
	"formgenie/internal/editor"
	"formgenie/internal/export"
	"formgenie/internal/form"
	"formgenie/internal/gateway"
	"formgenie/internal/guard"
	"formgenie/internal/history"
	"formgenie/internal/profile"
)

const maxBodyBytes = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v)
}

func writeArtifact(w http.ResponseWriter, a export.Artifact) {
	w.Header().Set("Content-Type", a.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Body)
}

// fail maps a domain error to a status. Notices surface only their message.
func (h *handler) fail(w http.ResponseWriter, err error) {
	if n, ok := app.AsNotice(err); ok {
		writeError(w, http.StatusBadGateway, n.Message)
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, guard.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, guard.ErrBusy),
		errors.Is(err, editor.ErrInFlight),
		errors.Is(err, editor.ErrNoForm),
		errors.Is(err, app.ErrNoPreview),
		errors.Is(err, app.ErrNoQuestionnaire),
		errors.Is(err, app.ErrNoSearch):
		return http.StatusConflict
	case errors.Is(err, history.ErrNotFound),
		errors.Is(err, chat.ErrNotFound),
		errors.Is(err, editor.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrEmptyInstruction),
		errors.Is(err, editor.ErrOptionIndex),
		errors.Is(err, editor.ErrPositionOutOfRange),
		errors.Is(err, form.ErrUnknownKind),
		errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrEmptySearch),
		errors.Is(err, app.ErrSourceIndex),
		errors.Is(err, app.ErrUnknownTab),
		errors.Is(err, profile.ErrEmptyName),
		errors.Is(err, gateway.ErrUnsupportedDocument),
		errors.Is(err, gateway.ErrEmptyDocument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

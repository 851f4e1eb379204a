package app

import (
	"context"
	"fmt"
	"strings"

	"formgenie/internal/export"
	"formgenie/internal/form"
	"formgenie/internal/gateway"
	"formgenie/internal/providers"
)

const untitledSource = "Legal Document"

func (w *Workspace) Search(ctx context.Context, docType, jurisdiction string) (gateway.SearchResult, error) {
	docType, jurisdiction = strings.TrimSpace(docType), strings.TrimSpace(jurisdiction)
	if docType == "" || jurisdiction == "" {
		return gateway.SearchResult{}, ErrEmptySearch
	}
	release, err := w.gate.Enter(ctx, "search", true)
	if err != nil {
		return gateway.SearchResult{}, err
	}
	defer release()

	res, err := w.ai.SearchGroundedDocuments(ctx, docType, jurisdiction)
	if err != nil {
		w.logger.Error().Err(err).Str("doc_type", docType).Msg("search failed")
		return gateway.SearchResult{}, &Notice{Message: MsgSearchFailed, Err: err}
	}
	w.mu.Lock()
	w.search = &res
	w.searchDocType = docType
	w.mu.Unlock()
	return res, nil
}

// SearchResults returns the last successful search, if any.
func (w *Workspace) SearchResults() (gateway.SearchResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.search == nil {
		return gateway.SearchResult{}, false
	}
	return *w.search, true
}

func (w *Workspace) source(index int) (string, providers.Source, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.search == nil {
		return "", providers.Source{}, "", ErrNoSearch
	}
	if index < 0 || index >= len(w.search.Sources) {
		return "", providers.Source{}, "", fmt.Errorf("%w: %d", ErrSourceIndex, index)
	}
	src := w.search.Sources[index]
	if strings.TrimSpace(src.Title) == "" {
		src.Title = untitledSource
	}
	return w.search.Text, src, w.searchDocType, nil
}

// SearchToForm turns one grounded source into a form and opens it for editing.
func (w *Workspace) SearchToForm(ctx context.Context, index int) (form.Structure, error) {
	text, src, _, err := w.source(index)
	if err != nil {
		return form.Structure{}, err
	}
	release, err := w.gate.Enter(ctx, "search_form", true)
	if err != nil {
		return form.Structure{}, err
	}
	defer release()

	s, err := w.ai.StructureFromSearchContext(ctx, text, src.Title, src.URI)
	if err != nil {
		w.logger.Error().Err(err).Str("uri", src.URI).Msg("search conversion failed")
		return form.Structure{}, &Notice{Message: MsgSearchConvertFailed, Err: err}
	}
	w.metrics.Conversions.Inc()
	return w.TransferForm(ctx, s), nil
}

// DraftFromSearch synthesizes a document from one source as a Word download.
func (w *Workspace) DraftFromSearch(ctx context.Context, index int) (export.Artifact, error) {
	text, src, docType, err := w.source(index)
	if err != nil {
		return export.Artifact{}, err
	}
	release, err := w.gate.Enter(ctx, "draft", true)
	if err != nil {
		return export.Artifact{}, err
	}
	defer release()

	draft, err := w.ai.DraftDocument(ctx, text, src.Title, src.URI)
	if err != nil {
		w.logger.Error().Err(err).Str("uri", src.URI).Msg("draft failed")
		return export.Artifact{}, &Notice{Message: MsgDraftFailed, Err: err}
	}
	title := src.Title
	if title == untitledSource && docType != "" {
		title = docType
	}
	w.metrics.Exports.WithLabelValues("word").Inc()
	return export.DraftArtifact(title, draft), nil
}

// Package app is the single-user workspace tying the editor, stores, model
// gateway and cloud storage together.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"formgenie/internal/chat"
	"formgenie/internal/csvsniff"
	"formgenie/internal/drive"
	"formgenie/internal/editor"
	"formgenie/internal/export"
	"formgenie/internal/form"
	"formgenie/internal/gateway"
	"formgenie/internal/guard"
	"formgenie/internal/history"
	"formgenie/internal/metrics"
	"formgenie/internal/profile"
	"formgenie/internal/storage"
)

type Tab string

const (
	TabHome     Tab = "home"
	TabStandard Tab = "standard"
	TabDocChat  Tab = "docchat"
	TabSearch   Tab = "search"
	TabHistory  Tab = "history"

	RecentForms = 3
)

var (
	ErrUnknownTab      = errors.New("unknown tab")
	ErrNoPreview       = errors.New("no file awaiting confirmation")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrNoQuestionnaire = errors.New("no questionnaire extracted yet")
	ErrEmptySearch     = errors.New("document type and jurisdiction are required")
	ErrNoSearch        = errors.New("no search results")
	ErrSourceIndex     = errors.New("search source index out of range")
	ErrNoCloudStorage  = errors.New("cloud storage is not configured")
)

// AI is the model-backed half of the workspace.
type AI interface {
	Convert(ctx context.Context, doc gateway.Document) (form.Structure, error)
	Refine(ctx context.Context, current form.Structure, instruction string) (form.Structure, error)
	Chat(ctx context.Context, transcript []chat.Message, deep bool) (gateway.ChatReply, error)
	AnalyzeDocument(ctx context.Context, transcript []chat.Message, file *gateway.Document, deep bool) (gateway.DocAnalysis, error)
	SearchGroundedDocuments(ctx context.Context, docType, jurisdiction string) (gateway.SearchResult, error)
	StructureFromSearchContext(ctx context.Context, contextText, title, uri string) (form.Structure, error)
	DraftDocument(ctx context.Context, contextText, title, uri string) (string, error)
}

type CloudStorage interface {
	Upload(ctx context.Context, name string, content []byte, mimeType string) (string, error)
	Download(ctx context.Context, fileID string) (drive.File, error)
}

var (
	_ AI           = (*gateway.Gateway)(nil)
	_ CloudStorage = (*drive.Client)(nil)
)

type Config struct {
	Port    storage.Port
	AI      AI
	Drive   CloudStorage
	Gate    *guard.Gate
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
	NewID   func() string
}

type Preview struct {
	FileName string     `json:"fileName"`
	Rows     int        `json:"rows"`
	Header   []string   `json:"header"`
	Sample   [][]string `json:"sample"`
	Grid     [][]string `json:"grid"`
}

// UploadResult carries either a preview awaiting confirmation or the form
// produced right away.
type UploadResult struct {
	Preview *Preview        `json:"preview,omitempty"`
	Form    *form.Structure `json:"form,omitempty"`
}

type Workspace struct {
	mu      sync.Mutex
	ai      AI
	drive   CloudStorage
	gate    *guard.Gate
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time

	editor    *editor.Editor
	history   *history.Store
	assistant *chat.Store
	docChat   *chat.Store
	profile   *profile.Profile

	tab           Tab
	pending       *gateway.Document
	preview       *Preview
	awaitingField bool
	questionnaire *form.Structure
	search        *gateway.SearchResult
	searchDocType string
}

func New(ctx context.Context, cfg Config) *Workspace {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = form.NewID
	}
	if cfg.Gate == nil {
		cfg.Gate = guard.NewGate(nil, nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	logger := cfg.Logger.With().Str("component", "workspace").Logger()
	return &Workspace{
		ai:      cfg.AI,
		drive:   cfg.Drive,
		gate:    cfg.Gate,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     cfg.Now,
		editor:  editor.New(cfg.AI, cfg.NewID),
		history: history.Open(ctx, history.Config{
			Port: cfg.Port, Logger: cfg.Logger, Now: cfg.Now, NewID: cfg.NewID,
		}),
		assistant: chat.Open(ctx, chat.Config{
			Port: cfg.Port, Options: chat.AssistantOptions(), Logger: cfg.Logger, Now: cfg.Now, NewID: cfg.NewID,
		}),
		docChat: chat.Open(ctx, chat.Config{
			Port: cfg.Port, Options: chat.DocChatOptions(), Logger: cfg.Logger, Now: cfg.Now, NewID: cfg.NewID,
		}),
		profile: profile.Open(ctx, cfg.Port, cfg.Logger),
		tab:     TabHome,
	}
}

func (w *Workspace) Editor() *editor.Editor    { return w.editor }
func (w *Workspace) History() *history.Store   { return w.history }
func (w *Workspace) Assistant() *chat.Store    { return w.assistant }
func (w *Workspace) DocChat() *chat.Store      { return w.docChat }
func (w *Workspace) Profile() *profile.Profile { return w.profile }

func (w *Workspace) Tab() Tab {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tab
}

func (w *Workspace) SetTab(t Tab) error {
	switch t {
	case TabHome, TabStandard, TabDocChat, TabSearch, TabHistory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTab, t)
	}
	w.mu.Lock()
	w.tab = t
	w.mu.Unlock()
	return nil
}

// State is a read-only view of the workspace for clients.
type State struct {
	Tab           Tab              `json:"tab"`
	UserName      string           `json:"userName,omitempty"`
	Authenticated bool             `json:"authenticated"`
	Greeting      string           `json:"greeting"`
	Form          *form.Structure  `json:"form,omitempty"`
	Refining      bool             `json:"refining"`
	Preview       *Preview         `json:"preview,omitempty"`
	AwaitingField bool             `json:"awaitingField"`
	Questionnaire *form.Structure  `json:"questionnaire,omitempty"`
	Recent        []form.SavedForm `json:"recent"`
}

func (w *Workspace) State() State {
	name, authed := w.profile.Current()
	st := State{
		UserName:      name,
		Authenticated: authed,
		Greeting:      profile.Greeting(w.now()),
		Refining:      w.editor.Refining(),
		Recent:        w.history.Recent(RecentForms),
	}
	if cur, ok := w.editor.Current(); ok {
		st.Form = &cur
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	st.Tab = w.tab
	st.Preview = w.preview
	st.AwaitingField = w.awaitingField
	if w.questionnaire != nil {
		q := w.questionnaire.Clone()
		st.Questionnaire = &q
	}
	return st
}

func (w *Workspace) Login(ctx context.Context, name string) error {
	return w.profile.Login(ctx, name)
}

// Logout wipes every persisted key and returns the workspace to its initial state.
func (w *Workspace) Logout(ctx context.Context) error {
	err := w.profile.Logout(ctx)
	w.history.Reset()
	w.assistant.Reset()
	w.docChat.Reset()
	w.editor.Reset()
	w.mu.Lock()
	w.tab = TabHome
	w.pending = nil
	w.preview = nil
	w.awaitingField = false
	w.questionnaire = nil
	w.search = nil
	w.searchDocType = ""
	w.mu.Unlock()
	return err
}

// Upload routes a document: CSV files wait for confirmation behind a preview,
// anything else is converted immediately.
func (w *Workspace) Upload(ctx context.Context, doc gateway.Document) (UploadResult, error) {
	if doc.IsCSV() {
		grid := csvsniff.Sniff(doc.Content)
		p := &Preview{
			FileName: doc.FileName,
			Rows:     grid.Len(),
			Header:   grid.Header(),
			Sample:   grid.Sample(csvsniff.DefaultSampleRows),
			Grid:     grid,
		}
		w.mu.Lock()
		d := doc
		w.pending = &d
		w.preview = p
		w.mu.Unlock()
		return UploadResult{Preview: p}, nil
	}
	s, err := w.convert(ctx, doc)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Form: &s}, nil
}

func (w *Workspace) ConfirmPreview(ctx context.Context) (form.Structure, error) {
	w.mu.Lock()
	pending := w.pending
	w.mu.Unlock()
	if pending == nil {
		return form.Structure{}, ErrNoPreview
	}
	return w.convert(ctx, *pending)
}

func (w *Workspace) CancelPreview() {
	w.mu.Lock()
	w.pending = nil
	w.preview = nil
	w.mu.Unlock()
}

func (w *Workspace) convert(ctx context.Context, doc gateway.Document) (form.Structure, error) {
	release, err := w.gate.Enter(ctx, "convert", true)
	if err != nil {
		return form.Structure{}, err
	}
	defer release()

	s, err := w.ai.Convert(ctx, doc)
	if err != nil {
		w.metrics.ConversionFailures.Inc()
		w.logger.Error().Err(err).Str("file", doc.FileName).Msg("conversion failed")
		return form.Structure{}, &Notice{Message: MsgConvertFailed, Err: err}
	}
	w.metrics.Conversions.Inc()
	w.editor.Load(s)
	w.record(ctx, s)
	w.mu.Lock()
	w.pending = nil
	w.preview = nil
	w.mu.Unlock()
	cur, _ := w.editor.Current()
	return cur, nil
}

// record saves to history; a failed write is logged and otherwise ignored.
func (w *Workspace) record(ctx context.Context, s form.Structure) {
	if _, err := w.history.Record(ctx, s); err != nil {
		w.logger.Warn().Err(err).Msg("history not persisted")
	}
	w.metrics.HistoryRecords.Inc()
}

func (w *Workspace) Refine(ctx context.Context, instruction string) (form.Structure, error) {
	if strings.TrimSpace(instruction) == "" {
		return form.Structure{}, editor.ErrEmptyInstruction
	}
	if _, ok := w.editor.Current(); !ok {
		return form.Structure{}, editor.ErrNoForm
	}
	release, err := w.gate.Enter(ctx, "refine", true)
	if err != nil {
		return form.Structure{}, err
	}
	defer release()

	s, err := w.editor.Refine(ctx, instruction)
	switch {
	case err == nil:
		w.metrics.Refines.Inc()
		return s, nil
	case errors.Is(err, editor.ErrInFlight), errors.Is(err, editor.ErrNoForm):
		return form.Structure{}, err
	default:
		w.metrics.RefineFailures.Inc()
		w.logger.Error().Err(err).Msg("refine failed")
		return form.Structure{}, &Notice{Message: MsgRefineFailed, Err: err}
	}
}

// TransferForm makes s the active form, records it and opens the editor tab.
func (w *Workspace) TransferForm(ctx context.Context, s form.Structure) form.Structure {
	w.editor.Load(s)
	w.record(ctx, s)
	w.mu.Lock()
	w.tab = TabStandard
	w.mu.Unlock()
	cur, _ := w.editor.Current()
	return cur
}

// OpenSaved loads a copy of a history entry; later edits never reach history.
func (w *Workspace) OpenSaved(historyID string) (form.Structure, error) {
	saved, ok := w.history.Get(historyID)
	if !ok {
		return form.Structure{}, fmt.Errorf("%w: %s", history.ErrNotFound, historyID)
	}
	w.editor.Load(saved.Detach())
	w.mu.Lock()
	w.tab = TabStandard
	w.mu.Unlock()
	cur, _ := w.editor.Current()
	return cur, nil
}

func (w *Workspace) ExportScript() (export.Artifact, error) {
	cur, ok := w.editor.Current()
	if !ok {
		return export.Artifact{}, editor.ErrNoForm
	}
	a, err := export.ScriptArtifact(cur)
	if err != nil {
		return export.Artifact{}, err
	}
	w.metrics.Exports.WithLabelValues("apps_script").Inc()
	return a, nil
}

func (w *Workspace) SaveScriptToDrive(ctx context.Context) (string, error) {
	if w.drive == nil {
		return "", &Notice{Message: MsgDriveSaveFailed, Err: ErrNoCloudStorage}
	}
	a, err := w.ExportScript()
	if err != nil {
		return "", err
	}
	release, err := w.gate.Enter(ctx, "drive_upload", false)
	if err != nil {
		return "", err
	}
	defer release()

	id, err := w.drive.Upload(ctx, a.Name, a.Body, a.MimeType)
	if err != nil {
		w.logger.Error().Err(err).Str("file", a.Name).Msg("drive upload failed")
		return "", &Notice{Message: MsgDriveSaveFailed, Err: err}
	}
	w.metrics.DriveUploads.Inc()
	return id, nil
}

// ImportFromDrive downloads a document and feeds it through Upload.
func (w *Workspace) ImportFromDrive(ctx context.Context, fileID string) (UploadResult, error) {
	if w.drive == nil {
		return UploadResult{}, &Notice{Message: MsgDriveImportFailed, Err: ErrNoCloudStorage}
	}
	f, err := w.drive.Download(ctx, fileID)
	if err != nil {
		w.logger.Error().Err(err).Str("file_id", fileID).Msg("drive download failed")
		return UploadResult{}, &Notice{Message: MsgDriveImportFailed, Err: err}
	}
	return w.Upload(ctx, gateway.Document{Content: f.Content, MimeType: f.MimeType, FileName: f.Name})
}

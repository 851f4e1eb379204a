package app

import (
	"context"
	"strings"

	"formgenie/internal/chat"
	"formgenie/internal/export"
	"formgenie/internal/form"
	"formgenie/internal/gateway"
)

const SkipFieldText = "Skip this field."

// Turn is the assistant side of one exchange. Failed turns carry the apology
// that was appended to the transcript in place of a model reply.
type Turn struct {
	Reply         chat.Message    `json:"reply"`
	AwaitingField bool            `json:"awaitingField"`
	Questionnaire *form.Structure `json:"questionnaire,omitempty"`
	Failed        bool            `json:"failed"`
}

func (w *Workspace) AwaitingField() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.awaitingField
}

func (w *Workspace) SendAssistant(ctx context.Context, text string, deep bool) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}
	release, err := w.gate.Enter(ctx, "assistant", true)
	if err != nil {
		return Turn{}, err
	}
	defer release()

	if err := w.assistant.Append(ctx, w.assistant.NewMessage(chat.RoleUser, text)); err != nil {
		w.logger.Warn().Err(err).Msg("assistant transcript not persisted")
	}
	w.metrics.ChatTurns.WithLabelValues("assistant").Inc()

	reply, err := w.ai.Chat(ctx, w.assistant.Active(), deep)
	turn := Turn{}
	if err != nil {
		w.logger.Error().Err(err).Msg("assistant reply failed")
		turn.Failed = true
		turn.Reply = w.assistant.NewMessage(chat.RoleAssistant, MsgAssistantFailed)
	} else {
		turn.Reply = w.assistant.NewMessage(chat.RoleAssistant, reply.Text)
	}
	if err := w.assistant.Append(ctx, turn.Reply); err != nil {
		w.logger.Warn().Err(err).Msg("assistant transcript not persisted")
	}

	w.mu.Lock()
	if !turn.Failed {
		w.awaitingField = reply.AwaitingField
	}
	turn.AwaitingField = w.awaitingField
	w.mu.Unlock()
	return turn, nil
}

// SkipField declines the field the assistant is currently asking for.
func (w *Workspace) SkipField(ctx context.Context, deep bool) (Turn, error) {
	return w.SendAssistant(ctx, SkipFieldText, deep)
}

func (w *Workspace) NewAssistantSession(ctx context.Context) (*chat.Session, error) {
	s, err := w.assistant.ArchiveActive(ctx)
	w.mu.Lock()
	w.awaitingField = false
	w.mu.Unlock()
	return s, err
}

func (w *Workspace) LoadAssistantSession(ctx context.Context, id string) ([]chat.Message, error) {
	msgs, err := w.assistant.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.awaitingField = false
	w.mu.Unlock()
	return msgs, nil
}

// SendDocChat sends a message with an optional attached document. Without
// text, the document name stands in as the request.
func (w *Workspace) SendDocChat(ctx context.Context, text string, file *gateway.Document, deep bool) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" && file == nil {
		return Turn{}, ErrEmptyMessage
	}
	if text == "" {
		text = "Analyze this document: " + file.FileName
	}
	release, err := w.gate.Enter(ctx, "docchat", true)
	if err != nil {
		return Turn{}, err
	}
	defer release()

	if err := w.docChat.Append(ctx, w.docChat.NewMessage(chat.RoleUser, text)); err != nil {
		w.logger.Warn().Err(err).Msg("doc chat transcript not persisted")
	}
	w.metrics.ChatTurns.WithLabelValues("docchat").Inc()

	analysis, err := w.ai.AnalyzeDocument(ctx, w.docChat.Active(), file, deep)
	turn := Turn{}
	if err != nil {
		w.logger.Error().Err(err).Msg("document analysis failed")
		turn.Failed = true
		turn.Reply = w.docChat.NewMessage(chat.RoleAssistant, MsgDocChatFailed)
	} else {
		turn.Reply = w.docChat.NewMessage(chat.RoleAssistant, analysis.Text)
	}
	if err := w.docChat.Append(ctx, turn.Reply); err != nil {
		w.logger.Warn().Err(err).Msg("doc chat transcript not persisted")
	}

	w.mu.Lock()
	if analysis.Questionnaire != nil {
		q := analysis.Questionnaire.Clone()
		w.questionnaire = &q
	}
	if w.questionnaire != nil {
		q := w.questionnaire.Clone()
		turn.Questionnaire = &q
	}
	w.mu.Unlock()
	return turn, nil
}

func (w *Workspace) Questionnaire() (form.Structure, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.questionnaire == nil {
		return form.Structure{}, false
	}
	return w.questionnaire.Clone(), true
}

func (w *Workspace) NewDocChatSession(ctx context.Context) (*chat.Session, error) {
	s, err := w.docChat.ArchiveActive(ctx)
	w.mu.Lock()
	w.questionnaire = nil
	w.mu.Unlock()
	return s, err
}

func (w *Workspace) LoadDocChatSession(ctx context.Context, id string) ([]chat.Message, error) {
	msgs, err := w.docChat.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.questionnaire = nil
	w.mu.Unlock()
	return msgs, nil
}

// TransferQuestionnaire opens the extracted questionnaire in the editor.
func (w *Workspace) TransferQuestionnaire(ctx context.Context) (form.Structure, error) {
	q, ok := w.Questionnaire()
	if !ok {
		return form.Structure{}, ErrNoQuestionnaire
	}
	return w.TransferForm(ctx, q), nil
}

func (w *Workspace) ExportQuestionnaireCSV() (export.Artifact, error) {
	q, ok := w.Questionnaire()
	if !ok {
		return export.Artifact{}, ErrNoQuestionnaire
	}
	a, err := export.QuestionnaireArtifact(q)
	if err != nil {
		return export.Artifact{}, err
	}
	w.metrics.Exports.WithLabelValues("csv").Inc()
	return a, nil
}

package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownKind = errors.New("unknown question kind")
	ErrParse       = errors.New("could not structure form data")
)

type Kind string

const (
	ShortAnswer    Kind = "SHORT_ANSWER"
	Paragraph      Kind = "PARAGRAPH"
	MultipleChoice Kind = "MULTIPLE_CHOICE"
	Checkboxes     Kind = "CHECKBOXES"
	Dropdown       Kind = "DROPDOWN"
)

// Kinds lists every question kind in display order.
var Kinds = []Kind{ShortAnswer, Paragraph, MultipleChoice, Checkboxes, Dropdown}

func (k Kind) Valid() bool {
	switch k {
	case ShortAnswer, Paragraph, MultipleChoice, Checkboxes, Dropdown:
		return true
	default:
		return false
	}
}

// HasOptions reports whether questions of this kind carry a choice list.
func (k Kind) HasOptions() bool {
	return k == MultipleChoice || k == Checkboxes || k == Dropdown
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode kind: %w", err)
	}
	parsed, err := ParseKind(raw)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type Question struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Kind     Kind     `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
	HelpText string   `json:"helpText,omitempty"`
}

func (q Question) Clone() Question {
	if q.Options != nil {
		opts := make([]string, len(q.Options))
		copy(opts, q.Options)
		q.Options = opts
	}
	return q
}

type Structure struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

func (s Structure) Clone() Structure {
	out := Structure{Title: s.Title, Description: s.Description, Questions: make([]Question, len(s.Questions))}
	for i, q := range s.Questions {
		out.Questions[i] = q.Clone()
	}
	return out
}

// Normalize fills absent collections so consumers never branch on nil.
func (s *Structure) Normalize() {
	if s.Questions == nil {
		s.Questions = []Question{}
	}
}

// Index returns the position of the question with the given id, or -1.
func (s Structure) Index(id string) int {
	for i, q := range s.Questions {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// SavedForm is a structure frozen into history.
type SavedForm struct {
	Structure
	HistoryID string `json:"historyId"`
	SavedAt   int64  `json:"savedAt"`
}

func NewSavedForm(s Structure, historyID string, at time.Time) SavedForm {
	return SavedForm{Structure: s.Clone(), HistoryID: historyID, SavedAt: at.UnixMilli()}
}

func (f SavedForm) SavedTime() time.Time {
	return time.UnixMilli(f.SavedAt)
}

// Detach returns an editable copy with history fields stripped.
func (f SavedForm) Detach() Structure {
	s := f.Structure.Clone()
	s.Normalize()
	return s
}

func NewID() string {
	return uuid.NewString()
}

// Decode parses an untrusted payload into a structure. Any failure wraps ErrParse.
func Decode(b []byte) (Structure, error) {
	if len(strings.TrimSpace(string(b))) == 0 {
		return Structure{}, fmt.Errorf("%w: empty payload", ErrParse)
	}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return Structure{}, fmt.Errorf("%w: null payload", ErrParse)
	}
	var s Structure
	if err := json.Unmarshal(b, &s); err != nil {
		return Structure{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	s.Normalize()
	for i := range s.Questions {
		if strings.TrimSpace(s.Questions[i].ID) == "" {
			s.Questions[i].ID = NewID()
		}
		if s.Questions[i].Kind == "" {
			return Structure{}, fmt.Errorf("%w: question %d has no type", ErrParse, i)
		}
	}
	return s, nil
}

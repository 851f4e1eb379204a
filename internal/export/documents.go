package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html"
	"strconv"
	"strings"

	"formgenie/internal/form"
)

const (
	CSVMimeType  = "text/csv"
	WordMimeType = "application/vnd.ms-word"

	wordHeader = "<html xmlns:o='urn:schemas-microsoft-com:office:office' " +
		"xmlns:w='urn:schemas-microsoft-com:office:word' " +
		"xmlns='http://www.w3.org/TR/REC-html40'>" +
		"<head><meta charset='utf-8'><title>Draft</title></head><body>"
	wordFooter = "</body></html>"
)

var csvHeader = []string{"Question", "Type", "Options", "Required", "Help Text"}

// QuestionnaireCSV flattens a questionnaire into one row per question.
func QuestionnaireCSV(s form.Structure) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, q := range s.Questions {
		row := []string{q.Title, string(q.Kind), strings.Join(q.Options, " | "), strconv.FormatBool(q.Required), q.HelpText}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func QuestionnaireArtifact(s form.Structure) (Artifact, error) {
	body, err := QuestionnaireCSV(s)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Name: fileStem(s.Title) + "_Questionnaire.csv", MimeType: CSVMimeType, Body: body}, nil
}

// WordDraft wraps plain text in the HTML envelope Word opens as a document.
func WordDraft(text string) []byte {
	body := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
	return []byte(wordHeader + body + wordFooter)
}

func DraftArtifact(title, text string) Artifact {
	return Artifact{Name: fileStem(title) + "_Draft.doc", MimeType: WordMimeType, Body: WordDraft(text)}
}

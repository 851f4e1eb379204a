// Package export renders forms into downloadable artifacts.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"formgenie/internal/form"
)

const ScriptMimeType = "text/plain"

var whitespaceRun = regexp.MustCompile(`\s+`)

// itemCall maps every kind to the FormApp method creating its item.
var itemCall = map[form.Kind]string{
	form.ShortAnswer:    "addTextItem",
	form.Paragraph:      "addParagraphTextItem",
	form.MultipleChoice: "addMultipleChoiceItem",
	form.Checkboxes:     "addCheckboxItem",
	form.Dropdown:       "addListItem",
}

const scriptHeader = `/**
 * FormGenie - Automatically create Google Form
 * Paste this script into https://script.google.com
 */
function createGoogleForm() {
  const formData = `

const scriptFooter = `
  Logger.log('Published URL: ' + form.getPublishedUrl());
  Logger.log('Editor URL: ' + form.getEditUrl());

  return form.getEditUrl();
}
`

// RenderAppsScript produces a Google Apps Script that recreates s. The output
// depends only on s, so equal structures yield identical bytes.
func RenderAppsScript(s form.Structure) (string, error) {
	s.Normalize()
	literal, err := marshalLiteral(s)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(scriptHeader)
	b.WriteString(literal)
	b.WriteString(";\n\n")
	b.WriteString("  const form = FormApp.create(formData.title);\n")
	b.WriteString("  form.setDescription(formData.description);\n")

	for i, q := range s.Questions {
		call, ok := itemCall[q.Kind]
		if !ok {
			return "", fmt.Errorf("render question %d: %w: %q", i+1, form.ErrUnknownKind, q.Kind)
		}
		title, err := jsString(q.Title)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n  // Question %d\n", i+1)
		fmt.Fprintf(&b, "  form.%s()\n", call)
		fmt.Fprintf(&b, "    .setTitle(%s)\n", title)
		if q.Kind.HasOptions() && len(q.Options) > 0 {
			opts, err := jsValue(q.Options)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "    .setChoiceValues(%s)\n", opts)
		}
		if q.HelpText != "" {
			help, err := jsString(q.HelpText)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "    .setHelpText(%s)\n", help)
		}
		fmt.Fprintf(&b, "    .setRequired(%t);\n", q.Required)
	}

	b.WriteString(scriptFooter)
	return b.String(), nil
}

// AppsScript is RenderAppsScript for structures whose kinds were already
// validated, as everything from form.Decode and the editor is. It panics on
// an unknown kind.
func AppsScript(s form.Structure) string {
	out, err := RenderAppsScript(s)
	if err != nil {
		panic(err)
	}
	return out
}

func ScriptFileName(title string) string {
	return fileStem(title) + "_Creator_Script.gs"
}

func ScriptArtifact(s form.Structure) (Artifact, error) {
	body, err := RenderAppsScript(s)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Name: ScriptFileName(s.Title), MimeType: ScriptMimeType, Body: []byte(body)}, nil
}

func fileStem(title string) string {
	return whitespaceRun.ReplaceAllString(title, "_")
}

func marshalLiteral(s form.Structure) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("  ", "  ")
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encode form literal: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func jsValue(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode script value: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func jsString(s string) (string, error) {
	return jsValue(s)
}

package gateway

import (
	"strings"

	"formgenie/internal/form"
)

const (
	FieldQueryToken = "[FIELD_QUERY]"

	payloadStart = "[JSON_START]"
	payloadEnd   = "[JSON_END]"
)

// StripFieldQuery removes the first field-query marker and reports whether
// the reply is waiting for a field value.
func StripFieldQuery(text string) (string, bool) {
	if !strings.Contains(text, FieldQueryToken) {
		return text, false
	}
	return strings.TrimSpace(strings.Replace(text, FieldQueryToken, "", 1)), true
}

// ExtractPayload pulls the first delimited JSON questionnaire out of text.
// On success the delimited span is removed and the rest trimmed. When no pair
// is present or the JSON does not decode, text comes back unchanged.
func ExtractPayload(text string) (string, *form.Structure) {
	start := strings.Index(text, payloadStart)
	if start < 0 {
		return text, nil
	}
	rel := strings.Index(text[start+len(payloadStart):], payloadEnd)
	if rel < 0 {
		return text, nil
	}
	bodyStart := start + len(payloadStart)
	bodyEnd := bodyStart + rel
	s, err := form.Decode([]byte(stripFences(text[bodyStart:bodyEnd])))
	if err != nil {
		return text, nil
	}
	rest := text[:start] + text[bodyEnd+len(payloadEnd):]
	return strings.TrimSpace(rest), &s
}

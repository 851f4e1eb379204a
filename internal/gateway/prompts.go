package gateway

import (
	"formgenie/internal/form"
	"formgenie/internal/providers"
)

const csvPrompt = `Analyze the provided CSV data to design a Google Form.

CRITICAL INSTRUCTIONS:
1. Headers: Use the first row as question titles.
2. Data Patterns: Examine the subsequent rows to determine the best 'type' for each question:
   - MULTIPLE_CHOICE: Use if a column has a small set of repeating values.
   - CHECKBOXES: Use if multiple values apply.
   - DROPDOWN: For larger sets of unique options.
   - SHORT_ANSWER: For brief text.
   - PARAGRAPH: For long text.
3. Metadata: Note formats like dates/emails in helpText.
4. Required: Infer if essential.

CSV Data:
%s

Return the result in JSON format following the responseSchema.`

const pdfPrompt = `Analyze the content of this PDF and extract relevant information to build a Google Form.
Identify surveys, registration forms, or questionnaires within the text.
Return the result in JSON format following the responseSchema.`

const refinePrompt = `Refine the following Google Form structure based on this instruction: %q.

Current Form:
%s

Instructions:
1. Modify the questions, titles, descriptions, or options as requested.
2. Ensure the output is a valid FormStructure.
3. Improve clarity, tone, and professionalism where appropriate.
4. If adding questions, generate appropriate unique IDs.

Return the result in JSON format following the responseSchema.`

const docChatInstruction = `You are an expert Document-to-Questionnaire analyst.
Your goal is to extract structured survey/questionnaire data from documents.
Always respond conversationally, BUT if you identify questions, also provide a hidden JSON structure at the end of your message delimited by [JSON_START] and [JSON_END].
The JSON must follow the FormStructure schema: {title, description, questions: [{id, title, type, options, required, helpText}]}.
Question types must be SHORT_ANSWER, PARAGRAPH, MULTIPLE_CHOICE, CHECKBOXES, or DROPDOWN.`

const assistantInstruction = `You are FormGenie Assistant. You specialize in converting data (CSV/PDF) into Google Forms AND drafting legal documents based on US state laws.

If the user wants to draft a legal document:
1. Always ask for the Document Type and the specific US State if not provided.
2. Once the type and state are known, start an interactive drafting session.
3. Ask relevant questions ONE BY ONE to gather details for the document (e.g., names of parties, addresses, dates, specific amounts, or unique clauses).
4. CRITICAL: Prefix every question intended to fill a field with "[FIELD_QUERY]". For example: "[FIELD_QUERY] What is the full legal name of the Grantor?"
5. Inform the user they can skip any question they don't have the answer to.
6. Once the user is finished or you have enough info, generate the final document.
7. FOR ALL SKIPPED OR MISSING INFO: Leave the space empty and fill it with exactly "________" (8 underscores).
8. Ensure the document follows standard legal conventions for the chosen state.`

const searchPrompt = `Find official and up-to-date legal documents, forms, and files related to %q for the US state of %q.
Provide clear descriptions and identify the most reliable sources.
Focus on state government websites (.gov) and official judicial resources.`

const searchFormPrompt = `Based on the following legal search context, generate a structured Google Form blueprint that would capture the information typically required for this type of document/application.

Source Title: %s
Source URL: %s
Analysis Context: %s

Return the result in JSON format following the responseSchema.`

const draftPrompt = `Draft a professional and formal legal document or template based on the following search result for %q.
Use standard legal formatting (headings, numbered sections, placeholders for personal info like [NAME]).

Analysis Context: %s
Source: %s

The draft should be complete, professional, and ready for use as a template. Do not include markdown code fences, just return the plain text of the document.`

// structureSchema describes form.Structure for structured output.
func structureSchema() *providers.Schema {
	kinds := make([]string, len(form.Kinds))
	for i, k := range form.Kinds {
		kinds[i] = string(k)
	}
	return &providers.Schema{
		Type: "OBJECT",
		Properties: map[string]*providers.Schema{
			"title":       {Type: "STRING"},
			"description": {Type: "STRING"},
			"questions": {
				Type: "ARRAY",
				Items: &providers.Schema{
					Type: "OBJECT",
					Properties: map[string]*providers.Schema{
						"id":       {Type: "STRING"},
						"title":    {Type: "STRING"},
						"type":     {Type: "STRING", Enum: kinds},
						"options":  {Type: "ARRAY", Items: &providers.Schema{Type: "STRING"}},
						"required": {Type: "BOOLEAN"},
						"helpText": {Type: "STRING"},
					},
					Required: []string{"id", "title", "type", "required"},
				},
			},
		},
		Required: []string{"title", "description", "questions"},
	}
}

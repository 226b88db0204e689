package harvest

import (
	"fmt"
	"unicode/utf8"
)

// MaxContentChars caps the page content forwarded to the model.
const MaxContentChars = 30000

// SystemInstruction describes the reply shape the parser accepts.
const SystemInstruction = "You are an AI research assistant. Read the following webpage text and " +
	"return a JSON object with two keys: summary (a 2-sentence summary of " +
	"the page) and tags (an array of 3 categorical strings). " +
	"Reply with the JSON object only."

// BuildPrompt composes the user prompt. Content longer than maxChars runes is
// cut; shorter content is passed through untouched.
func BuildPrompt(req Request, maxChars int) string {
	if maxChars <= 0 {
		maxChars = MaxContentChars
	}
	content := req.Content
	if utf8.RuneCountInString(content) > maxChars {
		content = Truncate(content, maxChars)
	}
	return fmt.Sprintf("Title: %s\nURL: %s\n\nPage content:\n%s", req.Title, req.URL, content)
}

package gemini

import "fmt"

const promptTemplate = "The %s page has been updated. Based on the following text, " +
	"please provide a concise, bulleted summary of the LATEST changes. " +
	"Focus only on what seems new.\n\nDOCUMENT TEXT:\n%s"

// BuildPrompt embeds text into the fixed summarization instruction.
func BuildPrompt(subject, text string) string {
	return fmt.Sprintf(promptTemplate, subject, text)
}

// Truncate returns at most limit characters (runes) of text.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}

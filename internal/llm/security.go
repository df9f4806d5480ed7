package llm

import (
	"strings"
)

// injectionPatterns are phrases in untrusted text that suggest an attempt to steer the model
var injectionPatterns = []string{
	"</system>",
	"<system_override",
	"system override",
	"bypass rule",
	"ignore previous",
	"ignore all previous",
	"forget previous",
	"disregard the above",
	"system prompt",
	"actual instruction",
	"real instruction",
	"admin override",
}

// DetectPromptInjection checks if text contains potential injection patterns
func DetectPromptInjection(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range injectionPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// EscapeXMLChars escapes XML special characters in the input
func EscapeXMLChars(input string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(input)
}

// FenceUntrusted wraps user supplied text (issue titles and bodies) in a tagged
// block so prompts can tell the model to treat it as data
func FenceUntrusted(tag, text string) string {
	return "<" + tag + ">\n" + EscapeXMLChars(text) + "\n</" + tag + ">"
}

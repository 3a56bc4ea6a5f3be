package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
)

const maxFileNameRunes = 80

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N}_\- ]`)

// EntityToText serializes an entity into the plain-text block that gets embedded.
// Sections without content are omitted, the title and code lines are always present.
func EntityToText(e domain.ClassificationEntity) string {
	title := e.Title
	if strings.TrimSpace(title) == "" {
		title = "Untitled ICD Entry " + e.Code
	}

	parts := []string{"Title: " + title}
	if len(e.Synonyms) > 0 {
		parts = append(parts, "Synonyms: "+strings.Join(e.Synonyms, "; "))
	}
	if e.Definition != "" {
		parts = append(parts, "Definition: "+e.Definition)
	}
	if e.BrowserURL != "" {
		parts = append(parts, "SourceURL: "+e.BrowserURL)
	}
	parts = append(parts, "ICDCode: "+e.Code)
	return strings.Join(parts, "\n")
}

// SanitizeFileName builds "<code>_<title>" restricted to letters, digits,
// underscore, dash and space, truncated to 80 runes. No extension is added.
func SanitizeFileName(code, title string) string {
	name := unsafeFileChars.ReplaceAllString(code+"_"+title, "")
	if utf8.RuneCountInString(name) > maxFileNameRunes {
		name = string([]rune(name)[:maxFileNameRunes])
	}
	return name
}

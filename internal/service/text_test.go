package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
)

func TestEntityToText(t *testing.T) {
	e := domain.ClassificationEntity{
		Code:       "1435254666",
		Title:      "Acute myocardial infarction",
		Synonyms:   []string{"heart attack", "AMI"},
		Definition: "Necrosis of the myocardium.",
		BrowserURL: "https://icd.who.int/browse/x",
	}
	want := "Title: Acute myocardial infarction\n" +
		"Synonyms: heart attack; AMI\n" +
		"Definition: Necrosis of the myocardium.\n" +
		"SourceURL: https://icd.who.int/browse/x\n" +
		"ICDCode: 1435254666"
	assert.Equal(t, want, EntityToText(e))
}

func TestEntityToText_Minimal(t *testing.T) {
	got := EntityToText(domain.ClassificationEntity{Code: "77"})
	assert.Equal(t, "Title: Untitled ICD Entry 77\nICDCode: 77", got)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "123_Cholera due to Vibriocholerae 01", SanitizeFileName("123", "Cholera (due to) Vibrio/cholerae 01!"))
	assert.Equal(t, "9_Ménière disease", SanitizeFileName("9", "Ménière disease"))

	long := SanitizeFileName("1", strings.Repeat("é", 200))
	assert.Equal(t, 80, utf8.RuneCountInString(long))
}

package service

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// SynonymEntry maps a layman phrase to its medical term.
type SynonymEntry struct {
	Layman  string `yaml:"layman"  json:"layman"`
	Medical string `yaml:"medical" json:"medical"`
}

// DefaultSynonyms is the built-in layman to medical table.
func DefaultSynonyms() []SynonymEntry {
	return []SynonymEntry{
		{Layman: "heart attack", Medical: "myocardial infarction"},
		{Layman: "stroke", Medical: "cerebrovascular accident"},
		{Layman: "flu", Medical: "influenza"},
		{Layman: "chickenpox", Medical: "varicella"},
		{Layman: "whooping cough", Medical: "pertussis"},
		{Layman: "lockjaw", Medical: "tetanus"},
		{Layman: "german measles", Medical: "rubella"},
	}
}

// synonymFile is the YAML layout of SYNONYMS_FILE.
type synonymFile struct {
	Synonyms []SynonymEntry `yaml:"synonyms"`
}

// LoadSynonyms reads a YAML synonym file and merges it over base.
// Entries with an existing layman phrase replace it in place, new ones are appended.
func LoadSynonyms(path string, base []SynonymEntry) ([]SynonymEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonyms: %w", err)
	}
	var f synonymFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode synonyms %s: %w", path, err)
	}

	merged := append([]SynonymEntry(nil), base...)
	index := make(map[string]int, len(merged))
	for i, e := range merged {
		index[Normalize(e.Layman)] = i
	}
	for _, e := range f.Synonyms {
		key := Normalize(e.Layman)
		if key == "" || strings.TrimSpace(e.Medical) == "" {
			continue
		}
		e.Layman = key
		if i, ok := index[key]; ok {
			merged[i] = e
			continue
		}
		index[key] = len(merged)
		merged = append(merged, e)
	}
	return merged, nil
}

// Expander appends medical terms to queries that mention layman phrases.
type Expander struct {
	entries []SynonymEntry
}

// NewExpander creates an expander over entries, matched in order.
func NewExpander(entries []SynonymEntry) *Expander {
	normalized := make([]SynonymEntry, 0, len(entries))
	for _, e := range entries {
		if l := Normalize(e.Layman); l != "" {
			normalized = append(normalized, SynonymEntry{Layman: l, Medical: e.Medical})
		}
	}
	return &Expander{entries: normalized}
}

// Normalize applies NFKC, lower-cases and trims.
func Normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFKC.String(s)))
}

// Expand returns the normalized query with every matched medical term appended,
// and the matched medical terms in table order. Matching is by substring.
func (e *Expander) Expand(query string) (string, []string) {
	normalized := Normalize(query)
	expanded := normalized
	var matches []string
	for _, entry := range e.entries {
		if strings.Contains(normalized, entry.Layman) {
			expanded += " " + entry.Medical
			matches = append(matches, entry.Medical)
		}
	}
	return expanded, matches
}

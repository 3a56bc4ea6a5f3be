package domain

import "strings"

// LocalizedText is the JSON-LD language-tagged string used throughout the ICD-11 API.
type LocalizedText struct {
	Language string `json:"@language,omitempty"`
	Value    string `json:"@value"`
}

// Synonym is one entry of an entity's synonym list.
type Synonym struct {
	Label LocalizedText `json:"label"`
}

// RawEntity mirrors the JSON document returned by the WHO foundation endpoint.
type RawEntity struct {
	ID         string        `json:"@id"`
	Title      LocalizedText `json:"title"`
	Definition LocalizedText `json:"definition"`
	Synonym    []Synonym     `json:"synonym,omitempty"`
	Parent     []string      `json:"parent,omitempty"`
	Child      []string      `json:"child,omitempty"`
	BrowserURL string        `json:"browserUrl,omitempty"`
}

// ClassificationEntity is an ICD-11 foundation entry, immutable once fetched.
type ClassificationEntity struct {
	URI        string   `json:"uri"`
	Code       string   `json:"code"`
	Title      string   `json:"title"`
	Synonyms   []string `json:"synonyms"`
	Definition string   `json:"definition"`
	BrowserURL string   `json:"browser_url"`
	Children   []string `json:"children,omitempty"`
	Parents    []string `json:"parents,omitempty"`
}

// ToEntity flattens the JSON-LD shape. fallbackID is used when @id is missing.
func (r RawEntity) ToEntity(fallbackID string) ClassificationEntity {
	uri := r.ID
	if uri == "" {
		uri = fallbackID
	}
	synonyms := make([]string, 0, len(r.Synonym))
	for _, s := range r.Synonym {
		if s.Label.Value != "" {
			synonyms = append(synonyms, s.Label.Value)
		}
	}
	return ClassificationEntity{
		URI:        uri,
		Code:       CodeFromURI(uri),
		Title:      r.Title.Value,
		Synonyms:   synonyms,
		Definition: r.Definition.Value,
		BrowserURL: r.BrowserURL,
		Children:   r.Child,
		Parents:    r.Parent,
	}
}

// HasDefinition reports whether the entity carries definition text.
func (e ClassificationEntity) HasDefinition() bool {
	return strings.TrimSpace(e.Definition) != ""
}

// CodeFromURI returns the last path segment of an entity URI,
// e.g. http://id.who.int/icd/entity/1435254666 -> 1435254666.
func CodeFromURI(uri string) string {
	uri = strings.TrimRight(uri, "/")
	if i := strings.Index(uri, "?"); i >= 0 {
		uri = uri[:i]
	}
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

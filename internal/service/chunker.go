package service

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// TextSplitter splits text recursively on paragraph, line, word and finally
// character boundaries so that each chunk stays within ChunkSize runes.
// Consecutive chunks share up to ChunkOverlap runes.
type TextSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	separators   []string
}

// NewTextSplitter creates a splitter. A size of 0 or less disables splitting.
func NewTextSplitter(size, overlap int) *TextSplitter {
	if overlap < 0 || (size > 0 && overlap >= size) {
		overlap = 0
	}
	return &TextSplitter{ChunkSize: size, ChunkOverlap: overlap, separators: defaultSeparators}
}

// Split returns the chunks of text. With splitting disabled the whole trimmed
// text is returned as a single chunk. Blank input yields nil.
func (s *TextSplitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.ChunkSize <= 0 || runeLen(text) <= s.ChunkSize {
		return []string{text}
	}
	return s.split(text, s.separators)
}

func (s *TextSplitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var final, good []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) < s.ChunkSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, p)
		} else {
			final = append(final, s.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, sep)...)
	}
	return final
}

// merge packs small pieces into chunks, carrying the tail of the previous
// chunk forward as overlap.
func (s *TextSplitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var docs, current []string
	total := 0

	joinedLen := func(l int) int {
		if len(current) > 0 {
			return total + l + sepLen
		}
		return total + l
	}

	for _, p := range pieces {
		l := runeLen(p)
		if joinedLen(l) > s.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.ChunkOverlap || (joinedLen(l) > s.ChunkSize && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		current = append(current, p)
		if len(current) > 1 {
			total += sepLen
		}
		total += l
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

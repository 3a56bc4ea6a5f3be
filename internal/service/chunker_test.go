package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextSplitter_Disabled(t *testing.T) {
	s := NewTextSplitter(0, 100)
	text := strings.Repeat("word ", 500)
	assert.Equal(t, []string{strings.TrimSpace(text)}, s.Split(text))
	assert.Nil(t, s.Split("  \n "))
}

func TestTextSplitter_ShortTextIsOneChunk(t *testing.T) {
	s := NewTextSplitter(800, 100)
	assert.Equal(t, []string{"Title: Cholera\nICDCode: 1"}, s.Split("Title: Cholera\nICDCode: 1"))
}

func TestTextSplitter_RespectsSizeAndOverlap(t *testing.T) {
	s := NewTextSplitter(40, 10)
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu nu xi omicron pi rho sigma tau"

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 40, c)
	}
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		assert.Contains(t, strings.Fields(chunks[i]), prevWords[len(prevWords)-1],
			"chunk %d should repeat the last word of the previous chunk", i)
	}
}

func TestTextSplitter_PrefersParagraphs(t *testing.T) {
	s := NewTextSplitter(30, 0)
	chunks := s.Split("first paragraph here\n\nsecond paragraph here")
	assert.Equal(t, []string{"first paragraph here", "second paragraph here"}, chunks)
}

func TestTextSplitter_SplitsLongWords(t *testing.T) {
	s := NewTextSplitter(10, 0)
	chunks := s.Split(strings.Repeat("x", 25))
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, chunks)
}

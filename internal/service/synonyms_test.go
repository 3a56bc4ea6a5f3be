package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpander_Expand(t *testing.T) {
	e := NewExpander(DefaultSynonyms())

	q, matches := e.Expand("  Is a HEART ATTACK the same as a stroke? ")
	assert.Equal(t, "is a heart attack the same as a stroke? myocardial infarction cerebrovascular accident", q)
	assert.Equal(t, []string{"myocardial infarction", "cerebrovascular accident"}, matches)

	q, matches = e.Expand("diabetes")
	assert.Equal(t, "diabetes", q)
	assert.Empty(t, matches)
}

func TestNormalize_NFKC(t *testing.T) {
	// fullwidth letters fold to ASCII
	assert.Equal(t, "flu", Normalize("ＦＬＵ"))
}

func TestLoadSynonyms_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`synonyms:
  - layman: Flu
    medical: influenza due to identified virus
  - layman: pink eye
    medical: conjunctivitis
  - layman: ""
    medical: ignored
`), 0644))

	entries, err := LoadSynonyms(path, DefaultSynonyms())
	require.NoError(t, err)
	require.Len(t, entries, len(DefaultSynonyms())+1)
	assert.Equal(t, SynonymEntry{Layman: "flu", Medical: "influenza due to identified virus"}, entries[2])
	assert.Equal(t, SynonymEntry{Layman: "pink eye", Medical: "conjunctivitis"}, entries[len(entries)-1])

	_, matches := NewExpander(entries).Expand("pink eye")
	assert.Equal(t, []string{"conjunctivitis"}, matches)
}

func TestLoadSynonyms_Errors(t *testing.T) {
	_, err := LoadSynonyms(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("synonyms: [unclosed"), 0644))
	_, err = LoadSynonyms(bad, nil)
	assert.Error(t, err)
}

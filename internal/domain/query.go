package domain

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a role-based chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source is a retrieved ICD-11 entry cited by an answer.
type Source struct {
	Code       string  `json:"icd_code"`
	Title      string  `json:"title"`
	BrowserURL string  `json:"browser_url"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

// Answer is the result of one question/answer cycle.
type Answer struct {
	Question string   `json:"question"`
	Query    string   `json:"query"` // expanded text that was embedded
	Text     string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Cached   bool     `json:"cached"`
}

// SourceFromRecord converts a search hit to its citation form.
func SourceFromRecord(r SimilarRecord) Source {
	return Source{
		Code:       r.Code,
		Title:      r.Title,
		BrowserURL: r.BrowserURL,
		Similarity: r.Similarity,
		Content:    r.Content,
	}
}

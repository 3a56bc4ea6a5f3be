package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

// SystemPrompt instructs the model to answer from the ICD-11 context only.
const SystemPrompt = `You are a WHO ICD-11 medical assistant.
- Use ONLY the provided ICD-11 context for accuracy.
- If the user’s query is slightly different but semantically related, explain the closest ICD-11 match.
- If there is *no relevant* ICD-11 entry, say:
"I’m not sure, this information is not found in ICD-11."`

// NoMatchAnswer is returned without calling the model when retrieval found too little.
const NoMatchAnswer = "I couldn’t find an exact ICD-11 match for your query. Try rephrasing or be more specific."

// minContextRunes is the shortest retrieved context worth sending to the model.
const minContextRunes = 50

// RAGService answers questions over the embedded ICD-11 records.
type RAGService struct {
	ai       port.AIProvider
	records  port.RecordStore
	expander *Expander
	cache    port.AnswerCache // optional
	topK     int
}

// NewRAGService creates a new RAG service. cache may be nil.
func NewRAGService(ai port.AIProvider, records port.RecordStore, expander *Expander, cache port.AnswerCache, topK int) *RAGService {
	if topK <= 0 {
		topK = 4
	}
	if expander == nil {
		expander = NewExpander(DefaultSynonyms())
	}
	return &RAGService{ai: ai, records: records, expander: expander, cache: cache, topK: topK}
}

// Search runs retrieval only and returns the expanded query and ranked sources.
func (s *RAGService) Search(ctx context.Context, question string, k int) (string, []domain.Source, error) {
	query, hits, err := s.retrieve(ctx, question, k)
	if err != nil {
		return "", nil, err
	}
	return query, toSources(hits), nil
}

// Ask answers one question. Answers are cached by normalized question and k.
func (s *RAGService) Ask(ctx context.Context, question string, k int) (*domain.Answer, error) {
	if k <= 0 {
		k = s.topK
	}
	key := cacheKey(question, k)
	if cached := s.cached(ctx, key); cached != nil {
		cached.Question = question
		return cached, nil
	}

	slog.Info("RAG query", "question", question, "top_k", k)

	query, hits, err := s.retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	var text string
	if chunks := contents(hits); !enoughContext(chunks) {
		text = NoMatchAnswer
	} else {
		response, err := s.ai.Chat(ctx, SystemPrompt, question, chunks)
		if err != nil {
			return nil, fmt.Errorf("chat: %w", err)
		}
		text = strings.TrimSpace(response)
	}

	answer := &domain.Answer{
		Question: question,
		Query:    query,
		Text:     text + ReferenceFooter(hits),
		Sources:  toSources(hits),
	}
	s.store(ctx, key, answer)
	return answer, nil
}

// Chat answers message and returns history extended with the user and assistant turns.
func (s *RAGService) Chat(ctx context.Context, message string, history []domain.ChatMessage) ([]domain.ChatMessage, *domain.Answer, error) {
	answer, err := s.Ask(ctx, message, s.topK)
	if err != nil {
		return history, nil, err
	}
	out := make([]domain.ChatMessage, 0, len(history)+2)
	out = append(out, history...)
	out = append(out,
		domain.ChatMessage{Role: domain.RoleUser, Content: message},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: answer.Text},
	)
	return out, answer, nil
}

// Stream retrieves sources and streams the answer. The reference footer is sent
// as the last token. Stream does not use the answer cache.
func (s *RAGService) Stream(ctx context.Context, question string, k int) ([]domain.Source, <-chan string, error) {
	if k <= 0 {
		k = s.topK
	}
	_, hits, err := s.retrieve(ctx, question, k)
	if err != nil {
		return nil, nil, err
	}
	footer := ReferenceFooter(hits)

	chunks := contents(hits)
	if !enoughContext(chunks) {
		out := make(chan string, 2)
		out <- NoMatchAnswer
		out <- footer
		close(out)
		return toSources(hits), out, nil
	}

	tokens, err := s.ai.ChatStream(ctx, SystemPrompt, question, chunks)
	if err != nil {
		return nil, nil, fmt.Errorf("chat stream: %w", err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		for tok := range tokens {
			select {
			case out <- tok:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- footer:
		case <-ctx.Done():
		}
	}()
	return toSources(hits), out, nil
}

// retrieve expands the question and runs the similarity search. When nothing
// comes back it retries once with the first matched medical term alone.
func (s *RAGService) retrieve(ctx context.Context, question string, k int) (string, []domain.SimilarRecord, error) {
	if strings.TrimSpace(question) == "" {
		return "", nil, port.ErrEmptyQuestion
	}
	if k <= 0 {
		k = s.topK
	}

	query, matches := s.expander.Expand(question)
	hits, err := s.search(ctx, query, k)
	if err != nil {
		return "", nil, err
	}
	if len(hits) == 0 && len(matches) > 0 {
		slog.Info("retrying retrieval with medical term", "term", matches[0])
		hits, err = s.search(ctx, matches[0], k)
		if err != nil {
			return "", nil, err
		}
	}
	return query, hits, nil
}

func (s *RAGService) search(ctx context.Context, text string, k int) ([]domain.SimilarRecord, error) {
	vec, err := s.ai.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.records.SearchSimilar(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	return hits, nil
}

func (s *RAGService) cached(ctx context.Context, key string) *domain.Answer {
	if s.cache == nil {
		return nil
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("answer cache get failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var answer domain.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		slog.Warn("answer cache entry unreadable", "error", err)
		return nil
	}
	answer.Cached = true
	return &answer
}

func (s *RAGService) store(ctx context.Context, key string, answer *domain.Answer) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		slog.Warn("answer cache set failed", "error", err)
	}
}

// ReferenceFooter renders the citation line appended to every answer.
func ReferenceFooter(hits []domain.SimilarRecord) string {
	if len(hits) == 0 {
		return "\n\n⚠️ *No exact ICD-11 match found.*"
	}
	refs := make([]string, len(hits))
	for i, h := range hits {
		code, url := h.Code, h.BrowserURL
		if code == "" {
			code = "unknown"
		}
		if url == "" {
			url = "#"
		}
		refs[i] = fmt.Sprintf("[%s](%s)", code, url)
	}
	return "\n\n📚 **ICD-11 References:** " + strings.Join(refs, ", ")
}

func cacheKey(question string, k int) string {
	return Normalize(question) + "|" + strconv.Itoa(k)
}

func contents(hits []domain.SimilarRecord) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Content
	}
	return out
}

func enoughContext(chunks []string) bool {
	combined := strings.TrimSpace(strings.Join(chunks, "\n\n"))
	return utf8.RuneCountInString(combined) >= minContextRunes
}

func toSources(hits []domain.SimilarRecord) []domain.Source {
	out := make([]domain.Source, len(hits))
	for i, h := range hits {
		out[i] = domain.SourceFromRecord(h)
	}
	return out
}

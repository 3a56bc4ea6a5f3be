package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
)

type stubAI struct{}

func (stubAI) ModelName() string { return "stub" }
func (stubAI) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (stubAI) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, nil }
func (stubAI) Chat(context.Context, string, string, []string) (string, error) {
	return "Tetanus is caused by Clostridium tetani.", nil
}
func (stubAI) ChatStream(context.Context, string, string, []string) (<-chan string, error) {
	return nil, nil
}

type stubStore struct{}

func (stubStore) Dimension() int { return 2 }
func (stubStore) UpsertRecords(context.Context, []domain.EmbeddedRecord) error { return nil }
func (stubStore) CountRecords(context.Context) (int, error) { return 1, nil }
func (stubStore) DeleteAll(context.Context) error { return nil }
func (stubStore) SearchSimilar(context.Context, []float32, int) ([]domain.SimilarRecord, error) {
	return []domain.SimilarRecord{{
		EmbeddedRecord: domain.EmbeddedRecord{
			Code:       "1209",
			Title:      "Tetanus",
			BrowserURL: "https://icd.who.int/browse/1209",
			Content:    "Title: Tetanus\nDefinition: A disease caused by the toxin of Clostridium tetani.",
		},
		Similarity: 0.81,
	}}, nil
}

func rpc(t *testing.T, srv *Server, body string) JSONRPCResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func newTestServer() *Server {
	return NewServer(service.NewRAGService(stubAI{}, stubStore{}, nil, nil, 4), nil, "0")
}

func TestToolsList(t *testing.T) {
	resp := rpc(t, newTestServer(), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	assert.Contains(t, string(data), `"search_icd"`)
	assert.Contains(t, string(data), `"ask_icd"`)
}

func TestCallSearch(t *testing.T) {
	resp := rpc(t, newTestServer(), `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"search_icd","arguments":{"query":"lockjaw"}}}`)
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	assert.Contains(t, string(data), "1. [1209] Tetanus (similarity 0.81)")
}

func TestCallAsk(t *testing.T) {
	resp := rpc(t, newTestServer(), `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"ask_icd","arguments":{"question":"what is lockjaw?"}}}`)
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	assert.Contains(t, string(data), "Tetanus is caused by Clostridium tetani.")
	assert.Contains(t, string(data), "ICD-11 References")
}

func TestRPCErrors(t *testing.T) {
	srv := newTestServer()

	resp := rpc(t, srv, `{"jsonrpc":"2.0","id":4,"method":"resources/list"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)

	resp = rpc(t, srv, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"ask_icd","arguments":{"question":""}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)

	resp = rpc(t, srv, `{broken`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/patent-assistant/internal/llm"
	"github.com/joelkehle/patent-assistant/internal/patentqa"
	"github.com/joelkehle/patent-assistant/internal/render"
)

type scriptedCompleter struct {
	name     string
	keywords string
	answer   string
}

func (c *scriptedCompleter) ModelName() string { return c.name }

func (c *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Keywords:"):
		return c.keywords, nil
	case strings.Contains(prompt, "**Structured Summary:**"):
		return "summary of the patent", nil
	default:
		return c.answer, nil
	}
}

type stubSearcher struct {
	mu      sync.Mutex
	docs    map[string][]patentqa.RetrievedDocument
	err     error
	queries []patentqa.SearchQuery
}

func (s *stubSearcher) Search(ctx context.Context, q patentqa.SearchQuery) (*patentqa.DocumentSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	per := make([][]patentqa.RetrievedDocument, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		per = append(per, s.docs[k])
	}
	return patentqa.MergeKeywordResults(per), nil
}

func (s *stubSearcher) lastQuery() patentqa.SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[len(s.queries)-1]
}

type fakePDFRenderer struct {
	doc render.AnswerDocument
	err error
}

func (f *fakePDFRenderer) Render(ctx context.Context, doc render.AnswerDocument) ([]byte, error) {
	f.doc = doc
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

func textDoc(source, content string) patentqa.RetrievedDocument {
	return patentqa.NewRetrievedDocument(content, map[string]any{"source": "/data/" + source})
}

type harness struct {
	handler  http.Handler
	store    *SessionStore
	searcher *stubSearcher
	pdf      *fakePDFRenderer
}

func setupServer(t *testing.T) harness {
	t.Helper()
	specs := []llm.Spec{
		{Name: "pro", Provider: llm.ProviderOpenAI, Model: "pro-model"},
		{Name: "flash", Provider: llm.ProviderOpenAI, Model: "flash-model"},
	}
	registry, err := llm.NewRegistry(specs, func(ctx context.Context, spec llm.Spec) (patentqa.Completer, error) {
		return &scriptedCompleter{
			name:     spec.Model,
			keywords: "capacitor, leakage",
			answer:   "Stacked capacitors reduce leakage [a.txt].",
		}, nil
	})
	require.NoError(t, err)

	searcher := &stubSearcher{docs: map[string][]patentqa.RetrievedDocument{
		"capacitor":    {textDoc("a.txt", "capacitor text"), textDoc("b.txt", "more capacitor")},
		"leakage":      {textDoc("a.txt", "capacitor text"), textDoc("c.txt", "leakage text")},
		"US10123456B2": {textDoc("us10123456b2.txt", "full patent text")},
	}}
	store := NewSessionStore()
	pdf := &fakePDFRenderer{}
	handler, err := NewServer(Options{
		Models:   registry,
		Searcher: searcher,
		Indexes: []IndexOption{
			{Name: "Core patents", ID: "core_patents"},
			{Name: "3D DRAM patents", ID: "3d_dram"},
		},
		KPerKeyword: 4,
		Store:       store,
		PDFRenderer: pdf,
	})
	require.NoError(t, err)
	return harness{handler: handler, store: store, searcher: searcher, pdf: pdf}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createSession(t *testing.T, h http.Handler, body any) Session {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var sess Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	return sess
}

func TestCreateSessionDefaults(t *testing.T) {
	h := setupServer(t)
	sess := createSession(t, h.handler, nil)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "pro", sess.Model)
	assert.Equal(t, "core_patents", sess.IndexID)
	assert.Empty(t, sess.Turns)
}

func TestCreateSessionRejectsUnknownSelection(t *testing.T) {
	h := setupServer(t)
	rr := doJSON(t, h.handler, http.MethodPost, "/api/sessions", map[string]any{"model": "gpt-9"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h.handler, http.MethodPost, "/api/sessions", map[string]any{"index_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAskResearchQuestion(t *testing.T) {
	h := setupServer(t)
	sess := createSession(t, h.handler, map[string]any{"index_id": "3d_dram"})

	rr := doJSON(t, h.handler, http.MethodPost, "/api/sessions/"+sess.ID+"/ask", map[string]any{
		"question": "How do stacked capacitors reduce leakage?",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp askResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, patentqa.StatusAnswered, resp.Outcome.Status)
	assert.Equal(t, patentqa.ModeResearchSynthesis, resp.Outcome.Trace.Mode)
	assert.Equal(t, []string{"capacitor", "leakage"}, resp.Outcome.Trace.Keywords)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, resp.Outcome.Trace.Sources)
	assert.Contains(t, resp.AnswerHTML, `data-source="a.txt"`)
	assert.Equal(t, 2, resp.Turns)
	assert.NotEmpty(t, resp.Stages)

	q := h.searcher.lastQuery()
	assert.Equal(t, "3d_dram", q.IndexID)
	assert.Equal(t, 4, q.KPerKeyword)
}

func TestAskDirectLookup(t *testing.T) {
	h := setupServer(t)
	sess := createSession(t, h.handler, nil)

	rr := doJSON(t, h.handler, http.MethodPost, "/api/sessions/"+sess.ID+"/ask", map[string]any{
		"question": "Summarize US10123456B2",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp askResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, patentqa.ModeDirectLookup, resp.Outcome.Trace.Mode)
	assert.Equal(t, "summary of the patent", resp.Outcome.Text)
	assert.Equal(t, patentqa.DirectLookupK, h.searcher.lastQuery().KPerKeyword)
}

func TestAskRecordsFailureDetailAsReply(t *testing.T) {
	h := setupServer(t)
	h.searcher.err = errors.New("search error: connection refused")
	sess := createSession(t, h.handler, nil)

	rr := doJSON(t, h.handler, http.MethodPost, "/api/sessions/"+sess.ID+"/ask", map[string]any{
		"question": "What is a wordline?",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp askResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, patentqa.StatusFailed, resp.Outcome.Status)
	assert.Equal(t, patentqa.ReasonServiceUnavailable, resp.Outcome.Reason)
	assert.Empty(t, resp.AnswerHTML)

	stored, err := h.store.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Turns, 2)
	assert.Equal(t, "search error: connection refused", stored.Turns[1].Text)
}

func TestAskValidation(t *testing.T) {
	h := setupServer(t)
	sess := createSession(t, h.handler, nil)

	rr := doJSON(t, h.handler, http.MethodPost, "/api/sessions/"+sess.ID+"/ask", map[string]any{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h.handler, http.MethodPost, "/api/sessions/missing/ask", map[string]any{"question": "hi"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID+"/ask", nil)
	out := httptest.NewRecorder()
	h.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusMethodNotAllowed, out.Code)
}

func TestSwitchingModelClearsHistory(t *testing.T) {
	h := setupServer(t)
	sess := createSession(t, h.handler, nil)
	path := "/api/sessions/" + sess.ID + "/ask"

	rr := doJSON(t, h.handler, http.MethodPost, path, map[string]any{"question": "first question"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h.handler, http.MethodPost, path, map[string]any{"question": "second question", "model": "flash"})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp askResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "flash", resp.Model)
	assert.Equal(t, 2, resp.Turns)

	rr = doJSON(t, h.handler, http.MethodPost, path, map[string]any{"question": "third question", "model": "flash"})
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Turns)
}

func TestResetAndGetSession(t *testing.T) {
	h := setupServer(t)
	sess := createSession(t, h.handler, nil)
	doJSON(t, h.handler, http.MethodPost, "/api/sessions/"+sess.ID+"/ask", map[string]any{"question": "anything"})

	rr := doJSON(t, h.handler, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got.Turns, 2)

	rr = doJSON(t, h.handler, http.MethodPost, "/api/sessions/"+sess.ID+"/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Empty(t, got.Turns)
	assert.Equal(t, sess.Model, got.Model)

	rr = doJSON(t, h.handler, http.MethodGet, "/api/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestModelsAndIndexes(t *testing.T) {
	h := setupServer(t)

	rr := doJSON(t, h.handler, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var models struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &models))
	assert.Equal(t, []string{"pro", "flash"}, models.Models)
	assert.Equal(t, "pro", models.Default)

	rr = doJSON(t, h.handler, http.MethodGet, "/api/indexes", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var indexes struct {
		Indexes []IndexOption `json:"indexes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &indexes))
	assert.Equal(t, "3d_dram", indexes.Indexes[1].ID)
}

func TestAnswerPDF(t *testing.T) {
	h := setupServer(t)
	rr := doJSON(t, h.handler, http.MethodPost, "/api/answer-pdf", map[string]any{
		"question": "Q",
		"answer":   "See [a.txt] and [b.txt].",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "%PDF"))
	assert.Equal(t, []string{"a.txt", "b.txt"}, h.pdf.doc.Sources)

	rr = doJSON(t, h.handler, http.MethodPost, "/api/answer-pdf", map[string]any{"answer": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	h.pdf.err = errors.New("chrome missing")
	rr = doJSON(t, h.handler, http.MethodPost, "/api/answer-pdf", map[string]any{"answer": "text"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := setupServer(t)
	createSession(t, h.handler, nil)
	rr := doJSON(t, h.handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"sessions":1`)
}

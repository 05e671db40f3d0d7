package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/joelkehle/patent-assistant/internal/llm"
	"github.com/joelkehle/patent-assistant/internal/patentqa"
	"github.com/joelkehle/patent-assistant/internal/render"
)

const maxRequestBody = 5 << 20

// ModelRegistry resolves the user's model choice to a completer.
type ModelRegistry interface {
	Names() []string
	Default() string
	Has(name string) bool
	Get(ctx context.Context, name string) (patentqa.Completer, error)
}

type AnswerPDFRenderer interface {
	Render(ctx context.Context, doc render.AnswerDocument) ([]byte, error)
}

// IndexOption maps a display name in the index picker to an index id.
type IndexOption struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type Options struct {
	Models      ModelRegistry
	Searcher    patentqa.DocumentSearcher
	Indexes     []IndexOption
	KPerKeyword int
	Store       *SessionStore
	PDFRenderer AnswerPDFRenderer
	Logger      *zap.Logger
}

type Server struct {
	models      ModelRegistry
	searcher    patentqa.DocumentSearcher
	indexes     []IndexOption
	kPerKeyword int
	store       *SessionStore
	pdfRenderer AnswerPDFRenderer
	validate    *validator.Validate
	logger      *zap.Logger
}

type createSessionRequest struct {
	Model   string `json:"model"`
	IndexID string `json:"index_id"`
}

type askRequest struct {
	Question string `json:"question" validate:"required,max=8000"`
	Model    string `json:"model"`
	IndexID  string `json:"index_id"`
}

type stageEvent struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type askResponse struct {
	SessionID  string           `json:"session_id"`
	Model      string           `json:"model"`
	IndexID    string           `json:"index_id"`
	Outcome    patentqa.Outcome `json:"outcome"`
	AnswerHTML string           `json:"answer_html,omitempty"`
	Stages     []stageEvent     `json:"stages"`
	Turns      int              `json:"turns"`
	ElapsedMS  int64            `json:"elapsed_ms"`
}

type pdfRequest struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer" validate:"required"`
	Model    string   `json:"model"`
	IndexID  string   `json:"index_id"`
	Sources  []string `json:"sources"`
}

func NewServer(opts Options) (http.Handler, error) {
	if opts.Models == nil {
		return nil, errors.New("model registry is required")
	}
	if opts.Searcher == nil {
		return nil, errors.New("document searcher is required")
	}
	if len(opts.Indexes) == 0 {
		return nil, errors.New("at least one index option is required")
	}
	if opts.Store == nil {
		opts.Store = NewSessionStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		models:      opts.Models,
		searcher:    opts.Searcher,
		indexes:     opts.Indexes,
		kPerKeyword: opts.KPerKeyword,
		store:       opts.Store,
		pdfRenderer: opts.PDFRenderer,
		validate:    validator.New(),
		logger:      opts.Logger.With(zap.String("component", "assistant")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleCreateSession)
	mux.HandleFunc("/api/sessions/", s.handleSession)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/indexes", s.handleIndexes)
	mux.HandleFunc("/api/answer-pdf", s.handleAnswerPDF)
	mux.HandleFunc("/health", s.handleHealth)
	return mux, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	blob, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(blob))) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func (s *Server) knownIndex(id string) bool {
	for _, opt := range s.indexes {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// checkSelection validates optional model and index choices.
func (s *Server) checkSelection(model, indexID string) string {
	if model != "" && !s.models.Has(model) {
		return fmt.Sprintf("unknown model %q", model)
	}
	if indexID != "" && !s.knownIndex(indexID) {
		return fmt.Sprintf("unknown index %q", indexID)
	}
	return ""
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Model = strings.TrimSpace(req.Model)
	req.IndexID = strings.TrimSpace(req.IndexID)
	if msg := s.checkSelection(req.Model, req.IndexID); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Model == "" {
		req.Model = s.models.Default()
	}
	if req.IndexID == "" {
		req.IndexID = s.indexes[0].ID
	}
	sess := s.store.Create(req.Model, req.IndexID)
	s.logger.Info("session_created",
		zap.String("session_id", sess.ID),
		zap.String("model", sess.Model),
		zap.String("index", sess.IndexID),
	)
	writeJSON(w, http.StatusCreated, sess)
}

// handleSession routes /api/sessions/{id}[/ask|/reset].
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "path must be /api/sessions/{id}")
		return
	}
	switch action {
	case "":
		if !methodOnly(w, r, http.MethodGet) {
			return
		}
		sess, err := s.store.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case "ask":
		if !methodOnly(w, r, http.MethodPost) {
			return
		}
		s.handleAsk(w, r, id)
	case "reset":
		if !methodOnly(w, r, http.MethodPost) {
			return
		}
		sess, err := s.store.Reset(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Info("session_reset", zap.String("session_id", id))
		writeJSON(w, http.StatusOK, sess)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, id string) {
	started := time.Now()
	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	req.Model = strings.TrimSpace(req.Model)
	req.IndexID = strings.TrimSpace(req.IndexID)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if msg := s.checkSelection(req.Model, req.IndexID); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	sess, err := s.store.Configure(id, req.Model, req.IndexID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	completer, err := s.models.Get(r.Context(), sess.Model)
	if err != nil {
		s.logger.Error("model_unavailable", zap.String("model", sess.Model), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	router := patentqa.NewRouter(completer, s.searcher, patentqa.RouterConfig{
		IndexID:     sess.IndexID,
		KPerKeyword: s.kPerKeyword,
		Logger:      s.logger.With(zap.String("session_id", sess.ID)),
	})

	stages := []stageEvent{}
	outcome := router.AnswerWithProgress(r.Context(), req.Question, func(stage, message string) {
		stages = append(stages, stageEvent{Stage: stage, Message: message})
	})

	reply := outcome.Text
	if outcome.Status != patentqa.StatusAnswered {
		reply = outcome.Detail
	}
	sess, err = s.store.Append(sess.ID,
		patentqa.ConversationTurn{Role: patentqa.RoleUser, Text: req.Question},
		patentqa.ConversationTurn{Role: patentqa.RoleAssistant, Text: reply},
	)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	resp := askResponse{
		SessionID: sess.ID,
		Model:     sess.Model,
		IndexID:   sess.IndexID,
		Outcome:   outcome,
		Stages:    stages,
		Turns:     len(sess.Turns),
		ElapsedMS: time.Since(started).Milliseconds(),
	}
	if outcome.Status == patentqa.StatusAnswered {
		html, err := render.MarkdownToHTML(outcome.Text)
		if err != nil {
			s.logger.Warn("answer_render_failed", zap.String("session_id", sess.ID), zap.Error(err))
		} else {
			resp.AnswerHTML = html
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  s.models.Names(),
		"default": s.models.Default(),
	})
}

func (s *Server) handleIndexes(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexes": s.indexes})
}

func (s *Server) handleAnswerPDF(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	if s.pdfRenderer == nil {
		writeError(w, http.StatusServiceUnavailable, "pdf renderer unavailable")
		return
	}
	var req pdfRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Answer = strings.TrimSpace(req.Answer)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = render.CitedSources(req.Answer)
	}
	pdf, err := s.pdfRenderer.Render(r.Context(), render.AnswerDocument{
		Question:  strings.TrimSpace(req.Question),
		Answer:    req.Answer,
		Model:     req.Model,
		IndexID:   req.IndexID,
		Sources:   sources,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error("render_answer_pdf_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render pdf")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="answer.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.store.Len()})
}

var _ ModelRegistry = (*llm.Registry)(nil)

package docindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joelkehle/patent-assistant/internal/patentqa"
)

const maxRequestBody = 1 << 20

type SearchRequest struct {
	DBID        string   `json:"db_id" validate:"required"`
	Keywords    []string `json:"keywords" validate:"required,min=1,dive,required"`
	KPerKeyword int      `json:"k_per_keyword" validate:"omitempty,min=1,max=100"`
}

type WireDocument struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

type SearchResponse struct {
	Documents []WireDocument `json:"documents"`
}

type Server struct {
	registry *Registry
	searcher *Searcher
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer exposes the keyword search service over HTTP.
func NewServer(registry *Registry, searcher *Searcher, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		searcher: searcher,
		validate: validator.New(),
		logger:   logger.With(zap.String("component", "index-server")),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/search_by_keywords", s.handleSearch)
	mux.HandleFunc("/indexes", s.handleIndexes)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError reports failures as {"detail": ...}, the shape search clients parse.
func writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = newError(CodeInternal, err.Error())
	}
	writeJSON(w, e.Status, map[string]any{"detail": e.Message})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	blob, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	return blob, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	requestID := uuid.NewString()
	started := time.Now()

	blob, err := readBody(r)
	if err != nil {
		writeError(w, newError(CodeValidation, "read body: "+err.Error()))
		return
	}
	var req SearchRequest
	if err := json.Unmarshal(blob, &req); err != nil {
		writeError(w, newError(CodeValidation, "invalid json: "+err.Error()))
		return
	}
	req.DBID = strings.TrimSpace(req.DBID)
	for i, k := range req.Keywords {
		req.Keywords[i] = strings.TrimSpace(k)
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, newError(CodeValidation, err.Error()))
		return
	}
	if req.KPerKeyword == 0 {
		req.KPerKeyword = patentqa.DefaultKPerKeyword
	}

	s.logger.Info("search_request",
		zap.String("request_id", requestID),
		zap.String("index", req.DBID),
		zap.Strings("keywords", req.Keywords),
	)
	set, err := s.searcher.Search(r.Context(), patentqa.SearchQuery{IndexID: req.DBID, Keywords: req.Keywords, KPerKeyword: req.KPerKeyword})
	if errors.Is(err, ErrIndexNotFound) {
		writeError(w, newError(CodeNotFound, fmt.Sprintf("Database '%s' not found.", req.DBID)))
		return
	}
	if err != nil {
		s.logger.Error("search_failed", zap.String("request_id", requestID), zap.Error(err))
		writeError(w, newError(CodeInternal, "keyword search failed: "+err.Error()))
		return
	}

	resp := SearchResponse{Documents: make([]WireDocument, 0, set.Len())}
	for _, d := range set.Documents() {
		meta := d.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		resp.Documents = append(resp.Documents, WireDocument{PageContent: d.Content, Metadata: meta})
	}
	s.logger.Info("search_response",
		zap.String("request_id", requestID),
		zap.Int("documents", len(resp.Documents)),
		zap.Int64("elapsed_ms", time.Since(started).Milliseconds()),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndexes(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexes": s.registry.Indexes()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "indexes": len(s.registry.Indexes())})
}

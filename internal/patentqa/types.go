package patentqa

import (
	"context"
	"strings"
)

const (
	DefaultKPerKeyword = 5
	DirectLookupK      = 1
	DefaultIndexID     = "core_patents"
	MissingSourceLabel = "N/A"
)

type Mode string

const (
	ModeDirectLookup      Mode = "direct_lookup"
	ModeResearchSynthesis Mode = "research_synthesis"
)

type Status string

const (
	StatusAnswered Status = "answered"
	StatusNotFound Status = "not_found"
	StatusFailed   Status = "failed"
)

// Reason tells a soft failure apart from a service failure when Status is not answered.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonExtractionEmpty    Reason = "extraction_empty"
	ReasonRetrievalEmpty     Reason = "retrieval_empty"
	ReasonServiceUnavailable Reason = "service_unavailable"
)

type State string

const (
	StateStart             State = "start"
	StateClassified        State = "classified"
	StateDirectLookup      State = "direct_lookup"
	StateResearchSynthesis State = "research_synthesis"
	StateAnswered          State = "answered"
	StateFailed            State = "failed"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type SearchQuery struct {
	IndexID     string   `json:"db_id"`
	Keywords    []string `json:"keywords"`
	KPerKeyword int      `json:"k_per_keyword"`
}

// RetrievedDocument is one search hit. Source is the basename of the stored
// path and is the only identity used for deduplication.
type RetrievedDocument struct {
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Completer is the prompt-in/string-out text generation boundary.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// DocumentSearcher runs one keyword batch against a named index.
type DocumentSearcher interface {
	Search(ctx context.Context, q SearchQuery) (*DocumentSet, error)
}

type Outcome struct {
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
	Detail string `json:"detail,omitempty"`
	Reason Reason `json:"reason,omitempty"`
	Trace  Trace  `json:"trace"`
}

type Trace struct {
	Mode         Mode     `json:"mode,omitempty"`
	PatentNumber string   `json:"patent_number,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	States       []State  `json:"states"`
	FailedStage  string   `json:"failed_stage,omitempty"`
}

// SourceFromPath reduces a stored path to its basename. Both separators are
// honored because indexes built on Windows store backslash paths.
func SourceFromPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return MissingSourceLabel
	}
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return MissingSourceLabel
	}
	return path
}

// NewRetrievedDocument builds a document from a page body and its raw metadata.
func NewRetrievedDocument(content string, metadata map[string]any) RetrievedDocument {
	src, _ := metadata["source"].(string)
	return RetrievedDocument{
		Content:  content,
		Source:   SourceFromPath(src),
		Metadata: metadata,
	}
}

package patentqa

import (
	"context"
	"strings"
	"sync"
)

// fakeCompleter answers by prompt kind. Unset responses fall back to fixed text.
type fakeCompleter struct {
	mu        sync.Mutex
	keywords  string
	answer    string
	summary   string
	errOn     string
	err       error
	blankOn   string
	prompts   []string
	kindCalls map[string]int
}

func (f *fakeCompleter) ModelName() string { return "fake-model" }

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.kindCalls == nil {
		f.kindCalls = map[string]int{}
	}
	kind := promptKind(prompt)
	f.kindCalls[kind]++
	if f.err != nil && (f.errOn == "" || f.errOn == kind) {
		return "", f.err
	}
	if f.blankOn == kind {
		return "  \n", nil
	}
	switch kind {
	case "keywords":
		return f.keywords, nil
	case "summary":
		if f.summary == "" {
			return "structured summary", nil
		}
		return f.summary, nil
	default:
		if f.answer == "" {
			return "synthesized answer", nil
		}
		return f.answer, nil
	}
}

func (f *fakeCompleter) calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kindCalls[kind]
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "Keywords:"):
		return "keywords"
	case strings.Contains(prompt, "**Structured Summary:**"):
		return "summary"
	default:
		return "synthesis"
	}
}

// fakeSearcher serves canned documents per keyword and merges like a real
// client does.
type fakeSearcher struct {
	mu      sync.Mutex
	byTerm  map[string][]RetrievedDocument
	err     error
	queries []SearchQuery
}

func (f *fakeSearcher) Search(ctx context.Context, q SearchQuery) (*DocumentSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	per := make([][]RetrievedDocument, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		docs := f.byTerm[k]
		if len(docs) > q.KPerKeyword {
			docs = docs[:q.KPerKeyword]
		}
		per = append(per, docs)
	}
	return MergeKeywordResults(per), nil
}

func doc(source, content string) RetrievedDocument {
	return NewRetrievedDocument(content, map[string]any{"source": "/data/patents/" + source})
}

package patentqa

import (
	"context"
	"strings"
)

const keywordExtractionPrompt = `You are an expert in semiconductor and patent search. Your task is to extract the most relevant and effective search keywords from the user's question.
The keywords should be concise technical terms. Output them as a comma-separated list.

User's Question: %QUESTION%

Keywords:`

type KeywordExtractor struct {
	llm Completer
}

func NewKeywordExtractor(llm Completer) *KeywordExtractor {
	return &KeywordExtractor{llm: llm}
}

// Extract asks the model once for search terms. An empty result is returned
// as an empty slice; deciding what to do with it is the caller's job.
func (e *KeywordExtractor) Extract(ctx context.Context, question string) ([]string, error) {
	raw, err := e.llm.Complete(ctx, BuildKeywordPrompt(question))
	if err != nil {
		return nil, err
	}
	return ParseKeywords(raw), nil
}

func BuildKeywordPrompt(question string) string {
	return strings.Replace(keywordExtractionPrompt, "%QUESTION%", question, 1)
}

// ParseKeywords splits a comma-separated model response into trimmed,
// non-empty terms in their original order. Exact repeats are dropped.
func ParseKeywords(raw string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		k := strings.TrimSpace(part)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

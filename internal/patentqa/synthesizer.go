package patentqa

import (
	"context"
	"strings"
)

const synthesisPrompt = `You are a helpful AI assistant specializing in patent analysis.
Based ONLY on the following retrieved patent documents, provide a comprehensive answer to the user's original question.
If the documents don't provide enough information, clearly state that the answer cannot be found in the provided documents.
Provide a clear and concise answer, and always cite the source patent documents you used by their filenames (e.g., ` + "`[us20230012345a1p.txt]`" + `).

**Retrieved Documents:**
%CONTEXT%

**User's Original Question:**
%QUESTION%

**Your Comprehensive Answer:**`

const summaryPrompt = `You are a patent analyst. Summarize the single patent document below as a structured technical summary.
Use exactly these sections:
1. Core technology
2. Purpose (the problem it solves)
3. Key structural or process features

Base the summary only on the document text.

**Patent Document:**
%DOCUMENT%

**Structured Summary:**`

// AnswerSynthesizer owns the two answer prompts. Citations in the model output
// are passed through unchecked.
type AnswerSynthesizer struct {
	llm Completer
}

func NewAnswerSynthesizer(llm Completer) *AnswerSynthesizer {
	return &AnswerSynthesizer{llm: llm}
}

func (s *AnswerSynthesizer) Synthesize(ctx context.Context, contextText, question string) (string, error) {
	return s.llm.Complete(ctx, BuildSynthesisPrompt(contextText, question))
}

func (s *AnswerSynthesizer) Summarize(ctx context.Context, documentContent string) (string, error) {
	return s.llm.Complete(ctx, BuildSummaryPrompt(documentContent))
}

func BuildSynthesisPrompt(contextText, question string) string {
	r := strings.NewReplacer("%CONTEXT%", contextText, "%QUESTION%", question)
	return r.Replace(synthesisPrompt)
}

func BuildSummaryPrompt(documentContent string) string {
	return strings.Replace(summaryPrompt, "%DOCUMENT%", documentContent, 1)
}

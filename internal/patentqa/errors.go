package patentqa

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyKeywords   = errors.New("keyword set is empty")
	ErrEmptyCompletion = errors.New("empty completion")
)

const (
	StageClassify        = "classify"
	StageExtractKeywords = "extract_keywords"
	StageSearch          = "search"
	StageSummarize       = "summarize"
	StageSynthesize      = "synthesize"
)

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

package patentqa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type StageProgressFn func(stage, message string)

type RouterConfig struct {
	IndexID     string
	KPerKeyword int
	Logger      *zap.Logger
}

// Router classifies a question and drives it through the lookup or synthesis
// path. It holds no per-question state, so one Router may serve concurrent
// questions.
type Router struct {
	extractor   *KeywordExtractor
	synthesizer *AnswerSynthesizer
	searcher    DocumentSearcher
	model       string
	indexID     string
	kPerKeyword int
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewRouter(llm Completer, searcher DocumentSearcher, cfg RouterConfig) *Router {
	if strings.TrimSpace(cfg.IndexID) == "" {
		cfg.IndexID = DefaultIndexID
	}
	if cfg.KPerKeyword <= 0 {
		cfg.KPerKeyword = DefaultKPerKeyword
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Router{
		extractor:   NewKeywordExtractor(llm),
		synthesizer: NewAnswerSynthesizer(llm),
		searcher:    searcher,
		model:       llm.ModelName(),
		indexID:     cfg.IndexID,
		kPerKeyword: cfg.KPerKeyword,
		logger:      cfg.Logger.With(zap.String("component", "router")),
		tracer:      otel.Tracer("github.com/joelkehle/patent-assistant/internal/patentqa"),
	}
}

func (r *Router) Answer(ctx context.Context, question string) Outcome {
	return r.AnswerWithProgress(ctx, question, nil)
}

func (r *Router) AnswerWithProgress(ctx context.Context, question string, progress StageProgressFn) Outcome {
	ctx, span := r.tracer.Start(ctx, "patentqa.answer")
	defer span.End()

	run := &routerRun{started: time.Now()}
	run.enter(StateStart)

	emit(progress, StageClassify, "Classifying question...")
	mode, number := ClassifyQuestion(question)
	run.trace.Mode = mode
	run.trace.PatentNumber = number
	run.enter(StateClassified)
	span.SetAttributes(attribute.String("patentqa.mode", string(mode)))

	var out Outcome
	if mode == ModeDirectLookup {
		out = r.directLookup(ctx, run, number, progress)
	} else {
		out = r.researchSynthesis(ctx, run, question, progress)
	}

	if out.Status == StatusFailed && out.Reason == ReasonServiceUnavailable {
		span.SetStatus(codes.Error, out.Detail)
	}
	span.SetAttributes(
		attribute.String("patentqa.status", string(out.Status)),
		attribute.Int("patentqa.documents", len(out.Trace.Sources)),
	)
	r.logger.Info("question_done",
		zap.String("mode", string(mode)),
		zap.String("status", string(out.Status)),
		zap.String("reason", string(out.Reason)),
		zap.Strings("keywords", out.Trace.Keywords),
		zap.Int("documents", len(out.Trace.Sources)),
		zap.String("model", r.model),
		zap.Int64("elapsed_ms", time.Since(run.started).Milliseconds()),
	)
	return out
}

func (r *Router) directLookup(ctx context.Context, run *routerRun, number string, progress StageProgressFn) Outcome {
	run.enter(StateDirectLookup)
	run.trace.Keywords = []string{number}

	emit(progress, StageSearch, fmt.Sprintf("Looking up patent %s...", number))
	set, err := r.search(ctx, []string{number}, DirectLookupK)
	if err != nil {
		return run.serviceFailure(&StageError{Stage: StageSearch, Err: err})
	}
	run.trace.Sources = set.Sources()
	doc, ok := set.First()
	if !ok {
		return run.fail(StatusNotFound, ReasonRetrievalEmpty, fmt.Sprintf("document not found for patent number %s", number))
	}

	emit(progress, StageSummarize, fmt.Sprintf("Summarizing %s...", doc.Source))
	summary, err := r.synthesizer.Summarize(ctx, doc.Content)
	if err == nil && strings.TrimSpace(summary) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		return run.serviceFailure(&StageError{Stage: StageSummarize, Err: err})
	}
	return run.answered(summary)
}

func (r *Router) researchSynthesis(ctx context.Context, run *routerRun, question string, progress StageProgressFn) Outcome {
	run.enter(StateResearchSynthesis)

	emit(progress, StageExtractKeywords, "Extracting search keywords...")
	keywords, err := r.extractor.Extract(ctx, question)
	if err != nil {
		return run.serviceFailure(&StageError{Stage: StageExtractKeywords, Err: err})
	}
	if len(keywords) == 0 {
		return run.fail(StatusFailed, ReasonExtractionEmpty, "no keywords extracted from the question")
	}
	run.trace.Keywords = keywords

	emit(progress, StageSearch, fmt.Sprintf("Searching with %d keywords: %s", len(keywords), strings.Join(keywords, ", ")))
	set, err := r.search(ctx, keywords, r.kPerKeyword)
	if err != nil {
		return run.serviceFailure(&StageError{Stage: StageSearch, Err: err})
	}
	run.trace.Sources = set.Sources()
	if set.Empty() {
		return run.fail(StatusNotFound, ReasonRetrievalEmpty, "no relevant documents found for keywords: "+strings.Join(keywords, ", "))
	}

	emit(progress, StageSynthesize, fmt.Sprintf("Synthesizing an answer from %d documents...", set.Len()))
	answer, err := r.synthesizer.Synthesize(ctx, AssembleContext(set), question)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		return run.serviceFailure(&StageError{Stage: StageSynthesize, Err: err})
	}
	return run.answered(answer)
}

func (r *Router) search(ctx context.Context, keywords []string, k int) (*DocumentSet, error) {
	ctx, span := r.tracer.Start(ctx, "patentqa.search", trace.WithAttributes(
		attribute.String("patentqa.index", r.indexID),
		attribute.StringSlice("patentqa.keywords", keywords),
		attribute.Int("patentqa.k_per_keyword", k),
	))
	defer span.End()

	set, err := r.searcher.Search(ctx, SearchQuery{IndexID: r.indexID, Keywords: keywords, KPerKeyword: k})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if set == nil {
		set = NewDocumentSet()
	}
	span.SetAttributes(attribute.Int("patentqa.documents", set.Len()))
	return set, nil
}

type routerRun struct {
	started time.Time
	trace   Trace
}

func (run *routerRun) enter(s State) {
	run.trace.States = append(run.trace.States, s)
}

func (run *routerRun) answered(text string) Outcome {
	run.enter(StateAnswered)
	return Outcome{Status: StatusAnswered, Text: text, Trace: run.trace}
}

func (run *routerRun) fail(status Status, reason Reason, detail string) Outcome {
	run.enter(StateFailed)
	return Outcome{Status: status, Reason: reason, Detail: detail, Trace: run.trace}
}

// serviceFailure surfaces the downstream error message unchanged.
func (run *routerRun) serviceFailure(se *StageError) Outcome {
	run.trace.FailedStage = se.Stage
	return run.fail(StatusFailed, ReasonServiceUnavailable, se.Err.Error())
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

// Package query is the channel-agnostic orchestrator: request
// validation, policy gates, retrieval, constrained generation, output
// validation, citation hydration, and auditing. Policy lives here and
// nowhere else.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nagarikconnect/civicrag/audit"
	"github.com/nagarikconnect/civicrag/llm"
	"github.com/nagarikconnect/civicrag/retrieve"
)

// systemPrompt is the contract the generator is held to; answers that
// break it are rejected by validateOutput regardless.
const systemPrompt = `Answer using ONLY the numbered PASSAGES provided. ` +
	`Every factual sentence must end with a citation marker [n] referring to one passage. ` +
	`Never include URLs, file names, or metadata in the answer. ` +
	`If the passages do not contain enough information, respond with exactly NOT_ENOUGH_INFORMATION. ` +
	`Answer in the language of the question.`

// Retriever is the slice of the retrieval engine the orchestrator
// needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters map[string]string, opts retrieve.Options) (*retrieve.Result, error)
}

// Auditor records one request outcome, best-effort.
type Auditor interface {
	Write(ctx context.Context, rec audit.Record) error
}

// Config holds the policy thresholds and soft stage budgets.
type Config struct {
	MinSimilarity     float64       // answers require at least this top score
	ASRConfThreshold  float64       // voice requests below this are refused
	EmbedSearchBudget time.Duration // soft budget for retrieve, default 2.5s
	GenBudget         time.Duration // soft budget for generate, default 4s
}

// Orchestrator runs the query pipeline.
type Orchestrator struct {
	retriever Retriever
	generator llm.Generator
	audits    Auditor
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// New returns an Orchestrator. audits may be nil when auditing is not
// configured.
func New(retriever Retriever, generator llm.Generator, audits Auditor, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.EmbedSearchBudget == 0 {
		cfg.EmbedSearchBudget = 2500 * time.Millisecond
	}
	if cfg.GenBudget == 0 {
		cfg.GenBudget = 4 * time.Second
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = 0.35
	}
	if cfg.ASRConfThreshold == 0 {
		cfg.ASRConfThreshold = 0.35
	}
	return &Orchestrator{
		retriever: retriever,
		generator: generator,
		audits:    audits,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Handle runs one request through the pipeline and always produces a
// response carrying the request id and exactly one resolution.
func (o *Orchestrator) Handle(ctx context.Context, req Request) Response {
	started := o.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	rec := audit.Record{
		RequestID:    req.RequestID,
		SessionID:    req.SessionID,
		Language:     req.Language,
		Channel:      req.Channel,
		Query:        req.Query,
		UsedChunkIDs: []string{},
	}
	finish := func(resp Response) Response {
		rec.Resolution = resp.Resolution.String()
		rec.GuidanceKey = resp.GuidanceKey
		rec.TimingMS = o.now().Sub(started).Milliseconds()
		if o.audits != nil {
			if err := o.audits.Write(ctx, rec); err != nil {
				o.log.Warn().Err(err).Str("request_id", req.RequestID).Msg("audit write failed")
			}
		}
		return resp
	}
	refuse := func(guidance string) Response {
		return finish(Response{
			RequestID:   req.RequestID,
			Resolution:  ResolutionRefusal,
			GuidanceKey: guidance,
		})
	}

	// 1. Shape.
	if !req.validateShape() {
		return refuse(GuidanceInvalidRequest)
	}

	// 2. ASR gate.
	if req.Channel == "voice" && *req.ASRConfidence < o.cfg.ASRConfThreshold {
		return refuse(GuidanceASRLowConfidence)
	}

	// 3. Intent blocklist.
	if guidance := blockedIntent(req.Query); guidance != "" {
		return refuse(guidance)
	}

	// 4. Retrieve.
	retrieveStart := o.now()
	result, err := o.retriever.Retrieve(ctx, req.Query, req.Filters, retrieve.Options{
		RawK:   req.RawK,
		FinalK: req.TopK,
	})
	if elapsed := o.now().Sub(retrieveStart); elapsed > o.cfg.EmbedSearchBudget {
		o.log.Warn().Dur("elapsed", elapsed).Str("request_id", req.RequestID).Msg("retrieval exceeded budget")
	}
	if err != nil {
		o.log.Error().Err(err).Str("request_id", req.RequestID).Msg("retrieval failed")
		return finish(Response{RequestID: req.RequestID, Resolution: ResolutionInvalidOutput})
	}
	rec.TopSimilarity = result.TopSimilarity
	for _, p := range result.Passages {
		rec.UsedChunkIDs = append(rec.UsedChunkIDs, p.ChunkID)
	}
	if len(result.Passages) == 0 || result.TopSimilarity < o.cfg.MinSimilarity {
		return finish(Response{RequestID: req.RequestID, Resolution: ResolutionNotEnoughInfo})
	}

	// 5. Generate.
	genStart := o.now()
	genResult, err := o.generator.Generate(ctx, llm.GenerateRequest{
		RequestID: req.RequestID,
		Language:  req.Language,
		Question:  req.Query,
		Passages:  toGeneratorPassages(result.Passages),
		System:    systemPrompt,
	})
	if elapsed := o.now().Sub(genStart); elapsed > o.cfg.GenBudget {
		o.log.Warn().Dur("elapsed", elapsed).Str("request_id", req.RequestID).Msg("generation exceeded budget")
	}
	if err != nil {
		o.log.Error().Err(err).Str("request_id", req.RequestID).Msg("generation failed")
		return finish(Response{RequestID: req.RequestID, Resolution: ResolutionInvalidOutput})
	}
	rec.GeneratorDecision = genResult.Decision

	// 6. Validate output.
	lines, notEnoughInfo, ok := validateOutput(genResult, len(result.Passages))
	if notEnoughInfo {
		return finish(Response{RequestID: req.RequestID, Resolution: ResolutionNotEnoughInfo})
	}
	if !ok {
		o.log.Warn().Str("request_id", req.RequestID).Msg("generator output failed validation")
		return finish(Response{RequestID: req.RequestID, Resolution: ResolutionInvalidOutput})
	}

	// 7. Hydrate citations.
	citations := make([]Citation, 0, len(result.Passages))
	for _, p := range result.Passages {
		citations = append(citations, Citation{
			Citation:  p.Number,
			ChunkID:   p.ChunkID,
			SourceURL: p.SourceURL,
			Meta:      p.Meta,
		})
	}

	return finish(Response{
		RequestID:   req.RequestID,
		Resolution:  ResolutionAnswer,
		AnswerLines: lines,
		Citations:   citations,
		Confidence:  result.TopSimilarity,
	})
}

func toGeneratorPassages(passages []retrieve.Passage) []llm.Passage {
	out := make([]llm.Passage, 0, len(passages))
	for _, p := range passages {
		out = append(out, llm.Passage{Number: p.Number, Text: p.Text})
	}
	return out
}

// String renders a compact description for logs.
func (r Request) String() string {
	return fmt.Sprintf("request{id=%s lang=%s channel=%s}", r.RequestID, r.Language, r.Channel)
}

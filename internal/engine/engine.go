// Package engine is the entry point to normalization, linking, metrics,
// intent classification and summary assembly.
package engine

import (
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bi-agent/internal/intent"
	"github.com/sells-group/bi-agent/internal/link"
	"github.com/sells-group/bi-agent/internal/metrics"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/policy"
	"github.com/sells-group/bi-agent/internal/sanitize"
	"github.com/sells-group/bi-agent/internal/summary"
)

// Engine is stateless between calls and safe for concurrent use. Every
// method is a synchronous computation over the data it is handed.
type Engine struct {
	policy     *policy.Policy
	sanitizer  *sanitize.Sanitizer
	linker     *link.Linker
	metrics    *metrics.Engine
	classifier *intent.Classifier
	assembler  *summary.Assembler
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to stamp a dataset's AsOf date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine over an immutable policy.
func New(p *policy.Policy, opts ...Option) *Engine {
	m := metrics.New(p)
	e := &Engine{
		policy:     p,
		sanitizer:  sanitize.New(p),
		linker:     link.New(p),
		metrics:    m,
		classifier: intent.New(),
		assembler:  summary.New(p, m),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's policy.
func (e *Engine) Policy() *policy.Policy {
	return e.policy
}

// SanitizeAndLink cleans both collections and links execution records to
// pipeline records. It runs once per data refresh. The only error it returns
// is a *model.DataShapeError.
func (e *Engine) SanitizeAndLink(rawPipeline, rawExecution model.RawCollection) (model.Dataset, error) {
	rawPipeline.Collection = model.CollectionPipeline
	rawExecution.Collection = model.CollectionExecution

	var (
		pipe, exec       model.CleanCollection
		pipeRep, execRep model.CaveatReport
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		pipe, pipeRep, err = e.sanitizer.Sanitize(rawPipeline)
		return err
	})
	g.Go(func() error {
		var err error
		exec, execRep, err = e.sanitizer.Sanitize(rawExecution)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Dataset{}, err
	}

	data := model.Dataset{
		Pipeline:  pipe,
		Execution: exec,
		Links:     e.linker.Link(exec, pipe),
		Caveats:   pipeRep.Merge(execRep),
		AsOf:      civilDate(e.now()),
	}

	zap.L().Debug("engine: sanitized and linked",
		zap.Int("pipeline_retained", len(pipe.Records)),
		zap.Int("pipeline_excluded", len(pipe.Excluded)),
		zap.Int("execution_retained", len(exec.Records)),
		zap.Int("execution_excluded", len(exec.Excluded)),
		zap.Int("edges", len(data.Links.Edges)),
	)
	return data, nil
}

// Answer is the engine's response to one question.
type Answer struct {
	Domain              intent.Domain            `json:"domain"`
	Filters             intent.Filters           `json:"filters"`
	Window              model.Window             `json:"window"`
	Metrics             []model.MetricResult     `json:"metrics"`
	Unavailable         []*model.DataShapeError  `json:"unavailable,omitempty"`
	ClarificationNeeded bool                     `json:"clarification_needed"`
	ClarificationPrompt string                   `json:"clarification_prompt,omitempty"`
	Summary             *model.StructuredSummary `json:"summary,omitempty"`
	Caveats             []model.FieldCaveat      `json:"caveats,omitempty"`
}

type queryOptions struct {
	history []model.Turn
}

// QueryOption configures AnswerQuery.
type QueryOption func(*queryOptions)

// WithHistory supplies the conversation so far. A reply to a clarification
// is classified together with the question that prompted it.
func WithHistory(history []model.Turn) QueryOption {
	return func(o *queryOptions) { o.history = history }
}

// Classify exposes intent classification without computing metrics.
func (e *Engine) Classify(question string, opts ...QueryOption) intent.Intent {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.history) > 0 {
		return e.classifier.ClassifyFollowUp(question, o.history)
	}
	return e.classifier.Classify(question)
}

// AnswerQuery classifies question and computes the metrics of its domain
// over data. Ambiguous questions return a clarification prompt and no
// metrics. The domain's primary metric must be computable; a
// *model.DataShapeError from a secondary metric is reported in Unavailable
// instead of failing the call.
func (e *Engine) AnswerQuery(question string, data model.Dataset, opts ...QueryOption) (Answer, error) {
	in := e.Classify(question, opts...)
	ans := Answer{
		Domain:              in.Domain,
		Filters:             in.Filters,
		ClarificationNeeded: in.ClarificationNeeded,
		ClarificationPrompt: in.ClarificationPrompt,
	}

	window, ok := metrics.ResolveWindow(in.Filters.Window, data.AsOf, e.policy.FiscalYearStartMonth)
	if !ok {
		window = model.Window{}
	}
	ans.Window = window

	switch in.Domain {
	case intent.DomainAmbiguous:
		return ans, nil
	case intent.DomainLeadership:
		s, err := e.assembler.Assemble(data)
		if err != nil {
			return Answer{}, err
		}
		ans.Summary = &s
		ans.Caveats = s.Caveats
		return ans, nil
	}

	for i, name := range in.Metrics() {
		res, err := e.metrics.Compute(name, data, window, in.Filters.GroupBy)
		if err != nil {
			dse, ok := model.AsDataShapeError(err)
			if i == 0 || !ok {
				return Answer{}, err
			}
			ans.Unavailable = append(ans.Unavailable, dse)
			continue
		}
		ans.Metrics = append(ans.Metrics, res)
	}
	ans.Caveats = mergeCaveats(ans.Metrics)

	zap.L().Debug("engine: answered query",
		zap.String("domain", string(in.Domain)),
		zap.String("window", in.Filters.Window),
		zap.Int("metrics", len(ans.Metrics)),
	)
	return ans, nil
}

// LeadershipUpdate assembles the fixed leadership summary.
func (e *Engine) LeadershipUpdate(data model.Dataset) (model.StructuredSummary, error) {
	return e.assembler.Assemble(data)
}

// mergeCaveats returns the distinct field caveats across results, worst first.
func mergeCaveats(results []model.MetricResult) []model.FieldCaveat {
	type key struct {
		c model.Collection
		f string
	}
	seen := map[key]bool{}
	var out []model.FieldCaveat
	for _, r := range results {
		for _, c := range r.Caveats {
			k := key{c.Collection, c.Field}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rate != out[j].Rate {
			return out[i].Rate > out[j].Rate
		}
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Package link associates execution records with the pipeline records they
// fulfill.
package link

import (
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/policy"
)

// Linker matches work orders to deals, first by explicit foreign key, then
// by fuzzy name similarity.
type Linker struct {
	threshold float64
	workers   int
}

// New returns a Linker configured from p.
func New(p *policy.Policy) *Linker {
	return &Linker{threshold: p.LinkSimilarityThreshold, workers: p.Workers}
}

// candidate is a precomputed pipeline record.
type candidate struct {
	id     string
	name   string
	tokens map[string]struct{}
	closed time.Time
	dated  bool
}

type match struct {
	edge model.LinkEdge
	ok   bool
}

// Link returns one edge per linkable execution record. Each execution
// record links to at most one pipeline record; a pipeline record may have
// many edges.
func (l *Linker) Link(exec, pipe model.CleanCollection) model.LinkResult {
	cands := make([]candidate, len(pipe.Records))
	byID := make(map[string]int, len(pipe.Records))
	for i := range pipe.Records {
		rec := &pipe.Records[i]
		name := NormalizeName(rec.Name)
		closed, dated := pipe.DateOf(rec, model.RoleCloseDate, model.RoleTentativeCloseDate)
		cands[i] = candidate{id: rec.ID, name: name, tokens: tokenSet(name), closed: closed, dated: dated}
		byID[rec.ID] = i
	}

	slots := make([]match, len(exec.Records))
	var g errgroup.Group
	g.SetLimit(l.workers)
	for i := range exec.Records {
		g.Go(func() error {
			slots[i] = l.matchOne(&exec, &exec.Records[i], cands, byID)
			return nil
		})
	}
	_ = g.Wait()

	var res model.LinkResult
	for i, m := range slots {
		if m.ok {
			res.Edges = append(res.Edges, m.edge)
		} else {
			res.UnlinkedExecution = append(res.UnlinkedExecution, exec.Records[i].ID)
		}
	}
	sort.SliceStable(res.Edges, func(i, j int) bool {
		return res.Edges[i].ExecutionID < res.Edges[j].ExecutionID
	})
	sort.Strings(res.UnlinkedExecution)

	linked := res.LinkedPipeline()
	for _, c := range cands {
		if !linked[c.id] {
			res.UnlinkedPipeline = append(res.UnlinkedPipeline, c.id)
		}
	}
	sort.Strings(res.UnlinkedPipeline)

	counts := res.CountByConfidence()
	zap.L().Debug("link: collections linked",
		zap.Int("exact", counts[model.ConfidenceExact]),
		zap.Int("fallback", counts[model.ConfidenceFallback]),
		zap.Int("unlinked_execution", len(res.UnlinkedExecution)),
		zap.Int("unlinked_pipeline", len(res.UnlinkedPipeline)),
	)
	return res
}

func (l *Linker) matchOne(exec *model.CleanCollection, rec *model.CleanRecord, cands []candidate, byID map[string]int) match {
	if key, ok := exec.TextOf(rec, model.RoleLinkKey); ok {
		if i, found := byID[key]; found {
			return match{ok: true, edge: model.LinkEdge{
				ExecutionID: rec.ID,
				PipelineID:  cands[i].id,
				Confidence:  model.ConfidenceExact,
				Score:       1,
			}}
		}
	}

	name, ok := exec.TextOf(rec, model.RoleDealName)
	if !ok {
		name = rec.Name
	}
	name = NormalizeName(name)
	if name == "" {
		return match{}
	}
	tokens := tokenSet(name)

	best := -1
	var bestScore float64
	for i := range cands {
		var score float64
		if cands[i].name == name {
			score = 1
		} else {
			score = jaccard(tokens, cands[i].tokens)
		}
		if score < l.threshold || score == 0 {
			continue
		}
		if best < 0 || better(score, &cands[i], bestScore, &cands[best]) {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return match{}
	}
	return match{ok: true, edge: model.LinkEdge{
		ExecutionID: rec.ID,
		PipelineID:  cands[best].id,
		Confidence:  model.ConfidenceFallback,
		Score:       bestScore,
	}}
}

// better orders candidates by score, then most recent close date with
// undated records last, then lowest id.
func better(score float64, c *candidate, bestScore float64, b *candidate) bool {
	if score != bestScore {
		return score > bestScore
	}
	if c.dated != b.dated {
		return c.dated
	}
	if c.dated && !c.closed.Equal(b.closed) {
		return c.closed.After(b.closed)
	}
	return c.id < b.id
}

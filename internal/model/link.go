package model

// Confidence tags how a link edge was established.
type Confidence string

const (
	ConfidenceExact    Confidence = "exact"
	ConfidenceFallback Confidence = "fallback"
)

// LinkEdge connects one execution record to one pipeline record.
type LinkEdge struct {
	ExecutionID string     `json:"execution_id"`
	PipelineID  string     `json:"pipeline_id"`
	Confidence  Confidence `json:"confidence"`
	Score       float64    `json:"score"`
}

// LinkResult is the linker output.
type LinkResult struct {
	Edges             []LinkEdge `json:"edges"`
	UnlinkedExecution []string   `json:"unlinked_execution"`
	UnlinkedPipeline  []string   `json:"unlinked_pipeline"`
}

// LinkedPipeline returns the set of pipeline ids with at least one edge.
func (l *LinkResult) LinkedPipeline() map[string]bool {
	out := make(map[string]bool, len(l.Edges))
	for _, e := range l.Edges {
		out[e.PipelineID] = true
	}
	return out
}

// CountByConfidence tallies edges per confidence tag.
func (l *LinkResult) CountByConfidence() map[Confidence]int {
	out := map[Confidence]int{}
	for _, e := range l.Edges {
		out[e.Confidence]++
	}
	return out
}

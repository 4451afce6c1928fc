package core

// FailoverEvent records that work originally targeted at one node was
// re-executed on another after the first attempt failed. Exactly one event is
// recorded per failed delegation; none when delegation succeeds or the task
// ran locally from the start.
type FailoverEvent struct {
	OriginalNodeID string `json:"original_node_id"`
	FallbackNodeID string `json:"fallback_node_id"`
	Reason         string `json:"reason"`
}

// ResponseMetadata stamps execution provenance onto a task response.
type ResponseMetadata struct {
	// Instrument names the instrument or composition that produced the result.
	Instrument string `json:"instrument,omitempty"`
	// NodeID identifies the node that executed the work; empty when no
	// registry is configured.
	NodeID string `json:"node_id,omitempty"`
	// Iterations is the total iteration count consumed.
	Iterations int `json:"iterations"`
	// Sources is the deduplicated, sorted set of sources consulted.
	Sources []string `json:"sources,omitempty"`
	// SourceCount is len(Sources), kept explicit for callers that only need
	// the count.
	SourceCount int `json:"source_count"`
	// FailoverEvents lists every node failover incurred while serving the
	// request, in occurrence order.
	FailoverEvents []FailoverEvent `json:"failover_events,omitempty"`
	// DurationMS is the wall-clock handling time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// TaskResponse is the externally visible outcome of Conductor.Handle. The
// caller always receives either a well-formed response (possibly with outcome
// OutcomeInconclusive and a populated Discrepancy) or a single explicit error
// for configuration and depth violations, never a partial response.
type TaskResponse struct {
	RequestID          string           `json:"request_id"`
	Outcome            Outcome          `json:"outcome"`
	Findings           []Finding        `json:"findings,omitempty"`
	Summary            string           `json:"summary"`
	Confidence         float64          `json:"confidence"`
	Discrepancy        string           `json:"discrepancy,omitempty"`
	SuggestedFollowups []string         `json:"suggested_followups,omitempty"`
	Metadata           ResponseMetadata `json:"metadata"`
}

// Result converts the response back into an InstrumentResult. Spawned
// sub-tasks surface their outcome to the parent instrument in this form.
func (r *TaskResponse) Result() *InstrumentResult {
	return &InstrumentResult{
		Outcome:            r.Outcome,
		Findings:           r.Findings,
		Summary:            r.Summary,
		Confidence:         r.Confidence,
		Iterations:         r.Metadata.Iterations,
		SourcesConsulted:   copyStrings(r.Metadata.Sources),
		Discrepancy:        r.Discrepancy,
		SuggestedFollowups: r.SuggestedFollowups,
	}
}

// ResponseFromResult builds a response from an instrument result, stamping
// the given execution metadata. Sources are normalized on the way out.
func ResponseFromResult(requestID string, res *InstrumentResult, meta ResponseMetadata) *TaskResponse {
	meta.Sources = NormalizeSources(res.SourcesConsulted)
	meta.SourceCount = len(meta.Sources)
	meta.Iterations = res.Iterations
	return &TaskResponse{
		RequestID:          requestID,
		Outcome:            res.Outcome,
		Findings:           res.Findings,
		Summary:            res.Summary,
		Confidence:         res.Confidence,
		Discrepancy:        res.Discrepancy,
		SuggestedFollowups: res.SuggestedFollowups,
		Metadata:           meta,
	}
}

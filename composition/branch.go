package composition

import (
	"fmt"
	"strings"

	"github.com/maestrohq/maestro/core"
)

// branchOutcome is the tagged per-branch result of a fan-out: either a
// completed InstrumentResult or a captured failure. Branches are joined
// before any aggregation logic runs, so a slice of these is the sole input
// to the fan-in step.
type branchOutcome struct {
	name   string
	result *core.InstrumentResult
	err    error
}

func (b branchOutcome) failed() bool { return b.err != nil }

// partitionBranches splits joined outcomes into successes (declaration order
// preserved) and failure descriptions of the form "name: error".
func partitionBranches(outcomes []branchOutcome) (successes []branchOutcome, failures []string) {
	for _, o := range outcomes {
		if o.failed() {
			failures = append(failures, fmt.Sprintf("%s: %s", o.name, o.err.Error()))
			continue
		}
		successes = append(successes, o)
	}
	return successes, failures
}

// allBranchesFailedResult is the composition's terminal value when no branch
// succeeded: an inconclusive result carrying every failure, produced without
// invoking the merge step.
func allBranchesFailedResult(total int, failures []string) *core.InstrumentResult {
	return &core.InstrumentResult{
		Outcome:     core.OutcomeInconclusive,
		Summary:     fmt.Sprintf("all %d branches failed", total),
		Confidence:  0.0,
		Discrepancy: strings.Join(failures, "; "),
	}
}

// branchFailureNote renders the discrepancy prefix recorded when some (but
// not all) branches failed.
func branchFailureNote(failures []string) string {
	return "branch failures: " + strings.Join(failures, "; ")
}

// combineDiscrepancy joins a branch-failure note with the merge step's own
// discrepancy.
func combineDiscrepancy(failures []string, mergeDiscrepancy string) string {
	if len(failures) == 0 {
		return mergeDiscrepancy
	}
	note := branchFailureNote(failures)
	if mergeDiscrepancy == "" {
		return note
	}
	return note + "; " + mergeDiscrepancy
}

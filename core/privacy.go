package core

// PrivacyLevel grades how sensitive a query is.
type PrivacyLevel string

const (
	PrivacyLevelPublic    PrivacyLevel = "public"
	PrivacyLevelSensitive PrivacyLevel = "sensitive"
	PrivacyLevelPrivate   PrivacyLevel = "private"
)

// PrivacyVerdict is the classifier's decision for one query.
type PrivacyVerdict struct {
	Level           PrivacyLevel `json:"level"`
	ShouldStayLocal bool         `json:"should_stay_local"`
	Reason          string       `json:"reason,omitempty"`
}

// PrivacyClassifier decides whether a query should stay on a local node.
// Implementations are stateless text heuristics; the conductor consults the
// classifier during node selection.
type PrivacyClassifier interface {
	Classify(query string, taskCtx *TaskContext) PrivacyVerdict
}

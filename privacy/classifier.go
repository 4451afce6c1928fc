// Package privacy implements a stateless keyword-heuristic classifier that
// decides whether a query should stay on a local node. It is the default
// core.PrivacyClassifier the conductor consults during node selection;
// deployments with stricter requirements can substitute their own.
package privacy

import (
	"strings"

	"github.com/maestrohq/maestro/core"
)

// Classifier grades queries by matching against keyword lists. The zero
// value is not usable; construct with NewClassifier.
type Classifier struct {
	privateKeywords   []string
	sensitiveKeywords []string
}

// Options configures a Classifier.
type Options struct {
	// ExtraPrivateKeywords extends the built-in private keyword list.
	ExtraPrivateKeywords []string
	// ExtraSensitiveKeywords extends the built-in sensitive keyword list.
	ExtraSensitiveKeywords []string
}

// Built-in keyword lists. Private matches force local execution; sensitive
// matches lower the grade without pinning the query.
var (
	defaultPrivateKeywords = []string{
		"password", "passphrase", "credential", "ssn", "social security",
		"medical", "diagnosis", "prescription", "health record",
		"bank account", "credit card", "routing number", "tax return",
	}
	defaultSensitiveKeywords = []string{
		"salary", "income", "address", "phone number", "email address",
		"date of birth", "insurance", "legal", "contract",
	}
)

// NewClassifier constructs a classifier with the built-in keyword lists plus
// any configured extras.
func NewClassifier(optFns ...func(o *Options)) *Classifier {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Classifier{
		privateKeywords:   append(append([]string(nil), defaultPrivateKeywords...), opts.ExtraPrivateKeywords...),
		sensitiveKeywords: append(append([]string(nil), defaultSensitiveKeywords...), opts.ExtraSensitiveKeywords...),
	}
}

// Classify implements core.PrivacyClassifier. Matching is case-insensitive
// substring search over the query and the conversation summary; a private
// match pins the query to local execution.
func (c *Classifier) Classify(query string, taskCtx *core.TaskContext) core.PrivacyVerdict {
	haystack := strings.ToLower(query)
	if taskCtx != nil && taskCtx.ConversationSummary != "" {
		haystack += " " + strings.ToLower(taskCtx.ConversationSummary)
	}

	if keyword := firstMatch(haystack, c.privateKeywords); keyword != "" {
		return core.PrivacyVerdict{
			Level:           core.PrivacyLevelPrivate,
			ShouldStayLocal: true,
			Reason:          "query mentions " + keyword,
		}
	}
	if keyword := firstMatch(haystack, c.sensitiveKeywords); keyword != "" {
		return core.PrivacyVerdict{
			Level:  core.PrivacyLevelSensitive,
			Reason: "query mentions " + keyword,
		}
	}
	return core.PrivacyVerdict{Level: core.PrivacyLevelPublic}
}

func firstMatch(haystack string, keywords []string) string {
	for _, keyword := range keywords {
		if strings.Contains(haystack, keyword) {
			return keyword
		}
	}
	return ""
}

// Package autoreply implements the keyword rule matcher applied to inbound
// messages.
package autoreply

import (
	"strings"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
)

// Match returns the response of the first enabled rule whose keyword is a
// case-insensitive substring of content, in stored rule order.
func Match(content string, rules []store.AutoReplyRule) (string, bool) {
	if content == "" {
		return "", false
	}
	lower := strings.ToLower(content)
	for _, rule := range rules {
		if !rule.Enabled || rule.Keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(rule.Keyword)) {
			return rule.Response, true
		}
	}
	return "", false
}

// Evaluator resolves the configured rules and matches inbound content.
type Evaluator struct {
	config *store.ConfigStore
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(config *store.ConfigStore) *Evaluator {
	return &Evaluator{config: config}
}

// Evaluate returns the reply for content, if the feature is enabled and a
// rule matches.
func (e *Evaluator) Evaluate(content string) (string, bool) {
	cfg, err := e.config.Get()
	if err != nil || !cfg.AutoReplyEnabled {
		return "", false
	}
	return Match(content, cfg.AutoReplyRules)
}

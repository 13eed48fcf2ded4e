// Package autoreply matches inbound text against keyword rules.
package autoreply

import (
	"sort"
	"strings"

	"github.com/wedraw/support/internal/domain"
)

// Matcher holds an immutable, priority-ordered rule list. Match is a pure
// function; the matcher is safe for concurrent use after construction.
type Matcher struct {
	rules []domain.AutoReplyRule
}

// NewMatcher builds a matcher from the given rules, sorted by priority
// descending. Ties keep the input order.
func NewMatcher(rules []domain.AutoReplyRule) *Matcher {
	sorted := make([]domain.AutoReplyRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Matcher{rules: sorted}
}

// Match returns the response of the highest-priority rule whose keyword is a
// case-insensitive substring of text. The first match wins; there is no
// scoring or multi-match merging. Empty input never matches.
func (m *Matcher) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lowered := strings.ToLower(text)
	for _, rule := range m.rules {
		if rule.Keyword == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(rule.Keyword)) {
			return rule.Response, true
		}
	}
	return "", false
}

// DefaultRules is the built-in rule set used when the mirror store has none.
func DefaultRules() []domain.AutoReplyRule {
	return []domain.AutoReplyRule{
		{Keyword: "refund", Response: "You can request a refund from Orders > Order Detail > Request Refund. An agent will follow up shortly.", Priority: 100},
		{Keyword: "shipping", Response: "Standard shipping takes 3-5 business days. You can track your parcel from the order detail page.", Priority: 90},
		{Keyword: "invoice", Response: "Invoices can be downloaded from Orders > Order Detail > Invoice within 30 days of purchase.", Priority: 80},
		{Keyword: "password", Response: "You can reset your password from Settings > Account > Reset Password.", Priority: 70},
		{Keyword: "hello", Response: "Hi! An agent will be with you shortly. Please describe your issue.", Priority: 10},
	}
}

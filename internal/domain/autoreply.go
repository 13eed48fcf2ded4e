package domain

// AutoReplyRule maps a keyword to a canned response. Rules are read-only at
// match time and ordered by priority descending.
type AutoReplyRule struct {
	Keyword  string `json:"keyword"`
	Response string `json:"response"`
	Priority int    `json:"priority"`
}

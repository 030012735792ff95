package config

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filters defines rules for dropping unreplied emails from the snapshot.
// Both lists match on substrings after Unicode case folding.
type Filters struct {
	IgnoreSenders           []string `toml:"ignore_senders"`
	IgnoreKeywordsInSubject []string `toml:"ignore_subject_keywords"`
}

// Ignored reports whether an email from sender with the given subject should be dropped,
// and the rule that matched.
func (f Filters) Ignored(sender, subject string) (bool, string) {
	fold := cases.Fold()
	sender, subject = fold.String(sender), fold.String(subject)
	for _, s := range f.IgnoreSenders {
		if s != "" && strings.Contains(sender, fold.String(s)) {
			return true, "sender:" + s
		}
	}
	for _, k := range f.IgnoreKeywordsInSubject {
		if k != "" && strings.Contains(subject, fold.String(k)) {
			return true, "subject:" + k
		}
	}
	return false, ""
}

// Empty reports whether no rule is configured.
func (f Filters) Empty() bool {
	return len(f.IgnoreSenders) == 0 && len(f.IgnoreKeywordsInSubject) == 0
}

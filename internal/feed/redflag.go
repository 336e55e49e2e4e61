package feed

import "strings"

// RedFlagFilters turns the configured red flag terms into negated
// text-contains filters. Every seeker feed carries them, so a flagged posting
// is silently dropped.
func RedFlagFilters(redFlags []string) []Filter {
	out := make([]Filter, 0, len(redFlags))
	for _, flag := range redFlags {
		if strings.TrimSpace(flag) == "" {
			continue
		}
		out = append(out, NotContains(FieldText, flag))
	}
	return out
}

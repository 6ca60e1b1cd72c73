package normalize

import "strings"

// phraseFilter drops events whose result code is a known invalid phrase.
// Matching is case-insensitive; an empty filter lets every event through.
type phraseFilter struct {
	exact   map[string]bool
	contain []string
}

func newPhraseFilter(exact, contain []string) phraseFilter {
	f := phraseFilter{exact: make(map[string]bool, len(exact))}
	for _, p := range exact {
		if p = normalizePhrase(p); p != "" {
			f.exact[p] = true
		}
	}
	for _, p := range contain {
		if p = normalizePhrase(p); p != "" {
			f.contain = append(f.contain, p)
		}
	}
	return f
}

func (f phraseFilter) excludes(eventType string) bool {
	if len(f.exact) == 0 && len(f.contain) == 0 {
		return false
	}
	et := normalizePhrase(eventType)
	if f.exact[et] {
		return true
	}
	for _, p := range f.contain {
		if strings.Contains(et, p) {
			return true
		}
	}
	return false
}

func normalizePhrase(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

package glossary

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Entry maps a source term to its fixed translation.
type Entry struct {
	Term        string `json:"term"`
	Translation string `json:"translation"`
}

// windowChars bounds how much text one replacement pass touches so that
// arbitrarily large documents never materialise a second full copy per term.
const windowChars = 64 * 1024

// Apply substitutes glossary terms in text, longest term first so that
// overlapping terms resolve deterministically ("大魔王" before "魔王").
// Pure; no I/O.
func Apply(text string, entries []Entry) string {
	if text == "" || len(entries) == 0 {
		return text
	}

	sorted := make([]Entry, 0, len(entries))
	maxTerm := 0
	for _, e := range entries {
		if e.Term == "" {
			continue
		}
		sorted = append(sorted, e)
		if n := len(e.Term); n > maxTerm {
			maxTerm = n
		}
	}
	if len(sorted) == 0 {
		return text
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Term) > utf8.RuneCountInString(sorted[j].Term)
	})

	if len(text) <= windowChars {
		return applyAll(text, sorted)
	}

	// Windowed processing: cut at the last line break inside the window so
	// no term straddles the cut (glossary terms never span lines). Falls
	// back to a rune boundary when a window has no line break at all.
	var b strings.Builder
	b.Grow(len(text))
	rest := text
	for len(rest) > windowChars {
		cut := strings.LastIndexByte(rest[:windowChars], '\n')
		if cut <= maxTerm {
			cut = windowChars
			for cut > 0 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
		}
		b.WriteString(applyAll(rest[:cut], sorted))
		rest = rest[cut:]
	}
	b.WriteString(applyAll(rest, sorted))
	return b.String()
}

func applyAll(s string, sorted []Entry) string {
	for _, e := range sorted {
		s = strings.ReplaceAll(s, e.Term, e.Translation)
	}
	return s
}

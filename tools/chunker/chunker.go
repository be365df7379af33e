package chunker

import (
	"regexp"
	"strings"
)

// Options bounds the fallback size-based segmentation.
type Options struct {
	MaxChars int
}

const DefaultMaxChars = 4000

// chapterHeading matches common chapter markers at the start of a line,
// both CJK (第1章 / 第十二节 / 第3卷) and western ("Chapter 12").
var chapterHeading = regexp.MustCompile(`(?m)^[ \t]*(第[0-9０-９零一二三四五六七八九十百千万]+[章节回卷部篇]|Chapter[ \t]+\d+)[^\n]*$`)

// Chunk splits text into an ordered list of submission-sized chunks.
// Chapter headings take priority: when the text carries two or more
// headings each chapter becomes one chunk (its heading included).
// Otherwise the text is split on paragraph boundaries so that no chunk
// exceeds opts.MaxChars. Pure; no I/O.
func Chunk(text string, opts Options) []string {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if idx := chapterHeading.FindAllStringIndex(trimmed, -1); len(idx) >= 2 {
		return splitAt(trimmed, idx)
	}
	return splitBySize(trimmed, opts.MaxChars)
}

func splitAt(text string, headings [][]int) []string {
	var chunks []string
	// Text before the first heading belongs to the first chunk only if
	// it is non-empty prose (a preface without its own heading).
	if lead := strings.TrimSpace(text[:headings[0][0]]); lead != "" {
		chunks = append(chunks, lead)
	}
	for i, h := range headings {
		end := len(text)
		if i+1 < len(headings) {
			end = headings[i+1][0]
		}
		if c := strings.TrimSpace(text[h[0]:end]); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

func splitBySize(text string, maxChars int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var b strings.Builder
	flush := func() {
		if c := strings.TrimSpace(b.String()); c != "" {
			chunks = append(chunks, c)
		}
		b.Reset()
	}
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// A single oversized paragraph is split hard on rune boundaries.
		if len(p) > maxChars {
			flush()
			for _, piece := range hardSplit(p, maxChars) {
				chunks = append(chunks, piece)
			}
			continue
		}
		if b.Len() > 0 && b.Len()+2+len(p) > maxChars {
			flush()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	flush()
	return chunks
}

func hardSplit(s string, maxChars int) []string {
	var out []string
	runes := []rune(s)
	var b strings.Builder
	for _, r := range runes {
		b.WriteRune(r)
		if b.Len() >= maxChars {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

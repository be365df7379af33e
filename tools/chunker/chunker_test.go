package chunker

import (
	"strings"
	"testing"
)

func TestChunkChapterHeadings(t *testing.T) {
	t.Parallel()
	text := "第1章 初遇\n" + strings.Repeat("他说了一句话。", 200) +
		"\n第2章 离别\n" + strings.Repeat("她没有回答。", 200)

	chunks := Chunk(text, Options{})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chapter chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0], "第1章") {
		t.Errorf("first chunk should start with its heading, got %q", chunks[0][:30])
	}
	if !strings.HasPrefix(chunks[1], "第2章") {
		t.Errorf("second chunk should start with its heading, got %q", chunks[1][:30])
	}
}

func TestChunkWesternHeadings(t *testing.T) {
	t.Parallel()
	text := "Chapter 1 The Meeting\nsome prose here\nChapter 2 The Parting\nmore prose"
	chunks := Chunk(text, Options{})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
}

func TestChunkPrefaceBecomesOwnChunk(t *testing.T) {
	t.Parallel()
	text := "作者的话：感谢阅读。\n第1章 开始\n正文一\n第2章 继续\n正文二"
	chunks := Chunk(text, Options{})
	if len(chunks) != 3 {
		t.Fatalf("expected preface + 2 chapters, got %d: %q", len(chunks), chunks)
	}
	if strings.Contains(chunks[0], "第1章") {
		t.Errorf("preface chunk must not contain a heading: %q", chunks[0])
	}
}

func TestChunkSingleHeadingUsesSizeSplit(t *testing.T) {
	t.Parallel()
	text := "第1章 唯一\n短正文"
	chunks := Chunk(text, Options{})
	if len(chunks) != 1 {
		t.Fatalf("one heading must not trigger chapter split, got %d chunks", len(chunks))
	}
}

func TestChunkSizeBound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{
			name:     "paragraphs packed up to bound",
			text:     "aaaa\n\nbbbb\n\ncccc",
			maxChars: 10,
			want:     []string{"aaaa\n\nbbbb", "cccc"},
		},
		{
			name:     "oversized paragraph hard split",
			text:     strings.Repeat("x", 25),
			maxChars: 10,
			want:     []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)},
		},
		{
			name:     "blank paragraphs dropped",
			text:     "one\n\n\n\n\n\ntwo",
			maxChars: 100,
			want:     []string{"one\n\ntwo"},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Chunk(tc.text, Options{MaxChars: tc.maxChars})
			if len(got) != len(tc.want) {
				t.Fatalf("got %d chunks %q, want %d %q", len(got), got, len(tc.want), tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("chunk %d: got %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestChunkEmptyInput(t *testing.T) {
	t.Parallel()
	if got := Chunk("   \n\t ", Options{}); len(got) != 0 {
		t.Fatalf("expected no chunks for blank input, got %q", got)
	}
}

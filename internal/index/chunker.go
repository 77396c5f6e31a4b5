package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/syntax"
)

const (
	// windowLines is the fallback chunk height for code outside function
	// boundaries or in files the parser cannot handle.
	windowLines = 40
	// windowOverlap keeps adjacent fallback chunks sharing context.
	windowOverlap = 8
)

// Chunker splits source files into semantically coherent pieces: one chunk
// per function where the parser succeeds, overlapping line windows
// everywhere else.
type Chunker struct {
	parser *syntax.Parser
}

// NewChunker creates a Chunker.
func NewChunker() *Chunker {
	return &Chunker{parser: syntax.NewParser()}
}

// Chunk splits content into chunks with ids of the form "relpath:chunk_N".
// The embedding field is left empty; the index fills it in.
func (c *Chunker) Chunk(ctx context.Context, file schemas.SourceFile, content []byte) []schemas.ContextChunk {
	lines := strings.Split(string(content), "\n")

	var spans []schemas.LineRange
	if syntax.Supported(file.Language) {
		if funcs, err := c.parser.Functions(ctx, content, file.Language); err == nil {
			for _, fn := range funcs {
				spans = append(spans, fn.Span)
			}
		}
	}
	spans = fillGaps(spans, len(lines))

	chunks := make([]schemas.ContextChunk, 0, len(spans))
	for i, span := range spans {
		text := strings.Join(lines[span.Start-1:span.End], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, schemas.ContextChunk{
			ChunkID:  fmt.Sprintf("%s:chunk_%d", file.RelPath, i),
			FilePath: file.RelPath,
			Span:     span,
			Text:     text,
		})
	}
	return chunks
}

// fillGaps merges the function spans with windowed spans covering whatever
// the functions do not, returning a sorted, non-overlapping cover of the
// whole file.
func fillGaps(funcSpans []schemas.LineRange, totalLines int) []schemas.LineRange {
	if totalLines == 0 {
		return nil
	}

	covered := make([]bool, totalLines+1)
	for _, span := range funcSpans {
		for l := span.Start; l <= span.End && l <= totalLines; l++ {
			covered[l] = true
		}
	}

	var spans []schemas.LineRange
	spans = append(spans, funcSpans...)

	gapStart := 0
	for l := 1; l <= totalLines+1; l++ {
		inGap := l <= totalLines && !covered[l]
		if inGap && gapStart == 0 {
			gapStart = l
		}
		if !inGap && gapStart != 0 {
			spans = append(spans, windows(gapStart, l-1)...)
			gapStart = 0
		}
	}

	sortSpans(spans)
	return spans
}

// windows splits [start, end] into windowLines-high spans with
// windowOverlap lines of overlap.
func windows(start, end int) []schemas.LineRange {
	var out []schemas.LineRange
	for s := start; s <= end; s += windowLines - windowOverlap {
		e := s + windowLines - 1
		if e > end {
			e = end
		}
		out = append(out, schemas.LineRange{Start: s, End: e})
		if e == end {
			break
		}
	}
	return out
}

func sortSpans(spans []schemas.LineRange) {
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
}

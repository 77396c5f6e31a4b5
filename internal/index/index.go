// Package index maintains the vector index over code chunks that grounds
// every fix prompt. Ingestion is incremental on content hashes; queries are
// brute-force cosine similarity over the stored vectors, which at
// repository scale comfortably beats maintaining an approximate structure.
package index

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/editor"
)

// Index ties the chunker, the embedding backend, and the sqlite store
// together.
type Index struct {
	store    *Store
	embedder schemas.Embedder
	chunker  *Chunker
	log      *zap.Logger
}

// New creates an Index. A nil embedder disables the index entirely: Ingest
// becomes a no-op and Query always returns an empty set, which the pipeline
// treats as a cold index.
func New(store *Store, embedder schemas.Embedder, logger *zap.Logger) *Index {
	return &Index{
		store:    store,
		embedder: embedder,
		chunker:  NewChunker(),
		log:      logger.Named("index"),
	}
}

// Ingest indexes the given files, re-chunking and re-embedding only those
// whose content hash changed since the last ingestion. Per-file failures
// are logged and skipped; a degraded index is always preferable to a failed
// run.
func (ix *Index) Ingest(ctx context.Context, files []schemas.SourceFile) error {
	if ix.embedder == nil {
		return nil
	}
	backend := ix.embedder.Identity()

	var ingested, unchanged int
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := os.ReadFile(file.Path)
		if err != nil {
			ix.log.Warn("Skipping unreadable file during ingest", zap.String("file", file.RelPath), zap.Error(err))
			continue
		}
		hash := editor.ContentHash(content)

		stored, ok, err := ix.store.FileHash(file.RelPath, backend)
		if err != nil {
			return err
		}
		if ok && stored == hash {
			unchanged++
			continue
		}

		chunks := ix.chunker.Chunk(ctx, file, content)
		if len(chunks) == 0 {
			continue
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			ix.log.Warn("Embedding failed, file left unindexed", zap.String("file", file.RelPath), zap.Error(err))
			continue
		}
		if len(vectors) != len(chunks) {
			ix.log.Warn("Embedder returned wrong vector count", zap.String("file", file.RelPath))
			continue
		}
		for i := range chunks {
			chunks[i].Embedding = vectors[i]
		}
		if err := ix.store.ReplaceFile(file.RelPath, hash, backend, chunks); err != nil {
			return err
		}
		ingested++
	}

	ix.log.Info("Context index up to date",
		zap.Int("ingested", ingested),
		zap.Int("unchanged", unchanged))
	return nil
}

// Query returns the k chunks most similar to snippet, excluding chunks from
// excludeFile so the file under repair never pads its own context — unless
// nothing else is indexed. A cold index or a failing embedder yields an
// empty result, never an error.
func (ix *Index) Query(ctx context.Context, snippet string, k int, excludeFile string) []schemas.ContextChunk {
	if ix.embedder == nil || k <= 0 {
		return nil
	}
	backend := ix.embedder.Identity()

	vectors, err := ix.embedder.Embed(ctx, []string{snippet})
	if err != nil || len(vectors) != 1 {
		ix.log.Warn("Query embedding failed, returning empty context", zap.Error(err))
		return nil
	}
	queryVec := vectors[0]

	chunks, err := ix.store.LoadAll(backend)
	if err != nil {
		ix.log.Warn("Failed to load chunks, returning empty context", zap.Error(err))
		return nil
	}
	if len(chunks) == 0 {
		return nil
	}

	candidates := chunks[:0:0]
	for _, c := range chunks {
		if c.FilePath != excludeFile {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		// Self-matches beat no context at all.
		candidates = chunks
	}

	for i := range candidates {
		candidates[i].Score = cosine(queryVec, candidates[i].Embedding)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

package index

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

// Store persists chunks and their vectors in a local sqlite database so
// repeated analyze/fix cycles only re-embed files whose content changed.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	file_hash  TEXT NOT NULL,
	backend    TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	text       TEXT NOT NULL,
	vector     BLOB NOT NULL,
	PRIMARY KEY (id, backend)
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_path, backend);
`

// OpenStore opens (or creates) the database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// FileHash returns the stored content hash for filePath under backend, and
// whether any chunks exist for it.
func (s *Store) FileHash(filePath, backend string) (string, bool, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT file_hash FROM chunks WHERE file_path = ? AND backend = ? LIMIT 1`,
		filePath, backend).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read file hash: %w", err)
	}
	return hash, true, nil
}

// ReplaceFile atomically swaps every chunk of filePath for the given
// backend.
func (s *Store) ReplaceFile(filePath, fileHash, backend string, chunks []schemas.ContextChunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE file_path = ? AND backend = ?`, filePath, backend); err != nil {
		return fmt.Errorf("failed to clear stale chunks: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO chunks (id, file_path, file_hash, backend, start_line, end_line, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.Exec(c.ChunkID, filePath, fileHash, backend,
			c.Span.Start, c.Span.End, c.Text, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ChunkID, err)
		}
	}
	return tx.Commit()
}

// LoadAll returns every chunk stored under backend.
func (s *Store) LoadAll(backend string) ([]schemas.ContextChunk, error) {
	rows, err := s.db.Query(
		`SELECT id, file_path, start_line, end_line, text, vector FROM chunks WHERE backend = ?`,
		backend)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []schemas.ContextChunk
	for rows.Next() {
		var c schemas.ContextChunk
		var blob []byte
		if err := rows.Scan(&c.ChunkID, &c.FilePath, &c.Span.Start, &c.Span.End, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		c.Embedding = decodeVector(blob)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteFile removes every chunk for filePath across backends, used when a
// file disappears from the repository.
func (s *Store) DeleteFile(filePath string) error {
	_, err := s.db.Exec(`DELETE FROM chunks WHERE file_path = ?`, filePath)
	return err
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	var buf bytes.Buffer
	buf.Grow(len(vec) * 4)
	for _, v := range vec {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

type Chunk struct {
	ID         int64
	Source     string
	ChunkIndex int
	Content    string
	Embedding  []float64
	IngestedAt int64
}

// ChunkStore holds embedded knowledge base chunks. Embeddings are
// stored as little-endian float64 blobs.
type ChunkStore struct {
	db *DB
}

func NewChunkStore(database *DB) *ChunkStore {
	return &ChunkStore{db: database}
}

// ReplaceSource swaps all chunks for one source document atomically, so
// re-ingesting a file never leaves stale chunks behind.
func (s *ChunkStore) ReplaceSource(ctx context.Context, source string, chunks []Chunk) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kb_chunks WHERE source = ?`, source); err != nil {
		return err
	}

	now := time.Now().Unix()
	insert := `INSERT INTO kb_chunks (source, chunk_index, content, embedding, ingested_at) VALUES (?, ?, ?, ?, ?)`
	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %d of %s has no embedding", i, source)
		}
		if _, err := tx.ExecContext(ctx, insert, source, i, chunk.Content, encodeEmbedding(chunk.Embedding), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *ChunkStore) AllChunks(ctx context.Context) ([]Chunk, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT id, source, chunk_index, content, embedding, ingested_at FROM kb_chunks ORDER BY source, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Chunk
	for rows.Next() {
		var (
			chunk Chunk
			blob  []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.Source, &chunk.ChunkIndex, &chunk.Content, &blob, &chunk.IngestedAt); err != nil {
			return nil, err
		}
		chunk.Embedding, err = decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunk.ID, err)
		}
		items = append(items, chunk)
	}
	return items, rows.Err()
}

func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_chunks`).Scan(&count)
	return count, err
}

func (s *ChunkStore) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT DISTINCT source FROM kb_chunks ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func encodeEmbedding(vector []float64) []byte {
	blob := make([]byte, 8*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[8*i:], math.Float64bits(v))
	}
	return blob
}

func decodeEmbedding(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 8", len(blob))
	}
	vector := make([]float64, len(blob)/8)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[8*i:]))
	}
	return vector, nil
}

package kb

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"crmpilot/app/core/store"
	"crmpilot/app/pkg/logger"
)

// Embedder is the slice of the LLM client the knowledge base needs.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float64, error)
}

type Options struct {
	Dir          string
	ChunkSize    int
	ChunkOverlap int
	RetrieveK    int
	Model        string
}

type Manager struct {
	chunks   *store.ChunkStore
	embedder Embedder
	opts     Options
}

type Hit struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type IngestSummary struct {
	Files  int `json:"files"`
	Chunks int `json:"chunks"`
}

func NewManager(chunks *store.ChunkStore, embedder Embedder, opts Options) *Manager {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 150
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 4
	}
	if opts.RetrieveK <= 0 {
		opts.RetrieveK = 4
	}
	return &Manager{chunks: chunks, embedder: embedder, opts: opts}
}

// Ingest walks the knowledge base directory, chunks every markdown and
// text file, embeds the chunks, and replaces each source's rows.
func (m *Manager) Ingest(ctx context.Context) (IngestSummary, error) {
	var summary IngestSummary

	root := m.opts.Dir
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return summary, fmt.Errorf("knowledge base dir %s is not readable", root)
	}

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		pieces := SplitText(string(raw), m.opts.ChunkSize, m.opts.ChunkOverlap)
		if len(pieces) == 0 {
			return nil
		}

		vectors, err := m.embedder.Embed(ctx, m.opts.Model, pieces)
		if err != nil {
			return fmt.Errorf("embed %s: %w", path, err)
		}
		if len(vectors) != len(pieces) {
			return fmt.Errorf("embed %s: got %d vectors for %d chunks", path, len(vectors), len(pieces))
		}

		source, err := filepath.Rel(root, path)
		if err != nil {
			source = filepath.Base(path)
		}
		rows := make([]store.Chunk, len(pieces))
		for i, piece := range pieces {
			rows[i] = store.Chunk{Content: piece, Embedding: vectors[i]}
		}
		if err := m.chunks.ReplaceSource(ctx, source, rows); err != nil {
			return err
		}

		logger.Info("[KB] ingested %s (%d chunks)", source, len(rows))
		summary.Files++
		summary.Chunks += len(rows)
		return nil
	})
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// Retrieve embeds the query and returns the top-k chunks by cosine
// similarity.
func (m *Manager) Retrieve(ctx context.Context, query string, k int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if k <= 0 {
		k = m.opts.RetrieveK
	}

	vectors, err := m.embedder.Embed(ctx, m.opts.Model, []string{query})
	if err != nil {
		return nil, err
	}
	queryVec := vectors[0]

	all, err := m.chunks.AllChunks(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(all))
	for _, chunk := range all {
		score := cosineSimilarity(queryVec, chunk.Embedding)
		hits = append(hits, Hit{Source: chunk.Source, Content: chunk.Content, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.chunks.Count(ctx)
}

func (m *Manager) Sources(ctx context.Context) ([]string, error) {
	return m.chunks.Sources(ctx)
}

// SplitText cuts text into chunks of at most chunkSize runes, breaking
// at paragraph boundaries where possible, with the tail of each chunk
// repeated at the head of the next.
func SplitText(text string, chunkSize int, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			// prefer breaking at a blank line, then a newline, then a space
			end = breakPoint(runes, start, end)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func breakPoint(runes []rune, start int, end int) int {
	window := string(runes[start:end])
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return start + len([]rune(window[:idx]))
	}
	if idx := strings.LastIndexByte(window, '\n'); idx > 0 {
		return start + len([]rune(window[:idx]))
	}
	if idx := strings.LastIndexByte(window, ' '); idx > 0 {
		return start + len([]rune(window[:idx]))
	}
	return end
}

func cosineSimilarity(a []float64, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Package memory – store.go implements the SQLite-backed semantic memory
// store. Embeddings are stored as JSON-encoded float32 arrays in the memories
// table and mirrored in an in-process cache for fast cosine search, which
// avoids needing the sqlite-vec extension while still providing hybrid
// semantic + keyword retrieval.
package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver.

	"github.com/quillhq/quill/pkg/quill/match"
)

// Memory kinds. Notes are free-form and never conflict; contacts and facts
// are subject to conflict detection before insert.
const (
	KindNote    = "note"
	KindContact = "contact"
	KindFact    = "fact"
)

// Memory is one stored entry belonging to a user.
type Memory struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Content string `json:"content"`

	// Subject is the normalized topic for fact-kind entries ("haircuts").
	// Empty for other kinds.
	Subject string `json:"subject,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchHit is a memory with its hybrid relevance score in [0,1].
type SearchHit struct {
	Memory
	Score float64
}

// ConflictMatch is one existing memory that a pending insert may duplicate.
type ConflictMatch struct {
	Memory     Memory
	Similarity float64

	// IsStrongMatch gates whether the write must be disambiguated as
	// "update existing vs. keep both" before proceeding.
	IsStrongMatch bool
}

// Store provides persistent per-user memory with hybrid search.
type Store struct {
	db       *sql.DB
	embedder EmbeddingProvider
	logger   *slog.Logger

	// vectorCache holds all memory embeddings in memory for cosine search.
	// Refreshed on writes.
	vectorCacheMu sync.RWMutex
	vectorCache   []vectorCacheEntry
}

// vectorCacheEntry mirrors one embedded memory for in-process vector search.
type vectorCacheEntry struct {
	id        string
	userID    string
	kind      string
	embedding []float32
}

const memorySchema = `
	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		kind       TEXT NOT NULL,
		content    TEXT NOT NULL,
		subject    TEXT NOT NULL DEFAULT '',
		embedding  TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_memories_user_kind ON memories(user_id, kind);

	CREATE TABLE IF NOT EXISTS embedding_cache (
		text_hash  TEXT NOT NULL,
		provider   TEXT NOT NULL,
		model      TEXT NOT NULL,
		embedding  TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (text_hash, provider, model)
	);
`

// Open opens or creates the memory database.
func Open(dbPath string, embedder EmbeddingProvider, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		embedder = &NullEmbedder{}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if _, err := db.Exec(memorySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}

	s := &Store{db: db, embedder: embedder, logger: logger}
	if err := s.refreshVectorCache(); err != nil {
		logger.Warn("failed to load memory vector cache", "error", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or updates a memory, embedding its content. An embedding
// failure degrades to a vector-less entry rather than failing the write.
func (s *Store) Save(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Subject = strings.ToLower(strings.TrimSpace(m.Subject))

	var embJSON sql.NullString
	if emb := s.embedOne(ctx, m.Content); emb != nil {
		data, err := json.Marshal(emb)
		if err == nil {
			embJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, kind, content, subject, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			content = excluded.content,
			subject = excluded.subject,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, m.ID, m.UserID, m.Kind, m.Content, m.Subject, embJSON,
		m.CreatedAt.Format(time.RFC3339), m.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}

	return s.refreshVectorCache()
}

// Get fetches one memory by id, scoped to the user.
func (s *Store) Get(ctx context.Context, userID, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, content, subject, created_at, updated_at
		FROM memories WHERE user_id = ? AND id = ?
	`, userID, id)
	m, err := scanMemory(row)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes one memory, scoped to the user.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM memories WHERE user_id = ? AND id = ?", userID, id); err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return s.refreshVectorCache()
}

// List returns all memories of a user, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, content, subject, created_at, updated_at
		FROM memories WHERE user_id = ? ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			continue
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ---------- Hybrid Search ----------

// Search ranks the user's memories against a free-text query using a blend of
// vector similarity and keyword relevance, normalized to [0,1]. When no
// embedder is configured (or embedding fails) it degrades to keyword-only.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	all, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	// Vector side: cosine similarity against the in-process cache.
	vecScores := make(map[string]float64)
	haveVectors := false
	if queryVec := s.embedOne(ctx, query); queryVec != nil {
		s.vectorCacheMu.RLock()
		cache := s.vectorCache
		s.vectorCacheMu.RUnlock()
		for _, e := range cache {
			if e.userID != userID || len(e.embedding) == 0 {
				continue
			}
			if sim := cosineSimilarity(queryVec, e.embedding); sim > 0 {
				vecScores[e.id] = sim
				haveVectors = true
			}
		}
	}

	// Keyword side: pure text scoring.
	vectorWeight, keywordWeight := 0.6, 0.4
	if !haveVectors {
		vectorWeight, keywordWeight = 0, 1
	}

	hits := make([]SearchHit, 0, len(all))
	for _, m := range all {
		kw := match.Score(query, m.Content)
		score := vectorWeight*vecScores[m.ID] + keywordWeight*kw
		if score <= 0 {
			continue
		}
		hits = append(hits, SearchHit{Memory: m, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ---------- Conflict Detection ----------

// ConflictCandidates retrieves existing memories that a pending insert may
// duplicate. A candidate is a strong match when its vector similarity reaches
// floor AND the kind-specific corroboration holds: keyword overlap for
// contacts, subject substring overlap (either direction) for facts. The
// subject path intentionally skips the keyword check — factual updates
// ("3 haircuts" → "4 haircuts") share almost no literal words.
//
// Notes never conflict; an embedding failure yields no candidates so the
// write proceeds.
func (s *Store) ConflictCandidates(ctx context.Context, userID string, incoming *Memory, floor float64) ([]ConflictMatch, error) {
	if incoming.Kind != KindContact && incoming.Kind != KindFact {
		return nil, nil
	}
	if floor <= 0 || floor > 1 {
		floor = 0.85
	}

	queryVec := s.embedOne(ctx, incoming.Content)
	if queryVec == nil {
		return nil, nil
	}

	s.vectorCacheMu.RLock()
	cache := s.vectorCache
	s.vectorCacheMu.RUnlock()

	subject := strings.ToLower(strings.TrimSpace(incoming.Subject))

	var matches []ConflictMatch
	for _, e := range cache {
		if e.userID != userID || e.kind != incoming.Kind || len(e.embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryVec, e.embedding)
		if sim < floor {
			continue
		}
		existing, err := s.Get(ctx, userID, e.id)
		if err != nil {
			continue
		}

		strong := false
		switch incoming.Kind {
		case KindContact:
			strong = match.KeywordOverlap(incoming.Content, existing.Content)
		case KindFact:
			strong = subjectsOverlap(subject, existing.Subject)
		}
		if !strong {
			continue
		}

		matches = append(matches, ConflictMatch{
			Memory:        *existing,
			Similarity:    sim,
			IsStrongMatch: true,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

// subjectsOverlap reports whether either normalized subject contains the
// other. Both empty is not an overlap.
func subjectsOverlap(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// ---------- Embedding Cache ----------

// embedOne embeds a single text, consulting the persistent embedding cache
// first. Returns nil when no embedder is configured or embedding fails.
func (s *Store) embedOne(ctx context.Context, text string) []float32 {
	if s.embedder.Name() == "none" || strings.TrimSpace(text) == "" {
		return nil
	}
	if cached := s.getEmbeddingCache(text); cached != nil {
		return cached
	}

	embeddings, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		s.logger.Warn("embedding failed, degrading to keyword-only", "error", err)
		return nil
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil
	}
	s.setEmbeddingCache(text, embeddings[0])
	return embeddings[0]
}

// getEmbeddingCache looks up a cached embedding by text hash.
func (s *Store) getEmbeddingCache(text string) []float32 {
	var embJSON string
	err := s.db.QueryRow(`
		SELECT embedding FROM embedding_cache
		WHERE text_hash = ? AND provider = ? AND model = ?
	`, hashText(text), s.embedder.Name(), s.embedder.Model()).Scan(&embJSON)
	if err != nil {
		return nil
	}
	var emb []float32
	if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
		return nil
	}
	return emb
}

// setEmbeddingCache stores an embedding in the cache.
func (s *Store) setEmbeddingCache(text string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`
		INSERT INTO embedding_cache (text_hash, provider, model, embedding, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(text_hash, provider, model) DO UPDATE SET
			embedding = excluded.embedding, updated_at = CURRENT_TIMESTAMP
	`, hashText(text), s.embedder.Name(), s.embedder.Model(), string(data))
}

// refreshVectorCache loads all memory embeddings into memory.
func (s *Store) refreshVectorCache() error {
	rows, err := s.db.Query("SELECT id, user_id, kind, embedding FROM memories WHERE embedding IS NOT NULL")
	if err != nil {
		return err
	}
	defer rows.Close()

	var cache []vectorCacheEntry
	for rows.Next() {
		var e vectorCacheEntry
		var embJSON string
		if err := rows.Scan(&e.id, &e.userID, &e.kind, &embJSON); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(embJSON), &e.embedding); err != nil {
			continue
		}
		cache = append(cache, e)
	}

	s.vectorCacheMu.Lock()
	s.vectorCache = cache
	s.vectorCacheMu.Unlock()

	s.logger.Debug("memory vector cache refreshed", "entries", len(cache))
	return nil
}

// ---------- Helpers ----------

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMemory scans one memories row.
func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var created, updated string
	if err := row.Scan(&m.ID, &m.UserID, &m.Kind, &m.Content, &m.Subject, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("memory not found")
		}
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, created)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &m, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// hashText computes the SHA-256 hex hash of a text for cache keying.
func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

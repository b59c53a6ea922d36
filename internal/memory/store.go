package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/embedding"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DefaultSearchLimit is the number of results Search returns when no limit
// is given.
const DefaultSearchLimit = 4

// ErrNotFound is returned by Get when no item exists for the key.
var ErrNotFound = errors.New("memory: item not found")

// nsSep joins namespace segments in the ns_key column. Segments may not
// contain it.
const nsSep = "\x1f"

// Namespace is an ordered tuple of path segments, e.g. ("1", "memories").
type Namespace []string

func (n Namespace) String() string {
	return "(" + strings.Join(n, ", ") + ")"
}

func (n Namespace) key() string {
	if len(n) == 0 {
		return ""
	}
	return strings.Join(n, nsSep) + nsSep
}

func (n Namespace) validate() error {
	if len(n) == 0 {
		return fmt.Errorf("namespace is required")
	}
	for _, seg := range n {
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("namespace %s has an empty segment", n)
		}
		if strings.Contains(seg, nsSep) {
			return fmt.Errorf("namespace segment %q contains a reserved character", seg)
		}
	}
	return nil
}

// UserNamespace is where the agent keeps a user's memories.
func UserNamespace(userID string) Namespace {
	return Namespace{userID, "memories"}
}

// Item is a stored value. Score is only set by Search.
type Item struct {
	Namespace Namespace      `json:"namespace"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Score     float64        `json:"score,omitempty"`
}

// Config controls memory store initialization.
type Config struct {
	Path     string             // Optional DB path override (supports :memory:)
	Embedder embedding.Provider // nil disables semantic search
	Logger   *zap.Logger
}

// Store is a namespaced key/value store with keyword and semantic search.
type Store struct {
	db       *sql.DB
	embedder embedding.Provider
	logger   *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS memory_items (
    id         TEXT PRIMARY KEY,
    ns_key     TEXT NOT NULL,
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_ns_key ON memory_items(ns_key, key);

CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
    id UNINDEXED,
    key,
    value,
    content='memory_items',
    content_rowid='rowid',
    tokenize='unicode61'
);

CREATE TABLE IF NOT EXISTS memory_embeddings (
    item_id     TEXT NOT NULL REFERENCES memory_items(id) ON DELETE CASCADE,
    provider    TEXT NOT NULL,
    model       TEXT NOT NULL,
    dimensions  INTEGER NOT NULL,
    vector      BLOB NOT NULL,
    embedded_at DATETIME NOT NULL,
    PRIMARY KEY (item_id, provider, model)
);
`

// NewStore opens memory.db and initializes schema.
func NewStore(cfg Config) (*Store, error) {
	dbPath, err := ResolveDBPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve memory db path: %w", err)
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create memory data directory: %w", err)
		}
	}

	dsn := dbPath
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize memory schema: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, embedder: cfg.Embedder, logger: logger}, nil
}

// GetDBPath returns the default memory.db path.
func GetDBPath() (string, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "memory.db"), nil
}

// ResolveDBPath resolves an optional DB path override.
func ResolveDBPath(pathOverride string) (string, error) {
	pathOverride = strings.TrimSpace(pathOverride)
	if pathOverride == "" {
		return GetDBPath()
	}
	if pathOverride == ":memory:" {
		return pathOverride, nil
	}

	pathOverride = os.ExpandEnv(pathOverride)
	if strings.HasPrefix(pathOverride, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		pathOverride = filepath.Join(homeDir, pathOverride[2:])
	}

	abs, err := filepath.Abs(pathOverride)
	if err != nil {
		return "", fmt.Errorf("resolve db path %q: %w", pathOverride, err)
	}
	return abs, nil
}

// Put stores value under (ns, key), replacing any previous value.
func (s *Store) Put(ctx context.Context, ns Namespace, key string, value map[string]any) error {
	if err := ns.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	if value == nil {
		return fmt.Errorf("value is required")
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	nsJSON, err := json.Marshal([]string(ns))
	if err != nil {
		return fmt.Errorf("encode namespace: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	existing, rowID, err := getRowTx(ctx, tx, ns.key(), key)
	if err != nil {
		return err
	}

	id := ""
	if existing != nil {
		id = existing.id
		if err := syncFTSDelete(ctx, tx, rowID, existing); err != nil {
			return fmt.Errorf("sync fts delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE memory_items SET value = ?, updated_at = ? WHERE rowid = ?`,
			string(payload), now, rowID); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_embeddings WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("clear stale embeddings: %w", err)
		}
	} else {
		id = uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_items (id, ns_key, namespace, key, value, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, ns.key(), string(nsJSON), key, string(payload), now, now); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT rowid FROM memory_items WHERE id = ?`, id).Scan(&rowID); err != nil {
			return fmt.Errorf("get item rowid: %w", err)
		}
	}

	if err := syncFTSInsert(ctx, tx, rowID, &itemRow{id: id, key: key, value: string(payload)}); err != nil {
		return fmt.Errorf("sync fts insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}

	// A missing vector only degrades search to keywords for this item.
	if s.embedder != nil {
		if err := s.embedItem(ctx, id, key, value); err != nil {
			s.logger.Warn("embedding memory item failed",
				zap.String("namespace", ns.String()), zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Get returns the item stored under (ns, key) or ErrNotFound.
func (s *Store) Get(ctx context.Context, ns Namespace, key string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT namespace, key, value, created_at, updated_at
		FROM memory_items
		WHERE ns_key = ? AND key = ?`,
		ns.key(), key)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// Delete removes (ns, key). It reports whether an item existed.
func (s *Store) Delete(ctx context.Context, ns Namespace, key string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, rowID, err := getRowTx(ctx, tx, ns.key(), key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_items WHERE rowid = ?`, rowID); err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	if err := syncFTSDelete(ctx, tx, rowID, existing); err != nil {
		return false, fmt.Errorf("sync fts delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return true, nil
}

// Search finds items under prefix ranked by how well they match query.
// With an embedder it ranks by meaning and falls back to BM25 keyword
// ranking when no vectors match. An empty query lists the most recently
// updated items.
func (s *Store) Search(ctx context.Context, prefix Namespace, query string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return s.recent(ctx, prefix, limit)
	}

	if s.embedder != nil {
		items, err := s.vectorSearch(ctx, prefix, query, limit)
		if err != nil {
			s.logger.Warn("semantic search failed, using keyword search", zap.Error(err))
		} else if len(items) > 0 {
			return items, nil
		}
	}

	match := ftsQuery(query)
	if match == "" {
		return s.recent(ctx, prefix, limit)
	}
	return s.keywordSearch(ctx, prefix, match, limit)
}

// ListNamespaces returns the distinct namespaces under prefix. An empty
// prefix lists all of them.
func (s *Store) ListNamespaces(ctx context.Context, prefix Namespace) ([]Namespace, error) {
	p := prefix.key()
	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace
		FROM memory_items
		WHERE (? = '' OR substr(ns_key, 1, length(?)) = ?)
		GROUP BY ns_key
		ORDER BY ns_key`, p, p, p)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	out := []Namespace{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		var ns Namespace
		if err := json.Unmarshal([]byte(raw), &ns); err != nil {
			return nil, fmt.Errorf("decode namespace: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// Count returns the number of items stored directly in ns.
func (s *Store) Count(ctx context.Context, ns Namespace) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_items WHERE ns_key = ?`, ns.key()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) recent(ctx context.Context, prefix Namespace, limit int) ([]Item, error) {
	p := prefix.key()
	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace, key, value, created_at, updated_at
		FROM memory_items
		WHERE (? = '' OR substr(ns_key, 1, length(?)) = ?)
		ORDER BY updated_at DESC
		LIMIT ?`, p, p, p, limit)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func (s *Store) keywordSearch(ctx context.Context, prefix Namespace, match string, limit int) ([]Item, error) {
	p := prefix.key()
	rows, err := s.db.QueryContext(ctx, `
		SELECT mi.namespace, mi.key, mi.value, mi.created_at, mi.updated_at,
		       bm25(memory_fts) AS score
		FROM memory_fts
		JOIN memory_items mi ON mi.rowid = memory_fts.rowid
		WHERE memory_fts MATCH ?
		  AND (? = '' OR substr(mi.ns_key, 1, length(?)) = ?)
		ORDER BY bm25(memory_fts)
		LIMIT ?`, match, p, p, p, limit)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var rawScore float64
		item, err := scanItem(rows, &rawScore)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		// SQLite FTS5 bm25() returns negative values (more negative = more relevant).
		item.Score = -rawScore
		out = append(out, *item)
	}
	return out, rows.Err()
}

func (s *Store) vectorSearch(ctx context.Context, prefix Namespace, query string, limit int) ([]Item, error) {
	queryVec, err := embedding.EmbedOne(ctx, s.embedder, query, embedding.TaskQuery)
	if err != nil {
		return nil, err
	}

	p := prefix.key()
	rows, err := s.db.QueryContext(ctx, `
		SELECT mi.namespace, mi.key, mi.value, mi.created_at, mi.updated_at, e.vector
		FROM memory_embeddings e
		JOIN memory_items mi ON mi.id = e.item_id
		WHERE e.provider = ? AND e.model = ? AND e.dimensions = ?
		  AND (? = '' OR substr(mi.ns_key, 1, length(?)) = ?)`,
		s.embedder.Name(), s.embedder.Model(), len(queryVec), p, p, p)
	if err != nil {
		return nil, fmt.Errorf("vector search query: %w", err)
	}
	defer rows.Close()

	var matches []Item
	for rows.Next() {
		var payload []byte
		item, err := scanItem(rows, &payload)
		if err != nil {
			return nil, fmt.Errorf("scan vector search row: %w", err)
		}
		var vec []float64
		if err := json.Unmarshal(payload, &vec); err != nil {
			return nil, fmt.Errorf("decode stored vector for %s: %w", item.Key, err)
		}
		item.Score = embedding.CosineSimilarity(queryVec, vec)
		matches = append(matches, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) embedItem(ctx context.Context, id, key string, value map[string]any) error {
	vec, err := embedding.EmbedOne(ctx, s.embedder, embeddingText(key, value), embedding.TaskDocument)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encode embedding vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_embeddings(item_id, provider, model, dimensions, vector, embedded_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, provider, model) DO UPDATE SET
			dimensions = excluded.dimensions,
			vector = excluded.vector,
			embedded_at = excluded.embedded_at`,
		id, s.embedder.Name(), s.embedder.Model(), len(vec), payload, time.Now())
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// embeddingText renders a value as "field: text" lines in field order.
func embeddingText(key string, value map[string]any) string {
	fields := make([]string, 0, len(value))
	for k := range value {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var b strings.Builder
	for _, k := range fields {
		v := value[k]
		text, ok := v.(string)
		if !ok {
			data, _ := json.Marshal(v)
			text = string(data)
		}
		fmt.Fprintf(&b, "%s: %s\n", k, text)
	}
	if b.Len() == 0 {
		return key
	}
	return strings.TrimSpace(b.String())
}

// ftsQuery turns free text into an FTS5 OR query of quoted terms so that
// punctuation in user input is never parsed as query syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

type itemRow struct {
	id    string
	key   string
	value string
}

func scanItem(scanner interface{ Scan(dest ...any) error }, extra ...any) (*Item, error) {
	var item Item
	var nsRaw, valueRaw string
	dest := append([]any{&nsRaw, &item.Key, &valueRaw, &item.CreatedAt, &item.UpdatedAt}, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(nsRaw), &item.Namespace); err != nil {
		return nil, fmt.Errorf("decode namespace: %w", err)
	}
	if err := json.Unmarshal([]byte(valueRaw), &item.Value); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return &item, nil
}

func getRowTx(ctx context.Context, tx *sql.Tx, nsKey, key string) (*itemRow, int64, error) {
	var rowID int64
	var r itemRow
	err := tx.QueryRowContext(ctx, `
		SELECT rowid, id, key, value
		FROM memory_items
		WHERE ns_key = ? AND key = ?`, nsKey, key).Scan(&rowID, &r.id, &r.key, &r.value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get item: %w", err)
	}
	return &r, rowID, nil
}

func syncFTSInsert(ctx context.Context, tx *sql.Tx, rowID int64, r *itemRow) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO memory_fts(rowid, id, key, value) VALUES(?, ?, ?, ?)`,
		rowID, r.id, r.key, r.value)
	return err
}

func syncFTSDelete(ctx context.Context, tx *sql.Tx, rowID int64, r *itemRow) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO memory_fts(memory_fts, rowid, id, key, value) VALUES('delete', ?, ?, ?, ?)`,
		rowID, r.id, r.key, r.value)
	return err
}

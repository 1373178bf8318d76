package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nkhoeller/notegraph/graph"
)

func init() {
	sqlite_vec.Auto()
}

// Sentinel errors for note lookup.
var (
	// ErrNoteNotFound is returned when a note reference resolves to nothing.
	ErrNoteNotFound = errors.New("note not found")

	// ErrAmbiguousNote is returned when a note reference matches more than
	// one note.
	ErrAmbiguousNote = errors.New("ambiguous note reference")
)

// Note represents a row in the notes table. ID is the internal rowid used
// by the vector index; NoteID is the stable public identifier.
type Note struct {
	ID          int64  `json:"-"`
	NoteID      string `json:"note_id"`
	Path        string `json:"path"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	ContentHash string `json:"content_hash"`
	Frontmatter string `json:"frontmatter,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Link represents a typed directed edge between two notes.
type Link struct {
	ID       int64   `json:"-"`
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	LinkType string  `json:"link_type"`
	Strength float64 `json:"strength"`
	Origin   string  `json:"origin"`
}

// Link origins.
const (
	OriginVault      = "vault"
	OriginLLM        = "llm"
	OriginSuggestion = "suggestion"
)

// NoteHit holds a note with its retrieval score.
type NoteHit struct {
	NoteID string  `json:"note_id"`
	Path   string  `json:"path"`
	Title  string  `json:"title"`
	Score  float64 `json:"score"`
}

// LinkedNote is a link joined with the metadata of the note on the far end.
type LinkedNote struct {
	NoteID   string  `json:"note_id"`
	Path     string  `json:"path"`
	Title    string  `json:"title"`
	LinkType string  `json:"link_type"`
	Strength float64 `json:"strength"`
	Origin   string  `json:"origin"`
}

// Store wraps the SQLite database for all notegraph persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create schema
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Note operations ---

const noteColumns = "id, note_id, path, title, content, content_hash, frontmatter, created_at, updated_at"

// UpsertNote inserts or updates a note keyed by path. A fresh note_id is
// assigned on insert; updates keep the existing one. Returns the stored row
// with ID and NoteID populated.
func (s *Store) UpsertNote(ctx context.Context, n Note) (*Note, error) {
	if n.NoteID == "" {
		n.NoteID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (note_id, path, title, content, content_hash, frontmatter)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			frontmatter = excluded.frontmatter,
			updated_at = CURRENT_TIMESTAMP
	`, n.NoteID, n.Path, n.Title, n.Content, n.ContentHash, nullString(n.Frontmatter))
	if err != nil {
		return nil, err
	}

	// On conflict the existing note_id survives, so read the row back.
	return s.GetNoteByPath(ctx, n.Path)
}

// GetNote retrieves a note by its public note_id.
func (s *Store) GetNote(ctx context.Context, noteID string) (*Note, error) {
	return s.scanNote(s.db.QueryRowContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE note_id = ?", noteID))
}

// GetNoteByPath retrieves a note by its vault-relative path.
func (s *Store) GetNoteByPath(ctx context.Context, path string) (*Note, error) {
	return s.scanNote(s.db.QueryRowContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE path = ?", path))
}

// ResolveNote resolves a user-supplied reference to a single note. It tries,
// in order: exact note_id, exact path, exact title (case-insensitive), then
// path suffix match. Multiple matches at the same stage return
// ErrAmbiguousNote.
func (s *Store) ResolveNote(ctx context.Context, ref string) (*Note, error) {
	if ref == "" {
		return nil, ErrNoteNotFound
	}

	if n, err := s.GetNote(ctx, ref); err == nil {
		return n, nil
	} else if !errors.Is(err, ErrNoteNotFound) {
		return nil, err
	}

	if n, err := s.GetNoteByPath(ctx, ref); err == nil {
		return n, nil
	} else if !errors.Is(err, ErrNoteNotFound) {
		return nil, err
	}

	stages := []struct {
		name  string
		query string
		arg   string
	}{
		{"title", "SELECT " + noteColumns + " FROM notes WHERE LOWER(title) = LOWER(?)", ref},
		{"path suffix", "SELECT " + noteColumns + " FROM notes WHERE path LIKE '%' || ?", ref},
	}
	for _, stage := range stages {
		notes, err := s.queryNotes(ctx, stage.query, stage.arg)
		if err != nil {
			return nil, err
		}
		switch len(notes) {
		case 0:
			continue
		case 1:
			return &notes[0], nil
		default:
			paths := make([]string, len(notes))
			for i, n := range notes {
				paths[i] = n.Path
			}
			return nil, fmt.Errorf("%w: %q matches %s", ErrAmbiguousNote, ref, strings.Join(paths, ", "))
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrNoteNotFound, ref)
}

// ListNotes returns all notes ordered by path, without content.
func (s *Store) ListNotes(ctx context.Context) ([]Note, error) {
	return s.queryNotes(ctx, `
		SELECT id, note_id, path, title, '', content_hash, frontmatter, created_at, updated_at
		FROM notes ORDER BY path
	`)
}

// NotePaths returns every indexed path mapped to its content hash. Used by
// the scanner to detect unchanged and deleted files.
func (s *Store) NotePaths(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, content_hash FROM notes")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		paths[path] = hash
	}
	return paths, rows.Err()
}

// DeleteNote removes a note along with its links and embedding.
func (s *Store) DeleteNote(ctx context.Context, noteID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var rowid int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM notes WHERE note_id = ?", noteID).Scan(&rowid)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %q", ErrNoteNotFound, noteID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM links WHERE source_id = ? OR target_id = ?", noteID, noteID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_notes WHERE note_rowid = ?", rowid); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", rowid)
		return err
	})
}

// --- Link operations ---

// InsertLink creates or updates a link. An existing link with the same
// source, target and type is replaced.
func (s *Store) InsertLink(ctx context.Context, l Link) error {
	if l.Strength <= 0 {
		l.Strength = 1.0
	}
	if l.Origin == "" {
		l.Origin = OriginVault
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (source_id, target_id, link_type, strength, origin)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, link_type) DO UPDATE SET
			strength = excluded.strength,
			origin = excluded.origin
	`, l.SourceID, l.TargetID, l.LinkType, l.Strength, l.Origin)
	return err
}

// ReplaceLinks atomically replaces all outgoing links of a note that share
// the given origin. Links from other origins are left untouched.
func (s *Store) ReplaceLinks(ctx context.Context, sourceID, origin string, links []Link) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM links WHERE source_id = ? AND origin = ?", sourceID, origin); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO links (source_id, target_id, link_type, strength, origin)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source_id, target_id, link_type) DO UPDATE SET
				strength = excluded.strength,
				origin = excluded.origin
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, l := range links {
			if l.Strength <= 0 {
				l.Strength = 1.0
			}
			if _, err := stmt.ExecContext(ctx,
				sourceID, l.TargetID, l.LinkType, l.Strength, origin); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllLinks returns the full link table as graph edges, optionally filtered
// by link type.
func (s *Store) AllLinks(ctx context.Context, types []graph.EdgeType) ([]graph.Edge, error) {
	query := "SELECT source_id, target_id, link_type, strength FROM links"
	var args []any
	if len(types) > 0 {
		query += " WHERE link_type IN (?" + repeatPlaceholders(len(types)-1) + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []graph.Edge
	for rows.Next() {
		var e graph.Edge
		var linkType string
		if err := rows.Scan(&e.Source, &e.Target, &linkType, &e.Strength); err != nil {
			return nil, err
		}
		e.Type = graph.EdgeType(linkType)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Backlinks returns the notes that link to the given note.
func (s *Store) Backlinks(ctx context.Context, noteID string, types []graph.EdgeType) ([]LinkedNote, error) {
	return s.linkedNotes(ctx, noteID, "target_id", "source_id", types)
}

// OutgoingLinks returns the notes the given note links to.
func (s *Store) OutgoingLinks(ctx context.Context, noteID string, types []graph.EdgeType) ([]LinkedNote, error) {
	return s.linkedNotes(ctx, noteID, "source_id", "target_id", types)
}

func (s *Store) linkedNotes(ctx context.Context, noteID, matchCol, farCol string, types []graph.EdgeType) ([]LinkedNote, error) {
	query := fmt.Sprintf(`
		SELECT l.%s, n.path, n.title, l.link_type, l.strength, l.origin
		FROM links l
		JOIN notes n ON n.note_id = l.%s
		WHERE l.%s = ?
	`, farCol, farCol, matchCol)
	args := []any{noteID}
	if len(types) > 0 {
		query += " AND l.link_type IN (?" + repeatPlaceholders(len(types)-1) + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY n.path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var linked []LinkedNote
	for rows.Next() {
		var ln LinkedNote
		if err := rows.Scan(&ln.NoteID, &ln.Path, &ln.Title, &ln.LinkType, &ln.Strength, &ln.Origin); err != nil {
			return nil, err
		}
		linked = append(linked, ln)
	}
	return linked, rows.Err()
}

// LinkedNoteIDs returns the set of notes connected to the given note by any
// link in either direction.
func (s *Store) LinkedNoteIDs(ctx context.Context, noteID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id FROM links WHERE source_id = ?
		UNION
		SELECT source_id FROM links WHERE target_id = ?
	`, noteID, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// --- Embedding operations ---

// InsertEmbedding stores a vector embedding for a note rowid.
func (s *Store) InsertEmbedding(ctx context.Context, noteRowID int64, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_notes (note_rowid, embedding) VALUES (?, ?)",
		noteRowID, serializeFloat32(embedding))
	return err
}

// HasEmbedding checks whether a note rowid has a stored embedding.
func (s *Store) HasEmbedding(ctx context.Context, noteRowID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vec_notes WHERE note_rowid = ?", noteRowID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// VectorSearch performs a KNN search returning the top-k nearest notes.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int) ([]NoteHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.note_id, n.path, n.title, v.distance
		FROM vec_notes v
		JOIN notes n ON n.id = v.note_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []NoteHit
	for rows.Next() {
		var r NoteHit
		var distance float64
		if err := rows.Scan(&r.NoteID, &r.Path, &r.Title, &distance); err != nil {
			return nil, err
		}
		// Convert distance to similarity score (1 - distance for cosine)
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// SimilarNotes finds the notes nearest to the given note's own embedding,
// excluding the note itself.
func (s *Store) SimilarNotes(ctx context.Context, noteID string, k int) ([]NoteHit, error) {
	var embedding []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT v.embedding FROM vec_notes v
		JOIN notes n ON n.id = v.note_rowid
		WHERE n.note_id = ?
	`, noteID).Scan(&embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.note_id, n.path, n.title, v.distance
		FROM vec_notes v
		JOIN notes n ON n.id = v.note_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, embedding, k+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []NoteHit
	for rows.Next() {
		var r NoteHit
		var distance float64
		if err := rows.Scan(&r.NoteID, &r.Path, &r.Title, &distance); err != nil {
			return nil, err
		}
		if r.NoteID == noteID {
			continue
		}
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, rows.Err()
}

// SearchNotes performs a full-text search using FTS5 BM25 ranking.
func (s *Store) SearchNotes(ctx context.Context, query string, limit int) ([]NoteHit, error) {
	if query == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.note_id, n.path, n.title, f.rank
		FROM notes_fts f
		JOIN notes n ON n.id = f.rowid
		WHERE notes_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []NoteHit
	for rows.Next() {
		var r NoteHit
		var rank float64
		if err := rows.Scan(&r.NoteID, &r.Path, &r.Title, &rank); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better), convert to positive score
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Stats ---

// Stats holds counts of key database objects.
type Stats struct {
	Notes      int `json:"notes"`
	Links      int `json:"links"`
	Embeddings int `json:"embeddings"`
}

// Stats returns counts of notes, links and embeddings.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM notes", &stats.Notes},
		{"SELECT COUNT(*) FROM links", &stats.Links},
		{"SELECT COUNT(*) FROM vec_notes", &stats.Embeddings},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) scanNote(row *sql.Row) (*Note, error) {
	n := &Note{}
	var frontmatter sql.NullString
	err := row.Scan(&n.ID, &n.NoteID, &n.Path, &n.Title, &n.Content,
		&n.ContentHash, &frontmatter, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	n.Frontmatter = frontmatter.String
	return n, nil
}

func (s *Store) queryNotes(ctx context.Context, query string, args ...any) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var frontmatter sql.NullString
		if err := rows.Scan(&n.ID, &n.NoteID, &n.Path, &n.Title, &n.Content,
			&n.ContentHash, &frontmatter, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		n.Frontmatter = frontmatter.String
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func repeatPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/SarangaVP/Car-Damage-Caption/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullScore converts an optional score for SQLite storage.
func nullScore(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

// scoreFromNull converts a stored nullable score back to a pointer.
func scoreFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// SaveCaption inserts a reviewed caption, replacing any earlier review of the
// same image. Saving the same image twice keeps only the latest review.
func (s *SQLiteStore) SaveCaption(ctx context.Context, c *models.Caption) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	if c.ReviewedAt.IsZero() {
		c.ReviewedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captions (id, image_path, generated_caption, manual_caption, generated_score, generated_explanation, manual_score, manual_explanation, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(image_path) DO UPDATE SET
			generated_caption=excluded.generated_caption,
			manual_caption=excluded.manual_caption,
			generated_score=excluded.generated_score,
			generated_explanation=excluded.generated_explanation,
			manual_score=excluded.manual_score,
			manual_explanation=excluded.manual_explanation,
			reviewed_at=excluded.reviewed_at`,
		c.ID, c.ImagePath, c.GeneratedCaption, c.ManualCaption,
		nullScore(c.GeneratedScore), c.GeneratedExplanation,
		nullScore(c.ManualScore), c.ManualExplanation, c.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("save caption: %w", err)
	}
	return nil
}

// GetCaption returns the review for one image by its relative path.
func (s *SQLiteStore) GetCaption(ctx context.Context, imagePath string) (*models.Caption, error) {
	c := &models.Caption{}
	var genScore, manScore sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, image_path, generated_caption, manual_caption, generated_score, generated_explanation, manual_score, manual_explanation, reviewed_at
		FROM captions WHERE image_path = ?`, imagePath,
	).Scan(&c.ID, &c.ImagePath, &c.GeneratedCaption, &c.ManualCaption,
		&genScore, &c.GeneratedExplanation, &manScore, &c.ManualExplanation, &c.ReviewedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("caption not found: %s", imagePath)
	}
	if err != nil {
		return nil, fmt.Errorf("get caption: %w", err)
	}

	c.GeneratedScore = scoreFromNull(genScore)
	c.ManualScore = scoreFromNull(manScore)
	return c, nil
}

// ListCaptions returns all reviewed captions in review order.
func (s *SQLiteStore) ListCaptions(ctx context.Context) ([]*models.Caption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, image_path, generated_caption, manual_caption, generated_score, generated_explanation, manual_score, manual_explanation, reviewed_at
		FROM captions ORDER BY reviewed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list captions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var captions []*models.Caption
	for rows.Next() {
		c := &models.Caption{}
		var genScore, manScore sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ImagePath, &c.GeneratedCaption, &c.ManualCaption,
			&genScore, &c.GeneratedExplanation, &manScore, &c.ManualExplanation, &c.ReviewedAt); err != nil {
			return nil, fmt.Errorf("scan caption: %w", err)
		}
		c.GeneratedScore = scoreFromNull(genScore)
		c.ManualScore = scoreFromNull(manScore)
		captions = append(captions, c)
	}
	return captions, rows.Err()
}

// ReviewedPaths returns the set of image paths that already have a saved
// review. The image library subtracts this set to build the pending queue.
func (s *SQLiteStore) ReviewedPaths(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT image_path FROM captions")
	if err != nil {
		return nil, fmt.Errorf("reviewed paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	paths := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths[p] = true
	}
	return paths, rows.Err()
}

// CountCaptions returns the number of reviewed captions.
func (s *SQLiteStore) CountCaptions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM captions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count captions: %w", err)
	}
	return n, nil
}

// ClearCaptions deletes the whole dataset and returns how many rows went.
func (s *SQLiteStore) ClearCaptions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM captions")
	if err != nil {
		return 0, fmt.Errorf("clear captions: %w", err)
	}
	return res.RowsAffected()
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SarangaVP/Car-Damage-Caption/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(n int) *int { return &n }

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestSaveCaption_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &models.Caption{
		ImagePath:            "front/a.jpg",
		GeneratedCaption:     "dented bumper",
		ManualCaption:        "scratched door",
		GeneratedScore:       intPtr(4),
		GeneratedExplanation: "accurate",
		ManualScore:          intPtr(5),
		ManualExplanation:    "precise",
	}
	require.NoError(t, s.SaveCaption(ctx, c))
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.ReviewedAt.IsZero())

	got, err := s.GetCaption(ctx, "front/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "dented bumper", got.GeneratedCaption)
	assert.Equal(t, "scratched door", got.ManualCaption)
	require.NotNil(t, got.GeneratedScore)
	assert.Equal(t, 4, *got.GeneratedScore)
	require.NotNil(t, got.ManualScore)
	assert.Equal(t, 5, *got.ManualScore)
	assert.Equal(t, "accurate", got.GeneratedExplanation)
	assert.Equal(t, "precise", got.ManualExplanation)
}

func TestSaveCaption_NilScores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &models.Caption{
		ImagePath:        "b.jpg",
		GeneratedCaption: "clean exterior",
	}
	require.NoError(t, s.SaveCaption(ctx, c))

	got, err := s.GetCaption(ctx, "b.jpg")
	require.NoError(t, err)
	assert.Nil(t, got.GeneratedScore)
	assert.Nil(t, got.ManualScore)
	assert.Empty(t, got.ManualCaption)
}

func TestSaveCaption_ReplacesEarlierReview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCaption(ctx, &models.Caption{
		ImagePath:        "c.jpg",
		GeneratedCaption: "first pass",
	}))
	require.NoError(t, s.SaveCaption(ctx, &models.Caption{
		ImagePath:        "c.jpg",
		GeneratedCaption: "second pass",
		ManualCaption:    "operator text",
	}))

	got, err := s.GetCaption(ctx, "c.jpg")
	require.NoError(t, err)
	assert.Equal(t, "second pass", got.GeneratedCaption)
	assert.Equal(t, "operator text", got.ManualCaption)

	n, err := s.CountCaptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetCaption_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCaption(context.Background(), "missing.jpg")
	assert.ErrorContains(t, err, "not found")
}

func TestListCaptions_ReviewOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, path := range []string{"one.jpg", "two.jpg", "three.jpg"} {
		require.NoError(t, s.SaveCaption(ctx, &models.Caption{
			ImagePath:        path,
			GeneratedCaption: "caption",
			ReviewedAt:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	captions, err := s.ListCaptions(ctx)
	require.NoError(t, err)
	require.Len(t, captions, 3)
	assert.Equal(t, "one.jpg", captions[0].ImagePath)
	assert.Equal(t, "three.jpg", captions[2].ImagePath)
}

func TestReviewedPaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	paths, err := s.ReviewedPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)

	require.NoError(t, s.SaveCaption(ctx, &models.Caption{
		ImagePath:        "done.jpg",
		GeneratedCaption: "caption",
	}))

	paths, err = s.ReviewedPaths(ctx)
	require.NoError(t, err)
	assert.True(t, paths["done.jpg"])
	assert.False(t, paths["pending.jpg"])
}

func TestClearCaptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, path := range []string{"x.jpg", "y.jpg"} {
		require.NoError(t, s.SaveCaption(ctx, &models.Caption{
			ImagePath:        path,
			GeneratedCaption: "caption",
		}))
	}

	n, err := s.ClearCaptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := s.CountCaptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

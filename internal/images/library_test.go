package images

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	l, err := NewLibrary(filepath.Join(t.TempDir(), "CarData"))
	require.NoError(t, err)
	return l
}

func writeImage(t *testing.T, l *Library, rel string) {
	t.Helper()
	abs := filepath.Join(l.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte("not-really-jpeg"), 0644))
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("a.jpg"))
	assert.True(t, IsImage("b.JPEG"))
	assert.True(t, IsImage("c.png"))
	assert.False(t, IsImage("notes.txt"))
	assert.False(t, IsImage("archive.zip"))
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "image/png", MediaType("x.png"))
	assert.Equal(t, "image/jpeg", MediaType("x.jpg"))
	assert.Equal(t, "image/jpeg", MediaType("x.jpeg"))
}

func TestPending_SkipsReviewedAndNonImages(t *testing.T) {
	l := newTestLibrary(t)
	writeImage(t, l, "front/a.jpg")
	writeImage(t, l, "rear/b.png")
	writeImage(t, l, "notes.txt")

	pending, err := l.Pending(map[string]bool{"rear/b.png": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"front/a.jpg"}, pending)
}

func TestPending_SortedStableHead(t *testing.T) {
	l := newTestLibrary(t)
	writeImage(t, l, "z.jpg")
	writeImage(t, l, "a.jpg")
	writeImage(t, l, "m/n.jpg")

	pending, err := l.Pending(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "m/n.jpg", "z.jpg"}, pending)
}

func TestRead(t *testing.T) {
	l := newTestLibrary(t)
	writeImage(t, l, "front/a.jpg")

	data, mediaType, err := l.Read("front/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "not-really-jpeg", string(data))
	assert.Equal(t, "image/jpeg", mediaType)
}

func TestRead_RejectsTraversal(t *testing.T) {
	l := newTestLibrary(t)

	_, _, err := l.Read("../../etc/passwd")
	if err == nil {
		t.Fatal("expected error for traversal path")
	}
	// The resolved path must stay under the root even after cleaning.
	abs, err := l.Path("../escape.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(abs, l.Root()))
}

func TestSaveUpload_CreatesNestedDirs(t *testing.T) {
	l := newTestLibrary(t)

	err := l.SaveUpload("batch1/side/c.jpg", strings.NewReader("bytes"))
	require.NoError(t, err)

	data, _, err := l.Read("batch1/side/c.jpg")
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))
}

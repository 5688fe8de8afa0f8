package archive_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/finai-cli/internal/archive"
	"github.com/KaramelBytes/finai-cli/internal/report"
)

func TestSaveLoadList(t *testing.T) {
	root := filepath.Join(t.TempDir(), "reports")
	s := archive.New(root)

	older, err := s.Save(report.Metadata{Dataset: "a.csv", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, "<p>a</p>")
	require.NoError(t, err)
	newer, err := s.Save(report.Metadata{Dataset: "b.csv", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}, "<p>b</p>")
	require.NoError(t, err)
	require.NotEmpty(t, older.ID)
	assert.NotEqual(t, older.ID, newer.ID)

	meta, html, err := s.Load(older.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.csv", meta.Dataset)
	assert.Equal(t, older.ID, meta.ID)
	assert.Equal(t, "<p>a</p>", html)

	// stray files and directories are ignored
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-report"), 0o755))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.csv", list[0].Dataset)
	assert.Equal(t, "a.csv", list[1].Dataset)
}

func TestNotFound(t *testing.T) {
	s := archive.New(t.TempDir())
	_, _, err := s.Load("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, archive.ErrNotFound)
	_, err = s.Meta("../../etc")
	assert.ErrorIs(t, err, archive.ErrNotFound)
}

func TestListMissingRoot(t *testing.T) {
	list, err := archive.New(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveWithoutRoot(t *testing.T) {
	_, err := archive.New("").Save(report.Metadata{}, "")
	assert.Error(t, err)
}

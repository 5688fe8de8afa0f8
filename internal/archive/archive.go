// Package archive persists finished reports on disk, one directory per
// report id holding report.json and report.html.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/KaramelBytes/finai-cli/internal/report"
	"github.com/KaramelBytes/finai-cli/internal/utils"
)

const (
	metaFileName = "report.json"
	htmlFileName = "report.html"
)

// ErrNotFound is returned for an unknown report id.
var ErrNotFound = errors.New("report not found")

// Store is a report archive rooted at a directory.
type Store struct {
	root string
}

// New returns a store rooted at dir. The directory is created on first save.
func New(dir string) *Store { return &Store{root: dir} }

// Root returns the archive directory.
func (s *Store) Root() string { return s.root }

// Save assigns an id to meta and writes both files atomically.
func (s *Store) Save(meta report.Metadata, html string) (report.Metadata, error) {
	if s.root == "" {
		return meta, errors.New("archive root directory not set")
	}
	meta.ID = uuid.NewString()
	dir := filepath.Join(s.root, meta.ID)
	if err := utils.EnsureDir(dir); err != nil {
		return meta, fmt.Errorf("ensure dir: %w", err)
	}
	if err := utils.SafeWriteFile(filepath.Join(dir, htmlFileName), []byte(html)); err != nil {
		return meta, err
	}
	data, err := utils.PrettyJSON(meta)
	if err != nil {
		return meta, err
	}
	if err := utils.SafeWriteFile(filepath.Join(dir, metaFileName), data); err != nil {
		return meta, err
	}
	return meta, nil
}

// dir validates id and returns its directory.
func (s *Store) dir(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return filepath.Join(s.root, id), nil
}

// Meta loads the metadata of one report.
func (s *Store) Meta(id string) (report.Metadata, error) {
	var meta report.Metadata
	dir, err := s.dir(id)
	if err != nil {
		return meta, err
	}
	b, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return meta, fmt.Errorf("read report: %w", err)
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("parse report %s: %w", id, err)
	}
	return meta, nil
}

// Load returns the metadata and HTML of one report.
func (s *Store) Load(id string) (report.Metadata, string, error) {
	meta, err := s.Meta(id)
	if err != nil {
		return meta, "", err
	}
	dir, _ := s.dir(id)
	b, err := os.ReadFile(filepath.Join(dir, htmlFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return meta, "", fmt.Errorf("read report: %w", err)
	}
	return meta, string(b), nil
}

// List returns every archived report, newest first. Unreadable entries are
// skipped.
func (s *Store) List() ([]report.Metadata, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list reports: %w", err)
	}
	out := make([]report.Metadata, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.Meta(e.Name())
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

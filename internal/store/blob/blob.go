// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package blob persists chapter bodies, cover images and assembled artifacts
on the local filesystem.

The catalog database stores only references; the bytes live under the data
directory in a fixed layout:

	<root>/books/<book_uuid>/chapters/0000.txt
	<root>/books/<book_uuid>/cover.jpg
	<root>/epubs/<title>_<short_uuid>.epub
	<root>/txts/<title>_<short_uuid>.txt

Writes go through a temp file plus rename so a crash never leaves a partial
chapter behind a valid reference.
*/
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wenqiu/shuhai/pkg/sanitize"
	"github.com/wenqiu/shuhai/pkg/uuid"
)

// ErrMissing reports a reference whose bytes are not on disk, typically
// after an out-of-band deletion or a restore onto a fresh volume.
var ErrMissing = errors.New("blob: content missing")

// Kind selects an artifact directory.
type Kind string

const (
	KindEpub Kind = "epub"
	KindTxt  Kind = "txt"
)

// Store is a filesystem blob store rooted at a single data directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir and creates the directory skeleton.
func New(dir string) (*Store, error) {
	store := &Store{root: dir}

	for _, sub := range []string{"books", "epubs", "txts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("blob: create %s dir: %w", sub, err)
		}
	}

	return store, nil
}

// Root returns the data directory the store is rooted at.
func (s *Store) Root() string { return s.root }

// # Chapters

/*
WriteChapter persists one chapter body and returns its content reference,
a root-relative path recorded in the catalog.

The write is idempotent: rewriting an index replaces the bytes and returns
the same reference.
*/
func (s *Store) WriteChapter(bookID string, index int, text string) (string, error) {
	ref := chapterRef(bookID, index)
	path := filepath.Join(s.root, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("blob: create chapter dir: %w", err)
	}

	if err := atomicWrite(path, []byte(text)); err != nil {
		return "", fmt.Errorf("blob: write chapter %d: %w", index, err)
	}

	return ref, nil
}

// ReadChapter loads a chapter body by its content reference.
func (s *Store) ReadChapter(ref string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissing, ref)
		}
		return "", fmt.Errorf("blob: read chapter: %w", err)
	}
	return string(data), nil
}

// HasChapter reports whether the referenced bytes exist on disk.
func (s *Store) HasChapter(ref string) bool {
	if ref == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(ref)))
	return err == nil
}

// chapterRef builds the root-relative chapter path, keyed by the 0-based
// catalog index.
func chapterRef(bookID string, index int) string {
	return fmt.Sprintf("books/%s/chapters/%04d.txt", bookID, index)
}

// # Covers

// WriteCover persists a book cover image and returns its content reference.
func (s *Store) WriteCover(bookID string, data []byte) (string, error) {
	ref := fmt.Sprintf("books/%s/cover.jpg", bookID)
	path := filepath.Join(s.root, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("blob: create book dir: %w", err)
	}

	if err := atomicWrite(path, data); err != nil {
		return "", fmt.Errorf("blob: write cover: %w", err)
	}

	return ref, nil
}

// ReadCover loads a cover image by its content reference.
func (s *Store) ReadCover(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, ref)
		}
		return nil, fmt.Errorf("blob: read cover: %w", err)
	}
	return data, nil
}

// # Artifacts

/*
ArtifactPath returns the absolute output path for an assembled artifact.

The filename combines the sanitized book title with a short UUID fragment,
keeping names readable while avoiding collisions between same-titled books.
*/
func (s *Store) ArtifactPath(kind Kind, bookID, title string) string {
	name := fmt.Sprintf("%s_%s.%s", sanitize.Filename(title), uuid.Short(bookID), kind)
	return filepath.Join(s.root, string(kind)+"s", name)
}

// HasArtifact reports whether an artifact file exists at path.
func (s *Store) HasArtifact(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// # Deletion

// DeleteBook removes a book's chapter and cover tree plus its artifacts.
// Missing paths are not an error.
func (s *Store) DeleteBook(bookID, title string) error {
	if err := os.RemoveAll(filepath.Join(s.root, "books", bookID)); err != nil {
		return fmt.Errorf("blob: delete book tree: %w", err)
	}

	for _, kind := range []Kind{KindEpub, KindTxt} {
		path := s.ArtifactPath(kind, bookID, title)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("blob: delete artifact: %w", err)
		}
	}

	return nil
}

// DeleteArtifacts removes only the assembled artifacts for a book, used
// when re-downloads invalidate cached output.
func (s *Store) DeleteArtifacts(bookID, title string) {
	for _, kind := range []Kind{KindEpub, KindTxt} {
		os.Remove(s.ArtifactPath(kind, bookID, title))
	}
}

// atomicWrite lands data at path via a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}

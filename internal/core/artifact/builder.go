// Copyright (c) 2026 Shuhai. All rights reserved.

package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/store/blob"
)

// buildTimeout bounds one background assembly run.
const buildTimeout = 10 * time.Minute

// # Builder Implementation

/*
Builder assembles artifacts and tracks their build state in-process.

Description: Ensure is the single entry point: it returns a ready state
when the artifact on disk still matches the completed chapter count, and
otherwise starts (or joins) a background build and reports building. The
per-(book, kind) singleflight group keeps concurrent download requests
from racing duplicate builds.
*/
type Builder struct {
	books    book.BookRepository
	chapters book.ChapterRepository
	blobs    *blob.Store
	meta     Metadata
	logger   *slog.Logger

	group  singleflight.Group
	mu     sync.Mutex
	states map[string]*State
}

// NewBuilder constructs the artifact [Builder].
func NewBuilder(books book.BookRepository, chapters book.ChapterRepository, blobs *blob.Store, meta Metadata, logger *slog.Logger) *Builder {
	if meta.Language == "" {
		meta.Language = "zh-CN"
	}

	return &Builder{
		books:    books,
		chapters: chapters,
		blobs:    blobs,
		meta:     meta,
		logger:   logger,
		states:   make(map[string]*State),
	}
}

func stateKey(bookID string, kind blob.Kind) string {
	return bookID + ":" + string(kind)
}

/*
Ensure returns the build state for (book, kind), starting a background
build when the cached artifact is missing or stale.

Parameters:
  - context: context.Context (Scopes the catalog reads only; the build
    itself runs detached)
  - bookID: string (UUID)
  - kind: blob.Kind (epub or txt)

Returns:
  - *State: Ready with a path, building, or failed with the last error
  - error: apperr.NotFound for an unknown book, validation when nothing
    is downloaded yet
*/
func (builder *Builder) Ensure(context context.Context, bookID string, kind blob.Kind) (*State, error) {
	owner, err := builder.books.FindByID(context, bookID)
	if err != nil {
		return nil, err
	}

	_, completed, err := builder.chapters.CountByBook(context, bookID)
	if err != nil {
		return nil, err
	}
	if completed == 0 {
		return nil, apperr.ValidationError("No downloaded chapters to assemble")
	}

	path := builder.blobs.ArtifactPath(kind, owner.ID, owner.Title)

	builder.mu.Lock()
	state := builder.states[stateKey(bookID, kind)]
	if state != nil {
		if state.Status == StatusBuilding {
			snapshot := *state
			builder.mu.Unlock()
			return &snapshot, nil
		}
		if state.Status == StatusReady && state.Chapters == completed && builder.blobs.HasArtifact(path) {
			snapshot := *state
			builder.mu.Unlock()
			return &snapshot, nil
		}
	}

	// Stale, failed or unknown: flip to building and launch.
	fresh := &State{
		BookID:    bookID,
		Kind:      kind,
		Status:    StatusBuilding,
		Path:      path,
		UpdatedAt: time.Now(),
	}
	builder.states[stateKey(bookID, kind)] = fresh
	builder.mu.Unlock()

	go builder.runBuild(owner, kind, path, completed)

	snapshot := *fresh
	return &snapshot, nil
}

// State returns the tracked state without triggering a build, nil when
// the pair has never been requested this process lifetime.
func (builder *Builder) State(bookID string, kind blob.Kind) *State {
	builder.mu.Lock()
	defer builder.mu.Unlock()

	if state, ok := builder.states[stateKey(bookID, kind)]; ok {
		snapshot := *state
		return &snapshot
	}
	return nil
}

// runBuild executes one assembly behind the singleflight group.
func (builder *Builder) runBuild(owner *book.Book, kind blob.Kind, path string, expected int) {
	_, err, _ := builder.group.Do(stateKey(owner.ID, kind), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
		defer cancel()

		return nil, builder.assemble(ctx, owner, kind, path)
	})

	builder.mu.Lock()
	defer builder.mu.Unlock()

	state := builder.states[stateKey(owner.ID, kind)]
	if state == nil {
		return
	}

	state.UpdatedAt = time.Now()
	if err != nil {
		state.Status = StatusFailed
		state.Error = err.Error()
		builder.logger.Error("artifact_build_failed",
			slog.String("book_id", owner.ID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}

	state.Status = StatusReady
	state.Chapters = expected
	state.Error = ""

	builder.logger.Info("artifact_built",
		slog.String("book_id", owner.ID),
		slog.String("kind", string(kind)),
		slog.Int("chapters", expected),
	)
}

// assemble loads the completed chapters and writes one artifact file.
func (builder *Builder) assemble(ctx context.Context, owner *book.Book, kind blob.Kind, path string) error {
	chapters, err := builder.chapters.ListByBook(ctx, owner.ID)
	if err != nil {
		return err
	}

	var sections []section
	for _, chapter := range chapters {
		if chapter.Status != book.ChapterCompleted || chapter.ContentRef == "" {
			continue
		}
		body, err := builder.blobs.ReadChapter(chapter.ContentRef)
		if err != nil {
			return fmt.Errorf("artifact: load chapter %d: %w", chapter.Index, err)
		}
		sections = append(sections, section{
			Index:  chapter.Index,
			Title:  chapter.Title,
			Volume: chapter.VolumeName,
			Body:   body,
		})
	}

	if len(sections) == 0 {
		return fmt.Errorf("artifact: no readable chapters for %s", owner.ID)
	}

	switch kind {
	case blob.KindEpub:
		var cover []byte
		if owner.CoverRef != "" {
			// A missing cover image degrades to a coverless book.
			cover, _ = builder.blobs.ReadCover(owner.CoverRef)
		}
		return writeEpub(path, owner, sections, cover, builder.meta)
	case blob.KindTxt:
		return writeTxt(path, sections)
	default:
		return fmt.Errorf("artifact: unknown kind %q", kind)
	}
}

// section is one completed chapter staged for assembly.
type section struct {
	Index  int
	Title  string
	Volume string
	Body   string
}

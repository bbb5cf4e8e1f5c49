// Copyright (c) 2026 Shuhai. All rights reserved.

package book

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/platform/validate"
	"github.com/wenqiu/shuhai/internal/source"
	"github.com/wenqiu/shuhai/internal/store/blob"
	"github.com/wenqiu/shuhai/pkg/uuid"
)

// # Service Layer

// Service orchestrates the business logic for the book catalog.
type Service struct {
	books    BookRepository
	chapters ChapterRepository
	sources  source.Factory
	blobs    *blob.Store
	logger   *slog.Logger
}

// NewService constructs a new [Service] with its required collaborators.
func NewService(books BookRepository, chapters ChapterRepository, sources source.Factory, blobs *blob.Store, logger *slog.Logger) *Service {
	return &Service{
		books:    books,
		chapters: chapters,
		sources:  sources,
		blobs:    blobs,
		logger:   logger,
	}
}

// # Discovery

/*
Search proxies a keyword search to one provider.

Parameters:
  - context: context.Context
  - provider: source.Provider
  - keyword: string
  - page: int (1-based)

Returns:
  - *source.SearchResult: One page of provider hits
  - error: Validation or upstream failures
*/
func (service *Service) Search(context context.Context, provider source.Provider, keyword string, page int) (*source.SearchResult, error) {
	validator := &validate.Validator{}
	validator.Required(FieldKeyword, keyword)
	validator.Custom(FieldProvider, !provider.Valid(), "Unknown provider")

	if err := validator.Err(); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}

	client, err := service.sources(provider)
	if err != nil {
		return nil, apperr.ValidationError(err.Error())
	}

	result, err := client.Search(context, keyword, page)
	if err != nil {
		return nil, mapSourceError(err)
	}

	return result, nil
}

// # Catalog Lifecycle

/*
Add ingests a book: fetches provider metadata and the full TOC, then
persists the catalog entry in pending state.

Description: Adding a book that is already in the library is idempotent
and returns the existing entry.

Parameters:
  - context: context.Context
  - provider: source.Provider
  - providerBookID: string

Returns:
  - *Book: The created (or existing) catalog entry
  - error: Validation, upstream or persistence failures
*/
func (service *Service) Add(context context.Context, provider source.Provider, providerBookID string) (*Book, error) {
	validator := &validate.Validator{}
	validator.Required(FieldProviderBookID, providerBookID)
	validator.Custom(FieldProvider, !provider.Valid(), "Unknown provider")

	if err := validator.Err(); err != nil {
		return nil, err
	}

	// Idempotency: an existing entry short-circuits the upstream fetches
	existing, err := service.books.FindByProviderKey(context, string(provider), providerBookID)
	if err == nil {
		return existing, nil
	}

	var appErr *apperr.AppError
	if !errors.As(err, &appErr) || appErr.HTTPStatus != http.StatusNotFound {
		return nil, err
	}

	client, err := service.sources(provider)
	if err != nil {
		return nil, apperr.ValidationError(err.Error())
	}

	detail, err := client.GetBookDetail(context, providerBookID)
	if err != nil {
		return nil, mapSourceError(err)
	}

	catalog, err := client.GetChapterList(context, providerBookID)
	if err != nil {
		return nil, mapSourceError(err)
	}

	book := &Book{
		ID:               uuid.New(),
		Provider:         provider,
		ProviderBookID:   providerBookID,
		Title:            detail.Title,
		Author:           detail.Author,
		CoverURL:         detail.CoverURL,
		Abstract:         detail.Abstract,
		StatusText:       detail.StatusText,
		LastChapterTitle: detail.LastChapterTitle,
		LastUpdateUnix:   detail.LastUpdateUnix,
		TotalChapters:    catalog.TotalChapters,
		DownloadStatus:   DownloadPending,
	}

	if err := service.books.Create(context, book); err != nil {
		return nil, err
	}

	if err := service.chapters.UpsertCatalog(context, book.ID, tocToChapters(book.ID, catalog)); err != nil {
		return nil, err
	}

	service.logger.Info("book_added",
		slog.String("book_id", book.ID),
		slog.String("provider", string(provider)),
		slog.String("title", book.Title),
		slog.Int("total_chapters", book.TotalChapters),
	)

	return book, nil
}

/*
List retrieves a filtered page of the catalog.
*/
func (service *Service) List(context context.Context, filter Filter, limit, offset int) ([]*Book, int, error) {
	return service.books.List(context, filter, limit, offset)
}

/*
Get retrieves one book by its ID.
*/
func (service *Service) Get(context context.Context, id string) (*Book, error) {
	return service.books.FindByID(context, id)
}

/*
ListChapters retrieves the stored TOC of a book.
*/
func (service *Service) ListChapters(context context.Context, bookID string) ([]*Chapter, error) {
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return nil, err
	}
	return service.chapters.ListByBook(context, bookID)
}

/*
Delete removes a book: the catalog row (cascading chapters, tasks and
reader state) and, when deleteFiles is set, every stored blob and
artifact.
*/
func (service *Service) Delete(context context.Context, id string, deleteFiles bool) error {
	book, err := service.books.FindByID(context, id)
	if err != nil {
		return err
	}

	if err := service.books.Delete(context, id); err != nil {
		return err
	}

	// Blob cleanup is best-effort: the catalog row is already gone and a
	// stray directory is harmless.
	if deleteFiles {
		if err := service.blobs.DeleteBook(book.ID, book.Title); err != nil {
			service.logger.Warn("book_blob_cleanup_failed",
				slog.String("book_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	service.logger.Info("book_deleted",
		slog.String("book_id", id),
		slog.String("title", book.Title),
		slog.Bool("files_deleted", deleteFiles),
	)

	return nil
}

// # Per-Book Statistics

// BookStatus is the lightweight polling view of one book.
type BookStatus struct {
	Book      *Book `json:"book"`
	Total     int   `json:"total"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Pending   int   `json:"pending"`
}

/*
Status returns the book with its live chapter-state counts.
*/
func (service *Service) Status(context context.Context, id string) (*BookStatus, error) {
	book, err := service.books.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	chapters, err := service.chapters.ListByBook(context, id)
	if err != nil {
		return nil, err
	}

	status := &BookStatus{Book: book, Total: len(chapters)}
	for _, chapter := range chapters {
		switch chapter.Status {
		case ChapterCompleted:
			status.Completed++
		case ChapterFailed:
			status.Failed++
		default:
			status.Pending++
		}
	}

	return status, nil
}

// Segment is one bucket of the chapter-state heatmap.
type Segment struct {
	StartIndex int `json:"start_index"`
	EndIndex   int `json:"end_index"` // inclusive
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
}

/*
ChapterSummary buckets the TOC into fixed-size segments with per-state
counts, for a heatmap-style download overview.

Parameters:
  - context: context.Context
  - id: string (UUID)
  - segmentSize: int (Chapters per bucket; clamped to >= 1, default 100)

Returns:
  - []*Segment: Index-ordered buckets
  - error: apperr.NotFound for an unknown book
*/
func (service *Service) ChapterSummary(context context.Context, id string, segmentSize int) ([]*Segment, error) {
	if _, err := service.books.FindByID(context, id); err != nil {
		return nil, err
	}
	if segmentSize < 1 {
		segmentSize = 100
	}

	chapters, err := service.chapters.ListByBook(context, id)
	if err != nil {
		return nil, err
	}

	segments := make([]*Segment, 0, len(chapters)/segmentSize+1)
	var current *Segment

	for _, chapter := range chapters {
		bucket := chapter.Index / segmentSize
		if current == nil || bucket != current.StartIndex/segmentSize {
			current = &Segment{
				StartIndex: bucket * segmentSize,
				EndIndex:   bucket*segmentSize + segmentSize - 1,
			}
			segments = append(segments, current)
		}

		switch chapter.Status {
		case ChapterCompleted:
			current.Completed++
		case ChapterFailed:
			current.Failed++
		default:
			current.Pending++
		}
	}

	return segments, nil
}

// # Update Detection

// UpdateCheck reports whether a provider has chapters the catalog lacks.
type UpdateCheck struct {
	HasUpdate        bool   `json:"has_update"`
	StoredChapters   int    `json:"stored_chapters"`
	ProviderChapters int    `json:"provider_chapters"`
	NewChapters      int    `json:"new_chapters"`
	LastChapterTitle string `json:"last_chapter_title"`
}

/*
CheckUpdates compares the provider TOC against the stored one without
mutating the catalog.
*/
func (service *Service) CheckUpdates(context context.Context, id string) (*UpdateCheck, error) {
	book, err := service.books.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	client, err := service.sources(book.Provider)
	if err != nil {
		return nil, apperr.ValidationError(err.Error())
	}

	catalog, err := client.GetChapterList(context, book.ProviderBookID)
	if err != nil {
		return nil, mapSourceError(err)
	}

	stored, _, err := service.chapters.CountByBook(context, id)
	if err != nil {
		return nil, err
	}

	check := &UpdateCheck{
		StoredChapters:   stored,
		ProviderChapters: catalog.TotalChapters,
	}
	if catalog.TotalChapters > stored {
		check.HasUpdate = true
		check.NewChapters = catalog.TotalChapters - stored
	}
	if n := len(catalog.Chapters); n > 0 {
		check.LastChapterTitle = catalog.Chapters[n-1].Title
	}

	return check, nil
}

/*
NewChapters returns the provider TOC items beyond the stored maximum
index, without mutating the catalog.
*/
func (service *Service) NewChapters(context context.Context, id string) ([]source.TocItem, error) {
	book, err := service.books.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	client, err := service.sources(book.Provider)
	if err != nil {
		return nil, apperr.ValidationError(err.Error())
	}

	catalog, err := client.GetChapterList(context, book.ProviderBookID)
	if err != nil {
		return nil, mapSourceError(err)
	}

	stored, err := service.chapters.ListByBook(context, id)
	if err != nil {
		return nil, err
	}

	maxIndex := -1
	for _, chapter := range stored {
		if chapter.Index > maxIndex {
			maxIndex = chapter.Index
		}
	}

	var fresh []source.TocItem
	for _, item := range catalog.Chapters {
		if item.ChapterIndex > maxIndex {
			fresh = append(fresh, item)
		}
	}

	return fresh, nil
}

/*
Refresh re-fetches provider metadata and merges the latest TOC into the
stored catalog.

Description: New chapters insert in pending state; downloaded chapters
keep their bodies. Returns the refreshed book and the number of chapters
the merge added.
*/
func (service *Service) Refresh(context context.Context, id string) (*Book, int, error) {
	book, err := service.books.FindByID(context, id)
	if err != nil {
		return nil, 0, err
	}

	client, err := service.sources(book.Provider)
	if err != nil {
		return nil, 0, apperr.ValidationError(err.Error())
	}

	detail, err := client.GetBookDetail(context, book.ProviderBookID)
	if err != nil {
		return nil, 0, mapSourceError(err)
	}

	catalog, err := client.GetChapterList(context, book.ProviderBookID)
	if err != nil {
		return nil, 0, mapSourceError(err)
	}

	storedBefore, _, err := service.chapters.CountByBook(context, id)
	if err != nil {
		return nil, 0, err
	}

	book.Title = detail.Title
	book.Author = detail.Author
	book.CoverURL = detail.CoverURL
	book.Abstract = detail.Abstract
	book.StatusText = detail.StatusText
	book.LastChapterTitle = detail.LastChapterTitle
	book.LastUpdateUnix = detail.LastUpdateUnix
	book.TotalChapters = catalog.TotalChapters

	if err := service.books.Update(context, book); err != nil {
		return nil, 0, err
	}

	if err := service.chapters.UpsertCatalog(context, id, tocToChapters(id, catalog)); err != nil {
		return nil, 0, err
	}

	added := catalog.TotalChapters - storedBefore
	if added < 0 {
		added = 0
	}

	service.logger.Info("book_refreshed",
		slog.String("book_id", id),
		slog.Int("new_chapters", added),
	)

	return book, added, nil
}

/*
Summarize returns shelf-wide aggregate statistics.
*/
func (service *Service) Summarize(context context.Context) (*Summary, error) {
	return service.books.Summarize(context)
}

// # Internal Helpers

// tocToChapters converts a provider catalog into TOC rows for one book.
func tocToChapters(bookID string, catalog *source.Catalog) []*Chapter {
	chapters := make([]*Chapter, 0, len(catalog.Chapters))
	for _, item := range catalog.Chapters {
		chapters = append(chapters, &Chapter{
			ID:             uuid.New(),
			BookID:         bookID,
			Index:          item.ChapterIndex,
			ProviderItemID: item.ItemID,
			Title:          item.Title,
			VolumeName:     item.VolumeName,
			WordCount:      item.WordCount,
			Status:         ChapterPending,
		})
	}
	return chapters
}

// mapSourceError translates the provider error taxonomy into API errors.
func mapSourceError(err error) error {
	switch {
	case errors.Is(err, source.ErrBookNotFound):
		return apperr.NotFound("book on provider")
	case errors.Is(err, source.ErrChapterNotFound):
		return apperr.NotFound("chapter on provider")
	default:
		return apperr.BadGateway("provider request failed", err)
	}
}

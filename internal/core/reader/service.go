// Copyright (c) 2026 Shuhai. All rights reserved.

package reader

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/core/task"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/store/blob"
	"github.com/wenqiu/shuhai/pkg/pagination"
	"github.com/wenqiu/shuhai/pkg/uuid"
)

// prefetchTimeout bounds one background prefetch run.
const prefetchTimeout = 5 * time.Minute

// Fetcher is the download engine capability the reader depends on: the
// single-chapter path plus the process-wide in-flight slot.
type Fetcher interface {
	DownloadChapter(context context.Context, owner *book.Book, chapter *book.Chapter) (string, error)
	TryBeginFetch(bookID, chapterID string) bool
	EndFetch(bookID, chapterID string)
}

// # Service Implementation

// Service implements the reading surface: TOC paging, chapter content with
// fetch-on-demand, and per-user sync state.
type Service struct {
	books     book.BookRepository
	chapters  book.ChapterRepository
	progress  ProgressRepository
	bookmarks BookmarkRepository
	history   HistoryRepository
	blobs     *blob.Store
	fetcher   Fetcher
	logger    *slog.Logger
}

// NewService constructs the reader [Service].
func NewService(
	books book.BookRepository,
	chapters book.ChapterRepository,
	progress ProgressRepository,
	bookmarks BookmarkRepository,
	history HistoryRepository,
	blobs *blob.Store,
	fetcher Fetcher,
	logger *slog.Logger,
) *Service {
	return &Service{
		books:     books,
		chapters:  chapters,
		progress:  progress,
		bookmarks: bookmarks,
		history:   history,
		blobs:     blobs,
		fetcher:   fetcher,
		logger:    logger,
	}
}

// # Table of Contents

/*
Toc returns one page of a book's TOC with light chapter fields.

Description: Pages are 1-based. When an anchor chapter is supplied the
returned page is the one containing it, so a client can open the TOC
scrolled to the reader's position.

Parameters:
  - context: context.Context
  - bookID: string (UUID)
  - page: int (1-based; ignored when anchor is set)
  - limit: int (Clamped to [1,500], default 50)
  - anchorID: string (Optional chapter UUID)

Returns:
  - []*book.Chapter: The page, index-ordered
  - *pagination.Meta: Page descriptor with has_more
  - error: apperr.NotFound for unknown book or anchor
*/
func (service *Service) Toc(context context.Context, bookID string, page, limit int, anchorID string) ([]*book.Chapter, *pagination.Meta, error) {
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return nil, nil, err
	}

	if limit < 1 {
		limit = DefaultTocLimit
	}
	if limit > MaxTocLimit {
		limit = MaxTocLimit
	}
	if page < 1 {
		page = 1
	}

	chapters, err := service.chapters.ListByBook(context, bookID)
	if err != nil {
		return nil, nil, err
	}

	if anchorID != "" {
		anchorAt := -1
		for position, chapter := range chapters {
			if chapter.ID == anchorID {
				anchorAt = position
				break
			}
		}
		if anchorAt < 0 {
			return nil, nil, apperr.NotFound("chapter")
		}
		page = anchorAt/limit + 1
	}

	start := (page - 1) * limit
	if start > len(chapters) {
		start = len(chapters)
	}
	end := start + limit
	if end > len(chapters) {
		end = len(chapters)
	}

	meta := pagination.NewMeta(page, limit, len(chapters))
	return chapters[start:end], &meta, nil
}

// # Chapter Content

/*
Content returns one chapter's body, fetching it on demand when missing.

Description: The target resolves through optional prev/next navigation
first. A locally stored body returns as status ready. A missing body is
fetched synchronously through the engine's single-chapter path, guarded by
the process-wide in-flight slot; when the fetch cannot complete (another
fetch owns the slot, the quota is exhausted, the provider fails) the
response carries status fetching and an explanatory message. With a ready
target and prefetch > 0, up to that many subsequent chapters download in
the background.

Parameters:
  - context: context.Context
  - bookID: string (UUID)
  - chapterID: string (UUID)
  - format: string (text or html)
  - rangeDir: string (Optional prev or next)
  - prefetch: int (Clamped to [0,5])

Returns:
  - *ChapterView: Body, navigation ids and availability status
  - error: apperr.NotFound when the target (or navigation result) is
    missing, validation failures otherwise
*/
func (service *Service) Content(context context.Context, bookID, chapterID, format, rangeDir string, prefetch int) (*ChapterView, error) {
	if format == "" {
		format = FormatHTML
	}
	if format != FormatText && format != FormatHTML {
		return nil, apperr.ValidationError("Unknown content format")
	}

	owner, err := service.books.FindByID(context, bookID)
	if err != nil {
		return nil, err
	}

	target, err := service.resolveTarget(context, bookID, chapterID, rangeDir)
	if err != nil {
		return nil, err
	}

	view := &ChapterView{
		ID:         target.ID,
		BookID:     bookID,
		Index:      target.Index,
		Title:      target.Title,
		VolumeName: target.VolumeName,
		WordCount:  target.WordCount,
		Format:     format,
		UpdatedAt:  target.UpdatedAt,
	}

	if previous, err := service.chapters.FindByIndex(context, bookID, target.Index-1); err == nil {
		view.PrevID = previous.ID
	}
	if next, err := service.chapters.FindByIndex(context, bookID, target.Index+1); err == nil {
		view.NextID = next.ID
	}

	var body string
	if target.ContentRef != "" {
		body, err = service.blobs.ReadChapter(target.ContentRef)
	}
	if target.ContentRef == "" || errors.Is(err, blob.ErrMissing) {
		body, err = service.fetchBody(context, owner, target, view)
	}
	if err != nil {
		return nil, err
	}

	if view.Status == "" {
		view.Status = StatusReady
		view.Content = body
		if format == FormatHTML {
			view.Content = renderHTML(body)
		}
	}

	if prefetch > 0 && view.Status == StatusReady {
		if prefetch > MaxPrefetch {
			prefetch = MaxPrefetch
		}
		go service.prefetch(owner, target.Index, prefetch)
	}

	return view, nil
}

// resolveTarget applies prev/next navigation to the requested chapter.
func (service *Service) resolveTarget(context context.Context, bookID, chapterID, rangeDir string) (*book.Chapter, error) {
	target, err := service.chapters.FindByID(context, chapterID)
	if err != nil {
		return nil, err
	}
	if target.BookID != bookID {
		return nil, apperr.NotFound("chapter")
	}

	switch rangeDir {
	case "":
		return target, nil
	case RangePrev:
		return service.chapters.FindByIndex(context, bookID, target.Index-1)
	case RangeNext:
		return service.chapters.FindByIndex(context, bookID, target.Index+1)
	default:
		return nil, apperr.ValidationError("Unknown range direction")
	}
}

// fetchBody runs the synchronous fetch-on-demand path. A nil error with an
// empty body means the view was switched to fetching.
func (service *Service) fetchBody(context context.Context, owner *book.Book, target *book.Chapter, view *ChapterView) (string, error) {
	if !service.fetcher.TryBeginFetch(owner.ID, target.ID) {
		view.Status = StatusFetching
		view.Message = "章节正在下载中，请稍后刷新"
		return "", nil
	}
	defer service.fetcher.EndFetch(owner.ID, target.ID)

	ref, err := service.fetcher.DownloadChapter(context, owner, target)
	if err != nil {
		view.Status = StatusFetching
		if errors.Is(err, task.ErrQuotaReached) {
			view.Message = "今日下载额度已用完，章节将在额度恢复后可读"
		} else {
			view.Message = "章节下载失败，请稍后重试"
			service.logger.Warn("reader_fetch_failed",
				slog.String("book_id", owner.ID),
				slog.Int("chapter_index", target.Index),
				slog.String("error", err.Error()),
			)
		}
		return "", nil
	}

	return service.blobs.ReadChapter(ref)
}

// prefetch downloads up to count chapters after the given index. It runs
// in the background with its own deadline and halts on the first failure
// or quota exhaustion.
func (service *Service) prefetch(owner *book.Book, afterIndex, count int) {
	ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
	defer cancel()

	fetched := 0
	for index := afterIndex + 1; index <= afterIndex+count; index++ {
		chapter, err := service.chapters.FindByIndex(ctx, owner.ID, index)
		if err != nil {
			break
		}
		if chapter.Status == book.ChapterCompleted {
			continue
		}

		if !service.fetcher.TryBeginFetch(owner.ID, chapter.ID) {
			continue
		}

		_, err = service.fetcher.DownloadChapter(ctx, owner, chapter)
		service.fetcher.EndFetch(owner.ID, chapter.ID)

		if err != nil {
			if !errors.Is(err, task.ErrQuotaReached) {
				service.logger.Debug("reader_prefetch_halted",
					slog.String("book_id", owner.ID),
					slog.Int("chapter_index", index),
					slog.String("error", err.Error()),
				)
			}
			break
		}
		fetched++
	}

	if fetched > 0 {
		service.logger.Debug("reader_prefetch_done",
			slog.String("book_id", owner.ID),
			slog.Int("fetched", fetched),
		)
	}
}

// renderHTML wraps each non-empty line in an escaped paragraph; blank
// lines become spacer paragraphs.
func renderHTML(body string) string {
	var builder strings.Builder
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			builder.WriteString("<p>&nbsp;</p>")
			continue
		}
		builder.WriteString("<p>")
		builder.WriteString(html.EscapeString(line))
		builder.WriteString("</p>")
	}
	return builder.String()
}

// # Reading Progress

/*
SaveProgress clamps and upserts the cross-device sync row, then appends a
history entry.

Parameters:
  - context: context.Context
  - userID: string (UUID)
  - bookID: string (UUID)
  - chapterID: string (UUID, must belong to the book)
  - deviceID: string (The writing device)
  - offsetPx: int (Clamped to >= 0)
  - percent: float64 (Clamped to [0,100])

Returns:
  - *Progress: The stored row
  - error: apperr.NotFound when book or chapter is missing
*/
func (service *Service) SaveProgress(context context.Context, userID, bookID, chapterID, deviceID string, offsetPx int, percent float64) (*Progress, error) {
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return nil, err
	}
	if err := service.requireChapterInBook(context, bookID, chapterID); err != nil {
		return nil, err
	}

	percent = clampPercent(percent)
	if offsetPx < 0 {
		offsetPx = 0
	}

	row := &Progress{
		ID:        uuid.New(),
		UserID:    userID,
		BookID:    bookID,
		ChapterID: chapterID,
		DeviceID:  deviceID,
		OffsetPx:  offsetPx,
		Percent:   percent,
	}
	if err := service.progress.Upsert(context, row); err != nil {
		return nil, err
	}

	entry := &HistoryEntry{
		ID:        uuid.New(),
		UserID:    userID,
		BookID:    bookID,
		ChapterID: chapterID,
		DeviceID:  deviceID,
		Percent:   percent,
	}
	if err := service.history.Append(context, entry); err != nil {
		service.logger.Error("reader_history_append_failed",
			slog.String("book_id", bookID),
			slog.String("error", err.Error()),
		)
	}

	return service.progress.Get(context, userID, bookID, "")
}

// Progress returns the sync row, nil when absent.
func (service *Service) Progress(context context.Context, userID, bookID, deviceID string) (*Progress, error) {
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return nil, err
	}
	return service.progress.Get(context, userID, bookID, deviceID)
}

// ClearProgress deletes the sync row; with a device filter only a row last
// written by that device.
func (service *Service) ClearProgress(context context.Context, userID, bookID, deviceID string) error {
	_, err := service.progress.Delete(context, userID, bookID, deviceID)
	return err
}

// Devices lists the devices seen in the book's history.
func (service *Service) Devices(context context.Context, userID, bookID string) ([]*Device, error) {
	return service.history.Devices(context, userID, bookID)
}

// # Bookmarks

/*
AddBookmark persists a new bookmark after validating chapter ownership.
*/
func (service *Service) AddBookmark(context context.Context, userID, bookID, chapterID string, offsetPx int, percent float64, note string) (*Bookmark, error) {
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return nil, err
	}
	if err := service.requireChapterInBook(context, bookID, chapterID); err != nil {
		return nil, err
	}

	bookmark := &Bookmark{
		ID:        uuid.New(),
		UserID:    userID,
		BookID:    bookID,
		ChapterID: chapterID,
		OffsetPx:  max(offsetPx, 0),
		Percent:   clampPercent(percent),
		Note:      note,
	}
	if err := service.bookmarks.Create(context, bookmark); err != nil {
		return nil, err
	}

	return service.bookmarks.FindByID(context, bookmark.ID)
}

// ListBookmarks returns a user's bookmarks in one book, newest first.
func (service *Service) ListBookmarks(context context.Context, userID, bookID string) ([]*Bookmark, error) {
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return nil, err
	}
	return service.bookmarks.ListByBook(context, userID, bookID)
}

// Bookmark returns one bookmark after an ownership check.
func (service *Service) Bookmark(context context.Context, userID, bookID, id string) (*Bookmark, error) {
	bookmark, err := service.bookmarks.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if bookmark.UserID != userID || bookmark.BookID != bookID {
		return nil, apperr.NotFound("bookmark")
	}
	return bookmark, nil
}

// UpdateBookmark adjusts note, offset and percent of one bookmark.
func (service *Service) UpdateBookmark(context context.Context, userID, bookID, id string, offsetPx int, percent float64, note string) (*Bookmark, error) {
	bookmark, err := service.Bookmark(context, userID, bookID, id)
	if err != nil {
		return nil, err
	}

	bookmark.OffsetPx = max(offsetPx, 0)
	bookmark.Percent = clampPercent(percent)
	bookmark.Note = note

	if err := service.bookmarks.Update(context, bookmark); err != nil {
		return nil, err
	}

	return service.bookmarks.FindByID(context, id)
}

// DeleteBookmark removes one bookmark after an ownership check.
func (service *Service) DeleteBookmark(context context.Context, userID, bookID, id string) error {
	if _, err := service.Bookmark(context, userID, bookID, id); err != nil {
		return err
	}
	return service.bookmarks.Delete(context, id)
}

// # Reading History

// History returns the capped, newest-first reading history.
func (service *Service) History(context context.Context, userID, bookID string, limit int) ([]*HistoryEntry, error) {
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return nil, err
	}
	return service.history.List(context, userID, bookID, limit)
}

// ClearHistory removes the (user, book) history and returns the row count.
func (service *Service) ClearHistory(context context.Context, userID, bookID string) (int, error) {
	return service.history.Clear(context, userID, bookID)
}

// # Cache Status

/*
CacheStatus lists the chapter UUIDs whose bodies are stored locally.
*/
func (service *Service) CacheStatus(context context.Context, bookID string) (*CacheStatus, error) {
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return nil, err
	}

	chapters, err := service.chapters.ListByBook(context, bookID)
	if err != nil {
		return nil, err
	}

	status := &CacheStatus{
		BookID:      bookID,
		Completed:   make([]string, 0, len(chapters)),
		Total:       len(chapters),
		GeneratedAt: time.Now(),
	}
	for _, chapter := range chapters {
		if chapter.Status == book.ChapterCompleted {
			status.Completed = append(status.Completed, chapter.ID)
		}
	}

	return status, nil
}

// # Internal Helpers

func (service *Service) requireChapterInBook(context context.Context, bookID, chapterID string) error {
	chapter, err := service.chapters.FindByID(context, chapterID)
	if err != nil {
		return err
	}
	if chapter.BookID != bookID {
		return apperr.NotFound("chapter")
	}
	return nil
}

func clampPercent(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

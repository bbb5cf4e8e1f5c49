// Copyright (c) 2026 Shuhai. All rights reserved.

package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/core/task"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/store/blob"
	pkguuid "github.com/wenqiu/shuhai/pkg/uuid"
)

// # Test Fakes

type fakeBooks struct {
	books map[string]*book.Book
}

func (repo *fakeBooks) List(_ context.Context, _ book.Filter, _, _ int) ([]*book.Book, int, error) {
	return nil, 0, nil
}

func (repo *fakeBooks) FindByID(_ context.Context, id string) (*book.Book, error) {
	if record, ok := repo.books[id]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, apperr.NotFound("book")
}

func (repo *fakeBooks) FindByProviderKey(_ context.Context, _, _ string) (*book.Book, error) {
	return nil, apperr.NotFound("book")
}

func (repo *fakeBooks) Create(_ context.Context, record *book.Book) error {
	repo.books[record.ID] = record
	return nil
}

func (repo *fakeBooks) Update(_ context.Context, record *book.Book) error {
	repo.books[record.ID] = record
	return nil
}

func (repo *fakeBooks) SetDownloadState(_ context.Context, _ string, _ book.DownloadStatus, _ string) error {
	return nil
}

func (repo *fakeBooks) Delete(_ context.Context, id string) error {
	delete(repo.books, id)
	return nil
}

func (repo *fakeBooks) Summarize(_ context.Context) (*book.Summary, error) {
	return &book.Summary{}, nil
}

type fakeChapters struct {
	chapters []*book.Chapter
}

func (repo *fakeChapters) ListByBook(_ context.Context, bookID string) ([]*book.Chapter, error) {
	var out []*book.Chapter
	for _, chapter := range repo.chapters {
		if chapter.BookID == bookID {
			clone := *chapter
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (repo *fakeChapters) FindByIndex(_ context.Context, bookID string, index int) (*book.Chapter, error) {
	for _, chapter := range repo.chapters {
		if chapter.BookID == bookID && chapter.Index == index {
			clone := *chapter
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("chapter")
}

func (repo *fakeChapters) FindByID(_ context.Context, chapterID string) (*book.Chapter, error) {
	for _, chapter := range repo.chapters {
		if chapter.ID == chapterID {
			clone := *chapter
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("chapter")
}

func (repo *fakeChapters) UpsertCatalog(_ context.Context, _ string, fresh []*book.Chapter) error {
	repo.chapters = append(repo.chapters, fresh...)
	return nil
}

func (repo *fakeChapters) SetCompleted(_ context.Context, chapterID, contentRef string, wordCount int) error {
	for _, chapter := range repo.chapters {
		if chapter.ID == chapterID {
			chapter.ContentRef = contentRef
			chapter.WordCount = wordCount
			chapter.Status = book.ChapterCompleted
		}
	}
	return nil
}

func (repo *fakeChapters) SetFailed(_ context.Context, _ string) error { return nil }

func (repo *fakeChapters) ResetCompleted(_ context.Context, _ string, _, _ int) error { return nil }

func (repo *fakeChapters) ResetFailed(_ context.Context, _ string) (int, error) { return 0, nil }

func (repo *fakeChapters) CountByBook(_ context.Context, bookID string) (int, int, error) {
	total, completed := 0, 0
	for _, chapter := range repo.chapters {
		if chapter.BookID == bookID {
			total++
			if chapter.Status == book.ChapterCompleted {
				completed++
			}
		}
	}
	return total, completed, nil
}

type memProgress struct {
	rows map[string]*Progress // userID + "/" + bookID
}

func progressKey(userID, bookID string) string { return userID + "/" + bookID }

func (repo *memProgress) Get(_ context.Context, userID, bookID, deviceID string) (*Progress, error) {
	row, ok := repo.rows[progressKey(userID, bookID)]
	if !ok || (deviceID != "" && row.DeviceID != deviceID) {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (repo *memProgress) Upsert(_ context.Context, progress *Progress) error {
	clone := *progress
	repo.rows[progressKey(progress.UserID, progress.BookID)] = &clone
	return nil
}

func (repo *memProgress) Delete(_ context.Context, userID, bookID, deviceID string) (bool, error) {
	row, ok := repo.rows[progressKey(userID, bookID)]
	if !ok || (deviceID != "" && row.DeviceID != deviceID) {
		return false, nil
	}
	delete(repo.rows, progressKey(userID, bookID))
	return true, nil
}

type memBookmarks struct {
	rows []*Bookmark
}

func (repo *memBookmarks) ListByBook(_ context.Context, userID, bookID string) ([]*Bookmark, error) {
	var out []*Bookmark
	for position := len(repo.rows) - 1; position >= 0; position-- {
		row := repo.rows[position]
		if row.UserID == userID && row.BookID == bookID {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (repo *memBookmarks) FindByID(_ context.Context, id string) (*Bookmark, error) {
	for _, row := range repo.rows {
		if row.ID == id {
			clone := *row
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("bookmark")
}

func (repo *memBookmarks) Create(_ context.Context, bookmark *Bookmark) error {
	clone := *bookmark
	repo.rows = append(repo.rows, &clone)
	return nil
}

func (repo *memBookmarks) Update(_ context.Context, bookmark *Bookmark) error {
	for _, row := range repo.rows {
		if row.ID == bookmark.ID {
			row.OffsetPx = bookmark.OffsetPx
			row.Percent = bookmark.Percent
			row.Note = bookmark.Note
			return nil
		}
	}
	return apperr.NotFound("bookmark")
}

func (repo *memBookmarks) Delete(_ context.Context, id string) error {
	for position, row := range repo.rows {
		if row.ID == id {
			repo.rows = append(repo.rows[:position], repo.rows[position+1:]...)
			return nil
		}
	}
	return apperr.NotFound("bookmark")
}

type memHistory struct {
	rows []*HistoryEntry
}

func (repo *memHistory) List(_ context.Context, userID, bookID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = historyCap
	}
	var out []*HistoryEntry
	for position := len(repo.rows) - 1; position >= 0 && len(out) < limit; position-- {
		row := repo.rows[position]
		if row.UserID == userID && row.BookID == bookID {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (repo *memHistory) Append(_ context.Context, entry *HistoryEntry) error {
	clone := *entry
	repo.rows = append(repo.rows, &clone)
	return nil
}

func (repo *memHistory) Clear(_ context.Context, userID, bookID string) (int, error) {
	var kept []*HistoryEntry
	removed := 0
	for _, row := range repo.rows {
		if row.UserID == userID && row.BookID == bookID {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	repo.rows = kept
	return removed, nil
}

func (repo *memHistory) Devices(_ context.Context, userID, bookID string) ([]*Device, error) {
	seen := make(map[string]bool)
	var out []*Device
	for position := len(repo.rows) - 1; position >= 0; position-- {
		row := repo.rows[position]
		if row.UserID != userID || row.BookID != bookID || row.DeviceID == "" || seen[row.DeviceID] {
			continue
		}
		seen[row.DeviceID] = true
		out = append(out, &Device{DeviceID: row.DeviceID, LastSeen: row.CreatedAt})
	}
	return out, nil
}

// fakeFetcher satisfies [Fetcher]. When busy it refuses the in-flight
// slot; otherwise DownloadChapter stores the canned body for the chapter
// and returns its blob ref.
type fakeFetcher struct {
	blobs     *blob.Store
	chapters  *fakeChapters
	busy      bool
	err       error
	bodies    map[string]string // chapterID -> body
	downloads int
}

func (fetcher *fakeFetcher) DownloadChapter(_ context.Context, owner *book.Book, chapter *book.Chapter) (string, error) {
	if fetcher.err != nil {
		return "", fetcher.err
	}
	body := fetcher.bodies[chapter.ID]
	ref, err := fetcher.blobs.WriteChapter(owner.ID, chapter.Index, body)
	if err != nil {
		return "", err
	}
	if err := fetcher.chapters.SetCompleted(context.Background(), chapter.ID, ref, len([]rune(body))); err != nil {
		return "", err
	}
	fetcher.downloads++
	return ref, nil
}

func (fetcher *fakeFetcher) TryBeginFetch(_, _ string) bool { return !fetcher.busy }

func (fetcher *fakeFetcher) EndFetch(_, _ string) {}

// # Fixture

const testUserID = "00000000-0000-0000-0000-000000000001"

type readerFixture struct {
	service   *Service
	books     *fakeBooks
	chapters  *fakeChapters
	progress  *memProgress
	bookmarks *memBookmarks
	history   *memHistory
	fetcher   *fakeFetcher
	blobs     *blob.Store
}

func newReaderFixture(t *testing.T) *readerFixture {
	t.Helper()

	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	fixture := &readerFixture{
		books:     &fakeBooks{books: make(map[string]*book.Book)},
		chapters:  &fakeChapters{},
		progress:  &memProgress{rows: make(map[string]*Progress)},
		bookmarks: &memBookmarks{},
		history:   &memHistory{},
		blobs:     blobs,
	}
	fixture.fetcher = &fakeFetcher{
		blobs:    blobs,
		chapters: fixture.chapters,
		bodies:   make(map[string]string),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixture.service = NewService(
		fixture.books, fixture.chapters,
		fixture.progress, fixture.bookmarks, fixture.history,
		blobs, fixture.fetcher, logger,
	)
	return fixture
}

// seedBook stores a book with total chapters, the first downloaded of
// which carry stored bodies of the form "第N章正文".
func (fixture *readerFixture) seedBook(t *testing.T, total, downloaded int) *book.Book {
	t.Helper()

	owner := &book.Book{
		ID:       pkguuid.New(),
		Title:    "凡人修仙传",
		Author:   "忘语",
		Provider: "fanqie",
	}
	require.NoError(t, fixture.books.Create(context.Background(), owner))

	for index := 0; index < total; index++ {
		chapter := &book.Chapter{
			ID:     pkguuid.New(),
			BookID: owner.ID,
			Index:  index,
			Title:  fmt.Sprintf("第%d章", index+1),
			Status: book.ChapterPending,
		}
		if index < downloaded {
			ref, err := fixture.blobs.WriteChapter(owner.ID, index, fmt.Sprintf("第%d章正文", index+1))
			require.NoError(t, err)
			chapter.ContentRef = ref
			chapter.Status = book.ChapterCompleted
		}
		fixture.chapters.chapters = append(fixture.chapters.chapters, chapter)
	}
	return owner
}

// # TOC Tests

func TestTocPaging(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 120, 0)

	page, meta, err := fixture.service.Toc(context.Background(), owner.ID, 2, 50, "")
	require.NoError(t, err)

	require.Len(t, page, 50)
	assert.Equal(t, 50, page[0].Index)
	assert.Equal(t, 99, page[49].Index)
	assert.Equal(t, 120, meta.Total)
	assert.True(t, meta.HasMore)
}

func TestTocAnchorSelectsContainingPage(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 120, 0)

	// Chapter index 75 lives on page 2 of a 50-per-page TOC; the requested
	// page number must be ignored.
	anchor := fixture.chapters.chapters[75]

	page, meta, err := fixture.service.Toc(context.Background(), owner.ID, 1, 50, anchor.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, meta.Page)
	require.Len(t, page, 50)
	assert.Equal(t, 50, page[0].Index)
}

func TestTocUnknownAnchor(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 10, 0)

	_, _, err := fixture.service.Toc(context.Background(), owner.ID, 1, 50, "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestTocUnknownBook(t *testing.T) {
	fixture := newReaderFixture(t)

	_, _, err := fixture.service.Toc(context.Background(), "missing", 1, 50, "")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

// # Content Tests

func TestContentServesStoredBody(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 3, 3)
	target := fixture.chapters.chapters[1]

	view, err := fixture.service.Content(context.Background(), owner.ID, target.ID, FormatText, "", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusReady, view.Status)
	assert.Equal(t, "第2章正文", view.Content)
	assert.Equal(t, fixture.chapters.chapters[0].ID, view.PrevID)
	assert.Equal(t, fixture.chapters.chapters[2].ID, view.NextID)
	assert.Zero(t, fixture.fetcher.downloads, "stored bodies must not hit the provider")
}

func TestContentRendersHTML(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 1, 0)
	target := fixture.chapters.chapters[0]
	fixture.fetcher.bodies[target.ID] = "第一行 <试读>\n\n第二行"

	view, err := fixture.service.Content(context.Background(), owner.ID, target.ID, FormatHTML, "", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusReady, view.Status)
	assert.Equal(t, "<p>第一行 &lt;试读&gt;</p><p>&nbsp;</p><p>第二行</p>", view.Content)
}

func TestContentFetchesOnDemand(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 2, 1)
	target := fixture.chapters.chapters[1]
	fixture.fetcher.bodies[target.ID] = "第2章正文"

	view, err := fixture.service.Content(context.Background(), owner.ID, target.ID, FormatText, "", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusReady, view.Status)
	assert.Equal(t, "第2章正文", view.Content)
	assert.Equal(t, 1, fixture.fetcher.downloads)
}

func TestContentReportsFetchingWhenSlotBusy(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 1, 0)
	target := fixture.chapters.chapters[0]
	fixture.fetcher.busy = true

	view, err := fixture.service.Content(context.Background(), owner.ID, target.ID, FormatText, "", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusFetching, view.Status)
	assert.NotEmpty(t, view.Message)
	assert.Empty(t, view.Content)
}

func TestContentReportsFetchingOnQuotaExhaustion(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 1, 0)
	target := fixture.chapters.chapters[0]
	fixture.fetcher.err = task.ErrQuotaReached

	view, err := fixture.service.Content(context.Background(), owner.ID, target.ID, FormatText, "", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusFetching, view.Status)
	assert.Contains(t, view.Message, "额度")
}

func TestContentNavigatesNext(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 3, 3)
	target := fixture.chapters.chapters[0]

	view, err := fixture.service.Content(context.Background(), owner.ID, target.ID, FormatText, RangeNext, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, view.Index)
	assert.Equal(t, "第2章正文", view.Content)
}

func TestContentRejectsForeignChapter(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 1, 1)
	fixture.seedBook(t, 1, 1)

	// The second book's chapter is not addressable through the first book.
	_, err := fixture.service.Content(context.Background(), owner.ID, fixture.chapters.chapters[1].ID, FormatText, "", 0)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestContentRejectsUnknownFormat(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 1, 1)

	_, err := fixture.service.Content(context.Background(), owner.ID, fixture.chapters.chapters[0].ID, "pdf", "", 0)
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

// # Progress Tests

func TestSaveProgressClampsAndRecordsHistory(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 3, 3)
	target := fixture.chapters.chapters[1]

	stored, err := fixture.service.SaveProgress(
		context.Background(), testUserID, owner.ID, target.ID, "phone", -20, 150,
	)
	require.NoError(t, err)

	assert.Equal(t, 0, stored.OffsetPx)
	assert.Equal(t, 100.0, stored.Percent)
	assert.Equal(t, "phone", stored.DeviceID)

	entries, err := fixture.service.History(context.Background(), testUserID, owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, target.ID, entries[0].ChapterID)
}

func TestSaveProgressLatestWriterWins(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 3, 3)

	_, err := fixture.service.SaveProgress(
		context.Background(), testUserID, owner.ID, fixture.chapters.chapters[0].ID, "phone", 10, 20,
	)
	require.NoError(t, err)

	stored, err := fixture.service.SaveProgress(
		context.Background(), testUserID, owner.ID, fixture.chapters.chapters[2].ID, "tablet", 30, 80,
	)
	require.NoError(t, err)

	assert.Equal(t, fixture.chapters.chapters[2].ID, stored.ChapterID)
	assert.Equal(t, "tablet", stored.DeviceID)

	devices, err := fixture.service.Devices(context.Background(), testUserID, owner.ID)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "tablet", devices[0].DeviceID)
}

func TestSaveProgressRejectsForeignChapter(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 1, 1)
	fixture.seedBook(t, 1, 1)

	_, err := fixture.service.SaveProgress(
		context.Background(), testUserID, owner.ID, fixture.chapters.chapters[1].ID, "", 0, 0,
	)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestClearProgress(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 1, 1)

	_, err := fixture.service.SaveProgress(
		context.Background(), testUserID, owner.ID, fixture.chapters.chapters[0].ID, "phone", 0, 50,
	)
	require.NoError(t, err)

	require.NoError(t, fixture.service.ClearProgress(context.Background(), testUserID, owner.ID, ""))

	row, err := fixture.service.Progress(context.Background(), testUserID, owner.ID, "")
	require.NoError(t, err)
	assert.Nil(t, row)
}

// # Bookmark Tests

func TestBookmarkLifecycle(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 2, 2)
	target := fixture.chapters.chapters[0]

	created, err := fixture.service.AddBookmark(
		context.Background(), testUserID, owner.ID, target.ID, 120, 35.5, "精彩",
	)
	require.NoError(t, err)
	assert.Equal(t, "精彩", created.Note)

	updated, err := fixture.service.UpdateBookmark(
		context.Background(), testUserID, owner.ID, created.ID, 200, 40, "改注",
	)
	require.NoError(t, err)
	assert.Equal(t, "改注", updated.Note)
	assert.Equal(t, 200, updated.OffsetPx)

	listed, err := fixture.service.ListBookmarks(context.Background(), testUserID, owner.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, fixture.service.DeleteBookmark(context.Background(), testUserID, owner.ID, created.ID))

	err = fixture.service.DeleteBookmark(context.Background(), testUserID, owner.ID, created.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestBookmarkOwnershipEnforced(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 1, 1)
	target := fixture.chapters.chapters[0]

	created, err := fixture.service.AddBookmark(
		context.Background(), testUserID, owner.ID, target.ID, 0, 0, "",
	)
	require.NoError(t, err)

	// Another user must not see, update or delete the bookmark.
	_, err = fixture.service.Bookmark(context.Background(), "other-user", owner.ID, created.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))

	err = fixture.service.DeleteBookmark(context.Background(), "other-user", owner.ID, created.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

// # History Tests

func TestClearHistory(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 2, 2)

	for _, chapter := range fixture.chapters.chapters {
		_, err := fixture.service.SaveProgress(
			context.Background(), testUserID, owner.ID, chapter.ID, "phone", 0, 10,
		)
		require.NoError(t, err)
	}

	removed, err := fixture.service.ClearHistory(context.Background(), testUserID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := fixture.service.History(context.Background(), testUserID, owner.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// # Cache Status Tests

func TestCacheStatusListsStoredChapters(t *testing.T) {
	fixture := newReaderFixture(t)
	owner := fixture.seedBook(t, 5, 2)

	status, err := fixture.service.CacheStatus(context.Background(), owner.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, status.Total)
	require.Len(t, status.Completed, 2)
	assert.Equal(t, fixture.chapters.chapters[0].ID, status.Completed[0])
	assert.Equal(t, fixture.chapters.chapters[1].ID, status.Completed[1])
}

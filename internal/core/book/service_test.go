// Copyright (c) 2026 Shuhai. All rights reserved.

package book_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/source"
	"github.com/wenqiu/shuhai/internal/store/blob"
)

// # In-Memory Fakes

type fakeBookRepo struct {
	books map[string]*book.Book
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: make(map[string]*book.Book)}
}

func (r *fakeBookRepo) List(_ context.Context, filter book.Filter, limit, offset int) ([]*book.Book, int, error) {
	var out []*book.Book
	for _, b := range r.books {
		if filter.Provider != "" && b.Provider != filter.Provider {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (r *fakeBookRepo) FindByID(_ context.Context, id string) (*book.Book, error) {
	if b, ok := r.books[id]; ok {
		return b, nil
	}
	return nil, apperr.NotFound("book")
}

func (r *fakeBookRepo) FindByProviderKey(_ context.Context, provider, providerBookID string) (*book.Book, error) {
	for _, b := range r.books {
		if string(b.Provider) == provider && b.ProviderBookID == providerBookID {
			return b, nil
		}
	}
	return nil, apperr.NotFound("book")
}

func (r *fakeBookRepo) Create(_ context.Context, b *book.Book) error {
	r.books[b.ID] = b
	return nil
}

func (r *fakeBookRepo) Update(_ context.Context, b *book.Book) error {
	if _, ok := r.books[b.ID]; !ok {
		return apperr.NotFound("book")
	}
	r.books[b.ID] = b
	return nil
}

func (r *fakeBookRepo) SetDownloadState(_ context.Context, id string, status book.DownloadStatus, errorMessage string) error {
	b, ok := r.books[id]
	if !ok {
		return apperr.NotFound("book")
	}
	b.DownloadStatus = status
	b.ErrorMessage = errorMessage
	return nil
}

func (r *fakeBookRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.books[id]; !ok {
		return apperr.NotFound("book")
	}
	delete(r.books, id)
	return nil
}

func (r *fakeBookRepo) Summarize(_ context.Context) (*book.Summary, error) {
	summary := &book.Summary{ByStatus: map[string]int{}, ByProvider: map[string]int{}}
	for _, b := range r.books {
		summary.TotalBooks++
		summary.ByStatus[string(b.DownloadStatus)]++
		summary.ByProvider[string(b.Provider)]++
	}
	return summary, nil
}

type fakeChapterRepo struct {
	chapters map[string][]*book.Chapter // keyed by book ID
}

func newFakeChapterRepo() *fakeChapterRepo {
	return &fakeChapterRepo{chapters: make(map[string][]*book.Chapter)}
}

func (r *fakeChapterRepo) ListByBook(_ context.Context, bookID string) ([]*book.Chapter, error) {
	return r.chapters[bookID], nil
}

func (r *fakeChapterRepo) FindByIndex(_ context.Context, bookID string, index int) (*book.Chapter, error) {
	for _, chapter := range r.chapters[bookID] {
		if chapter.Index == index {
			return chapter, nil
		}
	}
	return nil, apperr.NotFound("chapter")
}

func (r *fakeChapterRepo) FindByID(_ context.Context, chapterID string) (*book.Chapter, error) {
	for _, chapters := range r.chapters {
		for _, chapter := range chapters {
			if chapter.ID == chapterID {
				return chapter, nil
			}
		}
	}
	return nil, apperr.NotFound("chapter")
}

func (r *fakeChapterRepo) UpsertCatalog(_ context.Context, bookID string, incoming []*book.Chapter) error {
	existing := make(map[int]*book.Chapter)
	for _, chapter := range r.chapters[bookID] {
		existing[chapter.Index] = chapter
	}
	for _, chapter := range incoming {
		if old, ok := existing[chapter.Index]; ok {
			old.Title = chapter.Title
			old.ProviderItemID = chapter.ProviderItemID
			continue
		}
		r.chapters[bookID] = append(r.chapters[bookID], chapter)
	}
	return nil
}

func (r *fakeChapterRepo) SetCompleted(_ context.Context, chapterID, contentRef string, wordCount int) error {
	for _, chapters := range r.chapters {
		for _, chapter := range chapters {
			if chapter.ID == chapterID {
				chapter.Status = book.ChapterCompleted
				chapter.ContentRef = contentRef
				if wordCount > 0 {
					chapter.WordCount = wordCount
				}
				return nil
			}
		}
	}
	return apperr.NotFound("chapter")
}

func (r *fakeChapterRepo) SetFailed(_ context.Context, chapterID string) error {
	for _, chapters := range r.chapters {
		for _, chapter := range chapters {
			if chapter.ID == chapterID {
				chapter.Status = book.ChapterFailed
				return nil
			}
		}
	}
	return apperr.NotFound("chapter")
}

func (r *fakeChapterRepo) ResetCompleted(_ context.Context, bookID string, startIndex, endIndex int) error {
	for _, chapter := range r.chapters[bookID] {
		if chapter.Index < startIndex || (endIndex >= 0 && chapter.Index > endIndex) {
			continue
		}
		if chapter.Status == book.ChapterCompleted {
			chapter.Status = book.ChapterPending
			chapter.ContentRef = ""
		}
	}
	return nil
}

func (r *fakeChapterRepo) ResetFailed(_ context.Context, bookID string) (int, error) {
	flipped := 0
	for _, chapter := range r.chapters[bookID] {
		if chapter.Status == book.ChapterFailed {
			chapter.Status = book.ChapterPending
			flipped++
		}
	}
	return flipped, nil
}

func (r *fakeChapterRepo) CountByBook(_ context.Context, bookID string) (int, int, error) {
	total := len(r.chapters[bookID])
	completed := 0
	for _, chapter := range r.chapters[bookID] {
		if chapter.Status == book.ChapterCompleted {
			completed++
		}
	}
	return total, completed, nil
}

// fakeClient is a canned source.Client.
type fakeClient struct {
	provider source.Provider
	detail   *source.BookDetail
	catalog  *source.Catalog
	search   *source.SearchResult
	err      error
}

func (c *fakeClient) Provider() source.Provider { return c.provider }

func (c *fakeClient) Search(context.Context, string, int) (*source.SearchResult, error) {
	return c.search, c.err
}

func (c *fakeClient) GetBookDetail(context.Context, string) (*source.BookDetail, error) {
	return c.detail, c.err
}

func (c *fakeClient) GetChapterList(context.Context, string) (*source.Catalog, error) {
	return c.catalog, c.err
}

func (c *fakeClient) GetChapterContent(context.Context, string, string) (*source.ChapterContent, error) {
	return &source.ChapterContent{Kind: source.KindText, Text: "正文"}, c.err
}

func factoryFor(client source.Client) source.Factory {
	return func(source.Provider) (source.Client, error) { return client, nil }
}

func newTestService(t *testing.T, client source.Client) (*book.Service, *fakeBookRepo, *fakeChapterRepo) {
	t.Helper()

	books := newFakeBookRepo()
	chapters := newFakeChapterRepo()

	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	service := book.NewService(books, chapters, factoryFor(client), blobs, slog.Default())
	return service, books, chapters
}

// # Tests

/*
TestAdd_IngestsMetadataAndTOC verifies the full ingestion path: detail
fetch, TOC fetch, pending state.
*/
func TestAdd_IngestsMetadataAndTOC(t *testing.T) {
	client := &fakeClient{
		provider: source.ProviderFanqie,
		detail: &source.BookDetail{
			Title: "斗破苍穹", Author: "天蚕土豆", StatusText: "已完结",
		},
		catalog: &source.Catalog{
			TotalChapters: 2,
			Chapters: []source.TocItem{
				{ItemID: "i1", Title: "第一章", ChapterIndex: 0, WordCount: 3000},
				{ItemID: "i2", Title: "第二章", ChapterIndex: 1, WordCount: 2800},
			},
		},
	}

	service, _, chapters := newTestService(t, client)

	created, err := service.Add(context.Background(), source.ProviderFanqie, "fq-1")
	require.NoError(t, err)

	assert.Equal(t, "斗破苍穹", created.Title)
	assert.Equal(t, book.DownloadPending, created.DownloadStatus)
	assert.Equal(t, 2, created.TotalChapters)

	toc, err := service.ListChapters(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, toc, 2)
	assert.Equal(t, 0, toc[0].Index)

	_ = chapters
}

/*
TestAdd_Idempotent verifies re-adding returns the stored entry without a
second ingestion.
*/
func TestAdd_Idempotent(t *testing.T) {
	client := &fakeClient{
		provider: source.ProviderQimao,
		detail:   &source.BookDetail{Title: "大奉打更人"},
		catalog:  &source.Catalog{TotalChapters: 1, Chapters: []source.TocItem{{ItemID: "c1", Title: "第一章"}}},
	}

	service, books, _ := newTestService(t, client)

	first, err := service.Add(context.Background(), source.ProviderQimao, "qm-9")
	require.NoError(t, err)

	second, err := service.Add(context.Background(), source.ProviderQimao, "qm-9")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, books.books, 1)
}

/*
TestAdd_Validation verifies provider and ID checks reject bad input.
*/
func TestAdd_Validation(t *testing.T) {
	service, _, _ := newTestService(t, &fakeClient{})

	_, err := service.Add(context.Background(), "unknown", "x")
	require.Error(t, err)
	assert.True(t, apperr.IsAppError(err))

	_, err = service.Add(context.Background(), source.ProviderFanqie, "")
	require.Error(t, err)
}

/*
TestSearch_RequiresKeyword verifies the discovery validation path.
*/
func TestSearch_RequiresKeyword(t *testing.T) {
	service, _, _ := newTestService(t, &fakeClient{})

	_, err := service.Search(context.Background(), source.ProviderFanqie, "", 1)
	require.Error(t, err)

	client := &fakeClient{search: &source.SearchResult{Total: 1, Books: []source.SearchBook{{Title: "诡秘之主"}}}}
	service, _, _ = newTestService(t, client)

	result, err := service.Search(context.Background(), source.ProviderBiquge, "诡秘", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

/*
TestCheckUpdates_DetectsNewChapters verifies the non-mutating comparison.
*/
func TestCheckUpdates_DetectsNewChapters(t *testing.T) {
	client := &fakeClient{
		provider: source.ProviderFanqie,
		detail:   &source.BookDetail{Title: "完美世界"},
		catalog: &source.Catalog{
			TotalChapters: 1,
			Chapters:      []source.TocItem{{ItemID: "i1", Title: "第一章", ChapterIndex: 0}},
		},
	}

	service, _, chapters := newTestService(t, client)

	created, err := service.Add(context.Background(), source.ProviderFanqie, "fq-7")
	require.NoError(t, err)

	// Provider gains two chapters after ingestion
	client.catalog = &source.Catalog{
		TotalChapters: 3,
		Chapters: []source.TocItem{
			{ItemID: "i1", Title: "第一章", ChapterIndex: 0},
			{ItemID: "i2", Title: "第二章", ChapterIndex: 1},
			{ItemID: "i3", Title: "第三章", ChapterIndex: 2},
		},
	}

	check, err := service.CheckUpdates(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, check.HasUpdate)
	assert.Equal(t, 2, check.NewChapters)
	assert.Equal(t, "第三章", check.LastChapterTitle)

	// The check itself must not mutate the stored TOC
	total, _, err := chapters.CountByBook(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

/*
TestRefresh_MergesPreservingBodies verifies new chapters insert while
downloaded ones keep their state.
*/
func TestRefresh_MergesPreservingBodies(t *testing.T) {
	client := &fakeClient{
		provider: source.ProviderFanqie,
		detail:   &source.BookDetail{Title: "遮天"},
		catalog: &source.Catalog{
			TotalChapters: 1,
			Chapters:      []source.TocItem{{ItemID: "i1", Title: "第一章", ChapterIndex: 0}},
		},
	}

	service, _, chapters := newTestService(t, client)

	created, err := service.Add(context.Background(), source.ProviderFanqie, "fq-8")
	require.NoError(t, err)

	// Mark the single chapter downloaded
	toc, _ := chapters.ListByBook(context.Background(), created.ID)
	require.NoError(t, chapters.SetCompleted(context.Background(), toc[0].ID, "books/x/chapters/0000.txt", 3000))

	client.catalog = &source.Catalog{
		TotalChapters: 2,
		Chapters: []source.TocItem{
			{ItemID: "i1", Title: "第一章", ChapterIndex: 0},
			{ItemID: "i2", Title: "第二章", ChapterIndex: 1},
		},
	}

	_, added, err := service.Refresh(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	total, downloaded, err := chapters.CountByBook(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, downloaded, "refresh must not clear downloaded state")
}

/*
TestDelete_RemovesBlobTree verifies catalog deletion also clears stored
bodies.
*/
func TestDelete_RemovesBlobTree(t *testing.T) {
	client := &fakeClient{
		provider: source.ProviderBiquge,
		detail:   &source.BookDetail{Title: "牧神记"},
		catalog:  &source.Catalog{TotalChapters: 1, Chapters: []source.TocItem{{ItemID: "u1", Title: "第一章"}}},
	}

	service, books, _ := newTestService(t, client)

	created, err := service.Add(context.Background(), source.ProviderBiquge, "bq-1")
	require.NoError(t, err)

	require.NoError(t, service.Delete(context.Background(), created.ID, true))
	assert.Empty(t, books.books)

	err = service.Delete(context.Background(), created.ID, true)
	assert.True(t, apperr.IsAppError(err))
}

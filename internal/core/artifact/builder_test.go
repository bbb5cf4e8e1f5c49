// Copyright (c) 2026 Shuhai. All rights reserved.

package artifact

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/store/blob"
)

// # Test Fakes

type fakeBooks struct {
	books map[string]*book.Book
}

func newFakeBooks() *fakeBooks {
	return &fakeBooks{books: make(map[string]*book.Book)}
}

func (repo *fakeBooks) List(_ context.Context, _ book.Filter, _, _ int) ([]*book.Book, int, error) {
	return nil, 0, nil
}

func (repo *fakeBooks) FindByID(_ context.Context, id string) (*book.Book, error) {
	if found, ok := repo.books[id]; ok {
		clone := *found
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
	chapters map[string][]*book.Chapter // keyed by book ID, index order
}

func newFakeChapters() *fakeChapters {
	return &fakeChapters{chapters: make(map[string][]*book.Chapter)}
}

func (repo *fakeChapters) ListByBook(_ context.Context, bookID string) ([]*book.Chapter, error) {
	var out []*book.Chapter
	for _, chapter := range repo.chapters[bookID] {
		clone := *chapter
		out = append(out, &clone)
	}
	return out, nil
}

func (repo *fakeChapters) FindByIndex(_ context.Context, bookID string, index int) (*book.Chapter, error) {
	for _, chapter := range repo.chapters[bookID] {
		if chapter.Index == index {
			clone := *chapter
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("chapter")
}

func (repo *fakeChapters) FindByID(_ context.Context, chapterID string) (*book.Chapter, error) {
	for _, list := range repo.chapters {
		for _, chapter := range list {
			if chapter.ID == chapterID {
				clone := *chapter
				return &clone, nil
			}
		}
	}
	return nil, apperr.NotFound("chapter")
}

func (repo *fakeChapters) UpsertCatalog(_ context.Context, bookID string, fresh []*book.Chapter) error {
	repo.chapters[bookID] = append(repo.chapters[bookID], fresh...)
	return nil
}

func (repo *fakeChapters) SetCompleted(_ context.Context, chapterID, contentRef string, wordCount int) error {
	for _, list := range repo.chapters {
		for _, chapter := range list {
			if chapter.ID == chapterID {
				chapter.Status = book.ChapterCompleted
				chapter.ContentRef = contentRef
				chapter.WordCount = wordCount
			}
		}
	}
	return nil
}

func (repo *fakeChapters) SetFailed(_ context.Context, _ string) error { return nil }

func (repo *fakeChapters) ResetCompleted(_ context.Context, _ string, _, _ int) error { return nil }

func (repo *fakeChapters) ResetFailed(_ context.Context, _ string) (int, error) { return 0, nil }

func (repo *fakeChapters) CountByBook(_ context.Context, bookID string) (int, int, error) {
	completed := 0
	for _, chapter := range repo.chapters[bookID] {
		if chapter.Status == book.ChapterCompleted {
			completed++
		}
	}
	return len(repo.chapters[bookID]), completed, nil
}

// # Fixture

type builderFixture struct {
	builder  *Builder
	books    *fakeBooks
	chapters *fakeChapters
	blobs    *blob.Store
	owner    *book.Book
}

func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()

	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	books := newFakeBooks()
	chapters := newFakeChapters()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := NewBuilder(books, chapters, blobs, Metadata{Language: "zh-CN", Publisher: "Shuhai"}, logger)

	return &builderFixture{
		builder:  builder,
		books:    books,
		chapters: chapters,
		blobs:    blobs,
	}
}

// seedBook stores one book with n completed chapters, bodies in the blob store.
func (fixture *builderFixture) seedBook(t *testing.T, n int) *book.Book {
	t.Helper()

	owner := &book.Book{
		ID:             "0192aa00-0000-7000-8000-000000000001",
		Provider:       "fanqie",
		ProviderBookID: "7100000001",
		Title:          "斗破苍穹",
		Author:         "天蚕土豆",
		TotalChapters:  n,
	}
	require.NoError(t, fixture.books.Create(context.Background(), owner))

	for index := 0; index < n; index++ {
		ref, err := fixture.blobs.WriteChapter(owner.ID, index, fmt.Sprintf("第%d章正文。\n<试读>段落", index+1))
		require.NoError(t, err)

		volume := "第一卷"
		if index >= 2 {
			volume = "第二卷"
		}
		fixture.chapters.chapters[owner.ID] = append(fixture.chapters.chapters[owner.ID], &book.Chapter{
			ID:         fmt.Sprintf("chapter-%03d", index),
			BookID:     owner.ID,
			Index:      index,
			Title:      fmt.Sprintf("第%d章", index+1),
			VolumeName: volume,
			Status:     book.ChapterCompleted,
			ContentRef: ref,
		})
	}

	fixture.owner = owner
	return owner
}

func (fixture *builderFixture) waitReady(t *testing.T, bookID string, kind blob.Kind) *State {
	t.Helper()

	var state *State
	require.Eventually(t, func() bool {
		state = fixture.builder.State(bookID, kind)
		return state != nil && state.Status != StatusBuilding
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, StatusReady, state.Status, "build failed: %s", state.Error)
	return state
}

// # Tests

func TestBuilderAssemblesEpub(t *testing.T) {
	fixture := newBuilderFixture(t)
	owner := fixture.seedBook(t, 4)

	state, err := fixture.builder.Ensure(context.Background(), owner.ID, blob.KindEpub)
	require.NoError(t, err)
	assert.Equal(t, StatusBuilding, state.Status)

	state = fixture.waitReady(t, owner.ID, blob.KindEpub)
	assert.Equal(t, 4, state.Chapters)
	require.True(t, fixture.blobs.HasArtifact(state.Path))

	reader, err := zip.OpenReader(state.Path)
	require.NoError(t, err)
	defer reader.Close()

	require.NotEmpty(t, reader.File)
	first := reader.File[0]
	assert.Equal(t, "mimetype", first.Name)
	assert.Equal(t, zip.Store, first.Method)
	assert.Equal(t, "application/epub+zip", readZipEntry(t, first))

	entries := make(map[string]string)
	for _, file := range reader.File {
		entries[file.Name] = readZipEntry(t, file)
	}

	require.Contains(t, entries, "META-INF/container.xml")
	assert.Contains(t, entries["META-INF/container.xml"], "OEBPS/content.opf")

	opf := entries["OEBPS/content.opf"]
	assert.Contains(t, opf, "<dc:title>斗破苍穹</dc:title>")
	assert.Contains(t, opf, "<dc:creator>天蚕土豆</dc:creator>")
	assert.Contains(t, opf, "urn:uuid:"+owner.ID)
	assert.Contains(t, opf, "<dc:language>zh-CN</dc:language>")
	assert.Contains(t, opf, "<dc:publisher>Shuhai</dc:publisher>")
	assert.NotContains(t, opf, "cover.jpg", "coverless book must not reference a cover item")

	nav := entries["OEBPS/nav.xhtml"]
	assert.Contains(t, nav, "第一卷")
	assert.Contains(t, nav, "第二卷")
	assert.Contains(t, nav, `<a href="chapter-0001.xhtml">第1章</a>`)

	require.Contains(t, entries, "OEBPS/toc.ncx")
	assert.Contains(t, entries["OEBPS/toc.ncx"], `playOrder="1"`)

	chapter := entries["OEBPS/chapter-0001.xhtml"]
	assert.Contains(t, chapter, "<h2>第1章</h2>")
	assert.Contains(t, chapter, "&lt;试读&gt;段落", "markup in chapter bodies must be escaped")
}

func TestBuilderEmbedsCover(t *testing.T) {
	fixture := newBuilderFixture(t)
	owner := fixture.seedBook(t, 1)

	ref, err := fixture.blobs.WriteCover(owner.ID, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	require.NoError(t, err)
	owner.CoverRef = ref
	require.NoError(t, fixture.books.Update(context.Background(), owner))

	_, err = fixture.builder.Ensure(context.Background(), owner.ID, blob.KindEpub)
	require.NoError(t, err)
	state := fixture.waitReady(t, owner.ID, blob.KindEpub)

	reader, err := zip.OpenReader(state.Path)
	require.NoError(t, err)
	defer reader.Close()

	var opf string
	found := false
	for _, file := range reader.File {
		if file.Name == "OEBPS/cover.jpg" {
			found = true
		}
		if file.Name == "OEBPS/content.opf" {
			opf = readZipEntry(t, file)
		}
	}
	assert.True(t, found)
	assert.Contains(t, opf, `properties="cover-image"`)
}

func TestBuilderAssemblesTxt(t *testing.T) {
	fixture := newBuilderFixture(t)
	owner := fixture.seedBook(t, 3)

	_, err := fixture.builder.Ensure(context.Background(), owner.ID, blob.KindTxt)
	require.NoError(t, err)
	state := fixture.waitReady(t, owner.ID, blob.KindTxt)

	raw, err := os.ReadFile(state.Path)
	require.NoError(t, err)
	text := string(raw)

	assert.Contains(t, text, "==== 第一卷 ====")
	assert.Contains(t, text, "==== 第二卷 ====")
	assert.Contains(t, text, "第1章\n")
	assert.Contains(t, text, "第3章正文。")
	assert.Less(t, strings.Index(text, "第1章"), strings.Index(text, "第2章"))
}

func TestBuilderRejectsEmptyBook(t *testing.T) {
	fixture := newBuilderFixture(t)
	owner := fixture.seedBook(t, 0)

	_, err := fixture.builder.Ensure(context.Background(), owner.ID, blob.KindEpub)
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestBuilderUnknownBook(t *testing.T) {
	fixture := newBuilderFixture(t)

	_, err := fixture.builder.Ensure(context.Background(), "0192aa00-0000-7000-8000-00000000dead", blob.KindEpub)
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestBuilderReusesFreshArtifact(t *testing.T) {
	fixture := newBuilderFixture(t)
	owner := fixture.seedBook(t, 2)

	_, err := fixture.builder.Ensure(context.Background(), owner.ID, blob.KindTxt)
	require.NoError(t, err)
	first := fixture.waitReady(t, owner.ID, blob.KindTxt)

	again, err := fixture.builder.Ensure(context.Background(), owner.ID, blob.KindTxt)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, again.Status)
	assert.Equal(t, first.UpdatedAt, again.UpdatedAt, "a fresh artifact must not be rebuilt")
}

func TestBuilderRebuildsWhenChaptersGrow(t *testing.T) {
	fixture := newBuilderFixture(t)
	owner := fixture.seedBook(t, 2)

	_, err := fixture.builder.Ensure(context.Background(), owner.ID, blob.KindTxt)
	require.NoError(t, err)
	fixture.waitReady(t, owner.ID, blob.KindTxt)

	ref, err := fixture.blobs.WriteChapter(owner.ID, 2, "新章节正文。")
	require.NoError(t, err)
	fixture.chapters.chapters[owner.ID] = append(fixture.chapters.chapters[owner.ID], &book.Chapter{
		ID:         "chapter-002",
		BookID:     owner.ID,
		Index:      2,
		Title:      "第3章",
		Status:     book.ChapterCompleted,
		ContentRef: ref,
	})

	state, err := fixture.builder.Ensure(context.Background(), owner.ID, blob.KindTxt)
	require.NoError(t, err)
	assert.Equal(t, StatusBuilding, state.Status)

	state = fixture.waitReady(t, owner.ID, blob.KindTxt)
	assert.Equal(t, 3, state.Chapters)

	raw, err := os.ReadFile(state.Path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "新章节正文。")
}

func readZipEntry(t *testing.T, file *zip.File) string {
	t.Helper()

	reader, err := file.Open()
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	return string(data)
}

// Copyright (c) 2026 Shuhai. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// # Biquge Client

// biqugeClient speaks the biquge endpoints of the Rain API.
//
// biquge is the sparsest provider: no per-chapter word counts, no volume
// structure and no update timestamps. Word counts for its chapters are
// derived from the downloaded body instead of the TOC. It is also the
// unmetered provider for quota purposes (see Provider.Metered).
type biqugeClient struct {
	rain *rainClient
}

// NewBiquge returns a Client for the biquge provider.
func NewBiquge(opts Options) Client {
	return &biqugeClient{rain: newRainClient(ProviderBiquge, opts)}
}

func (c *biqugeClient) Provider() Provider { return ProviderBiquge }

// biquge response shapes.
type biqugeSearchPayload struct {
	Total int `json:"total"`
	Books []struct {
		URL    string `json:"url"`
		Name   string `json:"name"`
		Author string `json:"author"`
		Cover  string `json:"cover"`
		Intro  string `json:"intro"`
		Status string `json:"status"`
	} `json:"books"`
}

type biqugeDetailPayload struct {
	Name        string `json:"name"`
	Author      string `json:"author"`
	Cover       string `json:"cover"`
	Intro       string `json:"intro"`
	Status      string `json:"status"`
	LastChapter string `json:"last_chapter"`
}

type biqugeTocPayload struct {
	Chapters []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"chapters"`
}

type biqugeContentPayload struct {
	Content string `json:"content"`
}

func (c *biqugeClient) Search(ctx context.Context, keyword string, page int) (*SearchResult, error) {
	query := url.Values{}
	query.Set("keyword", keyword)
	query.Set("page", strconv.Itoa(page))

	var payload biqugeSearchPayload
	if err := c.rain.getJSON(ctx, "/api/v1/biquge/search", query, &payload); err != nil {
		return nil, err
	}

	result := &SearchResult{Total: payload.Total, Page: page, Books: make([]SearchBook, 0, len(payload.Books))}
	for _, book := range payload.Books {
		result.Books = append(result.Books, SearchBook{
			ProviderBookID: book.URL,
			Title:          book.Name,
			Author:         book.Author,
			CoverURL:       book.Cover,
			Abstract:       book.Intro,
			StatusText:     book.Status,
		})
	}
	return result, nil
}

func (c *biqugeClient) GetBookDetail(ctx context.Context, providerBookID string) (*BookDetail, error) {
	query := url.Values{}
	query.Set("book_url", providerBookID)

	var payload biqugeDetailPayload
	if err := c.rain.getJSON(ctx, "/api/v1/biquge/detail", query, &payload); err != nil {
		return nil, err
	}

	return &BookDetail{
		Title:            payload.Name,
		Author:           payload.Author,
		CoverURL:         payload.Cover,
		Abstract:         payload.Intro,
		StatusText:       payload.Status,
		LastChapterTitle: payload.LastChapter,
	}, nil
}

func (c *biqugeClient) GetChapterList(ctx context.Context, providerBookID string) (*Catalog, error) {
	query := url.Values{}
	query.Set("book_url", providerBookID)

	var payload biqugeTocPayload
	if err := c.rain.getJSON(ctx, "/api/v1/biquge/catalog", query, &payload); err != nil {
		return nil, err
	}

	catalog := &Catalog{
		TotalChapters: len(payload.Chapters),
		Chapters:      make([]TocItem, 0, len(payload.Chapters)),
	}
	for index, chapter := range payload.Chapters {
		catalog.Chapters = append(catalog.Chapters, TocItem{
			ItemID:       chapter.URL,
			Title:        chapter.Title,
			ChapterIndex: index,
		})
	}
	return catalog, nil
}

// GetChapterContent ignores the book hint: biquge chapter URLs are
// self-contained.
func (c *biqugeClient) GetChapterContent(ctx context.Context, itemID, _ string) (*ChapterContent, error) {
	query := url.Values{}
	query.Set("chapter_url", itemID)

	var payload biqugeContentPayload
	if err := c.rain.getJSON(ctx, "/api/v1/biquge/content", query, &payload); err != nil {
		return nil, err
	}

	if payload.Content == "" {
		return nil, fmt.Errorf("%w: empty content for chapter %s", ErrInvalidResponse, itemID)
	}

	return &ChapterContent{Kind: KindText, Text: payload.Content}, nil
}

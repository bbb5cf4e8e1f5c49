// Copyright (c) 2026 Shuhai. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// # Qimao Client

// qimaoClient speaks the qimao endpoints of the Rain API.
//
// qimao's content endpoint is keyed by (book_id, chapter_id), so every
// GetChapterContent call must carry the owning book as its hint. The
// client itself holds no per-book state and is shared freely across
// concurrent tasks and fetches.
type qimaoClient struct {
	rain *rainClient
}

// NewQimao returns a Client for the qimao provider.
func NewQimao(opts Options) Client {
	return &qimaoClient{rain: newRainClient(ProviderQimao, opts)}
}

func (c *qimaoClient) Provider() Provider { return ProviderQimao }

// qimao response shapes.
type qimaoSearchPayload struct {
	Total int `json:"total"`
	Books []struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		Author       string `json:"author"`
		ImageLink    string `json:"image_link"`
		Intro        string `json:"intro"`
		WordsNum     int64  `json:"words_num,string"`
		UpdateStatus string `json:"update_status"`
	} `json:"books"`
}

type qimaoDetailPayload struct {
	Title        string `json:"title"`
	Author       string `json:"author"`
	ImageLink    string `json:"image_link"`
	Intro        string `json:"intro"`
	UpdateStatus string `json:"update_status"`
	LatestName   string `json:"latest_chapter_name"`
	UpdateTime   int64  `json:"update_time"`
}

type qimaoTocPayload struct {
	Chapters []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		WordsNum int    `json:"words_num,string"`
	} `json:"chapters"`
}

type qimaoContentPayload struct {
	Content string `json:"content"`
}

func (c *qimaoClient) Search(ctx context.Context, keyword string, page int) (*SearchResult, error) {
	query := url.Values{}
	query.Set("keyword", keyword)
	query.Set("page", strconv.Itoa(page))

	var payload qimaoSearchPayload
	if err := c.rain.getJSON(ctx, "/api/v1/qimao/search", query, &payload); err != nil {
		return nil, err
	}

	result := &SearchResult{Total: payload.Total, Page: page, Books: make([]SearchBook, 0, len(payload.Books))}
	for _, book := range payload.Books {
		result.Books = append(result.Books, SearchBook{
			ProviderBookID: book.ID,
			Title:          book.Title,
			Author:         book.Author,
			CoverURL:       book.ImageLink,
			Abstract:       book.Intro,
			WordCount:      book.WordsNum,
			StatusText:     book.UpdateStatus,
		})
	}
	return result, nil
}

func (c *qimaoClient) GetBookDetail(ctx context.Context, providerBookID string) (*BookDetail, error) {
	query := url.Values{}
	query.Set("book_id", providerBookID)

	var payload qimaoDetailPayload
	if err := c.rain.getJSON(ctx, "/api/v1/qimao/detail", query, &payload); err != nil {
		return nil, err
	}

	return &BookDetail{
		Title:            payload.Title,
		Author:           payload.Author,
		CoverURL:         payload.ImageLink,
		Abstract:         payload.Intro,
		StatusText:       payload.UpdateStatus,
		LastChapterTitle: payload.LatestName,
		LastUpdateUnix:   payload.UpdateTime,
	}, nil
}

func (c *qimaoClient) GetChapterList(ctx context.Context, providerBookID string) (*Catalog, error) {
	query := url.Values{}
	query.Set("book_id", providerBookID)

	var payload qimaoTocPayload
	if err := c.rain.getJSON(ctx, "/api/v1/qimao/catalog", query, &payload); err != nil {
		return nil, err
	}

	catalog := &Catalog{
		TotalChapters: len(payload.Chapters),
		Chapters:      make([]TocItem, 0, len(payload.Chapters)),
	}
	for index, chapter := range payload.Chapters {
		catalog.Chapters = append(catalog.Chapters, TocItem{
			ItemID:       chapter.ID,
			Title:        chapter.Title,
			ChapterIndex: index,
			WordCount:    chapter.WordsNum,
		})
	}
	return catalog, nil
}

func (c *qimaoClient) GetChapterContent(ctx context.Context, itemID, bookHint string) (*ChapterContent, error) {
	if bookHint == "" {
		return nil, fmt.Errorf("%w: qimao content requires a book hint", ErrInvalidResponse)
	}

	query := url.Values{}
	query.Set("book_id", bookHint)
	query.Set("chapter_id", itemID)

	var payload qimaoContentPayload
	if err := c.rain.getJSON(ctx, "/api/v1/qimao/content", query, &payload); err != nil {
		return nil, err
	}

	if payload.Content == "" {
		return nil, fmt.Errorf("%w: empty content for chapter %s", ErrInvalidResponse, itemID)
	}

	return &ChapterContent{Kind: KindText, Text: payload.Content}, nil
}

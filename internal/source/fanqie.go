// Copyright (c) 2026 Shuhai. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// # Fanqie Client

// fanqieClient speaks the fanqie endpoints of the Rain API.
//
// fanqie is the richest provider: per-chapter word counts, volume names and
// update timestamps are all present in the TOC, and some chapters are
// listen-only audio items.
type fanqieClient struct {
	rain *rainClient
}

// NewFanqie returns a Client for the fanqie provider.
func NewFanqie(opts Options) Client {
	return &fanqieClient{rain: newRainClient(ProviderFanqie, opts)}
}

func (c *fanqieClient) Provider() Provider { return ProviderFanqie }

// fanqie response shapes.
type fanqieSearchPayload struct {
	Total int `json:"total"`
	Books []struct {
		BookID       string `json:"book_id"`
		BookName     string `json:"book_name"`
		Author       string `json:"author"`
		ThumbURL     string `json:"thumb_url"`
		Abstract     string `json:"abstract"`
		WordNumber   int64  `json:"word_number,string"`
		SerialStatus string `json:"serial_status"`
	} `json:"books"`
}

type fanqieDetailPayload struct {
	BookName        string `json:"book_name"`
	Author          string `json:"author"`
	ThumbURL        string `json:"thumb_url"`
	Abstract        string `json:"abstract"`
	SerialStatus    string `json:"serial_status"`
	LastChapter     string `json:"last_chapter_title"`
	LastPublishTime int64  `json:"last_publish_time,string"`
}

type fanqieTocPayload struct {
	ItemList []struct {
		ItemID        string `json:"item_id"`
		Title         string `json:"title"`
		VolumeName    string `json:"volume_name"`
		WordNumber    int    `json:"word_number,string"`
		FirstPassTime int64  `json:"first_pass_time,string"`
	} `json:"item_list"`
}

type fanqieContentPayload struct {
	ItemType string `json:"item_type"`
	Content  string `json:"content"`
}

func (c *fanqieClient) Search(ctx context.Context, keyword string, page int) (*SearchResult, error) {
	query := url.Values{}
	query.Set("keyword", keyword)
	query.Set("page", strconv.Itoa(page))

	var payload fanqieSearchPayload
	if err := c.rain.getJSON(ctx, "/api/v1/fanqie/search", query, &payload); err != nil {
		return nil, err
	}

	result := &SearchResult{Total: payload.Total, Page: page, Books: make([]SearchBook, 0, len(payload.Books))}
	for _, book := range payload.Books {
		result.Books = append(result.Books, SearchBook{
			ProviderBookID: book.BookID,
			Title:          book.BookName,
			Author:         book.Author,
			CoverURL:       book.ThumbURL,
			Abstract:       book.Abstract,
			WordCount:      book.WordNumber,
			StatusText:     book.SerialStatus,
		})
	}
	return result, nil
}

func (c *fanqieClient) GetBookDetail(ctx context.Context, providerBookID string) (*BookDetail, error) {
	query := url.Values{}
	query.Set("book_id", providerBookID)

	var payload fanqieDetailPayload
	if err := c.rain.getJSON(ctx, "/api/v1/fanqie/detail", query, &payload); err != nil {
		return nil, err
	}

	return &BookDetail{
		Title:            payload.BookName,
		Author:           payload.Author,
		CoverURL:         payload.ThumbURL,
		Abstract:         payload.Abstract,
		StatusText:       payload.SerialStatus,
		LastChapterTitle: payload.LastChapter,
		LastUpdateUnix:   payload.LastPublishTime,
	}, nil
}

func (c *fanqieClient) GetChapterList(ctx context.Context, providerBookID string) (*Catalog, error) {
	query := url.Values{}
	query.Set("book_id", providerBookID)

	var payload fanqieTocPayload
	if err := c.rain.getJSON(ctx, "/api/v1/fanqie/catalog", query, &payload); err != nil {
		return nil, err
	}

	catalog := &Catalog{
		TotalChapters: len(payload.ItemList),
		Chapters:      make([]TocItem, 0, len(payload.ItemList)),
	}
	for index, item := range payload.ItemList {
		catalog.Chapters = append(catalog.Chapters, TocItem{
			ItemID:       item.ItemID,
			Title:        item.Title,
			VolumeName:   item.VolumeName,
			ChapterIndex: index,
			WordCount:    item.WordNumber,
			UpdateUnix:   item.FirstPassTime,
		})
	}
	return catalog, nil
}

// GetChapterContent ignores the book hint: fanqie chapter item IDs are
// globally unique.
func (c *fanqieClient) GetChapterContent(ctx context.Context, itemID, _ string) (*ChapterContent, error) {
	query := url.Values{}
	query.Set("item_id", itemID)

	var payload fanqieContentPayload
	if err := c.rain.getJSON(ctx, "/api/v1/fanqie/content", query, &payload); err != nil {
		return nil, err
	}

	if payload.ItemType == "audio" {
		return nil, fmt.Errorf("%w: item %s", ErrAudioChapter, itemID)
	}

	if payload.Content == "" {
		return nil, fmt.Errorf("%w: empty content for item %s", ErrInvalidResponse, itemID)
	}

	return &ChapterContent{Kind: KindText, Text: payload.Content}, nil
}

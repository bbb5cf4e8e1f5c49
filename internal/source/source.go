// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package source defines the upstream provider capability set and its three
concrete implementations (fanqie, qimao, biquge).

All providers are reached through the Rain aggregation API. Each client owns
its own pacing limiter and retry schedule; callers see a uniform [Client]
interface and a small error taxonomy that the download engine maps onto
per-chapter outcomes.

Architecture:

  - Client: the capability interface (search, detail, TOC, chapter body).
  - rainClient: shared HTTP plumbing (auth header, retries, rate pacing).
  - One concrete client per provider handling its response quirks.
*/
package source

import (
	"context"
	"unicode"
)

// # Providers

// Provider identifies an upstream content source. It is stored on every
// book row and selects the client used for all of that book's fetches.
type Provider string

const (
	ProviderFanqie Provider = "fanqie"
	ProviderQimao  Provider = "qimao"
	ProviderBiquge Provider = "biquge"
)

// All returns every supported provider.
func All() []Provider {
	return []Provider{ProviderFanqie, ProviderQimao, ProviderBiquge}
}

// Valid reports whether p names a supported provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderFanqie, ProviderQimao, ProviderBiquge:
		return true
	}
	return false
}

// Metered reports whether downloads from p count against the daily word
// quota. biquge is the designated unmetered provider.
func (p Provider) Metered() bool {
	return p != ProviderBiquge
}

// # Result Types

// SearchBook is one hit in a provider search result.
type SearchBook struct {
	ProviderBookID string `json:"provider_book_id"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	CoverURL       string `json:"cover_url"`
	Abstract       string `json:"abstract"`
	WordCount      int64  `json:"word_count,omitempty"`
	StatusText     string `json:"status_text"`
}

// SearchResult is a single page of search hits.
type SearchResult struct {
	Books []SearchBook `json:"books"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
}

// BookDetail is the provider's metadata for one book.
type BookDetail struct {
	Title            string `json:"title"`
	Author           string `json:"author"`
	CoverURL         string `json:"cover_url"`
	Abstract         string `json:"abstract"`
	StatusText       string `json:"status_text"`
	LastChapterTitle string `json:"last_chapter_title"`
	LastUpdateUnix   int64  `json:"last_update_unix"`
}

// TocItem is one entry of a provider chapter list.
//
// ChapterIndex is 0-based and dense within the book; providers that number
// differently are re-indexed by their client before the item leaves this
// package.
type TocItem struct {
	ItemID       string `json:"item_id"`
	Title        string `json:"title"`
	VolumeName   string `json:"volume_name,omitempty"`
	ChapterIndex int    `json:"chapter_index"`
	WordCount    int    `json:"word_count"`
	UpdateUnix   int64  `json:"update_unix,omitempty"`
}

// Catalog is a full provider chapter list.
type Catalog struct {
	TotalChapters int       `json:"total_chapters"`
	Chapters      []TocItem `json:"chapters"`
}

// ContentKind discriminates chapter body payloads.
type ContentKind string

const (
	// KindText is plain chapter text, the only kind persisted downstream.
	KindText ContentKind = "text"
	// KindAudio marks listen-only chapters. They cannot be stored as text
	// and are treated as a per-chapter failure by the engine.
	KindAudio ContentKind = "audio"
)

// ChapterContent is a fetched chapter body.
type ChapterContent struct {
	Kind ContentKind
	// Text is the UTF-8 chapter body; empty for KindAudio.
	Text string
}

// # Capability Interface

// Client is the per-provider capability set consumed by the download engine
// and the catalog service.
//
// Implementations are safe for concurrent use by multiple workers.
type Client interface {
	// Provider returns the provider this client speaks for.
	Provider() Provider

	// Search returns one page of title/author matches for a keyword.
	Search(ctx context.Context, keyword string, page int) (*SearchResult, error)

	// GetBookDetail fetches book metadata by the provider-native book ID.
	GetBookDetail(ctx context.Context, providerBookID string) (*BookDetail, error)

	// GetChapterList fetches the full table of contents. The returned
	// chapter indexes are 0-based and dense.
	GetChapterList(ctx context.Context, providerBookID string) (*Catalog, error)

	// GetChapterContent fetches one chapter body by its provider-native
	// item ID. bookHint carries the provider-native book ID of the owning
	// book: qimao keys its content endpoint by (book_id, chapter_id) and
	// rejects calls without it; other providers ignore the hint.
	GetChapterContent(ctx context.Context, itemID, bookHint string) (*ChapterContent, error)
}

// Factory resolves a provider name to a ready client.
type Factory func(p Provider) (Client, error)

// # Helpers

// WordCount counts the non-whitespace runes of a chapter body.
//
// CJK prose has no word separators, so a rune count is the conventional
// "word" measure used for quota accounting.
func WordCount(text string) int {
	count := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

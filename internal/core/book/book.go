// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package book defines the core catalog entities of the Shuhai library.

It manages the lifecycle of ingested novels: provider identity, metadata,
the chapter table of contents, and the aggregate download state that the
task engine advances as chapter bodies arrive.

Core Responsibility:

  - Catalog: One row per (provider, provider_book_id) pair with metadata.
  - TOC: Dense 0-based chapter indexes mapping to provider item IDs.
  - State: Download status rollup (pending, downloading, partial, ...).

Chapter bodies themselves live in the blob store; rows here carry only
content references.
*/
package book

import (
	"time"

	"github.com/wenqiu/shuhai/internal/source"
)

// # Domain Enums

// DownloadStatus is the aggregate download state of a book.
type DownloadStatus string

const (
	// DownloadPending marks a book whose chapters have not been requested.
	DownloadPending DownloadStatus = "pending"

	// DownloadDownloading marks a book with an active download task.
	DownloadDownloading DownloadStatus = "downloading"

	// DownloadCompleted marks a book with every chapter stored.
	DownloadCompleted DownloadStatus = "completed"

	// DownloadPartial marks a book where some chapters failed or the task
	// was cancelled mid-flight.
	DownloadPartial DownloadStatus = "partial"

	// DownloadFailed marks a book whose last task produced no chapters.
	DownloadFailed DownloadStatus = "failed"
)

// IsValid reports whether s is a recognised [DownloadStatus] value.
func (s DownloadStatus) IsValid() bool {
	switch s {
	case
		DownloadPending,
		DownloadDownloading,
		DownloadCompleted,
		DownloadPartial,
		DownloadFailed:
		return true
	}
	return false
}

// ChapterStatus is the download state of a single chapter.
type ChapterStatus string

const (
	// ChapterPending marks a chapter whose body has not been stored.
	ChapterPending ChapterStatus = "pending"

	// ChapterCompleted marks a chapter whose body is in the blob store.
	ChapterCompleted ChapterStatus = "completed"

	// ChapterFailed marks a chapter whose last fetch attempt failed.
	ChapterFailed ChapterStatus = "failed"
)

// # Core Entities

// Book is the central aggregate of the Shuhai domain. It represents one
// ingested novel from one provider.
type Book struct {
	ID             string          `json:"id"`
	Provider       source.Provider `json:"provider"`
	ProviderBookID string          `json:"provider_book_id"`

	Title            string `json:"title"`
	Author           string `json:"author"`
	CoverURL         string `json:"cover_url"`
	CoverRef         string `json:"-"` // blob reference for the cached cover
	Abstract         string `json:"abstract"`
	StatusText       string `json:"status_text"` // provider serialisation label, e.g. "已完结"
	LastChapterTitle string `json:"last_chapter_title"`
	LastUpdateUnix   int64  `json:"last_update_unix"`

	// # Download Rollup
	// Maintained by the task engine as chapter bodies land.
	TotalChapters      int            `json:"total_chapters"`
	DownloadedChapters int            `json:"downloaded_chapters"`
	DownloadStatus     DownloadStatus `json:"download_status"`
	ErrorMessage       string         `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chapter is one TOC entry of a [Book].
//
// Index is 0-based and dense within the book. ContentRef is empty until the
// chapter body has been persisted to the blob store.
type Chapter struct {
	ID             string        `json:"id"`
	BookID         string        `json:"book_id"`
	Index          int           `json:"index"`
	ProviderItemID string        `json:"-"`
	Title          string        `json:"title"`
	VolumeName     string        `json:"volume_name,omitempty"`
	WordCount      int           `json:"word_count"`
	ContentRef     string        `json:"-"`
	Status         ChapterStatus `json:"status"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// # Search & Filtering

// Filter holds the parameters for a filtered book list query.
type Filter struct {
	Provider source.Provider `json:"provider,omitempty"`
	Status   DownloadStatus  `json:"status,omitempty"`
	Query    string          `json:"q,omitempty"` // title/author substring match
}

// Summary is the aggregate shelf statistic exposed on the stats endpoint.
type Summary struct {
	TotalBooks      int            `json:"total_books"`
	TotalChapters   int            `json:"total_chapters"`
	DownloadedWords int64          `json:"downloaded_words"`
	ByStatus        map[string]int `json:"by_status"`
	ByProvider      map[string]int `json:"by_provider"`
}

// # Field Identifiers

// Global field names for validation and response mapping.
const (
	FieldProvider       = "provider"
	FieldProviderBookID = "provider_book_id"
	FieldKeyword        = "keyword"
	FieldStatus         = "status"
)

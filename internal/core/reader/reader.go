// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package reader implements the reading surface over the local catalog.

It serves paged TOC views, chapter bodies with fetch-on-demand and
opportunistic prefetch, and the cross-device sync state: reading progress,
bookmarks and reading history.

Chapter bodies come from the blob store when present; a missing body is
fetched synchronously through the download engine's single-chapter path,
subject to the daily word quota.
*/
package reader

import "time"

// # Content Formats

const (
	FormatText = "text"
	FormatHTML = "html"
)

// Navigation directions for chapter content requests.
const (
	RangePrev = "prev"
	RangeNext = "next"
)

// Content availability states.
const (
	// StatusReady means the body is present and included in the response.
	StatusReady = "ready"
	// StatusFetching means the body is not yet available; the message
	// carries the reason.
	StatusFetching = "fetching"
)

// Prefetch bounds per content request.
const (
	MaxPrefetch = 5

	// DefaultTocLimit is the page size of the TOC view.
	DefaultTocLimit = 50
	MaxTocLimit     = 500
)

// historyCap bounds stored history rows per (user, book). The oldest
// entries are trimmed on append.
const historyCap = 1000

// # Sync Entities

// Progress is the single cross-device reading position of a user in one
// book. The latest writer wins; DeviceID records who wrote last.
type Progress struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	ChapterID string    `json:"chapter_id"`
	DeviceID  string    `json:"device_id,omitempty"`
	OffsetPx  int       `json:"offset_px"`
	Percent   float64   `json:"percent"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bookmark is one saved position; a user may hold many per book.
type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	ChapterID string    `json:"chapter_id"`
	OffsetPx  int       `json:"offset_px"`
	Percent   float64   `json:"percent"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry is one append-only record written alongside each progress
// update.
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	ChapterID string    `json:"chapter_id"`
	DeviceID  string    `json:"device_id,omitempty"`
	Percent   float64   `json:"percent"`
	CreatedAt time.Time `json:"created_at"`
}

// Device summarizes one device seen in a book's history.
type Device struct {
	DeviceID string    `json:"device_id"`
	LastSeen time.Time `json:"last_seen"`
}

// # Read Views

// ChapterView is the content response for one chapter.
type ChapterView struct {
	ID         string `json:"id"`
	BookID     string `json:"book_id"`
	Index      int    `json:"index"`
	Title      string `json:"title"`
	VolumeName string `json:"volume_name,omitempty"`
	WordCount  int    `json:"word_count"`

	// Status is ready when Content is populated, fetching otherwise.
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Format  string `json:"format"`
	Content string `json:"content,omitempty"`

	PrevID string `json:"prev_id,omitempty"`
	NextID string `json:"next_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// CacheStatus lists the locally stored chapters of a book.
type CacheStatus struct {
	BookID      string    `json:"book_id"`
	Completed   []string  `json:"completed"` // chapter UUIDs, index order
	Total       int       `json:"total"`
	GeneratedAt time.Time `json:"generated_at"`
}

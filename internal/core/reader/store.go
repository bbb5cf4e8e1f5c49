// Copyright (c) 2026 Shuhai. All rights reserved.

package reader

import "context"

// # Progress Data Access

// ProgressRepository defines the data access contract for the per-(user,
// book) sync row.
type ProgressRepository interface {

	/*
		Get returns the cross-device sync row, optionally pinned to one
		device.

		Parameters:
		  - context: context.Context
		  - userID: string (UUID)
		  - bookID: string (UUID)
		  - deviceID: string (Empty matches the single row regardless of
		    its last writer)

		Returns:
		  - *Progress: The sync row, nil when absent
		  - error: Storage failures
	*/
	Get(context context.Context, userID, bookID, deviceID string) (*Progress, error)

	/*
		Upsert writes the single sync row of a (user, book) pair.

		Parameters:
		  - context: context.Context
		  - progress: *Progress (Clamped values; DeviceID is the writer)

		Returns:
		  - error: Storage failures
	*/
	Upsert(context context.Context, progress *Progress) error

	/*
		Delete removes the sync row. With a device filter only a row last
		written by that device is removed.

		Parameters:
		  - context: context.Context
		  - userID: string (UUID)
		  - bookID: string (UUID)
		  - deviceID: string (Optional filter)

		Returns:
		  - bool: Whether a row was removed
		  - error: Storage failures
	*/
	Delete(context context.Context, userID, bookID, deviceID string) (bool, error)
}

// # Bookmark Data Access

// BookmarkRepository defines the data access contract for bookmarks.
type BookmarkRepository interface {

	/*
		ListByBook returns a user's bookmarks in one book, newest first.
	*/
	ListByBook(context context.Context, userID, bookID string) ([]*Bookmark, error)

	/*
		FindByID returns one bookmark.

		Returns:
		  - *Bookmark: The stored bookmark
		  - error: apperr.NotFound if missing
	*/
	FindByID(context context.Context, id string) (*Bookmark, error)

	/*
		Create persists a new bookmark.
	*/
	Create(context context.Context, bookmark *Bookmark) error

	/*
		Update persists changes to note, offset and percent.

		Returns:
		  - error: apperr.NotFound if the row is missing
	*/
	Update(context context.Context, bookmark *Bookmark) error

	/*
		Delete removes one bookmark.

		Returns:
		  - error: apperr.NotFound if the row is missing
	*/
	Delete(context context.Context, id string) error
}

// # History Data Access

// HistoryRepository defines the data access contract for the append-only
// reading history.
type HistoryRepository interface {

	/*
		List returns a user's history in one book, newest first, capped.

		Parameters:
		  - context: context.Context
		  - userID: string (UUID)
		  - bookID: string (UUID)
		  - limit: int (Row cap; non-positive falls back to the store cap)

		Returns:
		  - []*HistoryEntry: Newest-first entries
		  - error: Storage failures
	*/
	List(context context.Context, userID, bookID string, limit int) ([]*HistoryEntry, error)

	/*
		Append inserts one entry and trims rows beyond the retention cap
		for the (user, book) pair.
	*/
	Append(context context.Context, entry *HistoryEntry) error

	/*
		Clear removes a user's history in one book.

		Returns:
		  - int: Number of rows removed
		  - error: Storage failures
	*/
	Clear(context context.Context, userID, bookID string) (int, error)

	/*
		Devices returns the devices seen in a (user, book) history with
		their most recent activity, newest first.
	*/
	Devices(context context.Context, userID, bookID string) ([]*Device, error)
}

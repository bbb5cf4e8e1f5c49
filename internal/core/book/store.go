// Copyright (c) 2026 Shuhai. All rights reserved.

package book

import "context"

// # Book Data Access

// BookRepository defines the data access contract for the book catalog.
type BookRepository interface {

	/*
		List returns a filtered, paginated slice of books and the total count.

		Parameters:
		  - context: context.Context
		  - filter: Filter (Criteria for provider, status, search)
		  - limit: int
		  - offset: int

		Returns:
		  - []*Book: Slice of matching catalog records
		  - int: Total count of records matching the filter
		  - error: Database retrieval failures
	*/
	List(context context.Context, filter Filter, limit, offset int) ([]*Book, int, error)

	/*
		FindByID returns the book with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *Book: The hydrated domain entity
		  - error: apperr.NotFound if missing
	*/
	FindByID(context context.Context, id string) (*Book, error)

	/*
		FindByProviderKey returns the book matching a provider-native identity.

		Parameters:
		  - context: context.Context
		  - provider: string
		  - providerBookID: string

		Returns:
		  - *Book: The hydrated domain entity
		  - error: apperr.NotFound if missing
	*/
	FindByProviderKey(context context.Context, provider, providerBookID string) (*Book, error)

	/*
		Create persists a new book to the catalog.

		Parameters:
		  - context: context.Context
		  - book: *Book (Metadata and initial state)

		Returns:
		  - error: apperr.Conflict when the (provider, provider_book_id)
		    pair already exists, otherwise storage failures
	*/
	Create(context context.Context, book *Book) error

	/*
		Update persists changes to a book's metadata fields.

		Parameters:
		  - context: context.Context
		  - book: *Book (Target ID and modified attributes)

		Returns:
		  - error: apperr.NotFound if the row is missing
	*/
	Update(context context.Context, book *Book) error

	/*
		SetDownloadState updates the aggregate download rollup.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - status: DownloadStatus
		  - errorMessage: string (Empty clears a previous failure)

		Returns:
		  - error: State update failures
	*/
	SetDownloadState(context context.Context, id string, status DownloadStatus, errorMessage string) error

	/*
		Delete removes a book and, via cascade, its chapters and tasks.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - error: apperr.NotFound if the row is missing
	*/
	Delete(context context.Context, id string) error

	/*
		Summarize returns shelf-wide aggregate statistics.

		Parameters:
		  - context: context.Context

		Returns:
		  - *Summary: Counts by status/provider and downloaded word totals
		  - error: Aggregation failures
	*/
	Summarize(context context.Context) (*Summary, error)
}

// # Chapter Data Access

// ChapterRepository defines the data access contract for TOC rows.
type ChapterRepository interface {

	/*
		ListByBook returns all chapters of a book ordered by index.

		Parameters:
		  - context: context.Context
		  - bookID: string (UUID)

		Returns:
		  - []*Chapter: Dense, index-ordered TOC
		  - error: Storage failures
	*/
	ListByBook(context context.Context, bookID string) ([]*Chapter, error)

	/*
		FindByIndex returns one chapter of a book by its 0-based index.

		Parameters:
		  - context: context.Context
		  - bookID: string (UUID)
		  - index: int

		Returns:
		  - *Chapter: The hydrated TOC row
		  - error: apperr.NotFound if missing
	*/
	FindByIndex(context context.Context, bookID string, index int) (*Chapter, error)

	/*
		FindByID returns one chapter by its UUID.

		Parameters:
		  - context: context.Context
		  - chapterID: string (UUID)

		Returns:
		  - *Chapter: The hydrated TOC row
		  - error: apperr.NotFound if missing
	*/
	FindByID(context context.Context, chapterID string) (*Chapter, error)

	/*
		UpsertCatalog merges a freshly fetched TOC into the stored one.

		Description: Inserts new indexes and refreshes title, volume, item
		ID and TOC word counts on existing rows. Download state and content
		references survive the merge, so refreshing a TOC never discards
		stored bodies.

		Parameters:
		  - context: context.Context
		  - bookID: string (UUID)
		  - chapters: []*Chapter (Fresh TOC, dense indexes)

		Returns:
		  - error: Batch failures
	*/
	UpsertCatalog(context context.Context, bookID string, chapters []*Chapter) error

	/*
		SetCompleted marks one chapter completed and recounts the book's
		downloaded_chapters rollup in the same transaction.

		Parameters:
		  - context: context.Context
		  - chapterID: string (UUID)
		  - contentRef: string (Blob reference)
		  - wordCount: int (Body-derived count, keeps TOC value when 0)

		Returns:
		  - error: Transactional failures
	*/
	SetCompleted(context context.Context, chapterID, contentRef string, wordCount int) error

	/*
		SetFailed marks one chapter failed after its fetch attempts were
		exhausted.

		Parameters:
		  - context: context.Context
		  - chapterID: string (UUID)

		Returns:
		  - error: apperr.NotFound if the row is missing
	*/
	SetFailed(context context.Context, chapterID string) error

	/*
		ResetCompleted flips completed chapters in an index range back to
		pending and clears their content references, then recounts the book
		rollup. Pre-existing pending and failed rows are untouched. A
		negative endIndex means "to the last chapter".

		Parameters:
		  - context: context.Context
		  - bookID: string (UUID)
		  - startIndex: int (0-based, inclusive)
		  - endIndex: int (Inclusive, negative for open-ended)

		Returns:
		  - error: Transactional failures
	*/
	ResetCompleted(context context.Context, bookID string, startIndex, endIndex int) error

	/*
		ResetFailed flips every failed chapter of a book back to pending.

		Parameters:
		  - context: context.Context
		  - bookID: string (UUID)

		Returns:
		  - int: Number of chapters flipped
		  - error: Storage failures
	*/
	ResetFailed(context context.Context, bookID string) (int, error)

	/*
		CountByBook returns (total, completed) chapter counts.

		Parameters:
		  - context: context.Context
		  - bookID: string (UUID)

		Returns:
		  - int: Total chapters
		  - int: Completed chapters
		  - error: Storage failures
	*/
	CountByBook(context context.Context, bookID string) (int, int, error)
}

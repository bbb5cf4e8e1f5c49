// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package book provides the PostgreSQL implementation for the catalog's data access.

It leans on a few Postgres features to keep the hot paths single-round-trip:
  - Window Functions: Calculates total result counts without a separate 'COUNT' query.
  - Upserts: TOC merges and quota-style rollups use 'ON CONFLICT' arithmetic.
  - ACID Transactions: Chapter completion and the book rollup move together.
*/
package book

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/platform/dberr"
)

// # PostgreSQL Repositories

// bookRepository implements the [BookRepository] interface using pgx.
type bookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository constructs a PostgreSQL backed book store.
func NewBookRepository(pool *pgxpool.Pool) BookRepository {
	return &bookRepository{pool: pool}
}

// bookColumns is the canonical select list shared by every book query.
const bookColumns = `
	id, provider, provider_book_id,
	title, author, cover_url, cover_ref, abstract, status_text,
	last_chapter_title, last_update_unix,
	total_chapters, downloaded_chapters, download_status, error_message,
	created_at, updated_at`

// scanBook hydrates one Book from a pgx row.
func scanBook(row pgx.Row, extra ...any) (*Book, error) {
	var book Book
	targets := []any{
		&book.ID, &book.Provider, &book.ProviderBookID,
		&book.Title, &book.Author, &book.CoverURL, &book.CoverRef, &book.Abstract, &book.StatusText,
		&book.LastChapterTitle, &book.LastUpdateUnix,
		&book.TotalChapters, &book.DownloadedChapters, &book.DownloadStatus, &book.ErrorMessage,
		&book.CreatedAt, &book.UpdatedAt,
	}
	targets = append(targets, extra...)

	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return &book, nil
}

/*
List retrieves a filtered page of the catalog.

Description: Provider, status and text filters compose dynamically; the
window-function count rides along on every row to avoid a second query.
*/
func (repository *bookRepository) List(context context.Context, filter Filter, limit, offset int) ([]*Book, int, error) {

	// Query construction with dynamic filter clauses
	var queryBuilder strings.Builder
	var args []any
	argID := 1

	queryBuilder.WriteString(`SELECT ` + bookColumns + `, COUNT(*) OVER() AS total_count FROM books WHERE TRUE`)

	if filter.Provider != "" {
		queryBuilder.WriteString(fmt.Sprintf(" AND provider = $%d", argID))
		args = append(args, string(filter.Provider))
		argID++
	}

	if filter.Status != "" {
		queryBuilder.WriteString(fmt.Sprintf(" AND download_status = $%d", argID))
		args = append(args, string(filter.Status))
		argID++
	}

	if filter.Query != "" {
		queryBuilder.WriteString(fmt.Sprintf(" AND (title ILIKE $%d OR author ILIKE $%d)", argID, argID))
		args = append(args, "%"+filter.Query+"%")
		argID++
	}

	// Newest additions first, UUIDv7 keys sort by creation time
	queryBuilder.WriteString(" ORDER BY id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argID, argID+1))
	args = append(args, limit, offset)

	// Query execution
	rows, err := repository.pool.Query(context, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list books: %w", err)
	}
	defer rows.Close()

	// Row iteration and entity hydration
	var books []*Book
	var totalCount int

	for rows.Next() {
		book, err := scanBook(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan book: %w", err)
		}
		books = append(books, book)
	}

	return books, totalCount, nil
}

/*
FindByID returns the book with the given ID.
*/
func (repository *bookRepository) FindByID(context context.Context, id string) (*Book, error) {
	const query = `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("book")
		}
		return nil, fmt.Errorf("postgres: failed to find book by id: %w", err)
	}

	return book, nil
}

/*
FindByProviderKey returns the book matching a provider-native identity.
*/
func (repository *bookRepository) FindByProviderKey(context context.Context, provider, providerBookID string) (*Book, error) {
	const query = `SELECT ` + bookColumns + ` FROM books WHERE provider = $1 AND provider_book_id = $2`

	book, err := scanBook(repository.pool.QueryRow(context, query, provider, providerBookID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("book")
		}
		return nil, fmt.Errorf("postgres: failed to find book by provider key: %w", err)
	}

	return book, nil
}

/*
Create persists a new book to the catalog.

Description: The (provider, provider_book_id) unique constraint turns
duplicate additions into apperr.Conflict via the dberr mapping.
*/
func (repository *bookRepository) Create(context context.Context, book *Book) error {
	const query = `
		INSERT INTO books (
			id, provider, provider_book_id,
			title, author, cover_url, cover_ref, abstract, status_text,
			last_chapter_title, last_update_unix,
			total_chapters, downloaded_chapters, download_status, error_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)`

	_, err := repository.pool.Exec(context, query,
		book.ID, string(book.Provider), book.ProviderBookID,
		book.Title, book.Author, book.CoverURL, book.CoverRef, book.Abstract, book.StatusText,
		book.LastChapterTitle, book.LastUpdateUnix,
		book.TotalChapters, book.DownloadedChapters, string(book.DownloadStatus), book.ErrorMessage,
	)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("book already in library")
		}
		return fmt.Errorf("postgres: failed to create book: %w", err)
	}

	return nil
}

/*
Update persists changes to a book's metadata fields.
*/
func (repository *bookRepository) Update(context context.Context, book *Book) error {
	const query = `
		UPDATE books
		SET
			title = $1, author = $2, cover_url = $3, cover_ref = $4,
			abstract = $5, status_text = $6,
			last_chapter_title = $7, last_update_unix = $8,
			total_chapters = $9, updated_at = NOW()
		WHERE id = $10`

	result, err := repository.pool.Exec(context, query,
		book.Title, book.Author, book.CoverURL, book.CoverRef,
		book.Abstract, book.StatusText,
		book.LastChapterTitle, book.LastUpdateUnix,
		book.TotalChapters, book.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update book: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("book")
	}

	return nil
}

/*
SetDownloadState updates the aggregate download rollup.
*/
func (repository *bookRepository) SetDownloadState(context context.Context, id string, status DownloadStatus, errorMessage string) error {
	const query = `
		UPDATE books
		SET download_status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3`

	result, err := repository.pool.Exec(context, query, string(status), errorMessage, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to set download state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("book")
	}

	return nil
}

/*
Delete removes a book row. Chapters, tasks and reader state follow via
foreign key cascades.
*/
func (repository *bookRepository) Delete(context context.Context, id string) error {
	const query = `DELETE FROM books WHERE id = $1`

	result, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete book: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("book")
	}

	return nil
}

/*
Summarize returns shelf-wide aggregate statistics in two round-trips: one
grouped scan over books, one word rollup over downloaded chapters.
*/
func (repository *bookRepository) Summarize(context context.Context) (*Summary, error) {
	const groupQuery = `
		SELECT provider, download_status, COUNT(*), COALESCE(SUM(total_chapters), 0)
		FROM books
		GROUP BY provider, download_status`

	rows, err := repository.pool.Query(context, groupQuery)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to summarize books: %w", err)
	}
	defer rows.Close()

	summary := &Summary{
		ByStatus:   make(map[string]int),
		ByProvider: make(map[string]int),
	}

	for rows.Next() {
		var provider, status string
		var count, chapters int
		if err := rows.Scan(&provider, &status, &count, &chapters); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan summary row: %w", err)
		}
		summary.TotalBooks += count
		summary.TotalChapters += chapters
		summary.ByStatus[status] += count
		summary.ByProvider[provider] += count
	}
	rows.Close()

	const wordsQuery = `SELECT COALESCE(SUM(word_count), 0) FROM chapters WHERE status = 'completed'`

	if err := repository.pool.QueryRow(context, wordsQuery).Scan(&summary.DownloadedWords); err != nil {
		return nil, fmt.Errorf("postgres: failed to sum downloaded words: %w", err)
	}

	return summary, nil
}

// Copyright (c) 2026 Shuhai. All rights reserved.

package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
)

// # Progress Repository Implementation

// progressRepository implements the [ProgressRepository] interface using pgx.
type progressRepository struct {
	pool *pgxpool.Pool
}

// NewProgressRepository constructs a PostgreSQL backed progress store.
func NewProgressRepository(pool *pgxpool.Pool) ProgressRepository {
	return &progressRepository{pool: pool}
}

const progressColumns = `
	id, user_id, book_id, chapter_id, device_id, offset_px, percent, updated_at`

func scanProgress(row pgx.Row) (*Progress, error) {
	var progress Progress
	err := row.Scan(
		&progress.ID, &progress.UserID, &progress.BookID, &progress.ChapterID,
		&progress.DeviceID, &progress.OffsetPx, &progress.Percent, &progress.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

/*
Get returns the sync row of a (user, book) pair, nil when absent.
*/
func (repository *progressRepository) Get(context context.Context, userID, bookID, deviceID string) (*Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM reading_progress WHERE user_id = $1 AND book_id = $2`
	args := []any{userID, bookID}

	if deviceID != "" {
		query += ` AND device_id = $3`
		args = append(args, deviceID)
	}

	progress, err := scanProgress(repository.pool.QueryRow(context, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get progress: %w", err)
	}

	return progress, nil
}

/*
Upsert writes the single sync row; the unique (user_id, book_id) pair makes
the latest writer win.
*/
func (repository *progressRepository) Upsert(context context.Context, progress *Progress) error {
	const query = `
		INSERT INTO reading_progress (id, user_id, book_id, chapter_id, device_id, offset_px, percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, book_id) DO UPDATE
		SET
			chapter_id = EXCLUDED.chapter_id,
			device_id = EXCLUDED.device_id,
			offset_px = EXCLUDED.offset_px,
			percent = EXCLUDED.percent,
			updated_at = NOW()`

	_, err := repository.pool.Exec(context, query,
		progress.ID, progress.UserID, progress.BookID, progress.ChapterID,
		progress.DeviceID, progress.OffsetPx, progress.Percent,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert progress: %w", err)
	}

	return nil
}

/*
Delete removes the sync row, optionally only when last written by one device.
*/
func (repository *progressRepository) Delete(context context.Context, userID, bookID, deviceID string) (bool, error) {
	query := `DELETE FROM reading_progress WHERE user_id = $1 AND book_id = $2`
	args := []any{userID, bookID}

	if deviceID != "" {
		query += ` AND device_id = $3`
		args = append(args, deviceID)
	}

	result, err := repository.pool.Exec(context, query, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to delete progress: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// # Bookmark Repository Implementation

// bookmarkRepository implements the [BookmarkRepository] interface using pgx.
type bookmarkRepository struct {
	pool *pgxpool.Pool
}

// NewBookmarkRepository constructs a PostgreSQL backed bookmark store.
func NewBookmarkRepository(pool *pgxpool.Pool) BookmarkRepository {
	return &bookmarkRepository{pool: pool}
}

const bookmarkColumns = `
	id, user_id, book_id, chapter_id, offset_px, percent, note, created_at, updated_at`

func scanBookmark(row pgx.Row) (*Bookmark, error) {
	var bookmark Bookmark
	err := row.Scan(
		&bookmark.ID, &bookmark.UserID, &bookmark.BookID, &bookmark.ChapterID,
		&bookmark.OffsetPx, &bookmark.Percent, &bookmark.Note,
		&bookmark.CreatedAt, &bookmark.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bookmark, nil
}

/*
ListByBook returns a user's bookmarks in one book, newest first.
*/
func (repository *bookmarkRepository) ListByBook(context context.Context, userID, bookID string) ([]*Bookmark, error) {
	const query = `
		SELECT ` + bookmarkColumns + `
		FROM bookmarks
		WHERE user_id = $1 AND book_id = $2
		ORDER BY id DESC`

	rows, err := repository.pool.Query(context, query, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []*Bookmark
	for rows.Next() {
		bookmark, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, bookmark)
	}

	return bookmarks, nil
}

/*
FindByID returns one bookmark.
*/
func (repository *bookmarkRepository) FindByID(context context.Context, id string) (*Bookmark, error) {
	const query = `SELECT ` + bookmarkColumns + ` FROM bookmarks WHERE id = $1`

	bookmark, err := scanBookmark(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("bookmark")
		}
		return nil, fmt.Errorf("postgres: failed to find bookmark: %w", err)
	}

	return bookmark, nil
}

/*
Create persists a new bookmark.
*/
func (repository *bookmarkRepository) Create(context context.Context, bookmark *Bookmark) error {
	const query = `
		INSERT INTO bookmarks (id, user_id, book_id, chapter_id, offset_px, percent, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := repository.pool.Exec(context, query,
		bookmark.ID, bookmark.UserID, bookmark.BookID, bookmark.ChapterID,
		bookmark.OffsetPx, bookmark.Percent, bookmark.Note,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create bookmark: %w", err)
	}

	return nil
}

/*
Update persists changes to note, offset and percent.
*/
func (repository *bookmarkRepository) Update(context context.Context, bookmark *Bookmark) error {
	const query = `
		UPDATE bookmarks
		SET offset_px = $1, percent = $2, note = $3, updated_at = NOW()
		WHERE id = $4`

	result, err := repository.pool.Exec(context, query,
		bookmark.OffsetPx, bookmark.Percent, bookmark.Note, bookmark.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update bookmark: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("bookmark")
	}

	return nil
}

/*
Delete removes one bookmark.
*/
func (repository *bookmarkRepository) Delete(context context.Context, id string) error {
	const query = `DELETE FROM bookmarks WHERE id = $1`

	result, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete bookmark: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("bookmark")
	}

	return nil
}

// # History Repository Implementation

// historyRepository implements the [HistoryRepository] interface using pgx.
type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository constructs a PostgreSQL backed history store.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

/*
List returns a user's history in one book, newest first, capped.
*/
func (repository *historyRepository) List(context context.Context, userID, bookID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}

	const query = `
		SELECT id, user_id, book_id, chapter_id, device_id, percent, created_at
		FROM reading_history
		WHERE user_id = $1 AND book_id = $2
		ORDER BY id DESC
		LIMIT $3`

	rows, err := repository.pool.Query(context, query, userID, bookID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.BookID, &entry.ChapterID,
			&entry.DeviceID, &entry.Percent, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan history entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

/*
Append inserts one entry and trims rows beyond the retention cap.

Description: The trim keeps the newest rows by UUIDv7 ordering. Both
statements run in one transaction so a crash never leaves the pair
over-trimmed.
*/
func (repository *historyRepository) Append(context context.Context, entry *HistoryEntry) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin history tx: %w", err)
	}
	defer transaction.Rollback(context)

	const insertQuery = `
		INSERT INTO reading_history (id, user_id, book_id, chapter_id, device_id, percent)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = transaction.Exec(context, insertQuery,
		entry.ID, entry.UserID, entry.BookID, entry.ChapterID, entry.DeviceID, entry.Percent,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to append history: %w", err)
	}

	const trimQuery = `
		DELETE FROM reading_history
		WHERE user_id = $1 AND book_id = $2 AND id NOT IN (
			SELECT id FROM reading_history
			WHERE user_id = $1 AND book_id = $2
			ORDER BY id DESC
			LIMIT $3
		)`

	if _, err := transaction.Exec(context, trimQuery, entry.UserID, entry.BookID, historyCap); err != nil {
		return fmt.Errorf("postgres: failed to trim history: %w", err)
	}

	return transaction.Commit(context)
}

/*
Clear removes a user's history in one book.
*/
func (repository *historyRepository) Clear(context context.Context, userID, bookID string) (int, error) {
	const query = `DELETE FROM reading_history WHERE user_id = $1 AND book_id = $2`

	result, err := repository.pool.Exec(context, query, userID, bookID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to clear history: %w", err)
	}

	return int(result.RowsAffected()), nil
}

/*
Devices returns the devices seen in a (user, book) history, newest first.
*/
func (repository *historyRepository) Devices(context context.Context, userID, bookID string) ([]*Device, error) {
	const query = `
		SELECT device_id, MAX(created_at) AS last_seen
		FROM reading_history
		WHERE user_id = $1 AND book_id = $2 AND device_id <> ''
		GROUP BY device_id
		ORDER BY last_seen DESC`

	rows, err := repository.pool.Query(context, query, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		var device Device
		if err := rows.Scan(&device.DeviceID, &device.LastSeen); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan device: %w", err)
		}
		devices = append(devices, &device)
	}

	return devices, nil
}

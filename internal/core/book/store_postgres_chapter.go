// Copyright (c) 2026 Shuhai. All rights reserved.

package book

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
)

// # Chapter Repository Implementation

// chapterRepository implements the [ChapterRepository] interface using pgx.
type chapterRepository struct {
	pool *pgxpool.Pool
}

// NewChapterRepository constructs a PostgreSQL backed chapter store.
func NewChapterRepository(pool *pgxpool.Pool) ChapterRepository {
	return &chapterRepository{pool: pool}
}

const chapterColumns = `
	id, book_id, chapter_index, provider_item_id,
	title, volume_name, word_count, content_ref, status, updated_at`

func scanChapter(row pgx.Row) (*Chapter, error) {
	var chapter Chapter
	err := row.Scan(
		&chapter.ID, &chapter.BookID, &chapter.Index, &chapter.ProviderItemID,
		&chapter.Title, &chapter.VolumeName, &chapter.WordCount, &chapter.ContentRef, &chapter.Status,
		&chapter.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &chapter, nil
}

/*
ListByBook returns the full TOC of a book ordered by index.
*/
func (repository *chapterRepository) ListByBook(context context.Context, bookID string) ([]*Chapter, error) {
	const query = `SELECT ` + chapterColumns + ` FROM chapters WHERE book_id = $1 ORDER BY chapter_index ASC`

	rows, err := repository.pool.Query(context, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		chapter, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan chapter: %w", err)
		}
		chapters = append(chapters, chapter)
	}

	return chapters, nil
}

/*
FindByIndex returns one chapter of a book by its 0-based index.
*/
func (repository *chapterRepository) FindByIndex(context context.Context, bookID string, index int) (*Chapter, error) {
	const query = `SELECT ` + chapterColumns + ` FROM chapters WHERE book_id = $1 AND chapter_index = $2`

	chapter, err := scanChapter(repository.pool.QueryRow(context, query, bookID, index))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("chapter")
		}
		return nil, fmt.Errorf("postgres: failed to find chapter by index: %w", err)
	}

	return chapter, nil
}

/*
FindByID returns one chapter by its UUID.
*/
func (repository *chapterRepository) FindByID(context context.Context, chapterID string) (*Chapter, error) {
	const query = `SELECT ` + chapterColumns + ` FROM chapters WHERE id = $1`

	chapter, err := scanChapter(repository.pool.QueryRow(context, query, chapterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("chapter")
		}
		return nil, fmt.Errorf("postgres: failed to find chapter: %w", err)
	}

	return chapter, nil
}

/*
UpsertCatalog merges a freshly fetched TOC in one pipelined batch.

Description: New indexes insert; existing indexes refresh their metadata
while keeping downloaded state and content references, so a TOC refresh
never discards stored bodies. The word count only takes the TOC value on
rows that have not been downloaded, since body-derived counts are more
accurate than provider estimates.
*/
func (repository *chapterRepository) UpsertCatalog(context context.Context, bookID string, chapters []*Chapter) error {
	if len(chapters) == 0 {
		return nil
	}

	const query = `
		INSERT INTO chapters (
			id, book_id, chapter_index, provider_item_id,
			title, volume_name, word_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (book_id, chapter_index) DO UPDATE
		SET
			provider_item_id = EXCLUDED.provider_item_id,
			title = EXCLUDED.title,
			volume_name = EXCLUDED.volume_name,
			word_count = CASE WHEN chapters.status = 'completed' THEN chapters.word_count ELSE EXCLUDED.word_count END,
			updated_at = NOW()`

	// Batch queue construction
	batch := &pgx.Batch{}
	for _, chapter := range chapters {
		batch.Queue(query,
			chapter.ID, bookID, chapter.Index, chapter.ProviderItemID,
			chapter.Title, chapter.VolumeName, chapter.WordCount,
		)
	}

	// Send batch and close pipeline
	result := repository.pool.SendBatch(context, batch)
	defer result.Close()

	// Verify all items in the batch succeeded
	for i := 0; i < len(chapters); i++ {
		if _, err := result.Exec(); err != nil {
			return fmt.Errorf("postgres: failed to upsert chapter %d: %w", i, err)
		}
	}

	return nil
}

/*
SetCompleted marks one chapter completed and recounts the owning book's
downloaded_chapters rollup in the same transaction.

Description: Recounting instead of incrementing keeps the rollup correct
under concurrent workers and idempotent re-downloads.
*/
func (repository *chapterRepository) SetCompleted(context context.Context, chapterID, contentRef string, wordCount int) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin completion tx: %w", err)
	}
	defer transaction.Rollback(context)

	const markQuery = `
		UPDATE chapters
		SET status = 'completed', content_ref = $1,
		    word_count = CASE WHEN $2 > 0 THEN $2 ELSE word_count END,
		    updated_at = NOW()
		WHERE id = $3
		RETURNING book_id`

	var bookID string
	if err := transaction.QueryRow(context, markQuery, contentRef, wordCount, chapterID).Scan(&bookID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("chapter")
		}
		return fmt.Errorf("postgres: failed to mark chapter completed: %w", err)
	}

	const rollupQuery = `
		UPDATE books
		SET downloaded_chapters = (
			SELECT COUNT(*) FROM chapters WHERE book_id = $1 AND status = 'completed'
		), updated_at = NOW()
		WHERE id = $1`

	if _, err := transaction.Exec(context, rollupQuery, bookID); err != nil {
		return fmt.Errorf("postgres: failed to recount book rollup: %w", err)
	}

	return transaction.Commit(context)
}

/*
SetFailed marks one chapter failed.
*/
func (repository *chapterRepository) SetFailed(context context.Context, chapterID string) error {
	const query = `UPDATE chapters SET status = 'failed', updated_at = NOW() WHERE id = $1`

	result, err := repository.pool.Exec(context, query, chapterID)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark chapter failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("chapter")
	}

	return nil
}

/*
ResetCompleted flips completed chapters in an index range back to pending,
clears their content references, and recounts the book rollup. Failed and
pending rows keep their state.
*/
func (repository *chapterRepository) ResetCompleted(context context.Context, bookID string, startIndex, endIndex int) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin reset tx: %w", err)
	}
	defer transaction.Rollback(context)

	const chapterQuery = `
		UPDATE chapters
		SET status = 'pending', content_ref = '', updated_at = NOW()
		WHERE book_id = $1 AND status = 'completed'
		  AND chapter_index >= $2
		  AND ($3 < 0 OR chapter_index <= $3)`

	if _, err := transaction.Exec(context, chapterQuery, bookID, startIndex, endIndex); err != nil {
		return fmt.Errorf("postgres: failed to reset chapters: %w", err)
	}

	const bookQuery = `
		UPDATE books
		SET downloaded_chapters = (
			SELECT COUNT(*) FROM chapters WHERE book_id = $1 AND status = 'completed'
		), updated_at = NOW()
		WHERE id = $1`

	if _, err := transaction.Exec(context, bookQuery, bookID); err != nil {
		return fmt.Errorf("postgres: failed to recount book rollup: %w", err)
	}

	return transaction.Commit(context)
}

/*
ResetFailed flips every failed chapter of a book back to pending.
*/
func (repository *chapterRepository) ResetFailed(context context.Context, bookID string) (int, error) {
	const query = `UPDATE chapters SET status = 'pending', updated_at = NOW() WHERE book_id = $1 AND status = 'failed'`

	result, err := repository.pool.Exec(context, query, bookID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to reset failed chapters: %w", err)
	}

	return int(result.RowsAffected()), nil
}

/*
CountByBook returns (total, completed) chapter counts.
*/
func (repository *chapterRepository) CountByBook(context context.Context, bookID string) (int, int, error) {
	const query = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
		FROM chapters
		WHERE book_id = $1`

	var total, completed int
	if err := repository.pool.QueryRow(context, query, bookID).Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("postgres: failed to count chapters: %w", err)
	}

	return total, completed, nil
}

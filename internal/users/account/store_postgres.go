// Copyright (c) 2026 Shuhai. All rights reserved.

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/platform/dberr"
)

// # PostgreSQL Repositories

// userRepository implements [UserRepository] using pgx.
type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a PostgreSQL backed profile store.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Name, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (repository *userRepository) List(context context.Context) ([]*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC`

	rows, err := repository.pool.Query(context, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, nil
}

func (repository *userRepository) FindByID(context context.Context, id string) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("postgres: failed to find user: %w", err)
	}

	return user, nil
}

func (repository *userRepository) Create(context context.Context, user *User) error {
	const query = `INSERT INTO users (id, name) VALUES ($1, $2)`

	if _, err := repository.pool.Exec(context, query, user.ID, user.Name); err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("A profile with this name already exists")
		}
		return fmt.Errorf("postgres: failed to create user: %w", err)
	}

	return nil
}

func (repository *userRepository) Rename(context context.Context, id, name string) error {
	const query = `UPDATE users SET name = $1, updated_at = NOW() WHERE id = $2`

	result, err := repository.pool.Exec(context, query, name, id)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("A profile with this name already exists")
		}
		return fmt.Errorf("postgres: failed to rename user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}

	return nil
}

func (repository *userRepository) Delete(context context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`

	result, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}

	return nil
}

// # Shelf Store

// shelfRepository implements [ShelfRepository] over the user_books join table.
type shelfRepository struct {
	pool *pgxpool.Pool
}

// NewShelfRepository constructs a PostgreSQL backed shelf store.
func NewShelfRepository(pool *pgxpool.Pool) ShelfRepository {
	return &shelfRepository{pool: pool}
}

func (repository *shelfRepository) ListBooks(context context.Context, userID string) ([]*book.Book, error) {
	const query = `
		SELECT
			b.id, b.provider, b.provider_book_id,
			b.title, b.author, b.cover_url, b.cover_ref, b.abstract, b.status_text,
			b.last_chapter_title, b.last_update_unix,
			b.total_chapters, b.downloaded_chapters, b.download_status, b.error_message,
			b.created_at, b.updated_at
		FROM user_books ub
		JOIN books b ON b.id = ub.book_id
		WHERE ub.user_id = $1
		ORDER BY ub.created_at DESC`

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list shelf: %w", err)
	}
	defer rows.Close()

	var books []*book.Book
	for rows.Next() {
		var entry book.Book
		if err := rows.Scan(
			&entry.ID, &entry.Provider, &entry.ProviderBookID,
			&entry.Title, &entry.Author, &entry.CoverURL, &entry.CoverRef, &entry.Abstract, &entry.StatusText,
			&entry.LastChapterTitle, &entry.LastUpdateUnix,
			&entry.TotalChapters, &entry.DownloadedChapters, &entry.DownloadStatus, &entry.ErrorMessage,
			&entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan shelf book: %w", err)
		}
		books = append(books, &entry)
	}

	return books, nil
}

func (repository *shelfRepository) Link(context context.Context, userID, bookID string) error {
	const query = `
		INSERT INTO user_books (user_id, book_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, book_id) DO NOTHING`

	if _, err := repository.pool.Exec(context, query, userID, bookID); err != nil {
		return fmt.Errorf("postgres: failed to link shelf entry: %w", err)
	}

	return nil
}

func (repository *shelfRepository) Unlink(context context.Context, userID, bookID string) (bool, error) {
	const query = `DELETE FROM user_books WHERE user_id = $1 AND book_id = $2`

	result, err := repository.pool.Exec(context, query, userID, bookID)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to unlink shelf entry: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

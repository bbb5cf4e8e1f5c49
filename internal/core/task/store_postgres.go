// Copyright (c) 2026 Shuhai. All rights reserved.

package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
)

// # PostgreSQL Repository

// postgresRepository implements the [Repository] interface using pgx.
type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed task store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const taskColumns = `
	id, book_id, task_type, status,
	start_chapter, end_chapter, skip_completed,
	total_chapters, downloaded_chapters, failed_chapters,
	error_message, created_at, started_at, completed_at`

func scanTask(row pgx.Row, extra ...any) (*Task, error) {
	var task Task
	targets := []any{
		&task.ID, &task.BookID, &task.Type, &task.Status,
		&task.StartChapter, &task.EndChapter, &task.SkipCompleted,
		&task.Total, &task.Downloaded, &task.Failed,
		&task.ErrorMessage, &task.CreatedAt, &task.StartedAt, &task.CompletedAt,
	}
	targets = append(targets, extra...)

	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return &task, nil
}

/*
Create persists a new task in pending state.
*/
func (repository *postgresRepository) Create(context context.Context, task *Task) error {
	const query = `
		INSERT INTO tasks (
			id, book_id, task_type, status,
			start_chapter, end_chapter, skip_completed,
			total_chapters, downloaded_chapters, failed_chapters, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := repository.pool.Exec(context, query,
		task.ID, task.BookID, string(task.Type), string(task.Status),
		task.StartChapter, task.EndChapter, task.SkipCompleted,
		task.Total, task.Downloaded, task.Failed, task.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create task: %w", err)
	}

	return nil
}

/*
FindByID returns the task with the given ID.
*/
func (repository *postgresRepository) FindByID(context context.Context, id string) (*Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("task")
		}
		return nil, fmt.Errorf("postgres: failed to find task by id: %w", err)
	}

	return task, nil
}

/*
FindActiveByBook returns the latest pending or running task of a book.
UUIDv7 keys make the newest row the highest ID.
*/
func (repository *postgresRepository) FindActiveByBook(context context.Context, bookID string) (*Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE book_id = $1 AND status IN ('pending', 'running')
		ORDER BY id DESC
		LIMIT 1`

	task, err := scanTask(repository.pool.QueryRow(context, query, bookID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("active task")
		}
		return nil, fmt.Errorf("postgres: failed to find active task: %w", err)
	}

	return task, nil
}

/*
List returns a page of tasks, newest first.
*/
func (repository *postgresRepository) List(context context.Context, bookID string, limit, offset int) ([]*Task, int, error) {
	var queryBuilder strings.Builder
	var args []any
	argID := 1

	queryBuilder.WriteString(`SELECT ` + taskColumns + `, COUNT(*) OVER() AS total_count FROM tasks WHERE TRUE`)

	if bookID != "" {
		queryBuilder.WriteString(fmt.Sprintf(" AND book_id = $%d", argID))
		args = append(args, bookID)
		argID++
	}

	queryBuilder.WriteString(" ORDER BY id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argID, argID+1))
	args = append(args, limit, offset)

	rows, err := repository.pool.Query(context, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	var totalCount int

	for rows.Next() {
		task, err := scanTask(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, totalCount, nil
}

/*
Update persists the task's status, counters, message and timestamps.
*/
func (repository *postgresRepository) Update(context context.Context, task *Task) error {
	const query = `
		UPDATE tasks
		SET
			status = $1, total_chapters = $2,
			downloaded_chapters = $3, failed_chapters = $4,
			error_message = $5, started_at = $6, completed_at = $7
		WHERE id = $8`

	result, err := repository.pool.Exec(context, query,
		string(task.Status), task.Total,
		task.Downloaded, task.Failed,
		task.ErrorMessage, task.StartedAt, task.CompletedAt,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound("task")
	}

	return nil
}

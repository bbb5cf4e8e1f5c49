// Copyright (c) 2026 Shuhai. All rights reserved.

package task

import "context"

// # Task Data Access

// Repository defines the data access contract for task records.
type Repository interface {

	/*
		Create persists a new task in pending state.

		Parameters:
		  - context: context.Context
		  - task: *Task

		Returns:
		  - error: Storage failures
	*/
	Create(context context.Context, task *Task) error

	/*
		FindByID returns the task with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *Task: The hydrated task record
		  - error: apperr.NotFound if missing
	*/
	FindByID(context context.Context, id string) (*Task, error)

	/*
		FindActiveByBook returns the latest pending or running task of a
		book.

		Parameters:
		  - context: context.Context
		  - bookID: string (UUID)

		Returns:
		  - *Task: The newest non-terminal task
		  - error: apperr.NotFound when no active task exists
	*/
	FindActiveByBook(context context.Context, bookID string) (*Task, error)

	/*
		List returns a page of tasks, newest first, with the total count.

		Parameters:
		  - context: context.Context
		  - bookID: string (Optional filter, empty for all books)
		  - limit: int
		  - offset: int

		Returns:
		  - []*Task: Slice of task records
		  - int: Total matching tasks
		  - error: Storage failures
	*/
	List(context context.Context, bookID string, limit, offset int) ([]*Task, int, error)

	/*
		Update persists the task's status, counters, message and timestamps.

		Parameters:
		  - context: context.Context
		  - task: *Task

		Returns:
		  - error: apperr.NotFound if the row is missing
	*/
	Update(context context.Context, task *Task) error
}

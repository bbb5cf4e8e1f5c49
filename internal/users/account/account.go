// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package account manages reader profiles and their personal shelves.

The catalog itself is shared by the whole deployment; profiles exist so
that reading progress, bookmarks and history can be kept per person (or
per device family). Each profile additionally owns a shelf, a subset of
the shared catalog it has marked as its own.

A default profile is seeded by the migrations so single-user setups work
without ever touching these endpoints.
*/
package account

import (
	"context"
	"time"

	"github.com/wenqiu/shuhai/internal/core/book"
)

// DefaultUserID is the profile seeded by the migrations. Reader requests
// without an explicit user fall back to it, and it cannot be deleted.
const DefaultUserID = "00000000-0000-0000-0000-000000000001"

// # Domain Entities

// User is one reader profile.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// # Repository Contracts

// UserRepository defines the persistence contract for reader profiles.
type UserRepository interface {

	/*
		List returns every profile, oldest first.

		Parameters:
		  - context: context.Context

		Returns:
		  - []*User: All profiles
		  - error: Storage failures
	*/
	List(context context.Context) ([]*User, error)

	/*
		FindByID returns one profile.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *User: The hydrated profile
		  - error: apperr.NotFound if missing
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		Create persists a new profile.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: apperr.Conflict on a duplicate name
	*/
	Create(context context.Context, user *User) error

	/*
		Rename updates the profile name.

		Parameters:
		  - context: context.Context
		  - id: string
		  - name: string

		Returns:
		  - error: apperr.NotFound or apperr.Conflict
	*/
	Rename(context context.Context, id, name string) error

	/*
		Delete removes a profile. Reader state cascades.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: apperr.NotFound if missing
	*/
	Delete(context context.Context, id string) error
}

// ShelfRepository defines the persistence contract for per-profile shelves.
type ShelfRepository interface {

	/*
		ListBooks returns the catalog entries on a profile's shelf,
		most recently added first.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []*book.Book: Shelf contents
		  - error: Storage failures
	*/
	ListBooks(context context.Context, userID string) ([]*book.Book, error)

	/*
		Link puts a catalog entry on a profile's shelf. Idempotent.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - bookID: string

		Returns:
		  - error: Storage failures
	*/
	Link(context context.Context, userID, bookID string) error

	/*
		Unlink removes a catalog entry from a profile's shelf.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - bookID: string

		Returns:
		  - bool: True when an entry was actually removed
		  - error: Storage failures
	*/
	Unlink(context context.Context, userID, bookID string) (bool, error)
}

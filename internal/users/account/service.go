// Copyright (c) 2026 Shuhai. All rights reserved.

package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/pkg/uuid"
)

// # Service Layer

// Service orchestrates profile and shelf use cases.
type Service struct {
	users  UserRepository
	shelf  ShelfRepository
	books  book.BookRepository
	logger *slog.Logger
}

// NewService constructs a new account [Service].
func NewService(users UserRepository, shelf ShelfRepository, books book.BookRepository, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		shelf:  shelf,
		books:  books,
		logger: logger,
	}
}

// # Profile Management

// ListUsers returns every reader profile.
func (service *Service) ListUsers(context context.Context) ([]*User, error) {
	return service.users.List(context)
}

// GetUser returns one reader profile.
func (service *Service) GetUser(context context.Context, id string) (*User, error) {
	return service.users.FindByID(context, id)
}

/*
CreateUser adds a new reader profile.

Parameters:
  - context: context.Context
  - name: string (Display name, unique)

Returns:
  - *User: The created profile
  - error: Validation or apperr.Conflict on a duplicate name
*/
func (service *Service) CreateUser(context context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.ValidationError("Profile name is required")
	}

	user := &User{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := service.users.Create(context, user); err != nil {
		return nil, err
	}

	service.logger.Info("user_profile_created",
		slog.String("user_id", user.ID),
		slog.String("name", user.Name),
	)

	return user, nil
}

/*
RenameUser updates a profile's display name.

Returns:
  - *User: The updated profile
  - error: Validation, apperr.NotFound or apperr.Conflict
*/
func (service *Service) RenameUser(context context.Context, id, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.ValidationError("Profile name is required")
	}

	if err := service.users.Rename(context, id, name); err != nil {
		return nil, err
	}

	service.logger.Info("user_profile_renamed", slog.String("user_id", id))

	return service.users.FindByID(context, id)
}

/*
DeleteUser removes a profile and, via cascade, its progress, bookmarks,
history and shelf links. The seeded default profile is protected.
*/
func (service *Service) DeleteUser(context context.Context, id string) error {
	if id == DefaultUserID {
		return apperr.ValidationError("The default profile cannot be deleted")
	}

	if err := service.users.Delete(context, id); err != nil {
		return err
	}

	service.logger.Warn("user_profile_deleted", slog.String("user_id", id))
	return nil
}

// # Shelf Management

// ShelfBooks lists the catalog entries on a profile's shelf.
func (service *Service) ShelfBooks(context context.Context, userID string) ([]*book.Book, error) {
	if _, err := service.users.FindByID(context, userID); err != nil {
		return nil, err
	}
	return service.shelf.ListBooks(context, userID)
}

/*
AddToShelf puts a catalog entry on a profile's shelf.

Description: Both sides are verified so a typo'd UUID surfaces as 404
instead of a silent no-op link. Re-adding is idempotent.
*/
func (service *Service) AddToShelf(context context.Context, userID, bookID string) error {
	if _, err := service.users.FindByID(context, userID); err != nil {
		return err
	}
	if _, err := service.books.FindByID(context, bookID); err != nil {
		return err
	}

	if err := service.shelf.Link(context, userID, bookID); err != nil {
		return fmt.Errorf("account: link shelf entry: %w", err)
	}

	service.logger.Info("shelf_book_added",
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
	)

	return nil
}

// RemoveFromShelf takes a catalog entry off a profile's shelf.
func (service *Service) RemoveFromShelf(context context.Context, userID, bookID string) error {
	removed, err := service.shelf.Unlink(context, userID, bookID)
	if err != nil {
		return fmt.Errorf("account: unlink shelf entry: %w", err)
	}
	if !removed {
		return apperr.NotFound("shelf entry")
	}

	return nil
}

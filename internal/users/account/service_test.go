// Copyright (c) 2026 Shuhai. All rights reserved.

package account

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
)

// # Test Fakes

type memUsers struct {
	users map[string]*User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*User)}
}

func (repo *memUsers) List(_ context.Context) ([]*User, error) {
	var out []*User
	for _, user := range repo.users {
		clone := *user
		out = append(out, &clone)
	}
	return out, nil
}

func (repo *memUsers) FindByID(_ context.Context, id string) (*User, error) {
	if user, ok := repo.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, apperr.NotFound("user")
}

func (repo *memUsers) Create(_ context.Context, user *User) error {
	for _, existing := range repo.users {
		if existing.Name == user.Name {
			return apperr.Conflict("A profile with this name already exists")
		}
	}
	clone := *user
	repo.users[user.ID] = &clone
	return nil
}

func (repo *memUsers) Rename(_ context.Context, id, name string) error {
	user, ok := repo.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	for _, existing := range repo.users {
		if existing.ID != id && existing.Name == name {
			return apperr.Conflict("A profile with this name already exists")
		}
	}
	user.Name = name
	user.UpdatedAt = time.Now()
	return nil
}

func (repo *memUsers) Delete(_ context.Context, id string) error {
	if _, ok := repo.users[id]; !ok {
		return apperr.NotFound("user")
	}
	delete(repo.users, id)
	return nil
}

type memShelf struct {
	links map[string][]string // userID -> book IDs, insertion order
	books *memCatalog
}

func (repo *memShelf) ListBooks(_ context.Context, userID string) ([]*book.Book, error) {
	var out []*book.Book
	for _, bookID := range repo.links[userID] {
		if entry, ok := repo.books.books[bookID]; ok {
			clone := *entry
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (repo *memShelf) Link(_ context.Context, userID, bookID string) error {
	for _, existing := range repo.links[userID] {
		if existing == bookID {
			return nil
		}
	}
	repo.links[userID] = append(repo.links[userID], bookID)
	return nil
}

func (repo *memShelf) Unlink(_ context.Context, userID, bookID string) (bool, error) {
	for position, existing := range repo.links[userID] {
		if existing == bookID {
			repo.links[userID] = append(repo.links[userID][:position], repo.links[userID][position+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memCatalog struct {
	books map[string]*book.Book
}

func (repo *memCatalog) List(_ context.Context, _ book.Filter, _, _ int) ([]*book.Book, int, error) {
	return nil, 0, nil
}

func (repo *memCatalog) FindByID(_ context.Context, id string) (*book.Book, error) {
	if entry, ok := repo.books[id]; ok {
		clone := *entry
		return &clone, nil
	}
	return nil, apperr.NotFound("book")
}

func (repo *memCatalog) FindByProviderKey(_ context.Context, _, _ string) (*book.Book, error) {
	return nil, apperr.NotFound("book")
}

func (repo *memCatalog) Create(_ context.Context, entry *book.Book) error {
	repo.books[entry.ID] = entry
	return nil
}

func (repo *memCatalog) Update(_ context.Context, entry *book.Book) error {
	repo.books[entry.ID] = entry
	return nil
}

func (repo *memCatalog) SetDownloadState(_ context.Context, _ string, _ book.DownloadStatus, _ string) error {
	return nil
}

func (repo *memCatalog) Delete(_ context.Context, id string) error {
	delete(repo.books, id)
	return nil
}

func (repo *memCatalog) Summarize(_ context.Context) (*book.Summary, error) {
	return &book.Summary{}, nil
}

func newTestService() (*Service, *memUsers, *memShelf, *memCatalog) {
	users := newMemUsers()
	catalog := &memCatalog{books: make(map[string]*book.Book)}
	shelf := &memShelf{links: make(map[string][]string), books: catalog}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users.users[DefaultUserID] = &User{ID: DefaultUserID, Name: "default"}

	return NewService(users, shelf, catalog, logger), users, shelf, catalog
}

// # Tests

func TestCreateUser(t *testing.T) {
	service, users, _, _ := newTestService()

	user, err := service.CreateUser(context.Background(), "  书友甲  ")
	require.NoError(t, err)
	assert.Equal(t, "书友甲", user.Name, "names must be trimmed")
	assert.NotEmpty(t, user.ID)
	assert.Len(t, users.users, 2)
}

func TestCreateUserRejectsBlankName(t *testing.T) {
	service, _, _, _ := newTestService()

	_, err := service.CreateUser(context.Background(), "   ")
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestCreateUserDuplicateName(t *testing.T) {
	service, _, _, _ := newTestService()

	_, err := service.CreateUser(context.Background(), "书友甲")
	require.NoError(t, err)

	_, err = service.CreateUser(context.Background(), "书友甲")
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 409, appErr.HTTPStatus)
}

func TestRenameUser(t *testing.T) {
	service, _, _, _ := newTestService()

	created, err := service.CreateUser(context.Background(), "书友甲")
	require.NoError(t, err)

	renamed, err := service.RenameUser(context.Background(), created.ID, "书友乙")
	require.NoError(t, err)
	assert.Equal(t, "书友乙", renamed.Name)
}

func TestDeleteDefaultUserRejected(t *testing.T) {
	service, users, _, _ := newTestService()

	err := service.DeleteUser(context.Background(), DefaultUserID)
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 400, appErr.HTTPStatus)
	assert.Contains(t, users.users, DefaultUserID)
}

func TestShelfLifecycle(t *testing.T) {
	service, _, _, catalog := newTestService()

	entry := &book.Book{ID: "book-1", Title: "遮天"}
	require.NoError(t, catalog.Create(context.Background(), entry))

	require.NoError(t, service.AddToShelf(context.Background(), DefaultUserID, entry.ID))
	// Idempotent re-add.
	require.NoError(t, service.AddToShelf(context.Background(), DefaultUserID, entry.ID))

	books, err := service.ShelfBooks(context.Background(), DefaultUserID)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "遮天", books[0].Title)

	require.NoError(t, service.RemoveFromShelf(context.Background(), DefaultUserID, entry.ID))

	err = service.RemoveFromShelf(context.Background(), DefaultUserID, entry.ID)
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestAddToShelfUnknownBook(t *testing.T) {
	service, _, _, _ := newTestService()

	err := service.AddToShelf(context.Background(), DefaultUserID, "missing")
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

// Copyright (c) 2026 Shuhai. All rights reserved.

package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/wenqiu/shuhai/internal/platform/request"
	"github.com/wenqiu/shuhai/internal/platform/respond"
	"github.com/wenqiu/shuhai/internal/platform/validate"
)

const (
	FieldItems = "items"
	FieldTotal = "total"
	FieldName  = "name"
)

// # Handler Implementation

// Handler implements the profile and shelf HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches the profile endpoints to the API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/users", handler.List)
	api.Post("/users", handler.Create)
	api.Get("/users/{id}", handler.Get)
	api.Patch("/users/{id}", handler.Rename)
	api.Delete("/users/{id}", handler.Delete)

	api.Get("/users/{id}/books", handler.ShelfBooks)
	api.Post("/users/{id}/books/{bookID}", handler.AddToShelf)
	api.Delete("/users/{id}/books/{bookID}", handler.RemoveFromShelf)
}

/*
GET /api/users.

Response:
  - 200: []User: Every reader profile, oldest first
*/
func (handler *Handler) List(writer http.ResponseWriter, request *http.Request) {
	users, err := handler.service.ListUsers(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: users,
		FieldTotal: len(users),
	})
}

type userRequest struct {
	Name string `json:"name"`
}

/*
POST /api/users.

Response:
  - 201: User: The created profile
  - 400: Validation: Missing name
  - 409: Conflict: Duplicate name
*/
func (handler *Handler) Create(writer http.ResponseWriter, request *http.Request) {
	var input userRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldName, input.Name)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.CreateUser(request.Context(), input.Name)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
GET /api/users/{id}.

Response:
  - 200: User
  - 404: NotFound
*/
func (handler *Handler) Get(writer http.ResponseWriter, request *http.Request) {
	user, err := handler.service.GetUser(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
PATCH /api/users/{id}.

Response:
  - 200: User: The renamed profile
  - 404: NotFound
  - 409: Conflict: Duplicate name
*/
func (handler *Handler) Rename(writer http.ResponseWriter, request *http.Request) {
	var input userRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.RenameUser(request.Context(), requestutil.ID(request, "id"), input.Name)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
DELETE /api/users/{id}.

Response:
  - 204: Deleted, reader state cascaded
  - 400: Validation: Attempt to delete the default profile
  - 404: NotFound
*/
func (handler *Handler) Delete(writer http.ResponseWriter, request *http.Request) {
	if err := handler.service.DeleteUser(request.Context(), requestutil.ID(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Shelf Endpoints

/*
GET /api/users/{id}/books.

Response:
  - 200: []Book: Shelf contents, most recently added first
  - 404: NotFound: Unknown profile
*/
func (handler *Handler) ShelfBooks(writer http.ResponseWriter, request *http.Request) {
	books, err := handler.service.ShelfBooks(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: books,
		FieldTotal: len(books),
	})
}

/*
POST /api/users/{id}/books/{bookID}.

Response:
  - 201: Linked (idempotent)
  - 404: NotFound: Unknown profile or book
*/
func (handler *Handler) AddToShelf(writer http.ResponseWriter, request *http.Request) {
	err := handler.service.AddToShelf(request.Context(),
		requestutil.ID(request, "id"),
		requestutil.ID(request, "bookID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]string{"status": "linked"})
}

/*
DELETE /api/users/{id}/books/{bookID}.

Response:
  - 204: Unlinked
  - 404: NotFound: Entry was not on the shelf
*/
func (handler *Handler) RemoveFromShelf(writer http.ResponseWriter, request *http.Request) {
	err := handler.service.RemoveFromShelf(request.Context(),
		requestutil.ID(request, "id"),
		requestutil.ID(request, "bookID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package book provides the HTTP interface for library management.

It exposes endpoints for provider search, adding and removing books,
inspecting the TOC, and checking providers for new chapters.

# Routing Strategy

  - /search: Provider-backed discovery, proxied upstream per request.
  - /books: Catalog CRUD over locally ingested entries.
  - /stats: Shelf-wide aggregates for the dashboard.

The handler translates between the web/JSON layer and the internal domain [Service].
*/
package book

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/wenqiu/shuhai/internal/platform/request"
	"github.com/wenqiu/shuhai/internal/platform/respond"
	"github.com/wenqiu/shuhai/internal/platform/validate"
	"github.com/wenqiu/shuhai/internal/source"
	"github.com/wenqiu/shuhai/pkg/pagination"
)

const (
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
)

// # Handler Implementation

// Handler implements the HTTP layer for library management.
type Handler struct {
	service *Service
}

// NewHandler constructs a new book [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches catalog endpoints to the root API router. Paths
// are registered flat so the reader and artifact packages can add their
// own /books/{id}/... routes on the same router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/books/search", handler.Search)
	api.Get("/books", handler.List)
	api.Post("/books", handler.Add)
	api.Post("/books/add/{platform}/{providerBookID}", handler.AddByPath)

	api.Get("/books/{id}", handler.Get)
	api.Delete("/books/{id}", handler.Delete)
	api.Get("/books/{id}/status", handler.Status)
	api.Get("/books/{id}/chapters", handler.ListChapters)
	api.Get("/books/{id}/chapters/summary", handler.ChapterSummary)
	api.Get("/books/{id}/check-update", handler.CheckUpdates)
	api.Get("/books/{id}/new-chapters", handler.NewChapters)
	api.Post("/books/{id}/refresh", handler.Refresh)

	api.Get("/stats/summary", handler.Summary)
}

// # Discovery

/*
GET /api/books/search.

Description: Proxies a keyword search to one provider.

Request:
  - platform: string (fanqie, qimao, biquge)
  - q: string (Keyword)
  - page: int (1-based, optional)

Response:
  - 200: SearchResult: One page of provider hits
  - 400: Validation: Missing keyword or unknown provider
  - 502: UpstreamError: Provider unreachable
*/
func (handler *Handler) Search(writer http.ResponseWriter, request *http.Request) {
	provider := source.Provider(request.URL.Query().Get("platform"))
	keyword := request.URL.Query().Get("q")
	page := requestutil.QueryInt(request, "page", 1)

	result, err := handler.service.Search(request.Context(), provider, keyword, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// # Catalog Lifecycle

// addBookRequest defines the inbound JSON schema for book ingestion.
type addBookRequest struct {
	Provider       string `json:"provider"`
	ProviderBookID string `json:"provider_book_id"`
}

/*
POST /api/books.

Description: Adds a book to the library by provider identity. Fetches
metadata and the full TOC; chapter bodies are downloaded by a separate
task. Re-adding an existing book returns the stored entry.

Request:
  - body: addBookRequest

Response:
  - 201: Book: The created (or existing) catalog entry
  - 400: Validation: Invalid payload
  - 404: NotFound: Unknown book on the provider
  - 502: UpstreamError: Provider unreachable
*/
func (handler *Handler) Add(writer http.ResponseWriter, request *http.Request) {
	var input addBookRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldProvider, input.Provider)
	validator.Required(FieldProviderBookID, input.ProviderBookID)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	book, err := handler.service.Add(request.Context(), source.Provider(input.Provider), input.ProviderBookID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, book)
}

/*
POST /api/books/add/{platform}/{providerBookID}.

Description: Path-parameter variant of book ingestion for clients that
add straight from a search hit.

Response:
  - 201: Book: The created (or existing) catalog entry
  - 400: Validation: Unknown platform
  - 404: NotFound: Unknown book on the provider
  - 502: UpstreamError: Provider unreachable
*/
func (handler *Handler) AddByPath(writer http.ResponseWriter, request *http.Request) {
	book, err := handler.service.Add(request.Context(),
		source.Provider(requestutil.ID(request, "platform")),
		requestutil.ID(request, "providerBookID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, book)
}

/*
GET /api/books.

Description: Returns a filtered, paginated view of the library.

Request:
  - provider: string (Filter by provider)
  - status: string (Filter by download status)
  - q: string (Title/author substring)
  - limit: int
  - page: int

Response:
  - 200: []Book: Paginated list
*/
func (handler *Handler) List(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)

	filter := Filter{
		Provider: source.Provider(request.URL.Query().Get("platform")),
		Status:   DownloadStatus(request.URL.Query().Get(FieldStatus)),
		Query:    request.URL.Query().Get("search"),
	}

	books, total, err := handler.service.List(request.Context(), filter, paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, books, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}

/*
GET /api/books/{id}.

Response:
  - 200: Book: The catalog entry with its download rollup
  - 404: NotFound: Book not in library
*/
func (handler *Handler) Get(writer http.ResponseWriter, request *http.Request) {
	book, err := handler.service.Get(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, book)
}

/*
GET /api/books/{id}/status.

Description: Lightweight book plus live chapter-state counts, shaped for
frequent polling while a download runs.

Response:
  - 200: BookStatus
  - 404: NotFound: Book not in library
*/
func (handler *Handler) Status(writer http.ResponseWriter, request *http.Request) {
	status, err := handler.service.Status(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, status)
}

/*
GET /api/books/{id}/chapters/summary.

Request:
  - segment_size: int (Chapters per bucket, default 100)

Response:
  - 200: []Segment: Heatmap-style bucketed chapter states
  - 404: NotFound: Book not in library
*/
func (handler *Handler) ChapterSummary(writer http.ResponseWriter, request *http.Request) {
	segments, err := handler.service.ChapterSummary(request.Context(),
		requestutil.ID(request, "id"),
		requestutil.QueryInt(request, "segment_size", 100),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: segments,
		FieldTotal: len(segments),
	})
}

/*
GET /api/books/{id}/chapters.

Description: Returns the full stored TOC, index-ordered.

Response:
  - 200: []Chapter: Dense TOC with per-chapter download flags
  - 404: NotFound: Book not in library
*/
func (handler *Handler) ListChapters(writer http.ResponseWriter, request *http.Request) {
	chapters, err := handler.service.ListChapters(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: chapters,
		FieldTotal: len(chapters),
	})
}

/*
DELETE /api/books/{id}.

Description: Removes the book, its chapters, tasks and reader state. With
delete_files (the default) the stored bodies and assembled artifacts go
too.

Request:
  - delete_files: bool (Default true)

Response:
  - 204: Deleted
  - 404: NotFound: Book not in library
*/
func (handler *Handler) Delete(writer http.ResponseWriter, request *http.Request) {
	deleteFiles := requestutil.QueryBool(request, "delete_files", true)

	if err := handler.service.Delete(request.Context(), requestutil.ID(request, "id"), deleteFiles); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Update Detection

/*
GET /api/books/{id}/check-update.

Description: Compares the provider TOC against the stored one without
mutating the catalog.

Response:
  - 200: UpdateCheck: Stored vs provider chapter counts
  - 404: NotFound: Book not in library
  - 502: UpstreamError: Provider unreachable
*/
func (handler *Handler) CheckUpdates(writer http.ResponseWriter, request *http.Request) {
	check, err := handler.service.CheckUpdates(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, check)
}

/*
GET /api/books/{id}/new-chapters.

Description: Lists the provider TOC items beyond the stored maximum index
without mutating the catalog.

Response:
  - 200: []source.TocItem: The not-yet-materialized chapters
  - 404: NotFound: Book not in library
  - 502: UpstreamError: Provider unreachable
*/
func (handler *Handler) NewChapters(writer http.ResponseWriter, request *http.Request) {
	fresh, err := handler.service.NewChapters(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: fresh,
		FieldTotal: len(fresh),
	})
}

/*
POST /api/books/{id}/refresh.

Description: Re-fetches provider metadata and merges new chapters into
the stored TOC. Downloaded bodies are never discarded by a refresh.

Response:
  - 200: Book plus new_chapters count
  - 404: NotFound: Book not in library
  - 502: UpstreamError: Provider unreachable
*/
func (handler *Handler) Refresh(writer http.ResponseWriter, request *http.Request) {
	book, added, err := handler.service.Refresh(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"book":         book,
		"new_chapters": added,
	})
}

// # Statistics

/*
GET /api/stats/summary.

Response:
  - 200: Summary: Shelf-wide aggregates by status and provider
*/
func (handler *Handler) Summary(writer http.ResponseWriter, request *http.Request) {
	summary, err := handler.service.Summarize(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, summary)
}

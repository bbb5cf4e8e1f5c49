// Copyright (c) 2026 Shuhai. All rights reserved.

package reader

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/wenqiu/shuhai/internal/platform/request"
	"github.com/wenqiu/shuhai/internal/platform/respond"
	"github.com/wenqiu/shuhai/internal/platform/validate"
)

// # Handler Implementation

// Handler implements the HTTP layer for the reading surface.
type Handler struct {
	service *Service

	// defaultUserID backs requests that carry no user_id, covering the
	// common single-user deployment.
	defaultUserID string
}

// NewHandler constructs a new reader [Handler].
func NewHandler(service *Service, defaultUserID string) *Handler {
	return &Handler{service: service, defaultUserID: defaultUserID}
}

// RegisterRoutes attaches reader endpoints to the root API router. Paths
// are registered flat so they interleave with the catalog routes under
// /books without mount conflicts.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/books/{id}/toc", handler.Toc)
	api.Get("/books/{id}/chapters/{chapterID}/content", handler.Content)
	api.Get("/books/{id}/cache/status", handler.CacheStatus)

	api.Get("/books/{id}/reader/progress", handler.GetProgress)
	api.Post("/books/{id}/reader/progress", handler.SaveProgress)
	api.Delete("/books/{id}/reader/progress", handler.ClearProgress)
	api.Get("/books/{id}/reader/progress/devices", handler.Devices)

	api.Get("/books/{id}/reader/bookmarks", handler.ListBookmarks)
	api.Post("/books/{id}/reader/bookmarks", handler.AddBookmark)
	api.Get("/books/{id}/reader/bookmarks/{bookmarkID}", handler.GetBookmark)
	api.Post("/books/{id}/reader/bookmarks/{bookmarkID}", handler.UpdateBookmark)
	api.Delete("/books/{id}/reader/bookmarks/{bookmarkID}", handler.DeleteBookmark)

	api.Get("/books/{id}/reader/history", handler.History)
	api.Delete("/books/{id}/reader/history", handler.ClearHistory)
}

// userID resolves the acting user from the query string, falling back to
// the configured single-user identity.
func (handler *Handler) userID(request *http.Request) string {
	if user := request.URL.Query().Get("user_id"); user != "" {
		return user
	}
	return handler.defaultUserID
}

// # Table of Contents

/*
GET /api/books/{id}/toc.

Request:
  - page: int (1-based)
  - limit: int (1-500, default 50)
  - anchor: string (Chapter UUID; overrides page with the page holding it)

Response:
  - 200: []Chapter: One TOC page with pagination meta
  - 404: NotFound: Unknown book or anchor chapter
*/
func (handler *Handler) Toc(writer http.ResponseWriter, request *http.Request) {
	page := requestutil.QueryInt(request, "page", 1)
	limit := requestutil.QueryInt(request, "limit", DefaultTocLimit)
	anchor := request.URL.Query().Get("anchor")

	chapters, meta, err := handler.service.Toc(request.Context(), requestutil.ID(request, "id"), page, limit, anchor)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, chapters, *meta)
}

// # Chapter Content

/*
GET /api/books/{id}/chapters/{chapterID}/content.

Description: Returns the chapter body, fetching it from the provider when
not yet stored. A body that cannot be produced synchronously yields status
"fetching" with a reason instead of an error.

Request:
  - format: string (html or text, default html)
  - range_dir: string (Optional prev or next navigation)
  - prefetch: int (0-5 subsequent chapters to download in the background)

Response:
  - 200: ChapterView: Body or fetching status, with prev/next ids
  - 400: Validation: Unknown format or range direction
  - 404: NotFound: Chapter missing, or navigation walked off the TOC
*/
func (handler *Handler) Content(writer http.ResponseWriter, request *http.Request) {
	view, err := handler.service.Content(request.Context(),
		requestutil.ID(request, "id"),
		requestutil.ID(request, "chapterID"),
		request.URL.Query().Get("format"),
		request.URL.Query().Get("range_dir"),
		requestutil.QueryInt(request, "prefetch", 0),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, view)
}

/*
GET /api/books/{id}/cache/status.

Response:
  - 200: CacheStatus: Completed chapter UUIDs and totals
  - 404: NotFound: Book not in library
*/
func (handler *Handler) CacheStatus(writer http.ResponseWriter, request *http.Request) {
	status, err := handler.service.CacheStatus(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, status)
}

// # Reading Progress

// saveProgressRequest defines the inbound JSON schema for a progress write.
type saveProgressRequest struct {
	ChapterID string  `json:"chapter_id"`
	DeviceID  string  `json:"device_id"`
	OffsetPx  int     `json:"offset_px"`
	Percent   float64 `json:"percent"`
}

/*
POST /api/books/{id}/reader/progress.

Description: Upserts the single cross-device position and appends a
history entry. Percent and offset are clamped server-side.

Request:
  - body: saveProgressRequest

Response:
  - 200: Progress: The stored row
  - 400: Validation: Missing chapter_id
  - 404: NotFound: Book or chapter missing
*/
func (handler *Handler) SaveProgress(writer http.ResponseWriter, request *http.Request) {
	var input saveProgressRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required("chapter_id", input.ChapterID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	progress, err := handler.service.SaveProgress(request.Context(),
		handler.userID(request), requestutil.ID(request, "id"),
		input.ChapterID, input.DeviceID, input.OffsetPx, input.Percent,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, progress)
}

/*
GET /api/books/{id}/reader/progress.

Request:
  - device: string (Optional; only return a row last written by it)

Response:
  - 200: Progress: The sync row
  - 204: No sync row stored
  - 404: NotFound: Book not in library
*/
func (handler *Handler) GetProgress(writer http.ResponseWriter, request *http.Request) {
	progress, err := handler.service.Progress(request.Context(),
		handler.userID(request), requestutil.ID(request, "id"),
		request.URL.Query().Get("device"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if progress == nil {
		respond.NoContent(writer)
		return
	}

	respond.OK(writer, progress)
}

/*
DELETE /api/books/{id}/reader/progress.

Response:
  - 204: Deleted (or no row existed)
*/
func (handler *Handler) ClearProgress(writer http.ResponseWriter, request *http.Request) {
	err := handler.service.ClearProgress(request.Context(),
		handler.userID(request), requestutil.ID(request, "id"),
		request.URL.Query().Get("device"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
GET /api/books/{id}/reader/progress/devices.

Response:
  - 200: []Device: Devices seen in the history, most recent first
*/
func (handler *Handler) Devices(writer http.ResponseWriter, request *http.Request) {
	devices, err := handler.service.Devices(request.Context(), handler.userID(request), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"items": devices, "total": len(devices)})
}

// # Bookmarks

// bookmarkRequest defines the inbound JSON schema for bookmark writes.
type bookmarkRequest struct {
	ChapterID string  `json:"chapter_id"`
	OffsetPx  int     `json:"offset_px"`
	Percent   float64 `json:"percent"`
	Note      string  `json:"note"`
}

/*
POST /api/books/{id}/reader/bookmarks.

Response:
  - 201: Bookmark: The created bookmark
  - 400: Validation: Missing chapter_id
  - 404: NotFound: Book or chapter missing
*/
func (handler *Handler) AddBookmark(writer http.ResponseWriter, request *http.Request) {
	var input bookmarkRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required("chapter_id", input.ChapterID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	bookmark, err := handler.service.AddBookmark(request.Context(),
		handler.userID(request), requestutil.ID(request, "id"),
		input.ChapterID, input.OffsetPx, input.Percent, input.Note,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, bookmark)
}

/*
GET /api/books/{id}/reader/bookmarks.

Response:
  - 200: []Bookmark: Newest first
*/
func (handler *Handler) ListBookmarks(writer http.ResponseWriter, request *http.Request) {
	bookmarks, err := handler.service.ListBookmarks(request.Context(), handler.userID(request), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"items": bookmarks, "total": len(bookmarks)})
}

/*
GET /api/books/{id}/reader/bookmarks/{bookmarkID}.

Response:
  - 200: Bookmark
  - 404: NotFound: Unknown bookmark, or not owned by the user/book
*/
func (handler *Handler) GetBookmark(writer http.ResponseWriter, request *http.Request) {
	bookmark, err := handler.service.Bookmark(request.Context(),
		handler.userID(request), requestutil.ID(request, "id"),
		requestutil.ID(request, "bookmarkID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, bookmark)
}

/*
POST /api/books/{id}/reader/bookmarks/{bookmarkID}.

Response:
  - 200: Bookmark: The updated bookmark
  - 404: NotFound: Unknown bookmark
*/
func (handler *Handler) UpdateBookmark(writer http.ResponseWriter, request *http.Request) {
	var input bookmarkRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	bookmark, err := handler.service.UpdateBookmark(request.Context(),
		handler.userID(request), requestutil.ID(request, "id"),
		requestutil.ID(request, "bookmarkID"),
		input.OffsetPx, input.Percent, input.Note,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, bookmark)
}

/*
DELETE /api/books/{id}/reader/bookmarks/{bookmarkID}.

Response:
  - 204: Deleted
  - 404: NotFound: Unknown bookmark
*/
func (handler *Handler) DeleteBookmark(writer http.ResponseWriter, request *http.Request) {
	err := handler.service.DeleteBookmark(request.Context(),
		handler.userID(request), requestutil.ID(request, "id"),
		requestutil.ID(request, "bookmarkID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Reading History

/*
GET /api/books/{id}/reader/history.

Request:
  - limit: int (Cap, up to 1000)

Response:
  - 200: []HistoryEntry: Newest first
*/
func (handler *Handler) History(writer http.ResponseWriter, request *http.Request) {
	entries, err := handler.service.History(request.Context(),
		handler.userID(request), requestutil.ID(request, "id"),
		requestutil.QueryInt(request, "limit", 0),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"items": entries, "total": len(entries)})
}

/*
DELETE /api/books/{id}/reader/history.

Response:
  - 200: Removed row count
*/
func (handler *Handler) ClearHistory(writer http.ResponseWriter, request *http.Request) {
	removed, err := handler.service.ClearHistory(request.Context(), handler.userID(request), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"removed": removed})
}

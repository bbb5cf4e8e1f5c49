// Copyright (c) 2026 Shuhai. All rights reserved.

package artifact

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
	requestutil "github.com/wenqiu/shuhai/internal/platform/request"
	"github.com/wenqiu/shuhai/internal/platform/respond"
	"github.com/wenqiu/shuhai/internal/store/blob"
)

// # Handler Implementation

// Handler exposes EPUB and TXT assembly over HTTP.
type Handler struct {
	builder *Builder
}

// NewHandler constructs the artifact [Handler].
func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

// RegisterRoutes attaches the artifact endpoints. Registered flat on the
// API router alongside the other /books/{id}/... routes.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Post("/books/{id}/epub", handler.build(blob.KindEpub))
	api.Get("/books/{id}/epub/status", handler.status(blob.KindEpub))
	api.Get("/books/{id}/epub/download", handler.download(blob.KindEpub))

	api.Post("/books/{id}/txt", handler.build(blob.KindTxt))
	api.Get("/books/{id}/txt/status", handler.status(blob.KindTxt))
	api.Get("/books/{id}/txt/download", handler.download(blob.KindTxt))
}

/*
POST /api/books/{id}/epub (and /txt).

Description: Ensures an artifact exists for the book's currently
completed chapters. Returns the cached state when fresh, otherwise
starts a background build.

Response:
  - 200: State: Artifact already assembled and current
  - 202: State: Build started or still in flight
  - 400: Validation: No downloaded chapters yet
  - 404: NotFound: Book not in library
*/
func (handler *Handler) build(kind blob.Kind) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		state, err := handler.builder.Ensure(request.Context(), requestutil.ID(request, "id"), kind)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		if state.Status == StatusReady {
			respond.OK(writer, state)
			return
		}
		respond.Accepted(writer, state)
	}
}

/*
GET /api/books/{id}/epub/status (and /txt).

Response:
  - 200: State: Last known build state
  - 404: NotFound: No build has been requested for this book
*/
func (handler *Handler) status(kind blob.Kind) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		state := handler.builder.State(requestutil.ID(request, "id"), kind)
		if state == nil {
			respond.Error(writer, request, apperr.NotFound("artifact"))
			return
		}

		respond.OK(writer, state)
	}
}

/*
GET /api/books/{id}/epub/download (and /txt).

Description: Streams the assembled file. A stale or missing artifact
triggers a rebuild and answers 202 so clients poll and retry.

Response:
  - 200: File: The artifact bytes with a download disposition
  - 202: State: Build in flight, retry later
  - 400: Validation: No downloaded chapters yet
  - 404: NotFound: Book not in library
*/
func (handler *Handler) download(kind blob.Kind) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		state, err := handler.builder.Ensure(request.Context(), requestutil.ID(request, "id"), kind)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		if state.Status != StatusReady {
			respond.Accepted(writer, state)
			return
		}

		filename := filepath.Base(state.Path)
		writer.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
		writer.Header().Set("Content-Type", contentType(kind))
		http.ServeFile(writer, request, state.Path)
	}
}

func contentType(kind blob.Kind) string {
	if kind == blob.KindEpub {
		return "application/epub+zip"
	}
	return "text/plain; charset=utf-8"
}

// Copyright (c) 2026 Shuhai. All rights reserved.

package task

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/wenqiu/shuhai/internal/platform/request"
	"github.com/wenqiu/shuhai/internal/platform/respond"
	"github.com/wenqiu/shuhai/pkg/pagination"
)

// # Handler Implementation

// Handler implements the HTTP layer for download orchestration.
type Handler struct {
	engine *Engine
	tasks  Repository
}

// NewHandler constructs a new task [Handler].
func NewHandler(engine *Engine, tasks Repository) *Handler {
	return &Handler{engine: engine, tasks: tasks}
}

// RegisterRoutes attaches task endpoints to the root API router. Paths are
// registered flat so the quota handler can add /tasks/quota on the same
// router; static segments take precedence over the {id} parameter.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/tasks", handler.List)

	// The {id} segment names a task on inspection/cancel routes and a
	// book on creation routes.
	api.Get("/tasks/{id}", handler.Get)
	api.Post("/tasks/{id}/cancel", handler.Cancel)
	api.Post("/tasks/{id}/download", handler.Download)
	api.Post("/tasks/{id}/update", handler.Update)
	api.Post("/tasks/{id}/retry", handler.Retry)
}

// # Task Creation

/*
POST /api/tasks/{bookID}/download.

Description: Starts a batch download of the book's chapters on the worker
pool. Already-completed chapters are skipped unless skip_completed=false,
which forces a re-download and invalidates stored artifacts.

Request:
  - start_chapter: int (0-based, inclusive, optional)
  - end_chapter: int (Inclusive, optional, omit for open-ended)
  - skip_completed: bool (Default true)

Response:
  - 201: Task: The pending task; execution has been scheduled
  - 404: NotFound: Book not in library
  - 409: Conflict: A task is already running for this book
*/
func (handler *Handler) Download(writer http.ResponseWriter, request *http.Request) {
	startChapter := requestutil.QueryInt(request, "start_chapter", 0)
	endChapter := requestutil.QueryInt(request, "end_chapter", -1)
	skipCompleted := requestutil.QueryBool(request, "skip_completed", true)

	created, err := handler.engine.Create(request.Context(),
		requestutil.ID(request, "id"), TypeFullDownload,
		startChapter, endChapter, skipCompleted,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

/*
POST /api/tasks/{bookID}/update.

Description: Checks the provider for newly published chapters, merges them
into the stored TOC, and downloads every pending chapter.

Response:
  - 201: Task: The pending update task
  - 404: NotFound: Book not in library
  - 409: Conflict: A task is already running for this book
  - 502: UpstreamError: Provider TOC unreachable
*/
func (handler *Handler) Update(writer http.ResponseWriter, request *http.Request) {
	created, err := handler.engine.Create(request.Context(),
		requestutil.ID(request, "id"), TypeUpdate, 0, -1, true,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

/*
POST /api/tasks/{bookID}/retry.

Description: Flips the book's failed chapters back to pending and starts a
download task covering them.

Response:
  - 201: Task: The pending retry task
  - 400: Validation: No failed chapters to retry
  - 404: NotFound: Book not in library
  - 409: Conflict: A task is already running for this book
*/
func (handler *Handler) Retry(writer http.ResponseWriter, request *http.Request) {
	created, err := handler.engine.RetryFailed(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

// # Inspection

/*
GET /api/tasks.

Request:
  - book_id: string (Optional filter)
  - limit: int
  - page: int

Response:
  - 200: []Task: Paginated list, newest first
*/
func (handler *Handler) List(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)
	bookID := request.URL.Query().Get("book_id")

	tasks, total, err := handler.tasks.List(request.Context(), bookID, paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, tasks, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}

/*
GET /api/tasks/{id}.

Response:
  - 200: Task: The task with live counters and progress
  - 404: NotFound: Unknown task
*/
func (handler *Handler) Get(writer http.ResponseWriter, request *http.Request) {
	found, err := handler.tasks.FindByID(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"task":     found,
		"progress": found.Progress(),
	})
}

// # Cancellation

/*
POST /api/tasks/{id}/cancel.

Description: Marks the task cancelled. Workers observe the flag at chapter
boundaries, so one in-flight chapter per worker may still settle.

Response:
  - 200: Task: The cancelled task
  - 404: NotFound: Unknown task
  - 409: Conflict: Task already finished
*/
func (handler *Handler) Cancel(writer http.ResponseWriter, request *http.Request) {
	cancelled, err := handler.engine.Cancel(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, cancelled)
}

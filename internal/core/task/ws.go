// Copyright (c) 2026 Shuhai. All rights reserved.

package task

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/platform/constants"
	"github.com/wenqiu/shuhai/internal/platform/middleware"
	"github.com/wenqiu/shuhai/internal/platform/respond"
)

// # WebSocket Facade

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 90 * time.Second

	// eventBuffer absorbs bursts from fast workers. A client that cannot
	// drain it within the write timeout is disconnected.
	eventBuffer = 256
)

// control messages exchanged as JSON text frames alongside snapshots.
type controlMessage struct {
	Type string `json:"type"`
}

/*
SocketHandler streams task progress over WebSocket.

Two subscription shapes are offered: by task ID for a known batch, and by
book ID, which follows whatever task is currently active for the book and
re-attaches when a new one starts.
*/
type SocketHandler struct {
	engine   *Engine
	tasks    Repository
	books    book.BookRepository
	bus      *Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader

	authEnabled bool
	verifier    middleware.TokenVerifier
	sessions    middleware.SessionChecker
}

// NewSocketHandler constructs the WebSocket facade. When authEnabled is
// false the cookie check is skipped entirely.
func NewSocketHandler(engine *Engine, tasks Repository, books book.BookRepository, bus *Bus, authEnabled bool, verifier middleware.TokenVerifier, sessions middleware.SessionChecker, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		engine: engine,
		tasks:  tasks,
		books:  books,
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Cookie auth happens after the upgrade; cross-origin pages
			// cannot attach the cookie, so the origin check stays open.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		authEnabled: authEnabled,
		verifier:    verifier,
		sessions:    sessions,
	}
}

// RegisterRoutes attaches the socket endpoints under /ws.
func (handler *SocketHandler) RegisterRoutes(router chi.Router) {
	router.Get("/ws/tasks/{id}", handler.StreamTask)
	router.Get("/ws/books/{id}", handler.StreamBook)
}

// # Endpoints

/*
GET /ws/tasks/{id}.

Description: Upgrades to WebSocket and streams the task's progress events
as JSON text frames. The first frame is a snapshot of the current state;
a terminal task yields its completed frame and an immediate close.

Response:
  - 101: Upgrade, then Snapshot frames
  - 404: NotFound: Unknown task (before the upgrade)
  - 4001 close: Missing, invalid or revoked auth cookie
*/
func (handler *SocketHandler) StreamTask(writer http.ResponseWriter, request *http.Request) {
	target, err := handler.tasks.FindByID(request.Context(), chi.URLParam(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	connection, err := handler.upgrade(writer, request)
	if err != nil {
		return
	}
	defer connection.Close()

	if !handler.authorize(connection, request) {
		return
	}

	handler.streamTask(connection, target)
}

/*
GET /ws/books/{id}.

Description: Streams progress for whatever task is active on the book.
When the active task finishes the handler polls for a successor once per
second and re-attaches, so a client survives back-to-back update tasks.
If no task is active the current book state is sent and the socket closes.

Response:
  - 101: Upgrade, then Snapshot frames
  - 404: NotFound: Book not in library (before the upgrade)
  - 4001 close: Missing, invalid or revoked auth cookie
*/
func (handler *SocketHandler) StreamBook(writer http.ResponseWriter, request *http.Request) {
	owner, err := handler.books.FindByID(request.Context(), chi.URLParam(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	connection, err := handler.upgrade(writer, request)
	if err != nil {
		return
	}
	defer connection.Close()

	if !handler.authorize(connection, request) {
		return
	}

	for {
		active, err := handler.tasks.FindActiveByBook(request.Context(), owner.ID)
		if err != nil {
			// No active task. Report the settled book state and finish.
			handler.writeJSON(connection, Snapshot{
				Event:     EventCompleted,
				BookID:    owner.ID,
				BookTitle: owner.Title,
				Status:    Status(owner.DownloadStatus),
				Success:   owner.DownloadStatus == book.DownloadCompleted,
				Message:   owner.ErrorMessage,
				Timestamp: time.Now().Unix(),
			})
			return
		}

		if !handler.streamTask(connection, active) {
			return
		}

		// The task reached a terminal state but the client stayed. Give a
		// follow-up task a moment to appear.
		time.Sleep(time.Second)

		fresh, err := handler.books.FindByID(request.Context(), owner.ID)
		if err != nil {
			return
		}
		owner = fresh
		if owner.DownloadStatus != book.DownloadDownloading {
			if _, running := handler.engine.RunningTaskID(owner.ID); !running {
				return
			}
		}
	}
}

// # Streaming Core

// streamTask pumps one task's events until it terminates or the client
// goes away. It reports whether the connection is still usable.
func (handler *SocketHandler) streamTask(connection *websocket.Conn, target *Task) bool {
	// Terminal tasks get their final frame without a subscription.
	if target.Status.Terminal() {
		return handler.writeJSON(connection, terminalSnapshot(target))
	}

	events := make(chan Snapshot, eventBuffer)
	overflow := make(chan struct{}, 1)

	token := handler.bus.Subscribe(target.ID, func(snapshot Snapshot) {
		select {
		case events <- snapshot:
		default:
			select {
			case overflow <- struct{}{}:
			default:
			}
		}
	})
	defer handler.bus.Unsubscribe(target.ID, token)

	if !handler.writeJSON(connection, snapshotOf(EventProgress, target, "")) {
		return false
	}

	// Reader goroutine: surfaces client disconnects and answers JSON
	// pings. Exits when the connection closes.
	gone := make(chan struct{})
	go handler.readLoop(connection, gone)

	pings := time.NewTicker(pingInterval)
	defer pings.Stop()

	for {
		select {
		case snapshot := <-events:
			if !handler.writeJSON(connection, snapshot) {
				return false
			}
			if snapshot.Event == EventCompleted {
				return true
			}

		case <-overflow:
			handler.logger.Warn("progress_socket_overflow", slog.String("task_id", target.ID))
			return false

		case <-pings.C:
			if !handler.ping(connection) {
				return false
			}

		case <-gone:
			return false
		}
	}
}

// readLoop drains inbound frames, answering {"type":"ping"} with a pong.
func (handler *SocketHandler) readLoop(connection *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	connection.SetReadDeadline(time.Now().Add(readTimeout))
	connection.SetPongHandler(func(string) error {
		return connection.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var message controlMessage
		if err := connection.ReadJSON(&message); err != nil {
			return
		}
		connection.SetReadDeadline(time.Now().Add(readTimeout))

		if message.Type == "ping" {
			handler.writeJSON(connection, controlMessage{Type: "pong"})
		}
	}
}

// # Connection Plumbing

func (handler *SocketHandler) upgrade(writer http.ResponseWriter, request *http.Request) (*websocket.Conn, error) {
	connection, err := handler.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		handler.logger.Warn("socket_upgrade_failed",
			slog.String("path", request.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return connection, nil
}

// authorize runs the cookie check post-upgrade and closes with 4001 on
// failure, so browser clients can distinguish auth loss from a drop.
func (handler *SocketHandler) authorize(connection *websocket.Conn, request *http.Request) bool {
	if !handler.authEnabled {
		return true
	}

	if _, err := middleware.VerifyRequest(request, handler.verifier, handler.sessions); err != nil {
		message := websocket.FormatCloseMessage(constants.WSCloseUnauthorized, "unauthorized")
		connection.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeTimeout))
		return false
	}

	return true
}

// writeJSON sends one frame under the write deadline. Serialized by the
// single streaming goroutine per connection.
func (handler *SocketHandler) writeJSON(connection *websocket.Conn, value any) bool {
	connection.SetWriteDeadline(time.Now().Add(writeTimeout))
	return connection.WriteJSON(value) == nil
}

func (handler *SocketHandler) ping(connection *websocket.Conn) bool {
	deadline := time.Now().Add(writeTimeout)
	return connection.WriteControl(websocket.PingMessage, nil, deadline) == nil
}

// terminalSnapshot rebuilds the completed frame for an already-finished
// task, for late subscribers who missed the live emission.
func terminalSnapshot(target *Task) Snapshot {
	snapshot := snapshotOf(EventCompleted, target, "")
	snapshot.Success = target.Status == StatusCompleted
	switch target.Status {
	case StatusCompleted:
		snapshot.Message = "下载完成"
	case StatusCancelled:
		snapshot.Message = "任务已取消"
	default:
		snapshot.Message = target.ErrorMessage
	}
	return snapshot
}

// Copyright (c) 2026 Shuhai. All rights reserved.

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/core/quota"
	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/source"
	"github.com/wenqiu/shuhai/internal/store/blob"
	"github.com/wenqiu/shuhai/pkg/uuid"
)

// ErrQuotaReached reports that a provider's daily word budget was already
// exhausted before any fetch attempt. The reader path surfaces it as a
// "fetching" status with an explanatory message.
var ErrQuotaReached = errors.New("task: daily word quota reached")

// # Engine

// Deps bundles the engine's collaborators.
type Deps struct {
	Tasks    Repository
	Books    book.BookRepository
	Chapters book.ChapterRepository
	Ledger   *quota.Ledger
	Sources  source.Factory
	Blobs    *blob.Store
	Bus      *Bus
	Logger   *slog.Logger

	// Workers is the bounded pool size per task execution.
	Workers int
	// Delay is the optional pause between chapters on one worker.
	Delay time.Duration
}

/*
Engine schedules and executes download tasks.

One Engine instance owns all process-wide download state: the book→running
task map (at most one active execution per book), the cancelled-task set
(cooperative cancellation at chapter boundaries), and the prefetch
in-flight set shared with the reader path. Each map is guarded by the
engine mutex.
*/
type Engine struct {
	deps    Deps
	workers int
	delay   time.Duration
	logger  *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	running   map[string]string   // book ID -> active task ID
	cancelled map[string]struct{} // cancelled task IDs
	inflight  map[string]struct{} // "{book}:{chapter}" fetches in flight
}

// NewEngine constructs a ready [Engine]. Call [Engine.Close] on shutdown to
// stop accepting work and wait for running executions.
func NewEngine(deps Deps) *Engine {
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		deps:       deps,
		workers:    workers,
		delay:      deps.Delay,
		logger:     deps.Logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		running:    make(map[string]string),
		cancelled:  make(map[string]struct{}),
		inflight:   make(map[string]struct{}),
	}
}

// Close stops new chapter dispatch and waits for in-flight executions to
// finalize. Running tasks observe the context between chapters.
func (engine *Engine) Close() {
	engine.baseCancel()
	engine.wg.Wait()
}

// # Task Creation

/*
Create persists a new task and launches its execution in the background.

Description: At most one task executes per book; a second request while
one is active is rejected with a conflict. Update-type tasks first
materialize newly published chapters so the batch covers them.

Parameters:
  - context: context.Context (Scopes the creation only; execution uses
    the engine's lifetime context)
  - bookID: string (UUID)
  - taskType: Type
  - startChapter: int (0-based, inclusive)
  - endChapter: int (Inclusive, negative for open-ended)
  - skipCompleted: bool

Returns:
  - *Task: The pending task record
  - error: Validation, conflict, upstream or persistence failures
*/
func (engine *Engine) Create(context context.Context, bookID string, taskType Type, startChapter, endChapter int, skipCompleted bool) (*Task, error) {
	if !taskType.IsValid() {
		return nil, apperr.ValidationError("Unknown task type")
	}
	if startChapter < 0 {
		startChapter = 0
	}

	target, err := engine.deps.Books.FindByID(context, bookID)
	if err != nil {
		return nil, err
	}

	// Single active execution per book
	engine.mu.Lock()
	if runningID, ok := engine.running[bookID]; ok {
		engine.mu.Unlock()
		return nil, apperr.Conflict(fmt.Sprintf("a download task (%s) is already running for this book", runningID))
	}
	engine.mu.Unlock()

	if taskType == TypeUpdate {
		if _, err := engine.materializeNewChapters(context, target); err != nil {
			return nil, err
		}
	}

	chapters, err := engine.deps.Chapters.ListByBook(context, bookID)
	if err != nil {
		return nil, err
	}

	created := &Task{
		ID:            uuid.New(),
		BookID:        bookID,
		Type:          taskType,
		Status:        StatusPending,
		StartChapter:  startChapter,
		EndChapter:    endChapter,
		SkipCompleted: skipCompleted,
	}
	created.Total = len(selectWork(chapters, created))

	if err := engine.deps.Tasks.Create(context, created); err != nil {
		return nil, err
	}

	// Registration and launch are atomic with respect to other creators.
	// A creator that lost the race already persisted its row; mark it
	// failed so FindActiveByBook can never pin a stream to an orphan.
	engine.mu.Lock()
	if runningID, ok := engine.running[bookID]; ok {
		engine.mu.Unlock()
		now := time.Now()
		created.Status = StatusFailed
		created.ErrorMessage = "superseded by concurrent task " + runningID
		created.CompletedAt = &now
		if updateErr := engine.deps.Tasks.Update(context, created); updateErr != nil {
			engine.logger.Error("task_orphan_mark_failed",
				slog.String("task_id", created.ID),
				slog.String("error", updateErr.Error()),
			)
		}
		return nil, apperr.Conflict(fmt.Sprintf("a download task (%s) is already running for this book", runningID))
	}
	engine.running[bookID] = created.ID
	engine.mu.Unlock()

	engine.wg.Add(1)
	go engine.execute(created, target)

	engine.logger.Info("task_created",
		slog.String("task_id", created.ID),
		slog.String("book_id", bookID),
		slog.String("type", string(taskType)),
		slog.Int("total", created.Total),
	)

	return created, nil
}

/*
RetryFailed flips a book's failed chapters back to pending and starts a
full-download task over the refreshed set.
*/
func (engine *Engine) RetryFailed(context context.Context, bookID string) (*Task, error) {
	flipped, err := engine.deps.Chapters.ResetFailed(context, bookID)
	if err != nil {
		return nil, err
	}
	if flipped == 0 {
		return nil, apperr.ValidationError("No failed chapters to retry")
	}

	return engine.Create(context, bookID, TypeFullDownload, 0, -1, true)
}

// # Cancellation

/*
Cancel marks a task cancelled and signals its workers.

Description: Cancellation is cooperative at chapter boundaries: workers
observe the cancelled set before each dispatch and drain; an in-flight
chapter finishes or fails naturally. The executing goroutine emits the
terminal event; when no execution is active (for example after a process
restart) the terminal event is emitted here.
*/
func (engine *Engine) Cancel(context context.Context, taskID string) (*Task, error) {
	target, err := engine.deps.Tasks.FindByID(context, taskID)
	if err != nil {
		return nil, err
	}

	if target.Status.Terminal() {
		return nil, apperr.Conflict("task already finished")
	}

	engine.mu.Lock()
	engine.cancelled[taskID] = struct{}{}
	executing := engine.running[target.BookID] == taskID
	engine.mu.Unlock()

	now := time.Now()
	target.Status = StatusCancelled
	target.CompletedAt = &now

	if err := engine.deps.Tasks.Update(context, target); err != nil {
		return nil, err
	}

	engine.logger.Info("task_cancelled",
		slog.String("task_id", taskID),
		slog.String("book_id", target.BookID),
	)

	if !executing {
		// No workers will observe the set; settle the book and emit the
		// terminal event here.
		engine.settleCancelledBook(context, target)
		engine.emitTerminal(target, "", false, "任务已取消")
		engine.forgetCancelled(taskID)
	}

	return target, nil
}

// settleCancelledBook moves the book to partial or pending depending on
// whether any chapters completed.
func (engine *Engine) settleCancelledBook(context context.Context, target *Task) {
	_, completed, err := engine.deps.Chapters.CountByBook(context, target.BookID)
	if err != nil {
		engine.logger.Error("task_settle_count_failed",
			slog.String("task_id", target.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	status := book.DownloadPending
	if completed > 0 {
		status = book.DownloadPartial
	}

	if err := engine.deps.Books.SetDownloadState(context, target.BookID, status, ""); err != nil {
		engine.logger.Error("task_settle_book_failed",
			slog.String("task_id", target.ID),
			slog.String("error", err.Error()),
		)
	}
}

// # Execution

// execState serializes counter updates, row writes and event emission for
// one running task, keeping snapshots monotone across workers.
type execState struct {
	mu        sync.Mutex
	task      *Task
	bookTitle string
}

// execute runs one task to a terminal state. It owns the running-map entry
// for the book and releases it on exit.
func (engine *Engine) execute(target *Task, owner *book.Book) {
	defer engine.wg.Done()
	defer func() {
		engine.mu.Lock()
		delete(engine.running, target.BookID)
		engine.mu.Unlock()
	}()

	ctx := engine.baseCtx

	// Cancelled before the first dispatch: nothing was started.
	if engine.isCancelled(target.ID) {
		engine.settleCancelledBook(ctx, target)
		engine.emitTerminal(target, owner.Title, false, "任务已取消")
		engine.forgetCancelled(target.ID)
		return
	}

	// A forced re-download resets completed rows first; stored artifacts
	// no longer match and are invalidated alongside.
	if target.Type == TypeFullDownload && !target.SkipCompleted {
		if err := engine.deps.Chapters.ResetCompleted(ctx, target.BookID, target.StartChapter, target.EndChapter); err != nil {
			engine.fail(ctx, target, owner, fmt.Sprintf("重置章节状态失败: %v", err))
			return
		}
		engine.deps.Blobs.DeleteArtifacts(owner.ID, owner.Title)
	}

	now := time.Now()
	target.Status = StatusRunning
	target.StartedAt = &now

	if err := engine.deps.Books.SetDownloadState(ctx, target.BookID, book.DownloadDownloading, ""); err != nil {
		engine.logger.Error("task_book_state_failed", slog.String("task_id", target.ID), slog.String("error", err.Error()))
	}

	// Re-evaluate the work list: the catalog may have changed since the
	// task was created.
	chapters, err := engine.deps.Chapters.ListByBook(ctx, target.BookID)
	if err != nil {
		engine.fail(ctx, target, owner, fmt.Sprintf("读取章节列表失败: %v", err))
		return
	}
	work := selectWork(chapters, target)
	target.Total = len(work)

	if err := engine.deps.Tasks.Update(ctx, target); err != nil {
		engine.logger.Error("task_update_failed", slog.String("task_id", target.ID), slog.String("error", err.Error()))
	}

	state := &execState{task: target, bookTitle: owner.Title}
	engine.deps.Bus.Publish(target.ID, snapshotOf(EventProgress, target, owner.Title))

	client, err := engine.deps.Sources(owner.Provider)
	if err != nil {
		engine.fail(ctx, target, owner, err.Error())
		return
	}

	// Bounded worker pool with cooperative cancellation at chapter
	// boundaries. Cancelled or shut-down workers drain the channel.
	jobs := make(chan *book.Chapter)
	var workerGroup sync.WaitGroup

	for i := 0; i < engine.workers; i++ {
		workerGroup.Add(1)
		go func() {
			defer workerGroup.Done()
			for chapter := range jobs {
				if engine.isCancelled(target.ID) || ctx.Err() != nil {
					continue
				}
				engine.processChapter(ctx, state, owner, client, chapter)
				if engine.delay > 0 {
					time.Sleep(engine.delay)
				}
			}
		}()
	}

	for _, chapter := range work {
		jobs <- chapter
	}
	close(jobs)
	workerGroup.Wait()

	engine.finalize(ctx, target, owner)
}

// processChapter executes the per-chapter step: quota gate, fetch, store,
// record, counter bump, progress event.
func (engine *Engine) processChapter(ctx context.Context, state *execState, owner *book.Book, client source.Client, chapter *book.Chapter) {
	allowed, err := engine.deps.Ledger.CanDownload(ctx, owner.Provider)
	if err == nil && !allowed {
		err = ErrQuotaReached
	}

	var content *source.ChapterContent
	if err == nil {
		content, err = client.GetChapterContent(ctx, chapter.ProviderItemID, owner.ProviderBookID)
	}

	if err != nil {
		if markErr := engine.deps.Chapters.SetFailed(ctx, chapter.ID); markErr != nil {
			engine.logger.Error("chapter_mark_failed_error",
				slog.String("chapter_id", chapter.ID),
				slog.String("error", markErr.Error()),
			)
		}
		engine.logger.Warn("chapter_download_failed",
			slog.String("book_id", owner.ID),
			slog.Int("chapter_index", chapter.Index),
			slog.String("error", err.Error()),
		)
		engine.bump(ctx, state, false)
		return
	}

	ref, err := engine.deps.Blobs.WriteChapter(owner.ID, chapter.Index, content.Text)
	if err == nil {
		err = engine.deps.Chapters.SetCompleted(ctx, chapter.ID, ref, source.WordCount(content.Text))
	}
	if err != nil {
		engine.logger.Error("chapter_store_failed",
			slog.String("chapter_id", chapter.ID),
			slog.String("error", err.Error()),
		)
		if markErr := engine.deps.Chapters.SetFailed(ctx, chapter.ID); markErr != nil {
			engine.logger.Error("chapter_mark_failed_error", slog.String("chapter_id", chapter.ID), slog.String("error", markErr.Error()))
		}
		engine.bump(ctx, state, false)
		return
	}

	if err := engine.deps.Ledger.Record(ctx, owner.Provider, source.WordCount(content.Text)); err != nil {
		engine.logger.Error("quota_record_failed", slog.String("provider", string(owner.Provider)), slog.String("error", err.Error()))
	}

	engine.bump(ctx, state, true)
}

// bump applies one chapter outcome to the counters, persists the row and
// emits a progress event. The state lock serializes commit+emit per task.
func (engine *Engine) bump(ctx context.Context, state *execState, success bool) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if success {
		state.task.Downloaded++
	} else {
		state.task.Failed++
	}

	if err := engine.deps.Tasks.Update(ctx, state.task); err != nil {
		engine.logger.Error("task_update_failed", slog.String("task_id", state.task.ID), slog.String("error", err.Error()))
	}

	engine.deps.Bus.Publish(state.task.ID, snapshotOf(EventProgress, state.task, state.bookTitle))
}

// finalize writes the single terminal state and emits the terminal event.
func (engine *Engine) finalize(ctx context.Context, target *Task, owner *book.Book) {
	now := time.Now()
	target.CompletedAt = &now

	cancelled := engine.isCancelled(target.ID)

	var success bool
	var message string

	switch {
	case cancelled:
		target.Status = StatusCancelled
		message = "任务已取消"
		engine.settleCancelledBook(ctx, target)

	case target.Failed > 0:
		target.Status = StatusFailed
		target.ErrorMessage = fmt.Sprintf("%d个章节下载失败", target.Failed)
		message = target.ErrorMessage
		if err := engine.deps.Books.SetDownloadState(ctx, target.BookID, book.DownloadFailed, target.ErrorMessage); err != nil {
			engine.logger.Error("task_book_state_failed", slog.String("task_id", target.ID), slog.String("error", err.Error()))
		}

	default:
		target.Status = StatusCompleted
		success = true
		message = "下载完成"
		if err := engine.deps.Books.SetDownloadState(ctx, target.BookID, book.DownloadCompleted, ""); err != nil {
			engine.logger.Error("task_book_state_failed", slog.String("task_id", target.ID), slog.String("error", err.Error()))
		}
	}

	if err := engine.deps.Tasks.Update(ctx, target); err != nil {
		engine.logger.Error("task_update_failed", slog.String("task_id", target.ID), slog.String("error", err.Error()))
	}

	engine.logger.Info("task_finished",
		slog.String("task_id", target.ID),
		slog.String("status", string(target.Status)),
		slog.Int("downloaded", target.Downloaded),
		slog.Int("failed", target.Failed),
	)

	engine.emitTerminal(target, owner.Title, success, message)
	engine.forgetCancelled(target.ID)
}

// fail aborts an execution before its worker pool started.
func (engine *Engine) fail(ctx context.Context, target *Task, owner *book.Book, message string) {
	now := time.Now()
	target.Status = StatusFailed
	target.ErrorMessage = message
	target.CompletedAt = &now

	if err := engine.deps.Tasks.Update(ctx, target); err != nil {
		engine.logger.Error("task_update_failed", slog.String("task_id", target.ID), slog.String("error", err.Error()))
	}
	if err := engine.deps.Books.SetDownloadState(ctx, target.BookID, book.DownloadFailed, message); err != nil {
		engine.logger.Error("task_book_state_failed", slog.String("task_id", target.ID), slog.String("error", err.Error()))
	}

	engine.emitTerminal(target, owner.Title, false, message)
	engine.forgetCancelled(target.ID)
}

// emitTerminal publishes the completed event and releases subscribers.
func (engine *Engine) emitTerminal(target *Task, bookTitle string, success bool, message string) {
	snapshot := snapshotOf(EventCompleted, target, bookTitle)
	snapshot.Success = success
	snapshot.Message = message

	engine.deps.Bus.Publish(target.ID, snapshot)
	engine.deps.Bus.UnsubscribeAll(target.ID)
}

// # Single-Chapter Path

/*
DownloadChapter fetches, stores and records one chapter outside a task.

Description: Used by the reader's fetch-on-demand and prefetch paths. The
provider client applies its own retry schedule. Returns [ErrQuotaReached]
without attempting when the budget is exhausted.

Parameters:
  - context: context.Context
  - owner: *book.Book
  - chapter: *book.Chapter

Returns:
  - string: The blob content reference of the stored body
  - error: Quota, upstream or persistence failures
*/
func (engine *Engine) DownloadChapter(context context.Context, owner *book.Book, chapter *book.Chapter) (string, error) {
	allowed, err := engine.deps.Ledger.CanDownload(context, owner.Provider)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", ErrQuotaReached
	}

	client, err := engine.deps.Sources(owner.Provider)
	if err != nil {
		return "", err
	}

	content, err := client.GetChapterContent(context, chapter.ProviderItemID, owner.ProviderBookID)
	if err != nil {
		if markErr := engine.deps.Chapters.SetFailed(context, chapter.ID); markErr != nil {
			engine.logger.Error("chapter_mark_failed_error", slog.String("chapter_id", chapter.ID), slog.String("error", markErr.Error()))
		}
		return "", err
	}

	ref, err := engine.deps.Blobs.WriteChapter(owner.ID, chapter.Index, content.Text)
	if err != nil {
		return "", err
	}

	if err := engine.deps.Chapters.SetCompleted(context, chapter.ID, ref, source.WordCount(content.Text)); err != nil {
		return "", err
	}

	if err := engine.deps.Ledger.Record(context, owner.Provider, source.WordCount(content.Text)); err != nil {
		engine.logger.Error("quota_record_failed", slog.String("provider", string(owner.Provider)), slog.String("error", err.Error()))
	}

	return ref, nil
}

// TryBeginFetch claims the in-flight slot for one chapter. It returns
// false when another fetch (typically a prefetch) already owns it.
func (engine *Engine) TryBeginFetch(bookID, chapterID string) bool {
	key := bookID + ":" + chapterID

	engine.mu.Lock()
	defer engine.mu.Unlock()

	if _, busy := engine.inflight[key]; busy {
		return false
	}
	engine.inflight[key] = struct{}{}
	return true
}

// EndFetch releases a slot claimed by [Engine.TryBeginFetch].
func (engine *Engine) EndFetch(bookID, chapterID string) {
	engine.mu.Lock()
	delete(engine.inflight, bookID+":"+chapterID)
	engine.mu.Unlock()
}

// # Introspection

// RunningTaskID returns the active task for a book, if any.
func (engine *Engine) RunningTaskID(bookID string) (string, bool) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	id, ok := engine.running[bookID]
	return id, ok
}

// # Internal Helpers

func (engine *Engine) isCancelled(taskID string) bool {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	_, ok := engine.cancelled[taskID]
	return ok
}

func (engine *Engine) forgetCancelled(taskID string) {
	engine.mu.Lock()
	delete(engine.cancelled, taskID)
	engine.mu.Unlock()
}

// materializeNewChapters fetches the provider TOC and inserts chapters
// beyond the stored maximum index as pending rows.
func (engine *Engine) materializeNewChapters(context context.Context, owner *book.Book) (int, error) {
	client, err := engine.deps.Sources(owner.Provider)
	if err != nil {
		return 0, err
	}

	catalog, err := client.GetChapterList(context, owner.ProviderBookID)
	if err != nil {
		return 0, apperr.BadGateway("provider request failed", err)
	}

	existing, err := engine.deps.Chapters.ListByBook(context, owner.ID)
	if err != nil {
		return 0, err
	}

	maxIndex := -1
	for _, chapter := range existing {
		if chapter.Index > maxIndex {
			maxIndex = chapter.Index
		}
	}

	var fresh []*book.Chapter
	for _, item := range catalog.Chapters {
		if item.ChapterIndex <= maxIndex {
			continue
		}
		fresh = append(fresh, &book.Chapter{
			ID:             uuid.New(),
			BookID:         owner.ID,
			Index:          item.ChapterIndex,
			ProviderItemID: item.ItemID,
			Title:          item.Title,
			VolumeName:     item.VolumeName,
			WordCount:      item.WordCount,
			Status:         book.ChapterPending,
		})
	}

	if len(fresh) == 0 {
		return 0, nil
	}

	if err := engine.deps.Chapters.UpsertCatalog(context, owner.ID, fresh); err != nil {
		return 0, err
	}

	owner.TotalChapters = len(existing) + len(fresh)
	if err := engine.deps.Books.Update(context, owner); err != nil {
		return 0, err
	}

	engine.logger.Info("new_chapters_materialized",
		slog.String("book_id", owner.ID),
		slog.Int("count", len(fresh)),
	)

	return len(fresh), nil
}

// selectWork filters the ordered TOC down to the chapters a task should
// process, re-applying the creation policy.
func selectWork(chapters []*book.Chapter, target *Task) []*book.Chapter {
	var work []*book.Chapter
	for _, chapter := range chapters {
		if chapter.Index < target.StartChapter {
			continue
		}
		if target.EndChapter >= 0 && chapter.Index > target.EndChapter {
			continue
		}

		switch target.Type {
		case TypeUpdate:
			if chapter.Status != book.ChapterPending {
				continue
			}
		default: // full download
			if target.SkipCompleted && chapter.Status == book.ChapterCompleted {
				continue
			}
		}

		work = append(work, chapter)
	}
	return work
}

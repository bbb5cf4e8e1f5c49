// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package quota enforces the per-provider daily word budget.

Every metered provider gets one ledger row per local calendar day. Workers
consult the ledger before each chapter fetch and record the body's word
count after a successful store. biquge is unmetered and bypasses the ledger
entirely.

The budget is a soft ceiling: a worker that passes the check may finish the
chapter it already started, so the ledger can overshoot by at most one
chapter body per concurrent worker.
*/
package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/wenqiu/shuhai/internal/source"
)

// Unmetered is the sentinel limit reported for providers outside the ledger.
const Unmetered int64 = -1

// Usage is the ledger state of one provider for the current day.
type Usage struct {
	Provider          string `json:"provider"`
	Day               string `json:"day"` // local calendar day, YYYY-MM-DD
	WordsDownloaded   int64   `json:"words_downloaded"`
	Limit             int64   `json:"limit"` // -1 when unmetered
	Remaining         int64   `json:"remaining"`
	Percentage        float64 `json:"percentage"` // used/limit, 0-100
	Exhausted         bool    `json:"exhausted"`
	SecondsUntilReset int     `json:"seconds_until_reset"`
}

// # Ledger Service

// Ledger tracks and enforces daily word budgets.
type Ledger struct {
	store  Store
	limit  int64
	logger *slog.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewLedger constructs a [Ledger] with the configured daily word limit.
func NewLedger(store Store, dailyLimit int64, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		limit:  dailyLimit,
		logger: logger,
		now:    time.Now,
	}
}

/*
CanDownload reports whether a provider still has budget today.

Description: The check passes while the recorded total is below the limit,
so the chapter in flight may push the ledger slightly past it. Unmetered
providers always pass, as does a non-positive configured limit.

Parameters:
  - context: context.Context
  - provider: source.Provider

Returns:
  - bool: True when another chapter fetch is allowed
  - error: Ledger read failures
*/
func (ledger *Ledger) CanDownload(context context.Context, provider source.Provider) (bool, error) {
	if !provider.Metered() || ledger.limit <= 0 {
		return true, nil
	}

	used, err := ledger.store.Get(context, string(provider), ledger.today())
	if err != nil {
		return false, err
	}

	return used < ledger.limit, nil
}

/*
Record adds a chapter body's word count to today's ledger row.

Description: The store performs the addition atomically, so concurrent
workers never lose increments. Unmetered providers are a no-op.

Parameters:
  - context: context.Context
  - provider: source.Provider
  - words: int (Non-positive counts are ignored)

Returns:
  - error: Ledger write failures
*/
func (ledger *Ledger) Record(context context.Context, provider source.Provider, words int) error {
	if !provider.Metered() || words <= 0 {
		return nil
	}

	if err := ledger.store.Add(context, string(provider), ledger.today(), int64(words)); err != nil {
		return err
	}

	ledger.logger.Debug("quota_recorded",
		slog.String("provider", string(provider)),
		slog.Int("words", words),
	)

	return nil
}

/*
Usage returns the ledger state of one provider for today.
*/
func (ledger *Ledger) Usage(context context.Context, provider source.Provider) (*Usage, error) {
	day := ledger.today()

	usage := &Usage{
		Provider:          string(provider),
		Day:               day.Format("2006-01-02"),
		Limit:             Unmetered,
		SecondsUntilReset: ledger.secondsUntilReset(),
	}

	if !provider.Metered() {
		return usage, nil
	}

	used, err := ledger.store.Get(context, string(provider), day)
	if err != nil {
		return nil, err
	}

	usage.WordsDownloaded = used

	// A non-positive configured limit disables enforcement; the provider
	// reports as unmetered while usage keeps accruing.
	if ledger.limit > 0 {
		usage.Limit = ledger.limit
		usage.Remaining = max(ledger.limit-used, 0)
		usage.Exhausted = used >= ledger.limit
		usage.Percentage = min(float64(used)/float64(ledger.limit)*100, 100)
	}

	return usage, nil
}

/*
UsageAll returns today's ledger state for every provider.
*/
func (ledger *Ledger) UsageAll(context context.Context) ([]*Usage, error) {
	usages := make([]*Usage, 0, len(source.All()))
	for _, provider := range source.All() {
		usage, err := ledger.Usage(context, provider)
		if err != nil {
			return nil, err
		}
		usages = append(usages, usage)
	}
	return usages, nil
}

// # Internal Helpers

// today truncates the injected clock to the local calendar day.
func (ledger *Ledger) today() time.Time {
	now := ledger.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// secondsUntilReset returns the seconds remaining until local midnight,
// when the ledger rolls over to a fresh row.
func (ledger *Ledger) secondsUntilReset() int {
	now := ledger.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return int(midnight.Sub(now).Seconds())
}

// Copyright (c) 2026 Shuhai. All rights reserved.

package quota

import (
	"context"
	"time"
)

// # Quota Data Access

// Store defines the data access contract for the daily word ledger.
type Store interface {

	/*
		Get returns the recorded word total for one provider and day.

		Parameters:
		  - context: context.Context
		  - provider: string
		  - day: time.Time (Local calendar day, midnight-truncated)

		Returns:
		  - int64: Words recorded, zero when no row exists yet
		  - error: Storage failures
	*/
	Get(context context.Context, provider string, day time.Time) (int64, error)

	/*
		Add atomically increments the word total for one provider and day,
		creating the row on first use.

		Parameters:
		  - context: context.Context
		  - provider: string
		  - day: time.Time (Local calendar day, midnight-truncated)
		  - words: int64 (Positive increment)

		Returns:
		  - error: Storage failures
	*/
	Add(context context.Context, provider string, day time.Time, words int64) error
}

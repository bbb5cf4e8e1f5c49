// Copyright (c) 2026 Shuhai. All rights reserved.

package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// # PostgreSQL Repository

// postgresStore implements the [Store] interface using pgx.
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed quota ledger store.
func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

/*
Get returns the recorded word total for one provider and day. A missing
row simply means nothing was downloaded yet.
*/
func (store *postgresStore) Get(context context.Context, provider string, day time.Time) (int64, error) {
	const query = `SELECT words_downloaded FROM quota WHERE provider = $1 AND day = $2`

	var words int64
	err := store.pool.QueryRow(context, query, provider, day).Scan(&words)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: failed to read quota: %w", err)
	}

	return words, nil
}

/*
Add atomically increments the word total via upsert arithmetic, so
concurrent workers never lose increments.
*/
func (store *postgresStore) Add(context context.Context, provider string, day time.Time, words int64) error {
	const query = `
		INSERT INTO quota (provider, day, words_downloaded)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, day) DO UPDATE
		SET words_downloaded = quota.words_downloaded + EXCLUDED.words_downloaded`

	if _, err := store.pool.Exec(context, query, provider, day, words); err != nil {
		return fmt.Errorf("postgres: failed to record quota: %w", err)
	}

	return nil
}

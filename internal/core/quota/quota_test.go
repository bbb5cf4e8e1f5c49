// Copyright (c) 2026 Shuhai. All rights reserved.

package quota_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenqiu/shuhai/internal/core/quota"
	"github.com/wenqiu/shuhai/internal/source"
)

// memStore is an in-memory quota ledger keyed by provider and day.
type memStore struct {
	mu    sync.Mutex
	words map[string]int64
}

func newMemStore() *memStore {
	return &memStore{words: make(map[string]int64)}
}

func key(provider string, day time.Time) string {
	return provider + "|" + day.Format("2006-01-02")
}

func (s *memStore) Get(_ context.Context, provider string, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words[key(provider, day)], nil
}

func (s *memStore) Add(_ context.Context, provider string, day time.Time, words int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words[key(provider, day)] += words
	return nil
}

func newLedger(limit int64) (*quota.Ledger, *memStore) {
	store := newMemStore()
	return quota.NewLedger(store, limit, slog.Default()), store
}

/*
TestCanDownload_SoftCeiling verifies the budget check passes below the
limit and fails once recorded usage reaches it.
*/
func TestCanDownload_SoftCeiling(t *testing.T) {
	ledger, _ := newLedger(10000)
	ctx := context.Background()

	ok, err := ledger.CanDownload(ctx, source.ProviderFanqie)
	require.NoError(t, err)
	assert.True(t, ok)

	// One chapter below the limit: still allowed
	require.NoError(t, ledger.Record(ctx, source.ProviderFanqie, 9999))
	ok, err = ledger.CanDownload(ctx, source.ProviderFanqie)
	require.NoError(t, err)
	assert.True(t, ok)

	// The in-flight chapter may overshoot; afterwards the check fails
	require.NoError(t, ledger.Record(ctx, source.ProviderFanqie, 3000))
	ok, err = ledger.CanDownload(ctx, source.ProviderFanqie)
	require.NoError(t, err)
	assert.False(t, ok)
}

/*
TestUnmetered_Biquge verifies the unmetered provider bypasses the ledger.
*/
func TestUnmetered_Biquge(t *testing.T) {
	ledger, store := newLedger(100)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, source.ProviderBiquge, 1000000))

	ok, err := ledger.CanDownload(ctx, source.ProviderBiquge)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, store.words, "unmetered providers must not touch the ledger")

	usage, err := ledger.Usage(ctx, source.ProviderBiquge)
	require.NoError(t, err)
	assert.Equal(t, quota.Unmetered, usage.Limit)
	assert.False(t, usage.Exhausted)
}

/*
TestQuota_ProvidersIndependent verifies one provider's exhaustion does
not affect another's budget.
*/
func TestQuota_ProvidersIndependent(t *testing.T) {
	ledger, _ := newLedger(5000)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, source.ProviderFanqie, 6000))

	ok, err := ledger.CanDownload(ctx, source.ProviderFanqie)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.CanDownload(ctx, source.ProviderQimao)
	require.NoError(t, err)
	assert.True(t, ok)
}

/*
TestUsage_Fields verifies remaining/exhausted arithmetic and the reset
countdown.
*/
func TestUsage_Fields(t *testing.T) {
	ledger, _ := newLedger(20000)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, source.ProviderQimao, 15000))

	usage, err := ledger.Usage(ctx, source.ProviderQimao)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), usage.WordsDownloaded)
	assert.Equal(t, int64(5000), usage.Remaining)
	assert.False(t, usage.Exhausted)
	assert.Greater(t, usage.SecondsUntilReset, 0)
	assert.LessOrEqual(t, usage.SecondsUntilReset, 86400)

	all, err := ledger.UsageAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

/*
TestRecord_IgnoresNonPositive verifies zero and negative counts are
dropped.
*/
func TestRecord_IgnoresNonPositive(t *testing.T) {
	ledger, store := newLedger(100)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, source.ProviderFanqie, 0))
	require.NoError(t, ledger.Record(ctx, source.ProviderFanqie, -5))
	assert.Empty(t, store.words)
}

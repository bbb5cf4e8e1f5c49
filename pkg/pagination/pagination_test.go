// Copyright (c) 2026 Shuhai. All rights reserved.

package pagination_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wenqiu/shuhai/pkg/pagination"
)

/*
TestFromRequest_Clamping verifies query parsing and bound enforcement.
*/
func TestFromRequest_Clamping(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults", "", 1, 20},
		{"explicit", "?page=3&limit=50", 3, 50},
		{"negative_page", "?page=-1", 1, 20},
		{"zero_limit", "?limit=0", 1, 20},
		{"excessive_limit", "?limit=9999", 1, 20},
		{"max_limit", "?limit=500", 1, 500},
		{"garbage", "?page=abc&limit=xyz", 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest("GET", "/books"+tt.query, nil)
			params := pagination.FromRequest(request)
			assert.Equal(t, tt.wantPage, params.Page)
			assert.Equal(t, tt.wantLimit, params.Limit)
		})
	}
}

/*
TestOffset verifies the SQL offset derivation.
*/
func TestOffset(t *testing.T) {
	assert.Equal(t, 0, pagination.Params{Page: 1, Limit: 50}.Offset())
	assert.Equal(t, 100, pagination.Params{Page: 3, Limit: 50}.Offset())
}

/*
TestNewMeta_HasMore verifies the has_more boundary: true iff page*limit < total.
*/
func TestNewMeta_HasMore(t *testing.T) {
	assert.True(t, pagination.NewMeta(1, 50, 120).HasMore)
	assert.True(t, pagination.NewMeta(2, 50, 120).HasMore)
	assert.False(t, pagination.NewMeta(3, 50, 120).HasMore)
	assert.False(t, pagination.NewMeta(1, 50, 50).HasMore)

	meta := pagination.NewMeta(1, 50, 120)
	assert.Equal(t, 3, meta.TotalPages)
}

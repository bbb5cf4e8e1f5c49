// Copyright (c) 2026 Shuhai. All rights reserved.

package sanitize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wenqiu/shuhai/pkg/sanitize"
)

/*
TestFilename_IllegalCharacters verifies that filesystem-hostile characters
are replaced with underscores.
*/
func TestFilename_IllegalCharacters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain_ascii", "My Book", "My Book"},
		{"chinese_title", "诡秘之主", "诡秘之主"},
		{"path_separators", `a/b\c`, "a_b_c"},
		{"reserved_set", `<>:"|?*`, "_______"},
		{"mixed", `Book: The "End"?`, "Book_ The _End__"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitize.Filename(tt.input))
		})
	}
}

/*
TestFilename_Trimming verifies that dots and spaces are stripped from
both ends, including after truncation.
*/
func TestFilename_Trimming(t *testing.T) {
	assert.Equal(t, "book", sanitize.Filename("  book.. "))
	assert.Equal(t, "a.b", sanitize.Filename(".a.b."))
}

/*
TestFilename_Length caps the name at 100 codepoints (not bytes).
*/
func TestFilename_Length(t *testing.T) {
	long := strings.Repeat("书", 250)
	got := sanitize.Filename(long)
	assert.Equal(t, 100, len([]rune(got)))
}

/*
TestFilename_Fallback returns "untitled" when nothing survives sanitation.
*/
func TestFilename_Fallback(t *testing.T) {
	assert.Equal(t, "untitled", sanitize.Filename(""))
	assert.Equal(t, "untitled", sanitize.Filename(" .. "))
}

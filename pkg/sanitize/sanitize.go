// Copyright (c) 2026 Shuhai. All rights reserved.

// Package sanitize produces filesystem-safe filenames from arbitrary
// Unicode strings.
//
// # Usage
//
// Generated artifacts are named after book titles (e.g. "诡秘之主_0198a2bc.epub").
// Titles come from upstream providers and may contain characters that are
// illegal on common filesystems; this package normalizes and strips them.
package sanitize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxFilenameLength caps sanitized names in Unicode codepoints.
const MaxFilenameLength = 100

// illegal are the characters rejected by at least one mainstream filesystem.
const illegal = `<>:"/\|?*`

// Filename converts an arbitrary Unicode string into a safe filename stem.
//
// # Transformation Pipeline
//
// 1. Normalizes to NFC so composed and decomposed titles map to one name.
// 2. Replaces filesystem-illegal characters and control codes with '_'.
// 3. Trims leading/trailing dots and spaces (Windows strips them silently).
// 4. Caps the length at [MaxFilenameLength] codepoints.
// 5. Falls back to "untitled" when nothing survives.
func Filename(s string) string {
	// 1. Normalize
	result := norm.NFC.String(s)

	// 2. Replace illegal and control characters
	result = strings.Map(func(r rune) rune {
		if strings.ContainsRune(illegal, r) || r < 0x20 {
			return '_'
		}
		return r
	}, result)

	// 3. Trim dot/space padding
	result = strings.Trim(result, ". ")

	// 4. Cap length by codepoints, not bytes
	runes := []rune(result)
	if len(runes) > MaxFilenameLength {
		result = string(runes[:MaxFilenameLength])
		result = strings.Trim(result, ". ")
	}

	// 5. Fallback
	if result == "" {
		return "untitled"
	}

	return result
}

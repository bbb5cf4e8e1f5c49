// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package artifact assembles downloaded books into derived files.

Two output kinds are supported: a conforming EPUB3 (one XHTML per chapter,
volume-grouped navigation, NCX for legacy readers, cover when stored) and
a plain TXT composite. Builds run in the background; repeated requests for
the same book coalesce onto one build and poll its status.
*/
package artifact

import (
	"time"

	"github.com/wenqiu/shuhai/internal/store/blob"
)

// Status is the lifecycle of one (book, kind) build.
type Status string

const (
	// StatusBuilding means a background build is in flight.
	StatusBuilding Status = "building"
	// StatusReady means the artifact on disk matches the completed
	// chapter count it was built from.
	StatusReady Status = "ready"
	// StatusFailed carries the last build error.
	StatusFailed Status = "failed"
)

// State is the tracked build state of one (book, kind) pair.
type State struct {
	BookID   string    `json:"book_id"`
	Kind     blob.Kind `json:"kind"`
	Status   Status    `json:"status"`
	Path     string    `json:"-"`
	Chapters int       `json:"chapters"`
	Error    string    `json:"error,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata carries the deployment-level EPUB fields.
type Metadata struct {
	Language  string
	Publisher string
}

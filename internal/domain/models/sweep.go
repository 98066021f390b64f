package models

import (
	"time"
)

// SweepProgress is the resumable progress record of a blob-store sweep.
// The orphan sweep pages the entire blob store and persists its cursor and
// running counts after each page, so a cancelled run resumes where it
// stopped instead of re-scanning from zero.
type SweepProgress struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	ForReal    bool       `json:"for_real" db:"for_real"`
	Cursor     *string    `json:"cursor,omitempty" db:"cursor"`
	Processed  int        `json:"processed" db:"processed"`
	NumDeleted int        `json:"num_deleted" db:"num_deleted"`
	IsDone     bool       `json:"is_done" db:"is_done"`
	LatestEnd  *time.Time `json:"latest_end,omitempty" db:"latest_end"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

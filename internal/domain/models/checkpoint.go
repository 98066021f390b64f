package models

import (
	"time"
)

// Checkpoint is one row of the versioned history log for a (chat, subchat)
// branch. Rows are append-mostly: a part advance within the same message
// rank patches the existing tip in place, a rank advance inserts a new row.
// Within one branch the surviving rows are strictly increasing under the
// lexicographic order (LastMessageRank, PartIndex); the latest row is the
// branch tip.
//
// StorageID references the serialized message array blob and is nil only
// for the bootstrap row of a fresh branch (rank -1, part -1). SnapshotID
// optionally references a workspace filesystem snapshot blob.
type Checkpoint struct {
	ID              string    `json:"id" db:"id"`
	ChatID          string    `json:"chat_id" db:"chat_id"`
	SubchatIndex    int       `json:"subchat_index" db:"subchat_index"`
	LastMessageRank int       `json:"last_message_rank" db:"last_message_rank"`
	PartIndex       int       `json:"part_index" db:"part_index"`
	StorageID       *string   `json:"storage_id" db:"storage_id"`
	SnapshotID      *string   `json:"snapshot_id,omitempty" db:"snapshot_id"`
	Description     *string   `json:"description,omitempty" db:"description"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Before reports whether the checkpoint's (rank, part) coordinate is
// strictly less than the given one.
func (c *Checkpoint) Before(rank, part int) bool {
	if c.LastMessageRank != rank {
		return c.LastMessageRank < rank
	}
	return c.PartIndex < part
}

// At reports whether the checkpoint sits exactly at the given coordinate.
func (c *Checkpoint) At(rank, part int) bool {
	return c.LastMessageRank == rank && c.PartIndex == part
}

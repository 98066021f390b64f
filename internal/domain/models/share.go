package models

import (
	"time"
)

// Share is an immutable pointer into a chat's history log, captured from
// the branch tip at creation time. The capture is a value copy of the blob
// ids rather than a reference to the checkpoint row, so the original row
// may be deleted later without breaking the share: the reference tracker
// sees the share's own copy of the ids and keeps the blobs alive.
type Share struct {
	ID               string    `json:"id" db:"id"`
	ChatID           string    `json:"chat_id" db:"chat_id"`
	Code             string    `json:"code" db:"code"`
	Description      *string   `json:"description,omitempty" db:"description"`
	ChatHistoryID    *string   `json:"chat_history_id" db:"chat_history_id"`
	SnapshotID       *string   `json:"snapshot_id,omitempty" db:"snapshot_id"`
	LastMessageRank  int       `json:"last_message_rank" db:"last_message_rank"`
	PartIndex        int       `json:"part_index" db:"part_index"`
	LastSubchatIndex int       `json:"last_subchat_index" db:"last_subchat_index"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// SocialShare is the public-facing variant of a share. Unlike Share it
// references the chat live (the public view follows the chat's pointer),
// and may carry a thumbnail image blob.
type SocialShare struct {
	ID          string    `json:"id" db:"id"`
	ChatID      string    `json:"chat_id" db:"chat_id"`
	Code        string    `json:"code" db:"code"`
	ThumbnailID *string   `json:"thumbnail_id,omitempty" db:"thumbnail_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

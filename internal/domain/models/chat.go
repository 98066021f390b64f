package models

import (
	"time"
)

// Chat is a conversation root. A chat is created once and mutated only by
// rewind, branch creation and soft deletion. LastMessageRank is set while
// the chat is rewound and acts as a read-time ceiling when resolving the
// branch tip; it is cleared again by the next append.
type Chat struct {
	ID               string    `json:"id" db:"id"`
	CreatorID        string    `json:"creator_id" db:"creator_id"`
	InitialID        string    `json:"initial_id" db:"initial_id"`
	URLID            *string   `json:"url_id,omitempty" db:"url_id"`
	Description      *string   `json:"description,omitempty" db:"description"`
	SnapshotID       *string   `json:"snapshot_id,omitempty" db:"snapshot_id"`
	LastSubchatIndex int       `json:"last_subchat_index" db:"last_subchat_index"`
	LastMessageRank  *int      `json:"last_message_rank,omitempty" db:"last_message_rank"`
	IsDeleted        bool      `json:"is_deleted" db:"is_deleted"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Identifier returns the client-facing id, preferring the url alias.
func (c *Chat) Identifier() string {
	if c.URLID != nil {
		return *c.URLID
	}
	return c.InitialID
}

package models

import (
	"time"
)

// DebugRequestLog records, per LLM request, the blob holding the exact
// prompt messages sent to the provider. The log is time-ordered and swept
// by the inactive-chat cleanup job once the owning chat goes quiet.
type DebugRequestLog struct {
	ID              string    `json:"id" db:"id"`
	ChatID          string    `json:"chat_id" db:"chat_id"`
	PromptStorageID string    `json:"prompt_storage_id" db:"prompt_storage_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

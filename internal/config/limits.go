package config

const (
	// DefaultMaxSubchats caps the number of branches per chat. High enough
	// that real conversations never hit it; low enough to bound the
	// per-chat row count a rewind has to scan.
	DefaultMaxSubchats = 600

	// MaxRelevantFiles caps the number of workspace files bundled into a
	// relevant-files message regardless of the byte budget.
	MaxRelevantFiles = 16

	// EarliestSnapshotScanLimit is how many checkpoints from the start of
	// a branch the earliest-rewindable-rank lookup inspects. Snapshots
	// start within the first few ranks of any chat created after snapshot
	// recording shipped; legacy chats fall through to nil.
	EarliestSnapshotScanLimit = 10

	// EraseHistoryScanLimit is how many checkpoints from the start of a
	// chat the erase-message-history operation inspects when looking for
	// the earliest snapshot-carrying row.
	EraseHistoryScanLimit = 100

	// MaxDescriptionLength is the maximum length for chat and share
	// descriptions. Limited to 255 to fit in VARCHAR(255).
	MaxDescriptionLength = 255

	// MaxURLIDLength is the maximum length for a chat's url alias.
	MaxURLIDLength = 128
)

package compactor

// Dirent is one entry of the workspace file tree as the compactor sees it.
type Dirent struct {
	IsDir   bool
	Content string
}

// EditorDocument is the file currently open in the user's editor, with its
// unsaved buffer contents.
type EditorDocument struct {
	FilePath string
	Value    string
}

// Workspace is the compactor's read-only view of the user's project. The
// relevant-files ranking pulls file contents, the open editor buffer, and
// the timestamps of writes the user made outside the assistant loop.
type Workspace interface {
	// CurrentDocument returns the open editor document, or nil.
	CurrentDocument() *EditorDocument

	// Files returns the file tree keyed by absolute path.
	Files() map[string]Dirent

	// UserWrites returns, per absolute path, the unix-millisecond time of
	// the user's last out-of-band write to it.
	UserWrites() map[string]int64
}

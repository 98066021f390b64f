package compactor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"loom/internal/config"
	"loom/internal/domain/models"
)

// fileEntryOverhead is the per-file tag overhead the byte estimate charges
// on top of a ranked file's content.
const fileEntryOverhead = 4

// RelevantFiles builds the synthetic user message that carries workspace
// files alongside a fresh turn. Files are ranked by recency: every file an
// assistant message touched scores the message's creation time plus the
// touching part's offset (later parts win ties within a message), user
// writes outside the assistant loop merge in via max, and the prewarm set
// sits at score zero so it only surfaces when nothing else competes. The
// open editor document is pulled out of the ranking and appended last, after
// the budgeted picks, followed by a listing of every path in the workspace.
func (m *Manager) RelevantFiles(messages []models.Message, id string, maxSize int) models.Message {
	currentDocument := m.workspace.CurrentDocument()
	files := m.workspace.Files()

	allPaths := make([]string, 0, len(files))
	for p := range files {
		allPaths = append(allPaths, p)
	}
	sort.Strings(allPaths)

	lastUsed := make(map[string]int64)
	for _, p := range m.prewarm {
		if _, ok := files[p]; !ok {
			continue
		}
		lastUsed[p] = 0
	}

	// Messages without a creation time fall back to a running part counter,
	// which preserves their relative order in the list.
	var partCounter int64
	for i := range messages {
		msg := &messages[i]
		touched := m.touchedFiles(msg)
		if touched == nil {
			continue
		}
		base := partCounter
		if msg.CreatedAt != nil {
			base = msg.CreatedAt.UnixMilli()
		}
		for p, partIdx := range touched {
			entry, ok := files[p]
			if !ok || entry.IsDir {
				continue
			}
			lastUsed[p] = base + int64(partIdx)
		}
		partCounter += int64(len(msg.Parts))
	}

	for p, writtenAt := range m.workspace.UserWrites() {
		if existing, ok := lastUsed[p]; !ok || writtenAt > existing {
			lastUsed[p] = writtenAt
		}
	}

	if currentDocument != nil {
		delete(lastUsed, currentDocument.FilePath)
	}

	type ranked struct {
		path  string
		score int64
	}
	order := make([]ranked, 0, len(lastUsed))
	for p, score := range lastUsed {
		order = append(order, ranked{path: p, score: score})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].path < order[j].path
	})

	var sizeEstimate int
	var numFiles int
	var fileActions []string
	for _, r := range order {
		if sizeEstimate > maxSize || numFiles >= config.MaxRelevantFiles {
			break
		}
		entry, ok := files[r.path]
		if !ok {
			continue
		}
		if entry.IsDir {
			continue
		}
		fileActions = append(fileActions, renderFileAction(r.path, renderFile(entry.Content)))
		sizeEstimate += fileEntryOverhead + len(entry.Content)
		numFiles++
	}

	if currentDocument != nil {
		fileActions = append(fileActions, renderFileAction(currentDocument.FilePath, renderFile(currentDocument.Value)))
	}

	if len(allPaths) > 0 {
		var b strings.Builder
		b.WriteString("Here are all the paths in the project:\n")
		for _, p := range allPaths {
			fmt.Fprintf(&b, " - %s\n", p)
		}
		fileActions = append(fileActions, b.String())
	}

	if len(fileActions) == 0 {
		return models.Message{ID: id, Role: models.RoleUser}
	}

	parts := make([]models.Part, len(fileActions))
	for i, action := range fileActions {
		parts[i] = models.Part{
			Type: models.PartTypeText,
			Text: renderArtifact(id, action),
		}
	}
	return models.Message{ID: id, Role: models.RoleUser, Parts: parts}
}

// renderFile prefixes every line with its 1-indexed number, the same shape
// view tool results use, so the model can reference exact locations.
func renderFile(content string) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(": ")
		b.WriteString(line)
	}
	return b.String()
}

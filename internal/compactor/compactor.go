// Package compactor keeps the prompt for a long-running conversation inside
// a byte budget. It maintains a sticky truncation cursor into the message
// list so the prompt prefix stays byte-stable across turns (upstream prompt
// caching keys on the exact prefix), and it assembles the relevant-files
// bundle attached to fresh turns.
package compactor

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"loom/internal/domain/models"
)

// Manager holds the per-branch truncation state. It is single-threaded: one
// manager serves one conversation session, and Reset must be called when the
// session switches branches so a cursor from the old message list cannot be
// applied to the new one.
type Manager struct {
	workspace Workspace
	workDir   string
	prewarm   []string
	logger    *slog.Logger

	// Sticky cutoff. Messages before messageIndex are dropped; within the
	// boundary message, tool results at or before partIndex are dropped.
	// (-1, -1) means nothing is truncated.
	messageIndex int
	partIndex    int

	// Memoization keyed on message and part identity. Messages and parts
	// are immutable once observed, so entries never go stale within a
	// session.
	messageSizes   map[string]int
	partSizes      map[string]int
	filesByMessage map[string]map[string]int
}

// NewManager returns a manager for a fresh session. workDir is the absolute
// workspace root; prewarm paths are offered to the relevant-files ranking at
// the lowest priority.
func NewManager(workspace Workspace, workDir string, prewarm []string, logger *slog.Logger) *Manager {
	m := &Manager{
		workspace: workspace,
		workDir:   workDir,
		prewarm:   prewarm,
		logger:    logger,
	}
	m.Reset()
	return m
}

// Reset clears the cursor and every cache. Call it when switching branches;
// indices computed against one branch's message list are meaningless on
// another's.
func (m *Manager) Reset() {
	m.messageIndex = -1
	m.partIndex = -1
	m.messageSizes = make(map[string]int)
	m.partSizes = make(map[string]int)
	m.filesByMessage = make(map[string]map[string]int)
}

// PrepareContext returns the message list to send upstream, truncated to the
// sticky cursor, and whether this call moved the cursor.
//
// The cursor is only recomputed when the last message is user-role, i.e. the
// first call of a fresh turn. Mid-turn tool-result continuations reuse the
// existing cursor so the prompt prefix stays stable. When the freshly
// computed cutoff has advanced past the cursor, a second cutoff against the
// smaller minSize budget is committed instead: over-truncating now keeps the
// boundary put for several turns before it has to move again.
func (m *Manager) PrepareContext(messages []models.Message, maxSize, minSize int) ([]models.Message, bool, error) {
	collapsed := false
	if len(messages) > 0 && messages[len(messages)-1].Role == models.RoleUser {
		msgIdx, partIdx, err := m.cutoff(messages, maxSize)
		if err != nil {
			return nil, false, err
		}
		if msgIdx == m.messageIndex && partIdx == m.partIndex {
			return messages, false, nil
		}
		if msgIdx >= m.messageIndex && partIdx >= m.partIndex {
			newMsgIdx, newPartIdx, err := m.cutoff(messages, minSize)
			if err != nil {
				return nil, false, err
			}
			m.messageIndex = newMsgIdx
			m.partIndex = newPartIdx
			collapsed = true
		}
	}
	out := m.collapse(messages)
	return out, collapsed, nil
}

// ShouldSendRelevantFiles reports whether a fresh relevant-files bundle
// should ride along with the next request: on the very first message, when
// the truncation cutoff is about to move, or when no previously sent bundle
// in the history carried real file content.
func (m *Manager) ShouldSendRelevantFiles(messages []models.Message, maxSize int) (bool, error) {
	if len(messages) == 0 {
		return true, nil
	}

	msgIdx, partIdx, err := m.cutoff(messages, maxSize)
	if err != nil {
		return false, err
	}
	if msgIdx != m.messageIndex || partIdx != m.partIndex {
		return true, nil
	}

	for _, msg := range messages {
		if msg.Role != models.RoleUser {
			continue
		}
		for _, part := range msg.Parts {
			if part.Type == models.PartTypeText && isSentFileBundle(part.Text) {
				return false, nil
			}
		}
	}
	return true, nil
}

// cutoff scans newest-first, spending the byte budget part by part, and
// returns the coordinates of the first part that does not fit. Parts whose
// tool call has no result yet are skipped rather than counted; their size is
// unknown until the result lands. (-1, -1) means everything fits.
func (m *Manager) cutoff(messages []models.Message, budget int) (int, int, error) {
	remaining := budget
	for msgIdx := len(messages) - 1; msgIdx >= 0; msgIdx-- {
		msg := &messages[msgIdx]
		for partIdx := len(msg.Parts) - 1; partIdx >= 0; partIdx-- {
			part := &msg.Parts[partIdx]
			if part.Type == models.PartTypeTool && part.ToolInvocation != nil && part.ToolInvocation.State != models.ToolStateResult {
				continue
			}
			size, err := m.partSize(msg.ID, partIdx, part)
			if err != nil {
				return 0, 0, err
			}
			if size > remaining {
				return msgIdx, partIdx, nil
			}
			remaining -= size
		}
	}
	return -1, -1, nil
}

// collapse applies the sticky cursor: drop messages before it, and in the
// boundary message drop tool results at or before the part cursor and strip
// artifact markup from the top-level text.
func (m *Manager) collapse(messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for i, msg := range messages {
		if i < m.messageIndex {
			continue
		}
		if i == m.messageIndex {
			parts := make([]models.Part, 0, len(msg.Parts))
			for j, part := range msg.Parts {
				isToolResult := part.Type == models.PartTypeTool &&
					part.ToolInvocation != nil &&
					part.ToolInvocation.State == models.ToolStateResult
				if isToolResult && j <= m.partIndex {
					continue
				}
				parts = append(parts, part)
			}
			msg.Parts = parts
			msg.Content = StripArtifacts(msg.Content)
		}
		out = append(out, msg)
	}
	return out
}

func (m *Manager) messageSize(msg *models.Message) (int, error) {
	if size, ok := m.messageSizes[msg.ID]; ok {
		return size, nil
	}
	size := len(msg.Content)
	for i := range msg.Parts {
		partSize, err := m.partSize(msg.ID, i, &msg.Parts[i])
		if err != nil {
			return 0, err
		}
		size += partSize
	}
	m.messageSizes[msg.ID] = size
	return size, nil
}

// partSize estimates a part's prompt footprint in bytes. The part tag set
// is closed; an unrecognized tag means the caller handed us a message shape
// this code has never been taught to measure, and silently guessing would
// corrupt the budget, so it is a hard error.
func (m *Manager) partSize(messageID string, index int, part *models.Part) (int, error) {
	key := models.PartID(messageID, index)
	if size, ok := m.partSizes[key]; ok {
		return size, nil
	}

	var size int
	switch part.Type {
	case models.PartTypeText:
		size = len(part.Text)
	case models.PartTypeFile:
		size = len(part.Data) + len(part.MimeType)
	case models.PartTypeReasoning:
		size = len(part.Reasoning)
	case models.PartTypeSource:
		if part.Source != nil {
			size = len(part.Source.Title) + len(part.Source.URL)
		}
	case models.PartTypeTool:
		if part.ToolInvocation == nil {
			return 0, fmt.Errorf("part %s: tool-invocation part without an invocation", key)
		}
		size = len(part.ToolInvocation.Args)
		if part.ToolInvocation.State == models.ToolStateResult {
			size += len(part.ToolInvocation.Result)
		}
	case models.PartTypeStepStart:
		size = 0
	default:
		return 0, fmt.Errorf("part %s: unknown part type %q", key, part.Type)
	}

	m.partSizes[key] = size
	return size, nil
}

// PromptCharacterCounts breaks the prompt size down for logging and the
// usage dashboard.
type PromptCharacterCounts struct {
	MessageHistoryChars int `json:"message_history_chars"`
	CurrentTurnChars    int `json:"current_turn_chars"`
	TotalPromptChars    int `json:"total_prompt_chars"`
}

// CountPromptCharacters sizes the history, the in-flight user turn, and the
// given system prompts.
func (m *Manager) CountPromptCharacters(messages []models.Message, systemPrompts []string) (PromptCharacterCounts, error) {
	var counts PromptCharacterCounts

	lastIsUser := len(messages) > 0 && messages[len(messages)-1].Role == models.RoleUser
	for i := range messages {
		if lastIsUser && i == len(messages)-1 {
			continue
		}
		size, err := m.messageSize(&messages[i])
		if err != nil {
			return PromptCharacterCounts{}, err
		}
		counts.MessageHistoryChars += size
	}
	if lastIsUser {
		size, err := m.messageSize(&messages[len(messages)-1])
		if err != nil {
			return PromptCharacterCounts{}, err
		}
		counts.CurrentTurnChars = size
	}

	counts.TotalPromptChars = counts.MessageHistoryChars + counts.CurrentTurnChars
	for _, prompt := range systemPrompts {
		counts.TotalPromptChars += len(prompt)
	}
	return counts, nil
}

// pathArgs is the slice of a tool call's arguments the file ranking cares
// about. View and edit calls both carry the target under "path".
type pathArgs struct {
	Path string `json:"path"`
}

// touchedFiles returns, for an assistant message, the absolute path of every
// file it touched mapped to the index of the part that touched it last.
// Non-assistant messages return nil.
func (m *Manager) touchedFiles(msg *models.Message) map[string]int {
	if msg.Role != models.RoleAssistant {
		return nil
	}
	if cached, ok := m.filesByMessage[msg.ID]; ok {
		return cached
	}

	touched := make(map[string]int)
	for _, p := range extractFilePaths(msg.Content, m.workDir) {
		touched[p] = 0
	}
	for j, part := range msg.Parts {
		switch {
		case part.Type == models.PartTypeText:
			for _, p := range extractFilePaths(part.Text, m.workDir) {
				touched[p] = j
			}
		case part.Type == models.PartTypeTool && part.ToolInvocation != nil:
			inv := part.ToolInvocation
			if inv.State == models.ToolStatePartialCall {
				continue
			}
			if inv.ToolName != "view" && inv.ToolName != "edit" {
				continue
			}
			var args pathArgs
			if err := json.Unmarshal(inv.Args, &args); err != nil || args.Path == "" {
				m.logger.Debug("skipping unparseable tool args in file ranking",
					"message_id", msg.ID, "part", j, "tool", inv.ToolName)
				continue
			}
			touched[absolutePath(args.Path, m.workDir)] = j
		}
	}

	m.filesByMessage[msg.ID] = touched
	return touched
}

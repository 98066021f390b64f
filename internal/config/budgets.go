package config

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed budgets.yaml
var budgetFiles embed.FS

// Budgets holds the context-compactor size budgets and the workspace
// constants. They ship as an embedded YAML file so deployments can be
// rebuilt with different budgets without code changes.
type Budgets struct {
	// MaxCollapsedMessagesSize is the byte budget the truncation cutoff is
	// computed against on a fresh turn.
	MaxCollapsedMessagesSize int `yaml:"max_collapsed_messages_size" json:"max_collapsed_messages_size"`

	// MinCollapsedMessagesSize is the smaller budget committed when the
	// cutoff moves. Over-truncating to this level keeps the boundary
	// stable for several turns, trading prompt size for cache hits.
	MinCollapsedMessagesSize int `yaml:"min_collapsed_messages_size" json:"min_collapsed_messages_size"`

	// MaxRelevantFilesSize is the byte budget for the relevant-files
	// bundle.
	MaxRelevantFilesSize int `yaml:"max_relevant_files_size" json:"max_relevant_files_size"`

	// WorkDir is the absolute workspace root all file paths live under.
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// PrewarmPaths are always offered to the relevant-files ranking at
	// the lowest priority.
	PrewarmPaths []string `yaml:"prewarm_paths" json:"prewarm_paths"`
}

// LoadBudgets parses the embedded budgets file.
func LoadBudgets() (*Budgets, error) {
	data, err := budgetFiles.ReadFile("budgets.yaml")
	if err != nil {
		return nil, fmt.Errorf("read budgets.yaml: %w", err)
	}

	var b Budgets
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal budgets.yaml: %w", err)
	}
	if b.MinCollapsedMessagesSize > b.MaxCollapsedMessagesSize {
		return nil, fmt.Errorf("min_collapsed_messages_size %d exceeds max_collapsed_messages_size %d",
			b.MinCollapsedMessagesSize, b.MaxCollapsedMessagesSize)
	}
	return &b, nil
}

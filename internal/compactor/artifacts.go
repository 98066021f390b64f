package compactor

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Assistant output and relevant-files bundles use a small rich-text markup:
// an <artifact> wrapper containing <action> blocks, where file actions carry
// the touched path. Rendering and scraping both live here so the two sides
// cannot drift.

const relevantFilesTitle = "Relevant Files"

var (
	artifactBlockRe = regexp.MustCompile(`(?s)<artifact[^>]*>.*?</artifact>`)
	fileActionRe    = regexp.MustCompile(`<action\s+type="file"\s+filePath="([^"]*)"`)
	emptyActionRe   = regexp.MustCompile(`<action[^>]*></action>`)
)

func renderFileAction(filePath, content string) string {
	return fmt.Sprintf(`<action type="file" filePath="%s">%s</action>`, filePath, content)
}

func renderArtifact(id, body string) string {
	// The title doubles as the marker shouldSendRelevantFiles scans for.
	return fmt.Sprintf("<artifact id=%q title=%q>\n%s\n</artifact>", id, relevantFilesTitle, body)
}

// StripArtifacts removes every artifact block from s, leaving the
// surrounding free text intact.
func StripArtifacts(s string) string {
	return artifactBlockRe.ReplaceAllString(s, "")
}

// extractFilePaths returns the workspace-absolute path of every file action
// in s. Relative paths are resolved against workDir.
func extractFilePaths(s, workDir string) []string {
	matches := fileActionRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		p := absolutePath(m[1], workDir)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths
}

func absolutePath(p, workDir string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return path.Join(workDir, p)
}

// isSentFileBundle reports whether text is a previously sent relevant-files
// bundle that carried real file content. Bundles whose file actions are all
// empty were produced by an old serializer that dropped contents on save;
// they do not count as sent.
func isSentFileBundle(text string) bool {
	if !strings.Contains(text, `title="`+relevantFilesTitle+`"`) {
		return false
	}
	return strings.Contains(text, `<action type="file"`) && !emptyActionRe.MatchString(text)
}

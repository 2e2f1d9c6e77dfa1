package projects

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ScanResult is what a Scanner extracts from one project's state file.
type ScanResult struct {
	Phase          string
	Progress       string
	NeedsAttention bool
	Reason         string
	Blockers       []string
}

// Scanner parses a project's on-disk state into a ScanResult. Out of
// scope per spec §1 ("project-state markdown parsing (scanner)"); we
// still need a concrete default so the module builds end to end.
type Scanner interface {
	Scan(workDir string) (ScanResult, error)
}

// MarkdownScanner reads a fixed-name markdown status file
// (STATUS.md/PROGRESS.md) and extracts phase/progress/attention lines
// using simple prefix matching. This is a minimal, dependency-free
// reading of "project-state markdown parsing" — real deployments are
// expected to supply a richer Scanner.
type MarkdownScanner struct {
	FileNames []string // candidates, checked in order
}

// NewMarkdownScanner returns a scanner checking the conventional status
// file names.
func NewMarkdownScanner() *MarkdownScanner {
	return &MarkdownScanner{FileNames: []string{"STATUS.md", "PROGRESS.md", ".orchestrator/status.md"}}
}

func (m *MarkdownScanner) Scan(workDir string) (ScanResult, error) {
	var res ScanResult

	for _, name := range m.FileNames {
		path := filepath.Join(workDir, name)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			lower := strings.ToLower(line)
			switch {
			case strings.HasPrefix(lower, "phase:"):
				res.Phase = strings.TrimSpace(line[len("phase:"):])
			case strings.HasPrefix(lower, "progress:"):
				res.Progress = strings.TrimSpace(line[len("progress:"):])
			case strings.HasPrefix(lower, "needs-attention:"):
				val := strings.TrimSpace(strings.ToLower(line[len("needs-attention:"):]))
				res.NeedsAttention = val == "true" || val == "yes"
			case strings.HasPrefix(lower, "reason:"):
				res.Reason = strings.TrimSpace(line[len("reason:"):])
			case strings.HasPrefix(lower, "blocker:"):
				res.Blockers = append(res.Blockers, strings.TrimSpace(line[len("blocker:"):]))
			}
		}
		f.Close()
		return res, scanner.Err()
	}

	return res, nil
}

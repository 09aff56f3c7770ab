package git

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// SourceError wraps a failed git operation. Curation aborts on the first
// SourceError so callers can distinguish a broken change source from an
// empty change range.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// FileStat holds the numstat counts for one changed file. Binary files
// report zero for both counts.
type FileStat struct {
	Path       string
	Insertions int
	Deletions  int
}

// Client defines the change-source operations the curator needs.
// All methods take a repo directory since reviews can target any checkout.
// Ranges use three-dot notation: changes on target since its merge base
// with base.
type Client interface {
	RepoRoot(dir string) (string, error)
	ChangedFiles(dir, base, target string) ([]string, error)
	DiffStats(dir, base, target string) ([]FileStat, error)
	FileDiff(dir, base, target, path string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		op := strings.Join(args, " ")
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", &SourceError{Op: op, Err: fmt.Errorf("%s", strings.TrimSpace(string(exitErr.Stderr)))}
		}
		return "", &SourceError{Op: op, Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(dir string) (string, error) {
	return gitCmd(dir, "rev-parse", "--show-toplevel")
}

func (c *RealClient) ChangedFiles(dir, base, target string) ([]string, error) {
	out, err := gitCmd(dir, "diff", "--name-only", base+"..."+target)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (c *RealClient) DiffStats(dir, base, target string) ([]FileStat, error) {
	out, err := gitCmd(dir, "diff", "--numstat", base+"..."+target)
	if err != nil {
		return nil, err
	}
	return ParseNumstat(out), nil
}

func (c *RealClient) FileDiff(dir, base, target, path string) (string, error) {
	return gitCmd(dir, "diff", base+"..."+target, "--", path)
}

// ParseNumstat parses `git diff --numstat` output. Lines are
// "<insertions>\t<deletions>\t<path>"; binary files use "-" for counts.
func ParseNumstat(output string) []FileStat {
	var stats []FileStat
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		stats = append(stats, FileStat{
			Path:       fields[2],
			Insertions: parseCount(fields[0]),
			Deletions:  parseCount(fields[1]),
		})
	}
	return stats
}

func parseCount(s string) int {
	if s == "-" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

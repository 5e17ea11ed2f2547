package git

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/logging"
	"github.com/gitviz/gitviz/internal/models"
)

// Scanner extracts the commit history of a single repository as a stream
// of per-file change events. Every Scan call re-runs extraction from
// scratch; the optional cache short-circuits repeat scans of an unchanged
// repository over the same date range.
type Scanner struct {
	repo       models.Repository
	cache      *Cache
	prefixPath bool
	log        *logging.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithCache attaches a scan cache. A nil cache disables caching.
func WithCache(c *Cache) ScannerOption {
	return func(s *Scanner) { s.cache = c }
}

// WithPathPrefix controls whether event paths are namespaced under the
// repository label (on by default, so merged timelines keep files from
// different repositories apart).
func WithPathPrefix(enabled bool) ScannerOption {
	return func(s *Scanner) { s.prefixPath = enabled }
}

// NewScanner creates a Scanner for one repository.
func NewScanner(repo models.Repository, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		repo:       repo,
		prefixPath: true,
		log:        logging.Get().Component("scanner").With("repo", repo.Label),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns every file change committed to the repository within
// [start, end], both bounds inclusive of the whole calendar day, ordered
// by commit timestamp ascending. A repository with no commits in range
// yields an empty slice, not an error.
func (s *Scanner) Scan(ctx context.Context, start, end time.Time) ([]models.CommitEvent, error) {
	if err := ValidateRepo(s.repo.Path); err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, apperrors.DateRange(fmt.Sprintf("start date %s is after end date %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly)))
	}

	windowStart := dayStart(start)
	windowEnd := dayEnd(end)

	head, err := HeadSHA(s.repo.Path)
	if err != nil {
		// No commits yet: nothing to scan.
		s.log.Debug("repository has no HEAD, treating as empty history")
		return []models.CommitEvent{}, nil
	}

	key := CacheKey{
		RepoPath: s.repo.Path,
		Head:     head,
		Label:    s.repo.Label,
		Prefixed: s.prefixPath,
		Start:    windowStart,
		End:      windowEnd,
	}
	if s.cache != nil {
		if events, ok := s.cache.Get(key); ok {
			s.log.Debug("scan cache hit", "events", len(events))
			return events, nil
		}
	}

	// --reverse walks oldest first; --no-renames keeps renames as
	// delete+add pairs; merge commits are diffed against their first
	// parent only. The exact range filter is applied in-process because
	// --since/--until follow commit date, not author date, on some
	// configurations.
	cmd := exec.CommandContext(ctx, "git", "log",
		"--reverse",
		"--no-renames",
		"--diff-merges=first-parent",
		"--name-status",
		fmt.Sprintf("--since=%s", windowStart.Format(time.RFC3339)),
		fmt.Sprintf("--until=%s", windowEnd.Format(time.RFC3339)),
		"--pretty=format:%H|%ct|%an|%ae")
	cmd.Dir = s.repo.Path

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, apperrors.RepositoryAccess(s.repo.Path,
				fmt.Errorf("git log failed: %w (stderr: %s)", err, strings.TrimSpace(string(exitErr.Stderr))))
		}
		return nil, apperrors.RepositoryAccess(s.repo.Path, fmt.Errorf("git log failed: %w", err))
	}

	events, err := s.parseLog(string(output), windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	// Git's own ordering is not trusted; a stable sort keeps intra-commit
	// file order and commit order for equal timestamps.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	if s.cache != nil {
		if err := s.cache.Put(key, events); err != nil {
			s.log.Warn("scan cache write failed", "error", err)
		}
	}

	s.log.Debug("scan complete", "events", len(events))
	return events, nil
}

// parseLog turns git log --name-status output into events. Header lines
// carry SHA|unix-seconds|author-name|author-email; the lines after each
// header are status letters and tab-separated paths.
func (s *Scanner) parseLog(output string, windowStart, windowEnd time.Time) ([]models.CommitEvent, error) {
	events := []models.CommitEvent{}

	var (
		author  string
		ts      time.Time
		inRange bool
	)

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if _, rest, ok := splitHeader(line); ok {
			author, inRange = "", false
			parts := strings.SplitN(rest, "|", 3)
			if len(parts) != 3 {
				continue
			}
			secs, err := strconv.ParseInt(parts[0], 10, 64)
			if err != nil {
				continue
			}
			ts = time.Unix(secs, 0).UTC()
			author = strings.TrimSpace(parts[1])
			if author == "" {
				author = strings.TrimSpace(parts[2])
			}
			inRange = !ts.Before(windowStart) && !ts.After(windowEnd)
			continue
		}

		if !inRange || author == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		path := fields[len(fields)-1]
		if s.prefixPath {
			path = s.repo.Label + "/" + path
		}

		events = append(events, models.CommitEvent{
			RepoID:    s.repo.Label,
			Timestamp: ts,
			Author:    author,
			Action:    statusAction(fields[0]),
			Path:      path,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.RepositoryAccess(s.repo.Path, fmt.Errorf("reading git log output: %w", err))
	}

	return events, nil
}

// splitHeader reports whether line is a commit header (40-char SHA before
// the first pipe) and splits off the SHA. Status lines never match: their
// first field is a short status letter followed by a tab.
func splitHeader(line string) (sha, rest string, ok bool) {
	i := strings.IndexByte(line, '|')
	if i != 40 {
		return "", "", false
	}
	for _, c := range line[:i] {
		if !isHex(c) {
			return "", "", false
		}
	}
	return line[:i], line[i+1:], true
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

// statusAction maps a git --name-status letter to an Action. Renames and
// copies are suppressed by --no-renames, so only A, M, D and the odd T
// (type change) show up; anything else is treated as a modification.
func statusAction(status string) models.Action {
	if status == "" {
		return models.ActionModify
	}
	switch status[0] {
	case 'A':
		return models.ActionAdd
	case 'D':
		return models.ActionDelete
	default:
		return models.ActionModify
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

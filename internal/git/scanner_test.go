package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/models"
)

const (
	shaA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	shaB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func testRange(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	start, err := time.Parse(time.DateOnly, "2024-01-01")
	if err != nil {
		t.Fatalf("parsing start date: %v", err)
	}
	end, err := time.Parse(time.DateOnly, "2024-12-31")
	if err != nil {
		t.Fatalf("parsing end date: %v", err)
	}
	return start, end
}

func TestParseLog(t *testing.T) {
	// Two commits: an initial add plus a later modify+delete.
	output := shaA + "|1709294400|Alice|alice@example.com\n" +
		"A\tsrc/main.go\n" +
		"A\tREADME.md\n" +
		"\n" +
		shaB + "|1709380800|Bob|bob@example.com\n" +
		"M\tsrc/main.go\n" +
		"D\tREADME.md\n"

	s := NewScanner(models.Repository{Path: "/tmp/x", Label: "myrepo"})
	start, end := testRange(t)

	events, err := s.parseLog(output, dayStart(start), dayEnd(end))
	if err != nil {
		t.Fatalf("parseLog failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	first := events[0]
	if first.Author != "Alice" {
		t.Errorf("expected author Alice, got %s", first.Author)
	}
	if first.Action != models.ActionAdd {
		t.Errorf("expected add, got %s", first.Action)
	}
	if first.Path != "myrepo/src/main.go" {
		t.Errorf("expected label-prefixed path, got %s", first.Path)
	}
	if first.RepoID != "myrepo" {
		t.Errorf("expected repo id myrepo, got %s", first.RepoID)
	}
	if got := first.Timestamp.Unix(); got != 1709294400 {
		t.Errorf("expected timestamp 1709294400, got %d", got)
	}

	if events[2].Action != models.ActionModify {
		t.Errorf("expected modify, got %s", events[2].Action)
	}
	if events[3].Action != models.ActionDelete {
		t.Errorf("expected delete, got %s", events[3].Action)
	}
	if events[3].Author != "Bob" {
		t.Errorf("expected author Bob, got %s", events[3].Author)
	}
}

func TestParseLogPreservesInputOrder(t *testing.T) {
	// Later commit listed first. parseLog keeps the input order untouched;
	// sorting by timestamp is Scan's job.
	output := shaB + "|1709380800|Bob|bob@example.com\n" +
		"M\ta.go\n" +
		shaA + "|1709294400|Alice|alice@example.com\n" +
		"A\ta.go\n"

	s := NewScanner(models.Repository{Path: "/tmp/x", Label: "r"})
	start, end := testRange(t)
	events, err := s.parseLog(output, dayStart(start), dayEnd(end))
	if err != nil {
		t.Fatalf("parseLog failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Author != "Bob" || events[1].Author != "Alice" {
		t.Errorf("expected input order Bob, Alice; got %s, %s",
			events[0].Author, events[1].Author)
	}
	if !events[0].Timestamp.After(events[1].Timestamp) {
		t.Error("expected the out-of-order timestamps to survive parsing")
	}
}

func TestParseLogEmptyAuthorFallsBackToEmail(t *testing.T) {
	output := shaA + "|1709294400||alice@example.com\n" +
		"A\ta.go\n"

	s := NewScanner(models.Repository{Path: "/tmp/x", Label: "r"})
	start, end := testRange(t)
	events, err := s.parseLog(output, dayStart(start), dayEnd(end))
	if err != nil {
		t.Fatalf("parseLog failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Author != "alice@example.com" {
		t.Errorf("expected email fallback, got %q", events[0].Author)
	}
}

func TestParseLogSkipsOutOfRangeCommits(t *testing.T) {
	// Second commit falls a year after the window and must be dropped.
	output := shaA + "|1709294400|Alice|alice@example.com\n" +
		"A\ta.go\n" +
		shaB + "|1740916800|Alice|alice@example.com\n" +
		"M\ta.go\n"

	s := NewScanner(models.Repository{Path: "/tmp/x", Label: "r"})
	start, end := testRange(t)
	events, err := s.parseLog(output, dayStart(start), dayEnd(end))
	if err != nil {
		t.Fatalf("parseLog failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after range filter, got %d", len(events))
	}
	if events[0].Action != models.ActionAdd {
		t.Errorf("expected the in-range add, got %s", events[0].Action)
	}
}

func TestParseLogPathWithPipes(t *testing.T) {
	output := shaA + "|1709294400|Alice|alice@example.com\n" +
		"A\tweird|name|file.txt\n"

	s := NewScanner(models.Repository{Path: "/tmp/x", Label: "r"}, WithPathPrefix(false))
	start, end := testRange(t)
	events, err := s.parseLog(output, dayStart(start), dayEnd(end))
	if err != nil {
		t.Fatalf("parseLog failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Path != "weird|name|file.txt" {
		t.Errorf("pipes in paths must survive parsing, got %q", events[0].Path)
	}
}

func TestStatusAction(t *testing.T) {
	cases := []struct {
		status string
		want   models.Action
	}{
		{"A", models.ActionAdd},
		{"M", models.ActionModify},
		{"D", models.ActionDelete},
		{"T", models.ActionModify},
		{"R100", models.ActionModify},
		{"", models.ActionModify},
	}
	for _, tc := range cases {
		if got := statusAction(tc.status); got != tc.want {
			t.Errorf("statusAction(%q) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestScanRejectsInvertedRange(t *testing.T) {
	tmpDir := initTestRepo(t)
	s := NewScanner(models.Repository{Path: tmpDir, Label: "r"})

	start, _ := time.Parse(time.DateOnly, "2024-06-01")
	end, _ := time.Parse(time.DateOnly, "2024-01-01")

	_, err := s.Scan(context.Background(), start, end)
	if !apperrors.IsKind(err, apperrors.KindDateRange) {
		t.Fatalf("expected date range error, got %v", err)
	}
}

func TestScanMissingRepository(t *testing.T) {
	s := NewScanner(models.Repository{Path: "/no/such/path", Label: "r"})
	start, end := testRange(t)

	_, err := s.Scan(context.Background(), start, end)
	if !apperrors.IsKind(err, apperrors.KindRepositoryAccess) {
		t.Fatalf("expected repository access error, got %v", err)
	}
}

func TestScanEmptyRepository(t *testing.T) {
	tmpDir := initTestRepo(t)
	s := NewScanner(models.Repository{Path: tmpDir, Label: "r"})
	start, end := testRange(t)

	events, err := s.Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("Scan failed on empty repository: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestScanRealRepository(t *testing.T) {
	tmpDir := initTestRepo(t)

	writeAndCommit(t, tmpDir, "hello.txt", "hello\n", "first commit", "2024-03-01T12:00:00Z")
	writeAndCommit(t, tmpDir, "hello.txt", "hello world\n", "second commit", "2024-03-02T12:00:00Z")
	removeAndCommit(t, tmpDir, "hello.txt", "remove file", "2024-03-03T12:00:00Z")

	s := NewScanner(models.Repository{Path: tmpDir, Label: "demo"})
	start, end := testRange(t)

	events, err := s.Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	wantActions := []models.Action{models.ActionAdd, models.ActionModify, models.ActionDelete}
	for i, want := range wantActions {
		if events[i].Action != want {
			t.Errorf("event %d: expected %s, got %s", i, want, events[i].Action)
		}
		if events[i].Path != "demo/hello.txt" {
			t.Errorf("event %d: expected demo/hello.txt, got %s", i, events[i].Path)
		}
		if events[i].Author != "Test User" {
			t.Errorf("event %d: expected Test User, got %s", i, events[i].Author)
		}
	}

	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("events out of order at %d: %v before %v", i, events[i].Timestamp, events[i-1].Timestamp)
		}
	}

	// Narrowing the window to one day keeps only the middle commit.
	day, _ := time.Parse(time.DateOnly, "2024-03-02")
	dayEvents, err := s.Scan(context.Background(), day, day)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(dayEvents) != 1 {
		t.Fatalf("expected 1 event for single-day window, got %d", len(dayEvents))
	}
	if dayEvents[0].Action != models.ActionModify {
		t.Errorf("expected the modify event, got %s", dayEvents[0].Action)
	}
}

func TestScanSortsOutOfOrderHistory(t *testing.T) {
	tmpDir := initTestRepo(t)

	// Committer dates run backwards along the graph, so git log --reverse
	// emits the 11:00 commit before the 10:00 one.
	writeAndCommit(t, tmpDir, "first.txt", "a\n", "first commit", "2024-03-01T11:00:00Z")
	writeAndCommit(t, tmpDir, "second.txt", "b\n", "second commit", "2024-03-01T10:00:00Z")

	s := NewScanner(models.Repository{Path: tmpDir, Label: "r"})
	start, end := testRange(t)

	events, err := s.Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Path != "r/second.txt" || events[1].Path != "r/first.txt" {
		t.Errorf("expected timestamp order second.txt, first.txt; got %s, %s",
			events[0].Path, events[1].Path)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("events out of order at %d: %v before %v",
				i, events[i].Timestamp, events[i-1].Timestamp)
		}
	}
}

func TestScanUsesCache(t *testing.T) {
	tmpDir := initTestRepo(t)
	writeAndCommit(t, tmpDir, "a.txt", "a\n", "add a", "2024-03-01T12:00:00Z")

	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer cache.Close()

	s := NewScanner(models.Repository{Path: tmpDir, Label: "demo"}, WithCache(cache))
	start, end := testRange(t)

	first, err := s.Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("first Scan failed: %v", err)
	}

	head, err := HeadSHA(tmpDir)
	if err != nil {
		t.Fatalf("HeadSHA failed: %v", err)
	}
	key := CacheKey{
		RepoPath: tmpDir,
		Head:     head,
		Label:    "demo",
		Prefixed: true,
		Start:    dayStart(start),
		End:      dayEnd(end),
	}
	if _, ok := cache.Get(key); !ok {
		t.Fatal("expected cache entry after scan")
	}

	second, err := s.Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("cached scan returned %d events, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("event %d differs between scans: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestScanCacheHonorsPrefixAndLabel(t *testing.T) {
	tmpDir := initTestRepo(t)
	writeAndCommit(t, tmpDir, "hello.txt", "hi\n", "add hello", "2024-03-01T12:00:00Z")

	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer cache.Close()

	start, end := testRange(t)
	repo := models.Repository{Path: tmpDir, Label: "demo"}

	// Warm the cache with label-prefixed paths.
	prefixed, err := NewScanner(repo, WithCache(cache)).Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("prefixed Scan failed: %v", err)
	}
	if len(prefixed) != 1 || prefixed[0].Path != "demo/hello.txt" {
		t.Fatalf("expected demo/hello.txt, got %+v", prefixed)
	}

	// The same repository and range scanned without prefixing must not be
	// served the warm prefixed entry.
	bare, err := NewScanner(repo, WithCache(cache), WithPathPrefix(false)).Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("bare Scan failed: %v", err)
	}
	if len(bare) != 1 || bare[0].Path != "hello.txt" {
		t.Fatalf("expected hello.txt from the no-prefix scan, got %+v", bare)
	}

	// A reassigned label is a different entry as well; events carry it in
	// both RepoID and the path.
	relabeled, err := NewScanner(models.Repository{Path: tmpDir, Label: "demo-2"}, WithCache(cache)).
		Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("relabeled Scan failed: %v", err)
	}
	if len(relabeled) != 1 || relabeled[0].Path != "demo-2/hello.txt" {
		t.Fatalf("expected demo-2/hello.txt after relabel, got %+v", relabeled)
	}
	if relabeled[0].RepoID != "demo-2" {
		t.Errorf("expected repo id demo-2, got %s", relabeled[0].RepoID)
	}
}

// initTestRepo creates an empty git repository in a temp dir.
func initTestRepo(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test User"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = tmpDir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v, output: %s", args, err, out)
		}
	}
	return tmpDir
}

func writeAndCommit(t *testing.T, repoDir, name, content, message, date string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(repoDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	gitCommit(t, repoDir, message, date, "add", name)
}

func removeAndCommit(t *testing.T, repoDir, name, message, date string) {
	t.Helper()
	gitCommit(t, repoDir, message, date, "rm", name)
}

func gitCommit(t *testing.T, repoDir, message, date, stageCmd, name string) {
	t.Helper()

	stage := exec.Command("git", stageCmd, name)
	stage.Dir = repoDir
	if out, err := stage.CombinedOutput(); err != nil {
		t.Fatalf("git %s failed: %v, output: %s", stageCmd, err, out)
	}

	commit := exec.Command("git", "commit", "-m", message)
	commit.Dir = repoDir
	commit.Env = append(os.Environ(),
		fmt.Sprintf("GIT_AUTHOR_DATE=%s", date),
		fmt.Sprintf("GIT_COMMITTER_DATE=%s", date))
	if out, err := commit.CombinedOutput(); err != nil {
		t.Fatalf("git commit failed: %v, output: %s", err, out)
	}
}

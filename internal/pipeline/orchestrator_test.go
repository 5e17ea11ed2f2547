package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/identity"
	"github.com/gitviz/gitviz/internal/models"
)

// fakeRenderer copies the timeline straight through to the frame stream,
// so the "video" the encoder sees is the serialized log itself.
type fakeRenderer struct {
	invoked atomic.Bool
	fail    bool
}

func (f *fakeRenderer) Render(ctx context.Context, timeline io.Reader, frames io.Writer) error {
	f.invoked.Store(true)
	if f.fail {
		return apperrors.RendererInvocation(errors.New("exit status 1"), "render frames")
	}
	// Like the real renderer, a failed frame write surfaces as this
	// stage's own invocation error, not as the raw pipe error.
	if _, err := io.Copy(frames, timeline); err != nil {
		return apperrors.RendererInvocation(err, "stream frames")
	}
	return nil
}

type fakeEncoder struct {
	fail bool
}

func (f *fakeEncoder) Encode(ctx context.Context, frames io.Reader, outputPath string) error {
	if f.fail {
		return apperrors.EncoderInvocation(errors.New("exit status 1"), "encode video")
	}
	data, err := io.ReadAll(frames)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func initPipelineRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "git", "init", "--quiet")
	run(t, dir, "git", "config", "user.email", "test@example.com")
	run(t, dir, "git", "config", "user.name", "Test User")
	return dir
}

func commitFile(t *testing.T, dir, name, author, email, date string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(date), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	run(t, dir, "git", "add", name)
	cmd := exec.Command("git", "commit", "--quiet", "-m", "update "+name,
		"--author", author+" <"+email+">")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE="+date,
		"GIT_COMMITTER_DATE="+date,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("%s %v: %v\n%s", name, args, err, out)
	}
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.DateOnly, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts.UTC()
}

func TestRunEndToEnd(t *testing.T) {
	repoA := initPipelineRepo(t)
	repoB := initPipelineRepo(t)
	commitFile(t, repoA, "hello.txt", "Alice", "alice@example.com", "2024-03-01T12:00:00Z")
	commitFile(t, repoB, "world.txt", "alice", "alice@example.com", "2024-03-02T12:00:00Z")

	resolver := identity.NewResolver()
	resolver.AddMapping("alice", "Alice")

	renderer := &fakeRenderer{}
	encoder := &fakeEncoder{}
	output := filepath.Join(t.TempDir(), "out.mp4")

	orch := NewOrchestrator(
		[]models.Repository{
			{Path: repoA, Label: "a"},
			{Path: repoB, Label: "b"},
		},
		resolver, renderer, encoder, quietLogger(),
		Options{
			Start:         day(t, "2024-03-01"),
			End:           day(t, "2024-03-31"),
			SecondsPerDay: 1,
			TimeScale:     1,
			Output:        output,
			PrefixPaths:   true,
		},
	)

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.Repositories)
	assert.Equal(t, 2, result.Events)
	assert.Equal(t, 2, result.Entries)
	assert.Equal(t, 1, result.People)
	assert.Equal(t, output, result.Output)
	assert.Empty(t, result.LogPath)
	assert.Greater(t, result.Duration, time.Duration(0))

	// The pass-through fakes land the serialized log in the output file:
	// both authors resolve to Alice and each path carries its repo label.
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	want := "500|Alice|A|a/hello.txt\n1500|Alice|A|b/world.txt\n"
	assert.Equal(t, want, string(data))
}

func TestRunKeepsLogOnRequest(t *testing.T) {
	repo := initPipelineRepo(t)
	commitFile(t, repo, "a.txt", "Bob", "bob@example.com", "2024-03-01T06:00:00Z")

	output := filepath.Join(t.TempDir(), "out.mp4")
	orch := NewOrchestrator(
		[]models.Repository{{Path: repo, Label: "r"}},
		identity.NewResolver(), &fakeRenderer{}, &fakeEncoder{}, quietLogger(),
		Options{
			Start:         day(t, "2024-03-01"),
			End:           day(t, "2024-03-02"),
			SecondsPerDay: 1,
			TimeScale:     1,
			Output:        output,
			PrefixPaths:   true,
			KeepLog:       true,
			WorkDir:       t.TempDir(),
		},
	)

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.LogPath)

	logData, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	outData, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, string(logData), string(outData))
}

func TestRunCleansTempDirOnFailure(t *testing.T) {
	repo := initPipelineRepo(t)
	commitFile(t, repo, "a.txt", "Bob", "bob@example.com", "2024-03-01T06:00:00Z")

	workDir := t.TempDir()
	orch := NewOrchestrator(
		[]models.Repository{{Path: repo, Label: "r"}},
		identity.NewResolver(), &fakeRenderer{fail: true}, &fakeEncoder{}, quietLogger(),
		Options{
			Start:         day(t, "2024-03-01"),
			End:           day(t, "2024-03-02"),
			SecondsPerDay: 1,
			TimeScale:     1,
			Output:        filepath.Join(t.TempDir(), "out.mp4"),
			WorkDir:       workDir,
		},
	)

	_, err := orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRendererInvocation))

	leftovers, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp run directory should be removed on failure")
}

func TestRunEncoderFailureSurfacesKind(t *testing.T) {
	repo := initPipelineRepo(t)
	commitFile(t, repo, "a.txt", "Bob", "bob@example.com", "2024-03-01T06:00:00Z")

	renderer := &fakeRenderer{}
	orch := NewOrchestrator(
		[]models.Repository{{Path: repo, Label: "r"}},
		identity.NewResolver(), renderer, &fakeEncoder{fail: true}, quietLogger(),
		Options{
			Start:         day(t, "2024-03-01"),
			End:           day(t, "2024-03-02"),
			SecondsPerDay: 1,
			TimeScale:     1,
			Output:        filepath.Join(t.TempDir(), "out.mp4"),
		},
	)

	// The dead encoder breaks the frame pipe, so the renderer fails too.
	// The encoder error is the root cause and must win the exit code.
	_, err := orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, renderer.invoked.Load())
	assert.True(t, apperrors.IsKind(err, apperrors.KindEncoderInvocation))
}

func TestRunNoRepositories(t *testing.T) {
	orch := NewOrchestrator(nil,
		identity.NewResolver(), &fakeRenderer{}, &fakeEncoder{}, quietLogger(),
		Options{
			Start:         day(t, "2024-03-01"),
			End:           day(t, "2024-03-02"),
			SecondsPerDay: 1,
			TimeScale:     1,
			Output:        "out.mp4",
		},
	)

	_, err := orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRepositoryAccess))
}

func TestRunRejectsInvertedRange(t *testing.T) {
	orch := NewOrchestrator(
		[]models.Repository{{Path: t.TempDir(), Label: "r"}},
		identity.NewResolver(), &fakeRenderer{}, &fakeEncoder{}, quietLogger(),
		Options{
			Start:         day(t, "2024-03-02"),
			End:           day(t, "2024-03-01"),
			SecondsPerDay: 1,
			TimeScale:     1,
			Output:        "out.mp4",
		},
	)

	_, err := orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDateRange))
}

func TestRunFailsFastOnBadRepository(t *testing.T) {
	repo := initPipelineRepo(t)
	commitFile(t, repo, "a.txt", "Bob", "bob@example.com", "2024-03-01T06:00:00Z")

	renderer := &fakeRenderer{}
	orch := NewOrchestrator(
		[]models.Repository{
			{Path: repo, Label: "good"},
			{Path: filepath.Join(t.TempDir(), "missing"), Label: "bad"},
		},
		identity.NewResolver(), renderer, &fakeEncoder{}, quietLogger(),
		Options{
			Start:         day(t, "2024-03-01"),
			End:           day(t, "2024-03-02"),
			SecondsPerDay: 1,
			TimeScale:     1,
			Output:        filepath.Join(t.TempDir(), "out.mp4"),
		},
	)

	_, err := orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRepositoryAccess))
	assert.False(t, renderer.invoked.Load(), "renderer must not start when scanning fails")
}

func TestRunEmptyWindow(t *testing.T) {
	repo := initPipelineRepo(t)
	commitFile(t, repo, "a.txt", "Bob", "bob@example.com", "2024-03-01T06:00:00Z")

	orch := NewOrchestrator(
		[]models.Repository{{Path: repo, Label: "r"}},
		identity.NewResolver(), &fakeRenderer{}, &fakeEncoder{}, quietLogger(),
		Options{
			Start:         day(t, "2030-01-01"),
			End:           day(t, "2030-01-31"),
			SecondsPerDay: 1,
			TimeScale:     1,
			Output:        filepath.Join(t.TempDir(), "out.mp4"),
		},
	)

	_, err := orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInternal))
	assert.Contains(t, err.Error(), "no commit events")
}

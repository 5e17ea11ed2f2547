package git

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/models"
)

// ValidateRepo checks that path exists and is a git working tree.
// Uses git rev-parse to verify rather than guessing at directory layout.
func ValidateRepo(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return apperrors.RepositoryAccess(path, err)
	}
	if !info.IsDir() {
		return apperrors.RepositoryAccess(path, fmt.Errorf("not a directory"))
	}

	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = path
	if err := cmd.Run(); err != nil {
		return apperrors.RepositoryAccess(path, fmt.Errorf("not a git repository: %w", err))
	}
	return nil
}

// HeadSHA returns the commit SHA the repository's HEAD points at.
// Fails on repositories with no commits yet.
func HeadSHA(path string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = path
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD in %s: %w", path, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Discover walks each root directory looking for git repositories and
// returns them sorted by path with unique display labels. A directory
// containing a .git entry counts as a repository; its subtree is not
// searched further, so nested checkouts inside a repo are ignored.
func Discover(roots []string) ([]models.Repository, error) {
	var paths []string
	seen := make(map[string]bool)

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, apperrors.RepositoryAccess(root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, apperrors.RepositoryAccess(root, err)
		}
		if !info.IsDir() {
			return nil, apperrors.RepositoryAccess(root, fmt.Errorf("not a directory"))
		}

		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable subdirectories are skipped, not fatal.
				return fs.SkipDir
			}
			if !d.IsDir() {
				return nil
			}
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			if _, statErr := os.Stat(filepath.Join(p, ".git")); statErr == nil {
				if !seen[p] {
					seen[p] = true
					paths = append(paths, p)
				}
				return fs.SkipDir
			}
			return nil
		})
		if err != nil {
			return nil, apperrors.RepositoryAccess(root, err)
		}
	}

	sort.Strings(paths)

	repos := make([]models.Repository, 0, len(paths))
	used := make(map[string]int)
	for _, p := range paths {
		label := filepath.Base(p)
		used[label]++
		if n := used[label]; n > 1 {
			label = fmt.Sprintf("%s-%d", label, n)
		}
		repos = append(repos, models.Repository{Path: p, Label: label})
	}
	return repos, nil
}

package pipeline

import (
	"os/exec"

	apperrors "github.com/gitviz/gitviz/internal/errors"
)

// Dependency is one external tool the pipeline shells out to.
type Dependency struct {
	Name  string
	Path  string
	Found bool
}

// CheckDependencies reports where the required external tools live. The
// doctor command prints this; the pipeline pre-flight turns gaps into
// typed errors instead.
func CheckDependencies() []Dependency {
	tools := []string{"git", "gource", "ffmpeg"}
	deps := make([]Dependency, 0, len(tools))
	for _, name := range tools {
		path, err := exec.LookPath(name)
		deps = append(deps, Dependency{Name: name, Path: path, Found: err == nil})
	}
	return deps
}

// RequireTools fails fast when an external tool is missing, before any
// repository is scanned.
func RequireTools() error {
	if _, err := exec.LookPath("git"); err != nil {
		return apperrors.New(apperrors.KindInternal, "git not found in PATH")
	}
	if _, err := exec.LookPath("gource"); err != nil {
		return apperrors.RendererInvocation(err, "gource not found in PATH, install it to render visualizations")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return apperrors.EncoderInvocation(err, "ffmpeg not found in PATH, install it to encode video")
	}
	return nil
}

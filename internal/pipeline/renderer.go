package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gitviz/gitviz/internal/config"
	apperrors "github.com/gitviz/gitviz/internal/errors"
)

// Renderer turns a serialized timeline log into a raw frame stream. The
// process-spawning details live behind this interface so the pipeline can
// be exercised with an in-process fake.
type Renderer interface {
	Render(ctx context.Context, timeline io.Reader, frames io.Writer) error
}

// Timeline offsets are milliseconds, but gource reads the first log field
// as seconds. At 86.4 "seconds" per day it advances 1000 units per wall
// second, i.e. exactly one offset-second per second, leaving all pacing to
// the scaler.
const gourceSecondsPerDay = 86.4

// GourceRenderer shells out to gource, feeding it the timeline log on
// stdin and streaming PPM frames from its stdout.
type GourceRenderer struct {
	render    config.RenderConfig
	avatarDir string
	highlight []string
}

// NewGourceRenderer creates a renderer with the given cosmetic options.
func NewGourceRenderer(render config.RenderConfig, avatarDir string, highlight []string) *GourceRenderer {
	return &GourceRenderer{render: render, avatarDir: avatarDir, highlight: highlight}
}

func (g *GourceRenderer) args() []string {
	args := []string{
		"--log-format", "custom",
		"-",
		"--seconds-per-day", strconv.FormatFloat(gourceSecondsPerDay, 'f', -1, 64),
		"--auto-skip-seconds", strconv.FormatFloat(g.render.AutoSkipSeconds, 'f', -1, 64),
		"--multi-sampling",
		"--stop-at-end",
		"--background-colour", g.render.Background,
		"--font-size", strconv.Itoa(g.render.FontSize),
		"--user-scale", strconv.FormatFloat(g.render.UserScale, 'f', -1, 64),
		"--user-font-size", strconv.Itoa(g.render.UserFontSize),
	}
	if g.avatarDir != "" {
		args = append(args, "--user-image-dir", g.avatarDir)
	}
	for _, user := range g.highlight {
		args = append(args, "--highlight-user", user)
	}
	if g.render.Viewport != "" {
		args = append(args, "--viewport", g.render.Viewport)
	}
	args = append(args,
		"--output-framerate", strconv.Itoa(g.render.Framerate),
		"--output-ppm-stream", "-",
	)
	return args
}

// Render runs gource until the timeline is exhausted or ctx is canceled.
func (g *GourceRenderer) Render(ctx context.Context, timeline io.Reader, frames io.Writer) error {
	cmd := exec.CommandContext(ctx, "gource", g.args()...)
	cmd.Stdin = timeline
	cmd.Stdout = frames

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return apperrors.RendererInvocation(err, "gource failed")
		}
		return apperrors.RendererInvocation(err, fmt.Sprintf("gource failed: %s", tail(detail, 4)))
	}
	return nil
}

// tail keeps the last n lines of multi-line tool output.
func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

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

// Encoder consumes a raw frame stream and writes the finished video file.
type Encoder interface {
	Encode(ctx context.Context, frames io.Reader, outputPath string) error
}

// FFmpegEncoder shells out to ffmpeg, reading frames on stdin.
type FFmpegEncoder struct {
	encode config.EncodeConfig
}

// NewFFmpegEncoder creates an encoder with the given codec options.
func NewFFmpegEncoder(encode config.EncodeConfig) *FFmpegEncoder {
	return &FFmpegEncoder{encode: encode}
}

func (f *FFmpegEncoder) args(outputPath string) []string {
	return []string{
		"-y",
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(f.encode.Framerate),
		"-i", "-",
		"-c:v", f.encode.Codec,
		"-preset", f.encode.Preset,
		"-pix_fmt", "yuv420p",
		"-crf", strconv.Itoa(f.encode.CRF),
		"-movflags", "+faststart",
		outputPath,
	}
}

// Encode runs ffmpeg until the frame stream ends or ctx is canceled.
func (f *FFmpegEncoder) Encode(ctx context.Context, frames io.Reader, outputPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", f.args(outputPath)...)
	cmd.Stdin = frames

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return apperrors.EncoderInvocation(err, "ffmpeg failed")
		}
		return apperrors.EncoderInvocation(err, fmt.Sprintf("ffmpeg failed: %s", tail(detail, 4)))
	}
	return nil
}

// Package mediasvc trims videos with the ffmpeg binary.
package mediasvc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
)

type FFmpegTrimmer struct {
	bin    string
	logger core.Logger
}

var _ file.Trimmer = (*FFmpegTrimmer)(nil)

func NewFFmpegTrimmer(conf *core.Config, logger core.Logger) *FFmpegTrimmer {
	return &FFmpegTrimmer{bin: conf.Media.FFmpegPath, logger: logger}
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// trimArgs copies the streams without re-encoding; cuts snap to the nearest keyframes.
func trimArgs(input, output string, start, end time.Duration) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", seconds(start),
		"-i", input,
		"-t", seconds(end - start),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		output,
	}
}

func (t *FFmpegTrimmer) Trim(ctx context.Context, input, output string, start, end time.Duration) error {
	if end <= start {
		return errors.New("trim end must be after start")
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.bin, trimArgs(input, output, start, end)...)
	cmd.Stderr = &stderr

	began := time.Now()
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "ffmpeg: %s", strings.TrimSpace(stderr.String()))
	}
	t.logger.Debug(fmt.Sprintf("ffmpeg: trimmed %s in %s", input, time.Since(began)))
	return nil
}

// Package transcode converts uploaded recordings to a fixed-bitrate MP3 using
// an ffmpeg subprocess.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Bitrate is the MP3 bitrate passed to the encoder.
const Bitrate = "128k"

// Error describes a failed encode with the command context.
type Error struct {
	Message  string
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("transcode: %s", e.Message)
	}
	stderr := lastLine(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("transcode: %s (cmd=%s exit=%d)", e.Message, e.Command, e.ExitCode)
	}
	return fmt.Sprintf("transcode: %s (cmd=%s exit=%d): %s", e.Message, e.Command, e.ExitCode, stderr)
}

func (e *Error) Unwrap() error { return e.Err }

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// FFmpeg encodes audio with an ffmpeg binary.
type FFmpeg struct {
	path   string
	runner commandRunner
	stat   func(name string) (os.FileInfo, error)
	remove func(name string) error
	log    *logrus.Entry
}

// New returns a transcoder using the given ffmpeg binary ("ffmpeg" when empty).
func New(ffmpegPath string, log *logrus.Entry) *FFmpeg {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{
		path:   ffmpegPath,
		runner: &execRunner{},
		stat:   os.Stat,
		remove: os.Remove,
		log:    log,
	}
}

// Args returns the ffmpeg arguments used to encode src into dst.
func Args(src, dst string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", src,
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", Bitrate,
		dst,
	}
}

// ToMP3 encodes src into an MP3 at dst. On failure any partial dst is removed
// and a single *Error is returned.
func (f *FFmpeg) ToMP3(ctx context.Context, src, dst string) error {
	if _, err := f.stat(src); err != nil {
		return &Error{Message: fmt.Sprintf("cannot access input %s", src), Err: err}
	}

	args := Args(src, dst)
	res, err := f.runner.Run(ctx, f.path, args...)
	if err != nil {
		if rmErr := f.remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.log.WithField("path", dst).WithField("error", rmErr.Error()).Warn("failed to remove partial mp3")
		}
		return &Error{
			Message:  "ffmpeg failed",
			Command:  f.path,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}

	info, err := f.stat(dst)
	if err != nil || info.Size() == 0 {
		_ = f.remove(dst)
		return &Error{Message: "ffmpeg produced no output", Command: f.path, Stderr: res.Stderr, Err: err}
	}

	f.log.WithFields(logrus.Fields{"src": src, "dst": dst, "bytes": info.Size()}).Debug("transcoded to mp3")
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

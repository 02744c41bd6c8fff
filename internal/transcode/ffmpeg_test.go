package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deal-voice-notes/internal/logger"
)

type fakeRunner struct {
	run   func(ctx context.Context, name string, args ...string) (commandResult, error)
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls++
	return f.run(ctx, name, args...)
}

func newForTests(runner commandRunner) *FFmpeg {
	f := New("ffmpeg-custom", logger.Discard().Component("transcode"))
	f.runner = runner
	return f
}

func TestToMP3PassesFixedBitrate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.webm")
	dst := filepath.Join(dir, "out.mp3")
	require.NoError(t, os.WriteFile(src, []byte("media"), 0o644))

	var gotName string
	var gotArgs []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		gotName, gotArgs = name, args
		return commandResult{}, os.WriteFile(args[len(args)-1], []byte("ID3"), 0o644)
	}}

	require.NoError(t, newForTests(runner).ToMP3(context.Background(), src, dst))
	assert.Equal(t, "ffmpeg-custom", gotName)
	assert.Equal(t, Args(src, dst), gotArgs)
	assert.Contains(t, gotArgs, "128k")
	assert.Contains(t, gotArgs, "libmp3lame")
	assert.FileExists(t, dst)
}

func TestToMP3MissingInput(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		t.Fatal("runner must not be called")
		return commandResult{}, nil
	}}
	err := newForTests(runner).ToMP3(context.Background(), filepath.Join(t.TempDir(), "nope.ogg"), "out.mp3")

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, runner.calls)
}

func TestToMP3FailureRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.wav")
	dst := filepath.Join(dir, "out.mp3")
	require.NoError(t, os.WriteFile(src, []byte("garbage"), 0o644))

	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		_ = os.WriteFile(dst, []byte("partial"), 0o644)
		return commandResult{Stderr: "header\nInvalid data found when processing input", ExitCode: 1}, errors.New("exit status 1")
	}}

	err := newForTests(runner).ToMP3(context.Background(), src, dst)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, terr.ExitCode)
	assert.Contains(t, err.Error(), "Invalid data found when processing input")
	assert.NoFileExists(t, dst)
}

func TestToMP3EmptyOutputIsFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.wav")
	dst := filepath.Join(dir, "out.mp3")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{}, os.WriteFile(dst, nil, 0o644)
	}}

	err := newForTests(runner).ToMP3(context.Background(), src, dst)
	require.Error(t, err)
	assert.NoFileExists(t, dst)
}

// TestToMP3WithRealFFmpeg encodes the same fixture twice; both outputs must be
// valid MP3 streams.
func TestToMP3WithRealFFmpeg(t *testing.T) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not on PATH")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "tone.wav")
	require.NoError(t, os.WriteFile(src, silentWAV(8000, 1), 0o644))

	f := New(bin, logger.Discard().Component("transcode"))
	for _, name := range []string{"a.mp3", "b.mp3"} {
		dst := filepath.Join(dir, name)
		require.NoError(t, f.ToMP3(context.Background(), src, dst))
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.True(t, looksLikeMP3(data), "%s is not an mp3", name)
	}
}

func looksLikeMP3(b []byte) bool {
	if bytes.HasPrefix(b, []byte("ID3")) {
		return true
	}
	return len(b) > 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

// silentWAV returns a 16-bit mono PCM WAV of the given duration.
func silentWAV(sampleRate, seconds int) []byte {
	dataLen := sampleRate * seconds * 2
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

// Package audioformat maps upload MIME types to the container labels used
// when naming files for transcription and transcoding.
package audioformat

import (
	"mime"
	"strings"
)

// Container is a codec/container label.
type Container string

const (
	MP4  Container = "mp4"
	Ogg  Container = "ogg"
	WAV  Container = "wav"
	MP3  Container = "mp3"
	WebM Container = "webm"
)

// Default is returned for anything unrecognised. Browsers recording through
// MediaRecorder send webm most of the time.
const Default = WebM

var byMime = map[string]Container{
	"audio/mp4":       MP4,
	"audio/m4a":       MP4,
	"audio/x-m4a":     MP4,
	"video/mp4":       MP4,
	"audio/ogg":       Ogg,
	"audio/opus":      Ogg,
	"application/ogg": Ogg,
	"audio/wav":       WAV,
	"audio/x-wav":     WAV,
	"audio/wave":      WAV,
	"audio/vnd.wave":  WAV,
	"audio/mpeg":      MP3,
	"audio/mp3":       MP3,
	"audio/mpeg3":     MP3,
}

// Resolve strips MIME parameters and returns the container label.
// It never fails: unknown input yields Default.
func Resolve(mimeType string) Container {
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	base = strings.ToLower(strings.TrimSpace(base))
	if c, ok := byMime[base]; ok {
		return c
	}
	return Default
}

// Extension returns the file extension (without dot) for the container.
func (c Container) Extension() string {
	if c == "" {
		return string(Default)
	}
	return string(c)
}

// Filename builds a synthetic filename whose extension matches the container.
func (c Container) Filename(stem string) string {
	return stem + "." + c.Extension()
}

var byExtension = map[string]string{
	"mp4":  "audio/mp4",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"opus": "audio/ogg",
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"webm": "audio/webm",
}

// FromExtension guesses a MIME type from a file extension, with or without
// the leading dot.
func FromExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if m, ok := byExtension[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension("." + ext); m != "" {
		return m
	}
	return "audio/webm"
}

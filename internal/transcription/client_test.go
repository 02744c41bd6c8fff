package transcription

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deal-voice-notes/internal/logger"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(p, []byte("fake-audio-bytes"), 0o644))
	return p
}

func newTestClient(url string) *Client {
	return NewClient(Config{APIKey: "sk-test", BaseURL: url, Timeout: 5 * time.Second}, logger.Discard().Component("transcription"))
}

func TestTranscribeSendsSyntheticFilename(t *testing.T) {
	var (
		gotFilename string
		gotFields   = map[string]string{}
		gotAuth     string
		gotPath     string
		gotPayload  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotFilename = hdr.Filename
		gotPayload = string(data)
		_, _ = w.Write([]byte(`{"text":"  Hello, deal!\n"}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Transcribe(context.Background(), writeAudio(t), "audio/ogg; codecs=opus")
	require.NoError(t, err)

	assert.Equal(t, "  Hello, deal!\n", text, "text must be returned verbatim")
	assert.Equal(t, "audio.ogg", gotFilename)
	assert.Equal(t, "fake-audio-bytes", gotPayload)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/audio/transcriptions", gotPath)
	assert.Equal(t, DefaultModel, gotFields["model"])
	assert.Equal(t, DefaultLanguage, gotFields["language"])
}

func TestTranscribeUnknownMimeUsesWebm(t *testing.T) {
	var gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		gotFilename = hdr.Filename
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), writeAudio(t), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "audio.webm", gotFilename)
}

func TestTranscribeNon2xxCarriesBody(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), writeAudio(t), "audio/mpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `{"error":{"message":"quota exceeded"}}`)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 1, calls, "no retry")
}

func TestTranscribeNotConfigured(t *testing.T) {
	c := NewClient(Config{}, logger.Discard().Component("transcription"))
	_, err := c.Transcribe(context.Background(), "whatever", "audio/mpeg")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTranscribeMissingFile(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing"), "audio/mpeg")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

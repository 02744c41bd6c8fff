// Package scratch manages per-request temporary files. Every file handed out
// by a Session is registered at creation time and removed by Release.
package scratch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Dir is the process-wide scratch directory shared by concurrent requests.
type Dir struct {
	root string
	log  *logrus.Entry
	now  func() time.Time
}

// New creates root if needed.
func New(root string, log *logrus.Entry) (*Dir, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "deal-voice-notes")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", root, err)
	}
	return &Dir{root: root, log: log, now: time.Now}, nil
}

func (d *Dir) Root() string { return d.root }

// Session tracks the files of one job.
type Session struct {
	dir    *Dir
	prefix string

	mu       sync.Mutex
	paths    []string
	released bool
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SafeName reduces s to characters that are safe in a file name.
func SafeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

// NewSession starts a job. File names carry the deal id, a millisecond
// timestamp and a random suffix.
func (d *Dir) NewSession(dealID string) *Session {
	prefix := fmt.Sprintf("%s_%d_%s", SafeName(dealID), d.now().UnixMilli(), uuid.New().String()[:8])
	return &Session{dir: d, prefix: prefix}
}

// Prefix is the unique stem shared by all files in the session.
func (s *Session) Prefix() string { return s.prefix }

// Path registers and returns a new path for role with extension ext. The
// file itself is not created.
func (s *Session) Path(role, ext string) string {
	name := s.prefix + "_" + SafeName(role)
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	p := filepath.Join(s.dir.root, name)
	s.track(p)
	return p
}

func (s *Session) track(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, p)
}

// Save copies r into a new registered file.
func (s *Session) Save(role, ext string, r io.Reader) (string, error) {
	p := s.Path(role, ext)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return p, nil
}

// WriteText stores text in a new registered .txt file.
func (s *Session) WriteText(role, text string) (string, error) {
	p := s.Path(role, "txt")
	if err := os.WriteFile(p, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write scratch text: %w", err)
	}
	return p, nil
}

// Paths returns a copy of the registered paths.
func (s *Session) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Release removes every registered file. Missing files are fine; other
// failures are retried briefly, then logged and returned. Safe to call more
// than once.
func (s *Session) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := removeWithRetry(p); err != nil {
			s.dir.log.WithField("path", p).WithField("error", err.Error()).Warn("failed to remove scratch file")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func removeWithRetry(p string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second

	op := func() error {
		err := os.Remove(p)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if errors.Is(err, os.ErrPermission) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, bo)
}

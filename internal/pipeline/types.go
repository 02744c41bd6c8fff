package pipeline

import (
	"context"
	"errors"
	"time"
)

// State names one step of a run.
type State string

const (
	StateReceived            State = "received"
	StateTranscribing        State = "transcribing"
	StateTranscoding         State = "transcoding"
	StateArchivingAudio      State = "archiving_audio"
	StateArchivingTranscript State = "archiving_transcript"
	StateNotifying           State = "notifying"
	StateCleaningUp          State = "cleaning_up"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Role of an archived file.
type Role string

const (
	RoleAudio      Role = "audio"
	RoleTranscript Role = "transcript"
)

var (
	ErrMissingDealID = errors.New("missing dealId")
	ErrMissingAudio  = errors.New("missing audio file")
)

// UploadJob is one recording for one deal. It lives for a single request.
type UploadJob struct {
	DealID    string
	AudioPath string
	MimeType  string
	CreatedAt time.Time
}

type ArchivedFile struct {
	RemoteID string `json:"remoteId"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Role     Role   `json:"role"`
}

type Note struct {
	DealID string
	Text   string
}

type Result struct {
	DealID         string       `json:"dealId"`
	Transcript     string       `json:"transcript"`
	Audio          ArchivedFile `json:"audio"`
	TranscriptFile ArchivedFile `json:"transcriptFile"`
	NoteID         int64        `json:"noteId,omitempty"`
}

// StageError records which stage failed. Its message is the underlying
// error's message unchanged.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// IsClientError reports whether err was caused by missing job input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingDealID) || errors.Is(err, ErrMissingAudio)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path, mimeType string) (string, error)
}

type Transcoder interface {
	ToMP3(ctx context.Context, src, dst string) error
}

type Archiver interface {
	Upload(ctx context.Context, path, name, mimeType, folderID string) (string, error)
	ViewURL(id string) string
}

type Notifier interface {
	AddNote(ctx context.Context, dealID, text string) (int64, error)
}

// Session hands out scratch paths and removes them on Release.
type Session interface {
	Path(role, ext string) string
	WriteText(role, text string) (string, error)
	Release() error
}

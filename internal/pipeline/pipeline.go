// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"deal-voice-notes/internal/scratch"
)

const (
	audioMimeType      = "audio/mpeg"
	transcriptMimeType = "text/plain"
)

type Options struct {
	AudioFolderID      string
	TranscriptFolderID string
	// ConcurrentDecode runs transcription and transcoding side by side. Both
	// only read the source file; archiving waits for both.
	ConcurrentDecode bool
}

// Pipeline sequences transcription, transcoding, archiving and the CRM note
// for one upload.
type Pipeline struct {
	transcriber Transcriber
	transcoder  Transcoder
	archive     Archiver
	notifier    Notifier
	opts        Options
	log         *logrus.Entry
	now         func() time.Time
}

func New(t Transcriber, tc Transcoder, a Archiver, n Notifier, opts Options, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		transcriber: t,
		transcoder:  tc,
		archive:     a,
		notifier:    n,
		opts:        opts,
		log:         log,
		now:         time.Now,
	}
}

// Run executes the job. Any failing stage stops the run; later stages are not
// attempted. The session is released before Run returns, on every path.
func (p *Pipeline) Run(ctx context.Context, sess Session, job UploadJob) (res *Result, err error) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = p.now()
	}
	log := p.log.WithField("deal_id", job.DealID)
	start := time.Now()

	defer func() {
		log.WithField("state", StateCleaningUp).Debug("releasing scratch files")
		if relErr := sess.Release(); relErr != nil {
			log.WithField("error", relErr.Error()).Warn("scratch cleanup incomplete")
		}

		fields := logrus.Fields{"duration_ms": time.Since(start).Milliseconds()}
		switch {
		case err == nil:
			runsTotal.WithLabelValues("success").Inc()
			log.WithFields(fields).WithField("state", StateDone).Info("pipeline finished")
		case IsClientError(err):
			runsTotal.WithLabelValues("client_error").Inc()
			log.WithFields(fields).WithField("error", err.Error()).Warn("pipeline rejected job")
		default:
			runsTotal.WithLabelValues("failed").Inc()
			var se *StageError
			if errors.As(err, &se) {
				fields["stage"] = se.Stage
			}
			log.WithFields(fields).WithField("state", StateFailed).WithField("error", err.Error()).Error("pipeline failed")
		}
	}()

	if strings.TrimSpace(job.DealID) == "" {
		return nil, ErrMissingDealID
	}
	if job.AudioPath == "" {
		return nil, ErrMissingAudio
	}
	log.WithFields(logrus.Fields{"state": StateReceived, "mime_type": job.MimeType}).Info("pipeline started")

	mp3Path := sess.Path("audio", "mp3")
	var transcript string

	transcribe := func(ctx context.Context) error {
		return p.stage(ctx, log, StateTranscribing, func(ctx context.Context) error {
			text, err := p.transcriber.Transcribe(ctx, job.AudioPath, job.MimeType)
			transcript = text
			return err
		})
	}
	transcode := func(ctx context.Context) error {
		return p.stage(ctx, log, StateTranscoding, func(ctx context.Context) error {
			return p.transcoder.ToMP3(ctx, job.AudioPath, mp3Path)
		})
	}

	if p.opts.ConcurrentDecode {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return transcribe(gctx) })
		g.Go(func() error { return transcode(gctx) })
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		if err := transcribe(ctx); err != nil {
			return nil, err
		}
		if err := transcode(ctx); err != nil {
			return nil, err
		}
	}

	stamp := job.CreatedAt.UTC().Format("20060102-150405")
	deal := scratch.SafeName(job.DealID)

	var audio ArchivedFile
	err = p.stage(ctx, log, StateArchivingAudio, func(ctx context.Context) error {
		name := fmt.Sprintf("call_%s_%s.mp3", deal, stamp)
		id, err := p.archive.Upload(ctx, mp3Path, name, audioMimeType, p.opts.AudioFolderID)
		if err != nil {
			return err
		}
		audio = ArchivedFile{RemoteID: id, URL: p.archive.ViewURL(id), MimeType: audioMimeType, Role: RoleAudio}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var textFile ArchivedFile
	err = p.stage(ctx, log, StateArchivingTranscript, func(ctx context.Context) error {
		txtPath, err := sess.WriteText("transcript", transcript)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("transcript_%s_%s.txt", deal, stamp)
		id, err := p.archive.Upload(ctx, txtPath, name, transcriptMimeType, p.opts.TranscriptFolderID)
		if err != nil {
			return err
		}
		textFile = ArchivedFile{RemoteID: id, URL: p.archive.ViewURL(id), MimeType: transcriptMimeType, Role: RoleTranscript}
		return nil
	})
	if err != nil {
		return nil, err
	}

	note := ComposeNote(job.DealID, transcript, audio, textFile)
	var noteID int64
	err = p.stage(ctx, log, StateNotifying, func(ctx context.Context) error {
		id, err := p.notifier.AddNote(ctx, note.DealID, note.Text)
		noteID = id
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		DealID:         job.DealID,
		Transcript:     transcript,
		Audio:          audio,
		TranscriptFile: textFile,
		NoteID:         noteID,
	}, nil
}

// stage runs fn, records its duration and wraps a failure with the stage.
func (p *Pipeline) stage(ctx context.Context, log *logrus.Entry, s State, fn func(ctx context.Context) error) error {
	log = log.WithField("state", s)
	log.Info("stage started")
	start := time.Now()

	err := fn(ctx)
	stageDuration.WithLabelValues(string(s)).Observe(time.Since(start).Seconds())
	if err != nil {
		stageFailures.WithLabelValues(string(s)).Inc()
		log.WithField("error", err.Error()).Warn("stage failed")
		return &StageError{Stage: s, Err: err}
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("stage completed")
	return nil
}

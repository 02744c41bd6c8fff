// Package bootstrap builds the pipeline and its clients from configuration.
// Both binaries share it.
package bootstrap

import (
	"context"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"

	"deal-voice-notes/internal/archive"
	"deal-voice-notes/internal/config"
	"deal-voice-notes/internal/crm"
	"deal-voice-notes/internal/logger"
	"deal-voice-notes/internal/pipeline"
	"deal-voice-notes/internal/transcode"
	"deal-voice-notes/internal/transcription"
)

const (
	gcsAudioPrefix      = "audio"
	gcsTranscriptPrefix = "transcripts"
)

// Archive builds the configured backend. Credential or client errors are
// logged and produce an archive.Unavailable so the process still starts.
// The returned func releases the backend.
func Archive(ctx context.Context, cfg *config.Config, log *logger.Logger) (pipeline.Archiver, func()) {
	alog := log.Component("archive").WithField("backend", cfg.Archive.Backend)
	noop := func() {}

	unavailable := func(err error) (pipeline.Archiver, func()) {
		alog.WithField("error", err.Error()).Warn("archive disabled")
		return archive.Unavailable{Err: err}, noop
	}

	in, err := cfg.CredentialInput()
	if err != nil {
		return unavailable(err)
	}
	creds, err := archive.ParseCredentials(in)
	if err != nil {
		return unavailable(err)
	}
	alog = alog.WithField("auth_mode", creds.Mode())

	switch cfg.Archive.Backend {
	case config.BackendGCS:
		g, err := archive.NewGCS(ctx, creds, cfg.Archive.Bucket, alog)
		if err != nil {
			return unavailable(err)
		}
		alog.WithField("bucket", cfg.Archive.Bucket).Info("archive ready")
		return g, func() {
			if err := g.Close(); err != nil {
				alog.WithField("error", err.Error()).Warn("failed to close storage client")
			}
		}
	default:
		d, err := archive.NewDrive(ctx, creds, alog)
		if err != nil {
			return unavailable(err)
		}
		alog.Info("archive ready")
		return d, noop
	}
}

// PipelineOptions maps configuration to pipeline options. GCS folders are
// object prefixes and default to fixed names.
func PipelineOptions(cfg *config.Config) pipeline.Options {
	opts := pipeline.Options{
		AudioFolderID:      cfg.Archive.AudioFolderID,
		TranscriptFolderID: cfg.Archive.TranscriptFolderID,
		ConcurrentDecode:   cfg.ConcurrentDecode,
	}
	if cfg.Archive.Backend == config.BackendGCS {
		if opts.AudioFolderID == "" {
			opts.AudioFolderID = gcsAudioPrefix
		}
		if opts.TranscriptFolderID == "" {
			opts.TranscriptFolderID = gcsTranscriptPrefix
		}
	}
	return opts
}

// Pipeline wires every stage client. Call the returned func on shutdown.
func Pipeline(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pipeline.Pipeline, func()) {
	store, closeStore := Archive(ctx, cfg, log)

	transcriber := transcription.NewClient(transcription.Config{
		APIKey:   cfg.Transcription.APIKey,
		BaseURL:  cfg.Transcription.BaseURL,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Timeout:  cfg.Transcription.Timeout,
	}, log.Component("transcription"))

	p := pipeline.New(
		transcriber,
		transcode.New(cfg.FFmpegPath, log.Component("transcode")),
		store,
		crm.NewClient(cfg.CRM.Domain, cfg.CRM.AccessToken, log.Component("crm")),
		PipelineOptions(cfg),
		log.Component("pipeline"),
	)
	return p, closeStore
}

// OAuthConfig returns the consent-flow client, or nil when the flow is off.
func OAuthConfig(cfg *config.Config) *oauth2.Config {
	if !cfg.OAuthFlowEnabled() {
		return nil
	}
	scope := archive.DriveScope
	if cfg.Archive.Backend == config.BackendGCS {
		scope = storage.ScopeReadWrite
	}
	return archive.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL, scope)
}

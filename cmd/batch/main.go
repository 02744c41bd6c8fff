// Command batch runs every row of an xlsx manifest through the upload
// pipeline and writes an xlsx report.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"deal-voice-notes/internal/audioformat"
	"deal-voice-notes/internal/bootstrap"
	"deal-voice-notes/internal/config"
	"deal-voice-notes/internal/logger"
	"deal-voice-notes/internal/manifest"
	"deal-voice-notes/internal/pipeline"
	"deal-voice-notes/internal/scratch"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code so deferred cleanup always runs.
func run(args []string) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	manifestPath := fs.String("manifest", "manifest.xlsx", "xlsx with deal id and audio file columns")
	reportPath := fs.String("report", "report.xlsx", "where to write the outcome report")
	limit := fs.Int("limit", 0, "process at most this many rows (0 = all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New("", "info").WithError(err).Error("failed to load configuration")
		return 1
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rows, err := manifest.Load(*manifestPath, log.Component("manifest").WithField("path", *manifestPath))
	if err != nil {
		log.WithError(err).Error("failed to load manifest")
		return 1
	}
	if *limit > 0 && len(rows) > *limit {
		rows = rows[:*limit]
	}

	dir, err := scratch.New(cfg.ScratchDir, log.Component("scratch"))
	if err != nil {
		log.WithError(err).Error("failed to prepare scratch dir")
		return 1
	}
	p, closePipeline := bootstrap.Pipeline(ctx, cfg, log)
	defer closePipeline()

	outcomes := make([]manifest.Outcome, 0, len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			log.Warn("interrupted; writing partial report")
			break
		}
		outcomes = append(outcomes, runRow(ctx, p, dir, row, log))
	}

	if err := manifest.WriteReport(*reportPath, outcomes); err != nil {
		log.WithError(err).Error("failed to write report")
		return 1
	}
	s := manifest.Summarize(outcomes)
	log.WithFields(logrus.Fields{
		"report":    *reportPath,
		"total":     s.Total,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
	}).Info("batch complete")
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// runRow copies the source into a scratch session so the pipeline never
// touches the manifest's own files.
func runRow(ctx context.Context, p *pipeline.Pipeline, dir *scratch.Dir, row manifest.Row, log *logger.Logger) manifest.Outcome {
	rowLog := log.WithField("line", row.Line).WithField("deal_id", row.DealID)
	sess := dir.NewSession(row.DealID)
	defer func() { _ = sess.Release() }()

	job := pipeline.UploadJob{DealID: row.DealID, MimeType: row.MimeType, CreatedAt: time.Now()}
	if row.AudioPath != "" {
		src, err := os.Open(row.AudioPath)
		if err != nil {
			rowLog.WithField("error", err.Error()).Warn("cannot open audio")
			return manifest.Outcome{Row: row, Err: err}
		}
		defer src.Close()
		job.AudioPath, err = sess.Save("source", audioformat.Resolve(row.MimeType).Extension(), src)
		if err != nil {
			return manifest.Outcome{Row: row, Err: err}
		}
	}

	res, err := p.Run(ctx, sess, job)
	return manifest.Outcome{Row: row, Result: res, Err: err}
}

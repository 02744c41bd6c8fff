package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"deal-voice-notes/internal/audioformat"
	"deal-voice-notes/internal/pipeline"
)

const multipartMemory = 8 << 20

type uploadResponse struct {
	Success     bool   `json:"success"`
	DealID      string `json:"dealId"`
	TextFileID  string `json:"textFileId"`
	AudioFileID string `json:"audioFileId"`
}

// handleUpload accepts multipart dealId + audio and runs the pipeline
// synchronously. Nothing upstream is called unless both fields are present.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "upload")

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reqLog.WithField("limit_bytes", tooLarge.Limit).Warn("upload too large")
			writeError(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		reqLog.WithField("error", err.Error()).Warn("invalid multipart form")
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	dealID := strings.TrimSpace(r.FormValue("dealId"))
	if dealID == "" {
		reqLog.Warn("missing dealId")
		writeError(w, http.StatusBadRequest, pipeline.ErrMissingDealID.Error())
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		reqLog.WithField("deal_id", dealID).Warn("missing audio file")
		writeError(w, http.StatusBadRequest, pipeline.ErrMissingAudio.Error())
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = audioformat.FromExtension(filepath.Ext(header.Filename))
	}
	reqLog = reqLog.WithField("deal_id", dealID).WithField("mime_type", mimeType).WithField("size_bytes", header.Size)
	reqLog.Info("upload received")

	sess := s.scratch.NewSession(dealID)
	defer func() { _ = sess.Release() }()

	src, err := sess.Save("source", audioformat.Resolve(mimeType).Extension(), file)
	if err != nil {
		reqLog.WithField("error", err.Error()).Error("failed to store upload")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res, err := s.runner.Run(r.Context(), sess, pipeline.UploadJob{
		DealID:    dealID,
		AudioPath: src,
		MimeType:  mimeType,
		CreatedAt: time.Now(),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if pipeline.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:     true,
		DealID:      res.DealID,
		TextFileID:  res.TranscriptFile.RemoteID,
		AudioFileID: res.Audio.RemoteID,
	})
}

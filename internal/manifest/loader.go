// Package manifest reads batch upload manifests from xlsx workbooks and
// writes the per-row outcome report.
package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"deal-voice-notes/internal/audioformat"
)

// Row is one recording to run through the pipeline.
type Row struct {
	Line      int
	DealID    string
	AudioPath string
	MimeType  string
}

var ErrNoAudioColumn = errors.New("no audio column found")

type columns struct {
	deal, audio, mime int
}

// detectColumns picks columns by header heuristics. Only the audio column is
// required; a missing deal column falls back to the first column.
func detectColumns(header []string) (columns, error) {
	c := columns{deal: -1, audio: -1, mime: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "mime") || strings.Contains(l, "content type") || l == "type":
			if c.mime == -1 {
				c.mime = i
			}
		case strings.Contains(l, "audio") || strings.Contains(l, "file") || strings.Contains(l, "path") || strings.Contains(l, "record"):
			if c.audio == -1 {
				c.audio = i
			}
		case strings.Contains(l, "deal") || strings.Contains(l, "lead") || l == "id":
			if c.deal == -1 {
				c.deal = i
			}
		}
	}
	if c.audio == -1 {
		return c, ErrNoAudioColumn
	}
	if c.deal == -1 {
		for i := range header {
			if i != c.audio && i != c.mime {
				c.deal = i
				break
			}
		}
	}
	return c, nil
}

func cell(r []string, idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[idx])
}

// Load reads the first sheet of the workbook at path. Relative audio paths
// are resolved against the workbook's directory. Blank rows are skipped;
// rows missing only one of deal or audio are kept so the run reports them.
func Load(path string, log *logrus.Entry) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	cols, err := detectColumns(rows[0])
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"sheet":     sheets[0],
		"deal_col":  cols.deal,
		"audio_col": cols.audio,
		"mime_col":  cols.mime,
		"data_rows": len(rows) - 1,
	}).Info("detected manifest columns")

	base := filepath.Dir(path)
	var out []Row
	for i, r := range rows[1:] {
		row := Row{
			Line:      i + 2,
			DealID:    cell(r, cols.deal),
			AudioPath: cell(r, cols.audio),
			MimeType:  cell(r, cols.mime),
		}
		if row.DealID == "" && row.AudioPath == "" {
			continue
		}
		if row.AudioPath != "" && !filepath.IsAbs(row.AudioPath) {
			row.AudioPath = filepath.Join(base, row.AudioPath)
		}
		if row.MimeType == "" && row.AudioPath != "" {
			row.MimeType = audioformat.FromExtension(filepath.Ext(row.AudioPath))
		}
		out = append(out, row)
	}
	return out, nil
}

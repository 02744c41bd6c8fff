package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"deal-voice-notes/internal/logger"
	"deal-voice-notes/internal/pipeline"
)

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, r := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, addr, &r))
	}
	path := filepath.Join(t.TempDir(), "manifest.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoad(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Deal ID", "Audio file", "MIME type", "Comment"},
		{"101", "calls/a.ogg", "", "first"},
		{"102", "/abs/b.webm", "audio/webm;codecs=opus", ""},
		{"", "", "", "blank"},
		{"", "calls/c.wav", "", "no deal"},
	})
	rows, err := Load(path, logger.Discard().Component("manifest"))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	base := filepath.Dir(path)
	assert.Equal(t, Row{Line: 2, DealID: "101", AudioPath: filepath.Join(base, "calls/a.ogg"), MimeType: "audio/ogg"}, rows[0])
	assert.Equal(t, Row{Line: 3, DealID: "102", AudioPath: "/abs/b.webm", MimeType: "audio/webm;codecs=opus"}, rows[1])
	assert.Equal(t, 5, rows[2].Line)
	assert.Empty(t, rows[2].DealID)
	assert.Equal(t, "audio/wav", rows[2].MimeType)
}

func TestLoadWithoutDealHeader(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Number", "Recording"},
		{"5", "x.mp3"},
	})
	rows, err := Load(path, logger.Discard().Component("manifest"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "5", rows[0].DealID)
	assert.Equal(t, "audio/mpeg", rows[0].MimeType)
}

func TestLoadErrors(t *testing.T) {
	log := logger.Discard().Component("manifest")

	_, err := Load(filepath.Join(t.TempDir(), "missing.xlsx"), log)
	assert.Error(t, err)

	_, err = Load(writeWorkbook(t, [][]interface{}{{"Deal", "Audio"}}), log)
	assert.EqualError(t, err, "no data rows")

	_, err = Load(writeWorkbook(t, [][]interface{}{{"Deal", "Notes"}, {"1", "x"}}), log)
	assert.ErrorIs(t, err, ErrNoAudioColumn)
}

func testOutcomes() []Outcome {
	return []Outcome{
		{
			Row: Row{Line: 2, DealID: "1", AudioPath: "a.webm"},
			Result: &pipeline.Result{
				DealID:         "1",
				Audio:          pipeline.ArchivedFile{RemoteID: "aid", URL: "https://a"},
				TranscriptFile: pipeline.ArchivedFile{RemoteID: "tid", URL: "https://t"},
				NoteID:         9,
			},
		},
		{
			Row: Row{Line: 3, DealID: "2", AudioPath: "b.webm"},
			Err: &pipeline.StageError{Stage: pipeline.StateNotifying, Err: errors.New("failed to add note (status 401): unauthorized")},
		},
		{Row: Row{Line: 4, AudioPath: "c.webm"}, Err: pipeline.ErrMissingDealID},
		{Row: Row{Line: 5, DealID: "3"}, Err: &pipeline.StageError{Stage: pipeline.StateNotifying, Err: errors.New("timeout")}},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testOutcomes())
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 3, s.Failed)
	assert.Equal(t, map[string]int{"notifying": 2, "validation": 1}, s.FailuresByStage)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteReport(path, testOutcomes()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Results", "Summary"}, f.GetSheetList())

	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Deal ID", rows[0][1])
	assert.Equal(t, []string{"2", "1", "a.webm", "ok", "", "", "aid", "https://a", "tid", "https://t", "9"}, rows[1])
	assert.Equal(t, []string{"3", "2", "b.webm", "failed", "notifying", "failed to add note (status 401): unauthorized"}, rows[2])
	assert.Equal(t, "validation", rows[3][4])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Total", "4"},
		{"Succeeded", "1"},
		{"Failed", "3"},
		{"Failed at notifying", "2"},
		{"Failed at validation", "1"},
	}, summary)
}

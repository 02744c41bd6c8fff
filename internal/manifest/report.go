package manifest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"deal-voice-notes/internal/pipeline"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

// Outcome pairs a manifest row with what the pipeline did with it.
type Outcome struct {
	Row    Row
	Result *pipeline.Result
	Err    error
}

// Stage returns the failed stage, "validation" for rejected input, or "".
func (o Outcome) Stage() string {
	if o.Err == nil {
		return ""
	}
	if pipeline.IsClientError(o.Err) {
		return "validation"
	}
	var se *pipeline.StageError
	if errors.As(o.Err, &se) {
		return string(se.Stage)
	}
	return "unknown"
}

type Summary struct {
	Total           int            `json:"total"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	FailuresByStage map[string]int `json:"failures_by_stage"`
}

func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes), FailuresByStage: map[string]int{}}
	for _, o := range outcomes {
		if o.Err == nil {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.FailuresByStage[o.Stage()]++
	}
	return s
}

var resultsHeader = []interface{}{
	"Line", "Deal ID", "Audio", "Status", "Stage", "Error",
	"Audio File ID", "Audio URL", "Transcript File ID", "Transcript URL", "Note ID",
}

// WriteReport saves a workbook with one Results row per outcome and a
// Summary sheet of totals.
func WriteReport(path string, outcomes []Outcome) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, o := range outcomes {
		row := []interface{}{o.Row.Line, o.Row.DealID, o.Row.AudioPath}
		if o.Err != nil {
			row = append(row, "failed", o.Stage(), o.Err.Error())
		} else {
			r := o.Result
			row = append(row, "ok", "", "",
				r.Audio.RemoteID, r.Audio.URL, r.TranscriptFile.RemoteID, r.TranscriptFile.URL, r.NoteID)
		}
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(resultsSheet, addr, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	s := Summarize(outcomes)
	lines := [][]interface{}{
		{"Total", s.Total},
		{"Succeeded", s.Succeeded},
		{"Failed", s.Failed},
	}
	stages := make([]string, 0, len(s.FailuresByStage))
	for stage := range s.FailuresByStage {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		lines = append(lines, []interface{}{"Failed at " + stage, s.FailuresByStage[stage]})
	}
	for i, line := range lines {
		addr, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, addr, &line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

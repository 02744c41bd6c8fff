package pipeline

import "fmt"

const noteTemplate = "%s\n\nAudio recording: %s\nTranscript file: %s"

// ComposeNote builds the CRM note body: the transcript verbatim followed by
// links to both archived files.
func ComposeNote(dealID, transcript string, audio, text ArchivedFile) Note {
	return Note{
		DealID: dealID,
		Text:   fmt.Sprintf(noteTemplate, transcript, audio.URL, text.URL),
	}
}

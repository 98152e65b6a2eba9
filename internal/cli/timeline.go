package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"cookietrail/services/recorder/internal/session"
	"cookietrail/services/recorder/internal/timeline"
)

type timelineJSON struct {
	SessionID string           `json:"sessionId"`
	TabID     int              `json:"tabId"`
	URL       string           `json:"url"`
	Skipped   int              `json:"skippedEvents"`
	Entries   []timeline.Entry `json:"entries"`
}

// Execute implements the go-flags Commander interface for TimelineCommand.
func (c *TimelineCommand) Execute(args []string) error {
	data, err := afero.ReadFile(fsOrOS(c.fs), c.File)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot session.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	return c.run(outputOrStdout(c.out), snapshot)
}

func (c *TimelineCommand) run(out io.Writer, snapshot session.Snapshot) error {
	events, skipped := snapshot.DecodeEvents()
	entries := timeline.Aggregate(events)

	if wantsJSON(c.globals) {
		return writeJSON(out, timelineJSON{
			SessionID: snapshot.SessionID,
			TabID:     snapshot.TabID,
			URL:       snapshot.URL,
			Skipped:   skipped,
			Entries:   entries,
		})
	}

	fmt.Fprintf(out, "%s  %s\n", snapshot.SessionID, snapshot.URL)
	for _, line := range timeline.Lines(entries) {
		fmt.Fprintln(out, line)
	}
	if skipped > 0 {
		fmt.Fprintf(out, "(%d unrecognized events skipped)\n", skipped)
	}
	return nil
}

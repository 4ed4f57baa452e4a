package output

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/nat80/upnext/pkg/upnext"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// PopupAtResult is the offline popup computation payload.
type PopupAtResult struct {
	TotalTime  int  `json:"total_time"`
	PopupTime  int  `json:"popup_time"`
	PopupCue   bool `json:"popup_cue"`
	DetectTime int  `json:"detect_time"`
}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case upnext.TrackerState:
		return printTrackerState(data)
	case PopupAtResult:
		return printPopupAt(data)
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

func printTrackerState(state upnext.TrackerState) error {
	status := "idle"
	if state.Tracking {
		status = "tracking"
	}
	pterm.DefaultSection.Println("Tracker " + status)

	rows := pterm.TableData{
		{"FIELD", "VALUE"},
		{"filename", state.Filename},
		{"popup at", formatSeconds(state.PopupTime)},
		{"total", formatSeconds(state.TotalTime)},
		{"cue mode", fmt.Sprintf("%t", state.PopupCue)},
		{"detect from", formatSeconds(state.DetectTime)},
		{"played in a row", fmt.Sprintf("%d", state.PlayedInARow)},
	}
	if state.CurrentVideo != nil {
		rows = append(rows, []string{"current", formatVideo(state.CurrentVideo)})
	}
	if state.NextVideo != nil {
		rows = append(rows, []string{"next", formatVideo(state.NextVideo)})
	}
	if state.TS > 0 {
		rows = append(rows, []string{"updated", time.Unix(state.TS, 0).Format(time.RFC3339)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func printPopupAt(result PopupAtResult) error {
	cue := "timed"
	if result.PopupCue {
		cue = "cue"
	}
	pterm.Info.Printfln("popup at %s of %s (%s)",
		formatSeconds(result.PopupTime), formatSeconds(result.TotalTime), cue)
	if result.DetectTime >= 0 {
		pterm.Info.Printfln("credit detection from %s", formatSeconds(result.DetectTime))
	}
	return nil
}

func formatVideo(v *upnext.Video) string {
	if v == nil {
		return ""
	}
	title := v.Title
	if title == "" {
		title = v.Label
	}
	if v.ShowTitle != "" && v.Season.Defined() && v.Episode.Defined() {
		return fmt.Sprintf("%s S%02dE%02d %s", v.ShowTitle, v.Season.Int(), v.Episode.Int(), title)
	}
	return title
}

func formatSeconds(seconds int) string {
	if seconds < 0 {
		return "-"
	}
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

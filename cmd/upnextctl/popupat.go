package main

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nat80/upnext/internal/adapters/output"
	"github.com/nat80/upnext/internal/core"
)

// popupAtCommand computes popup timing offline, without a broker or a
// running daemon. Useful for checking duration-table and chapter rules.
func popupAtCommand() *cobra.Command {
	var (
		total       int
		chaptersRaw string
		queue       bool
		cueMode     string
		duration    int
		noDetect    bool
	)

	cmd := &cobra.Command{
		Use:   "popup-at",
		Short: "Compute popup timing for a given play time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if total <= 0 {
				return errors.New("--total is required and must be positive")
			}

			chapters, err := parseChapters(chaptersRaw)
			if err != nil {
				return err
			}

			settings := core.DefaultSettings()
			settings.EnableQueue = queue
			if noDetect {
				settings.DetectEnabled = false
			}
			if duration > 0 {
				settings.PopupDurations = []core.PopupDuration{{Threshold: 0, Duration: duration}}
			}
			settings.SimCue, err = core.ParseCueMode(cueMode)
			if err != nil {
				return err
			}

			state := core.NewState(settings, core.Deps{}, nil)
			state.SetPopupTime(total, chapters)

			return app.printer.Print(output.PopupAtResult{
				TotalTime:  state.TotalTime(),
				PopupTime:  state.PopupTime(),
				PopupCue:   state.PopupCue(),
				DetectTime: state.DetectTime(),
			})
		},
	}

	cmd.Flags().IntVar(&total, "total", 0, "total play time in seconds")
	cmd.Flags().StringVar(&chaptersRaw, "chapters", "", "comma-separated chapter marks as percentages")
	cmd.Flags().BoolVar(&queue, "queue", false, "apply the auto-queue end offset")
	cmd.Flags().StringVar(&cueMode, "cue", "auto", "cue mode (auto|on|off)")
	cmd.Flags().IntVar(&duration, "duration", 0, "override the popup duration in seconds")
	cmd.Flags().BoolVar(&noDetect, "no-detect", false, "disable the credit detection window")

	return cmd
}

func parseChapters(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	chapters := make([]float64, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errors.New("chapters must be comma-separated numbers")
		}
		chapters = append(chapters, value)
	}
	return chapters, nil
}

package core

import (
	"fmt"
	"strings"
)

// PopupMinDuration is the shortest allowed gap, in seconds, between the
// popup firing and the end of playback.
const PopupMinDuration = 30

// CueMode is the tri-state simulation override for cue-triggered popups.
type CueMode int

const (
	// CueAuto lets the winning timing source decide.
	CueAuto CueMode = iota
	// CueForceOn always treats the popup as cue-triggered.
	CueForceOn
	// CueForceOff never treats the popup as cue-triggered.
	CueForceOff
)

// ParseCueMode maps a config string to a CueMode.
func ParseCueMode(raw string) (CueMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return CueAuto, nil
	case "on":
		return CueForceOn, nil
	case "off":
		return CueForceOff, nil
	default:
		return CueAuto, fmt.Errorf("invalid cue mode %q", raw)
	}
}

// PopupDuration maps a total-time threshold to a popup duration before the
// end of playback. The rule with the largest threshold below the total play
// time wins.
type PopupDuration struct {
	Threshold int
	Duration  int
}

// Settings holds the read-only behavior configuration for a session.
type Settings struct {
	UnwatchedOnly    bool
	NextSeason       bool
	PlayedLimit      int
	EnableQueue      bool
	APIRetryAttempts int

	DetectEnabled           bool
	DetectChapters          bool
	DetectChaptersThreshold float64
	// DetectPeriod scales with runtime: scanning starts
	// period*total/3600 seconds before the popup time.
	DetectPeriod int

	SimCue         CueMode
	PopupDurations []PopupDuration

	// ExternalLookup enables the metadata-lookup fallback paths.
	ExternalLookup bool
}

// DefaultSettings returns the stock behavior configuration.
func DefaultSettings() Settings {
	return Settings{
		NextSeason:              true,
		PlayedLimit:             3,
		APIRetryAttempts:        3,
		DetectEnabled:           true,
		DetectChapters:          true,
		DetectChaptersThreshold: 80,
		DetectPeriod:            300,
		PopupDurations:          []PopupDuration{{Threshold: 0, Duration: 60}},
	}
}

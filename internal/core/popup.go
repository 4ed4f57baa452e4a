package core

import (
	"math"

	"github.com/nat80/upnext/pkg/upnext"
)

// ResolvePopup computes the popup trigger time for a loaded video from the
// ranked sources: chapter-based end-credit detection, plugin-supplied
// timing, then the configured duration table. It returns the popup time in
// seconds from the start of playback and whether the popup is cue-triggered.
//
// totalTime is the effective playback length after any queue race-avoidance
// offset has been applied; data is nil when no plugin payload is active.
func ResolvePopup(totalTime int, data *upnext.PluginData, chapters []float64, cfg Settings) (int, bool) {
	if cfg.DetectChapters {
		if t, ok := finalChapterTime(totalTime, chapters, cfg.DetectChaptersThreshold); ok {
			// Keep the popup until natural end unless sim mode forces a cue.
			return t, cfg.SimCue == CueForceOn
		}
	}

	if data != nil {
		// Some plugins send the time from the video end, others from the
		// start (e.g. streaming services with per-title credit markers).
		duration := data.NotificationTime.Int()
		popupTime := data.NotificationOffset.Int()

		if PopupMinDuration <= duration && duration < totalTime {
			popupTime = totalTime - duration
		}
		if 0 < popupTime && popupTime <= totalTime-PopupMinDuration {
			return popupTime, cfg.SimCue != CueForceOff
		}
		// Plugin timing too close to the end of playback; fall through.
	}

	duration := durationFor(totalTime, cfg.PopupDurations)
	popupTime := totalTime - PopupMinDuration
	if PopupMinDuration <= duration && duration < totalTime {
		popupTime = totalTime - duration
	}
	return popupTime, cfg.SimCue == CueForceOn
}

// durationFor picks, from the configured table, the duration whose threshold
// is the largest one below the total play time. Rules that do not qualify
// contribute nothing; an empty table yields 0.
func durationFor(totalTime int, rules []PopupDuration) int {
	bestThreshold := upnext.Undefined
	duration := 0
	for _, rule := range rules {
		if rule.Threshold < totalTime && rule.Threshold > bestThreshold {
			bestThreshold = rule.Threshold
			duration = rule.Duration
		}
	}
	return duration
}

// finalChapterTime finds the start of the final chapter when it is likely to
// be credits. chapters are percentages of total duration.
//
// Chapters within the last 10 seconds are end-of-video markers, not credits,
// and are discarded first. A single remaining chapter in the last 30% that
// also sits in the last 10% is high-confidence credits; otherwise the last
// remaining chapter qualifies when it is at or past the threshold percent.
func finalChapterTime(totalTime int, chapters []float64, threshold float64) (int, bool) {
	if totalTime <= 0 || len(chapters) < 2 {
		return 0, false
	}

	cutoff := 0.0
	if totalTime > 10 {
		cutoff = float64(totalTime-10) / float64(totalTime) * 100
	}
	valid := make([]float64, 0, len(chapters))
	for _, c := range chapters {
		if c < cutoff {
			valid = append(valid, c)
		}
	}
	if len(valid) < 2 {
		return 0, false
	}

	late := valid[:0:0]
	for _, c := range valid {
		if c >= 70 {
			late = append(late, c)
		}
	}
	if len(late) == 1 && late[0] >= 90 {
		return chapterSeconds(late[0], totalTime), true
	}

	last := valid[len(valid)-1]
	if last >= threshold {
		return chapterSeconds(last, totalTime), true
	}
	return 0, false
}

func chapterSeconds(percent float64, totalTime int) int {
	return int(math.Round(percent / 100 * float64(totalTime)))
}

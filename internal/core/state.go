package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/nat80/upnext/internal/ports"
	"github.com/nat80/upnext/pkg/upnext"
)

// Deps are the collaborator ports a session state operates against. Lookup
// may be nil when the external metadata integration is not wired in.
type Deps struct {
	Library  ports.Library
	Playlist ports.Playlist
	Player   ports.Player
	Queue    ports.Queue
	Signaler ports.Signaler
	Lookup   ports.MetadataLookup
}

// State owns all mutable per-playback-session state and the operations the
// tracking lifecycle drives against it. It is exclusively owned by one
// playback lifecycle; the host delivers events serially, so no locking.
type State struct {
	log      *zap.Logger
	settings Settings
	deps     Deps

	// Latest plugin payload, replaced wholesale on each push.
	data     *upnext.PluginData
	encoding string

	currentItem ItemDetails
	filename    string
	totalTime   int

	nextItem    *ItemDetails
	popupTime   int
	popupCue    bool
	detectTime  int
	shuffleOn   bool

	starting     int
	tracking     bool
	playedInARow int
	queued       bool
	playingNext  bool
	keepPlaying  bool
}

// NewState creates the session state for one playback lifecycle.
func NewState(settings Settings, deps Deps, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	s := &State{log: log, settings: settings, deps: deps}
	s.init()
	return s
}

func (s *State) init() {
	s.data = nil
	s.encoding = upnext.EncodingBase64
	s.currentItem = EmptyItem()
	s.filename = ""
	s.totalTime = 0
	s.nextItem = nil
	s.popupTime = 0
	s.popupCue = false
	s.detectTime = upnext.Undefined
	s.shuffleOn = false
	s.starting = 0
	s.tracking = false
	s.playedInARow = 1
	s.queued = false
	s.playingNext = false
	s.keepPlaying = false
}

// Reset fully reinitializes the session between unrelated playbacks.
func (s *State) Reset() {
	s.log.Debug("state reset")
	s.init()
}

// ResetItem rolls the session over: the speculative next item becomes the
// current one, or the current item is cleared when none was resolved.
func (s *State) ResetItem() {
	if s.nextItem != nil {
		s.currentItem = *s.nextItem
	} else {
		s.currentItem = EmptyItem()
	}
	s.nextItem = nil
}

// CurrentItem returns the item reflecting active playback.
func (s *State) CurrentItem() ItemDetails { return s.currentItem }

// NextItem returns the resolved next item, if any.
func (s *State) NextItem() (ItemDetails, bool) {
	if s.nextItem == nil {
		return ItemDetails{}, false
	}
	return *s.nextItem, true
}

// TrackedFile returns the filename being watched for popup purposes.
func (s *State) TrackedFile() string { return s.filename }

// IsTracking reports whether a file is being watched.
func (s *State) IsTracking() bool { return s.tracking }

// StartTracking begins watching filename, replacing any prior tracked file.
func (s *State) StartTracking(filename string) {
	s.tracking = true
	s.filename = filename
	s.starting = 0
	s.log.Info("tracking enabled", zap.String("filename", filename))
}

// StopTracking stops watching but keeps the last filename.
func (s *State) StopTracking() {
	s.tracking = false
	s.log.Debug("tracking stopped")
}

// ResetTracking stops watching and clears the filename.
func (s *State) ResetTracking() {
	s.tracking = false
	s.filename = ""
	s.log.Debug("tracking reset")
}

// BeginStart bumps the playback-start debounce counter and returns it.
func (s *State) BeginStart() int {
	s.starting++
	return s.starting
}

// Starting returns the current debounce counter.
func (s *State) Starting() int { return s.starting }

// ShuffleOn reports whether shuffled playback is active.
func (s *State) ShuffleOn() bool { return s.shuffleOn }

// SetShuffle records the host shuffle flag; it changes next-item selection.
func (s *State) SetShuffle(on bool) { s.shuffleOn = on }

// PlayedInARow returns the consecutive-play count for the current group.
func (s *State) PlayedInARow() int { return s.playedInARow }

// PlayingNext reports whether the next item has been queued for playback.
func (s *State) PlayingNext() bool { return s.playingNext }

// SetPlayingNext records that playback of the next item has been requested.
func (s *State) SetPlayingNext(v bool) { s.playingNext = v }

// KeepPlaying reports whether playback should continue past the popup.
func (s *State) KeepPlaying() bool { return s.keepPlaying }

// SetKeepPlaying records the keep-playing decision.
func (s *State) SetKeepPlaying(v bool) { s.keepPlaying = v }

// SetQueued records that an item was queued for auto-play.
func (s *State) SetQueued(v bool) { s.queued = v }

// ResetQueue clears any queued auto-play item. At playback start the group
// play count is incremented first: group-continuation counting happens
// before the queue is cleared.
func (s *State) ResetQueue(ctx context.Context, onStart bool) {
	if !s.queued {
		return
	}
	if onStart {
		s.playedInARow++
		s.log.Debug("group playcount incremented for queued item",
			zap.Int("played_in_a_row", s.playedInARow))
	}
	s.queued = s.deps.Queue.Reset(ctx)
}

// TotalTime returns the total play time of the tracked file in seconds.
func (s *State) TotalTime() int { return s.totalTime }

// PopupTime returns the second of playback at which the popup fires.
func (s *State) PopupTime() int { return s.popupTime }

// PopupCue reports whether the popup is cue-triggered rather than timed.
func (s *State) PopupCue() bool { return s.popupCue }

// DetectTime returns the second at which end-credit scanning should begin,
// or upnext.Undefined when scanning is not wanted.
func (s *State) DetectTime() int { return s.detectTime }

// SetPluginData replaces the companion plugin payload wholesale. A nil
// payload clears it.
func (s *State) SetPluginData(data *upnext.PluginData, encoding string) {
	if data == nil {
		s.data = nil
		s.encoding = ""
		return
	}
	data.Normalize()
	s.data = data
	if encoding == "" {
		encoding = upnext.EncodingBase64
	}
	s.encoding = encoding
	s.log.Debug("plugin data updated",
		zap.Bool("has_next", data.NextVideo != nil),
		zap.Bool("has_current", data.CurrentVideo != nil))
}

// PluginData returns the active plugin payload, if any.
func (s *State) PluginData() *upnext.PluginData { return s.data }

// PluginType classifies the active plugin payload. ok is false whenever no
// payload has been pushed this session.
func (s *State) PluginType(playlistNext bool) (PluginType, bool) {
	if s.data == nil {
		return PluginType{}, false
	}
	t := PluginType{}
	if s.data.PlayDirect {
		t.Direct = true
	} else if playlistNext {
		t.Playlist = true
	}
	if s.data.PlayURL != "" {
		t.PlayURL = true
	} else if len(s.data.PlayInfo) > 0 {
		t.PlayInfo = true
	}
	return t, true
}

// GetNext resolves what plays next, by source precedence: companion plugin
// payload, then the host playlist, then the host library. It stores and
// returns the resolved item; ok is false when nothing was found.
func (s *State) GetNext(ctx context.Context) (ItemDetails, bool) {
	nextPosition, err := s.deps.Playlist.Position(ctx, 1)
	if err != nil {
		nextPosition = 0
	}
	pluginType, hasPlugin := s.PluginType(nextPosition > 0)

	var nextVideo *upnext.Video
	var source string
	position := upnext.Undefined

	switch {
	case hasPlugin:
		nextVideo = s.data.NextVideo
		source = pluginType.SourceName()
		if s.settings.UnwatchedOnly && nextVideo != nil && nextVideo.Playcount.Int() > 0 {
			nextVideo = nil
		}

	case nextPosition > 0 && !s.shuffleOn:
		video, err := s.deps.Playlist.ItemAt(ctx, nextPosition, s.settings.UnwatchedOnly)
		if err == nil && !video.Empty() {
			nextVideo = &video
			position = nextPosition
		}
		source = SourcePlaylist

	default:
		video, err := s.deps.Library.NextFromLibrary(ctx, s.currentItem.Video, ports.NextOptions{
			NextSeason:    s.settings.NextSeason,
			UnwatchedOnly: s.settings.UnwatchedOnly,
			Random:        s.shuffleOn,
		})
		if err == nil && !video.Empty() {
			nextVideo = &video
		}
		source = SourceLibrary

		// Escalate to the "Still Watching?" prompt when the next item is a
		// movie, or a non-shuffled rollover where the specials marker and
		// the two seasons are three distinct values.
		if nextVideo != nil && (upnext.ParseKind(nextVideo.Type) == upnext.KindMovie ||
			(!s.shuffleOn && distinctCount(
				upnext.SpecialsSeason,
				nextVideo.Season.Int(),
				s.currentItem.Video.Season.Int(),
			) == 3)) {
			s.playedInARow = s.settings.PlayedLimit
		}
	}

	if nextVideo == nil {
		return ItemDetails{}, false
	}
	item := NewItemDetails(*nextVideo, source, position)
	s.nextItem = &item
	return item, true
}

func distinctCount(values ...int) int {
	seen := make(map[int]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// SetPopupTime computes and stores the popup timing for the loaded video
// from the ranked sources, then derives the end-credit detection window.
func (s *State) SetPopupTime(totalTime int, chapters []float64) {
	s.totalTime = totalTime

	// 1s offset from the end to avoid racing the host playlist handler.
	effective := totalTime
	if s.settings.EnableQueue {
		effective--
	}

	s.popupTime, s.popupCue = ResolvePopup(effective, s.data, chapters, s.settings)
	s.setDetectTime()

	s.log.Info("popup scheduled",
		zap.Int("popup_time", s.popupTime),
		zap.Int("total_time", s.totalTime),
		zap.Bool("cue", s.popupCue))
}

// SetDetectedPopupTime overrides popup timing with an externally detected
// value; non-zero detected times win over plugin data and settings.
func (s *State) SetDetectedPopupTime(detected int) {
	popupTime := 0
	if detected > 0 {
		popupTime = detected
		s.popupCue = s.settings.SimCue != CueForceOff
	}
	s.popupTime = popupTime
	s.setDetectTime()

	s.log.Info("popup scheduled from detection",
		zap.Int("popup_time", s.popupTime),
		zap.Int("total_time", s.totalTime),
		zap.Bool("cue", s.popupCue))
}

// setDetectTime derives when end-credit scanning should begin. A plugin cue
// point replaces scanning entirely, as does disabling detection.
func (s *State) setDetectTime() {
	if s.popupCue || !s.settings.DetectEnabled {
		s.detectTime = upnext.Undefined
		return
	}
	detect := s.popupTime - s.settings.DetectPeriod*s.totalTime/3600
	if detect < 0 {
		detect = 0
	}
	s.detectTime = detect
}

// ProcessNowPlaying resolves what is currently playing from the plugin
// payload, the host playlist, or the host library, in that order. On a
// group change the consecutive-play count resets to 1. The current item is
// replaced only when a new item was resolved.
func (s *State) ProcessNowPlaying(ctx context.Context, playlistPosition int, pluginType *PluginType, ev upnext.PlayerEvent) ItemDetails {
	var newVideo *upnext.Video
	var source string

	switch {
	case pluginType != nil:
		newVideo = s.pluginNowPlaying(ctx, ev)
		source = pluginType.SourceName()

	case playlistPosition > 0:
		video, err := s.deps.Playlist.ItemAt(ctx, playlistPosition, false)
		if err == nil && !video.Empty() {
			newVideo = &video
		}
		source = SourcePlaylist

	default:
		if video, ok := s.libraryNowPlaying(ctx, ev); ok {
			newVideo = &video
			source = SourceLibrary
		}
	}

	if newVideo != nil && source != "" {
		newItem := NewItemDetails(*newVideo, source, playlistPosition)

		if newItem.GroupName != s.currentItem.GroupName {
			s.log.Debug("group change, playcount reset",
				zap.String("from", s.currentItem.GroupName),
				zap.String("to", newItem.GroupName))
			s.playedInARow = 1
		}
		s.currentItem = newItem
	}
	return s.currentItem
}

// pluginNowPlaying takes the current video from the plugin payload, falling
// back to the live player when the plugin did not provide one.
func (s *State) pluginNowPlaying(ctx context.Context, ev upnext.PlayerEvent) *upnext.Video {
	if s.data == nil {
		return nil
	}
	if s.data.CurrentVideo != nil {
		return s.data.CurrentVideo
	}
	video, err := s.deps.Player.NowPlaying(ctx, upnext.ParseKind(ev.Item.Type), s.settings.APIRetryAttempts)
	if err != nil || video.Empty() {
		return nil
	}
	return &video
}

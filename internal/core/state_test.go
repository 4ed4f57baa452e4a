package core

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/nat80/upnext/internal/ports"
	"github.com/nat80/upnext/pkg/upnext"
)

type fakeLibrary struct {
	video    upnext.Video
	videoErr error
	next     upnext.Video
	nextErr  error
	nextOpts ports.NextOptions
	showID   int
	showErr  error
	episode  upnext.Video
	epErr    error
}

func (f *fakeLibrary) VideoByID(_ context.Context, _ upnext.MediaKind, _ int) (upnext.Video, error) {
	return f.video, f.videoErr
}

func (f *fakeLibrary) NextFromLibrary(_ context.Context, _ upnext.Video, opts ports.NextOptions) (upnext.Video, error) {
	f.nextOpts = opts
	return f.next, f.nextErr
}

func (f *fakeLibrary) ShowIDByTitle(_ context.Context, _ string) (int, error) {
	if f.showErr != nil {
		return upnext.Undefined, f.showErr
	}
	return f.showID, nil
}

func (f *fakeLibrary) EpisodeByIndex(_ context.Context, _, _, _ int) (upnext.Video, error) {
	return f.episode, f.epErr
}

type fakePlaylist struct {
	position int
	posErr   error
	item     upnext.Video
	itemErr  error
}

func (f *fakePlaylist) Position(_ context.Context, _ int) (int, error) {
	return f.position, f.posErr
}

func (f *fakePlaylist) ItemAt(_ context.Context, _ int, _ bool) (upnext.Video, error) {
	return f.item, f.itemErr
}

type fakePlayer struct {
	now      upnext.Video
	nowErr   error
	elapsed  float64
	total    float64
	chapters []float64
}

func (f *fakePlayer) NowPlaying(_ context.Context, _ upnext.MediaKind, _ int) (upnext.Video, error) {
	return f.now, f.nowErr
}

func (f *fakePlayer) PlayTime(_ context.Context) (float64, float64, error) {
	return f.elapsed, f.total, nil
}

func (f *fakePlayer) ChapterMarks(_ context.Context) ([]float64, error) {
	return f.chapters, nil
}

type fakeQueue struct {
	resets int
	result bool
}

func (f *fakeQueue) Reset(_ context.Context) bool {
	f.resets++
	return f.result
}

type fakeSignaler struct {
	sender string
	data   upnext.PluginData
	calls  int
}

func (f *fakeSignaler) SendSignal(_ context.Context, sender string, data upnext.PluginData) error {
	f.sender = sender
	f.data = data
	f.calls++
	return nil
}

type fakeLookup struct {
	available  bool
	id         string
	idErr      error
	details    upnext.LookupItem
	detailsErr error
	episodes   []upnext.LookupItem
	epsErr     error
	movie      upnext.LookupItem
	movieErr   error
}

func (f *fakeLookup) Available() bool { return f.available }

func (f *fakeLookup) LookupID(_ context.Context, _ string, _ string, _, _, _ int) (string, error) {
	return f.id, f.idErr
}

func (f *fakeLookup) Details(_ context.Context, _ string, _ string, _, _ int) (upnext.LookupItem, error) {
	return f.details, f.detailsErr
}

func (f *fakeLookup) NextEpisodes(_ context.Context, _ string, _, _ int) ([]upnext.LookupItem, error) {
	return f.episodes, f.epsErr
}

func (f *fakeLookup) NextMovie(_ context.Context, _ string) (upnext.LookupItem, error) {
	return f.movie, f.movieErr
}

type testDeps struct {
	library  *fakeLibrary
	playlist *fakePlaylist
	player   *fakePlayer
	queue    *fakeQueue
	signaler *fakeSignaler
	lookup   *fakeLookup
}

func newTestState(cfg Settings) (*State, *testDeps) {
	deps := &testDeps{
		library:  &fakeLibrary{showID: upnext.Undefined},
		playlist: &fakePlaylist{},
		player:   &fakePlayer{},
		queue:    &fakeQueue{},
		signaler: &fakeSignaler{},
		lookup:   &fakeLookup{},
	}
	state := NewState(cfg, Deps{
		Library:  deps.library,
		Playlist: deps.playlist,
		Player:   deps.player,
		Queue:    deps.queue,
		Signaler: deps.signaler,
		Lookup:   deps.lookup,
	}, zap.NewNop())
	return state, deps
}

func episodeVideo(showID, season, episode int, showTitle string) upnext.Video {
	v := upnext.NewVideo()
	v.Type = "episode"
	v.Title = "Episode " + showTitle
	v.ShowTitle = showTitle
	v.TVShowID = upnext.FlexInt(showID)
	v.Season = upnext.FlexInt(season)
	v.Episode = upnext.FlexInt(episode)
	v.EpisodeID = upnext.FlexInt(1000*showID + 100*season + episode)
	return v
}

func TestTrackingStateMachine(t *testing.T) {
	state, _ := newTestState(DefaultSettings())

	state.StartTracking("/video/show/s01e01.mkv")
	if !state.IsTracking() || state.TrackedFile() != "/video/show/s01e01.mkv" {
		t.Fatalf("expected tracking with filename")
	}

	state.StopTracking()
	if state.IsTracking() {
		t.Fatalf("expected tracking stopped")
	}
	if state.TrackedFile() != "/video/show/s01e01.mkv" {
		t.Fatalf("expected filename preserved after stop")
	}

	state.StartTracking("/video/show/s01e02.mkv")
	state.ResetTracking()
	if state.IsTracking() || state.TrackedFile() != "" {
		t.Fatalf("expected tracking and filename cleared")
	}
}

func TestResetQueueIncrementsOnStart(t *testing.T) {
	state, deps := newTestState(DefaultSettings())
	ctx := context.Background()

	state.ResetQueue(ctx, true)
	if deps.queue.resets != 0 {
		t.Fatalf("expected no reset without queued item")
	}

	state.SetQueued(true)
	state.ResetQueue(ctx, true)
	if deps.queue.resets != 1 {
		t.Fatalf("expected queue reset")
	}
	if state.PlayedInARow() != 2 {
		t.Fatalf("expected playcount 2, got %d", state.PlayedInARow())
	}

	state.SetQueued(true)
	state.ResetQueue(ctx, false)
	if state.PlayedInARow() != 2 {
		t.Fatalf("expected playcount unchanged off start")
	}
}

func TestPluginTypeAbsentWithoutPayload(t *testing.T) {
	state, _ := newTestState(DefaultSettings())
	if _, ok := state.PluginType(true); ok {
		t.Fatalf("expected no plugin type without payload")
	}
}

func TestPluginTypeCategories(t *testing.T) {
	state, _ := newTestState(DefaultSettings())

	cases := []struct {
		name         string
		data         upnext.PluginData
		playlistNext bool
		want         PluginType
		source       string
	}{
		{
			name:   "direct with url",
			data:   upnext.PluginData{PlayDirect: true, PlayURL: "plugin://x/play"},
			want:   PluginType{Direct: true, PlayURL: true},
			source: "plugin_direct_play_url",
		},
		{
			name:         "playlist with info",
			data:         upnext.PluginData{PlayInfo: map[string]any{"id": 1}},
			playlistNext: true,
			want:         PluginType{Playlist: true, PlayInfo: true},
			source:       "plugin_playlist_play_info",
		},
		{
			name:   "url only",
			data:   upnext.PluginData{PlayURL: "plugin://x/play"},
			want:   PluginType{PlayURL: true},
			source: "plugin_play_url",
		},
		{
			name:   "info only",
			data:   upnext.PluginData{PlayInfo: map[string]any{"id": 1}},
			want:   PluginType{PlayInfo: true},
			source: "plugin_play_info",
		},
	}
	for _, tc := range cases {
		data := tc.data
		state.SetPluginData(&data, "")
		got, ok := state.PluginType(tc.playlistNext)
		if !ok {
			t.Fatalf("%s: expected plugin type", tc.name)
		}
		if got != tc.want {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
		if got.SourceName() != tc.source {
			t.Fatalf("%s: source %q", tc.name, got.SourceName())
		}
	}
}

func TestGetNextPrefersPluginData(t *testing.T) {
	state, deps := newTestState(DefaultSettings())
	ctx := context.Background()

	next := episodeVideo(5, 1, 2, "Show")
	state.SetPluginData(&upnext.PluginData{NextVideo: &next, PlayURL: "plugin://x/play"}, "")
	deps.playlist.position = 3
	deps.playlist.item = episodeVideo(9, 9, 9, "Playlist Show")

	item, ok := state.GetNext(ctx)
	if !ok {
		t.Fatalf("expected next item")
	}
	if item.Source != "plugin_playlist_play_url" {
		t.Fatalf("unexpected source %q", item.Source)
	}
	if item.Video.EpisodeID != next.EpisodeID {
		t.Fatalf("expected plugin next video")
	}
}

func TestGetNextPluginUnwatchedOnly(t *testing.T) {
	cfg := DefaultSettings()
	cfg.UnwatchedOnly = true
	state, _ := newTestState(cfg)

	next := episodeVideo(5, 1, 2, "Show")
	next.Playcount = 2
	state.SetPluginData(&upnext.PluginData{NextVideo: &next, PlayURL: "plugin://x/play"}, "")

	if _, ok := state.GetNext(context.Background()); ok {
		t.Fatalf("expected watched plugin item discarded")
	}
}

func TestGetNextFromPlaylist(t *testing.T) {
	state, deps := newTestState(DefaultSettings())
	deps.playlist.position = 4
	deps.playlist.item = episodeVideo(9, 2, 3, "Playlist Show")

	item, ok := state.GetNext(context.Background())
	if !ok {
		t.Fatalf("expected next item")
	}
	if item.Source != SourcePlaylist {
		t.Fatalf("unexpected source %q", item.Source)
	}
	if item.Position != 4 {
		t.Fatalf("expected playlist position recorded, got %d", item.Position)
	}
}

func TestGetNextShuffleSkipsPlaylist(t *testing.T) {
	state, deps := newTestState(DefaultSettings())
	deps.playlist.position = 4
	deps.playlist.item = episodeVideo(9, 2, 3, "Playlist Show")
	deps.library.next = episodeVideo(7, 1, 1, "Library Show")
	state.SetShuffle(true)

	item, ok := state.GetNext(context.Background())
	if !ok {
		t.Fatalf("expected next item")
	}
	if item.Source != SourceLibrary {
		t.Fatalf("expected library source under shuffle, got %q", item.Source)
	}
	if !deps.library.nextOpts.Random {
		t.Fatalf("expected random selection requested")
	}
}

func TestGetNextMovieEscalatesStillWatching(t *testing.T) {
	cfg := DefaultSettings()
	cfg.PlayedLimit = 5
	state, deps := newTestState(cfg)

	movie := upnext.NewVideo()
	movie.Type = "movie"
	movie.Title = "Sequel"
	movie.MovieID = 12
	deps.library.next = movie

	if _, ok := state.GetNext(context.Background()); !ok {
		t.Fatalf("expected next item")
	}
	if state.PlayedInARow() != 5 {
		t.Fatalf("expected escalation to played limit, got %d", state.PlayedInARow())
	}
}

func TestGetNextSeasonChangeEscalation(t *testing.T) {
	cfg := DefaultSettings()
	cfg.PlayedLimit = 5

	cases := []struct {
		name            string
		currentSeason   int
		nextSeason      int
		expectEscalated bool
	}{
		{"same season", 2, 2, false},
		{"rollover to specials", 2, 0, false},
		{"rollover from specials", 0, 1, false},
		{"true season change", 1, 2, true},
	}
	for _, tc := range cases {
		state, deps := newTestState(cfg)
		ctx := context.Background()

		current := episodeVideo(7, tc.currentSeason, 8, "Show")
		deps.playlist.position = 1
		deps.playlist.item = current
		state.ProcessNowPlaying(ctx, 1, nil, upnext.PlayerEvent{Item: upnext.NewVideo()})

		deps.playlist.position = 0
		deps.library.next = episodeVideo(7, tc.nextSeason, 1, "Show")

		if _, ok := state.GetNext(ctx); !ok {
			t.Fatalf("%s: expected next item", tc.name)
		}
		escalated := state.PlayedInARow() == cfg.PlayedLimit
		if escalated != tc.expectEscalated {
			t.Fatalf("%s: escalated=%v", tc.name, escalated)
		}
	}
}

func TestProcessNowPlayingGroupChangeResetsPlaycount(t *testing.T) {
	state, deps := newTestState(DefaultSettings())
	ctx := context.Background()

	deps.playlist.item = episodeVideo(7, 1, 1, "Show A")
	state.ProcessNowPlaying(ctx, 1, nil, upnext.PlayerEvent{Item: upnext.NewVideo()})

	state.SetQueued(true)
	state.ResetQueue(ctx, true)
	state.SetQueued(true)
	state.ResetQueue(ctx, true)
	if state.PlayedInARow() != 3 {
		t.Fatalf("expected playcount 3, got %d", state.PlayedInARow())
	}

	// Same group: count preserved.
	deps.playlist.item = episodeVideo(7, 1, 2, "Show A")
	state.ProcessNowPlaying(ctx, 2, nil, upnext.PlayerEvent{Item: upnext.NewVideo()})
	if state.PlayedInARow() != 3 {
		t.Fatalf("expected playcount preserved, got %d", state.PlayedInARow())
	}

	// New show: reset to exactly 1.
	deps.playlist.item = episodeVideo(8, 1, 1, "Show B")
	state.ProcessNowPlaying(ctx, 3, nil, upnext.PlayerEvent{Item: upnext.NewVideo()})
	if state.PlayedInARow() != 1 {
		t.Fatalf("expected playcount reset to 1, got %d", state.PlayedInARow())
	}
}

func TestProcessNowPlayingKeepsCurrentOnFailure(t *testing.T) {
	state, deps := newTestState(DefaultSettings())
	ctx := context.Background()

	deps.playlist.item = episodeVideo(7, 1, 1, "Show A")
	first := state.ProcessNowPlaying(ctx, 1, nil, upnext.PlayerEvent{Item: upnext.NewVideo()})
	if first.Empty() {
		t.Fatalf("expected item resolved")
	}

	deps.playlist.item = upnext.NewVideo()
	deps.playlist.itemErr = ports.ErrNotFound
	second := state.ProcessNowPlaying(ctx, 2, nil, upnext.PlayerEvent{Item: upnext.NewVideo()})
	if second.GroupName != first.GroupName {
		t.Fatalf("expected current item unchanged on failure")
	}
}

func TestSetPopupTimeDerivesDetectWindow(t *testing.T) {
	cfg := DefaultSettings()
	cfg.DetectChapters = false
	cfg.DetectPeriod = 300
	cfg.PopupDurations = []PopupDuration{{Threshold: 0, Duration: 180}}
	state, _ := newTestState(cfg)

	state.SetPopupTime(1800, nil)
	if state.PopupTime() != 1620 {
		t.Fatalf("expected popup at 1620, got %d", state.PopupTime())
	}
	// Scan window scales with runtime: 300 * 1800 / 3600 = 150s early.
	if state.DetectTime() != 1470 {
		t.Fatalf("expected detect time 1470, got %d", state.DetectTime())
	}
}

func TestSetPopupTimeQueueOffset(t *testing.T) {
	cfg := DefaultSettings()
	cfg.DetectChapters = false
	cfg.EnableQueue = true
	cfg.PopupDurations = []PopupDuration{{Threshold: 0, Duration: 180}}
	state, _ := newTestState(cfg)

	state.SetPopupTime(1800, nil)
	if state.PopupTime() != 1619 {
		t.Fatalf("expected 1s race offset, got %d", state.PopupTime())
	}
	if state.TotalTime() != 1800 {
		t.Fatalf("expected total time unadjusted")
	}
}

func TestSetPopupTimeCueDisablesDetect(t *testing.T) {
	cfg := DefaultSettings()
	cfg.DetectChapters = false
	state, _ := newTestState(cfg)

	data := upnext.PluginData{NotificationOffset: 1000}
	state.SetPluginData(&data, "")
	state.SetPopupTime(1200, nil)
	if !state.PopupCue() {
		t.Fatalf("expected cue from plugin timing")
	}
	if state.DetectTime() != upnext.Undefined {
		t.Fatalf("expected detect time unset under cue")
	}
}

func TestSetDetectedPopupTimeOverrides(t *testing.T) {
	cfg := DefaultSettings()
	cfg.DetectChapters = false
	state, _ := newTestState(cfg)

	data := upnext.PluginData{NotificationOffset: 1000}
	state.SetPluginData(&data, "")
	state.SetPopupTime(1200, nil)

	state.SetDetectedPopupTime(1111)
	if state.PopupTime() != 1111 {
		t.Fatalf("detected time must win, got %d", state.PopupTime())
	}
	if !state.PopupCue() {
		t.Fatalf("expected cue enabled for detected time")
	}

	cfg.SimCue = CueForceOff
	state, _ = newTestState(cfg)
	state.SetPopupTime(1200, nil)
	state.SetDetectedPopupTime(1111)
	if state.PopupCue() {
		t.Fatalf("expected cue forced off")
	}
}

func TestResetItemRollsOver(t *testing.T) {
	state, deps := newTestState(DefaultSettings())
	ctx := context.Background()

	deps.playlist.item = episodeVideo(7, 1, 1, "Show A")
	state.ProcessNowPlaying(ctx, 1, nil, upnext.PlayerEvent{Item: upnext.NewVideo()})
	deps.playlist.position = 2
	deps.playlist.item = episodeVideo(7, 1, 2, "Show A")
	next, ok := state.GetNext(ctx)
	if !ok {
		t.Fatalf("expected next item")
	}

	state.ResetItem()
	if state.CurrentItem().Video.EpisodeID != next.Video.EpisodeID {
		t.Fatalf("expected next item promoted to current")
	}
	if _, ok := state.NextItem(); ok {
		t.Fatalf("expected next item cleared")
	}

	state.ResetItem()
	if !state.CurrentItem().Empty() {
		t.Fatalf("expected current cleared without next item")
	}
}

package core

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nat80/upnext/pkg/upnext"
)

// libraryNowPlaying determines the true library-backed item for playback
// the host reported, which may be incomplete when a plugin is rendering.
// All failure paths yield no-data; nothing here returns an error.
func (s *State) libraryNowPlaying(ctx context.Context, ev upnext.PlayerEvent) (upnext.Video, bool) {
	var current upnext.Video
	if ev.Item.ID.Int() > 0 && ev.Item.Type != "" {
		video, err := s.deps.Library.VideoByID(ctx, upnext.ParseKind(ev.Item.Type), ev.Item.ID.Int())
		if err != nil {
			return upnext.Video{}, false
		}
		current = video
	} else {
		video, err := s.deps.Player.NowPlaying(ctx, upnext.ParseKind(ev.Item.Type), s.settings.APIRetryAttempts)
		if err != nil || video.Empty() {
			return upnext.Video{}, false
		}
		current = video
	}

	kind := upnext.ParseKind(current.Type)
	tmdbID := ""
	if _, args, ok := parsePluginURL(current.PluginPath()); ok {
		tmdbID = args.Get("tmdb_id")
		if kind == upnext.KindUnknown {
			switch args.Get("tmdb_type") {
			case "movie":
				kind = upnext.KindMovie
				current.Type = string(upnext.KindMovie)
			case "tv", "episode":
				kind = upnext.KindEpisode
				current.Type = string(upnext.KindEpisode)
			}
		}
	}

	if kind == upnext.KindMovie {
		return s.movieNowPlaying(ctx, current, tmdbID)
	}
	return s.episodeNowPlaying(ctx, current, ev)
}

// movieNowPlaying accepts library movies that belong to a valid set, and
// otherwise hands over to the external lookup when enabled.
func (s *State) movieNowPlaying(ctx context.Context, current upnext.Video, tmdbID string) (upnext.Video, bool) {
	if current.SetName != "" && current.SetID.Int() > 0 {
		return current, true
	}
	if !s.lookupEnabled() {
		return upnext.Video{}, false
	}

	if tmdbID == "" && current.Title != "" {
		year := upnext.Undefined
		if current.Year.Defined() {
			year = current.Year.Int()
		}
		id, err := s.deps.Lookup.LookupID(ctx, "movie", current.Title, year, upnext.Undefined, upnext.Undefined)
		if err == nil {
			tmdbID = id
		}
	}
	if tmdbID == "" {
		return upnext.Video{}, false
	}
	return s.lookupMovieNowPlaying(ctx, current, tmdbID)
}

// episodeNowPlaying backfills live-player gaps, applies untrusted plugin URL
// overrides, and resolves the episode against the library.
func (s *State) episodeNowPlaying(ctx context.Context, current upnext.Video, ev upnext.PlayerEvent) (upnext.Video, bool) {
	// Resolved listitems can lose infotags that were set at resolve time.
	// Backfill from the original player notification payload.
	current = backfillVideo(current, ev.Item)

	title := current.ShowTitle
	season := current.Season.Int()
	episode := current.Episode.Int()
	if title == "" || season == upnext.Undefined || episode == upnext.Undefined {
		if title == "" {
			title = ev.Item.ShowTitle
		}
		if season == upnext.Undefined {
			season = ev.Item.Season.Int()
		}
		if episode == upnext.Undefined {
			episode = ev.Item.Episode.Int()
		}
	}
	if title == "" || season == upnext.Undefined || episode == upnext.Undefined {
		return upnext.Video{}, false
	}

	current, foundPluginURL, addonID := applyPluginURLOverrides(current)
	if current.Season.Defined() {
		season = current.Season.Int()
	}
	if current.Episode.Defined() {
		episode = current.Episode.Int()
	}

	showID := current.TVShowID.Int()
	if showID == upnext.Undefined || foundPluginURL {
		// Plugins can report a plugin-specific show id; a title lookup in
		// the host library wins over it.
		id, err := s.deps.Library.ShowIDByTitle(ctx, title)
		if err != nil {
			id = upnext.Undefined
		}
		showID = id
	}
	if showID == upnext.Undefined {
		if s.lookupEnabled() {
			return s.lookupTVNowPlaying(ctx, current, title, season, episode, addonID)
		}
		return upnext.Video{}, false
	}
	current.TVShowID = upnext.FlexInt(showID)

	episodeID := current.EpisodeID.Int()
	if episodeID == upnext.Undefined {
		episodeID = current.ID.Int()
	}
	if episodeID == upnext.Undefined {
		details, err := s.deps.Library.EpisodeByIndex(ctx, showID, season, episode)
		if err != nil || details.Empty() {
			return upnext.Video{}, false
		}
		current = overlayVideo(current, details)
	} else {
		current.EpisodeID = upnext.FlexInt(episodeID)
	}
	return current, true
}

// applyPluginURLOverrides scans mediapath then file for a plugin URL
// distinct from the one already seen. The first distinct URL from an
// untrusted addon wins and its query parameters override the video fields;
// trusted addon URLs only have their parameters merged.
func applyPluginURLOverrides(current upnext.Video) (upnext.Video, bool, string) {
	trusted := map[string]bool{
		upnext.AddonID:               true,
		upnext.MetadataHelperAddonID: true,
	}

	seen := ""
	foundAddonID := ""
	found := false
	for _, raw := range []string{current.MediaPath, current.File} {
		if raw == seen || !strings.HasPrefix(raw, "plugin://") {
			continue
		}
		seen = raw
		addonID, args, ok := parsePluginURL(raw)
		if !ok {
			continue
		}
		found = true
		if !trusted[addonID] {
			foundAddonID = addonID
			current = applyURLParams(current, args)
			break
		}
		current = applyURLParams(current, args)
	}
	return current, found, foundAddonID
}

func applyURLParams(current upnext.Video, args url.Values) upnext.Video {
	if v := cleanParam(args.Get("player")); v != "" {
		current.Player = v
	}
	if v := cleanParam(args.Get("tmdb_id")); v != "" {
		current.TMDBID = upnext.FlexString(v)
	}
	if v := cleanParam(args.Get("season")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			current.Season = upnext.FlexInt(n)
		}
	}
	if v := cleanParam(args.Get("episode")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			current.Episode = upnext.FlexInt(n)
		}
	}
	return current
}

func cleanParam(v string) string {
	if v == "" || v == upnext.Unknown || v == strconv.Itoa(upnext.Undefined) {
		return ""
	}
	return v
}

// backfillVideo fills empty, unknown or undefined fields of current from
// the player notification item.
func backfillVideo(current, notification upnext.Video) upnext.Video {
	if ignorable(current.Title) && !ignorable(notification.Title) {
		current.Title = notification.Title
	}
	if ignorable(current.ShowTitle) && !ignorable(notification.ShowTitle) {
		current.ShowTitle = notification.ShowTitle
	}
	if !current.Season.Defined() && notification.Season.Defined() {
		current.Season = notification.Season
	}
	if !current.Episode.Defined() && notification.Episode.Defined() {
		current.Episode = notification.Episode
	}
	if !current.TVShowID.Defined() && notification.TVShowID.Defined() {
		current.TVShowID = notification.TVShowID
	}
	if current.TMDBID == "" && notification.TMDBID != "" {
		current.TMDBID = notification.TMDBID
	}
	if ignorable(current.Player) && !ignorable(notification.Player) {
		current.Player = notification.Player
	}
	return current
}

func ignorable(v string) bool {
	return v == "" || v == upnext.Unknown
}

func (s *State) lookupEnabled() bool {
	return s.settings.ExternalLookup && s.deps.Lookup != nil && s.deps.Lookup.Available()
}

// lookupTVNowPlaying resolves the episode through the external lookup and
// hands the result to a companion UI via a cross-addon signal. It never
// produces a current item itself: the companion owns plugin-backed TV
// playback once signalled.
func (s *State) lookupTVNowPlaying(ctx context.Context, current upnext.Video, title string, season, episode int, addonID string) (upnext.Video, bool) {
	tmdbID := current.TMDBID.String()
	if tmdbID == "" {
		id, err := s.deps.Lookup.LookupID(ctx, "tv", title, upnext.Undefined, season, episode)
		if err != nil || id == "" {
			return upnext.Video{}, false
		}
		tmdbID = id
	}

	details, err := s.deps.Lookup.Details(ctx, "tv", tmdbID, season, episode)
	if err != nil {
		details = upnext.LookupItem{}
	}
	episodes, err := s.deps.Lookup.NextEpisodes(ctx, tmdbID, season, episode)
	if err != nil || len(episodes) == 0 {
		return upnext.Video{}, false
	}

	player := current.Player
	if player == "" {
		player = addonID
	}

	currentVideo := details.Video()
	currentVideo.TMDBID = upnext.FlexString(tmdbID)
	currentVideo.ShowTitle = title
	nextVideo := episodes[0].Video()
	nextVideo.TMDBID = upnext.FlexString(tmdbID)
	nextVideo.ShowTitle = title

	s.sendSignal(ctx, upnext.PluginData{
		CurrentVideo: &currentVideo,
		NextVideo:    &nextVideo,
		PlayInfo:     map[string]any{},
		Player:       player,
	})
	return upnext.Video{}, false
}

// lookupMovieNowPlaying resolves a movie and its follow-up through the
// external lookup, signals the companion UI, and returns the enriched
// current movie.
func (s *State) lookupMovieNowPlaying(ctx context.Context, current upnext.Video, tmdbID string) (upnext.Video, bool) {
	details, err := s.deps.Lookup.Details(ctx, "movie", tmdbID, upnext.Undefined, upnext.Undefined)
	if err != nil || details.TMDBID == "" {
		return upnext.Video{}, false
	}
	next, err := s.deps.Lookup.NextMovie(ctx, tmdbID)
	if err != nil || next.TMDBID == "" {
		return upnext.Video{}, false
	}

	currentVideo := details.Video()
	currentVideo.Type = string(upnext.KindMovie)
	currentVideo.TMDBID = upnext.FlexString(tmdbID)
	nextVideo := next.Video()
	nextVideo.Type = string(upnext.KindMovie)

	playURL := fmt.Sprintf("plugin://%s/?info=play&tmdb_type=movie&tmdb_id=%s",
		upnext.MetadataHelperAddonID, url.QueryEscape(next.TMDBID))

	s.sendSignal(ctx, upnext.PluginData{
		CurrentVideo: &currentVideo,
		NextVideo:    &nextVideo,
		PlayURL:      playURL,
	})

	merged := current
	merged.Type = string(upnext.KindMovie)
	if details.Title != "" {
		merged.Title = details.Title
	} else if merged.Title == "" {
		merged.Title = current.Label
	}
	merged.TMDBID = upnext.FlexString(tmdbID)
	return merged, true
}

func (s *State) sendSignal(ctx context.Context, data upnext.PluginData) {
	if s.deps.Signaler == nil {
		return
	}
	if err := s.deps.Signaler.SendSignal(ctx, upnext.AddonID+".lookup", data); err != nil {
		s.log.Debug("send signal failed", zap.Error(err))
	}
}

// parsePluginURL splits a plugin:// URL into its addon id and query
// parameters.
func parsePluginURL(raw string) (string, url.Values, bool) {
	if !strings.HasPrefix(raw, "plugin://") {
		return "", nil, false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", nil, false
	}
	return parsed.Host, parsed.Query(), true
}

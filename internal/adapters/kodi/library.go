package kodi

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/nat80/upnext/internal/ports"
	"github.com/nat80/upnext/pkg/upnext"
)

var _ ports.Library = (*Client)(nil)

var episodeProperties = []string{
	"title", "showtitle", "season", "episode", "tvshowid", "playcount",
	"year", "runtime", "rating", "firstaired", "plot", "file", "art",
}

var movieProperties = []string{
	"title", "set", "setid", "playcount", "year", "runtime", "rating",
	"plot", "file", "art",
}

// VideoByID fetches full details for one library item.
func (c *Client) VideoByID(ctx context.Context, kind upnext.MediaKind, id int) (upnext.Video, error) {
	switch kind {
	case upnext.KindEpisode:
		raw, err := c.rpc(ctx, "VideoLibrary.GetEpisodeDetails", map[string]any{
			"episodeid":  id,
			"properties": episodeProperties,
		})
		if err != nil {
			return upnext.Video{}, err
		}
		var result struct {
			Details upnext.Video `json:"episodedetails"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return upnext.Video{}, err
		}
		if result.Details.Empty() {
			return upnext.Video{}, ports.ErrNotFound
		}
		video := result.Details
		video.Type = string(upnext.KindEpisode)
		if !video.EpisodeID.Defined() {
			video.EpisodeID = upnext.FlexInt(id)
		}
		return video, nil

	case upnext.KindMovie:
		raw, err := c.rpc(ctx, "VideoLibrary.GetMovieDetails", map[string]any{
			"movieid":    id,
			"properties": movieProperties,
		})
		if err != nil {
			return upnext.Video{}, err
		}
		var result struct {
			Details upnext.Video `json:"moviedetails"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return upnext.Video{}, err
		}
		if result.Details.Empty() {
			return upnext.Video{}, ports.ErrNotFound
		}
		video := result.Details
		video.Type = string(upnext.KindMovie)
		if !video.MovieID.Defined() {
			video.MovieID = upnext.FlexInt(id)
		}
		return video, nil

	default:
		return upnext.Video{}, ports.ErrNotFound
	}
}

// ShowIDByTitle resolves a library show id from an exact title match.
func (c *Client) ShowIDByTitle(ctx context.Context, title string) (int, error) {
	raw, err := c.rpc(ctx, "VideoLibrary.GetTVShows", map[string]any{
		"filter": map[string]any{"field": "title", "operator": "is", "value": title},
		"limits": map[string]any{"start": 0, "end": 1},
	})
	if err != nil {
		return upnext.Undefined, err
	}
	var result struct {
		Shows []struct {
			TVShowID int `json:"tvshowid"`
		} `json:"tvshows"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return upnext.Undefined, err
	}
	if len(result.Shows) == 0 {
		return upnext.Undefined, ports.ErrNotFound
	}
	return result.Shows[0].TVShowID, nil
}

// EpisodeByIndex resolves one episode of a show by season and episode number.
func (c *Client) EpisodeByIndex(ctx context.Context, showID, season, episode int) (upnext.Video, error) {
	episodes, err := c.showEpisodes(ctx, showID, season)
	if err != nil {
		return upnext.Video{}, err
	}
	for _, ep := range episodes {
		if ep.Season.Int() == season && ep.Episode.Int() == episode {
			return ep, nil
		}
	}
	return upnext.Video{}, ports.ErrNotFound
}

// NextFromLibrary returns the library item that follows current: the next
// episode of the show, or the next movie of the set.
func (c *Client) NextFromLibrary(ctx context.Context, current upnext.Video, opts ports.NextOptions) (upnext.Video, error) {
	switch upnext.ParseKind(current.Type) {
	case upnext.KindEpisode:
		return c.nextEpisode(ctx, current, opts)
	case upnext.KindMovie:
		return c.nextMovie(ctx, current, opts)
	default:
		return upnext.Video{}, ports.ErrNotFound
	}
}

func (c *Client) nextEpisode(ctx context.Context, current upnext.Video, opts ports.NextOptions) (upnext.Video, error) {
	showID := current.TVShowID.Int()
	if showID <= 0 {
		return upnext.Video{}, ports.ErrNotFound
	}

	if opts.Random {
		return c.randomEpisode(ctx, showID, current, opts.UnwatchedOnly)
	}

	episodes, err := c.showEpisodes(ctx, showID, upnext.Undefined)
	if err != nil {
		return upnext.Video{}, err
	}
	sort.SliceStable(episodes, func(i, j int) bool {
		if episodes[i].Season.Int() != episodes[j].Season.Int() {
			return episodes[i].Season.Int() < episodes[j].Season.Int()
		}
		return episodes[i].Episode.Int() < episodes[j].Episode.Int()
	})

	season := current.Season.Int()
	episode := current.Episode.Int()
	for _, ep := range episodes {
		if ep.Season.Int() < season {
			continue
		}
		if ep.Season.Int() == season && ep.Episode.Int() <= episode {
			continue
		}
		if ep.Season.Int() > season && !opts.NextSeason {
			break
		}
		if opts.UnwatchedOnly && ep.Playcount.Int() > 0 {
			continue
		}
		return ep, nil
	}
	return upnext.Video{}, ports.ErrNotFound
}

func (c *Client) randomEpisode(ctx context.Context, showID int, current upnext.Video, unwatchedOnly bool) (upnext.Video, error) {
	params := map[string]any{
		"tvshowid":   showID,
		"properties": episodeProperties,
		"sort":       map[string]any{"method": "random"},
		"limits":     map[string]any{"start": 0, "end": 2},
	}
	if unwatchedOnly {
		params["filter"] = map[string]any{"field": "playcount", "operator": "is", "value": "0"}
	}
	raw, err := c.rpc(ctx, "VideoLibrary.GetEpisodes", params)
	if err != nil {
		return upnext.Video{}, err
	}
	episodes, err := decodeEpisodes(raw)
	if err != nil {
		return upnext.Video{}, err
	}
	for _, ep := range episodes {
		if ep.EpisodeID.Int() != current.EpisodeID.Int() {
			return ep, nil
		}
	}
	return upnext.Video{}, ports.ErrNotFound
}

func (c *Client) showEpisodes(ctx context.Context, showID, season int) ([]upnext.Video, error) {
	params := map[string]any{
		"tvshowid":   showID,
		"properties": episodeProperties,
	}
	if season != upnext.Undefined {
		params["season"] = season
	}
	raw, err := c.rpc(ctx, "VideoLibrary.GetEpisodes", params)
	if err != nil {
		return nil, err
	}
	return decodeEpisodes(raw)
}

func decodeEpisodes(raw []byte) ([]upnext.Video, error) {
	var result struct {
		Episodes []upnext.Video `json:"episodes"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	for i := range result.Episodes {
		result.Episodes[i].Type = string(upnext.KindEpisode)
	}
	return result.Episodes, nil
}

// nextMovie walks the movie set of current, ordered by year then title.
func (c *Client) nextMovie(ctx context.Context, current upnext.Video, opts ports.NextOptions) (upnext.Video, error) {
	if current.SetName == "" {
		return upnext.Video{}, ports.ErrNotFound
	}
	raw, err := c.rpc(ctx, "VideoLibrary.GetMovies", map[string]any{
		"filter":     map[string]any{"field": "set", "operator": "is", "value": current.SetName},
		"properties": movieProperties,
		"sort":       map[string]any{"method": "year"},
	})
	if err != nil {
		return upnext.Video{}, err
	}
	var result struct {
		Movies []upnext.Video `json:"movies"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return upnext.Video{}, err
	}

	found := false
	for _, movie := range result.Movies {
		movie.Type = string(upnext.KindMovie)
		if movie.MovieID.Int() == current.MovieID.Int() && movie.MovieID.Defined() {
			found = true
			continue
		}
		if !found {
			continue
		}
		if opts.UnwatchedOnly && movie.Playcount.Int() > 0 {
			continue
		}
		return movie, nil
	}
	return upnext.Video{}, ports.ErrNotFound
}

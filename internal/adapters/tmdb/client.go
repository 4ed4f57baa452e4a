// Package tmdb implements the external metadata lookup against the TMDB v3
// REST API. The integration is optional: without an API key the client
// reports itself unavailable and the tracker runs library-only.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nat80/upnext/internal/ports"
	"github.com/nat80/upnext/pkg/upnext"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

const (
	imageBaseOriginal = "https://image.tmdb.org/t/p/original"
	imageBaseThumb    = "https://image.tmdb.org/t/p/w500"
)

var _ ports.MetadataLookup = (*Client)(nil)

// Client is a TMDB REST client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
	now     func() time.Time
}

// New creates a TMDB client. An empty apiKey yields a client that reports
// itself unavailable.
func New(baseURL string, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
		now:     time.Now,
	}
}

// Available reports whether the lookup can be used at all.
func (c *Client) Available() bool { return c.apiKey != "" }

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if !c.Available() {
		return errors.New("tmdb api key not configured")
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ports.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tmdb error: %s", strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type searchResult struct {
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

// LookupID resolves a TMDB id by title search. kind is "movie" or "tv".
func (c *Client) LookupID(ctx context.Context, kind string, query string, year, season, episode int) (string, error) {
	if query == "" {
		return "", ports.ErrNotFound
	}
	values := url.Values{"query": []string{query}}
	path := "/search/tv"
	if kind == "movie" {
		path = "/search/movie"
		if year != upnext.Undefined {
			values.Set("year", strconv.Itoa(year))
		}
	}
	var result searchResult
	if err := c.get(ctx, path, values, &result); err != nil {
		return "", err
	}
	if len(result.Results) == 0 {
		return "", ports.ErrNotFound
	}
	return strconv.Itoa(result.Results[0].ID), nil
}

type movieDetails struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Overview     string `json:"overview"`
	ReleaseDate  string `json:"release_date"`
	PosterPath   string `json:"poster_path"`
	BackdropPath string `json:"backdrop_path"`
	Collection   *struct {
		ID int `json:"id"`
	} `json:"belongs_to_collection"`
}

type tvDetails struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Overview string `json:"overview"`
}

type episodeDetails struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Overview      string `json:"overview"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
	AirDate       string `json:"air_date"`
	StillPath     string `json:"still_path"`
}

// Details fetches one item. For kind "tv" with a season and episode it
// returns that episode; otherwise the movie.
func (c *Client) Details(ctx context.Context, kind string, id string, season, episode int) (upnext.LookupItem, error) {
	if kind == "movie" {
		var details movieDetails
		if err := c.get(ctx, "/movie/"+url.PathEscape(id), nil, &details); err != nil {
			return upnext.LookupItem{}, err
		}
		return movieItem(details), nil
	}

	var show tvDetails
	if err := c.get(ctx, "/tv/"+url.PathEscape(id), nil, &show); err != nil {
		return upnext.LookupItem{}, err
	}
	if season == upnext.Undefined || episode == upnext.Undefined {
		return upnext.LookupItem{
			TMDBID:    id,
			MediaType: "tvshow",
			Title:     show.Name,
			ShowTitle: show.Name,
			Plot:      show.Overview,
		}, nil
	}

	var ep episodeDetails
	path := fmt.Sprintf("/tv/%s/season/%d/episode/%d", url.PathEscape(id), season, episode)
	if err := c.get(ctx, path, nil, &ep); err != nil {
		return upnext.LookupItem{}, err
	}
	return c.episodeItem(id, show.Name, ep), nil
}

type seasonDetails struct {
	Episodes []episodeDetails `json:"episodes"`
}

// NextEpisodes returns the episodes following season/episode of the show.
// When the current season has nothing left the next season is tried. A first
// result that has not aired yet means there is no next episode.
func (c *Client) NextEpisodes(ctx context.Context, id string, season, episode int) ([]upnext.LookupItem, error) {
	var show tvDetails
	if err := c.get(ctx, "/tv/"+url.PathEscape(id), nil, &show); err != nil {
		return nil, err
	}

	items, err := c.seasonEpisodesAfter(ctx, id, show.Name, season, episode)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}
	if len(items) == 0 {
		items, err = c.seasonEpisodesAfter(ctx, id, show.Name, season+1, 0)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, ports.ErrNotFound
	}
	if items[0].Unaired {
		return nil, ports.ErrNotFound
	}
	return items, nil
}

// seasonEpisodesAfter lists the episodes of one season past the given
// episode number. episode 0 means the whole season.
func (c *Client) seasonEpisodesAfter(ctx context.Context, id, showTitle string, season, episode int) ([]upnext.LookupItem, error) {
	var details seasonDetails
	path := fmt.Sprintf("/tv/%s/season/%d", url.PathEscape(id), season)
	if err := c.get(ctx, path, nil, &details); err != nil {
		return nil, err
	}
	var items []upnext.LookupItem
	for _, ep := range details.Episodes {
		if ep.EpisodeNumber <= episode {
			continue
		}
		items = append(items, c.episodeItem(id, showTitle, ep))
	}
	return items, nil
}

// NextMovie returns the movie following id in its collection, ordered by
// release year, falling back to the first recommendation.
func (c *Client) NextMovie(ctx context.Context, id string) (upnext.LookupItem, error) {
	var details movieDetails
	if err := c.get(ctx, "/movie/"+url.PathEscape(id), nil, &details); err != nil {
		return upnext.LookupItem{}, err
	}

	if details.Collection != nil && details.Collection.ID != 0 {
		if item, ok := c.nextInCollection(ctx, details.Collection.ID, id); ok {
			return item, nil
		}
	}

	var recs struct {
		Results []movieDetails `json:"results"`
	}
	path := fmt.Sprintf("/movie/%s/recommendations", url.PathEscape(id))
	if err := c.get(ctx, path, nil, &recs); err != nil {
		return upnext.LookupItem{}, err
	}
	if len(recs.Results) == 0 {
		return upnext.LookupItem{}, ports.ErrNotFound
	}
	return movieItem(recs.Results[0]), nil
}

func (c *Client) nextInCollection(ctx context.Context, collectionID int, currentID string) (upnext.LookupItem, bool) {
	var collection struct {
		Parts []movieDetails `json:"parts"`
	}
	path := fmt.Sprintf("/collection/%d", collectionID)
	if err := c.get(ctx, path, nil, &collection); err != nil {
		c.log.Debug("collection fetch failed", zap.Error(err))
		return upnext.LookupItem{}, false
	}

	parts := collection.Parts
	// Undated parts sort last.
	year := func(m movieDetails) int {
		if y := releaseYear(m.ReleaseDate); y > 0 {
			return y
		}
		return 9999
	}
	for i := 1; i < len(parts); i++ {
		for j := i; j > 0 && year(parts[j]) < year(parts[j-1]); j-- {
			parts[j], parts[j-1] = parts[j-1], parts[j]
		}
	}

	found := false
	for _, part := range parts {
		if strconv.Itoa(part.ID) == currentID {
			found = true
			continue
		}
		if found {
			return movieItem(part), true
		}
	}
	return upnext.LookupItem{}, false
}

func (c *Client) episodeItem(id, showTitle string, ep episodeDetails) upnext.LookupItem {
	item := upnext.LookupItem{
		TMDBID:    id,
		MediaType: "episode",
		Title:     ep.Name,
		ShowTitle: showTitle,
		Plot:      ep.Overview,
		Season:    ep.SeasonNumber,
		Episode:   ep.EpisodeNumber,
		Unaired:   c.unaired(ep.AirDate),
	}
	if ep.StillPath != "" {
		item.Art = map[string]string{
			"thumb":  imageBaseThumb + ep.StillPath,
			"fanart": imageBaseOriginal + ep.StillPath,
		}
	}
	return item
}

func (c *Client) unaired(airDate string) bool {
	if airDate == "" {
		return true
	}
	aired, err := time.Parse("2006-01-02", airDate)
	if err != nil {
		return true
	}
	return aired.After(c.now())
}

func movieItem(details movieDetails) upnext.LookupItem {
	item := upnext.LookupItem{
		TMDBID:    strconv.Itoa(details.ID),
		MediaType: "movie",
		Title:     details.Title,
		Plot:      details.Overview,
		Year:      releaseYear(details.ReleaseDate),
	}
	art := map[string]string{}
	if details.PosterPath != "" {
		art["poster"] = imageBaseOriginal + details.PosterPath
	}
	if details.BackdropPath != "" {
		art["fanart"] = imageBaseOriginal + details.BackdropPath
		art["landscape"] = imageBaseOriginal + details.BackdropPath
		art["thumb"] = imageBaseThumb + details.BackdropPath
	}
	if len(art) > 0 {
		item.Art = art
	}
	return item
}

func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

package kodi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nat80/upnext/internal/ports"
	"github.com/nat80/upnext/pkg/upnext"
)

var (
	_ ports.Player   = (*Client)(nil)
	_ ports.Playlist = (*Client)(nil)
	_ ports.Queue    = (*Client)(nil)
)

// videoPlaylistID is Kodi's fixed playlist id for video content.
const videoPlaylistID = 1

var playingItemProperties = []string{
	"title", "showtitle", "season", "episode", "tvshowid", "playcount",
	"year", "runtime", "rating", "firstaired", "plot", "file", "mediapath", "art",
}

// NowPlaying fetches the item Kodi reports as playing. Kodi populates the
// item lazily after playback starts, so empty results are retried.
func (c *Client) NowPlaying(ctx context.Context, kind upnext.MediaKind, retries int) (upnext.Video, error) {
	if retries < 0 {
		retries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return upnext.Video{}, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		video, err := c.playingItem(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if video.Empty() {
			lastErr = ports.ErrNotFound
			continue
		}
		if video.Type == "" && kind != upnext.KindUnknown {
			video.Type = string(kind)
		}
		return video, nil
	}
	c.log.Debug("now playing unresolved", zap.Int("retries", retries), zap.Error(lastErr))
	return upnext.Video{}, lastErr
}

func (c *Client) playingItem(ctx context.Context) (upnext.Video, error) {
	playerID, err := c.activePlayerID(ctx)
	if err != nil {
		return upnext.Video{}, err
	}
	raw, err := c.rpc(ctx, "Player.GetItem", map[string]any{
		"playerid":   playerID,
		"properties": playingItemProperties,
	})
	if err != nil {
		return upnext.Video{}, err
	}
	var result struct {
		Item upnext.Video `json:"item"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return upnext.Video{}, err
	}
	return result.Item, nil
}

// PlayTime reports elapsed and total seconds of the playing file.
func (c *Client) PlayTime(ctx context.Context) (float64, float64, error) {
	playerID, err := c.activePlayerID(ctx)
	if err != nil {
		return 0, 0, err
	}
	raw, err := c.rpc(ctx, "Player.GetProperties", map[string]any{
		"playerid":   playerID,
		"properties": []string{"time", "totaltime"},
	})
	if err != nil {
		return 0, 0, err
	}
	var props struct {
		Time      timeObject `json:"time"`
		TotalTime timeObject `json:"totaltime"`
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return 0, 0, err
	}
	return fromTimeObject(props.Time), fromTimeObject(props.TotalTime), nil
}

// ChapterMarks returns chapter start points as percentages of duration,
// read from the Player.Chapters info label the host bridge exposes.
func (c *Client) ChapterMarks(ctx context.Context) ([]float64, error) {
	raw, err := c.rpc(ctx, "XBMC.GetInfoLabels", map[string]any{
		"labels": []string{"Player.Chapters"},
	})
	if err != nil {
		return nil, err
	}
	var labels struct {
		Chapters string `json:"Player.Chapters"`
	}
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, err
	}
	if strings.TrimSpace(labels.Chapters) == "" {
		return nil, nil
	}
	var marks []float64
	for _, field := range strings.Split(labels.Chapters, ",") {
		mark, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			continue
		}
		marks = append(marks, mark)
	}
	return marks, nil
}

// Position returns the 1-based playlist position offset items past the
// playing one, or 0 when the playlist has no such position. A single-item
// playlist counts as no playlist: plugin playback sits in a size-1 playlist
// and must resolve through now-playing reconciliation instead.
func (c *Client) Position(ctx context.Context, offset int) (int, error) {
	playerID, err := c.activePlayerID(ctx)
	if err != nil {
		return 0, nil
	}
	raw, err := c.rpc(ctx, "Player.GetProperties", map[string]any{
		"playerid":   playerID,
		"properties": []string{"playlistid", "position"},
	})
	if err != nil {
		return 0, err
	}
	var props struct {
		PlaylistID int `json:"playlistid"`
		Position   int `json:"position"`
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return 0, err
	}
	if props.PlaylistID != videoPlaylistID || props.Position < 0 {
		return 0, nil
	}

	size, err := c.playlistSize(ctx)
	if err != nil {
		return 0, err
	}
	if size <= 1 {
		return 0, nil
	}
	target := props.Position + offset
	if target < 0 || target >= size {
		return 0, nil
	}
	return target + 1, nil
}

func (c *Client) playlistSize(ctx context.Context) (int, error) {
	raw, err := c.rpc(ctx, "Playlist.GetProperties", map[string]any{
		"playlistid": videoPlaylistID,
		"properties": []string{"size"},
	})
	if err != nil {
		return 0, err
	}
	var props struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return 0, err
	}
	return props.Size, nil
}

// ItemAt fetches the playlist item at the 1-based position.
func (c *Client) ItemAt(ctx context.Context, position int, unwatchedOnly bool) (upnext.Video, error) {
	if position < 1 {
		return upnext.Video{}, ports.ErrNotFound
	}
	raw, err := c.rpc(ctx, "Playlist.GetItems", map[string]any{
		"playlistid": videoPlaylistID,
		"properties": playingItemProperties,
		"limits":     map[string]any{"start": position - 1, "end": position},
	})
	if err != nil {
		return upnext.Video{}, err
	}
	var result struct {
		Items []upnext.Video `json:"items"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return upnext.Video{}, err
	}
	if len(result.Items) == 0 {
		return upnext.Video{}, ports.ErrNotFound
	}
	item := result.Items[0]
	if unwatchedOnly && item.Playcount.Int() > 0 {
		return upnext.Video{}, ports.ErrNotFound
	}
	return item, nil
}

// Reset removes the auto-queued item, which is always the last playlist
// entry. The return value is the remaining queued state: true means the item
// could not be removed and is still queued.
func (c *Client) Reset(ctx context.Context) bool {
	size, err := c.playlistSize(ctx)
	if err != nil || size == 0 {
		return false
	}
	if _, err := c.rpc(ctx, "Playlist.Remove", map[string]any{
		"playlistid": videoPlaylistID,
		"position":   size - 1,
	}); err != nil {
		c.log.Warn("queue reset failed", zap.Error(err))
		return true
	}
	return false
}

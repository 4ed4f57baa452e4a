package ports

import (
	"context"
	"errors"

	"github.com/nat80/upnext/pkg/upnext"
)

// ErrNotFound reports that a query resolved to no item. Callers treat it as
// no-data, not as a failure.
var ErrNotFound = errors.New("not found")

// NextOptions controls next-item selection from the library.
type NextOptions struct {
	NextSeason    bool
	UnwatchedOnly bool
	Random        bool
}

// Library queries the host video library.
type Library interface {
	// VideoByID fetches full details for a library item.
	VideoByID(ctx context.Context, kind upnext.MediaKind, id int) (upnext.Video, error)
	// NextFromLibrary returns the item that follows current in the library.
	NextFromLibrary(ctx context.Context, current upnext.Video, opts NextOptions) (upnext.Video, error)
	// ShowIDByTitle resolves a library TV show id from its title.
	ShowIDByTitle(ctx context.Context, title string) (int, error)
	// EpisodeByIndex resolves an episode by show id, season and episode.
	EpisodeByIndex(ctx context.Context, showID, season, episode int) (upnext.Video, error)
}

// Playlist queries the host playlist. Positions are 1-based; 0 means no
// position is available.
type Playlist interface {
	Position(ctx context.Context, offset int) (int, error)
	ItemAt(ctx context.Context, position int, unwatchedOnly bool) (upnext.Video, error)
}

// Player queries the live host player.
type Player interface {
	// NowPlaying fetches the playing item, retrying up to retries times.
	NowPlaying(ctx context.Context, kind upnext.MediaKind, retries int) (upnext.Video, error)
	// PlayTime reports elapsed and total seconds of the playing file.
	PlayTime(ctx context.Context) (elapsed float64, total float64, err error)
	// ChapterMarks returns chapter start points as percentages of duration.
	ChapterMarks(ctx context.Context) ([]float64, error)
}

// Queue controls the auto-play queue. Reset reports the remaining queued
// state: false once the queued item has been cleared.
type Queue interface {
	Reset(ctx context.Context) bool
}

// Signaler emits fire-and-forget cross-addon notifications.
type Signaler interface {
	SendSignal(ctx context.Context, sender string, data upnext.PluginData) error
}

// MetadataLookup is the optional external metadata integration. All methods
// degrade to no-data; none may panic. Available reports whether the
// capability is usable at all.
type MetadataLookup interface {
	Available() bool
	// LookupID resolves an external id. kind is "movie" or "tv"; pass
	// upnext.Undefined for parameters that do not apply.
	LookupID(ctx context.Context, kind string, query string, year, season, episode int) (string, error)
	Details(ctx context.Context, kind string, id string, season, episode int) (upnext.LookupItem, error)
	NextEpisodes(ctx context.Context, id string, season, episode int) ([]upnext.LookupItem, error)
	NextMovie(ctx context.Context, id string) (upnext.LookupItem, error)
}

// Clock returns the current unix time in seconds.
type Clock interface {
	NowUnix() int64
}

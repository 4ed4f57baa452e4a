package upnext

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Undefined marks an integer field with no known value. Kodi uses -1 for
// the same purpose in its JSON-RPC payloads.
const Undefined = -1

// Unknown is the placeholder string Kodi reports for unresolved fields.
const Unknown = "unknown"

// SpecialsSeason is the season number Kodi assigns to specials.
const SpecialsSeason = 0

// AddonID identifies this service in plugin URLs and signal payloads.
const AddonID = "service.upnext"

// MetadataHelperAddonID is the companion metadata-lookup addon whose plugin
// URLs are trusted as-is.
const MetadataHelperAddonID = "plugin.video.themoviedb.helper"

// MediaKind classifies a video item.
type MediaKind string

const (
	KindMovie   MediaKind = "movie"
	KindEpisode MediaKind = "episode"
	KindUnknown MediaKind = "unknown"
)

// ParseKind maps a raw type string to a MediaKind.
func ParseKind(raw string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "movie":
		return KindMovie
	case "episode":
		return KindEpisode
	default:
		return KindUnknown
	}
}

// FlexInt is an int that tolerates JSON numbers, numeric strings, floats and
// garbage. Anything unparsable decodes to Undefined rather than failing the
// whole payload.
type FlexInt int

// Int returns the plain int value.
func (i FlexInt) Int() int { return int(i) }

// Defined reports whether the value is set.
func (i FlexInt) Defined() bool { return int(i) != Undefined }

// UnmarshalJSON decodes numbers, numeric strings and floats. Unparsable
// input yields Undefined and no error.
func (i *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = Undefined
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*i = Undefined
			return nil
		}
		data = []byte(strings.TrimSpace(s))
	}
	if n, err := strconv.Atoi(string(data)); err == nil {
		*i = FlexInt(n)
		return nil
	}
	if f, err := strconv.ParseFloat(string(data), 64); err == nil {
		*i = FlexInt(int(f))
		return nil
	}
	*i = Undefined
	return nil
}

// FlexString is a string that also accepts JSON numbers, used for ids that
// plugins send in either form.
type FlexString string

// String returns the plain string value.
func (s FlexString) String() string { return string(s) }

// UnmarshalJSON decodes strings and numbers.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*s = ""
			return nil
		}
		*s = FlexString(str)
		return nil
	}
	*s = FlexString(string(data))
	return nil
}

// Video is the raw, source-shaped description of one video. It is the common
// currency between the host library, playlists, companion plugins and the
// metadata lookup. Absent integer fields decode to Undefined.
type Video struct {
	Type       string            `json:"type,omitempty"`
	Title      string            `json:"title,omitempty"`
	Label      string            `json:"label,omitempty"`
	ShowTitle  string            `json:"showtitle,omitempty"`
	Season     FlexInt           `json:"season"`
	Episode    FlexInt           `json:"episode"`
	TVShowID   FlexInt           `json:"tvshowid"`
	EpisodeID  FlexInt           `json:"episodeid"`
	MovieID    FlexInt           `json:"movieid"`
	ID         FlexInt           `json:"id"`
	SetName    string            `json:"set,omitempty"`
	SetID      FlexInt           `json:"setid"`
	Playcount  FlexInt           `json:"playcount"`
	Year       FlexInt           `json:"year"`
	Runtime    FlexInt           `json:"runtime"`
	Rating     float64           `json:"rating,omitempty"`
	FirstAired string            `json:"firstaired,omitempty"`
	Plot       string            `json:"plot,omitempty"`
	File       string            `json:"file,omitempty"`
	MediaPath  string            `json:"mediapath,omitempty"`
	Art        map[string]string `json:"art,omitempty"`
	TMDBID     FlexString        `json:"tmdb_id,omitempty"`
	Player     string            `json:"player,omitempty"`
}

// NewVideo returns a Video with all integer fields set to Undefined.
func NewVideo() Video {
	return Video{
		Season:    Undefined,
		Episode:   Undefined,
		TVShowID:  Undefined,
		EpisodeID: Undefined,
		MovieID:   Undefined,
		ID:        Undefined,
		SetID:     Undefined,
		Playcount: Undefined,
		Year:      Undefined,
		Runtime:   Undefined,
	}
}

// UnmarshalJSON decodes over NewVideo defaults so absent fields stay
// Undefined instead of zero.
func (v *Video) UnmarshalJSON(data []byte) error {
	type alias Video
	tmp := alias(NewVideo())
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*v = Video(tmp)
	return nil
}

// Empty reports whether the video carries no usable identity. Library ids
// are always positive, so 0 and Undefined both count as absent.
func (v Video) Empty() bool {
	return v.Title == "" && v.Label == "" && v.File == "" && v.ShowTitle == "" &&
		v.ID.Int() <= 0 && v.EpisodeID.Int() <= 0 && v.MovieID.Int() <= 0
}

// PluginPath returns the effective media path when it is a plugin URL.
// MediaPath wins over File whenever it is set at all: a resolved non-plugin
// mediapath means the file-level plugin URL no longer describes playback.
func (v Video) PluginPath() string {
	path := v.MediaPath
	if path == "" {
		path = v.File
	}
	if strings.HasPrefix(path, "plugin://") {
		return path
	}
	return ""
}

// LookupItem is a video description returned by the external metadata
// lookup. It is deliberately smaller than Video: only what the fallback
// signal needs.
type LookupItem struct {
	TMDBID    string            `json:"tmdb_id"`
	MediaType string            `json:"mediatype"`
	Title     string            `json:"title"`
	ShowTitle string            `json:"showtitle,omitempty"`
	Plot      string            `json:"plot,omitempty"`
	Season    int               `json:"season,omitempty"`
	Episode   int               `json:"episode,omitempty"`
	Year      int               `json:"year,omitempty"`
	Playcount int               `json:"playcount,omitempty"`
	Unaired   bool              `json:"unaired,omitempty"`
	Art       map[string]string `json:"art,omitempty"`
}

// Video converts a lookup item into the common Video shape.
func (it LookupItem) Video() Video {
	v := NewVideo()
	v.Type = it.MediaType
	v.Title = it.Title
	v.ShowTitle = it.ShowTitle
	v.Plot = it.Plot
	v.Art = it.Art
	v.TMDBID = FlexString(it.TMDBID)
	if it.Season > 0 || it.MediaType == "episode" {
		v.Season = FlexInt(it.Season)
		v.Episode = FlexInt(it.Episode)
	}
	if it.Year > 0 {
		v.Year = FlexInt(it.Year)
	}
	if it.Playcount > 0 {
		v.Playcount = FlexInt(it.Playcount)
	}
	return v
}

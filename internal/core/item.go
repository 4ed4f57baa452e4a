package core

import (
	"path"
	"strconv"
	"strings"

	"github.com/nat80/upnext/pkg/upnext"
)

// Item sources. Plugin-supplied items carry the plugin type source name
// instead.
const (
	SourceLibrary  = "library"
	SourcePlaylist = "playlist"
)

// ItemDetails is the normalized descriptor for one video. Construct it with
// NewItemDetails and replace it wholesale; never mutate one in place.
type ItemDetails struct {
	Kind      upnext.MediaKind
	Source    string
	Position  int
	GroupName string
	Video     upnext.Video
}

// NewItemDetails normalizes a raw video from any source into an ItemDetails.
// position is the playlist position when the item came from a playlist,
// upnext.Undefined otherwise.
func NewItemDetails(video upnext.Video, source string, position int) ItemDetails {
	return ItemDetails{
		Kind:      upnext.ParseKind(video.Type),
		Source:    source,
		Position:  position,
		GroupName: groupName(video),
		Video:     video,
	}
}

// EmptyItem returns the unset sentinel.
func EmptyItem() ItemDetails {
	return ItemDetails{Kind: upnext.KindUnknown, Position: upnext.Undefined, Video: upnext.NewVideo()}
}

// Empty reports whether the item is the unset sentinel.
func (it ItemDetails) Empty() bool {
	return it.Source == "" && it.Video.Empty()
}

// groupName derives the grouping key used for consecutive-play counting:
// the show identity for episodes, the set identity for movies in a set, the
// containing directory otherwise.
func groupName(video upnext.Video) string {
	switch upnext.ParseKind(video.Type) {
	case upnext.KindEpisode:
		if video.TVShowID.Defined() && video.TVShowID.Int() > 0 {
			return "tvshow:" + strconv.Itoa(video.TVShowID.Int())
		}
		if video.ShowTitle != "" {
			return "tvshow:" + strings.ToLower(video.ShowTitle)
		}
	case upnext.KindMovie:
		if video.SetID.Defined() && video.SetID.Int() > 0 {
			return "set:" + strconv.Itoa(video.SetID.Int())
		}
		if video.SetName != "" {
			return "set:" + strings.ToLower(video.SetName)
		}
	}
	if video.File != "" {
		return "dir:" + path.Dir(video.File)
	}
	if video.Title != "" {
		return "title:" + strings.ToLower(video.Title)
	}
	return ""
}

// overlayVideo copies defined fields of src over base and returns the
// result. Used when merging library query results into live-player data.
func overlayVideo(base, src upnext.Video) upnext.Video {
	out := base
	if src.Type != "" {
		out.Type = src.Type
	}
	if src.Title != "" {
		out.Title = src.Title
	}
	if src.Label != "" {
		out.Label = src.Label
	}
	if src.ShowTitle != "" {
		out.ShowTitle = src.ShowTitle
	}
	for _, pair := range []struct {
		dst *upnext.FlexInt
		src upnext.FlexInt
	}{
		{&out.Season, src.Season},
		{&out.Episode, src.Episode},
		{&out.TVShowID, src.TVShowID},
		{&out.EpisodeID, src.EpisodeID},
		{&out.MovieID, src.MovieID},
		{&out.ID, src.ID},
		{&out.SetID, src.SetID},
		{&out.Playcount, src.Playcount},
		{&out.Year, src.Year},
		{&out.Runtime, src.Runtime},
	} {
		if pair.src.Defined() {
			*pair.dst = pair.src
		}
	}
	if src.SetName != "" {
		out.SetName = src.SetName
	}
	if src.Rating != 0 {
		out.Rating = src.Rating
	}
	if src.FirstAired != "" {
		out.FirstAired = src.FirstAired
	}
	if src.Plot != "" {
		out.Plot = src.Plot
	}
	if src.File != "" {
		out.File = src.File
	}
	if src.MediaPath != "" {
		out.MediaPath = src.MediaPath
	}
	if len(src.Art) > 0 {
		merged := make(map[string]string, len(base.Art)+len(src.Art))
		for k, v := range base.Art {
			merged[k] = v
		}
		for k, v := range src.Art {
			merged[k] = v
		}
		out.Art = merged
	}
	if src.TMDBID != "" {
		out.TMDBID = src.TMDBID
	}
	if src.Player != "" {
		out.Player = src.Player
	}
	return out
}

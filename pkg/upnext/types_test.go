package upnext

import (
	"encoding/json"
	"testing"
)

func TestFlexIntTolerantDecoding(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`5`, 5},
		{`"5"`, 5},
		{`5.7`, 5},
		{`"5.7"`, 5},
		{`" 12 "`, 12},
		{`null`, Undefined},
		{`""`, Undefined},
		{`"episode five"`, Undefined},
		{`[1]`, Undefined},
	}
	for _, tc := range cases {
		var got FlexInt
		if err := json.Unmarshal([]byte(tc.raw), &got); err != nil {
			t.Fatalf("%s: unexpected error %v", tc.raw, err)
		}
		if got.Int() != tc.want {
			t.Fatalf("%s: got %d, want %d", tc.raw, got.Int(), tc.want)
		}
	}
}

func TestFlexStringAcceptsNumbers(t *testing.T) {
	var got FlexString
	if err := json.Unmarshal([]byte(`12345`), &got); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got.String() != "12345" {
		t.Fatalf("got %q", got)
	}
	if err := json.Unmarshal([]byte(`"tt123"`), &got); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got.String() != "tt123" {
		t.Fatalf("got %q", got)
	}
}

func TestVideoAbsentFieldsStayUndefined(t *testing.T) {
	var v Video
	if err := json.Unmarshal([]byte(`{"title":"Pilot","season":"2"}`), &v); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if v.Season.Int() != 2 {
		t.Fatalf("expected season 2, got %d", v.Season.Int())
	}
	if v.Episode.Defined() || v.TVShowID.Defined() || v.Playcount.Defined() {
		t.Fatalf("expected absent fields undefined, got %+v", v)
	}
}

func TestVideoEmpty(t *testing.T) {
	if !NewVideo().Empty() {
		t.Fatalf("expected fresh video to be empty")
	}

	v := NewVideo()
	v.EpisodeID = 0
	if !v.Empty() {
		t.Fatalf("expected zero id to count as absent")
	}

	v = NewVideo()
	v.ShowTitle = "Show"
	if v.Empty() {
		t.Fatalf("expected show title to count as identity")
	}
}

func TestVideoPluginPath(t *testing.T) {
	v := NewVideo()
	v.File = "/media/file.mkv"
	if v.PluginPath() != "" {
		t.Fatalf("expected no plugin path for local file")
	}
	v.File = "plugin://plugin.video.a/play"
	v.MediaPath = "plugin://plugin.video.b/play"
	if v.PluginPath() != "plugin://plugin.video.b/play" {
		t.Fatalf("expected mediapath preferred, got %q", v.PluginPath())
	}

	// A resolved non-plugin mediapath wins over the file-level plugin URL
	// and suppresses it.
	v.MediaPath = "nfs://server/resolved.mkv"
	if v.PluginPath() != "" {
		t.Fatalf("expected resolved mediapath to suppress plugin path, got %q", v.PluginPath())
	}

	v.MediaPath = ""
	if v.PluginPath() != "plugin://plugin.video.a/play" {
		t.Fatalf("expected file fallback, got %q", v.PluginPath())
	}
}

func TestParseKind(t *testing.T) {
	if ParseKind(" Movie ") != KindMovie {
		t.Fatalf("expected movie")
	}
	if ParseKind("episode") != KindEpisode {
		t.Fatalf("expected episode")
	}
	if ParseKind("song") != KindUnknown {
		t.Fatalf("expected unknown")
	}
}

func TestLookupItemVideo(t *testing.T) {
	it := LookupItem{
		TMDBID:    "4000",
		MediaType: "episode",
		Title:     "Next One",
		ShowTitle: "Show",
		Season:    0,
		Episode:   4,
		Playcount: 1,
	}
	v := it.Video()
	if v.Season.Int() != 0 || v.Episode.Int() != 4 {
		t.Fatalf("expected specials season preserved, got s%de%d", v.Season.Int(), v.Episode.Int())
	}
	if v.TMDBID.String() != "4000" {
		t.Fatalf("expected tmdb id carried, got %q", v.TMDBID)
	}
	if v.Playcount.Int() != 1 {
		t.Fatalf("expected playcount carried, got %d", v.Playcount.Int())
	}

	movie := LookupItem{TMDBID: "550", MediaType: "movie", Title: "Fight Club"}.Video()
	if movie.Season.Defined() {
		t.Fatalf("expected no season for movies")
	}
}

func TestPlayerEventDefaults(t *testing.T) {
	var ev PlayerEvent
	if err := json.Unmarshal([]byte(`{"event":"started"}`), &ev); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if ev.PlayerID.Defined() {
		t.Fatalf("expected undefined player id")
	}
	if !ev.Item.Empty() || ev.Item.Season.Defined() {
		t.Fatalf("expected empty default item, got %+v", ev.Item)
	}
}

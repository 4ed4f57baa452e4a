package upnext

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	next := NewVideo()
	next.Type = "episode"
	next.Title = "Next One"
	next.Season = 1
	next.Episode = 3

	payload, err := EncodeEnvelope("plugin.video.example", PluginData{
		NextVideo:          &next,
		PlayURL:            "plugin://plugin.video.example/play/3",
		NotificationOffset: 1280,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	sender, data, err := DecodeEnvelope(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sender != "plugin.video.example" {
		t.Fatalf("unexpected sender %q", sender)
	}
	if data.NextVideo == nil || data.NextVideo.Episode.Int() != 3 {
		t.Fatalf("unexpected next video %+v", data.NextVideo)
	}
	if data.NotificationOffset.Int() != 1280 {
		t.Fatalf("unexpected offset %d", data.NotificationOffset.Int())
	}
}

func TestDecodeEnvelopeDefaultsToBase64(t *testing.T) {
	inner := base64.StdEncoding.EncodeToString([]byte(`{"play_direct":true}`))
	payload := `{"sender":"plugin.video.example","data":"` + inner + `"}`

	_, data, err := DecodeEnvelope([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !data.PlayDirect {
		t.Fatalf("expected play_direct set")
	}
}

func TestDecodeEnvelopeJSONEncoding(t *testing.T) {
	payload := `{"sender":"s","encoding":"json","data":"{\"play_url\":\"plugin://x/p\"}"}`
	_, data, err := DecodeEnvelope([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.PlayURL != "plugin://x/p" {
		t.Fatalf("unexpected play url %q", data.PlayURL)
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	if _, _, err := DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
	if _, _, err := DecodeEnvelope([]byte(`{"sender":"s","data":""}`)); err == nil {
		t.Fatalf("expected error for empty data")
	}
	if _, _, err := DecodeEnvelope([]byte(`{"sender":"s","encoding":"hex","data":"00"}`)); err == nil ||
		!strings.Contains(err.Error(), "unsupported encoding") {
		t.Fatalf("expected unsupported encoding error, got %v", err)
	}
	if _, _, err := DecodeEnvelope([]byte(`{"sender":"s","data":"%%%"}`)); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
}

func TestDecodeEnvelopeLegacyCurrentEpisode(t *testing.T) {
	inner := base64.StdEncoding.EncodeToString([]byte(`{"current_episode":{"title":"Pilot","season":1,"episode":1}}`))
	payload := `{"sender":"plugin.video.legacy","data":"` + inner + `"}`

	_, data, err := DecodeEnvelope([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.CurrentEpisode != nil {
		t.Fatalf("expected legacy key folded away")
	}
	if data.CurrentVideo == nil || data.CurrentVideo.Title != "Pilot" {
		t.Fatalf("unexpected current video %+v", data.CurrentVideo)
	}
}

func TestDecodeEnvelopeMalformedFieldsDegrade(t *testing.T) {
	inner := base64.StdEncoding.EncodeToString(
		[]byte(`{"notification_time":"soon","next_video":{"title":"N","episode":"x"}}`))
	payload := `{"sender":"s","data":"` + inner + `"}`

	_, data, err := DecodeEnvelope([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.NotificationTime.Defined() {
		t.Fatalf("expected malformed time to be absent")
	}
	if data.NextVideo == nil || data.NextVideo.Episode.Defined() {
		t.Fatalf("expected malformed episode to be absent, got %+v", data.NextVideo)
	}
}

func TestTopics(t *testing.T) {
	if got := TopicSignal(""); got != "upnext/v1/signal/upnext_data" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := TopicPlayerEvents("home/upnext/"); got != "home/upnext/events/player" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := TopicPopup(BaseTopic); got != "upnext/v1/popup" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := TopicTrackerState(""); got != "upnext/v1/state/tracker" {
		t.Fatalf("unexpected topic %q", got)
	}
}

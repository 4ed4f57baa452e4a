package upnext

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// EncodingBase64 is the default envelope payload encoding.
const EncodingBase64 = "base64"

// Envelope is the cross-addon signal wrapper. The payload is a JSON document
// encoded per Encoding (base64 by default, matching the AddonSignals
// convention the companion plugins already speak).
type Envelope struct {
	Sender   string `json:"sender"`
	Encoding string `json:"encoding,omitempty"`
	Data     string `json:"data"`
}

// PluginData is the payload a companion plugin pushes to describe the
// current and next video along with how the next one should be played.
type PluginData struct {
	CurrentVideo *Video `json:"current_video,omitempty"`
	// CurrentEpisode is the legacy key older plugins still send; Normalize
	// folds it into CurrentVideo.
	CurrentEpisode     *Video         `json:"current_episode,omitempty"`
	NextVideo          *Video         `json:"next_video,omitempty"`
	PlayURL            string         `json:"play_url,omitempty"`
	PlayInfo           map[string]any `json:"play_info,omitempty"`
	PlayDirect         bool           `json:"play_direct,omitempty"`
	NotificationTime   FlexInt        `json:"notification_time,omitempty"`
	NotificationOffset FlexInt        `json:"notification_offset,omitempty"`
	Player             string         `json:"player,omitempty"`
}

// Normalize maps legacy payload keys onto the current structure.
func (d *PluginData) Normalize() {
	if d.CurrentVideo == nil && d.CurrentEpisode != nil {
		d.CurrentVideo = d.CurrentEpisode
	}
	d.CurrentEpisode = nil
}

// EncodeEnvelope wraps plugin data in a base64 signal envelope.
func EncodeEnvelope(sender string, data PluginData) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	env := Envelope{
		Sender:   sender,
		Encoding: EncodingBase64,
		Data:     base64.StdEncoding.EncodeToString(raw),
	}
	return json.Marshal(env)
}

// DecodeEnvelope unwraps a signal envelope. A missing encoding field is
// treated as base64. Malformed payloads return an error; malformed fields
// inside an otherwise valid payload decode to their absent values.
func DecodeEnvelope(payload []byte) (string, PluginData, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", PluginData{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Data == "" {
		return env.Sender, PluginData{}, errors.New("empty signal data")
	}

	raw := []byte(env.Data)
	switch env.Encoding {
	case "", EncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return env.Sender, PluginData{}, fmt.Errorf("decode signal data: %w", err)
		}
		raw = decoded
	case "json":
	default:
		return env.Sender, PluginData{}, fmt.Errorf("unsupported encoding %q", env.Encoding)
	}

	var data PluginData
	if err := json.Unmarshal(raw, &data); err != nil {
		return env.Sender, PluginData{}, fmt.Errorf("decode plugin data: %w", err)
	}
	data.Normalize()
	return env.Sender, data, nil
}

// PopupNotice is published when the popup for the tracked video becomes due.
// The UI layer decides how to render it; StillWatching asks for the stronger
// confirmation prompt.
type PopupNotice struct {
	CurrentVideo  *Video `json:"current_video,omitempty"`
	NextVideo     *Video `json:"next_video,omitempty"`
	Source        string `json:"source,omitempty"`
	PopupTime     int    `json:"popup_time"`
	TotalTime     int    `json:"total_time"`
	PopupCue      bool   `json:"popup_cue"`
	PlayedInARow  int    `json:"played_in_a_row"`
	StillWatching bool   `json:"still_watching"`
	TS            int64  `json:"ts"`
}

// TrackerState is the retained snapshot of the tracking session, published
// for CLIs and companion UIs.
type TrackerState struct {
	Tracking     bool   `json:"tracking"`
	Filename     string `json:"filename,omitempty"`
	TotalTime    int    `json:"total_time"`
	PopupTime    int    `json:"popup_time"`
	PopupCue     bool   `json:"popup_cue"`
	DetectTime   int    `json:"detect_time"`
	PlayedInARow int    `json:"played_in_a_row"`
	CurrentVideo *Video `json:"current_video,omitempty"`
	NextVideo    *Video `json:"next_video,omitempty"`
	TS           int64  `json:"ts"`
}

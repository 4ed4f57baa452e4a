package upnext

import "encoding/json"

// BaseTopic is the default MQTT topic prefix for the service.
const BaseTopic = "upnext/v1"

// TopicPlayerEvents is where the host bridge publishes player lifecycle
// events.
func TopicPlayerEvents(base string) string {
	return normalizeBase(base) + "/events/player"
}

// TopicSignal is where companion plugins publish upnext data envelopes.
func TopicSignal(base string) string {
	return normalizeBase(base) + "/signal/upnext_data"
}

// TopicPopup carries popup-due notices for the UI layer.
func TopicPopup(base string) string {
	return normalizeBase(base) + "/popup"
}

// TopicTrackerState carries the retained tracker snapshot.
func TopicTrackerState(base string) string {
	return normalizeBase(base) + "/state/tracker"
}

func normalizeBase(base string) string {
	if base == "" {
		return BaseTopic
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base
}

// PlayerEvent is a host player lifecycle notification as delivered by the
// player bridge.
type PlayerEvent struct {
	// Event is one of "started", "stopped", "ended", "seek".
	Event    string  `json:"event"`
	Item     Video   `json:"item"`
	File     string  `json:"file,omitempty"`
	PlayerID FlexInt `json:"playerid,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Shuffled bool    `json:"shuffled,omitempty"`
}

// UnmarshalJSON keeps Undefined defaults for an absent item block.
func (e *PlayerEvent) UnmarshalJSON(data []byte) error {
	type alias PlayerEvent
	tmp := alias{Item: NewVideo(), PlayerID: Undefined}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*e = PlayerEvent(tmp)
	return nil
}

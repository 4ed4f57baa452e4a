package core

import "strings"

// PluginType classifies how a companion plugin wants its next video handled.
// It replaces the additive integer codes the signal protocol grew up with:
// Direct and Playlist are mutually exclusive, as are PlayURL and PlayInfo,
// but each bit remains independently queryable.
type PluginType struct {
	// Direct means the plugin asked the host to start the next file itself.
	Direct bool
	// Playlist means the next item comes from the host playlist.
	Playlist bool
	// PlayURL means the payload carries a resolvable play_url.
	PlayURL bool
	// PlayInfo means the payload carries play_info for a plugin player.
	PlayInfo bool
}

// SourceName renders the classification as the plugin source tag stored in
// ItemDetails.
func (t PluginType) SourceName() string {
	parts := []string{"plugin"}
	switch {
	case t.Direct:
		parts = append(parts, "direct")
	case t.Playlist:
		parts = append(parts, "playlist")
	}
	switch {
	case t.PlayURL:
		parts = append(parts, "play_url")
	case t.PlayInfo:
		parts = append(parts, "play_info")
	}
	return strings.Join(parts, "_")
}

// IsPluginSource reports whether an ItemDetails source tag names a plugin.
func IsPluginSource(source string) bool {
	return strings.HasPrefix(source, "plugin")
}

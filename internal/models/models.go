package models

import "time"

// Server identifies one remote media server instance. Immutable after
// setup except for token rotation, which swaps the whole value.
type Server struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url" yaml:"url"`
	Token   string `json:"-" yaml:"token"`
	Version string `json:"version,omitempty" yaml:"-"`
}

// PlayMethod is how the server delivers the current stream.
type PlayMethod string

const (
	PlayMethodDirectPlay   PlayMethod = "DirectPlay"
	PlayMethodDirectStream PlayMethod = "DirectStream"
	PlayMethodTranscode    PlayMethod = "Transcode"
)

// Session is one live client context on a server. DeviceID is the stable
// identity across reconnects; SessionID changes per connection and must
// never be used as a cross-cycle key.
type Session struct {
	DeviceID   string `json:"device_id"`
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id,omitempty"`
	UserName   string `json:"user_name,omitempty"`
	Client     string `json:"client"`
	DeviceName string `json:"device_name"`
	AppVersion string `json:"app_version,omitempty"`

	NowPlaying *NowPlaying `json:"now_playing,omitempty"`
	PlayState  *PlayState  `json:"play_state,omitempty"`

	LastSeen time.Time `json:"last_seen"`
}

// NowPlaying summarizes the item a session is currently rendering.
type NowPlaying struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	SeriesName string `json:"series_name,omitempty"`
	SeasonName string `json:"season_name,omitempty"`
	RuntimeMs  int64  `json:"runtime_ms"`
}

// PlayState carries the mutable playback position and controls.
type PlayState struct {
	PositionMs int64      `json:"position_ms"`
	IsPaused   bool       `json:"is_paused"`
	IsMuted    bool       `json:"is_muted"`
	Volume     int        `json:"volume"`
	Method     PlayMethod `json:"method,omitempty"`
}

// User is a server-side account, as returned by the user listing.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

// MediaItem is the common shape of discovery feed entries.
type MediaItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	SeriesName string    `json:"series_name,omitempty"`
	Year       int       `json:"year,omitempty"`
	RuntimeMs  int64     `json:"runtime_ms,omitempty"`
	PlayedPct  float64   `json:"played_pct,omitempty"`
	AddedAt    time.Time `json:"added_at,omitempty"`
	ImageTag   string    `json:"image_tag,omitempty"`
}

// ItemCounts are the per-user aggregate counts shown on discovery views.
type ItemCounts struct {
	Favorites int `json:"favorites"`
	Played    int `json:"played"`
	Resumable int `json:"resumable"`
	Playlists int `json:"playlists"`
}

// DiscoveryData is one atomic per-user snapshot of the "what to watch"
// feeds. It is never partially updated; a refresh replaces it wholesale.
type DiscoveryData struct {
	NextUp           []MediaItem `json:"next_up"`
	ContinueWatching []MediaItem `json:"continue_watching"`
	RecentlyAdded    []MediaItem `json:"recently_added"`
	Suggestions      []MediaItem `json:"suggestions"`
	Counts           ItemCounts  `json:"counts"`
}

// EventKind discriminates inbound push messages.
type EventKind string

const (
	EventSessions        EventKind = "Sessions"
	EventUserDataChanged EventKind = "UserDataChanged"
	EventPlaybackStart   EventKind = "PlaybackStart"
	EventPlaybackStopped EventKind = "PlaybackStopped"
	EventLibraryChanged  EventKind = "LibraryChanged"
	EventGeneric         EventKind = "Generic"
)

// StreamEvent is a typed push message from the event channel. Payload
// fields are the minimum needed to route invalidation; both are empty for
// broadcast events such as library changes.
type StreamEvent struct {
	Kind     EventKind
	UserID   string
	DeviceID string
}

// MediaSource is one playback candidate returned by negotiation.
type MediaSource struct {
	ID                   string `json:"id"`
	Container            string `json:"container"`
	Bitrate              int64  `json:"bitrate"`
	SupportsDirectPlay   bool   `json:"supports_direct_play"`
	SupportsDirectStream bool   `json:"supports_direct_stream"`
	SupportsTranscoding  bool   `json:"supports_transcoding"`
	Path                 string `json:"path,omitempty"`
	TranscodingURL       string `json:"transcoding_url,omitempty"`
}

// PlaybackInfo is the result of playback negotiation for one item.
type PlaybackInfo struct {
	PlaySessionID string        `json:"play_session_id"`
	Sources       []MediaSource `json:"sources"`
}

// DeviceProfile describes what a playback device can render; posted
// during negotiation so the server can decide how much to adapt.
type DeviceProfile struct {
	Name           string
	MaxBitrate     int
	Containers     []string
	AudioCodecs    []string
	VideoCodecs    []string
	TranscodeAudio string
}

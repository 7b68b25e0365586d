package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"jellysync/internal/models"
)

// DefaultProfile is a broadly compatible capability profile used when the
// caller has nothing better to declare.
var DefaultProfile = models.DeviceProfile{
	Name:           "jellysync",
	MaxBitrate:     140_000_000,
	Containers:     []string{"mp4", "mkv", "webm"},
	AudioCodecs:    []string{"aac", "mp3", "opus", "flac"},
	VideoCodecs:    []string{"h264", "hevc", "vp9"},
	TranscodeAudio: "aac",
}

// PlaybackRequest names the negotiation parameters for one item.
type PlaybackRequest struct {
	UserID        string
	MaxBitrate    int
	AudioIndex    *int
	SubtitleIndex *int
	StartMs       int64
	Profile       models.DeviceProfile
}

type directPlayProfileJSON struct {
	Container  string `json:"Container"`
	Type       string `json:"Type"`
	AudioCodec string `json:"AudioCodec,omitempty"`
	VideoCodec string `json:"VideoCodec,omitempty"`
}

type transcodingProfileJSON struct {
	Container  string `json:"Container"`
	Type       string `json:"Type"`
	Protocol   string `json:"Protocol"`
	AudioCodec string `json:"AudioCodec"`
	VideoCodec string `json:"VideoCodec,omitempty"`
}

type deviceProfileJSON struct {
	Name                string                   `json:"Name"`
	MaxStreamingBitrate int                      `json:"MaxStreamingBitrate"`
	DirectPlayProfiles  []directPlayProfileJSON  `json:"DirectPlayProfiles"`
	TranscodingProfiles []transcodingProfileJSON `json:"TranscodingProfiles"`
}

func encodeProfile(p models.DeviceProfile) deviceProfileJSON {
	out := deviceProfileJSON{
		Name:                p.Name,
		MaxStreamingBitrate: p.MaxBitrate,
	}
	audio := strings.Join(p.AudioCodecs, ",")
	video := strings.Join(p.VideoCodecs, ",")
	for _, container := range p.Containers {
		out.DirectPlayProfiles = append(out.DirectPlayProfiles, directPlayProfileJSON{
			Container:  container,
			Type:       "Video",
			AudioCodec: audio,
			VideoCodec: video,
		})
	}
	out.TranscodingProfiles = append(out.TranscodingProfiles, transcodingProfileJSON{
		Container:  "ts",
		Type:       "Video",
		Protocol:   "hls",
		AudioCodec: p.TranscodeAudio,
		VideoCodec: "h264",
	})
	return out
}

type mediaSourceJSON struct {
	ID                   string `json:"Id"`
	Container            string `json:"Container"`
	Bitrate              int64  `json:"Bitrate"`
	Path                 string `json:"Path"`
	SupportsDirectPlay   bool   `json:"SupportsDirectPlay"`
	SupportsDirectStream bool   `json:"SupportsDirectStream"`
	SupportsTranscoding  bool   `json:"SupportsTranscoding"`
	TranscodingURL       string `json:"TranscodingUrl"`
}

type playbackInfoJSON struct {
	MediaSources  []mediaSourceJSON `json:"MediaSources"`
	PlaySessionID string            `json:"PlaySessionId"`
	ErrorCode     string            `json:"ErrorCode"`
}

// PlaybackInfo negotiates playback of an item: it posts the capability
// profile and returns the candidate media sources plus the play-session
// id that correlates later transcoding-control calls. A fresh play
// session id is generated when the server does not assign one.
func (c *Client) PlaybackInfo(ctx context.Context, itemID string, req PlaybackRequest) (*models.PlaybackInfo, error) {
	const op = "playback info"

	maxBitrate := req.MaxBitrate
	if maxBitrate == 0 {
		maxBitrate = req.Profile.MaxBitrate
	}

	payload := map[string]any{
		"UserId":              req.UserID,
		"MaxStreamingBitrate": maxBitrate,
		"StartTimeTicks":      req.StartMs * ticksPerMs,
		"DeviceProfile":       encodeProfile(req.Profile),
		"AutoOpenLiveStream":  true,
	}
	if req.AudioIndex != nil {
		payload["AudioStreamIndex"] = *req.AudioIndex
	}
	if req.SubtitleIndex != nil {
		payload["SubtitleStreamIndex"] = *req.SubtitleIndex
	}

	raw, err := c.do(ctx, op, http.MethodPost, "/Items/"+url.PathEscape(itemID)+"/PlaybackInfo", nil, payload)
	if err != nil {
		return nil, err
	}

	var data playbackInfoJSON
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	if data.ErrorCode != "" {
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("server error code %s", data.ErrorCode)}
	}

	info := &models.PlaybackInfo{PlaySessionID: data.PlaySessionID}
	if info.PlaySessionID == "" {
		info.PlaySessionID = uuid.NewString()
	}
	for _, src := range data.MediaSources {
		info.Sources = append(info.Sources, models.MediaSource{
			ID:                   src.ID,
			Container:            src.Container,
			Bitrate:              src.Bitrate,
			Path:                 src.Path,
			SupportsDirectPlay:   src.SupportsDirectPlay,
			SupportsDirectStream: src.SupportsDirectStream,
			SupportsTranscoding:  src.SupportsTranscoding,
			TranscodingURL:       src.TranscodingURL,
		})
	}
	return info, nil
}

// SelectMediaSource picks the playback source per the negotiation
// contract: first direct-play source, else first direct-stream source,
// else the first one with a transcoding URL.
func SelectMediaSource(sources []models.MediaSource) (models.MediaSource, bool) {
	for _, s := range sources {
		if s.SupportsDirectPlay {
			return s, true
		}
	}
	for _, s := range sources {
		if s.SupportsDirectStream {
			return s, true
		}
	}
	for _, s := range sources {
		if s.SupportsTranscoding && s.TranscodingURL != "" {
			return s, true
		}
	}
	return models.MediaSource{}, false
}

// StreamURL resolves the playback URL for a selected source within a
// negotiated play session.
func (c *Client) StreamURL(itemID, playSessionID string, src models.MediaSource) string {
	if !src.SupportsDirectPlay && !src.SupportsDirectStream && src.TranscodingURL != "" {
		return c.baseURL + src.TranscodingURL
	}
	q := url.Values{}
	q.Set("Static", "true")
	q.Set("MediaSourceId", src.ID)
	q.Set("DeviceId", c.deviceID)
	q.Set("PlaySessionId", playSessionID)
	q.Set("api_key", c.token)
	return c.baseURL + "/Videos/" + url.PathEscape(itemID) + "/stream?" + q.Encode()
}

// StopTranscoding tells the server to release an active encode for this
// device's play session.
func (c *Client) StopTranscoding(ctx context.Context, playSessionID string) error {
	const op = "stop transcoding"
	q := url.Values{}
	q.Set("DeviceId", c.deviceID)
	q.Set("PlaySessionId", playSessionID)
	_, err := c.do(ctx, op, http.MethodDelete, "/Videos/ActiveEncodings", q, nil)
	if IsNotFound(err) {
		// Nothing was transcoding; releasing is idempotent.
		return nil
	}
	return err
}

// AudioStreamURL builds the universal audio URL for an item: a single GET
// the player can fetch, naming the preferred containers and a transcoding
// fallback so the server picks the cheapest delivery it can.
func (c *Client) AudioStreamURL(itemID, userID string, maxBitrate int, containers []string, transcodeContainer string) string {
	q := url.Values{}
	q.Set("UserId", userID)
	q.Set("DeviceId", c.deviceID)
	q.Set("MaxStreamingBitrate", strconv.Itoa(maxBitrate))
	q.Set("Container", strings.Join(containers, ","))
	q.Set("TranscodingContainer", transcodeContainer)
	q.Set("TranscodingProtocol", "http")
	q.Set("api_key", c.token)
	return c.baseURL + "/Audio/" + url.PathEscape(itemID) + "/universal?" + q.Encode()
}

// ImageOptions constrain an image fetch. Zero values are omitted from
// the URL.
type ImageOptions struct {
	MaxWidth  int
	MaxHeight int
	Tag       string
}

// ImageURL builds the artwork URL for an item. imageType is the server's
// image class, e.g. "Primary" or "Backdrop".
func (c *Client) ImageURL(itemID, imageType string, opts ImageOptions) string {
	q := url.Values{}
	if opts.MaxWidth > 0 {
		q.Set("maxWidth", strconv.Itoa(opts.MaxWidth))
	}
	if opts.MaxHeight > 0 {
		q.Set("maxHeight", strconv.Itoa(opts.MaxHeight))
	}
	if opts.Tag != "" {
		q.Set("tag", opts.Tag)
	}
	u := c.baseURL + "/Items/" + url.PathEscape(itemID) + "/Images/" + url.PathEscape(imageType)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

package jellyfin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"jellysync/internal/models"
)

func TestPlaybackInfoNegotiation(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/Items/item-1/PlaybackInfo" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		w.Write([]byte(`{
			"PlaySessionId": "ps-123",
			"MediaSources": [
				{"Id":"src-1","Container":"mkv","SupportsDirectPlay":true,"SupportsDirectStream":true,"SupportsTranscoding":true},
				{"Id":"src-2","Container":"ts","SupportsDirectPlay":false,"SupportsDirectStream":false,"SupportsTranscoding":true,"TranscodingUrl":"/videos/item-1/master.m3u8"}
			]
		}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	audioIdx := 1
	info, err := c.PlaybackInfo(context.Background(), "item-1", PlaybackRequest{
		UserID:     "u1",
		AudioIndex: &audioIdx,
		Profile:    DefaultProfile,
	})
	if err != nil {
		t.Fatal(err)
	}

	if info.PlaySessionID != "ps-123" {
		t.Errorf("play session id = %q", info.PlaySessionID)
	}
	if len(info.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(info.Sources))
	}

	if gotBody["UserId"] != "u1" {
		t.Errorf("UserId = %v", gotBody["UserId"])
	}
	if gotBody["AudioStreamIndex"] != float64(1) {
		t.Errorf("AudioStreamIndex = %v", gotBody["AudioStreamIndex"])
	}
	if _, ok := gotBody["SubtitleStreamIndex"]; ok {
		t.Error("unset subtitle index must be omitted")
	}
	profile, ok := gotBody["DeviceProfile"].(map[string]any)
	if !ok {
		t.Fatal("missing DeviceProfile")
	}
	if profile["MaxStreamingBitrate"] != float64(DefaultProfile.MaxBitrate) {
		t.Errorf("MaxStreamingBitrate = %v", profile["MaxStreamingBitrate"])
	}
}

func TestPlaybackInfoGeneratesPlaySessionID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"MediaSources":[]}`))
	}))
	defer ts.Close()

	info, err := newTestClient(t, ts.URL).PlaybackInfo(context.Background(), "x", PlaybackRequest{Profile: DefaultProfile})
	if err != nil {
		t.Fatal(err)
	}
	if info.PlaySessionID == "" {
		t.Error("expected a generated play session id")
	}
}

func TestSelectMediaSourceDirectPlayFirst(t *testing.T) {
	sources := []models.MediaSource{
		{ID: "transcode-only", SupportsTranscoding: true, TranscodingURL: "/t.m3u8"},
		{ID: "direct", SupportsDirectPlay: true},
	}
	src, ok := SelectMediaSource(sources)
	if !ok {
		t.Fatal("expected a source")
	}
	if src.ID != "direct" {
		t.Errorf("selected %q, want the direct-play source", src.ID)
	}
}

func TestSelectMediaSourceFallbackOrder(t *testing.T) {
	stream := []models.MediaSource{
		{ID: "t", SupportsTranscoding: true, TranscodingURL: "/t.m3u8"},
		{ID: "ds", SupportsDirectStream: true},
	}
	if src, _ := SelectMediaSource(stream); src.ID != "ds" {
		t.Errorf("selected %q, want direct-stream before transcode", src.ID)
	}

	transcode := []models.MediaSource{
		{ID: "t", SupportsTranscoding: true, TranscodingURL: "/t.m3u8"},
	}
	if src, _ := SelectMediaSource(transcode); src.ID != "t" {
		t.Errorf("selected %q, want transcode fallback", src.ID)
	}

	if _, ok := SelectMediaSource(nil); ok {
		t.Error("no sources must select nothing")
	}
}

func TestStreamURL(t *testing.T) {
	c := newTestClient(t, "http://media.local")

	direct := models.MediaSource{ID: "src-1", SupportsDirectPlay: true}
	u, err := url.Parse(c.StreamURL("item-1", "ps-1", direct))
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/Videos/item-1/stream" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("Static") != "true" || q.Get("MediaSourceId") != "src-1" ||
		q.Get("DeviceId") != "device-1" || q.Get("PlaySessionId") != "ps-1" {
		t.Errorf("query = %v", q)
	}

	transcode := models.MediaSource{ID: "src-2", SupportsTranscoding: true, TranscodingURL: "/videos/item-1/master.m3u8?x=1"}
	got := c.StreamURL("item-1", "ps-1", transcode)
	if got != "http://media.local/videos/item-1/master.m3u8?x=1" {
		t.Errorf("transcode url = %q", got)
	}
}

func TestStopTranscoding(t *testing.T) {
	var gotQuery url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		if r.URL.Path != "/Videos/ActiveEncodings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	if err := newTestClient(t, ts.URL).StopTranscoding(context.Background(), "ps-9"); err != nil {
		t.Fatal(err)
	}
	if gotQuery.Get("DeviceId") != "device-1" || gotQuery.Get("PlaySessionId") != "ps-9" {
		t.Errorf("query = %v", gotQuery)
	}
}

func TestStopTranscodingNotFoundIsIdempotent(t *testing.T) {
	ts := statusServer(http.StatusNotFound)
	defer ts.Close()

	if err := newTestClient(t, ts.URL).StopTranscoding(context.Background(), "ps-9"); err != nil {
		t.Errorf("404 on stop should be nil, got %v", err)
	}
}

func TestAudioStreamURL(t *testing.T) {
	c := newTestClient(t, "http://media.local")
	u, err := url.Parse(c.AudioStreamURL("song-1", "u1", 320000, []string{"opus", "mp3"}, "ts"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/Audio/song-1/universal" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("UserId") != "u1" || q.Get("DeviceId") != "device-1" {
		t.Errorf("identity params = %v", q)
	}
	if q.Get("MaxStreamingBitrate") != "320000" {
		t.Errorf("bitrate = %q", q.Get("MaxStreamingBitrate"))
	}
	if q.Get("Container") != "opus,mp3" {
		t.Errorf("containers = %q", q.Get("Container"))
	}
	if q.Get("TranscodingContainer") != "ts" {
		t.Errorf("fallback container = %q", q.Get("TranscodingContainer"))
	}
}

func TestImageURL(t *testing.T) {
	c := newTestClient(t, "http://media.local")

	plain := c.ImageURL("item-1", "Primary", ImageOptions{})
	if plain != "http://media.local/Items/item-1/Images/Primary" {
		t.Errorf("plain url = %q", plain)
	}

	sized := c.ImageURL("item-1", "Backdrop", ImageOptions{MaxWidth: 640, MaxHeight: 360, Tag: "abc"})
	u, err := url.Parse(sized)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(u.Path, "/Images/Backdrop") {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("maxWidth") != "640" || q.Get("maxHeight") != "360" || q.Get("tag") != "abc" {
		t.Errorf("query = %v", q)
	}
}

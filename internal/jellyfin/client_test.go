package jellyfin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"jellysync/internal/models"
)

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c := New(models.Server{ID: "srv1", Name: "Test", URL: url, Token: "test-token"},
		"device-1", zap.NewNop(), opts...)
	t.Cleanup(c.Close)
	return c
}

const sessionsBody = `[
  {
    "Id": "conn-1",
    "UserId": "u1",
    "UserName": "alice",
    "Client": "Jellyfin Web",
    "DeviceId": "dev-1",
    "DeviceName": "Firefox",
    "ApplicationVersion": "10.9.0",
    "NowPlayingItem": {
      "Id": "item-1",
      "Name": "Pilot",
      "Type": "Episode",
      "SeriesName": "Some Show",
      "SeasonName": "Season 1",
      "RunTimeTicks": 36000000000
    },
    "PlayState": {
      "PositionTicks": 9000000000,
      "IsPaused": true,
      "IsMuted": false,
      "VolumeLevel": 80,
      "PlayMethod": "DirectPlay"
    }
  },
  {
    "Id": "conn-2",
    "UserName": "bob",
    "Client": "Jellyfin Android",
    "DeviceId": "dev-2",
    "DeviceName": "Pixel"
  },
  {
    "Id": "conn-3",
    "UserName": "ghost",
    "Client": "Old Client",
    "DeviceName": "no device id"
  }
]`

func TestSessions(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "test-token" {
			t.Error("missing X-Emby-Token header")
		}
		if r.URL.Path != "/Sessions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sessionsBody))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	sessions, err := c.Sessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions (no-device-id excluded), got %d", len(sessions))
	}

	s := sessions[0]
	if s.DeviceID != "dev-1" {
		t.Errorf("device id = %q, want dev-1", s.DeviceID)
	}
	if s.SessionID != "conn-1" {
		t.Errorf("session id = %q, want conn-1", s.SessionID)
	}
	if s.UserName != "alice" || s.UserID != "u1" {
		t.Errorf("user = %q/%q", s.UserName, s.UserID)
	}
	if s.NowPlaying == nil {
		t.Fatal("expected now playing")
	}
	if s.NowPlaying.RuntimeMs != 3600000 {
		t.Errorf("runtime = %d, want 3600000", s.NowPlaying.RuntimeMs)
	}
	if s.PlayState == nil {
		t.Fatal("expected play state")
	}
	if s.PlayState.PositionMs != 900000 {
		t.Errorf("position = %d, want 900000", s.PlayState.PositionMs)
	}
	if !s.PlayState.IsPaused || s.PlayState.Volume != 80 {
		t.Errorf("play state = %+v", s.PlayState)
	}
	if s.PlayState.Method != models.PlayMethodDirectPlay {
		t.Errorf("method = %q", s.PlayState.Method)
	}

	if sessions[1].NowPlaying != nil {
		t.Error("idle session should have no now playing")
	}
}

func TestInfoAndPublicInfo(t *testing.T) {
	var sawAuth, sawNoAuth bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/System/Info":
			sawAuth = r.Header.Get("X-Emby-Token") == "test-token"
		case "/System/Info/Public":
			sawNoAuth = r.Header.Get("X-Emby-Token") == ""
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"Id":"abc","ServerName":"Home","Version":"10.9.0"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)

	info, err := c.Info(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "abc" || info.Name != "Home" || info.Version != "10.9.0" {
		t.Errorf("info = %+v", info)
	}
	if !sawAuth {
		t.Error("Info must send the auth header")
	}

	if _, err := c.PublicInfo(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !sawNoAuth {
		t.Error("PublicInfo must not send the auth header")
	}
}

func TestUsers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"Id":"u1","Name":"alice","Policy":{"IsAdministrator":true}},
			{"Id":"u2","Name":"bob","Policy":{"IsAdministrator":false}}
		]`))
	}))
	defer ts.Close()

	users, err := newTestClient(t, ts.URL).Users(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if !users[0].IsAdmin || users[1].IsAdmin {
		t.Errorf("admin flags wrong: %+v", users)
	}
}

func statusServer(status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
		kind   string
	}{
		{"unauthorized", http.StatusUnauthorized, IsAuth, "auth"},
		{"forbidden", http.StatusForbidden, IsAuth, "auth"},
		{"not found", http.StatusNotFound, IsNotFound, "not found"},
		{"internal error", http.StatusInternalServerError, IsServer, "server"},
		{"bad gateway", http.StatusBadGateway, IsServer, "server"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := statusServer(tc.status)
			defer ts.Close()

			_, err := newTestClient(t, ts.URL).Sessions(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !tc.check(err) {
				t.Errorf("status %d not classified as %s: %v", tc.status, tc.kind, err)
			}
		})
	}
}

func TestConnectionRefusedIsConnectionError(t *testing.T) {
	// Reserve a port, then close it so nothing is listening.
	ts := statusServer(http.StatusOK)
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).Sessions(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsConnection(err) {
		t.Errorf("refused connection not classified as connection error: %v", err)
	}
	if IsAuth(err) || IsNotFound(err) {
		t.Errorf("refused connection misclassified: %v", err)
	}
}

func TestTimeoutIsTimeoutError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, WithTimeout(20*time.Millisecond))
	_, err := c.Sessions(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTimeout(err) {
		t.Errorf("timeout not classified: %v", err)
	}
	if !IsConnection(err) {
		t.Error("timeout must also satisfy IsConnection")
	}
}

func TestEmbeddedErrorBodyFailsCall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"Message":"database locked"}}`))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).Info(context.Background())
	if err == nil {
		t.Fatal("embedded error object must fail the call")
	}
	if !IsServer(err) {
		t.Errorf("embedded error classified as %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	transient := []*Error{
		{Kind: KindConnection},
		{Kind: KindTimeout},
		{Kind: KindSSL},
		{Kind: KindServer},
	}
	for _, e := range transient {
		if !IsTransient(e) {
			t.Errorf("%s should be transient", e.Kind)
		}
	}
	fatal := []*Error{{Kind: KindAuth}, {Kind: KindNotFound}}
	for _, e := range fatal {
		if IsTransient(e) {
			t.Errorf("%s should not be transient", e.Kind)
		}
	}
}

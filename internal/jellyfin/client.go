// Package jellyfin is the single point of outbound communication with a
// Jellyfin-compatible media server. Every operation returns a typed
// result or an *Error classified by Kind; nothing retries internally.
package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jellysync/internal/httputil"
	"jellysync/internal/models"
)

const authHeader = "X-Emby-Token"

// ticksPerMs converts the server's 100ns ticks to milliseconds.
const ticksPerMs = 10_000

type Client struct {
	serverID   string
	serverName string
	baseURL    string
	token      string
	deviceID   string
	log        *zap.Logger
	limiter    *rate.Limiter

	httpOnce sync.Once
	http     *http.Client
}

type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = httputil.NewClientWithTimeout(d)
	}
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// New builds a client for one server. deviceID identifies this
// installation to the server; it is embedded in streaming URLs so the
// server can correlate transcode sessions.
func New(srv models.Server, deviceID string, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		serverID:   srv.ID,
		serverName: srv.Name,
		baseURL:    strings.TrimRight(srv.URL, "/"),
		token:      srv.Token,
		deviceID:   deviceID,
		log:        log,
		limiter:    rate.NewLimiter(20, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ServerID() string { return c.serverID }
func (c *Client) BaseURL() string  { return c.baseURL }
func (c *Client) DeviceID() string { return c.deviceID }

// Token returns the credential, for collaborators that open their own
// channel to the same server (the event socket).
func (c *Client) Token() string { return c.token }

// httpClient creates the shared transport on first use.
func (c *Client) httpClient() *http.Client {
	c.httpOnce.Do(func() {
		if c.http == nil {
			c.http = httputil.NewClient()
		}
	})
	return c.http
}

// Close releases the shared transport. The client must not be used after.
func (c *Client) Close() {
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
}

type doOpts struct {
	noAuth bool
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	return c.doWithOpts(ctx, op, method, path, query, payload, doOpts{})
}

func (c *Client) doWithOpts(ctx context.Context, op, method, path string, query url.Values, payload any, opts doOpts) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError(op, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &Error{Kind: KindConnection, Op: op, Err: err}
	}
	if !opts.noAuth {
		req.Header.Set(authHeader, c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer httputil.DrainBody(resp)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return nil, transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(op, resp.StatusCode)
	}

	if msg := embeddedError(raw); msg != "" {
		c.log.Warn("server returned an error body on a 2xx response",
			zap.String("op", op), zap.String("error", httputil.Truncate([]byte(msg), 200)))
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("embedded error: %s", msg)}
	}

	return json.RawMessage(raw), nil
}

// embeddedError extracts an error object the server sometimes embeds in
// an otherwise successful response body.
func embeddedError(raw []byte) string {
	var probe struct {
		Error struct {
			Message string `json:"Message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Error.Message
}

// SystemInfo is the identity of the remote server.
type SystemInfo struct {
	ID      string `json:"Id"`
	Name    string `json:"ServerName"`
	Version string `json:"Version"`
}

// Info fetches the authenticated server identity, used to validate
// credentials during setup.
func (c *Client) Info(ctx context.Context) (*SystemInfo, error) {
	const op = "system info"
	raw, err := c.do(ctx, op, http.MethodGet, "/System/Info", nil, nil)
	if err != nil {
		return nil, err
	}
	var info SystemInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return &info, nil
}

// PublicInfo fetches the unauthenticated identity endpoint, used for
// pre-auth compatibility checks.
func (c *Client) PublicInfo(ctx context.Context) (*SystemInfo, error) {
	const op = "public system info"
	raw, err := c.doWithOpts(ctx, op, http.MethodGet, "/System/Info/Public", nil, nil, doOpts{noAuth: true})
	if err != nil {
		return nil, err
	}
	var info SystemInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return &info, nil
}

type userJSON struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Policy struct {
		IsAdministrator bool `json:"IsAdministrator"`
	} `json:"Policy"`
}

// Users lists the server's accounts.
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	const op = "users"
	raw, err := c.do(ctx, op, http.MethodGet, "/Users", nil, nil)
	if err != nil {
		return nil, err
	}
	var data []userJSON
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	users := make([]models.User, 0, len(data))
	for _, u := range data {
		users = append(users, models.User{ID: u.ID, Name: u.Name, IsAdmin: u.Policy.IsAdministrator})
	}
	return users, nil
}

type sessionJSON struct {
	ID                 string `json:"Id"`
	UserID             string `json:"UserId"`
	UserName           string `json:"UserName"`
	Client             string `json:"Client"`
	DeviceID           string `json:"DeviceId"`
	DeviceName         string `json:"DeviceName"`
	ApplicationVersion string `json:"ApplicationVersion"`

	NowPlayingItem *struct {
		ID           string `json:"Id"`
		Name         string `json:"Name"`
		Type         string `json:"Type"`
		SeriesName   string `json:"SeriesName"`
		SeasonName   string `json:"SeasonName"`
		RunTimeTicks int64  `json:"RunTimeTicks"`
	} `json:"NowPlayingItem"`

	PlayState *struct {
		PositionTicks int64  `json:"PositionTicks"`
		IsPaused      bool   `json:"IsPaused"`
		IsMuted       bool   `json:"IsMuted"`
		VolumeLevel   int    `json:"VolumeLevel"`
		PlayMethod    string `json:"PlayMethod"`
	} `json:"PlayState"`
}

// Sessions lists the server's live client sessions. Sessions without a
// device id cannot be tracked across reconnects and are skipped.
func (c *Client) Sessions(ctx context.Context) ([]models.Session, error) {
	const op = "sessions"
	raw, err := c.do(ctx, op, http.MethodGet, "/Sessions", nil, nil)
	if err != nil {
		return nil, err
	}
	var data []sessionJSON
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}

	now := time.Now().UTC()
	sessions := make([]models.Session, 0, len(data))
	for _, s := range data {
		if s.DeviceID == "" {
			continue
		}
		sess := models.Session{
			DeviceID:   s.DeviceID,
			SessionID:  s.ID,
			UserID:     s.UserID,
			UserName:   s.UserName,
			Client:     s.Client,
			DeviceName: s.DeviceName,
			AppVersion: s.ApplicationVersion,
			LastSeen:   now,
		}
		if np := s.NowPlayingItem; np != nil {
			sess.NowPlaying = &models.NowPlaying{
				ItemID:     np.ID,
				Name:       np.Name,
				Type:       np.Type,
				SeriesName: np.SeriesName,
				SeasonName: np.SeasonName,
				RuntimeMs:  np.RunTimeTicks / ticksPerMs,
			}
		}
		if ps := s.PlayState; ps != nil {
			sess.PlayState = &models.PlayState{
				PositionMs: ps.PositionTicks / ticksPerMs,
				IsPaused:   ps.IsPaused,
				IsMuted:    ps.IsMuted,
				Volume:     ps.VolumeLevel,
				Method:     models.PlayMethod(ps.PlayMethod),
			}
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

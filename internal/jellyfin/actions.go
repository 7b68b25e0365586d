package jellyfin

import (
	"context"
	"net/http"
	"net/url"

	"jellysync/internal/models"
)

// RefreshLibrary asks the server to rescan its libraries. The scan runs
// server-side; completion is observed through library-changed events.
func (c *Client) RefreshLibrary(ctx context.Context) error {
	_, err := c.do(ctx, "library refresh", http.MethodPost, "/Library/Refresh", nil, nil)
	return err
}

// SetPlayed marks an item played or unplayed for a user.
func (c *Client) SetPlayed(ctx context.Context, userID, itemID string, played bool) error {
	method := http.MethodPost
	if !played {
		method = http.MethodDelete
	}
	path := "/Users/" + url.PathEscape(userID) + "/PlayedItems/" + url.PathEscape(itemID)
	_, err := c.do(ctx, "set played", method, path, nil, nil)
	return err
}

// SetFavorite marks an item as a favorite, or clears the flag.
func (c *Client) SetFavorite(ctx context.Context, userID, itemID string, favorite bool) error {
	method := http.MethodPost
	if !favorite {
		method = http.MethodDelete
	}
	path := "/Users/" + url.PathEscape(userID) + "/FavoriteItems/" + url.PathEscape(itemID)
	_, err := c.do(ctx, "set favorite", method, path, nil, nil)
	return err
}

// ReportProgress posts the current playback position for a session, so
// the server's resume points and watch state stay accurate.
func (c *Client) ReportProgress(ctx context.Context, itemID, playSessionID string, positionMs int64, state *models.PlayState) error {
	payload := map[string]any{
		"ItemId":        itemID,
		"PlaySessionId": playSessionID,
		"PositionTicks": positionMs * ticksPerMs,
	}
	if state != nil {
		payload["IsPaused"] = state.IsPaused
		payload["IsMuted"] = state.IsMuted
		payload["VolumeLevel"] = state.Volume
		payload["PlayMethod"] = string(state.Method)
	}
	_, err := c.do(ctx, "report progress", http.MethodPost, "/Sessions/Playing/Progress", nil, payload)
	return err
}

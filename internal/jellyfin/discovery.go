package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jellysync/internal/models"
)

type itemJSON struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	Type           string            `json:"Type"`
	SeriesName     string            `json:"SeriesName"`
	ProductionYear int               `json:"ProductionYear"`
	RunTimeTicks   int64             `json:"RunTimeTicks"`
	DateCreated    string            `json:"DateCreated"`
	ImageTags      map[string]string `json:"ImageTags"`
	UserData       *struct {
		PlayedPercentage float64 `json:"PlayedPercentage"`
	} `json:"UserData"`
}

type itemsResultJSON struct {
	Items            []itemJSON `json:"Items"`
	TotalRecordCount int        `json:"TotalRecordCount"`
}

func toMediaItem(it itemJSON) models.MediaItem {
	item := models.MediaItem{
		ID:         it.ID,
		Name:       it.Name,
		Type:       it.Type,
		SeriesName: it.SeriesName,
		Year:       it.ProductionYear,
		RuntimeMs:  it.RunTimeTicks / ticksPerMs,
		ImageTag:   it.ImageTags["Primary"],
	}
	if it.DateCreated != "" {
		if t, err := time.Parse(time.RFC3339, it.DateCreated); err == nil {
			item.AddedAt = t.UTC()
		}
	}
	if it.UserData != nil {
		item.PlayedPct = it.UserData.PlayedPercentage
	}
	return item
}

func (c *Client) itemList(ctx context.Context, op, path string, query url.Values) ([]models.MediaItem, error) {
	raw, err := c.do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	var result itemsResultJSON
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	items := make([]models.MediaItem, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, toMediaItem(it))
	}
	return items, nil
}

// NextUp lists the next unwatched episodes of series the user follows.
func (c *Client) NextUp(ctx context.Context, userID string, limit int) ([]models.MediaItem, error) {
	q := url.Values{}
	q.Set("UserId", userID)
	q.Set("Limit", strconv.Itoa(limit))
	return c.itemList(ctx, "next up", "/Shows/NextUp", q)
}

// ResumeItems lists the user's partially watched items, each carrying its
// played percentage.
func (c *Client) ResumeItems(ctx context.Context, userID string, limit int) ([]models.MediaItem, error) {
	q := url.Values{}
	q.Set("Limit", strconv.Itoa(limit))
	q.Set("Recursive", "true")
	q.Set("MediaTypes", "Video")
	q.Set("Fields", "MediaSourceCount")
	return c.itemList(ctx, "resume items", "/Users/"+url.PathEscape(userID)+"/Items/Resume", q)
}

// LatestItems lists the most recently added library items visible to the
// user. Unlike the other feeds this endpoint returns a bare array.
func (c *Client) LatestItems(ctx context.Context, userID string, limit int) ([]models.MediaItem, error) {
	const op = "latest items"
	q := url.Values{}
	q.Set("Limit", strconv.Itoa(limit))
	raw, err := c.do(ctx, op, http.MethodGet, "/Users/"+url.PathEscape(userID)+"/Items/Latest", q, nil)
	if err != nil {
		return nil, err
	}
	var data []itemJSON
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	items := make([]models.MediaItem, 0, len(data))
	for _, it := range data {
		items = append(items, toMediaItem(it))
	}
	return items, nil
}

// Suggestions lists the server's picks for the user.
func (c *Client) Suggestions(ctx context.Context, userID string, limit int) ([]models.MediaItem, error) {
	q := url.Values{}
	q.Set("Limit", strconv.Itoa(limit))
	return c.itemList(ctx, "suggestions", "/Users/"+url.PathEscape(userID)+"/Suggestions", q)
}

// countQuery fetches only TotalRecordCount by asking for zero items.
func (c *Client) countQuery(ctx context.Context, op, userID string, extra url.Values) (int, error) {
	q := url.Values{}
	q.Set("UserId", userID)
	q.Set("Recursive", "true")
	q.Set("Limit", "0")
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	raw, err := c.do(ctx, op, http.MethodGet, "/Items", q, nil)
	if err != nil {
		return 0, err
	}
	var result itemsResultJSON
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return result.TotalRecordCount, nil
}

// Counts aggregates the per-user item counts shown on discovery views.
func (c *Client) Counts(ctx context.Context, userID string) (models.ItemCounts, error) {
	var counts models.ItemCounts
	var err error

	if counts.Favorites, err = c.countQuery(ctx, "favorite count", userID, url.Values{"Filters": {"IsFavorite"}}); err != nil {
		return models.ItemCounts{}, err
	}
	if counts.Played, err = c.countQuery(ctx, "played count", userID, url.Values{"Filters": {"IsPlayed"}}); err != nil {
		return models.ItemCounts{}, err
	}
	if counts.Resumable, err = c.countQuery(ctx, "resumable count", userID, url.Values{"Filters": {"IsResumable"}}); err != nil {
		return models.ItemCounts{}, err
	}
	if counts.Playlists, err = c.countQuery(ctx, "playlist count", userID, url.Values{"IncludeItemTypes": {"Playlist"}}); err != nil {
		return models.ItemCounts{}, err
	}
	return counts, nil
}

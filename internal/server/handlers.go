package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jellysync/internal/httputil"
	"jellysync/internal/jellyfin"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type serverStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	EventState  string `json:"event_state"`
	SessionPoll string `json:"session_poll"`
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	coords := s.registry.List()
	out := make([]serverStatus, 0, len(coords))
	for _, c := range coords {
		srv := c.Server()
		out = append(out, serverStatus{
			ID:          srv.ID,
			Name:        srv.Name,
			Version:     srv.Version,
			EventState:  c.Events.State().String(),
			SessionPoll: c.Sessions.Interval().String(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coord(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, c.Sessions.Snapshot())
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coord(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	data, err := c.Discovery.GetOrRefresh(r.Context(), userID)
	if err != nil {
		s.discoveryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleDiscoveryRefresh(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coord(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	data, err := c.Discovery.ForceRefresh(r.Context(), userID)
	if err != nil {
		s.discoveryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

func (s *Server) discoveryError(w http.ResponseWriter, err error) {
	switch {
	case jellyfin.IsAuth(err):
		s.writeError(w, http.StatusBadGateway, "server rejected credentials")
	case jellyfin.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, "unknown user")
	default:
		s.writeError(w, http.StatusBadGateway, "upstream error")
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coord(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, c.Discovery.Stats())
}

// handleThumb fetches an item's primary image from the media server with
// this process's credential and relays it, so the token never reaches
// the browser.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coord(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemID")
	if strings.ContainsAny(itemID, "./?#") {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	imgURL := c.Client.ImageURL(itemID, "Primary", jellyfin.ImageOptions{
		MaxHeight: 300,
		Tag:       r.URL.Query().Get("tag"),
	})

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, imgURL, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "bad request")
		return
	}
	req.Header.Set("X-Emby-Token", c.Server().Token)

	resp, err := thumbClient.Do(req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "upstream error")
		return
	}
	defer httputil.DrainBody(resp)

	if resp.StatusCode != http.StatusOK {
		s.writeError(w, resp.StatusCode, "upstream error")
		return
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		ct = "image/jpeg"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, io.LimitReader(resp.Body, 5<<20)); err != nil {
		s.log.Debug("relaying image", zap.Error(err))
	}
}

var thumbClient = httputil.NewClient()

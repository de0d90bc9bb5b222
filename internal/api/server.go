// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/appdrop/appdrop/internal/catalog"
	"github.com/appdrop/appdrop/internal/logging"
	"github.com/appdrop/appdrop/internal/metrics"
	"github.com/appdrop/appdrop/internal/modules"
	"github.com/appdrop/appdrop/internal/proxy"
	"github.com/appdrop/appdrop/internal/stats"
)

// Downloads bundles the initialized downloads module: the catalog cache,
// the streaming proxy, and the optional stats store.
type Downloads struct {
	Catalog *catalog.Cache
	Proxy   *proxy.Proxy
	Stats   *stats.Store // nil when DATABASE_URL is not set
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// DownloadInfo is one row of the catalog listing, one per (app, platform).
type DownloadInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
	ReleaseDate string `json:"release_date"`
	Description string `json:"description,omitempty"`
}

// RefreshResponse is the body of a successful catalog refresh.
type RefreshResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	GeneratedAt int64  `json:"generated_at"`
	Entries     int    `json:"entries"`
}

// Server is the HTTP server.
type Server struct {
	registry *modules.Registry
}

// NewServer creates a server acquiring its downloads module from registry.
func NewServer(registry *modules.Registry) *Server {
	return &Server{registry: registry}
}

// Handler builds the route table wrapped with request logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /downloads", s.handleListDownloads)
	mux.HandleFunc("POST /downloads", s.handleRefresh)
	mux.HandleFunc("GET /downloads/{app}/{platform}", s.handleDownload)
	// A download path missing one of its two segments never matches the
	// pattern above; report the malformed request instead of a bare 404.
	mux.HandleFunc("GET /downloads/{rest...}", s.handleDownloadMissingParams)
	mux.HandleFunc("GET /stats", s.handleStats)

	return metrics.Middleware(logging.Middleware(mux))
}

// downloads returns the memoized downloads module, initializing it on the
// first request that needs it.
func (s *Server) downloads(r *http.Request) (*Downloads, error) {
	h, err := s.registry.Acquire(r.Context(), modules.ViewDownloads)
	if err != nil {
		return nil, err
	}
	d, ok := h.(*Downloads)
	if !ok {
		return nil, fmt.Errorf("unexpected module handle type %T for view %q", h, modules.ViewDownloads)
	}
	return d, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": "1.0"})
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	d, err := s.downloads(r)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "downloads module unavailable: "+err.Error())
		return
	}

	doc := d.Catalog.Load(r.Context())
	releaseDate := time.Unix(doc.Timestamp, 0).UTC().Format(time.RFC3339)

	listing := make([]DownloadInfo, 0, len(doc.Downloads))
	for _, app := range doc.Downloads {
		platforms := make([]string, 0, len(app.Platforms))
		for p := range app.Platforms {
			platforms = append(platforms, p)
		}
		sort.Strings(platforms)
		for _, p := range platforms {
			listing = append(listing, DownloadInfo{
				Name:     app.Name,
				Version:  "latest", // resolved lazily at download time
				Platform: p,
				Size:     0, // unknown until the asset is fetched
				DownloadURL: "/downloads/" + url.PathEscape(app.Name) +
					"/" + url.PathEscape(p),
				ReleaseDate: releaseDate,
				Description: app.Description,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listing)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	d, err := s.downloads(r)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "downloads module unavailable: "+err.Error())
		return
	}

	doc, err := d.Catalog.ForceRefresh(r.Context())
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "refresh catalog: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RefreshResponse{
		Success:     true,
		Message:     "catalog refreshed",
		GeneratedAt: doc.Timestamp,
		Entries:     len(doc.Downloads),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	d, err := s.downloads(r)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "downloads module unavailable: "+err.Error())
		return
	}

	app := r.PathValue("app")
	platform := r.PathValue("platform")

	dl, err := d.Proxy.FetchDownload(r.Context(), app, platform)
	if err != nil {
		s.sendDownloadError(w, r, err)
		metrics.RecordDownload(0, false)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s",
			dl.Filename, url.PathEscape(dl.Filename)))
	for key, values := range dl.Passthrough {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if dl.ContentLength >= 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", dl.ContentLength))
	}

	written, err := io.Copy(w, dl.Body)
	if err != nil {
		// Headers are already out; all we can do is log and count.
		logging.WithContext(r.Context()).Warn("download stream interrupted",
			zap.String("app", app),
			zap.String("platform", platform),
			zap.Int64("bytes_written", written),
			zap.Error(err))
		metrics.RecordDownload(written, false)
		return
	}
	metrics.RecordDownload(written, true)

	if d.Stats != nil {
		if err := d.Stats.Record(r.Context(), app, platform); err != nil {
			logging.Warn("record download stat",
				zap.String("app", app),
				zap.String("platform", platform),
				zap.Error(err))
		}
	}
}

func (s *Server) handleDownloadMissingParams(w http.ResponseWriter, r *http.Request) {
	s.sendError(w, http.StatusBadRequest, proxy.ErrBadRequest.Error())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	d, err := s.downloads(r)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "downloads module unavailable: "+err.Error())
		return
	}
	if d.Stats == nil {
		s.sendError(w, http.StatusNotFound, "download stats are not enabled")
		return
	}

	entries, err := d.Stats.List(r.Context())
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "list download stats: "+err.Error())
		return
	}
	if entries == nil {
		entries = []stats.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// sendDownloadError maps proxy failures onto HTTP statuses.
func (s *Server) sendDownloadError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *proxy.UpstreamError
	switch {
	case errors.Is(err, proxy.ErrBadRequest):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, proxy.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &upstream):
		s.sendError(w, upstream.Status, err.Error())
	default:
		logging.WithContext(r.Context()).Error("download failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

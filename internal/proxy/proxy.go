// Package proxy resolves the download location for an application/platform
// pair and streams the binary from upstream.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/appdrop/appdrop/internal/catalog"
	"github.com/appdrop/appdrop/internal/logging"
)

// ErrBadRequest indicates a missing app id or platform.
var ErrBadRequest = errors.New("app id and platform are required")

// ErrNotFound indicates an unknown application or platform.
var ErrNotFound = errors.New("unknown application or platform")

// UpstreamError reports a failed fetch of the resolved binary.
type UpstreamError struct {
	Status int
	URL    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Status, e.URL)
}

// CatalogLoader is the catalog capability the proxy needs.
type CatalogLoader interface {
	Load(ctx context.Context) catalog.Document
}

// Resolver is the release resolution capability the proxy needs.
type Resolver interface {
	ResolveLatestAsset(ctx context.Context, source catalog.PlatformSource) string
}

// Download is a streamed binary ready to be written to a client.
type Download struct {
	Body          io.ReadCloser
	Filename      string
	ContentType   string
	ContentLength int64 // -1 when upstream did not declare one

	// Passthrough headers: ETag, Last-Modified, Cache-Control when present.
	Passthrough http.Header
}

// Proxy wires the catalog cache and release resolver into a streaming
// download fetcher.
type Proxy struct {
	catalog   CatalogLoader
	resolver  Resolver
	client    *http.Client
	userAgent string
}

// New creates a download proxy. Every outbound fetch is bounded by timeout
// and carries userAgent.
func New(loader CatalogLoader, resolver Resolver, userAgent string, timeout time.Duration) *Proxy {
	return &Proxy{
		catalog:   loader,
		resolver:  resolver,
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// FetchDownload resolves the current download location for appID/platform
// and opens a stream to it. The caller owns the returned body.
func (p *Proxy) FetchDownload(ctx context.Context, appID, platform string) (*Download, error) {
	if appID == "" || platform == "" {
		return nil, ErrBadRequest
	}

	doc := p.catalog.Load(ctx)
	app, ok := doc.FindApp(appID)
	if !ok {
		return nil, fmt.Errorf("%w: app %q", ErrNotFound, appID)
	}
	source, ok := app.Platforms[platform]
	if !ok {
		return nil, fmt.Errorf("%w: platform %q for app %q", ErrNotFound, platform, appID)
	}

	effectiveURL := p.resolver.ResolveLatestAsset(ctx, source)
	if effectiveURL == "" {
		effectiveURL = source.FallbackURL
		logging.Debug("using fallback URL",
			zap.String("app", app.Name),
			zap.String("platform", platform))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, effectiveURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request for %s: %w", effectiveURL, err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", effectiveURL, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode, URL: effectiveURL}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	passthrough := http.Header{}
	for _, key := range []string{"ETag", "Last-Modified", "Cache-Control"} {
		if v := resp.Header.Get(key); v != "" {
			passthrough.Set(key, v)
		}
	}

	logging.Info("streaming download",
		zap.String("app", app.Name),
		zap.String("platform", platform),
		zap.String("url", effectiveURL),
		zap.Int64("content_length", resp.ContentLength))

	return &Download{
		Body:          resp.Body,
		Filename:      BuildFilename(appID, platform, effectiveURL),
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		Passthrough:   passthrough,
	}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9\-_.]`)

func sanitize(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}

// BuildFilename derives a caller-safe filename: the sanitized app id and
// platform joined with an underscore, carrying only the extension of the
// effective URL's last path segment.
func BuildFilename(appID, platform, effectiveURL string) string {
	ext := ""
	if u, err := url.Parse(effectiveURL); err == nil {
		ext = path.Ext(path.Base(u.Path))
	}
	return sanitize(appID) + "_" + sanitize(platform) + ext
}

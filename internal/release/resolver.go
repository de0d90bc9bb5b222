// Package release resolves the newest downloadable asset for a platform
// source by querying the upstream release API.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/appdrop/appdrop/internal/catalog"
	"github.com/appdrop/appdrop/internal/logging"
	"github.com/appdrop/appdrop/internal/metrics"
	"github.com/appdrop/appdrop/pkg/retry"
)

// maxResponseBytes caps how much of an upstream response is read.
const maxResponseBytes = 4 << 20

// Asset is one downloadable artifact published with a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type latestRelease struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Resolver queries `GET {apiBase}/repos/{repo}/releases/latest` with an
// identifying User-Agent and a bounded timeout.
type Resolver struct {
	apiBase   string
	userAgent string
	client    *http.Client
	retry     retry.Config
}

// NewResolver creates a resolver against apiBase (e.g. https://api.github.com).
func NewResolver(apiBase, userAgent string, timeout time.Duration) *Resolver {
	return &Resolver{
		apiBase:   apiBase,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		retry: retry.Config{
			MaxAttempts: 2,
			InitialWait: 200 * time.Millisecond,
			MaxWait:     2 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.1,
		},
	}
}

// ResolveLatestAsset returns the download URL of the first asset of the
// newest release whose name matches source.AssetPattern, in upstream order.
// Every failure mode (network error, non-2xx status, malformed response, no
// match) normalizes to an empty string; the caller falls back to
// source.FallbackURL.
func (r *Resolver) ResolveLatestAsset(ctx context.Context, source catalog.PlatformSource) string {
	start := time.Now()

	pattern, err := regexp.Compile(source.AssetPattern)
	if err != nil {
		logging.Warn("invalid asset pattern",
			zap.String("repo", source.Repo),
			zap.String("pattern", source.AssetPattern),
			zap.Error(err))
		metrics.RecordResolve("error", time.Since(start))
		return ""
	}

	rel, err := retry.DoWithResult(ctx, r.retry, func() (latestRelease, error) {
		return r.fetchLatest(ctx, source.Repo)
	})
	if err != nil {
		logging.Debug("release resolution failed, using fallback",
			zap.String("repo", source.Repo),
			zap.Error(err))
		metrics.RecordResolve("error", time.Since(start))
		return ""
	}

	for _, asset := range rel.Assets {
		if pattern.MatchString(asset.Name) {
			logging.Debug("release asset resolved",
				zap.String("repo", source.Repo),
				zap.String("tag", rel.TagName),
				zap.String("asset", asset.Name))
			metrics.RecordResolve("matched", time.Since(start))
			return asset.BrowserDownloadURL
		}
	}

	logging.Debug("no asset matched pattern",
		zap.String("repo", source.Repo),
		zap.String("pattern", source.AssetPattern),
		zap.Int("assets", len(rel.Assets)))
	metrics.RecordResolve("no_match", time.Since(start))
	return ""
}

func (r *Resolver) fetchLatest(ctx context.Context, repo string) (latestRelease, error) {
	var rel latestRelease

	url := fmt.Sprintf("%s/repos/%s/releases/latest", r.apiBase, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rel, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := r.client.Do(req)
	if err != nil {
		return rel, retry.Retryable(fmt.Errorf("fetch release: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		statusErr := fmt.Errorf("release API returned %d for %s", resp.StatusCode, repo)
		if resp.StatusCode >= http.StatusInternalServerError {
			return rel, retry.Retryable(statusErr)
		}
		return rel, statusErr
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&rel); err != nil {
		return rel, fmt.Errorf("decode release response: %w", err)
	}
	return rel, nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/appdrop/appdrop/internal/catalog"
	"github.com/appdrop/appdrop/internal/modules"
	"github.com/appdrop/appdrop/internal/proxy"
	"github.com/appdrop/appdrop/internal/release"
	"github.com/appdrop/appdrop/internal/storage/local"
)

// unreachableAPI is a release API base that refuses connections, forcing
// every download onto its fallback URL.
const unreachableAPI = "http://127.0.0.1:1"

func seedEntries(fallbackURL string) []catalog.AppEntry {
	return []catalog.AppEntry{
		{
			Name:        "Clash Verge",
			Description: "Clash Verge desktop client",
			Platforms: map[string]catalog.PlatformSource{
				"windows": {
					Repo:         "clash-verge-rev/clash-verge-rev",
					AssetPattern: `.*setup\.exe$`,
					FallbackURL:  fallbackURL,
				},
				"linux": {
					Repo:         "clash-verge-rev/clash-verge-rev",
					AssetPattern: `.*amd64\.AppImage$`,
					FallbackURL:  fallbackURL,
				},
			},
		},
	}
}

func newTestServer(t *testing.T, apiBase string, seed []catalog.AppEntry) *httptest.Server {
	t.Helper()

	store, err := local.New(local.Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	cache := catalog.NewCache(store, "data/downloads.json", catalog.DefaultTTL, seed)
	resolver := release.NewResolver(apiBase, "appdrop-test/1.0", 5*time.Second)
	prox := proxy.New(cache, resolver, "appdrop-test/1.0", 5*time.Second)

	registry := modules.NewRegistry(func(ctx context.Context, view string) (modules.Handle, error) {
		return &Downloads{Catalog: cache, Proxy: prox}, nil
	})

	ts := httptest.NewServer(NewServer(registry).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, unreachableAPI, seedEntries("https://example.com/fallback.exe"))

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestListDownloads(t *testing.T) {
	ts := newTestServer(t, unreachableAPI, seedEntries("https://example.com/fallback.exe"))

	resp, err := http.Get(ts.URL + "/downloads")
	if err != nil {
		t.Fatalf("GET /downloads: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var listing []DownloadInfo
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing) != 2 {
		t.Fatalf("got %d entries, want 2 (one per platform)", len(listing))
	}
	for _, info := range listing {
		if info.Name != "Clash Verge" {
			t.Errorf("name = %q, want Clash Verge", info.Name)
		}
		if info.Version != "latest" {
			t.Errorf("version = %q, want latest", info.Version)
		}
		if info.Size != 0 {
			t.Errorf("size = %d, want 0", info.Size)
		}
		want := "/downloads/Clash%20Verge/" + info.Platform
		if info.DownloadURL != want {
			t.Errorf("download_url = %q, want %q", info.DownloadURL, want)
		}
		if _, err := time.Parse(time.RFC3339, info.ReleaseDate); err != nil {
			t.Errorf("release_date %q is not RFC3339: %v", info.ReleaseDate, err)
		}
	}
}

func TestRefreshBumpsTimestamp(t *testing.T) {
	ts := newTestServer(t, unreachableAPI, seedEntries("https://example.com/fallback.exe"))

	refresh := func() RefreshResponse {
		resp, err := http.Post(ts.URL+"/downloads", "application/json", nil)
		if err != nil {
			t.Fatalf("POST /downloads: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body RefreshResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	first := refresh()
	if !first.Success {
		t.Fatalf("success = false, want true")
	}
	if first.Entries != 1 {
		t.Errorf("entries = %d, want 1", first.Entries)
	}

	time.Sleep(1100 * time.Millisecond)
	second := refresh()
	if second.GeneratedAt <= first.GeneratedAt {
		t.Errorf("generated_at did not advance: first=%d second=%d",
			first.GeneratedAt, second.GeneratedAt)
	}
}

func TestDownloadFallbackStream(t *testing.T) {
	payload := strings.Repeat("binary-payload-", 100)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("ETag", `"v1.2.3"`)
		io.WriteString(w, payload)
	}))
	defer upstream.Close()

	ts := newTestServer(t, unreachableAPI, seedEntries(upstream.URL+"/setup.exe"))

	resp, err := http.Get(ts.URL + "/downloads/Clash%20Verge/windows")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	disposition := resp.Header.Get("Content-Disposition")
	if !strings.Contains(disposition, `filename="Clash_Verge_windows.exe"`) {
		t.Errorf("Content-Disposition = %q, want Clash_Verge_windows.exe", disposition)
	}
	if got := resp.Header.Get("ETag"); got != `"v1.2.3"` {
		t.Errorf("ETag passthrough = %q, want %q", got, `"v1.2.3"`)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != payload {
		t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(payload))
	}
}

func TestDownloadResolvedAsset(t *testing.T) {
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "resolved-bytes")
	}))
	defer assets.Close()

	releaseAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/clash-verge-rev/clash-verge-rev/releases/latest" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"tag_name":"v2.0.0","assets":[
			{"name":"clash-verge_2.0.0_setup.exe","browser_download_url":"%s/clash-verge_2.0.0_setup.exe"}
		]}`, assets.URL)
	}))
	defer releaseAPI.Close()

	ts := newTestServer(t, releaseAPI.URL, seedEntries("https://example.com/never-used.exe"))

	resp, err := http.Get(ts.URL + "/downloads/Clash%20Verge/windows")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "resolved-bytes" {
		t.Errorf("body = %q, want resolved-bytes", body)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, "Clash_Verge_windows.exe") {
		t.Errorf("Content-Disposition = %q, want resolved asset extension", got)
	}
}

func TestDownloadUnknownApp(t *testing.T) {
	ts := newTestServer(t, unreachableAPI, seedEntries("https://example.com/fallback.exe"))

	resp, err := http.Get(ts.URL + "/downloads/NoSuchApp/windows")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == "" || body.Code != http.StatusNotFound {
		t.Errorf("error body = %+v, want non-empty error with code 404", body)
	}
}

func TestDownloadMissingParams(t *testing.T) {
	ts := newTestServer(t, unreachableAPI, seedEntries("https://example.com/fallback.exe"))

	for _, path := range []string{
		"/downloads/OnlyApp",           // missing platform segment
		"/downloads/Clash%20Verge/",    // empty platform segment
		"/downloads/a/windows/extra",   // too many segments
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var body ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, resp.StatusCode)
		}
		if body.Code != http.StatusBadRequest || body.Error == "" {
			t.Errorf("GET %s error body = %+v, want code 400 with message", path, body)
		}
	}
}

func TestDownloadUpstreamStatusPropagates(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer upstream.Close()

	ts := newTestServer(t, unreachableAPI, seedEntries(upstream.URL+"/setup.exe"))

	resp, err := http.Get(ts.URL + "/downloads/Clash%20Verge/windows")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusGone {
		t.Fatalf("status = %d, want 410", resp.StatusCode)
	}
}

func TestStatsNotEnabled(t *testing.T) {
	ts := newTestServer(t, unreachableAPI, seedEntries("https://example.com/fallback.exe"))

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestModuleInitFailureIsRetried(t *testing.T) {
	store, err := local.New(local.Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	cache := catalog.NewCache(store, "data/downloads.json", catalog.DefaultTTL,
		seedEntries("https://example.com/fallback.exe"))
	resolver := release.NewResolver(unreachableAPI, "appdrop-test/1.0", 5*time.Second)
	prox := proxy.New(cache, resolver, "appdrop-test/1.0", 5*time.Second)

	calls := 0
	registry := modules.NewRegistry(func(ctx context.Context, view string) (modules.Handle, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient init failure")
		}
		return &Downloads{Catalog: cache, Proxy: prox}, nil
	})

	ts := httptest.NewServer(NewServer(registry).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/downloads")
	if err != nil {
		t.Fatalf("GET /downloads: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("first status = %d, want 500", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/downloads")
	if err != nil {
		t.Fatalf("GET /downloads retry: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second status = %d, want 200", resp.StatusCode)
	}
	if calls != 2 {
		t.Errorf("constructor calls = %d, want 2", calls)
	}
}

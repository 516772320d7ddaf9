// Package updater checks for updates via GitHub Releases and replaces binaries.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/buildinfo"
	"github.com/inboxdock/inboxdock/internal/updatemanager"
)

const (
	releasesURL = "https://api.github.com/repos/inboxdock/inboxdock/releases/latest"
)

// ReleaseInfo contains information about a GitHub release.
type ReleaseInfo struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a downloadable file in a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// UpdateResult contains the result of an update check.
type UpdateResult struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	ReleaseURL     string
	Release        *ReleaseInfo
}

// DaemonAssetName returns the expected asset name for the daemon binary.
func DaemonAssetName() string {
	return fmt.Sprintf("inboxdockd-%s-%s", runtime.GOOS, runtime.GOARCH)
}

// FindAsset finds an asset by name in a release.
func FindAsset(release *ReleaseInfo, name string) *Asset {
	for _, a := range release.Assets {
		if a.Name == name {
			return &a
		}
	}
	return nil
}

// GitHub is the release-backed update backend.
type GitHub struct {
	client     *http.Client
	url        string
	current    string
	assetName  string
	executable string
	restart    func() error
	events     chan updatemanager.Event

	mu         sync.Mutex
	release    *ReleaseInfo
	latest     string
	downloaded string
}

// Option configures a GitHub backend.
type Option func(*GitHub)

// WithReleasesURL points the backend at another releases endpoint.
func WithReleasesURL(url string) Option {
	return func(g *GitHub) { g.url = url }
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GitHub) { g.client = c }
}

// WithCurrentVersion overrides buildinfo.Version.
func WithCurrentVersion(v string) Option {
	return func(g *GitHub) { g.current = v }
}

// WithExecutable sets the binary replaced on install.
func WithExecutable(path string) Option {
	return func(g *GitHub) { g.executable = path }
}

// WithRestart sets the callback run after the binary was replaced.
func WithRestart(fn func() error) Option {
	return func(g *GitHub) { g.restart = fn }
}

// NewGitHub creates a backend for the running daemon binary.
func NewGitHub(opts ...Option) *GitHub {
	g := &GitHub{
		client:    http.DefaultClient,
		url:       releasesURL,
		current:   buildinfo.Version,
		assetName: DaemonAssetName(),
		events:    make(chan updatemanager.Event, 16),
	}
	if exe, err := os.Executable(); err == nil {
		g.executable = exe
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Events implements updatemanager.Backend.
func (g *GitHub) Events() <-chan updatemanager.Event {
	return g.events
}

// emit gives up once ctx is done so a stopped consumer cannot wedge the caller.
func (g *GitHub) emit(ctx context.Context, e updatemanager.Event) error {
	select {
	case g.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckForUpdates implements updatemanager.Backend.
func (g *GitHub) CheckForUpdates(ctx context.Context) error {
	if err := g.emit(ctx, updatemanager.Event{Kind: updatemanager.EventChecking}); err != nil {
		return err
	}

	result, err := g.check(ctx)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.release = result.Release
	g.latest = result.LatestVersion
	g.mu.Unlock()

	if !result.Available {
		log.Debugf("up to date (v%s)", result.CurrentVersion)
		return g.emit(ctx, updatemanager.Event{Kind: updatemanager.EventNotAvailable})
	}
	log.Infof("update available: v%s -> v%s", result.CurrentVersion, result.LatestVersion)
	return g.emit(ctx, updatemanager.Event{Kind: updatemanager.EventAvailable, Version: result.LatestVersion})
}

// check queries the releases API for a newer version.
func (g *GitHub) check(ctx context.Context) (*UpdateResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No releases yet
		return &UpdateResult{CurrentVersion: g.current}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}

	latestVersion := strings.TrimPrefix(release.TagName, "v")
	latest, err := goversion.NewVersion(latestVersion)
	if err != nil {
		return nil, fmt.Errorf("parse latest version %q: %w", latestVersion, err)
	}

	result := &UpdateResult{
		Available:      true,
		CurrentVersion: g.current,
		LatestVersion:  latestVersion,
		ReleaseURL:     release.HTMLURL,
		Release:        &release,
	}
	// Development builds are always older than a release.
	if current, err := goversion.NewVersion(g.current); err == nil {
		result.Available = current.LessThan(latest)
	}
	return result, nil
}

// DownloadUpdate implements updatemanager.Backend.
func (g *GitHub) DownloadUpdate(ctx context.Context) error {
	g.mu.Lock()
	release, version := g.release, g.latest
	g.mu.Unlock()
	if release == nil {
		return fmt.Errorf("no release to download, check for updates first")
	}

	asset := FindAsset(release, g.assetName)
	if asset == nil {
		return fmt.Errorf("release %s has no asset %s", version, g.assetName)
	}

	path, err := g.downloadAsset(ctx, asset)
	if err != nil {
		return g.emit(ctx, updatemanager.Event{Kind: updatemanager.EventError, Err: err})
	}

	g.mu.Lock()
	g.downloaded = path
	g.mu.Unlock()
	return g.emit(ctx, updatemanager.Event{Kind: updatemanager.EventDownloaded, Version: version})
}

// progressWriter reports download progress in whole percent steps.
type progressWriter struct {
	total   int64
	written int64
	last    int
	report  func(pct float64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.total > 0 {
		pct := int(w.written * 100 / w.total)
		if pct > w.last {
			w.last = pct
			w.report(float64(pct))
		}
	}
	return len(p), nil
}

// downloadAsset downloads a release asset to a temp file and returns the path.
func (g *GitHub) downloadAsset(ctx context.Context, asset *Asset) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.BrowserDownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(g.stagingDir(), ".inboxdock-update-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	total := asset.Size
	if total <= 0 {
		total = resp.ContentLength
	}
	progress := &progressWriter{total: total, report: func(pct float64) {
		select {
		case g.events <- updatemanager.Event{Kind: updatemanager.EventProgress, ProgressPct: pct}:
		default:
		}
	}}

	if _, err := io.Copy(io.MultiWriter(tmpFile, progress), resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}

	tmpFile.Close()

	// Make executable
	if err := os.Chmod(tmpFile.Name(), 0755); err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("chmod temp file: %w", err)
	}

	return tmpFile.Name(), nil
}

// stagingDir keeps the download on the executable's filesystem so the final
// rename in ReplaceBinary cannot cross devices.
func (g *GitHub) stagingDir() string {
	if g.executable == "" {
		return ""
	}
	exe, err := filepath.EvalSymlinks(g.executable)
	if err != nil {
		return filepath.Dir(g.executable)
	}
	return filepath.Dir(exe)
}

// QuitAndInstall implements updatemanager.Backend. It swaps the daemon binary
// and hands over to the restart callback.
func (g *GitHub) QuitAndInstall() error {
	g.mu.Lock()
	path := g.downloaded
	g.mu.Unlock()
	if path == "" {
		return fmt.Errorf("no downloaded update")
	}
	if g.executable == "" {
		return fmt.Errorf("cannot locate the running executable")
	}

	if err := ReplaceBinary(g.executable, path); err != nil {
		return err
	}
	if g.restart != nil {
		return g.restart()
	}
	return nil
}

// ReplaceBinary atomically replaces a binary at destPath with a new binary at newPath.
func ReplaceBinary(destPath, newPath string) error {
	destPath, err := filepath.EvalSymlinks(destPath)
	if err != nil {
		return fmt.Errorf("resolve symlink: %w", err)
	}

	bakPath := destPath + ".bak"

	// Remove any stale backup
	os.Remove(bakPath)

	// Rename current → backup
	if err := os.Rename(destPath, bakPath); err != nil {
		return fmt.Errorf("backup old binary: %w", err)
	}

	// Move new → target
	if err := os.Rename(newPath, destPath); err != nil {
		// Try to restore backup
		_ = os.Rename(bakPath, destPath)
		return fmt.Errorf("install new binary: %w", err)
	}

	// Clean up backup
	os.Remove(bakPath)

	return nil
}

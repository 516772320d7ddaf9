package updatemanager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxdock/inboxdock/internal/appctx"
	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/dispatch"
	"github.com/inboxdock/inboxdock/internal/models"
)

type fakeBackend struct {
	events    chan Event
	checkErr  error
	checks    atomic.Int32
	downloads atomic.Int32
	installs  atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{events: make(chan Event, 16)}
}

func (b *fakeBackend) CheckForUpdates(context.Context) error {
	b.checks.Add(1)
	return b.checkErr
}

func (b *fakeBackend) DownloadUpdate(context.Context) error {
	b.downloads.Add(1)
	return nil
}

func (b *fakeBackend) QuitAndInstall() error {
	b.installs.Add(1)
	return nil
}

func (b *fakeBackend) Events() <-chan Event { return b.events }

type fakeToaster struct {
	mu       sync.Mutex
	infos    []string
	confirms []string
}

func (t *fakeToaster) Info(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.infos = append(t.infos, message)
}

func (t *fakeToaster) Confirm(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirms = append(t.confirms, message)
}

func (t *fakeToaster) Infos() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.infos...)
}

type harness struct {
	app     *appctx.Context
	backend *fakeBackend
	toast   *fakeToaster
	mgr     *Manager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	entry := log.NewEntry(logger)

	loop := dispatch.New(entry)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()

	h := &harness{
		backend: newFakeBackend(),
		toast:   &fakeToaster{},
	}
	h.app = &appctx.Context{
		AppName: "inboxdock",
		Log:     entry,
		Loop:    loop,
		Config:  config.NewStore("", nil),
		Toast:   h.toast,
	}
	h.mgr = New(h.app, h.backend, append([]Option{WithInstallDelay(20 * time.Millisecond)}, opts...)...)
	h.mgr.Start(ctx)

	t.Cleanup(func() {
		h.mgr.Stop()
		cancel()
		<-loop.Done()
	})
	return h
}

func (h *harness) on(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, h.app.Loop.Call(context.Background(), fn))
}

func (h *harness) phase(t *testing.T) Phase {
	t.Helper()
	var p Phase
	h.on(t, func() { p = h.mgr.State().Phase })
	return p
}

func (h *harness) waitPhase(t *testing.T, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.phase(t) == want
	}, time.Second, 5*time.Millisecond, "phase never became %s", want)
}

func (h *harness) check(t *testing.T) {
	t.Helper()
	var err error
	h.on(t, func() { err = h.mgr.Check() })
	require.NoError(t, err)
}

// downloadTo drives the manager to Downloading for version.
func (h *harness) downloadTo(t *testing.T, version string) {
	t.Helper()
	h.check(t)
	h.backend.events <- Event{Kind: EventAvailable, Version: version}
	h.waitPhase(t, Available)

	var err error
	h.on(t, func() { err = h.mgr.Download() })
	require.NoError(t, err)
	assert.Equal(t, Downloading, h.phase(t))
}

func TestNoUpdateReturnsToIdle(t *testing.T) {
	h := newHarness(t)

	h.check(t)
	assert.Equal(t, Checking, h.phase(t))
	h.backend.events <- Event{Kind: EventNotAvailable}

	require.Eventually(t, func() bool {
		infos := h.toast.Infos()
		return len(infos) == 1 && infos[0] == "Your application is up to date."
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, Idle, h.phase(t))
	assert.NotNil(t, h.app.Config.Settings().Updates.LastChecked)
}

func TestDoubleDownloadedInstallsOnce(t *testing.T) {
	h := newHarness(t)
	h.downloadTo(t, "1.2.0")

	h.backend.events <- Event{Kind: EventDownloaded, Version: "1.2.0"}
	h.backend.events <- Event{Kind: EventDownloaded, Version: "1.2.0"}

	require.Eventually(t, func() bool {
		return h.backend.installs.Load() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), h.backend.installs.Load())
	assert.Equal(t, Installing, h.phase(t))

	var downloaded int
	for _, msg := range h.toast.Infos() {
		if strings.Contains(msg, "was downloaded") {
			downloaded++
		}
	}
	assert.Equal(t, 1, downloaded)
}

func TestNoInstallBeforeDownloaded(t *testing.T) {
	h := newHarness(t)

	// A downloaded signal outside of a download is not trusted.
	h.check(t)
	h.backend.events <- Event{Kind: EventDownloaded, Version: "9.9.9"}
	h.backend.events <- Event{Kind: EventAvailable, Version: "1.2.0"}
	h.waitPhase(t, Available)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, h.backend.installs.Load())
	assert.Zero(t, h.backend.downloads.Load(), "auto download is off by default")
	assert.Len(t, h.toast.confirms, 1)
}

func TestAutoDownload(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Config.Update(func(s *models.Settings) {
		s.Updates.AutoDownload = true
	}))

	h.check(t)
	h.backend.events <- Event{Kind: EventAvailable, Version: "1.2.0"}
	h.waitPhase(t, Downloading)

	require.Eventually(t, func() bool {
		return h.backend.downloads.Load() == 1
	}, time.Second, 5*time.Millisecond)

	h.backend.events <- Event{Kind: EventProgress, ProgressPct: 42}
	require.Eventually(t, func() bool {
		var pct float64
		h.on(t, func() { pct = h.mgr.State().ProgressPct })
		return pct == 42
	}, time.Second, 5*time.Millisecond)
}

func TestFailuresReturnToIdle(t *testing.T) {
	t.Run("check", func(t *testing.T) {
		h := newHarness(t)
		h.backend.checkErr = errors.New("network unreachable")

		h.check(t)
		h.waitPhase(t, Idle)
		assert.Contains(t, h.toast.Infos(), "Failed to check for updates: network unreachable")
	})

	t.Run("download", func(t *testing.T) {
		h := newHarness(t)
		h.downloadTo(t, "1.2.0")

		h.backend.events <- Event{Kind: EventError, Err: errors.New("checksum mismatch")}
		h.waitPhase(t, Idle)
		assert.Contains(t, h.toast.Infos(), "Failed to download the update: checksum mismatch")
		assert.Zero(t, h.backend.installs.Load())

		// The machine is usable again.
		h.check(t)
		assert.Equal(t, Checking, h.phase(t))
	})
}

func TestCheckWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.check(t)

	var err error
	h.on(t, func() { err = h.mgr.Check() })
	assert.ErrorIs(t, err, ErrBusy)

	h.on(t, func() { err = h.mgr.Download() })
	assert.ErrorIs(t, err, ErrBusy)
}

func TestCancelPendingInstall(t *testing.T) {
	h := newHarness(t, WithInstallDelay(50*time.Millisecond))
	h.downloadTo(t, "1.2.0")

	h.backend.events <- Event{Kind: EventDownloaded}
	h.waitPhase(t, ScheduledInstall)

	var cancelled bool
	h.on(t, func() { cancelled = h.mgr.CancelPendingInstall() })
	assert.True(t, cancelled)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.backend.installs.Load())
	assert.Equal(t, Idle, h.phase(t))

	h.on(t, func() { cancelled = h.mgr.CancelPendingInstall() })
	assert.False(t, cancelled)
}

func TestCheckDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	hoursAgo := func(h int) *time.Time {
		t := now.Add(-time.Duration(h) * time.Hour)
		return &t
	}

	tests := []struct {
		name      string
		frequency string
		last      *time.Time
		want      bool
	}{
		{"never checked", models.CheckWeekly, nil, true},
		{"every launch", models.CheckEveryLaunch, hoursAgo(1), true},
		{"daily not due", models.CheckDaily, hoursAgo(23), false},
		{"daily due", models.CheckDaily, hoursAgo(24), true},
		{"weekly not due", models.CheckWeekly, hoursAgo(24 * 6), false},
		{"weekly due", models.CheckWeekly, hoursAgo(24 * 8), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := due(models.UpdatesConfig{CheckFrequency: tt.frequency, LastChecked: tt.last}, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckOnStartupDisabled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Config.Update(func(s *models.Settings) {
		s.Updates.CheckOnStartup = false
	}))

	h.on(t, h.mgr.CheckOnStartup)
	assert.Equal(t, Idle, h.phase(t))
	assert.Zero(t, h.backend.checks.Load())
}

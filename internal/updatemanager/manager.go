// Package updatemanager drives the background update lifecycle: check,
// download, scheduled install. Backend events are applied on the dispatch
// loop so phase transitions never interleave with other host handlers.
package updatemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/appctx"
	"github.com/inboxdock/inboxdock/internal/dispatch"
	"github.com/inboxdock/inboxdock/internal/models"
)

// DefaultInstallDelay is the grace period between a finished download and
// quit-and-install.
const DefaultInstallDelay = 5 * time.Second

// Toast texts.
const (
	MsgUpToDate      = "Your application is up to date."
	MsgAvailable     = "Version %s is available. Run \"inboxdock update --download\" to install it."
	MsgDownloading   = "Downloading version %s."
	MsgDownloaded    = "Version %s was downloaded and will be installed in %d seconds."
	MsgCheckFailed   = "Failed to check for updates: %v"
	MsgUpdateFailed  = "Failed to download the update: %v"
	MsgInstallFailed = "Failed to install the update: %v"
)

// ErrBusy is returned when an operation is not valid in the current phase.
var ErrBusy = errors.New("update already in progress")

// Phase is the update lifecycle phase.
type Phase int

// Update phases.
const (
	Idle Phase = iota
	Checking
	Available
	Downloading
	Downloaded
	ScheduledInstall
	Installing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Checking:
		return "checking"
	case Available:
		return "available"
	case Downloading:
		return "downloading"
	case Downloaded:
		return "downloaded"
	case ScheduledInstall:
		return "scheduled-install"
	case Installing:
		return "installing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a snapshot of the update lifecycle.
type State struct {
	Phase       Phase
	Version     string
	ProgressPct float64
}

// EventKind identifies a backend event.
type EventKind int

// Backend events.
const (
	EventChecking EventKind = iota
	EventAvailable
	EventNotAvailable
	EventProgress
	EventDownloaded
	EventError
)

// Event is emitted by a Backend as the underlying updater makes progress.
type Event struct {
	Kind        EventKind
	Version     string
	ProgressPct float64
	Err         error
}

// Backend performs the platform work. Check and Download report their outcome
// through Events, or through the returned error when they fail to start.
type Backend interface {
	CheckForUpdates(ctx context.Context) error
	DownloadUpdate(ctx context.Context) error
	QuitAndInstall() error
	Events() <-chan Event
}

// Manager owns UpdateState. Exported methods other than Start and Stop must
// run on the dispatch loop.
type Manager struct {
	app     *appctx.Context
	loop    *dispatch.Loop
	log     *log.Entry
	backend Backend

	state        State
	installDelay time.Duration
	installTimer *dispatch.Timer
	// downloaded is set once per update the first time Downloaded is reached.
	downloaded bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithInstallDelay overrides DefaultInstallDelay.
func WithInstallDelay(d time.Duration) Option {
	return func(m *Manager) { m.installDelay = d }
}

// WithClock overrides the clock used for last-checked bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates an idle manager.
func New(app *appctx.Context, backend Backend, opts ...Option) *Manager {
	m := &Manager{
		app:          app,
		loop:         app.Loop,
		log:          app.Logger("updates"),
		backend:      backend,
		installDelay: DefaultInstallDelay,
		ctx:          context.Background(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start pumps backend events onto the loop until Stop.
func (m *Manager) Start(ctx context.Context) {
	if m.cancel != nil {
		m.log.Error("update manager already started")
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.pump(m.ctx)
}

// Stop ends the event pump and waits for background work to return. A
// scheduled install is left alone; use CancelPendingInstall for that.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) pump(ctx context.Context) {
	defer m.wg.Done()
	events := m.backend.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.loop.Post(func() { m.handle(e) })
		}
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	return m.state
}

func (m *Manager) setPhase(p Phase) {
	if m.state.Phase != p {
		m.log.Debugf("update phase %s -> %s", m.state.Phase, p)
	}
	m.state.Phase = p
}

func (m *Manager) reset() {
	m.stopInstallTimer()
	m.state = State{Phase: Idle}
	m.downloaded = false
}

// Check starts an update check.
func (m *Manager) Check() error {
	if m.state.Phase != Idle {
		return fmt.Errorf("%w: %s", ErrBusy, m.state.Phase)
	}
	m.setPhase(Checking)
	m.recordChecked()

	m.background(func(ctx context.Context) error {
		return m.backend.CheckForUpdates(ctx)
	}, m.failCheck)
	return nil
}

// CheckOnStartup runs Check if the settings ask for it.
func (m *Manager) CheckOnStartup() {
	updates := m.app.Config.Settings().Updates
	if !updates.CheckOnStartup {
		m.log.Debug("startup update check disabled")
		return
	}
	if !due(updates, m.now()) {
		m.log.Debugf("update check not due (frequency %s)", updates.CheckFrequency)
		return
	}
	if err := m.Check(); err != nil {
		m.log.Debugf("startup update check skipped: %v", err)
	}
}

func due(updates models.UpdatesConfig, now time.Time) bool {
	if updates.LastChecked == nil {
		return true
	}
	since := now.Sub(*updates.LastChecked)
	switch updates.CheckFrequency {
	case models.CheckDaily:
		return since >= 24*time.Hour
	case models.CheckWeekly:
		return since >= 7*24*time.Hour
	default:
		return true
	}
}

func (m *Manager) recordChecked() {
	now := m.now()
	if err := m.app.Config.Update(func(s *models.Settings) {
		s.Updates.LastChecked = &now
	}); err != nil {
		m.log.Warnf("failed to save last_checked: %v", err)
	}
}

// Download starts downloading an available update.
func (m *Manager) Download() error {
	if m.state.Phase != Available {
		return fmt.Errorf("%w: nothing to download in phase %s", ErrBusy, m.state.Phase)
	}
	m.startDownload()
	return nil
}

func (m *Manager) startDownload() {
	m.setPhase(Downloading)
	m.state.ProgressPct = 0
	m.toast(fmt.Sprintf(MsgDownloading, m.state.Version))

	m.background(func(ctx context.Context) error {
		return m.backend.DownloadUpdate(ctx)
	}, m.failDownload)
}

// background runs fn off the loop and posts onFail back when it errors.
func (m *Manager) background(fn func(context.Context) error, onFail func(error)) {
	ctx := m.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := fn(ctx); err != nil {
			m.loop.Post(func() { onFail(err) })
		}
	}()
}

func (m *Manager) handle(e Event) {
	switch e.Kind {
	case EventChecking:
		if m.state.Phase == Idle {
			m.setPhase(Checking)
		}

	case EventNotAvailable:
		if m.state.Phase != Checking {
			m.log.Debugf("ignoring no-update result in phase %s", m.state.Phase)
			return
		}
		m.toast(MsgUpToDate)
		m.reset()

	case EventAvailable:
		if m.state.Phase != Checking {
			m.log.Debugf("ignoring update-available in phase %s", m.state.Phase)
			return
		}
		m.state.Version = e.Version
		m.setPhase(Available)
		m.log.Infof("update %s available", e.Version)
		if m.app.Config.AutoDownload() {
			m.startDownload()
			return
		}
		m.confirm(fmt.Sprintf(MsgAvailable, e.Version))

	case EventProgress:
		if m.state.Phase == Downloading {
			m.state.ProgressPct = e.ProgressPct
		}

	case EventDownloaded:
		m.handleDownloaded(e)

	case EventError:
		m.handleError(e.Err)
	}
}

func (m *Manager) handleDownloaded(e Event) {
	if m.downloaded {
		m.log.Debugf("update %s already downloaded, install is scheduled once", m.state.Version)
		return
	}
	if m.state.Phase != Downloading {
		m.log.Warnf("ignoring download-finished in phase %s", m.state.Phase)
		return
	}
	m.downloaded = true
	if e.Version != "" {
		m.state.Version = e.Version
	}
	m.state.ProgressPct = 100
	m.setPhase(Downloaded)
	m.toast(fmt.Sprintf(MsgDownloaded, m.state.Version, int(m.installDelay/time.Second)))

	m.setPhase(ScheduledInstall)
	m.installTimer = m.loop.AfterFunc(m.installDelay, m.install)
	m.log.Infof("install of %s scheduled in %s", m.state.Version, m.installDelay)
}

func (m *Manager) install() {
	m.installTimer = nil
	if m.state.Phase != ScheduledInstall {
		return
	}
	m.setPhase(Installing)
	m.log.Infof("installing %s", m.state.Version)
	if err := m.backend.QuitAndInstall(); err != nil {
		m.log.Errorf("install failed: %v", err)
		m.toast(fmt.Sprintf(MsgInstallFailed, err))
		m.reset()
	}
}

func (m *Manager) handleError(err error) {
	switch m.state.Phase {
	case Checking:
		m.failCheck(err)
	case Downloading, Downloaded, ScheduledInstall, Installing:
		m.failDownload(err)
	default:
		m.log.Debugf("ignoring updater error in phase %s: %v", m.state.Phase, err)
	}
}

func (m *Manager) failCheck(err error) {
	if m.state.Phase != Checking {
		return
	}
	m.log.Warnf("update check failed: %v", err)
	m.toast(fmt.Sprintf(MsgCheckFailed, err))
	m.reset()
}

func (m *Manager) failDownload(err error) {
	if m.state.Phase == Idle {
		return
	}
	m.log.Warnf("update failed: %v", err)
	m.toast(fmt.Sprintf(MsgUpdateFailed, err))
	m.reset()
}

// CancelPendingInstall drops a scheduled install. It reports whether one was
// pending.
func (m *Manager) CancelPendingInstall() bool {
	if m.state.Phase != ScheduledInstall {
		return false
	}
	m.log.Infof("quit requested, scheduled install of %s cancelled", m.state.Version)
	m.reset()
	return true
}

func (m *Manager) stopInstallTimer() {
	if m.installTimer != nil {
		m.installTimer.Stop()
		m.installTimer = nil
	}
}

func (m *Manager) toast(message string) {
	if m.app.Toast != nil {
		m.app.Toast.Info(message)
	}
}

func (m *Manager) confirm(message string) {
	if m.app.Toast != nil {
		m.app.Toast.Confirm(message)
	}
}

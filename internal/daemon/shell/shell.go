// Package shell assembles the host process: dispatch loop, relay, content
// surface, coordinator, update manager, tray, window and control service.
package shell

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inboxdock/inboxdock/internal/appctx"
	"github.com/inboxdock/inboxdock/internal/autostart"
	"github.com/inboxdock/inboxdock/internal/buildinfo"
	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/content"
	"github.com/inboxdock/inboxdock/internal/content/maildir"
	"github.com/inboxdock/inboxdock/internal/daemon/server"
	"github.com/inboxdock/inboxdock/internal/daemon/tray"
	"github.com/inboxdock/inboxdock/internal/daemon/watcher"
	"github.com/inboxdock/inboxdock/internal/daemon/window"
	"github.com/inboxdock/inboxdock/internal/dispatch"
	"github.com/inboxdock/inboxdock/internal/host"
	"github.com/inboxdock/inboxdock/internal/models"
	"github.com/inboxdock/inboxdock/internal/notify"
	"github.com/inboxdock/inboxdock/internal/relay"
	"github.com/inboxdock/inboxdock/internal/updatemanager"
	"github.com/inboxdock/inboxdock/internal/updater"
)

// WebsiteURL is opened by the tray Website item.
const WebsiteURL = "https://github.com/inboxdock/inboxdock"

// agentPath is where the relay accepts out-of-process agents.
const agentPath = "/agent"

// Surface is a loadable content surface.
type Surface interface {
	Load(ctx context.Context) error
	Reload(ctx context.Context) error
	Close() error
}

// Options configure the host.
type Options struct {
	// Port of the control service, 0 for dynamic allocation.
	Port int
	// Maildir overrides account.maildir.
	Maildir string
	// ExternalAgent runs the observer agent in a child process.
	ExternalAgent bool
	// Headless uses a tray without a visible icon.
	Headless bool
	// SettingsPath overrides ~/.inboxdock/settings.yaml.
	SettingsPath string
	// Backend overrides the GitHub update backend.
	Backend updatemanager.Backend
	// AgentExecutable overrides the binary started for external agents.
	AgentExecutable string
}

// Shell is the assembled host.
type Shell struct {
	opts Options
	app  *appctx.Context
	log  *log.Entry

	loop      *dispatch.Loop
	store     *config.Store
	messenger *notify.Messenger
	relay     *relay.Relay
	coord     *host.Coordinator
	updates   *updatemanager.Manager
	window    *window.Headless
	tray      host.Tray
	systray   *tray.Systray
	autostart *autostart.Entry

	surface   Surface
	relayURL  string
	relayLn   net.Listener
	relayHTTP *http.Server
	server    *server.Server
	watcher   *watcher.Watcher

	ctx       context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group
	startedAt time.Time

	quit     chan struct{}
	quitOnce sync.Once
	restart  atomic.Bool

	unsubscribe []func()
}

// New builds the host without starting anything.
func New(opts Options, entry *log.Entry) (*Shell, error) {
	path := opts.SettingsPath
	if path == "" {
		var err error
		if path, err = config.GlobalSettingsFile(); err != nil {
			return nil, err
		}
	}
	store, err := config.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	s := &Shell{
		opts:  opts,
		log:   entry.WithField("component", "shell"),
		loop:  dispatch.New(entry.WithField("component", "dispatch")),
		store: store,
		quit:  make(chan struct{}),
	}
	s.messenger = notify.NewMessenger(buildinfo.AppName, "", entry)
	s.app = &appctx.Context{
		AppName: buildinfo.AppName,
		Log:     entry,
		Loop:    s.loop,
		Config:  store,
		Toast:   s.messenger,
	}

	settings := store.Settings()
	s.relay = relay.New(s.app, relay.WithOrigin(settings.Content.Origin))

	if opts.Headless {
		s.tray = tray.NewHeadless(entry)
	} else {
		s.systray = tray.NewSystray(trayActions{s}, settings.Autostart, entry)
		s.tray = s.systray
	}

	s.window = window.New(s.loop, settings.Window, entry)
	s.coord = host.New(s.app, s.relay, s.tray, notify.NewDesktop(buildinfo.AppName, "", entry))

	backend := opts.Backend
	if backend == nil {
		backend = updater.NewGitHub(updater.WithRestart(s.restartAfterInstall))
	}
	s.updates = updatemanager.New(s.app, backend)

	if login, err := autostart.New(); err == nil {
		s.autostart = login
	} else {
		s.log.Debugf("autostart unavailable: %v", err)
	}

	return s, nil
}

// Systray returns the visible tray, or nil in headless mode.
func (s *Shell) Systray() *tray.Systray {
	return s.systray
}

// Done is closed once the user asked to quit.
func (s *Shell) Done() <-chan struct{} {
	return s.quit
}

// RestartRequested reports whether an installed update wants a relaunch.
func (s *Shell) RestartRequested() bool {
	return s.restart.Load()
}

// Start brings every component up. Shutdown must be called afterwards, even
// when Start fails.
func (s *Shell) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	s.ctx = ctx
	s.startedAt = time.Now().UTC()

	s.group.Go(func() error { return s.loop.Run(ctx) })

	s.subscribeConfig()
	if err := s.startWatcher(ctx); err != nil {
		s.log.Warnf("settings hot reload disabled: %v", err)
	}

	surface, err := s.buildSurface(ctx)
	if err != nil {
		return err
	}
	s.surface = surface

	if err := s.loop.Call(ctx, s.startCoordinator); err != nil {
		return err
	}
	s.updates.Start(ctx)

	if err := s.surface.Load(ctx); err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}

	srv, err := server.New(s.opts.Port, s, s.log)
	if err != nil {
		return err
	}
	s.server = srv
	s.group.Go(func() error {
		if err := srv.Serve(); err != nil {
			return fmt.Errorf("control service: %w", err)
		}
		return nil
	})

	info := models.NewHostInfo("127.0.0.1", srv.Port(), os.Getpid())
	info.RelayURL = s.relayURL
	if err := config.SaveHostInfo(info); err != nil {
		return fmt.Errorf("failed to write host info: %w", err)
	}

	s.window.Open()
	s.log.Infof("host started on port %d (PID %d)", srv.Port(), os.Getpid())
	return nil
}

func (s *Shell) startCoordinator() {
	s.coord.Start()
	s.coord.AttachWindow(s.window)
	s.coord.OnReady(s.updates.CheckOnStartup)
	s.coord.OnQuit(func() {
		s.updates.CancelPendingInstall()
		s.quitOnce.Do(func() { close(s.quit) })
	})
}

func (s *Shell) subscribeConfig() {
	level := log.GetLevel()
	s.unsubscribe = append(s.unsubscribe, s.store.OnChange(func(settings models.Settings) {
		if settings.Log.Level != "" {
			if l, err := log.ParseLevel(settings.Log.Level); err == nil && l != level {
				level = l
				log.SetLevel(l)
				s.log.Infof("log level set to %s", l)
			}
		}
		s.syncAutostart(settings.Autostart)
	}))
}

func (s *Shell) syncAutostart(enabled bool) {
	if s.autostart == nil {
		return
	}
	current, err := s.autostart.Enabled()
	if err != nil || current == enabled {
		return
	}
	if err := s.autostart.Set(enabled); err != nil {
		s.log.Warnf("failed to update login item: %v", err)
	}
}

func (s *Shell) startWatcher(ctx context.Context) error {
	if s.store.Path() == "" {
		return nil
	}
	w, err := watcher.New(s.log.WithField("component", "watcher"))
	if err != nil {
		return err
	}
	if err := w.WatchSettings(s.store.Path()); err != nil {
		w.Stop()
		return err
	}
	w.Start()
	s.watcher = w

	s.group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-w.Events():
				if !ok {
					return nil
				}
				if e.Type != watcher.EventSettingsChanged {
					continue
				}
				if err := s.store.Reload(); err != nil {
					s.log.Warnf("failed to reload settings: %v", err)
				} else {
					s.log.Debug("settings reloaded")
				}
			}
		}
	})
	return nil
}

func (s *Shell) maildir() (string, error) {
	if s.opts.Maildir != "" {
		return s.opts.Maildir, nil
	}
	if dir := s.store.Settings().Account.Maildir; dir != "" {
		return dir, nil
	}
	return config.DefaultMaildir()
}

func (s *Shell) buildSurface(ctx context.Context) (Surface, error) {
	settings := s.store.Settings()
	dir, err := s.maildir()
	if err != nil {
		return nil, err
	}
	address := settings.Account.Address

	if !s.opts.ExternalAgent && settings.Content.Mode != models.ContentExternal {
		agent := content.NewAgent(
			maildir.Factory(dir, address, s.log.WithField("component", "maildir")),
			content.WithLogger(s.log.WithField("component", "agent")),
		)
		return content.NewSurface(agent, s.relay, s.log.WithField("component", "surface")), nil
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", settings.Content.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for content agents: %w", err)
	}
	s.relayLn = ln
	s.relayURL = fmt.Sprintf("ws://%s%s", ln.Addr().String(), agentPath)

	mux := http.NewServeMux()
	mux.Handle(agentPath, s.relay.Handler())
	s.relayHTTP = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.group.Go(func() error {
		if err := s.relayHTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay listener: %w", err)
		}
		return nil
	})

	exe := s.opts.AgentExecutable
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return nil, err
		}
	}
	args := []string{"agent", "--relay", s.relayURL, "--maildir", dir}
	if address != "" {
		args = append(args, "--address", address)
	}
	return content.NewProcessSurface(exe, args, s.log.WithField("component", "surface")), nil
}

// restartAfterInstall runs on the loop once the binary has been replaced.
func (s *Shell) restartAfterInstall() error {
	s.restart.Store(true)
	s.coord.RequestQuit()
	return nil
}

// Shutdown stops every component and removes the host info file.
func (s *Shell) Shutdown() error {
	var result *multierror.Error

	if s.server != nil {
		s.server.Stop()
	}
	if s.surface != nil {
		if err := s.surface.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("content: %w", err))
		}
	}
	if s.relayHTTP != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.relayHTTP.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("relay listener: %w", err))
		}
		cancel()
	}
	if err := s.relay.Close(); err != nil {
		s.log.Debugf("relay close: %v", err)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	_ = s.loop.Call(stopCtx, s.coord.Stop)
	stopCancel()
	s.updates.Stop()
	if s.watcher != nil {
		s.watcher.Stop()
	}
	for _, fn := range s.unsubscribe {
		fn()
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			result = multierror.Append(result, err)
		}
	}

	if err := config.RemoveHostInfo(); err != nil {
		result = multierror.Append(result, fmt.Errorf("host info: %w", err))
	}

	if s.restart.Load() {
		if err := s.relaunch(); err != nil {
			result = multierror.Append(result, fmt.Errorf("relaunch: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Shell) relaunch() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	s.log.Infof("relaunched updated host (PID %d)", cmd.Process.Pid)
	return cmd.Process.Release()
}

package daemon

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/The-Promised-Neverland/hostwatch/internal/config"
	"github.com/The-Promised-Neverland/hostwatch/internal/handlers"
	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	"github.com/The-Promised-Neverland/hostwatch/internal/monitor"
	"github.com/The-Promised-Neverland/hostwatch/internal/notify"
	"github.com/The-Promised-Neverland/hostwatch/internal/probe"
	"github.com/The-Promised-Neverland/hostwatch/internal/state"
	"github.com/The-Promised-Neverland/hostwatch/internal/telegram"
	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
	"github.com/The-Promised-Neverland/hostwatch/pkg/utils"
)

const shutdownNoticeTimeout = 10 * time.Second

// Runner is a long-lived loop that returns once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

type hostSummarizer interface {
	HostSummary(ctx context.Context) (models.HostSummary, error)
}

type Application struct {
	serverID   string
	monitor    Runner
	dispatcher Runner
	sink       notify.Sink
	host       hostSummarizer
	closers    []func()
}

// NewApplication builds the transport, probes and both loops from cfg.
func NewApplication(cfg *config.Config) (*Application, error) {
	client, err := telegram.NewClient(telegram.ClientConfig{
		BaseURL:     cfg.APIURL(),
		Token:       cfg.BotToken(),
		PollTimeout: cfg.PollTimeout(),
		Logger:      logger.Log,
	})
	if err != nil {
		return nil, err
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.NotifyRate()), cfg.NotifyBurst())
	sink := notify.NewNotifier(client, cfg.RecipientID(), limiter)

	var closers []func()
	var backend probe.ServiceBackend
	switch cfg.ServiceBackend() {
	case config.BackendSystemd:
		systemd, err := probe.NewSystemdBackend()
		if err != nil {
			return nil, fmt.Errorf("service backend: %w", err)
		}
		closers = append(closers, systemd.Close)
		backend = systemd
	default:
		backend = probe.NewNativeBackend()
	}
	services := probe.NewServices(backend, cfg.ServiceTimeout())
	resources := probe.NewResources()

	mon := monitor.New(monitor.Settings{
		ServerID:      cfg.ServerID(),
		Services:      cfg.Services(),
		DiskPath:      cfg.DiskPath(),
		DiskThreshold: cfg.DiskThreshold(),
		CPUThreshold:  cfg.CPUThreshold(),
		MemThreshold:  cfg.MemThreshold(),
		Interval:      cfg.MonitorInterval(),
	}, services, resources, state.NewTracker(cfg.StateFile()), sink)

	dispatcher := handlers.NewDispatcher(client, sink, cfg.ServerID(), cfg.RecipientID(), cfg.PollIdleDelay())
	handlers.RegisterHandlers(dispatcher, handlers.NewHandler(handlers.Settings{
		ServerID: cfg.ServerID(),
		Services: cfg.Services(),
		DiskPath: cfg.DiskPath(),
		AllowRun: cfg.AllowRun(),
		Shell: utils.ShellOptions{
			Timeout:   cfg.RunTimeout(),
			MaxOutput: cfg.RunMaxOutput(),
			RunAs:     cfg.RunAsUser(),
		},
	}, services, resources, sink))

	app := newApplication(cfg.ServerID(), mon, dispatcher, sink, resources)
	app.closers = closers
	return app, nil
}

func newApplication(serverID string, mon, dispatcher Runner, sink notify.Sink, host hostSummarizer) *Application {
	return &Application{
		serverID:   serverID,
		monitor:    mon,
		dispatcher: dispatcher,
		sink:       sink,
		host:       host,
	}
}

// Run announces startup, runs the monitor and the dispatcher until ctx is
// cancelled, then sends a best-effort shutdown notice.
func (app *Application) Run(ctx context.Context) error {
	defer app.close()
	app.announceStartup(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.monitor.Run(gctx) })
	g.Go(func() error { return app.dispatcher.Run(gctx) })
	err := g.Wait()

	noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownNoticeTimeout)
	defer cancel()
	_ = app.sink.Notify(noticeCtx, fmt.Sprintf("Monitoring agent stopped on server %s.", app.serverID))
	logger.Log.Info("Application stopped", "server_id", app.serverID)
	return err
}

func (app *Application) announceStartup(ctx context.Context) {
	text := fmt.Sprintf("Monitoring agent started on server %s.", app.serverID)
	if summary, err := app.host.HostSummary(ctx); err != nil {
		logger.Log.Warn("Failed to read host summary", "err", err)
	} else {
		text = fmt.Sprintf("Monitoring agent started on server %s (%s).", app.serverID, summary)
	}
	logger.Log.Info("Application started", "server_id", app.serverID)
	_ = app.sink.Notify(ctx, text)
}

func (app *Application) close() {
	for _, c := range app.closers {
		c()
	}
	app.closers = nil
}

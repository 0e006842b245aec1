package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/registry"
	"github.com/beaconrelay/beaconrelay/pkg/session"
	"github.com/beaconrelay/beaconrelay/pkg/status"
)

// Errors returned by the Coordinator.
var (
	ErrInvalidConfig        = errors.New("invalid coordinator config")
	ErrNotRunning           = errors.New("coordinator not running")
	ErrAlreadyRunning       = errors.New("coordinator already running")
	ErrNilRequest           = errors.New("nil request")
	ErrNoBackgroundNotifier = errors.New("no background notifier configured")
)

// BackgroundNotifierMessage is reported when a background monitoring
// request is added without a background notifier.
const BackgroundNotifierMessage = "background monitoring requires a background notifier; " +
	"configure one on the relay (background.enabled) before adding background monitoring requests"

// Config configures a Coordinator.
type Config struct {
	// Scanner is the beacon scanning service. Required.
	Scanner session.Scanner

	// Environment reports device capabilities. Required.
	Environment status.Environment

	// Authority is the permission authority. Required.
	Authority status.Authority

	// Background receives background monitoring transitions. When nil,
	// background monitoring requests are rejected.
	Background *BackgroundNotifier

	// Logger is used for operational logging. Defaults to slog.Default().
	Logger *slog.Logger

	// LogLevel, when set, is adjusted by Configure.
	LogLevel *slog.LevelVar

	// EventLog captures coordinator activity.
	EventLog log.Logger
}

// Stats is a snapshot of coordinator state.
type Stats struct {
	Registered         int
	Running            int
	Sessions           int
	PendingPermissions int
	Connected          bool
	Paused             bool
}

// Coordinator tracks subscriptions and drives them through the status
// gate onto shared scanning sessions.
type Coordinator struct {
	config   Config
	logger   *slog.Logger
	eventLog log.Logger

	// Loop-owned state.
	registry    *registry.Registry
	gate        *status.Gate
	sessions    *session.Manager
	held        map[*model.ActiveRequest]hold
	paused      bool
	dispatching bool
	settings    model.Settings

	queue    *taskQueue
	ctx      context.Context
	cancel   context.CancelFunc
	loopWg   sync.WaitGroup
	running  atomic.Bool
	unlisten func()
}

// New creates a Coordinator. Call Start to begin processing.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Scanner == nil || cfg.Environment == nil || cfg.Authority == nil {
		return nil, fmt.Errorf("%w: scanner, environment and authority are required", ErrInvalidConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eventLog := log.OrNoop(cfg.EventLog)

	reg := registry.New()
	c := &Coordinator{
		config:   cfg,
		logger:   logger,
		eventLog: eventLog,
		registry: reg,
		held:     make(map[*model.ActiveRequest]hold),
		settings: model.Settings{Logs: model.LogInfo},
		queue:    newTaskQueue(),
	}
	c.gate = status.New(status.Config{
		Environment: cfg.Environment,
		Authority:   cfg.Authority,
		Logger:      logger,
		EventLog:    eventLog,
	})
	c.sessions = session.NewManager(session.Config{
		Scanner:  cfg.Scanner,
		Registry: reg,
		Logger:   logger,
		EventLog: eventLog,
	})
	return c, nil
}

// Start runs the loop, subscribes to authorization changes and binds the
// scanner.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.loopWg.Add(1)
	go c.loop()

	c.unlisten = c.config.Authority.Listen(func(st model.AuthorizationStatus) {
		c.post(func() { c.gate.Resolve(st) })
	})

	if err := c.Bind(); err != nil {
		c.Stop()
		return err
	}
	c.logger.Info("coordinator started")
	return nil
}

// Stop unbinds the scanner and stops the loop. Queued tasks that have not
// run are dropped.
func (c *Coordinator) Stop() error {
	if !c.running.Load() {
		return ErrNotRunning
	}

	c.Unbind()
	if c.unlisten != nil {
		c.unlisten()
	}

	c.running.Store(false)
	c.cancel()
	c.loopWg.Wait()
	c.logger.Info("coordinator stopped")
	return nil
}

func (c *Coordinator) loop() {
	defer c.loopWg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.queue.signal:
			for _, fn := range c.queue.drain() {
				fn()
			}
		}
	}
}

// post queues fn on the loop. It is dropped when the loop is not running.
func (c *Coordinator) post(fn func()) {
	if !c.running.Load() {
		return
	}
	c.queue.push(fn)
}

// do runs fn on the loop and waits for it to finish.
func (c *Coordinator) do(fn func()) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	done := make(chan struct{})
	c.queue.push(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-c.ctx.Done():
		return ErrNotRunning
	}
}

// Bind binds the scanner. Connected is reported asynchronously and
// replays every eligible request.
func (c *Coordinator) Bind() error {
	var err error
	if doErr := c.do(func() {
		err = c.sessions.Bind(scannerEvents{c: c})
	}); doErr != nil {
		return doErr
	}
	return err
}

// Unbind disconnects the scanner. Every request is marked not running and
// is replayed on the next Connected.
func (c *Coordinator) Unbind() {
	_ = c.do(func() {
		c.dispatching = false
		c.sessions.Unbind()
		for _, req := range c.registry.All() {
			req.SetRunning(false)
		}
	})
}

// Add registers req and drives it through the status gate. Failures are
// reported through req's callback. Add returns once req is registered or
// rejected; gate resolution happens later on the loop.
func (c *Coordinator) Add(req *model.ActiveRequest, permission model.Permission) error {
	if req == nil {
		return ErrNilRequest
	}
	return c.do(func() { c.add(req, permission) })
}

// Remove stops and unregisters req. It is a no-op for unknown requests.
func (c *Coordinator) Remove(req *model.ActiveRequest) error {
	if req == nil {
		return ErrNilRequest
	}
	return c.do(func() { c.remove(req) })
}

// Pause stops every running foreground request.
func (c *Coordinator) Pause() error {
	return c.do(c.pause)
}

// Resume restarts every request that is not running.
func (c *Coordinator) Resume() error {
	return c.do(c.resume)
}

// CheckStatus evaluates req without prompting.
func (c *Coordinator) CheckStatus(req model.StatusRequest) model.Result[bool] {
	var res model.Result[bool]
	if err := c.do(func() { res = c.gate.Check(req) }); err != nil {
		return model.Failure[bool](model.RuntimeError(nil, err.Error(), false))
	}
	return res
}

// RequestPermission asks for level, prompting if needed. cb is invoked
// exactly once on the loop.
func (c *Coordinator) RequestPermission(level model.Permission, cb func(model.Result[bool])) error {
	return c.do(func() {
		c.gate.Run(model.StatusRequest{Permission: level}, nil,
			func() { cb(model.Success(true, nil)) },
			func(err *model.Error) { cb(model.Failure[bool](err)) },
		)
	})
}

// Configure applies runtime settings.
func (c *Coordinator) Configure(settings model.Settings) error {
	return c.do(func() {
		c.settings = settings
		if c.config.LogLevel != nil {
			c.config.LogLevel.Set(settings.Logs.SlogLevel())
		}
		c.logger.Info("settings applied", "logs", settings.Logs)
	})
}

// Settings returns the current runtime settings.
func (c *Coordinator) Settings() model.Settings {
	var s model.Settings
	_ = c.do(func() { s = c.settings })
	return s
}

// AddBackgroundCallback registers fn on the background notifier.
func (c *Coordinator) AddBackgroundCallback(fn func(BackgroundEvent)) (remove func(), err error) {
	if c.config.Background == nil {
		return nil, ErrNoBackgroundNotifier
	}
	return c.config.Background.AddCallback(fn), nil
}

// Stats returns a snapshot of the coordinator state.
func (c *Coordinator) Stats() (Stats, error) {
	var st Stats
	err := c.do(func() {
		st = Stats{
			Registered:         c.registry.Len(),
			Running:            len(c.registry.Filter((*model.ActiveRequest).IsRunning)),
			Sessions:           c.sessions.Active(),
			PendingPermissions: c.gate.Pending(),
			Connected:          c.sessions.Connected(),
			Paused:             c.paused,
		}
	})
	return st, err
}

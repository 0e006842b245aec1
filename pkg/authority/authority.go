package authority

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/status"
)

// Errors returned by Authority.
var (
	ErrClosed        = errors.New("authority closed")
	ErrInvalidStatus = errors.New("invalid authorization status")
)

// Config configures an Authority.
type Config struct {
	// Store persists the decision. When nil the decision lives in memory.
	Store *StateStore

	// Policy answers prompts. Defaults to PolicyManual.
	Policy Policy

	// Declared lists the permission levels the relay declared a usage
	// justification for. Prompts for undeclared levels are configuration
	// errors.
	Declared []model.Permission

	// Initial is the decision used when the store holds no state.
	Initial model.AuthorizationStatus

	// PromptDelay is how long a policy takes to answer a prompt.
	PromptDelay time.Duration

	// Logger is used for operational logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Authority holds the authorization decision and answers prompts.
type Authority struct {
	config   Config
	logger   *slog.Logger
	declared map[model.Permission]bool

	mu        sync.Mutex
	status    model.AuthorizationStatus
	prompts   int
	nextID    uint64
	listeners map[uint64]func(model.AuthorizationStatus)
	order     []uint64
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an Authority, loading the persisted decision if any.
func New(cfg Config) (*Authority, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyManual
	}
	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Authority{
		config:    cfg,
		logger:    logger,
		declared:  make(map[model.Permission]bool),
		status:    cfg.Initial,
		listeners: make(map[uint64]func(model.AuthorizationStatus)),
		done:      make(chan struct{}),
	}
	for _, p := range cfg.Declared {
		a.declared[p] = true
	}

	if cfg.Store != nil {
		st, err := cfg.Store.Load()
		if err != nil {
			return nil, fmt.Errorf("load authorization state: %w", err)
		}
		if st != nil {
			s, ok := model.ParseAuthorizationStatus(st.Status)
			if !ok {
				return nil, fmt.Errorf("%s: %w %q", cfg.Store.Path(), ErrInvalidStatus, st.Status)
			}
			a.status = s
			a.prompts = st.Prompts
		}
	}
	return a, nil
}

// Status returns the current decision.
func (a *Authority) Status() model.AuthorizationStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Declared reports whether a usage justification exists for level.
func (a *Authority) Declared(level model.Permission) bool {
	return level == model.PermissionNone || a.declared[level]
}

// Policy returns the prompt policy.
func (a *Authority) Policy() Policy {
	return a.config.Policy
}

// Prompts returns the number of prompts answered.
func (a *Authority) Prompts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompts
}

// Prompt asks for level. The decision is delivered to listeners later;
// with PolicyManual it waits for Set.
func (a *Authority) Prompt(level model.Permission) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	decision, ok := a.config.Policy.decide(level, a.status)
	if !ok {
		a.mu.Unlock()
		a.logger.Info("authorization prompt pending", "level", level, "policy", a.config.Policy)
		return nil
	}
	a.wg.Add(1)
	a.mu.Unlock()

	a.logger.Debug("authorization prompt", "level", level, "policy", a.config.Policy, "decision", decision)
	go func() {
		defer a.wg.Done()
		if a.config.PromptDelay > 0 {
			t := time.NewTimer(a.config.PromptDelay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-a.done:
				return
			}
		}
		if err := a.set(decision, true); err != nil {
			a.logger.Warn("persist authorization failed", "error", err)
		}
	}()
	return nil
}

// Set records a decision and notifies every listener, even when the
// decision is unchanged, so that pending prompts resolve.
func (a *Authority) Set(st model.AuthorizationStatus) error {
	if st > model.AuthorizationAlways {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, st)
	}
	return a.set(st, false)
}

func (a *Authority) set(st model.AuthorizationStatus, prompted bool) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	old := a.status
	a.status = st
	if prompted {
		a.prompts++
	}
	state := &State{Status: st.String(), Prompts: a.prompts}
	listeners := make([]func(model.AuthorizationStatus), 0, len(a.order))
	for _, id := range a.order {
		listeners = append(listeners, a.listeners[id])
	}
	a.mu.Unlock()

	a.logger.Info("authorization changed", "from", old, "to", st, "prompted", prompted)

	var err error
	if a.config.Store != nil {
		err = a.config.Store.Save(state)
	}
	for _, fn := range listeners {
		fn(st)
	}
	return err
}

// Listen registers handler for decisions and returns a function that
// unregisters it.
func (a *Authority) Listen(handler func(model.AuthorizationStatus)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.listeners[id] = handler
	a.order = append(a.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.listeners, id)
			for i, v := range a.order {
				if v == id {
					a.order = append(a.order[:i], a.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Close drops pending policy answers. Later prompts fail with ErrClosed.
func (a *Authority) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.done)
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

// Compile-time interface satisfaction check.
var _ status.Authority = (*Authority)(nil)

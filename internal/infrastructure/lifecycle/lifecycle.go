package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
)

var (
	ErrDraining     = errors.New("lifecycle is draining, not accepting work")
	ErrDrainTimeout = errors.New("drain timeout elapsed with workers still running")
)

// State represents the process lifecycle state
type State int

const (
	StateRunning State = iota
	StateDraining
	StateTerminated
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Settings configures the handler behavior
type Settings struct {
	// DrainTimeout bounds how long Shutdown waits for admitted work
	DrainTimeout time.Duration
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Handler owns the root cancellation context of a process and drives it
// through Running -> Draining -> Terminated.
type Handler struct {
	name     string
	settings Settings
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	units     sync.WaitGroup
	active    int
	releasers []func() error
	result    error
	done      chan struct{}
}

// New creates a handler in the Running state
func New(name string, settings Settings, logger *logging.Logger) *Handler {
	if settings.DrainTimeout <= 0 {
		settings.DrainTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		name:     name,
		settings: settings,
		logger:   logger.Component("lifecycle"),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateRunning,
		done:     make(chan struct{}),
	}
}

// Name returns the handler name
func (h *Handler) Name() string {
	return h.name
}

// Context returns the root context. It is cancelled when draining starts.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// State returns the current state
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the handler reaches Terminated
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Active returns the number of admitted units not yet finished
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Admit registers one unit of work. The returned function must be called
// exactly once when the unit finishes.
func (h *Handler) Admit() (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRunning {
		return nil, ErrDraining
	}

	h.units.Add(1)
	h.active++

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			h.active--
			h.mu.Unlock()
			h.units.Done()
		})
	}, nil
}

// Go admits fn and runs it on its own goroutine with the root context
func (h *Handler) Go(fn func(ctx context.Context)) error {
	release, err := h.Admit()
	if err != nil {
		return err
	}

	go func() {
		defer release()
		fn(h.ctx)
	}()
	return nil
}

// OnRelease registers a cleanup run after draining. Cleanups run in reverse
// registration order.
func (h *Handler) OnRelease(fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releasers = append(h.releasers, fn)
}

// Shutdown moves Running -> Draining, cancels the root context, waits for
// admitted units up to DrainTimeout, runs cleanups, then moves to
// Terminated. Units still running after the timeout are abandoned and
// reported through ErrDrainTimeout. Calling Shutdown again waits for the
// first call and returns its result.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		<-h.done
		return h.result
	}
	h.setState(StateDraining)
	h.mu.Unlock()

	h.cancel()

	drained := make(chan struct{})
	go func() {
		h.units.Wait()
		close(drained)
	}()

	var errs []error
	timer := time.NewTimer(h.settings.DrainTimeout)
	defer timer.Stop()

	select {
	case <-drained:
		h.logger.Info("All workers joined", zap.String("name", h.name))
	case <-timer.C:
		stragglers := h.Active()
		h.logger.Warn("Drain timeout elapsed, abandoning workers",
			zap.String("name", h.name),
			zap.Int("stragglers", stragglers),
			zap.Duration("timeout", h.settings.DrainTimeout),
		)
		errs = append(errs, fmt.Errorf("%w: %d still running", ErrDrainTimeout, stragglers))
	}

	h.mu.Lock()
	releasers := h.releasers
	h.releasers = nil
	h.mu.Unlock()

	for i := len(releasers) - 1; i >= 0; i-- {
		if err := releasers[i](); err != nil {
			h.logger.Error("Release failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	h.mu.Lock()
	h.result = errors.Join(errs...)
	h.setState(StateTerminated)
	h.mu.Unlock()

	close(h.done)
	return h.result
}

// Watch starts draining when one of the given signals arrives. The returned
// function stops watching.
func (h *Handler) Watch(signals ...os.Signal) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	stop := make(chan struct{})
	go h.listen(ch, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(stop)
		})
	}
}

// listen waits for one signal and drains
func (h *Handler) listen(ch <-chan os.Signal, stop <-chan struct{}) {
	select {
	case sig := <-ch:
		h.logger.Warn("Interrupt received, terminating workers",
			zap.String("name", h.name),
			zap.String("signal", sig.String()),
		)
		_ = h.Shutdown()
	case <-stop:
	case <-h.done:
	}
}

// setState changes the state. Callers hold mu.
func (h *Handler) setState(state State) {
	if h.state == state {
		return
	}

	prev := h.state
	h.state = state

	if h.settings.OnStateChange != nil {
		h.settings.OnStateChange(h.name, prev, state)
	}
}

// Package service implements the base service runtime (C7): a lifecycle
// state machine every backend process (gateway, relay, analysis, coach,
// monitor) embeds, plus health rollup across its registered dependencies.
package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xksnk/selfology-core/pkg/circuitbreaker"
	"github.com/xksnk/selfology-core/pkg/shared/logging"
	"github.com/xksnk/selfology-core/pkg/shared/metrics"
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// HealthChecker is anything the runtime rolls up into the service-level
// health check: a DB ping, a Redis ping, an upstream model endpoint.
type HealthChecker interface {
	Name() string
	CheckHealth(ctx context.Context) Health
}

// HealthCheckerFunc adapts a plain function to HealthChecker.
type HealthCheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) Health
}

func (f HealthCheckerFunc) Name() string { return f.CheckerName }
func (f HealthCheckerFunc) CheckHealth(ctx context.Context) Health {
	return f.Fn(ctx)
}

// Consumer is anything the runtime starts and stops alongside the
// service's own lifecycle — typically an *eventbus.Consumer.Run loop or
// the outbox relay, wrapped in a closure.
type Consumer interface {
	Run(ctx context.Context) error
}

// Runtime is the base every service process embeds. It tracks lifecycle
// state, owns a circuit-breaker registry shared by every dependency the
// service calls out to, and rolls up health across registered checkers.
type Runtime struct {
	Name string

	mu       sync.Mutex
	state    State
	checkers []HealthChecker
	breakers *circuitbreaker.Registry
	log      *logrus.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(name string) *Runtime {
	return &Runtime{
		Name:     name,
		state:    StateStopped,
		breakers: circuitbreaker.NewRegistry(),
		log:      logrus.StandardLogger(),
	}
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runtime) Breakers() *circuitbreaker.Registry {
	return r.breakers
}

// RegisterHealthChecker adds a dependency to the service's health rollup.
func (r *Runtime) RegisterHealthChecker(c HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, c)
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Start transitions STOPPED -> STARTING -> RUNNING, launching every given
// consumer on its own goroutine. If any consumer's Run returns a non-nil
// error while the runtime is still RUNNING, the runtime moves to ERROR.
func (r *Runtime) Start(ctx context.Context, consumers ...Consumer) context.CancelFunc {
	r.setState(StateStarting)
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, c := range consumers {
		c := c
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := c.Run(runCtx); err != nil && runCtx.Err() == nil {
				r.log.WithFields(logging.NewFields().Component("service").Custom("service_name", r.Name).Error(err).ToLogrus()).
					Error("consumer exited unexpectedly")
				r.setState(StateError)
			}
		}()
	}

	r.mu.Lock()
	if r.state == StateStarting {
		r.state = StateRunning
	}
	r.mu.Unlock()
	return r.Stop
}

// Stop transitions RUNNING -> STOPPING -> STOPPED, cancelling every
// consumer's context and waiting for them to exit. Safe to call from any
// exit path, including defer, even if Start was never called.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if r.state == StateStopped || r.state == StateStopping {
		r.mu.Unlock()
		return
	}
	r.state = StateStopping
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	r.setState(StateStopped)
}

// RunScoped starts the runtime, runs fn, and guarantees Stop on every exit
// path from fn — normal return, panic, or error — so callers never need to
// remember a deferred shutdown themselves.
func (r *Runtime) RunScoped(ctx context.Context, consumers []Consumer, fn func(ctx context.Context) error) (err error) {
	runCtx, cancel := context.WithCancel(ctx)
	r.Start(runCtx, consumers...)
	defer func() {
		cancel()
		r.Stop()
	}()
	return fn(runCtx)
}

// HealthCheck rolls every registered checker up to the worst reported
// state: one UNHEALTHY dependency makes the whole service UNHEALTHY, one
// DEGRADED (with the rest healthy) makes it DEGRADED.
func (r *Runtime) HealthCheck(ctx context.Context) Health {
	r.mu.Lock()
	checkers := make([]HealthChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.Unlock()

	worst := HealthHealthy
	for _, c := range checkers {
		switch c.CheckHealth(ctx) {
		case HealthUnhealthy:
			worst = HealthUnhealthy
		case HealthDegraded:
			if worst != HealthUnhealthy {
				worst = HealthDegraded
			}
		}
	}

	r.breakers.ExportMetrics()
	metrics.RecordHealth(r.Name, string(worst))
	return worst
}

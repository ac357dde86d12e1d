package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TFMV/estateflow/logger"
	"github.com/TFMV/estateflow/metrics"
	"github.com/TFMV/estateflow/workflow"
)

// Router modes
const (
	ModeDurable = workflow.ModeDurable
	ModeDirect  = workflow.ModeDirect
	ModeAuto    = "auto"
)

// ErrUnknownMode is returned for a handle or config naming no known mode
var ErrUnknownMode = errors.New("unknown execution mode")

// Config holds router configuration
type Config struct {
	// Mode is durable, direct or auto (durable while its circuit is closed)
	Mode string `yaml:"mode"`

	// HealthCheckInterval is how often the durable backend is probed (default: 10s)
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// FailureThreshold is the number of consecutive durable failures that opens the circuit
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetTimeout is how long an open circuit keeps auto mode on direct execution
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// RunRetention is how long finished direct runs stay queryable (default: 10m)
	RunRetention time.Duration `yaml:"run_retention"`
}

// DefaultConfig returns the default router configuration
func DefaultConfig() Config {
	return Config{
		Mode:                ModeAuto,
		HealthCheckInterval: 10 * time.Second,
		FailureThreshold:    FailureThreshold,
		ResetTimeout:        ResetTimeout,
		RunRetention:        workflow.DefaultRunRetention,
	}
}

// Durable is the durable backend the router starts runs on
type Durable interface {
	Enabled() bool
	StartWorkflow(ctx context.Context, workflowID, name string, input interface{}) (string, error)
	Signal(ctx context.Context, workflowID, signal string, arg interface{}) error
	Result(ctx context.Context, workflowID string, out interface{}) error
	Step(ctx context.Context, workflowID string) (string, error)
	Completed(ctx context.Context, workflowID string) (bool, error)
	CheckHealth(ctx context.Context) error
}

// RunHandle identifies a started run and the mode it runs in
type RunHandle struct {
	RunID     string `json:"runId"`
	Workflow  string `json:"workflow"`
	Mode      string `json:"mode"`
	Completed bool   `json:"completed"`
}

// Router chooses an execution back end per call and forwards run operations to it
type Router struct {
	config  Config
	durable Durable
	direct  *workflow.DirectExecutor
	health  *BackendHealth
	metrics *metrics.Metrics
	logger  *logger.Logger

	stopHealthCheck chan struct{}
	stopOnce        sync.Once
}

// NewRouter creates a router. durable may be nil, which leaves direct execution only.
func NewRouter(config Config, durable Durable, direct *workflow.DirectExecutor, m *metrics.Metrics, l *logger.Logger) (*Router, error) {
	switch config.Mode {
	case "":
		config.Mode = ModeAuto
	case ModeDurable, ModeDirect, ModeAuto:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, config.Mode)
	}
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = 10 * time.Second
	}
	if direct == nil {
		return nil, errors.New("router needs a direct executor")
	}
	if l == nil {
		l = logger.Nop()
	}

	r := &Router{
		config:          config,
		durable:         durable,
		direct:          direct,
		health:          NewBackendHealth(config.FailureThreshold, config.ResetTimeout),
		metrics:         m,
		logger:          l.With("component", "router"),
		stopHealthCheck: make(chan struct{}),
	}
	r.metrics.SetDurableHealthy(r.durableEnabled())
	return r, nil
}

// Health exposes the durable backend's circuit breaker
func (r *Router) Health() *BackendHealth { return r.health }

// Initialize starts background health monitoring of the durable backend and
// the sweep of finished direct runs
func (r *Router) Initialize() {
	if !r.durableEnabled() {
		r.logger.Info("Durable backend not configured, running direct only")
	}
	go r.runPeriodicHealthCheck()
}

func (r *Router) runPeriodicHealthCheck() {
	ticker := time.NewTicker(r.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.CheckHealth(context.Background())
			if n := r.direct.Sweep(); n > 0 {
				r.logger.Debug("Discarded finished direct runs", "count", n)
			}
		case <-r.stopHealthCheck:
			return
		}
	}
}

// CheckHealth probes the durable backend once and updates the circuit
func (r *Router) CheckHealth(ctx context.Context) {
	if !r.durableEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.durable.CheckHealth(ctx); err != nil {
		r.health.RecordFailure()
		r.logger.Warn("Durable backend health check failed", "error", err, "circuit", r.health.State().String())
	} else {
		r.health.RecordSuccess()
	}
	r.metrics.SetDurableHealthy(r.health.IsHealthy())
}

// Close stops health monitoring
func (r *Router) Close() {
	r.stopOnce.Do(func() { close(r.stopHealthCheck) })
}

func (r *Router) durableEnabled() bool {
	return r.durable != nil && r.durable.Enabled()
}

// SelectMode returns the mode the next call will use. The configured mode is
// read once per call.
func (r *Router) SelectMode() string {
	switch r.config.Mode {
	case ModeDurable:
		return ModeDurable
	case ModeDirect:
		return ModeDirect
	}
	if r.durableEnabled() && r.health.IsHealthy() {
		return ModeDurable
	}
	return ModeDirect
}

// Start begins a run in the selected mode. A durable start failure is returned
// as is; the call is not repeated in direct mode.
func (r *Router) Start(ctx context.Context, name string, input interface{}) (RunHandle, error) {
	mode := r.SelectMode()

	if mode == ModeDurable {
		if !r.durableEnabled() {
			return RunHandle{}, workflow.ErrDurableDisabled
		}
		workflowID := fmt.Sprintf("%s-%s", strings.ToLower(name), uuid.NewString())
		if _, err := r.durable.StartWorkflow(ctx, workflowID, name, input); err != nil {
			r.health.RecordFailure()
			r.metrics.SetDurableHealthy(r.health.IsHealthy())
			r.logger.Error("Durable start failed", "workflow", name, "error", err, "circuit", r.health.State().String())
			return RunHandle{}, err
		}
		r.health.RecordSuccess()
		r.logger.Info("Routed run", "workflow", name, "mode", mode, "run_id", workflowID)
		return RunHandle{RunID: workflowID, Workflow: name, Mode: ModeDurable}, nil
	}

	run, err := r.direct.Start(ctx, "", name, input)
	if err != nil {
		return RunHandle{}, err
	}
	r.logger.Info("Routed run", "workflow", name, "mode", mode, "run_id", run.ID)
	return RunHandle{RunID: run.ID, Workflow: name, Mode: ModeDirect, Completed: run.Completed()}, nil
}

// Execute starts a run and waits for its result
func (r *Router) Execute(ctx context.Context, name string, input, out interface{}) (RunHandle, error) {
	h, err := r.Start(ctx, name, input)
	if err != nil {
		return h, err
	}
	if err := r.Result(ctx, h, out); err != nil {
		return h, err
	}
	h.Completed = true
	return h, nil
}

// Signal delivers a signal to the run behind the handle
func (r *Router) Signal(ctx context.Context, h RunHandle, name string, payload interface{}) error {
	switch h.Mode {
	case ModeDurable:
		if !r.durableEnabled() {
			return workflow.ErrDurableDisabled
		}
		return r.durable.Signal(ctx, h.RunID, name, payload)
	case ModeDirect:
		return r.direct.Signal(h.RunID, name, payload)
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, h.Mode)
}

// Result waits for the run behind the handle and decodes its output into out.
// Run failures are returned as *workflow.Error.
func (r *Router) Result(ctx context.Context, h RunHandle, out interface{}) error {
	switch h.Mode {
	case ModeDurable:
		if !r.durableEnabled() {
			return workflow.ErrDurableDisabled
		}
		return r.durable.Result(ctx, h.RunID, out)
	case ModeDirect:
		return r.direct.Result(ctx, h.RunID, out)
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, h.Mode)
}

// Step reports the current step of the run behind the handle
func (r *Router) Step(ctx context.Context, h RunHandle) (string, error) {
	switch h.Mode {
	case ModeDurable:
		if !r.durableEnabled() {
			return "", workflow.ErrDurableDisabled
		}
		return r.durable.Step(ctx, h.RunID)
	case ModeDirect:
		run, ok := r.direct.Run(h.RunID)
		if !ok {
			return "", workflow.ErrRunNotFound
		}
		return run.Log.Step(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, h.Mode)
}

// Refresh updates the handle's Completed flag
func (r *Router) Refresh(ctx context.Context, h RunHandle) (RunHandle, error) {
	switch h.Mode {
	case ModeDurable:
		if !r.durableEnabled() {
			return h, workflow.ErrDurableDisabled
		}
		done, err := r.durable.Completed(ctx, h.RunID)
		if err != nil {
			return h, err
		}
		h.Completed = done
		return h, nil
	case ModeDirect:
		run, ok := r.direct.Run(h.RunID)
		if !ok {
			return h, workflow.ErrRunNotFound
		}
		h.Completed = run.Completed()
		return h, nil
	}
	return h, fmt.Errorf("%w: %q", ErrUnknownMode, h.Mode)
}

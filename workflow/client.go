package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/TFMV/estateflow/logger"
)

// TemporalConfig holds configuration for connecting to Temporal
type TemporalConfig struct {
	// HostPort is the Temporal frontend address (default: "localhost:7233")
	HostPort string `yaml:"host_port"`

	// Namespace is the Temporal namespace (default: "default")
	Namespace string `yaml:"namespace"`

	// TaskQueue is the queue workers poll (default: "estateflow-tasks")
	TaskQueue string `yaml:"task_queue"`

	// WorkflowExecutionTimeout bounds a whole run, review waits included (default: 72h)
	WorkflowExecutionTimeout time.Duration `yaml:"workflow_execution_timeout"`

	// WorkerCount caps concurrent activity executions per worker (default: 10)
	WorkerCount int `yaml:"worker_count"`

	// Enabled controls whether a Temporal client is created at all
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default Temporal configuration
func DefaultConfig() TemporalConfig {
	return TemporalConfig{
		HostPort:                 "localhost:7233",
		Namespace:                "default",
		TaskQueue:                "estateflow-tasks",
		WorkflowExecutionTimeout: 72 * time.Hour,
		WorkerCount:              10,
		Enabled:                  false,
	}
}

// ErrDurableDisabled is returned by an orchestrator created with Enabled false
var ErrDurableDisabled = errors.New("temporal orchestration is disabled or not configured")

// Orchestrator manages the Temporal client, the worker and workflow executions
type Orchestrator struct {
	config  TemporalConfig
	logger  *logger.Logger
	client  client.Client
	worker  worker.Worker
	started bool
}

// NewOrchestrator dials Temporal. A disabled config yields an orchestrator whose
// calls all fail with ErrDurableDisabled.
func NewOrchestrator(config TemporalConfig, l *logger.Logger) (*Orchestrator, error) {
	if l == nil {
		l = logger.Nop()
	}
	if !config.Enabled {
		return &Orchestrator{config: config, logger: l}, nil
	}

	c, err := client.Dial(client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Logger:    l.With("component", "temporal"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}

	return &Orchestrator{config: config, logger: l, client: c}, nil
}

// NewOrchestratorWithClient wraps an existing client
func NewOrchestratorWithClient(config TemporalConfig, c client.Client, l *logger.Logger) *Orchestrator {
	if l == nil {
		l = logger.Nop()
	}
	config.Enabled = c != nil
	return &Orchestrator{config: config, logger: l, client: c}
}

// Enabled reports whether the orchestrator talks to a Temporal server
func (o *Orchestrator) Enabled() bool {
	return o != nil && o.config.Enabled && o.client != nil
}

// RegisterWorker creates a worker on the task queue serving every definition in the registry
func (o *Orchestrator) RegisterWorker(registry *Registry) error {
	if !o.Enabled() {
		return nil
	}

	w := worker.New(o.client, o.config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: o.config.WorkerCount,
	})
	registry.Register(w)

	o.worker = w
	return nil
}

// Start begins worker polling
func (o *Orchestrator) Start() error {
	if !o.Enabled() || o.worker == nil {
		o.logger.Info("Temporal worker not configured, skipping")
		return nil
	}
	if o.started {
		return nil
	}

	if err := o.worker.Start(); err != nil {
		return fmt.Errorf("failed to start Temporal worker: %w", err)
	}

	o.started = true
	o.logger.Info("Temporal worker started", "task_queue", o.config.TaskQueue)
	return nil
}

// StartWorkflow starts a run with the given workflow ID and returns the run ID
func (o *Orchestrator) StartWorkflow(ctx context.Context, workflowID, name string, input interface{}) (string, error) {
	if !o.Enabled() {
		return "", ErrDurableDisabled
	}

	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                o.config.TaskQueue,
		WorkflowExecutionTimeout: o.config.WorkflowExecutionTimeout,
	}
	run, err := o.client.ExecuteWorkflow(ctx, options, name, input)
	if err != nil {
		return "", fmt.Errorf("failed to start workflow %s: %w", name, err)
	}

	o.logger.Info("Started durable workflow", "workflow", name, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return run.GetRunID(), nil
}

// Signal delivers a signal to a running workflow
func (o *Orchestrator) Signal(ctx context.Context, workflowID, signal string, arg interface{}) error {
	if !o.Enabled() {
		return ErrDurableDisabled
	}
	err := o.client.SignalWorkflow(ctx, workflowID, "", signal, arg)
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return ErrRunNotFound
	}
	return err
}

// Result waits for a workflow to finish and decodes its output. Workflow
// failures come back as *Error.
func (o *Orchestrator) Result(ctx context.Context, workflowID string, out interface{}) error {
	if !o.Enabled() {
		return ErrDurableDisabled
	}
	err := o.client.GetWorkflow(ctx, workflowID, "").Get(ctx, out)
	if err == nil {
		return nil
	}
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return ErrRunNotFound
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fromTemporal("", err, 0)
}

// Step queries the current step of a workflow
func (o *Orchestrator) Step(ctx context.Context, workflowID string) (string, error) {
	if !o.Enabled() {
		return "", ErrDurableDisabled
	}
	resp, err := o.client.QueryWorkflow(ctx, workflowID, "", QueryCurrentStep)
	if err != nil {
		return "", err
	}
	var step string
	if err := resp.Get(&step); err != nil {
		return "", err
	}
	return step, nil
}

// Completed reports whether the workflow has closed
func (o *Orchestrator) Completed(ctx context.Context, workflowID string) (bool, error) {
	if !o.Enabled() {
		return false, ErrDurableDisabled
	}
	resp, err := o.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return false, err
	}
	status := resp.GetWorkflowExecutionInfo().GetStatus()
	return status != enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, nil
}

// CheckHealth probes the Temporal frontend
func (o *Orchestrator) CheckHealth(ctx context.Context) error {
	if !o.Enabled() {
		return ErrDurableDisabled
	}
	_, err := o.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return err
}

// Close stops the worker and closes the client
func (o *Orchestrator) Close() {
	if o.worker != nil && o.started {
		o.worker.Stop()
		o.logger.Info("Temporal worker stopped")
	}
	if o.client != nil {
		o.client.Close()
		o.logger.Info("Temporal client closed")
	}
}

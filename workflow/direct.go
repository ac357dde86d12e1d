package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/log"

	"github.com/TFMV/estateflow/logger"
	"github.com/TFMV/estateflow/metrics"
)

var (
	// ErrRunNotFound is returned for unknown or forgotten direct runs
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrRunCompleted is returned when signalling a finished run
	ErrRunCompleted = errors.New("workflow run already completed")
)

// AttemptRecord is one activity attempt made by a direct run
type AttemptRecord struct {
	Activity string        `json:"activity"`
	Attempt  int           `json:"attempt"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
}

// RunLog is the in-memory history of a direct run. It lives only as long as the
// executor remembers the run.
type RunLog struct {
	RunID    string
	Workflow string

	mu       sync.Mutex
	step     string
	attempts []AttemptRecord
}

// Step returns the current step
func (l *RunLog) Step() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.step
}

// Attempts returns a copy of the attempt history
func (l *RunLog) Attempts() []AttemptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AttemptRecord(nil), l.attempts...)
}

// AttemptsOf counts the attempts made for one activity
func (l *RunLog) AttemptsOf(activity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.attempts {
		if a.Activity == activity {
			n++
		}
	}
	return n
}

func (l *RunLog) setStep(step string) {
	l.mu.Lock()
	l.step = step
	l.mu.Unlock()
}

func (l *RunLog) record(activity string, attempt int, started time.Time, err error) {
	rec := AttemptRecord{Activity: activity, Attempt: attempt, Outcome: "success", At: started, Duration: time.Since(started)}
	if err != nil {
		rec.Outcome = "failure"
		rec.Error = err.Error()
	}
	l.mu.Lock()
	l.attempts = append(l.attempts, rec)
	l.mu.Unlock()
}

// signalBox queues signals for one direct run
type signalBox struct {
	mu      sync.Mutex
	pending map[string][]*commonpb.Payload
	notify  chan struct{}
}

func newSignalBox() *signalBox {
	return &signalBox{pending: make(map[string][]*commonpb.Payload), notify: make(chan struct{}, 1)}
}

func (b *signalBox) put(name string, p *commonpb.Payload) {
	b.mu.Lock()
	b.pending[name] = append(b.pending[name], p)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *signalBox) take(name string) (*commonpb.Payload, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.pending[name]
	if len(q) == 0 {
		return nil, false
	}
	b.pending[name] = q[1:]
	return q[0], true
}

// DirectRun is a workflow run executed in-process
type DirectRun struct {
	ID       string
	Workflow string
	Log      *RunLog

	signals  *signalBox
	done     chan struct{}
	output   *commonpb.Payload
	err      error
	finished time.Time
}

// Done is closed when the run finishes
func (r *DirectRun) Done() <-chan struct{} { return r.done }

// Completed reports whether the run has finished
func (r *DirectRun) Completed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Err returns the run failure once completed
func (r *DirectRun) Err() error {
	if !r.Completed() {
		return nil
	}
	return r.err
}

// DefaultRunRetention is how long a finished direct run stays queryable
const DefaultRunRetention = 10 * time.Minute

// DirectExecutor runs workflow definitions synchronously in the calling process.
// Long-lived workflows run on a tracked goroutine and are awaited through Result.
// Finished runs are discarded once their retention has passed.
type DirectExecutor struct {
	registry  *Registry
	logger    *logger.Logger
	metrics   *metrics.Metrics
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	retention time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*DirectRun
}

// NewDirectExecutor creates an executor over the registry's definitions
func NewDirectExecutor(registry *Registry, l *logger.Logger, m *metrics.Metrics) *DirectExecutor {
	if l == nil {
		l = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DirectExecutor{
		registry:  registry,
		logger:    l,
		metrics:   m,
		sleep:     sleepContext,
		now:       time.Now,
		retention: DefaultRunRetention,
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[string]*DirectRun),
	}
}

// WithRetention sets how long finished runs are kept. Non-positive values keep
// the default.
func (e *DirectExecutor) WithRetention(d time.Duration) *DirectExecutor {
	if d > 0 {
		e.retention = d
	}
	return e
}

// WithSleep replaces the backoff wait, e.g. to skip delays in tests
func (e *DirectExecutor) WithSleep(fn func(ctx context.Context, d time.Duration) error) *DirectExecutor {
	e.sleep = fn
	return e
}

// Start begins a run. Short workflows complete before Start returns; long-lived
// ones keep running in the background. An empty runID is generated.
func (e *DirectExecutor) Start(ctx context.Context, runID, name string, input interface{}) (*DirectRun, error) {
	def, err := e.registry.workflow(name)
	if err != nil {
		return nil, err
	}
	payload, err := e.registry.dc.ToPayload(input)
	if err != nil {
		return nil, fmt.Errorf("encode workflow input: %w", err)
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	run := &DirectRun{
		ID:       runID,
		Workflow: name,
		Log:      &RunLog{RunID: runID, Workflow: name, step: "STARTED"},
		signals:  newSignalBox(),
		done:     make(chan struct{}),
	}

	e.mu.Lock()
	e.sweepLocked()
	if _, exists := e.runs[runID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("workflow run %s already exists", runID)
	}
	e.runs[runID] = run
	e.mu.Unlock()

	if def.longLived {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.execute(e.ctx, run, def, payload)
		}()
		return run, nil
	}

	// Callers going away do not abort a run midway
	e.execute(context.WithoutCancel(ctx), run, def, payload)
	return run, nil
}

func (e *DirectExecutor) execute(ctx context.Context, run *DirectRun, def *workflowDef, payload *commonpb.Payload) {
	defer func() {
		run.finished = e.now()
		close(run.done)
	}()

	rt := &directRuntime{
		ctx:     ctx,
		exec:    e,
		run:     run,
		dc:      e.registry.dc,
		logger:  e.logger.With("workflow", run.Workflow, "run_id", run.ID),
		signals: run.signals,
	}

	defer func() {
		if p := recover(); p != nil {
			run.err = fmt.Errorf("workflow %s panicked: %v", run.Workflow, p)
			rt.logger.Error("Workflow panicked", "panic", p)
			e.metrics.ObserveRun(run.Workflow, ModeDirect, run.err)
		}
	}()

	run.output, run.err = def.direct(rt, payload)
	e.metrics.ObserveRun(run.Workflow, ModeDirect, run.err)
}

// Run returns a remembered run
func (e *DirectExecutor) Run(runID string) (*DirectRun, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[runID]
	return run, ok
}

// Signal delivers a signal to a running workflow
func (e *DirectExecutor) Signal(runID, name string, arg interface{}) error {
	run, ok := e.Run(runID)
	if !ok {
		return ErrRunNotFound
	}
	if run.Completed() {
		return ErrRunCompleted
	}
	payload, err := e.registry.dc.ToPayload(arg)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	run.signals.put(name, payload)
	return nil
}

// Result waits for the run to finish and decodes its output into out
func (e *DirectExecutor) Result(ctx context.Context, runID string, out interface{}) error {
	run, ok := e.Run(runID)
	if !ok {
		return ErrRunNotFound
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if run.err != nil {
		return run.err
	}
	if out == nil || run.output == nil {
		return nil
	}
	return e.registry.dc.FromPayload(run.output, out)
}

// Forget drops a run and its log
func (e *DirectExecutor) Forget(runID string) {
	e.mu.Lock()
	delete(e.runs, runID)
	e.mu.Unlock()
}

// Len returns the number of remembered runs
func (e *DirectExecutor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

// Sweep discards finished runs older than the retention
func (e *DirectExecutor) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweepLocked()
}

func (e *DirectExecutor) sweepLocked() int {
	cutoff := e.now().Add(-e.retention)
	n := 0
	for id, run := range e.runs {
		if run.Completed() && run.finished.Before(cutoff) {
			delete(e.runs, id)
			n++
		}
	}
	return n
}

// Close cancels background runs and waits for them to exit
func (e *DirectExecutor) Close() {
	e.cancel()
	e.wg.Wait()
}

type directRuntime struct {
	ctx     context.Context
	exec    *DirectExecutor
	run     *DirectRun
	dc      converter.DataConverter
	logger  *logger.Logger
	signals *signalBox
}

func (rt *directRuntime) ExecuteActivity(name string, policy Policy, in, out interface{}) error {
	def, err := rt.exec.registry.activity(name)
	if err != nil {
		return &Error{Kind: KindNotFound, Activity: name, Message: err.Error()}
	}
	payload, err := rt.dc.ToPayload(in)
	if err != nil {
		return &Error{Kind: KindValidation, Activity: name, Message: "encode input: " + err.Error(), Cause: err}
	}

	maxAttempts := policy.MaximumAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		started := time.Now()
		result, err := rt.attempt(def, policy, attempt, payload)
		if err == nil {
			rt.run.Log.record(name, attempt, started, nil)
			if out == nil || result == nil {
				return nil
			}
			if derr := rt.dc.FromPayload(result, out); derr != nil {
				return &Error{Kind: KindValidation, Activity: name, Message: "decode output: " + derr.Error(), Attempts: attempt, Cause: derr}
			}
			return nil
		}

		werr := classify(name, err)
		rt.run.Log.record(name, attempt, started, werr)
		if !werr.Retryable() || attempt >= maxAttempts {
			werr.Attempts = attempt
			return werr
		}

		wait := policy.Backoff(attempt)
		rt.logger.Warn("Activity attempt failed, retrying",
			"activity", name,
			"attempt", attempt,
			"backoff", wait,
			"error", werr.Message)
		if serr := rt.exec.sleep(rt.ctx, wait); serr != nil {
			werr.Attempts = attempt
			return werr
		}
	}
}

// attempt runs one try under the per-attempt timeout. An attempt that outlives
// its timeout is abandoned and counted as a transient failure.
func (rt *directRuntime) attempt(def *activityDef, policy Policy, attempt int, payload *commonpb.Payload) (*commonpb.Payload, error) {
	ctx, cancel := rt.ctx, context.CancelFunc(func() {})
	if policy.PerAttemptTimeout > 0 {
		ctx, cancel = context.WithTimeout(rt.ctx, policy.PerAttemptTimeout)
	}
	defer cancel()

	ctx = context.WithValue(ctx, attemptKey{}, attempt)
	ctx = context.WithValue(ctx, runIDKey{}, rt.run.ID)
	ctx = context.WithValue(ctx, loggerKey{}, log.Logger(rt.logger.With("activity", def.name, "attempt", attempt)))

	type result struct {
		payload *commonpb.Payload
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := def.direct(ctx, payload)
		ch <- result{payload: p, err: err}
	}()

	select {
	case r := <-ch:
		return r.payload, r.err
	case <-ctx.Done():
		if rt.ctx.Err() == nil {
			return nil, Transient(def.name, fmt.Errorf("attempt %d timed out after %s", attempt, policy.PerAttemptTimeout))
		}
		return nil, Transient(def.name, ctx.Err())
	}
}

func (rt *directRuntime) AwaitSignal(name string, timeout time.Duration, out interface{}) (bool, error) {
	if p, ok := rt.signals.take(name); ok {
		return true, rt.decodeSignal(p, out)
	}
	if timeout <= 0 {
		return false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-rt.signals.notify:
			if p, ok := rt.signals.take(name); ok {
				return true, rt.decodeSignal(p, out)
			}
		case <-timer.C:
			// A signal queued before the deadline was observed still wins
			if p, ok := rt.signals.take(name); ok {
				return true, rt.decodeSignal(p, out)
			}
			return false, nil
		case <-rt.ctx.Done():
			return false, rt.ctx.Err()
		}
	}
}

func (rt *directRuntime) decodeSignal(p *commonpb.Payload, out interface{}) error {
	if out == nil {
		return nil
	}
	return rt.dc.FromPayload(p, out)
}

func (rt *directRuntime) Now() time.Time { return time.Now() }

func (rt *directRuntime) Logger() log.Logger { return rt.logger }

func (rt *directRuntime) RunID() string { return rt.run.ID }

func (rt *directRuntime) Mode() string { return ModeDirect }

func (rt *directRuntime) SetStep(step string) { rt.run.Log.setStep(step) }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/estateflow/metrics"
	"github.com/TFMV/estateflow/workflow"
)

type fakeDurable struct {
	mu       sync.Mutex
	enabled  bool
	startErr error
	healthy  error
	started  []string
	signals  []string
}

func (d *fakeDurable) Enabled() bool { return d.enabled }

func (d *fakeDurable) StartWorkflow(ctx context.Context, workflowID, name string, input interface{}) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return "", d.startErr
	}
	d.started = append(d.started, workflowID)
	return "run-" + workflowID, nil
}

func (d *fakeDurable) Signal(ctx context.Context, workflowID, signal string, arg interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals = append(d.signals, workflowID+"/"+signal)
	return nil
}

func (d *fakeDurable) Result(ctx context.Context, workflowID string, out interface{}) error {
	if o, ok := out.(*greeting); ok {
		o.Text = "durable"
	}
	return nil
}

func (d *fakeDurable) Step(ctx context.Context, workflowID string) (string, error) {
	return "DONE", nil
}

func (d *fakeDurable) Completed(ctx context.Context, workflowID string) (bool, error) {
	return true, nil
}

func (d *fakeDurable) CheckHealth(ctx context.Context) error { return d.healthy }

type greeting struct {
	Text string `json:"text"`
}

func newDirect(t *testing.T) *workflow.DirectExecutor {
	t.Helper()
	reg := workflow.NewRegistry(nil, nil)
	workflow.RegisterActivity(reg, "Greet", func(ctx context.Context, name string) (greeting, error) {
		if name == "" {
			return greeting{}, workflow.ValidationFailed("", []string{"name is required"})
		}
		return greeting{Text: "hello " + name}, nil
	})
	workflow.DefineWorkflow(reg, "Hello", false, func(rt workflow.Runtime, name string) (greeting, error) {
		rt.SetStep("GREETING")
		var out greeting
		err := rt.ExecuteActivity("Greet", workflow.Minimal, name, &out)
		rt.SetStep("DONE")
		return out, err
	})
	workflow.DefineWorkflow(reg, "Wait", true, func(rt workflow.Runtime, _ string) (greeting, error) {
		rt.SetStep("WAITING")
		var out greeting
		if _, err := rt.AwaitSignal("go", time.Minute, &out); err != nil {
			return greeting{}, err
		}
		return out, nil
	})
	exec := workflow.NewDirectExecutor(reg, nil, nil)
	t.Cleanup(exec.Close)
	return exec
}

func TestRouter_DirectMode(t *testing.T) {
	d := &fakeDurable{enabled: true}
	r, err := NewRouter(Config{Mode: ModeDirect}, d, newDirect(t), nil, nil)
	require.NoError(t, err)

	var out greeting
	h, err := r.Execute(context.Background(), "Hello", "asha", &out)
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, h.Mode)
	assert.True(t, h.Completed)
	assert.Equal(t, "hello asha", out.Text)
	assert.Empty(t, d.started)

	step, err := r.Step(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "DONE", step)
}

func TestRouter_DirectRunErrorsComeFromResult(t *testing.T) {
	r, err := NewRouter(Config{Mode: ModeDirect}, nil, newDirect(t), nil, nil)
	require.NoError(t, err)

	h, err := r.Start(context.Background(), "Hello", "")
	require.NoError(t, err)
	assert.True(t, h.Completed)

	err = r.Result(context.Background(), h, nil)
	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))
}

func TestRouter_DurableMode(t *testing.T) {
	d := &fakeDurable{enabled: true}
	r, err := NewRouter(Config{Mode: ModeDurable}, d, newDirect(t), nil, nil)
	require.NoError(t, err)

	var out greeting
	h, err := r.Execute(context.Background(), "Hello", "asha", &out)
	require.NoError(t, err)
	assert.Equal(t, ModeDurable, h.Mode)
	assert.Equal(t, "durable", out.Text)
	require.Len(t, d.started, 1)
	assert.Equal(t, h.RunID, d.started[0])
	assert.Contains(t, h.RunID, "hello-")

	require.NoError(t, r.Signal(context.Background(), h, "go", nil))
	assert.Equal(t, []string{h.RunID + "/go"}, d.signals)
}

func TestRouter_DurableFailureIsNotRetriedDirect(t *testing.T) {
	d := &fakeDurable{enabled: true, startErr: errors.New("frontend unavailable")}
	exec := newDirect(t)
	r, err := NewRouter(Config{Mode: ModeAuto, FailureThreshold: 2}, d, exec, nil, nil)
	require.NoError(t, err)

	_, err = r.Start(context.Background(), "Hello", "asha")
	require.EqualError(t, err, "frontend unavailable")
	assert.Equal(t, CircuitClosed, r.Health().State())

	_, err = r.Start(context.Background(), "Hello", "asha")
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, r.Health().State())

	// The open circuit sends the next call to direct execution
	assert.Equal(t, ModeDirect, r.SelectMode())
	h, err := r.Start(context.Background(), "Hello", "asha")
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, h.Mode)
}

func TestRouter_DurableModeWithoutBackend(t *testing.T) {
	r, err := NewRouter(Config{Mode: ModeDurable}, nil, newDirect(t), nil, nil)
	require.NoError(t, err)

	_, err = r.Start(context.Background(), "Hello", "asha")
	assert.ErrorIs(t, err, workflow.ErrDurableDisabled)
}

func TestRouter_AutoMode(t *testing.T) {
	r, err := NewRouter(Config{Mode: ModeAuto}, nil, newDirect(t), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, r.SelectMode())

	d := &fakeDurable{enabled: false}
	r, err = NewRouter(Config{}, d, newDirect(t), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, r.SelectMode())

	d.enabled = true
	assert.Equal(t, ModeDurable, r.SelectMode())
}

func TestRouter_UnknownMode(t *testing.T) {
	_, err := NewRouter(Config{Mode: "sometimes"}, nil, newDirect(t), nil, nil)
	assert.ErrorIs(t, err, ErrUnknownMode)

	r, err := NewRouter(Config{Mode: ModeDirect}, nil, newDirect(t), nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Result(context.Background(), RunHandle{RunID: "x", Mode: "carrier-pigeon"}, nil), ErrUnknownMode)
}

func TestRouter_LongLivedDirectRun(t *testing.T) {
	r, err := NewRouter(Config{Mode: ModeDirect}, nil, newDirect(t), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	h, err := r.Start(ctx, "Wait", "")
	require.NoError(t, err)
	assert.False(t, h.Completed)

	require.NoError(t, r.Signal(ctx, h, "go", greeting{Text: "signalled"}))

	var out greeting
	require.NoError(t, r.Result(ctx, h, &out))
	assert.Equal(t, "signalled", out.Text)

	h, err = r.Refresh(ctx, h)
	require.NoError(t, err)
	assert.True(t, h.Completed)
}

func TestRouter_CheckHealthUpdatesCircuitAndMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	d := &fakeDurable{enabled: true, healthy: errors.New("deadline exceeded")}
	r, err := NewRouter(Config{Mode: ModeAuto, FailureThreshold: 1}, d, newDirect(t), m, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DurableHealth))

	r.CheckHealth(context.Background())
	assert.Equal(t, CircuitOpen, r.Health().State())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DurableHealth))
	assert.Equal(t, ModeDirect, r.SelectMode())

	r.Close()
	r.Close()
}

func TestRouter_SweepsFinishedDirectRuns(t *testing.T) {
	direct := newDirect(t).WithRetention(20 * time.Millisecond)
	r, err := NewRouter(Config{Mode: ModeDirect, HealthCheckInterval: 10 * time.Millisecond}, nil, direct, nil, nil)
	require.NoError(t, err)
	r.Initialize()
	defer r.Close()

	for _, name := range []string{"asha", "ravi", "meera"} {
		h, err := r.Start(context.Background(), "Hello", name)
		require.NoError(t, err)
		assert.True(t, h.Completed)
	}

	require.Eventually(t, func() bool { return direct.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

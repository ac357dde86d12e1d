package chaos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Fault kinds the engine can inject
const (
	FaultDelay   = "delay"
	FaultError   = "error"
	FaultTimeout = "timeout"
)

// ErrInjected marks every error produced by the engine
var ErrInjected = errors.New("chaos fault injected")

// Config represents chaos testing configuration
type Config struct {
	Enabled          bool     `yaml:"enabled"`
	FaultProbability float64  `yaml:"fault_probability"`
	MaxDelayMs       int      `yaml:"max_delay_ms"`
	Faults           []string `yaml:"faults"`     // empty means all kinds
	Activities       []string `yaml:"activities"` // empty means every activity
	Seed             int64    `yaml:"seed"`       // 0 seeds from the clock
}

// Engine injects faults into activity attempts
type Engine struct {
	config     Config
	activities map[string]bool

	mu   sync.Mutex
	rand *rand.Rand
}

// NewEngine creates a new chaos testing engine
func NewEngine(config Config) *Engine {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(config.Faults) == 0 {
		config.Faults = []string{FaultTimeout, FaultDelay, FaultError}
	}

	e := &Engine{
		config: config,
		rand:   rand.New(rand.NewSource(seed)),
	}
	if len(config.Activities) > 0 {
		e.activities = make(map[string]bool, len(config.Activities))
		for _, a := range config.Activities {
			e.activities[a] = true
		}
	}
	return e
}

// Enabled reports whether the engine may inject anything
func (e *Engine) Enabled() bool {
	return e != nil && e.config.Enabled
}

// ShouldInjectFault determines if a fault should be injected into the activity
func (e *Engine) ShouldInjectFault(activity string) bool {
	if !e.Enabled() {
		return false
	}
	if e.activities != nil && !e.activities[activity] {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rand.Float64() < e.config.FaultProbability
}

// Before runs ahead of an activity attempt and may delay it, fail it, or hold
// it until its context expires
func (e *Engine) Before(ctx context.Context, activity string) error {
	if !e.ShouldInjectFault(activity) {
		return nil
	}

	e.mu.Lock()
	faultType := e.config.Faults[e.rand.Intn(len(e.config.Faults))]
	e.mu.Unlock()
	return e.InjectFault(ctx, activity, faultType)
}

// InjectFault injects a fault of the given kind
func (e *Engine) InjectFault(ctx context.Context, activity, faultType string) error {
	switch faultType {
	case FaultTimeout:
		// Hold until the attempt deadline fires
		<-ctx.Done()
		return fmt.Errorf("%w: %s timed out: %v", ErrInjected, activity, ctx.Err())

	case FaultDelay:
		if e.config.MaxDelayMs <= 0 {
			return nil
		}
		e.mu.Lock()
		delay := time.Duration(e.rand.Intn(e.config.MaxDelayMs)) * time.Millisecond
		e.mu.Unlock()

		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	case FaultError:
		errorMsgs := []string{
			"simulated network error",
			"simulated database error",
			"connection reset",
			"service unavailable",
		}
		e.mu.Lock()
		msg := errorMsgs[e.rand.Intn(len(errorMsgs))]
		e.mu.Unlock()
		return fmt.Errorf("%w: %s: %s", ErrInjected, activity, msg)

	default:
		return fmt.Errorf("unknown fault type: %s", faultType)
	}
}

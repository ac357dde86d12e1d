package workflow

import (
	"math"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Policy controls retries and timeouts of one activity
type Policy struct {
	Name               string
	InitialInterval    time.Duration
	MaximumInterval    time.Duration
	BackoffCoefficient float64
	MaximumAttempts    int
	PerAttemptTimeout  time.Duration
}

var (
	// Standard suits ordinary reads and idempotent writes
	Standard = Policy{
		Name:               "STANDARD",
		InitialInterval:    time.Second,
		MaximumInterval:    30 * time.Second,
		BackoffCoefficient: 2,
		MaximumAttempts:    3,
		PerAttemptTimeout:  30 * time.Second,
	}

	// Aggressive retries quickly, for flaky but cheap calls
	Aggressive = Policy{
		Name:               "AGGRESSIVE",
		InitialInterval:    500 * time.Millisecond,
		MaximumInterval:    10 * time.Second,
		BackoffCoefficient: 2,
		MaximumAttempts:    5,
		PerAttemptTimeout:  10 * time.Second,
	}

	// Minimal fails fast, for non-idempotent or latency sensitive calls
	Minimal = Policy{
		Name:               "MINIMAL",
		InitialInterval:    time.Second,
		MaximumInterval:    5 * time.Second,
		BackoffCoefficient: 2,
		MaximumAttempts:    2,
		PerAttemptTimeout:  10 * time.Second,
	}

	// Extended keeps trying for background work and compensations
	Extended = Policy{
		Name:               "EXTENDED",
		InitialInterval:    2 * time.Second,
		MaximumInterval:    120 * time.Second,
		BackoffCoefficient: 2,
		MaximumAttempts:    10,
		PerAttemptTimeout:  5 * time.Minute,
	}
)

// PolicyByName looks up a preset, case-insensitively
func PolicyByName(name string) (Policy, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case Standard.Name:
		return Standard, true
	case Aggressive.Name:
		return Aggressive, true
	case Minimal.Name:
		return Minimal, true
	case Extended.Name:
		return Extended, true
	}
	return Policy{}, false
}

// Backoff returns the wait after failed attempt n (1-indexed):
// min(InitialInterval × BackoffCoefficient^(n-1), MaximumInterval)
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	coeff := p.BackoffCoefficient
	if coeff < 1 {
		coeff = 1
	}

	wait := float64(p.InitialInterval) * math.Pow(coeff, float64(attempt-1))
	if p.MaximumInterval > 0 && wait > float64(p.MaximumInterval) {
		return p.MaximumInterval
	}
	return time.Duration(wait)
}

// RetryPolicy converts the policy for the Temporal SDK. Every error kind except
// transient failures is non-retryable.
func (p Policy) RetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        p.InitialInterval,
		BackoffCoefficient:     p.BackoffCoefficient,
		MaximumInterval:        p.MaximumInterval,
		MaximumAttempts:        int32(p.MaximumAttempts),
		NonRetryableErrorTypes: nonRetryableKinds(),
	}
}

// ActivityOptions builds the Temporal activity options for the policy
func (p Policy) ActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: p.PerAttemptTimeout,
		RetryPolicy:         p.RetryPolicy(),
	}
}

// activityPolicies attaches a policy to every registered activity
var activityPolicies = map[string]Policy{
	ActFetchDraft:         Standard,
	ActValidateDraft:      Minimal,
	ActFindEntityByDraft:  Standard,
	ActCreateEntity:       Standard,
	ActUpdateEntity:       Standard,
	ActMarkDraftPublished: Standard,
	ActNotifyUser:         Aggressive,
	ActValidatePayment:    Minimal,
	ActReserveInventory:   Standard,
	ActCharge:             Minimal,
	ActMarkOrderStatus:    Standard,
	ActTriggerFulfillment: Extended,
	ActReleaseInventory:   Extended,
	ActValidateListing:    Standard,
	ActScoreListing:       Minimal,
	ActOpenReviewCase:     Standard,
	ActNotifyReviewers:    Aggressive,
	ActApplyDecision:      Standard,
	ActPublishSearchIndex: Aggressive,
}

// PolicyFor returns the policy attached to an activity, STANDARD when none is
func PolicyFor(activity string) Policy {
	if p, ok := activityPolicies[activity]; ok {
		return p
	}
	return Standard
}

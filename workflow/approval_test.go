package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/TFMV/estateflow/domain"
)

func approvalInput(listingID uint) ApprovalInput {
	return ApprovalInput{ListingKind: domain.DraftTypeProperty, ListingID: listingID, SubmitterID: "u1"}
}

func TestListingApproval_ReviewerDecides(t *testing.T) {
	f := newFixture(t)
	e := f.putListing(t, "u1", 42)

	var out ApprovalOutput
	err := f.durable(t, WorkflowListingApproval, approvalInput(e.ID), &out, func(env *testsuite.TestWorkflowEnvironment) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalReviewDecision, ReviewDecision{Decision: "approve", Comment: "looks good", ReviewerID: "rev-7"})
		}, 3*time.Hour)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionApproved, out.Decision)
	assert.False(t, out.Automatic)
	assert.Equal(t, "looks good", out.Comment)

	c, err := f.approvals.Get(context.Background(), out.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "rev-7", c.ReviewerID)
	assert.NotNil(t, c.DecidedAt)

	listing, err := f.entities[domain.DraftTypeProperty].Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationVerified, listing.VerificationStatus)
	assert.Equal(t, domain.PublishPublished, listing.PublishStatus)
	assert.True(t, f.index.Has(EntityKey(domain.DraftTypeProperty, e.ID)))

	assert.Len(t, f.notifier.To("reviewer-1"), 1)
	assert.Len(t, f.notifier.To("reviewer-2"), 1)
	sent := f.notifier.To("u1")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Subject, "is live")
}

func TestListingApproval_InvalidDecisionIsIgnored(t *testing.T) {
	f := newFixture(t)
	e := f.putListing(t, "u1", 42)

	var out ApprovalOutput
	err := f.durable(t, WorkflowListingApproval, approvalInput(e.ID), &out, func(env *testsuite.TestWorkflowEnvironment) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalReviewDecision, ReviewDecision{Decision: "maybe", ReviewerID: "rev-1"})
		}, time.Hour)
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalReviewDecision, ReviewDecision{Decision: "REJECTED", Comment: "blurry photos", ReviewerID: "rev-2"})
		}, 2*time.Hour)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionRejected, out.Decision)
	assert.Equal(t, "blurry photos", out.Comment)
	assert.False(t, out.Automatic)
	assert.False(t, f.index.Has(EntityKey(domain.DraftTypeProperty, e.ID)))

	listing, err := f.entities[domain.DraftTypeProperty].Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PublishRejected, listing.PublishStatus)
}

func TestListingApproval_DeadlineUsesThreshold(t *testing.T) {
	cases := []struct {
		score    float64
		expected domain.Decision
	}{
		{score: 0.81, expected: domain.DecisionApproved},
		{score: 0.80, expected: domain.DecisionApproved},
		{score: 0.79, expected: domain.DecisionRejected},
	}

	for _, tc := range cases {
		t.Run(string(tc.expected), func(t *testing.T) {
			f := newFixture(t, func(d *Dependencies) { d.Scorer = fixedScorer{score: tc.score} })
			e := f.putListing(t, "u1", 42)

			var out ApprovalOutput
			require.NoError(t, f.durable(t, WorkflowListingApproval, approvalInput(e.ID), &out))
			assert.Equal(t, tc.expected, out.Decision)
			assert.True(t, out.Automatic)
			assert.Equal(t, tc.score, out.QualityScore)

			c, err := f.approvals.Get(context.Background(), out.CaseID)
			require.NoError(t, err)
			assert.True(t, c.Automatic)
			assert.Empty(t, c.ReviewerID)
		})
	}
}

func TestListingApproval_CustomThreshold(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = fixedScorer{score: 0.6} })
	e := f.putListing(t, "u1", 42)

	in := approvalInput(e.ID)
	in.AutoApprovalThreshold = 0.5
	var out ApprovalOutput
	require.NoError(t, f.durable(t, WorkflowListingApproval, in, &out))
	assert.Equal(t, domain.DecisionApproved, out.Decision)

	in.AutoApprovalThreshold = 1.5
	err := f.durable(t, WorkflowListingApproval, in, nil)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestListingApproval_DirectDeadline(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = fixedScorer{score: 0.9} })
	e := f.putListing(t, "u1", 42)
	exec := f.direct(t)

	in := approvalInput(e.ID)
	in.ReviewDeadline = 20 * time.Millisecond
	var out ApprovalOutput
	run, err := f.runDirect(t, exec, "review-deadline", WorkflowListingApproval, in, &out)
	require.NoError(t, err)
	assert.True(t, out.Automatic)
	assert.Equal(t, domain.DecisionApproved, out.Decision)
	assert.Equal(t, "review-review-deadline", out.CaseID)
	assert.Equal(t, StepDone, run.Log.Step())
}

func TestListingApproval_DirectSignal(t *testing.T) {
	f := newFixture(t)
	e := f.putListing(t, "u1", 42)
	exec := f.direct(t)

	run, err := exec.Start(context.Background(), "review-signal", WorkflowListingApproval, approvalInput(e.ID))
	require.NoError(t, err)
	assert.False(t, run.Completed())

	require.Eventually(t, func() bool { return run.Log.Step() == StepAwaitingReview }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, exec.Signal(run.ID, SignalReviewDecision, ReviewDecision{Decision: "approved", ReviewerID: "rev-1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out ApprovalOutput
	require.NoError(t, exec.Result(ctx, run.ID, &out))
	assert.Equal(t, domain.DecisionApproved, out.Decision)
	assert.False(t, out.Automatic)

	assert.ErrorIs(t, exec.Signal(run.ID, SignalReviewDecision, ReviewDecision{Decision: "rejected"}), ErrRunCompleted)
	assert.ErrorIs(t, exec.Signal("nope", SignalReviewDecision, ReviewDecision{}), ErrRunNotFound)
}

func TestListingApproval_SignalPendingAtDeadlineWins(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = fixedScorer{score: 0.1} })
	e := f.putListing(t, "u1", 42)
	exec := f.direct(t)

	// Signals land while reviewers are being notified, before the wait starts
	f.notifier.onSend = func(userID string) {
		if userID != "reviewer-1" {
			return
		}
		_ = exec.Signal("review-tie", SignalReviewDecision, ReviewDecision{Decision: "bogus"})
		_ = exec.Signal("review-tie", SignalReviewDecision, ReviewDecision{Decision: "approve", Comment: "checked on site", ReviewerID: "rev-9"})
	}

	in := approvalInput(e.ID)
	in.ReviewDeadline = time.Nanosecond
	var out ApprovalOutput
	_, err := f.runDirect(t, exec, "review-tie", WorkflowListingApproval, in, &out)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, out.Decision)
	assert.False(t, out.Automatic)
	assert.Equal(t, "checked on site", out.Comment)
}

func TestListingApproval_SignalAtDeadlineWinsDurable(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = fixedScorer{score: 0.1} })
	e := f.putListing(t, "u1", 42)

	var out ApprovalOutput
	err := f.durable(t, WorkflowListingApproval, approvalInput(e.ID), &out, func(env *testsuite.TestWorkflowEnvironment) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalReviewDecision, ReviewDecision{Decision: "APPROVED", Comment: "checked on site", ReviewerID: "rev-9"})
		}, DefaultReviewDeadline)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionApproved, out.Decision)
	assert.False(t, out.Automatic)
	assert.Equal(t, "checked on site", out.Comment)

	c, err := f.approvals.Get(context.Background(), out.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "rev-9", c.ReviewerID)
	assert.False(t, c.Automatic)
}

func TestListingApproval_SearchIndexFailureIsTolerated(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = fixedScorer{score: 0.95} })
	f.index.err = assert.AnError
	e := f.putListing(t, "u1", 42)

	in := approvalInput(e.ID)
	in.ReviewDeadline = time.Millisecond
	var out ApprovalOutput
	run, err := f.runDirect(t, f.direct(t), "", WorkflowListingApproval, in, &out)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, out.Decision)
	assert.Equal(t, Aggressive.MaximumAttempts, run.Log.AttemptsOf(ActPublishSearchIndex))
}

func TestListingApproval_UnknownListing(t *testing.T) {
	f := newFixture(t)
	err := f.durable(t, WorkflowListingApproval, approvalInput(404), nil)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestListingApproval_PartialReviewerFailure(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = fixedScorer{score: 0.9} })
	f.notifier.fail = map[string]error{"reviewer-2": assert.AnError}
	e := f.putListing(t, "u1", 42)

	in := approvalInput(e.ID)
	in.ReviewDeadline = time.Millisecond
	run, err := f.runDirect(t, f.direct(t), "", WorkflowListingApproval, in, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Log.AttemptsOf(ActNotifyReviewers))
	assert.Len(t, f.notifier.To("reviewer-1"), 1)
}

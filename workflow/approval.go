package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/TFMV/estateflow/domain"
)

// Review defaults
const (
	DefaultReviewDeadline        = 48 * time.Hour
	DefaultAutoApprovalThreshold = 0.8
)

// Approval steps
const (
	StepValidatingListing  = "VALIDATING_LISTING"
	StepScoring            = "SCORING"
	StepOpeningCase        = "OPENING_CASE"
	StepNotifyingReviewers = "NOTIFYING_REVIEWERS"
	StepAwaitingReview     = "AWAITING_REVIEW"
	StepApplyingDecision   = "APPLYING_DECISION"
	StepIndexing           = "INDEXING"
)

// ApprovalInput starts a listing review
type ApprovalInput struct {
	ListingKind           domain.DraftType `json:"listingKind"`
	ListingID             uint             `json:"listingId"`
	SubmitterID           string           `json:"submitterId"`
	ReviewDeadline        time.Duration    `json:"reviewDeadline,omitempty"`
	AutoApprovalThreshold float64          `json:"autoApprovalThreshold,omitempty"`
}

// ReviewDecision is the payload of the review-decision signal
type ReviewDecision struct {
	Decision   string `json:"decision"`
	Comment    string `json:"comment,omitempty"`
	ReviewerID string `json:"reviewerId,omitempty"`
}

// ApprovalOutput is the result of a listing review
type ApprovalOutput struct {
	CaseID       string          `json:"caseId"`
	Decision     domain.Decision `json:"decision"`
	Comment      string          `json:"comment,omitempty"`
	Automatic    bool            `json:"automatic"`
	QualityScore float64         `json:"qualityScore"`
}

// ListingApproval opens a review case and waits for a reviewer. Without a
// decision by the deadline the quality score decides.
func ListingApproval(rt Runtime, in ApprovalInput) (ApprovalOutput, error) {
	logger := rt.Logger()
	if in.ReviewDeadline <= 0 {
		in.ReviewDeadline = DefaultReviewDeadline
	}
	if in.AutoApprovalThreshold == 0 {
		in.AutoApprovalThreshold = DefaultAutoApprovalThreshold
	}
	if in.AutoApprovalThreshold < 0 || in.AutoApprovalThreshold > 1 {
		return ApprovalOutput{}, ValidationFailed("", []string{"autoApprovalThreshold must be between 0 and 1"})
	}
	logger.Info("Starting listing approval", "kind", in.ListingKind, "listing_id", in.ListingID, "mode", rt.Mode())

	listingRef := ListingRef{Kind: in.ListingKind, ListingID: in.ListingID}

	rt.SetStep(StepValidatingListing)
	var listing domain.Entity
	if err := call(rt, ActValidateListing, listingRef, &listing); err != nil {
		rt.SetStep(StepFailed)
		return ApprovalOutput{}, err
	}

	rt.SetStep(StepScoring)
	var score ScoreResult
	if err := call(rt, ActScoreListing, listing, &score); err != nil {
		rt.SetStep(StepFailed)
		return ApprovalOutput{}, err
	}

	caseID := "review-" + rt.RunID()
	deadline := rt.Now().Add(in.ReviewDeadline)

	rt.SetStep(StepOpeningCase)
	open := OpenCaseInput{
		CaseID:      caseID,
		Kind:        in.ListingKind,
		ListingID:   in.ListingID,
		SubmitterID: in.SubmitterID,
		Score:       score.Score,
		Deadline:    deadline,
	}
	if err := call(rt, ActOpenReviewCase, open, nil); err != nil {
		rt.SetStep(StepFailed)
		return ApprovalOutput{}, err
	}

	rt.SetStep(StepNotifyingReviewers)
	notice := ReviewerNotice{CaseID: caseID, Kind: in.ListingKind, ListingID: in.ListingID, DisplayName: listing.DisplayName, Deadline: deadline}
	if err := call(rt, ActNotifyReviewers, notice, nil); err != nil {
		logger.Warn("Failed to notify reviewers", "case_id", caseID, "error", err)
	}

	rt.SetStep(StepAwaitingReview)
	decision, err := awaitReview(rt, deadline)
	if err != nil {
		rt.SetStep(StepFailed)
		return ApprovalOutput{}, err
	}
	automatic := decision == nil
	if automatic {
		decision = autoDecision(score.Score, in.AutoApprovalThreshold)
		logger.Info("Review deadline passed, deciding automatically", "case_id", caseID, "score", score.Score, "decision", decision.Decision)
	}
	parsed, _ := domain.ParseDecision(decision.Decision)

	rt.SetStep(StepApplyingDecision)
	var decided domain.ApprovalCase
	apply := DecisionInput{
		CaseID:     caseID,
		Kind:       in.ListingKind,
		ListingID:  in.ListingID,
		Decision:   parsed,
		Comment:    decision.Comment,
		ReviewerID: decision.ReviewerID,
		Automatic:  automatic,
	}
	if err := call(rt, ActApplyDecision, apply, &decided); err != nil {
		rt.SetStep(StepFailed)
		return ApprovalOutput{}, err
	}

	out := ApprovalOutput{
		CaseID:       caseID,
		Decision:     decided.Decision,
		Comment:      decided.DecisionComment,
		Automatic:    decided.Automatic,
		QualityScore: score.Score,
	}

	kind := strings.ToLower(string(in.ListingKind))
	var subject, body string
	if out.Decision == domain.DecisionApproved {
		rt.SetStep(StepIndexing)
		if err := call(rt, ActPublishSearchIndex, listingRef, nil); err != nil {
			logger.Warn("Failed to publish listing to search index", "listing_id", in.ListingID, "error", err)
		}
		subject = fmt.Sprintf("Your %s listing is live", kind)
		body = fmt.Sprintf("%q was approved.", listing.DisplayName)
	} else {
		subject = fmt.Sprintf("Your %s listing was not approved", kind)
		body = fmt.Sprintf("%q was rejected: %s", listing.DisplayName, out.Comment)
	}

	rt.SetStep(StepNotifying)
	if err := call(rt, ActNotifyUser, Notification{UserID: in.SubmitterID, Subject: subject, Body: body}, nil); err != nil {
		logger.Warn("Failed to notify submitter", "submitter_id", in.SubmitterID, "error", err)
	}

	rt.SetStep(StepDone)
	logger.Info("Listing approval completed", "case_id", caseID, "decision", out.Decision, "automatic", out.Automatic)
	return out, nil
}

// awaitReview waits for a valid review decision until the deadline. Signals with
// an unknown decision are dropped and waiting resumes for the remaining time.
// A nil result means the deadline passed.
func awaitReview(rt Runtime, deadline time.Time) (*ReviewDecision, error) {
	for {
		var sig ReviewDecision
		got, err := rt.AwaitSignal(SignalReviewDecision, deadline.Sub(rt.Now()), &sig)
		if err != nil {
			return nil, err
		}
		if !got {
			return nil, nil
		}

		d, perr := domain.ParseDecision(sig.Decision)
		if perr != nil {
			rt.Logger().Warn("Ignoring review signal", "decision", sig.Decision, "reviewer_id", sig.ReviewerID)
			continue
		}
		sig.Decision = string(d)
		return &sig, nil
	}
}

func autoDecision(score, threshold float64) *ReviewDecision {
	if score >= threshold {
		return &ReviewDecision{
			Decision: string(domain.DecisionApproved),
			Comment:  fmt.Sprintf("Automatically approved: quality score %.2f meets threshold %.2f", score, threshold),
		}
	}
	return &ReviewDecision{
		Decision: string(domain.DecisionRejected),
		Comment:  fmt.Sprintf("Automatically rejected: quality score %.2f is below threshold %.2f", score, threshold),
	}
}

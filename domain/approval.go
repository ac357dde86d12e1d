package domain

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the outcome of a listing review
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ParseDecision accepts approve/approved/reject/rejected in any casing
func ParseDecision(s string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APPROVE", "APPROVED":
		return DecisionApproved, nil
	case "REJECT", "REJECTED":
		return DecisionRejected, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// Terminal reports whether the decision closes a case
func (d Decision) Terminal() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// ApprovalCase tracks the human review of one listing
type ApprovalCase struct {
	ID                    string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ListingKind           DraftType  `gorm:"type:varchar(16);not null" json:"listingKind"`
	ListingID             uint       `gorm:"index;not null" json:"listingId"`
	SubmitterID           string     `gorm:"not null" json:"submitterId"`
	Decision              Decision   `gorm:"type:varchar(16);not null;default:PENDING" json:"decision"`
	DecisionComment       string     `json:"decisionComment,omitempty"`
	ReviewerID            string     `json:"reviewerId,omitempty"`
	Automatic             bool       `json:"automatic"`
	AutomatedQualityScore float64    `gorm:"not null" json:"automatedQualityScore"`
	ReviewDeadline        time.Time  `json:"reviewDeadline"`
	DecidedAt             *time.Time `json:"decidedAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func (ApprovalCase) TableName() string { return "approval_cases" }

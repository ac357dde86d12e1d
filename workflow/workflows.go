package workflow

import (
	"fmt"

	"github.com/TFMV/estateflow/domain"
)

// Workflow names
const (
	WorkflowPublishProperty  = "PublishProperty"
	WorkflowPublishPg        = "PublishPg"
	WorkflowPublishProject   = "PublishProject"
	WorkflowPublishDeveloper = "PublishDeveloper"
	WorkflowPaymentSaga      = "PaymentSaga"
	WorkflowListingApproval  = "ListingApproval"
)

// SignalReviewDecision carries a reviewer's decision into ListingApproval
const SignalReviewDecision = "review-decision"

var publishWorkflows = map[domain.DraftType]string{
	domain.DraftTypeProperty:  WorkflowPublishProperty,
	domain.DraftTypePg:        WorkflowPublishPg,
	domain.DraftTypeProject:   WorkflowPublishProject,
	domain.DraftTypeDeveloper: WorkflowPublishDeveloper,
}

// PublishWorkflowName returns the publishing workflow of a draft kind
func PublishWorkflowName(kind domain.DraftType) (string, error) {
	name, ok := publishWorkflows[kind]
	if !ok {
		return "", fmt.Errorf("no publishing workflow for kind %q", kind)
	}
	return name, nil
}

// RegisterWorkflows defines every workflow on the registry
func RegisterWorkflows(r *Registry) {
	for _, kind := range domain.DraftTypes {
		DefineWorkflow(r, publishWorkflows[kind], false, PublishDraft(kind))
	}
	DefineWorkflow(r, WorkflowPaymentSaga, false, PaymentSaga)
	DefineWorkflow(r, WorkflowListingApproval, true, ListingApproval)
}

// PublishResponse is what a publish caller receives
type PublishResponse struct {
	Success bool           `json:"success"`
	Errors  []string       `json:"errors,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    *PublishOutput `json:"data,omitempty"`
}

// NewPublishResponse maps a publishing outcome to the caller-facing shape:
// field errors for validation failures, a message for any other failure
func NewPublishResponse(out *PublishOutput, err error) PublishResponse {
	if err == nil {
		return PublishResponse{Success: true, Data: out}
	}
	if e, ok := AsError(err); ok {
		if e.Kind == KindValidation && len(e.Fields) > 0 {
			return PublishResponse{Success: false, Errors: e.Fields}
		}
		return PublishResponse{Success: false, Message: e.Message}
	}
	return PublishResponse{Success: false, Message: err.Error()}
}

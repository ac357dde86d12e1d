package workflow

import (
	"fmt"
	"strings"

	"github.com/TFMV/estateflow/domain"
)

// Publishing steps
const (
	StepFetching         = "FETCHING"
	StepValidating       = "VALIDATING"
	StepCreating         = "CREATING"
	StepUpdating         = "UPDATING"
	StepMarkingPublished = "MARKING_PUBLISHED"
	StepNotifying        = "NOTIFYING"
	StepDone             = "DONE"
	StepFailed           = "FAILED"
)

// PublishInput names the draft to publish
type PublishInput struct {
	DraftID uint   `json:"draftId"`
	OwnerID string `json:"ownerId"`
}

// PublishDraft returns the publishing state machine for one kind. The same
// definition backs all four publish workflows.
func PublishDraft(kind domain.DraftType) func(Runtime, PublishInput) (PublishOutput, error) {
	return func(rt Runtime, in PublishInput) (PublishOutput, error) {
		logger := rt.Logger()
		logger.Info("Starting publish workflow", "kind", kind, "draft_id", in.DraftID, "mode", rt.Mode())

		ref := DraftRef{DraftID: in.DraftID, OwnerID: in.OwnerID, Kind: kind}
		fail := func(step string, err error) (PublishOutput, error) {
			rt.SetStep(StepFailed)
			logger.Warn("Publish failed", "kind", kind, "draft_id", in.DraftID, "step", step, "error", err)
			return PublishOutput{}, err
		}

		rt.SetStep(StepFetching)
		var draft DraftSnapshot
		if err := call(rt, ActFetchDraft, ref, &draft); err != nil {
			return fail(StepFetching, err)
		}

		rt.SetStep(StepValidating)
		var payload domain.Payload
		if err := call(rt, ActValidateDraft, ValidateInput{Kind: kind, Payload: draft.Payload}, &payload); err != nil {
			return fail(StepValidating, err)
		}

		// Look up right before mutating so a concurrent publish is seen as late as possible
		var existing EntityRef
		if err := call(rt, ActFindEntityByDraft, EntityLookup{Kind: kind, DraftID: in.DraftID}, &existing); err != nil {
			return fail(StepValidating, err)
		}

		persist := PersistInput{Kind: kind, DraftID: in.DraftID, OwnerID: in.OwnerID, Payload: payload}
		var out PublishOutput
		if existing.Found {
			rt.SetStep(StepUpdating)
			persist.EntityID = existing.EntityID
			if err := call(rt, ActUpdateEntity, persist, &out); err != nil {
				return fail(StepUpdating, err)
			}
		} else {
			rt.SetStep(StepCreating)
			if err := call(rt, ActCreateEntity, persist, &out); err != nil {
				return fail(StepCreating, err)
			}
		}

		rt.SetStep(StepMarkingPublished)
		if err := call(rt, ActMarkDraftPublished, ref, nil); err != nil {
			// The entity is live; the draft stays DRAFT until the next publish
			logger.Error("Failed to mark draft published", "draft_id", in.DraftID, "entity_id", out.EntityID, "error", err)
		}

		rt.SetStep(StepNotifying)
		verb := "published"
		if out.IsUpdate {
			verb = "updated"
		}
		notice := Notification{
			UserID:  in.OwnerID,
			Subject: fmt.Sprintf("Your %s listing was %s", strings.ToLower(string(kind)), verb),
			Body:    fmt.Sprintf("%q was %s and is pending review.", out.DisplayName, verb),
		}
		if err := call(rt, ActNotifyUser, notice, nil); err != nil {
			logger.Warn("Failed to notify owner", "owner_id", in.OwnerID, "error", err)
		}

		rt.SetStep(StepDone)
		logger.Info("Publish workflow completed", "kind", kind, "entity_id", out.EntityID, "is_update", out.IsUpdate)
		return out, nil
	}
}

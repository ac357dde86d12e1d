package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/metrics"
	"github.com/TFMV/estateflow/storage"
)

// Activity names
const (
	ActFetchDraft         = "FetchDraft"
	ActValidateDraft      = "ValidateDraft"
	ActFindEntityByDraft  = "FindEntityByDraft"
	ActCreateEntity       = "CreateEntity"
	ActUpdateEntity       = "UpdateEntity"
	ActMarkDraftPublished = "MarkDraftPublished"
	ActNotifyUser         = "NotifyUser"

	ActValidatePayment    = "ValidatePayment"
	ActReserveInventory   = "ReserveInventory"
	ActCharge             = "Charge"
	ActMarkOrderStatus    = "MarkOrderStatus"
	ActTriggerFulfillment = "TriggerFulfillment"
	ActReleaseInventory   = "ReleaseInventory"

	ActValidateListing    = "ValidateListing"
	ActScoreListing       = "ScoreListing"
	ActOpenReviewCase     = "OpenReviewCase"
	ActNotifyReviewers    = "NotifyReviewers"
	ActApplyDecision      = "ApplyDecision"
	ActPublishSearchIndex = "PublishToSearchIndex"
)

// None is the result of activities that only have side effects
type None struct{}

// DraftRef identifies a draft owned by a user
type DraftRef struct {
	DraftID uint             `json:"draftId"`
	OwnerID string           `json:"ownerId"`
	Kind    domain.DraftType `json:"kind"`
}

// DraftSnapshot is the fetched draft
type DraftSnapshot struct {
	ID      uint               `json:"id"`
	OwnerID string             `json:"ownerId"`
	Kind    domain.DraftType   `json:"kind"`
	Payload json.RawMessage    `json:"payload"`
	Status  domain.DraftStatus `json:"status"`
}

// ValidateInput carries the raw draft JSON to validation
type ValidateInput struct {
	Kind    domain.DraftType `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
}

// EntityLookup finds the entity created from a draft
type EntityLookup struct {
	Kind    domain.DraftType `json:"kind"`
	DraftID uint             `json:"draftId"`
}

// EntityRef is the result of an entity lookup
type EntityRef struct {
	Found    bool   `json:"found"`
	EntityID uint   `json:"entityId,omitempty"`
	OwnerID  string `json:"ownerId,omitempty"`
}

// PersistInput creates or updates an entity from a validated payload
type PersistInput struct {
	Kind     domain.DraftType `json:"kind"`
	DraftID  uint             `json:"draftId"`
	OwnerID  string           `json:"ownerId"`
	EntityID uint             `json:"entityId,omitempty"`
	Payload  domain.Payload   `json:"payload"`
}

// PublishOutput is the result of a publishing run
type PublishOutput struct {
	EntityID    uint   `json:"entityId"`
	DisplayName string `json:"displayName"`
	IsUpdate    bool   `json:"isUpdate"`
}

// Notification is a message to one user
type Notification struct {
	UserID  string `json:"userId"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PaymentInput starts a payment saga
type PaymentInput struct {
	OrderID    string            `json:"orderId"`
	UserID     string            `json:"userId"`
	Amount     int64             `json:"amount"` // minor units
	Currency   string            `json:"currency"`
	Method     string            `json:"method"`
	CardNumber string            `json:"cardNumber,omitempty"`
	Items      []domain.LineItem `json:"items"`
}

// ReserveInput holds inventory for an order
type ReserveInput struct {
	OrderID string            `json:"orderId"`
	Items   []domain.LineItem `json:"items"`
}

// ReserveResult reports how many SKUs are held
type ReserveResult struct {
	Reserved int `json:"reserved"`
}

// OrderStatusInput sets the status of an order
type OrderStatusInput struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
}

// OrderRef identifies an order
type OrderRef struct {
	OrderID string `json:"orderId"`
}

// ReleaseResult reports whether a release returned stock
type ReleaseResult struct {
	Released bool `json:"released"`
}

// ListingRef identifies a published entity
type ListingRef struct {
	Kind      domain.DraftType `json:"kind"`
	ListingID uint             `json:"listingId"`
}

// ScoreResult is the automated quality assessment of a listing
type ScoreResult struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// OpenCaseInput opens a review case
type OpenCaseInput struct {
	CaseID      string           `json:"caseId"`
	Kind        domain.DraftType `json:"kind"`
	ListingID   uint             `json:"listingId"`
	SubmitterID string           `json:"submitterId"`
	Score       float64          `json:"score"`
	Deadline    time.Time        `json:"deadline"`
}

// ReviewerNotice tells reviewers a case is waiting
type ReviewerNotice struct {
	CaseID      string           `json:"caseId"`
	Kind        domain.DraftType `json:"kind"`
	ListingID   uint             `json:"listingId"`
	DisplayName string           `json:"displayName"`
	Deadline    time.Time        `json:"deadline"`
}

// DecisionInput records the outcome of a review
type DecisionInput struct {
	CaseID     string           `json:"caseId"`
	Kind       domain.DraftType `json:"kind"`
	ListingID  uint             `json:"listingId"`
	Decision   domain.Decision  `json:"decision"`
	Comment    string           `json:"comment,omitempty"`
	ReviewerID string           `json:"reviewerId,omitempty"`
	Automatic  bool             `json:"automatic"`
}

// Dependencies are the collaborators activities call. Optional ones may be nil.
type Dependencies struct {
	Drafts      storage.DraftStore
	Entities    storage.EntityStores
	Orders      storage.OrderStore
	Inventory   storage.Inventory
	Approvals   storage.ApprovalStore
	Ledger      storage.Ledger
	Notifier    Notifier
	Gateway     PaymentGateway
	SearchIndex SearchIndex
	Fulfillment Fulfillment
	Scorer      QualityScorer
	Reviewers   []string
	Metrics     *metrics.Metrics
}

// Activities implements every side-effecting step of the workflows
type Activities struct {
	deps Dependencies
}

// NewActivities creates the activity set
func NewActivities(deps Dependencies) *Activities {
	return &Activities{deps: deps}
}

// Register adds every activity to the registry
func (a *Activities) Register(r *Registry) {
	RegisterActivity(r, ActFetchDraft, a.FetchDraft)
	RegisterActivity(r, ActValidateDraft, a.ValidateDraft)
	RegisterActivity(r, ActFindEntityByDraft, a.FindEntityByDraft)
	RegisterActivity(r, ActCreateEntity, a.CreateEntity)
	RegisterActivity(r, ActUpdateEntity, a.UpdateEntity)
	RegisterActivity(r, ActMarkDraftPublished, a.MarkDraftPublished)
	RegisterActivity(r, ActNotifyUser, a.NotifyUser)

	RegisterActivity(r, ActValidatePayment, a.ValidatePayment)
	RegisterActivity(r, ActReserveInventory, a.ReserveInventory)
	RegisterActivity(r, ActCharge, a.Charge)
	RegisterActivity(r, ActMarkOrderStatus, a.MarkOrderStatus)
	RegisterActivity(r, ActTriggerFulfillment, a.TriggerFulfillment)
	RegisterActivity(r, ActReleaseInventory, a.ReleaseInventory)

	RegisterActivity(r, ActValidateListing, a.ValidateListing)
	RegisterActivity(r, ActScoreListing, a.ScoreListing)
	RegisterActivity(r, ActOpenReviewCase, a.OpenReviewCase)
	RegisterActivity(r, ActNotifyReviewers, a.NotifyReviewers)
	RegisterActivity(r, ActApplyDecision, a.ApplyDecision)
	RegisterActivity(r, ActPublishSearchIndex, a.PublishToSearchIndex)
}

func (a *Activities) entityStore(activity string, kind domain.DraftType) (storage.EntityStore, error) {
	store, ok := a.deps.Entities[kind]
	if !ok || store == nil {
		return nil, ValidationFailed(activity, []string{fmt.Sprintf("kind %q is not publishable", kind)})
	}
	return store, nil
}

// FetchDraft loads the draft, hiding drafts of other owners or kinds
func (a *Activities) FetchDraft(ctx context.Context, ref DraftRef) (DraftSnapshot, error) {
	logger := activityLogger(ctx)
	logger.Info("Fetching draft", "draft_id", ref.DraftID, "kind", ref.Kind)

	d, err := a.deps.Drafts.FindDraft(ctx, ref.DraftID, ref.OwnerID, ref.Kind)
	if errors.Is(err, storage.ErrNotFound) {
		return DraftSnapshot{}, NotFound(ActFetchDraft, "draft %d not found", ref.DraftID)
	}
	if err != nil {
		return DraftSnapshot{}, err
	}
	return DraftSnapshot{ID: d.ID, OwnerID: d.OwnerID, Kind: d.Type, Payload: json.RawMessage(d.Payload), Status: d.Status}, nil
}

// ValidateDraft decodes the draft into its typed payload and checks it
func (a *Activities) ValidateDraft(ctx context.Context, in ValidateInput) (domain.Payload, error) {
	p, err := domain.DecodePayload(in.Kind, in.Payload)
	if err != nil {
		return domain.Payload{}, ValidationFailed(ActValidateDraft, []string{"payload " + err.Error()})
	}
	if errs := p.Validate(); len(errs) > 0 {
		activityLogger(ctx).Info("Draft failed validation", "kind", in.Kind, "errors", len(errs))
		return domain.Payload{}, ValidationFailed(ActValidateDraft, errs)
	}
	return p, nil
}

// FindEntityByDraft looks for an entity already created from the draft
func (a *Activities) FindEntityByDraft(ctx context.Context, in EntityLookup) (EntityRef, error) {
	store, err := a.entityStore(ActFindEntityByDraft, in.Kind)
	if err != nil {
		return EntityRef{}, err
	}
	e, err := store.FindByDraftID(ctx, in.DraftID)
	if err != nil {
		return EntityRef{}, err
	}
	if e == nil {
		return EntityRef{}, nil
	}
	return EntityRef{Found: true, EntityID: e.ID, OwnerID: e.OwnerID}, nil
}

// CreateEntity persists a new entity. Losing a race against another publish of
// the same draft turns the create into an update.
func (a *Activities) CreateEntity(ctx context.Context, in PersistInput) (PublishOutput, error) {
	logger := activityLogger(ctx)
	store, err := a.entityStore(ActCreateEntity, in.Kind)
	if err != nil {
		return PublishOutput{}, err
	}

	e, err := store.Create(ctx, in.OwnerID, in.DraftID, in.Payload)
	if errors.Is(err, storage.ErrDuplicateDraft) {
		logger.Info("Entity already exists for draft, updating instead", "draft_id", in.DraftID)
		existing, ferr := store.FindByDraftID(ctx, in.DraftID)
		if ferr != nil {
			return PublishOutput{}, ferr
		}
		if existing == nil {
			return PublishOutput{}, fmt.Errorf("entity for draft %d vanished after duplicate insert", in.DraftID)
		}
		in.EntityID = existing.ID
		return a.UpdateEntity(ctx, in)
	}
	if err != nil {
		return PublishOutput{}, err
	}

	logger.Info("Entity created", "kind", in.Kind, "entity_id", e.ID, "draft_id", in.DraftID)
	return PublishOutput{EntityID: e.ID, DisplayName: e.DisplayName}, nil
}

// UpdateEntity reapplies the payload to an existing entity
func (a *Activities) UpdateEntity(ctx context.Context, in PersistInput) (PublishOutput, error) {
	store, err := a.entityStore(ActUpdateEntity, in.Kind)
	if err != nil {
		return PublishOutput{}, err
	}

	e, err := store.Update(ctx, in.EntityID, in.OwnerID, in.Payload)
	if errors.Is(err, storage.ErrNotFound) {
		return PublishOutput{}, NotFound(ActUpdateEntity, "%s %d not found for owner", strings.ToLower(string(in.Kind)), in.EntityID)
	}
	if err != nil {
		return PublishOutput{}, err
	}

	activityLogger(ctx).Info("Entity updated", "kind", in.Kind, "entity_id", e.ID)
	return PublishOutput{EntityID: e.ID, DisplayName: e.DisplayName, IsUpdate: true}, nil
}

// MarkDraftPublished flips the draft to PUBLISHED
func (a *Activities) MarkDraftPublished(ctx context.Context, ref DraftRef) (None, error) {
	err := a.deps.Drafts.MarkPublished(ctx, ref.DraftID)
	if errors.Is(err, storage.ErrNotFound) {
		return None{}, NotFound(ActMarkDraftPublished, "draft %d not found", ref.DraftID)
	}
	return None{}, err
}

// NotifyUser sends one notification
func (a *Activities) NotifyUser(ctx context.Context, n Notification) (None, error) {
	if a.deps.Notifier == nil {
		activityLogger(ctx).Debug("No notifier configured, skipping", "user_id", n.UserID)
		return None{}, nil
	}
	return None{}, a.deps.Notifier.NotifyUser(ctx, n.UserID, n.Subject, n.Body)
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidatePayment checks the request and makes sure a matching PENDING order exists
func (a *Activities) ValidatePayment(ctx context.Context, in PaymentInput) (domain.Order, error) {
	var problems []string
	if strings.TrimSpace(in.OrderID) == "" {
		problems = append(problems, "orderId is required")
	}
	if strings.TrimSpace(in.UserID) == "" {
		problems = append(problems, "userId is required")
	}
	if in.Amount <= 0 {
		problems = append(problems, "amount must be positive")
	}
	if !currencyPattern.MatchString(in.Currency) {
		problems = append(problems, "currency must be a 3-letter ISO code")
	}
	switch in.Method {
	case domain.MethodCard:
		if !validCardNumber(in.CardNumber) {
			problems = append(problems, "cardNumber is invalid")
		}
	case domain.MethodUPI, domain.MethodWallet:
	default:
		problems = append(problems, fmt.Sprintf("method must be one of %s, %s, %s", domain.MethodCard, domain.MethodUPI, domain.MethodWallet))
	}
	if len(in.Items) == 0 {
		problems = append(problems, "items must not be empty")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.SKU) == "" || it.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d] needs a sku and a positive quantity", i))
		}
	}
	if len(problems) > 0 {
		return domain.Order{}, ValidationFailed(ActValidatePayment, problems)
	}

	order, err := a.deps.Orders.Get(ctx, in.OrderID)
	if errors.Is(err, storage.ErrNotFound) {
		order = &domain.Order{
			ID:       in.OrderID,
			UserID:   in.UserID,
			Amount:   in.Amount,
			Currency: in.Currency,
			Method:   in.Method,
			Status:   domain.OrderPending,
		}
		if err := a.deps.Orders.Create(ctx, order); err != nil {
			return domain.Order{}, err
		}
		return *order, nil
	}
	if err != nil {
		return domain.Order{}, err
	}

	switch {
	case order.UserID != in.UserID:
		return domain.Order{}, NotFound(ActValidatePayment, "order %s not found", in.OrderID)
	case order.Amount != in.Amount || order.Currency != in.Currency:
		return domain.Order{}, ValidationFailed(ActValidatePayment, []string{"amount does not match the order"})
	case order.Status == domain.OrderPaid:
		return domain.Order{}, ValidationFailed(ActValidatePayment, []string{"order is already paid"})
	}
	return *order, nil
}

// ReserveInventory holds the order's items; repeating it for the same order is a no-op
func (a *Activities) ReserveInventory(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	held, err := a.deps.Inventory.Reserve(ctx, in.OrderID, in.Items)
	if errors.Is(err, storage.ErrOutOfStock) {
		return ReserveResult{}, ValidationFailed(ActReserveInventory, []string{err.Error()})
	}
	if err != nil {
		return ReserveResult{}, err
	}
	activityLogger(ctx).Info("Inventory reserved", "order_id", in.OrderID, "skus", len(held))
	return ReserveResult{Reserved: len(held)}, nil
}

// Charge captures the payment through the gateway, or debits the wallet
func (a *Activities) Charge(ctx context.Context, in PaymentInput) (ChargeResult, error) {
	logger := activityLogger(ctx)

	if in.Method == domain.MethodWallet {
		entry, err := a.deps.Ledger.Debit(ctx, in.UserID, in.Amount, "order "+in.OrderID)
		if errors.Is(err, storage.ErrInsufficientBalance) {
			return ChargeResult{}, Compensatable(ActCharge, "insufficient wallet balance", err)
		}
		if err != nil {
			return ChargeResult{}, err
		}
		logger.Info("Wallet debited", "order_id", in.OrderID, "balance", entry.Balance)
		return ChargeResult{Success: true, TransactionID: fmt.Sprintf("wallet-%d", entry.ID)}, nil
	}

	if a.deps.Gateway == nil {
		return ChargeResult{}, Compensatable(ActCharge, "no payment gateway configured", nil)
	}
	res, err := a.deps.Gateway.Charge(ctx, ChargeRequest{
		OrderID:    in.OrderID,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Method:     in.Method,
		CardNumber: in.CardNumber,
	})
	if err != nil {
		return ChargeResult{}, err
	}
	if !res.Success {
		return res, Compensatable(ActCharge, "payment declined: "+res.Error, nil)
	}

	logger.Info("Payment captured", "order_id", in.OrderID, "transaction_id", res.TransactionID)
	return res, nil
}

// MarkOrderStatus sets the order status
func (a *Activities) MarkOrderStatus(ctx context.Context, in OrderStatusInput) (None, error) {
	err := a.deps.Orders.SetStatus(ctx, in.OrderID, in.Status, in.TransactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return None{}, NotFound(ActMarkOrderStatus, "order %s not found", in.OrderID)
	}
	return None{}, err
}

// TriggerFulfillment activates what the order paid for
func (a *Activities) TriggerFulfillment(ctx context.Context, in OrderRef) (None, error) {
	if a.deps.Fulfillment == nil {
		return None{}, NonFatal(ActTriggerFulfillment, errors.New("no fulfillment configured"))
	}
	return None{}, a.deps.Fulfillment.Trigger(ctx, in.OrderID)
}

// ReleaseInventory returns held stock; releasing twice is a no-op
func (a *Activities) ReleaseInventory(ctx context.Context, in OrderRef) (ReleaseResult, error) {
	released, err := a.deps.Inventory.Release(ctx, in.OrderID)
	a.deps.Metrics.ObserveCompensation(ActReleaseInventory, err)
	if err != nil {
		return ReleaseResult{}, err
	}
	activityLogger(ctx).Info("Inventory released", "order_id", in.OrderID, "released", released)
	return ReleaseResult{Released: released}, nil
}

// ValidateListing loads the entity under review
func (a *Activities) ValidateListing(ctx context.Context, ref ListingRef) (domain.Entity, error) {
	store, err := a.entityStore(ActValidateListing, ref.Kind)
	if err != nil {
		return domain.Entity{}, err
	}
	e, err := store.Get(ctx, ref.ListingID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Entity{}, NotFound(ActValidateListing, "%s %d not found", strings.ToLower(string(ref.Kind)), ref.ListingID)
	}
	if err != nil {
		return domain.Entity{}, err
	}
	if strings.TrimSpace(e.DisplayName) == "" {
		return domain.Entity{}, ValidationFailed(ActValidateListing, []string{"displayName is required"})
	}
	return *e, nil
}

// ScoreListing computes the automated quality score
func (a *Activities) ScoreListing(ctx context.Context, e domain.Entity) (ScoreResult, error) {
	if a.deps.Scorer == nil {
		return ScoreResult{Score: 0, Reason: "no scorer configured"}, nil
	}
	score, reason, err := a.deps.Scorer.Score(ctx, &e)
	if err != nil {
		return ScoreResult{}, err
	}
	activityLogger(ctx).Info("Listing scored", "kind", e.Kind, "listing_id", e.ID, "score", score)
	return ScoreResult{Score: score, Reason: reason}, nil
}

// OpenReviewCase creates the PENDING case and puts the listing into review
func (a *Activities) OpenReviewCase(ctx context.Context, in OpenCaseInput) (None, error) {
	store, err := a.entityStore(ActOpenReviewCase, in.Kind)
	if err != nil {
		return None{}, err
	}

	err = a.deps.Approvals.Create(ctx, &domain.ApprovalCase{
		ID:                    in.CaseID,
		ListingKind:           in.Kind,
		ListingID:             in.ListingID,
		SubmitterID:           in.SubmitterID,
		Decision:              domain.DecisionPending,
		AutomatedQualityScore: in.Score,
		ReviewDeadline:        in.Deadline,
	})
	if err != nil {
		return None{}, err
	}

	err = store.SetStatus(ctx, in.ListingID, domain.VerificationUnverified, domain.PublishPendingReview)
	if errors.Is(err, storage.ErrNotFound) {
		return None{}, NotFound(ActOpenReviewCase, "%s %d not found", strings.ToLower(string(in.Kind)), in.ListingID)
	}
	return None{}, err
}

// NotifyReviewers tells every configured reviewer about the case. A partial
// failure is not retried so reviewers already told are not told twice.
func (a *Activities) NotifyReviewers(ctx context.Context, in ReviewerNotice) (None, error) {
	logger := activityLogger(ctx)
	if a.deps.Notifier == nil || len(a.deps.Reviewers) == 0 {
		logger.Warn("No reviewers to notify", "case_id", in.CaseID)
		return None{}, nil
	}

	subject := fmt.Sprintf("Review needed: %s", in.DisplayName)
	body := fmt.Sprintf("%s %d is waiting for review in case %s (deadline %s)",
		strings.ToLower(string(in.Kind)), in.ListingID, in.CaseID, in.Deadline.UTC().Format(time.RFC3339))

	var errs []error
	for _, reviewer := range a.deps.Reviewers {
		if err := a.deps.Notifier.NotifyUser(ctx, reviewer, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("reviewer %s: %w", reviewer, err))
		}
	}
	switch {
	case len(errs) == 0:
		return None{}, nil
	case len(errs) == len(a.deps.Reviewers):
		return None{}, errors.Join(errs...)
	default:
		return None{}, NonFatal(ActNotifyReviewers, errors.Join(errs...))
	}
}

// ApplyDecision persists the decision on the case and the listing. A case that
// was already decided keeps its first decision.
func (a *Activities) ApplyDecision(ctx context.Context, in DecisionInput) (domain.ApprovalCase, error) {
	store, err := a.entityStore(ActApplyDecision, in.Kind)
	if err != nil {
		return domain.ApprovalCase{}, err
	}

	c, err := a.deps.Approvals.Decide(ctx, in.CaseID, in.Decision, in.Comment, in.ReviewerID, in.Automatic)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ApprovalCase{}, NotFound(ActApplyDecision, "review case %s not found", in.CaseID)
	}
	if err != nil {
		return domain.ApprovalCase{}, err
	}

	verification, publish := domain.VerificationRejected, domain.PublishRejected
	if c.Decision == domain.DecisionApproved {
		verification, publish = domain.VerificationVerified, domain.PublishPublished
	}
	if err := store.SetStatus(ctx, in.ListingID, verification, publish); err != nil {
		return domain.ApprovalCase{}, err
	}

	a.deps.Metrics.ObserveDecision(string(c.Decision), c.Automatic)
	activityLogger(ctx).Info("Review decided", "case_id", c.ID, "decision", c.Decision, "automatic", c.Automatic)
	return *c, nil
}

// PublishToSearchIndex pushes the approved listing to the search index
func (a *Activities) PublishToSearchIndex(ctx context.Context, ref ListingRef) (None, error) {
	if a.deps.SearchIndex == nil {
		return None{}, nil
	}
	store, err := a.entityStore(ActPublishSearchIndex, ref.Kind)
	if err != nil {
		return None{}, err
	}
	e, err := store.Get(ctx, ref.ListingID)
	if err != nil {
		return None{}, err
	}
	return None{}, a.deps.SearchIndex.Publish(ctx, EntityKey(e.Kind, e.ID), SearchDocument(e))
}

// EntityKey is the search index key of an entity, e.g. "property:42"
func EntityKey(kind domain.DraftType, id uint) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(string(kind)), id)
}

// SearchDocument flattens an entity for the search index
func SearchDocument(e *domain.Entity) map[string]interface{} {
	doc := make(map[string]interface{}, len(e.Attributes)+5)
	for k, v := range e.Attributes {
		doc[k] = v
	}
	doc["kind"] = string(e.Kind)
	doc["id"] = e.ID
	doc["ownerId"] = e.OwnerID
	doc["displayName"] = e.DisplayName
	doc["verificationStatus"] = e.VerificationStatus
	return doc
}

// validCardNumber checks length and the Luhn checksum
func validCardNumber(pan string) bool {
	pan = strings.ReplaceAll(pan, " ", "")
	if len(pan) < 12 || len(pan) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(pan) - 1; i >= 0; i-- {
		c := pan[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

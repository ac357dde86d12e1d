package storage

import (
	"context"
	"errors"

	"github.com/TFMV/estateflow/domain"
)

var (
	// ErrNotFound is returned when a record does not exist or is not visible to the caller
	ErrNotFound = errors.New("not found")

	// ErrDuplicateDraft is returned by EntityStore.Create when an entity already exists for the draft
	ErrDuplicateDraft = errors.New("entity already exists for draft")

	// ErrInsufficientBalance is returned by Ledger.Debit when the wallet cannot cover the amount
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOutOfStock is returned by Inventory.Reserve when a SKU cannot cover the quantity
	ErrOutOfStock = errors.New("insufficient inventory")
)

// DraftStore defines access to listing drafts
type DraftStore interface {
	// FindDraft loads a draft owned by ownerID with the given type.
	// Missing, foreign or type-mismatched drafts all return ErrNotFound.
	FindDraft(ctx context.Context, id uint, ownerID string, draftType domain.DraftType) (*domain.Draft, error)

	// MarkPublished flips the draft status to PUBLISHED
	MarkPublished(ctx context.Context, id uint) error
}

// EntityStore persists one kind of publishable entity
type EntityStore interface {
	// FindByDraftID returns the entity created from the draft, or nil when there is none
	FindByDraftID(ctx context.Context, draftID uint) (*domain.Entity, error)

	// Create persists a new entity in a single write. It returns ErrDuplicateDraft
	// when another entity already references the draft.
	Create(ctx context.Context, ownerID string, draftID uint, payload domain.Payload) (*domain.Entity, error)

	// Update reapplies the allow-listed attributes of payload to an owned entity
	Update(ctx context.Context, entityID uint, ownerID string, payload domain.Payload) (*domain.Entity, error)

	// Get loads an entity by ID
	Get(ctx context.Context, entityID uint) (*domain.Entity, error)

	// SetStatus updates the verification and publish statuses
	SetStatus(ctx context.Context, entityID uint, verification, publish string) error
}

// EntityStores maps each draft type to its store
type EntityStores map[domain.DraftType]EntityStore

// OrderStore persists payment orders
type OrderStore interface {
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	Create(ctx context.Context, order *domain.Order) error
	SetStatus(ctx context.Context, orderID, status, transactionID string) error
}

// Inventory reserves countable resources for orders
type Inventory interface {
	// Reserve holds items for the order. Reserving again for the same order
	// returns the existing reservation without holding more stock.
	Reserve(ctx context.Context, orderID string, items []domain.LineItem) ([]domain.Reservation, error)

	// Release returns the order's held stock. Releasing twice is a no-op.
	// It reports whether anything was released by this call.
	Release(ctx context.Context, orderID string) (bool, error)
}

// ApprovalStore persists review cases
type ApprovalStore interface {
	Create(ctx context.Context, c *domain.ApprovalCase) error
	Get(ctx context.Context, id string) (*domain.ApprovalCase, error)
	// Decide records a terminal decision. Deciding an already decided case returns it unchanged.
	Decide(ctx context.Context, id string, decision domain.Decision, comment, reviewerID string, automatic bool) (*domain.ApprovalCase, error)
}

// Ledger is the append-only credit wallet
type Ledger interface {
	Credit(ctx context.Context, userID string, amount int64, reason string) (*domain.LedgerEntry, error)
	Debit(ctx context.Context, userID string, amount int64, reason string) (*domain.LedgerEntry, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

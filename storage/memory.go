package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TFMV/estateflow/domain"
)

// MemoryDrafts keeps drafts in memory (no persistence)
type MemoryDrafts struct {
	mu     sync.Mutex
	drafts map[uint]domain.Draft
}

// NewMemoryDrafts creates an empty in-memory draft store
func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{drafts: make(map[uint]domain.Draft)}
}

// Put inserts or replaces a draft
func (s *MemoryDrafts) Put(d domain.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Status == "" {
		d.Status = domain.DraftStatusDraft
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	s.drafts[d.ID] = d
}

func (s *MemoryDrafts) FindDraft(ctx context.Context, id uint, ownerID string, draftType domain.DraftType) (*domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok || d.OwnerID != ownerID || d.Type != draftType {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryDrafts) MarkPublished(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = domain.DraftStatusPublished
	d.UpdatedAt = time.Now()
	s.drafts[id] = d
	return nil
}

// MemoryEntities keeps entities of one kind in memory, enforcing one entity per draft
type MemoryEntities struct {
	kind    domain.DraftType
	mu      sync.Mutex
	nextID  uint
	models  map[uint]domain.EntityModel
	byDraft map[uint]uint
}

// NewMemoryEntities creates an empty in-memory entity store for kind
func NewMemoryEntities(kind domain.DraftType) *MemoryEntities {
	return &MemoryEntities{
		kind:    kind,
		models:  make(map[uint]domain.EntityModel),
		byDraft: make(map[uint]uint),
	}
}

// NewMemoryEntityStores creates one in-memory store per draft type
func NewMemoryEntityStores() EntityStores {
	stores := make(EntityStores, len(domain.DraftTypes))
	for _, kind := range domain.DraftTypes {
		stores[kind] = NewMemoryEntities(kind)
	}
	return stores
}

// Count returns the number of stored entities
func (s *MemoryEntities) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.models)
}

func (s *MemoryEntities) FindByDraftID(ctx context.Context, draftID uint) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byDraft[draftID]
	if !ok {
		return nil, nil
	}
	return domain.ToEntity(s.models[id]), nil
}

func (s *MemoryEntities) Create(ctx context.Context, ownerID string, draftID uint, payload domain.Payload) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byDraft[draftID]; exists {
		return nil, ErrDuplicateDraft
	}

	m := domain.NewModel(s.kind)
	if m == nil {
		return nil, fmt.Errorf("unsupported entity kind %s", s.kind)
	}
	m.Apply(payload)

	s.nextID++
	now := time.Now()
	b := m.Base()
	b.ID = s.nextID
	b.DraftID = draftID
	b.OwnerID = ownerID
	b.VerificationStatus = domain.VerificationUnverified
	b.PublishStatus = domain.PublishPendingReview
	b.CreatedAt = now
	b.UpdatedAt = now

	s.models[b.ID] = m
	s.byDraft[draftID] = b.ID
	return domain.ToEntity(m), nil
}

func (s *MemoryEntities) Update(ctx context.Context, entityID uint, ownerID string, payload domain.Payload) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[entityID]
	if !ok || m.Base().OwnerID != ownerID {
		return nil, ErrNotFound
	}
	m.Apply(payload)
	m.Base().UpdatedAt = time.Now()
	return domain.ToEntity(m), nil
}

func (s *MemoryEntities) Get(ctx context.Context, entityID uint) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[entityID]
	if !ok {
		return nil, ErrNotFound
	}
	return domain.ToEntity(m), nil
}

func (s *MemoryEntities) SetStatus(ctx context.Context, entityID uint, verification, publish string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[entityID]
	if !ok {
		return ErrNotFound
	}
	b := m.Base()
	b.VerificationStatus = verification
	b.PublishStatus = publish
	b.UpdatedAt = time.Now()
	if publish == domain.PublishPublished && b.PublishedAt == nil {
		now := b.UpdatedAt
		b.PublishedAt = &now
	}
	return nil
}

// MemoryOrders keeps orders in memory
type MemoryOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

// NewMemoryOrders creates an empty in-memory order store
func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{orders: make(map[string]domain.Order)}
}

func (s *MemoryOrders) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *MemoryOrders) Create(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	o := *order
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryOrders) SetStatus(ctx context.Context, orderID, status, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	if transactionID != "" {
		o.TransactionID = transactionID
	}
	o.UpdatedAt = time.Now()
	s.orders[orderID] = o
	return nil
}

// MemoryInventory keeps stock levels and reservations in memory
type MemoryInventory struct {
	mu           sync.Mutex
	stock        map[string]int
	reservations map[string][]domain.Reservation
}

// NewMemoryInventory creates an inventory with the given stock levels
func NewMemoryInventory(stock map[string]int) *MemoryInventory {
	s := &MemoryInventory{
		stock:        make(map[string]int, len(stock)),
		reservations: make(map[string][]domain.Reservation),
	}
	for sku, n := range stock {
		s.stock[sku] = n
	}
	return s
}

// Available returns the unreserved stock of a SKU
func (s *MemoryInventory) Available(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[sku]
}

func (s *MemoryInventory) Reserve(ctx context.Context, orderID string, items []domain.LineItem) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.reservations[orderID]; ok && holding(existing) {
		return append([]domain.Reservation(nil), existing...), nil
	}

	for _, it := range items {
		if s.stock[it.SKU] < it.Quantity {
			return nil, fmt.Errorf("%w: %s", ErrOutOfStock, it.SKU)
		}
	}

	now := time.Now()
	held := make([]domain.Reservation, 0, len(items))
	for _, it := range items {
		s.stock[it.SKU] -= it.Quantity
		held = append(held, domain.Reservation{OrderID: orderID, SKU: it.SKU, Quantity: it.Quantity, CreatedAt: now, UpdatedAt: now})
	}
	s.reservations[orderID] = held
	return append([]domain.Reservation(nil), held...), nil
}

// holding reports whether any reservation still holds stock. A fully released
// order reserves afresh.
func holding(held []domain.Reservation) bool {
	for _, r := range held {
		if !r.Released {
			return true
		}
	}
	return false
}

func (s *MemoryInventory) Release(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.reservations[orderID]
	if !ok {
		return false, nil
	}
	released := false
	for i := range held {
		if held[i].Released {
			continue
		}
		s.stock[held[i].SKU] += held[i].Quantity
		held[i].Released = true
		held[i].UpdatedAt = time.Now()
		released = true
	}
	return released, nil
}

// MemoryApprovals keeps approval cases in memory
type MemoryApprovals struct {
	mu    sync.Mutex
	cases map[string]domain.ApprovalCase
}

// NewMemoryApprovals creates an empty in-memory approval store
func NewMemoryApprovals() *MemoryApprovals {
	return &MemoryApprovals{cases: make(map[string]domain.ApprovalCase)}
}

func (s *MemoryApprovals) Create(ctx context.Context, c *domain.ApprovalCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return nil
	}
	cp := *c
	if cp.Decision == "" {
		cp.Decision = domain.DecisionPending
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.cases[cp.ID] = cp
	return nil
}

func (s *MemoryApprovals) Get(ctx context.Context, id string) (*domain.ApprovalCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryApprovals) Decide(ctx context.Context, id string, decision domain.Decision, comment, reviewerID string, automatic bool) (*domain.ApprovalCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Decision.Terminal() {
		return &c, nil
	}
	now := time.Now()
	c.Decision = decision
	c.DecisionComment = comment
	c.ReviewerID = reviewerID
	c.Automatic = automatic
	c.DecidedAt = &now
	c.UpdatedAt = now
	s.cases[id] = c
	return &c, nil
}

// MemoryLedger is an in-memory append-only wallet
type MemoryLedger struct {
	mu      sync.Mutex
	nextID  uint
	entries map[string][]domain.LedgerEntry
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string][]domain.LedgerEntry)}
}

func (s *MemoryLedger) Credit(ctx context.Context, userID string, amount int64, reason string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(userID, amount, reason), nil
}

func (s *MemoryLedger) Debit(ctx context.Context, userID string, amount int64, reason string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balanceLocked(userID) < amount {
		return nil, ErrInsufficientBalance
	}
	return s.appendLocked(userID, -amount, reason), nil
}

func (s *MemoryLedger) Balance(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(userID), nil
}

// Entries returns a user's entries oldest first
func (s *MemoryLedger) Entries(userID string) []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.LedgerEntry(nil), s.entries[userID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryLedger) balanceLocked(userID string) int64 {
	entries := s.entries[userID]
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].Balance
}

func (s *MemoryLedger) appendLocked(userID string, amount int64, reason string) *domain.LedgerEntry {
	s.nextID++
	e := domain.LedgerEntry{
		ID:        s.nextID,
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		Balance:   s.balanceLocked(userID) + amount,
		CreatedAt: time.Now(),
	}
	s.entries[userID] = append(s.entries[userID], e)
	return &e
}

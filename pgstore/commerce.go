package pgstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/storage"
)

// Orders implements storage.OrderStore
type Orders struct {
	db *gorm.DB
}

func (s *Orders) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var o domain.Order
	if err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (s *Orders) Create(ctx context.Context, order *domain.Order) error {
	if order.Status == "" {
		order.Status = domain.OrderPending
	}
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *Orders) SetStatus(ctx context.Context, orderID, status, transactionID string) error {
	updates := map[string]interface{}{"status": status}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	res := s.db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", orderID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Inventory implements storage.Inventory with conditional decrements
type Inventory struct {
	db *gorm.DB
}

// Stock adds SKUs that are not stocked yet. Known SKUs keep their current
// level, which already accounts for held reservations.
func (s *Inventory) Stock(ctx context.Context, items ...domain.InventoryItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoNothing: true,
	}).Create(&items).Error
}

// Available returns the unreserved quantity of a SKU
func (s *Inventory) Available(ctx context.Context, sku string) (int, error) {
	var item domain.InventoryItem
	if err := s.db.WithContext(ctx).Where("sku = ?", sku).First(&item).Error; err != nil {
		return 0, notFound(err)
	}
	return item.Available, nil
}

func (s *Inventory) Reserve(ctx context.Context, orderID string, items []domain.LineItem) ([]domain.Reservation, error) {
	var held []domain.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Order("id").Find(&held).Error; err != nil {
			return err
		}
		for _, r := range held {
			if !r.Released {
				return nil
			}
		}
		if len(held) > 0 {
			// every row was released by a compensation; reserve again from scratch
			if err := tx.Where("order_id = ?", orderID).Delete(&domain.Reservation{}).Error; err != nil {
				return err
			}
			held = nil
		}

		for _, it := range items {
			res := tx.Model(&domain.InventoryItem{}).
				Where("sku = ? AND available >= ?", it.SKU, it.Quantity).
				Updates(map[string]interface{}{
					"available":  gorm.Expr("available - ?", it.Quantity),
					"updated_at": time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", storage.ErrOutOfStock, it.SKU)
			}
			held = append(held, domain.Reservation{OrderID: orderID, SKU: it.SKU, Quantity: it.Quantity})
		}
		if len(held) == 0 {
			return nil
		}
		return tx.Create(&held).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent attempt for the same order won; return its reservation
			held = nil
			if qerr := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&held).Error; qerr != nil {
				return nil, qerr
			}
			return held, nil
		}
		return nil, err
	}
	return held, nil
}

func (s *Inventory) Release(ctx context.Context, orderID string) (bool, error) {
	released := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held []domain.Reservation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ? AND released = ?", orderID, false).
			Find(&held).Error
		if err != nil {
			return err
		}

		for _, r := range held {
			err := tx.Model(&domain.InventoryItem{}).
				Where("sku = ?", r.SKU).
				Updates(map[string]interface{}{
					"available":  gorm.Expr("available + ?", r.Quantity),
					"updated_at": time.Now(),
				}).Error
			if err != nil {
				return err
			}
		}
		if len(held) == 0 {
			return nil
		}

		res := tx.Model(&domain.Reservation{}).
			Where("order_id = ? AND released = ?", orderID, false).
			Update("released", true)
		if res.Error != nil {
			return res.Error
		}
		released = res.RowsAffected > 0
		return nil
	})
	return released, err
}

// Approvals implements storage.ApprovalStore
type Approvals struct {
	db *gorm.DB
}

func (s *Approvals) Create(ctx context.Context, c *domain.ApprovalCase) error {
	if c.Decision == "" {
		c.Decision = domain.DecisionPending
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c).Error
}

func (s *Approvals) Get(ctx context.Context, id string) (*domain.ApprovalCase, error) {
	var c domain.ApprovalCase
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Approvals) Decide(ctx context.Context, id string, decision domain.Decision, comment, reviewerID string, automatic bool) (*domain.ApprovalCase, error) {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&domain.ApprovalCase{}).
		Where("id = ? AND decision = ?", id, domain.DecisionPending).
		Updates(map[string]interface{}{
			"decision":         decision,
			"decision_comment": comment,
			"reviewer_id":      reviewerID,
			"automatic":        automatic,
			"decided_at":       now,
		}).Error
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Ledger implements storage.Ledger as an append-only table with a running balance
type Ledger struct {
	db *gorm.DB
}

func (s *Ledger) Credit(ctx context.Context, userID string, amount int64, reason string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive")
	}
	return s.append(ctx, userID, amount, reason)
}

func (s *Ledger) Debit(ctx context.Context, userID string, amount int64, reason string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive")
	}
	return s.append(ctx, userID, -amount, reason)
}

func (s *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var last domain.LedgerEntry
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Limit(1).Find(&last).Error
	if err != nil {
		return 0, err
	}
	return last.Balance, nil
}

func (s *Ledger) append(ctx context.Context, userID string, amount int64, reason string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last domain.LedgerEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Order("id DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			return err
		}

		balance := last.Balance + amount
		if balance < 0 {
			return storage.ErrInsufficientBalance
		}
		entry = domain.LedgerEntry{UserID: userID, Amount: amount, Reason: reason, Balance: balance}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/storage"
)

// Drafts implements storage.DraftStore
type Drafts struct {
	db *gorm.DB
}

// Create inserts a draft; the publishing core never calls it, seeding and tests do
func (s *Drafts) Create(ctx context.Context, d *domain.Draft) error {
	if d.Status == "" {
		d.Status = domain.DraftStatusDraft
	}
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *Drafts) FindDraft(ctx context.Context, id uint, ownerID string, draftType domain.DraftType) (*domain.Draft, error) {
	var d domain.Draft
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ? AND type = ?", id, ownerID, draftType).
		First(&d).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *Drafts) MarkPublished(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Draft{}).
		Where("id = ?", id).
		Update("status", domain.DraftStatusPublished)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Entities implements storage.EntityStore for one entity kind
type Entities struct {
	db   *gorm.DB
	kind domain.DraftType
}

func (s *Entities) model() domain.EntityModel {
	return domain.NewModel(s.kind)
}

func (s *Entities) FindByDraftID(ctx context.Context, draftID uint) (*domain.Entity, error) {
	m := s.model()
	err := s.db.WithContext(ctx).Where("draft_id = ?", draftID).First(m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return domain.ToEntity(m), nil
}

func (s *Entities) Create(ctx context.Context, ownerID string, draftID uint, payload domain.Payload) (*domain.Entity, error) {
	m := s.model()
	if m == nil {
		return nil, fmt.Errorf("unsupported entity kind %s", s.kind)
	}
	m.Apply(payload)
	b := m.Base()
	b.DraftID = draftID
	b.OwnerID = ownerID
	b.VerificationStatus = domain.VerificationUnverified
	b.PublishStatus = domain.PublishPendingReview

	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrDuplicateDraft
		}
		return nil, err
	}
	return domain.ToEntity(m), nil
}

func (s *Entities) Update(ctx context.Context, entityID uint, ownerID string, payload domain.Payload) (*domain.Entity, error) {
	m := s.model()
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", entityID, ownerID).First(m).Error
	if err != nil {
		return nil, notFound(err)
	}

	m.Apply(payload)
	m.Base().UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		return nil, err
	}
	return domain.ToEntity(m), nil
}

func (s *Entities) Get(ctx context.Context, entityID uint) (*domain.Entity, error) {
	m := s.model()
	if err := s.db.WithContext(ctx).First(m, entityID).Error; err != nil {
		return nil, notFound(err)
	}
	return domain.ToEntity(m), nil
}

func (s *Entities) SetStatus(ctx context.Context, entityID uint, verification, publish string) error {
	updates := map[string]interface{}{
		"verification_status": verification,
		"publish_status":      publish,
	}
	if publish == domain.PublishPublished {
		updates["published_at"] = gorm.Expr("COALESCE(published_at, ?)", time.Now())
	}

	res := s.db.WithContext(ctx).Model(s.model()).Where("id = ?", entityID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

package domain

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DraftType tags which kind of listing a draft will become
type DraftType string

const (
	DraftTypeProperty  DraftType = "PROPERTY"
	DraftTypePg        DraftType = "PG"
	DraftTypeProject   DraftType = "PROJECT"
	DraftTypeDeveloper DraftType = "DEVELOPER"
)

// DraftTypes lists every publishable kind in a stable order
var DraftTypes = []DraftType{DraftTypeProperty, DraftTypePg, DraftTypeProject, DraftTypeDeveloper}

// ParseDraftType accepts any casing of a draft type tag
func ParseDraftType(s string) (DraftType, error) {
	t := DraftType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range DraftTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown draft type %q", s)
}

// DraftStatus is the lifecycle state of a draft
type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "DRAFT"
	DraftStatusPublished DraftStatus = "PUBLISHED"
	DraftStatusArchived  DraftStatus = "ARCHIVED"
)

// Draft is a user-owned staging record for a listing
type Draft struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	OwnerID   string         `gorm:"index;not null" json:"ownerId"`
	Type      DraftType      `gorm:"type:varchar(16);not null" json:"type"`
	Payload   datatypes.JSON `json:"payload"`
	Status    DraftStatus    `gorm:"type:varchar(16);not null;default:DRAFT" json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (Draft) TableName() string { return "drafts" }

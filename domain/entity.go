package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Verification statuses of a published entity
const (
	VerificationUnverified = "unverified"
	VerificationVerified   = "verified"
	VerificationRejected   = "rejected"
)

// Publish statuses of a published entity
const (
	PublishPendingReview = "pending_review"
	PublishPublished     = "published"
	PublishRejected      = "rejected"
)

// Listing holds the columns every publishable entity shares. DraftID is unique:
// at most one entity exists per draft.
type Listing struct {
	ID                 uint       `gorm:"primaryKey"`
	DraftID            uint       `gorm:"uniqueIndex;not null"`
	OwnerID            string     `gorm:"index;not null"`
	DisplayName        string     `gorm:"not null"`
	VerificationStatus string     `gorm:"type:varchar(16);not null;default:unverified"`
	PublishStatus      string     `gorm:"type:varchar(16);not null;default:pending_review"`
	PublishedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Base gives generic code access to the shared columns
func (l *Listing) Base() *Listing { return l }

// EntityModel is implemented by the four persisted entity kinds
type EntityModel interface {
	Base() *Listing
	Kind() DraftType
	// Apply copies the allow-listed mutable attributes from the payload
	Apply(p Payload)
	Attributes() map[string]interface{}
}

// Entity is the kind-neutral view of a publishable entity that flows through workflows
type Entity struct {
	Kind               DraftType              `json:"kind"`
	ID                 uint                   `json:"id"`
	DraftID            uint                   `json:"draftId"`
	OwnerID            string                 `json:"ownerId"`
	DisplayName        string                 `json:"displayName"`
	VerificationStatus string                 `json:"verificationStatus"`
	PublishStatus      string                 `json:"publishStatus"`
	Attributes         map[string]interface{} `json:"attributes,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// ToEntity builds the kind-neutral view of a model
func ToEntity(m EntityModel) *Entity {
	b := m.Base()
	return &Entity{
		Kind:               m.Kind(),
		ID:                 b.ID,
		DraftID:            b.DraftID,
		OwnerID:            b.OwnerID,
		DisplayName:        b.DisplayName,
		VerificationStatus: b.VerificationStatus,
		PublishStatus:      b.PublishStatus,
		Attributes:         m.Attributes(),
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

// Property is a flat, house, plot or commercial unit listed for rent or sale
type Property struct {
	Listing      `gorm:"embedded"`
	PropertyType string
	ListingType  string
	City         string `gorm:"index"`
	Locality     string
	Address      string
	Price        *float64
	AreaSqft     *float64
	Bedrooms     *int
	Bathrooms    *int
	Furnishing   string
	Latitude     *float64
	Longitude    *float64
	Amenities    datatypes.JSONSlice[string]
	Description  string
}

func (Property) TableName() string { return "properties" }

func (p *Property) Kind() DraftType { return DraftTypeProperty }

func (p *Property) Apply(pl Payload) {
	src := pl.Property
	if src == nil {
		return
	}
	p.DisplayName = pl.DisplayName()
	p.PropertyType = src.PropertyType
	p.ListingType = src.ListingType
	p.City = src.City
	p.Locality = src.Locality
	p.Address = src.Address
	p.Price = src.Price
	p.AreaSqft = src.AreaSqft
	p.Bedrooms = src.Bedrooms
	p.Bathrooms = src.Bathrooms
	p.Furnishing = src.Furnishing
	p.Latitude = src.Latitude
	p.Longitude = src.Longitude
	p.Amenities = src.Amenities
	p.Description = src.Description
}

func (p *Property) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		"propertyType": p.PropertyType,
		"listingType":  p.ListingType,
		"city":         p.City,
		"locality":     p.Locality,
	}
	setOptional(attrs, "address", p.Address)
	setOptional(attrs, "furnishing", p.Furnishing)
	setOptional(attrs, "description", p.Description)
	if p.Price != nil {
		attrs["price"] = *p.Price
	}
	if p.AreaSqft != nil {
		attrs["areaSqft"] = *p.AreaSqft
	}
	if p.Bedrooms != nil {
		attrs["bedrooms"] = *p.Bedrooms
	}
	if p.Bathrooms != nil {
		attrs["bathrooms"] = *p.Bathrooms
	}
	setCoordinates(attrs, p.Latitude, p.Longitude)
	if len(p.Amenities) > 0 {
		attrs["amenities"] = []string(p.Amenities)
	}
	return attrs
}

// PgHostel is a paying-guest accommodation or hostel
type PgHostel struct {
	Listing        `gorm:"embedded"`
	Gender         string
	City           string `gorm:"index"`
	Locality       string
	Address        string
	Latitude       *float64
	Longitude      *float64
	FoodIncluded   bool
	RoomCategories datatypes.JSONSlice[RoomCategory]
	StartingPrice  float64
	Amenities      datatypes.JSONSlice[string]
	Description    string
}

func (PgHostel) TableName() string { return "pg_hostels" }

func (p *PgHostel) Kind() DraftType { return DraftTypePg }

func (p *PgHostel) Apply(pl Payload) {
	src := pl.Pg
	if src == nil {
		return
	}
	p.DisplayName = pl.DisplayName()
	p.Gender = src.Gender
	p.City = src.City
	p.Locality = src.Locality
	p.Address = src.Address
	p.Latitude = src.Latitude
	p.Longitude = src.Longitude
	p.FoodIncluded = src.FoodIncluded
	p.RoomCategories = src.RoomCategories
	p.Amenities = src.Amenities
	p.Description = src.Description

	p.StartingPrice = 0
	for _, rc := range src.RoomCategories {
		if rc.Price > 0 && (p.StartingPrice == 0 || rc.Price < p.StartingPrice) {
			p.StartingPrice = rc.Price
		}
	}
}

func (p *PgHostel) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		"gender":        p.Gender,
		"city":          p.City,
		"locality":      p.Locality,
		"foodIncluded":  p.FoodIncluded,
		"startingPrice": p.StartingPrice,
		"roomTypes":     len(p.RoomCategories),
	}
	setOptional(attrs, "address", p.Address)
	setOptional(attrs, "description", p.Description)
	setCoordinates(attrs, p.Latitude, p.Longitude)
	if len(p.Amenities) > 0 {
		attrs["amenities"] = []string(p.Amenities)
	}
	return attrs
}

// Project is a residential or commercial development with several unit configurations
type Project struct {
	Listing        `gorm:"embedded"`
	DeveloperName  string
	ProjectStatus  string
	City           string `gorm:"index"`
	Locality       string
	Latitude       *float64
	Longitude      *float64
	ReraID         string
	PossessionDate string
	UnitCategories datatypes.JSONSlice[UnitCategory]
	StartingPrice  float64
	Amenities      datatypes.JSONSlice[string]
	Description    string
}

func (Project) TableName() string { return "projects" }

func (p *Project) Kind() DraftType { return DraftTypeProject }

func (p *Project) Apply(pl Payload) {
	src := pl.Project
	if src == nil {
		return
	}
	p.DisplayName = pl.DisplayName()
	p.DeveloperName = src.DeveloperName
	p.ProjectStatus = src.ProjectStatus
	p.City = src.City
	p.Locality = src.Locality
	p.Latitude = src.Latitude
	p.Longitude = src.Longitude
	p.ReraID = src.ReraID
	p.PossessionDate = src.PossessionDate
	p.UnitCategories = src.UnitCategories
	p.Amenities = src.Amenities
	p.Description = src.Description

	p.StartingPrice = 0
	for _, uc := range src.UnitCategories {
		if uc.MinPrice > 0 && (p.StartingPrice == 0 || uc.MinPrice < p.StartingPrice) {
			p.StartingPrice = uc.MinPrice
		}
	}
}

func (p *Project) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		"projectStatus": p.ProjectStatus,
		"city":          p.City,
		"locality":      p.Locality,
		"startingPrice": p.StartingPrice,
		"unitTypes":     len(p.UnitCategories),
	}
	setOptional(attrs, "developerName", p.DeveloperName)
	setOptional(attrs, "reraId", p.ReraID)
	setOptional(attrs, "possessionDate", p.PossessionDate)
	setOptional(attrs, "description", p.Description)
	setCoordinates(attrs, p.Latitude, p.Longitude)
	if len(p.Amenities) > 0 {
		attrs["amenities"] = []string(p.Amenities)
	}
	return attrs
}

// Developer is a builder or developer company profile
type Developer struct {
	Listing         `gorm:"embedded"`
	EstablishedYear int
	City            string
	Website         string
	ContactEmail    string
	ContactPhone    string
	Description     string
}

func (Developer) TableName() string { return "developers" }

func (d *Developer) Kind() DraftType { return DraftTypeDeveloper }

func (d *Developer) Apply(pl Payload) {
	src := pl.Developer
	if src == nil {
		return
	}
	d.DisplayName = pl.DisplayName()
	d.EstablishedYear = src.EstablishedYear
	d.City = src.City
	d.Website = src.Website
	d.ContactEmail = src.ContactEmail
	d.ContactPhone = src.ContactPhone
	d.Description = src.Description
}

func (d *Developer) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{}
	if d.EstablishedYear != 0 {
		attrs["establishedYear"] = d.EstablishedYear
	}
	setOptional(attrs, "city", d.City)
	setOptional(attrs, "website", d.Website)
	setOptional(attrs, "contactEmail", d.ContactEmail)
	setOptional(attrs, "contactPhone", d.ContactPhone)
	setOptional(attrs, "description", d.Description)
	return attrs
}

// NewModel returns an empty model for the given kind
func NewModel(kind DraftType) EntityModel {
	switch kind {
	case DraftTypeProperty:
		return &Property{}
	case DraftTypePg:
		return &PgHostel{}
	case DraftTypeProject:
		return &Project{}
	case DraftTypeDeveloper:
		return &Developer{}
	}
	return nil
}

func setOptional(attrs map[string]interface{}, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}

func setCoordinates(attrs map[string]interface{}, lat, lng *float64) {
	if lat != nil && lng != nil {
		attrs["latitude"] = *lat
		attrs["longitude"] = *lng
	}
}

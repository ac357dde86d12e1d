package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PropertyPayload is the form data of a property draft
type PropertyPayload struct {
	DisplayName  string   `json:"displayName"`
	PropertyType string   `json:"propertyType"`
	ListingType  string   `json:"listingType"`
	City         string   `json:"city"`
	Locality     string   `json:"locality"`
	Address      string   `json:"address,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	AreaSqft     *float64 `json:"areaSqft,omitempty"`
	Bedrooms     *int     `json:"bedrooms,omitempty"`
	Bathrooms    *int     `json:"bathrooms,omitempty"`
	Furnishing   string   `json:"furnishing,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Amenities    []string `json:"amenities,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// RoomCategory is one priced room type offered by a PG/hostel
type RoomCategory struct {
	Sharing   string  `json:"sharing"`
	Price     float64 `json:"price"`
	Available int     `json:"available,omitempty"`
}

// PgPayload is the form data of a PG/hostel draft
type PgPayload struct {
	DisplayName    string         `json:"displayName"`
	Gender         string         `json:"gender"`
	City           string         `json:"city"`
	Locality       string         `json:"locality"`
	Address        string         `json:"address,omitempty"`
	Latitude       *float64       `json:"latitude,omitempty"`
	Longitude      *float64       `json:"longitude,omitempty"`
	FoodIncluded   bool           `json:"foodIncluded,omitempty"`
	RoomCategories []RoomCategory `json:"roomCategories"`
	Amenities      []string       `json:"amenities,omitempty"`
	Description    string         `json:"description,omitempty"`
}

// UnitCategory is one priced unit configuration of a project
type UnitCategory struct {
	Configuration string  `json:"configuration"`
	MinPrice      float64 `json:"minPrice"`
	MaxPrice      float64 `json:"maxPrice,omitempty"`
	AreaSqft      float64 `json:"areaSqft,omitempty"`
}

// ProjectPayload is the form data of a project draft
type ProjectPayload struct {
	DisplayName    string         `json:"displayName"`
	DeveloperName  string         `json:"developerName,omitempty"`
	ProjectStatus  string         `json:"projectStatus"`
	City           string         `json:"city"`
	Locality       string         `json:"locality"`
	Latitude       *float64       `json:"latitude,omitempty"`
	Longitude      *float64       `json:"longitude,omitempty"`
	ReraID         string         `json:"reraId,omitempty"`
	PossessionDate string         `json:"possessionDate,omitempty"`
	UnitCategories []UnitCategory `json:"unitCategories"`
	Amenities      []string       `json:"amenities,omitempty"`
	Description    string         `json:"description,omitempty"`
}

// DeveloperPayload is the form data of a developer (builder) draft
type DeveloperPayload struct {
	DisplayName     string `json:"displayName"`
	EstablishedYear int    `json:"establishedYear,omitempty"`
	City            string `json:"city,omitempty"`
	Website         string `json:"website,omitempty"`
	ContactEmail    string `json:"contactEmail,omitempty"`
	ContactPhone    string `json:"contactPhone,omitempty"`
	Description     string `json:"description,omitempty"`
}

// Payload is the typed form of a draft's opaque JSON. Exactly one variant is set,
// matching Kind.
type Payload struct {
	Kind      DraftType         `json:"kind"`
	Property  *PropertyPayload  `json:"property,omitempty"`
	Pg        *PgPayload        `json:"pg,omitempty"`
	Project   *ProjectPayload   `json:"project,omitempty"`
	Developer *DeveloperPayload `json:"developer,omitempty"`
}

// DecodePayload converts raw draft JSON into the typed variant for kind.
// Unknown fields are ignored; wrongly typed fields are a decode error.
func DecodePayload(kind DraftType, raw []byte) (Payload, error) {
	p := Payload{Kind: kind}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	var target interface{}
	switch kind {
	case DraftTypeProperty:
		p.Property = &PropertyPayload{}
		target = p.Property
	case DraftTypePg:
		p.Pg = &PgPayload{}
		target = p.Pg
	case DraftTypeProject:
		p.Project = &ProjectPayload{}
		target = p.Project
	case DraftTypeDeveloper:
		p.Developer = &DeveloperPayload{}
		target = p.Developer
	default:
		return Payload{}, fmt.Errorf("unknown draft type %q", kind)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return Payload{}, fmt.Errorf("decode %s payload: %w", strings.ToLower(string(kind)), err)
	}
	return p, nil
}

// DisplayName returns the denormalized name of whichever variant is set
func (p Payload) DisplayName() string {
	switch {
	case p.Property != nil:
		return strings.TrimSpace(p.Property.DisplayName)
	case p.Pg != nil:
		return strings.TrimSpace(p.Pg.DisplayName)
	case p.Project != nil:
		return strings.TrimSpace(p.Project.DisplayName)
	case p.Developer != nil:
		return strings.TrimSpace(p.Developer.DisplayName)
	}
	return ""
}

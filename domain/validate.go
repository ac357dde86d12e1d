package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	propertyTypes   = []string{"apartment", "independent_house", "villa", "plot", "office", "shop", "warehouse"}
	listingTypes    = []string{"rent", "sale", "lease"}
	furnishingTypes = []string{"furnished", "semi_furnished", "unfurnished"}
	pgGenders       = []string{"male", "female", "unisex"}
	roomSharings    = []string{"single", "double", "triple", "quad"}
	projectStatuses = []string{"upcoming", "under_construction", "ready_to_move"}
)

// Validate runs structural and business-rule checks for the variant that is set.
// It returns one message per offending field; an empty result means valid.
func (p Payload) Validate() []string {
	var v validator
	switch {
	case p.Property != nil:
		v.validateProperty(p.Property)
	case p.Pg != nil:
		v.validatePg(p.Pg)
	case p.Project != nil:
		v.validateProject(p.Project)
	case p.Developer != nil:
		v.validateDeveloper(p.Developer)
	default:
		v.add("payload", "is empty for kind %s", p.Kind)
	}
	return v.errs
}

type validator struct {
	errs []string
}

func (v *validator) add(field, format string, args ...interface{}) {
	v.errs = append(v.errs, field+" "+fmt.Sprintf(format, args...))
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
	}
}

func (v *validator) oneOf(field, value string, allowed []string, required bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			v.add(field, "is required")
		}
		return
	}
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return
		}
	}
	v.add(field, "must be one of %s", strings.Join(allowed, ", "))
}

func (v *validator) coordinates(lat, lng *float64) {
	if lat != nil && (*lat < -90 || *lat > 90) {
		v.add("latitude", "must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		v.add("longitude", "must be between -180 and 180")
	}
	if (lat == nil) != (lng == nil) {
		v.add("coordinates", "latitude and longitude must be provided together")
	}
}

func (v *validator) nonNegative(field string, value *float64) {
	if value != nil && *value < 0 {
		v.add(field, "must not be negative")
	}
}

func (v *validator) validateProperty(p *PropertyPayload) {
	v.required("displayName", p.DisplayName)
	v.oneOf("propertyType", p.PropertyType, propertyTypes, true)
	v.oneOf("listingType", p.ListingType, listingTypes, true)
	v.required("city", p.City)
	v.oneOf("furnishing", p.Furnishing, furnishingTypes, false)
	v.nonNegative("price", p.Price)
	v.nonNegative("areaSqft", p.AreaSqft)
	if p.Bedrooms != nil && *p.Bedrooms < 0 {
		v.add("bedrooms", "must not be negative")
	}
	if p.Bathrooms != nil && *p.Bathrooms < 0 {
		v.add("bathrooms", "must not be negative")
	}
	v.coordinates(p.Latitude, p.Longitude)
}

func (v *validator) validatePg(p *PgPayload) {
	v.required("displayName", p.DisplayName)
	v.oneOf("gender", p.Gender, pgGenders, true)
	v.required("city", p.City)
	v.coordinates(p.Latitude, p.Longitude)

	priced := 0
	for i, rc := range p.RoomCategories {
		field := fmt.Sprintf("roomCategories[%d]", i)
		v.oneOf(field+".sharing", rc.Sharing, roomSharings, true)
		if rc.Price < 0 {
			v.add(field+".price", "must not be negative")
		}
		if rc.Price > 0 {
			priced++
		}
	}
	if priced == 0 {
		v.add("roomCategories", "must include at least one priced room category")
	}
}

func (v *validator) validateProject(p *ProjectPayload) {
	v.required("displayName", p.DisplayName)
	v.oneOf("projectStatus", p.ProjectStatus, projectStatuses, true)
	v.required("city", p.City)
	v.coordinates(p.Latitude, p.Longitude)
	if p.PossessionDate != "" {
		if _, err := time.Parse("2006-01-02", p.PossessionDate); err != nil {
			v.add("possessionDate", "must be a date in YYYY-MM-DD form")
		}
	}

	priced := 0
	for i, uc := range p.UnitCategories {
		field := fmt.Sprintf("unitCategories[%d]", i)
		v.required(field+".configuration", uc.Configuration)
		if uc.MinPrice < 0 {
			v.add(field+".minPrice", "must not be negative")
		}
		if uc.MaxPrice != 0 && uc.MaxPrice < uc.MinPrice {
			v.add(field+".maxPrice", "must not be below minPrice")
		}
		if uc.MinPrice > 0 {
			priced++
		}
	}
	if priced == 0 {
		v.add("unitCategories", "must include at least one priced unit category")
	}
}

func (v *validator) validateDeveloper(p *DeveloperPayload) {
	v.required("displayName", p.DisplayName)
	if p.EstablishedYear != 0 && (p.EstablishedYear < 1800 || p.EstablishedYear > time.Now().Year()) {
		v.add("establishedYear", "must be between 1800 and the current year")
	}
	if p.ContactEmail != "" {
		if _, err := mail.ParseAddress(p.ContactEmail); err != nil {
			v.add("contactEmail", "is not a valid email address")
		}
	}
}

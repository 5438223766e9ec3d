package domain

import dErrors "baseproof/pkg/domain-errors"

// Category classifies a certified document. The set is closed; values are
// stable wire numbers and must not be reordered.
type Category uint8

const (
	CategoryLegal Category = iota
	CategoryIntellectualProperty
	CategoryCreative
	CategoryAcademic
	CategoryBusiness
	CategoryIdentity
	CategoryRealEstate
	CategoryMedical
	CategoryGovernment
	CategoryOther
)

// categoryLabels is the single source of truth for valid categories.
var categoryLabels = map[Category]string{
	CategoryLegal:                "legal",
	CategoryIntellectualProperty: "intellectual_property",
	CategoryCreative:             "creative",
	CategoryAcademic:             "academic",
	CategoryBusiness:             "business",
	CategoryIdentity:             "identity",
	CategoryRealEstate:           "real_estate",
	CategoryMedical:              "medical",
	CategoryGovernment:           "government",
	CategoryOther:                "other",
}

// ParseCategory constructs a Category from its wire number.
//
// Errors: returns CodeInvalidInput when the value is outside the closed set.
func ParseCategory(n uint8) (Category, error) {
	c := Category(n)
	if !c.IsValid() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	return c, nil
}

// IsValid checks whether the category is one of the supported enum values.
func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the snake_case label used in logs and metrics.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return "unknown"
}

package registration

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Relationship values. An empty string means unselected.
const (
	RelationshipCurrentClient     = "current-client"
	RelationshipProspectiveClient = "prospective-client"
	RelationshipSponsor           = "sponsor"
	RelationshipVendor            = "vendor"
)

// ValidRelationships contains all selectable relationship values.
var ValidRelationships = []string{
	RelationshipCurrentClient,
	RelationshipProspectiveClient,
	RelationshipSponsor,
	RelationshipVendor,
}

// Package identifiers.
const (
	PackagePlatinum = "platinum"
	PackageGold     = "gold"
	PackageSilver   = "silver"
	PackageVendor   = "vendor"
)

// Package describes a purchasable sponsorship or vendor package.
type Package struct {
	ID          string
	Name        string
	Price       string
	Limit       string
	Description string
}

// SponsorPackages are the packages offered to sponsors, in display order.
var SponsorPackages = []Package{
	{ID: PackagePlatinum, Name: "Platinum Sponsor", Price: "$3,500", Limit: "Limit 1", Description: "Exclusive Welcome Reception + 45-min speaking opportunity"},
	{ID: PackageGold, Name: "Gold Sponsor", Price: "$2,000", Limit: "Limit 1", Description: "30-min speaking opportunity + exhibit table"},
	{ID: PackageSilver, Name: "Silver Sponsor", Price: "$1,500", Limit: "Limit 1", Description: "20-min Sponsor Spotlight + exhibit table"},
}

// VendorPackages are the packages offered to vendors.
var VendorPackages = []Package{
	{ID: PackageVendor, Name: "Vendor Package", Price: "$800", Limit: "Unlimited", Description: "6-foot exhibit table + 2 conference badges + visibility"},
}

// PackagesFor returns the packages selectable for a relationship (nil for clients).
func PackagesFor(relationship string) []Package {
	switch relationship {
	case RelationshipSponsor:
		return SponsorPackages
	case RelationshipVendor:
		return VendorPackages
	}
	return nil
}

// PackageByID looks up a package across all catalogues.
func PackageByID(id string) (Package, bool) {
	return lo.Find(append(slices.Clone(SponsorPackages), VendorPackages...), func(p Package) bool {
		return p.ID == id
	})
}

// IsSponsorOrVendor reports whether the relationship requires a package and contact block.
func IsSponsorOrVendor(relationship string) bool {
	return relationship == RelationshipSponsor || relationship == RelationshipVendor
}

// IsClient reports whether the relationship sees the client preferences block.
func IsClient(relationship string) bool {
	return relationship == RelationshipCurrentClient || relationship == RelationshipProspectiveClient
}

// requiresWebsiteCheck reports whether a non-empty website is validated for this relationship.
func requiresWebsiteCheck(relationship string) bool {
	return relationship == RelationshipProspectiveClient || IsSponsorOrVendor(relationship)
}

// Preference categories.
const (
	CategoryDietary = "dietaryRestrictions"
	CategoryADA     = "adaRequirements"
	CategoryTravel  = "travelSponsorship"
)

// Fixed option tags per category. "other" is not listed; it is carried by OtherChoice.
var (
	DietaryOptions = []string{"vegetarian", "vegan", "kosher", "dairy-free", "gluten-free"}
	ADAOptions     = []string{"visual-assistance", "hearing-assistance", "mobility-assistance"}
	TravelOptions  = []string{"hotel", "flight", "transportation"}
)

// TravelFlight is the travel tag that makes preferredAirport relevant.
const TravelFlight = "flight"

// OptionsFor returns the fixed tags of a preference category.
func OptionsFor(category string) ([]string, bool) {
	switch category {
	case CategoryDietary:
		return DietaryOptions, true
	case CategoryADA:
		return ADAOptions, true
	case CategoryTravel:
		return TravelOptions, true
	}
	return nil, false
}

const (
	otherTag       = "other"
	otherTagPrefix = "other:"
)

// Domain errors
var (
	ErrUnknownCategory = errors.New("unknown preference category")
	ErrUnknownOption   = errors.New("unknown preference option")
	ErrUnknownField    = errors.New("unknown form field")
	ErrInvalidValue    = errors.New("invalid value for field")
)

// OtherChoice is the free-form "other" entry of a preference category.
// INVARIANT: Detail != "" implies Selected.
type OtherChoice struct {
	Selected bool
	Detail   string
}

// Preference is a set of fixed option tags plus an optional "other" entry.
// INVARIANT: Options holds only known tags of the category, without duplicates.
type Preference struct {
	Options []string
	Other   OtherChoice
}

// Has reports whether a fixed option is selected.
func (p Preference) Has(tag string) bool {
	return slices.Contains(p.Options, tag)
}

// IsEmpty reports whether nothing is selected.
func (p Preference) IsEmpty() bool {
	return len(p.Options) == 0 && !p.Other.Selected
}

// WithOption returns a copy with tag selected or deselected.
func (p Preference) WithOption(tag string, on bool) Preference {
	opts := lo.Without(p.Options, tag)
	if on {
		opts = append(opts, tag)
	}
	p.Options = opts
	return p
}

// WithOther returns a copy with the "other" flag set. Deselecting clears the detail.
func (p Preference) WithOther(on bool) Preference {
	if !on {
		p.Other = OtherChoice{}
		return p
	}
	p.Other.Selected = true
	return p
}

// WithOtherDetail returns a copy with the detail text set (trimmed).
// A non-empty detail selects "other"; clearing the detail keeps the flag as it was.
func (p Preference) WithOtherDetail(detail string) Preference {
	detail = strings.TrimSpace(detail)
	p.Other.Detail = detail
	if detail != "" {
		p.Other.Selected = true
	}
	return p
}

// Tags encodes the preference into the stored tag set.
// POST: contains at most one of "other" or "other:<detail>"
func (p Preference) Tags() []string {
	tags := make([]string, 0, len(p.Options)+1)
	tags = append(tags, p.Options...)
	switch {
	case p.Other.Detail != "":
		tags = append(tags, otherTagPrefix+p.Other.Detail)
	case p.Other.Selected:
		tags = append(tags, otherTag)
	}
	return tags
}

// ParsePreference decodes a stored tag set. When both "other" and "other:<detail>" are present
// the detail wins; duplicate tags collapse.
func ParsePreference(tags []string) Preference {
	var p Preference
	for _, t := range tags {
		switch {
		case t == otherTag:
			p.Other.Selected = true
		case strings.HasPrefix(t, otherTagPrefix):
			p = p.WithOther(true).WithOtherDetail(strings.TrimPrefix(t, otherTagPrefix))
		case t != "" && !slices.Contains(p.Options, t):
			p.Options = append(p.Options, t)
		}
	}
	return p
}

// FormData is the mutable draft of a registration.
type FormData struct {
	Relationship    string `json:"relationship"`
	SelectedPackage string `json:"selectedPackage"`

	OrganizationName string `json:"organizationName"`
	Website          string `json:"website"`
	Street           string `json:"street"`
	Street2          string `json:"street2"`
	City             string `json:"city"`
	State            string `json:"state"`
	Zip              string `json:"zip"`
	Country          string `json:"country"`
	PhoneArea        string `json:"phoneArea"`
	PhoneNumber      string `json:"phoneNumber"`
	AltPhoneArea     string `json:"altPhoneArea"`
	AltPhoneNumber   string `json:"altPhoneNumber"`

	CompanyDescription string `json:"companyDescription"`
	PrimaryContact     string `json:"primaryContact"`
	ContactEmail       string `json:"contactEmail"`

	DietaryRestrictions Preference `json:"dietaryRestrictions"`
	ADARequirements     Preference `json:"adaRequirements"`
	TravelSponsorship   Preference `json:"travelSponsorship"`
	PreferredAirport    string     `json:"preferredAirport"`
	ConsentsAccepted    bool       `json:"consentsAccepted"`
}

// Text field names accepted by SetText.
const (
	FieldRelationship       = "relationship"
	FieldSelectedPackage    = "selectedPackage"
	FieldOrganizationName   = "organizationName"
	FieldWebsite            = "website"
	FieldStreet             = "street"
	FieldStreet2            = "street2"
	FieldCity               = "city"
	FieldState              = "state"
	FieldZip                = "zip"
	FieldCountry            = "country"
	FieldPhoneArea          = "phoneArea"
	FieldPhoneNumber        = "phoneNumber"
	FieldAltPhoneArea       = "altPhoneArea"
	FieldAltPhoneNumber     = "altPhoneNumber"
	FieldCompanyDescription = "companyDescription"
	FieldPrimaryContact     = "primaryContact"
	FieldContactEmail       = "contactEmail"
	FieldPreferredAirport   = "preferredAirport"
	FieldConsentsAccepted   = "consentsAccepted"
)

// Error-only field names that combine several inputs.
const (
	FieldPhone    = "phone"
	FieldAltPhone = "altPhone"
)

// textField returns a pointer to the named string field.
func (f *FormData) textField(name string) (*string, bool) {
	switch name {
	case FieldRelationship:
		return &f.Relationship, true
	case FieldSelectedPackage:
		return &f.SelectedPackage, true
	case FieldOrganizationName:
		return &f.OrganizationName, true
	case FieldWebsite:
		return &f.Website, true
	case FieldStreet:
		return &f.Street, true
	case FieldStreet2:
		return &f.Street2, true
	case FieldCity:
		return &f.City, true
	case FieldState:
		return &f.State, true
	case FieldZip:
		return &f.Zip, true
	case FieldCountry:
		return &f.Country, true
	case FieldPhoneArea:
		return &f.PhoneArea, true
	case FieldPhoneNumber:
		return &f.PhoneNumber, true
	case FieldAltPhoneArea:
		return &f.AltPhoneArea, true
	case FieldAltPhoneNumber:
		return &f.AltPhoneNumber, true
	case FieldCompanyDescription:
		return &f.CompanyDescription, true
	case FieldPrimaryContact:
		return &f.PrimaryContact, true
	case FieldContactEmail:
		return &f.ContactEmail, true
	case FieldPreferredAirport:
		return &f.PreferredAirport, true
	}
	return nil, false
}

// Set assigns a scalar field from its submitted string value.
// consentsAccepted accepts "true"/"on"/"1" as true and anything else as false.
// PRE: name is a text field or consentsAccepted
// POST: field updated, or ErrUnknownField
func (f *FormData) Set(name, value string) error {
	if name == FieldConsentsAccepted {
		f.ConsentsAccepted = value == "true" || value == "on" || value == "1"
		return nil
	}
	ptr, ok := f.textField(name)
	if !ok {
		return ErrUnknownField
	}
	*ptr = value
	return nil
}

// Get returns the submitted string form of a scalar field.
func (f FormData) Get(name string) (string, bool) {
	if name == FieldConsentsAccepted {
		if f.ConsentsAccepted {
			return "true", true
		}
		return "false", true
	}
	ptr, ok := f.textField(name)
	if !ok {
		return "", false
	}
	return *ptr, true
}

// Preference returns the named preference category.
func (f FormData) Preference(category string) (Preference, error) {
	switch category {
	case CategoryDietary:
		return f.DietaryRestrictions, nil
	case CategoryADA:
		return f.ADARequirements, nil
	case CategoryTravel:
		return f.TravelSponsorship, nil
	}
	return Preference{}, ErrUnknownCategory
}

// SetPreference replaces the named preference category.
// PRE: every fixed option in p is known to the category
// POST: category updated, or ErrUnknownCategory / ErrUnknownOption
func (f *FormData) SetPreference(category string, p Preference) error {
	opts, ok := OptionsFor(category)
	if !ok {
		return ErrUnknownCategory
	}
	for _, o := range p.Options {
		if !slices.Contains(opts, o) {
			return ErrUnknownOption
		}
	}
	switch category {
	case CategoryDietary:
		f.DietaryRestrictions = p
	case CategoryADA:
		f.ADARequirements = p
	case CategoryTravel:
		f.TravelSponsorship = p
	}
	return nil
}

// NeedsAirport reports whether preferredAirport is relevant (flight sponsorship requested).
func (f FormData) NeedsAirport() bool {
	return f.TravelSponsorship.Has(TravelFlight)
}

// Address is the nested address of a stored registration.
type Address struct {
	Street  string `json:"street"`
	Street2 string `json:"street2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Phone is the nested phone of a stored registration.
type Phone struct {
	Area   string `json:"area"`
	Number string `json:"number"`
}

// IsEmpty reports whether both parts are blank.
func (p Phone) IsEmpty() bool {
	return strings.TrimSpace(p.Area) == "" && strings.TrimSpace(p.Number) == ""
}

// Registration is the stored shape of a submitted form.
// INVARIANT: immutable once inserted; ID and CreatedAt are assigned on insert.
type Registration struct {
	ID                  string    `json:"id"`
	Relationship        string    `json:"relationship_with_credentia"`
	SelectedPackage     string    `json:"selected_package"`
	OrganizationName    string    `json:"organization_name"`
	Website             string    `json:"website"`
	Address             Address   `json:"address"`
	Phone               Phone     `json:"phone"`
	AlternatePhone      Phone     `json:"alternate_phone"`
	CompanyDescription  string    `json:"company_description"`
	PrimaryContact      string    `json:"primary_contact"`
	ContactEmail        string    `json:"contact_email"`
	DietaryRestrictions []string  `json:"dietary_restrictions"`
	ADARequirements     []string  `json:"ada_requirements"`
	TravelSponsorship   []string  `json:"travel_sponsorship"`
	PreferredAirport    string    `json:"preferred_airport"`
	ConsentsAccepted    bool      `json:"consents_accepted"`
	CreatedAt           time.Time `json:"created_at"`
}

// FromForm maps flat form data into the nested stored shape, stamped with createdAt.
// Fields irrelevant to the relationship are carried through unchanged; array fields are never nil.
// PRE: form has passed validation for every step
// POST: returns Registration without ID
func FromForm(form FormData, createdAt time.Time) Registration {
	return Registration{
		Relationship:     form.Relationship,
		SelectedPackage:  form.SelectedPackage,
		OrganizationName: form.OrganizationName,
		Website:          form.Website,
		Address: Address{
			Street:  form.Street,
			Street2: form.Street2,
			City:    form.City,
			State:   form.State,
			Zip:     form.Zip,
			Country: form.Country,
		},
		Phone:               Phone{Area: form.PhoneArea, Number: form.PhoneNumber},
		AlternatePhone:      Phone{Area: form.AltPhoneArea, Number: form.AltPhoneNumber},
		CompanyDescription:  form.CompanyDescription,
		PrimaryContact:      form.PrimaryContact,
		ContactEmail:        form.ContactEmail,
		DietaryRestrictions: form.DietaryRestrictions.Tags(),
		ADARequirements:     form.ADARequirements.Tags(),
		TravelSponsorship:   form.TravelSponsorship.Tags(),
		PreferredAirport:    form.PreferredAirport,
		ConsentsAccepted:    form.ConsentsAccepted,
		CreatedAt:           createdAt.UTC(),
	}
}

package registration

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError is a field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Wizard steps.
const (
	StepRelationship = 1
	StepOrganization = 2
	StepConsent      = 3
)

// MinDescriptionLength is the minimum trimmed length of a sponsor/vendor company description.
const MinDescriptionLength = 50

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	areaPattern  = regexp.MustCompile(`^\d{3}$`)
	numPattern   = regexp.MustCompile(`^\d{7}$`)
)

// Validate returns every error of one step in declaration order.
// Unknown steps yield no errors.
// PRE: none
// POST: form is not modified
func Validate(form FormData, step int) []ValidationError {
	switch step {
	case StepRelationship:
		return validateRelationship(form)
	case StepOrganization:
		return validateOrganization(form)
	case StepConsent:
		return validateConsent(form)
	}
	return []ValidationError{}
}

// ValidateField returns the first error of step that targets field.
func ValidateField(form FormData, step int, field string) (ValidationError, bool) {
	for _, e := range Validate(form, step) {
		if e.Field == field {
			return e, true
		}
	}
	return ValidationError{}, false
}

// ErrorField maps an input name to the field its errors are reported under.
// The phone inputs share a combined error.
func ErrorField(input string) string {
	switch input {
	case FieldPhoneArea, FieldPhoneNumber:
		return FieldPhone
	case FieldAltPhoneArea, FieldAltPhoneNumber:
		return FieldAltPhone
	}
	return input
}

// StepOf returns the step whose validator owns an error field (0 if none).
func StepOf(field string) int {
	switch field {
	case FieldRelationship, FieldSelectedPackage:
		return StepRelationship
	case FieldOrganizationName, FieldWebsite, FieldStreet, FieldCity, FieldState, FieldZip,
		FieldCountry, FieldPhone, FieldAltPhone, FieldPrimaryContact, FieldContactEmail,
		FieldCompanyDescription:
		return StepOrganization
	case FieldConsentsAccepted:
		return StepConsent
	}
	return 0
}

func validateRelationship(form FormData) []ValidationError {
	errs := []ValidationError{}
	if form.Relationship == "" {
		errs = append(errs, ValidationError{FieldRelationship, "Please select your relationship with Credentia"})
	}
	if IsSponsorOrVendor(form.Relationship) && form.SelectedPackage == "" {
		errs = append(errs, ValidationError{FieldSelectedPackage, "Please select a package"})
	}
	return errs
}

func validateOrganization(form FormData) []ValidationError {
	errs := []ValidationError{}
	add := func(field, msg string) {
		errs = append(errs, ValidationError{field, msg})
	}

	if msg, bad := checkLength(form.OrganizationName, 2, 100,
		"Organization name is required",
		"Organization name must be between 2 and 100 characters"); bad {
		add(FieldOrganizationName, msg)
	}

	if requiresWebsiteCheck(form.Relationship) && strings.TrimSpace(form.Website) != "" && !ValidURL(form.Website) {
		add(FieldWebsite, "Please enter a valid website URL (e.g., https://example.com)")
	}

	if msg, bad := checkLength(form.Street, 5, 200,
		"Street address is required",
		"Street address must be between 5 and 200 characters"); bad {
		add(FieldStreet, msg)
	}
	if msg, bad := checkLength(form.City, 2, 50,
		"City is required",
		"City must be between 2 and 50 characters"); bad {
		add(FieldCity, msg)
	}
	if msg, bad := checkLength(form.State, 2, 50,
		"State is required",
		"State must be between 2 and 50 characters"); bad {
		add(FieldState, msg)
	}

	if strings.TrimSpace(form.Zip) != "" && !ValidZip(form.Zip) {
		add(FieldZip, "Please enter a valid ZIP code (e.g., 12345 or 12345-6789)")
	}

	if strings.TrimSpace(form.Country) == "" {
		add(FieldCountry, "Country is required")
	}

	switch {
	case strings.TrimSpace(form.PhoneArea) == "" || strings.TrimSpace(form.PhoneNumber) == "":
		add(FieldPhone, "Phone number is required")
	case !ValidPhone(form.PhoneArea, form.PhoneNumber):
		add(FieldPhone, "Please enter a valid phone number (Area: 3 digits, Number: 7 digits)")
	}

	alt := Phone{Area: form.AltPhoneArea, Number: form.AltPhoneNumber}
	if !alt.IsEmpty() && !ValidPhone(alt.Area, alt.Number) {
		add(FieldAltPhone, "Please enter a valid alternate phone number or leave both fields empty")
	}

	if !IsSponsorOrVendor(form.Relationship) {
		return errs
	}

	if strings.TrimSpace(form.PrimaryContact) == "" {
		add(FieldPrimaryContact, "Primary contact name is required")
	}

	switch {
	case strings.TrimSpace(form.ContactEmail) == "":
		add(FieldContactEmail, "Contact email is required")
	case !ValidEmail(form.ContactEmail):
		add(FieldContactEmail, "Please enter a valid email address")
	}

	desc := strings.TrimSpace(form.CompanyDescription)
	switch {
	case desc == "":
		add(FieldCompanyDescription, "Company description is required")
	case utf8.RuneCountInString(desc) < MinDescriptionLength:
		add(FieldCompanyDescription, "Company description must be at least 50 characters")
	}
	return errs
}

func validateConsent(form FormData) []ValidationError {
	if form.ConsentsAccepted {
		return []ValidationError{}
	}
	return []ValidationError{{FieldConsentsAccepted, "You must accept the terms and conditions to proceed"}}
}

// checkLength returns the required or range message when the trimmed value is out of [lo, hi].
func checkLength(value string, lo, hi int, requiredMsg, rangeMsg string) (string, bool) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0:
		return requiredMsg, true
	case n < lo || n > hi:
		return rangeMsg, true
	}
	return "", false
}

// ValidEmail reports whether s has a local@domain.tld shape.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidURL reports whether s is an absolute http or https URL. Blank is valid.
func ValidURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidPhone reports whether area is 3 digits and number is 7 digits.
func ValidPhone(area, number string) bool {
	return areaPattern.MatchString(area) && numPattern.MatchString(number)
}

// ValidZip reports whether s is a 5 or 5+4 digit US ZIP code.
func ValidZip(s string) bool {
	return zipPattern.MatchString(s)
}

package email

import (
	"errors"
	"fmt"
	"strings"

	"confreg/internal/domain/registration"
)

// Domain errors
var (
	ErrEmptySubject = errors.New("email subject is required")
	ErrEmptyBody    = errors.New("email body is required")
	ErrNoRecipients = errors.New("at least one recipient is required")
	ErrNotEligible  = errors.New("registration does not receive a confirmation")
)

// Message is a Markdown email addressed to one or more recipients.
type Message struct {
	To       []string
	Subject  string
	Markdown string
}

// Validate checks that the Message has valid data.
// PRE: Message struct is populated
// POST: Returns nil if valid, error otherwise
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(m.Subject) == "" {
		return ErrEmptySubject
	}
	if strings.TrimSpace(m.Markdown) == "" {
		return ErrEmptyBody
	}
	return nil
}

// Eligible reports whether r should receive a confirmation email.
// Only sponsor and vendor registrations carry a contact address.
func Eligible(r registration.Registration) bool {
	return registration.IsSponsorOrVendor(r.Relationship) && strings.TrimSpace(r.ContactEmail) != ""
}

// Confirmation builds the acknowledgement sent after a sponsor or vendor registers.
// PRE: Eligible(r)
// POST: returned Message passes Validate
func Confirmation(r registration.Registration) (Message, error) {
	if !Eligible(r) {
		return Message{}, ErrNotEligible
	}

	var b strings.Builder
	contact := strings.TrimSpace(r.PrimaryContact)
	if contact == "" {
		contact = r.OrganizationName
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", escape(contact))
	fmt.Fprintf(&b, "Thank you for registering **%s** as a %s for the conference.\n\n", escape(r.OrganizationName), r.Relationship)
	if pkg, ok := registration.PackageByID(r.SelectedPackage); ok {
		fmt.Fprintf(&b, "Selected package: **%s** (%s)\n%s\n\n", pkg.Name, pkg.Price, pkg.Description)
	}
	fmt.Fprintf(&b, "Our team will contact you within 2 business days to finalize your %s agreement and coordinate logistics.\n", r.Relationship)

	return Message{
		To:       []string{strings.TrimSpace(r.ContactEmail)},
		Subject:  "Your conference registration was received",
		Markdown: b.String(),
	}, nil
}

var mdEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;")

// escape keeps user-entered text from being read as Markdown.
func escape(s string) string {
	return mdEscaper.Replace(s)
}

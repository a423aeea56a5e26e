package export

import (
	"errors"
	"strings"
	"time"

	"confreg/internal/domain/registration"

	"github.com/samber/lo"
)

// SheetName is the worksheet holding the exported rows.
const SheetName = "Registrations"

// ContentType is the MIME type of the exported workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrNoData is returned when there is nothing to export.
var ErrNoData = errors.New("no data to export")

// Columns is the fixed header row of the export.
var Columns = []string{
	"Registration Date",
	"Relationship with Credentia",
	"Organization Name",
	"Website",
	"Street Address",
	"Street Address 2",
	"City",
	"State",
	"Zip Code",
	"Country",
	"Phone",
	"Alternate Phone",
	"Dietary Restrictions",
	"ADA Requirements",
	"Travel Sponsorship",
	"Preferred Airport",
	"Consents Accepted",
}

// Table is a header row plus data rows, every row the same width.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// Build flattens registrations into export rows in the given order.
// PRE: regs is the filtered view
// POST: ErrNoData when regs is empty; otherwise one row per registration
func Build(regs []registration.Registration, loc *time.Location) (Table, error) {
	if len(regs) == 0 {
		return Table{}, ErrNoData
	}
	if loc == nil {
		loc = time.UTC
	}
	rows := lo.Map(regs, func(r registration.Registration, _ int) []string {
		return Row(r, loc)
	})
	return Table{Sheet: SheetName, Header: append([]string(nil), Columns...), Rows: rows}, nil
}

// Row renders one registration in column order.
func Row(r registration.Registration, loc *time.Location) []string {
	return []string{
		r.CreatedAt.In(loc).Format("1/2/2006"),
		r.Relationship,
		r.OrganizationName,
		r.Website,
		r.Address.Street,
		r.Address.Street2,
		r.Address.City,
		r.Address.State,
		r.Address.Zip,
		r.Address.Country,
		phone(r.Phone),
		alternatePhone(r.AlternatePhone),
		strings.Join(r.DietaryRestrictions, ", "),
		strings.Join(r.ADARequirements, ", "),
		strings.Join(r.TravelSponsorship, ", "),
		r.PreferredAirport,
		yesNo(r.ConsentsAccepted),
	}
}

// FileName is the download name for an export made at now.
func FileName(now time.Time) string {
	return "conference-registrations-" + now.UTC().Format(time.DateOnly) + ".xlsx"
}

func phone(p registration.Phone) string {
	return p.Area + "-" + p.Number
}

func alternatePhone(p registration.Phone) string {
	if p.IsEmpty() {
		return ""
	}
	return phone(p)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

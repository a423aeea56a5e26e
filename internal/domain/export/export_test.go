package export

import (
	"testing"
	"time"

	"confreg/internal/domain/registration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() registration.Registration {
	return registration.Registration{
		Relationship:     registration.RelationshipProspectiveClient,
		OrganizationName: "Blue Ridge Testing",
		Website:          "https://blueridge.example.com",
		Address: registration.Address{
			Street: "9 Elm Court", City: "Asheville", State: "NC", Zip: "28801", Country: "United States",
		},
		Phone:               registration.Phone{Area: "828", Number: "5550111"},
		DietaryRestrictions: []string{"vegan", "other:no soy"},
		ADARequirements:     []string{},
		TravelSponsorship:   []string{"hotel", "flight"},
		PreferredAirport:    "AVL",
		ConsentsAccepted:    true,
		CreatedAt:           time.Date(2025, 2, 3, 16, 30, 0, 0, time.UTC),
	}
}

func TestBuild_RowFormat(t *testing.T) {
	table, err := Build([]registration.Registration{sample()}, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, SheetName, table.Sheet)
	assert.Equal(t, Columns, table.Header)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{
		"2/3/2025",
		"prospective-client",
		"Blue Ridge Testing",
		"https://blueridge.example.com",
		"9 Elm Court",
		"",
		"Asheville",
		"NC",
		"28801",
		"United States",
		"828-5550111",
		"",
		"vegan, other:no soy",
		"",
		"hotel, flight",
		"AVL",
		"Yes",
	}, table.Rows[0])
}

func TestBuild_AlternatePhoneAndConsent(t *testing.T) {
	r := sample()
	r.AlternatePhone = registration.Phone{Area: "704", Number: "5550199"}
	r.ConsentsAccepted = false

	row := Row(r, time.UTC)
	assert.Equal(t, "704-5550199", row[11])
	assert.Equal(t, "No", row[16])
	assert.Len(t, row, len(Columns))
}

func TestBuild_DateUsesLocation(t *testing.T) {
	r := sample()
	r.CreatedAt = time.Date(2025, 2, 3, 2, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	assert.Equal(t, "2/2/2025", Row(r, ny)[0])
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build(nil, time.UTC)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "conference-registrations-2025-11-07.xlsx", FileName(time.Date(2025, 11, 7, 23, 0, 0, 0, time.UTC)))
}

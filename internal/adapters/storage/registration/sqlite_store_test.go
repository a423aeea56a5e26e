package registration_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"confreg/internal/adapters/storage"
	store "confreg/internal/adapters/storage/registration"
	domain "confreg/internal/domain/registration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.MigrateDB(db))
	return store.NewSQLiteStore(db)
}

func sample(org string, created time.Time) domain.Registration {
	return domain.Registration{
		Relationship:     domain.RelationshipSponsor,
		SelectedPackage:  domain.PackageSilver,
		OrganizationName: org,
		Website:          "https://example.org",
		Address: domain.Address{
			Street: "42 Hill Road", Street2: "Unit 9", City: "Denver", State: "CO", Zip: "80014", Country: "US",
		},
		Phone:               domain.Phone{Area: "303", Number: "5550199"},
		CompanyDescription:  "We build assessment tooling for certification bodies nationwide.",
		PrimaryContact:      "Sam Ortiz",
		ContactEmail:        "sam@example.org",
		DietaryRestrictions: []string{"vegan", "other:no nuts"},
		ADARequirements:     []string{},
		TravelSponsorship:   []string{"flight"},
		PreferredAirport:    "DEN",
		ConsentsAccepted:    true,
		CreatedAt:           created,
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	created := time.Date(2025, 9, 2, 15, 4, 5, 123456789, time.UTC)

	saved, err := s.Insert(ctx, sample("Acme", created))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := s.GetByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, []string{"vegan", "other:no nuts"}, got.DietaryRestrictions)
	assert.Equal(t, []string{}, got.ADARequirements)
}

func TestSQLiteStore_InsertNilTags(t *testing.T) {
	s := newStore(t)
	r := sample("Nil Tags", time.Now())
	r.TravelSponsorship = nil

	saved, err := s.Insert(context.Background(), r)
	require.NoError(t, err)
	got, err := s.GetByID(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.TravelSponsorship)
	assert.Empty(t, got.TravelSponsorship)
}

func TestSQLiteStore_InsertRequiresCreatedAt(t *testing.T) {
	s := newStore(t)
	_, err := s.Insert(context.Background(), sample("No Time", time.Time{}))
	assert.Error(t, err)
}

func TestSQLiteStore_ListOrdersByCreatedDesc(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, org := range []string{"First", "Second", "Third"} {
		_, err := s.Insert(ctx, sample(org, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	// Same timestamp as "Third" but inserted later.
	_, err := s.Insert(ctx, sample("Fourth", base.Add(2*time.Hour)))
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"Fourth", "Third", "Second", "First"},
		[]string{all[0].OrganizationName, all[1].OrganizationName, all[2].OrganizationName, all[3].OrganizationName})
}

func TestSQLiteStore_ListEmpty(t *testing.T) {
	all, err := newStore(t).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestSQLiteStore_GetByIDNotFound(t *testing.T) {
	_, err := newStore(t).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteStore_InsertFailureKinds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	created := time.Date(2025, 9, 2, 15, 4, 5, 0, time.UTC)

	first, err := s.Insert(ctx, sample("Acme", created))
	require.NoError(t, err)

	dup := sample("Acme again", created)
	dup.ID = first.ID
	_, err = s.Insert(ctx, dup)
	assert.ErrorIs(t, err, store.ErrRejected, "duplicate id")

	_, err = s.Insert(ctx, sample("No date", time.Time{}))
	assert.ErrorIs(t, err, store.ErrRejected, "missing created_at")

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Insert(canceled, sample("Late", created))
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

package registration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"confreg/internal/adapters/storage"
	domain "confreg/internal/domain/registration"

	"github.com/google/uuid"
)

// dateLayout is fixed-width so created_at sorts lexically.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

var (
	// ErrNotFound is returned when no registration has the requested id.
	ErrNotFound = errors.New("registration not found")
	// ErrRejected marks a row the database refused, such as a constraint violation.
	ErrRejected = errors.New("registration rejected")
	// ErrUnavailable marks a write that failed because the database could not be reached in time.
	ErrUnavailable = errors.New("registration store unavailable")
)

// unavailableMarkers are SQLite error texts for a busy, locked, full or unreadable database.
var unavailableMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
	"database or disk is full",
	"disk I/O error",
	"unable to open database",
	"attempt to write a readonly database",
}

// classifyWriteError tags err with ErrRejected or ErrUnavailable when it can tell the kind.
func classifyWriteError(err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case strings.Contains(msg, "constraint failed"):
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	for _, marker := range unavailableMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return err
}

const selectColumns = `id, relationship_with_credentia, selected_package, organization_name, website,
	street, street2, city, state, zip, country, phone_area, phone_number, alt_phone_area, alt_phone_number,
	company_description, primary_contact, contact_email, dietary_restrictions, ada_requirements,
	travel_sponsorship, preferred_airport, consents_accepted, created_at`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new registration store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert stores one registration, assigning a UUID when r.ID is empty.
// PRE: r.CreatedAt is set
// POST: row persisted; returned value carries the ID and a UTC CreatedAt
func (s *SQLiteStore) Insert(ctx context.Context, r domain.Registration) (domain.Registration, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		return domain.Registration{}, fmt.Errorf("%w: created_at is required", ErrRejected)
	}
	r.CreatedAt = r.CreatedAt.UTC()

	diet, err := encodeTags(r.DietaryRestrictions)
	if err != nil {
		return domain.Registration{}, err
	}
	ada, err := encodeTags(r.ADARequirements)
	if err != nil {
		return domain.Registration{}, err
	}
	travel, err := encodeTags(r.TravelSponsorship)
	if err != nil {
		return domain.Registration{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO registration (`+selectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Relationship, r.SelectedPackage, r.OrganizationName, r.Website,
		r.Address.Street, r.Address.Street2, r.Address.City, r.Address.State, r.Address.Zip, r.Address.Country,
		r.Phone.Area, r.Phone.Number, r.AlternatePhone.Area, r.AlternatePhone.Number,
		r.CompanyDescription, r.PrimaryContact, r.ContactEmail, diet, ada, travel,
		r.PreferredAirport, r.ConsentsAccepted, r.CreatedAt.Format(dateLayout))
	if err != nil {
		return domain.Registration{}, fmt.Errorf("insert registration: %w", classifyWriteError(err))
	}
	return r, nil
}

// List returns every registration ordered by created_at descending.
// Rows with equal timestamps keep reverse insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM registration ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	out := []domain.Registration{}
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetByID retrieves one registration.
// PRE: id is non-empty
// POST: returns the row or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM registration WHERE id = ?`, id)
	r, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(sc scanner) (domain.Registration, error) {
	var r domain.Registration
	var diet, ada, travel, created string
	err := sc.Scan(
		&r.ID, &r.Relationship, &r.SelectedPackage, &r.OrganizationName, &r.Website,
		&r.Address.Street, &r.Address.Street2, &r.Address.City, &r.Address.State, &r.Address.Zip, &r.Address.Country,
		&r.Phone.Area, &r.Phone.Number, &r.AlternatePhone.Area, &r.AlternatePhone.Number,
		&r.CompanyDescription, &r.PrimaryContact, &r.ContactEmail, &diet, &ada, &travel,
		&r.PreferredAirport, &r.ConsentsAccepted, &created,
	)
	if err != nil {
		return domain.Registration{}, err
	}
	if r.DietaryRestrictions, err = decodeTags(diet); err != nil {
		return domain.Registration{}, err
	}
	if r.ADARequirements, err = decodeTags(ada); err != nil {
		return domain.Registration{}, err
	}
	if r.TravelSponsorship, err = decodeTags(travel); err != nil {
		return domain.Registration{}, err
	}
	r.CreatedAt, err = time.Parse(dateLayout, created)
	if err != nil {
		return domain.Registration{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return r, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(s string) ([]string, error) {
	tags := []string{}
	if s == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

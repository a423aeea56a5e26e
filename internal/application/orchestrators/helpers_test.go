package orchestrators

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"confreg/internal/adapters/storage/kv"
	"confreg/internal/domain/audit"
	"confreg/internal/domain/registration"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

func fixedID() string { return "test-id-001" }

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newLocal(t *testing.T) kv.Local {
	t.Helper()
	return kv.Bind(kv.NewMemoryStore(time.Hour), "client-1")
}

// recordingAuditor captures events synchronously.
type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Record(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAuditor) Events() []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Event(nil), a.events...)
}

// mockRegistrationStore implements the registration store interfaces.
type mockRegistrationStore struct {
	rows      []registration.Registration
	insertErr error
	listErr   error
	inserts   int
	lists     int
	panicMsg  string
}

func (m *mockRegistrationStore) Insert(_ context.Context, r registration.Registration) (registration.Registration, error) {
	m.inserts++
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.insertErr != nil {
		return registration.Registration{}, m.insertErr
	}
	if r.ID == "" {
		r.ID = fixedID()
	}
	m.rows = append([]registration.Registration{r}, m.rows...)
	return r, nil
}

func (m *mockRegistrationStore) List(_ context.Context) ([]registration.Registration, error) {
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]registration.Registration{}, m.rows...), nil
}

// failingLocal is a kv.Local whose every call fails.
type failingLocal struct{}

var errLocal = errors.New("storage offline")

func (failingLocal) Get(context.Context, string) (string, bool, error) { return "", false, errLocal }
func (failingLocal) Set(context.Context, string, string) error        { return errLocal }
func (failingLocal) Remove(context.Context, ...string) error           { return errLocal }

func sponsorForm() registration.FormData {
	return registration.FormData{
		Relationship:       registration.RelationshipSponsor,
		SelectedPackage:    registration.PackagePlatinum,
		OrganizationName:   "Northwind Assessments",
		Website:            "https://northwind.example.com",
		Street:             "12 Harbor Way",
		Street2:            "Suite 4",
		City:               "Portland",
		State:              "OR",
		Zip:                "97201-1234",
		Country:            "United States",
		PhoneArea:          "503",
		PhoneNumber:        "5550142",
		AltPhoneArea:       "971",
		AltPhoneNumber:     "5550143",
		CompanyDescription: strings.Repeat("Certification exam delivery. ", 3),
		PrimaryContact:     "Riley Chen",
		ContactEmail:       "riley@northwind.example.com",
		ConsentsAccepted:   true,
	}
}

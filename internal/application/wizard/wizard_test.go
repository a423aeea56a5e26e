package wizard

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"confreg/internal/adapters/storage/kv"
	"confreg/internal/application/debounce"
	"confreg/internal/application/orchestrators"
	"confreg/internal/domain/registration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	local  kv.Local
	clock  *debounce.VirtualClock
	calls  int
	result orchestrators.SubmitResult
	forms  []registration.FormData
	ctl    *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		local:  kv.Bind(kv.NewMemoryStore(time.Hour), "client-1"),
		clock:  debounce.NewVirtualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		result: orchestrators.SubmitResult{Success: true, Message: orchestrators.MsgSubmitted, Record: registration.Registration{ID: "r1"}},
	}
	f.ctl = New(Deps{
		Local:     f.local,
		Scheduler: f.clock,
		Submit: func(_ context.Context, form registration.FormData) orchestrators.SubmitResult {
			f.calls++
			f.forms = append(f.forms, form)
			return f.result
		},
	})
	f.ctl.Open(context.Background())
	return f
}

func (f *fixture) edit(t *testing.T, pairs ...string) {
	t.Helper()
	for i := 0; i+1 < len(pairs); i += 2 {
		require.NoError(t, f.ctl.Edit(context.Background(), pairs[i], pairs[i+1]))
	}
}

func (f *fixture) draft(t *testing.T) (registration.Draft, bool) {
	t.Helper()
	raw, ok, err := f.local.Get(context.Background(), registration.DraftKey)
	require.NoError(t, err)
	if !ok {
		return registration.Draft{}, false
	}
	d, err := registration.DecodeDraft([]byte(raw))
	require.NoError(t, err)
	return d, true
}

func (f *fixture) next(t *testing.T) bool {
	t.Helper()
	moved, err := f.ctl.Next(context.Background())
	require.NoError(t, err)
	return moved
}

func (f *fixture) fillOrganization(t *testing.T) {
	t.Helper()
	f.edit(t,
		registration.FieldOrganizationName, "Acme Testing",
		registration.FieldStreet, "100 Main Street",
		registration.FieldCity, "Austin",
		registration.FieldState, "TX",
		registration.FieldCountry, "United States",
		registration.FieldPhoneArea, "512",
		registration.FieldPhoneNumber, "5550100",
	)
}

func fieldsOf(errs []registration.ValidationError) []string {
	out := []string{}
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

// TestController_ClientHappyPath walks a client through every step to submission.
func TestController_ClientHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.edit(t, registration.FieldRelationship, registration.RelationshipCurrentClient)
	assert.True(t, f.next(t))
	assert.Equal(t, StateStep2, f.ctl.Snapshot().State)

	f.fillOrganization(t)
	assert.True(t, f.next(t))
	assert.Equal(t, StateStep3, f.ctl.Snapshot().State)

	require.NoError(t, f.ctl.TogglePreference(ctx, registration.CategoryDietary, "vegan", true))
	require.NoError(t, f.ctl.SetOtherDetail(ctx, registration.CategoryDietary, "no shellfish"))
	f.edit(t, registration.FieldConsentsAccepted, "on")

	d, ok := f.draft(t)
	require.True(t, ok)
	assert.Equal(t, registration.StepConsent, d.Step)
	assert.Equal(t, []string{"vegan", "other:no shellfish"}, d.Data.DietaryRestrictions.Tags())

	res, err := f.ctl.Submit(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)

	view := f.ctl.Snapshot()
	assert.Equal(t, StateSubmitted, view.State)
	assert.True(t, view.Succeeded())
	assert.Equal(t, orchestrators.MsgSubmitted, view.Banner)
	assert.Equal(t, "r1", view.Record.ID)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, "Acme Testing", f.forms[0].OrganizationName)

	_, ok = f.draft(t)
	assert.False(t, ok, "successful submission clears the draft")

	_, err = f.ctl.Submit(ctx)
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.ErrorIs(t, f.ctl.Edit(ctx, registration.FieldCity, "Dallas"), ErrNotEditable)
	assert.Equal(t, 1, f.calls)
}

// TestController_NextBlocksOnErrors verifies errors surface and focus goes to the first one.
func TestController_NextBlocksOnErrors(t *testing.T) {
	f := newFixture(t)
	f.edit(t, registration.FieldRelationship, registration.RelationshipProspectiveClient)
	require.True(t, f.next(t))

	assert.False(t, f.next(t))
	view := f.ctl.Snapshot()
	assert.Equal(t, StateStep2, view.State)
	require.NotEmpty(t, view.Errors)
	assert.Equal(t, registration.FieldOrganizationName, view.Focus)
	assert.Equal(t, view.Errors[0].Field, view.Focus)
	assert.Contains(t, fieldsOf(view.Errors), registration.FieldPhone)

	require.NoError(t, f.ctl.Back(context.Background()))
	view = f.ctl.Snapshot()
	assert.Equal(t, StateStep1, view.State)
	assert.Empty(t, view.Errors, "back clears errors")
}

// TestController_SponsorPackageReveal verifies the first Next only reveals the packages.
func TestController_SponsorPackageReveal(t *testing.T) {
	f := newFixture(t)
	f.edit(t, registration.FieldRelationship, registration.RelationshipSponsor)

	assert.True(t, f.next(t))
	view := f.ctl.Snapshot()
	assert.Equal(t, StateStep1, view.State)
	assert.True(t, view.ShowPackage)
	assert.Len(t, view.Packages, 3)

	assert.False(t, f.next(t), "package is still required")
	assert.Equal(t, []string{registration.FieldSelectedPackage}, fieldsOf(f.ctl.Snapshot().Errors))

	err := f.ctl.Edit(context.Background(), registration.FieldSelectedPackage, registration.PackageVendor)
	assert.ErrorIs(t, err, registration.ErrInvalidValue)

	f.edit(t, registration.FieldSelectedPackage, registration.PackageGold)
	assert.Empty(t, f.ctl.Snapshot().Errors, "editing clears the field error")
	assert.True(t, f.next(t))
	assert.Equal(t, StateStep2, f.ctl.Snapshot().State)
}

// TestController_RelationshipChangeResetsPackage verifies package and detail are reset.
func TestController_RelationshipChangeResetsPackage(t *testing.T) {
	f := newFixture(t)
	f.edit(t, registration.FieldRelationship, registration.RelationshipSponsor)
	f.next(t)
	f.edit(t, registration.FieldSelectedPackage, registration.PackageSilver)

	f.edit(t, registration.FieldRelationship, registration.RelationshipVendor)
	view := f.ctl.Snapshot()
	assert.Empty(t, view.Form.SelectedPackage)
	assert.False(t, view.ShowPackage)

	d, _ := f.draft(t)
	assert.Empty(t, d.Data.SelectedPackage)

	err := f.ctl.Edit(context.Background(), registration.FieldRelationship, "partner")
	assert.ErrorIs(t, err, registration.ErrInvalidValue)
}

// TestController_DebouncedValidation verifies touched fields re-validate after the idle window.
func TestController_DebouncedValidation(t *testing.T) {
	f := newFixture(t)
	f.edit(t, registration.FieldRelationship, registration.RelationshipCurrentClient)
	f.next(t)

	// Untouched fields are never scheduled.
	f.edit(t, registration.FieldZip, "1")
	assert.Zero(t, f.clock.Pending())

	require.NoError(t, f.ctl.Blur(registration.FieldZip))
	assert.Equal(t, []string{registration.FieldZip}, fieldsOf(f.ctl.Snapshot().Errors))

	f.edit(t, registration.FieldZip, "12")
	assert.Empty(t, f.ctl.Snapshot().Errors, "typing clears the error")
	f.clock.Advance(200 * time.Millisecond)
	f.edit(t, registration.FieldZip, "123")
	f.clock.Advance(200 * time.Millisecond)
	assert.Empty(t, f.ctl.Snapshot().Errors, "newer edit restarted the window")
	assert.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{registration.FieldZip}, fieldsOf(f.ctl.Snapshot().Errors))

	f.edit(t, registration.FieldZip, "12345")
	f.clock.Advance(debounce.DefaultDelay)
	assert.Empty(t, f.ctl.Snapshot().Errors)
}

// TestController_PhoneInputsShareError verifies phone inputs report under the combined field.
func TestController_PhoneInputsShareError(t *testing.T) {
	f := newFixture(t)
	f.edit(t, registration.FieldRelationship, registration.RelationshipCurrentClient)
	f.next(t)

	f.edit(t, registration.FieldPhoneArea, "51")
	require.NoError(t, f.ctl.Blur(registration.FieldPhoneArea))
	view := f.ctl.Snapshot()
	assert.Equal(t, []string{registration.FieldPhone}, fieldsOf(view.Errors))
	assert.Contains(t, view.Touched, registration.FieldPhone)

	f.edit(t, registration.FieldPhoneArea, "512", registration.FieldPhoneNumber, "5550100")
	f.clock.Advance(debounce.DefaultDelay)
	assert.Empty(t, f.ctl.Snapshot().Errors)
}

// TestController_SubmitFailureKeepsForm verifies a rejected submission stays editable.
func TestController_SubmitFailureKeepsForm(t *testing.T) {
	f := newFixture(t)
	f.result = orchestrators.SubmitResult{Message: orchestrators.MsgSubmitFailed, Err: orchestrators.ErrSubmitFailed}
	ctx := context.Background()

	f.edit(t, registration.FieldRelationship, registration.RelationshipCurrentClient)
	f.next(t)
	f.fillOrganization(t)
	f.next(t)

	_, err := f.ctl.Submit(ctx)
	assert.ErrorIs(t, err, ErrInvalidForm, "consent missing")
	assert.Equal(t, registration.FieldConsentsAccepted, f.ctl.Snapshot().Focus)
	assert.Zero(t, f.calls)

	f.edit(t, registration.FieldConsentsAccepted, "true")
	res, err := f.ctl.Submit(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)

	view := f.ctl.Snapshot()
	assert.Equal(t, StateSubmitFailed, view.State)
	assert.Equal(t, orchestrators.MsgSubmitFailed, view.Banner)
	assert.Equal(t, "Acme Testing", view.Form.OrganizationName)
	_, ok := f.draft(t)
	assert.True(t, ok, "draft survives a failed submission")

	f.result = orchestrators.SubmitResult{Success: true, Message: orchestrators.MsgSubmitted}
	res, err = f.ctl.Submit(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, f.calls)
}

// TestController_SubmitOnlyOnFinalStep verifies guard errors.
func TestController_SubmitOnlyOnFinalStep(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctl.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotFinalStep)

	closed := New(Deps{Local: f.local, Scheduler: f.clock})
	_, err = closed.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, closed.Edit(context.Background(), registration.FieldCity, "x"), ErrNotOpen)
}

// TestController_ConcurrentSubmit verifies only one submission is ever in flight.
func TestController_ConcurrentSubmit(t *testing.T) {
	local := kv.Bind(kv.NewMemoryStore(time.Hour), "client-2")
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	calls := 0

	ctl := New(Deps{
		Local:     local,
		Scheduler: debounce.NewVirtualClock(time.Now()),
		Submit: func(context.Context, registration.FormData) orchestrators.SubmitResult {
			mu.Lock()
			calls++
			mu.Unlock()
			started <- struct{}{}
			<-release
			return orchestrators.SubmitResult{Success: true}
		},
	})
	ctx := context.Background()
	ctl.Open(ctx)
	require.NoError(t, ctl.Edit(ctx, registration.FieldRelationship, registration.RelationshipCurrentClient))
	_, _ = ctl.Next(ctx)
	for _, pair := range [][2]string{
		{registration.FieldOrganizationName, "Acme Testing"}, {registration.FieldStreet, "100 Main Street"},
		{registration.FieldCity, "Austin"}, {registration.FieldState, "TX"}, {registration.FieldCountry, "US"},
		{registration.FieldPhoneArea, "512"}, {registration.FieldPhoneNumber, "5550100"},
	} {
		require.NoError(t, ctl.Edit(ctx, pair[0], pair[1]))
	}
	_, _ = ctl.Next(ctx)
	require.NoError(t, ctl.Edit(ctx, registration.FieldConsentsAccepted, "true"))

	done := make(chan error, 1)
	go func() {
		_, err := ctl.Submit(ctx)
		done <- err
	}()
	<-started

	assert.Equal(t, StateSubmitting, ctl.Snapshot().State)
	_, err := ctl.Submit(ctx)
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(release)
	require.NoError(t, <-done)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

// TestController_OpenRestoresDraft verifies a saved draft is resumed with the detail collapsed.
func TestController_OpenRestoresDraft(t *testing.T) {
	f := newFixture(t)
	f.edit(t, registration.FieldRelationship, registration.RelationshipVendor)
	f.next(t)
	f.edit(t, registration.FieldSelectedPackage, registration.PackageVendor)
	f.next(t)
	f.edit(t, registration.FieldOrganizationName, "Booth Co")
	f.ctl.Close()

	again := New(Deps{Local: f.local, Scheduler: f.clock})
	again.Open(context.Background())
	view := again.Snapshot()
	assert.Equal(t, StateStep2, view.State)
	assert.Equal(t, "Booth Co", view.Form.OrganizationName)
	assert.Equal(t, registration.PackageVendor, view.Form.SelectedPackage)
	assert.False(t, view.ShowPackage)
}

// TestController_OpenRestoresMultilineDetail verifies a detail spanning lines survives reopen.
func TestController_OpenRestoresMultilineDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.edit(t, registration.FieldRelationship, registration.RelationshipCurrentClient)
	f.next(t)
	f.fillOrganization(t)
	f.next(t)
	require.NoError(t, f.ctl.SetOtherDetail(ctx, registration.CategoryDietary, "no nuts\nno shellfish"))
	require.NoError(t, f.ctl.SetOtherDetail(ctx, registration.CategoryADA, "step-free\r\n\tentrance"))
	f.ctl.Close()

	again := New(Deps{Local: f.local, Scheduler: f.clock})
	again.Open(ctx)
	view := again.Snapshot()
	assert.Equal(t, StateStep3, view.State)
	assert.Equal(t, "Acme Testing", view.Form.OrganizationName)
	assert.Equal(t, []string{"other:no nuts\nno shellfish"}, view.Form.DietaryRestrictions.Tags())
	assert.Equal(t, "step-free\r\n\tentrance", view.Form.ADARequirements.Other.Detail)

	_, ok := f.draft(t)
	assert.True(t, ok, "draft is kept")
}

// TestController_OpenDiscardsCorruptDraft verifies unreadable drafts start a blank form.
func TestController_OpenDiscardsCorruptDraft(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":     "{",
		"wrong shape":  `{"data":{"relationship":42},"step":2}`,
		"unknown tag":  `{"data":{"dietaryRestrictions":["bacon"]},"step":3}`,
		"missing data": `{"step":2}`,
		"step as text": `{"data":{},"step":"two"}`,
	} {
		t.Run(name, func(t *testing.T) {
			local := kv.Bind(kv.NewMemoryStore(time.Hour), "client-"+strings.ReplaceAll(name, " ", "-"))
			require.NoError(t, local.Set(context.Background(), registration.DraftKey, raw))

			ctl := New(Deps{Local: local, Scheduler: debounce.NewVirtualClock(time.Now())})
			ctl.Open(context.Background())

			view := ctl.Snapshot()
			assert.Equal(t, StateStep1, view.State)
			assert.Equal(t, registration.FormData{}.Relationship, view.Form.Relationship)
			_, ok, err := local.Get(context.Background(), registration.DraftKey)
			require.NoError(t, err)
			assert.False(t, ok, "corrupt draft is removed")
		})
	}
}

// TestController_OutOfRangeStepIgnored verifies a draft step outside 1..3 falls back to step 1.
func TestController_OutOfRangeStepIgnored(t *testing.T) {
	local := kv.Bind(kv.NewMemoryStore(time.Hour), "client-9")
	require.NoError(t, local.Set(context.Background(), registration.DraftKey, `{"data":{"city":"Reno"},"step":7}`))

	ctl := New(Deps{Local: local, Scheduler: debounce.NewVirtualClock(time.Now())})
	ctl.Open(context.Background())

	view := ctl.Snapshot()
	assert.Equal(t, 1, view.Step)
	assert.Equal(t, "Reno", view.Form.City)
}

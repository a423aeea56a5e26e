// Package wizard drives the three-step registration form for one client.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"confreg/internal/adapters/storage/kv"
	"confreg/internal/application/debounce"
	"confreg/internal/application/orchestrators"
	"confreg/internal/domain/registration"

	"github.com/samber/lo"
)

// State is the wizard lifecycle position.
type State string

const (
	StateStep1        State = "step1"
	StateStep2        State = "step2"
	StateStep3        State = "step3"
	StateSubmitting   State = "submitting"
	StateSubmitted    State = "submitted"
	StateSubmitFailed State = "submit_failed"
)

var (
	ErrSubmitInFlight = errors.New("submission already in progress")
	ErrNotEditable    = errors.New("registration can no longer be edited")
	ErrNotFinalStep   = errors.New("submit is only available on the last step")
	ErrInvalidForm    = errors.New("form has validation errors")
	ErrNotOpen        = errors.New("wizard is not open")
)

// SubmitFunc sends a validated form to the submission adapter.
type SubmitFunc func(ctx context.Context, form registration.FormData) orchestrators.SubmitResult

// Deps holds the collaborators of a Controller.
type Deps struct {
	Local     kv.Local
	Scheduler debounce.Scheduler
	Submit    SubmitFunc
	// Delay is the idle window before a touched field is re-validated.
	Delay time.Duration
}

// Controller is the registration form state machine.
// INVARIANT: outside submitting, submitted and submit_failed the state names the current step
type Controller struct {
	mu   sync.Mutex
	deps Deps

	open    bool
	form    registration.FormData
	step    int
	state   State
	detail  bool
	touched map[string]bool
	errs    []registration.ValidationError
	focus   string
	banner  string
	record  registration.Registration
}

// New creates a closed controller. Call Open before use.
func New(deps Deps) *Controller {
	if deps.Delay <= 0 {
		deps.Delay = debounce.DefaultDelay
	}
	return &Controller{deps: deps, step: registration.StepRelationship, state: StateStep1, touched: map[string]bool{}}
}

// Open loads the persisted draft over a blank form.
// A draft that fails schema validation is discarded.
// POST: package detail collapsed; errors, touched set and banner cleared
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = true
	c.detail = false
	c.touched = map[string]bool{}
	c.errs = nil
	c.focus = ""

	if c.state == StateSubmitted {
		// A finished wizard starts over on reopen.
		c.form = registration.FormData{}
		c.step = registration.StepRelationship
		c.banner = ""
		c.record = registration.Registration{}
	}

	raw, ok, err := c.deps.Local.Get(ctx, registration.DraftKey)
	if err != nil {
		slog.Warn("draft_load_failed", "error", err)
	} else if ok {
		draft, err := registration.DecodeDraft([]byte(raw))
		if err != nil {
			slog.Warn("draft_discarded", "error", err)
			if rmErr := c.deps.Local.Remove(ctx, registration.DraftKey); rmErr != nil {
				slog.Warn("draft_remove_failed", "error", rmErr)
			}
		} else {
			c.form = draft.Data
			if draft.Step != 0 {
				c.step = draft.Step
			}
		}
	}

	if c.state != StateSubmitFailed {
		c.state = stepState(c.step)
	}
}

// IsOpen reports whether Open was called since the last Close.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close cancels pending validation. The draft stays persisted.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.cancelPending()
}

// Edit updates one scalar field.
// Changing the relationship clears the package and collapses the detail.
// A package that does not belong to the relationship is rejected.
// PRE: wizard is open and editable
// POST: field error cleared; re-validation scheduled when the field was touched
func (c *Controller) Edit(ctx context.Context, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}

	switch field {
	case registration.FieldRelationship:
		if value != "" && !slices.Contains(registration.ValidRelationships, value) {
			return fmt.Errorf("%w: relationship %q", registration.ErrInvalidValue, value)
		}
	case registration.FieldSelectedPackage:
		if value != "" && !packageAllowed(c.form.Relationship, value) {
			return fmt.Errorf("%w: package %q", registration.ErrInvalidValue, value)
		}
	}

	prevRelationship := c.form.Relationship
	if err := c.form.Set(field, value); err != nil {
		return err
	}
	if field == registration.FieldRelationship && value != prevRelationship {
		c.form.SelectedPackage = ""
		c.detail = false
		c.clearError(registration.FieldSelectedPackage)
	}

	c.changed(ctx, registration.ErrorField(field))
	return nil
}

// Blur marks a field touched and validates it immediately.
func (c *Controller) Blur(field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	target := registration.ErrorField(field)
	c.touched[target] = true
	c.deps.Scheduler.Cancel(target)
	c.revalidate(target)
	return nil
}

// TogglePreference selects or clears one fixed option of a category.
func (c *Controller) TogglePreference(ctx context.Context, category, option string, on bool) error {
	return c.updatePreference(ctx, category, func(p registration.Preference) registration.Preference {
		return p.WithOption(option, on)
	})
}

// SetOther selects or clears the free-text "other" choice. Clearing drops its detail.
func (c *Controller) SetOther(ctx context.Context, category string, on bool) error {
	return c.updatePreference(ctx, category, func(p registration.Preference) registration.Preference {
		return p.WithOther(on)
	})
}

// SetOtherDetail sets the free-text detail. A non-empty detail selects "other".
func (c *Controller) SetOtherDetail(ctx context.Context, category, detail string) error {
	return c.updatePreference(ctx, category, func(p registration.Preference) registration.Preference {
		return p.WithOtherDetail(detail)
	})
}

func (c *Controller) updatePreference(ctx context.Context, category string, fn func(registration.Preference) registration.Preference) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	p, err := c.form.Preference(category)
	if err != nil {
		return err
	}
	if err := c.form.SetPreference(category, fn(p)); err != nil {
		return err
	}
	c.persist(ctx)
	return nil
}

// Next moves forward one step when the current step validates.
// On step 1 for sponsors and vendors the first call only reveals the packages.
// POST: returns true when the step advanced or the package detail opened
func (c *Controller) Next(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return false, err
	}
	if c.step == registration.StepRelationship && registration.IsSponsorOrVendor(c.form.Relationship) && !c.detail {
		c.detail = true
		return true, nil
	}
	if c.step >= registration.StepConsent {
		return false, nil
	}
	if errs := registration.Validate(c.form, c.step); len(errs) > 0 {
		c.errs = errs
		c.focus = errs[0].Field
		return false, nil
	}
	c.moveTo(ctx, c.step+1)
	return true, nil
}

// Back moves to the previous step without validating.
func (c *Controller) Back(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	if c.step <= registration.StepRelationship {
		c.errs = nil
		c.focus = ""
		return nil
	}
	c.moveTo(ctx, c.step-1)
	return nil
}

// Submit validates the final step and hands the form to the submission adapter.
// The lock is released while the adapter runs so snapshots report submitting.
// PRE: wizard is on step 3 or a previous submission failed
// POST: state is submitted or submit_failed unless a guard error is returned
func (c *Controller) Submit(ctx context.Context) (orchestrators.SubmitResult, error) {
	c.mu.Lock()
	switch {
	case !c.open:
		c.mu.Unlock()
		return orchestrators.SubmitResult{}, ErrNotOpen
	case c.state == StateSubmitting || c.state == StateSubmitted:
		c.mu.Unlock()
		return orchestrators.SubmitResult{}, ErrSubmitInFlight
	case c.step != registration.StepConsent:
		c.mu.Unlock()
		return orchestrators.SubmitResult{}, ErrNotFinalStep
	}
	if errs := registration.Validate(c.form, c.step); len(errs) > 0 {
		c.errs = errs
		c.focus = errs[0].Field
		c.mu.Unlock()
		return orchestrators.SubmitResult{}, ErrInvalidForm
	}
	c.state = StateSubmitting
	c.errs = nil
	c.focus = ""
	c.banner = ""
	form := c.form
	c.mu.Unlock()

	res := c.deps.Submit(ctx, form)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = res.Message
	if !res.Success {
		c.state = StateSubmitFailed
		if c.banner == "" {
			c.banner = orchestrators.MsgSubmitFailed
		}
		return res, nil
	}
	c.state = StateSubmitted
	c.record = res.Record
	c.cancelPending()
	if err := c.deps.Local.Remove(ctx, registration.DraftKey); err != nil {
		slog.Warn("draft_clear_failed", "error", err)
	}
	return res, nil
}

func (c *Controller) editable() error {
	if !c.open {
		return ErrNotOpen
	}
	if c.state == StateSubmitting || c.state == StateSubmitted {
		return ErrNotEditable
	}
	return nil
}

func (c *Controller) moveTo(ctx context.Context, step int) {
	c.errs = nil
	c.focus = ""
	c.step = step
	c.state = stepState(step)
	c.persist(ctx)
}

// cancelPending drops debounced validation. Only touched fields are ever scheduled.
func (c *Controller) cancelPending() {
	for field := range c.touched {
		c.deps.Scheduler.Cancel(field)
	}
}

// changed persists the edit and schedules debounced validation of target.
func (c *Controller) changed(ctx context.Context, target string) {
	c.clearError(target)
	c.persist(ctx)
	if !c.touched[target] {
		return
	}
	c.deps.Scheduler.Schedule(target, c.deps.Delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.editable() != nil {
			return
		}
		c.revalidate(target)
	})
}

// revalidate replaces the error of one field. Fields of other steps are ignored.
func (c *Controller) revalidate(field string) {
	if registration.StepOf(field) != c.step {
		return
	}
	c.clearError(field)
	if e, ok := registration.ValidateField(c.form, c.step, field); ok {
		c.errs = append(c.errs, e)
	}
}

func (c *Controller) clearError(field string) {
	c.errs = slices.DeleteFunc(c.errs, func(e registration.ValidationError) bool { return e.Field == field })
}

func (c *Controller) persist(ctx context.Context) {
	raw, err := registration.EncodeDraft(registration.Draft{Data: c.form, Step: c.step})
	if err == nil {
		err = c.deps.Local.Set(ctx, registration.DraftKey, string(raw))
	}
	if err != nil {
		slog.Warn("draft_persist_failed", "error", err)
	}
}

// View is a point-in-time copy of the controller state.
type View struct {
	State       State
	Step        int
	ShowPackage bool
	Form        registration.FormData
	Errors      []registration.ValidationError
	Touched     []string
	Focus       string
	Banner      string
	Record      registration.Registration
	// Packages lists the choices of the current relationship.
	Packages []registration.Package
}

// Snapshot returns a copy safe to render outside the lock.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := make([]string, 0, len(c.touched))
	for f := range c.touched {
		touched = append(touched, f)
	}
	sort.Strings(touched)

	form := c.form
	form.DietaryRestrictions = clonePreference(form.DietaryRestrictions)
	form.ADARequirements = clonePreference(form.ADARequirements)
	form.TravelSponsorship = clonePreference(form.TravelSponsorship)

	return View{
		State:       c.state,
		Step:        c.step,
		ShowPackage: c.detail,
		Form:        form,
		Errors:      append([]registration.ValidationError{}, c.errs...),
		Touched:     touched,
		Focus:       c.focus,
		Banner:      c.banner,
		Record:      c.record,
		Packages:    registration.PackagesFor(c.form.Relationship),
	}
}

// FieldError returns the message shown next to field, if any.
// An error is shown when the field was touched or a step validation populated the list.
func (v View) FieldError(field string) string {
	for _, e := range v.Errors {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

// Succeeded reports whether the registration was stored.
func (v View) Succeeded() bool { return v.State == StateSubmitted }

// Failed reports whether the last submission was rejected.
func (v View) Failed() bool { return v.State == StateSubmitFailed }

func clonePreference(p registration.Preference) registration.Preference {
	p.Options = slices.Clone(p.Options)
	return p
}

func stepState(step int) State {
	switch step {
	case registration.StepOrganization:
		return StateStep2
	case registration.StepConsent:
		return StateStep3
	}
	return StateStep1
}

func packageAllowed(relationship, id string) bool {
	return lo.ContainsBy(registration.PackagesFor(relationship), func(p registration.Package) bool {
		return p.ID == id
	})
}

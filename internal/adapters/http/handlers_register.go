package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"

	"confreg/internal/adapters/http/middleware"
	"confreg/internal/application/wizard"
	"confreg/internal/domain/registration"
)

// stepFields lists the scalar inputs each step page posts, in apply order.
// The relationship comes first because changing it resets the package.
var stepFields = map[int][]string{
	registration.StepRelationship: {registration.FieldRelationship, registration.FieldSelectedPackage},
	registration.StepOrganization: {
		registration.FieldOrganizationName, registration.FieldWebsite,
		registration.FieldStreet, registration.FieldStreet2, registration.FieldCity,
		registration.FieldState, registration.FieldZip, registration.FieldCountry,
		registration.FieldPhoneArea, registration.FieldPhoneNumber,
		registration.FieldAltPhoneArea, registration.FieldAltPhoneNumber,
		registration.FieldPrimaryContact, registration.FieldContactEmail,
		registration.FieldCompanyDescription,
	},
	registration.StepConsent: {registration.FieldPreferredAirport, registration.FieldConsentsAccepted},
}

var preferenceCategories = []string{registration.CategoryDietary, registration.CategoryADA, registration.CategoryTravel}

// wizardState is the JSON form of a wizard snapshot.
type wizardState struct {
	State          wizard.State                   `json:"state"`
	Step           int                            `json:"step"`
	ShowPackage    bool                           `json:"show_package"`
	Form           registration.FormData          `json:"form"`
	Errors         []registration.ValidationError `json:"errors"`
	Touched        []string                       `json:"touched"`
	Focus          string                         `json:"focus,omitempty"`
	Banner         string                         `json:"banner,omitempty"`
	RegistrationID string                         `json:"registration_id,omitempty"`
}

func toWizardState(v wizard.View) wizardState {
	return wizardState{
		State:          v.State,
		Step:           v.Step,
		ShowPackage:    v.ShowPackage,
		Form:           v.Form,
		Errors:         v.Errors,
		Touched:        v.Touched,
		Focus:          v.Focus,
		Banner:         v.Banner,
		RegistrationID: v.Record.ID,
	}
}

// currentWizard returns the open wizard of the requesting browser.
func currentWizard(r *http.Request) (*wizard.Controller, bool) {
	client, ok := middleware.ClientFromContext(r.Context())
	if !ok {
		return nil, false
	}
	wc := clients.wizard(r.Context(), client)
	if !wc.IsOpen() {
		wc.Open(r.Context())
	}
	return wc, true
}

// respondWizard sends the snapshot as JSON, or redirects a browser back to the step page.
func respondWizard(w http.ResponseWriter, r *http.Request, wc *wizard.Controller, status int) {
	if wantsJSON(r) {
		writeJSON(w, r, status, toWizardState(wc.Snapshot()))
		return
	}
	http.Redirect(w, r, "/register", http.StatusSeeOther)
}

// wizardError maps controller guard errors onto HTTP statuses.
func wizardError(w http.ResponseWriter, r *http.Request, wc *wizard.Controller, err error) {
	switch {
	case errors.Is(err, registration.ErrInvalidValue),
		errors.Is(err, registration.ErrUnknownField),
		errors.Is(err, registration.ErrUnknownCategory),
		errors.Is(err, registration.ErrUnknownOption):
		http.Error(w, "Invalid value", http.StatusBadRequest)
	case errors.Is(err, wizard.ErrSubmitInFlight),
		errors.Is(err, wizard.ErrNotEditable),
		errors.Is(err, wizard.ErrNotFinalStep):
		respondWizard(w, r, wc, http.StatusConflict)
	case errors.Is(err, wizard.ErrInvalidForm):
		respondWizard(w, r, wc, http.StatusUnprocessableEntity)
	default:
		internalError(w, err)
	}
}

// handleRegister handles GET /register
func handleRegister(w http.ResponseWriter, r *http.Request) {
	wc, ok := currentWizard(r)
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	view := wc.Snapshot()
	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, toWizardState(view))
		return
	}
	renderTemplate(w, r, http.StatusOK, "register.html", "Conference Registration", false, map[string]any{
		"View":          view,
		"Relationships": registration.ValidRelationships,
		"Categories":    preferenceCategories,
	})
}

// handleRegisterState handles GET /register/state
func handleRegisterState(w http.ResponseWriter, r *http.Request) {
	wc, ok := currentWizard(r)
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	writeJSON(w, r, http.StatusOK, toWizardState(wc.Snapshot()))
}

// handleRegisterField handles POST /register/field (field, value, event=edit|blur)
// Parameters may come from the body or, for JSON clients, the query string.
func handleRegisterField(w http.ResponseWriter, r *http.Request) {
	wc, ok := currentWizard(r)
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	field := r.FormValue("field")
	var err error
	switch r.FormValue("event") {
	case "blur":
		err = wc.Blur(field)
	case "", "edit":
		err = wc.Edit(r.Context(), field, r.FormValue("value"))
	default:
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}
	if err != nil {
		wizardError(w, r, wc, err)
		return
	}
	respondWizard(w, r, wc, http.StatusOK)
}

// handleRegisterPreference handles POST /register/preference
// (category with tag and on, or other=true|false, or detail)
func handleRegisterPreference(w http.ResponseWriter, r *http.Request) {
	wc, ok := currentWizard(r)
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	category := r.FormValue("category")
	var err error
	switch {
	case r.Form.Has("tag"):
		err = wc.TogglePreference(ctx, category, r.FormValue("tag"), formBool(r.FormValue("on")))
	case r.Form.Has("other"):
		err = wc.SetOther(ctx, category, formBool(r.FormValue("other")))
	case r.Form.Has("detail"):
		err = wc.SetOtherDetail(ctx, category, r.FormValue("detail"))
	default:
		http.Error(w, "tag, other or detail is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		wizardError(w, r, wc, err)
		return
	}
	respondWizard(w, r, wc, http.StatusOK)
}

// handleRegisterNext handles POST /register/next
// A step page posts its inputs along with Next; they are applied before advancing.
func handleRegisterNext(w http.ResponseWriter, r *http.Request) {
	wc, ok := currentWizard(r)
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	if err := applyStepForm(r, wc); err != nil {
		wizardError(w, r, wc, err)
		return
	}
	if _, err := wc.Next(r.Context()); err != nil {
		wizardError(w, r, wc, err)
		return
	}
	respondWizard(w, r, wc, http.StatusOK)
}

// handleRegisterBack handles POST /register/back
func handleRegisterBack(w http.ResponseWriter, r *http.Request) {
	wc, ok := currentWizard(r)
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	if err := applyStepForm(r, wc); err != nil {
		wizardError(w, r, wc, err)
		return
	}
	if err := wc.Back(r.Context()); err != nil {
		wizardError(w, r, wc, err)
		return
	}
	respondWizard(w, r, wc, http.StatusOK)
}

// handleRegisterSubmit handles POST /register/submit
func handleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	wc, ok := currentWizard(r)
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	if err := applyStepForm(r, wc); err != nil {
		wizardError(w, r, wc, err)
		return
	}
	res, err := wc.Submit(r.Context())
	if err != nil {
		wizardError(w, r, wc, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	respondWizard(w, r, wc, status)
}

// handleRegisterClose handles POST /register/close
// The draft stays stored; the next GET /register reopens the wizard.
func handleRegisterClose(w http.ResponseWriter, r *http.Request) {
	wc, ok := currentWizard(r)
	if !ok {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	wc.Close()
	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, toWizardState(wc.Snapshot()))
		return
	}
	http.Redirect(w, r, "/register", http.StatusSeeOther)
}

// applyStepForm copies the inputs posted by a step page into the wizard.
// Only fields present in the post are applied and unchanged values are skipped,
// so a partial post never clears data and an idle field keeps its error.
func applyStepForm(r *http.Request, wc *wizard.Controller) error {
	if err := r.ParseForm(); err != nil {
		return registration.ErrInvalidValue
	}
	view := wc.Snapshot()
	if view.State != wizard.StateStep1 && view.State != wizard.StateStep2 &&
		view.State != wizard.StateStep3 && view.State != wizard.StateSubmitFailed {
		return nil
	}
	ctx := r.Context()

	relationshipChanged := false
	for _, field := range stepFields[view.Step] {
		values, posted := r.PostForm[field]
		if !posted {
			continue
		}
		if field == registration.FieldSelectedPackage && relationshipChanged {
			// The posted package belongs to the previous relationship.
			continue
		}
		// A checkbox is posted as a hidden "false" followed by the checked value.
		value := values[len(values)-1]
		current, _ := wc.Snapshot().Form.Get(field)
		if field == registration.FieldConsentsAccepted {
			value = boolString(formBool(value))
		}
		if value == current {
			continue
		}
		if err := wc.Edit(ctx, field, value); err != nil {
			return err
		}
		relationshipChanged = relationshipChanged || field == registration.FieldRelationship
	}

	if view.Step != registration.StepConsent {
		return nil
	}
	for _, category := range preferenceCategories {
		if err := applyPreference(ctx, r.PostForm, wc, category); err != nil {
			return err
		}
	}
	return nil
}

func applyPreference(ctx context.Context, form url.Values, wc *wizard.Controller, category string) error {
	tags, posted := form[category]
	if !posted {
		return nil
	}
	current, err := wc.Snapshot().Form.Preference(category)
	if err != nil {
		return err
	}
	opts, _ := registration.OptionsFor(category)
	for _, opt := range opts {
		want := slices.Contains(tags, opt)
		if want != current.Has(opt) {
			if err := wc.TogglePreference(ctx, category, opt, want); err != nil {
				return err
			}
		}
	}

	other, posted := form[category+"_other"]
	if !posted {
		return nil
	}
	wantOther := formBool(other[len(other)-1])
	if wantOther != current.Other.Selected {
		if err := wc.SetOther(ctx, category, wantOther); err != nil {
			return err
		}
	}
	if !wantOther {
		return nil
	}
	if detail, posted := form[category+"_detail"]; posted && detail[len(detail)-1] != current.Other.Detail {
		return wc.SetOtherDetail(ctx, category, detail[len(detail)-1])
	}
	return nil
}

func formBool(v string) bool {
	return v == "true" || v == "on" || v == "1"
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

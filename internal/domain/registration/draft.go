package registration

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// DraftKey is the persisted key of the in-progress wizard draft.
const DraftKey = "registrationData"

// ErrInvalidDraft is returned when a persisted draft fails structural checks.
var ErrInvalidDraft = errors.New("invalid draft")

//go:embed draft.schema.json
var draftSchemaJSON string

var draftSchema = mustSchema(draftSchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("registration: draft schema: %v", err))
	}
	return s
}

// Draft is the persisted, resumable wizard state.
type Draft struct {
	Data FormData `json:"data"`
	Step int      `json:"step"`
}

// MarshalJSON encodes a preference as its stored tag set.
func (p Preference) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Tags())
}

// UnmarshalJSON decodes a stored tag set. null decodes to an empty preference.
func (p *Preference) UnmarshalJSON(b []byte) error {
	var tags []string
	if err := json.Unmarshal(b, &tags); err != nil {
		return err
	}
	*p = ParsePreference(tags)
	return nil
}

// EncodeDraft serialises a draft.
func EncodeDraft(d Draft) ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDraft checks raw against the draft schema and merges its data over a blank form.
// Missing fields keep their blank defaults. A step outside 1..3 decodes as 0.
// PRE: raw is the persisted draft value
// POST: returns Draft, or ErrInvalidDraft wrapping the first schema violation
func DecodeDraft(raw []byte) (Draft, error) {
	res, err := draftSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Draft{}, fmt.Errorf("%w: %s", ErrInvalidDraft, strings.Join(msgs, "; "))
	}

	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if d.Step < StepRelationship || d.Step > StepConsent {
		d.Step = 0
	}
	return d, nil
}

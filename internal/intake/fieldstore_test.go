package intake

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestFieldStoreRefusesToDropRequiredItem(t *testing.T) {
	q := &NotificationQueue{}
	s := NewFieldStore(NewRecord(DefaultCatalog()), DefaultCatalog(), q)
	if err := s.Toggle(FieldSelectedServices, "meal-plan"); err != nil {
		t.Fatalf("toggle meal-plan: %v", err)
	}

	err := s.Toggle(FieldSelectedServices, "consultation")
	if !errors.Is(err, ErrRequiredItem) {
		t.Fatalf("expected ErrRequiredItem, got %v", err)
	}
	got := s.Record().Scheduling.SelectedServices
	if !slices.Equal(got, []string{"consultation", "meal-plan"}) {
		t.Fatalf("selection changed: %v", got)
	}
	notes := q.Drain()
	if len(notes) != 1 || notes[0].Kind != NotifyError {
		t.Fatalf("expected one error notice, got %+v", notes)
	}
	if notes[0].Message != "Initial Consultation is required and cannot be removed." {
		t.Fatalf("unexpected notice %q", notes[0].Message)
	}
}

func TestFieldStoreSetServicesMustKeepRequired(t *testing.T) {
	s := NewFieldStore(NewRecord(DefaultCatalog()), DefaultCatalog(), nil)
	if err := s.Set(FieldSelectedServices, []string{"meal-plan"}); !errors.Is(err, ErrRequiredItem) {
		t.Fatalf("expected ErrRequiredItem, got %v", err)
	}
	if err := s.Set(FieldSelectedServices, []any{"meal-plan", "consultation", "meal-plan"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := s.Record().Scheduling.SelectedServices; !slices.Equal(got, []string{"meal-plan", "consultation"}) {
		t.Fatalf("unexpected selection %v", got)
	}
}

func TestFieldStoreToggleAddsAndRemoves(t *testing.T) {
	s := NewFieldStore(IntakeRecord{}, DefaultCatalog(), nil)
	for _, v := range []string{"lose-weight", "more-energy", "lose-weight"} {
		if err := s.Toggle(FieldPrimaryGoals, v); err != nil {
			t.Fatalf("toggle %s: %v", v, err)
		}
	}
	if got := s.Record().Goals.PrimaryGoals; !slices.Equal(got, []string{"more-energy"}) {
		t.Fatalf("unexpected goals %v", got)
	}
	if err := s.Toggle(FieldFirstName, "x"); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected ErrFieldType for scalar toggle, got %v", err)
	}
}

func TestFieldStoreCoercion(t *testing.T) {
	s := NewFieldStore(IntakeRecord{}, DefaultCatalog(), nil)
	steps := []struct {
		field Field
		value any
	}{
		{FieldAge, "34"},
		{FieldCurrentWeight, json.Number("180.5")},
		{FieldGoalWeight, 165},
		{FieldAgreeToTerms, "true"},
		{FieldAgreeToMarketing, false},
		{FieldFirstName, "Ada"},
	}
	for _, st := range steps {
		if err := s.Set(st.field, st.value); err != nil {
			t.Fatalf("set %s: %v", st.field, err)
		}
	}
	rec := s.Record()
	if rec.Identity.Age != 34 || rec.Physiology.CurrentWeight != 180.5 || rec.Physiology.GoalWeight != 165 {
		t.Fatalf("numeric coercion failed: %+v", rec)
	}
	if !rec.Consent.AgreeToTerms || rec.Identity.FirstName != "Ada" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := s.Set(FieldAge, "12.5"); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected ErrFieldType for fractional age, got %v", err)
	}
	if err := s.Set(FieldFirstName, 7); !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected ErrFieldType for int name, got %v", err)
	}
	if err := s.Set(Field(99), "x"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestFieldStoreSetClearsFieldError(t *testing.T) {
	s := NewFieldStore(IntakeRecord{}, DefaultCatalog(), nil)
	s.ReplaceErrors(Validate(StepIdentity, s.Record()))
	if _, ok := s.Errors()[FieldFirstName]; !ok {
		t.Fatalf("expected first name error")
	}
	if err := s.Set(FieldFirstName, "Ada"); err != nil {
		t.Fatalf("set: %v", err)
	}
	errs := s.Errors()
	if _, ok := errs[FieldFirstName]; ok {
		t.Fatalf("first name error not cleared")
	}
	if _, ok := errs[FieldLastName]; !ok {
		t.Fatalf("other errors should survive")
	}
}

func TestFieldRoundTripsAsJSONKey(t *testing.T) {
	errs := ValidationErrors{FieldFirstName: "First name is required"}
	data, err := json.Marshal(errs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"first_name":"First name is required"}` {
		t.Fatalf("unexpected json %s", data)
	}
	var back ValidationErrors
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[FieldFirstName] != "First name is required" {
		t.Fatalf("unexpected decode %+v", back)
	}
}

func TestFieldStoreRejectsNonFiniteNumbers(t *testing.T) {
	s := NewFieldStore(completeRecord(), DefaultCatalog(), nil)
	cases := []struct {
		field Field
		value any
	}{
		{FieldCurrentWeight, "NaN"},
		{FieldGoalWeight, "+Inf"},
		{FieldCurrentWeight, "-inf"},
		{FieldGoalWeight, math.NaN()},
		{FieldCurrentWeight, math.Inf(1)},
		{FieldAge, "Inf"},
		{FieldAge, "1e30"},
		{FieldAge, -1e12},
	}
	for _, tc := range cases {
		if err := s.Set(tc.field, tc.value); !errors.Is(err, ErrFieldType) {
			t.Fatalf("set %s=%v: expected ErrFieldType, got %v", tc.field, tc.value, err)
		}
	}
	rec := s.Record()
	if rec.Physiology.CurrentWeight != 150 || rec.Physiology.GoalWeight != 140 || rec.Identity.Age != 36 {
		t.Fatalf("rejected values leaked into the record: %+v", rec.Physiology)
	}
	if _, err := json.Marshal(rec); err != nil {
		t.Fatalf("record no longer encodes: %v", err)
	}
	if errs := Validate(StepPhysiology, rec); !errs.Empty() {
		t.Fatalf("unexpected errors %+v", errs)
	}
}

func TestFieldStoreRequiredItemSurvivesRandomEdits(t *testing.T) {
	catalog := DefaultCatalog()
	ids := make([]string, 0, len(catalog.Items()))
	for _, item := range catalog.Items() {
		ids = append(ids, item.ID)
	}
	required := catalog.Required().ID
	rng := rand.New(rand.NewPCG(7, 42))

	for run := 0; run < 50; run++ {
		s := NewFieldStore(NewRecord(catalog), catalog, nil)
		for op := 0; op < 40; op++ {
			if rng.IntN(3) == 0 {
				var pick []string
				for _, id := range ids {
					if rng.IntN(2) == 0 {
						pick = append(pick, id)
					}
				}
				err := s.Set(FieldSelectedServices, pick)
				if !slices.Contains(pick, required) && !errors.Is(err, ErrRequiredItem) {
					t.Fatalf("run %d: set %v without %s: got %v", run, pick, required, err)
				}
			} else {
				_ = s.Toggle(FieldSelectedServices, ids[rng.IntN(len(ids))])
			}
			if got := s.Record().Scheduling.SelectedServices; !slices.Contains(got, required) {
				t.Fatalf("run %d op %d: %s dropped from %v", run, op, required, got)
			}
		}
	}
}

package intake

import (
	"math"
	"testing"
)

// completeRecord answers every required question through step 5.
func completeRecord() IntakeRecord {
	rec := NewRecord(DefaultCatalog())
	rec.Identity = Identity{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "555-0100", Age: 36, Gender: "female"}
	rec.Physiology = Physiology{CurrentWeight: 150, GoalWeight: 140, Height: "5'6\"", ActivityLevel: "moderate"}
	rec.Goals = Goals{PrimaryGoals: []string{"more-energy"}, MealPrepExperience: "some", CookingSkill: "intermediate", BudgetRange: "100-150"}
	rec.Scheduling.PreferredTime = "morning"
	rec.Scheduling.TimeZone = "America/New_York"
	rec.Scheduling.CommunicationPreference = "email"
	rec.Consent.AgreeToTerms = true
	return rec
}

func TestValidateEmptyFirstName(t *testing.T) {
	rec := completeRecord()
	rec.Identity.FirstName = ""
	errs := Validate(StepIdentity, rec)
	if errs[FieldFirstName] != "First name is required" {
		t.Fatalf("expected first name error, got %+v", errs)
	}
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %+v", errs)
	}
}

func TestValidateRules(t *testing.T) {
	cases := []struct {
		name  string
		step  int
		edit  func(*IntakeRecord)
		field Field
		msg   string
	}{
		{"whitespace name", StepIdentity, func(r *IntakeRecord) { r.Identity.LastName = "   " }, FieldLastName, "Last name is required"},
		{"missing age", StepIdentity, func(r *IntakeRecord) { r.Identity.Age = 0 }, FieldAge, "Age is required"},
		{"too young", StepIdentity, func(r *IntakeRecord) { r.Identity.Age = 12 }, FieldAge, "You must be at least 13 years old"},
		{"gender", StepIdentity, func(r *IntakeRecord) { r.Identity.Gender = "" }, FieldGender, "Please select your gender"},
		{"light weight", StepPhysiology, func(r *IntakeRecord) { r.Physiology.CurrentWeight = 49.9 }, FieldCurrentWeight, "Please enter a valid current weight (minimum 50)"},
		{"nan weight", StepPhysiology, func(r *IntakeRecord) { r.Physiology.CurrentWeight = math.NaN() }, FieldCurrentWeight, "Please enter a valid current weight (minimum 50)"},
		{"infinite goal", StepPhysiology, func(r *IntakeRecord) { r.Physiology.GoalWeight = math.Inf(1) }, FieldGoalWeight, "Please enter a valid goal weight (minimum 50)"},
		{"goal weight", StepPhysiology, func(r *IntakeRecord) { r.Physiology.GoalWeight = 0 }, FieldGoalWeight, "Please enter a valid goal weight (minimum 50)"},
		{"no goals", StepGoals, func(r *IntakeRecord) { r.Goals.PrimaryGoals = []string{" "} }, FieldPrimaryGoals, "Please select at least one goal"},
		{"no services", StepServices, func(r *IntakeRecord) { r.Scheduling.SelectedServices = nil }, FieldSelectedServices, "Please select at least one service"},
		{"terms", StepConsent, func(r *IntakeRecord) { r.Consent.AgreeToTerms = false }, FieldAgreeToTerms, "You must agree to the terms and conditions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := completeRecord()
			tc.edit(&rec)
			errs := Validate(tc.step, rec)
			if got := errs[tc.field]; got != tc.msg {
				t.Fatalf("error for %s = %q, want %q", tc.field, got, tc.msg)
			}
		})
	}
}

func TestValidateCompleteRecordPasses(t *testing.T) {
	rec := completeRecord()
	for step := StepIdentity; step <= StepPayment; step++ {
		if errs := Validate(step, rec); !errs.Empty() {
			t.Fatalf("step %d: unexpected errors %+v", step, errs)
		}
	}
	if errs := ValidateAll(rec); !errs.Empty() {
		t.Fatalf("ValidateAll: unexpected errors %+v", errs)
	}
}

func TestValidateAgeBoundary(t *testing.T) {
	rec := completeRecord()
	rec.Identity.Age = MinimumAge
	if errs := Validate(StepIdentity, rec); !errs.Empty() {
		t.Fatalf("age %d should pass, got %+v", MinimumAge, errs)
	}
}

func TestNotifyValidationInFormOrder(t *testing.T) {
	q := &NotificationQueue{}
	NotifyValidation(q, Validate(StepIdentity, IntakeRecord{}))
	notes := q.Drain()
	if len(notes) != 6 {
		t.Fatalf("expected 6 notices, got %d", len(notes))
	}
	if notes[0].Message != "First name is required" || notes[5].Message != "Please select your gender" {
		t.Fatalf("notices out of order: %+v", notes)
	}
	for _, n := range notes {
		if n.Kind != NotifyError {
			t.Fatalf("unexpected kind %q", n.Kind)
		}
	}
}

package intake

import (
	"math"
	"slices"
	"strings"
)

const (
	// MinimumAge is the youngest client the service accepts.
	MinimumAge = 13
	// MinimumWeight is a unit agnostic floor for both weight answers.
	MinimumWeight = 50
)

// ValidationErrors maps a field to its inline message. Empty means the step passes.
type ValidationErrors map[Field]string

// Empty reports whether there are no errors.
func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}

// Fields returns the failing fields in form order.
func (v ValidationErrors) Fields() []Field {
	out := make([]Field, 0, len(v))
	for f := range v {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Clone returns a copy that never aliases v.
func (v ValidationErrors) Clone() ValidationErrors {
	out := make(ValidationErrors, len(v))
	for f, msg := range v {
		out[f] = msg
	}
	return out
}

// Validate applies the rule table for step to rec. Step 6 is gated by the
// authorization token rather than field rules and always passes here.
func Validate(step int, rec IntakeRecord) ValidationErrors {
	errs := ValidationErrors{}
	switch step {
	case StepIdentity:
		requireText(errs, FieldFirstName, rec.Identity.FirstName)
		requireText(errs, FieldLastName, rec.Identity.LastName)
		requireText(errs, FieldEmail, rec.Identity.Email)
		requireText(errs, FieldPhone, rec.Identity.Phone)
		switch {
		case rec.Identity.Age == 0:
			errs[FieldAge] = "Age is required"
		case rec.Identity.Age < MinimumAge:
			errs[FieldAge] = "You must be at least 13 years old"
		}
		requireChoice(errs, FieldGender, rec.Identity.Gender)
	case StepPhysiology:
		if !validWeight(rec.Physiology.CurrentWeight) {
			errs[FieldCurrentWeight] = "Please enter a valid current weight (minimum 50)"
		}
		if !validWeight(rec.Physiology.GoalWeight) {
			errs[FieldGoalWeight] = "Please enter a valid goal weight (minimum 50)"
		}
		requireText(errs, FieldHeight, rec.Physiology.Height)
		requireChoice(errs, FieldActivityLevel, rec.Physiology.ActivityLevel)
	case StepGoals:
		if countAnswered(rec.Goals.PrimaryGoals) == 0 {
			errs[FieldPrimaryGoals] = "Please select at least one goal"
		}
		requireChoice(errs, FieldMealPrepExperience, rec.Goals.MealPrepExperience)
		requireChoice(errs, FieldCookingSkill, rec.Goals.CookingSkill)
		requireChoice(errs, FieldBudgetRange, rec.Goals.BudgetRange)
	case StepServices:
		if countAnswered(rec.Scheduling.SelectedServices) == 0 {
			errs[FieldSelectedServices] = "Please select at least one service"
		}
		requireChoice(errs, FieldUrgency, rec.Scheduling.Urgency)
		requireChoice(errs, FieldPreferredTime, rec.Scheduling.PreferredTime)
		requireChoice(errs, FieldTimeZone, rec.Scheduling.TimeZone)
		requireChoice(errs, FieldCommunicationPreference, rec.Scheduling.CommunicationPreference)
	case StepConsent:
		if !rec.Consent.AgreeToTerms {
			errs[FieldAgreeToTerms] = "You must agree to the terms and conditions"
		}
	}
	return errs
}

// ValidateAll merges the rules of every data collection step.
func ValidateAll(rec IntakeRecord) ValidationErrors {
	errs := ValidationErrors{}
	for step := StepIdentity; step <= StepConsent; step++ {
		for f, msg := range Validate(step, rec) {
			errs[f] = msg
		}
	}
	return errs
}

// NotifyValidation emits one error notice per failing field, in form order.
func NotifyValidation(n Notifier, errs ValidationErrors) {
	if n == nil {
		return
	}
	for _, f := range errs.Fields() {
		n.Notify(NotifyError, errs[f])
	}
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w >= MinimumWeight
}

func requireText(errs ValidationErrors, f Field, v string) {
	if strings.TrimSpace(v) == "" {
		errs[f] = f.Label() + " is required"
	}
}

func requireChoice(errs ValidationErrors, f Field, v string) {
	if strings.TrimSpace(v) == "" {
		errs[f] = "Please select your " + strings.ToLower(f.Label())
	}
}

func countAnswered(list []string) int {
	n := 0
	for _, item := range list {
		if strings.TrimSpace(item) != "" {
			n++
		}
	}
	return n
}

package intake

import "slices"

// DefaultUrgency is preselected when the wizard mounts.
const DefaultUrgency = "standard"

// Identity is collected on step 1.
type Identity struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
}

// Physiology is collected on step 2. Weights are unit agnostic.
type Physiology struct {
	CurrentWeight float64 `json:"current_weight"`
	GoalWeight    float64 `json:"goal_weight"`
	Height        string  `json:"height"`
	ActivityLevel string  `json:"activity_level"`
}

// Goals is collected on step 3.
type Goals struct {
	PrimaryGoals        []string `json:"primary_goals"`
	MealPrepExperience  string   `json:"meal_prep_experience"`
	CookingSkill        string   `json:"cooking_skill"`
	BudgetRange         string   `json:"budget_range"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	Allergies           string   `json:"allergies"`
}

// Scheduling is collected on step 4.
type Scheduling struct {
	SelectedServices        []string `json:"selected_services"`
	Urgency                 string   `json:"urgency"`
	PreferredTime           string   `json:"preferred_time"`
	TimeZone                string   `json:"time_zone"`
	CommunicationPreference string   `json:"communication_preference"`
}

// Consent is collected on step 5.
type Consent struct {
	AgreeToTerms     bool   `json:"agree_to_terms"`
	AgreeToMarketing bool   `json:"agree_to_marketing"`
	Notes            string `json:"notes"`
}

// IntakeRecord is the draft of everything the client has answered.
// Zero values mean "unanswered".
type IntakeRecord struct {
	Identity   Identity   `json:"identity"`
	Physiology Physiology `json:"physiology"`
	Goals      Goals      `json:"goals"`
	Scheduling Scheduling `json:"scheduling"`
	Consent    Consent    `json:"consent"`
}

// NewRecord returns a record with the mount-time defaults applied.
func NewRecord(catalog *Catalog) IntakeRecord {
	rec := IntakeRecord{}
	rec.Scheduling.Urgency = DefaultUrgency
	if catalog != nil {
		rec.Scheduling.SelectedServices = []string{catalog.Required().ID}
	}
	return rec
}

// Clone returns a deep copy.
func (r IntakeRecord) Clone() IntakeRecord {
	out := r
	out.Goals.PrimaryGoals = slices.Clone(r.Goals.PrimaryGoals)
	out.Goals.DietaryRestrictions = slices.Clone(r.Goals.DietaryRestrictions)
	out.Scheduling.SelectedServices = slices.Clone(r.Scheduling.SelectedServices)
	return out
}

// FullName joins first and last name.
func (r IntakeRecord) FullName() string {
	switch {
	case r.Identity.FirstName == "":
		return r.Identity.LastName
	case r.Identity.LastName == "":
		return r.Identity.FirstName
	default:
		return r.Identity.FirstName + " " + r.Identity.LastName
	}
}

// list returns a pointer to the slice backing a list field.
func (r *IntakeRecord) list(f Field) *[]string {
	switch f {
	case FieldPrimaryGoals:
		return &r.Goals.PrimaryGoals
	case FieldDietaryRestrictions:
		return &r.Goals.DietaryRestrictions
	case FieldSelectedServices:
		return &r.Scheduling.SelectedServices
	}
	return nil
}

// text returns a pointer to the string backing a text field.
func (r *IntakeRecord) text(f Field) *string {
	switch f {
	case FieldFirstName:
		return &r.Identity.FirstName
	case FieldLastName:
		return &r.Identity.LastName
	case FieldEmail:
		return &r.Identity.Email
	case FieldPhone:
		return &r.Identity.Phone
	case FieldGender:
		return &r.Identity.Gender
	case FieldHeight:
		return &r.Physiology.Height
	case FieldActivityLevel:
		return &r.Physiology.ActivityLevel
	case FieldMealPrepExperience:
		return &r.Goals.MealPrepExperience
	case FieldCookingSkill:
		return &r.Goals.CookingSkill
	case FieldBudgetRange:
		return &r.Goals.BudgetRange
	case FieldAllergies:
		return &r.Goals.Allergies
	case FieldUrgency:
		return &r.Scheduling.Urgency
	case FieldPreferredTime:
		return &r.Scheduling.PreferredTime
	case FieldTimeZone:
		return &r.Scheduling.TimeZone
	case FieldCommunicationPreference:
		return &r.Scheduling.CommunicationPreference
	case FieldNotes:
		return &r.Consent.Notes
	}
	return nil
}

// Value returns the current value of f as stored in the record.
func (r IntakeRecord) Value(f Field) any {
	switch f {
	case FieldAge:
		return r.Identity.Age
	case FieldCurrentWeight:
		return r.Physiology.CurrentWeight
	case FieldGoalWeight:
		return r.Physiology.GoalWeight
	case FieldAgreeToTerms:
		return r.Consent.AgreeToTerms
	case FieldAgreeToMarketing:
		return r.Consent.AgreeToMarketing
	}
	if p := r.list(f); p != nil {
		return slices.Clone(*p)
	}
	if p := r.text(f); p != nil {
		return *p
	}
	return nil
}

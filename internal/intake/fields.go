package intake

import (
	"fmt"
	"strings"
)

// Field identifies one addressable answer in the intake record.
type Field int

const (
	FieldFirstName Field = iota + 1
	FieldLastName
	FieldEmail
	FieldPhone
	FieldAge
	FieldGender
	FieldCurrentWeight
	FieldGoalWeight
	FieldHeight
	FieldActivityLevel
	FieldPrimaryGoals
	FieldMealPrepExperience
	FieldCookingSkill
	FieldBudgetRange
	FieldDietaryRestrictions
	FieldAllergies
	FieldSelectedServices
	FieldUrgency
	FieldPreferredTime
	FieldTimeZone
	FieldCommunicationPreference
	FieldAgreeToTerms
	FieldAgreeToMarketing
	FieldNotes
)

// FieldType describes the value shape a field accepts.
type FieldType int

const (
	TypeText FieldType = iota
	TypeInt
	TypeDecimal
	TypeBool
	TypeList
)

type fieldInfo struct {
	key   string
	label string
	step  int
	typ   FieldType
}

var fieldTable = map[Field]fieldInfo{
	FieldFirstName:               {"first_name", "First name", StepIdentity, TypeText},
	FieldLastName:                {"last_name", "Last name", StepIdentity, TypeText},
	FieldEmail:                   {"email", "Email", StepIdentity, TypeText},
	FieldPhone:                   {"phone", "Phone", StepIdentity, TypeText},
	FieldAge:                     {"age", "Age", StepIdentity, TypeInt},
	FieldGender:                  {"gender", "Gender", StepIdentity, TypeText},
	FieldCurrentWeight:           {"current_weight", "Current weight", StepPhysiology, TypeDecimal},
	FieldGoalWeight:              {"goal_weight", "Goal weight", StepPhysiology, TypeDecimal},
	FieldHeight:                  {"height", "Height", StepPhysiology, TypeText},
	FieldActivityLevel:           {"activity_level", "Activity level", StepPhysiology, TypeText},
	FieldPrimaryGoals:            {"primary_goals", "Primary goals", StepGoals, TypeList},
	FieldMealPrepExperience:      {"meal_prep_experience", "Meal prep experience", StepGoals, TypeText},
	FieldCookingSkill:            {"cooking_skill", "Cooking skill", StepGoals, TypeText},
	FieldBudgetRange:             {"budget_range", "Budget range", StepGoals, TypeText},
	FieldDietaryRestrictions:     {"dietary_restrictions", "Dietary restrictions", StepGoals, TypeList},
	FieldAllergies:               {"allergies", "Allergies", StepGoals, TypeText},
	FieldSelectedServices:        {"selected_services", "Services", StepServices, TypeList},
	FieldUrgency:                 {"urgency", "Urgency", StepServices, TypeText},
	FieldPreferredTime:           {"preferred_time", "Preferred time", StepServices, TypeText},
	FieldTimeZone:                {"time_zone", "Time zone", StepServices, TypeText},
	FieldCommunicationPreference: {"communication_preference", "Communication preference", StepServices, TypeText},
	FieldAgreeToTerms:            {"agree_to_terms", "Terms agreement", StepConsent, TypeBool},
	FieldAgreeToMarketing:        {"agree_to_marketing", "Marketing agreement", StepConsent, TypeBool},
	FieldNotes:                   {"notes", "Notes", StepConsent, TypeText},
}

var fieldsByKey = func() map[string]Field {
	out := make(map[string]Field, len(fieldTable))
	for f, info := range fieldTable {
		out[info.key] = f
	}
	return out
}()

// AllFields returns every field in form order.
func AllFields() []Field {
	out := make([]Field, 0, len(fieldTable))
	for f := FieldFirstName; f <= FieldNotes; f++ {
		out = append(out, f)
	}
	return out
}

// FieldsForStep returns the fields collected on the given step, in form order.
func FieldsForStep(step int) []Field {
	var out []Field
	for _, f := range AllFields() {
		if fieldTable[f].step == step {
			out = append(out, f)
		}
	}
	return out
}

// ParseField resolves a wire key such as "first_name" to a Field.
func ParseField(key string) (Field, error) {
	f, ok := fieldsByKey[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	return f, nil
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	_, ok := fieldTable[f]
	return ok
}

// Key is the snake_case wire name.
func (f Field) Key() string {
	if info, ok := fieldTable[f]; ok {
		return info.key
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Label is the human readable name used in messages.
func (f Field) Label() string {
	return fieldTable[f].label
}

// Step is the wizard step that collects the field.
func (f Field) Step() int {
	return fieldTable[f].step
}

// Type is the value shape the field accepts.
func (f Field) Type() FieldType {
	return fieldTable[f].typ
}

func (f Field) String() string {
	return f.Key()
}

// MarshalText lets Field act as a JSON object key.
func (f Field) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownField, int(f))
	}
	return []byte(f.Key()), nil
}

// UnmarshalText parses the wire key.
func (f *Field) UnmarshalText(text []byte) error {
	parsed, err := ParseField(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

package intake

const (
	StepIdentity   = 1
	StepPhysiology = 2
	StepGoals      = 3
	StepServices   = 4
	StepConsent    = 5
	StepPayment    = 6

	FirstStep = StepIdentity
	LastStep  = StepPayment
)

// StepDefinition drives the step indicator.
type StepDefinition struct {
	Ordinal int    `json:"ordinal"`
	Title   string `json:"title"`
	Icon    string `json:"icon"`
}

var stepDefinitions = []StepDefinition{
	{Ordinal: StepIdentity, Title: "Personal Info", Icon: "user"},
	{Ordinal: StepPhysiology, Title: "Body Metrics", Icon: "activity"},
	{Ordinal: StepGoals, Title: "Goals & Lifestyle", Icon: "target"},
	{Ordinal: StepServices, Title: "Services & Scheduling", Icon: "calendar"},
	{Ordinal: StepConsent, Title: "Review & Consent", Icon: "clipboard-check"},
	{Ordinal: StepPayment, Title: "Payment", Icon: "credit-card"},
}

// Steps returns a copy of the ordered step definitions.
func Steps() []StepDefinition {
	out := make([]StepDefinition, len(stepDefinitions))
	copy(out, stepDefinitions)
	return out
}

// ValidStep reports whether n is within 1..6.
func ValidStep(n int) bool {
	return n >= FirstStep && n <= LastStep
}

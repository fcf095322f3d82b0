package models

// Step names a pipeline step the router can dispatch a turn to.
type Step string

// Step constants. The router is total over this set: every reachable
// (state, intent, phase) combination maps to exactly one of these.
const (
	StepModeration           Step = "moderation"
	StepIntentClassification Step = "intent_classification"
	StepGeneralAgent         Step = "general_agent"
	StepVision               Step = "vision"
	StepOffer                Step = "offer"
	StepPayment              Step = "payment"
	StepUpsell               Step = "upsell"
	StepEscalation           Step = "escalation"
	StepCRMError             Step = "crm_error"
	StepEnd                  Step = "end"
)

// AllSteps returns the closed step domain.
func AllSteps() []Step {
	return []Step{
		StepModeration, StepIntentClassification, StepGeneralAgent, StepVision,
		StepOffer, StepPayment, StepUpsell, StepEscalation, StepCRMError, StepEnd,
	}
}

// IsValidStep checks whether s is part of the closed step domain.
func IsValidStep(s Step) bool {
	for _, known := range AllSteps() {
		if s == known {
			return true
		}
	}
	return false
}

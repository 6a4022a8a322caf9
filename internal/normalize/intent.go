package normalize

import "strings"

// Intent is the feature a user message should be routed to.
type Intent string

const (
	IntentInventory    Intent = "inventory"
	IntentPrescription Intent = "prescription"
	IntentFamilyGroup  Intent = "family-group"
	IntentTherapist    Intent = "therapist"
	IntentDiagnosis    Intent = "diagnosis"
	IntentUnknown      Intent = "unknown"
)

// KnownIntents lists the routable intents in prompt order.
var KnownIntents = []Intent{
	IntentInventory,
	IntentPrescription,
	IntentFamilyGroup,
	IntentTherapist,
	IntentDiagnosis,
}

// ClassifyIntent maps a raw model answer onto the closed vocabulary.
func ClassifyIntent(raw string) Intent {
	candidate := Intent(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range KnownIntents {
		if candidate == known {
			return known
		}
	}
	return IntentUnknown
}

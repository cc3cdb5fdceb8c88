package schema

func standardHead() []FieldSchema {
	return []FieldSchema{
		{Key: KeySummary, Label: "Summary", Type: FieldText, Required: true},
		{Key: KeyTime, Label: "Time", Type: FieldText, Required: true, Placeholder: "08:30"},
		{Key: KeyDuration, Label: "Duration", Type: FieldNumber, Unit: "min"},
	}
}

func notesTail() FieldSchema {
	return FieldSchema{Key: KeyNotes, Label: "Notes", Type: FieldText}
}

func category(extra ...FieldSchema) []FieldSchema {
	fields := standardHead()
	fields = append(fields, extra...)
	return append(fields, notesTail())
}

var defaultSchemas = map[string][]FieldSchema{
	"dining": category(
		FieldSchema{Key: "meal", Label: "Meal", Type: FieldSelect, Options: []string{"breakfast", "lunch", "dinner", "snack"}},
		FieldSchema{Key: "cost", Label: "Cost", Type: FieldNumber, Unit: "currency"},
		FieldSchema{Key: "rating", Label: "Rating", Type: FieldRating},
	),
	"exercise": category(
		FieldSchema{Key: "activity", Label: "Activity", Type: FieldText},
		FieldSchema{Key: "intensity", Label: "Intensity", Type: FieldSelect, Options: []string{"light", "moderate", "hard"}},
		FieldSchema{Key: "distance", Label: "Distance", Type: FieldNumber, Unit: "km"},
	),
	"mood": category(
		FieldSchema{Key: "feeling", Label: "Feeling", Type: FieldSelect, Options: []string{"great", "good", "neutral", "low", "bad"}},
		FieldSchema{Key: "intensity", Label: "Intensity", Type: FieldRating},
		FieldSchema{Key: "triggers", Label: "Triggers", Type: FieldMultiSelect, Options: []string{"work", "family", "health", "weather", "other"}},
	),
	"work": category(
		FieldSchema{Key: "project", Label: "Project", Type: FieldText},
		FieldSchema{Key: "progress", Label: "Progress", Type: FieldText},
		FieldSchema{Key: "deadline", Label: "Deadline", Type: FieldDate},
	),
	"spending": category(
		FieldSchema{Key: "amount", Label: "Amount", Type: FieldNumber, Unit: "currency", Required: true},
		FieldSchema{Key: "merchant", Label: "Merchant", Type: FieldText},
		FieldSchema{Key: "method", Label: "Method", Type: FieldSelect, Options: []string{"cash", "card", "mobile"}},
	),
	"health": category(
		FieldSchema{Key: "symptom", Label: "Symptom", Type: FieldText},
		FieldSchema{Key: "severity", Label: "Severity", Type: FieldRating},
		FieldSchema{Key: "medication", Label: "Medication", Type: FieldText},
	),
}

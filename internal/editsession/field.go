// Package editsession connects the job form's rich text fields to the table
// builder: it routes edit requests to the owning field and applies confirmed
// tables as inserts or in-place replacements.
package editsession

// FieldKey identifies one rich text field of the job form.
type FieldKey string

const (
	FieldDescription        FieldKey = "description"
	FieldApplicationProcess FieldKey = "applicationProcess"
	FieldImportantDates     FieldKey = "importantDates"
	FieldHowToApply         FieldKey = "howToApply"
)

// Fields lists the form's rich text fields in display order.
var Fields = []FieldKey{
	FieldDescription,
	FieldApplicationProcess,
	FieldImportantDates,
	FieldHowToApply,
}

// containerIDs are the ids of the page regions wrapping each field's editor.
var containerIDs = map[FieldKey]string{
	FieldDescription:        "editor-description",
	FieldApplicationProcess: "editor-application-process",
	FieldImportantDates:     "editor-dates",
	FieldHowToApply:         "editor-how-to-apply",
}

func ParseField(s string) (FieldKey, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}
